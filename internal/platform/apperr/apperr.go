package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the caller boundary.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindAuthorization
	KindBusinessRule
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindAuthorization:
		return "authorization"
	case KindBusinessRule:
		return "business_rule"
	default:
		return "internal"
	}
}

// Reason codes surfaced to clients in the "code" field.
const (
	CodeValidation        = "validation_error"
	CodeNotFound          = "not_found"
	CodeSlotTaken         = "slot_taken"
	CodeDuplicateWindow   = "duplicate_window"
	CodeDuplicate         = "duplicate"
	CodeInvalidTransition = "invalid_transition"
	CodeNotAuthorized     = "not_authorized"
	CodeCutoffViolated    = "cutoff_violated"
)

// Error is a classified, client-presentable error.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches another *Error of the same kind and code, so sentinel values
// built with the constructors below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Code == "" || t.Code == e.Code)
}

func newf(kind Kind, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *Error {
	return newf(KindValidation, CodeValidation, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return newf(KindNotFound, CodeNotFound, format, args...)
}

// Conflict carries a specific reason code such as CodeSlotTaken.
func Conflict(code, format string, args ...any) *Error {
	return newf(KindConflict, code, format, args...)
}

func Unauthorized(format string, args ...any) *Error {
	return newf(KindAuthorization, CodeNotAuthorized, format, args...)
}

func BusinessRule(code, format string, args ...any) *Error {
	return newf(KindBusinessRule, code, format, args...)
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// CodeOf returns the reason code of err, or "" for unclassified errors.
func CodeOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}
