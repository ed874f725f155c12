package scheduling

import (
	"iter"
	"slices"
)

// Slots yields the start of every slot of the given length that fits
// entirely inside [start, end). Non-positive lengths yield nothing.
func Slots(start, end TimeOfDay, minutes int) iter.Seq[TimeOfDay] {
	return func(yield func(TimeOfDay) bool) {
		if minutes <= 0 {
			return
		}
		for p := start; p.Add(minutes) <= end; p = p.Add(minutes) {
			if !yield(p) {
				return
			}
		}
	}
}

func GenerateSlots(start, end TimeOfDay, minutes int) []TimeOfDay {
	return slices.Collect(Slots(start, end, minutes))
}

// unionSlots merges the slots of windows into one ascending list. Times
// produced by more than one window are returned separately as overlaps.
func unionSlots(windows []*AvailabilityWindow) (slots, overlapping []TimeOfDay) {
	seen := make(map[TimeOfDay]int)
	for _, w := range windows {
		for t := range Slots(w.Start, w.End, w.SlotMinutes) {
			seen[t]++
		}
	}
	for t, n := range seen {
		slots = append(slots, t)
		if n > 1 {
			overlapping = append(overlapping, t)
		}
	}
	slices.Sort(slots)
	slices.Sort(overlapping)
	return slots, overlapping
}
