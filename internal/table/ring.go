package table

import "github.com/me/ossim/pkg/model"

// Ring is a round-robin cursor over the occupied slots of a ProcessTable.
// Freed slots are skipped, so the ring never needs rebuilding.
type Ring struct {
	cursor int
}

// Next returns the first occupied slot at or after the cursor, wrapping, for
// which skip returns false, and moves the cursor past it. skip may be nil.
func (r *Ring) Next(t *ProcessTable, skip func(model.TaskSlot) bool) (int, bool) {
	n := t.Capacity()
	if n == 0 || t.Occupied() == 0 {
		return -1, false
	}
	for step := 0; step < n; step++ {
		i := (r.cursor + step) % n
		s := t.slots[i]
		if !s.Occupied || (skip != nil && skip(s)) {
			continue
		}
		r.cursor = (i + 1) % n
		return i, true
	}
	return -1, false
}
