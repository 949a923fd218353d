package frp

// Table is the in-memory parser instruction table. Live slots occupy
// [0, Len()); the catch-all slot is never stored here.
type Table struct {
	slots [MaxEntries]Slot
	count int
}

// Len returns the number of live slots.
func (t *Table) Len() int { return t.count }

// Slot returns the slot at index i. It panics if i is not live.
func (t *Table) Slot(i int) Slot {
	if i < 0 || i >= t.count {
		panic("frp: slot index out of range")
	}
	return t.slots[i]
}

// Slots returns a copy of the live slots.
func (t *Table) Slots() []Slot {
	out := make([]Slot, t.count)
	copy(out, t.slots[:t.count])
	return out
}

// Find returns the first slot index and slot count owned by rule id.
func (t *Table) Find(id int32) (start, n int, ok bool) {
	for i := 0; i < t.count; i++ {
		if t.slots[i].RuleID != id {
			continue
		}
		if !ok {
			start, ok = i, true
		}
		n++
	}
	return start, n, ok
}

// linkedFrom returns the id of a rule outside [start, start+n) whose slots
// chain into that range, if any.
func (t *Table) linkedFrom(start, n int) (int32, bool) {
	for i := 0; i < t.count; i++ {
		if i >= start && i < start+n {
			continue
		}
		s := &t.slots[i]
		if s.Continue && int(s.OKIndex) >= start && int(s.OKIndex) < start+n {
			return s.RuleID, true
		}
	}
	return 0, false
}

// remove drops the slot run [start, start+n), shifts the slots above it
// down and rebases chain targets that pointed past the removed run.
func (t *Table) remove(start, n int) {
	end := start + n
	copy(t.slots[start:], t.slots[end:t.count])
	clear(t.slots[t.count-n : t.count])
	t.count -= n

	for i := 0; i < t.count; i++ {
		s := &t.slots[i]
		if s.Continue && int(s.OKIndex) >= end {
			s.OKIndex -= uint8(n)
		}
	}
}

// reset clears every slot and the live count.
func (t *Table) reset() {
	clear(t.slots[:])
	t.count = 0
}
