package frp

// Plan returns the commands that turn a table holding current into one
// holding desired. Rules whose footprint changes are deleted and added
// again, since Update never resizes. Deletes come first with linking rules
// removed before their targets, then adds with link targets first, then
// in-place updates.
func Plan(current, desired []Rule) []Command {
	want := make(map[int32]Rule, len(desired))
	for _, r := range desired {
		want[r.ID] = r
	}

	gone := make(map[int32]bool)
	for _, r := range current {
		w, ok := want[r.ID]
		if !ok || (!r.Equal(w) && r.Footprint() != w.Footprint()) {
			gone[r.ID] = true
		}
	}
	// A surviving rule still linked to a removed one is replaced as well.
	for changed := true; changed; {
		changed = false
		for _, r := range current {
			if !gone[r.ID] && r.Mode.IsLink() && gone[r.LinkID] {
				gone[r.ID] = true
				changed = true
			}
		}
	}

	live := make(map[int32]Rule, len(current))
	for _, r := range current {
		live[r.ID] = r
	}

	var cmds []Command
	var pending []Rule
	for _, r := range current {
		if gone[r.ID] {
			pending = append(pending, r)
		}
	}
	for len(pending) > 0 {
		i := firstReady(pending, func(r Rule) bool { return !linked(live, r.ID) })
		r := pending[i]
		cmds = append(cmds, Command{Op: OpDelete, Rule: Rule{ID: r.ID}})
		delete(live, r.ID)
		pending = append(pending[:i], pending[i+1:]...)
	}

	pending = pending[:0]
	var updates []Rule
	for _, r := range desired {
		old, ok := live[r.ID]
		switch {
		case !ok:
			pending = append(pending, r)
		case !old.Equal(r):
			updates = append(updates, r)
		}
	}
	for len(pending) > 0 {
		i := firstReady(pending, func(r Rule) bool {
			if !r.Mode.IsLink() {
				return true
			}
			_, ok := live[r.LinkID]
			return ok
		})
		r := pending[i]
		cmds = append(cmds, Command{Op: OpAdd, Rule: r})
		live[r.ID] = r
		pending = append(pending[:i], pending[i+1:]...)
	}

	for _, r := range updates {
		cmds = append(cmds, Command{Op: OpUpdate, Rule: r})
	}
	return cmds
}

// firstReady returns the index of the first rule satisfying ready, or 0
// when none does so that an unsatisfiable plan still makes progress and
// fails at apply time.
func firstReady(rules []Rule, ready func(Rule) bool) int {
	for i, r := range rules {
		if ready(r) {
			return i
		}
	}
	return 0
}

func linked(live map[int32]Rule, id int32) bool {
	for _, r := range live {
		if r.ID != id && r.Mode.IsLink() && r.LinkID == id {
			return true
		}
	}
	return false
}
