package configstore

import (
	"fmt"
	"slices"
	"time"

	"github.com/psaab/frpd/pkg/config"
)

// Revision is one committed configuration. Revision 0 is the active
// configuration, revision n the one committed n commits earlier.
type Revision struct {
	Config    *config.ConfigTree `json:"config"`
	Timestamp time.Time          `json:"timestamp"`
	Comment   string             `json:"comment,omitempty"`
	Rules     int                `json:"rules"`
}

func newRevision(tree *config.ConfigTree, comment string) *Revision {
	rules := 0
	if n := tree.FindChild("rules"); n != nil {
		rules = len(n.FindChildren("rule"))
	}
	return &Revision{
		Config:    tree.Clone(),
		Timestamp: time.Now(),
		Comment:   comment,
		Rules:     rules,
	}
}

// History keeps the most recent revisions, newest first.
type History struct {
	revs []*Revision
	max  int
}

// NewHistory returns a History holding at most max revisions.
func NewHistory(max int) *History {
	return &History{max: max}
}

// Cap returns the number of revisions kept.
func (h *History) Cap() int { return h.max }

// Len returns the number of revisions held.
func (h *History) Len() int { return len(h.revs) }

// Push records r as revision 0 and drops revisions past the cap.
func (h *History) Push(r *Revision) {
	h.revs = slices.Insert(h.revs, 0, r)
	if len(h.revs) > h.max {
		clear(h.revs[h.max:])
		h.revs = h.revs[:h.max]
	}
}

// Get returns revision n.
func (h *History) Get(n int) (*Revision, error) {
	if n < 0 || n >= len(h.revs) {
		return nil, fmt.Errorf("rollback %d: no such revision (have %d)", n, len(h.revs))
	}
	return h.revs[n], nil
}

// List returns the revisions, newest first.
func (h *History) List() []*Revision {
	return slices.Clone(h.revs)
}
