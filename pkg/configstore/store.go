// Package configstore keeps the candidate and active configuration, with
// commit, rollback and a persisted revision history.
package configstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"sync"

	"github.com/psaab/frpd/pkg/config"
	"github.com/psaab/frpd/pkg/frp"
)

// MaxRollback is the highest rollback number kept.
const MaxRollback = 49

var errNotConfiguring = errors.New("not in configuration mode")

// Store manages the candidate and active configuration.
type Store struct {
	mu        sync.RWMutex
	active    *config.ConfigTree
	compiled  *config.Config // nil until a config was loaded or committed
	candidate *config.ConfigTree
	dirty     bool
	history   *History
	db        *DB
	filePath  string
}

// New creates a config store backed by filePath. db persists the revision
// history and may be nil.
func New(filePath string, db *DB) *Store {
	return &Store{
		active:   &config.ConfigTree{},
		history:  NewHistory(MaxRollback + 1),
		db:       db,
		filePath: filePath,
	}
}

// Load reads the configuration file and the revision history. A missing
// file leaves the store empty.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadHistory(); err != nil {
		slog.Warn("failed to load rollback history", "err", err)
	}

	data, err := os.ReadFile(s.filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	tree, errs := config.NewParser(string(data)).Parse()
	if len(errs) > 0 {
		return fmt.Errorf("parse %s: %w", s.filePath, errs[0])
	}
	compiled, err := config.CompileConfig(tree)
	if err != nil {
		return fmt.Errorf("compile %s: %w", s.filePath, err)
	}
	s.active, s.compiled = tree, compiled
	return nil
}

func (s *Store) loadHistory() error {
	if s.db == nil {
		return nil
	}
	// Oldest first, so rollback 0 ends up in front.
	for n := s.history.Cap() - 1; n >= 0; n-- {
		rev, err := s.db.ReadRevision(n)
		if err != nil {
			return err
		}
		if rev != nil {
			s.history.Push(rev)
		}
	}
	return nil
}

// Save writes the active configuration to disk.
func (s *Store) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return writeFileAtomic(s.filePath, []byte(s.active.Format()))
}

// EnterConfigure starts a candidate from the active configuration.
func (s *Store) EnterConfigure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidate = s.active.Clone()
	s.dirty = false
}

// ExitConfigure discards the candidate.
func (s *Store) ExitConfigure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidate = nil
	s.dirty = false
}

// InConfigMode reports whether a candidate is open.
func (s *Store) InConfigMode() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.candidate != nil
}

// IsDirty reports whether the candidate was edited since it was opened,
// committed or rolled back to the active configuration.
func (s *Store) IsDirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// edit runs fn on the candidate and marks it dirty when fn succeeds.
func (s *Store) edit(fn func(*config.ConfigTree) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.candidate == nil {
		return errNotConfiguring
	}
	if err := fn(s.candidate); err != nil {
		return err
	}
	s.dirty = true
	return nil
}

// Set applies a "set" path to the candidate.
func (s *Store) Set(path []string) error {
	return s.edit(func(t *config.ConfigTree) error { return t.SetPath(path) })
}

// Delete applies a "delete" path to the candidate.
func (s *Store) Delete(path []string) error {
	return s.edit(func(t *config.ConfigTree) error { return t.DeletePath(path) })
}

// SetFromInput applies a "set" command given without its verb.
func (s *Store) SetFromInput(input string) error {
	path, err := config.ParsePath(input)
	if err != nil {
		return err
	}
	return s.Set(path)
}

// DeleteFromInput applies a "delete" command given without its verb.
func (s *Store) DeleteFromInput(input string) error {
	path, err := config.ParsePath(input)
	if err != nil {
		return err
	}
	return s.Delete(path)
}

// SetRules writes rules into the candidate. A rule replaces any existing
// rule with the same id; other rules are kept.
func (s *Store) SetRules(rules []frp.Rule) error {
	return s.edit(func(t *config.ConfigTree) error {
		for _, r := range rules {
			// Stale optional leaves of the old definition must not survive.
			t.DeletePath([]string{"rules", "rule", strconv.Itoa(int(r.ID))})
			for _, p := range config.RuleSetPaths(r) {
				if err := t.SetPath(p); err != nil {
					return fmt.Errorf("rule %d: %w", r.ID, err)
				}
			}
		}
		return nil
	})
}

// ReplaceRules makes rules the complete rule set of the candidate. Rules
// not in the list are removed.
func (s *Store) ReplaceRules(rules []frp.Rule) error {
	return s.edit(func(t *config.ConfigTree) error {
		// The rules block may be absent.
		t.DeletePath([]string{"rules"})
		for _, r := range rules {
			for _, p := range config.RuleSetPaths(r) {
				if err := t.SetPath(p); err != nil {
					return fmt.Errorf("rule %d: %w", r.ID, err)
				}
			}
		}
		return nil
	})
}

// CommitCheck compiles the candidate without committing it.
func (s *Store) CommitCheck() (*config.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.candidate == nil {
		return nil, errNotConfiguring
	}
	return config.CompileConfig(s.candidate)
}

// Commit makes the candidate active and records it as rollback 0. The
// compiled configuration is returned for the caller to apply. A failure
// to write the file is logged; the commit stands.
func (s *Store) Commit(comment string) (*config.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.candidate == nil {
		return nil, errNotConfiguring
	}
	compiled, err := config.CompileConfig(s.candidate)
	if err != nil {
		return nil, fmt.Errorf("commit check failed: %w", err)
	}

	s.active, s.compiled = s.candidate, compiled
	s.candidate = s.active.Clone()
	s.dirty = false

	s.history.Push(newRevision(s.active, comment))
	if s.db != nil {
		if err := s.db.WriteRevisions(s.history.List()); err != nil {
			slog.Warn("failed to persist rollback history", "err", err)
		}
	}
	if s.filePath != "" {
		if err := writeFileAtomic(s.filePath, []byte(s.active.Format())); err != nil {
			slog.Warn("failed to save config", "file", s.filePath, "err", err)
		}
	}
	return compiled, nil
}

// Rollback loads revision n into the candidate. Rollback 0 discards the
// candidate's edits.
func (s *Store) Rollback(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.candidate == nil {
		return errNotConfiguring
	}
	if n == 0 {
		s.candidate = s.active.Clone()
		s.dirty = false
		return nil
	}
	rev, err := s.history.Get(n)
	if err != nil {
		return err
	}
	s.candidate = rev.Config.Clone()
	s.dirty = true
	return nil
}

// History returns the committed revisions, rollback 0 first.
func (s *Store) History() []*Revision {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.List()
}

// ShowCandidate returns the candidate in hierarchical form.
func (s *Store) ShowCandidate() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.candidate == nil {
		return ""
	}
	return s.candidate.Format()
}

// ShowCandidateSet returns the candidate as flat set commands.
func (s *Store) ShowCandidateSet() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.candidate == nil {
		return ""
	}
	return s.candidate.FormatSet()
}

// ShowActive returns the active configuration in hierarchical form.
func (s *Store) ShowActive() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active.Format()
}

// ActiveConfig returns the compiled active configuration, or nil before
// the first load or commit.
func (s *Store) ActiveConfig() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.compiled
}

// ExportJSON renders the compiled active configuration as JSON.
func (s *Store) ExportJSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.MarshalIndent(s.compiled, "", "  ")
}
