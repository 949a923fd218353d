package configstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/psaab/frpd/pkg/config"
	"github.com/psaab/frpd/pkg/frp"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	db, err := NewDB(filepath.Join(dir, "db"))
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "frpd.conf")
	return New(path, db), path
}

func mustSet(t *testing.T, s *Store, cmds ...string) {
	t.Helper()
	for _, c := range cmds {
		if err := s.SetFromInput(c); err != nil {
			t.Fatalf("set %s: %v", c, err)
		}
	}
}

func TestStore_NotInConfigMode(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.SetFromInput("parser variant eqos"); err == nil {
		t.Error("set outside configuration mode succeeded")
	}
	if _, err := s.Commit(""); err == nil {
		t.Error("commit outside configuration mode succeeded")
	}
}

func TestStore_CommitPersists(t *testing.T) {
	s, path := newTestStore(t)
	s.EnterConfigure()
	mustSet(t, s,
		"parser variant eqos",
		"rules rule 1 match 01:02",
		"rules rule 1 action drop",
	)
	if !s.IsDirty() {
		t.Error("candidate should be dirty")
	}
	cfg, err := s.Commit("first")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if len(cfg.Rules) != 1 || cfg.Rules[0].Mode != frp.ModeDrop {
		t.Errorf("compiled rules: %+v", cfg.Rules)
	}
	if s.IsDirty() {
		t.Error("candidate should be clean after commit")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "variant eqos;") {
		t.Errorf("saved config:\n%s", data)
	}

	// A fresh store loads the file and the rollback history.
	db, _ := NewDB(filepath.Join(filepath.Dir(path), "db"))
	s2 := New(path, db)
	if err := s2.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c := s2.ActiveConfig(); c == nil || c.Parser.Variant != frp.VariantEQOS || len(c.Rules) != 1 {
		t.Errorf("loaded config: %+v", c)
	}
	if h := s2.History(); len(h) != 1 || h[0].Comment != "first" {
		t.Errorf("loaded history: %+v", h)
	}
}

func TestStore_CommitRejectsInvalid(t *testing.T) {
	s, _ := newTestStore(t)
	s.EnterConfigure()
	mustSet(t, s, "rules rule 1 match 01", "rules rule 1 action link", "rules rule 1 link-to 5")
	if _, err := s.CommitCheck(); err == nil {
		t.Error("commit check accepted a dangling link")
	}
	if _, err := s.Commit(""); err == nil {
		t.Error("commit accepted a dangling link")
	}
	if s.ActiveConfig() != nil {
		t.Error("active config changed by a failed commit")
	}
}

func TestStore_Rollback(t *testing.T) {
	s, _ := newTestStore(t)
	s.EnterConfigure()
	mustSet(t, s, "rules rule 1 match 01")
	if _, err := s.Commit("one"); err != nil {
		t.Fatal(err)
	}
	mustSet(t, s, "rules rule 2 match 02")
	if _, err := s.Commit("two"); err != nil {
		t.Fatal(err)
	}

	if err := s.Rollback(1); err != nil {
		t.Fatalf("Rollback(1): %v", err)
	}
	cand := s.ShowCandidateSet()
	if !strings.Contains(cand, "rule 1") || strings.Contains(cand, "rule 2") {
		t.Errorf("rollback 1 candidate:\n%s", cand)
	}
	if err := s.Rollback(0); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(s.ShowCandidate(), "rule 2") {
		t.Error("rollback 0 should restore the active config")
	}
	if err := s.Rollback(5); err == nil {
		t.Error("rollback past history succeeded")
	}
}

func TestStore_DeleteAndSetRules(t *testing.T) {
	s, _ := newTestStore(t)
	s.EnterConfigure()
	mustSet(t, s, "rules rule 1 match 01", "rules rule 1 dma-channels 0x7")

	err := s.SetRules([]frp.Rule{
		{ID: 1, Match: []byte{0xab}, Mode: frp.ModeBypass},
		{ID: 2, Kind: frp.MatchL4DestTCPPort, Match: []byte{0, 80}, Mode: frp.ModeLink, LinkID: 1},
	})
	if err != nil {
		t.Fatalf("SetRules: %v", err)
	}
	cfg, err := s.CommitCheck()
	if err != nil {
		t.Fatalf("CommitCheck: %v", err)
	}
	if len(cfg.Rules) != 2 || cfg.Rules[0].DMAChannels != 0 || cfg.Rules[0].Match[0] != 0xab {
		t.Errorf("rules after import: %+v", cfg.Rules)
	}

	if err := s.DeleteFromInput("rules rule 2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteFromInput("rules rule 2"); err == nil {
		t.Error("second delete succeeded")
	}
	if strings.Contains(s.ShowCandidateSet(), "rule 2") {
		t.Error("rule 2 still in candidate")
	}
}

func TestStore_ReplaceRules(t *testing.T) {
	s, _ := newTestStore(t)
	s.EnterConfigure()
	mustSet(t, s, "parser variant eqos", "rules rule 9 match ff", "rules rule 1 match 01")

	if err := s.ReplaceRules([]frp.Rule{{ID: 1, Match: []byte{0xab}, Mode: frp.ModeRoute}}); err != nil {
		t.Fatalf("ReplaceRules: %v", err)
	}
	cfg, err := s.CommitCheck()
	if err != nil {
		t.Fatalf("CommitCheck: %v", err)
	}
	if len(cfg.Rules) != 1 || cfg.Rules[0].ID != 1 || cfg.Rules[0].Match[0] != 0xab {
		t.Errorf("rules = %+v, want only rule 1", cfg.Rules)
	}
	if cfg.Parser.Variant != frp.VariantEQOS {
		t.Errorf("variant = %v, want eqos", cfg.Parser.Variant)
	}

	// An empty list leaves no rules and no error on a tree without them.
	if err := s.ReplaceRules(nil); err != nil {
		t.Fatalf("ReplaceRules(nil): %v", err)
	}
	if err := s.ReplaceRules(nil); err != nil {
		t.Fatalf("ReplaceRules(nil) twice: %v", err)
	}
	if cfg, err := s.CommitCheck(); err != nil || len(cfg.Rules) != 0 {
		t.Errorf("rules = %+v, err = %v", cfg, err)
	}
}

func TestHistory_Cap(t *testing.T) {
	h := NewHistory(3)
	for i := 0; i < 5; i++ {
		h.Push(&Revision{Comment: string(rune('a' + i))})
	}
	if h.Len() != 3 {
		t.Fatalf("Len = %d, want 3", h.Len())
	}
	var got []string
	for _, r := range h.List() {
		got = append(got, r.Comment)
	}
	if strings.Join(got, "") != "edc" {
		t.Errorf("List = %v, want [e d c]", got)
	}
	if r, err := h.Get(0); err != nil || r.Comment != "e" {
		t.Errorf("Get(0) = %+v, %v", r, err)
	}
	if _, err := h.Get(3); err == nil {
		t.Error("Get past the cap succeeded")
	}
}

func TestStore_HistoryPersistence(t *testing.T) {
	s, path := newTestStore(t)
	s.EnterConfigure()
	for i, rule := range []string{"1", "2", "3"} {
		mustSet(t, s, "rules rule "+rule+" match 0"+rule)
		if _, err := s.Commit(fmt.Sprintf("c%d", i)); err != nil {
			t.Fatal(err)
		}
	}

	db, _ := NewDB(filepath.Join(filepath.Dir(path), "db"))
	s2 := New(path, db)
	if err := s2.Load(); err != nil {
		t.Fatal(err)
	}
	h := s2.History()
	if len(h) != 3 {
		t.Fatalf("history = %d revisions, want 3", len(h))
	}
	for i, want := range []struct {
		comment string
		rules   int
	}{{"c2", 3}, {"c1", 2}, {"c0", 1}} {
		if h[i].Comment != want.comment || h[i].Rules != want.rules {
			t.Errorf("rollback %d = %q with %d rules, want %q with %d",
				i, h[i].Comment, h[i].Rules, want.comment, want.rules)
		}
	}

	s2.EnterConfigure()
	if err := s2.Rollback(2); err != nil {
		t.Fatal(err)
	}
	if cand := s2.ShowCandidateSet(); strings.Contains(cand, "rule 2") || !strings.Contains(cand, "rule 1") {
		t.Errorf("rollback 2 candidate:\n%s", cand)
	}
}

func TestDB_WriteRevisionsPrunes(t *testing.T) {
	db, err := NewDB(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	tree := &config.ConfigTree{}
	revs := []*Revision{newRevision(tree, "a"), newRevision(tree, "b")}
	if err := db.WriteRevisions(revs); err != nil {
		t.Fatal(err)
	}
	if err := db.WriteRevisions(revs[:1]); err != nil {
		t.Fatal(err)
	}
	if r, err := db.ReadRevision(1); r != nil || err != nil {
		t.Errorf("rollback 1 = %+v, %v; want pruned", r, err)
	}
	if r, err := db.ReadRevision(0); err != nil || r.Comment != "a" {
		t.Errorf("rollback 0 = %+v, %v", r, err)
	}
}

func TestDB_ReadRevisionCorrupt(t *testing.T) {
	dir := t.TempDir()
	db, _ := NewDB(dir)
	if err := os.WriteFile(filepath.Join(dir, "rollback.0.json"), []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := db.ReadRevision(0); err == nil {
		t.Error("corrupt revision accepted")
	}
	if err := os.WriteFile(filepath.Join(dir, "rollback.1.json"), []byte(`{"comment":"x"}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := db.ReadRevision(1); err == nil {
		t.Error("revision without config accepted")
	}
}
