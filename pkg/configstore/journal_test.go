package configstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/psaab/frpd/pkg/frp"
)

func TestJournal_RecordAndList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	j := NewJournal(path)

	add := frp.Command{Op: frp.OpAdd, Rule: frp.Rule{ID: 4, Match: []byte{1}}}
	if err := j.Record("commit", add, nil); err != nil {
		t.Fatal(err)
	}
	del := frp.Command{Op: frp.OpDelete, Rule: frp.Rule{ID: 9}}
	if err := j.Record("commit", del, frp.ErrNotFound); err != nil {
		t.Fatal(err)
	}

	entries, err := j.ListEntries(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if e := entries[0]; e.Op != "add" || e.Code != 0 || e.Rule == nil || e.Rule.ID != 4 {
		t.Errorf("entry 0 = %+v", e)
	}
	if e := entries[1]; e.Op != "delete" || e.Code != -2 || e.Rule != nil || e.Error == "" {
		t.Errorf("entry 1 = %+v", e)
	}

	last, err := j.ListEntries(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(last) != 1 || last[0].RuleID != 9 {
		t.Errorf("limit 1 = %+v", last)
	}
}

func TestJournal_SkipsCorruptLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	if err := os.WriteFile(path, []byte("{not json\n\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	j := NewJournal(path)
	if err := j.Record("resync", frp.Command{Op: frp.OpUpdate, Rule: frp.Rule{ID: 1}}, nil); err != nil {
		t.Fatal(err)
	}
	entries, err := j.ListEntries(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Source != "resync" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestJournal_Missing(t *testing.T) {
	j := NewJournal(filepath.Join(t.TempDir(), "none.jsonl"))
	entries, err := j.ListEntries(10)
	if err != nil || entries != nil {
		t.Errorf("ListEntries = %v, %v", entries, err)
	}
}
