package configstore

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/psaab/frpd/pkg/frp"
)

// Journal is the parser command log. Entries are appended to a JSONL
// file (one JSON object per line).
type Journal struct {
	mu       sync.Mutex
	filePath string
}

// JournalEntry records one applied table command and its result code.
type JournalEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"` // "startup", "commit", "resync"
	Op        string    `json:"op"`
	RuleID    int32     `json:"rule_id"`
	Rule      *frp.Rule `json:"rule,omitempty"` // nil for deletes
	Code      int       `json:"code"`           // 0 or negative errno
	Error     string    `json:"error,omitempty"`
}

// NewJournal creates a journal at the given file path.
func NewJournal(filePath string) *Journal {
	return &Journal{filePath: filePath}
}

// Record logs cmd with the result of applying it.
func (j *Journal) Record(source string, cmd frp.Command, err error) error {
	e := &JournalEntry{
		Source: source,
		Op:     cmd.Op.String(),
		RuleID: cmd.Rule.ID,
		Code:   frp.Code(err),
	}
	if cmd.Op != frp.OpDelete {
		r := cmd.Rule
		e.Rule = &r
	}
	if err != nil {
		e.Error = err.Error()
	}
	return j.Log(e)
}

// Log appends an entry to the journal.
func (j *Journal) Log(entry *JournalEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	f, err := os.OpenFile(j.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "%s\n", data); err != nil {
		return fmt.Errorf("write journal entry: %w", err)
	}
	return nil
}

// ListEntries reads the journal from disk, keeping the last limit entries
// when limit is positive. Corrupt lines are skipped.
func (j *Journal) ListEntries(limit int) ([]*JournalEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.Open(j.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read journal: %w", err)
	}
	defer f.Close()

	var entries []*JournalEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		entry := &JournalEntry{}
		if err := json.Unmarshal(sc.Bytes(), entry); err != nil {
			continue
		}
		entries = append(entries, entry)
		if limit > 0 && len(entries) > limit {
			entries = entries[1:]
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	return entries, nil
}
