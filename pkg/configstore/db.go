package configstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// DB persists revisions as one JSON file per rollback number. Files are
// replaced atomically so a crash never leaves a torn revision.
type DB struct {
	dir string
}

// NewDB opens the revision directory, creating it if needed.
func NewDB(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	return &DB{dir: dir}, nil
}

func (db *DB) path(n int) string {
	return filepath.Join(db.dir, fmt.Sprintf("rollback.%d.json", n))
}

// ReadRevision loads revision n. A missing file yields nil, nil.
func (db *DB) ReadRevision(n int) (*Revision, error) {
	data, err := os.ReadFile(db.path(n))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read rollback %d: %w", n, err)
	}

	var rev Revision
	if err := json.Unmarshal(data, &rev); err != nil {
		return nil, fmt.Errorf("decode rollback %d: %w", n, err)
	}
	if rev.Config == nil {
		return nil, fmt.Errorf("decode rollback %d: no config", n)
	}
	return &rev, nil
}

// WriteRevisions stores revs as rollback 0..len-1 and removes the file
// of the revision that fell off the end.
func (db *DB) WriteRevisions(revs []*Revision) error {
	for n, rev := range revs {
		data, err := json.MarshalIndent(rev, "", "  ")
		if err != nil {
			return fmt.Errorf("encode rollback %d: %w", n, err)
		}
		if err := writeFileAtomic(db.path(n), data); err != nil {
			return err
		}
	}
	if err := os.Remove(db.path(len(revs))); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove rollback %d: %w", len(revs), err)
	}
	return nil
}

// writeFileAtomic writes data next to path and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	_, err = f.Write(data)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Chmod(tmp, 0644)
	}
	if err == nil {
		err = os.Rename(tmp, path)
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
