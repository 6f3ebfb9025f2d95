package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

const FileName = "record.json"

// ErrPersistence marks a record file that cannot be written.
var ErrPersistence = errors.New("record file is not writable")

// Store keeps the last run record in a single JSON file. It is not safe for
// concurrent use; the sync loop is its only caller.
type Store struct {
	path   string
	record Record
}

// Open loads the record file under dir, creating it with a zero record when it
// does not exist. A file that cannot be parsed is reset and rewritten.
func Open(dir string) (*Store, error) {
	s := &Store{
		path:   filepath.Join(dir, FileName),
		record: Record{LastIP: map[string]AddressSet{}},
	}

	b, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Infof("[record] %s not found, creating", s.path)
		return s, s.Save(s.record)
	case err != nil:
		return nil, fmt.Errorf("%w: read %s: %v", ErrPersistence, s.path, err)
	}

	var r Record
	if err := json.Unmarshal(b, &r); err != nil {
		log.Warnf("[record] record data is invalid, reset to default: %v", err)
		return s, s.Save(s.record)
	}
	if r.LastIP == nil {
		r.LastIP = map[string]AddressSet{}
	}
	s.record = r

	return s, nil
}

// Path returns the location of the backing file.
func (s *Store) Path() string {
	return s.path
}

// Load returns a copy of the current record.
func (s *Store) Load() Record {
	return s.record.Clone()
}

// Save replaces the whole record and rewrites the file atomically.
func (s *Store) Save(r Record) error {
	if r.LastIP == nil {
		r.LastIP = map[string]AddressSet{}
	}
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	tmp, err := os.CreateTemp(dir, "record-*.json.tmp")
	if err != nil {
		return fmt.Errorf("%w: creating temp file: %v", ErrPersistence, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: writing temp file: %v", ErrPersistence, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: closing temp file: %v", ErrPersistence, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: renaming temp to %s: %v", ErrPersistence, s.path, err)
	}

	s.record = r.Clone()
	return nil
}
