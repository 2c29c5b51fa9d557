package sink

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/vaibhaw-/oplogr/internal/oplogr/oplog"
)

// File appends oplog records to a file, one JSON line per record.
// Appends are unbuffered: a record is on disk once Append returns.
type File struct {
	f       *os.File
	path    string
	written int64
}

// Open opens (or creates) the oplog file at path for appending, creating
// parent directories as needed.
func Open(path string) (*File, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("file sink: mkdir %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("file sink: open %s: %w", path, err)
	}
	return &File{f: f, path: path}, nil
}

// Append writes rec as one line.
func (s *File) Append(rec *oplog.OperationRecord) error {
	line, err := oplog.Encode(rec)
	if err != nil {
		return fmt.Errorf("file sink: %w", err)
	}
	n, err := s.f.Write(line)
	s.written += int64(n)
	if err != nil {
		return fmt.Errorf("file sink: write %s: %w", s.path, err)
	}
	return nil
}

// Written reports the bytes appended through this handle.
func (s *File) Written() int64 {
	return s.written
}

// Path returns the file path.
func (s *File) Path() string {
	return s.path
}

// Close syncs and closes the file.
func (s *File) Close() error {
	if err := s.f.Sync(); err != nil {
		s.f.Close()
		return fmt.Errorf("file sink: sync: %w", err)
	}
	return s.f.Close()
}
