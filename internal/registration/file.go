package registration

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Internal methods (not thread-safe, must be called with lock held)

// loadUnsafe reads the whole request set. A missing or empty file is an empty set.
func (s *Store) loadUnsafe() ([]*Request, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []*Request{}, nil
		}
		return nil, s.storageError("load", err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return []*Request{}, nil
	}

	var requests []*Request
	if err := json.Unmarshal(data, &requests); err != nil {
		return nil, s.storageError("load", fmt.Errorf("parse: %w", err))
	}
	for i, req := range requests {
		if req == nil {
			return nil, s.storageError("load", fmt.Errorf("parse: null entry at index %d", i))
		}
	}

	return requests, nil
}

// saveUnsafe rewrites the whole request set. The snapshot is written to a
// temporary file in the same directory and renamed over the target, so readers
// never observe a truncated file.
func (s *Store) saveUnsafe(requests []*Request) error {
	data, err := json.MarshalIndent(requests, "", "  ")
	if err != nil {
		return s.storageError("save", fmt.Errorf("marshal: %w", err))
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return s.storageError("save", err)
	}
	tmpPath := tmp.Name()

	cleanup := func(cause error) error {
		tmp.Close()
		os.Remove(tmpPath)
		return s.storageError("save", cause)
	}

	// The file holds plaintext passwords of pending requests
	if err := tmp.Chmod(0600); err != nil {
		return cleanup(err)
	}
	if _, err := tmp.Write(data); err != nil {
		return cleanup(err)
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return s.storageError("save", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return s.storageError("save", err)
	}

	return nil
}

func (s *Store) storageError(op string, err error) error {
	serr := &StorageError{Op: op, Path: s.path, Err: err}
	s.logger.Error("registration storage failure", "op", op, "path", s.path, "error", err)
	return serr
}
