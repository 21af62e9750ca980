package state

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

// FileSlotStore implements session.SlotStore on top of a single JSON file.
// It provides atomic writes (write-tmp-then-rename), file locking (flock for
// cross-process, mutex for in-process), and 0600 permissions.
// No backup copy is kept: a logged-out token must not survive on disk.
type FileSlotStore struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
}

// NewFileSlotStore creates a FileSlotStore for the given file path.
// The parent directory is created on first write.
func NewFileSlotStore(path string, logger *slog.Logger) *FileSlotStore {
	return &FileSlotStore{
		path:   path,
		logger: logger,
	}
}

// Load returns the requested slots that are present in the file.
// A missing file means no slots are set. Invalid JSON is an error.
// Warns if the file has permissions more open than 0600.
func (s *FileSlotStore) Load(ctx context.Context, keys ...string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}

	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := doc.Slots[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

// Store writes all given slots in one atomic file replacement.
func (s *FileSlotStore) Store(ctx context.Context, values map[string]string) error {
	return s.update(func(doc *SlotDocument) {
		for k, v := range values {
			doc.Slots[k] = v
		}
	})
}

// Remove deletes the given slots in one atomic file replacement.
func (s *FileSlotStore) Remove(ctx context.Context, keys ...string) error {
	return s.update(func(doc *SlotDocument) {
		for _, k := range keys {
			delete(doc.Slots, k)
		}
	})
}

// Close is a no-op; the file is only open during reads and writes.
func (s *FileSlotStore) Close() error {
	return nil
}

// Exists returns true if the session file exists on disk.
func (s *FileSlotStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Path returns the configured file path.
func (s *FileSlotStore) Path() string {
	return s.path
}

// read parses the session file. Caller must hold s.mu.
func (s *FileSlotStore) read() (*SlotDocument, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return newSlotDocument(), nil
		}
		return nil, fmt.Errorf("read session file: %w", err)
	}

	// Skip on Windows where Unix file permission bits are not supported.
	if runtime.GOOS != "windows" {
		if info, statErr := os.Stat(s.path); statErr == nil {
			mode := info.Mode().Perm()
			if mode&0077 != 0 {
				s.logger.Warn("session file has too-open permissions, should be 0600",
					"path", s.path, "current_mode", fmt.Sprintf("%04o", mode))
			}
		}
	}

	doc := newSlotDocument()
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("parse session file: %w", err)
	}
	if doc.Slots == nil {
		doc.Slots = map[string]string{}
	}
	return doc, nil
}

// update applies mutate to the current document and writes it back.
//
// The write sequence is:
//  1. Acquire in-process mutex
//  2. Acquire flock on path+".lock"
//  3. Read the current document (a corrupt file is replaced)
//  4. Apply the mutation, marshal as indented JSON
//  5. Write to path+".tmp" with 0600 permissions, fsync
//  6. Rename path+".tmp" -> path
//  7. Release flock and mutex
func (s *FileSlotStore) update(mutate func(*SlotDocument)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}

	lockFile, err := os.OpenFile(s.path+".lock", os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	defer func() { _ = lockFile.Close() }()

	release, err := lockExclusive(lockFile)
	if err != nil {
		return fmt.Errorf("acquire file lock: %w", err)
	}
	defer release()

	doc, err := s.read()
	if err != nil {
		s.logger.Warn("replacing unreadable session file", "path", s.path, "error", err)
		doc = newSlotDocument()
	}

	mutate(doc)
	doc.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session file: %w", err)
	}
	data = append(data, '\n')

	if err := s.writeAtomic(data); err != nil {
		return err
	}

	if err := os.Chmod(s.path, 0600); err != nil {
		s.logger.Warn("failed to set permissions on session file", "error", err)
	}

	s.logger.Debug("session file saved", "path", s.path, "slots", len(doc.Slots))
	return nil
}

// writeAtomic writes data to a temp file, fsyncs it, and renames it
// over the target path. On any error the temp file is cleaned up.
func (s *FileSlotStore) writeAtomic(data []byte) error {
	tmpPath := s.path + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	cleanup := func() {
		_ = f.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := f.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp to session file: %w", err)
	}
	return nil
}
