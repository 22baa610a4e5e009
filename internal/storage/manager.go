package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tldr-app/uploader/internal/models"
)

// ErrNotFound is returned for unknown file IDs.
var ErrNotFound = errors.New("file not found")

// Store defines the interface for selected-file storage.
type Store interface {
	Save(name, contentType string, r io.Reader) (*models.SelectedFile, error)
	Get(id string) (*models.SelectedFile, error)
	Open(id string) (io.ReadCloser, error)
	List(limit int) ([]*models.SelectedFile, error)
	Delete(id string) error
}

// LocalStore implements Store using the local filesystem.
type LocalStore struct {
	mu        sync.RWMutex
	uploadDir string
	files     map[string]*models.SelectedFile
}

// NewLocalStore creates a new LocalStore.
func NewLocalStore(uploadDir string) (*LocalStore, error) {
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}

	return &LocalStore{
		uploadDir: uploadDir,
		files:     make(map[string]*models.SelectedFile),
	}, nil
}

// Save writes r to disk and records its size and SHA-256.
func (s *LocalStore) Save(name, contentType string, r io.Reader) (*models.SelectedFile, error) {
	id := uuid.New().String()
	path := filepath.Join(s.uploadDir, id)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(f, io.TeeReader(r, h))
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("writing file: %w", err)
	}

	info := &models.SelectedFile{
		ID:          id,
		Name:        name,
		ContentType: contentType,
		Size:        size,
		Hash:        hex.EncodeToString(h.Sum(nil)),
		SelectedAt:  time.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[id] = info

	return info, nil
}

// Get retrieves file metadata by ID.
func (s *LocalStore) Get(id string) (*models.SelectedFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return info, nil
}

// Open returns a reader over the stored bytes.
func (s *LocalStore) Open(id string) (io.ReadCloser, error) {
	s.mu.RLock()
	_, ok := s.files[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	f, err := os.Open(filepath.Join(s.uploadDir, id))
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	return f, nil
}

// List returns the most recent files.
func (s *LocalStore) List(limit int) ([]*models.SelectedFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*models.SelectedFile, 0, len(s.files))
	for _, info := range s.files {
		list = append(list, info)
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].SelectedAt.After(list[j].SelectedAt)
	})

	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}

	return list, nil
}

// Delete removes a file from storage.
func (s *LocalStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	path := filepath.Join(s.uploadDir, id)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting file: %w", err)
	}

	delete(s.files, id)
	return nil
}

// PurgeOrphans removes files in the upload directory that the store does not
// know about, such as those left behind by a previous run.
func (s *LocalStore) PurgeOrphans() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.uploadDir)
	if err != nil {
		return 0, fmt.Errorf("reading upload directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := s.files[entry.Name()]; ok {
			continue
		}
		if err := os.Remove(filepath.Join(s.uploadDir, entry.Name())); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("removing orphaned file: %w", err)
		}
		removed++
	}
	return removed, nil
}
