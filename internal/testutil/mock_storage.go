// mock_storage.go - Mock storage implementation for testing
package testutil

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tldr-app/uploader/internal/models"
	"github.com/tldr-app/uploader/internal/storage"
)

// MockStorage implements storage.Store in memory
type MockStorage struct {
	files    map[string]*models.SelectedFile
	fileData map[string][]byte
	mu       sync.RWMutex

	// SaveErr, when set, is returned by Save
	SaveErr error
}

// NewMockStorage creates a new empty mock storage
func NewMockStorage() *MockStorage {
	return &MockStorage{
		files:    make(map[string]*models.SelectedFile),
		fileData: make(map[string][]byte),
	}
}

func (m *MockStorage) Save(name, contentType string, r io.Reader) (*models.SelectedFile, error) {
	if m.SaveErr != nil {
		return nil, m.SaveErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return m.AddFile(generateTestID(), name, contentType, data), nil
}

func (m *MockStorage) Get(id string) (*models.SelectedFile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	file, ok := m.files[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	return file, nil
}

func (m *MockStorage) Open(id string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.fileData[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *MockStorage) List(limit int) ([]*models.SelectedFile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var files []*models.SelectedFile
	for _, file := range m.files {
		files = append(files, file)
		if limit > 0 && len(files) >= limit {
			break
		}
	}
	return files, nil
}

func (m *MockStorage) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.files[id]; !exists {
		return errors.New("file not found")
	}

	delete(m.files, id)
	delete(m.fileData, id)
	return nil
}

// Ensure MockStorage implements storage.Store
var _ storage.Store = (*MockStorage)(nil)

// Test Helper Methods

// AddFile adds a file directly to the mock
func (m *MockStorage) AddFile(id, name, contentType string, data []byte) *models.SelectedFile {
	m.mu.Lock()
	defer m.mu.Unlock()

	sum := sha256.Sum256(data)
	file := &models.SelectedFile{
		ID:          id,
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(data)),
		Hash:        hex.EncodeToString(sum[:]),
		SelectedAt:  time.Now(),
	}
	m.files[id] = file
	m.fileData[id] = data
	return file
}

// GetFileCount returns the number of stored files
func (m *MockStorage) GetFileCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.files)
}

// generateTestID generates a simple test ID
var testIDCounter int
var testIDMutex sync.Mutex

func generateTestID() string {
	testIDMutex.Lock()
	defer testIDMutex.Unlock()
	testIDCounter++
	return fmt.Sprintf("test-id-%d", testIDCounter)
}
