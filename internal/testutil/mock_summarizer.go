// mock_summarizer.go - Scripted summarizer for handler and view tests
package testutil

import (
	"context"
	"sync"

	"github.com/tldr-app/uploader/internal/models"
)

// MockSummarizer returns Text (or Err) for every call. When Gate is set each
// call blocks until Gate is closed or the context ends.
type MockSummarizer struct {
	Text string
	Err  error
	Gate chan struct{}

	mu    sync.Mutex
	calls []*models.SelectedFile
}

// NewMockSummarizer creates a mock that answers with text.
func NewMockSummarizer(text string) *MockSummarizer {
	return &MockSummarizer{Text: text}
}

func (m *MockSummarizer) Summarize(ctx context.Context, file *models.SelectedFile) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, file)
	gate, text, err := m.Gate, m.Text, m.Err
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return text, err
}

// Calls returns the files passed to Summarize so far.
func (m *MockSummarizer) Calls() []*models.SelectedFile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.SelectedFile(nil), m.calls...)
}
