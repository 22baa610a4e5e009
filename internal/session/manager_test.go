package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tldr-app/uploader/internal/models"
	"github.com/tldr-app/uploader/internal/uploader"
)

type blockingSummarizer struct {
	gate chan struct{}
}

func (b *blockingSummarizer) Summarize(ctx context.Context, _ *models.SelectedFile) (string, error) {
	if b.gate != nil {
		<-b.gate
	}
	return "summary", nil
}

func newTestManager(max int, s uploader.Summarizer) (*Manager, *[]string) {
	var mu sync.Mutex
	released := &[]string{}
	factory := func(id string) *uploader.View {
		return uploader.NewView(id, uploader.Options{
			Summarizer: s,
			Release: func(f *models.SelectedFile) {
				mu.Lock()
				defer mu.Unlock()
				*released = append(*released, f.ID)
			},
		})
	}
	return NewManager(factory, max, nil), released
}

func age(m *Manager, id string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id].LastAccessed = time.Now().Add(-d)
}

func TestSessionManager_GetOrCreate(t *testing.T) {
	m, _ := newTestManager(0, &blockingSummarizer{})

	id, view, created := m.GetOrCreate("")
	if !created || id == "" || view == nil {
		t.Fatalf("Expected new session, got id=%q created=%v", id, created)
	}

	id2, view2, created := m.GetOrCreate(id)
	if created {
		t.Error("Expected existing session to be reused")
	}
	if id2 != id || view2 != view {
		t.Error("Expected the same view for the same id")
	}

	id3, _, created := m.GetOrCreate("forged-or-expired-id")
	if !created {
		t.Error("Expected unknown id to create a new session")
	}
	if id3 == "forged-or-expired-id" {
		t.Error("Unknown ids must not be adopted")
	}

	if m.Len() != 2 {
		t.Errorf("Expected 2 sessions, got %d", m.Len())
	}
}

func TestSessionManager_Delete(t *testing.T) {
	m, released := newTestManager(0, &blockingSummarizer{})
	id, view, _ := m.GetOrCreate("")
	view.Select(&models.SelectedFile{ID: "f1", Name: "a.pdf"})

	if !m.Delete(id) {
		t.Fatal("Expected delete to succeed")
	}
	if _, ok := m.Get(id); ok {
		t.Error("Expected session to be gone")
	}
	if len(*released) != 1 || (*released)[0] != "f1" {
		t.Errorf("Expected selected file to be released, got %v", *released)
	}
	if m.Delete(id) {
		t.Error("Expected second delete to report false")
	}
}

func TestSessionManager_CleanupOldSessions(t *testing.T) {
	m, _ := newTestManager(0, &blockingSummarizer{})

	oldID, _, _ := m.GetOrCreate("")
	freshID, _, _ := m.GetOrCreate("")
	age(m, oldID, time.Hour)

	if n := m.CleanupOldSessions(30 * time.Minute); n != 1 {
		t.Errorf("Expected 1 session cleaned, got %d", n)
	}
	if _, ok := m.Get(oldID); ok {
		t.Error("Expected aged session to be removed")
	}
	if _, ok := m.Get(freshID); !ok {
		t.Error("Expected fresh session to be kept")
	}
}

func TestSessionManager_TouchSession(t *testing.T) {
	m, _ := newTestManager(0, &blockingSummarizer{})

	id, _, _ := m.GetOrCreate("")
	age(m, id, time.Hour)

	if !m.TouchSession(id) {
		t.Fatal("Expected known session to be touched")
	}
	if m.TouchSession("unknown") {
		t.Error("Expected unknown session not to be touched")
	}
	if n := m.CleanupOldSessions(30 * time.Minute); n != 0 {
		t.Errorf("Expected touched session to survive cleanup, %d removed", n)
	}
}

func TestSessionManager_CleanupSkipsBusyViews(t *testing.T) {
	stub := &blockingSummarizer{gate: make(chan struct{})}
	m, _ := newTestManager(0, stub)

	id, view, _ := m.GetOrCreate("")
	if err := view.SubmitAsync(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	age(m, id, time.Hour)

	if n := m.CleanupOldSessions(time.Minute); n != 0 {
		t.Errorf("Expected busy session to survive, %d cleaned", n)
	}

	close(stub.gate)
	view.Wait()
	if n := m.CleanupOldSessions(time.Minute); n != 1 {
		t.Errorf("Expected settled session to be cleaned, got %d", n)
	}
}

func TestSessionManager_EvictsLeastRecentlyUsedAtCapacity(t *testing.T) {
	m, _ := newTestManager(2, &blockingSummarizer{})

	first, _, _ := m.GetOrCreate("")
	second, _, _ := m.GetOrCreate("")
	age(m, first, 10*time.Minute)
	age(m, second, time.Minute)

	third, _, _ := m.GetOrCreate("")

	if m.Len() != 2 {
		t.Fatalf("Expected capacity to hold at 2, got %d", m.Len())
	}
	if _, ok := m.Get(first); ok {
		t.Error("Expected least recently used session to be evicted")
	}
	for _, id := range []string{second, third} {
		if _, ok := m.Get(id); !ok {
			t.Errorf("Expected session %s to be kept", id)
		}
	}
}

func TestSessionManager_RunCleanupStopsOnCancel(t *testing.T) {
	m, _ := newTestManager(0, &blockingSummarizer{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		m.RunCleanup(ctx, time.Millisecond, time.Hour)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunCleanup did not return after cancel")
	}
}

func TestSessionManager_Close(t *testing.T) {
	m, _ := newTestManager(0, &blockingSummarizer{})
	m.GetOrCreate("")
	m.GetOrCreate("")

	m.Close()
	if m.Len() != 0 {
		t.Errorf("Expected no sessions after close, got %d", m.Len())
	}
}
