package uploader

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tldr-app/uploader/internal/models"
)

// stubSummarizer answers from a queue of results; when gate is set each call
// blocks until a value is received from it.
type stubSummarizer struct {
	mu      sync.Mutex
	results []stubResult
	calls   []*models.SelectedFile
	gate    chan struct{}
}

type stubResult struct {
	text string
	err  error
}

func (s *stubSummarizer) Summarize(ctx context.Context, file *models.SelectedFile) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, file)
	var r stubResult
	if len(s.results) > 0 {
		r = s.results[0]
		s.results = s.results[1:]
	}
	gate := s.gate
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return r.text, r.err
}

func (s *stubSummarizer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func pdf(id, name string) *models.SelectedFile {
	return &models.SelectedFile{ID: id, Name: name, ContentType: "application/pdf", Size: 3}
}

func TestView_InitialState(t *testing.T) {
	v := NewView("session-1", Options{Summarizer: &stubSummarizer{}})
	s := v.Snapshot()

	assert.Equal(t, models.PhaseIdle, s.Phase)
	assert.False(t, s.ShowFileName())
	assert.False(t, s.ShowResult())
	assert.False(t, s.Loading())
}

func TestView_SelectOnlyChangesFile(t *testing.T) {
	stub := &stubSummarizer{results: []stubResult{{text: "old summary"}}}
	v := NewView("s", Options{Summarizer: stub})
	require.NoError(t, v.Submit(context.Background()))

	require.NoError(t, v.Select(pdf("f1", "report.pdf")))
	s := v.Snapshot()

	assert.Equal(t, models.PhaseSelecting, s.Phase)
	require.True(t, s.ShowFileName())
	assert.Equal(t, "report.pdf", s.File.Name)
	assert.Equal(t, "old summary", s.Summary)
	assert.False(t, s.Loading())
	assert.Equal(t, 1, stub.callCount())
}

func TestView_SubmitSuccess(t *testing.T) {
	stub := &stubSummarizer{results: []stubResult{{text: "Summary text"}}, gate: make(chan struct{})}
	v := NewView("s", Options{Summarizer: stub})
	require.NoError(t, v.Select(pdf("f1", "a.pdf")))

	require.NoError(t, v.SubmitAsync(context.Background()))
	assert.True(t, v.Snapshot().Loading(), "loading indicator must show immediately")
	assert.True(t, v.Busy())

	close(stub.gate)
	v.Wait()

	s := v.Snapshot()
	assert.False(t, s.Loading())
	assert.Equal(t, models.PhaseSucceeded, s.Phase)
	assert.True(t, s.ShowResult())
	assert.Equal(t, "Summary text", s.Summary)
	assert.Equal(t, "a.pdf", stub.calls[0].Name)
}

func TestView_SubmitFailureClearsLoading(t *testing.T) {
	transport := errors.New("connection refused")
	stub := &stubSummarizer{results: []stubResult{{err: transport}}}
	v := NewView("s", Options{Summarizer: stub})
	require.NoError(t, v.Select(pdf("f1", "a.pdf")))

	err := v.Submit(context.Background())
	require.ErrorIs(t, err, transport)

	s := v.Snapshot()
	assert.Equal(t, models.PhaseFailed, s.Phase)
	assert.True(t, s.Failed())
	assert.False(t, s.Loading())
	assert.False(t, s.ShowResult())
	assert.Contains(t, s.Error, "connection refused")
}

func TestView_FailureKeepsPreviousSummary(t *testing.T) {
	stub := &stubSummarizer{results: []stubResult{{text: "first"}, {err: errors.New("boom")}}}
	v := NewView("s", Options{Summarizer: stub})

	require.NoError(t, v.Submit(context.Background()))
	require.Error(t, v.Submit(context.Background()))

	s := v.Snapshot()
	assert.Equal(t, models.PhaseFailed, s.Phase)
	assert.Equal(t, "first", s.Summary)
}

func TestView_SubmitWithoutFile(t *testing.T) {
	stub := &stubSummarizer{results: []stubResult{{text: "empty"}}}
	v := NewView("s", Options{Summarizer: stub})

	require.NoError(t, v.Submit(context.Background()))

	require.Equal(t, 1, stub.callCount())
	assert.Nil(t, stub.calls[0])
	assert.Equal(t, "empty", v.Snapshot().Summary)
}

func TestView_SecondSubmitReplacesSummary(t *testing.T) {
	stub := &stubSummarizer{results: []stubResult{{text: "first summary"}, {text: "second"}}}
	v := NewView("s", Options{Summarizer: stub})

	require.NoError(t, v.Select(pdf("f1", "one.pdf")))
	require.NoError(t, v.Submit(context.Background()))
	require.NoError(t, v.Select(pdf("f2", "two.pdf")))
	require.NoError(t, v.Submit(context.Background()))

	s := v.Snapshot()
	assert.Equal(t, "second", s.Summary)
	assert.Equal(t, "two.pdf", s.File.Name)
}

func TestView_StaleSummaryVisibleWhileLoading(t *testing.T) {
	stub := &stubSummarizer{results: []stubResult{{text: "first"}, {text: "second"}}}
	v := NewView("s", Options{Summarizer: stub})
	require.NoError(t, v.Submit(context.Background()))

	stub.gate = make(chan struct{})
	require.NoError(t, v.SubmitAsync(context.Background()))

	s := v.Snapshot()
	assert.True(t, s.Loading())
	assert.True(t, s.ShowResult())
	assert.Equal(t, "first", s.Summary)

	close(stub.gate)
	v.Wait()
	assert.Equal(t, "second", v.Snapshot().Summary)
}

func TestView_RejectsConcurrentSubmit(t *testing.T) {
	stub := &stubSummarizer{results: []stubResult{{text: "ok"}}, gate: make(chan struct{})}
	v := NewView("s", Options{Summarizer: stub})

	require.NoError(t, v.SubmitAsync(context.Background()))
	err := v.SubmitAsync(context.Background())
	assert.ErrorIs(t, err, ErrSubmitInFlight)
	assert.ErrorIs(t, v.Submit(context.Background()), ErrSubmitInFlight)

	close(stub.gate)
	v.Wait()
	assert.Equal(t, 1, stub.callCount())
	assert.False(t, v.Busy())
}

func TestView_Timeout(t *testing.T) {
	stub := &stubSummarizer{gate: make(chan struct{})}
	v := NewView("s", Options{Summarizer: stub, Timeout: 10 * time.Millisecond})

	err := v.Submit(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, models.PhaseFailed, v.Snapshot().Phase)
}

func TestView_SelectDuringSubmit(t *testing.T) {
	var released []string
	var mu sync.Mutex
	release := func(f *models.SelectedFile) {
		mu.Lock()
		defer mu.Unlock()
		released = append(released, f.ID)
	}

	stub := &stubSummarizer{results: []stubResult{{text: "done"}}, gate: make(chan struct{})}
	v := NewView("s", Options{Summarizer: stub, Release: release})
	require.NoError(t, v.Select(pdf("f1", "one.pdf")))
	require.NoError(t, v.SubmitAsync(context.Background()))

	require.NoError(t, v.Select(pdf("f2", "two.pdf")))
	s := v.Snapshot()
	assert.True(t, s.Loading(), "selecting does not interrupt the submit")
	assert.Equal(t, "two.pdf", s.File.Name)

	mu.Lock()
	assert.Empty(t, released, "in-flight file must not be released yet")
	mu.Unlock()

	close(stub.gate)
	v.Wait()

	mu.Lock()
	assert.Equal(t, []string{"f1"}, released)
	mu.Unlock()
	assert.Equal(t, "one.pdf", stub.calls[0].Name)
}

func TestView_ReplacingFileReleasesPrevious(t *testing.T) {
	var released []string
	v := NewView("s", Options{
		Summarizer: &stubSummarizer{},
		Release:    func(f *models.SelectedFile) { released = append(released, f.ID) },
	})

	require.NoError(t, v.Select(pdf("f1", "one.pdf")))
	require.NoError(t, v.Select(pdf("f2", "two.pdf")))
	assert.Equal(t, []string{"f1"}, released)

	v.Close()
	assert.Equal(t, []string{"f1", "f2"}, released)
	assert.ErrorIs(t, v.Select(pdf("f3", "three.pdf")), ErrClosed)
	assert.ErrorIs(t, v.Submit(context.Background()), ErrClosed)
}

func TestView_Subscribe(t *testing.T) {
	stub := &stubSummarizer{results: []stubResult{{text: "pushed"}}, gate: make(chan struct{})}
	v := NewView("s", Options{Summarizer: stub})

	updates, cancel := v.Subscribe()
	defer cancel()

	require.NoError(t, v.SubmitAsync(context.Background()))
	s := <-updates
	assert.Equal(t, models.PhaseSubmitting, s.Phase)

	close(stub.gate)
	v.Wait()

	s = <-updates
	assert.Equal(t, models.PhaseSucceeded, s.Phase)
	assert.Equal(t, "pushed", s.Summary)
}

func TestView_SlowSubscriberSeesLatest(t *testing.T) {
	v := NewView("s", Options{Summarizer: &stubSummarizer{}})
	updates, cancel := v.Subscribe()
	defer cancel()

	require.NoError(t, v.Select(pdf("f1", "one.pdf")))
	require.NoError(t, v.Select(pdf("f2", "two.pdf")))
	require.NoError(t, v.Select(pdf("f3", "three.pdf")))

	s := <-updates
	assert.Equal(t, "three.pdf", s.File.Name)
}

func TestView_CloseEndsSubscriptions(t *testing.T) {
	v := NewView("s", Options{Summarizer: &stubSummarizer{}})
	updates, cancel := v.Subscribe()

	v.Close()
	_, ok := <-updates
	assert.False(t, ok)
	cancel()

	late, _ := v.Subscribe()
	_, ok = <-late
	assert.False(t, ok)
}

func TestView_SnapshotIsCopy(t *testing.T) {
	v := NewView("s", Options{Summarizer: &stubSummarizer{}})
	require.NoError(t, v.Select(pdf("f1", "one.pdf")))

	s := v.Snapshot()
	s.File.Name = "mutated.pdf"
	assert.Equal(t, "one.pdf", v.Snapshot().File.Name)
}
