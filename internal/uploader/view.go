// Package uploader holds the per-session view state of the PDF uploader:
// which file is selected, whether a submit is in flight, and the last
// summary received.
package uploader

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tldr-app/uploader/internal/models"
	"go.uber.org/zap"
)

// ErrSubmitInFlight is returned when a submit is started while another one
// for the same view has not finished.
var ErrSubmitInFlight = errors.New("a submit is already in flight")

// ErrClosed is returned by operations on a closed view.
var ErrClosed = errors.New("view is closed")

// Summarizer turns a selected file into summary text.
type Summarizer interface {
	Summarize(ctx context.Context, file *models.SelectedFile) (string, error)
}

// Options configures a View.
type Options struct {
	Summarizer Summarizer
	Logger     *zap.Logger

	// Timeout bounds a single submit. Zero means no limit.
	Timeout time.Duration

	// Release is called once a stored file is no longer referenced by the
	// view, either because it was replaced or because the view was closed.
	Release func(file *models.SelectedFile)
}

// View is the uploader state of one browser session.
type View struct {
	mu       sync.Mutex
	state    models.ViewState
	seq      uint64
	inFlight *models.SelectedFile
	closed   bool

	subs    map[int]chan models.ViewState
	nextSub int

	summarizer Summarizer
	timeout    time.Duration
	release    func(*models.SelectedFile)
	logger     *zap.Logger
	wg         sync.WaitGroup
}

// NewView creates an idle view.
func NewView(sessionID string, opts Options) *View {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &View{
		state:      models.NewViewState(sessionID),
		subs:       make(map[int]chan models.ViewState),
		summarizer: opts.Summarizer,
		timeout:    opts.Timeout,
		release:    opts.Release,
		logger:     logger.With(zap.String("session", shortID(sessionID))),
	}
}

// Snapshot returns a copy of the current state.
func (v *View) Snapshot() models.ViewState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshotLocked()
}

// Busy reports whether a submit is in flight.
func (v *View) Busy() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.inFlight != nil || v.state.Phase == models.PhaseSubmitting
}

// Select makes file the selected file. The summary is left untouched.
// Selecting during a submit changes the file for the next submit only.
func (v *View) Select(file *models.SelectedFile) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}

	prev := v.state.File
	v.state.File = file
	if v.state.Phase != models.PhaseSubmitting {
		v.state.Phase = models.PhaseSelecting
		v.state.Error = ""
	}
	v.touchLocked()
	v.publishLocked()

	var drop *models.SelectedFile
	if prev != nil && prev != v.inFlight && prev != file {
		drop = prev
	}
	v.mu.Unlock()

	if file != nil {
		v.logger.Info("file selected", zap.String("file", file.Name), zap.Int64("size", file.Size))
	}
	v.releaseFile(drop)
	return nil
}

// Submit sends the selected file and blocks until the view has settled in
// succeeded or failed. The returned error is the summarizer's.
func (v *View) Submit(ctx context.Context) error {
	file, seq, err := v.begin()
	if err != nil {
		return err
	}
	return v.run(ctx, file, seq)
}

// SubmitAsync starts a submit in the background and returns once the view
// is in the submitting phase.
func (v *View) SubmitAsync(ctx context.Context) error {
	file, seq, err := v.begin()
	if err != nil {
		return err
	}
	go func() {
		_ = v.run(ctx, file, seq)
	}()
	return nil
}

// Wait blocks until in-flight submits have finished.
func (v *View) Wait() {
	v.wg.Wait()
}

// Subscribe returns a channel that receives the state after every change.
// A slow receiver only sees the most recent state. cancel must be called
// to release the subscription.
func (v *View) Subscribe() (<-chan models.ViewState, func()) {
	v.mu.Lock()
	defer v.mu.Unlock()

	ch := make(chan models.ViewState, 1)
	if v.closed {
		close(ch)
		return ch, func() {}
	}

	id := v.nextSub
	v.nextSub++
	v.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			v.mu.Lock()
			defer v.mu.Unlock()
			if c, ok := v.subs[id]; ok {
				delete(v.subs, id)
				close(c)
			}
		})
	}
	return ch, cancel
}

// Close ends all subscriptions and releases the selected file once no
// submit is using it.
func (v *View) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	for id, ch := range v.subs {
		delete(v.subs, id)
		close(ch)
	}
	file := v.state.File
	v.mu.Unlock()

	v.wg.Wait()
	v.releaseFile(file)
}

func (v *View) begin() (*models.SelectedFile, uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil, 0, ErrClosed
	}
	if v.inFlight != nil || v.state.Phase == models.PhaseSubmitting {
		return nil, 0, ErrSubmitInFlight
	}

	v.seq++
	v.wg.Add(1)
	file := v.state.File
	v.inFlight = file
	if v.inFlight == nil {
		// Sentinel so Busy and the guard hold for file-less submits.
		v.inFlight = &models.SelectedFile{}
	}
	v.state.Phase = models.PhaseSubmitting
	v.state.Error = ""
	v.touchLocked()
	v.publishLocked()

	name := ""
	if file != nil {
		name = file.Name
	}
	v.logger.Info("submit started", zap.String("file", name), zap.Uint64("seq", v.seq))
	return file, v.seq, nil
}

func (v *View) run(ctx context.Context, file *models.SelectedFile, seq uint64) error {
	defer v.wg.Done()

	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := v.summarizer.Summarize(ctx, file)
	v.finish(file, seq, text, err, time.Since(start))
	return err
}

func (v *View) finish(file *models.SelectedFile, seq uint64, text string, err error, elapsed time.Duration) {
	v.mu.Lock()
	if seq != v.seq {
		v.mu.Unlock()
		v.logger.Warn("discarding result of superseded submit", zap.Uint64("seq", seq))
		return
	}

	v.inFlight = nil
	if err != nil {
		v.state.Phase = models.PhaseFailed
		v.state.Error = err.Error()
	} else {
		v.state.Phase = models.PhaseSucceeded
		v.state.Summary = text
		v.state.Error = ""
	}
	v.touchLocked()
	v.publishLocked()

	// The file was replaced while the request was out.
	var drop *models.SelectedFile
	if file != nil && file != v.state.File {
		drop = file
	}
	v.mu.Unlock()

	if err != nil {
		v.logger.Error("submit failed", zap.Uint64("seq", seq), zap.Duration("elapsed", elapsed), zap.Error(err))
	} else {
		v.logger.Info("submit succeeded", zap.Uint64("seq", seq), zap.Duration("elapsed", elapsed), zap.Int("summary_bytes", len(text)))
	}
	v.releaseFile(drop)
}

func (v *View) releaseFile(file *models.SelectedFile) {
	if file == nil || v.release == nil {
		return
	}
	v.release(file)
}

func (v *View) touchLocked() {
	v.state.UpdatedAt = time.Now()
}

func (v *View) snapshotLocked() models.ViewState {
	s := v.state
	if s.File != nil {
		f := *s.File
		s.File = &f
	}
	return s
}

// publishLocked delivers the current state to every subscriber without
// blocking; an unread older state is replaced.
func (v *View) publishLocked() {
	s := v.snapshotLocked()
	for _, ch := range v.subs {
		select {
		case ch <- s:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
