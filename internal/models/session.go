package models

import "time"

// Phase is the stage an uploader view is in.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseSelecting  Phase = "selecting"
	PhaseSubmitting Phase = "submitting"
	PhaseSucceeded  Phase = "succeeded"
	PhaseFailed     Phase = "failed"
)

// ViewState is a snapshot of one uploader view.
// Summary holds the text of the last successful submit and survives later
// phases, so a stale summary stays visible while a new submit is loading.
type ViewState struct {
	SessionID string        `json:"sessionId" msgpack:"sessionId"`
	Phase     Phase         `json:"phase" msgpack:"phase"`
	File      *SelectedFile `json:"file,omitempty" msgpack:"file,omitempty"`
	Summary   string        `json:"summary,omitempty" msgpack:"summary,omitempty"`
	Error     string        `json:"error,omitempty" msgpack:"error,omitempty"`
	UpdatedAt time.Time     `json:"updatedAt" msgpack:"updatedAt"`
}

// NewViewState creates a ViewState in idle phase.
func NewViewState(sessionID string) ViewState {
	return ViewState{
		SessionID: sessionID,
		Phase:     PhaseIdle,
		UpdatedAt: time.Now(),
	}
}

// Loading reports whether the loading indicator is shown.
func (s ViewState) Loading() bool {
	return s.Phase == PhaseSubmitting
}

// ShowFileName reports whether the selected file name is shown.
func (s ViewState) ShowFileName() bool {
	return s.File != nil
}

// ShowResult reports whether the summary block is shown.
func (s ViewState) ShowResult() bool {
	return s.Summary != ""
}

// Failed reports whether the last submit failed.
func (s ViewState) Failed() bool {
	return s.Phase == PhaseFailed
}
