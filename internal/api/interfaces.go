// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/tldr-app/uploader/internal/cache"
	"github.com/tldr-app/uploader/internal/uploader"
)

// PageHandler renders the uploader page
type PageHandler interface {
	HandleIndex(c echo.Context) error
}

// UploaderHandler handles file selection and submission
type UploaderHandler interface {
	HandleSelect(c echo.Context) error
	HandleSubmit(c echo.Context) error
	HandleState(c echo.Context) error
}

// StateStreamHandler pushes view state changes over a websocket
type StateStreamHandler interface {
	HandleStateStream(c echo.Context) error
}

// SummaryHandler lists cached summaries
type SummaryHandler interface {
	HandleRecentSummaries(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// SessionManager defines the interface for session management
// This allows mocking in tests
type SessionManager interface {
	GetOrCreate(id string) (string, *uploader.View, bool)
	TouchSession(id string) bool
	Len() int
}

// SummaryHistory is the read side of the summary cache.
type SummaryHistory interface {
	Recent(ctx context.Context, limit int) ([]cache.Entry, error)
}
