// handlers_health.go - Health check handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/tldr-app/uploader/internal/storage"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version  string
	sessions SessionManager
	store    storage.Store
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version string, sessions SessionManager, store storage.Store) HealthHandler {
	return &HealthHandlerImpl{
		version:  version,
		sessions: sessions,
		store:    store,
	}
}

// HandleHealth returns server health status
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	resp := map[string]interface{}{
		"status":  "ok",
		"version": h.version,
	}
	if h.sessions != nil {
		resp["sessions"] = h.sessions.Len()
	}
	if h.store != nil {
		files, err := h.store.List(0)
		if err != nil {
			return NewServiceUnavailableError("file storage unavailable")
		}
		resp["storedFiles"] = len(files)
	}
	return c.JSON(http.StatusOK, resp)
}
