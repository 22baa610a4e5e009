// handlers_page.go - Server-rendered uploader page
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/tldr-app/uploader/internal/web"
)

// PageHandlerImpl implements the PageHandler interface
type PageHandlerImpl struct {
	sessions *sessionResolver
	version  string
}

// NewPageHandler creates a new page handler
func NewPageHandler(sessions *sessionResolver, version string) PageHandler {
	return &PageHandlerImpl{sessions: sessions, version: version}
}

// HandleIndex renders the page for the caller's session
func (h *PageHandlerImpl) HandleIndex(c echo.Context) error {
	_, view := h.sessions.resolve(c)
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return c.Render(http.StatusOK, web.IndexTemplate, web.PageData{
		State:   view.Snapshot(),
		Version: h.version,
	})
}
