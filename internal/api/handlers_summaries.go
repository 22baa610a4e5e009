// handlers_summaries.go - Cached summary listing
package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/tldr-app/uploader/internal/cache"
)

const defaultSummaryLimit = 20

// SummaryHandlerImpl implements the SummaryHandler interface
type SummaryHandlerImpl struct {
	history SummaryHistory
}

// NewSummaryHandler creates a new summary handler; history may be nil.
func NewSummaryHandler(history SummaryHistory) SummaryHandler {
	return &SummaryHandlerImpl{history: history}
}

// HandleRecentSummaries returns the most recently cached summaries
func (h *SummaryHandlerImpl) HandleRecentSummaries(c echo.Context) error {
	if h.history == nil {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"enabled":   false,
			"summaries": []cache.Entry{},
		})
	}

	limit := defaultSummaryLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return NewValidationError("limit")
		}
		limit = n
	}

	entries, err := h.history.Recent(c.Request().Context(), limit)
	if err != nil {
		return NewInternalError("failed to read summary cache", err)
	}
	if entries == nil {
		entries = []cache.Entry{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"enabled":   true,
		"summaries": entries,
	})
}
