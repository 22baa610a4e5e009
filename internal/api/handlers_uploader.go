// handlers_uploader.go - File selection, submission and state snapshot
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/tldr-app/uploader/internal/models"
	"github.com/tldr-app/uploader/internal/storage"
	"github.com/tldr-app/uploader/internal/uploader"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// FormField is the multipart field the page posts the PDF under.
const FormField = "pdf"

// MIMEApplicationMsgpack is the content type of the binary state form.
const MIMEApplicationMsgpack = "application/msgpack"

// UploaderHandlerImpl implements the UploaderHandler interface
type UploaderHandlerImpl struct {
	store    storage.Store
	sessions *sessionResolver
	baseCtx  context.Context
	logger   *zap.Logger
}

// NewUploaderHandler creates a new uploader handler
func NewUploaderHandler(store storage.Store, sessions *sessionResolver, baseCtx context.Context, logger *zap.Logger) UploaderHandler {
	return &UploaderHandlerImpl{
		store:    store,
		sessions: sessions,
		baseCtx:  baseCtx,
		logger:   logger,
	}
}

// HandleSelect stores the posted PDF and makes it the session's selected file
func (h *UploaderHandlerImpl) HandleSelect(c echo.Context) error {
	_, view := h.sessions.resolve(c)

	fh, err := c.FormFile(FormField)
	if err != nil {
		return NewValidationError(FormField)
	}

	src, err := fh.Open()
	if err != nil {
		return NewBadRequestError("failed to read uploaded file", err)
	}
	defer src.Close()

	file, err := h.store.Save(fh.Filename, fh.Header.Get(echo.HeaderContentType), src)
	if err != nil {
		h.logger.Error("failed to store selected file", zap.String("file", fh.Filename), zap.Error(err))
		return NewInternalError("failed to store file", err)
	}

	if err := view.Select(file); err != nil {
		if delErr := h.store.Delete(file.ID); delErr != nil {
			h.logger.Warn("failed to remove orphaned file", zap.String("id", file.ID), zap.Error(delErr))
		}
		return FromDomainError(err)
	}

	return h.respond(c, http.StatusOK, view.Snapshot())
}

// HandleSubmit starts summarizing the selected file. With ?wait=true it
// blocks until the view has settled and returns the final state.
func (h *UploaderHandlerImpl) HandleSubmit(c echo.Context) error {
	_, view := h.sessions.resolve(c)

	if c.QueryParam("wait") == "true" {
		// The summarizer has its own, longer timeout than the server's
		// write timeout; lift the deadline so the answer can still be sent.
		rc := http.NewResponseController(c.Response().Writer)
		if err := rc.SetWriteDeadline(time.Time{}); err != nil {
			h.logger.Warn("failed to clear write deadline", zap.Error(err))
		}

		err := view.Submit(c.Request().Context())
		if errors.Is(err, uploader.ErrSubmitInFlight) || errors.Is(err, uploader.ErrClosed) {
			return FromDomainError(err)
		}
		state := view.Snapshot()
		if state.Failed() {
			return h.respond(c, http.StatusBadGateway, state)
		}
		return h.respond(c, http.StatusOK, state)
	}

	if err := view.SubmitAsync(h.baseCtx); err != nil {
		return FromDomainError(err)
	}
	return h.respond(c, http.StatusAccepted, view.Snapshot())
}

// HandleState returns the session's view state as JSON or MessagePack
func (h *UploaderHandlerImpl) HandleState(c echo.Context) error {
	_, view := h.sessions.resolve(c)
	state := view.Snapshot()

	if strings.Contains(c.Request().Header.Get(echo.HeaderAccept), MIMEApplicationMsgpack) {
		data, err := msgpack.Marshal(&state)
		if err != nil {
			return NewInternalError("failed to encode msgpack", err)
		}
		return c.Blob(http.StatusOK, MIMEApplicationMsgpack, data)
	}
	return c.JSON(http.StatusOK, state)
}

// respond answers scripted clients with the state and plain form posts
// with a redirect back to the page.
func (h *UploaderHandlerImpl) respond(c echo.Context, status int, state models.ViewState) error {
	if wantsJSON(c) {
		return c.JSON(status, state)
	}
	return c.Redirect(http.StatusSeeOther, "/")
}

func wantsJSON(c echo.Context) bool {
	return strings.Contains(c.Request().Header.Get(echo.HeaderAccept), echo.MIMEApplicationJSON)
}
