// errors.go - Structured error handling for API responses
package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/tldr-app/uploader/internal/storage"
	"github.com/tldr-app/uploader/internal/uploader"
)

// APIError represents a structured API error response
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadRequest,
		Code:    "BAD_REQUEST",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewValidationError creates a 400 validation error for a specific field
func NewValidationError(field string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "VALIDATION_ERROR",
		Message: fmt.Sprintf("validation failed for field: %s", field),
	}
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(resource string, id string) *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// NewConflictError creates a 409 Conflict error
func NewConflictError(message string) *APIError {
	return &APIError{
		Status:  http.StatusConflict,
		Code:    "CONFLICT",
		Message: message,
	}
}

// NewInternalError creates a 500 Internal Server Error
func NewInternalError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusInternalServerError,
		Code:    "INTERNAL_ERROR",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewServiceUnavailableError creates a 503 Service Unavailable error
func NewServiceUnavailableError(message string) *APIError {
	return &APIError{
		Status:  http.StatusServiceUnavailable,
		Code:    "SERVICE_UNAVAILABLE",
		Message: message,
	}
}

// FromDomainError maps errors returned by the uploader and storage layers.
func FromDomainError(err error) *APIError {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, uploader.ErrSubmitInFlight):
		return NewConflictError("a summary is already being generated for this session")
	case errors.Is(err, uploader.ErrClosed):
		return NewConflictError("session expired, reload the page")
	case errors.Is(err, storage.ErrNotFound):
		return NewNotFoundError("file", strings.TrimPrefix(err.Error(), storage.ErrNotFound.Error()+": "))
	default:
		return NewInternalError("unexpected error", err)
	}
}

// NewErrorHandler returns the Echo error handler. Unless showDetails is set,
// the cause of server-side errors is not sent to the client.
// Usage: e.HTTPErrorHandler = api.NewErrorHandler(cfg.ShowErrorDetails)
func NewErrorHandler(showDetails bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var apiErr *APIError
		var httpErr *echo.HTTPError

		switch {
		case errors.As(err, &apiErr):
		case errors.As(err, &httpErr):
			if httpErr.Code == http.StatusNotFound {
				apiErr = NewNotFoundError("route", c.Request().URL.Path)
				break
			}
			apiErr = &APIError{
				Status:  httpErr.Code,
				Code:    "HTTP_ERROR",
				Message: fmt.Sprintf("%v", httpErr.Message),
			}
		case errors.Is(err, uploader.ErrSubmitInFlight), errors.Is(err, uploader.ErrClosed), errors.Is(err, storage.ErrNotFound):
			apiErr = FromDomainError(err)
		default:
			apiErr = &APIError{
				Status:  http.StatusInternalServerError,
				Code:    "UNKNOWN_ERROR",
				Message: "An unexpected error occurred",
				Details: err.Error(),
			}
		}

		resp := *apiErr
		if !showDetails && resp.Status >= http.StatusInternalServerError {
			resp.Details = ""
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(resp.Status)
			return
		}
		_ = c.JSON(resp.Status, &resp)
	}
}
