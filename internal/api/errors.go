// errors.go - Structured error handling for API responses
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/HarborC/kalibrlib/internal/dataset"
	"github.com/HarborC/kalibrlib/internal/jobs"
	"github.com/HarborC/kalibrlib/internal/session"
	"github.com/HarborC/kalibrlib/internal/storage"
	"github.com/labstack/echo/v4"
)

// ExposeErrorDetails controls whether unexpected errors carry their
// message to the client.
var ExposeErrorDetails = true

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

// NewUnprocessableError creates a 422 error for input that is well formed
// but cannot be decoded.
func NewUnprocessableError(code string, cause error) *APIError {
	return &APIError{
		Status:  http.StatusUnprocessableEntity,
		Code:    code,
		Message: cause.Error(),
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

// FromError maps storage, session and dataset errors onto API errors.
// message describes the failed operation for the 500 fallback.
func FromError(message string, err error) *APIError {
	var (
		apiErr   *APIError
		notFound *dataset.ChannelNotFoundError
		window   *dataset.InvalidWindowError
		freq     *dataset.InvalidFrequencyError
		msgType  *dataset.UnsupportedMessageTypeError
		encoding *dataset.UnsupportedEncodingError
		bad      *dataset.MalformedImageError
		badMsg   *dataset.MalformedMessageError
	)
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.As(err, &notFound):
		return &APIError{Status: http.StatusNotFound, Code: "CHANNEL_NOT_FOUND", Message: notFound.Error()}
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, jobs.ErrJobNotFound), errors.Is(err, dataset.ErrIndexOutOfRange):
		return &APIError{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: err.Error()}
	case errors.As(err, &window), errors.As(err, &freq), errors.Is(err, session.ErrInvalidReaderArg):
		return &APIError{Status: http.StatusBadRequest, Code: "VALIDATION_ERROR", Message: err.Error()}
	case errors.As(err, &msgType):
		return NewUnprocessableError("UNSUPPORTED_MESSAGE_TYPE", err)
	case errors.As(err, &encoding):
		return NewUnprocessableError("UNSUPPORTED_ENCODING", err)
	case errors.As(err, &bad):
		return NewUnprocessableError("MALFORMED_IMAGE", err)
	case errors.As(err, &badMsg):
		return NewUnprocessableError("MALFORMED_MESSAGE", err)
	case errors.Is(err, storage.ErrNotContainer):
		return NewUnprocessableError("NOT_A_CONTAINER", err)
	case errors.Is(err, session.ErrWrongReaderKind):
		return NewUnprocessableError("WRONG_READER_KIND", err)
	case errors.Is(err, session.ErrTooManySessions):
		return NewServiceUnavailableError(err.Error())
	}
	return NewInternalError(message, err)
}

// ErrorHandler middleware for Echo
// Usage: e.HTTPErrorHandler = api.ErrorHandler
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var apiErr *APIError
	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &httpErr):
		apiErr = &APIError{
			Status:  httpErr.Code,
			Code:    "HTTP_ERROR",
			Message: fmt.Sprintf("%v", httpErr.Message),
		}
	default:
		apiErr = &APIError{
			Status:  http.StatusInternalServerError,
			Code:    "UNKNOWN_ERROR",
			Message: "An unexpected error occurred",
		}
		if ExposeErrorDetails {
			apiErr.Details = err.Error()
		}
	}

	if c.Request().Method == http.MethodHead {
		c.NoContent(apiErr.Status)
		return
	}
	c.JSON(apiErr.Status, apiErr)
}

// RespondWithError is a helper to respond with an APIError
func RespondWithError(c echo.Context, err *APIError) error {
	return c.JSON(err.Status, err)
}
