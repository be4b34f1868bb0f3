// handlers_convert.go - Conversion job handlers
package api

import (
	"context"
	"net/http"

	"github.com/HarborC/kalibrlib/internal/jobs"
	"github.com/labstack/echo/v4"
)

// ConvertHandlerImpl implements the ConvertHandler interface
type ConvertHandlerImpl struct {
	jobs JobRunner
	// base outlives the request so jobs keep running after the response.
	base context.Context
}

// NewConvertHandler creates a new convert handler. Jobs are cancelled when
// base is.
func NewConvertHandler(base context.Context, runner JobRunner) ConvertHandler {
	return &ConvertHandlerImpl{jobs: runner, base: base}
}

// HandleStartConvert starts converting a recording directory on the
// server's filesystem into a stored container
func (h *ConvertHandlerImpl) HandleStartConvert(c echo.Context) error {
	var req jobs.Request
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if req.RootDir == "" {
		return NewValidationError("rootDir")
	}
	if req.SkipLeading != nil && *req.SkipLeading < 0 {
		return NewValidationError("skipLeading")
	}

	job, err := h.jobs.StartJob(h.base, req)
	if err != nil {
		return NewBadRequestError("cannot start conversion", err)
	}

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"jobId":  job.ID,
		"status": job.Status,
	})
}

// HandleGetConvertJob returns the progress of a conversion job
func (h *ConvertHandlerImpl) HandleGetConvertJob(c echo.Context) error {
	id := c.Param("jobId")
	job, ok := h.jobs.GetJob(id)
	if !ok {
		return NewNotFoundError("job", id)
	}
	return c.JSON(http.StatusOK, job)
}

// HandleCancelConvertJob cancels a running conversion job
func (h *ConvertHandlerImpl) HandleCancelConvertJob(c echo.Context) error {
	if err := h.jobs.CancelJob(c.Param("jobId")); err != nil {
		return FromError("failed to cancel job", err)
	}
	return c.NoContent(http.StatusAccepted)
}
