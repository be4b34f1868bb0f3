// handlers_reader.go - Dataset reader session handlers
package api

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"net/http"
	"strconv"
	"strings"

	"github.com/HarborC/kalibrlib/internal/dataset"
	"github.com/HarborC/kalibrlib/internal/export"
	"github.com/HarborC/kalibrlib/internal/models"
	"github.com/HarborC/kalibrlib/internal/session"
	"github.com/HarborC/kalibrlib/internal/storage"
	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"
)

const defaultPageSize = 1000

// ReaderHandlerImpl implements the ReaderHandler interface
type ReaderHandlerImpl struct {
	store       storage.Store
	sessions    SessionManager
	exports     ExportCache
	maxPageSize int
}

// NewReaderHandler creates a new reader handler instance. exports may be
// nil, in which case IMU export is unavailable.
func NewReaderHandler(store storage.Store, sessions SessionManager, exports ExportCache, maxPageSize int) ReaderHandler {
	if maxPageSize <= 0 {
		maxPageSize = defaultPageSize
	}
	return &ReaderHandlerImpl{
		store:       store,
		sessions:    sessions,
		exports:     exports,
		maxPageSize: maxPageSize,
	}
}

// HandleOpenReader opens an IMU or image reader on a stored container
func (h *ReaderHandlerImpl) HandleOpenReader(c echo.Context) error {
	var req openReaderRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if err := req.validate(); err != nil {
		return err
	}

	path, err := h.store.GetFilePath(req.FileID)
	if err != nil {
		return FromError("failed to locate file", err)
	}

	sess, err := h.sessions.Open(req.FileID, path, session.OpenRequest{
		Kind:      req.Kind,
		Channel:   req.Channel,
		Window:    req.Window,
		Frequency: req.Frequency,
	})
	if err != nil {
		return FromError("failed to open reader", err)
	}

	return c.JSON(http.StatusCreated, sess)
}

// HandleListReaders returns all open reader sessions
func (h *ReaderHandlerImpl) HandleListReaders(c echo.Context) error {
	return c.JSON(http.StatusOK, h.sessions.List())
}

// HandleGetReader returns one reader session
func (h *ReaderHandlerImpl) HandleGetReader(c echo.Context) error {
	id := c.Param("sessionId")
	sess, ok := h.sessions.GetSession(id)
	if !ok {
		return NewNotFoundError("session", id)
	}
	return c.JSON(http.StatusOK, sess)
}

// HandleCloseReader closes a reader session
func (h *ReaderHandlerImpl) HandleCloseReader(c echo.Context) error {
	if err := h.sessions.CloseSession(c.Param("sessionId")); err != nil {
		return FromError("failed to close reader", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleKeepAlive refreshes a session's idle timer
func (h *ReaderHandlerImpl) HandleKeepAlive(c echo.Context) error {
	id := c.Param("sessionId")
	if !h.sessions.TouchSession(id) {
		return NewNotFoundError("session", id)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// HandleImuRecords returns a page of decoded IMU records as JSON
func (h *ReaderHandlerImpl) HandleImuRecords(c echo.Context) error {
	page, err := h.imuPage(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

// HandleImuRecordsMsgpack returns a page of decoded IMU records in
// MessagePack format
func (h *ReaderHandlerImpl) HandleImuRecordsMsgpack(c echo.Context) error {
	page, err := h.imuPage(c)
	if err != nil {
		return err
	}
	data, err := msgpack.Marshal(page)
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}

func (h *ReaderHandlerImpl) imuPage(c echo.Context) (*imuPageResponse, error) {
	offset, err := queryInt(c, "offset", 0)
	if err != nil || offset < 0 {
		return nil, NewValidationError("offset")
	}
	limit, err := queryInt(c, "limit", defaultPageSize)
	if err != nil || limit <= 0 {
		return nil, NewValidationError("limit")
	}
	limit = min(limit, h.maxPageSize)

	records, total, err := h.sessions.ImuRecords(c.Param("sessionId"), offset, limit)
	if err != nil {
		return nil, FromError("failed to read records", err)
	}
	return &imuPageResponse{
		Records: records,
		Total:   total,
		Offset:  offset,
		Limit:   limit,
	}, nil
}

// HandleImageFrame returns one decoded frame as an 8-bit gray PNG
func (h *ReaderHandlerImpl) HandleImageFrame(c echo.Context) error {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return NewValidationError("index")
	}

	rec, err := h.sessions.ImageFrame(c.Param("sessionId"), index)
	if err != nil {
		return FromError("failed to decode frame", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, rec.Pixels); err != nil {
		return NewInternalError("failed to encode frame", err)
	}
	c.Response().Header().Set("X-Frame-Stamp", strconv.FormatInt(rec.Stamp.Nanos(), 10))
	return c.Blob(http.StatusOK, "image/png", buf.Bytes())
}

// HandleExportImu writes an IMU session into a DuckDB table. Exports are
// cached per container, channel and filter settings.
func (h *ReaderHandlerImpl) HandleExportImu(c echo.Context) error {
	if h.exports == nil {
		return NewServiceUnavailableError("IMU export is not configured")
	}

	id := c.Param("sessionId")
	sess, ok := h.sessions.GetSession(id)
	if !ok {
		return NewNotFoundError("session", id)
	}
	if sess.Kind != models.ReaderKindImu {
		return FromError("", session.ErrWrongReaderKind)
	}

	ctx := c.Request().Context()
	variant := exportVariant(sess)
	cached := h.exports.Has(sess.FileID, variant)
	if !cached {
		if err := h.runExport(ctx, id, sess.FileID, variant); err != nil {
			return err
		}
	}

	db, err := h.exports.Open(sess.FileID, variant)
	if err != nil || db == nil {
		return NewInternalError("failed to open export", err)
	}
	defer db.Close()

	resp := exportResponse{Path: db.Path(), Cached: cached}
	if resp.Count, err = db.Count(ctx); err != nil {
		return NewInternalError("failed to count export", err)
	}
	var found bool
	if resp.FirstStamp, resp.LastStamp, found, err = db.TimeRange(ctx); err != nil {
		return NewInternalError("failed to query export", err)
	}
	if !found {
		resp.FirstStamp, resp.LastStamp = 0, 0
	}

	return c.JSON(http.StatusOK, resp)
}

func (h *ReaderHandlerImpl) runExport(ctx context.Context, sessionID, fileID, variant string) error {
	db, err := h.exports.Create(fileID, variant)
	if err != nil {
		return NewInternalError("failed to create export", err)
	}

	err = h.sessions.ImuSequence(sessionID, func(seq *dataset.Sequence[models.ImuRecord]) error {
		return export.WriteAll(ctx, db, seq.All())
	})
	if cerr := db.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		h.exports.Discard(fileID, variant)
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return apiErr
		}
		return FromError("failed to export records", err)
	}

	if err := h.exports.MarkComplete(fileID, variant); err != nil {
		h.exports.Discard(fileID, variant)
		return NewInternalError("failed to publish export", err)
	}
	return nil
}

// exportVariant names an export by channel plus any filter settings.
func exportVariant(s *models.ReaderSession) string {
	var b strings.Builder
	b.WriteString(s.Channel)
	if s.Window != nil {
		b.WriteString("@w")
		b.WriteString(strconv.FormatFloat(s.Window.Start, 'g', -1, 64))
		b.WriteString("-")
		b.WriteString(strconv.FormatFloat(s.Window.End, 'g', -1, 64))
	}
	if s.Frequency > 0 {
		b.WriteString("@f")
		b.WriteString(strconv.FormatFloat(s.Frequency, 'g', -1, 64))
	}
	return b.String()
}

func queryInt(c echo.Context, name string, def int) (int, error) {
	v := c.QueryParam(name)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

// Request/Response types

type openReaderRequest struct {
	FileID    string             `json:"fileId"`
	Kind      models.ReaderKind  `json:"kind"`
	Channel   string             `json:"channel"`
	Window    *models.TimeWindow `json:"window,omitempty"`
	Frequency float64            `json:"frequency,omitempty"`
}

func (r *openReaderRequest) validate() error {
	if r.FileID == "" {
		return NewValidationError("fileId")
	}
	if r.Channel == "" {
		return NewValidationError("channel")
	}
	switch r.Kind {
	case models.ReaderKindImu, models.ReaderKindImage:
	case "":
		r.Kind = models.ReaderKindImu
	default:
		return NewValidationError("kind")
	}
	return nil
}

type imuPageResponse struct {
	Records []models.ImuRecord `json:"records" msgpack:"records"`
	Total   int                `json:"total" msgpack:"total"`
	Offset  int                `json:"offset" msgpack:"offset"`
	Limit   int                `json:"limit" msgpack:"limit"`
}

type exportResponse struct {
	Path       string `json:"path"`
	Count      int    `json:"count"`
	FirstStamp int64  `json:"firstStamp"`
	LastStamp  int64  `json:"lastStamp"`
	Cached     bool   `json:"cached"`
}
