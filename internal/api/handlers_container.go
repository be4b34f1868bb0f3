// handlers_container.go - Stored container handlers
package api

import (
	"bytes"
	"encoding/base64"
	"net/http"
	"strconv"

	"github.com/HarborC/kalibrlib/internal/container"
	"github.com/HarborC/kalibrlib/internal/storage"
	"github.com/labstack/echo/v4"
)

const (
	defaultRecentFiles = 20
	maxRecentFiles     = 200
)

// ContainerHandlerImpl implements the ContainerHandler interface
type ContainerHandlerImpl struct {
	store    storage.Store
	sessions SessionManager
	exports  ExportCache
}

// NewContainerHandler creates a new container handler instance.
// sessions and exports may be nil.
func NewContainerHandler(store storage.Store, sessions SessionManager, exports ExportCache) ContainerHandler {
	return &ContainerHandlerImpl{
		store:    store,
		sessions: sessions,
		exports:  exports,
	}
}

// HandleUploadBinary accepts a container as multipart/form-data
func (h *ContainerHandlerImpl) HandleUploadBinary(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return NewBadRequestError("no file provided", err)
	}

	src, err := file.Open()
	if err != nil {
		return NewInternalError("failed to open uploaded file", err)
	}
	defer src.Close()

	info, err := h.store.Save(file.Filename, src)
	if err != nil {
		return FromError("failed to save file", err)
	}

	return c.JSON(http.StatusCreated, info)
}

// HandleUploadChunk accepts a single base64 chunk of a chunked upload
func (h *ContainerHandlerImpl) HandleUploadChunk(c echo.Context) error {
	var req uploadChunkRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if err := req.validate(); err != nil {
		return err
	}

	decoded, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		return NewBadRequestError("invalid base64 data", err)
	}

	if err := h.store.SaveChunk(req.UploadID, req.ChunkIndex, bytes.NewReader(decoded)); err != nil {
		return NewBadRequestError("failed to save chunk", err)
	}

	return c.NoContent(http.StatusAccepted)
}

// HandleCompleteUpload assembles the chunks into a stored container
func (h *ContainerHandlerImpl) HandleCompleteUpload(c echo.Context) error {
	var req completeUploadRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if err := req.validate(); err != nil {
		return err
	}

	info, err := h.store.CompleteChunkedUpload(req.UploadID, req.Name, req.TotalChunks)
	if err != nil {
		return FromError("failed to assemble upload", err)
	}

	return c.JSON(http.StatusCreated, info)
}

// HandleGetRecentFiles returns the most recently stored containers
func (h *ContainerHandlerImpl) HandleGetRecentFiles(c echo.Context) error {
	limit := defaultRecentFiles
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return NewValidationError("limit")
		}
		limit = min(n, maxRecentFiles)
	}

	files, err := h.store.List(limit)
	if err != nil {
		return NewInternalError("failed to list files", err)
	}

	return c.JSON(http.StatusOK, files)
}

// HandleGetFile returns metadata for a specific file
func (h *ContainerHandlerImpl) HandleGetFile(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	info, err := h.store.Get(id)
	if err != nil {
		return NewNotFoundError("file", id)
	}

	return c.JSON(http.StatusOK, info)
}

// HandleDeleteFile deletes a container, its open readers and its exports
func (h *ContainerHandlerImpl) HandleDeleteFile(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	if _, err := h.store.Get(id); err != nil {
		return NewNotFoundError("file", id)
	}

	// Readers hold the file open, so close them first.
	if h.sessions != nil {
		h.sessions.CloseFileSessions(id)
	}
	if err := h.store.Delete(id); err != nil {
		return FromError("failed to delete file", err)
	}
	if h.exports != nil {
		h.exports.DeleteFile(id)
	}

	return c.NoContent(http.StatusNoContent)
}

// HandleRenameFile updates the display name of a file
func (h *ContainerHandlerImpl) HandleRenameFile(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	var req renameFileRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.Name == "" {
		return NewValidationError("name")
	}

	info, err := h.store.Rename(id, req.Name)
	if err != nil {
		return NewNotFoundError("file", id)
	}

	return c.JSON(http.StatusOK, info)
}

// HandleGetSummary returns the channel table of a stored container
func (h *ContainerHandlerImpl) HandleGetSummary(c echo.Context) error {
	id := c.Param("id")
	path, err := h.store.GetFilePath(id)
	if err != nil {
		return NewNotFoundError("file", id)
	}

	r, err := container.Open(path, nil)
	if err != nil {
		return NewUnprocessableError("NOT_A_CONTAINER", err)
	}
	defer r.Close()

	summary, err := r.Summary()
	if err != nil {
		return NewUnprocessableError("CORRUPT_CONTAINER", err)
	}

	return c.JSON(http.StatusOK, summary)
}

// Request/Response types

type uploadChunkRequest struct {
	UploadID   string `json:"uploadId"`
	ChunkIndex int    `json:"chunkIndex"`
	Data       string `json:"data"` // Base64-encoded chunk
}

func (r *uploadChunkRequest) validate() error {
	if r.UploadID == "" {
		return NewValidationError("uploadId")
	}
	if r.ChunkIndex < 0 {
		return NewValidationError("chunkIndex")
	}
	if r.Data == "" {
		return NewValidationError("data")
	}
	return nil
}

type completeUploadRequest struct {
	UploadID    string `json:"uploadId"`
	Name        string `json:"name"`
	TotalChunks int    `json:"totalChunks"`
}

func (r *completeUploadRequest) validate() error {
	if r.UploadID == "" {
		return NewValidationError("uploadId")
	}
	if r.Name == "" {
		return NewValidationError("name")
	}
	if r.TotalChunks <= 0 {
		return NewBadRequestError("totalChunks must be positive", nil)
	}
	return nil
}

type renameFileRequest struct {
	Name string `json:"name"`
}
