// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/HarborC/kalibrlib/internal/dataset"
	"github.com/HarborC/kalibrlib/internal/export"
	"github.com/HarborC/kalibrlib/internal/jobs"
	"github.com/HarborC/kalibrlib/internal/models"
	"github.com/HarborC/kalibrlib/internal/session"
	"github.com/labstack/echo/v4"
)

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// ContainerHandler handles stored container files
type ContainerHandler interface {
	HandleUploadBinary(c echo.Context) error
	HandleUploadChunk(c echo.Context) error
	HandleCompleteUpload(c echo.Context) error
	HandleGetRecentFiles(c echo.Context) error
	HandleGetFile(c echo.Context) error
	HandleDeleteFile(c echo.Context) error
	HandleRenameFile(c echo.Context) error
	HandleGetSummary(c echo.Context) error
}

// ReaderHandler handles dataset reader sessions
type ReaderHandler interface {
	HandleOpenReader(c echo.Context) error
	HandleListReaders(c echo.Context) error
	HandleGetReader(c echo.Context) error
	HandleCloseReader(c echo.Context) error
	HandleKeepAlive(c echo.Context) error
	HandleImuRecords(c echo.Context) error
	HandleImuRecordsMsgpack(c echo.Context) error
	HandleImageFrame(c echo.Context) error
	HandleExportImu(c echo.Context) error
}

// ConvertHandler handles background conversions of recording directories
type ConvertHandler interface {
	HandleStartConvert(c echo.Context) error
	HandleGetConvertJob(c echo.Context) error
	HandleCancelConvertJob(c echo.Context) error
}

// SessionManager defines the interface for session management
// This allows mocking in tests
type SessionManager interface {
	Open(fileID, path string, req session.OpenRequest) (*models.ReaderSession, error)
	GetSession(id string) (*models.ReaderSession, bool)
	List() []*models.ReaderSession
	TouchSession(id string) bool
	ImuRecords(id string, offset, limit int) ([]models.ImuRecord, int, error)
	ImuSequence(id string, fn func(*dataset.Sequence[models.ImuRecord]) error) error
	ImageFrame(id string, i int) (models.ImageRecord, error)
	CloseSession(id string) error
	CloseFileSessions(fileID string) int
}

// ExportCache holds finished DuckDB exports per container and channel.
type ExportCache interface {
	Has(fileID, channel string) bool
	Create(fileID, channel string) (*export.ImuStore, error)
	MarkComplete(fileID, channel string) error
	Discard(fileID, channel string)
	Open(fileID, channel string) (*export.ImuStore, error)
	DeleteFile(fileID string) int
}

// JobRunner starts and tracks conversion jobs.
type JobRunner interface {
	StartJob(ctx context.Context, req jobs.Request) (*jobs.Job, error)
	GetJob(id string) (*jobs.Job, bool)
	CancelJob(id string) error
}
