// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/HarborC/kalibrlib/internal/config"
	"github.com/HarborC/kalibrlib/internal/storage"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Store    storage.Store
	Sessions SessionManager
	// Exports and Jobs are optional; their routes answer 503 when unset.
	Exports ExportCache
	Jobs    JobRunner
	// JobContext bounds background conversions. Defaults to Background.
	JobContext  context.Context
	MaxPageSize int
	Version     string
}

// Handlers holds all handler instances
type Handlers struct {
	Health    HealthHandler
	Container ContainerHandler
	Reader    ReaderHandler
	Convert   ConvertHandler
	WebSocket *WebSocketHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	h := &Handlers{
		Health:    NewHealthHandler(deps.Version, deps.Sessions),
		Container: NewContainerHandler(deps.Store, deps.Sessions, deps.Exports),
		Reader:    NewReaderHandler(deps.Store, deps.Sessions, deps.Exports, deps.MaxPageSize),
		WebSocket: NewWebSocketHandler(deps.Store, deps.Jobs),
	}
	if deps.Jobs != nil {
		ctx := deps.JobContext
		if ctx == nil {
			ctx = context.Background()
		}
		h.Convert = NewConvertHandler(ctx, deps.Jobs)
	}
	return h
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	apiGroup := e.Group("/api")

	// Health check
	apiGroup.GET("/health", handlers.Health.HandleHealth)

	// Chunked uploads and job progress over a socket
	apiGroup.GET("/ws", handlers.WebSocket.HandleWebSocket)

	// Container files
	files := apiGroup.Group("/files")
	files.POST("/upload/binary", handlers.Container.HandleUploadBinary)
	files.POST("/upload/chunk", handlers.Container.HandleUploadChunk)
	files.POST("/upload/complete", handlers.Container.HandleCompleteUpload)
	files.GET("/recent", handlers.Container.HandleGetRecentFiles)
	files.GET("/:id", handlers.Container.HandleGetFile)
	files.GET("/:id/summary", handlers.Container.HandleGetSummary)
	files.PUT("/:id", handlers.Container.HandleRenameFile)
	files.DELETE("/:id", handlers.Container.HandleDeleteFile)

	// Reader sessions
	readers := apiGroup.Group("/readers")
	readers.POST("", handlers.Reader.HandleOpenReader)
	readers.GET("", handlers.Reader.HandleListReaders)
	readers.GET("/:sessionId", handlers.Reader.HandleGetReader)
	readers.DELETE("/:sessionId", handlers.Reader.HandleCloseReader)
	readers.POST("/:sessionId/keepalive", handlers.Reader.HandleKeepAlive)
	readers.GET("/:sessionId/imu", handlers.Reader.HandleImuRecords)
	readers.GET("/:sessionId/imu/msgpack", handlers.Reader.HandleImuRecordsMsgpack)
	readers.POST("/:sessionId/imu/export", handlers.Reader.HandleExportImu)
	readers.GET("/:sessionId/frames/:index", handlers.Reader.HandleImageFrame)

	// Conversion jobs
	convert := apiGroup.Group("/convert")
	if handlers.Convert != nil {
		convert.POST("", handlers.Convert.HandleStartConvert)
		convert.GET("/:jobId", handlers.Convert.HandleGetConvertJob)
		convert.DELETE("/:jobId", handlers.Convert.HandleCancelConvertJob)
	} else {
		convert.Any("*", func(echo.Context) error {
			return NewServiceUnavailableError("conversion jobs are not configured")
		})
	}
}

// SetupMiddleware configures the error handler and the common middleware
func SetupMiddleware(e *echo.Echo, cfg *config.AppConfig) {
	// Use custom error handler
	e.HTTPErrorHandler = ErrorHandler

	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return path == "/api/health" ||
				strings.HasSuffix(path, "/keepalive") ||
				strings.HasPrefix(path, "/api/convert/")
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
	}))

	e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		Timeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
		Skipper: func(c echo.Context) bool {
			path := c.Request().URL.Path
			return path == "/api/ws" ||
				strings.Contains(path, "/upload") ||
				strings.HasSuffix(path, "/export")
		},
		ErrorMessage: "Request timeout - query took too long",
	}))

	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	if cfg.Server.EnableCORS {
		origins := strings.Split(cfg.Server.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 1 && origins[0] == "" {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}
}
