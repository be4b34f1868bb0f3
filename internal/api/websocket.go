package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/HarborC/kalibrlib/internal/jobs"
	"github.com/HarborC/kalibrlib/internal/logging"
	"github.com/HarborC/kalibrlib/internal/models"
	"github.com/HarborC/kalibrlib/internal/storage"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

// WebSocket message types
const (
	// Client -> Server messages
	MsgTypeUploadInit     = "upload:init"
	MsgTypeUploadChunk    = "upload:chunk"
	MsgTypeUploadComplete = "upload:complete"
	MsgTypeJobWatch       = "job:watch"
	MsgTypePing           = "ping"

	// Server -> Client messages
	MsgTypeConnected   = "connected"
	MsgTypeAck         = "ack"
	MsgTypeProgress    = "progress"
	MsgTypeComplete    = "complete"
	MsgTypeJobProgress = "job:progress"
	MsgTypeJobDone     = "job:done"
	MsgTypeError       = "error"
	MsgTypePong        = "pong"
)

// DefaultJobPollInterval is how often a watched job is sampled.
const DefaultJobPollInterval = 250 * time.Millisecond

// WSMessage is the envelope of every frame in both directions.
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// UploadInitPayload opens a chunked container upload.
type UploadInitPayload struct {
	FileName    string `json:"fileName"`
	TotalChunks int    `json:"totalChunks"`
}

// UploadChunkPayload carries one base64 encoded part.
type UploadChunkPayload struct {
	UploadID   string `json:"uploadId"`
	ChunkIndex int    `json:"chunkIndex"`
	Data       string `json:"data"`
}

// UploadCompletePayload asks the server to assemble and store the upload.
type UploadCompletePayload struct {
	UploadID string `json:"uploadId"`
}

// JobWatchPayload subscribes to a conversion job.
type JobWatchPayload struct {
	JobID string `json:"jobId"`
}

// WSProgressResponse reports upload or job progress.
type WSProgressResponse struct {
	Progress float64 `json:"progress"`
	Stage    string  `json:"stage,omitempty"`
	Status   string  `json:"status,omitempty"`
	Message  string  `json:"message,omitempty"`
}

// WSCompleteResponse reports a stored container.
type WSCompleteResponse struct {
	UploadID string           `json:"uploadId"`
	FileInfo *models.FileInfo `json:"fileInfo"`
}

// WSErrorResponse reports a failed request on the socket.
type WSErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// wsUpload tracks an upload whose chunks are staged in the store.
type wsUpload struct {
	fileName    string
	totalChunks int
	received    map[int]bool
}

// wsConn serializes writes; watchers and the read loop share a connection.
type wsConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *wsConn) send(msgType, id string, payload interface{}) error {
	msg := WSMessage{Type: msgType, ID: id, Timestamp: time.Now().UnixMilli()}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		msg.Payload = data
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(msg)
}

func (c *wsConn) sendError(id, code, message string) error {
	return c.send(MsgTypeError, id, WSErrorResponse{Message: message, Code: code})
}

// WebSocketHandler serves chunked container uploads and pushes conversion
// job progress over a single socket.
type WebSocketHandler struct {
	store        storage.Store
	jobs         JobRunner
	upgrader     websocket.Upgrader
	pollInterval time.Duration
	logger       *log.Logger

	uploads   map[string]*wsUpload
	uploadsMu sync.Mutex
}

// NewWebSocketHandler creates the socket handler. runner may be nil, in
// which case job:watch answers with an error.
func NewWebSocketHandler(store storage.Store, runner JobRunner) *WebSocketHandler {
	return &WebSocketHandler{
		store: store,
		jobs:  runner,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
		},
		pollInterval: DefaultJobPollInterval,
		logger:       logging.New("ws"),
		uploads:      make(map[string]*wsUpload),
	}
}

// HandleWebSocket upgrades the request and runs the message loop until the
// client disconnects.
func (h *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	conn := &wsConn{ws: ws}
	ctx, cancel := context.WithCancel(c.Request().Context())
	var watchers sync.WaitGroup
	defer func() {
		cancel()
		watchers.Wait()
	}()

	conn.send(MsgTypeConnected, "", nil)
	for {
		var msg WSMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warnf("connection error: %v", err)
			}
			return nil
		}

		switch msg.Type {
		case MsgTypePing:
			conn.send(MsgTypePong, msg.ID, nil)
		case MsgTypeUploadInit:
			h.handleUploadInit(conn, msg)
		case MsgTypeUploadChunk:
			h.handleUploadChunk(conn, msg)
		case MsgTypeUploadComplete:
			h.handleUploadComplete(conn, msg)
		case MsgTypeJobWatch:
			var p JobWatchPayload
			if err := json.Unmarshal(msg.Payload, &p); err != nil || p.JobID == "" {
				conn.sendError(msg.ID, "INVALID_PAYLOAD", "job:watch needs a jobId")
				continue
			}
			if h.jobs == nil {
				conn.sendError(p.JobID, "SERVICE_UNAVAILABLE", "conversion jobs are not configured")
				continue
			}
			watchers.Add(1)
			go func() {
				defer watchers.Done()
				h.watchJob(ctx, conn, p.JobID)
			}()
		default:
			conn.sendError(msg.ID, "INVALID_TYPE", "unknown message type: "+msg.Type)
		}
	}
}

func (h *WebSocketHandler) handleUploadInit(conn *wsConn, msg WSMessage) {
	var p UploadInitPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		conn.sendError(msg.ID, "INVALID_PAYLOAD", "invalid init payload: "+err.Error())
		return
	}
	if p.FileName == "" || p.TotalChunks <= 0 {
		conn.sendError(msg.ID, "VALIDATION_ERROR", "fileName and a positive totalChunks are required")
		return
	}

	id := uuid.New().String()
	h.uploadsMu.Lock()
	h.uploads[id] = &wsUpload{fileName: p.FileName, totalChunks: p.TotalChunks, received: make(map[int]bool)}
	h.uploadsMu.Unlock()

	conn.send(MsgTypeAck, id, nil)
	h.logger.Infof("upload %s started: %s (%d chunks)", shortID(id), p.FileName, p.TotalChunks)
}

func (h *WebSocketHandler) handleUploadChunk(conn *wsConn, msg WSMessage) {
	var p UploadChunkPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		conn.sendError(msg.ID, "INVALID_PAYLOAD", "invalid chunk payload: "+err.Error())
		return
	}

	h.uploadsMu.Lock()
	up, ok := h.uploads[p.UploadID]
	h.uploadsMu.Unlock()
	if !ok {
		conn.sendError(p.UploadID, "NOT_FOUND", "upload not found: "+p.UploadID)
		return
	}
	if p.ChunkIndex < 0 || p.ChunkIndex >= up.totalChunks {
		conn.sendError(p.UploadID, "VALIDATION_ERROR", fmt.Sprintf("chunk %d outside [0, %d)", p.ChunkIndex, up.totalChunks))
		return
	}
	data, err := base64.StdEncoding.DecodeString(p.Data)
	if err != nil {
		conn.sendError(p.UploadID, "INVALID_DATA", "invalid base64 data: "+err.Error())
		return
	}
	if err := h.store.SaveChunk(p.UploadID, p.ChunkIndex, bytes.NewReader(data)); err != nil {
		conn.sendError(p.UploadID, "SAVE_ERROR", err.Error())
		return
	}

	h.uploadsMu.Lock()
	up.received[p.ChunkIndex] = true
	received := len(up.received)
	h.uploadsMu.Unlock()

	conn.send(MsgTypeProgress, p.UploadID, WSProgressResponse{
		Progress: 100 * float64(received) / float64(up.totalChunks),
		Stage:    "uploading",
		Message:  fmt.Sprintf("received chunk %d/%d", received, up.totalChunks),
	})
}

func (h *WebSocketHandler) handleUploadComplete(conn *wsConn, msg WSMessage) {
	var p UploadCompletePayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		conn.sendError(msg.ID, "INVALID_PAYLOAD", "invalid complete payload: "+err.Error())
		return
	}

	h.uploadsMu.Lock()
	up, ok := h.uploads[p.UploadID]
	var received int
	if ok {
		received = len(up.received)
	}
	h.uploadsMu.Unlock()
	if !ok {
		conn.sendError(p.UploadID, "NOT_FOUND", "upload not found: "+p.UploadID)
		return
	}
	if received != up.totalChunks {
		conn.sendError(p.UploadID, "INCOMPLETE_UPLOAD", fmt.Sprintf("missing chunks: got %d, expected %d", received, up.totalChunks))
		return
	}

	h.uploadsMu.Lock()
	delete(h.uploads, p.UploadID)
	h.uploadsMu.Unlock()

	info, err := h.store.CompleteChunkedUpload(p.UploadID, up.fileName, up.totalChunks)
	if err != nil {
		code := "SAVE_ERROR"
		if errors.Is(err, storage.ErrNotContainer) {
			code = "NOT_A_CONTAINER"
		}
		conn.sendError(p.UploadID, code, err.Error())
		return
	}

	conn.send(MsgTypeComplete, p.UploadID, WSCompleteResponse{UploadID: p.UploadID, FileInfo: info})
	h.logger.Infof("upload %s stored as %s (%d bytes)", shortID(p.UploadID), info.ID, info.Size)
}

// watchJob pushes a job:progress frame whenever the job's status, stage or
// progress changes, then a final job:done frame holding the whole job.
func (h *WebSocketHandler) watchJob(ctx context.Context, conn *wsConn, jobID string) {
	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	var last *jobs.Job
	for {
		job, ok := h.jobs.GetJob(jobID)
		if !ok {
			conn.sendError(jobID, "NOT_FOUND", "job not found: "+jobID)
			return
		}
		if last == nil || job.Status != last.Status || job.Stage != last.Stage || job.Progress != last.Progress {
			if err := conn.send(MsgTypeJobProgress, jobID, WSProgressResponse{
				Progress: job.Progress,
				Stage:    job.Stage,
				Status:   string(job.Status),
			}); err != nil {
				return
			}
		}
		if job.Finished() {
			conn.send(MsgTypeJobDone, jobID, job)
			return
		}
		last = job

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
