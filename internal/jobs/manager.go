// Package jobs runs container conversions in the background and tracks
// their progress for the service.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/HarborC/kalibrlib/internal/convert"
	"github.com/HarborC/kalibrlib/internal/logging"
	"github.com/HarborC/kalibrlib/internal/models"
	"github.com/google/uuid"
	"github.com/labstack/gommon/log"
)

// Status represents the conversion job status.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConverting Status = "converting"
	StatusStoring    Status = "storing"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
	StatusCancelled  Status = "cancelled"
)

// ErrJobNotFound is returned for unknown job ids.
var ErrJobNotFound = errors.New("job not found")

// Request describes one conversion.
type Request struct {
	RootDir     string `json:"rootDir"`
	Name        string `json:"name"`
	Compressed  bool   `json:"compressed"`
	SkipLeading *int   `json:"skipLeading,omitempty"`
}

// Job represents an async conversion job.
type Job struct {
	ID            string               `json:"id"`
	Request       Request              `json:"request"`
	Status        Status               `json:"status"`
	Progress      float64              `json:"progress"`
	Stage         string               `json:"stage"`
	StageProgress float64              `json:"stageProgress"`
	Report        *convert.BuildReport `json:"report,omitempty"`
	FileInfo      *models.FileInfo     `json:"fileInfo,omitempty"`
	Error         string               `json:"error,omitempty"`
	CreatedAt     time.Time            `json:"createdAt"`
	CompletedAt   *time.Time           `json:"completedAt,omitempty"`

	cancel context.CancelFunc
}

// Finished reports whether the job has reached a terminal status.
func (j *Job) Finished() bool {
	return j.Status == StatusComplete || j.Status == StatusError || j.Status == StatusCancelled
}

// Store is the part of the storage layer jobs hand finished containers to.
type Store interface {
	SaveFile(name, path string) (*models.FileInfo, error)
}

// Manager handles async conversions.
type Manager struct {
	jobs    map[string]*Job
	mu      sync.RWMutex
	workDir string
	store   Store
	opts    convert.Options
	wg      sync.WaitGroup
	logger  *log.Logger
}

// NewManager creates a job manager. Containers are built under workDir and
// then moved into store; base supplies compression and channel settings.
func NewManager(workDir string, store Store, base convert.Options) *Manager {
	return &Manager{
		jobs:    make(map[string]*Job),
		workDir: workDir,
		store:   store,
		opts:    base,
		logger:  logging.New("jobs"),
	}
}

// StartJob validates req and begins converting it in the background.
func (m *Manager) StartJob(ctx context.Context, req Request) (*Job, error) {
	fi, err := os.Stat(req.RootDir)
	if err != nil {
		return nil, fmt.Errorf("dataset directory: %w", err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("dataset directory: %s is not a directory", req.RootDir)
	}
	if req.Name == "" {
		req.Name = filepath.Base(filepath.Clean(req.RootDir)) + ".kbag"
	}

	ctx, cancel := context.WithCancel(ctx)
	job := &Job{
		ID:        uuid.New().String(),
		Request:   req,
		Status:    StatusPending,
		Stage:     "preparing",
		CreatedAt: time.Now(),
		cancel:    cancel,
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		m.processJob(ctx, job)
	}()

	snap, _ := m.GetJob(job.ID)
	return snap, nil
}

// GetJob returns a snapshot of a job.
func (m *Manager) GetJob(id string) (*Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, false
	}
	snap := *job
	snap.cancel = nil
	return &snap, true
}

// CancelJob stops a running job. Finished jobs are left as they are.
func (m *Manager) CancelJob(id string) error {
	m.mu.RLock()
	job, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	job.cancel()
	return nil
}

// Wait blocks until every started job has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) processJob(ctx context.Context, job *Job) {
	short := job.ID[:8]
	m.logger.Infof("[job %s] converting %s", short, job.Request.RootDir)

	if err := os.MkdirAll(m.workDir, 0755); err != nil {
		m.markJobError(job, fmt.Sprintf("creating work directory: %v", err))
		return
	}
	out := filepath.Join(m.workDir, job.ID+".kbag")
	defer os.Remove(out)

	opts := m.opts
	opts.Output = out
	opts.Compressed = job.Request.Compressed
	if job.Request.SkipLeading != nil {
		opts.SkipLeading = *job.Request.SkipLeading
	}
	opts.Logger = m.logger
	opts.Progress = func(stage convert.Stage, done, total int) {
		if total > 0 {
			m.updateJobStatus(job, StatusConverting, string(stage), 100*float64(done)/float64(total))
		}
	}

	m.updateJobStatus(job, StatusConverting, string(convert.StageImu), 0)
	report, err := convert.Build(ctx, convert.RootSources(job.Request.RootDir), opts)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			m.markJobCancelled(job)
			return
		}
		m.markJobError(job, fmt.Sprintf("conversion failed: %v", err))
		return
	}

	m.updateJobStatus(job, StatusStoring, "storing container", 0)
	info, err := m.store.SaveFile(job.Request.Name, out)
	if err != nil {
		m.markJobError(job, fmt.Sprintf("storing container: %v", err))
		return
	}

	m.mu.Lock()
	job.Report = report
	job.FileInfo = info
	m.mu.Unlock()
	m.markJobComplete(job)
	m.logger.Infof("[job %s] stored %s as %s (%d IMU, %d frames)", short, job.Request.Name, info.ID, report.ImuCount, report.FrameCount)
}

// updateJobStatus updates job progress (thread-safe).
func (m *Manager) updateJobStatus(job *Job, status Status, stage string, stageProgress float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.Status = status
	job.Stage = stage
	job.StageProgress = stageProgress

	// imu: 0-45%, frames: 45-90%, storing: 90-100%
	switch {
	case status == StatusStoring:
		job.Progress = 90 + stageProgress*0.1
	case stage == string(convert.StageFrames):
		job.Progress = 45 + stageProgress*0.45
	default:
		job.Progress = stageProgress * 0.45
	}
}

func (m *Manager) finish(job *Job, status Status, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.Status = status
	job.Error = errMsg
	if status == StatusComplete {
		job.Progress = 100
	}
	now := time.Now()
	job.CompletedAt = &now
}

func (m *Manager) markJobComplete(job *Job) {
	m.finish(job, StatusComplete, "")
}

func (m *Manager) markJobCancelled(job *Job) {
	m.finish(job, StatusCancelled, "")
	m.logger.Infof("[job %s] cancelled", job.ID[:8])
}

func (m *Manager) markJobError(job *Job, errMsg string) {
	m.finish(job, StatusError, errMsg)
	m.logger.Errorf("[job %s] %s", job.ID[:8], errMsg)
}

// CleanupOldJobs removes finished jobs older than maxAge.
func (m *Manager) CleanupOldJobs(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for id, job := range m.jobs {
		if job.Finished() && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(m.jobs, id)
			removed++
		}
	}
	return removed
}
