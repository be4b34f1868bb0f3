package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/HarborC/kalibrlib/internal/dataset"
	"github.com/HarborC/kalibrlib/internal/logging"
	"github.com/HarborC/kalibrlib/internal/models"
	"github.com/google/uuid"
	"github.com/labstack/gommon/log"
)

// DefaultMaxSessions limits concurrently open readers.
const DefaultMaxSessions = 10

// SessionKeepAliveWindow is how long a recently used session is protected
// from eviction and cleanup.
const SessionKeepAliveWindow = 5 * time.Minute

// Errors returned by the Manager.
var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrTooManySessions  = errors.New("too many open sessions")
	ErrWrongReaderKind  = errors.New("session holds a different reader kind")
	ErrInvalidReaderArg = errors.New("invalid reader kind")
)

// OpenRequest describes the reader a session should hold.
type OpenRequest struct {
	Kind      models.ReaderKind
	Channel   string
	Window    *models.TimeWindow
	Frequency float64
}

// SessionState holds one open reader. Readers are single-caller, so every
// access goes through mu.
type SessionState struct {
	mu           sync.Mutex
	Session      *models.ReaderSession
	imu          *dataset.ImuReader
	image        *dataset.ImageReader
	LastAccessed time.Time
}

func (s *SessionState) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.imu != nil:
		return s.imu.Close()
	case s.image != nil:
		return s.image.Close()
	}
	return nil
}

// Manager holds the dataset readers opened through the service.
type Manager struct {
	sessions    map[string]*SessionState
	mu          sync.RWMutex
	maxSessions int
	logger      *log.Logger
}

// NewManager creates a session manager. maxSessions <= 0 means
// DefaultMaxSessions.
func NewManager(maxSessions int) *Manager {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	return &Manager{
		sessions:    make(map[string]*SessionState),
		maxSessions: maxSessions,
		logger:      logging.New("session"),
	}
}

// Open opens a reader on the container at path and registers it.
func (m *Manager) Open(fileID, path string, req OpenRequest) (*models.ReaderSession, error) {
	opts := dataset.Options{
		Channel:   req.Channel,
		Window:    req.Window,
		Frequency: req.Frequency,
		Logger:    m.logger,
	}

	state := &SessionState{LastAccessed: time.Now()}
	var count int
	var reports []models.FilterReport
	switch req.Kind {
	case models.ReaderKindImu:
		r, err := dataset.OpenImuReader(path, opts)
		if err != nil {
			return nil, err
		}
		state.imu, count, reports = r, r.Len(), r.Reports()
	case models.ReaderKindImage:
		r, err := dataset.OpenImageReader(path, opts)
		if err != nil {
			return nil, err
		}
		state.image, count, reports = r, r.Len(), r.Reports()
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidReaderArg, req.Kind)
	}

	state.Session = &models.ReaderSession{
		ID:        uuid.New().String(),
		FileID:    fileID,
		Kind:      req.Kind,
		Channel:   req.Channel,
		Window:    req.Window,
		Frequency: req.Frequency,
		Count:     count,
		Reports:   reports,
		CreatedAt: time.Now(),
	}

	m.mu.Lock()
	var evicted *SessionState
	if len(m.sessions) >= m.maxSessions {
		evicted = m.evictIdleLocked()
		if evicted == nil {
			m.mu.Unlock()
			state.close()
			return nil, ErrTooManySessions
		}
	}
	m.sessions[state.Session.ID] = state
	m.mu.Unlock()

	// An evicted reader may still be finishing a request; close it without
	// holding the manager lock.
	if evicted != nil {
		evicted.close()
	}
	m.logger.Infof("opened %s reader %s on %s (%d records)", req.Kind, shortID(state.Session.ID), req.Channel, count)
	return state.Session, nil
}

// evictIdleLocked removes the least recently used session outside the
// keep-alive window and returns it for the caller to close once m.mu is
// released. Callers hold m.mu.
func (m *Manager) evictIdleLocked() *SessionState {
	keepAliveCutoff := time.Now().Add(-SessionKeepAliveWindow)
	var oldest string
	var oldestAt time.Time
	for id, state := range m.sessions {
		if state.LastAccessed.After(keepAliveCutoff) {
			continue
		}
		if oldest == "" || state.LastAccessed.Before(oldestAt) {
			oldest, oldestAt = id, state.LastAccessed
		}
	}
	if oldest == "" {
		return nil
	}
	state := m.sessions[oldest]
	delete(m.sessions, oldest)
	m.logger.Infof("evicted idle session %s", shortID(oldest))
	return state
}

// GetSession returns the session metadata.
func (m *Manager) GetSession(id string) (*models.ReaderSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	return state.Session, true
}

// List returns all sessions, newest first.
func (m *Manager) List() []*models.ReaderSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := make([]*models.ReaderSession, 0, len(m.sessions))
	for _, state := range m.sessions {
		list = append(list, state.Session)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list
}

// TouchSession extends the session's keep-alive.
func (m *Manager) TouchSession(id string) bool {
	_, ok := m.acquire(id)
	return ok
}

// acquire looks a session up and marks it used.
func (m *Manager) acquire(id string) (*SessionState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.sessions[id]
	if ok {
		state.LastAccessed = time.Now()
	}
	return state, ok
}

// ImuRecords decodes up to limit records starting at offset. It returns
// the decoded page and the session's total record count.
func (m *Manager) ImuRecords(id string, offset, limit int) ([]models.ImuRecord, int, error) {
	state, ok := m.acquire(id)
	if !ok {
		return nil, 0, ErrSessionNotFound
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	if state.imu == nil {
		return nil, 0, ErrWrongReaderKind
	}

	total := state.imu.Len()
	start, end := pageBounds(offset, limit, total)
	records := make([]models.ImuRecord, 0, end-start)
	for i := start; i < end; i++ {
		rec, err := state.imu.At(i)
		if err != nil {
			return nil, total, fmt.Errorf("record %d: %w", i, err)
		}
		records = append(records, rec)
	}
	return records, total, nil
}

// ImuSequence runs fn over every record of an IMU session in time order
// while holding the session.
func (m *Manager) ImuSequence(id string, fn func(*dataset.Sequence[models.ImuRecord]) error) error {
	state, ok := m.acquire(id)
	if !ok {
		return ErrSessionNotFound
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	if state.imu == nil {
		return ErrWrongReaderKind
	}
	return fn(state.imu.ReadDataset())
}

// ImageFrame decodes frame i of an image session.
func (m *Manager) ImageFrame(id string, i int) (models.ImageRecord, error) {
	state, ok := m.acquire(id)
	if !ok {
		return models.ImageRecord{}, ErrSessionNotFound
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	if state.image == nil {
		return models.ImageRecord{}, ErrWrongReaderKind
	}
	return state.image.At(i)
}

// CloseSession closes and forgets a session.
func (m *Manager) CloseSession(id string) error {
	m.mu.Lock()
	state, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	return state.close()
}

// CloseFileSessions closes every session reading fileID.
func (m *Manager) CloseFileSessions(fileID string) int {
	m.mu.Lock()
	var closing []*SessionState
	for id, state := range m.sessions {
		if state.Session.FileID == fileID {
			closing = append(closing, state)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, state := range closing {
		state.close()
	}
	return len(closing)
}

// CleanupOldSessions closes sessions unused for longer than maxAge.
func (m *Manager) CleanupOldSessions(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	var closing []*SessionState

	m.mu.Lock()
	for id, state := range m.sessions {
		if state.LastAccessed.Before(cutoff) {
			closing = append(closing, state)
			delete(m.sessions, id)
			m.logger.Infof("cleaned up aged session %s (last accessed: %s ago)",
				shortID(id), time.Since(state.LastAccessed).Round(time.Second))
		}
	}
	m.mu.Unlock()

	for _, state := range closing {
		state.close()
	}
	return len(closing)
}

// StartCleanupRoutine runs CleanupOldSessions every interval until ctx is
// done.
func (m *Manager) StartCleanupRoutine(ctx context.Context, interval, maxAge time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.CleanupOldSessions(maxAge)
			}
		}
	}()
}

// CloseAll closes every session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*SessionState)
	m.mu.Unlock()
	for _, state := range sessions {
		state.close()
	}
}

// pageBounds clamps [offset, offset+limit) to [0, total).
func pageBounds(offset, limit, total int) (int, int) {
	start := min(max(offset, 0), total)
	if limit <= 0 {
		return start, total
	}
	return start, min(start+limit, total)
}

// shortID safely truncates an ID for logging.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
