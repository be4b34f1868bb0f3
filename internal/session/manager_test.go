package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/HarborC/kalibrlib/internal/container"
	"github.com/HarborC/kalibrlib/internal/dataset"
	"github.com/HarborC/kalibrlib/internal/export"
	"github.com/HarborC/kalibrlib/internal/models"
)

// writeContainer creates a container with 20 IMU samples at 100 Hz and
// three mono8 frames.
func writeContainer(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.kbag")
	w, err := container.Create(path, container.WriterOptions{Compression: container.CompressionLZ4})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	imu, _ := w.AddConnection("/imu", models.MessageTypeImu)
	cam, _ := w.AddConnection("/cam0", models.MessageTypeImage)
	for i := 0; i < 20; i++ {
		ts := int64(i) * 10_000_000
		msg := &models.ImuMsg{AngularVelocity: models.Vector3{X: float64(i)}}
		if err := w.Write(imu, ts, msg); err != nil {
			t.Fatalf("Write: %v", err)
		}
		if i%7 == 0 {
			img := &models.ImageMsg{Height: 1, Width: 2, Encoding: "mono8", Step: 2, Data: []byte{byte(i), 9}}
			if err := w.Write(cam, ts, img); err != nil {
				t.Fatalf("Write: %v", err)
			}
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return path
}

func TestSessionManager(t *testing.T) {
	path := writeContainer(t)
	m := NewManager(4)
	defer m.CloseAll()

	sess, err := m.Open("file-1", path, OpenRequest{Kind: models.ReaderKindImu, Channel: "/imu", Frequency: 50})
	if err != nil {
		t.Fatalf("Failed to open session: %v", err)
	}
	if sess.Count != 10 {
		t.Errorf("Expected 10 records after decimation, got %d", sess.Count)
	}
	if len(sess.Reports) != 1 || sess.Reports[0].Stage != models.FilterStageFrequency {
		t.Errorf("Expected one frequency report, got %+v", sess.Reports)
	}

	got, ok := m.GetSession(sess.ID)
	if !ok || got.FileID != "file-1" {
		t.Fatalf("GetSession returned %+v, %v", got, ok)
	}

	records, total, err := m.ImuRecords(sess.ID, 8, 5)
	if err != nil {
		t.Fatalf("ImuRecords: %v", err)
	}
	if total != 10 || len(records) != 2 {
		t.Errorf("Expected 2 of 10 records, got %d of %d", len(records), total)
	}
	if records[0].AngularVelocity.X != 16 {
		t.Errorf("Expected sample 16, got %v", records[0].AngularVelocity.X)
	}

	if _, err := m.ImageFrame(sess.ID, 0); !errors.Is(err, ErrWrongReaderKind) {
		t.Errorf("Expected ErrWrongReaderKind, got %v", err)
	}

	if err := m.CloseSession(sess.ID); err != nil {
		t.Fatalf("CloseSession: %v", err)
	}
	if _, _, err := m.ImuRecords(sess.ID, 0, 1); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestSessionManagerImages(t *testing.T) {
	path := writeContainer(t)
	m := NewManager(0)
	defer m.CloseAll()

	sess, err := m.Open("file-1", path, OpenRequest{Kind: models.ReaderKindImage, Channel: "/cam0"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if sess.Count != 3 {
		t.Fatalf("Expected 3 frames, got %d", sess.Count)
	}
	frame, err := m.ImageFrame(sess.ID, 2)
	if err != nil {
		t.Fatalf("ImageFrame: %v", err)
	}
	if frame.Pixels.GrayAt(0, 0).Y != 14 {
		t.Errorf("Expected first pixel 14, got %d", frame.Pixels.GrayAt(0, 0).Y)
	}
}

func TestSessionManagerOpenErrors(t *testing.T) {
	path := writeContainer(t)
	m := NewManager(1)
	defer m.CloseAll()

	_, err := m.Open("f", path, OpenRequest{Kind: models.ReaderKindImu, Channel: "/missing"})
	var nf *dataset.ChannelNotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("Expected ChannelNotFoundError, got %v", err)
	}

	if _, err := m.Open("f", path, OpenRequest{Kind: "lidar", Channel: "/imu"}); !errors.Is(err, ErrInvalidReaderArg) {
		t.Errorf("Expected ErrInvalidReaderArg, got %v", err)
	}

	if _, err := m.Open("f", path, OpenRequest{Kind: models.ReaderKindImu, Channel: "/imu"}); err != nil {
		t.Fatalf("Open: %v", err)
	}
	// The only slot is in use and inside its keep-alive window.
	if _, err := m.Open("f", path, OpenRequest{Kind: models.ReaderKindImu, Channel: "/imu"}); !errors.Is(err, ErrTooManySessions) {
		t.Errorf("Expected ErrTooManySessions, got %v", err)
	}
}

func TestSessionManagerEvictsIdle(t *testing.T) {
	path := writeContainer(t)
	m := NewManager(1)
	defer m.CloseAll()

	first, err := m.Open("f", path, OpenRequest{Kind: models.ReaderKindImu, Channel: "/imu"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	m.mu.Lock()
	m.sessions[first.ID].LastAccessed = time.Now().Add(-time.Hour)
	m.mu.Unlock()

	if _, err := m.Open("f", path, OpenRequest{Kind: models.ReaderKindImu, Channel: "/imu"}); err != nil {
		t.Fatalf("Expected idle session to be evicted, got %v", err)
	}
	if _, ok := m.GetSession(first.ID); ok {
		t.Error("Expected first session to be gone")
	}
}

func TestCleanupOldSessions(t *testing.T) {
	path := writeContainer(t)
	m := NewManager(4)
	defer m.CloseAll()

	old, _ := m.Open("f", path, OpenRequest{Kind: models.ReaderKindImu, Channel: "/imu"})
	fresh, _ := m.Open("g", path, OpenRequest{Kind: models.ReaderKindImu, Channel: "/imu"})
	m.mu.Lock()
	m.sessions[old.ID].LastAccessed = time.Now().Add(-time.Hour)
	m.mu.Unlock()

	if n := m.CleanupOldSessions(30 * time.Minute); n != 1 {
		t.Errorf("Expected 1 session cleaned, got %d", n)
	}
	if _, ok := m.GetSession(fresh.ID); !ok {
		t.Error("Expected fresh session to survive")
	}

	if n := m.CloseFileSessions("g"); n != 1 {
		t.Errorf("Expected 1 session closed for file g, got %d", n)
	}
	if len(m.List()) != 0 {
		t.Errorf("Expected no sessions, got %d", len(m.List()))
	}
}

// waitGone polls until id is no longer registered. It only returns if the
// manager lock is free while a session close is still pending.
func waitGone(t *testing.T, m *Manager, id string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, ok := m.GetSession(id); !ok {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("session %s still registered", id)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestCloseDoesNotHoldManagerLock(t *testing.T) {
	path := writeContainer(t)
	m := NewManager(1)
	defer m.CloseAll()

	busy, err := m.Open("f", path, OpenRequest{Kind: models.ReaderKindImu, Channel: "/imu"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	m.mu.Lock()
	state := m.sessions[busy.ID]
	state.LastAccessed = time.Now().Add(-time.Hour)
	m.mu.Unlock()

	// Simulate an in-flight request on the aged session.
	state.mu.Lock()
	done := make(chan int)
	go func() { done <- m.CleanupOldSessions(time.Minute) }()

	waitGone(t, m, busy.ID)
	if got := len(m.List()); got != 0 {
		t.Errorf("Expected no sessions while close is pending, got %d", got)
	}
	select {
	case <-done:
		t.Fatal("Cleanup returned before the busy session was released")
	default:
	}
	state.mu.Unlock()
	if n := <-done; n != 1 {
		t.Errorf("Expected 1 session cleaned, got %d", n)
	}

	// Eviction from Open follows the same path.
	idle, err := m.Open("f", path, OpenRequest{Kind: models.ReaderKindImu, Channel: "/imu"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	m.mu.Lock()
	state = m.sessions[idle.ID]
	state.LastAccessed = time.Now().Add(-time.Hour)
	m.mu.Unlock()

	state.mu.Lock()
	opened := make(chan error)
	go func() {
		_, err := m.Open("g", path, OpenRequest{Kind: models.ReaderKindImu, Channel: "/imu"})
		opened <- err
	}()
	waitGone(t, m, idle.ID)
	state.mu.Unlock()
	if err := <-opened; err != nil {
		t.Fatalf("Expected idle session to be evicted, got %v", err)
	}
}

func TestPageBounds(t *testing.T) {
	cases := []struct{ offset, limit, total, start, end int }{
		{0, 10, 5, 0, 5},
		{3, 0, 5, 3, 5},
		{-2, 2, 5, 0, 2},
		{7, 2, 5, 5, 5},
	}
	for _, c := range cases {
		start, end := pageBounds(c.offset, c.limit, c.total)
		if start != c.start || end != c.end {
			t.Errorf("pageBounds(%d, %d, %d) = %d, %d; want %d, %d", c.offset, c.limit, c.total, start, end, c.start, c.end)
		}
	}
}

func TestExportStore(t *testing.T) {
	dir := t.TempDir()
	s, err := NewExportStore(dir, export.StoreOptions{Threads: 1})
	if err != nil {
		t.Fatalf("NewExportStore: %v", err)
	}
	if s.Has("file-1", "/imu") {
		t.Fatal("Expected no export yet")
	}

	store, err := s.Create("file-1", "/imu")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Add(models.ImuRecord{Stamp: models.TimeFromNanos(5)}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := store.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	store.Close()
	if s.Has("file-1", "/imu") {
		t.Fatal("Expected unpublished export to be hidden")
	}
	if err := s.MarkComplete("file-1", "/imu"); err != nil {
		t.Fatalf("MarkComplete: %v", err)
	}

	if filepath.Base(s.DBPath("file-1", "/imu")) != "file-1__%2Fimu.duckdb" {
		t.Errorf("Unexpected db path %s", s.DBPath("file-1", "/imu"))
	}

	// A new store finds the export on disk.
	again, err := NewExportStore(dir, export.StoreOptions{})
	if err != nil {
		t.Fatalf("NewExportStore: %v", err)
	}
	ro, err := again.Open("file-1", "/imu")
	if err != nil || ro == nil {
		t.Fatalf("Open: %v, %v", ro, err)
	}
	ro.Close()

	if n := again.CleanupOrphaned([]string{"file-2"}); n != 1 {
		t.Errorf("Expected 1 orphan removed, got %d", n)
	}
	if again.Has("file-1", "/imu") {
		t.Error("Expected export to be gone")
	}
}

func TestExportStore_FailedExportNotServedAfterRestart(t *testing.T) {
	dir := t.TempDir()
	s, err := NewExportStore(dir, export.StoreOptions{Threads: 1})
	if err != nil {
		t.Fatalf("NewExportStore: %v", err)
	}

	db, err := s.Create("file-1", "/imu")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	decodeErr := errors.New("decode failed")
	seq := func(yield func(models.ImuRecord, error) bool) {
		if !yield(models.ImuRecord{Stamp: models.TimeFromNanos(1)}, nil) {
			return
		}
		yield(models.ImuRecord{}, decodeErr)
	}
	if err := export.WriteAll(context.Background(), db, seq); !errors.Is(err, decodeErr) {
		t.Fatalf("WriteAll: expected decode error, got %v", err)
	}
	db.Close()

	// Simulate a crash before Discard: the temporary file stays behind.
	again, err := NewExportStore(dir, export.StoreOptions{})
	if err != nil {
		t.Fatalf("NewExportStore: %v", err)
	}
	if again.Has("file-1", "/imu") {
		t.Fatal("Expected failed export not to be served after restart")
	}
	if ro, err := again.Open("file-1", "/imu"); err != nil || ro != nil {
		t.Fatalf("Open: expected nil, nil; got %v, %v", ro, err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected unfinished export files to be removed, found %d", len(entries))
	}
}

func TestExportStore_Discard(t *testing.T) {
	dir := t.TempDir()
	s, err := NewExportStore(dir, export.StoreOptions{Threads: 1})
	if err != nil {
		t.Fatalf("NewExportStore: %v", err)
	}
	db, err := s.Create("file-1", "/imu")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	db.Close()
	s.Discard("file-1", "/imu")

	if err := s.MarkComplete("file-1", "/imu"); err == nil {
		t.Fatal("Expected MarkComplete to fail after Discard")
	}
	if s.Has("file-1", "/imu") {
		t.Error("Expected no export after Discard")
	}
}

func TestExportKeyKeepsChannelsApart(t *testing.T) {
	if a, b := exportKey("f", "/a_b"), exportKey("f", "/a/b"); a == b {
		t.Errorf("exportKey collision: %q", a)
	}
	s, err := NewExportStore(t.TempDir(), export.StoreOptions{Threads: 1})
	if err != nil {
		t.Fatalf("NewExportStore: %v", err)
	}
	for _, ch := range []string{"/a_b", "/a/b"} {
		db, err := s.Create("f", ch)
		if err != nil {
			t.Fatalf("Create %s: %v", ch, err)
		}
		db.Close()
		if err := s.MarkComplete("f", ch); err != nil {
			t.Fatalf("MarkComplete %s: %v", ch, err)
		}
	}
	if got := len(s.List()); got != 2 {
		t.Errorf("Expected 2 exports, got %d", got)
	}
	if n := s.DeleteFile("f"); n != 2 {
		t.Errorf("Expected 2 exports removed, got %d", n)
	}
}
