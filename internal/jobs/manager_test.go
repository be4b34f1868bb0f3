package jobs

import (
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/HarborC/kalibrlib/internal/container"
	"github.com/HarborC/kalibrlib/internal/convert"
	"github.com/HarborC/kalibrlib/internal/models"
	"github.com/HarborC/kalibrlib/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const imuTable = `timestamp,ax,ay,az,gx,gy,gz,qw,qx,qy,qz
1.000,0,0,9.8,0.1,0.2,0.3,1,0,0,0
1.005,0,0,9.8,0.1,0.2,0.3,1,0,0,0
`

func writeRecording(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "imu_data.txt"), []byte(imuTable), 0o644))
	for _, side := range []string{"left", "right"} {
		dir := filepath.Join(root, "images", side)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		for _, stamp := range []string{"1.000", "1.050", "1.100"} {
			f, err := os.Create(filepath.Join(dir, stamp+".png"))
			require.NoError(t, err)
			require.NoError(t, png.Encode(f, image.NewGray(image.Rect(0, 0, 2, 2))))
			require.NoError(t, f.Close())
		}
	}
	return root
}

func newTestManager(t *testing.T, store Store) (*Manager, string) {
	work := filepath.Join(t.TempDir(), "work")
	return NewManager(work, store, convert.Options{Compression: container.CompressionLZ4, SkipLeading: 1}), work
}

type failingStore struct{}

func (failingStore) SaveFile(string, string) (*models.FileInfo, error) {
	return nil, errors.New("disk full")
}

func TestJobConvertsAndStores(t *testing.T) {
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	m, work := newTestManager(t, store)
	root := writeRecording(t)

	job, err := m.StartJob(context.Background(), Request{RootDir: root})
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(root)+".kbag", job.Request.Name)
	m.Wait()

	got, ok := m.GetJob(job.ID)
	require.True(t, ok)
	require.Equal(t, StatusComplete, got.Status, got.Error)
	assert.Equal(t, 100.0, got.Progress)
	require.NotNil(t, got.Report)
	assert.Equal(t, 2, got.Report.ImuCount)
	assert.Equal(t, 2, got.Report.FrameCount)
	require.NotNil(t, got.FileInfo)
	assert.Equal(t, got.Report.ContainerID, got.FileInfo.ContainerID)
	assert.NotNil(t, got.CompletedAt)

	entries, err := os.ReadDir(work)
	require.NoError(t, err)
	assert.Empty(t, entries)

	files, err := store.List(0)
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestJobSkipLeadingOverride(t *testing.T) {
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	m, _ := newTestManager(t, store)

	zero := 0
	job, err := m.StartJob(context.Background(), Request{RootDir: writeRecording(t), Name: "all.kbag", SkipLeading: &zero})
	require.NoError(t, err)
	m.Wait()

	got, _ := m.GetJob(job.ID)
	require.Equal(t, StatusComplete, got.Status, got.Error)
	assert.Equal(t, 3, got.Report.FrameCount)
	assert.Equal(t, "all.kbag", got.FileInfo.Name)
}

func TestJobErrors(t *testing.T) {
	m, _ := newTestManager(t, failingStore{})

	_, err := m.StartJob(context.Background(), Request{RootDir: filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = m.StartJob(context.Background(), Request{RootDir: file})
	assert.Error(t, err)

	job, err := m.StartJob(context.Background(), Request{RootDir: writeRecording(t)})
	require.NoError(t, err)
	m.Wait()
	got, _ := m.GetJob(job.ID)
	assert.Equal(t, StatusError, got.Status)
	assert.Contains(t, got.Error, "disk full")

	assert.ErrorIs(t, m.CancelJob("nope"), ErrJobNotFound)
	_, ok := m.GetJob("nope")
	assert.False(t, ok)
}

func TestJobCancelled(t *testing.T) {
	m, _ := newTestManager(t, failingStore{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	job, err := m.StartJob(ctx, Request{RootDir: writeRecording(t)})
	require.NoError(t, err)
	m.Wait()

	got, _ := m.GetJob(job.ID)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Empty(t, got.Error)
	assert.NoError(t, m.CancelJob(job.ID))
}

func TestCleanupOldJobs(t *testing.T) {
	m, _ := newTestManager(t, failingStore{})
	job, err := m.StartJob(context.Background(), Request{RootDir: writeRecording(t)})
	require.NoError(t, err)
	m.Wait()

	assert.Zero(t, m.CleanupOldJobs(time.Hour))

	m.mu.Lock()
	old := time.Now().Add(-2 * time.Hour)
	m.jobs[job.ID].CompletedAt = &old
	m.mu.Unlock()

	assert.Equal(t, 1, m.CleanupOldJobs(time.Hour))
	_, ok := m.GetJob(job.ID)
	assert.False(t, ok)
}
