package api

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/HarborC/kalibrlib/internal/convert"
	"github.com/HarborC/kalibrlib/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertHandler(t *testing.T) {
	env := newTestEnv(t)
	runner := jobs.NewManager(filepath.Join(t.TempDir(), "work"), env.store, convert.Options{})
	h := NewConvertHandler(context.Background(), runner)

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "imu_data.txt"), []byte(
		"timestamp,ax,ay,az,gx,gy,gz,qw,qx,qy,qz\n1.0,0,0,9.8,0,0,0,1,0,0,0\n1.01,0,0,9.8,0,0,0,1,0,0,0\n"), 0o644))

	c, rec := env.newContext(http.MethodPost, "/api/convert", mustJSON(t, jobs.Request{RootDir: root, Name: "rec.kbag"}))
	require.NoError(t, h.HandleStartConvert(c))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	var started struct {
		JobID string `json:"jobId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	require.NotEmpty(t, started.JobID)
	runner.Wait()

	c, rec = env.newContext(http.MethodGet, "/api/convert/"+started.JobID, nil, "jobId", started.JobID)
	require.NoError(t, h.HandleGetConvertJob(c))
	var job jobs.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	require.Equal(t, jobs.StatusComplete, job.Status, job.Error)
	assert.Equal(t, 2, job.Report.ImuCount)
	assert.Equal(t, "rec.kbag", job.FileInfo.Name)
	assert.Equal(t, 2, env.store.GetFileCount())

	c, rec = env.newContext(http.MethodDelete, "/api/convert/"+started.JobID, nil, "jobId", started.JobID)
	require.NoError(t, h.HandleCancelConvertJob(c))
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestConvertHandlerErrors(t *testing.T) {
	env := newTestEnv(t)
	runner := jobs.NewManager(filepath.Join(t.TempDir(), "work"), env.store, convert.Options{})
	h := NewConvertHandler(context.Background(), runner)

	c, _ := env.newContext(http.MethodPost, "/api/convert", []byte(`{}`))
	requireAPIError(t, h.HandleStartConvert(c), http.StatusBadRequest, "VALIDATION_ERROR")

	c, _ = env.newContext(http.MethodPost, "/api/convert", []byte(`{"rootDir":"/","skipLeading":-1}`))
	requireAPIError(t, h.HandleStartConvert(c), http.StatusBadRequest, "VALIDATION_ERROR")

	missing := filepath.Join(t.TempDir(), "missing")
	c, _ = env.newContext(http.MethodPost, "/api/convert", mustJSON(t, jobs.Request{RootDir: missing}))
	requireAPIError(t, h.HandleStartConvert(c), http.StatusBadRequest, "BAD_REQUEST")

	c, _ = env.newContext(http.MethodGet, "/api/convert/none", nil, "jobId", "none")
	requireAPIError(t, h.HandleGetConvertJob(c), http.StatusNotFound, "NOT_FOUND")

	c, _ = env.newContext(http.MethodDelete, "/api/convert/none", nil, "jobId", "none")
	requireAPIError(t, h.HandleCancelConvertJob(c), http.StatusNotFound, "NOT_FOUND")
}
