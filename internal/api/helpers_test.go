package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/HarborC/kalibrlib/internal/export"
	"github.com/HarborC/kalibrlib/internal/session"
	"github.com/HarborC/kalibrlib/internal/testutil"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

const sampleFileID = "file-1"

type testEnv struct {
	e        *echo.Echo
	store    *testutil.MockStorage
	sessions *session.Manager
	exports  *session.ExportStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := testutil.NewMockStorage(t.TempDir())
	store.AddFile(sampleFileID, "sample.kbag", testutil.SampleContainer(t))

	sessions := session.NewManager(4)
	t.Cleanup(sessions.CloseAll)

	exports, err := session.NewExportStore(t.TempDir(), export.StoreOptions{Threads: 1, BatchSize: 16})
	require.NoError(t, err)

	return &testEnv{e: echo.New(), store: store, sessions: sessions, exports: exports}
}

// newContext builds a handler context; params are name/value pairs.
func (env *testEnv) newContext(method, target string, body []byte, params ...string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := env.e.NewContext(req, rec)
	if len(params) > 0 {
		var names, values []string
		for i := 0; i+1 < len(params); i += 2 {
			names = append(names, params[i])
			values = append(values, params[i+1])
		}
		c.SetParamNames(names...)
		c.SetParamValues(values...)
	}
	return c, rec
}

func (env *testEnv) openReader(t *testing.T, body string) string {
	t.Helper()
	h := NewReaderHandler(env.store, env.sessions, env.exports, 20)
	c, rec := env.newContext("POST", "/api/readers", []byte(body))
	require.NoError(t, h.HandleOpenReader(c))

	var sess struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
	require.NotEmpty(t, sess.ID)
	return sess.ID
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

// requireAPIError asserts err is an APIError with the given status and code.
func requireAPIError(t *testing.T, err error, status int, code string) *APIError {
	t.Helper()
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "expected APIError, got %T: %v", err, err)
	require.Equal(t, status, apiErr.Status, apiErr.Message)
	require.Equal(t, code, apiErr.Code)
	return apiErr
}
