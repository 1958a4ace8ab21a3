package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"coursechat/internal/database"
	"coursechat/internal/registry"
	dbconfig "coursechat/pkg/database"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	m, err := database.NewManager(&dbconfig.Config{
		DatabasePath:    filepath.Join(t.TempDir(), "api.db"),
		MaxConnections:  2,
		ConnMaxLifetime: time.Minute,
		ConnMaxIdleTime: time.Minute,
	}, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	return NewServer(m, registry.NewRegistry(testLogger()), testLogger())
}

func TestHandleHealth(t *testing.T) {
	req := require.New(t)

	srv := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	req.Equal(http.StatusOK, rec.Code)
	req.Equal("application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Status   string         `json:"status"`
		Time     string         `json:"time"`
		Registry map[string]int `json:"registry"`
	}
	req.NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	req.Equal("ok", body.Status)
	req.NotEmpty(body.Time)
	req.Equal(map[string]int{"groups": 0, "members": 0}, body.Registry)
}

func TestHandleHealthRejectsNonGet(t *testing.T) {
	srv := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.HandleHealth(rec, httptest.NewRequest(http.MethodPost, "/health", nil))

	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
