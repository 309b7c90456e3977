package gestures

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/gestures/internal/engine"
	"github.com/loykin/gestures/internal/history"
	hsqlite "github.com/loykin/gestures/internal/history/sqlite"
)

type recordingSink struct {
	mu     sync.Mutex
	events []history.Event
}

func (r *recordingSink) Send(_ context.Context, e history.Event) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	return nil
}

func (r *recordingSink) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func sqliteConfig(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()
	c := DefaultConfig()
	c.Store.DSN = "sqlite://" + filepath.Join(dir, "state.db")
	c.History.Enabled = true
	c.History.Sinks = []string{"sqlite://" + filepath.Join(dir, "history.db")}
	c.Parameters = []ParamDef{{Name: "hue", Min: 0, Max: 360}}
	return c
}

func TestServicePersistsAcrossRestarts(t *testing.T) {
	ctx := context.Background()
	c := sqliteConfig(t)
	extra := &recordingSink{}

	svc, err := Open(ctx, c, extra)
	require.NoError(t, err)

	_, err = svc.Engine.StartRecording()
	require.NoError(t, err)
	svc.Bus.Publish(engine.TopicPadUpdate, map[string]any{"param": "hue", "normalized": 0.5})
	rec, saved, err := svc.Engine.StopRecording(StopOptions{})
	require.NoError(t, err)
	require.True(t, saved)
	assert.Equal(t, 2, extra.len(), "recording start and stop reach extra sinks")
	require.NoError(t, svc.Close())

	svc, err = Open(ctx, c)
	require.NoError(t, err)
	defer func() { _ = svc.Close() }()
	got, ok := svc.Engine.Get(rec.ID)
	require.True(t, ok)
	assert.Equal(t, rec.Name, got.Name)
	assert.Equal(t, rec.ID, svc.Engine.SelectedID())

	hs, err := hsqlite.New(c.History.Sinks[0])
	require.NoError(t, err)
	defer func() { _ = hs.Close() }()
	n, err := hs.Count(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestServiceHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, err := Open(context.Background(), nil)
	require.NoError(t, err)
	defer func() { _ = svc.Close() }()

	rec := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"idle"`)
}

func TestOpenRejectsBadStore(t *testing.T) {
	c := DefaultConfig()
	c.Store.DSN = "redis://nowhere"
	_, err := Open(context.Background(), c)
	assert.Error(t, err)

	c = DefaultConfig()
	c.History.Enabled = true
	c.History.Sinks = []string{"kafka://broker"}
	_, err = Open(context.Background(), c)
	assert.Error(t, err)
}

func TestOpenNilConfigReportsInvalidEnv(t *testing.T) {
	t.Setenv("GESTURES_ENGINE_MAX_EVENTS", "0")
	var err error
	require.NotPanics(t, func() { _, err = Open(context.Background(), nil) })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine.max_events")
}

func TestMetricsServer(t *testing.T) {
	require.NoError(t, RegisterMetrics(prometheus.NewRegistry()))
	srv := NewMetricsServer(":0")
	assert.Equal(t, 10*time.Second, srv.ReadTimeout)

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRedactDSN(t *testing.T) {
	assert.Equal(t, "postgres://user:xxxxx@db/gestures", redactDSN("postgres://user:secret@db/gestures"))
	assert.Equal(t, "memory://", redactDSN("memory://"))
	assert.Equal(t, "/var/lib/state.db", redactDSN("/var/lib/state.db"))
}
