package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/gestures"
)

func startDaemon(t *testing.T) (string, *gestures.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := gestures.DefaultConfig()
	cfg.Parameters = []gestures.ParamDef{{Name: "hue", Min: 0, Max: 360}}
	svc, err := gestures.Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	ts := httptest.NewServer(svc.Handler())
	t.Cleanup(ts.Close)
	return ts.URL + "/api", svc
}

func run(t *testing.T, url string, args ...string) (string, error) {
	t.Helper()
	root := buildRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--api-url", url, "--api-timeout", "2s"}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestRecordEmitStopAndList(t *testing.T) {
	url, svc := startDaemon(t)

	out, err := run(t, url, "record", "start")
	require.NoError(t, err)
	assert.Contains(t, out, "recording Gesture 1")

	_, err = run(t, url, "record", "start")
	assert.EqualError(t, err, "already recording")

	_, err = run(t, url, "emit", "pad:update", "--payload", `{"param":"hue"}`, "--set", "normalized=0.25")
	require.NoError(t, err)

	out, err = run(t, url, "record", "stop")
	require.NoError(t, err)
	assert.Contains(t, out, "saved Gesture 1")
	assert.Contains(t, out, "1 events")

	_, err = run(t, url, "record", "stop")
	assert.EqualError(t, err, "not recording")

	recs := svc.Engine.Recordings()
	require.Len(t, recs, 1)
	assert.Equal(t, 0.25, recs[0].Events[0].Payload["normalized"])
	assert.Equal(t, "hue", recs[0].Events[0].Payload["param"])

	out, err = run(t, url, "list")
	require.NoError(t, err)
	var list struct {
		Gestures []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"gestures"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list.Gestures, 1)
	assert.Equal(t, recs[0].ID, list.Gestures[0].ID)
}

func TestRecordStopDiscard(t *testing.T) {
	url, svc := startDaemon(t)
	_, err := run(t, url, "record", "start")
	require.NoError(t, err)
	_, err = run(t, url, "emit", "pad:update", "--set", "normalized=1")
	require.NoError(t, err)
	out, err := run(t, url, "record", "stop", "--discard")
	require.NoError(t, err)
	assert.Contains(t, out, "nothing saved")
	assert.Equal(t, 0, svc.Engine.Library().Len())
}

func TestLibraryCommands(t *testing.T) {
	url, svc := startDaemon(t)
	id := svc.Engine.Library().Add(gestures.Recording{
		Name:     "Swell",
		Duration: time.Second,
		Events:   []gestures.Event{{Time: 500 * time.Millisecond, Type: "pad:update", Payload: gestures.Payload{"normalized": 0.5}}},
	}).ID

	out, err := run(t, url, "rename", id, "Big", "Swell")
	require.NoError(t, err)
	assert.Contains(t, out, `"name": "Big Swell"`)

	out, err = run(t, url, "duplicate", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Big Swell (copy)")

	_, err = run(t, url, "select", id)
	require.NoError(t, err)
	assert.Equal(t, id, svc.Engine.SelectedID())

	out, err = run(t, url, "show", id)
	require.NoError(t, err)
	assert.Contains(t, out, `"events"`)

	out, err = run(t, url, "play", id)
	require.NoError(t, err)
	assert.Contains(t, out, "playing Big Swell")
	out, err = run(t, url, "stop")
	require.NoError(t, err)
	assert.Contains(t, out, "playback stopped")

	out, err = run(t, url, "cue", id)
	require.NoError(t, err)
	assert.Contains(t, out, "cue sent")
	_, err = run(t, url, "cue", "gone")
	assert.Error(t, err)
	_, _ = run(t, url, "stop")

	file := filepath.Join(t.TempDir(), "lib.json")
	_, err = run(t, url, "export", "-o", file)
	require.NoError(t, err)

	_, err = run(t, url, "delete", id)
	require.NoError(t, err)
	_, err = run(t, url, "clear")
	require.NoError(t, err)
	assert.Equal(t, 0, svc.Engine.Library().Len())

	_, err = run(t, url, "export")
	assert.Error(t, err, "empty library cannot be exported")

	out, err = run(t, url, "import", file)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 2 gestures")

	_, err = run(t, url, "import", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestStatusAndParams(t *testing.T) {
	url, _ := startDaemon(t)
	out, err := run(t, url, "status")
	require.NoError(t, err)
	assert.Contains(t, out, `"state": "idle"`)

	out, err = run(t, url, "params", "hue", "42")
	require.NoError(t, err)
	assert.Contains(t, out, `"value": 42`)

	out, err = run(t, url, "params")
	require.NoError(t, err)
	assert.Contains(t, out, `"hue"`)

	_, err = run(t, url, "params", "hue")
	assert.Error(t, err)
	_, err = run(t, url, "params", "hue", "loud")
	assert.Error(t, err)
}

func TestEmitRejectsBadInput(t *testing.T) {
	url, _ := startDaemon(t)
	_, err := run(t, url, "emit", "pad:update", "--payload", "[1,2]")
	assert.Error(t, err)
	_, err = run(t, url, "emit", "pad:update", "--set", "novalue")
	assert.Error(t, err)
}

func TestAPIURLFromConfig(t *testing.T) {
	u, err := apiURL(&GlobalFlags{APIUrl: "http://host:1/api/"})
	require.NoError(t, err)
	assert.Equal(t, "http://host:1/api", u)

	u, err = apiURL(&GlobalFlags{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "http://127.0.0.1:8090"))

	p := filepath.Join(t.TempDir(), "g.toml")
	require.NoError(t, os.WriteFile(p, []byte("[server]\nlisten = \":9000\"\nbase_path = \"/v1\"\n"), 0o644))
	u, err = apiURL(&GlobalFlags{ConfigPath: p})
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9000/v1", u)

	_, err = apiURL(&GlobalFlags{ConfigPath: filepath.Join(t.TempDir(), "nope.toml")})
	assert.Error(t, err)
}

func TestParseKVs(t *testing.T) {
	kv, err := parseKVs([]string{"a=1.5", "b=true", "c=hue", "d="})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1.5, "b": true, "c": "hue", "d": ""}, kv)

	_, err = parseKVs([]string{"=1"})
	assert.Error(t, err)
}
