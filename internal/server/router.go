package server

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/gestures/internal/bus"
	"github.com/loykin/gestures/internal/engine"
	"github.com/loykin/gestures/internal/library"
	"github.com/loykin/gestures/internal/param"
	"github.com/loykin/gestures/internal/take"
)

// SourceAPI tags parameter writes made over HTTP.
const SourceAPI = "api"

// maxImportBytes bounds POST /import bodies.
const maxImportBytes = 32 << 20

// Router provides embeddable HTTP handlers for the gesture engine.
// Endpoints (relative to basePath):
//
//	GET    /status
//	GET    /gestures                 summaries and selection
//	DELETE /gestures                 clear the library
//	GET    /gestures/:id
//	PATCH  /gestures/:id             body: {"name": "..."}
//	DELETE /gestures/:id
//	POST   /gestures/:id/play
//	POST   /gestures/:id/select
//	POST   /gestures/:id/duplicate
//	POST   /recording/start
//	POST   /recording/stop           body: {"discard": bool, "reason": "..."} (optional)
//	POST   /playback/stop
//	GET    /export
//	POST   /import                   body: exported document
//	POST   /events                   body: {"type": "...", "payload": {...}}
//	POST   /cues                     body: {"gestureId": "..."}
//	GET    /parameters
//	PUT    /parameters/:name         body: {"value": n}
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	eng      *engine.Engine
	bus      bus.Bus
	params   Parameters
	basePath string
}

// Parameters is the registry view served under /parameters.
type Parameters interface {
	Snapshot() []param.Value
	Get(name string) (param.Value, bool)
	Set(name string, value float64, source string) error
}

type Options struct {
	Engine     *engine.Engine
	Bus        bus.Bus    // target of POST /events; nil disables it
	Parameters Parameters // nil disables /parameters
	BasePath   string
}

func NewRouter(opts Options) *Router {
	return &Router{
		eng:      opts.Engine,
		bus:      opts.Bus,
		params:   opts.Parameters,
		basePath: sanitizeBase(opts.BasePath),
	}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	r.Register(g.Group(r.basePath))
	return g
}

// Register mounts the endpoints on an existing gin group.
func (r *Router) Register(group *gin.RouterGroup) {
	group.GET("/status", r.handleStatus)

	group.GET("/gestures", r.handleList)
	group.DELETE("/gestures", r.handleClear)
	group.GET("/gestures/:id", r.handleGet)
	group.PATCH("/gestures/:id", r.handleRename)
	group.DELETE("/gestures/:id", r.handleDelete)
	group.POST("/gestures/:id/play", r.handlePlay)
	group.POST("/gestures/:id/select", r.handleSelect)
	group.POST("/gestures/:id/duplicate", r.handleDuplicate)

	group.POST("/recording/start", r.handleRecordStart)
	group.POST("/recording/stop", r.handleRecordStop)
	group.POST("/playback/stop", r.handlePlaybackStop)

	group.GET("/export", r.handleExport)
	group.POST("/import", r.handleImport)

	group.POST("/events", r.handleEvent)
	group.POST("/cues", r.handleCue)

	group.GET("/parameters", r.handleParameters)
	group.PUT("/parameters/:name", r.handleSetParameter)
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr string, opts Options) (*http.Server, error) {
	r := NewRouter(opts)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type listResp struct {
	Gestures   []take.Summary `json:"gestures"`
	SelectedID *string        `json:"selectedId"`
}

type renameReq struct {
	Name string `json:"name"`
}

type stopReq struct {
	Discard bool   `json:"discard"`
	Reason  string `json:"reason"`
}

type stopResp struct {
	Saved     bool            `json:"saved"`
	Recording *take.Recording `json:"recording,omitempty"`
}

type playbackStopResp struct {
	Stopped bool `json:"stopped"`
}

type eventReq struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type cueReq struct {
	GestureID string `json:"gestureId"`
}

type paramReq struct {
	Value *float64 `json:"value"`
}

type importResp struct {
	Imported int `json:"imported"`
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, library.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrAlreadyRecording),
		errors.Is(err, engine.ErrNotRecording),
		errors.Is(err, engine.ErrEmptyRecording),
		errors.Is(err, library.ErrEmptyLibrary):
		return http.StatusConflict
	case errors.Is(err, library.ErrInvalidName),
		errors.Is(err, library.ErrInvalidImport):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeErr(c *gin.Context, err error) {
	writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
}

func (r *Router) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.eng.Status())
}

func (r *Router) handleList(c *gin.Context) {
	resp := listResp{Gestures: r.eng.Summaries()}
	if id := r.eng.SelectedID(); id != "" {
		resp.SelectedID = &id
	}
	writeJSON(c, http.StatusOK, resp)
}

func (r *Router) handleClear(c *gin.Context) {
	r.eng.Clear()
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleGet(c *gin.Context) {
	rec, ok := r.eng.Get(c.Param("id"))
	if !ok {
		writeErr(c, library.ErrNotFound)
		return
	}
	writeJSON(c, http.StatusOK, rec)
}

func (r *Router) handleRename(c *gin.Context) {
	var req renameReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	rec, err := r.eng.Rename(c.Param("id"), req.Name)
	if err != nil {
		writeErr(c, err)
		return
	}
	writeJSON(c, http.StatusOK, rec.Summary())
}

func (r *Router) handleDelete(c *gin.Context) {
	if err := r.eng.Delete(c.Param("id")); err != nil {
		writeErr(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handlePlay(c *gin.Context) {
	started, err := r.eng.Play(c.Param("id"))
	if err != nil {
		writeErr(c, err)
		return
	}
	writeJSON(c, http.StatusOK, started)
}

func (r *Router) handleSelect(c *gin.Context) {
	if !r.eng.Select(c.Param("id")) {
		writeErr(c, library.ErrNotFound)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleDuplicate(c *gin.Context) {
	rec, err := r.eng.Duplicate(c.Param("id"))
	if err != nil {
		writeErr(c, err)
		return
	}
	writeJSON(c, http.StatusOK, rec.Summary())
}

func (r *Router) handleRecordStart(c *gin.Context) {
	started, err := r.eng.StartRecording()
	if err != nil {
		writeErr(c, err)
		return
	}
	writeJSON(c, http.StatusOK, started)
}

func (r *Router) handleRecordStop(c *gin.Context) {
	var req stopReq
	// empty body means a plain manual stop
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
			return
		}
	}
	rec, saved, err := r.eng.StopRecording(engine.StopOptions{Reason: req.Reason, Discard: req.Discard})
	if err != nil {
		writeErr(c, err)
		return
	}
	resp := stopResp{Saved: saved}
	if saved {
		resp.Recording = &rec
	}
	writeJSON(c, http.StatusOK, resp)
}

func (r *Router) handlePlaybackStop(c *gin.Context) {
	writeJSON(c, http.StatusOK, playbackStopResp{Stopped: r.eng.StopPlayback()})
}

func (r *Router) handleExport(c *gin.Context) {
	doc, err := r.eng.Export()
	if err != nil {
		writeErr(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+library.ExportFilename+`"`)
	c.Data(http.StatusOK, "application/json", doc)
}

func (r *Router) handleImport(c *gin.Context) {
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxImportBytes))
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "read body: " + err.Error()})
		return
	}
	recs, err := r.eng.Import(data)
	if err != nil {
		writeErr(c, err)
		return
	}
	writeJSON(c, http.StatusOK, importResp{Imported: len(recs)})
}

func (r *Router) handleEvent(c *gin.Context) {
	if r.bus == nil {
		writeJSON(c, http.StatusNotImplemented, errorResp{Error: "event injection disabled"})
		return
	}
	var req eventReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	req.Type = strings.TrimSpace(req.Type)
	if req.Type == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "type required"})
		return
	}
	if req.Payload == nil {
		req.Payload = map[string]any{}
	}
	r.bus.Publish(req.Type, req.Payload)
	writeJSON(c, http.StatusAccepted, okResp{OK: true})
}

func (r *Router) handleCue(c *gin.Context) {
	var req cueReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if req.GestureID == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "gestureId required"})
		return
	}
	if _, ok := r.eng.Get(req.GestureID); !ok {
		writeErr(c, library.ErrNotFound)
		return
	}
	if err := r.eng.TriggerCue(engine.Cue{GestureID: req.GestureID}); err != nil {
		writeErr(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleParameters(c *gin.Context) {
	if r.params == nil {
		writeJSON(c, http.StatusOK, []param.Value{})
		return
	}
	writeJSON(c, http.StatusOK, r.params.Snapshot())
}

func (r *Router) handleSetParameter(c *gin.Context) {
	if r.params == nil {
		writeJSON(c, http.StatusNotImplemented, errorResp{Error: "parameter registry disabled"})
		return
	}
	var req paramReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if req.Value == nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "value required"})
		return
	}
	name := c.Param("name")
	if err := r.params.Set(name, *req.Value, SourceAPI); err != nil {
		writeJSON(c, http.StatusNotFound, errorResp{Error: err.Error()})
		return
	}
	v, _ := r.params.Get(name)
	writeJSON(c, http.StatusOK, v)
}
