// Package gestures records live control-event streams as named takes and
// replays them with millisecond timing. Service assembles the engine, its
// store, history sinks and HTTP API from a Config.
package gestures

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/gestures/internal/bus"
	cfg "github.com/loykin/gestures/internal/config"
	"github.com/loykin/gestures/internal/engine"
	"github.com/loykin/gestures/internal/history"
	hfactory "github.com/loykin/gestures/internal/history/factory"
	"github.com/loykin/gestures/internal/library"
	"github.com/loykin/gestures/internal/metrics"
	"github.com/loykin/gestures/internal/param"
	iapi "github.com/loykin/gestures/internal/server"
	"github.com/loykin/gestures/internal/store"
	sfactory "github.com/loykin/gestures/internal/store/factory"
	"github.com/loykin/gestures/internal/take"
)

// Re-export core types for external consumers.

type Config = cfg.Config

type Engine = engine.Engine

type Recording = take.Recording

type Event = take.Event

type Payload = take.Payload

type Summary = take.Summary

type Status = engine.Status

type StopOptions = engine.StopOptions

type ParamDef = param.Def

type HistorySink = history.Sink

// Bus is the publish/subscribe port the engine listens on.
type Bus = bus.Bus

// Service is a running engine plus everything it was built from.
type Service struct {
	Config *Config
	Logger *slog.Logger
	Bus    *bus.Local
	Params *param.Memory
	Store  store.Store
	Engine *Engine

	closers []io.Closer
}

// LoadConfig reads a TOML config file; an empty path yields the defaults.
func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config { return cfg.Default() }

// Open builds the logger, store, history sinks and engine described by c and
// loads the persisted library. A nil c loads the defaults with GESTURES_*
// environment overrides. extra sinks are appended to the configured ones.
func Open(ctx context.Context, c *Config, extra ...HistorySink) (*Service, error) {
	if c == nil {
		loaded, err := cfg.Load("")
		if err != nil {
			return nil, err
		}
		c = loaded
	}
	s := &Service{Config: c}

	logger, logCloser := c.Log.NewSlogger()
	s.Logger = logger
	s.closers = append(s.closers, logCloser)

	st, err := sfactory.NewFromDSN(c.Store.DSN)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}
	s.Store = st
	s.closers = append(s.closers, st)
	if err := st.EnsureSchema(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("ensure store schema: %w", err)
	}

	var sinks history.Multi
	if c.History.Enabled {
		configured, closer, err := hfactory.NewSinks(c.History.Sinks)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		sinks = append(sinks, configured...)
		s.closers = append(s.closers, closer)
	}
	sinks = append(sinks, extra...)

	s.Bus = bus.NewLocal(logger.With("component", "bus"))
	s.Params = param.NewMemory(c.Parameters...)

	lib := library.New(library.Options{
		Store:      st,
		Key:        c.Engine.StorageKey,
		NamePrefix: c.Engine.NamePrefix,
		Logger:     logger.With("component", "library"),
	})
	opts := engine.Options{
		Bus:            s.Bus,
		Library:        lib,
		Registry:       s.Params,
		Logger:         logger.With("component", "engine"),
		MaxDuration:    c.Engine.MaxDuration,
		MaxEvents:      c.Engine.MaxEvents,
		CaptureSources: c.Engine.CaptureSources,
		PersistTimeout: c.Engine.PersistTimeout,
	}
	if len(sinks) > 0 {
		opts.History = sinks
	}
	s.Engine = engine.New(opts)
	if err := s.Engine.Load(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	logger.Info("gesture engine ready",
		"store", redactDSN(c.Store.DSN),
		"recordings", lib.Len(),
		"history_sinks", len(sinks),
	)
	return s, nil
}

// Router returns the HTTP API bound to this service.
func (s *Service) Router() *iapi.Router {
	return iapi.NewRouter(iapi.Options{
		Engine:     s.Engine,
		Bus:        s.Bus,
		Parameters: s.Params,
		BasePath:   s.Config.Server.BasePath,
	})
}

// Handler is Router().Handler().
func (s *Service) Handler() http.Handler { return s.Router().Handler() }

// Close detaches the engine, discarding any active take, and releases the
// store, sinks and log file.
func (s *Service) Close() error {
	var errs []error
	if s.Engine != nil {
		errs = append(errs, s.Engine.Close())
		s.Engine = nil
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i].Close())
	}
	s.closers = nil
	return errors.Join(errs...)
}

// NewHTTPServer starts an HTTP server exposing the API of s.
func NewHTTPServer(addr string, s *Service) (*http.Server, error) {
	return iapi.NewServer(addr, iapi.Options{
		Engine:     s.Engine,
		Bus:        s.Bus,
		Parameters: s.Params,
		BasePath:   s.Config.Server.BasePath,
	})
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// NewMetricsServer returns an unstarted server exposing /metrics from the
// default registry.
func NewMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// redactDSN masks passwords in URL-style DSNs before logging.
func redactDSN(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.User != nil {
		return u.Redacted()
	}
	return dsn
}
