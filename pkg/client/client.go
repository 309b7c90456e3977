package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"
)

// Client talks to the gestures HTTP API.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	Logger   *slog.Logger // Optional logger for client operations
	TLS      *TLSClientConfig
	Insecure bool // Skip TLS verification
}

// TLSClientConfig holds TLS configuration for client
type TLSClientConfig struct {
	Enabled    bool   // Enable TLS
	CACert     string // CA certificate file path
	ClientCert string // Client certificate file
	ClientKey  string // Client private key file
	ServerName string // Server name for verification
	SkipVerify bool   // Skip certificate verification
}

const defaultBaseURL = "http://127.0.0.1:8090/api"

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: defaultBaseURL,
		Timeout: 10 * time.Second,
	}
}

// New creates a new API client.
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	transport := &http.Transport{}
	if config.TLS != nil && config.TLS.Enabled || config.Insecure {
		tlsConfig, err := setupClientTLS(config)
		if err != nil {
			config.Logger.Error("TLS setup failed", "error", err)
		} else {
			transport.TLSClientConfig = tlsConfig
		}
	}

	return &Client{
		baseURL: config.BaseURL,
		logger:  config.Logger,
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
	}
}

// IsReachable checks if the daemon is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		c.logger.Debug("Failed to create request for reachability check", "error", err)
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("Daemon unreachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	ok := resp.StatusCode == http.StatusOK
	c.logger.Debug("Daemon reachability check", "reachable", ok, "status", resp.StatusCode)
	return ok
}

func (c *Client) Status(ctx context.Context) (Status, error) {
	var out Status
	err := c.do(ctx, http.MethodGet, "/status", nil, &out)
	return out, err
}

func (c *Client) List(ctx context.Context) (ListResponse, error) {
	var out ListResponse
	err := c.do(ctx, http.MethodGet, "/gestures", nil, &out)
	return out, err
}

func (c *Client) Get(ctx context.Context, id string) (Recording, error) {
	var out Recording
	err := c.do(ctx, http.MethodGet, gesturePath(id), nil, &out)
	return out, err
}

func (c *Client) StartRecording(ctx context.Context) (Started, error) {
	var out Started
	err := c.do(ctx, http.MethodPost, "/recording/start", nil, &out)
	return out, err
}

func (c *Client) StopRecording(ctx context.Context, req StopRequest) (StopResponse, error) {
	var out StopResponse
	err := c.do(ctx, http.MethodPost, "/recording/stop", req, &out)
	return out, err
}

func (c *Client) Play(ctx context.Context, id string) (Started, error) {
	var out Started
	err := c.do(ctx, http.MethodPost, gesturePath(id)+"/play", nil, &out)
	return out, err
}

// StopPlayback reports whether a playback was running.
func (c *Client) StopPlayback(ctx context.Context) (bool, error) {
	var out struct {
		Stopped bool `json:"stopped"`
	}
	err := c.do(ctx, http.MethodPost, "/playback/stop", nil, &out)
	return out.Stopped, err
}

func (c *Client) Select(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, gesturePath(id)+"/select", nil, nil)
}

func (c *Client) Rename(ctx context.Context, id, name string) (Summary, error) {
	var out Summary
	err := c.do(ctx, http.MethodPatch, gesturePath(id), map[string]string{"name": name}, &out)
	return out, err
}

func (c *Client) Duplicate(ctx context.Context, id string) (Summary, error) {
	var out Summary
	err := c.do(ctx, http.MethodPost, gesturePath(id)+"/duplicate", nil, &out)
	return out, err
}

func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, gesturePath(id), nil, nil)
}

func (c *Client) Clear(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/gestures", nil, nil)
}

// Export returns the raw library document.
func (c *Client) Export(ctx context.Context) ([]byte, error) {
	return c.raw(ctx, http.MethodGet, "/export", nil)
}

// Import replaces the library with doc and returns how many recordings it held.
func (c *Client) Import(ctx context.Context, doc []byte) (int, error) {
	body, err := c.raw(ctx, http.MethodPost, "/import", doc)
	if err != nil {
		return 0, err
	}
	var out struct {
		Imported int `json:"imported"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}
	return out.Imported, nil
}

// Emit publishes a raw event on the daemon's bus.
func (c *Client) Emit(ctx context.Context, eventType string, payload map[string]any) error {
	body := map[string]any{"type": eventType, "payload": payload}
	return c.do(ctx, http.MethodPost, "/events", body, nil)
}

// Cue fires a cue trigger for the given recording.
func (c *Client) Cue(ctx context.Context, gestureID string) error {
	return c.do(ctx, http.MethodPost, "/cues", map[string]string{"gestureId": gestureID}, nil)
}

func (c *Client) Parameters(ctx context.Context) ([]Parameter, error) {
	var out []Parameter
	err := c.do(ctx, http.MethodGet, "/parameters", nil, &out)
	return out, err
}

func (c *Client) SetParameter(ctx context.Context, name string, value float64) (Parameter, error) {
	var out Parameter
	err := c.do(ctx, http.MethodPut, "/parameters/"+url.PathEscape(name), map[string]float64{"value": value}, &out)
	return out, err
}

func gesturePath(id string) string { return "/gestures/" + url.PathEscape(id) }

// setupClientTLS configures TLS settings for HTTP client
func setupClientTLS(config Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{}

	if config.Insecure {
		tlsConfig.InsecureSkipVerify = true
		return tlsConfig, nil
	}

	if config.TLS != nil {
		if config.TLS.SkipVerify {
			tlsConfig.InsecureSkipVerify = true
		}
		if config.TLS.ServerName != "" {
			tlsConfig.ServerName = config.TLS.ServerName
		}
		if config.TLS.CACert != "" {
			if err := loadCACert(tlsConfig, config.TLS.CACert); err != nil {
				return nil, fmt.Errorf("failed to load CA certificate: %w", err)
			}
		}
		if config.TLS.ClientCert != "" && config.TLS.ClientKey != "" {
			cert, err := tls.LoadX509KeyPair(config.TLS.ClientCert, config.TLS.ClientKey)
			if err != nil {
				return nil, fmt.Errorf("failed to load client certificate: %w", err)
			}
			tlsConfig.Certificates = []tls.Certificate{cert}
		}
	}

	return tlsConfig, nil
}

// loadCACert loads CA certificate from file and adds it to TLS config
func loadCACert(tlsConfig *tls.Config, caCertPath string) error {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return fmt.Errorf("failed to read CA certificate file: %w", err)
	}
	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return fmt.Errorf("failed to parse CA certificate")
	}
	tlsConfig.RootCAs = caCertPool
	return nil
}

// do sends in as JSON (when non-nil) and decodes the response into out
// (when non-nil).
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = data
	}
	resp, err := c.raw(ctx, method, path, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// raw performs the request and returns the response body of a 2xx reply.
func (c *Client) raw(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	u := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("HTTP request failed", "error", err, "url", u)
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := decodeError(resp.StatusCode, data)
		c.logger.Debug("API request failed", "error", apiErr, "status", resp.StatusCode, "url", u)
		return nil, apiErr
	}
	return data, nil
}
