// Package engine is a small Docker-Engine-compatible HTTP client: container
// create/start/stop/wait/remove/rename, image create/inspect, attach, logs,
// stats (§6). It is modeled on the teacher's hand-rolled service client
// (Config/New, http.Client with a configurable timeout, a do() helper that
// reads and classifies the response) rather than adopting the docker/docker
// SDK, which nothing in the example pack actually imports (see DESIGN.md).
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nanocl-io/nanocld/internal/nerr"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultMaxBodyByte = 10 << 20 // 10MiB, generous for inspect payloads
	apiVersion         = "v1.43"
)

// Config configures a Client.
type Config struct {
	// Endpoint is "unix:///var/run/docker.sock" or "tcp://host:port".
	Endpoint     string
	Timeout      time.Duration
	HTTPClient   *http.Client
	MaxBodyBytes int64
}

// Client talks to the container engine's HTTP API over a Unix socket or TCP.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	maxBodyBytes int64
}

// New builds a Client for the engine endpoint. No connection is made until
// the first request.
func New(cfg Config) (*Client, error) {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyByte
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	baseURL := "http://engine"
	if strings.HasPrefix(cfg.Endpoint, "unix://") {
		sockPath := strings.TrimPrefix(cfg.Endpoint, "unix://")
		httpClient.Transport = &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", sockPath)
			},
		}
	} else if cfg.Endpoint != "" {
		u, err := url.Parse(cfg.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("engine: invalid endpoint %q: %w", cfg.Endpoint, err)
		}
		baseURL = "http://" + u.Host
	}

	return &Client{
		baseURL:      baseURL + "/" + apiVersion,
		httpClient:   httpClient,
		maxBodyBytes: maxBody,
	}, nil
}

// do executes an HTTP request against the engine and returns the raw body,
// translating non-2xx responses into the nerr taxonomy.
func (c *Client) do(ctx context.Context, method, path string, body interface{}) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, 0, nerr.Internal("marshal engine request", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, nerr.Internal("build engine request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, nerr.Internal(fmt.Sprintf("engine call %s %s", method, path), err)
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, c.maxBodyBytes)
	respBody, err := io.ReadAll(limited)
	if err != nil {
		return nil, resp.StatusCode, nerr.Internal("read engine response", err)
	}

	if resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(respBody))
		if msg == "" {
			msg = resp.Status
		}
		return respBody, resp.StatusCode, nerr.Internal(fmt.Sprintf("engine %s %s: %s", method, path, msg), fmt.Errorf("status %d", resp.StatusCode))
	}

	return respBody, resp.StatusCode, nil
}
