package engine

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/url"

	"github.com/nanocl-io/nanocld/internal/nerr"
)

// LogsStream opens a streaming connection to a container's stdout/stderr.
// The caller owns the returned ReadCloser and must close it.
func (c *Client) LogsStream(ctx context.Context, id string, follow bool) (io.ReadCloser, error) {
	path := "/containers/" + id + "/logs?" + url.Values{
		"stdout": {"true"},
		"stderr": {"true"},
		"follow": {boolStr(follow)},
	}.Encode()
	return c.openStream(ctx, "GET", path)
}

// StatsStream opens a streaming connection to a container's resource usage
// samples (GET /processes/{kind}/{name}/stats, §4.7).
func (c *Client) StatsStream(ctx context.Context, id string, stream bool) (io.ReadCloser, error) {
	path := "/containers/" + id + "/stats?" + url.Values{"stream": {boolStr(stream)}}.Encode()
	return c.openStream(ctx, "GET", path)
}

// AttachStream opens the bidirectional attach stream (stdin/stdout/stderr)
// the WebSocket VM-attach bridge relays (§4.7). The returned connection
// implements io.ReadWriteCloser via the underlying hijacked HTTP connection.
func (c *Client) AttachStream(ctx context.Context, id string) (io.ReadWriteCloser, error) {
	path := "/containers/" + id + "/attach?" + url.Values{
		"stream": {"true"},
		"stdin":  {"true"},
		"stdout": {"true"},
		"stderr": {"true"},
	}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, nil)
	if err != nil {
		return nil, nerr.Internal("build attach request", err)
	}
	req.Header.Set("Upgrade", "tcp")
	req.Header.Set("Connection", "Upgrade")

	transport, ok := c.httpClient.Transport.(*http.Transport)
	if !ok || transport == nil {
		return nil, nerr.Internal("attach requires a hijackable transport", nil)
	}
	conn, err := transport.DialContext(ctx, "tcp", "")
	if err != nil {
		return nil, nerr.Internal("dial engine for attach", err)
	}
	if err := req.Write(conn); err != nil {
		conn.Close()
		return nil, nerr.Internal("write attach request", err)
	}
	return conn, nil
}

func (c *Client) openStream(ctx context.Context, method, path string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, nerr.Internal("build stream request", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nerr.Internal("open stream", err)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, nerr.Internal("stream request failed: "+string(body), nil)
	}
	return resp.Body, nil
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// ScanLines wraps a stream in a bufio.Scanner for newline-delimited readers
// (engine logs, event bus consumers).
func ScanLines(r io.Reader) *bufio.Scanner {
	return bufio.NewScanner(r)
}
