package resourcekind

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nanocl-io/nanocld/internal/nerr"
)

// ControllerClient calls a resource-kind controller's apply_rule/
// delete_rule RPC over HTTP (§4.5, §6), mirroring internal/engine.Client's
// do()-style request/response handling.
type ControllerClient struct {
	httpClient *http.Client
}

// NewControllerClient returns a client with a sensible default timeout; the
// controller URL is supplied per call since it comes from the resource
// kind's registered version, not from daemon configuration.
func NewControllerClient() *ControllerClient {
	return &ControllerClient{httpClient: &http.Client{Timeout: 15 * time.Second}}
}

type applyRuleRequest struct {
	Version string          `json:"version"`
	Name    string          `json:"name"`
	Config  json.RawMessage `json:"config"`
}

type deleteRuleRequest struct {
	Version string `json:"version"`
	Name    string `json:"name"`
}

// ApplyRule calls apply_rule(version, name, config) at url and returns the
// controller's substituted config (§4.5: "substitute its returned config
// into the resource before persisting").
func (c *ControllerClient) ApplyRule(ctx context.Context, url, version, name string, config json.RawMessage) (json.RawMessage, error) {
	body, err := json.Marshal(applyRuleRequest{Version: version, Name: name, Config: config})
	if err != nil {
		return nil, nerr.Internal("marshal apply_rule request", err)
	}
	resp, err := c.do(ctx, url+"/apply_rule", body)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// DeleteRule calls delete_rule(version, name) at url. Callers treat failure
// as best effort: log it, never propagate (§4.5 hook_delete).
func (c *ControllerClient) DeleteRule(ctx context.Context, url, version, name string) error {
	body, err := json.Marshal(deleteRuleRequest{Version: version, Name: name})
	if err != nil {
		return nerr.Internal("marshal delete_rule request", err)
	}
	_, err = c.do(ctx, url+"/delete_rule", body)
	return err
}

func (c *ControllerClient) do(ctx context.Context, url string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, nerr.Internal("build controller request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nerr.Internal("call resource kind controller", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nerr.Internal("read controller response", err)
	}
	if resp.StatusCode >= 300 {
		return nil, nerr.Internal(fmt.Sprintf("controller returned status %d", resp.StatusCode), fmt.Errorf("%s", string(respBody)))
	}
	return respBody, nil
}
