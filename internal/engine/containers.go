package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/nanocl-io/nanocld/internal/nerr"
)

// RestartPolicy mirrors the engine wire shape for a container's restart
// behavior.
type RestartPolicy struct {
	Name              string `json:"Name,omitempty"`
	MaximumRetryCount int    `json:"MaximumRetryCount,omitempty"`
}

// HostConfig is the subset of the engine's host configuration the process
// layer sets.
type HostConfig struct {
	NetworkMode   string         `json:"NetworkMode,omitempty"`
	RestartPolicy *RestartPolicy `json:"RestartPolicy,omitempty"`
	AutoRemove    bool           `json:"AutoRemove,omitempty"`
	CapAdd        []string       `json:"CapAdd,omitempty"`
	CapDrop       []string       `json:"CapDrop,omitempty"`
	Binds         []string       `json:"Binds,omitempty"`
}

// ContainerConfig is the engine's container creation payload.
type ContainerConfig struct {
	Image        string            `json:"Image"`
	Cmd          []string          `json:"Cmd,omitempty"`
	Entrypoint   []string          `json:"Entrypoint,omitempty"`
	Env          []string          `json:"Env,omitempty"`
	Labels       map[string]string `json:"Labels,omitempty"`
	Hostname     string            `json:"Hostname,omitempty"`
	WorkingDir   string            `json:"WorkingDir,omitempty"`
	Tty          bool              `json:"Tty,omitempty"`
	AttachStdout bool              `json:"AttachStdout,omitempty"`
	AttachStderr bool              `json:"AttachStderr,omitempty"`
	HostConfig   *HostConfig       `json:"HostConfig,omitempty"`
}

// CreateResponse is returned by container creation.
type CreateResponse struct {
	ID       string   `json:"Id"`
	Warnings []string `json:"Warnings,omitempty"`
}

// WaitResponse is returned by the wait endpoint once the container reaches
// the requested condition.
type WaitResponse struct {
	StatusCode int64 `json:"StatusCode"`
	Error      *struct {
		Message string `json:"Message"`
	} `json:"Error,omitempty"`
}

// InspectResponse is the subset of `docker inspect` output the daemon
// persists verbatim as a Process's Data snapshot.
type InspectResponse struct {
	ID      string          `json:"Id"`
	Name    string          `json:"Name"`
	State   json.RawMessage `json:"State"`
	Config  ContainerConfig `json:"Config"`
	Created string          `json:"Created"`
}

// CreateContainer creates a container with the given name and returns its
// engine-assigned id.
func (c *Client) CreateContainer(ctx context.Context, name string, cfg ContainerConfig) (CreateResponse, error) {
	var out CreateResponse
	path := "/containers/create?" + url.Values{"name": {name}}.Encode()
	body, _, err := c.do(ctx, "POST", path, cfg)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, nerr.Internal("decode create response", err)
	}
	return out, nil
}

// StartContainer starts a previously created container.
func (c *Client) StartContainer(ctx context.Context, id string) error {
	_, _, err := c.do(ctx, "POST", "/containers/"+id+"/start", nil)
	return err
}

// StopContainer stops a running container.
func (c *Client) StopContainer(ctx context.Context, id string) error {
	_, _, err := c.do(ctx, "POST", "/containers/"+id+"/stop", nil)
	return err
}

// WaitContainer blocks (within ctx's deadline) until the container reaches
// condition ("not-running" is what the lifecycle engine uses for init
// containers and job steps).
func (c *Client) WaitContainer(ctx context.Context, id, condition string) (WaitResponse, error) {
	var out WaitResponse
	path := fmt.Sprintf("/containers/%s/wait?%s", id, url.Values{"condition": {condition}}.Encode())
	body, _, err := c.do(ctx, "POST", path, nil)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, nerr.Internal("decode wait response", err)
	}
	return out, nil
}

// RemoveContainer deletes a container, optionally forcing removal of a
// running one.
func (c *Client) RemoveContainer(ctx context.Context, id string, force bool) error {
	path := "/containers/" + id + "?" + url.Values{"force": {fmt.Sprintf("%t", force)}}.Encode()
	_, _, err := c.do(ctx, "DELETE", path, nil)
	return err
}

// RenameContainer renames a container, used by the zero-downtime update
// protocol to free a stable name ahead of replacement (§4.4).
func (c *Client) RenameContainer(ctx context.Context, id, newName string) error {
	path := "/containers/" + id + "/rename?" + url.Values{"name": {newName}}.Encode()
	_, _, err := c.do(ctx, "POST", path, nil)
	return err
}

// InspectContainer fetches the full container inspect snapshot persisted as
// a Process's Data column.
func (c *Client) InspectContainer(ctx context.Context, id string) (InspectResponse, error) {
	var out InspectResponse
	body, _, err := c.do(ctx, "GET", "/containers/"+id+"/json", nil)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, nerr.Internal("decode inspect response", err)
	}
	return out, nil
}

// ListContainersByLabel lists containers whose labels match the given
// key=value filters, mirroring the label-based process queries §4.3
// describes.
func (c *Client) ListContainersByLabel(ctx context.Context, labels map[string]string, all bool) ([]InspectResponse, error) {
	filters := make(map[string][]string)
	for k, v := range labels {
		filters["label"] = append(filters["label"], fmt.Sprintf("%s=%s", k, v))
	}
	filterJSON, err := json.Marshal(filters)
	if err != nil {
		return nil, nerr.Internal("marshal label filter", err)
	}
	path := "/containers/json?" + url.Values{
		"all":     {fmt.Sprintf("%t", all)},
		"filters": {string(filterJSON)},
	}.Encode()
	body, _, err := c.do(ctx, "GET", path, nil)
	if err != nil {
		return nil, err
	}
	var out []InspectResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, nerr.Internal("decode container list", err)
	}
	return out, nil
}
