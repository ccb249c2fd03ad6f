package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/nanocl-io/nanocld/internal/nerr"
)

// InspectImage returns nil error if the image is already present locally.
func (c *Client) InspectImage(ctx context.Context, name string) error {
	_, _, err := c.do(ctx, "GET", "/images/"+url.PathEscape(name)+"/json", nil)
	return err
}

// ImagePullProgress is one line of the streaming pull response.
type ImagePullProgress struct {
	Status   string `json:"status"`
	Progress string `json:"progress,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ParseImageRef splits "name:tag" (defaulting tag to "latest"), the way
// utils::container_image::parse_name does in the original implementation.
func ParseImageRef(ref string) (name, tag string) {
	idx := strings.LastIndex(ref, ":")
	// Guard against registry ports ("host:5000/repo") being mistaken for a
	// tag separator: only treat the last ':' as a tag delimiter when nothing
	// after it contains a '/'.
	if idx < 0 || strings.Contains(ref[idx:], "/") {
		return ref, "latest"
	}
	return ref[:idx], ref[idx+1:]
}

// PullImage streams an image pull, invoking onProgress for each decoded
// status line. Callers use this to emit ContainerImage events (§4.4
// download_image).
func (c *Client) PullImage(ctx context.Context, name, tag string, onProgress func(ImagePullProgress)) error {
	path := "/images/create?" + url.Values{"fromImage": {name}, "tag": {tag}}.Encode()
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, nil)
	if err != nil {
		return nerr.Internal("build image pull request", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nerr.Internal("image pull request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nerr.Internal("image pull failed", nil)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var chunk ImagePullProgress
		if err := json.Unmarshal(scanner.Bytes(), &chunk); err != nil {
			continue
		}
		if chunk.Error != "" {
			return nerr.Internal("image pull: "+chunk.Error, nil)
		}
		if onProgress != nil {
			onProgress(chunk)
		}
	}
	return scanner.Err()
}
