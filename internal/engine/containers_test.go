package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	c, err := New(Config{Endpoint: srv.URL})
	require.NoError(t, err)
	return c, srv
}

func TestCreateContainerReturnsID(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/containers/create")
		assert.Equal(t, "api-ab12cd.demo.c", r.URL.Query().Get("name"))
		_ = json.NewEncoder(w).Encode(CreateResponse{ID: "abc123"})
	})
	defer srv.Close()

	resp, err := c.CreateContainer(context.Background(), "api-ab12cd.demo.c", ContainerConfig{Image: "nginx"})
	require.NoError(t, err)
	assert.Equal(t, "abc123", resp.ID)
}

func TestWaitContainerDecodesStatusCode(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "not-running", r.URL.Query().Get("condition"))
		_ = json.NewEncoder(w).Encode(WaitResponse{StatusCode: 0})
	})
	defer srv.Close()

	resp, err := c.WaitContainer(context.Background(), "abc123", "not-running")
	require.NoError(t, err)
	assert.Equal(t, int64(0), resp.StatusCode)
}

func TestDoTranslatesNonOKStatus(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such container", http.StatusNotFound)
	})
	defer srv.Close()

	err := c.StartContainer(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such container")
}

func TestParseImageRefSplitsNameAndTag(t *testing.T) {
	name, tag := ParseImageRef("nginx:alpine")
	assert.Equal(t, "nginx", name)
	assert.Equal(t, "alpine", tag)

	name, tag = ParseImageRef("nginx")
	assert.Equal(t, "nginx", name)
	assert.Equal(t, "latest", tag)

	name, tag = ParseImageRef("registry:5000/nginx")
	assert.Equal(t, "registry:5000/nginx", name)
	assert.Equal(t, "latest", tag)
}
