package nerr

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotFoundDetails(t *testing.T) {
	err := NotFound("cargo", "api.demo")
	require.Equal(t, http.StatusNotFound, err.HTTPStatus)
	assert.Equal(t, "cargo", err.Details["kind"])
	assert.Equal(t, "api.demo", err.Details["key"])
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Internal("store unavailable", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestAsAndHTTPStatus(t *testing.T) {
	wrapped := fmtWrap(Conflict("namespace not empty"))
	got := As(wrapped)
	require.NotNil(t, got)
	assert.Equal(t, http.StatusConflict, HTTPStatus(wrapped))
}

func fmtWrap(err error) error {
	return errors.Join(err)
}

func TestHTTPStatusDefaultsInternal(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("plain")))
}
