package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"NANOCL_ENV", "NANOCL_HOSTNAME", "NANOCL_GATEWAY", "NANOCL_STATE_DIR",
		"NANOCL_ENGINE_ENDPOINT", "NANOCL_STORE_ENDPOINT", "NANOCL_LISTEN",
		"NANOCL_UPDATE_DRAIN", "NANOCL_EVENT_QUEUE_CAPACITY",
	} {
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Development, cfg.Env)
	assert.Equal(t, 4*time.Second, cfg.UpdateDrain)
	assert.Equal(t, 100, cfg.EventQueueCapacity)
	assert.NoError(t, cfg.Validate())
}

func TestLoadRejectsUnknownEnvironment(t *testing.T) {
	clearEnv(t)
	os.Setenv("NANOCL_ENV", "staging")
	defer os.Unsetenv("NANOCL_ENV")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsBadDrainDuration(t *testing.T) {
	clearEnv(t)
	os.Setenv("NANOCL_UPDATE_DRAIN", "not-a-duration")
	defer os.Unsetenv("NANOCL_UPDATE_DRAIN")
	_, err := Load()
	assert.Error(t, err)
}
