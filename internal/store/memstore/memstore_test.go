package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/nanocl-io/nanocld/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type demoProcess struct {
	Key       string            `json:"key"`
	Labels    map[string]string `json:"labels"`
	CreatedAt time.Time         `json:"created_at"`
}

func demoStore() *Store[demoProcess] {
	return New(Mapper[demoProcess]{
		Kind:      "process",
		PK:        func(d demoProcess) string { return d.Key },
		CreatedAt: func(d demoProcess) time.Time { return d.CreatedAt },
	})
}

func TestCreateAndReadByPK(t *testing.T) {
	s := demoStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, demoProcess{Key: "api.demo", CreatedAt: time.Now()}))

	got, err := s.ReadByPK(ctx, "api.demo")
	require.NoError(t, err)
	assert.Equal(t, "api.demo", got.Key)

	_, err = s.ReadByPK(ctx, "missing")
	assert.Error(t, err)
}

func TestReadByContainsFallback(t *testing.T) {
	s := demoStore()
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, s.Create(ctx, demoProcess{
		Key:       "api-ab12cd.demo.c",
		Labels:    map[string]string{"io.nanocl.c": "api.demo", "io.nanocl.n": "demo"},
		CreatedAt: now,
	}))
	require.NoError(t, s.Create(ctx, demoProcess{
		Key:       "db-ef34gh.demo.c",
		Labels:    map[string]string{"io.nanocl.c": "db.demo", "io.nanocl.n": "demo"},
		CreatedAt: now.Add(time.Second),
	}))

	f := store.NewFilter().With("labels", store.Contains(map[string]string{"io.nanocl.c": "api.demo"}))
	got, err := s.ReadBy(ctx, f)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "api-ab12cd.demo.c", got[0].Key)
}

func TestDeleteByPK(t *testing.T) {
	s := demoStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, demoProcess{Key: "tmp-api.demo.c", CreatedAt: time.Now()}))
	require.NoError(t, s.DeleteByPK(ctx, "tmp-api.demo.c"))
	_, err := s.ReadByPK(ctx, "tmp-api.demo.c")
	assert.Error(t, err)
}
