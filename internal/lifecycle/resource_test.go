package lifecycle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nanocl-io/nanocld/internal/domain"
	"github.com/nanocl-io/nanocld/internal/eventbus"
	"github.com/nanocl-io/nanocld/internal/resourcekind"
	"github.com/nanocl-io/nanocld/internal/store"
	"github.com/nanocl-io/nanocld/internal/store/memstore"
	"github.com/stretchr/testify/require"
)

func newTestResourceEngine(t *testing.T) (*ResourceEngine, store.Repo[domain.Resource], store.Repo[domain.ResourceKind]) {
	t.Helper()
	resources := memstore.New(memstore.Mapper[domain.Resource]{
		PK:        func(r domain.Resource) string { return r.Name },
		CreatedAt: func(domain.Resource) time.Time { return time.Now() },
		Kind:      "resource",
	})
	kinds := memstore.New(memstore.Mapper[domain.ResourceKind]{
		PK:        func(k domain.ResourceKind) string { return k.Name },
		CreatedAt: func(domain.ResourceKind) time.Time { return time.Now() },
		Kind:      "resource_kind",
	})
	bus := eventbus.New(10, time.Hour, nil)
	e := NewResourceEngine(resources, kinds, resourcekind.NewValidator(), resourcekind.NewControllerClient(), bus, "node-1", nil)
	return e, resources, kinds
}

func TestHookCreateBootstrapsKindMetaKind(t *testing.T) {
	e, resources, kinds := newTestResourceEngine(t)
	ctx := context.Background()

	config := []byte(`{"schema": {"type":"object","required":["domain"]}}`)
	resource := domain.Resource{Name: "ProxyRule", Kind: domain.KindMetaName, Version: "v1", Config: config}

	out, err := e.HookCreate(ctx, resource)
	require.NoError(t, err)
	require.Equal(t, "ProxyRule", out.Name)

	kind, err := kinds.ReadByPK(ctx, "ProxyRule")
	require.NoError(t, err)
	require.Len(t, kind.Versions, 1)
	require.True(t, kind.Versions[0].HasSchema())

	stored, err := resources.ReadByPK(ctx, "ProxyRule")
	require.NoError(t, err)
	require.Equal(t, domain.KindMetaName, stored.Kind)
}

func TestHookCreateAppendsVersionRowOnRepeatedKindCreate(t *testing.T) {
	e, _, kinds := newTestResourceEngine(t)
	ctx := context.Background()

	config := []byte(`{"schema": {"type":"object","required":["domain"]}}`)
	resource := domain.Resource{Name: "ProxyRule", Kind: domain.KindMetaName, Version: "v1", Config: config}

	_, err := e.HookCreate(ctx, resource)
	require.NoError(t, err)
	_, err = e.HookCreate(ctx, resource)
	require.NoError(t, err)

	kind, err := kinds.ReadByPK(ctx, "ProxyRule")
	require.NoError(t, err)
	require.Len(t, kind.Versions, 2, "kind create is idempotent on the kind but must append a version row each call")

	_, ok := kind.VersionFor("v1")
	require.True(t, ok)
}

func TestHookCreateValidatesAgainstRegisteredSchema(t *testing.T) {
	e, _, kinds := newTestResourceEngine(t)
	ctx := context.Background()

	schema := json.RawMessage(`{"type":"object","required":["domain"],"properties":{"domain":{"type":"string"}}}`)
	require.NoError(t, kinds.Create(ctx, domain.ResourceKind{
		Name:     "ProxyRule",
		Versions: []domain.ResourceKindVersion{{Version: "v1", Schema: schema}},
	}))

	_, err := e.HookCreate(ctx, domain.Resource{
		Name: "my-rule", Kind: "ProxyRule", Version: "v1", Config: []byte(`{}`),
	})
	require.Error(t, err, "missing required field should fail schema validation")

	out, err := e.HookCreate(ctx, domain.Resource{
		Name: "my-rule", Kind: "ProxyRule", Version: "v1", Config: []byte(`{"domain":"example.com"}`),
	})
	require.NoError(t, err)
	require.Equal(t, "my-rule", out.Name)
}

func TestHookCreateDelegatesToControllerAndSubstitutesConfig(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Contains(t, r.URL.Path, "/apply_rule")
		_, _ = w.Write([]byte(`{"domain":"rewritten.example.com"}`))
	}))
	defer srv.Close()

	e, resources, kinds := newTestResourceEngine(t)
	ctx := context.Background()
	require.NoError(t, kinds.Create(ctx, domain.ResourceKind{
		Name:     "ProxyRule",
		Versions: []domain.ResourceKindVersion{{Version: "v1", URL: srv.URL}},
	}))

	out, err := e.HookCreate(ctx, domain.Resource{
		Name: "my-rule", Kind: "ProxyRule", Version: "v1", Config: []byte(`{"domain":"example.com"}`),
	})
	require.NoError(t, err)
	require.JSONEq(t, `{"domain":"rewritten.example.com"}`, string(out.Config))

	stored, err := resources.ReadByPK(ctx, "my-rule")
	require.NoError(t, err)
	require.JSONEq(t, `{"domain":"rewritten.example.com"}`, string(stored.Config))
}

func TestHookDeleteCascadesKindVersions(t *testing.T) {
	e, resources, kinds := newTestResourceEngine(t)
	ctx := context.Background()

	config := []byte(`{"schema": {"type":"object"}}`)
	resource, err := e.HookCreate(ctx, domain.Resource{Name: "ProxyRule", Kind: domain.KindMetaName, Version: "v1", Config: config})
	require.NoError(t, err)

	require.NoError(t, e.HookDelete(ctx, resource))

	_, err = resources.ReadByPK(ctx, "ProxyRule")
	require.Error(t, err)
	_, err = kinds.ReadByPK(ctx, "ProxyRule")
	require.Error(t, err)
}
