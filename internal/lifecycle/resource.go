package lifecycle

import (
	"context"
	"encoding/json"

	"github.com/nanocl-io/nanocld/internal/domain"
	"github.com/nanocl-io/nanocld/internal/eventbus"
	"github.com/nanocl-io/nanocld/internal/nerr"
	"github.com/nanocl-io/nanocld/internal/resourcekind"
	"github.com/nanocl-io/nanocld/internal/store"
	"github.com/nanocl-io/nanocld/pkg/logger"
)

// ResourceEngine implements the typed resource hooks (§4.5): the "Kind"
// bootstrap meta-kind, JSON Schema validation, and delegation to a
// resource-kind controller's apply_rule/delete_rule RPC.
type ResourceEngine struct {
	resources  store.Repo[domain.Resource]
	kinds      store.Repo[domain.ResourceKind]
	validator  *resourcekind.Validator
	controller *resourcekind.ControllerClient
	bus        *eventbus.Bus
	node       string
	log        *logger.Logger
}

// NewResourceEngine wires the repositories, schema validator, and
// controller client a ResourceEngine needs.
func NewResourceEngine(
	resources store.Repo[domain.Resource],
	kinds store.Repo[domain.ResourceKind],
	validator *resourcekind.Validator,
	controller *resourcekind.ControllerClient,
	bus *eventbus.Bus,
	node string,
	log *logger.Logger,
) *ResourceEngine {
	if log == nil {
		log = logger.NewDefault("lifecycle.resource")
	}
	return &ResourceEngine{
		resources: resources, kinds: kinds, validator: validator, controller: controller,
		bus: bus, node: node, log: log,
	}
}

// HookCreate runs §4.5's hook_create: bootstrap a ResourceKind when
// kind=="Kind", otherwise validate against the resolved kind version
// (schema and/or controller delegation) before persisting.
func (e *ResourceEngine) HookCreate(ctx context.Context, resource domain.Resource) (domain.Resource, error) {
	if resource.Kind == domain.KindMetaName {
		if err := e.bootstrapKind(ctx, resource); err != nil {
			return domain.Resource{}, err
		}
		return e.persist(ctx, resource)
	}

	kind, err := e.kinds.ReadByPK(ctx, resource.Kind)
	if err != nil {
		return domain.Resource{}, err
	}
	version, ok := kind.VersionFor(resource.Version)
	if !ok {
		return domain.Resource{}, nerr.NotFound("resource kind version", resource.Kind+"/"+resource.Version)
	}

	if version.HasSchema() {
		if err := e.validator.Validate(version.Schema, resource.Config); err != nil {
			return domain.Resource{}, err
		}
	}
	if version.HasURL() {
		newConfig, err := e.controller.ApplyRule(ctx, version.URL, version.Version, resource.Name, resource.Config)
		if err != nil {
			return domain.Resource{}, err
		}
		resource.Config = newConfig
	}

	return e.persist(ctx, resource)
}

// HookDelete runs §4.5's hook_delete: best-effort delete_rule delegation,
// then (for kind=="Kind") cascades to remove the kind's versions and row.
func (e *ResourceEngine) HookDelete(ctx context.Context, resource domain.Resource) error {
	if resource.Kind != domain.KindMetaName {
		kind, err := e.kinds.ReadByPK(ctx, resource.Kind)
		if err == nil {
			if version, ok := kind.VersionFor(resource.Version); ok && version.HasURL() {
				if err := e.controller.DeleteRule(ctx, version.URL, version.Version, resource.Name); err != nil {
					e.log.WithError(err).WithField("resource", resource.Name).Warn("delete_rule call failed")
				}
			}
		}
	}

	if err := e.resources.DeleteByPK(ctx, resource.Name); err != nil {
		return err
	}

	if resource.Kind == domain.KindMetaName {
		if err := e.kinds.DeleteByPK(ctx, resource.Name); err != nil {
			e.log.WithError(err).WithField("kind", resource.Name).Warn("cascade kind delete failed")
		}
	}

	e.bus.SpawnEmit(buildEvent(domain.EventNormal, domain.ActionDestroy, domain.ReasonStateSync, e.node,
		domain.EventActor{Key: resource.Name, Kind: domain.ActorResource}, ""))
	return nil
}

// bootstrapKind synthesizes a ResourceKind{name, version, schema?, url?}
// from the payload's config.Schema/config.Url and upserts it (§4.5).
func (e *ResourceEngine) bootstrapKind(ctx context.Context, resource domain.Resource) error {
	var cfg domain.KindConfig
	if err := json.Unmarshal(resource.Config, &cfg); err != nil {
		return nerr.BadRequest("invalid Kind config: " + err.Error())
	}
	if len(cfg.Schema) == 0 && cfg.URL == "" {
		return nerr.BadRequest("a resource kind version needs a schema, a url, or both")
	}

	version := domain.ResourceKindVersion{Version: resource.Version, Schema: cfg.Schema, URL: cfg.URL}
	kind, err := e.kinds.ReadByPK(ctx, resource.Name)
	switch {
	case err == nil:
		// fall through to the version merge below
	case nerr.HTTPStatus(err) == 404:
		kind = domain.ResourceKind{Name: resource.Name, Versions: []domain.ResourceKindVersion{version}}
		return e.kinds.Create(ctx, kind)
	default:
		return err
	}

	// Idempotent on the kind itself, but every call appends a new version
	// row, even a repeat of the same version number: history accumulates
	// rather than collapsing to the latest (§8).
	kind.Versions = append(kind.Versions, version)
	return e.kinds.UpdateByPK(ctx, resource.Name, kind)
}

func (e *ResourceEngine) persist(ctx context.Context, resource domain.Resource) (domain.Resource, error) {
	_, err := e.resources.ReadByPK(ctx, resource.Name)
	switch {
	case err == nil:
		if err := e.resources.UpdateByPK(ctx, resource.Name, resource); err != nil {
			return domain.Resource{}, err
		}
	case nerr.HTTPStatus(err) == 404:
		if err := e.resources.Create(ctx, resource); err != nil {
			return domain.Resource{}, err
		}
	default:
		return domain.Resource{}, err
	}

	e.bus.SpawnEmit(buildEvent(domain.EventNormal, domain.ActionCreate, domain.ReasonStateSync, e.node,
		domain.EventActor{Key: resource.Name, Kind: domain.ActorResource}, ""))
	return resource, nil
}
