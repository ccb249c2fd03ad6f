package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nanocl-io/nanocld/internal/domain"
	"github.com/nanocl-io/nanocld/internal/eventbus"
	"github.com/nanocl-io/nanocld/internal/nerr"
	"github.com/nanocl-io/nanocld/internal/process"
	"github.com/nanocl-io/nanocld/internal/store"
	"github.com/nanocl-io/nanocld/pkg/logger"
)

// CargoEngine implements the object lifecycle engine's operations for
// cargoes (§4.4), including the zero-downtime update protocol.
type CargoEngine struct {
	cargoes   store.Repo[domain.Cargo]
	specs     store.Repo[domain.Spec]
	statuses  store.Repo[domain.Status]
	processes store.Repo[domain.Process]
	secrets   store.Repo[domain.Secret]
	bus       *eventbus.Bus
	proc      *process.Layer
	node      string
	drain     time.Duration
	log       *logger.Logger
}

// NewCargoEngine wires the repositories, process layer, and event bus a
// CargoEngine needs.
func NewCargoEngine(
	cargoes store.Repo[domain.Cargo],
	specs store.Repo[domain.Spec],
	statuses store.Repo[domain.Status],
	processes store.Repo[domain.Process],
	secrets store.Repo[domain.Secret],
	bus *eventbus.Bus,
	proc *process.Layer,
	node string,
	drain time.Duration,
	log *logger.Logger,
) *CargoEngine {
	if log == nil {
		log = logger.NewDefault("lifecycle.cargo")
	}
	if drain <= 0 {
		drain = 4 * time.Second
	}
	return &CargoEngine{
		cargoes: cargoes, specs: specs, statuses: statuses, processes: processes,
		secrets: secrets, bus: bus, proc: proc, node: node, drain: drain, log: log,
	}
}

// CargoPatch merges present fields into a copy of the current spec (§4.4
// Patch). Absent (nil) fields leave the current value untouched.
type CargoPatch struct {
	Image           *string
	Cmd             *[]string
	Env             *[]string
	Replication     *domain.Replication
	Secrets         *[]string
	ImagePullPolicy *domain.ImagePullPolicy
}

func (p CargoPatch) apply(data domain.CargoSpecData) domain.CargoSpecData {
	if p.Image != nil {
		data.Container.Image = *p.Image
	}
	if p.Cmd != nil {
		data.Container.Cmd = *p.Cmd
	}
	if p.Env != nil {
		data.Container.Env = *p.Env
	}
	if p.Replication != nil {
		data.Replication = *p.Replication
	}
	if p.Secrets != nil {
		data.Secrets = *p.Secrets
	}
	if p.ImagePullPolicy != nil {
		data.ImagePullPolicy = *p.ImagePullPolicy
	}
	return data
}

func cargoKey(name, namespace string) string { return name + "." + namespace }

// Create validates the payload, writes the object and its first spec row,
// sets status (Create, Create), and emits a Create event. No processes are
// created yet (§4.4 step 1).
func (e *CargoEngine) Create(ctx context.Context, namespace, name string, data domain.CargoSpecData) (domain.Cargo, error) {
	if data.Container.Image == "" {
		return domain.Cargo{}, nerr.BadRequest("cargo container image is required")
	}
	key := cargoKey(name, namespace)
	data.CargoKey = key
	data.Name = name

	spec, err := newSpec(key, data)
	if err != nil {
		return domain.Cargo{}, err
	}
	if err := e.specs.Create(ctx, spec); err != nil {
		return domain.Cargo{}, err
	}

	cargo := domain.Cargo{Key: key, Name: name, NamespaceName: namespace, Spec: spec}
	if err := e.cargoes.Create(ctx, cargo); err != nil {
		return domain.Cargo{}, err
	}
	if err := e.statuses.Create(ctx, domain.Status{KindKey: key, Wanted: domain.StatusCreate, Actual: domain.StatusCreate}); err != nil {
		return domain.Cargo{}, err
	}

	e.bus.SpawnEmit(buildEvent(domain.EventNormal, domain.ActionCreate, domain.ReasonStateSync, e.node,
		domain.EventActor{Key: key, Kind: domain.ActorCargo}, ""))
	return cargo, nil
}

// Put replaces the cargo's spec (§4.4 step 2). If the cargo is currently
// running, this performs the zero-downtime update in place and leaves
// status unchanged at (Start, Start); otherwise it only records the new
// desired spec and marks wanted=Create.
func (e *CargoEngine) Put(ctx context.Context, key string, data domain.CargoSpecData) (domain.Cargo, error) {
	cargo, err := e.cargoes.ReadByPK(ctx, key)
	if err != nil {
		return domain.Cargo{}, err
	}
	status, err := e.statuses.ReadByPK(ctx, key)
	if err != nil {
		return domain.Cargo{}, err
	}
	data.CargoKey = key
	data.Name = cargo.Name

	spec, err := newSpec(key, data)
	if err != nil {
		return domain.Cargo{}, err
	}
	if err := e.specs.Create(ctx, spec); err != nil {
		return domain.Cargo{}, err
	}
	cargo.Spec = spec
	if err := e.cargoes.UpdateByPK(ctx, key, cargo); err != nil {
		return domain.Cargo{}, err
	}

	if status.Actual == domain.StatusStart {
		if err := e.update(ctx, cargo, data); err != nil {
			status.Settle(domain.StatusFail)
			_ = e.statuses.UpdateByPK(ctx, key, status)
			e.bus.SpawnEmit(buildEvent(domain.EventWarning, "Update", domain.ReasonStateSync, e.node,
				domain.EventActor{Key: key, Kind: domain.ActorCargo}, err.Error()))
			return domain.Cargo{}, err
		}
		status.Advance(domain.StatusStart)
		status.Settle(domain.StatusStart)
	} else {
		status.Advance(domain.StatusCreate)
	}
	if err := e.statuses.UpdateByPK(ctx, key, status); err != nil {
		return domain.Cargo{}, err
	}

	e.bus.SpawnEmit(buildEvent(domain.EventNormal, domain.ActionUpdate, domain.ReasonStateSync, e.node,
		domain.EventActor{Key: key, Kind: domain.ActorCargo}, ""))
	return cargo, nil
}

// Patch merges patch into the current spec and applies it via Put,
// semantically identical to Put with the merged result (§4.4 step 3).
func (e *CargoEngine) Patch(ctx context.Context, key string, patch CargoPatch) (domain.Cargo, error) {
	current, err := e.currentSpecData(ctx, key)
	if err != nil {
		return domain.Cargo{}, err
	}
	return e.Put(ctx, key, patch.apply(current))
}

// Revert writes a historical spec forward as a new current spec row,
// leaving older rows untouched (§4.4 step 4, §9 design note).
func (e *CargoEngine) Revert(ctx context.Context, key, specID string) (domain.Cargo, error) {
	old, err := e.specs.ReadByPK(ctx, specID)
	if err != nil {
		return domain.Cargo{}, err
	}
	if old.KindKey != key {
		return domain.Cargo{}, nerr.BadRequest("spec does not belong to cargo " + key)
	}
	var data domain.CargoSpecData
	if err := json.Unmarshal(old.Data, &data); err != nil {
		return domain.Cargo{}, nerr.Internal("decode historical spec", err)
	}
	return e.Put(ctx, key, data)
}

// Delete marks the cargo for destruction and emits Destroying; the
// reconciler performs the actual teardown and row removal (§4.4 step 5).
func (e *CargoEngine) Delete(ctx context.Context, key string) error {
	status, err := e.statuses.ReadByPK(ctx, key)
	if err != nil {
		return err
	}
	status.Advance(domain.StatusDestroy)
	if err := e.statuses.UpdateByPK(ctx, key, status); err != nil {
		return err
	}
	e.bus.SpawnEmit(buildEvent(domain.EventNormal, domain.ActionDestroying, domain.ReasonStateSync, e.node,
		domain.EventActor{Key: key, Kind: domain.ActorCargo}, ""))
	return nil
}

// Start marks the cargo wanted=Start and emits Starting; the reconciler
// brings replicas up (§4.4 step 6).
func (e *CargoEngine) Start(ctx context.Context, key string) error {
	status, err := e.statuses.ReadByPK(ctx, key)
	if err != nil {
		return err
	}
	status.Advance(domain.StatusStart)
	if err := e.statuses.UpdateByPK(ctx, key, status); err != nil {
		return err
	}
	e.bus.SpawnEmit(buildEvent(domain.EventNormal, domain.ActionStarting, domain.ReasonStateSync, e.node,
		domain.EventActor{Key: key, Kind: domain.ActorCargo}, ""))
	return nil
}

// Stop marks the cargo wanted=Stop and emits Stopping; the reconciler stops
// engine processes (§4.4 step 7).
func (e *CargoEngine) Stop(ctx context.Context, key string) error {
	status, err := e.statuses.ReadByPK(ctx, key)
	if err != nil {
		return err
	}
	status.Advance(domain.StatusStop)
	if err := e.statuses.UpdateByPK(ctx, key, status); err != nil {
		return err
	}
	e.bus.SpawnEmit(buildEvent(domain.EventNormal, domain.ActionStopping, domain.ReasonStateSync, e.node,
		domain.EventActor{Key: key, Kind: domain.ActorCargo}, ""))
	return nil
}

func (e *CargoEngine) currentSpecData(ctx context.Context, key string) (domain.CargoSpecData, error) {
	cargo, err := e.cargoes.ReadByPK(ctx, key)
	if err != nil {
		return domain.CargoSpecData{}, err
	}
	var data domain.CargoSpecData
	if err := json.Unmarshal(cargo.Spec.Data, &data); err != nil {
		return domain.CargoSpecData{}, nerr.Internal("decode current spec", err)
	}
	return data, nil
}

// mainProcesses returns every non-init process currently owned by this
// cargo.
func (e *CargoEngine) mainProcesses(ctx context.Context, key string) ([]domain.Process, error) {
	f := store.NewFilter().
		With("kind_key", store.Eq(key)).
		With("data", store.Contains(map[string]interface{}{
			"Config": map[string]interface{}{"Labels": map[string]interface{}{domain.LabelNotInitC: "true"}},
		}))
	return e.processes.ReadBy(ctx, f)
}

// resolveSecrets fetches the secret rows named by keys.
func (e *CargoEngine) resolveSecrets(ctx context.Context, keys []string) ([]domain.Secret, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	f := store.NewFilter().With("key", store.In(keys))
	return e.secrets.ReadBy(ctx, f)
}

// BringUp starts the cargo's main processes, used by the reconciler for
// wanted=Start from actual in {Create, Stop} (§4.6). When the cargo has no
// main process, it first runs the init container (if any) and creates the
// full replica set; when some main processes exist, it starts only those
// and creates none of the missing replicas.
func (e *CargoEngine) BringUp(ctx context.Context, key string) error {
	cargo, err := e.cargoes.ReadByPK(ctx, key)
	if err != nil {
		return err
	}
	var data domain.CargoSpecData
	if err := json.Unmarshal(cargo.Spec.Data, &data); err != nil {
		return nerr.Internal("decode spec", err)
	}

	existing, err := e.mainProcesses(ctx, key)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		secrets, err := e.resolveSecrets(ctx, data.Secrets)
		if err != nil {
			return err
		}
		if data.InitContainer != nil {
			init := *data.InitContainer
			if init.Image == "" {
				init.Image = data.Container.Image
			}
			if err := e.proc.RunInitContainer(ctx, cargo, init); err != nil {
				return err
			}
		}
		created, err := e.proc.CreateCargoReplicas(ctx, cargo, data, data.Replication.Count(), secrets)
		if err != nil {
			return err
		}
		for _, p := range created {
			if err := e.processes.Create(ctx, p); err != nil {
				return err
			}
		}
		existing = created
	}

	ids := make([]string, len(existing))
	for i, p := range existing {
		ids[i] = p.Key
	}
	if err := e.proc.StartProcesses(ctx, ids); err != nil {
		return err
	}

	status, err := e.statuses.ReadByPK(ctx, key)
	if err != nil {
		return err
	}
	status.Settle(domain.StatusStart)
	if err := e.statuses.UpdateByPK(ctx, key, status); err != nil {
		return err
	}
	e.bus.SpawnEmit(buildEvent(domain.EventNormal, domain.ActionStart, domain.ReasonStateSync, e.node,
		domain.EventActor{Key: key, Kind: domain.ActorCargo}, ""))
	return nil
}

// TearDown stops every main process, used by the reconciler for
// wanted=Stop from actual=Start (§4.6).
func (e *CargoEngine) TearDown(ctx context.Context, key string) error {
	existing, err := e.mainProcesses(ctx, key)
	if err != nil {
		return err
	}
	for _, p := range existing {
		if err := e.proc.StopProcess(ctx, p.Key); err != nil {
			return err
		}
	}
	status, err := e.statuses.ReadByPK(ctx, key)
	if err != nil {
		return err
	}
	status.Settle(domain.StatusStop)
	if err := e.statuses.UpdateByPK(ctx, key, status); err != nil {
		return err
	}
	e.bus.SpawnEmit(buildEvent(domain.EventNormal, domain.ActionStop, domain.ReasonStateSync, e.node,
		domain.EventActor{Key: key, Kind: domain.ActorCargo}, ""))
	return nil
}

// Destroy stops and removes every process, clears status and spec history,
// and emits Destroy last, used by the reconciler for wanted=Destroy (§4.6,
// §8 scenario 6).
func (e *CargoEngine) Destroy(ctx context.Context, key string) error {
	all, err := e.processes.ReadBy(ctx, store.NewFilter().With("kind_key", store.Eq(key)))
	if err != nil {
		return err
	}
	ids := make([]string, len(all))
	for i, p := range all {
		ids[i] = p.Key
		_ = e.proc.StopProcess(ctx, p.Key)
	}
	if err := e.proc.DeleteProcesses(ctx, ids); err != nil {
		e.log.WithError(err).Warn("cargo destroy: failed removing some processes")
	}
	_ = e.processes.DeleteBy(ctx, store.NewFilter().With("kind_key", store.Eq(key)))
	_ = e.specs.DeleteBy(ctx, store.NewFilter().With("kind_key", store.Eq(key)))
	_ = e.statuses.DeleteByPK(ctx, key)
	if err := e.cargoes.DeleteByPK(ctx, key); err != nil {
		return err
	}
	e.bus.SpawnEmit(buildEvent(domain.EventNormal, domain.ActionDestroy, domain.ReasonStateSync, e.node,
		domain.EventActor{Key: key, Kind: domain.ActorCargo}, ""))
	return nil
}

// update runs the zero-downtime cargo update protocol (§4.4): rename old
// processes to tmp-*, run a new init container if present, create and
// start new replicas, then schedule a delayed cleanup of the tmp-*
// processes. On failure the new processes are removed and the tmp-*
// processes renamed back, best effort.
func (e *CargoEngine) update(ctx context.Context, cargo domain.Cargo, data domain.CargoSpecData) error {
	old, err := e.mainProcesses(ctx, cargo.Key)
	if err != nil {
		return err
	}

	renamed := make(map[string]string, len(old)) // process key -> new tmp name
	for _, p := range old {
		if isRestarting(p) {
			_ = e.proc.StopProcess(ctx, p.Key)
		}
		tmp := process.TmpName(p.Name)
		if err := e.proc.RenameProcess(ctx, p.Key, tmp); err != nil {
			return e.rollbackUpdate(ctx, old[:len(renamed)], nil, nerr.Internal("rename process for update", err))
		}
		renamed[p.Key] = tmp
	}

	secrets, err := e.resolveSecrets(ctx, data.Secrets)
	if err != nil {
		return e.rollbackUpdate(ctx, old, nil, err)
	}

	if data.InitContainer != nil {
		init := *data.InitContainer
		if init.Image == "" {
			init.Image = data.Container.Image
		}
		if err := e.proc.RunInitContainer(ctx, cargo, init); err != nil {
			return e.rollbackUpdate(ctx, old, nil, err)
		}
	}

	created, err := e.proc.CreateCargoReplicas(ctx, cargo, data, data.Replication.Count(), secrets)
	if err != nil {
		return e.rollbackUpdate(ctx, old, created, err)
	}
	ids := make([]string, len(created))
	for i, p := range created {
		ids[i] = p.Key
	}
	if err := e.proc.StartProcesses(ctx, ids); err != nil {
		return e.rollbackUpdate(ctx, old, created, err)
	}
	for _, p := range created {
		if err := e.processes.Create(ctx, p); err != nil {
			e.log.WithError(err).Warn("cargo update: failed recording new process")
		}
	}

	oldIDs := make([]string, 0, len(old))
	for _, p := range old {
		oldIDs = append(oldIDs, p.Key)
	}
	drain := e.drain
	go func() {
		time.Sleep(drain)
		cleanupCtx := context.Background()
		if err := e.proc.DeleteProcesses(cleanupCtx, oldIDs); err != nil {
			e.log.WithError(err).Warn("cargo update: failed cleaning up tmp processes")
			return
		}
		_ = e.processes.DeleteBy(cleanupCtx, store.NewFilter().With("kind_key", store.Eq(cargo.Key)).With("key", store.In(oldIDs)))
	}()

	return nil
}

// rollbackUpdate deletes any newly created processes and renames the tmp-*
// processes back to their original names, best effort (§4.4 step 6).
func (e *CargoEngine) rollbackUpdate(ctx context.Context, old, created []domain.Process, cause error) error {
	ids := make([]string, len(created))
	for i, p := range created {
		ids[i] = p.Key
	}
	if len(ids) > 0 {
		if err := e.proc.DeleteProcesses(ctx, ids); err != nil {
			e.log.WithError(err).Warn("cargo update rollback: failed deleting new processes")
		}
	}
	for _, p := range old {
		original := p.Name
		tmp := process.TmpName(original)
		if err := e.proc.RenameProcess(ctx, p.Key, original); err != nil {
			e.log.WithError(err).Warn(fmt.Sprintf("cargo update rollback: failed renaming %s back from %s", p.Key, tmp))
		}
	}
	return cause
}

func isRestarting(p domain.Process) bool {
	var snapshot struct {
		State struct {
			Status string `json:"Status"`
		} `json:"State"`
	}
	if err := json.Unmarshal(p.Data, &snapshot); err != nil {
		return false
	}
	return snapshot.State.Status == "restarting"
}
