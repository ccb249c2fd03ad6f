package lifecycle

import (
	"context"
	"encoding/json"

	"github.com/nanocl-io/nanocld/internal/domain"
	"github.com/nanocl-io/nanocld/internal/eventbus"
	"github.com/nanocl-io/nanocld/internal/nerr"
	"github.com/nanocl-io/nanocld/internal/process"
	"github.com/nanocl-io/nanocld/internal/store"
	"github.com/nanocl-io/nanocld/pkg/logger"
)

// VMEngine implements the object lifecycle engine's operations for virtual
// machines (§4.4), sharing the create/put/patch/revert/delete/start/stop
// template with CargoEngine but driving a single process per VM instead of
// a replica set.
type VMEngine struct {
	vms       store.Repo[domain.VM]
	images    store.Repo[domain.VMImage]
	specs     store.Repo[domain.Spec]
	statuses  store.Repo[domain.Status]
	processes store.Repo[domain.Process]
	secrets   store.Repo[domain.Secret]
	bus       *eventbus.Bus
	proc      *process.Layer
	node      string
	log       *logger.Logger
}

// NewVMEngine wires the repositories, process layer, and event bus a
// VMEngine needs.
func NewVMEngine(
	vms store.Repo[domain.VM],
	images store.Repo[domain.VMImage],
	specs store.Repo[domain.Spec],
	statuses store.Repo[domain.Status],
	processes store.Repo[domain.Process],
	secrets store.Repo[domain.Secret],
	bus *eventbus.Bus,
	proc *process.Layer,
	node string,
	log *logger.Logger,
) *VMEngine {
	if log == nil {
		log = logger.NewDefault("lifecycle.vm")
	}
	return &VMEngine{
		vms: vms, images: images, specs: specs, statuses: statuses, processes: processes,
		secrets: secrets, bus: bus, proc: proc, node: node, log: log,
	}
}

func vmKey(name, namespace string) string { return name + "." + namespace }

// Create validates the payload (the referenced disk image must exist),
// writes the object and its first spec row, sets status (Create, Create),
// and emits a Create event (§4.4 step 1).
func (e *VMEngine) Create(ctx context.Context, namespace, name string, data domain.VMSpecData) (domain.VM, error) {
	if data.ImageRef == "" {
		return domain.VM{}, nerr.BadRequest("vm image_ref is required")
	}
	if _, err := e.images.ReadByPK(ctx, data.ImageRef); err != nil {
		return domain.VM{}, err
	}
	key := vmKey(name, namespace)
	data.VMKey = key
	data.Name = name

	spec, err := newSpec(key, data)
	if err != nil {
		return domain.VM{}, err
	}
	if err := e.specs.Create(ctx, spec); err != nil {
		return domain.VM{}, err
	}

	vm := domain.VM{Key: key, Name: name, NamespaceName: namespace, Spec: spec}
	if err := e.vms.Create(ctx, vm); err != nil {
		return domain.VM{}, err
	}
	if err := e.statuses.Create(ctx, domain.Status{KindKey: key, Wanted: domain.StatusCreate, Actual: domain.StatusCreate}); err != nil {
		return domain.VM{}, err
	}

	e.bus.SpawnEmit(buildEvent(domain.EventNormal, domain.ActionCreate, domain.ReasonStateSync, e.node,
		domain.EventActor{Key: key, Kind: domain.ActorVM}, ""))
	return vm, nil
}

// Put replaces the VM's spec (§4.4 step 2). If the VM is currently running,
// the old process is stopped, removed, and recreated from the new spec in
// place; a VM has no replica set so there is no zero-downtime variant.
func (e *VMEngine) Put(ctx context.Context, key string, data domain.VMSpecData) (domain.VM, error) {
	vm, err := e.vms.ReadByPK(ctx, key)
	if err != nil {
		return domain.VM{}, err
	}
	status, err := e.statuses.ReadByPK(ctx, key)
	if err != nil {
		return domain.VM{}, err
	}
	data.VMKey = key
	data.Name = vm.Name

	spec, err := newSpec(key, data)
	if err != nil {
		return domain.VM{}, err
	}
	if err := e.specs.Create(ctx, spec); err != nil {
		return domain.VM{}, err
	}
	vm.Spec = spec
	if err := e.vms.UpdateByPK(ctx, key, vm); err != nil {
		return domain.VM{}, err
	}

	if status.Actual == domain.StatusStart {
		if err := e.TearDown(ctx, key); err != nil {
			return domain.VM{}, err
		}
		old, ok, err := e.process(ctx, key)
		if err != nil {
			return domain.VM{}, err
		}
		if ok {
			if err := e.proc.DeleteProcesses(ctx, []string{old.Key}); err != nil {
				return domain.VM{}, err
			}
			if err := e.processes.DeleteByPK(ctx, old.Key); err != nil {
				return domain.VM{}, err
			}
		}
		if err := e.BringUp(ctx, key); err != nil {
			return domain.VM{}, err
		}
	} else {
		status.Advance(domain.StatusCreate)
		if err := e.statuses.UpdateByPK(ctx, key, status); err != nil {
			return domain.VM{}, err
		}
	}

	e.bus.SpawnEmit(buildEvent(domain.EventNormal, domain.ActionUpdate, domain.ReasonStateSync, e.node,
		domain.EventActor{Key: key, Kind: domain.ActorVM}, ""))
	return vm, nil
}

// Revert writes a historical spec forward as the VM's new current spec,
// then proceeds as Put (§4.4 step 4).
func (e *VMEngine) Revert(ctx context.Context, key, specID string) (domain.VM, error) {
	old, err := e.specs.ReadByPK(ctx, specID)
	if err != nil {
		return domain.VM{}, err
	}
	if old.KindKey != key {
		return domain.VM{}, nerr.BadRequest("spec does not belong to vm " + key)
	}
	var data domain.VMSpecData
	if err := json.Unmarshal(old.Data, &data); err != nil {
		return domain.VM{}, nerr.Internal("decode historical spec", err)
	}
	return e.Put(ctx, key, data)
}

// Delete marks the VM for destruction and emits Destroying; the reconciler
// tears down the process and clears history (§4.4 step 5).
func (e *VMEngine) Delete(ctx context.Context, key string) error {
	status, err := e.statuses.ReadByPK(ctx, key)
	if err != nil {
		return err
	}
	status.Advance(domain.StatusDestroy)
	if err := e.statuses.UpdateByPK(ctx, key, status); err != nil {
		return err
	}
	e.bus.SpawnEmit(buildEvent(domain.EventNormal, domain.ActionDestroying, domain.ReasonStateSync, e.node,
		domain.EventActor{Key: key, Kind: domain.ActorVM}, ""))
	return nil
}

// Start marks the VM wanted=Start and emits Starting; the reconciler boots
// the process (§4.4 step 6).
func (e *VMEngine) Start(ctx context.Context, key string) error {
	status, err := e.statuses.ReadByPK(ctx, key)
	if err != nil {
		return err
	}
	status.Advance(domain.StatusStart)
	if err := e.statuses.UpdateByPK(ctx, key, status); err != nil {
		return err
	}
	e.bus.SpawnEmit(buildEvent(domain.EventNormal, domain.ActionStarting, domain.ReasonStateSync, e.node,
		domain.EventActor{Key: key, Kind: domain.ActorVM}, ""))
	return nil
}

// Stop marks the VM wanted=Stop and emits Stopping; the reconciler stops
// the process (§4.4 step 7).
func (e *VMEngine) Stop(ctx context.Context, key string) error {
	status, err := e.statuses.ReadByPK(ctx, key)
	if err != nil {
		return err
	}
	status.Advance(domain.StatusStop)
	if err := e.statuses.UpdateByPK(ctx, key, status); err != nil {
		return err
	}
	e.bus.SpawnEmit(buildEvent(domain.EventNormal, domain.ActionStopping, domain.ReasonStateSync, e.node,
		domain.EventActor{Key: key, Kind: domain.ActorVM}, ""))
	return nil
}

func (e *VMEngine) process(ctx context.Context, key string) (domain.Process, bool, error) {
	existing, err := e.processes.ReadBy(ctx, store.NewFilter().With("kind_key", store.Eq(key)).WithLimit(1))
	if err != nil {
		return domain.Process{}, false, err
	}
	if len(existing) == 0 {
		return domain.Process{}, false, nil
	}
	return existing[0], true, nil
}

func (e *VMEngine) resolveSecrets(ctx context.Context, keys []string) ([]domain.Secret, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	return e.secrets.ReadBy(ctx, store.NewFilter().With("key", store.In(keys)))
}

// BringUp creates the VM's process if missing and starts it, used by the
// reconciler for wanted=Start from actual in {Create, Stop} (§4.6).
func (e *VMEngine) BringUp(ctx context.Context, key string) error {
	vm, err := e.vms.ReadByPK(ctx, key)
	if err != nil {
		return err
	}
	var data domain.VMSpecData
	if err := json.Unmarshal(vm.Spec.Data, &data); err != nil {
		return nerr.Internal("decode spec", err)
	}

	proc, ok, err := e.process(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		image, err := e.images.ReadByPK(ctx, data.ImageRef)
		if err != nil {
			return err
		}
		secrets, err := e.resolveSecrets(ctx, nil)
		if err != nil {
			return err
		}
		proc, err = e.proc.CreateVMProcess(ctx, vm, data, image.Path, secrets)
		if err != nil {
			return err
		}
		if err := e.processes.Create(ctx, proc); err != nil {
			return err
		}
	}

	if err := e.proc.StartProcesses(ctx, []string{proc.Key}); err != nil {
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
		domain.EventActor{Key: key, Kind: domain.ActorVM}, ""))
	return nil
}

// TearDown stops the VM's process, used by the reconciler for
// wanted=Stop from actual=Start (§4.6).
func (e *VMEngine) TearDown(ctx context.Context, key string) error {
	proc, ok, err := e.process(ctx, key)
	if err != nil {
		return err
	}
	if ok {
		if err := e.proc.StopProcess(ctx, proc.Key); err != nil {
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
		domain.EventActor{Key: key, Kind: domain.ActorVM}, ""))
	return nil
}

// Destroy stops and removes the VM's process, clears status and spec
// history, and deletes the VM row (§4.6 wanted=Destroy).
func (e *VMEngine) Destroy(ctx context.Context, key string) error {
	proc, ok, err := e.process(ctx, key)
	if err != nil {
		return err
	}
	if ok {
		_ = e.proc.StopProcess(ctx, proc.Key)
		if err := e.proc.DeleteProcesses(ctx, []string{proc.Key}); err != nil {
			e.log.WithError(err).Warn("vm destroy: failed removing process")
		}
	}
	_ = e.processes.DeleteBy(ctx, store.NewFilter().With("kind_key", store.Eq(key)))
	_ = e.specs.DeleteBy(ctx, store.NewFilter().With("kind_key", store.Eq(key)))
	_ = e.statuses.DeleteByPK(ctx, key)
	if err := e.vms.DeleteByPK(ctx, key); err != nil {
		return err
	}
	e.bus.SpawnEmit(buildEvent(domain.EventNormal, domain.ActionDestroy, domain.ReasonStateSync, e.node,
		domain.EventActor{Key: key, Kind: domain.ActorVM}, ""))
	return nil
}

// DeleteImage removes a VM disk image, refusing deletion while snapshots
// reference it as a parent (§3, §10 supplemented feature).
func (e *VMEngine) DeleteImage(ctx context.Context, name string) error {
	image, err := e.images.ReadByPK(ctx, name)
	if err != nil {
		return err
	}
	if image.Kind == domain.VMImageBase {
		children, err := e.images.ReadBy(ctx, store.NewFilter().With("parent", store.Eq(name)))
		if err != nil {
			return err
		}
		if len(children) > 0 {
			return nerr.Conflict("vm image " + name + " has live snapshots")
		}
	}
	return e.images.DeleteByPK(ctx, name)
}
