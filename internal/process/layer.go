package process

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nanocl-io/nanocld/internal/config"
	"github.com/nanocl-io/nanocld/internal/domain"
	"github.com/nanocl-io/nanocld/internal/engine"
	"github.com/nanocl-io/nanocld/internal/nerr"
	"github.com/nanocl-io/nanocld/pkg/logger"
)

// Layer creates and drives engine processes for cargoes, jobs, and VMs.
type Layer struct {
	eng *engine.Client
	cfg *config.Config
	log *logger.Logger
}

// New builds a Layer bound to one engine client and daemon configuration.
func New(eng *engine.Client, cfg *config.Config, log *logger.Logger) *Layer {
	if log == nil {
		log = logger.NewDefault("process")
	}
	return &Layer{eng: eng, cfg: cfg, log: log}
}

// toEngineConfig converts a domain.ContainerSpec plus its resolved labels
// and env into the engine's wire container config.
func toEngineConfig(spec domain.ContainerSpec, labels map[string]string, env []string, hostname, networkMode string, restart domain.RestartPolicy, extraBinds []string) engine.ContainerConfig {
	hc := &engine.HostConfig{
		NetworkMode: networkMode,
		RestartPolicy: &engine.RestartPolicy{
			Name:              string(restart.Name),
			MaximumRetryCount: restart.MaximumRetryCount,
		},
	}
	if spec.HostConfig != nil {
		hc.CapAdd = spec.HostConfig.CapAdd
		hc.CapDrop = spec.HostConfig.CapDrop
		hc.Binds = append(hc.Binds, spec.HostConfig.Binds...)
	}
	hc.Binds = append(hc.Binds, extraBinds...)

	return engine.ContainerConfig{
		Image:        spec.Image,
		Cmd:          spec.Cmd,
		Entrypoint:   spec.Entrypoint,
		Env:          env,
		Labels:       labels,
		Hostname:     hostname,
		WorkingDir:   spec.WorkingDir,
		Tty:          spec.Tty,
		AttachStdout: true,
		AttachStderr: true,
		HostConfig:   hc,
	}
}

// replicaResult pairs a created process with the ordinal it was built for,
// so CreateCargoReplicas can return results in deterministic order.
type replicaResult struct {
	ordinal int
	process domain.Process
	err     error
}

// CreateCargoReplicas creates count main containers from spec concurrently
// (§4.3): creation of one replica never blocks another, but a single
// failure aborts the batch and the first failing task's error is returned.
func (l *Layer) CreateCargoReplicas(ctx context.Context, cargo domain.Cargo, spec domain.CargoSpecData, count int, secrets []domain.Secret) ([]domain.Process, error) {
	if err := ValidateAutoRemove(spec.Container.HostConfig); err != nil {
		return nil, err
	}

	secretEnvs, err := FlattenEnvSecrets(secrets)
	if err != nil {
		return nil, nerr.Internal("flatten secret env", err)
	}
	tlsBinds, err := MaterializeTLSSecrets(l.cfg.StateDir, secrets)
	if err != nil {
		return nil, nerr.Internal("materialize tls secrets", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan replicaResult, count)
	var wg sync.WaitGroup
	for ordinal := 0; ordinal < count; ordinal++ {
		wg.Add(1)
		go func(ordinal int) {
			defer wg.Done()
			proc, err := l.createCargoReplica(ctx, cargo, spec, ordinal, secretEnvs, tlsBinds)
			results <- replicaResult{ordinal: ordinal, process: proc, err: err}
		}(ordinal)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	collected := make([]replicaResult, 0, count)
	var firstErr error
	for r := range results {
		if r.err != nil && firstErr == nil {
			firstErr = r.err
			cancel()
		}
		collected = append(collected, r)
	}
	if firstErr != nil {
		return nil, firstErr
	}

	out := make([]domain.Process, count)
	for _, r := range collected {
		out[r.ordinal] = r.process
	}
	return out, nil
}

func (l *Layer) createCargoReplica(ctx context.Context, cargo domain.Cargo, spec domain.CargoSpecData, ordinal int, secretEnvs, tlsBinds []string) (domain.Process, error) {
	hostConfig := spec.Container.HostConfig
	restart := DefaultRestartPolicy(hostConfigRestart(hostConfig))
	networkMode := NetworkMode(hostConfigNetworkMode(hostConfig))
	hostname := Hostname(spec.Container.Hostname, spec.Name, ordinal)

	labels := BuildLabels(domain.ProcessKindCargo, spec.CargoKey, cargo.NamespaceName, spec.Container.Labels, false)
	env := BuildCargoEnv(spec.Container.Env, secretEnvs, l.cfg.Hostname, l.cfg.Gateway, spec.CargoKey, cargo.NamespaceName, ordinal)

	cfg := toEngineConfig(spec.Container, labels, env, hostname, networkMode, restart, tlsBinds)
	name := MainName(spec.Name, cargo.NamespaceName, domain.ProcessKindCargo.KindTag())

	return l.createProcess(ctx, domain.ProcessKindCargo, name, spec.CargoKey, cfg)
}

func hostConfigRestart(hc *domain.HostConfig) *domain.RestartPolicy {
	if hc == nil {
		return nil
	}
	return hc.RestartPolicy
}

func hostConfigNetworkMode(hc *domain.HostConfig) string {
	if hc == nil {
		return ""
	}
	return hc.NetworkMode
}

// createProcess creates (but does not start) one engine container and
// returns its domain.Process record, with Data set to the fresh inspect
// snapshot so label-based queries (e.g. distinguishing init from main
// containers) can filter on it without a round trip to the engine.
func (l *Layer) createProcess(ctx context.Context, kind domain.ProcessKind, name, kindKey string, cfg engine.ContainerConfig) (domain.Process, error) {
	created, err := l.eng.CreateContainer(ctx, name, cfg)
	if err != nil {
		return domain.Process{}, err
	}
	snapshot, err := l.eng.InspectContainer(ctx, created.ID)
	if err != nil {
		return domain.Process{}, err
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return domain.Process{}, nerr.Internal("marshal inspect snapshot", err)
	}
	now := time.Now()
	return domain.Process{
		Key:       created.ID,
		Name:      name,
		Kind:      kind,
		KindKey:   kindKey,
		NodeID:    l.cfg.Hostname,
		Data:      data,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// StartProcesses starts every given process id concurrently, first-error-wins.
func (l *Layer) StartProcesses(ctx context.Context, ids []string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make(chan error, len(ids))
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			errs <- l.eng.StartContainer(ctx, id)
		}(id)
	}
	go func() {
		wg.Wait()
		close(errs)
	}()

	var firstErr error
	for err := range errs {
		if err != nil && firstErr == nil {
			firstErr = err
			cancel()
		}
	}
	return firstErr
}

// StopProcess stops one process's engine container.
func (l *Layer) StopProcess(ctx context.Context, id string) error {
	return l.eng.StopContainer(ctx, id)
}

// DeleteProcesses force-removes every given process id.
func (l *Layer) DeleteProcesses(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if err := l.eng.RemoveContainer(ctx, id, true); err != nil {
			return err
		}
	}
	return nil
}

// RenameProcess renames a process's engine container, used to free a stable
// name ahead of a zero-downtime replacement (§4.4 step 1).
func (l *Layer) RenameProcess(ctx context.Context, id, newName string) error {
	return l.eng.RenameContainer(ctx, id, newName)
}

// CreateVMProcess creates (but does not start) the single process backing a
// VM: the engine container wrapping the hypervisor, booted from imagePath
// (§3 "VM image"). Naming and labelling follow the cargo convention with
// kind tag "v".
func (l *Layer) CreateVMProcess(ctx context.Context, vm domain.VM, data domain.VMSpecData, imagePath string, secrets []domain.Secret) (domain.Process, error) {
	secretEnvs, err := FlattenEnvSecrets(secrets)
	if err != nil {
		return domain.Process{}, nerr.Internal("flatten secret env", err)
	}
	tlsBinds, err := MaterializeTLSSecrets(l.cfg.StateDir, secrets)
	if err != nil {
		return domain.Process{}, nerr.Internal("materialize tls secrets", err)
	}

	labels := BuildLabels(domain.ProcessKindVM, vm.Key, vm.NamespaceName, nil, false)
	env := BuildCargoEnv(nil, secretEnvs, l.cfg.Hostname, l.cfg.Gateway, vm.Key, vm.NamespaceName, 0)
	networkMode := NetworkMode(data.NetworkMode)
	hostname := Hostname(data.Hostname, data.Name, 0)

	containerSpec := domain.ContainerSpec{
		Image: imagePath,
		Env:   env,
	}
	cfg := toEngineConfig(containerSpec, labels, env, hostname, networkMode, domain.RestartPolicy{Name: domain.RestartPolicyAlways}, tlsBinds)
	name := MainName(vm.Name, vm.NamespaceName, domain.ProcessKindVM.KindTag())

	return l.createProcess(ctx, domain.ProcessKindVM, name, vm.Key, cfg)
}

// JobStepResult reports one job container's outcome.
type JobStepResult struct {
	Process    domain.Process
	StatusCode int64
}

// RunJobStep creates, starts, and awaits one job container to completion,
// returning its process record and exit status code; the caller decides
// whether a non-zero code means the job failed (§4.4 job run loop). Jobs
// have no namespace, so labels and naming use the empty namespace.
func (l *Layer) RunJobStep(ctx context.Context, jobName string, ordinal int, containerSpec domain.ContainerSpec, secrets []domain.Secret) (JobStepResult, error) {
	secretEnvs, err := FlattenEnvSecrets(secrets)
	if err != nil {
		return JobStepResult{}, nerr.Internal("flatten secret env", err)
	}
	tlsBinds, err := MaterializeTLSSecrets(l.cfg.StateDir, secrets)
	if err != nil {
		return JobStepResult{}, nerr.Internal("materialize tls secrets", err)
	}

	labels := BuildLabels(domain.ProcessKindJob, jobName, "", containerSpec.Labels, false)
	env := BuildCargoEnv(containerSpec.Env, secretEnvs, l.cfg.Hostname, l.cfg.Gateway, jobName, "", ordinal)
	networkMode := NetworkMode(hostConfigNetworkMode(containerSpec.HostConfig))
	restart := domain.RestartPolicy{Name: domain.RestartPolicyNo}

	cfg := toEngineConfig(containerSpec, labels, env, containerSpec.Hostname, networkMode, restart, tlsBinds)
	name := MainName(jobName, "", domain.ProcessKindJob.KindTag())

	created, err := l.createProcess(ctx, domain.ProcessKindJob, name, jobName, cfg)
	if err != nil {
		return JobStepResult{}, err
	}
	if err := l.eng.StartContainer(ctx, created.Key); err != nil {
		return JobStepResult{Process: created}, err
	}
	wait, err := l.eng.WaitContainer(ctx, created.Key, "not-running")
	if err != nil {
		return JobStepResult{Process: created}, nerr.Interrupted("job container wait failed: " + err.Error())
	}
	return JobStepResult{Process: created, StatusCode: wait.StatusCode}, nil
}

// RunInitContainer creates, starts, and awaits a cargo's init container
// before the main containers start (§4.3, §4.4 step 2). A non-zero exit
// aborts with an Interrupted error.
func (l *Layer) RunInitContainer(ctx context.Context, cargo domain.Cargo, initSpec domain.ContainerSpec) error {
	labels := BuildLabels(domain.ProcessKindCargo, cargo.Key, cargo.NamespaceName, initSpec.Labels, true)
	networkMode := NetworkMode(hostConfigNetworkMode(initSpec.HostConfig))
	cfg := toEngineConfig(initSpec, labels, initSpec.Env, initSpec.Hostname, networkMode, domain.RestartPolicy{Name: domain.RestartPolicyNo}, nil)
	name := InitName(cargo.Name, cargo.NamespaceName)

	created, err := l.createProcess(ctx, domain.ProcessKindCargo, name, cargo.Key, cfg)
	if err != nil {
		return err
	}
	if err := l.eng.StartContainer(ctx, created.Key); err != nil {
		return err
	}
	wait, err := l.eng.WaitContainer(ctx, created.Key, "not-running")
	if err != nil {
		return nerr.Interrupted("init container wait failed: " + err.Error())
	}
	if wait.StatusCode != 0 {
		msg := "unknown error"
		if wait.Error != nil && wait.Error.Message != "" {
			msg = wait.Error.Message
		}
		return nerr.Interrupted("init container exited non-zero: " + msg)
	}
	return nil
}
