package domain

// RestartPolicyName is the engine restart policy applied to cargo
// containers. Defaults to Always when unspecified (§4.3).
type RestartPolicyName string

const (
	RestartPolicyAlways        RestartPolicyName = "always"
	RestartPolicyOnFailure     RestartPolicyName = "on-failure"
	RestartPolicyUnlessStopped RestartPolicyName = "unless-stopped"
	RestartPolicyNo            RestartPolicyName = "no"
)

// RestartPolicy mirrors the engine's restart policy shape.
type RestartPolicy struct {
	Name              RestartPolicyName `json:"name,omitempty"`
	MaximumRetryCount int               `json:"maximum_retry_count,omitempty"`
}

// HostConfig carries the host-level container settings the process layer
// defaults or rejects (§4.3): network mode, restart policy, auto_remove.
type HostConfig struct {
	NetworkMode   string         `json:"network_mode,omitempty"`
	RestartPolicy *RestartPolicy `json:"restart_policy,omitempty"`
	AutoRemove    bool           `json:"auto_remove,omitempty"`
	CapAdd        []string       `json:"cap_add,omitempty"`
	CapDrop       []string       `json:"cap_drop,omitempty"`
	Binds         []string       `json:"binds,omitempty"`
}

// ContainerSpec is the engine-facing container template embedded in a cargo
// spec, a job container, or an init container.
type ContainerSpec struct {
	Image      string            `json:"image"`
	Cmd        []string          `json:"cmd,omitempty"`
	Entrypoint []string          `json:"entrypoint,omitempty"`
	Env        []string          `json:"env,omitempty"`
	Labels     map[string]string `json:"labels,omitempty"`
	Hostname   string            `json:"hostname,omitempty"`
	WorkingDir string            `json:"working_dir,omitempty"`
	Tty        bool              `json:"tty,omitempty"`
	HostConfig *HostConfig       `json:"host_config,omitempty"`
}

// ReplicationMode names how a cargo's instance count is determined. Static
// is the only mode the core implements; others are left as extension points.
type ReplicationMode string

const ReplicationStatic ReplicationMode = "Static"

// Replication controls how many main processes a cargo maintains. A zero or
// unset Number is treated as 1 (§8 Boundaries).
type Replication struct {
	Mode   ReplicationMode `json:"mode"`
	Number int             `json:"number"`
}

// Count returns the effective replica count, defaulting an unset value to 1.
func (r Replication) Count() int {
	if r.Number <= 0 {
		return 1
	}
	return r.Number
}

// ImagePullPolicy controls whether download_image (utils/cargo.rs) is
// attempted before instance creation.
type ImagePullPolicy string

const (
	ImagePullAlways       ImagePullPolicy = "Always"
	ImagePullIfNotPresent ImagePullPolicy = "IfNotPresent"
	ImagePullNever        ImagePullPolicy = "Never"
)

// CargoSpecData is the JSON payload stored in a cargo's Spec.Data row.
type CargoSpecData struct {
	CargoKey        string          `json:"cargo_key"`
	Name            string          `json:"name"`
	Container       ContainerSpec   `json:"container"`
	InitContainer   *ContainerSpec  `json:"init_container,omitempty"`
	Replication     Replication     `json:"replication"`
	Secrets         []string        `json:"secrets,omitempty"`
	ImagePullPolicy ImagePullPolicy `json:"image_pull_policy,omitempty"`
	ImagePullSecret string          `json:"image_pull_secret,omitempty"`
}

// Cargo is a long-running, replicated group of containers sharing one spec.
// Key is "<name>.<namespace>".
type Cargo struct {
	Key           string `json:"key"`
	Name          string `json:"name"`
	NamespaceName string `json:"namespace_name"`
	Spec          Spec   `json:"spec"`
}
