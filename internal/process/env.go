package process

import (
	"encoding/json"
	"fmt"

	"github.com/nanocl-io/nanocld/internal/domain"
)

// FlattenEnvSecrets extracts and flattens every nanocl.io/env secret's
// string list into one env slice, in the order given.
func FlattenEnvSecrets(secrets []domain.Secret) ([]string, error) {
	var out []string
	for _, secret := range secrets {
		if secret.Kind != domain.SecretKindEnv {
			continue
		}
		var envs []string
		if err := json.Unmarshal(secret.Data, &envs); err != nil {
			return nil, fmt.Errorf("secret %s: decode env list: %w", secret.Key, err)
		}
		out = append(out, envs...)
	}
	return out, nil
}

// BuildCargoEnv merges the container spec's env with secret-sourced env and
// the five well-known NANOCL_* variables (§4.3).
func BuildCargoEnv(base []string, secretEnvs []string, hostname, gateway, cargoKey, namespace string, ordinal int) []string {
	env := make([]string, 0, len(base)+len(secretEnvs)+5)
	env = append(env, base...)
	env = append(env, secretEnvs...)
	env = append(env,
		"NANOCL_NODE="+hostname,
		"NANOCL_NODE_ADDR="+gateway,
		"NANOCL_CARGO_KEY="+cargoKey,
		"NANOCL_CARGO_NAMESPACE="+namespace,
		fmt.Sprintf("NANOCL_CARGO_INSTANCE=%d", ordinal),
	)
	return env
}

// Hostname returns the ordinal-prefixed hostname (§4.3): "<ordinal><name>",
// with the first replica (ordinal 0) omitting the ordinal prefix.
func Hostname(specHostname, specName string, ordinal int) string {
	name := specHostname
	if name == "" {
		name = specName
	}
	if ordinal == 0 {
		return name
	}
	return fmt.Sprintf("%d%s", ordinal, name)
}

// DefaultBridgeNetwork is the bridge network every cargo/VM/init-container
// lands on unless its spec overrides network_mode (§4.3).
const DefaultBridgeNetwork = "nanoclbr0"

// NetworkMode returns the spec's network_mode override, defaulting to
// DefaultBridgeNetwork.
func NetworkMode(override string) string {
	if override != "" {
		return override
	}
	return DefaultBridgeNetwork
}

// DefaultRestartPolicy returns ALWAYS when the spec does not set one (§4.3).
func DefaultRestartPolicy(override *domain.RestartPolicy) domain.RestartPolicy {
	if override != nil {
		return *override
	}
	return domain.RestartPolicy{Name: domain.RestartPolicyAlways}
}

// ValidateAutoRemove rejects auto_remove=true at create time (§4.3
// invariant): a self-removing container cannot be tracked as a process.
func ValidateAutoRemove(hc *domain.HostConfig) error {
	if hc != nil && hc.AutoRemove {
		return autoRemoveErr
	}
	return nil
}
