package process

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nanocl-io/nanocld/internal/domain"
)

// secretsMountPoint is where TLS secret files are bind-mounted read-only
// inside the container (§4.3, §6).
const secretsMountPoint = "/opt/nanocl.io/secrets"

// MaterializeTLSSecrets writes each nanocl.io/tls secret's certificate
// material to <state_dir>/secrets/<kind>/<key>/<name>.{crt,key,ca} and
// returns the bind mount strings to attach to a container's HostConfig.
func MaterializeTLSSecrets(stateDir string, secrets []domain.Secret) ([]string, error) {
	var binds []string
	for _, secret := range secrets {
		if secret.Kind != domain.SecretKindTLS {
			continue
		}
		var data domain.TLSSecretData
		if err := json.Unmarshal(secret.Data, &data); err != nil {
			return nil, fmt.Errorf("secret %s: decode tls data: %w", secret.Key, err)
		}
		dir := filepath.Join(stateDir, "secrets", secret.Kind, secret.Key)
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("secret %s: create dir: %w", secret.Key, err)
		}
		if err := writeSecretFile(filepath.Join(dir, secret.Key+".crt"), data.Certificate); err != nil {
			return nil, err
		}
		if err := writeSecretFile(filepath.Join(dir, secret.Key+".key"), data.CertificateKey); err != nil {
			return nil, err
		}
		if data.CertificateClient != "" {
			if err := writeSecretFile(filepath.Join(dir, secret.Key+".ca"), data.CertificateClient); err != nil {
				return nil, err
			}
		}
		binds = append(binds, dir+":"+secretsMountPoint+":ro")
	}
	return binds, nil
}

func writeSecretFile(path, content string) error {
	if content == "" {
		return nil
	}
	return os.WriteFile(path, []byte(content), 0o600)
}
