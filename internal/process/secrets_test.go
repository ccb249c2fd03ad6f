package process

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nanocl-io/nanocld/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaterializeTLSSecretsWritesFilesAndReturnsBind(t *testing.T) {
	dir := t.TempDir()
	secrets := []domain.Secret{
		{
			Key:  "web-tls",
			Kind: domain.SecretKindTLS,
			Data: []byte(`{"certificate":"CERT","certificate_key":"KEY","certificate_client":"CA"}`),
		},
		{Key: "unrelated", Kind: domain.SecretKindEnv, Data: []byte(`["A=1"]`)},
	}

	binds, err := MaterializeTLSSecrets(dir, secrets)
	require.NoError(t, err)
	require.Len(t, binds, 1)
	assert.Contains(t, binds[0], secretsMountPoint)

	secretDir := filepath.Join(dir, "secrets", domain.SecretKindTLS, "web-tls")
	crt, err := os.ReadFile(filepath.Join(secretDir, "web-tls.crt"))
	require.NoError(t, err)
	assert.Equal(t, "CERT", string(crt))

	key, err := os.ReadFile(filepath.Join(secretDir, "web-tls.key"))
	require.NoError(t, err)
	assert.Equal(t, "KEY", string(key))
}
