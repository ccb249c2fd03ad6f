package domain

import "encoding/json"

// Secret kinds the core interprets directly; other kinds pass through
// untouched (§3).
const (
	SecretKindEnv = "nanocl.io/env"
	SecretKindTLS = "nanocl.io/tls"
)

// Secret is an opaque, kind-tagged record. The process layer only
// understands SecretKindEnv (Data unmarshals to []string of "KEY=VALUE")
// and SecretKindTLS (Data unmarshals to TLSSecretData).
type Secret struct {
	Key  string          `json:"key"`
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// TLSSecretData is the decoded payload of a nanocl.io/tls secret. Files are
// materialised at <state_dir>/secrets/<kind>/<key>/<name>.{crt,key,ca}.
type TLSSecretData struct {
	Certificate       string `json:"certificate"`
	CertificateKey    string `json:"certificate_key"`
	CertificateClient string `json:"certificate_client,omitempty"`
}
