package domain

import "encoding/json"

// ResourceKindVersion carries the validation contract for one version of a
// registered kind: a JSON Schema, a delegated controller URL, or both.
type ResourceKindVersion struct {
	Version string          `json:"version"`
	Schema  json.RawMessage `json:"schema,omitempty"`
	URL     string          `json:"url,omitempty"`
}

// HasSchema reports whether this version carries an inline JSON Schema.
func (v ResourceKindVersion) HasSchema() bool {
	return len(v.Schema) > 0
}

// HasURL reports whether this version delegates to a controller.
func (v ResourceKindVersion) HasURL() bool {
	return v.URL != ""
}

// ResourceKind names a user-defined typed record. The bootstrap meta-kind
// "Kind" defines other kinds; it is itself a ResourceKind with no schema.
type ResourceKind struct {
	Name     string                `json:"name"`
	Versions []ResourceKindVersion `json:"versions"`
}

// VersionFor returns the most recently registered ResourceKindVersion
// matching version, if any. Versions accumulate one row per create call, so
// a repeated version number resolves to its latest row, scanning newest
// first.
func (k ResourceKind) VersionFor(version string) (ResourceKindVersion, bool) {
	for i := len(k.Versions) - 1; i >= 0; i-- {
		if k.Versions[i].Version == version {
			return k.Versions[i], true
		}
	}
	return ResourceKindVersion{}, false
}

// KindMetaName is the bootstrap resource kind that defines other kinds.
const KindMetaName = "Kind"

// Resource is a user record validated against its kind's registered schema
// or delegated controller.
type Resource struct {
	Name    string          `json:"name"`
	Kind    string          `json:"kind"`
	Version string          `json:"version"`
	Config  json.RawMessage `json:"data"`
}

// KindConfig is the payload shape accepted when Resource.Kind == "Kind": it
// synthesizes a ResourceKindVersion from either Schema or URL.
type KindConfig struct {
	Schema json.RawMessage `json:"schema,omitempty"`
	URL    string          `json:"url,omitempty"`
}
