package domain

// VMSpecData is a VM's stored spec payload; it references a disk image by
// name rather than embedding it (§9 "cyclic references... store as
// identifiers, resolve on read").
type VMSpecData struct {
	Name     string `json:"name"`
	VMKey    string `json:"vm_key"`
	ImageRef string `json:"image_ref"`
	Hostname string `json:"hostname,omitempty"`
	// CPU and Memory size the hypervisor allocation; Memory is in MiB.
	CPU    int64 `json:"cpu,omitempty"`
	Memory int64 `json:"memory,omitempty"`
	// NetworkMode mirrors the cargo convention: empty defaults to the
	// namespace's bridge network.
	NetworkMode string `json:"network_mode,omitempty"`
}

// VM is a virtual machine backed by a disk image. Key is "<name>.<namespace>".
type VM struct {
	Key           string `json:"key"`
	Name          string `json:"name"`
	NamespaceName string `json:"namespace_name"`
	Spec          Spec   `json:"spec"`
}

// VMImageKind distinguishes a base disk image from a derived snapshot.
type VMImageKind string

const (
	VMImageBase     VMImageKind = "Base"
	VMImageSnapshot VMImageKind = "Snapshot"
)

// VMImage is a disk image usable as a VM's boot disk. Snapshots reference a
// base image by name; deleting a base with live snapshots is refused.
type VMImage struct {
	Name       string      `json:"name"`
	Kind       VMImageKind `json:"kind"`
	Parent     string      `json:"parent,omitempty"`
	Path       string      `json:"path"`
	SizeActual int64       `json:"size_actual"`
	SizeVirtual int64      `json:"size_virtual"`
	Format     string      `json:"format"`
}
