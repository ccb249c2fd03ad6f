// Package storeset wires internal/store/pg.Mapper definitions for every
// domain entity, and internal/store/memstore.Mapper equivalents for the
// same entities, so cmd/nanocld can build either backend behind the same
// store.Repo[T] interface without repeating column/JSON plumbing per call
// site. Cargo/Job/VM rows denormalize their current spec (spec_id,
// spec_version, spec_data, spec_created_at) onto the owning row so reads
// never need a join, matching the teacher's single-table raw-SQL style.
package storeset

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/nanocl-io/nanocld/internal/domain"
	"github.com/nanocl-io/nanocld/internal/store"
	"github.com/nanocl-io/nanocld/internal/store/memstore"
	"github.com/nanocl-io/nanocld/internal/store/pg"
)

// Set bundles every entity's store.Repo[T], regardless of backend.
type Set struct {
	Namespaces    store.Repo[domain.Namespace]
	Cargoes       store.Repo[domain.Cargo]
	Jobs          store.Repo[domain.Job]
	VMs           store.Repo[domain.VM]
	VMImages      store.Repo[domain.VMImage]
	Specs         store.Repo[domain.Spec]
	Statuses      store.Repo[domain.Status]
	Processes     store.Repo[domain.Process]
	Secrets       store.Repo[domain.Secret]
	Resources     store.Repo[domain.Resource]
	ResourceKinds store.Repo[domain.ResourceKind]
}

// NewPostgres builds a Set backed by Postgres tables, assuming the tables
// the mappers below name already exist; this package creates no schema.
func NewPostgres(db *sql.DB) *Set {
	return &Set{
		Namespaces:    pg.New(db, namespaceMapper()),
		Cargoes:       pg.New(db, cargoMapper()),
		Jobs:          pg.New(db, jobMapper()),
		VMs:           pg.New(db, vmMapper()),
		VMImages:      pg.New(db, vmImageMapper()),
		Specs:         pg.New(db, specMapper()),
		Statuses:      pg.New(db, statusMapper()),
		Processes:     pg.New(db, processMapper()),
		Secrets:       pg.New(db, secretMapper()),
		Resources:     pg.New(db, resourceMapper()),
		ResourceKinds: pg.New(db, resourceKindMapper()),
	}
}

// NewMemory builds a Set backed by internal/store/memstore, used in dev
// mode and by the daemon's own test fixtures.
func NewMemory() *Set {
	return &Set{
		Namespaces: memstore.New(memstore.Mapper[domain.Namespace]{
			PK: func(n domain.Namespace) string { return n.Name },
			CreatedAt: func(n domain.Namespace) time.Time { return n.CreatedAt }, Kind: "namespace",
		}),
		Cargoes: memstore.New(memstore.Mapper[domain.Cargo]{
			PK: func(c domain.Cargo) string { return c.Key },
			CreatedAt: func(c domain.Cargo) time.Time { return c.Spec.CreatedAt }, Kind: "cargo",
		}),
		Jobs: memstore.New(memstore.Mapper[domain.Job]{
			PK: func(j domain.Job) string { return j.Name },
			CreatedAt: func(j domain.Job) time.Time { return j.Spec.CreatedAt }, Kind: "job",
		}),
		VMs: memstore.New(memstore.Mapper[domain.VM]{
			PK: func(v domain.VM) string { return v.Key },
			CreatedAt: func(v domain.VM) time.Time { return v.Spec.CreatedAt }, Kind: "vm",
		}),
		VMImages: memstore.New(memstore.Mapper[domain.VMImage]{
			PK: func(i domain.VMImage) string { return i.Name },
			CreatedAt: func(domain.VMImage) time.Time { return time.Now() }, Kind: "vm_image",
		}),
		Specs: memstore.New(memstore.Mapper[domain.Spec]{
			PK: func(s domain.Spec) string { return s.ID },
			CreatedAt: func(s domain.Spec) time.Time { return s.CreatedAt }, Kind: "spec",
		}),
		Statuses: memstore.New(memstore.Mapper[domain.Status]{
			PK: func(s domain.Status) string { return s.KindKey },
			CreatedAt: func(domain.Status) time.Time { return time.Now() }, Kind: "status",
		}),
		Processes: memstore.New(memstore.Mapper[domain.Process]{
			PK: func(p domain.Process) string { return p.Key },
			CreatedAt: func(p domain.Process) time.Time { return p.CreatedAt }, Kind: "process",
		}),
		Secrets: memstore.New(memstore.Mapper[domain.Secret]{
			PK: func(s domain.Secret) string { return s.Key },
			CreatedAt: func(domain.Secret) time.Time { return time.Now() }, Kind: "secret",
		}),
		Resources: memstore.New(memstore.Mapper[domain.Resource]{
			PK: func(r domain.Resource) string { return r.Name },
			CreatedAt: func(domain.Resource) time.Time { return time.Now() }, Kind: "resource",
		}),
		ResourceKinds: memstore.New(memstore.Mapper[domain.ResourceKind]{
			PK: func(k domain.ResourceKind) string { return k.Name },
			CreatedAt: func(domain.ResourceKind) time.Time { return time.Now() }, Kind: "resource_kind",
		}),
	}
}

func namespaceMapper() pg.Mapper[domain.Namespace] {
	return pg.Mapper[domain.Namespace]{
		Table: "namespaces", PKColumn: "name",
		Columns: []string{"name", "created_at"},
		Args: func(n domain.Namespace) []interface{} { return []interface{}{n.Name, n.CreatedAt} },
		Scan: func(s pg.Scanner) (domain.Namespace, error) {
			var n domain.Namespace
			err := s.Scan(&n.Name, &n.CreatedAt)
			return n, err
		},
	}
}

func specMapper() pg.Mapper[domain.Spec] {
	return pg.Mapper[domain.Spec]{
		Table: "specs", PKColumn: "id",
		Columns: []string{"id", "kind_key", "version", "data", "created_at"},
		Args: func(s domain.Spec) []interface{} {
			return []interface{}{s.ID, s.KindKey, s.Version, string(s.Data), s.CreatedAt}
		},
		Scan: func(row pg.Scanner) (domain.Spec, error) {
			var s domain.Spec
			var data string
			err := row.Scan(&s.ID, &s.KindKey, &s.Version, &data, &s.CreatedAt)
			s.Data = []byte(data)
			return s, err
		},
	}
}

func statusMapper() pg.Mapper[domain.Status] {
	return pg.Mapper[domain.Status]{
		Table: "statuses", PKColumn: "kind_key",
		Columns: []string{"kind_key", "wanted", "prev_wanted", "actual", "prev_actual"},
		Args: func(s domain.Status) []interface{} {
			return []interface{}{s.KindKey, string(s.Wanted), string(s.PrevWanted), string(s.Actual), string(s.PrevActual)}
		},
		Scan: func(row pg.Scanner) (domain.Status, error) {
			var s domain.Status
			var wanted, prevWanted, actual, prevActual string
			err := row.Scan(&s.KindKey, &wanted, &prevWanted, &actual, &prevActual)
			s.Wanted, s.PrevWanted, s.Actual, s.PrevActual =
				domain.StatusValue(wanted), domain.StatusValue(prevWanted), domain.StatusValue(actual), domain.StatusValue(prevActual)
			return s, err
		},
	}
}

func processMapper() pg.Mapper[domain.Process] {
	return pg.Mapper[domain.Process]{
		Table: "processes", PKColumn: "key",
		Columns: []string{"key", "name", "kind", "kind_key", "node_id", "data", "created_at", "updated_at"},
		Args: func(p domain.Process) []interface{} {
			return []interface{}{p.Key, p.Name, string(p.Kind), p.KindKey, p.NodeID, string(p.Data), p.CreatedAt, p.UpdatedAt}
		},
		Scan: func(row pg.Scanner) (domain.Process, error) {
			var p domain.Process
			var kind, data string
			err := row.Scan(&p.Key, &p.Name, &kind, &p.KindKey, &p.NodeID, &data, &p.CreatedAt, &p.UpdatedAt)
			p.Kind = domain.ProcessKind(kind)
			p.Data = []byte(data)
			return p, err
		},
	}
}

func secretMapper() pg.Mapper[domain.Secret] {
	return pg.Mapper[domain.Secret]{
		Table: "secrets", PKColumn: "key",
		Columns: []string{"key", "kind", "data"},
		Args: func(s domain.Secret) []interface{} { return []interface{}{s.Key, s.Kind, string(s.Data)} },
		Scan: func(row pg.Scanner) (domain.Secret, error) {
			var s domain.Secret
			var data string
			err := row.Scan(&s.Key, &s.Kind, &data)
			s.Data = []byte(data)
			return s, err
		},
	}
}

func resourceMapper() pg.Mapper[domain.Resource] {
	return pg.Mapper[domain.Resource]{
		Table: "resources", PKColumn: "name",
		Columns: []string{"name", "kind", "version", "data"},
		Args: func(r domain.Resource) []interface{} { return []interface{}{r.Name, r.Kind, r.Version, string(r.Config)} },
		Scan: func(row pg.Scanner) (domain.Resource, error) {
			var r domain.Resource
			var data string
			err := row.Scan(&r.Name, &r.Kind, &r.Version, &data)
			r.Config = []byte(data)
			return r, err
		},
	}
}

func resourceKindMapper() pg.Mapper[domain.ResourceKind] {
	return pg.Mapper[domain.ResourceKind]{
		Table: "resource_kinds", PKColumn: "name",
		Columns: []string{"name", "versions"},
		Args: func(k domain.ResourceKind) []interface{} {
			raw, _ := json.Marshal(k.Versions)
			return []interface{}{k.Name, string(raw)}
		},
		Scan: func(row pg.Scanner) (domain.ResourceKind, error) {
			var k domain.ResourceKind
			var raw string
			err := row.Scan(&k.Name, &raw)
			if err == nil {
				err = json.Unmarshal([]byte(raw), &k.Versions)
			}
			return k, err
		},
	}
}

func vmImageMapper() pg.Mapper[domain.VMImage] {
	return pg.Mapper[domain.VMImage]{
		Table: "vm_images", PKColumn: "name",
		Columns: []string{"name", "kind", "parent", "path", "size_actual", "size_virtual", "format"},
		Args: func(i domain.VMImage) []interface{} {
			return []interface{}{i.Name, string(i.Kind), i.Parent, i.Path, i.SizeActual, i.SizeVirtual, i.Format}
		},
		Scan: func(row pg.Scanner) (domain.VMImage, error) {
			var i domain.VMImage
			var kind string
			err := row.Scan(&i.Name, &kind, &i.Parent, &i.Path, &i.SizeActual, &i.SizeVirtual, &i.Format)
			i.Kind = domain.VMImageKind(kind)
			return i, err
		},
	}
}

func cargoMapper() pg.Mapper[domain.Cargo] {
	return pg.Mapper[domain.Cargo]{
		Table: "cargoes", PKColumn: "key",
		Columns: []string{"key", "name", "namespace_name", "spec_id", "spec_version", "spec_data", "spec_created_at"},
		Args: func(c domain.Cargo) []interface{} {
			return []interface{}{c.Key, c.Name, c.NamespaceName, c.Spec.ID, c.Spec.Version, string(c.Spec.Data), c.Spec.CreatedAt}
		},
		Scan: func(row pg.Scanner) (domain.Cargo, error) {
			var c domain.Cargo
			var specData string
			err := row.Scan(&c.Key, &c.Name, &c.NamespaceName, &c.Spec.ID, &c.Spec.Version, &specData, &c.Spec.CreatedAt)
			c.Spec.KindKey = c.Key
			c.Spec.Data = []byte(specData)
			return c, err
		},
	}
}

func jobMapper() pg.Mapper[domain.Job] {
	return pg.Mapper[domain.Job]{
		Table: "jobs", PKColumn: "name",
		Columns: []string{"name", "spec_id", "spec_version", "spec_data", "spec_created_at"},
		Args: func(j domain.Job) []interface{} {
			return []interface{}{j.Name, j.Spec.ID, j.Spec.Version, string(j.Spec.Data), j.Spec.CreatedAt}
		},
		Scan: func(row pg.Scanner) (domain.Job, error) {
			var j domain.Job
			var specData string
			err := row.Scan(&j.Name, &j.Spec.ID, &j.Spec.Version, &specData, &j.Spec.CreatedAt)
			j.Spec.KindKey = j.Name
			j.Spec.Data = []byte(specData)
			return j, err
		},
	}
}

func vmMapper() pg.Mapper[domain.VM] {
	return pg.Mapper[domain.VM]{
		Table: "vms", PKColumn: "key",
		Columns: []string{"key", "name", "namespace_name", "spec_id", "spec_version", "spec_data", "spec_created_at"},
		Args: func(v domain.VM) []interface{} {
			return []interface{}{v.Key, v.Name, v.NamespaceName, v.Spec.ID, v.Spec.Version, string(v.Spec.Data), v.Spec.CreatedAt}
		},
		Scan: func(row pg.Scanner) (domain.VM, error) {
			var v domain.VM
			var specData string
			err := row.Scan(&v.Key, &v.Name, &v.NamespaceName, &v.Spec.ID, &v.Spec.Version, &specData, &v.Spec.CreatedAt)
			v.Spec.KindKey = v.Key
			v.Spec.Data = []byte(specData)
			return v, err
		},
	}
}
