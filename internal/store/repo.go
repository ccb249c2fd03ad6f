package store

import "context"

// Repo is the generic operation set of §4.1 that both internal/store/pg and
// internal/store/memstore implement for a given entity type T, so the
// lifecycle engine can depend on this interface rather than a backend.
type Repo[T any] interface {
	Create(ctx context.Context, item T) error
	ReadByPK(ctx context.Context, pk string) (T, error)
	ReadOneBy(ctx context.Context, f *Filter) (T, error)
	ReadBy(ctx context.Context, f *Filter) ([]T, error)
	CountBy(ctx context.Context, f *Filter) (int64, error)
	UpdateByPK(ctx context.Context, pk string, item T) error
	DeleteByPK(ctx context.Context, pk string) error
	DeleteBy(ctx context.Context, f *Filter) error
}
