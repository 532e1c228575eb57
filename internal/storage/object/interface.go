// Package object is the blob object store abstraction spec.md §1 treats
// as an external collaborator. Store is satisfied by the Azure Blob
// Storage implementation used in production and the in-memory fake used
// by tests. Grounded on
// _examples/fanjia1024-Aetheris/internal/storage/object/interface.go,
// extended with Move for the copy-then-delete archival spec.md §4.6 and
// §9 require ("Idempotency of side effects").
package object

import (
	"context"
	"io"
)

// Store is the blob collaborator every Stage Handler downloads from and
// uploads to.
type Store interface {
	Put(ctx context.Context, path string, data io.Reader, size int64, metadata map[string]string) error
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
	List(ctx context.Context, prefix string) ([]*ObjectInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
	GetMetadata(ctx context.Context, path string) (map[string]string, error)
	// Move copies src to dst then deletes src. A failed delete is logged
	// by the caller and retried on a later handler pass; it never blocks
	// a status transition (spec.md §4.6, §9 "Idempotency of side
	// effects"). The returned bool reports whether src was deleted.
	Move(ctx context.Context, src, dst string) (deleted bool, err error)
	Close() error
}

// ObjectInfo describes a stored blob.
type ObjectInfo struct {
	Path      string
	Size      int64
	Metadata  map[string]string
	CreatedAt int64
}
