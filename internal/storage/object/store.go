package object

import (
	"context"

	"barcode-pipeline/pkg/config"
)

// NewStore builds the Store an AzureConfig points at: the real Azure Blob
// Storage backend when a connection string or account URL is configured,
// otherwise an in-memory store for local runs and tests. Grounded on
// _examples/fanjia1024-Aetheris/internal/storage/object/store.go.
func NewStore(ctx context.Context, cfg config.AzureConfig) (Store, error) {
	if cfg.ConnectionString == "" && cfg.AccountURL == "" {
		return NewMemoryStore(), nil
	}
	return NewAzureBlobStore(ctx, cfg.ConnectionString, cfg.AccountURL, cfg.Container)
}
