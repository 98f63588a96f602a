// Package store defines chunk metadata persistence.
package store

import (
	"context"

	"github.com/kazane-dev/kiroku/internal/models"
)

// Store persists one metadata record per generated chunk. Records are the
// system of record: a vector entry exists only for a chunk id that was saved
// here first.
type Store interface {
	// SaveChunks inserts all records atomically. Either every record in the
	// batch is persisted or none is.
	SaveChunks(ctx context.Context, records []*models.ChunkRecord) error
	GetChunk(ctx context.Context, id string) (*models.ChunkRecord, error)
	GetChunksByFile(ctx context.Context, fileID string) ([]*models.ChunkRecord, error)
	// DeleteByFile removes a file's records and returns their chunk ids so
	// the caller can clean up the matching vector entries.
	DeleteByFile(ctx context.Context, fileID string) ([]string, error)
	CountChunks(ctx context.Context) (int64, error)
	Close() error
}
