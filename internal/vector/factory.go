package vector

import (
	"context"
	"fmt"

	"github.com/kazane-dev/kiroku/internal/config"
)

// Backend identifies a vector index implementation.
type Backend string

const (
	// BackendMemory uses in-memory brute-force search. Good for tests and
	// small datasets.
	BackendMemory Backend = "memory"
	// BackendQdrant talks to a Qdrant server over its REST API.
	BackendQdrant Backend = "qdrant"
	// BackendMilvus talks to a Milvus server over its gRPC SDK.
	BackendMilvus Backend = "milvus"
)

// New creates a vector index for the configured backend.
// Supported backends: "memory" (default), "qdrant", "milvus".
func New(ctx context.Context, cfg config.VectorConfig) (Index, error) {
	switch Backend(cfg.Backend) {
	case BackendMemory, "":
		return NewMemoryIndex(cfg.Dimensions)
	case BackendQdrant:
		return NewQdrantIndex(ctx, cfg.Qdrant, cfg.Dimensions)
	case BackendMilvus:
		return NewMilvusIndex(ctx, cfg.Milvus, cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown vector backend: %s (supported: memory, qdrant, milvus)", cfg.Backend)
	}
}
