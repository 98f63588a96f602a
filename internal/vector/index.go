// Package vector provides vector storage and similarity search over chunk
// embeddings.
package vector

import "context"

// Entry is one chunk embedding with its payload. ID is the chunk id issued
// at processing time; exactly one entry exists per chunk.
type Entry struct {
	ID      string
	Vector  []float32
	Payload map[string]string
}

// Match is a similarity hit. Score is cosine similarity for normalized
// vectors.
type Match struct {
	ID      string
	Score   float64
	Payload map[string]string
}

// Filter restricts matches to entries whose payload contains every listed
// key with the given value. Empty values are ignored.
type Filter map[string]string

// Index defines vector storage and similarity search.
type Index interface {
	Upsert(ctx context.Context, entries []Entry) error
	Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]Match, error)
	Delete(ctx context.Context, ids []string) error
	Close(ctx context.Context) error
}
