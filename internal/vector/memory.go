package vector

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryIndex is an in-memory index using brute-force inner product search.
// Vectors are assumed normalized, so inner product equals cosine similarity.
type MemoryIndex struct {
	dimensions int
	mu         sync.RWMutex
	entries    map[string]Entry
}

// NewMemoryIndex creates an in-memory index with the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryIndex{
		dimensions: dimensions,
		entries:    make(map[string]Entry),
	}, nil
}

// Upsert stores entries, replacing any existing entry with the same id.
func (m *MemoryIndex) Upsert(_ context.Context, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		if len(e.Vector) != m.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(e.Vector), m.dimensions)
		}
		vec := make([]float32, m.dimensions)
		copy(vec, e.Vector)
		payload := make(map[string]string, len(e.Payload))
		for k, v := range e.Payload {
			payload[k] = v
		}
		m.entries[e.ID] = Entry{ID: e.ID, Vector: vec, Payload: payload}
	}
	return nil
}

// Query returns the top-k entries matching the filter, by inner product.
func (m *MemoryIndex) Query(_ context.Context, vector []float32, topK int, filter Filter) ([]Match, error) {
	if len(vector) != m.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(vector), m.dimensions)
	}
	if topK <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	matches := make([]Match, 0, len(m.entries))
	for _, e := range m.entries {
		if !payloadMatches(e.Payload, filter) {
			continue
		}
		var dot float64
		for j := 0; j < m.dimensions; j++ {
			dot += float64(vector[j] * e.Vector[j])
		}
		matches = append(matches, Match{ID: e.ID, Score: dot, Payload: e.Payload})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if topK < len(matches) {
		matches = matches[:topK]
	}
	return matches, nil
}

// Delete removes entries by id. Unknown ids are ignored.
func (m *MemoryIndex) Delete(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.entries, id)
	}
	return nil
}

// Close is a no-op for the in-memory index.
func (m *MemoryIndex) Close(context.Context) error { return nil }

// Size returns the number of stored entries.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func payloadMatches(payload map[string]string, filter Filter) bool {
	for k, want := range filter {
		if want == "" {
			continue
		}
		if payload[k] != want {
			return false
		}
	}
	return true
}
