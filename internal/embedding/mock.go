package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"

	"github.com/kazane-dev/kiroku/pkg/utils"
)

// MockEmbedder produces deterministic pseudo-embeddings from the text hash.
// It exists for tests and for running the server without an API key.
type MockEmbedder struct {
	dims  int
	Calls int
}

// NewMockEmbedder creates a mock with the given dimensionality.
func NewMockEmbedder(dims int) *MockEmbedder {
	return &MockEmbedder{dims: dims}
}

// Embed returns a unit vector derived deterministically from the text.
func (m *MockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.Calls++
	return m.vector(text), nil
}

// EmbedBatch embeds each text independently.
func (m *MockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.Calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = m.vector(t)
	}
	return out, nil
}

// Dimensions returns the configured dimensionality.
func (m *MockEmbedder) Dimensions() int { return m.dims }

func (m *MockEmbedder) vector(text string) []float32 {
	sum := sha256.Sum256([]byte(text))
	v := make([]float32, m.dims)
	for i := range v {
		// Cycle through the digest, mixing in the position.
		b := binary.LittleEndian.Uint32(sum[(i*4)%28:])
		v[i] = float32(int32(b+uint32(i))) / float32(1<<31)
	}
	utils.NormalizeL2(v)
	return v
}
