package embedding

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_GetSet(t *testing.T) {
	c := NewCache(2)
	_, ok := c.Get(Key("missing"))
	assert.False(t, ok)

	c.Set(Key("a"), []float32{1, 0})
	v, ok := c.Get(Key("a"))
	require.True(t, ok)
	assert.Equal(t, []float32{1, 0}, v)
}

func TestCache_EvictsOldest(t *testing.T) {
	c := NewCache(2)
	c.Set("a", []float32{1})
	c.Set("b", []float32{2})
	// Touch a so b becomes the eviction candidate.
	_, _ = c.Get("a")
	c.Set("c", []float32{3})

	_, ok := c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

// Exercised with -race: request-path reads and the background embed task
// share one cache, and a hit reorders the recency list.
func TestCache_ConcurrentGetSet(t *testing.T) {
	c := NewCache(16)
	keys := make([]string, 32)
	for i := range keys {
		keys[i] = Key(fmt.Sprintf("text-%d", i))
		c.Set(keys[i], []float32{float32(i)})
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				k := keys[(g+i)%len(keys)]
				if i%7 == 0 {
					c.Set(k, []float32{float32(i)})
					continue
				}
				c.Get(k)
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 16)
}

func TestMockEmbedder_Deterministic(t *testing.T) {
	m := NewMockEmbedder(8)
	a, err := m.Embed(context.Background(), "hello")
	require.NoError(t, err)
	b, err := m.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	other, err := m.Embed(context.Background(), "different")
	require.NoError(t, err)
	assert.NotEqual(t, a, other)
	assert.Len(t, a, 8)

	// Unit norm within tolerance.
	var sum float64
	for _, x := range a {
		sum += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, sum, 1e-5)
}
