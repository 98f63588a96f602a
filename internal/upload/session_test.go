package upload

import (
	"testing"
	"time"

	"github.com/kazane-dev/kiroku/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestSession_ProgressOrder(t *testing.T) {
	a := NewArena(time.Hour)
	s := a.Create("u", 1000)
	s.TrackFile("f1", "one.txt")
	s.TrackFile("f2", "two.txt")
	s.AddBytes("f1", 500)
	s.SetStatus("f2", models.StatusCompleted, "")

	prog := s.Progress()
	assert.Equal(t, "f1", prog[0].FileID)
	assert.Equal(t, "f2", prog[1].FileID)
	assert.Equal(t, float64(50), prog[0].Percentage)
	assert.Equal(t, float64(100), prog[1].Percentage)
}

func TestSession_AddBytesUnknownFile(t *testing.T) {
	a := NewArena(time.Hour)
	s := a.Create("u", 1000)
	s.AddBytes("ghost", 100) // no panic, no entry
	assert.Empty(t, s.Progress())
}

func TestArena_Sweep(t *testing.T) {
	a := NewArena(30 * time.Minute)

	stale := a.Create("u", 100)
	stale.Complete()
	fresh := a.Create("u", 100)
	fresh.Complete()

	// Age the stale session past the cutoff.
	stale.mu.Lock()
	stale.completedAt = time.Now().Add(-time.Hour)
	stale.mu.Unlock()

	removed := a.Sweep(time.Now())
	assert.Equal(t, 1, removed)
	assert.Nil(t, a.Get(stale.ID))
	assert.NotNil(t, a.Get(fresh.ID))
}

func TestArena_SweepUsesCreationForIncomplete(t *testing.T) {
	a := NewArena(30 * time.Minute)
	s := a.Create("u", 100)
	s.CreatedAt = time.Now().Add(-time.Hour) // never completed

	removed := a.Sweep(time.Now())
	assert.Equal(t, 1, removed)
	assert.Equal(t, 0, a.Len())
}
