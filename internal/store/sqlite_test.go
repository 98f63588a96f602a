package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/kazane-dev/kiroku/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "kiroku.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func record(id, fileID string, idx int) *models.ChunkRecord {
	return &models.ChunkRecord{
		ID:          id,
		FileID:      fileID,
		ChunkIndex:  idx,
		TotalChunks: 2,
		Text:        "chunk text " + id,
		FileName:    "doc.pdf",
		FileType:    "pdf",
		FileSize:    1234,
		UserID:      "u1",
		TenantID:    "t1",
		BlobURL:     "http://localhost:8080/files/t1/u1/doc.pdf",
		CreatedAt:   time.Now().UTC(),
	}
}

func TestSaveAndGetChunks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveChunks(ctx, []*models.ChunkRecord{
		record("c2", "f1", 1),
		record("c1", "f1", 0),
	}))

	got, err := s.GetChunk(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "chunk text c1", got.Text)
	assert.Equal(t, "t1", got.TenantID)

	byFile, err := s.GetChunksByFile(ctx, "f1")
	require.NoError(t, err)
	require.Len(t, byFile, 2)
	// Ordered by chunk index regardless of insert order.
	assert.Equal(t, "c1", byFile[0].ID)
	assert.Equal(t, "c2", byFile[1].ID)

	n, err := s.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestSaveChunks_Atomic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveChunks(ctx, []*models.ChunkRecord{record("dup", "f1", 0)}))

	// Second batch collides on the primary key; nothing from it may survive.
	err := s.SaveChunks(ctx, []*models.ChunkRecord{
		record("fresh", "f2", 0),
		record("dup", "f2", 1),
	})
	require.Error(t, err)

	_, err = s.GetChunk(ctx, "fresh")
	assert.Error(t, err)
	n, err := s.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestDeleteByFile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveChunks(ctx, []*models.ChunkRecord{
		record("a1", "f1", 0),
		record("a2", "f1", 1),
		record("b1", "f2", 0),
	}))

	ids, err := s.DeleteByFile(ctx, "f1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a1", "a2"}, ids)

	n, err := s.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// Unknown file returns no ids and no error.
	ids, err = s.DeleteByFile(ctx, "ghost")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestGetChunk_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetChunk(context.Background(), "nope")
	assert.ErrorContains(t, err, "chunk not found")
}
