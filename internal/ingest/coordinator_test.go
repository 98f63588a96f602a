package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kazane-dev/kiroku/internal/blob"
	"github.com/kazane-dev/kiroku/internal/config"
	"github.com/kazane-dev/kiroku/internal/embedding"
	"github.com/kazane-dev/kiroku/internal/keyword"
	"github.com/kazane-dev/kiroku/internal/models"
	"github.com/kazane-dev/kiroku/internal/processor"
	"github.com/kazane-dev/kiroku/internal/store"
	"github.com/kazane-dev/kiroku/internal/vector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	coord   *Coordinator
	records *store.SQLiteStore
	index   *vector.MemoryIndex
	blobs   *blob.DiskStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	records, err := store.NewSQLiteStore(filepath.Join(dir, "kiroku.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = records.Close() })

	keywords, err := keyword.NewBleveIndex(filepath.Join(dir, "chunks.bleve"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = keywords.Close() })

	blobs, err := blob.NewDiskStore(filepath.Join(dir, "blobs"), "http://localhost:8080")
	require.NoError(t, err)

	index, err := vector.NewMemoryIndex(8)
	require.NoError(t, err)

	proc := processor.New(config.ChunkingConfig{ChunkSize: 5000, ChunkOverlap: 200, MinChars: 10}, zap.NewNop())
	coord := New(proc, blobs, records, keywords, embedding.NewMockEmbedder(8), index, 2, zap.NewNop())
	return &fixture{coord: coord, records: records, index: index, blobs: blobs}
}

func textFile(id, name, content string) *models.RawFile {
	return &models.RawFile{
		ID: id, FileName: name, MimeType: "text/plain",
		Data: []byte(content), Size: int64(len(content)),
	}
}

func TestIngest_EndToEnd(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	files := []*models.RawFile{
		textFile("f1", "notes.txt", "The onboarding process starts with a laptop request. Access badges follow on day two."),
	}
	summary, err := fx.coord.Ingest(ctx, "sess-1", files, map[string]string{
		"user_id":   "u1",
		"tenant_id": "t1",
	})
	require.NoError(t, err)
	assert.Equal(t, "sess-1", summary.SessionID)
	assert.Empty(t, summary.Errors)
	require.Equal(t, 1, summary.TotalChunks)
	require.Len(t, summary.Records, 1)
	assert.True(t, len(summary.Records[0].Preview) <= previewLen+3)

	// Metadata is committed synchronously.
	recs, err := fx.records.GetChunksByFile(ctx, "f1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "u1", recs[0].UserID)
	assert.Contains(t, recs[0].BlobURL, "/files/t1/u1/")
	assert.Contains(t, recs[0].BlobURL, "notes.txt")

	// Vectors arrive in the background.
	assert.Eventually(t, func() bool { return fx.index.Size() == 1 },
		2*time.Second, 10*time.Millisecond)

	matches, err := fx.index.Query(ctx, mustEmbed(t, "onboarding laptop"), 5, vector.Filter{"user_id": "u1"})
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, recs[0].ID, matches[0].ID)
	assert.Equal(t, recs[0].Text, matches[0].Payload["text"])
}

func mustEmbed(t *testing.T, text string) []float32 {
	t.Helper()
	v, err := embedding.NewMockEmbedder(8).Embed(context.Background(), text)
	require.NoError(t, err)
	return v
}

func TestIngest_FailedFileReportedNotFatal(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	files := []*models.RawFile{
		textFile("f1", "good.txt", "Plenty of real content to chunk and store."),
		{ID: "f2", FileName: "junk.bin", MimeType: "application/octet-stream", Data: []byte("xx"), Size: 2},
	}
	summary, err := fx.coord.Ingest(ctx, "sess-2", files, map[string]string{"user_id": "u1"})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalChunks)
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], "junk.bin")
}

// failingBlobStore rejects every upload.
type failingBlobStore struct{ blob.Store }

func (failingBlobStore) Upload(context.Context, string, []byte, string) (string, error) {
	return "", errors.New("bucket unavailable")
}

func TestIngest_BlobFailureDropsFile(t *testing.T) {
	fx := newFixture(t)
	fx.coord.blobs = failingBlobStore{}
	ctx := context.Background()

	summary, err := fx.coord.Ingest(ctx, "sess-6",
		[]*models.RawFile{textFile("f1", "a.txt", "Content that extracts fine but cannot be stored.")},
		map[string]string{"user_id": "u1"})
	require.NoError(t, err)

	// The file is reported failed and no orphaned records are written.
	assert.Zero(t, summary.TotalChunks)
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], "store original")
	require.Len(t, summary.Files, 1)
	assert.Equal(t, models.StatusError, summary.Files[0].Status)

	recs, err := fx.records.GetChunksByFile(ctx, "f1")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestIngest_ChunkingOverride(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	var b strings.Builder
	for b.Len() < 2000 {
		b.WriteString("Every sentence pushes the override document a bit longer. ")
	}
	summary, err := fx.coord.Ingest(ctx, "sess-7",
		[]*models.RawFile{textFile("f1", "long.txt", b.String())},
		map[string]string{"user_id": "u1", "chunk_size": "500", "chunk_overlap": "50"})
	require.NoError(t, err)
	assert.Greater(t, summary.TotalChunks, 2)

	// Malformed overrides fall back to the configured defaults.
	summary, err = fx.coord.Ingest(ctx, "sess-8",
		[]*models.RawFile{textFile("f2", "long2.txt", b.String())},
		map[string]string{"user_id": "u1", "chunk_size": "banana"})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalChunks)
}

func TestIngest_AgentDowngrade(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	summary, err := fx.coord.Ingest(ctx, "sess-3",
		[]*models.RawFile{textFile("f1", "a.txt", "Some content worth keeping around here.")},
		map[string]string{"user_id": "u1", "agent_id": "not-a-uuid"})
	require.NoError(t, err)
	require.Equal(t, 1, summary.TotalChunks)

	recs, err := fx.records.GetChunksByFile(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, AgentUnassigned, recs[0].AgentID)
}

func TestDeleteFile_CleansAllStores(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.coord.Ingest(ctx, "sess-4",
		[]*models.RawFile{textFile("f1", "doomed.txt", "This file will be deleted shortly after ingestion.")},
		map[string]string{"user_id": "u1"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return fx.index.Size() == 1 },
		2*time.Second, 10*time.Millisecond)

	n, err := fx.coord.DeleteFile(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	recs, err := fx.records.GetChunksByFile(ctx, "f1")
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.Equal(t, 0, fx.index.Size())

	// Unknown file deletes nothing.
	n, err = fx.coord.DeleteFile(ctx, "ghost")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSanitizeFileName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"plain.txt", "plain.txt"},
		{"my report (final) [v2].pdf", "my-report-final-v2.pdf"},
		{`quoted "name"\path.doc`, "quoted-namepath.doc"},
		{"   ", "file"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeFileName(tt.in), tt.in)
	}
}

func TestIngest_EmptyBatch(t *testing.T) {
	fx := newFixture(t)
	summary, err := fx.coord.Ingest(context.Background(), "sess-5", nil, nil)
	require.NoError(t, err)
	assert.Zero(t, summary.TotalChunks)
	assert.Empty(t, summary.Records)
}
