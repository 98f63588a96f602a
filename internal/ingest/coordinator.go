// Package ingest coordinates the knowledge base write path: process uploaded
// files, persist originals and chunk metadata, and embed chunks in the
// background.
package ingest

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kazane-dev/kiroku/internal/blob"
	"github.com/kazane-dev/kiroku/internal/embedding"
	"github.com/kazane-dev/kiroku/internal/models"
	"github.com/kazane-dev/kiroku/internal/processor"
	"github.com/kazane-dev/kiroku/internal/store"
	"github.com/kazane-dev/kiroku/internal/vector"
	"github.com/kazane-dev/kiroku/pkg/utils"
	"go.uber.org/zap"
)

// AgentUnassigned is the agent id stamped when the caller supplied none, or
// an invalid one.
const AgentUnassigned = "unassigned"

// previewLen bounds the chunk text echoed in ingestion summaries.
const previewLen = 100

// KeywordIndex is the slice of the full-text index the coordinator writes to.
type KeywordIndex interface {
	IndexChunks(ctx context.Context, records []*models.ChunkRecord) error
	DeleteChunks(ctx context.Context, ids []string) error
}

// Coordinator drives one ingestion end to end. Chunk metadata persistence is
// the commit point: once records are saved the request succeeds, and
// embedding runs in the background.
type Coordinator struct {
	processor *processor.Processor
	blobs     blob.Store
	records   store.Store
	keywords  KeywordIndex
	embedder  embedding.Embedder
	index     vector.Index
	batchSize int
	logger    *zap.Logger
}

// New creates a coordinator. batchSize bounds embedding batches.
func New(proc *processor.Processor, blobs blob.Store, records store.Store,
	keywords KeywordIndex, embedder embedding.Embedder, index vector.Index,
	batchSize int, logger *zap.Logger) *Coordinator {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Coordinator{
		processor: proc,
		blobs:     blobs,
		records:   records,
		keywords:  keywords,
		embedder:  embedder,
		index:     index,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Ingest processes files, stores originals and chunk records, and schedules
// background embedding. Per-file failures are reported in the summary; only
// a metadata persistence failure fails the whole call.
func (c *Coordinator) Ingest(ctx context.Context, sessionID string, files []*models.RawFile, fields map[string]string) (*models.IngestionSummary, error) {
	id := identityFrom(fields, c.logger)
	results := c.processor.Process(files, id, chunkOptionsFrom(fields, c.logger))

	summary := &models.IngestionSummary{SessionID: sessionID}
	var allRecords []*models.ChunkRecord
	for i := range results {
		res := &results[i]
		if res.Status != models.StatusCompleted {
			summary.Errors = append(summary.Errors,
				fmt.Sprintf("%s: %s", res.FileName, res.Error))
			continue
		}

		blobURL, err := c.uploadOriginal(ctx, fileByID(files, res.FileID), id)
		if err != nil {
			// A file whose original cannot be stored is a failed file; its
			// chunks are dropped so no record points at a missing blob.
			c.logger.Warn("blob upload failed",
				zap.String("file", res.FileName), zap.Error(err))
			res.Status = models.StatusError
			res.Error = fmt.Sprintf("store original: %v", err)
			res.Chunks = nil
			res.ChunkCount = 0
			summary.Errors = append(summary.Errors,
				fmt.Sprintf("%s: %s", res.FileName, res.Error))
			continue
		}
		res.BlobURL = blobURL

		for _, ch := range res.Chunks {
			allRecords = append(allRecords, recordFrom(ch, blobURL))
		}
		summary.TotalChunks += res.ChunkCount
	}

	if err := c.records.SaveChunks(ctx, allRecords); err != nil {
		return nil, fmt.Errorf("persist chunk metadata: %w", err)
	}
	if len(allRecords) > 0 {
		if err := c.keywords.IndexChunks(ctx, allRecords); err != nil {
			c.logger.Warn("keyword indexing failed", zap.Error(err))
		}
		c.scheduleEmbedding(allRecords)
	}

	summary.Files = results
	for _, r := range allRecords {
		summary.Records = append(summary.Records, models.RecordPreview{
			ID:         r.ID,
			FileName:   r.FileName,
			ChunkIndex: r.ChunkIndex,
			Preview:    utils.Truncate(r.Text, previewLen),
		})
	}
	return summary, nil
}

// DeleteFile removes a file's chunks from every store: metadata, vectors,
// keyword index, and the original blob.
func (c *Coordinator) DeleteFile(ctx context.Context, fileID string) (int, error) {
	records, err := c.records.GetChunksByFile(ctx, fileID)
	if err != nil {
		return 0, fmt.Errorf("load chunks for file %s: %w", fileID, err)
	}

	ids, err := c.records.DeleteByFile(ctx, fileID)
	if err != nil {
		return 0, fmt.Errorf("delete chunk metadata: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if err := c.index.Delete(ctx, ids); err != nil {
		c.logger.Warn("vector delete failed", zap.String("file_id", fileID), zap.Error(err))
	}
	if err := c.keywords.DeleteChunks(ctx, ids); err != nil {
		c.logger.Warn("keyword delete failed", zap.String("file_id", fileID), zap.Error(err))
	}
	if len(records) > 0 && records[0].BlobURL != "" {
		if path := c.blobPath(records[0].BlobURL); path != "" {
			if err := c.blobs.Remove(ctx, path); err != nil {
				c.logger.Warn("blob remove failed", zap.String("file_id", fileID), zap.Error(err))
			}
		}
	}
	return len(ids), nil
}

// scheduleEmbedding embeds and upserts records in the background. Failures
// are logged; the chunks stay searchable by keyword and can be re-ingested.
func (c *Coordinator) scheduleEmbedding(records []*models.ChunkRecord) {
	go func() {
		ctx := context.Background()
		for start := 0; start < len(records); start += c.batchSize {
			end := start + c.batchSize
			if end > len(records) {
				end = len(records)
			}
			if err := c.embedBatch(ctx, records[start:end]); err != nil {
				c.logger.Error("background embedding failed",
					zap.Int("batch_start", start), zap.Error(err))
			}
		}
	}()
}

func (c *Coordinator) embedBatch(ctx context.Context, records []*models.ChunkRecord) error {
	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = r.Text
	}
	vecs, err := c.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed batch: %w", err)
	}

	entries := make([]vector.Entry, len(records))
	for i, r := range records {
		entries[i] = vector.Entry{
			ID:     r.ID,
			Vector: vecs[i],
			Payload: map[string]string{
				"text":      r.Text,
				"file_id":   r.FileID,
				"file_name": r.FileName,
				"user_id":   r.UserID,
				"tenant_id": r.TenantID,
				"agent_id":  r.AgentID,
			},
		}
	}
	if err := c.index.Upsert(ctx, entries); err != nil {
		return fmt.Errorf("upsert vectors: %w", err)
	}
	c.logger.Debug("embedded chunk batch", zap.Int("chunks", len(records)))
	return nil
}

func (c *Coordinator) uploadOriginal(ctx context.Context, f *models.RawFile, id processor.Identity) (string, error) {
	if f == nil {
		return "", fmt.Errorf("original file missing")
	}
	path := fmt.Sprintf("%s/%s/%d-%s",
		pathSegment(id.TenantID, "default"),
		pathSegment(id.UserID, "anonymous"),
		time.Now().UnixMilli(),
		sanitizeFileName(f.FileName))
	return c.blobs.Upload(ctx, path, f.Data, f.MimeType)
}

// blobPath recovers the storage path from a public blob URL.
func (c *Coordinator) blobPath(url string) string {
	prefix := c.blobs.PublicURL("")
	if !strings.HasPrefix(url, prefix) {
		return ""
	}
	return strings.TrimPrefix(url, prefix)
}

// identityFrom reads the caller identity form fields. A missing or malformed
// agent id downgrades to unassigned instead of failing the upload.
func identityFrom(fields map[string]string, logger *zap.Logger) processor.Identity {
	id := processor.Identity{
		UserID:   strings.TrimSpace(fields["user_id"]),
		TenantID: strings.TrimSpace(fields["tenant_id"]),
		AgentID:  strings.TrimSpace(fields["agent_id"]),
	}
	if id.UserID == "" {
		id.UserID = "anonymous"
	}
	if id.AgentID == "" {
		id.AgentID = AgentUnassigned
	} else if _, err := uuid.Parse(id.AgentID); err != nil {
		logger.Warn("invalid agent id, downgrading to unassigned",
			zap.String("agent_id", id.AgentID))
		id.AgentID = AgentUnassigned
	}
	return id
}

// chunkOptionsFrom reads the optional per-request chunking overrides.
// Malformed values are ignored with a warning.
func chunkOptionsFrom(fields map[string]string, logger *zap.Logger) processor.Options {
	var opts processor.Options
	for field, dst := range map[string]*int{
		"chunk_size":    &opts.ChunkSize,
		"chunk_overlap": &opts.ChunkOverlap,
	} {
		raw := strings.TrimSpace(fields[field])
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			logger.Warn("ignoring invalid chunking override",
				zap.String("field", field), zap.String("value", raw))
			continue
		}
		*dst = n
	}
	return opts
}

var unsafeNameChars = regexp.MustCompile(`[\[\]{}()'"\\]`)

// sanitizeFileName strips brackets, quotes, and backslashes, and collapses
// whitespace to hyphens, so the name is safe in a storage path.
func sanitizeFileName(name string) string {
	clean := unsafeNameChars.ReplaceAllString(name, "")
	clean = strings.Join(strings.Fields(clean), "-")
	if clean == "" {
		return "file"
	}
	return clean
}

func pathSegment(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return sanitizeFileName(v)
}

func recordFrom(ch models.ChunkEntry, blobURL string) *models.ChunkRecord {
	m := ch.Metadata
	return &models.ChunkRecord{
		ID:          ch.ID,
		FileID:      m.FileID,
		ChunkIndex:  m.ChunkIndex,
		TotalChunks: m.TotalChunks,
		Text:        ch.Text,
		FileName:    m.FileName,
		FileType:    m.FileType,
		FileSize:    m.FileSize,
		UserID:      m.UserID,
		TenantID:    m.TenantID,
		AgentID:     m.AgentID,
		BlobURL:     blobURL,
		CreatedAt:   m.CreatedAt,
	}
}

func fileByID(files []*models.RawFile, id string) *models.RawFile {
	for _, f := range files {
		if f.ID == id {
			return f
		}
	}
	return nil
}
