// Package processor runs extraction and chunking for a batch of uploaded
// files, one goroutine per file.
package processor

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kazane-dev/kiroku/internal/chunker"
	"github.com/kazane-dev/kiroku/internal/config"
	"github.com/kazane-dev/kiroku/internal/extract"
	"github.com/kazane-dev/kiroku/internal/models"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// Identity carries the caller context stamped onto every chunk of a batch.
type Identity struct {
	UserID   string
	TenantID string
	AgentID  string
}

// Options overrides the configured chunking parameters for one batch. Zero
// values keep the configured defaults.
type Options struct {
	ChunkSize    int
	ChunkOverlap int
}

// Processor extracts and chunks files in parallel. Each file succeeds or
// fails on its own; a failed file is reported in its FileResult and never
// cancels siblings.
type Processor struct {
	cfg    config.ChunkingConfig
	logger *zap.Logger
}

// New creates a processor with the given chunking configuration.
func New(cfg config.ChunkingConfig, logger *zap.Logger) *Processor {
	return &Processor{cfg: cfg, logger: logger}
}

// Process runs every file through extraction and chunking on a pool sized to
// the batch. Results come back in input order.
func (p *Processor) Process(files []*models.RawFile, id Identity, opts Options) []models.FileResult {
	results := make([]models.FileResult, len(files))
	if len(files) == 0 {
		return results
	}

	pool, err := ants.NewPool(len(files))
	if err != nil {
		// Pool creation only fails on invalid size; fall back to serial.
		for i, f := range files {
			results[i] = p.processOne(f, id, opts)
		}
		return results
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i, f := range files {
		i, f := i, f
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			results[i] = p.processOne(f, id, opts)
		})
		if submitErr != nil {
			results[i] = p.processOne(f, id, opts)
			wg.Done()
		}
	}
	wg.Wait()
	return results
}

func (p *Processor) processOne(f *models.RawFile, id Identity, opts Options) models.FileResult {
	start := time.Now()
	res := models.FileResult{
		FileID:   f.ID,
		FileName: f.FileName,
		ByteSize: f.Size,
	}

	format := extract.FormatForMime(f.MimeType)
	text, err := extract.Extract(format, f.Data)
	if err != nil {
		p.logger.Warn("extraction failed",
			zap.String("file", f.FileName),
			zap.Error(err))
		res.Status = models.StatusError
		res.Error = err.Error()
		return res
	}
	if len(text) < p.cfg.MinChars {
		res.Status = models.StatusError
		res.Error = "empty or failed extraction"
		return res
	}
	res.TextLength = len(text)

	requested := p.cfg.ChunkSize
	if opts.ChunkSize > 0 {
		requested = opts.ChunkSize
	}
	overlap := p.cfg.ChunkOverlap
	if opts.ChunkOverlap > 0 && opts.ChunkOverlap < requested {
		overlap = opts.ChunkOverlap
	}
	size := chunker.EffectiveChunkSize(requested, len(text))
	texts := chunker.New(size, overlap).Chunk(text)
	res.Chunks = buildEntries(texts, f, string(format), id)
	res.ChunkCount = len(res.Chunks)
	res.Status = models.StatusCompleted

	p.logger.Debug("file processed",
		zap.String("file", f.FileName),
		zap.Int("chunks", res.ChunkCount),
		zap.Duration("took", time.Since(start)))
	return res
}

// buildEntries issues a fresh id per chunk and stamps the shared metadata.
func buildEntries(texts []string, f *models.RawFile, fileType string, id Identity) []models.ChunkEntry {
	now := time.Now().UTC()
	entries := make([]models.ChunkEntry, len(texts))
	for i, text := range texts {
		entries[i] = models.ChunkEntry{
			ID:   uuid.New().String(),
			Text: text,
			Metadata: models.ChunkMetadata{
				FileID:      f.ID,
				ChunkIndex:  i,
				TotalChunks: len(texts),
				FileName:    f.FileName,
				FileType:    fileType,
				FileSize:    f.Size,
				UserID:      id.UserID,
				TenantID:    id.TenantID,
				AgentID:     id.AgentID,
				CreatedAt:   now,
			},
		}
	}
	return entries
}
