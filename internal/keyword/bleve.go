// Package keyword provides full-text chunk search backed by Bleve.
package keyword

import (
	"context"
	"fmt"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/kazane-dev/kiroku/internal/models"
)

// Result is a keyword search hit.
type Result struct {
	ChunkID  string  `json:"chunk_id"`
	FileID   string  `json:"file_id"`
	FileName string  `json:"file_name"`
	Score    float64 `json:"score"`
	Fragment string  `json:"fragment,omitempty"`
}

// chunkDoc is the shape indexed per chunk.
type chunkDoc struct {
	Text     string `json:"text"`
	FileID   string `json:"file_id"`
	FileName string `json:"file_name"`
	UserID   string `json:"user_id"`
}

// BleveIndex is a chunk-level full-text index.
type BleveIndex struct {
	index bleve.Index
}

// NewBleveIndex creates or opens a Bleve index at path. An existing index is
// reused; remove the directory after a mapping change to force a re-index.
func NewBleveIndex(path string) (*BleveIndex, error) {
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()

	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so queries match
	// the exact word.
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("text", textFieldMapping)
	docMapping.AddFieldMappingsAt("file_name", textFieldMapping)

	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	docMapping.AddFieldMappingsAt("file_id", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("user_id", keywordFieldMapping)

	im.AddDocumentMapping("chunk", docMapping)
	im.DefaultType = "chunk"
	im.DefaultMapping = docMapping

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// NewMemoryIndex creates an unpersisted index, for tests.
func NewMemoryIndex() (*BleveIndex, error) {
	im := bleve.NewIndexMapping()
	index, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// IndexChunks indexes a batch of chunk records in one Bleve batch.
func (b *BleveIndex) IndexChunks(_ context.Context, records []*models.ChunkRecord) error {
	batch := b.index.NewBatch()
	for _, r := range records {
		doc := chunkDoc{
			Text:     r.Text,
			FileID:   r.FileID,
			FileName: r.FileName,
			UserID:   r.UserID,
		}
		if err := batch.Index(r.ID, doc); err != nil {
			return fmt.Errorf("batch index chunk %s: %w", r.ID, err)
		}
	}
	return b.index.Batch(batch)
}

// Search runs a match query over chunk text, restricted to userID when set.
func (b *BleveIndex) Search(_ context.Context, userID, query string, limit int) ([]*Result, error) {
	match := bleve.NewMatchQuery(query)
	match.SetField("text")

	var q = bleve.NewConjunctionQuery(match)
	if userID != "" {
		userQ := bleve.NewTermQuery(userID)
		userQ.SetField("user_id")
		q.AddQuery(userQ)
	}

	req := bleve.NewSearchRequest(q)
	req.Size = limit
	req.Fields = []string{"file_id", "file_name"}
	req.Highlight = bleve.NewHighlightWithStyle("html")
	req.Highlight.AddField("text")

	results, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}

	out := make([]*Result, 0, len(results.Hits))
	for _, hit := range results.Hits {
		r := &Result{ChunkID: hit.ID, Score: hit.Score}
		if v, ok := hit.Fields["file_id"].(string); ok {
			r.FileID = v
		}
		if v, ok := hit.Fields["file_name"].(string); ok {
			r.FileName = v
		}
		if frags, ok := hit.Fragments["text"]; ok && len(frags) > 0 {
			r.Fragment = frags[0]
		}
		out = append(out, r)
	}
	return out, nil
}

// DeleteChunks removes chunk ids from the index.
func (b *BleveIndex) DeleteChunks(_ context.Context, ids []string) error {
	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	return b.index.Batch(batch)
}

// Close closes the underlying index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
