package models

import "time"

// ChunkMetadata is the context echoed onto every chunk of a file.
type ChunkMetadata struct {
	FileID      string    `json:"file_id"`
	ChunkIndex  int       `json:"chunk_index"`
	TotalChunks int       `json:"total_chunks"`
	FileName    string    `json:"file_name"`
	FileType    string    `json:"file_type"`
	FileSize    int64     `json:"file_size"`
	UserID      string    `json:"user_id"`
	TenantID    string    `json:"tenant_id,omitempty"`
	AgentID     string    `json:"agent_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ChunkEntry is a freshly generated chunk with its caller-issued id. The id is
// the join key between the metadata record and the vector entry: exactly one
// vector entry exists per chunk id.
type ChunkEntry struct {
	ID       string        `json:"id"`
	Text     string        `json:"text"`
	Metadata ChunkMetadata `json:"metadata"`
}

// ChunkRecord is the persisted metadata record, one per chunk.
type ChunkRecord struct {
	ID          string    `json:"id" db:"id"`
	FileID      string    `json:"file_id" db:"file_id"`
	ChunkIndex  int       `json:"chunk_index" db:"chunk_index"`
	TotalChunks int       `json:"total_chunks" db:"total_chunks"`
	Text        string    `json:"text" db:"text"`
	FileName    string    `json:"file_name" db:"file_name"`
	FileType    string    `json:"file_type" db:"file_type"`
	FileSize    int64     `json:"file_size" db:"file_size"`
	UserID      string    `json:"user_id" db:"user_id"`
	TenantID    string    `json:"tenant_id" db:"tenant_id"`
	AgentID     string    `json:"agent_id" db:"agent_id"`
	BlobURL     string    `json:"blob_url" db:"blob_url"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// RecordPreview is a truncated view of a created record, returned in the
// ingestion summary.
type RecordPreview struct {
	ID         string `json:"id"`
	FileName   string `json:"file_name"`
	ChunkIndex int    `json:"chunk_index"`
	Preview    string `json:"preview"`
}

// IngestionSummary is the response of one ingestion request.
type IngestionSummary struct {
	SessionID   string          `json:"session_id"`
	Files       []FileResult    `json:"files"`
	TotalChunks int             `json:"total_chunks"`
	Records     []RecordPreview `json:"records"`
	Errors      []string        `json:"errors"`
}

// RetrievalResult is a similarity hit produced per query.
type RetrievalResult struct {
	ChunkID  string  `json:"chunk_id"`
	Score    float64 `json:"score"`
	Text     string  `json:"text"`
	FileName string  `json:"file_name,omitempty"`
}

// Answer is the final RAG response.
type Answer struct {
	Text          string            `json:"answer"`
	Sources       []RetrievalResult `json:"sources"`
	ContextChunks int               `json:"context_chunks"`
}
