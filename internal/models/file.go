// Package models defines core data structures for uploads, chunks, and query results.
package models

// FileStatus tracks a file through upload and processing.
type FileStatus string

const (
	StatusUploading  FileStatus = "uploading"
	StatusProcessing FileStatus = "processing"
	StatusCompleted  FileStatus = "completed"
	StatusError      FileStatus = "error"
)

// RawFile is a fully received upload part. It is immutable once the part
// finishes streaming; ownership passes to the processor and then to the
// ingestion coordinator for blob upload.
type RawFile struct {
	ID        string `json:"id"`
	FieldName string `json:"field_name"`
	FileName  string `json:"file_name"`
	MimeType  string `json:"mime_type"`
	Data      []byte `json:"-"`
	Size      int64  `json:"size"`
}

// UploadProgress is a per-file progress snapshot served to clients.
type UploadProgress struct {
	FileID        string     `json:"fileId"`
	FileName      string     `json:"fileName"`
	BytesReceived int64      `json:"bytesReceived"`
	TotalBytes    int64      `json:"totalBytes"`
	Percentage    float64    `json:"percentage"`
	Status        FileStatus `json:"status"`
	Error         string     `json:"error,omitempty"`
}

// UploadResult is what the receiver hands over when the multipart stream ends:
// every fully received file plus the non-file form fields. Individual file
// errors are recorded on the session and do not prevent completion.
type UploadResult struct {
	SessionID string
	Files     []*RawFile
	Fields    map[string]string
	Errors    []string
}

// FileResult is the per-file outcome of parallel processing. A failed file
// carries an error message and zero chunks; it never cancels sibling files.
type FileResult struct {
	FileID     string       `json:"file_id"`
	FileName   string       `json:"file_name"`
	Status     FileStatus   `json:"status"`
	Error      string       `json:"error,omitempty"`
	ByteSize   int64        `json:"byte_size"`
	TextLength int          `json:"text_length"`
	ChunkCount int          `json:"chunk_count"`
	Chunks     []ChunkEntry `json:"-"`
	BlobURL    string       `json:"blob_url,omitempty"`
}
