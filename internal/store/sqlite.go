package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kazane-dev/kiroku/internal/models"
)

// SQLiteStore implements Store on SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a database at dbPath and initializes the
// schema. Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS chunk_records (
		id TEXT PRIMARY KEY,
		file_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		total_chunks INTEGER NOT NULL,
		text TEXT NOT NULL,
		file_name TEXT NOT NULL,
		file_type TEXT NOT NULL,
		file_size INTEGER NOT NULL,
		user_id TEXT NOT NULL,
		tenant_id TEXT,
		agent_id TEXT,
		blob_url TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_chunk_records_file_id ON chunk_records(file_id);
	CREATE INDEX IF NOT EXISTS idx_chunk_records_user_id ON chunk_records(user_id);
	CREATE INDEX IF NOT EXISTS idx_chunk_records_file_chunk ON chunk_records(file_id, chunk_index);
	`
	_, err := db.Exec(schema)
	return err
}

// SaveChunks inserts all records in one transaction.
func (s *SQLiteStore) SaveChunks(ctx context.Context, records []*models.ChunkRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunk_records
		 (id, file_id, chunk_index, total_chunks, text, file_name, file_type,
		  file_size, user_id, tenant_id, agent_id, blob_url, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			r.ID, r.FileID, r.ChunkIndex, r.TotalChunks, r.Text, r.FileName,
			r.FileType, r.FileSize, r.UserID, r.TenantID, r.AgentID, r.BlobURL,
			r.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert chunk %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// GetChunk returns a record by id.
func (s *SQLiteStore) GetChunk(ctx context.Context, id string) (*models.ChunkRecord, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	r, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("chunk not found: %s", id)
	}
	return r, err
}

// GetChunksByFile returns a file's records ordered by chunk index.
func (s *SQLiteStore) GetChunksByFile(ctx context.Context, fileID string) ([]*models.ChunkRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		selectColumns+` WHERE file_id = ? ORDER BY chunk_index`, fileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.ChunkRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// DeleteByFile removes a file's records and returns the deleted chunk ids.
func (s *SQLiteStore) DeleteByFile(ctx context.Context, fileID string) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT id FROM chunk_records WHERE file_id = ?`, fileID)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunk_records WHERE file_id = ?`, fileID); err != nil {
		return nil, fmt.Errorf("delete chunks for file %s: %w", fileID, err)
	}
	return ids, tx.Commit()
}

// CountChunks returns the total number of records.
func (s *SQLiteStore) CountChunks(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunk_records`).Scan(&n)
	return n, err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const selectColumns = `SELECT id, file_id, chunk_index, total_chunks, text,
	file_name, file_type, file_size, user_id, tenant_id, agent_id, blob_url,
	created_at FROM chunk_records`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.ChunkRecord, error) {
	var r models.ChunkRecord
	var tenantID, agentID, blobURL sql.NullString
	err := row.Scan(&r.ID, &r.FileID, &r.ChunkIndex, &r.TotalChunks, &r.Text,
		&r.FileName, &r.FileType, &r.FileSize, &r.UserID, &tenantID, &agentID,
		&blobURL, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	r.TenantID = tenantID.String
	r.AgentID = agentID.String
	r.BlobURL = blobURL.String
	return &r, nil
}
