// Package config provides configuration loading and structs for the Kiroku server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Upload    UploadConfig    `yaml:"upload"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Storage   StorageConfig   `yaml:"storage"`
	Vector    VectorConfig    `yaml:"vector"`
	Model     ModelConfig     `yaml:"model"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	PublicURL string `yaml:"public_url"`
}

// UploadConfig holds multipart stream limits and session lifecycle settings.
type UploadConfig struct {
	MaxFiles      int           `yaml:"max_files"`
	MaxFileBytes  int64         `yaml:"max_file_bytes"`
	MaxFieldBytes int64         `yaml:"max_field_bytes"`
	MaxFields     int           `yaml:"max_fields"`
	AllowedTypes  []string      `yaml:"allowed_types"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	SessionMaxAge time.Duration `yaml:"session_max_age"`
}

// ChunkingConfig holds chunk sizing parameters.
type ChunkingConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
	MinChars     int `yaml:"min_chars"`
}

// StorageConfig holds paths for the metadata database, blob root, and keyword index.
type StorageConfig struct {
	DatabasePath   string `yaml:"database_path"`
	BlobDir        string `yaml:"blob_dir"`
	BleveIndexPath string `yaml:"bleve_index_path"`
}

// QdrantConfig holds Qdrant REST endpoint settings.
type QdrantConfig struct {
	URL        string `yaml:"url"`
	APIKey     string `yaml:"api_key"`
	Collection string `yaml:"collection"`
}

// MilvusConfig holds Milvus connection settings.
type MilvusConfig struct {
	Address    string `yaml:"address"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// VectorConfig holds vector index backend settings.
type VectorConfig struct {
	Backend    string       `yaml:"backend"` // memory | qdrant | milvus
	Dimensions int          `yaml:"dimensions"`
	BatchSize  int          `yaml:"batch_size"`
	Qdrant     QdrantConfig `yaml:"qdrant"`
	Milvus     MilvusConfig `yaml:"milvus"`
}

// ModelConfig holds generative model settings and the use-case to model map.
type ModelConfig struct {
	APIKey         string            `yaml:"api_key"`
	EmbeddingModel string            `yaml:"embedding_model"`
	Models         map[string]string `yaml:"models"` // rag|simple|complex|attributed -> model name
	MaxRetries     int               `yaml:"max_retries"`
	BaseDelay      time.Duration     `yaml:"base_delay"`
	Timeout        time.Duration     `yaml:"timeout"`
	CacheSize      int               `yaml:"cache_size"`
}

// RetrievalConfig holds RAG retrieval settings.
type RetrievalConfig struct {
	TopK           int     `yaml:"top_k"`
	ScoreThreshold float64 `yaml:"score_threshold"`
	TokenBudget    int     `yaml:"token_budget"`
}

// WatchConfig holds the optional drop-directory ingest settings.
type WatchConfig struct {
	Directory  string   `yaml:"directory"`
	Extensions []string `yaml:"extensions"`
	UserID     string   `yaml:"user_id"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.BlobDir = expandPath(cfg.Storage.BlobDir, configDir)
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)
	if cfg.Watch.Directory != "" {
		cfg.Watch.Directory = expandPath(cfg.Watch.Directory, configDir)
	}
	if cfg.Model.APIKey == "" {
		cfg.Model.APIKey = os.Getenv("GEMINI_API_KEY")
	}

	return &cfg, nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
