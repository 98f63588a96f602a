package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.PublicURL == "" {
		cfg.Server.PublicURL = "http://localhost:8080"
	}
	if cfg.Upload.MaxFiles == 0 {
		cfg.Upload.MaxFiles = 20
	}
	if cfg.Upload.MaxFileBytes == 0 {
		cfg.Upload.MaxFileBytes = 1 << 30 // 1 GiB
	}
	if cfg.Upload.MaxFieldBytes == 0 {
		cfg.Upload.MaxFieldBytes = 1 << 20
	}
	if cfg.Upload.MaxFields == 0 {
		cfg.Upload.MaxFields = 30
	}
	if cfg.Upload.AllowedTypes == nil {
		cfg.Upload.AllowedTypes = []string{
			"application/pdf",
			"application/msword",
			"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
			"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			"text/plain",
			"text/markdown",
		}
	}
	if cfg.Upload.SweepInterval == 0 {
		cfg.Upload.SweepInterval = 10 * time.Minute
	}
	if cfg.Upload.SessionMaxAge == 0 {
		cfg.Upload.SessionMaxAge = 30 * time.Minute
	}
	if cfg.Chunking.ChunkSize == 0 {
		cfg.Chunking.ChunkSize = 5000
	}
	if cfg.Chunking.ChunkOverlap == 0 {
		cfg.Chunking.ChunkOverlap = 200
	}
	if cfg.Chunking.MinChars == 0 {
		cfg.Chunking.MinChars = 10
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/kiroku/data/db/knowledge.db"
	}
	if cfg.Storage.BlobDir == "" {
		cfg.Storage.BlobDir = "/usr/local/var/kiroku/data/blobs"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = "/usr/local/var/kiroku/data/indices/bleve"
	}
	if cfg.Vector.Backend == "" {
		cfg.Vector.Backend = "memory"
	}
	if cfg.Vector.Dimensions == 0 {
		cfg.Vector.Dimensions = 768
	}
	if cfg.Vector.BatchSize == 0 {
		cfg.Vector.BatchSize = 100
	}
	if cfg.Vector.Qdrant.Collection == "" {
		cfg.Vector.Qdrant.Collection = "kiroku_chunks"
	}
	if cfg.Vector.Milvus.Collection == "" {
		cfg.Vector.Milvus.Collection = "kiroku_chunks"
	}
	if cfg.Model.EmbeddingModel == "" {
		cfg.Model.EmbeddingModel = "text-embedding-004"
	}
	if cfg.Model.Models == nil {
		cfg.Model.Models = map[string]string{}
	}
	if cfg.Model.Models["rag"] == "" {
		cfg.Model.Models["rag"] = "gemini-2.0-flash"
	}
	if cfg.Model.Models["simple"] == "" {
		cfg.Model.Models["simple"] = "gemini-2.0-flash"
	}
	if cfg.Model.Models["complex"] == "" {
		cfg.Model.Models["complex"] = "gemini-2.5-pro"
	}
	if cfg.Model.Models["attributed"] == "" {
		cfg.Model.Models["attributed"] = "gemini-2.5-pro"
	}
	if cfg.Model.MaxRetries == 0 {
		cfg.Model.MaxRetries = 3
	}
	if cfg.Model.BaseDelay == 0 {
		cfg.Model.BaseDelay = time.Second
	}
	if cfg.Model.Timeout == 0 {
		cfg.Model.Timeout = 60 * time.Second
	}
	if cfg.Model.CacheSize == 0 {
		cfg.Model.CacheSize = 10000
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Retrieval.ScoreThreshold == 0 {
		cfg.Retrieval.ScoreThreshold = 0.7
	}
	if cfg.Retrieval.TokenBudget == 0 {
		cfg.Retrieval.TokenBudget = 30000
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".txt", ".md", ".pdf", ".doc", ".docx", ".xlsx"}
	}
	if cfg.Watch.UserID == "" {
		cfg.Watch.UserID = "system"
	}
}
