package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "./data/knowledge.db"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	wantDB := filepath.Join(filepath.Dir(path), "data", "knowledge.db")
	if cfg.Storage.DatabasePath != wantDB {
		t.Errorf("database_path = %q, want %q", cfg.Storage.DatabasePath, wantDB)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_missingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoad_apiKeyFromEnv(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "env-key")
	path := writeConfig(t, `
server:
  port: 8080
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Model.APIKey != "env-key" {
		t.Errorf("api key = %q, want env-key", cfg.Model.APIKey)
	}
}

func TestLoad_configAPIKeyWinsOverEnv(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "env-key")
	path := writeConfig(t, `
model:
  api_key: "file-key"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Model.APIKey != "file-key" {
		t.Errorf("api key = %q, want file-key", cfg.Model.APIKey)
	}
}

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	ApplyDefaults(&cfg)

	if cfg.Upload.MaxFiles != 20 {
		t.Errorf("MaxFiles = %d", cfg.Upload.MaxFiles)
	}
	if cfg.Upload.MaxFileBytes != 1<<30 {
		t.Errorf("MaxFileBytes = %d", cfg.Upload.MaxFileBytes)
	}
	if cfg.Chunking.ChunkSize != 5000 || cfg.Chunking.ChunkOverlap != 200 {
		t.Errorf("chunking defaults: %+v", cfg.Chunking)
	}
	if cfg.Vector.Backend != "memory" || cfg.Vector.Dimensions != 768 {
		t.Errorf("vector defaults: %+v", cfg.Vector)
	}
	if cfg.Retrieval.TopK != 5 || cfg.Retrieval.ScoreThreshold != 0.7 || cfg.Retrieval.TokenBudget != 30000 {
		t.Errorf("retrieval defaults: %+v", cfg.Retrieval)
	}
	if cfg.Model.MaxRetries != 3 || cfg.Model.BaseDelay != time.Second || cfg.Model.Timeout != 60*time.Second {
		t.Errorf("model defaults: %+v", cfg.Model)
	}
	if cfg.Model.Models["rag"] == "" || cfg.Model.Models["complex"] == "" {
		t.Errorf("model map defaults: %+v", cfg.Model.Models)
	}
	if cfg.Upload.SweepInterval != 10*time.Minute || cfg.Upload.SessionMaxAge != 30*time.Minute {
		t.Errorf("session defaults: %+v", cfg.Upload)
	}
}

func TestApplyDefaults_keepsExplicitValues(t *testing.T) {
	cfg := Config{}
	cfg.Chunking.ChunkSize = 9000
	cfg.Retrieval.ScoreThreshold = 0.5
	ApplyDefaults(&cfg)

	if cfg.Chunking.ChunkSize != 9000 {
		t.Errorf("ChunkSize overridden: %d", cfg.Chunking.ChunkSize)
	}
	if cfg.Retrieval.ScoreThreshold != 0.5 {
		t.Errorf("ScoreThreshold overridden: %f", cfg.Retrieval.ScoreThreshold)
	}
}
