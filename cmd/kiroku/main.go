// Package main is the Kiroku server entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/kazane-dev/kiroku/internal/blob"
	"github.com/kazane-dev/kiroku/internal/config"
	"github.com/kazane-dev/kiroku/internal/embedding"
	"github.com/kazane-dev/kiroku/internal/genmodel"
	"github.com/kazane-dev/kiroku/internal/ingest"
	"github.com/kazane-dev/kiroku/internal/keyword"
	"github.com/kazane-dev/kiroku/internal/processor"
	"github.com/kazane-dev/kiroku/internal/rag"
	"github.com/kazane-dev/kiroku/internal/server"
	"github.com/kazane-dev/kiroku/internal/store"
	"github.com/kazane-dev/kiroku/internal/upload"
	"github.com/kazane-dev/kiroku/internal/vector"
	"github.com/kazane-dev/kiroku/internal/watcher"
	"github.com/kazane-dev/kiroku/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kiroku/config.yaml"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	switch os.Args[1] {
	case "server":
		runServer()
	case "version", "--version", "-v":
		fmt.Printf("kiroku version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: kiroku <command> [flags]

Commands:
  server    start the knowledge base server
  version   print the version
  help      show this help

Server flags:
  -config   config file path (default ` + defaultConfigPath + `)
  -debug    enable debug logging`)
}

// loadConfig loads config from path. When path is the default, a config.yaml
// in the current directory takes precedence, so running from the project dir
// uses the project's config.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedPath),
		zap.Bool("debug", debugMode))

	ctx := context.Background()

	records, err := store.NewSQLiteStore(cfg.Storage.DatabasePath)
	if err != nil {
		logger.Fatal("failed to open metadata store", zap.Error(err))
	}
	defer records.Close()

	blobs, err := blob.NewDiskStore(cfg.Storage.BlobDir, cfg.Server.PublicURL)
	if err != nil {
		logger.Fatal("failed to open blob store", zap.Error(err))
	}

	keywords, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		logger.Fatal("failed to open keyword index", zap.Error(err))
	}
	defer keywords.Close()

	index, err := vector.New(ctx, cfg.Vector)
	if err != nil {
		logger.Fatal("failed to create vector index", zap.Error(err))
	}
	defer index.Close(ctx)

	var embedder embedding.Embedder
	if cfg.Model.APIKey != "" {
		embedder, err = embedding.NewGeminiEmbedder(ctx, cfg.Model.APIKey,
			cfg.Model.EmbeddingModel, cfg.Vector.Dimensions, cfg.Model.CacheSize, logger)
		if err != nil {
			logger.Fatal("failed to create embedder", zap.Error(err))
		}
	} else {
		logger.Warn("no API key configured, using mock embeddings")
		embedder = embedding.NewMockEmbedder(cfg.Vector.Dimensions)
	}

	gateway, err := genmodel.NewGeminiGateway(ctx, cfg.Model.APIKey, genmodel.Options{
		Models:     cfg.Model.Models,
		MaxRetries: cfg.Model.MaxRetries,
		BaseDelay:  cfg.Model.BaseDelay,
		Timeout:    cfg.Model.Timeout,
	}, logger)
	if err != nil {
		logger.Fatal("failed to create model gateway", zap.Error(err))
	}

	proc := processor.New(cfg.Chunking, logger)
	coordinator := ingest.New(proc, blobs, records, keywords, embedder, index,
		cfg.Vector.BatchSize, logger)
	orchestrator := rag.New(embedder, index, gateway, cfg.Retrieval, logger)

	arena := upload.NewArena(cfg.Upload.SessionMaxAge)
	arena.StartSweeper(cfg.Upload.SweepInterval)
	defer arena.Stop()
	receiver := upload.NewReceiver(cfg.Upload, arena, logger)

	if cfg.Watch.Directory != "" {
		watchCtx, watchCancel := context.WithCancel(ctx)
		defer watchCancel()
		w := watcher.New(cfg.Watch, coordinator, logger)
		if err := w.Start(watchCtx); err != nil {
			logger.Fatal("failed to start watcher", zap.Error(err))
		}
		defer w.Stop()
	}

	srv := server.NewServer(receiver, arena, coordinator, orchestrator, keywords,
		cfg.Storage.BlobDir, &cfg.Server, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_ = srv.Stop(shutdownCtx)
}
