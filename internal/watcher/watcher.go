// Package watcher ingests files dropped into a watched directory, with
// fsnotify and per-file debouncing.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/kazane-dev/kiroku/internal/config"
	"github.com/kazane-dev/kiroku/internal/extract"
	"github.com/kazane-dev/kiroku/internal/models"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// Ingestor is the slice of the ingestion coordinator the watcher drives.
type Ingestor interface {
	Ingest(ctx context.Context, sessionID string, files []*models.RawFile, fields map[string]string) (*models.IngestionSummary, error)
}

// Watcher watches a drop directory and ingests supported files as they land.
// Writes are debounced so a file is picked up once it stops growing.
type Watcher struct {
	dir        string
	extensions []string
	userID     string
	ingestor   Ingestor
	debounce   time.Duration
	logger     *zap.Logger

	watcher     *fsnotify.Watcher
	mu          sync.Mutex
	debounceMap map[string]*time.Timer
	done        chan struct{}
	started     bool
	stopOnce    sync.Once
}

// New creates a watcher for the configured drop directory.
func New(cfg config.WatchConfig, ingestor Ingestor, logger *zap.Logger) *Watcher {
	return &Watcher{
		dir:         cfg.Directory,
		extensions:  cfg.Extensions,
		userID:      cfg.UserID,
		ingestor:    ingestor,
		debounce:    defaultDebounce,
		logger:      logger,
		debounceMap: make(map[string]*time.Timer),
		done:        make(chan struct{}),
	}
}

// Start begins watching. It runs until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		w.mu.Unlock()
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	if err := watcher.Add(w.dir); err != nil {
		_ = watcher.Close()
		w.mu.Unlock()
		return err
	}
	w.watcher = watcher
	w.started = true
	w.mu.Unlock()

	w.logger.Info("watching drop directory", zap.String("dir", w.dir))
	go w.run(ctx)
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Debug("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, ev fsnotify.Event) {
	switch {
	case ev.Op.Has(fsnotify.Create), ev.Op.Has(fsnotify.Write):
		if info, err := os.Stat(ev.Name); err != nil || info.IsDir() {
			return
		}
		if !w.matchExtension(ev.Name) {
			return
		}
		w.debounceIngest(ctx, ev.Name)
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		w.cancelDebounce(ev.Name)
	}
}

// debounceIngest (re)arms the timer for path; ingestion fires once the file
// has been quiet for the debounce window.
func (w *Watcher) debounceIngest(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.debounceMap[path]; ok {
		timer.Reset(w.debounce)
		return
	}
	w.debounceMap[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.debounceMap, path)
		w.mu.Unlock()
		w.ingestFile(ctx, path)
	})
}

func (w *Watcher) cancelDebounce(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.debounceMap[path]; ok {
		timer.Stop()
		delete(w.debounceMap, path)
	}
}

// ingestFile reads the dropped file and runs it through the ingestion
// pipeline under the configured watch user.
func (w *Watcher) ingestFile(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		w.logger.Warn("read dropped file failed", zap.String("path", path), zap.Error(err))
		return
	}
	format := extract.FormatForPath(path)
	if format == extract.FormatUnsupported {
		w.logger.Debug("ignoring unsupported dropped file", zap.String("path", path))
		return
	}

	file := &models.RawFile{
		ID:       uuid.New().String(),
		FileName: filepath.Base(path),
		MimeType: mimeForFormat(format),
		Data:     data,
		Size:     int64(len(data)),
	}
	summary, err := w.ingestor.Ingest(ctx, "watch-"+file.ID, []*models.RawFile{file},
		map[string]string{"user_id": w.userID})
	if err != nil {
		w.logger.Error("ingest dropped file failed", zap.String("path", path), zap.Error(err))
		return
	}
	w.logger.Info("ingested dropped file",
		zap.String("path", path),
		zap.Int("chunks", summary.TotalChunks),
		zap.Strings("errors", summary.Errors))
}

// matchExtension reports whether path passes the extension filter. An empty
// filter admits every supported format.
func (w *Watcher) matchExtension(path string) bool {
	if len(w.extensions) == 0 {
		return extract.FormatForPath(path) != extract.FormatUnsupported
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range w.extensions {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

// Stop halts the watcher.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.mu.Lock()
		if w.watcher != nil {
			_ = w.watcher.Close()
		}
		for path, timer := range w.debounceMap {
			timer.Stop()
			delete(w.debounceMap, path)
		}
		w.mu.Unlock()
	})
}

// mimeForFormat maps a detected format back to the MIME type the extraction
// table dispatches on.
func mimeForFormat(f extract.Format) string {
	switch f {
	case extract.FormatPDF:
		return "application/pdf"
	case extract.FormatDoc:
		return "application/msword"
	case extract.FormatDocx:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case extract.FormatXlsx:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case extract.FormatMarkdown:
		return "text/markdown"
	default:
		return "text/plain"
	}
}
