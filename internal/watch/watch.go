// Package watch ingests documents dropped into a directory.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bull/docqa-server/internal/extract"
	"github.com/bull/docqa-server/internal/indexer"
)

// DefaultDebounce is how long a file must be quiet before it is ingested.
const DefaultDebounce = 500 * time.Millisecond

// FileIngestor stores a file in a session. *indexer.Pipeline implements it.
type FileIngestor interface {
	IngestFile(ctx context.Context, path, filename, sessionID string) (*indexer.IngestResult, error)
}

// Options configure a Watcher.
type Options struct {
	Debounce time.Duration
	// IngestExisting ingests files already in the directory at startup.
	IngestExisting bool
}

// Watcher ingests supported files created or rewritten in one directory
// (not recursively) into one session. Files are ingested one at a time.
type Watcher struct {
	dir       string
	sessionID string
	ingestor  FileIngestor
	opts      Options
	logger    *slog.Logger

	pending  map[string]time.Time // path -> last event
	ingested map[string]time.Time // path -> mod time at last ingest
}

// New creates a Watcher for dir.
func New(dir, sessionID string, ingestor FileIngestor, opts Options, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	return &Watcher{
		dir:       dir,
		sessionID: sessionID,
		ingestor:  ingestor,
		opts:      opts,
		logger:    logger,
		pending:   make(map[string]time.Time),
		ingested:  make(map[string]time.Time),
	}
}

// Run watches until ctx is canceled. It returns nil on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.logger.Info("Watching directory", "dir", w.dir, "session", w.sessionID)

	if w.opts.IngestExisting {
		if err := w.scan(ctx); err != nil {
			return err
		}
	}

	ticker := time.NewTicker(w.opts.Debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if w.shouldIngest(event) {
				w.pending[event.Name] = time.Now()
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Watcher error", "dir", w.dir, "error", err)
		case now := <-ticker.C:
			w.flush(ctx, now)
		}
	}
}

// shouldIngest reports whether event concerns a supported, visible regular file
// that was created or written.
func (w *Watcher) shouldIngest(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return false
	}
	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") || !extract.IsValidFileType(name) {
		return false
	}
	info, err := os.Stat(event.Name)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

// flush ingests pending files that have been quiet for the debounce period.
func (w *Watcher) flush(ctx context.Context, now time.Time) {
	for path, last := range w.pending {
		if now.Sub(last) < w.opts.Debounce {
			continue
		}
		delete(w.pending, path)
		w.ingest(ctx, path)
	}
}

// scan ingests supported files already in the directory.
func (w *Watcher) scan(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("read %s: %w", w.dir, err)
	}
	for _, entry := range entries {
		if ctx.Err() != nil {
			return nil
		}
		path := filepath.Join(w.dir, entry.Name())
		if w.shouldIngest(fsnotify.Event{Name: path, Op: fsnotify.Create}) {
			w.ingest(ctx, path)
		}
	}
	return nil
}

// ingest stores path unless it is unchanged since the last ingest.
func (w *Watcher) ingest(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			w.logger.Warn("Cannot stat file", "path", path, "error", err)
		}
		return
	}
	if mod, ok := w.ingested[path]; ok && mod.Equal(info.ModTime()) {
		return
	}

	filename := filepath.Base(path)
	result, err := w.ingestor.IngestFile(ctx, path, filename, w.sessionID)
	if err != nil {
		w.logger.Error("Failed to ingest file", "path", path, "session", w.sessionID, "error", err)
		return
	}
	w.ingested[path] = info.ModTime()
	w.logger.Info("Ingested file", "path", path, "session", w.sessionID, "chunks", result.Chunks)
}
