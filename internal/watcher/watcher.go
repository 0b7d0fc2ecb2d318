package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tranquochuy/summary-flow/internal/logger"
	"github.com/tranquochuy/summary-flow/internal/workflow"
)

type implWatcher struct {
	inputDir      string
	handlers      Handlers
	logger        logger.Logger
	watcher       *fsnotify.Watcher
	maxConcurrent int
	semaphore     chan struct{}
	wg            sync.WaitGroup
}

// Start begins monitoring the input directory. Every event, marker or
// artifact, goes through the semaphore so at most maxConcurrent handlers
// run at once and the event loop never blocks on handler work.
func (w *implWatcher) Start(ctx context.Context) error {
	w.logger.Info(ctx, "File watcher started (max concurrent: %d). Monitoring: %s", w.maxConcurrent, w.inputDir)
	w.logger.Info(ctx, "Supported artifacts: video (.mp4, .mov, .avi, .mkv, .webm, .m4v, .flv), audio (.wav, .mp3, .m4a, .flac, .ogg, .aac), text (.txt, .md)")
	w.logger.Info(ctx, "Markers: <name>.approve confirms a reviewed transcript, <name>.reset starts a session over")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info(ctx, "Waiting for ongoing processing to complete...")
			w.wg.Wait()
			w.logger.Info(ctx, "File watcher stopped")
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}

			if event.Op&fsnotify.Create != fsnotify.Create {
				continue
			}

			var what string
			var handler EventHandler
			switch {
			case w.isMarker(event.Name, ".approve"):
				what, handler = "approve marker", w.handlers.Approve

			case w.isMarker(event.Name, ".reset"):
				what, handler = "reset marker", w.handlers.Reset

			default:
				if _, ok := workflow.KindForName(event.Name); !ok {
					w.logger.Debug(ctx, "Ignoring unsupported file: %s", event.Name)
					continue
				}
				what, handler = "artifact", w.handlers.Artifact

				// Small delay to ensure file is fully written
				time.Sleep(500 * time.Millisecond)
			}
			if handler == nil {
				continue
			}
			w.logger.Info(ctx, "New %s detected: %s", what, event.Name)

			select {
			case w.semaphore <- struct{}{}:
				w.wg.Add(1)
				go func(filePath string) {
					defer w.wg.Done()
					defer func() { <-w.semaphore }()

					if err := handler(ctx, filePath); err != nil {
						w.logger.Error(ctx, "Failed to handle %s %s: %v", what, filePath, err)
					}
				}(event.Name)
			case <-ctx.Done():
				return ctx.Err()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error(ctx, "Watcher error: %v", err)
		}
	}
}

// Stop closes the file watcher
func (w *implWatcher) Stop() error {
	return w.watcher.Close()
}

func (w *implWatcher) isMarker(path, ext string) bool {
	return strings.EqualFold(filepath.Ext(path), ext)
}
