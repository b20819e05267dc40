package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/clipsieve/clipsieve/internal/logging"
)

// settleDelay gives the writer time to finish the file before we open it.
const settleDelay = 500 * time.Millisecond

var videoExtensions = map[string]bool{
	".mp4": true, ".mov": true, ".avi": true,
	".mkv": true, ".webm": true, ".m4v": true, ".flv": true,
}

// Handler processes one newly arrived video file.
type Handler func(ctx context.Context, path string) error

// Watcher submits every video file dropped into a directory. Concurrency
// is bounded by the orchestrator's own job pool, so the watcher only fans
// out goroutines and lets submissions queue there.
type Watcher struct {
	dir     string
	handler Handler
	fs      *fsnotify.Watcher
	log     zerolog.Logger
	wg      sync.WaitGroup
}

func New(dir string, handler Handler) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fs.Add(dir); err != nil {
		fs.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	return &Watcher{
		dir:     dir,
		handler: handler,
		fs:      fs,
		log:     logging.WithComponent("watch"),
	}, nil
}

// Run blocks until the context is cancelled, then waits for in-flight
// submissions to finish.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()
	w.log.Info().Str("dir", w.dir).Msg("watching for new videos")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("waiting for in-flight jobs")
			w.wg.Wait()
			return ctx.Err()

		case event, ok := <-w.fs.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if event.Op&fsnotify.Create != fsnotify.Create {
				continue
			}
			if !isVideoFile(event.Name) {
				w.log.Debug().Str("file", event.Name).Msg("ignoring non-video file")
				continue
			}
			w.log.Info().Str("file", event.Name).Msg("new video detected")
			w.wg.Add(1)
			go func(path string) {
				defer w.wg.Done()
				time.Sleep(settleDelay)
				if err := w.handler(ctx, path); err != nil {
					w.log.Error().Err(err).Str("file", path).Msg("job failed")
				}
			}(event.Name)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.log.Error().Err(err).Msg("watcher error")
		}
	}
}

func isVideoFile(path string) bool {
	return videoExtensions[strings.ToLower(filepath.Ext(path))]
}
