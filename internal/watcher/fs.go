package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/emonet/fixwatch/internal/config"
)

// FSSource implements Source using fsnotify. It watches the parent directory
// of each log file rather than the file itself, so a log that does not exist
// yet is picked up the moment the service creates it.
type FSSource struct {
	targets map[string]string // clean log path -> service name

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewFSSource creates a source for the given services.
func NewFSSource(services []config.ServiceConfig) *FSSource {
	targets := make(map[string]string, len(services))
	for _, svc := range services {
		targets[filepath.Clean(svc.LogPath)] = svc.Name
	}
	return &FSSource{targets: targets}
}

func (s *FSSource) Events(ctx context.Context) (<-chan ChangeEvent, error) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	// One watch per distinct parent directory.
	dirs := make(map[string]bool)
	for path := range s.targets {
		dirs[filepath.Dir(path)] = true
	}

	watching := 0
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			slog.Warn("cannot watch directory, skipping", "dir", dir, "error", err)
			continue
		}
		watching++
	}
	if watching == 0 {
		fw.Close()
		cancel()
		return nil, fmt.Errorf("no watchable log directories")
	}

	ch := make(chan ChangeEvent, 64)

	go func() {
		defer close(ch)
		defer fw.Close()

		for {
			select {
			case <-ctx.Done():
				return

			case ev, ok := <-fw.Events:
				if !ok {
					return
				}
				// Writes and creates only; chmod fires on unrelated activity.
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				service, tracked := s.targets[filepath.Clean(ev.Name)]
				if !tracked {
					continue
				}
				select {
				case ch <- ChangeEvent{Service: service, Path: filepath.Clean(ev.Name)}:
				case <-ctx.Done():
					return
				}

			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				slog.Warn("fsnotify error", "error", err)
			}
		}
	}()

	slog.Info("file watcher started", "directories", watching, "files", len(s.targets))
	return ch, nil
}

func (s *FSSource) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}
