package watcher

import (
	"context"
	"log/slog"
	"time"
)

// SupervisedSource wraps a Source with automatic restart on failure.
type SupervisedSource struct {
	factory     func() Source
	restartWait time.Duration
	maxRestarts int
}

// NewSupervisedSource creates a supervised wrapper around a source factory.
// On source failure, it waits restartWait before creating a new source.
// maxRestarts of 0 means unlimited restarts.
func NewSupervisedSource(factory func() Source, restartWait time.Duration, maxRestarts int) *SupervisedSource {
	return &SupervisedSource{
		factory:     factory,
		restartWait: restartWait,
		maxRestarts: maxRestarts,
	}
}

// Events starts the supervised source loop. It returns a channel that receives
// change events across restarts. The channel is closed when the context is
// cancelled or max restarts are exceeded.
func (s *SupervisedSource) Events(ctx context.Context) (<-chan ChangeEvent, error) {
	out := make(chan ChangeEvent, 64)

	go func() {
		defer close(out)

		restarts := 0
		for {
			if s.maxRestarts > 0 && restarts >= s.maxRestarts {
				slog.Error("file watcher exceeded max restarts", "max", s.maxRestarts)
				return
			}

			source := s.factory()
			events, err := source.Events(ctx)
			if err != nil {
				slog.Error("failed to start watcher source", "error", err, "restart_count", restarts)
				select {
				case <-ctx.Done():
					return
				case <-time.After(s.restartWait):
					restarts++
					continue
				}
			}

			slog.Info("watcher source started", "restart_count", restarts)

			// Forward events until the source channel closes.
			sourceDone := false
			for !sourceDone {
				select {
				case ev, ok := <-events:
					if !ok {
						sourceDone = true
						break
					}
					select {
					case out <- ev:
					case <-ctx.Done():
						source.Stop()
						return
					}
				case <-ctx.Done():
					source.Stop()
					return
				}
			}

			if ctx.Err() != nil {
				return
			}

			slog.Warn("watcher source stopped, restarting", "restart_count", restarts)
			source.Stop()
			restarts++

			select {
			case <-ctx.Done():
				return
			case <-time.After(s.restartWait):
			}
		}
	}()

	return out, nil
}

func (s *SupervisedSource) Stop() {
	// Stopping is handled via context cancellation.
}
