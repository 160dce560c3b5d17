// Package workers runs the background loops that drive live sessions and
// the scheduled promotion cycle.
package workers

import (
	"context"
	"time"

	"github.com/AtRiskMedia/threshold/internal/infrastructure/observability/logging"
)

// SessionDriver is the slice of the session service the worker drives.
type SessionDriver interface {
	TickAll() int
	FlushAll(ctx context.Context) (flushed int, failed int)
	Reap(ctx context.Context) int
}

// SessionWorker ticks consequence engines, flushes dirty sessions to the
// profile store and ends idle sessions.
type SessionWorker struct {
	sessions SessionDriver
	config   *Config
	logger   *logging.ChanneledLogger
}

// NewSessionWorker creates a new session worker with injected configuration.
// Non-positive intervals fall back to the defaults.
func NewSessionWorker(sessions SessionDriver, config *Config, logger *logging.ChanneledLogger) *SessionWorker {
	return &SessionWorker{
		sessions: sessions,
		config:   config.normalized(),
		logger:   logger,
	}
}

// Start runs the worker until ctx is cancelled. It always returns nil so it
// can be handed to an errgroup directly.
func (w *SessionWorker) Start(ctx context.Context) error {
	tick := time.NewTicker(w.config.TickInterval)
	defer tick.Stop()
	flush := time.NewTicker(w.config.FlushInterval)
	defer flush.Stop()
	reap := time.NewTicker(w.config.ReapInterval)
	defer reap.Stop()

	w.logger.Session().Info("Session worker started",
		"tickInterval", w.config.TickInterval,
		"flushInterval", w.config.FlushInterval,
		"reapInterval", w.config.ReapInterval)

	for {
		select {
		case <-ctx.Done():
			w.logger.Session().Info("Session worker stopping")
			return nil
		case <-tick.C:
			w.sessions.TickAll()
		case <-flush.C:
			w.performFlush(ctx)
		case <-reap.C:
			if ended := w.sessions.Reap(ctx); ended > 0 {
				w.logger.Session().Info("Idle sessions ended", "count", ended)
			}
		}
	}
}

func (w *SessionWorker) performFlush(ctx context.Context) {
	start := time.Now()
	flushed, failed := w.sessions.FlushAll(ctx)
	if failed > 0 {
		w.logger.Session().Warn("Session flush incomplete", "flushed", flushed, "failed", failed, "duration", time.Since(start))
		return
	}
	if flushed > 0 {
		w.logger.Session().Debug("Session flush finished", "flushed", flushed, "duration", time.Since(start))
	}
}
