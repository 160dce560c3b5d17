package workers

import (
	"context"
	"time"

	"github.com/AtRiskMedia/threshold/internal/application/services"
	"github.com/AtRiskMedia/threshold/internal/infrastructure/observability/logging"
)

// CycleRunner runs one promotion cycle.
type CycleRunner interface {
	Run(ctx context.Context, trigger string) (*services.CycleSummary, error)
}

// PromotionWorker runs the promotion cycle on a fixed interval. A zero
// interval disables it; the HTTP trigger and the CLI still work.
type PromotionWorker struct {
	runner CycleRunner
	config *Config
	logger *logging.ChanneledLogger
}

func NewPromotionWorker(runner CycleRunner, config *Config, logger *logging.ChanneledLogger) *PromotionWorker {
	return &PromotionWorker{runner: runner, config: config, logger: logger}
}

// Enabled reports whether a schedule is configured.
func (w *PromotionWorker) Enabled() bool {
	return w.config.SchedulerInterval > 0
}

// Start runs scheduled cycles until ctx is cancelled.
func (w *PromotionWorker) Start(ctx context.Context) error {
	if !w.Enabled() {
		w.logger.Scheduler().Info("Scheduled promotion cycles disabled")
		return nil
	}

	ticker := time.NewTicker(w.config.SchedulerInterval)
	defer ticker.Stop()

	w.logger.Scheduler().Info("Promotion worker started", "interval", w.config.SchedulerInterval)

	for {
		select {
		case <-ctx.Done():
			w.logger.Scheduler().Info("Promotion worker stopping")
			return nil
		case <-ticker.C:
			summary, err := w.runner.Run(ctx, services.TriggerSchedule)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				w.logger.Scheduler().Error("Scheduled promotion cycle failed", "error", err)
				continue
			}
			w.logger.Scheduler().Info("Scheduled promotion cycle finished",
				"insightsGenerated", summary.Results.InsightsGenerated,
				"errors", len(summary.Results.Errors))
		}
	}
}
