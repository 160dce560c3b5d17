package performance

import (
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/AtRiskMedia/threshold/internal/infrastructure/observability/logging"
)

// Tracker keeps a bounded window of completed markers and reports slow ones.
type Tracker struct {
	completed []Marker
	active    int
	mu        sync.RWMutex
	started   time.Time
	config    *TrackerConfig
	logger    *logging.ChanneledLogger
}

// TrackerConfig contains configuration options for the performance tracker
type TrackerConfig struct {
	MaxMarkers        int           `json:"maxMarkers"`        // Completed markers retained
	SlowThreshold     time.Duration `json:"slowThreshold"`     // Operations slower than this are logged
	CriticalThreshold time.Duration `json:"criticalThreshold"` // Operations slower than this count against health
}

// DefaultTrackerConfig returns a sensible default configuration
func DefaultTrackerConfig() *TrackerConfig {
	return &TrackerConfig{
		MaxMarkers:        1000,
		SlowThreshold:     500 * time.Millisecond,
		CriticalThreshold: 5 * time.Second,
	}
}

// NewTracker creates a new performance tracker. logger may be nil.
func NewTracker(config *TrackerConfig, logger *logging.ChanneledLogger) *Tracker {
	if config == nil {
		config = DefaultTrackerConfig()
	}
	return &Tracker{
		completed: make([]Marker, 0, config.MaxMarkers),
		started:   time.Now(),
		config:    config,
		logger:    logger,
	}
}

// StartOperation creates a marker for an operation. Callers defer Complete.
func (t *Tracker) StartOperation(operation, scope string) *Marker {
	t.mu.Lock()
	t.active++
	t.mu.Unlock()

	return &Marker{
		Operation: operation,
		Scope:     scope,
		StartTime: time.Now(),
		Metadata:  make(map[string]any),
		Success:   true, // Assume success until proven otherwise
		tracker:   t,
	}
}

func (t *Tracker) record(m *Marker) {
	t.mu.Lock()
	t.active--
	t.completed = append(t.completed, *m)
	if over := len(t.completed) - t.config.MaxMarkers; over > 0 {
		t.completed = append(t.completed[:0], t.completed[over:]...)
	}
	t.mu.Unlock()

	if t.logger == nil {
		return
	}
	if m.Duration > t.config.SlowThreshold {
		t.logger.Perf().Warn("Slow operation",
			slog.String("operation", m.Operation),
			slog.String("scope", m.Scope),
			slog.Duration("duration", m.Duration),
			slog.Bool("success", m.Success),
		)
	} else {
		t.logger.Perf().Debug("Operation completed",
			slog.String("operation", m.Operation),
			slog.Duration("duration", m.Duration),
		)
	}
}

// GetRecentMetrics returns markers for operations completed within the
// specified duration whose operation starts with prefix.
func (t *Tracker) GetRecentMetrics(prefix string, within time.Duration) []Marker {
	t.mu.RLock()
	defer t.mu.RUnlock()

	cutoff := time.Now().Add(-within)
	var metrics []Marker
	for _, m := range t.completed {
		if m.EndTime.After(cutoff) && strings.HasPrefix(m.Operation, prefix) {
			metrics = append(metrics, m)
		}
	}
	return metrics
}

// Health classifies the markers completed in the last five minutes.
func (t *Tracker) Health() HealthStatus {
	recent := t.GetRecentMetrics("", 5*time.Minute)
	if len(recent) == 0 {
		return HealthUnknown
	}

	critical := 0
	for _, m := range recent {
		if !m.Success || m.Duration > t.config.CriticalThreshold {
			critical++
		}
	}

	ratio := float64(critical) / float64(len(recent))
	switch {
	case ratio > 0.1: // More than 10% critical issues
		return HealthUnhealthy
	case ratio > 0.05:
		return HealthDegraded
	}
	return HealthHealthy
}

// GetOverallStats returns overall tracker statistics
func (t *Tracker) GetOverallStats() map[string]any {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return map[string]any{
		"trackerUptime":       time.Since(t.started).String(),
		"activeOperations":    t.active,
		"completedOperations": len(t.completed),
		"memoryUsageMB":       memStats.Alloc / (1024 * 1024),
		"goroutines":          runtime.NumGoroutine(),
	}
}
