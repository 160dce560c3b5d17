package workers

import (
	"time"

	"github.com/AtRiskMedia/threshold/pkg/config"
)

const (
	defaultTickInterval  = 2 * time.Second
	defaultFlushInterval = 30 * time.Second
	minReapInterval      = time.Second
)

// Config holds background worker intervals.
type Config struct {
	TickInterval      time.Duration
	FlushInterval     time.Duration
	ReapInterval      time.Duration
	SchedulerInterval time.Duration
}

// NewConfig creates a worker configuration. The tick cadence comes from the
// versioned consequence thresholds; the other intervals are read from the
// already-initialized variables in the centralized /pkg/config package.
// Idle sessions are checked four times per idle timeout.
func NewConfig(tickInterval time.Duration) *Config {
	reap := config.SessionIdleTimeout / 4
	if reap < minReapInterval {
		reap = minReapInterval
	}
	return (&Config{
		TickInterval:      tickInterval,
		FlushInterval:     config.SessionFlushInterval,
		ReapInterval:      reap,
		SchedulerInterval: config.SchedulerInterval,
	}).normalized()
}

// normalized returns a copy whose session intervals are usable by
// time.NewTicker. A non-positive scheduler interval stays as is and means
// disabled.
func (c *Config) normalized() *Config {
	var out Config
	if c != nil {
		out = *c
	}
	if out.TickInterval <= 0 {
		out.TickInterval = defaultTickInterval
	}
	if out.FlushInterval <= 0 {
		out.FlushInterval = defaultFlushInterval
	}
	if out.ReapInterval <= 0 {
		out.ReapInterval = minReapInterval
	}
	return &out
}
