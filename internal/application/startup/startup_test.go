package startup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AtRiskMedia/threshold/internal/application/workers"
	"github.com/AtRiskMedia/threshold/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/threshold/pkg/config"
)

func useThresholdsFile(t *testing.T, body string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "thresholds.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	file, tick := config.ThresholdsFile, config.SessionTickInterval
	t.Cleanup(func() {
		config.ThresholdsFile, config.SessionTickInterval = file, tick
	})
	config.ThresholdsFile = path
}

func TestLoadThresholdsTickFromFile(t *testing.T) {
	useThresholdsFile(t, "consequence:\n  tickInterval: 3s\n")
	t.Setenv("SESSION_TICK_INTERVAL", "")
	require.NoError(t, os.Unsetenv("SESSION_TICK_INTERVAL"))

	th, err := LoadThresholds(logging.NewNopLogger())
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, th.Consequence.TickInterval)
	assert.Equal(t, 3*time.Second, workers.NewConfig(th.Consequence.TickInterval).TickInterval)
}

func TestLoadThresholdsTickEnvOverride(t *testing.T) {
	useThresholdsFile(t, "consequence:\n  tickInterval: 3s\n")
	t.Setenv("SESSION_TICK_INTERVAL", "500ms")
	config.SessionTickInterval = 500 * time.Millisecond

	th, err := LoadThresholds(logging.NewNopLogger())
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, th.Consequence.TickInterval)
}

func TestLoadThresholdsIgnoresNonPositiveTickEnv(t *testing.T) {
	useThresholdsFile(t, "consequence:\n  tickInterval: 3s\n")
	t.Setenv("SESSION_TICK_INTERVAL", "0s")
	config.SessionTickInterval = 0

	th, err := LoadThresholds(logging.NewNopLogger())
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, th.Consequence.TickInterval)
}
