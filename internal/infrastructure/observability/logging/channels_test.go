package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelAttributeAndLevels(t *testing.T) {
	var buf bytes.Buffer
	cl, err := NewChanneledLogger(&LoggerConfig{
		OutputToConsole: true,
		Console:         &buf,
		JSONFormat:      true,
		DefaultLevel:    slog.LevelInfo,
	})
	require.NoError(t, err)

	cl.Scheduler().Debug("hidden")
	cl.Scheduler().Info("evaluator run", "profiles", 3)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "scheduler", rec["channel"])
	assert.Equal(t, float64(3), rec["profiles"])

	require.NoError(t, cl.SetChannelLevel(ChannelScheduler, slog.LevelDebug))
	buf.Reset()
	cl.Scheduler().Debug("visible")
	assert.Contains(t, buf.String(), "visible")
	assert.Equal(t, "DEBUG", cl.GetChannelLevels()["scheduler"])
	assert.Equal(t, "INFO", cl.GetChannelLevels()["session"])

	assert.Error(t, cl.SetChannelLevel(Channel("nope"), slog.LevelDebug))
}

func TestFileOutput(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	cl, err := NewChanneledLogger(&LoggerConfig{
		OutputToFile: true,
		LogDirectory: dir,
		DefaultLevel: slog.LevelInfo,
	})
	require.NoError(t, err)

	cl.LogSlowQuery("SELECT *\n\tFROM visitor_profiles", 2*time.Second, "test")
	require.NoError(t, cl.Close())

	data, err := os.ReadFile(filepath.Join(dir, "slow-query.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "SELECT * FROM visitor_profiles")
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)

	lvl, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, lvl)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestSanitizeSessionID(t *testing.T) {
	assert.Equal(t, "********", sanitizeSessionID("short"))
	assert.Equal(t, "abcd****wxyz", sanitizeSessionID("abcdefghijklmnopqrstuvwxyz"))
}
