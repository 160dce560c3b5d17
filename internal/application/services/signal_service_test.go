package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalRecording(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.signalSvc.Record(ctx, SignalRequest{NodeID: " ", SignalType: "surge"})
	assert.ErrorIs(t, err, ErrInvalidSignal)

	signal, err := env.signalSvc.Record(ctx, SignalRequest{NodeID: "lattice", SignalType: "shift", SignalStrength: 1.7})
	require.NoError(t, err)
	assert.NotEmpty(t, signal.ID)
	assert.Equal(t, "lattice", signal.NodeName)
	assert.Equal(t, 1.0, signal.SignalStrength)

	env.clock.Advance(25 * time.Hour)
	_, err = env.signalSvc.Record(ctx, SignalRequest{NodeID: "origin", NodeName: "Origin", SignalType: "surge"})
	require.NoError(t, err)

	recent, err := env.signalSvc.Recent(ctx, 24*time.Hour, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "Origin", recent[0].NodeName)
}
