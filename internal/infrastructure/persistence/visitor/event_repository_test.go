package visitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AtRiskMedia/threshold/internal/domain/visitor"
)

func TestAppendIsIdempotentPerSequence(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)

	p, err := r.profiles.Create(ctx, "fp_events")
	require.NoError(t, err)

	batch := []visitor.SessionEvent{
		{SessionID: "s1", VisitorID: p.ID, Seq: 1, EventType: "node_focus", EventData: map[string]any{"nodeId": "origin"}, Timestamp: r.clock.Now()},
		{SessionID: "s1", VisitorID: p.ID, Seq: 4, EventType: "impatience", EventData: map[string]any{"clicks": float64(4)}, Timestamp: r.clock.Advance(time.Second)},
	}
	require.NoError(t, r.events.Append(ctx, batch))
	require.NoError(t, r.events.Append(ctx, batch))
	require.NoError(t, r.events.Append(ctx, nil))

	got, err := r.events.ListBySession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].Seq)
	assert.Equal(t, "origin", got[0].EventData["nodeId"])
	assert.Equal(t, "impatience", got[1].EventType)
	assert.Equal(t, float64(4), got[1].EventData["clicks"])
}

func TestSignalsAndAudit(t *testing.T) {
	ctx := context.Background()
	r := newRepos(t)

	old := &visitor.NodeSignal{NodeID: "n1", NodeName: "origin", SignalType: "surge", SignalStrength: 0.4, CreatedAt: r.clock.Now()}
	require.NoError(t, r.signals.Create(ctx, old))

	now := r.clock.Advance(30 * time.Hour)
	recent := &visitor.NodeSignal{NodeID: "n2", NodeName: "lattice", SignalType: "drift", SignalStrength: 0.9,
		Message: "shifted", Metadata: map[string]any{"source": "test"}, CreatedAt: now}
	require.NoError(t, r.signals.Create(ctx, recent))

	signals, err := r.signals.ListSince(ctx, now.Add(-24*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, "lattice", signals[0].NodeName)
	assert.Equal(t, "shifted", signals[0].Message)
	assert.Equal(t, "test", signals[0].Metadata["source"])

	entry := &visitor.AuditEntry{
		LogType:          visitor.AuditScheduledCycle,
		TriggerSource:    "manual",
		InputData:        map[string]any{"is_cron": false},
		OutputData:       map[string]any{"profilesProcessed": float64(3)},
		ProcessingTimeMs: 12,
		CreatedAt:        now,
	}
	require.NoError(t, r.audit.Record(ctx, entry))
	require.NotEmpty(t, entry.ID)

	entries, err := r.audit.ListByType(ctx, visitor.AuditScheduledCycle, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "manual", entries[0].TriggerSource)
	assert.Equal(t, false, entries[0].InputData["is_cron"])
	assert.Equal(t, float64(3), entries[0].OutputData["profilesProcessed"])
	assert.Empty(t, entries[0].VisitorID)
}
