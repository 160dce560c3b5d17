package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AtRiskMedia/threshold/internal/domain/behavior"
	"github.com/AtRiskMedia/threshold/internal/domain/visitor"
	"github.com/AtRiskMedia/threshold/internal/infrastructure/email"
	"github.com/AtRiskMedia/threshold/internal/infrastructure/messaging"
	"github.com/AtRiskMedia/threshold/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/threshold/internal/infrastructure/observability/performance"
	persistence "github.com/AtRiskMedia/threshold/internal/infrastructure/persistence/visitor"
	"github.com/AtRiskMedia/threshold/internal/testutil"
)

const testSecret = "test-secret-0123456789"

type fakeReporter struct {
	mu      sync.Mutex
	reports []email.CycleReport
}

func (f *fakeReporter) SendCycleReport(_ context.Context, report email.CycleReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, report)
	return nil
}

type testEnv struct {
	clock       *testutil.FakeClock
	thresholds  *behavior.Thresholds
	profiles    *persistence.SQLProfileRepository
	events      *persistence.SQLEventRepository
	insights    *persistence.SQLInsightRepository
	audit       *persistence.SQLAuditRepository
	broadcaster *messaging.StateBroadcaster
	reporter    *fakeReporter

	sessions   *SessionService
	promotion  *PromotionService
	classifier *ClassifierService
	insightSvc *InsightService
	signalSvc  *SignalService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.NewTestDB(t)
	clock := testutil.NewFakeClock()
	logger := logging.NewNopLogger()
	tracker := performance.NewTracker(nil, nil)
	th := behavior.DefaultThresholds()

	profiles := persistence.NewSQLProfileRepository(db, clock, logger)
	events := persistence.NewSQLEventRepository(db, logger)
	insights := persistence.NewSQLInsightRepository(db, logger)
	signals := persistence.NewSQLSignalRepository(db, logger)
	audit := persistence.NewSQLAuditRepository(db, logger)
	broadcaster := messaging.NewStateBroadcaster(0, logger)
	reporter := &fakeReporter{}

	return &testEnv{
		clock:       clock,
		thresholds:  th,
		profiles:    profiles,
		events:      events,
		insights:    insights,
		audit:       audit,
		broadcaster: broadcaster,
		reporter:    reporter,
		sessions: NewSessionService(profiles, events, broadcaster, th, clock, SessionConfig{
			JWTSecret:       testSecret,
			TokenTTL:        time.Hour,
			IdleTimeout:     30 * time.Minute,
			MaxLiveSessions: 3,
		}, logger, tracker),
		promotion:  NewPromotionService(profiles, insights, signals, audit, reporter, th, clock, logger, tracker),
		classifier: NewClassifierService(profiles, audit, th, clock, logger),
		insightSvc: NewInsightService(profiles, insights, clock, logger),
		signalSvc:  NewSignalService(signals, clock, logger),
	}
}

// seedProfile creates a profile with visits recorded visits and applies
// update on top.
func (e *testEnv) seedProfile(t *testing.T, fingerprint string, visits int, update visitor.ProfileUpdate) *visitor.Profile {
	t.Helper()
	ctx := context.Background()

	p, err := e.profiles.Create(ctx, fingerprint)
	require.NoError(t, err)
	for i := 0; i < visits; i++ {
		_, err = e.profiles.RecordVisit(ctx, p.ID, e.clock.Now())
		require.NoError(t, err)
	}
	require.NoError(t, e.profiles.Update(ctx, p.ID, update))

	p, err = e.profiles.FindByID(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p
}

func ptr[T any](v T) *T { return &v }
