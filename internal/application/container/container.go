// Package container provides dependency injection for all singleton services
package container

import (
	"time"

	"github.com/AtRiskMedia/threshold/internal/application/services"
	"github.com/AtRiskMedia/threshold/internal/domain/behavior"
	"github.com/AtRiskMedia/threshold/internal/infrastructure/email"
	"github.com/AtRiskMedia/threshold/internal/infrastructure/messaging"
	"github.com/AtRiskMedia/threshold/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/threshold/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/threshold/internal/infrastructure/persistence/database"
	"github.com/AtRiskMedia/threshold/internal/infrastructure/persistence/visitor"
	"github.com/AtRiskMedia/threshold/internal/infrastructure/security"
)

// Options carries the runtime settings the container wires into services.
type Options struct {
	JWTSecret        string
	CronSecret       string
	TokenTTL         time.Duration
	IdleTimeout      time.Duration
	MaxLiveSessions  int
	MaxStreamClients int

	// Reporter receives evaluator cycle reports. Nil disables reporting.
	Reporter email.Service
}

// Container holds all singleton services and infrastructure dependencies
type Container struct {
	// Application Services
	SessionService    *services.SessionService
	PromotionService  *services.PromotionService
	ClassifierService *services.ClassifierService
	InsightService    *services.InsightService
	SignalService     *services.SignalService

	// Repositories
	ProfileRepo *visitor.SQLProfileRepository
	EventRepo   *visitor.SQLEventRepository
	InsightRepo *visitor.SQLInsightRepository
	SignalRepo  *visitor.SQLSignalRepository
	AuditRepo   *visitor.SQLAuditRepository

	// Infrastructure Dependencies
	DB          *database.DB
	Broadcaster *messaging.StateBroadcaster
	Limiter     security.Limiter
	Thresholds  *behavior.Thresholds
	Clock       behavior.Clock
	CronSecret  string

	// Observability
	Logger      *logging.ChanneledLogger
	PerfTracker *performance.Tracker
}

// NewContainer creates and wires all singleton services
func NewContainer(
	db *database.DB,
	thresholds *behavior.Thresholds,
	clock behavior.Clock,
	opts Options,
	logger *logging.ChanneledLogger,
	perfTracker *performance.Tracker,
) *Container {
	if clock == nil {
		clock = behavior.SystemClock{}
	}

	profiles := visitor.NewSQLProfileRepository(db, clock, logger)
	events := visitor.NewSQLEventRepository(db, logger)
	insights := visitor.NewSQLInsightRepository(db, logger)
	signals := visitor.NewSQLSignalRepository(db, logger)
	audit := visitor.NewSQLAuditRepository(db, logger)
	broadcaster := messaging.NewStateBroadcaster(opts.MaxStreamClients, logger)

	sessionConfig := services.SessionConfig{
		JWTSecret:       opts.JWTSecret,
		TokenTTL:        opts.TokenTTL,
		IdleTimeout:     opts.IdleTimeout,
		MaxLiveSessions: opts.MaxLiveSessions,
	}

	return &Container{
		SessionService:    services.NewSessionService(profiles, events, broadcaster, thresholds, clock, sessionConfig, logger, perfTracker),
		PromotionService:  services.NewPromotionService(profiles, insights, signals, audit, opts.Reporter, thresholds, clock, logger, perfTracker),
		ClassifierService: services.NewClassifierService(profiles, audit, thresholds, clock, logger),
		InsightService:    services.NewInsightService(profiles, insights, clock, logger),
		SignalService:     services.NewSignalService(signals, clock, logger),

		ProfileRepo: profiles,
		EventRepo:   events,
		InsightRepo: insights,
		SignalRepo:  signals,
		AuditRepo:   audit,

		DB:          db,
		Broadcaster: broadcaster,
		Limiter:     security.NewFixedWindowLimiter(thresholds.RateLimit, clock),
		Thresholds:  thresholds,
		Clock:       clock,
		CronSecret:  opts.CronSecret,

		Logger:      logger,
		PerfTracker: perfTracker,
	}
}
