// Package startup prepares the application server
package startup

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/AtRiskMedia/threshold/internal/application/container"
	"github.com/AtRiskMedia/threshold/internal/application/workers"
	"github.com/AtRiskMedia/threshold/internal/domain/behavior"
	schema "github.com/AtRiskMedia/threshold/internal/infrastructure/database"
	thresholdconfig "github.com/AtRiskMedia/threshold/internal/infrastructure/config"
	"github.com/AtRiskMedia/threshold/internal/infrastructure/email"
	"github.com/AtRiskMedia/threshold/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/threshold/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/threshold/internal/infrastructure/persistence/database"
	"github.com/AtRiskMedia/threshold/internal/infrastructure/security"
	"github.com/AtRiskMedia/threshold/internal/presentation/http/server"
	"github.com/AtRiskMedia/threshold/pkg/config"
)

const shutdownTimeout = 30 * time.Second

// App is a bootstrapped application: its container plus the resources to
// release when done.
type App struct {
	Container *container.Container
	Logger    *logging.ChanneledLogger
	DB        *database.DB
}

// Close releases the database and log files.
func (a *App) Close() {
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Shutdown().Error("Error closing database", "error", err.Error())
		}
	}
	a.Logger.Close()
}

// NewLogger builds the channeled logger from the central config.
func NewLogger() (*logging.ChanneledLogger, error) {
	level, err := logging.ParseLevel(config.LogLevel)
	if err != nil {
		log.Printf("Invalid LOG_LEVEL, using INFO: %v", err)
	}
	return logging.NewChanneledLogger(&logging.LoggerConfig{
		OutputToFile:    config.LogToFile,
		OutputToConsole: true,
		LogDirectory:    config.LogDirectory,
		JSONFormat:      config.LogJSON,
		IncludeSource:   config.LogIncludeSource,
		DefaultLevel:    level,
	})
}

// OpenDatabase connects with the configured driver and applies the schema.
func OpenDatabase(ctx context.Context, logger *logging.ChanneledLogger) (*database.DB, error) {
	start := time.Now()

	dsn, err := database.ResolveDSN(config.DBDriver, config.DBURL, config.DBAuthToken)
	if err != nil {
		return nil, err
	}
	db, err := database.NewConnectionWithLogger(ctx, config.DBDriver, dsn, database.PoolConfig{
		MaxOpenConns:    config.DBMaxOpenConns,
		MaxIdleConns:    config.DBMaxIdleConns,
		ConnMaxLifetime: time.Duration(config.DBConnMaxLifetimeMinutes) * time.Minute,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := schema.NewTableCreator().CreateSchema(ctx, db.DB); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	logger.LogStartupPhase("database", time.Since(start), true, map[string]any{"driver": config.DBDriver})
	return db, nil
}

// LoadThresholds reads the threshold file and applies the rate limit and
// tick cadence environment overrides on top of it.
func LoadThresholds(logger *logging.ChanneledLogger) (*behavior.Thresholds, error) {
	th, source, err := thresholdconfig.LoadThresholds(config.ThresholdsFile)
	if err != nil {
		return nil, err
	}
	if _, ok := os.LookupEnv("SCHEDULER_RATE_LIMIT"); ok {
		th.RateLimit.MaxCalls = config.SchedulerRateLimit
	}
	if _, ok := os.LookupEnv("SCHEDULER_RATE_WINDOW"); ok {
		th.RateLimit.Window = config.SchedulerRateWindow
	}
	if _, ok := os.LookupEnv("SESSION_TICK_INTERVAL"); ok {
		if config.SessionTickInterval > 0 {
			th.Consequence.TickInterval = config.SessionTickInterval
		} else {
			logger.Startup().Warn("Ignoring non-positive SESSION_TICK_INTERVAL", "value", config.SessionTickInterval, "using", th.Consequence.TickInterval)
		}
	}
	if err := th.Validate(); err != nil {
		return nil, fmt.Errorf("invalid thresholds after overrides: %w", err)
	}

	logger.Startup().Info("Thresholds loaded", "source", source, "version", th.Version)
	return th, nil
}

// Bootstrap wires the container without starting the server or workers.
func Bootstrap(ctx context.Context, logger *logging.ChanneledLogger) (*App, error) {
	start := time.Now()

	db, err := OpenDatabase(ctx, logger)
	if err != nil {
		return nil, fmt.Errorf("database initialization failed: %w", err)
	}

	thresholds, err := LoadThresholds(logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("threshold initialization failed: %w", err)
	}

	jwtSecret := config.JWTSecret
	if jwtSecret == "" {
		jwtSecret, err = security.GenerateSecureKey(64)
		if err != nil {
			db.Close()
			return nil, err
		}
		logger.Startup().Warn("JWT_SECRET not set; generated an ephemeral secret, tokens will not survive a restart")
	}

	opts := container.Options{
		JWTSecret:        jwtSecret,
		CronSecret:       config.CronSecret,
		TokenTTL:         config.SessionTokenTTL,
		IdleTimeout:      config.SessionIdleTimeout,
		MaxLiveSessions:  config.MaxLiveSessions,
		MaxStreamClients: config.MaxStreamClients,
	}
	if config.CronSecret == "" {
		logger.Startup().Warn("CRON_SECRET not set; trusted endpoints are disabled and every scheduler call is rate limited")
	}

	if config.ResendAPIKey != "" && config.OperatorEmail != "" {
		reporter, err := email.NewService(config.ResendAPIKey, config.OperatorEmail, config.ReportFromEmail, config.ReportFromName)
		if err != nil {
			logger.Startup().Warn("Cycle reports disabled", "error", err.Error())
		} else {
			opts.Reporter = reporter
			logger.Startup().Info("Cycle reports enabled", "to", config.OperatorEmail)
		}
	}

	tracker := performance.NewTracker(&performance.TrackerConfig{
		MaxMarkers:        1000,
		SlowThreshold:     config.SlowQueryThreshold,
		CriticalThreshold: 5 * time.Second,
	}, logger)

	appContainer := container.NewContainer(db, thresholds, behavior.SystemClock{}, opts, logger, tracker)
	logger.LogStartupPhase("container", time.Since(start), true, nil)

	return &App{Container: appContainer, Logger: logger, DB: db}, nil
}

// Initialize runs the server and background workers until SIGINT or
// SIGTERM, then shuts down gracefully.
func Initialize() error {
	setupLogging()

	start := time.Now()
	logger, err := NewLogger()
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	log.Println("\033[36m" + `
  ▀█▀ █ █ █▀█ █▀▀ █▀ █ █ █▀█ █   █▀▄
   █  █▀█ █▀▄ ██▄ ▄█ █▀█ █▄█ █▄▄ █▄▀
` + "\033[0m")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := Bootstrap(ctx, logger)
	if err != nil {
		logger.Close()
		return err
	}
	defer app.Close()

	c := app.Container
	workerConfig := workers.NewConfig(c.Thresholds.Consequence.TickInterval)
	sessionWorker := workers.NewSessionWorker(c.SessionService, workerConfig, logger)
	promotionWorker := workers.NewPromotionWorker(c.PromotionService, workerConfig, logger)
	httpServer := server.New(config.Port, c)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(httpServer.Start)
	g.Go(func() error { return sessionWorker.Start(gctx) })
	g.Go(func() error { return promotionWorker.Start(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		logger.Shutdown().Info("Shutdown signal received, starting graceful shutdown...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Shutdown().Error("Error during server shutdown", "error", err.Error())
		}
		if err := c.SessionService.Shutdown(shutdownCtx); err != nil {
			logger.Shutdown().Error("Final session flush incomplete", "error", err.Error())
		}
		return nil
	})

	logger.Startup().Info("Application startup complete",
		"totalDuration", time.Since(start),
		"port", config.Port,
		"scheduler", promotionWorker.Enabled())

	err = g.Wait()
	logger.Shutdown().Info("Application shutdown complete", "totalUptime", time.Since(start))
	return err
}

// setupLogging configures the standard logger and gin mode
func setupLogging() {
	if config.GinReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}
