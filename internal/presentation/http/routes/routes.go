// Package routes provides HTTP route configuration for the presentation layer.
package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/AtRiskMedia/threshold/internal/application/container"
	"github.com/AtRiskMedia/threshold/internal/presentation/http/handlers"
	"github.com/AtRiskMedia/threshold/internal/presentation/http/middleware"
)

// SetupRoutes configures all HTTP routes and middleware with dependency injection.
func SetupRoutes(container *container.Container, corsOrigins []string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(container.Logger))
	r.Use(middleware.CORSMiddleware(corsOrigins))

	// Initialize handlers
	visitHandlers := handlers.NewVisitHandlers(container.SessionService, container.Logger, container.PerfTracker)
	sessionHandlers := handlers.NewSessionHandlers(container.SessionService, container.Logger, container.PerfTracker)
	streamHandlers := handlers.NewStreamHandlers(container.SessionService, container.Broadcaster, container.Logger)
	schedulerHandlers := handlers.NewSchedulerHandlers(container.PromotionService, container.Logger, container.PerfTracker)
	visitorHandlers := handlers.NewVisitorHandlers(container.InsightService, container.ClassifierService, container.Logger, container.PerfTracker)
	signalHandlers := handlers.NewSignalHandlers(container.SignalService, container.Logger, container.PerfTracker)
	healthHandlers := handlers.NewHealthHandlers(container)
	logHandlers := handlers.NewLogHandlers(container.Logger)

	sessionAuth := middleware.SessionAuth(container.SessionService, container.Logger)
	visitorAuth := middleware.VisitorAuth(container.SessionService, container.CronSecret, container.Logger)
	trusted := middleware.TrustedOnly(container.CronSecret, container.Logger)

	api := r.Group("/api/v1")
	{
		api.GET("/health", healthHandlers.GetHealth)
		api.POST("/visits", visitHandlers.PostVisit)

		sessions := api.Group("/sessions/:id")
		{
			sessions.POST("/events", sessionAuth, sessionHandlers.PostEvents)
			sessions.GET("/state", sessionAuth, sessionHandlers.GetState)
			sessions.GET("/metrics", sessionAuth, sessionHandlers.GetMetrics)
			sessions.GET("/stream", sessionAuth, streamHandlers.GetStream)
			sessions.POST("/end", sessionAuth, sessionHandlers.PostEnd)
			sessions.POST("/consequences", trusted, sessionHandlers.PostConsequence)
		}

		api.GET("/visitors/:id/insights", visitorAuth, visitorHandlers.GetInsights)
		api.POST("/visitors/:id/classify", visitorAuth, visitorHandlers.PostClassify)
		api.POST("/insights/:id/delivered", visitorAuth, visitorHandlers.PostDelivered)

		api.POST("/signals", trusted, signalHandlers.PostSignal)
		api.GET("/signals", trusted, signalHandlers.GetSignals)

		logs := api.Group("/logs", trusted)
		{
			logs.GET("/levels", logHandlers.GetLogLevels)
			logs.POST("/levels", logHandlers.SetLogLevel)
		}

		api.POST("/scheduler/run",
			middleware.SchedulerRateLimit(container.Limiter, container.CronSecret, container.Logger),
			schedulerHandlers.PostRun)
	}

	return r
}
