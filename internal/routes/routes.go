// internal/routes/routes.go
package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerfiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"comm-debugger/internal/config"
	"comm-debugger/internal/handler"
	"comm-debugger/internal/middleware"
	"comm-debugger/internal/service"
	"comm-debugger/internal/utils"
)

// Router holds all dependencies for routing
type Router struct {
	config           *config.Config
	logger           *zap.Logger
	db               handler.DatabaseChecker
	sessionService   *service.SessionService
	discoveryService *service.DiscoveryService
	captureService   *service.CaptureService

	wsHandler *handler.WebSocketHandler
}

// NewRouter creates a new router instance. db and captureService are nil
// when capture is disabled.
func NewRouter(
	config *config.Config,
	logger *zap.Logger,
	db handler.DatabaseChecker,
	sessionService *service.SessionService,
	discoveryService *service.DiscoveryService,
	captureService *service.CaptureService,
) *Router {
	return &Router{
		config:           config,
		logger:           logger,
		db:               db,
		sessionService:   sessionService,
		discoveryService: discoveryService,
		captureService:   captureService,
	}
}

// SetupRouter creates and configures the Gin router
func (r *Router) SetupRouter() *gin.Engine {
	// Set Gin mode
	if r.config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.DebugMode)
	}

	// Create Gin engine
	router := gin.New()

	// Add middleware
	r.addMiddleware(router)

	// Add routes
	r.addRoutes(router)

	return router
}

// Close disconnects WebSocket clients and stops the event bridge
func (r *Router) Close() {
	if r.wsHandler != nil {
		r.wsHandler.Close()
	}
}

// addMiddleware adds middleware to the router
func (r *Router) addMiddleware(router *gin.Engine) {
	// Recovery middleware
	router.Use(middleware.RecoveryMiddleware(r.logger))

	// Request ID middleware
	router.Use(middleware.RequestIDMiddleware())

	// Logging middleware
	serviceLogger := utils.NewServiceLogger(r.logger, "http-server")
	router.Use(middleware.LoggingMiddleware(serviceLogger))

	// CORS middleware
	router.Use(middleware.CORSMiddleware(&r.config.Security))

	r.logger.Info("Middleware configured")
}

// addRoutes sets up all application routes
func (r *Router) addRoutes(router *gin.Engine) {
	// Create handlers
	healthHandler := handler.NewHealthHandler(r.db, r.sessionService, r.config, r.logger)
	channelHandler := handler.NewChannelHandler(r.sessionService, r.logger)
	statsHandler := handler.NewStatsHandler(r.sessionService, r.logger)
	logHandler := handler.NewLogHandler(r.sessionService, r.logger)
	discoveryHandler := handler.NewDiscoveryHandler(r.discoveryService, r.logger)
	r.wsHandler = handler.NewWebSocketHandler(r.sessionService, r.config.Security.AllowedOrigins, r.logger)

	// Health check routes
	r.addHealthRoutes(router, healthHandler)

	// API v1 routes
	apiV1 := router.Group("/api/v1")
	r.addChannelRoutes(apiV1, channelHandler)
	r.addStatsRoutes(apiV1, statsHandler)
	r.addLogRoutes(apiV1, logHandler)
	r.addDiscoveryRoutes(apiV1, discoveryHandler)

	if r.captureService != nil {
		r.addCaptureRoutes(apiV1, handler.NewCaptureHandler(r.captureService, r.logger))
	}

	// WebSocket routes
	r.wsHandler.RegisterRoutes(router.Group("/ws"))

	// Documentation routes
	r.addDocumentationRoutes(router)

	r.logger.Info("All routes configured successfully",
		zap.Bool("capture_enabled", r.captureService != nil),
	)
}

// addHealthRoutes sets up health check routes
func (r *Router) addHealthRoutes(router *gin.Engine, handler *handler.HealthHandler) {
	health := router.Group("")
	{
		health.GET("/health", handler.HealthCheck)
		health.GET("/ready", handler.ReadinessCheck)
		health.GET("/live", handler.LivenessCheck)
	}
}

// addChannelRoutes sets up channel lifecycle and send routes
func (r *Router) addChannelRoutes(api *gin.RouterGroup, handler *handler.ChannelHandler) {
	channels := api.Group("/channels")
	{
		channels.GET("", handler.ListChannels)

		channel := channels.Group("/:kind")
		{
			channel.GET("", handler.GetChannel)
			channel.POST("/open", handler.OpenChannel)
			channel.POST("/close", handler.CloseChannel)
			channel.POST("/send", handler.SendData)
			channel.GET("/peers", handler.ListPeers)
			channel.POST("/receiver/open", handler.OpenReceiver)
			channel.POST("/receiver/close", handler.CloseReceiver)
		}
	}
}

// addStatsRoutes sets up traffic statistics routes
func (r *Router) addStatsRoutes(api *gin.RouterGroup, handler *handler.StatsHandler) {
	stats := api.Group("/stats")
	{
		stats.GET("", handler.GetStats)
		stats.POST("/reset", handler.ResetStats)
	}
}

// addLogRoutes sets up event log routes
func (r *Router) addLogRoutes(api *gin.RouterGroup, handler *handler.LogHandler) {
	log := api.Group("/log")
	{
		log.GET("", handler.GetLog)
		log.DELETE("", handler.ClearLog)
	}
}

// addDiscoveryRoutes sets up port and interface discovery routes
func (r *Router) addDiscoveryRoutes(api *gin.RouterGroup, handler *handler.DiscoveryHandler) {
	discovery := api.Group("/discovery")
	{
		discovery.GET("/ports", handler.ListPorts)
		discovery.GET("/interfaces", handler.ListInterfaces)
		discovery.GET("/scan", handler.ScanAll)
	}
}

// addCaptureRoutes sets up persisted capture routes
func (r *Router) addCaptureRoutes(api *gin.RouterGroup, handler *handler.CaptureHandler) {
	captures := api.Group("/captures")
	{
		captures.GET("", handler.ListCaptures)
		captures.GET("/stats", handler.CaptureStats)
	}
}

// addDocumentationRoutes sets up documentation routes
func (r *Router) addDocumentationRoutes(router *gin.Engine) {
	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerfiles.Handler))

	// Swagger redirect for convenience
	router.GET("/docs", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/swagger/index.html")
	})
}
