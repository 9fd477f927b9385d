// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	_ "comm-debugger/docs"
	"comm-debugger/internal/config"
	"comm-debugger/internal/database"
	"comm-debugger/internal/handler"
	"comm-debugger/internal/protocol"
	"comm-debugger/internal/repository"
	"comm-debugger/internal/routes"
	"comm-debugger/internal/service"
	"comm-debugger/internal/stats"
	"comm-debugger/internal/utils"
)

// Application represents the main application
type Application struct {
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
	router   *routes.Router
	database *database.DB

	ctx    context.Context
	cancel context.CancelFunc

	// Event pipeline
	dispatcher *protocol.Dispatcher
	counter    *stats.TrafficCounter
	history    *service.History

	// Services
	sessionService   *service.SessionService
	discoveryService *service.DiscoveryService
	captureService   *service.CaptureService
}

// @title Communication Debugger API
// @version 1.0.0
// @description Serial, TCP and UDP debugging session: open channels, send text or hex payloads and stream every transfer as a formatted log line.

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8085
// @BasePath /api/v1
func main() {
	// Initialize application
	app, err := NewApplication()
	if err != nil {
		fmt.Printf("Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	// Start the application
	if err := app.Start(); err != nil {
		app.logger.Fatal("Failed to start application", zap.Error(err))
	}
}

// NewApplication creates a new application instance
func NewApplication() (*Application, error) {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize logger
	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	// Create service logger
	serviceLogger := utils.NewServiceLogger(logger, "comm-debugger")
	serviceLogger.LogServiceStart(cfg.App.Version, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	app := &Application{
		config: cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}

	// Initialize components
	app.initializeEventPipeline()

	if err := app.initializeCapture(); err != nil {
		app.dispatcher.Stop()
		cancel()
		return nil, fmt.Errorf("failed to initialize capture: %w", err)
	}

	app.initializeServices()
	app.initializeServer()

	return app, nil
}

// initializeEventPipeline starts the dispatcher every channel reports to
func (app *Application) initializeEventPipeline() {
	app.dispatcher = protocol.NewDispatcher(app.config.Session.EventQueueSize, app.logger)
	app.counter = stats.NewTrafficCounter()
	app.history = service.NewHistory(app.config.Session.HistorySize)

	app.dispatcher.Start()

	app.logger.Info("Event pipeline started",
		zap.Int("queue_size", app.config.Session.EventQueueSize),
		zap.Int("history_size", app.config.Session.HistorySize),
	)
}

// initializeCapture connects the capture database, runs migrations and starts the writer
func (app *Application) initializeCapture() error {
	if !app.config.Capture.Enabled {
		app.logger.Info("Capture log disabled")
		return nil
	}

	db, err := database.New(app.ctx, &app.config.Capture.Database, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	app.database = db

	migrator, err := database.NewMigrator(&app.config.Capture, app.logger)
	if err != nil {
		db.Close()
		return err
	}
	if err := migrator.Up(); err != nil {
		db.Close()
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	repo := repository.NewCaptureRepository(db, app.logger)
	app.captureService = service.NewCaptureService(repo, &app.config.Capture, app.logger)
	app.dispatcher.Handle(app.captureService.Handle)
	app.captureService.Start(app.ctx)

	app.logger.Info("Capture log initialized successfully")
	return nil
}

// initializeServices creates service instances
func (app *Application) initializeServices() {
	app.sessionService = service.NewSessionService(
		app.dispatcher,
		app.counter,
		app.history,
		app.config,
		app.logger,
	)

	app.discoveryService = service.NewDiscoveryService(app.logger)

	app.logger.Info("Services initialized successfully")
}

// initializeServer sets up HTTP server and routes
func (app *Application) initializeServer() {
	// nil interface, not a nil *database.DB, when capture is off
	var dbChecker handler.DatabaseChecker
	if app.database != nil {
		dbChecker = app.database
	}

	app.router = routes.NewRouter(
		app.config,
		app.logger,
		dbChecker,
		app.sessionService,
		app.discoveryService,
		app.captureService,
	)

	app.server = &http.Server{
		Addr:         app.config.GetServerAddr(),
		Handler:      app.router.SetupRouter(),
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
	}

	app.logger.Info("HTTP server initialized",
		zap.String("address", app.config.GetServerAddr()),
	)
}

// Start serves HTTP until a shutdown signal arrives
func (app *Application) Start() error {
	serverErr := make(chan error, 1)

	go func() {
		app.logger.Info("Starting HTTP server",
			zap.String("address", app.server.Addr),
		)

		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Create channel to receive OS signals
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		app.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		app.shutdown("shutdown signal received")
		return nil
	case err := <-serverErr:
		app.shutdown("http server failed")
		return err
	}
}

// shutdown performs graceful shutdown. Channels close before the dispatcher
// stops so their final state events are still delivered.
func (app *Application) shutdown(reason string) {
	serviceLogger := utils.NewServiceLogger(app.logger, "comm-debugger")
	serviceLogger.LogServiceStop(reason)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop accepting requests and disconnect WebSocket clients
	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		app.logger.Info("HTTP server stopped")
	}
	app.router.Close()

	// Close channels, then drain the pipeline
	app.sessionService.Shutdown()
	app.dispatcher.Stop()

	if app.captureService != nil {
		app.captureService.Stop()
		app.logger.Info("Capture writer stopped", zap.Any("stats", app.captureService.Stats()))
	}
	app.cancel()

	// Close database connection
	if app.database != nil {
		if err := app.database.Close(); err != nil {
			app.logger.Error("Database close error", zap.Error(err))
		} else {
			app.logger.Info("Database connection closed")
		}
	}

	app.logger.Info("Application shutdown completed")

	// Flush logger
	if err := utils.CloseLogger(app.logger); err != nil {
		fmt.Printf("Logger close error: %v\n", err)
	}
}
