package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"coursechat/internal/api"
	"coursechat/internal/auth"
	"coursechat/internal/config"
	"coursechat/internal/database"
	"coursechat/internal/notify"
	"coursechat/internal/registry"
	"coursechat/internal/websocket"
	dbconfig "coursechat/pkg/database"
	"coursechat/pkg/interfaces"
)

// Application wires all components. Initialization order is strict:
// database, registry, identity, gateway, HTTP; shutdown runs in reverse.
type Application struct {
	config        *config.Config
	dbManager     *database.Manager
	localRegistry *registry.Registry
	redisBridge   *registry.RedisBridge
	groupRegistry interfaces.GroupRegistry
	notifier      *notify.Publisher
	httpServer    *http.Server
	log           *slog.Logger
}

// NewApplication builds the application from validated configuration.
func NewApplication(cfg *config.Config, log *slog.Logger) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dbManager, err := database.NewManager(&dbconfig.Config{
		DatabasePath:    cfg.Database.Path,
		MaxConnections:  cfg.Database.MaxConnections,
		ConnMaxLifetime: cfg.Database.Timeout,
		ConnMaxIdleTime: cfg.Database.Timeout / 3,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}

	if err := dbconfig.NewSchemaValidator(dbManager.GetDB()).ValidateTablesExist(); err != nil {
		_ = dbManager.Close()
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	localRegistry := registry.NewRegistry(log)

	// The Redis bridge shares fan-out across gateway processes; without it
	// the in-memory registry serves the single-process deployment behind
	// the same Join/Leave/Publish contract.
	var groupRegistry interfaces.GroupRegistry = localRegistry
	var redisBridge *registry.RedisBridge
	if cfg.Redis.Addr != "" {
		redisBridge = registry.NewRedisBridge(localRegistry, cfg.Redis.Addr, cfg.Redis.Password, log)
		groupRegistry = redisBridge
	}

	verifier := auth.NewVerifier(cfg.Auth.TokenSecret)
	authorizer := auth.NewAuthorizer(dbManager, cfg.Auth.Timeout, log)

	wsHandler := websocket.NewHandler(groupRegistry, verifier, authorizer, dbManager, dbManager,
		websocket.Options{
			SendQueueSize: cfg.WebSocket.SendQueueSize,
			ReadTimeout:   cfg.WebSocket.ReadTimeout,
			WriteTimeout:  cfg.WebSocket.WriteTimeout,
			PingInterval:  cfg.WebSocket.PingInterval,
			HistoryLimit:  cfg.WebSocket.HistoryLimit,
		}, log)

	notifier := notify.NewPublisher(dbManager, groupRegistry, log)
	apiServer := api.NewServer(dbManager, localRegistry, log)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/chat/{courseID}", wsHandler.HandleChat)
	mux.HandleFunc("GET /ws/notifications", wsHandler.HandleNotifications)
	mux.HandleFunc("/health", apiServer.HandleHealth)

	httpServer := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     mux,
		ReadTimeout: cfg.HTTP.ReadTimeout,
		// WebSocket responses outlive any sane write timeout; the per-frame
		// deadlines in the connection wrapper bound the actual writes.
		WriteTimeout: 0,
	}

	return &Application{
		config:        cfg,
		dbManager:     dbManager,
		localRegistry: localRegistry,
		redisBridge:   redisBridge,
		groupRegistry: groupRegistry,
		notifier:      notifier,
		httpServer:    httpServer,
		log:           log,
	}, nil
}

// Start begins serving. It returns once the listener is accepting
// connections or startup has failed.
func (app *Application) Start(ctx context.Context) error {
	app.log.Info("starting coursechat", "addr", app.httpServer.Addr)

	if app.redisBridge != nil {
		if err := app.redisBridge.Start(ctx); err != nil {
			return fmt.Errorf("failed to start redis bridge: %w", err)
		}
	}

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		app.stopBridge()
		return err
	case <-time.After(100 * time.Millisecond):
		app.log.Info("coursechat started")
		return nil
	case <-ctx.Done():
		app.stopBridge()
		return ctx.Err()
	}
}

// Stop shuts down in reverse order: listener, fan-out bridge, database.
func (app *Application) Stop(ctx context.Context) error {
	app.log.Info("shutting down coursechat")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		app.log.Error("HTTP server shutdown error", "error", err)
	}

	app.stopBridge()

	if err := app.dbManager.Close(); err != nil {
		app.log.Error("database shutdown error", "error", err)
	}

	app.log.Info("coursechat shutdown complete")
	return nil
}

func (app *Application) stopBridge() {
	if app.redisBridge != nil {
		if err := app.redisBridge.Stop(); err != nil && err != registry.ErrBridgeNotRunning {
			app.log.Error("redis bridge shutdown error", "error", err)
		}
	}
}

// Notifier returns the publisher collaborator flows use to push
// notifications.
func (app *Application) Notifier() *notify.Publisher {
	return app.notifier
}

// Addr returns the server address.
func (app *Application) Addr() string {
	return app.httpServer.Addr
}
