package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/remote-agent-terminal/iohub/api/handlers"
	"github.com/remote-agent-terminal/iohub/internal/config"
	"github.com/remote-agent-terminal/iohub/internal/db"
	"github.com/remote-agent-terminal/iohub/internal/host"
	"github.com/remote-agent-terminal/iohub/internal/metrics"
	"github.com/remote-agent-terminal/iohub/internal/pipeline"
	"github.com/remote-agent-terminal/iohub/internal/presence"
	"github.com/remote-agent-terminal/iohub/internal/registry"
	"github.com/remote-agent-terminal/iohub/internal/repository"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := loadConfig(getEnv("CONFIG_PATH", ""))
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := cfg.Log.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadAndValidate(path)
}

func run(cfg *config.Config, logger *slog.Logger) error {
	// Ensure data directories exist
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
		return err
	}

	database, err := db.InitDB(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.CloseDB()

	presenceRepo := repository.NewPresenceRepository(database)
	tracker := presence.NewTracker(presenceRepo, logger)

	pruneCtx, stopPrune := context.WithCancel(context.Background())
	defer stopPrune()
	go presence.RunRetention(pruneCtx, presenceRepo, cfg.Database.Retention, 0, logger)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	engine := gin.Default()
	engine.UseRawPath = true
	engine.Use(corsMiddleware())
	app := host.NewApp(engine)

	tlsConfig, err := cfg.Server.TLS.Load()
	if err != nil {
		return err
	}
	var attachOpts []registry.AttachOption
	if tlsConfig != nil {
		attachOpts = append(attachOpts, registry.WithTLS(tlsConfig))
	}

	io := registry.MustNew(registryOptions(cfg, "", false, logger, m))
	if _, err := io.Attach(app, attachOpts...); err != nil {
		return err
	}

	registries := []*registry.IO{io}
	named := make(map[string]*registry.IO)
	for _, ns := range cfg.Namespaces {
		r := registry.MustNew(registryOptions(cfg, ns.Name, ns.Hidden, logger, m))
		if _, err := r.Attach(app); err != nil {
			return err
		}
		registries = append(registries, r)
		named[r.Namespace()] = r
	}

	for _, r := range registries {
		if m != nil {
			r.Use(m.Middleware(r.Namespace()))
			if err := m.TrackConnections(r.Namespace(), r.Size); err != nil {
				return err
			}
		}
		if err := tracker.Attach(r); err != nil {
			return err
		}
	}

	if err := registerDefaultHandlers(io, logger); err != nil {
		return err
	}
	if chat, ok := named["chat"]; ok {
		if err := registerChatHandlers(chat, logger); err != nil {
			return err
		}
	}

	// Health check endpoint
	engine.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})
	if m != nil {
		engine.GET(cfg.Metrics.Path, gin.WrapH(m.Handler()))
	}

	api := engine.Group("/api")
	{
		handlers.NewStatusHandler(app).RegisterRoutes(api)
		handlers.NewPresenceHandler(presenceRepo).RegisterRoutes(api)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", cfg.Server.Addr, "tls", tlsConfig != nil, "transport", cfg.Transport.Path)
		errCh <- app.Listen(cfg.Server.Addr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down server", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.Shutdown(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

func registryOptions(cfg *config.Config, name string, hidden bool, logger *slog.Logger, m *metrics.Metrics) registry.Options {
	opts := registry.Options{
		Namespace: name,
		Hidden:    hidden,
		Transport: cfg.Transport,
		Logger:    logger,
	}
	if m != nil {
		opts.ErrorHandler = m.ErrorHandler(name)
	}
	return opts
}

func registerDefaultHandlers(io *registry.IO, logger *slog.Logger) error {
	io.Use(func(ctx *pipeline.Context, next pipeline.Next) error {
		start := time.Now()
		err := next()
		logger.Debug("socket event handled", "event", ctx.Event, "elapsed", time.Since(start))
		return err
	})
	io.Use(func(ctx *pipeline.Context, next pipeline.Next) error {
		ctx.Set("teststring", "test")
		return next()
	})

	broadcastCount := func() {
		io.Broadcast("connections", gin.H{"numConnections": io.Size()})
	}

	if err := io.OnConnect(func(ctx *pipeline.Context) error {
		logger.Info("join event", "socket", ctx.Socket.ID())
		broadcastCount()
		return nil
	}); err != nil {
		return err
	}

	io.On("disconnect", func(ctx *pipeline.Context) error {
		logger.Info("leave event", "socket", ctx.Socket.ID())
		broadcastCount()
		return nil
	})

	io.On("data", func(ctx *pipeline.Context) error {
		logger.Debug("data event", "socket", ctx.Socket.ID(), "data", string(ctx.Data), "teststring", ctx.GetString("teststring"))
		return ctx.Emit("response", gin.H{"message": "response from server"})
	})

	io.On("ack", func(ctx *pipeline.Context) error {
		return ctx.Ack("received")
	})

	io.On("numConnections", func(ctx *pipeline.Context) error {
		logger.Info("connection count", "connections", io.Size())
		return nil
	})
	return nil
}

func registerChatHandlers(chat *registry.IO, logger *slog.Logger) error {
	chat.Use(func(ctx *pipeline.Context, next pipeline.Next) error {
		ctx.Set("teststring", "chattest")
		return next()
	})

	if err := chat.OnConnect(func(ctx *pipeline.Context) error {
		logger.Info("joining chat namespace", "socket", ctx.Socket.ID())
		return nil
	}); err != nil {
		return err
	}

	chat.On("message", func(ctx *pipeline.Context) error {
		// Everybody, this connection included.
		chat.Broadcast("message", "yo connections, lets chat")

		if err := ctx.Socket.Broadcast().Emit("message", "ok connections:chat:broadcast"); err != nil {
			return err
		}
		return ctx.Emit("message", "ok connections:chat:emit")
	})
	return nil
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// corsMiddleware returns a CORS middleware for development.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
