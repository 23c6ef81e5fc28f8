package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/teleprompter/backend/api/handlers"
	"github.com/teleprompter/backend/internal/auth"
	"github.com/teleprompter/backend/internal/config"
	"github.com/teleprompter/backend/internal/db"
	"github.com/teleprompter/backend/internal/observability"
	"github.com/teleprompter/backend/internal/repository"
	"github.com/teleprompter/backend/internal/session"
	"github.com/teleprompter/backend/internal/stream"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath, envFile, port string

	flagSet := pflag.NewFlagSet("server", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to a TOML config file")
	flagSet.StringVar(&envFile, "env-file", ".env", "dotenv file to load if present")
	flagSet.StringVar(&port, "port", "", "listen port (overrides PORT)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		return err
	}
	if port != "" {
		cfg.Port = port
	}

	logger := observability.InitLogger("teleprompter", cfg.LogLevel, cfg.LogFormat)

	// Ensure data directory exists
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return fmt.Errorf("create database directory: %w", err)
	}

	database, err := db.InitDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer db.CloseDB()

	users := repository.NewUserRepository(database)
	verifier := auth.NewJWTVerifier(cfg.JWTSecret, users, nil)

	registry := session.NewRegistry(session.Config{
		HeartbeatTimeout:       cfg.HeartbeatTimeout,
		MaxSessionsPerIdentity: cfg.MaxSessionsPerIdentity,
		Logger:                 logger,
	})

	scrollHandler := handlers.NewScrollHandler(registry, handlers.ScrollConfig{
		KeepAlive:  cfg.KeepAliveInterval,
		SendBuffer: cfg.SendBuffer,
		Limiter:    handlers.NewOpenLimiter(cfg.OpenRate, cfg.OpenBurst, nil),
		Logger:     logger.With().Str("component", "scroll").Logger(),

		CheckOrigin: socketOrigins(cfg),
	})
	userHandler := handlers.NewUserHandler()

	r := newRouter(cfg, logger)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1", handlers.RequireIdentity(verifier, logger))
	{
		scrollHandler.RegisterRoutes(api)
		userHandler.RegisterRoutes(api)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Streams only end when their sessions are closed.
	srv.RegisterOnShutdown(registry.Close)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", srv.Addr).
			Dur("heartbeat_timeout", registry.HeartbeatTimeout()).
			Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	registry.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown error")
	}
	return nil
}

// socketOrigins applies the CORS origin list to WebSocket handshakes, which
// CORS does not cover.
func socketOrigins(cfg config.Config) func(r *http.Request) bool {
	if cfg.AllowAllOrigins() {
		return nil
	}
	return stream.AllowOrigins(cfg.Origins())
}

func newRouter(cfg config.Config, logger zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(logger))
	r.Use(observability.RequestMetrics())

	corsConfig := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "Cache-Control"},
		ExposeHeaders: []string{handlers.ClientIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if cfg.AllowAllOrigins() {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.Origins()
		corsConfig.AllowCredentials = true
	}
	r.Use(cors.New(corsConfig))

	return r
}
