package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/lumichat/rendezvous/config"
	"github.com/lumichat/rendezvous/log"
	"github.com/lumichat/rendezvous/logintoken"
	"github.com/lumichat/rendezvous/mongodb"
	"github.com/lumichat/rendezvous/relay"
	relayredis "github.com/lumichat/rendezvous/relay/redis"
)

var appLogger log.Logger

// healthHandler reports liveness. With MongoDB configured it also pings the
// primary, so a lost connection turns the check unhealthy.
func healthHandler(mongoEnabled bool) echo.HandlerFunc {
	return func(c echo.Context) error {
		if mongoEnabled {
			if err := mongodb.Ping(c.Request().Context()); err != nil {
				return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			}
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}
}

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		stdLog := zerolog.New(os.Stdout).With().Timestamp().Logger()
		stdLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logLevel, parseErr := zerolog.ParseLevel(cfg.LogLevel)
	if parseErr != nil {
		logLevel = zerolog.InfoLevel
		stdLog := zerolog.New(os.Stdout).With().Timestamp().Logger()
		stdLog.Warn().
			Str("configured_log_level", cfg.LogLevel).
			Str("fallback_log_level", logLevel.String()).
			Err(parseErr).
			Msg("Invalid LOG_LEVEL configured, defaulting to 'info'")
	}
	appLogger = log.NewZerologAdapter(logLevel, cfg.LogPretty)

	ctx := context.Background()
	appLogger.Info(ctx, "Starting rendezvous server...")
	appLogger.Info(ctx, "Configuration loaded successfully", map[string]interface{}{
		"http_port":       cfg.HTTPPort,
		"mongo_uri":       cfg.MongoURI,
		"redis_addr":      cfg.RedisAddr,
		"channel_ttl_s":   cfg.ChannelTTLSec,
		"token_ttl_s":     cfg.LoginTokenTTLSec,
		"token_rate_pmin": cfg.TokenRatePerMin,
	})

	// --- Relay channel store ---
	var channelStore relay.Store
	if cfg.RedisAddr != "" {
		rdb := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			appLogger.Error(ctx, "Failed to ping Redis", err, nil)
			os.Exit(1)
		}
		channelStore = relayredis.NewStore(rdb, "rendezvous")
		appLogger.Info(ctx, "Using Redis channel store.")
	} else {
		channelStore = relay.NewMemoryStore(cfg.ChannelTTL())
		appLogger.Info(ctx, "Using in-memory channel store.")
	}

	// --- Login token repository ---
	var tokenRepo logintoken.Repository
	if cfg.MongoURI != "" {
		if initErr := mongodb.InitMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName); initErr != nil {
			appLogger.Error(ctx, "Failed to initialize MongoDB", initErr, nil)
			os.Exit(1)
		}
		defer mongodb.CloseMongoDB(ctx)

		repo := mongodb.NewLoginTokenRepository(mongodb.GetDB())
		if idxErr := repo.EnsureIndexes(ctx); idxErr != nil {
			appLogger.Error(ctx, "Failed to ensure login token indexes", idxErr, nil)
			os.Exit(1)
		}
		tokenRepo = repo
		appLogger.Info(ctx, "Using MongoDB login token repository.")
	} else {
		tokenRepo = logintoken.NewMemoryRepository(cfg.LoginTokenTTL())
		appLogger.Info(ctx, "Using in-memory login token repository.")
	}

	limiter := logintoken.NewRateLimiter(cfg.TokenRatePerMin, time.Minute)
	defer limiter.Close()

	tokenService := logintoken.NewService(tokenRepo, limiter, cfg.LoginTokenTTL(), appLogger)

	// --- HTTP server ---
	e := echo.New()
	e.HideBanner = true

	relay.NewAPI(channelStore, cfg.ChannelTTL(), cfg.MaxPayloadBytes).RegisterRoutes(e)
	logintoken.NewAPI(tokenService).RegisterRoutes(e)
	e.GET("/health", healthHandler(cfg.MongoURI != ""))

	go func() {
		if err := e.Start(":" + cfg.HTTPPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error(ctx, "HTTP server stopped unexpectedly", err, nil)
			os.Exit(1)
		}
	}()
	appLogger.Info(ctx, "HTTP server listening", map[string]interface{}{"port": cfg.HTTPPort})

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info(ctx, "Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "Graceful shutdown failed", err, nil)
	}
	appLogger.Info(ctx, "Server stopped.")
}
