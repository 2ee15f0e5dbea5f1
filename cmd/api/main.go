package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	openai "github.com/sashabaranov/go-openai"

	"github.com/rgarzadev/citabot/internal/api/router"
	"github.com/rgarzadev/citabot/internal/booking"
	"github.com/rgarzadev/citabot/internal/calendar"
	appconfig "github.com/rgarzadev/citabot/internal/config"
	"github.com/rgarzadev/citabot/internal/conversation"
	"github.com/rgarzadev/citabot/internal/llm"
	"github.com/rgarzadev/citabot/internal/messaging"
	"github.com/rgarzadev/citabot/internal/observability/metrics"
	"github.com/rgarzadev/citabot/internal/store"
	"github.com/rgarzadev/citabot/internal/timeparse"
	"github.com/rgarzadev/citabot/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting citabot API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	loc, err := time.LoadLocation(cfg.BusinessTimezone)
	if err != nil {
		logger.Error("invalid business timezone", "error", err, "tz", cfg.BusinessTimezone)
		os.Exit(1)
	}
	resolver := timeparse.NewResolver(loc, cfg.BusinessOpenHour, cfg.BusinessCloseHour)

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("postgres ping failed", "error", err)
		os.Exit(1)
	}

	var convStore conversation.Store = store.NewConversationStore(pool)
	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		redisClient := redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			// The Postgres store alone is fully functional.
			logger.Warn("redis unavailable, transcript cache disabled", "error", err)
		} else {
			convStore = store.NewCachedStore(convStore, redisClient, cfg.SessionIdleTimeout, logger)
		}
	}
	processedStore := store.NewProcessedStore(pool)

	gateway, err := calendar.NewGoogleGateway(ctx, cfg.GoogleCalendarID, cfg.GoogleCredentialsFile, logger)
	if err != nil {
		logger.Error("failed to initialize google calendar", "error", err)
		os.Exit(1)
	}
	scheduler := booking.NewScheduler(gateway, resolver, cfg.AppointmentDuration, cfg.SlotStep, cfg.MaxAlternatives, logger)

	var extractor conversation.SlotExtractor
	var responder conversation.Responder
	if cfg.OpenAIAPIKey != "" {
		client := openai.NewClient(cfg.OpenAIAPIKey)
		extractor = llm.NewExtractor(client, cfg.OpenAIModel, logger)
		responder = llm.NewResponder(client, cfg.OpenAIModel, logger)
	} else {
		logger.Warn("OPENAI_API_KEY not set, running without slot extraction")
	}

	webhookMetrics := metrics.NewWebhookMetrics(nil)
	engine := conversation.NewEngine(convStore, scheduler, resolver, extractor, responder, conversation.Options{
		IdleTimeout:           cfg.SessionIdleTimeout,
		TranscriptLimit:       cfg.TranscriptLimit,
		RequireBookingKeyword: cfg.RequireBookingKeyword,
		Metrics:               webhookMetrics,
	}, logger)

	messagingHandler := messaging.NewHandler(
		cfg.TwilioAuthToken, cfg.PublicWebhookURL,
		engine, processedStore, webhookMetrics, logger,
	)
	if cfg.TwilioAuthToken == "" {
		logger.Warn("TWILIO_AUTH_TOKEN not set, webhook signature validation disabled")
	}

	r := router.New(&router.Config{
		Logger:           logger,
		MessagingHandler: messagingHandler,
		MetricsHandler:   promhttp.Handler(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
