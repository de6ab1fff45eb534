package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/ai"
	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/api"
	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/bus"
	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/cache"
	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/config"
	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/copilot"
	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/handlers"
	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/models"
	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/presence"
	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/room"
	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/session"
	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Initialize meeting store
	var meetings *store.MeetingStore
	if cfg.DatabaseURL != "" {
		var err error
		meetings, err = store.NewMeetingStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		defer meetings.Close()
		logger.Info().Msg("connected to PostgreSQL")
	}

	// Initialize event bus
	var eventBus *bus.RedisBus
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		var err error
		eventBus, err = bus.NewRedisBus(ctx, cfg.RedisURL, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer eventBus.Close()
		redisClient = eventBus.Client()
		logger.Info().Msg("connected to Redis")
	}

	// AI providers, by configured credentials
	var providers []ai.Provider
	if cfg.OpenAIKey != "" {
		providers = append(providers, ai.NewOpenAIProvider(cfg.OpenAIKey))
	}
	if cfg.AnthropicKey != "" {
		providers = append(providers, ai.NewAnthropicProvider(cfg.AnthropicKey))
	}
	if cfg.GeminiKey != "" {
		providers = append(providers, ai.NewGeminiProvider(cfg.GeminiKey))
	}
	if len(providers) == 0 {
		logger.Warn().Msg("no AI provider credentials configured, tasks will degrade")
	}

	var responseCache cache.Cache = cache.Noop{}
	if redisClient != nil {
		responseCache = cache.NewRedisCache(redisClient, logger)
	}

	health := ai.NewHealthTable(cfg.BreakerFailures, cfg.BreakerCooldown)
	router := ai.NewRouter(ai.RouterConfig{
		AttemptTimeout: cfg.AttemptTimeout,
		TaskDeadline:   cfg.TaskDeadline,
		Chains: map[models.TaskKind][]string{
			models.TaskTranscribe:     cfg.TranscribeChain,
			models.TaskSummarize:      cfg.SummarizeChain,
			models.TaskExtractActions: cfg.ActionsChain,
		},
	}, providers, health, responseCache, logger)

	// Room broadcaster and session manager reference each other through
	// hooks, so wire the callbacks through late-bound pointers.
	var mgr *session.Manager
	var cop *copilot.Copilot

	var eventBusIface bus.Bus
	if eventBus != nil {
		eventBusIface = eventBus
	}
	broadcaster := room.NewBroadcaster(room.Options{
		Instance:     uuid.NewString(),
		Bus:          eventBusIface,
		RingSize:     cfg.RingSize,
		GracePeriod:  cfg.RoomGracePeriod,
		RoomCapacity: cfg.RoomCapacity,
		OnEvict: func(roomID, sessionID string) {
			mgr.EvictSlowConsumer(roomID, sessionID)
		},
		OnRoomClosed: func(roomID string) {
			cop.HandleRoomClosed(roomID)
		},
	}, logger)

	presenceStore := presence.NewStore()

	var authorizer session.Authorizer = session.AllowAll{}
	if meetings != nil {
		authorizer = session.NewStoreAuthorizer(meetings)
	}

	mgr = session.NewManager(session.Config{
		HeartbeatInterval: cfg.HeartbeatInterval,
		MissedHeartbeats:  cfg.MissedHeartbeats,
		SendQueueCapacity: cfg.SendQueueCapacity,
	}, broadcaster, presenceStore, authorizer, logger)

	cop = copilot.New(broadcaster, mgr, presenceStore, router, meetings, logger)
	mgr.OnDetach(cop.AnnounceLeave)

	go broadcaster.Run(ctx)
	go mgr.Run(ctx)

	// Create router
	h := handlers.NewHandler(mgr, broadcaster, cop, health, eventBusIface, meetings, logger)
	mux := api.NewRouter(logger, h, redisClient)

	// Create server
	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: it would sever long-lived WebSocket
		// connections; per-frame deadlines are set on the transport.
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting collaboration server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	mgr.Close()
	stop()
	cop.Wait()

	logger.Info().Msg("server stopped")
}
