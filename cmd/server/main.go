package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/chat-relay-go/internal/config"
	"github.com/openclaw/chat-relay-go/internal/database"
	"github.com/openclaw/chat-relay-go/internal/handler"
	"github.com/openclaw/chat-relay-go/internal/jobs"
	"github.com/openclaw/chat-relay-go/internal/middleware"
	"github.com/openclaw/chat-relay-go/internal/redis"
	"github.com/openclaw/chat-relay-go/internal/relay"
	"github.com/openclaw/chat-relay-go/internal/repository"
	"github.com/openclaw/chat-relay-go/internal/service"
	"github.com/openclaw/chat-relay-go/internal/sse"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	db, err := database.Connect(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}
	cancel()
	log.Info().Str("driver", cfg.DatabaseDriver).Msg("database connected")

	var redisClient *redis.Client
	var limiter relay.LoginLimiter
	if cfg.RedisURL != "" {
		redisClient, err = redis.NewClient(context.Background(), cfg.RedisURL, config.DBPingTimeout)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		log.Info().Msg("redis connected")
		limiter = service.NewRateLimiter(redisClient.Client)
	} else {
		limiter = service.NewMemoryRateLimiter()
	}

	userRepo := repository.NewUserRepository(db.DB)
	convRepo := repository.NewConversationRepository(db.DB)
	msgRepo := repository.NewMessageRepository(db.DB)
	store := service.NewChatStore(db, userRepo, convRepo, msgRepo)

	broker := sse.NewBroker(redisClient)
	defer broker.Close()

	srv := relay.NewServer(cfg, store, limiter)
	srv.SetEventPublisher(broker)
	if err := srv.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start chat relay")
	}

	cleanupJob := jobs.NewCleanupJob(config.PairingSweepInterval, jobs.PairingSweep(srv.ExpirePairings))
	cleanupJob.Start()
	defer cleanupJob.Stop()

	var adminServer *http.Server
	if cfg.AdminPort != 0 {
		adminServer = &http.Server{
			Addr:         cfg.AdminAddr(),
			Handler:      newAdminRouter(cfg, db, srv, store, broker, limiter),
			ReadTimeout:  config.ServerReadTimeout,
			WriteTimeout: 0,
			IdleTimeout:  config.ServerIdleTimeout,
		}

		go func() {
			log.Info().Str("addr", cfg.AdminAddr()).Msg("starting admin server")
			if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatal().Err(err).Msg("admin server error")
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if adminServer != nil {
		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("admin server forced to shutdown")
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("chat relay forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func newAdminRouter(
	cfg *config.Config,
	db *database.DB,
	srv *relay.Server,
	store *service.ChatStore,
	broker *sse.Broker,
	limiter middleware.Limiter,
) http.Handler {
	adminAuth := middleware.NewAdminAuthMiddleware(cfg.AdminToken)
	adminRateLimit := middleware.NewIPRateLimitMiddleware(
		limiter, config.AdminRateLimit, config.AdminRateLimitWindow, "admin",
	)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(config.AdminMaxBodyBytes)
	timeout := chimiddleware.Timeout(config.ServerRequestTimeout)

	healthHandler := handler.NewHealthHandler(db, srv, broker)
	adminHandler := handler.NewAdminHandler(srv, store)
	eventsHandler := handler.NewEventsHandler(broker, srv)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(bodyLimitMiddleware.Handler)

	r.With(timeout).Get("/health", healthHandler.ServeHTTP)

	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.SecurityHeaders)
		r.Use(adminAuth.Handler)
		r.Use(adminRateLimit.Handler)
		r.Get("/events", eventsHandler.ServeHTTP)
		r.Mount("/", timeout(adminHandler.Routes()))
	})

	return r
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
