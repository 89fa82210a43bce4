package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/buildrite/crewcal/internal/config"
	"github.com/buildrite/crewcal/internal/database"
	"github.com/buildrite/crewcal/internal/handlers"
	"github.com/buildrite/crewcal/internal/provider"
	"github.com/buildrite/crewcal/internal/repositories"
	"github.com/buildrite/crewcal/internal/services"
)

func main() {
	ctx := context.Background()

	godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize database connections
	postgresPool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		os.Exit(1)
	}
	defer postgresPool.Close()

	if err := database.Migrate(ctx, cfg.DatabaseURL); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	redisClient, err := database.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("failed to create redis client", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	api, err := buildProviderAPI(cfg, logger)
	if err != nil {
		logger.Error("failed to build calendar gateway client", "error", err)
		os.Exit(1)
	}

	// Repositories
	eventRepo := repositories.NewPostgresEventRepository(postgresPool)
	cursorRepo := repositories.NewPostgresSyncCursorRepository(postgresPool)
	conflictRepo := repositories.NewPostgresConflictLogRepository(postgresPool)
	assignmentRepo := repositories.NewPostgresAssignmentRepository(postgresPool)
	channelRepo := repositories.NewPostgresPushChannelRepository(postgresPool)
	settingsRepo := repositories.NewPostgresCalendarSettingsRepository(postgresPool)
	authCache := repositories.NewRedisAuthStatusCache(redisClient)

	// Services
	assignmentService := services.NewAssignmentService(assignmentRepo, logger)
	authResolver := services.NewAuthResolver(api, authCache, logger)
	calendarService := services.NewCalendarService(api, eventRepo, channelRepo, settingsRepo,
		assignmentService, authResolver, logger)
	syncService := services.NewSyncService(api, eventRepo, cursorRepo, conflictRepo,
		assignmentService, logger)

	// Initialize HTTP server
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	calendarHandler := handlers.NewCalendarHandler(calendarService, syncService, authResolver, logger)
	router.Mount("/api/calendar", calendarHandler.Routes())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: router,
	}

	// graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	logger.Info("starting server", "port", cfg.ServerPort, "dev_mode", cfg.DevMode)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// buildProviderAPI selects the gateway client: the deterministic in-memory
// mock in dev mode, the live HTTP client otherwise. The live client's bearer
// is either the pre-issued gateway token or a freshly minted service token.
func buildProviderAPI(cfg *config.Config, logger *slog.Logger) (provider.API, error) {
	if cfg.DevMode {
		logger.Info("dev mode: using mock calendar gateway")
		return provider.NewMockClient(), nil
	}

	token := cfg.CalendarAPIToken
	if token == "" {
		minted, err := services.NewServiceTokenSource(cfg.ServiceAccountID, cfg.ServiceAccountSecret).Token()
		if err != nil {
			return nil, fmt.Errorf("failed to mint service token: %w", err)
		}
		token = minted
	}

	return provider.NewClient(provider.ClientConfig{
		BaseURL:   cfg.CalendarAPIBase,
		AuthToken: token,
		BaseDelay: cfg.RetryBaseDelay,
		Logger:    logger,
	}), nil
}
