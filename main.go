package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"game-reward-system/handlers"
	"game-reward-system/middleware"
	"game-reward-system/services"
	"game-reward-system/storage"
	"game-reward-system/utils"
	"game-reward-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Str("app", "game-reward-system").Logger()

	if err := godotenv.Load(); err != nil {
		logger.Warn().Msg("no .env file found, reading environment variables directly")
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		logger.Fatal().Msg("DATABASE_URL environment variable not set")
	}
	gatewayToken := os.Getenv("GATEWAY_SERVICE_TOKEN")
	if gatewayToken == "" {
		logger.Fatal().Msg("GATEWAY_SERVICE_TOKEN environment variable not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	store := storage.NewPostgres(db)
	if err := store.AutoMigrate(); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	objects, err := utils.NewObjectStoreFromEnv(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize R2 client")
	}
	if objects == nil {
		logger.Warn().Msg("R2 not configured, leaderboard snapshot export disabled")
	}

	achievementService := services.NewAchievementService(store, logger)
	leaderboardService := services.NewLeaderboardService(store, logger)
	challengeService := services.NewChallengeService(store, store, store, store, logger)
	engine := services.NewEngine(store, store, store, store, achievementService, leaderboardService, challengeService, logger)

	// Make sure today's and tomorrow's challenge sets exist before serving.
	now := time.Now().UTC()
	for _, day := range []string{services.DayKey(now), services.DayKey(now.Add(24 * time.Hour))} {
		if err := challengeService.SeedDay(ctx, day); err != nil {
			logger.Fatal().Err(err).Str("day", day).Msg("failed to seed daily challenges")
		}
	}

	rankWorker := workers.NewRankWorker(leaderboardService, challengeService, store, objects, logger)
	sched, err := rankWorker.Start(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start rank worker")
	}
	defer func() { _ = sched.Shutdown() }()

	reaper := workers.NewSessionReaper(store, sessionMaxAge(logger), logger)
	go reaper.Run(ctx, 1*time.Minute)

	app := fiber.New(fiber.Config{
		BodyLimit: 1 * 1024 * 1024,
	})

	app.Use(middleware.GatewayAuthMiddleware(gatewayToken, logger))

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID, X-User-Roles",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	handlers.SetupSessionRoutes(app, engine)
	handlers.SetupProgressionRoutes(app, handlers.ProgressionDeps{
		Wallets:      store,
		Progress:     store,
		Games:        store,
		Achievements: achievementService,
		Leaderboards: leaderboardService,
		Challenges:   challengeService,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "5300"
	}
	go func() {
		if err := app.Listen(":" + port); err != nil {
			logger.Error().Err(err).Msg("server error")
			stop()
		}
	}()
	logger.Info().Str("port", port).Msg("server running")

	<-ctx.Done()
	logger.Info().Msg("shutting down server")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
}

func sessionMaxAge(logger zerolog.Logger) time.Duration {
	raw := strings.TrimSpace(os.Getenv("SESSION_MAX_AGE"))
	if raw == "" {
		return 24 * time.Hour
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		logger.Warn().Str("value", raw).Msg("invalid SESSION_MAX_AGE, using 24h")
		return 24 * time.Hour
	}
	return d
}
