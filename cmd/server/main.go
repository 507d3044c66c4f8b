package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Vtcsolution/livecoach-sub000/internal/billing"
	"github.com/Vtcsolution/livecoach-sub000/internal/config"
	"github.com/Vtcsolution/livecoach-sub000/internal/database"
	"github.com/Vtcsolution/livecoach-sub000/internal/models"
	"github.com/Vtcsolution/livecoach-sub000/internal/observability"
	"github.com/Vtcsolution/livecoach-sub000/internal/repository"
	"github.com/Vtcsolution/livecoach-sub000/internal/routes"
	"github.com/Vtcsolution/livecoach-sub000/internal/services"
	chatws "github.com/Vtcsolution/livecoach-sub000/internal/websocket"
)

func main() {
	// 1. Load Config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	setupLogger(cfg)

	// 2. Connect to Database
	if err := database.ConnectDB(cfg.DBUrl); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.CloseDB()

	// 3. Billing runtime
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(cfg.MetricsNamespace, promRegistry)

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := chatws.NewHub(metrics)
	go hub.Run(hubCtx)

	requestRepo := repository.NewChatRequestRepository(database.DB)
	minuteRepo := repository.NewBilledMinuteRepository(database.DB)
	walletService := services.NewWalletService(database.DB, repository.NewWalletRepository(database.DB))

	var billingService *services.BillingService
	registry := billing.NewRegistry(walletService, hub, billing.Options{
		TickInterval:   cfg.Billing.TickInterval,
		DebitTimeout:   cfg.Billing.DebitTimeout,
		EndedRetention: cfg.Billing.EndedRetention,
		Observer:       metrics,
		OnEnded: func(state models.SessionState) {
			billingService.PersistEnded(state)
		},
	})
	billingService = services.NewBillingService(requestRepo, minuteRepo, registry)

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	registry.StartJanitor(janitorCtx, time.Minute)

	// 4. Setup Fiber
	app := fiber.New(fiber.Config{DisableStartupMessage: !cfg.IsDevelopment()})

	// Middleware
	app.Use(cors.New())
	app.Use(logger.New())
	app.Use(recover.New())

	// Routes
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":          "ok",
			"active_sessions": registry.ActiveCount(),
		})
	})
	routes.RegisterRoutes(app, cfg, routes.Dependencies{
		Billing: billingService,
		Wallets: walletService,
		Hub:     hub,
		Metrics: metrics,
	})

	// 5. Start Server
	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server starting")
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	// 6. Shutdown: stop intake, end live timers while the database and hub
	// are still up so final states are persisted and broadcast.
	log.Info().Msg("Shutting down")
	if err := app.ShutdownWithTimeout(cfg.ShutdownTimeout); err != nil {
		log.Error().Err(err).Msg("Server shutdown")
	}
	registry.Close()
	log.Info().Msg("Billing timers stopped")
}

func setupLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if cfg.IsDevelopment() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}
