package routes

import (
	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/Vtcsolution/livecoach-sub000/internal/config"
	"github.com/Vtcsolution/livecoach-sub000/internal/handlers"
	"github.com/Vtcsolution/livecoach-sub000/internal/middleware"
	"github.com/Vtcsolution/livecoach-sub000/internal/observability"
	"github.com/Vtcsolution/livecoach-sub000/internal/services"
	chatws "github.com/Vtcsolution/livecoach-sub000/internal/websocket"
)

// Dependencies are the long-lived components owned by main; their lifecycle
// (hub goroutine, session registry) is tied to process shutdown.
type Dependencies struct {
	Billing *services.BillingService
	Wallets *services.WalletService
	Hub     *chatws.Hub
	Metrics *observability.Metrics
}

func RegisterRoutes(app *fiber.App, cfg *config.Config, deps Dependencies) {
	billingHandler := handlers.NewBillingHandler(deps.Billing)
	walletHandler := handlers.NewWalletHandler(deps.Wallets)
	realtimeHandler := handlers.NewRealtimeHandler(deps.Hub, deps.Billing, cfg.JWTSecret)

	if deps.Metrics != nil {
		app.Get("/metrics", deps.Metrics.Handler())
	}

	api := app.Group("/api")

	// Registered ahead of the bearer-protected group: browsers pass the
	// token as a query parameter on upgrade.
	api.Use("/v1/ws", realtimeHandler.WebSocketAuth)
	api.Get("/v1/ws", websocket.New(realtimeHandler.HandleWebSocket))

	authProtected := api.Group("/v1", middleware.AuthRequired(cfg.JWTSecret))

	sessions := authProtected.Group("/billing/sessions")
	sessions.Get("/:id", billingHandler.GetSession)
	sessions.Get("/:id/minutes", billingHandler.ListBilledMinutes)
	sessions.Post("/:id/start", billingHandler.StartSession)
	sessions.Post("/:id/pause", billingHandler.PauseSession)
	sessions.Post("/:id/resume", billingHandler.ResumeSession)
	sessions.Post("/:id/stop", billingHandler.StopSession)
	sessions.Post("/:id/extend", billingHandler.ExtendSession)

	authProtected.Get("/wallet", walletHandler.GetBalance)

	admin := authProtected.Group("/admin", middleware.RequireRole("admin"))
	admin.Post("/wallets/:userId/credit", walletHandler.CreditWallet)
}
