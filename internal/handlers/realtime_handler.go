package handlers

import (
	"errors"
	"strings"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/Vtcsolution/livecoach-sub000/internal/middleware"
	"github.com/Vtcsolution/livecoach-sub000/internal/services"
	chatws "github.com/Vtcsolution/livecoach-sub000/internal/websocket"
	"github.com/Vtcsolution/livecoach-sub000/pkg/utils"
)

// RealtimeHandler upgrades participant connections and attaches them to the hub.
type RealtimeHandler struct {
	hub       *chatws.Hub
	service   *services.BillingService
	jwtSecret string
}

func NewRealtimeHandler(hub *chatws.Hub, service *services.BillingService, jwtSecret string) *RealtimeHandler {
	return &RealtimeHandler{
		hub:       hub,
		service:   service,
		jwtSecret: jwtSecret,
	}
}

func (h *RealtimeHandler) WebSocketAuth(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{"error": "WebSocket upgrade required"})
	}

	claims, err := parseWSClaims(c, h.jwtSecret)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid or expired token"})
	}

	c.Locals("user_id", claims.UserID)
	c.Locals("role", claims.Role)
	return c.Next()
}

func (h *RealtimeHandler) HandleWebSocket(conn *websocket.Conn) {
	userID, _ := conn.Locals("user_id").(string)
	client := chatws.NewClient(h.hub, conn, userID)

	h.hub.Register(client)
	go client.WritePump()
	client.ReadPump(h.service)
}

func parseWSClaims(c *fiber.Ctx, secret string) (*utils.Claims, error) {
	tokenString := strings.TrimSpace(c.Query("token"))
	if tokenString == "" {
		tokenString, _ = middleware.BearerToken(c.Get("Authorization"))
	}

	if tokenString == "" {
		return nil, errors.New("missing token")
	}

	return utils.ValidateToken(tokenString, secret)
}
