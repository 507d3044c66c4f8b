package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/Vtcsolution/livecoach-sub000/internal/models"
	"github.com/Vtcsolution/livecoach-sub000/internal/services"
)

type WalletHandler struct {
	service walletApplicationService
}

type walletApplicationService interface {
	Balance(ctx context.Context, userID string) (models.Credits, error)
	Credit(ctx context.Context, userID string, amount models.Credits) (models.Credits, error)
}

func NewWalletHandler(service *services.WalletService) *WalletHandler {
	return &WalletHandler{service: service}
}

type creditWalletRequest struct {
	Amount models.Credits `json:"amount"`
}

func (h *WalletHandler) GetBalance(c *fiber.Ctx) error {
	role, ok := c.Locals("role").(string)
	if !ok || role != "user" {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	userID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	balance, err := h.service.Balance(c.Context(), userID)
	if err != nil {
		return mapBillingError(c, err)
	}

	return c.JSON(fiber.Map{"user_id": userID, "balance": balance})
}

// CreditWallet is the top-up hook for the payment provider integration.
func (h *WalletHandler) CreditWallet(c *fiber.Ctx) error {
	role, ok := c.Locals("role").(string)
	if !ok || role != "admin" {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	userID := strings.TrimSpace(c.Params("userId"))
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid user id"})
	}

	var req creditWalletRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Amount <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "amount must be greater than 0"})
	}

	balance, err := h.service.Credit(c.Context(), userID, req.Amount)
	if err != nil {
		return mapBillingError(c, err)
	}

	return c.JSON(fiber.Map{"user_id": userID, "balance": balance})
}
