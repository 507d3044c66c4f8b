package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/Vtcsolution/livecoach-sub000/internal/billing"
	"github.com/Vtcsolution/livecoach-sub000/internal/models"
	"github.com/Vtcsolution/livecoach-sub000/internal/services"
)

type BillingHandler struct {
	service billingApplicationService
}

type billingApplicationService interface {
	StartSession(ctx context.Context, actorID string, role string, sessionID string, input services.StartSessionInput) (*models.SessionState, error)
	Pause(ctx context.Context, actorID string, sessionID string) (*models.SessionState, error)
	Resume(ctx context.Context, actorID string, sessionID string) (*models.SessionState, error)
	Stop(ctx context.Context, actorID string, sessionID string) (*models.SessionState, error)
	Extend(ctx context.Context, actorID string, sessionID string, seconds int64) (*models.SessionState, error)
	Query(ctx context.Context, actorID string, sessionID string) (*models.SessionState, error)
	ListBilledMinutes(ctx context.Context, actorID string, sessionID string) ([]models.BilledMinute, error)
}

func NewBillingHandler(service *services.BillingService) *BillingHandler {
	return &BillingHandler{service: service}
}

type startSessionRequest struct {
	UserID        string         `json:"user_id"`
	AdvisorID     string         `json:"advisor_id"`
	RatePerMinute models.Credits `json:"rate_per_minute"`
}

type extendSessionRequest struct {
	Seconds int64 `json:"seconds"`
}

func (h *BillingHandler) StartSession(c *fiber.Ctx) error {
	role, ok := c.Locals("role").(string)
	if !ok || role != "user" {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}

	actorID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	sessionID, err := parseSessionID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	var req startSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	req.UserID = strings.TrimSpace(req.UserID)
	req.AdvisorID = strings.TrimSpace(req.AdvisorID)
	if req.UserID == "" {
		req.UserID = actorID
	}
	if req.AdvisorID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "advisor_id is required"})
	}
	if req.RatePerMinute < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "rate_per_minute must not be negative"})
	}

	state, err := h.service.StartSession(c.Context(), actorID, role, sessionID, services.StartSessionInput{
		UserID:        req.UserID,
		AdvisorID:     req.AdvisorID,
		RatePerMinute: req.RatePerMinute,
	})
	if err != nil {
		return mapBillingError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"session":               state,
		"total_allowed_seconds": state.TotalAllowedSeconds,
	})
}

func (h *BillingHandler) PauseSession(c *fiber.Ctx) error {
	return h.transition(c, h.service.Pause)
}

func (h *BillingHandler) ResumeSession(c *fiber.Ctx) error {
	return h.transition(c, h.service.Resume)
}

func (h *BillingHandler) StopSession(c *fiber.Ctx) error {
	return h.transition(c, h.service.Stop)
}

func (h *BillingHandler) GetSession(c *fiber.Ctx) error {
	return h.transition(c, h.service.Query)
}

func (h *BillingHandler) ExtendSession(c *fiber.Ctx) error {
	actorID, sessionID, ok := participantRequest(c)
	if !ok {
		return nil
	}

	var req extendSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Seconds <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "seconds must be greater than 0"})
	}

	state, err := h.service.Extend(c.Context(), actorID, sessionID, req.Seconds)
	if err != nil {
		return mapBillingError(c, err)
	}

	return c.JSON(fiber.Map{"session": state})
}

func (h *BillingHandler) ListBilledMinutes(c *fiber.Ctx) error {
	actorID, sessionID, ok := participantRequest(c)
	if !ok {
		return nil
	}

	minutes, err := h.service.ListBilledMinutes(c.Context(), actorID, sessionID)
	if err != nil {
		return mapBillingError(c, err)
	}

	return c.JSON(fiber.Map{"billed_minutes": minutes})
}

func (h *BillingHandler) transition(
	c *fiber.Ctx,
	apply func(ctx context.Context, actorID string, sessionID string) (*models.SessionState, error),
) error {
	actorID, sessionID, ok := participantRequest(c)
	if !ok {
		return nil
	}

	state, err := apply(c.Context(), actorID, sessionID)
	if err != nil {
		return mapBillingError(c, err)
	}

	return c.JSON(fiber.Map{"session": state})
}

// participantRequest writes the error response itself when it reports false.
func participantRequest(c *fiber.Ctx) (string, string, bool) {
	role, ok := c.Locals("role").(string)
	if !ok || (role != "user" && role != "advisor") {
		_ = c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
		return "", "", false
	}

	actorID, err := parseActorID(c)
	if err != nil {
		_ = c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
		return "", "", false
	}

	sessionID, err := parseSessionID(c)
	if err != nil {
		_ = c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
		return "", "", false
	}

	return actorID, sessionID, true
}

func mapBillingError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	case errors.Is(err, billing.ErrInsufficientCredit):
		return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{"error": "Insufficient credit"})
	case errors.Is(err, billing.ErrAlreadyActive):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Session timer is already active"})
	case errors.Is(err, billing.ErrInvalidTransition):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, billing.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Session not found"})
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Billing is unavailable"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process billing request"})
	}
}
