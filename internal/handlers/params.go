package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
)

var errMissingParam = errors.New("missing parameter")

func parseActorID(c *fiber.Ctx) (string, error) {
	actorID, ok := c.Locals("user_id").(string)
	if !ok || strings.TrimSpace(actorID) == "" {
		return "", errMissingParam
	}
	return strings.TrimSpace(actorID), nil
}

func parseSessionID(c *fiber.Ctx) (string, error) {
	sessionID := strings.TrimSpace(c.Params("id"))
	if sessionID == "" || len(sessionID) > 64 {
		return "", errMissingParam
	}
	return sessionID, nil
}
