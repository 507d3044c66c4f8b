package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/Vtcsolution/livecoach-sub000/internal/models"
)

type stubWalletService struct {
	balance      models.Credits
	err          error
	lastUserID   string
	lastAmount   models.Credits
	creditCalled bool
}

func (s *stubWalletService) Balance(_ context.Context, userID string) (models.Credits, error) {
	s.lastUserID = userID
	return s.balance, s.err
}

func (s *stubWalletService) Credit(_ context.Context, userID string, amount models.Credits) (models.Credits, error) {
	s.creditCalled = true
	s.lastUserID = userID
	s.lastAmount = amount
	return s.balance + amount, s.err
}

func newWalletTestApp(handler *WalletHandler, role, userID string) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("role", role)
		c.Locals("user_id", userID)
		return c.Next()
	})
	app.Get("/api/v1/wallet", handler.GetBalance)
	app.Post("/api/v1/admin/wallets/:userId/credit", handler.CreditWallet)
	return app
}

func TestGetBalanceReturnsCallerWallet(t *testing.T) {
	service := &stubWalletService{balance: 1250}
	app := newWalletTestApp(&WalletHandler{service: service}, "user", "user-1")

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/wallet", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body struct {
		Balance models.Credits `json:"balance"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Balance != 1250 {
		t.Fatalf("expected balance 1250, got %d", body.Balance)
	}
	if service.lastUserID != "user-1" {
		t.Fatalf("expected user-1, got %q", service.lastUserID)
	}
}

func TestCreditWalletRequiresAdmin(t *testing.T) {
	service := &stubWalletService{}
	app := newWalletTestApp(&WalletHandler{service: service}, "user", "user-1")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/wallets/user-1/credit", strings.NewReader(`{"amount":500}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	if service.creditCalled {
		t.Fatal("credit must not be applied")
	}
}

func TestCreditWalletAddsAmount(t *testing.T) {
	service := &stubWalletService{balance: 100}
	app := newWalletTestApp(&WalletHandler{service: service}, "admin", "ops-1")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/wallets/user-7/credit", strings.NewReader(`{"amount":500}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if service.lastUserID != "user-7" || service.lastAmount != 500 {
		t.Fatalf("unexpected credit call: user %q amount %d", service.lastUserID, service.lastAmount)
	}
}
