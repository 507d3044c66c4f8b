package billing

import (
	"context"
	"sync"

	"github.com/Vtcsolution/livecoach-sub000/internal/models"
)

// DebitRequest charges one billed minute. (SessionID, MinuteIndex) is the idempotency key.
type DebitRequest struct {
	UserID      string
	SessionID   string
	MinuteIndex int64
	Amount      models.Credits
}

// WalletLedger owns credit balances. Debit must be atomic per wallet and must
// report ErrInsufficientCredit instead of overdrawing.
type WalletLedger interface {
	Debit(ctx context.Context, req DebitRequest) error
	AffordableSeconds(ctx context.Context, userID string, ratePerMinute models.Credits) (int64, error)
}

// SecondsFor converts a balance into whole seconds of talk time at the given rate.
func SecondsFor(balance, ratePerMinute models.Credits) int64 {
	if balance <= 0 || ratePerMinute <= 0 {
		return 0
	}
	return int64(balance) * 60 / int64(ratePerMinute)
}

type minuteKey struct {
	sessionID   string
	minuteIndex int64
}

// MemoryLedger is an in-process WalletLedger.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]models.Credits
	billed   map[minuteKey]struct{}
	debits   []DebitRequest
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances: make(map[string]models.Credits),
		billed:   make(map[minuteKey]struct{}),
	}
}

func (l *MemoryLedger) SetBalance(userID string, balance models.Credits) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[userID] = balance
}

func (l *MemoryLedger) Credit(userID string, amount models.Credits) models.Credits {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[userID] += amount
	return l.balances[userID]
}

func (l *MemoryLedger) Balance(userID string) models.Credits {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[userID]
}

// Debits returns the committed debits in the order they were applied.
func (l *MemoryLedger) Debits() []DebitRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]DebitRequest, len(l.debits))
	copy(out, l.debits)
	return out
}

func (l *MemoryLedger) Debit(ctx context.Context, req DebitRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if req.UserID == "" || req.SessionID == "" || req.MinuteIndex <= 0 || req.Amount <= 0 {
		return ErrInvalidInput
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := minuteKey{sessionID: req.SessionID, minuteIndex: req.MinuteIndex}
	if _, done := l.billed[key]; done {
		return nil
	}
	if l.balances[req.UserID] < req.Amount {
		return ErrInsufficientCredit
	}
	l.balances[req.UserID] -= req.Amount
	l.billed[key] = struct{}{}
	l.debits = append(l.debits, req)
	return nil
}

func (l *MemoryLedger) AffordableSeconds(ctx context.Context, userID string, ratePerMinute models.Credits) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if ratePerMinute <= 0 {
		return 0, ErrInvalidInput
	}
	return SecondsFor(l.Balance(userID), ratePerMinute), nil
}
