package billing

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vtcsolution/livecoach-sub000/internal/models"
)

func TestSecondsFor(t *testing.T) {
	cases := []struct {
		balance models.Credits
		rate    models.Credits
		want    int64
	}{
		{balance: 100, rate: 100, want: 60},
		{balance: 50, rate: 100, want: 30},
		{balance: 250, rate: 150, want: 100},
		{balance: 1, rate: 100, want: 0},
		{balance: 0, rate: 100, want: 0},
		{balance: 100, rate: 0, want: 0},
		{balance: -5, rate: 100, want: 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, SecondsFor(tc.balance, tc.rate), "balance=%d rate=%d", tc.balance, tc.rate)
	}
}

func TestMemoryLedgerDebitIsIdempotentPerMinute(t *testing.T) {
	ledger := NewMemoryLedger()
	ledger.SetBalance("user-1", 300)
	req := DebitRequest{UserID: "user-1", SessionID: "chat-1", MinuteIndex: 1, Amount: 100}

	require.NoError(t, ledger.Debit(context.Background(), req))
	require.NoError(t, ledger.Debit(context.Background(), req))

	assert.Equal(t, models.Credits(200), ledger.Balance("user-1"))
	assert.Len(t, ledger.Debits(), 1)

	req.MinuteIndex = 2
	require.NoError(t, ledger.Debit(context.Background(), req))
	assert.Equal(t, models.Credits(100), ledger.Balance("user-1"))
}

func TestMemoryLedgerRejectsOverdraw(t *testing.T) {
	ledger := NewMemoryLedger()
	ledger.SetBalance("user-1", 99)

	err := ledger.Debit(context.Background(), DebitRequest{UserID: "user-1", SessionID: "chat-1", MinuteIndex: 1, Amount: 100})
	assert.ErrorIs(t, err, ErrInsufficientCredit)
	assert.Equal(t, models.Credits(99), ledger.Balance("user-1"))

	// A refused minute can be retried once the wallet is topped up.
	ledger.Credit("user-1", 1)
	require.NoError(t, ledger.Debit(context.Background(), DebitRequest{UserID: "user-1", SessionID: "chat-1", MinuteIndex: 1, Amount: 100}))
	assert.Equal(t, models.Credits(0), ledger.Balance("user-1"))
}

func TestMemoryLedgerConcurrentDebitsNeverOverdraw(t *testing.T) {
	ledger := NewMemoryLedger()
	ledger.SetBalance("user-1", 1000)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(minute int64) {
			defer wg.Done()
			err := ledger.Debit(context.Background(), DebitRequest{
				UserID:      "user-1",
				SessionID:   "chat-1",
				MinuteIndex: minute,
				Amount:      100,
			})
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			} else if !errors.Is(err, ErrInsufficientCredit) {
				t.Errorf("unexpected error: %v", err)
			}
		}(int64(i))
	}
	wg.Wait()

	assert.Equal(t, 10, accepted)
	assert.Equal(t, models.Credits(0), ledger.Balance("user-1"))
}

func TestMemoryLedgerValidatesInput(t *testing.T) {
	ledger := NewMemoryLedger()
	ledger.SetBalance("user-1", 1000)

	invalid := []DebitRequest{
		{UserID: "", SessionID: "chat-1", MinuteIndex: 1, Amount: 100},
		{UserID: "user-1", SessionID: "", MinuteIndex: 1, Amount: 100},
		{UserID: "user-1", SessionID: "chat-1", MinuteIndex: 0, Amount: 100},
		{UserID: "user-1", SessionID: "chat-1", MinuteIndex: 1, Amount: 0},
	}
	for _, req := range invalid {
		assert.ErrorIs(t, ledger.Debit(context.Background(), req), ErrInvalidInput)
	}

	_, err := ledger.AffordableSeconds(context.Background(), "user-1", 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestMemoryLedgerHonoursCancelledContext(t *testing.T) {
	ledger := NewMemoryLedger()
	ledger.SetBalance("user-1", 1000)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := ledger.Debit(ctx, DebitRequest{UserID: "user-1", SessionID: "chat-1", MinuteIndex: 1, Amount: 100})
	assert.ErrorIs(t, err, context.Canceled)

	_, err = ledger.AffordableSeconds(ctx, "user-1", 100)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryLedgerAffordableSeconds(t *testing.T) {
	ledger := NewMemoryLedger()
	ledger.SetBalance("user-1", 150)

	seconds, err := ledger.AffordableSeconds(context.Background(), "user-1", 100)
	require.NoError(t, err)
	assert.Equal(t, int64(90), seconds)

	seconds, err = ledger.AffordableSeconds(context.Background(), "nobody", 100)
	require.NoError(t, err)
	assert.Equal(t, int64(0), seconds)
}
