package repository

import (
	"context"

	"github.com/Vtcsolution/livecoach-sub000/internal/models"
)

type WalletRepository struct {
	db DBTX
}

func NewWalletRepository(db DBTX) *WalletRepository {
	return &WalletRepository{db: db}
}

func (r *WalletRepository) GetByUserID(ctx context.Context, userID string) (*models.Wallet, error) {
	query := `
		SELECT user_id, balance_cents, updated_at
		FROM wallets
		WHERE user_id = $1
	`
	var wallet models.Wallet
	err := r.db.QueryRow(ctx, query, userID).Scan(&wallet.UserID, &wallet.Balance, &wallet.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

// DebitIfSufficient subtracts amount in a single conditional UPDATE. pgx.ErrNoRows
// means the wallet is missing or cannot cover the amount.
func (r *WalletRepository) DebitIfSufficient(
	ctx context.Context,
	userID string,
	amount models.Credits,
) (*models.Wallet, error) {
	query := `
		UPDATE wallets
		SET balance_cents = balance_cents - $2, updated_at = NOW()
		WHERE user_id = $1 AND balance_cents >= $2
		RETURNING user_id, balance_cents, updated_at
	`
	var wallet models.Wallet
	err := r.db.QueryRow(ctx, query, userID, amount).Scan(&wallet.UserID, &wallet.Balance, &wallet.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *WalletRepository) Credit(ctx context.Context, userID string, amount models.Credits) (*models.Wallet, error) {
	query := `
		INSERT INTO wallets (user_id, balance_cents)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET balance_cents = wallets.balance_cents + EXCLUDED.balance_cents, updated_at = NOW()
		RETURNING user_id, balance_cents, updated_at
	`
	var wallet models.Wallet
	err := r.db.QueryRow(ctx, query, userID, amount).Scan(&wallet.UserID, &wallet.Balance, &wallet.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}
