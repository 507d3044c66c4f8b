package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Vtcsolution/livecoach-sub000/internal/billing"
	"github.com/Vtcsolution/livecoach-sub000/internal/models"
	"github.com/Vtcsolution/livecoach-sub000/internal/repository"
)

type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// WalletService is the PostgreSQL WalletLedger. Each debit records its
// (session, minute) row and decrements the balance in one transaction.
type WalletService struct {
	db         txBeginner
	walletRepo *repository.WalletRepository
}

func NewWalletService(db txBeginner, walletRepo *repository.WalletRepository) *WalletService {
	return &WalletService{
		db:         db,
		walletRepo: walletRepo,
	}
}

func (s *WalletService) Debit(ctx context.Context, req billing.DebitRequest) error {
	if req.UserID == "" || req.SessionID == "" || req.MinuteIndex <= 0 || req.Amount <= 0 {
		return billing.ErrInvalidInput
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txMinuteRepo := repository.NewBilledMinuteRepository(tx)
	txWalletRepo := repository.NewWalletRepository(tx)

	_, inserted, err := txMinuteRepo.CreateIfAbsent(ctx, repository.CreateBilledMinuteInput{
		SessionID:   req.SessionID,
		MinuteIndex: req.MinuteIndex,
		UserID:      req.UserID,
		Amount:      req.Amount,
	})
	if err != nil {
		return fmt.Errorf("record billed minute: %w", err)
	}
	if !inserted {
		return nil
	}

	if _, err := txWalletRepo.DebitIfSufficient(ctx, req.UserID, req.Amount); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return billing.ErrInsufficientCredit
		}
		return fmt.Errorf("debit wallet: %w", err)
	}

	return tx.Commit(ctx)
}

func (s *WalletService) AffordableSeconds(ctx context.Context, userID string, ratePerMinute models.Credits) (int64, error) {
	if ratePerMinute <= 0 {
		return 0, billing.ErrInvalidInput
	}
	balance, err := s.Balance(ctx, userID)
	if err != nil {
		return 0, err
	}
	return billing.SecondsFor(balance, ratePerMinute), nil
}

// Balance reports zero for users that never had a wallet.
func (s *WalletService) Balance(ctx context.Context, userID string) (models.Credits, error) {
	wallet, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return wallet.Balance, nil
}

func (s *WalletService) Credit(ctx context.Context, userID string, amount models.Credits) (models.Credits, error) {
	if userID == "" || amount <= 0 {
		return 0, billing.ErrInvalidInput
	}
	wallet, err := s.walletRepo.Credit(ctx, userID, amount)
	if err != nil {
		return 0, err
	}
	return wallet.Balance, nil
}
