package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/Vtcsolution/livecoach-sub000/internal/models"
)

type CreateBilledMinuteInput struct {
	SessionID   string
	MinuteIndex int64
	UserID      string
	Amount      models.Credits
}

type BilledMinuteRepository struct {
	db DBTX
}

func NewBilledMinuteRepository(db DBTX) *BilledMinuteRepository {
	return &BilledMinuteRepository{db: db}
}

// CreateIfAbsent inserts the minute unless (session_id, minute_index) is
// already billed. The boolean reports whether a new row was written.
func (r *BilledMinuteRepository) CreateIfAbsent(ctx context.Context, input CreateBilledMinuteInput) (*models.BilledMinute, bool, error) {
	query := `
		INSERT INTO billed_minutes (session_id, minute_index, user_id, amount_cents)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id, minute_index) DO NOTHING
		RETURNING id, session_id, minute_index, user_id, amount_cents, created_at
	`

	var minute models.BilledMinute
	err := r.db.QueryRow(ctx, query, input.SessionID, input.MinuteIndex, input.UserID, input.Amount).Scan(
		&minute.ID,
		&minute.SessionID,
		&minute.MinuteIndex,
		&minute.UserID,
		&minute.Amount,
		&minute.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &minute, true, nil
}

func (r *BilledMinuteRepository) ListBySession(ctx context.Context, sessionID string) ([]models.BilledMinute, error) {
	query := `
		SELECT id, session_id, minute_index, user_id, amount_cents, created_at
		FROM billed_minutes
		WHERE session_id = $1
		ORDER BY minute_index ASC
	`

	rows, err := r.db.Query(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	minutes := make([]models.BilledMinute, 0)
	for rows.Next() {
		var minute models.BilledMinute
		if err := rows.Scan(
			&minute.ID,
			&minute.SessionID,
			&minute.MinuteIndex,
			&minute.UserID,
			&minute.Amount,
			&minute.CreatedAt,
		); err != nil {
			return nil, err
		}
		minutes = append(minutes, minute)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return minutes, nil
}
