package repository

import (
	"context"
	"time"

	"github.com/Vtcsolution/livecoach-sub000/internal/models"
)

type EndChatRequestInput struct {
	ID               string
	Reason           string
	RemainingSeconds int64
	BilledMinutes    int64
	EndedAt          time.Time
}

type ChatRequestRepository struct {
	db DBTX
}

func NewChatRequestRepository(db DBTX) *ChatRequestRepository {
	return &ChatRequestRepository{db: db}
}

const chatRequestColumns = `id, user_id, advisor_id, rate_per_minute_cents, allowed_seconds, status, end_reason,
		remaining_seconds, billed_minutes, started_at, ended_at, created_at, updated_at`

func scanChatRequest(row interface{ Scan(dest ...any) error }) (*models.ChatRequest, error) {
	var request models.ChatRequest
	err := row.Scan(
		&request.ID,
		&request.UserID,
		&request.AdvisorID,
		&request.RatePerMinute,
		&request.AllowedSeconds,
		&request.Status,
		&request.EndReason,
		&request.RemainingSeconds,
		&request.BilledMinutes,
		&request.StartedAt,
		&request.EndedAt,
		&request.CreatedAt,
		&request.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *ChatRequestRepository) GetByID(ctx context.Context, id string) (*models.ChatRequest, error) {
	query := `
		SELECT ` + chatRequestColumns + `
		FROM chat_requests
		WHERE id = $1
	`
	return scanChatRequest(r.db.QueryRow(ctx, query, id))
}

// MarkActive moves a pending or accepted request to active. pgx.ErrNoRows means
// the request was not in a startable status.
func (r *ChatRequestRepository) MarkActive(
	ctx context.Context,
	id string,
	startedAt time.Time,
) (*models.ChatRequest, error) {
	query := `
		UPDATE chat_requests
		SET status = 'active', started_at = $2, updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'accepted')
		RETURNING ` + chatRequestColumns
	return scanChatRequest(r.db.QueryRow(ctx, query, id, startedAt))
}

// MarkEnded records the final billing outcome once. pgx.ErrNoRows means it was already ended.
func (r *ChatRequestRepository) MarkEnded(
	ctx context.Context,
	input EndChatRequestInput,
) (*models.ChatRequest, error) {
	query := `
		UPDATE chat_requests
		SET status = 'ended',
		    end_reason = $2,
		    remaining_seconds = $3,
		    billed_minutes = $4,
		    ended_at = $5,
		    updated_at = NOW()
		WHERE id = $1 AND status <> 'ended'
		RETURNING ` + chatRequestColumns
	return scanChatRequest(r.db.QueryRow(
		ctx,
		query,
		input.ID,
		input.Reason,
		input.RemainingSeconds,
		input.BilledMinutes,
		input.EndedAt,
	))
}
