package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/Vtcsolution/livecoach-sub000/internal/billing"
	"github.com/Vtcsolution/livecoach-sub000/internal/models"
	"github.com/Vtcsolution/livecoach-sub000/internal/repository"
)

var (
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = billing.ErrInvalidInput
)

type chatRequestStore interface {
	GetByID(ctx context.Context, id string) (*models.ChatRequest, error)
	MarkActive(ctx context.Context, id string, startedAt time.Time) (*models.ChatRequest, error)
	MarkEnded(ctx context.Context, input repository.EndChatRequestInput) (*models.ChatRequest, error)
}

type billedMinuteLister interface {
	ListBySession(ctx context.Context, sessionID string) ([]models.BilledMinute, error)
}

type timerEngine interface {
	Start(ctx context.Context, in billing.StartInput) (models.SessionState, error)
	Pause(ctx context.Context, sessionID, requestedBy string) (models.SessionState, error)
	Resume(ctx context.Context, sessionID, requestedBy string) (models.SessionState, error)
	Stop(ctx context.Context, sessionID, requestedBy string) (models.SessionState, error)
	Extend(ctx context.Context, sessionID, requestedBy string, seconds int64) (models.SessionState, error)
	Query(ctx context.Context, sessionID string) (models.SessionState, error)
}

// BillingService is the operation surface for paid session timers used by the
// HTTP and websocket handlers.
type BillingService struct {
	requests       chatRequestStore
	minutes        billedMinuteLister
	engine         timerEngine
	persistTimeout time.Duration
}

func NewBillingService(requests chatRequestStore, minutes billedMinuteLister, engine timerEngine) *BillingService {
	return &BillingService{
		requests:       requests,
		minutes:        minutes,
		engine:         engine,
		persistTimeout: 5 * time.Second,
	}
}

type StartSessionInput struct {
	UserID        string
	AdvisorID     string
	RatePerMinute models.Credits
}

func (s *BillingService) StartSession(
	ctx context.Context,
	actorID string,
	role string,
	sessionID string,
	input StartSessionInput,
) (*models.SessionState, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" || input.UserID == "" || input.AdvisorID == "" || input.RatePerMinute < 0 {
		return nil, ErrInvalidInput
	}
	if role != "user" || actorID != input.UserID {
		return nil, ErrForbidden
	}

	request, err := s.requests.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, billing.ErrNotFound
		}
		return nil, err
	}
	if request.UserID != input.UserID {
		return nil, ErrForbidden
	}
	if request.AdvisorID != input.AdvisorID {
		return nil, ErrInvalidInput
	}
	switch request.Status {
	case models.ChatRequestPending, models.ChatRequestAccepted:
	case models.ChatRequestActive:
		return nil, billing.ErrAlreadyActive
	default:
		return nil, billing.ErrInvalidTransition
	}

	rate, err := resolveRate(request.RatePerMinute, input.RatePerMinute)
	if err != nil {
		return nil, err
	}

	state, err := s.engine.Start(ctx, billing.StartInput{
		SessionID:     sessionID,
		UserID:        request.UserID,
		AdvisorID:     request.AdvisorID,
		RatePerMinute: rate,
		MaxSeconds:    request.AllowedSeconds,
		Activate: func(ctx context.Context, startedAt time.Time) error {
			if _, err := s.requests.MarkActive(ctx, sessionID, startedAt); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return billing.ErrInvalidTransition
				}
				log.Warn().Err(err).Str("session_id", sessionID).Msg("billing: activate chat request")
				return err
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// resolveRate takes the stored rate when present; a caller-supplied rate must agree with it.
func resolveRate(stored, requested models.Credits) (models.Credits, error) {
	switch {
	case stored > 0 && requested > 0 && stored != requested:
		return 0, ErrInvalidInput
	case stored > 0:
		return stored, nil
	case requested > 0:
		return requested, nil
	default:
		return 0, ErrInvalidInput
	}
}

func (s *BillingService) Pause(ctx context.Context, actorID string, sessionID string) (*models.SessionState, error) {
	if _, err := s.authorize(ctx, actorID, sessionID); err != nil {
		return nil, err
	}
	return wrapState(s.engine.Pause(ctx, sessionID, actorID))
}

func (s *BillingService) Resume(ctx context.Context, actorID string, sessionID string) (*models.SessionState, error) {
	if _, err := s.authorize(ctx, actorID, sessionID); err != nil {
		return nil, err
	}
	return wrapState(s.engine.Resume(ctx, sessionID, actorID))
}

func (s *BillingService) Stop(ctx context.Context, actorID string, sessionID string) (*models.SessionState, error) {
	if _, err := s.authorize(ctx, actorID, sessionID); err != nil {
		return nil, err
	}
	return wrapState(s.engine.Stop(ctx, sessionID, actorID))
}

// Extend is reserved to the paying user.
func (s *BillingService) Extend(ctx context.Context, actorID string, sessionID string, seconds int64) (*models.SessionState, error) {
	current, err := s.authorize(ctx, actorID, sessionID)
	if err != nil {
		return nil, err
	}
	if current.UserID != actorID {
		return nil, ErrForbidden
	}
	return wrapState(s.engine.Extend(ctx, sessionID, actorID, seconds))
}

func (s *BillingService) Query(ctx context.Context, actorID string, sessionID string) (*models.SessionState, error) {
	return s.authorize(ctx, actorID, sessionID)
}

// ListBilledMinutes reads committed debits from the store, so it keeps working
// after the timer has been pruned from memory.
func (s *BillingService) ListBilledMinutes(ctx context.Context, actorID string, sessionID string) ([]models.BilledMinute, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, ErrInvalidInput
	}
	request, err := s.requests.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, billing.ErrNotFound
		}
		return nil, err
	}
	if actorID == "" || (request.UserID != actorID && request.AdvisorID != actorID) {
		return nil, ErrForbidden
	}
	return s.minutes.ListBySession(ctx, sessionID)
}

func (s *BillingService) authorize(ctx context.Context, actorID string, sessionID string) (*models.SessionState, error) {
	state, err := s.engine.Query(ctx, strings.TrimSpace(sessionID))
	if err != nil {
		return nil, err
	}
	if !state.IsParticipant(actorID) {
		return nil, ErrForbidden
	}
	return &state, nil
}

// PersistEnded stores the final outcome on the chat request. It is the
// registry's OnEnded hook and runs on the ended session's goroutine.
func (s *BillingService) PersistEnded(state models.SessionState) {
	ctx, cancel := context.WithTimeout(context.Background(), s.persistTimeout)
	defer cancel()

	endedAt := time.Now().UTC()
	if state.EndedAt != nil {
		endedAt = *state.EndedAt
	}
	_, err := s.requests.MarkEnded(ctx, repository.EndChatRequestInput{
		ID:               state.SessionID,
		Reason:           string(state.EndReason),
		RemainingSeconds: state.RemainingSeconds,
		BilledMinutes:    state.BilledMinutes,
		EndedAt:          endedAt,
	})
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		log.Error().Err(err).Str("session_id", state.SessionID).Msg("billing: persist ended session")
	}
}

func wrapState(state models.SessionState, err error) (*models.SessionState, error) {
	if err != nil {
		return nil, err
	}
	return &state, nil
}
