// Package billing runs the per-minute billing timers of paid chat sessions.
//
// Each active session is owned by a single goroutine that applies ticks and
// participant commands in the order they arrive, so a pause can never
// interleave with a tick's decrement or debit. Different sessions run fully in
// parallel; the registry lock only guards the lookup maps.
package billing

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Vtcsolution/livecoach-sub000/internal/models"
)

// Publisher delivers session events to both participants. Calls for one
// session are made sequentially from that session's goroutine.
type Publisher interface {
	Publish(event models.SessionEvent)
}

// Observer receives lifecycle signals, typically for metrics.
type Observer interface {
	SessionStarted()
	SessionEnded(reason models.EndReason)
	MinuteBilled(amount models.Credits)
	DebitFailed(reason models.EndReason)
}

type nopObserver struct{}

func (nopObserver) SessionStarted()              {}
func (nopObserver) SessionEnded(models.EndReason) {}
func (nopObserver) MinuteBilled(models.Credits)   {}
func (nopObserver) DebitFailed(models.EndReason)  {}

type Options struct {
	TickInterval   time.Duration
	DebitTimeout   time.Duration
	EndedRetention time.Duration
	Clock          Clock
	Observer       Observer
	// OnEnded runs once per session after it has ended, outside any session goroutine lock.
	OnEnded func(state models.SessionState)
}

func (o Options) withDefaults() Options {
	if o.TickInterval <= 0 {
		o.TickInterval = time.Second
	}
	if o.DebitTimeout <= 0 {
		o.DebitTimeout = 3 * time.Second
	}
	if o.EndedRetention <= 0 {
		o.EndedRetention = 10 * time.Minute
	}
	if o.Clock == nil {
		o.Clock = systemClock{}
	}
	if o.Observer == nil {
		o.Observer = nopObserver{}
	}
	return o
}

type StartInput struct {
	SessionID     string
	UserID        string
	AdvisorID     string
	RatePerMinute models.Credits
	// MaxSeconds caps the allotted time below what the wallet affords. 0 means no cap.
	MaxSeconds int64
	// Activate runs while the session ID is reserved, before the timer starts.
	// An error releases the reservation with no event or end hook.
	Activate func(ctx context.Context, startedAt time.Time) error
}

type archivedSession struct {
	state    models.SessionState
	archived time.Time
}

// Registry holds at most one live timer per session ID plus recently ended snapshots.
type Registry struct {
	ledger    WalletLedger
	publisher Publisher
	observer  Observer
	clock     Clock
	opts      Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	live     map[string]*session
	pending  int
	archived map[string]archivedSession
}

func NewRegistry(ledger WalletLedger, publisher Publisher, opts Options) *Registry {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		ledger:    ledger,
		publisher: publisher,
		observer:  opts.Observer,
		clock:     opts.Clock,
		opts:      opts,
		ctx:       ctx,
		cancel:    cancel,
		live:      make(map[string]*session),
		archived:  make(map[string]archivedSession),
	}
}

// Start runs the affordability check and launches the session's timer.
func (r *Registry) Start(ctx context.Context, in StartInput) (models.SessionState, error) {
	in.SessionID = strings.TrimSpace(in.SessionID)
	if in.SessionID == "" || in.UserID == "" || in.AdvisorID == "" || in.RatePerMinute <= 0 || in.MaxSeconds < 0 {
		return models.SessionState{}, ErrInvalidInput
	}

	s := newSession(r, models.SessionState{
		SessionID:     in.SessionID,
		UserID:        in.UserID,
		AdvisorID:     in.AdvisorID,
		RatePerMinute: in.RatePerMinute,
		Status:        models.StatusPending,
	})

	r.mu.Lock()
	if r.ctx.Err() != nil {
		r.mu.Unlock()
		return models.SessionState{}, context.Canceled
	}
	if _, exists := r.live[in.SessionID]; exists {
		r.mu.Unlock()
		return models.SessionState{}, ErrAlreadyActive
	}
	if _, ended := r.archived[in.SessionID]; ended {
		r.mu.Unlock()
		return models.SessionState{}, ErrInvalidTransition
	}
	// The pending entry reserves the ID while the wallet is consulted.
	r.live[in.SessionID] = s
	r.pending++
	r.wg.Add(1)
	r.mu.Unlock()

	checkCtx, cancel := context.WithTimeout(ctx, r.opts.DebitTimeout)
	affordable, err := r.ledger.AffordableSeconds(checkCtx, in.UserID, in.RatePerMinute)
	cancel()
	if err == nil && affordable <= 0 {
		err = ErrInsufficientCredit
	}
	if err != nil {
		r.release(s)
		return models.SessionState{}, err
	}

	allowed := affordable
	if in.MaxSeconds > 0 && in.MaxSeconds < allowed {
		allowed = in.MaxSeconds
	}
	now := r.clock.Now()
	s.state.TotalAllowedSeconds = allowed
	s.state.RemainingSeconds = allowed
	s.state.Status = models.StatusRunning
	s.state.LastTickAt = now
	s.state.StartedAt = now
	snapshot := s.state

	if in.Activate != nil {
		if err := in.Activate(ctx, now); err != nil {
			r.release(s)
			return models.SessionState{}, err
		}
	}

	r.mu.Lock()
	r.pending--
	r.mu.Unlock()

	r.observer.SessionStarted()
	log.Info().
		Str("session_id", in.SessionID).
		Str("user_id", in.UserID).
		Str("advisor_id", in.AdvisorID).
		Int64("total_allowed_seconds", allowed).
		Msg("billing: session started")

	go func() {
		defer r.wg.Done()
		s.run(r.ctx)
	}()
	return snapshot, nil
}

// release drops a reservation that never started its timer.
func (r *Registry) release(s *session) {
	r.mu.Lock()
	delete(r.live, s.state.SessionID)
	r.pending--
	r.mu.Unlock()
	close(s.done)
	r.wg.Done()
}

func (r *Registry) Pause(ctx context.Context, sessionID, requestedBy string) (models.SessionState, error) {
	return r.send(ctx, sessionID, command{op: opPause, by: requestedBy})
}

func (r *Registry) Resume(ctx context.Context, sessionID, requestedBy string) (models.SessionState, error) {
	return r.send(ctx, sessionID, command{op: opResume, by: requestedBy})
}

func (r *Registry) Stop(ctx context.Context, sessionID, requestedBy string) (models.SessionState, error) {
	return r.send(ctx, sessionID, command{op: opStop, by: requestedBy})
}

// Extend adds seconds to the allotted time if the wallet covers everything still owed.
func (r *Registry) Extend(ctx context.Context, sessionID, requestedBy string, seconds int64) (models.SessionState, error) {
	return r.send(ctx, sessionID, command{op: opExtend, by: requestedBy, seconds: seconds})
}

// Query returns the current snapshot, including for recently ended sessions.
func (r *Registry) Query(ctx context.Context, sessionID string) (models.SessionState, error) {
	return r.send(ctx, sessionID, command{op: opQuery})
}

func (r *Registry) send(ctx context.Context, sessionID string, cmd command) (models.SessionState, error) {
	r.mu.Lock()
	s, ok := r.live[sessionID]
	r.mu.Unlock()
	if !ok {
		return r.fromArchive(sessionID, cmd.op)
	}

	cmd.reply = make(chan commandResult, 1)
	select {
	case s.cmds <- cmd:
	case <-s.done:
		return r.fromArchive(sessionID, cmd.op)
	case <-ctx.Done():
		return models.SessionState{}, ctx.Err()
	}

	res := <-cmd.reply
	return res.state, res.err
}

func (r *Registry) fromArchive(sessionID string, op operation) (models.SessionState, error) {
	r.mu.Lock()
	entry, ok := r.archived[sessionID]
	r.mu.Unlock()
	if !ok {
		return models.SessionState{}, ErrNotFound
	}
	switch op {
	case opQuery, opStop:
		return entry.state, nil
	default:
		return entry.state, ErrInvalidTransition
	}
}

// finish archives the final snapshot, then releases waiters and runs the end hooks.
func (r *Registry) finish(s *session) {
	final := s.state

	r.mu.Lock()
	delete(r.live, final.SessionID)
	r.archived[final.SessionID] = archivedSession{state: final, archived: r.clock.Now()}
	r.mu.Unlock()
	close(s.done)

	r.observer.SessionEnded(final.EndReason)
	log.Info().
		Str("session_id", final.SessionID).
		Str("user_id", final.UserID).
		Str("reason", string(final.EndReason)).
		Int64("remaining_seconds", final.RemainingSeconds).
		Int64("billed_minutes", final.BilledMinutes).
		Msg("billing: session ended")

	if r.opts.OnEnded != nil {
		r.opts.OnEnded(final)
	}
}

// ActiveCount reports sessions with a running or paused timer. Reservations
// still in the affordability check are not counted.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live) - r.pending
}

// StartJanitor drops archived snapshots older than the retention window.
func (r *Registry) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.pruneArchive()
			}
		}
	}()
}

func (r *Registry) pruneArchive() int {
	cutoff := r.clock.Now().Add(-r.opts.EndedRetention)
	r.mu.Lock()
	defer r.mu.Unlock()
	pruned := 0
	for id, entry := range r.archived {
		if entry.archived.Before(cutoff) {
			delete(r.archived, id)
			pruned++
		}
	}
	return pruned
}

// Close ends every live session with reason server-shutdown and waits for them to finish.
func (r *Registry) Close() {
	r.mu.Lock()
	r.cancel()
	r.mu.Unlock()
	r.wg.Wait()
}
