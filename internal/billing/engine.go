package billing

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Vtcsolution/livecoach-sub000/internal/models"
)

const secondsPerMinute = 60

type operation int

const (
	opQuery operation = iota
	opPause
	opResume
	opStop
	opExtend
)

type command struct {
	op      operation
	by      string
	seconds int64
	reply   chan commandResult
}

type commandResult struct {
	state models.SessionState
	err   error
}

// session owns one billing timer. Every field below is touched only by the
// goroutine running run, except cmds and done.
type session struct {
	reg    *Registry
	state  models.SessionState
	cmds   chan command
	done   chan struct{}
	ticker Ticker
}

func newSession(reg *Registry, state models.SessionState) *session {
	return &session{
		reg:   reg,
		state: state,
		cmds:  make(chan command),
		done:  make(chan struct{}),
	}
}

func (s *session) run(ctx context.Context) {
	s.arm()
	for s.state.Status != models.StatusEnded {
		select {
		case <-ctx.Done():
			s.end(models.ReasonShutdown)
		case <-s.tickC():
			s.tick()
		case cmd := <-s.cmds:
			state, err := s.apply(ctx, cmd)
			cmd.reply <- commandResult{state: state, err: err}
		}
	}
	s.disarm()
	s.reg.finish(s)
}

func (s *session) tickC() <-chan time.Time {
	if s.ticker == nil {
		return nil
	}
	return s.ticker.C()
}

func (s *session) arm() {
	if s.ticker == nil {
		s.ticker = s.reg.clock.NewTicker(s.reg.opts.TickInterval)
	}
}

func (s *session) disarm() {
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
}

func (s *session) tick() {
	if s.state.Status != models.StatusRunning {
		return
	}

	now := s.reg.clock.Now()
	elapsed := int64(now.Sub(s.state.LastTickAt) / time.Second)
	if elapsed <= 0 {
		return
	}
	// Advance by whole seconds only; the fraction stays in the next interval.
	s.state.LastTickAt = s.state.LastTickAt.Add(time.Duration(elapsed) * time.Second)
	s.state.RemainingSeconds -= elapsed
	if s.state.RemainingSeconds < 0 {
		s.state.RemainingSeconds = 0
	}
	s.state.AccumulatedUnbilledSeconds += elapsed

	for s.state.AccumulatedUnbilledSeconds >= secondsPerMinute {
		if err := s.debitNextMinute(); err != nil {
			reason := models.ReasonBillingError
			if errors.Is(err, ErrInsufficientCredit) {
				reason = models.ReasonCreditDepleted
			}
			s.reg.observer.DebitFailed(reason)
			log.Warn().
				Err(err).
				Str("session_id", s.state.SessionID).
				Str("user_id", s.state.UserID).
				Int64("minute_index", s.state.BilledMinutes+1).
				Msg("billing: debit failed, ending session")
			s.end(reason)
			return
		}
		s.state.AccumulatedUnbilledSeconds -= secondsPerMinute
	}

	if s.state.RemainingSeconds == 0 {
		s.end(models.ReasonTimeExpired)
		return
	}
	s.publish(models.EventTick, "")
}

func (s *session) debitNextMinute() error {
	// Shutdown must not abort a debit already in flight.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.reg.ctx), s.reg.opts.DebitTimeout)
	defer cancel()

	minute := s.state.BilledMinutes + 1
	err := s.reg.ledger.Debit(ctx, DebitRequest{
		UserID:      s.state.UserID,
		SessionID:   s.state.SessionID,
		MinuteIndex: minute,
		Amount:      s.state.RatePerMinute,
	})
	if err != nil {
		return err
	}
	s.state.BilledMinutes = minute
	s.state.BilledAmount += s.state.RatePerMinute
	s.reg.observer.MinuteBilled(s.state.RatePerMinute)
	return nil
}

func (s *session) apply(ctx context.Context, cmd command) (models.SessionState, error) {
	switch cmd.op {
	case opQuery:
	case opPause:
		if s.state.Status == models.StatusRunning {
			s.state.Status = models.StatusPaused
			s.disarm()
			s.publish(models.EventPaused, cmd.by)
		}
	case opResume:
		if s.state.Status == models.StatusPaused {
			s.state.LastTickAt = s.reg.clock.Now()
			s.state.Status = models.StatusRunning
			s.arm()
			s.publish(models.EventResumed, cmd.by)
		}
	case opStop:
		s.end(models.ReasonManualStop)
	case opExtend:
		if err := s.extend(ctx, cmd.seconds); err != nil {
			return s.state, err
		}
	}
	return s.state, nil
}

func (s *session) extend(ctx context.Context, seconds int64) error {
	if seconds <= 0 {
		return ErrInvalidInput
	}
	ctx, cancel := context.WithTimeout(ctx, s.reg.opts.DebitTimeout)
	defer cancel()
	affordable, err := s.reg.ledger.AffordableSeconds(ctx, s.state.UserID, s.state.RatePerMinute)
	if err != nil {
		return err
	}
	needed := s.state.AccumulatedUnbilledSeconds + s.state.RemainingSeconds + seconds
	if affordable < needed {
		return ErrInsufficientCredit
	}
	s.state.TotalAllowedSeconds += seconds
	s.state.RemainingSeconds += seconds
	s.publish(models.EventTick, "")
	return nil
}

// end is terminal; unbilled seconds of a partial minute are forfeited.
func (s *session) end(reason models.EndReason) {
	now := s.reg.clock.Now()
	s.state.Status = models.StatusEnded
	s.state.EndReason = reason
	s.state.EndedAt = &now
	s.disarm()
	s.publish(models.EventEnded, "")
}

func (s *session) publish(eventType models.EventType, by string) {
	s.state.Seq++
	event := models.SessionEvent{
		Type:             eventType,
		SessionID:        s.state.SessionID,
		UserID:           s.state.UserID,
		AdvisorID:        s.state.AdvisorID,
		Seq:              s.state.Seq,
		RemainingSeconds: s.state.RemainingSeconds,
		By:               by,
		Timestamp:        s.reg.clock.Now().Format(time.RFC3339),
	}
	if eventType == models.EventEnded {
		event.Reason = s.state.EndReason
	}
	s.reg.publisher.Publish(event)
}
