package billing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Vtcsolution/livecoach-sub000/internal/models"
)

type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
	// settle blocks until every session has applied the ticks just fired.
	settle func()
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTicker(time.Duration) Ticker {
	t := &fakeTicker{c: make(chan time.Time), done: make(chan struct{})}
	c.mu.Lock()
	c.tickers = append(c.tickers, t)
	c.mu.Unlock()
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) live() []*fakeTicker {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*fakeTicker, 0, len(c.tickers))
	for _, t := range c.tickers {
		if !t.stopped() {
			out = append(out, t)
		}
	}
	return out
}

// Tick waits until at least want tickers are armed, fires each live ticker
// once, then waits for the sessions to finish processing.
func (c *fakeClock) Tick(t *testing.T, want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(c.live()) >= want
	}, time.Second, time.Millisecond, "expected %d armed tickers", want)

	now := c.Now()
	for _, ticker := range c.live() {
		select {
		case ticker.c <- now:
		case <-ticker.done:
		}
	}
	if c.settle != nil {
		c.settle()
	}
}

// AdvanceAndTick moves the clock forward and fires the tickers of want sessions.
func (c *fakeClock) AdvanceAndTick(t *testing.T, d time.Duration, want int) {
	t.Helper()
	c.Advance(d)
	c.Tick(t, want)
}

type fakeTicker struct {
	c    chan time.Time
	done chan struct{}
	once sync.Once
}

func (t *fakeTicker) C() <-chan time.Time { return t.c }

func (t *fakeTicker) Stop() {
	t.once.Do(func() { close(t.done) })
}

func (t *fakeTicker) stopped() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.SessionEvent
}

func (p *recordingPublisher) Publish(event models.SessionEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) For(sessionID string) []models.SessionEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.SessionEvent, 0, len(p.events))
	for _, event := range p.events {
		if event.SessionID == sessionID {
			out = append(out, event)
		}
	}
	return out
}

func (p *recordingPublisher) Types(sessionID string) []models.EventType {
	events := p.For(sessionID)
	out := make([]models.EventType, 0, len(events))
	for _, event := range events {
		out = append(out, event.Type)
	}
	return out
}

type recordingObserver struct {
	mu       sync.Mutex
	started  int
	ended    map[models.EndReason]int
	billed   models.Credits
	failures map[models.EndReason]int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{
		ended:    make(map[models.EndReason]int),
		failures: make(map[models.EndReason]int),
	}
}

func (o *recordingObserver) SessionStarted() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started++
}

func (o *recordingObserver) SessionEnded(reason models.EndReason) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ended[reason]++
}

func (o *recordingObserver) MinuteBilled(amount models.Credits) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.billed += amount
}

func (o *recordingObserver) DebitFailed(reason models.EndReason) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures[reason]++
}

type harness struct {
	registry  *Registry
	clock     *fakeClock
	ledger    *MemoryLedger
	publisher *recordingPublisher
	ended     chan models.SessionState
}

func newHarness(t *testing.T, ledger WalletLedger, configure ...func(*Options)) *harness {
	t.Helper()

	h := &harness{
		clock:     newFakeClock(),
		publisher: &recordingPublisher{},
		ended:     make(chan models.SessionState, 32),
	}
	if memory, ok := ledger.(*MemoryLedger); ok {
		h.ledger = memory
	}

	opts := Options{
		TickInterval: time.Second,
		DebitTimeout: time.Second,
		Clock:        h.clock,
		OnEnded: func(state models.SessionState) {
			select {
			case h.ended <- state:
			default:
			}
		},
	}
	for _, fn := range configure {
		fn(&opts)
	}

	h.registry = NewRegistry(ledger, h.publisher, opts)
	h.clock.settle = h.settle
	t.Cleanup(h.registry.Close)
	return h
}

// settle sends a query through every live session. Queries are applied in
// order behind any tick the session already received.
func (h *harness) settle() {
	h.registry.mu.Lock()
	ids := make([]string, 0, len(h.registry.live))
	for id := range h.registry.live {
		ids = append(ids, id)
	}
	h.registry.mu.Unlock()

	for _, id := range ids {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, _ = h.registry.Query(ctx, id)
		cancel()
	}
}

func (h *harness) start(t *testing.T, sessionID string, maxSeconds int64) models.SessionState {
	t.Helper()
	state, err := h.registry.Start(context.Background(), StartInput{
		SessionID:     sessionID,
		UserID:        "user-1",
		AdvisorID:     "advisor-1",
		RatePerMinute: models.CreditUnit,
		MaxSeconds:    maxSeconds,
	})
	require.NoError(t, err)
	return state
}

func (h *harness) query(t *testing.T, sessionID string) models.SessionState {
	t.Helper()
	state, err := h.registry.Query(context.Background(), sessionID)
	require.NoError(t, err)
	return state
}

func (h *harness) waitEnded(t *testing.T) models.SessionState {
	t.Helper()
	select {
	case state := <-h.ended:
		return state
	case <-time.After(time.Second):
		t.Fatal("session did not end")
		return models.SessionState{}
	}
}

// failingLedger affords everything and fails every debit with err.
type failingLedger struct {
	err error
}

func (l failingLedger) Debit(context.Context, DebitRequest) error {
	return l.err
}

func (l failingLedger) AffordableSeconds(context.Context, string, models.Credits) (int64, error) {
	return 3600, nil
}
