package observability

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Vtcsolution/livecoach-sub000/internal/models"
)

// Metrics groups the Prometheus instruments of the billing service. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	ActiveSessions  prometheus.Gauge
	SessionsStarted prometheus.Counter
	SessionsEnded   *prometheus.CounterVec
	MinutesBilled   prometheus.Counter
	CreditsBilled   prometheus.Counter
	DebitFailures   *prometheus.CounterVec
	EventsDropped   prometheus.Counter

	gatherer prometheus.Gatherer
}

func NewMetrics(namespace string, reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "billing_active_sessions",
			Help:      "Number of paid sessions with a live billing timer.",
		}),
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "billing_sessions_started_total",
			Help:      "Paid sessions started.",
		}),
		SessionsEnded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "billing_sessions_ended_total",
			Help:      "Paid sessions ended by reason.",
		}, []string{"reason"}),
		MinutesBilled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "billing_minutes_billed_total",
			Help:      "Committed per-minute debits.",
		}),
		CreditsBilled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "billing_credits_billed_total",
			Help:      "Credits debited from wallets.",
		}),
		DebitFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "billing_debit_failures_total",
			Help:      "Debits that ended a session, by resulting end reason.",
		}, []string{"reason"}),
		EventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_events_dropped_total",
			Help:      "Session events dropped because a client buffer was full.",
		}),
		gatherer: reg,
	}
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
	m.ActiveSessions.Inc()
}

func (m *Metrics) SessionEnded(reason models.EndReason) {
	if m == nil {
		return
	}
	m.SessionsEnded.WithLabelValues(string(reason)).Inc()
	m.ActiveSessions.Dec()
}

func (m *Metrics) MinuteBilled(amount models.Credits) {
	if m == nil {
		return
	}
	m.MinutesBilled.Inc()
	m.CreditsBilled.Add(float64(amount) / float64(models.CreditUnit))
}

func (m *Metrics) DebitFailed(reason models.EndReason) {
	if m == nil {
		return
	}
	m.DebitFailures.WithLabelValues(string(reason)).Inc()
}

func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	m.EventsDropped.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{}))
}
