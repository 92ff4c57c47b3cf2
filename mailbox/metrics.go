package mailbox

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/benbuzz790/llm-utilities/internal/util"
)

// Outcome labels.
const (
	outcomeSuccess   = "success"
	outcomeTransient = "transient"
	outcomeFatal     = "fatal"
	outcomeExhausted = "exhausted"
	outcomeCancelled = "cancelled"
	outcomeError     = "error"
)

type mailboxMetrics struct {
	attempts      *prometheus.CounterVec
	continuations *prometheus.CounterVec
	deliveries    *prometheus.CounterVec
	dispatches    *prometheus.CounterVec
	duration      *prometheus.HistogramVec
}

func newMailboxMetrics(reg prometheus.Registerer) *mailboxMetrics {
	if reg == nil {
		return nil
	}

	m := &mailboxMetrics{
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bots_mailbox_attempts_total",
				Help: "Provider send attempts by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		continuations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bots_mailbox_continuations_total",
				Help: "Truncated replies resent for continuation",
			},
			[]string{"provider"},
		),
		deliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bots_mailbox_deliveries_total",
				Help: "Logical deliveries by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		dispatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bots_tool_dispatch_total",
				Help: "Tool batches dispatched from provider replies",
			},
			[]string{"outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bots_mailbox_delivery_duration_seconds",
				Help:    "Delivery duration including retries and continuations",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			},
			[]string{"provider"},
		),
	}
	m.attempts = util.RegisterOrReuse(reg, m.attempts)
	m.continuations = util.RegisterOrReuse(reg, m.continuations)
	m.deliveries = util.RegisterOrReuse(reg, m.deliveries)
	m.dispatches = util.RegisterOrReuse(reg, m.dispatches)
	m.duration = util.RegisterOrReuse(reg, m.duration)
	return m
}

func (m *mailboxMetrics) attempt(provider, outcome string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(provider, outcome).Inc()
}

func (m *mailboxMetrics) continuation(provider string) {
	if m == nil {
		return
	}
	m.continuations.WithLabelValues(provider).Inc()
}

func (m *mailboxMetrics) delivery(provider, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(provider, outcome).Inc()
	m.duration.WithLabelValues(provider).Observe(seconds)
}

func (m *mailboxMetrics) dispatch(outcome string) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(outcome).Inc()
}
