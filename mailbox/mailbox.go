package mailbox

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/benbuzz790/llm-utilities/conversation"
	"github.com/benbuzz790/llm-utilities/core"
	"github.com/benbuzz790/llm-utilities/logging"
	"github.com/benbuzz790/llm-utilities/model"
	"github.com/benbuzz790/llm-utilities/tool"
)

// Options configure a Mailbox.
type Options struct {
	Logger   logging.Logger
	AuditLog AuditLog
	Retry    RetryPolicy
	Limiter  *rate.Limiter
	Metrics  prometheus.Registerer

	// MaxContinuations bounds truncation resends per delivery; zero means
	// resend until the reply completes.
	MaxContinuations int
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = l }
}

// WithAuditLog sets the audit log.
func WithAuditLog(a AuditLog) func(o *Options) {
	return func(o *Options) { o.AuditLog = a }
}

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(p RetryPolicy) func(o *Options) {
	return func(o *Options) { o.Retry = p }
}

// WithRateLimiter waits on l before every attempt.
func WithRateLimiter(l *rate.Limiter) func(o *Options) {
	return func(o *Options) { o.Limiter = l }
}

// WithMetrics registers mailbox metrics with reg.
func WithMetrics(reg prometheus.Registerer) func(o *Options) {
	return func(o *Options) { o.Metrics = reg }
}

// WithMaxContinuations bounds truncation resends per delivery.
func WithMaxContinuations(n int) func(o *Options) {
	return func(o *Options) { o.MaxContinuations = n }
}

// Mailbox delivers conversations to one provider.
type Mailbox struct {
	provider model.Provider
	name     string
	opts     Options
	metrics  *mailboxMetrics
}

// New creates a Mailbox for provider.
func New(provider model.Provider, optFns ...func(o *Options)) *Mailbox {
	opts := Options{
		Logger: logging.NoOpLogger{},
		Retry:  DefaultRetryPolicy(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	opts.Retry = opts.Retry.withDefaults()

	return &Mailbox{
		provider: provider,
		name:     provider.Info().Provider,
		opts:     opts,
		metrics:  newMailboxMetrics(opts.Metrics),
	}
}

// Provider returns the wrapped provider.
func (m *Mailbox) Provider() model.Provider { return m.provider }

// Call is one logical send.
type Call struct {
	// Node is the newest turn, usually a staged user node. The payload is
	// the linearization of the path ending at Node.
	Node *conversation.Node
	// Registry supplies tool schemas and the pending tool buffers. Optional.
	Registry *tool.Registry
	// Agent names the sender in log entries. Optional.
	Agent string

	Model       string
	System      string
	MaxTokens   int
	Temperature float64
}

// Delivery is the normalized outcome of a Call.
type Delivery struct {
	Text          string            `json:"text"`
	Role          string            `json:"role"`
	Content       core.Content      `json:"content"` // Full merged reply, including tool use segments
	Meta          core.Metadata     `json:"meta,omitempty"`
	StopReason    model.StopReason  `json:"stop_reason"`
	Usage         *model.TokenUsage `json:"usage,omitempty"`
	Attempts      int               `json:"attempts"`
	Continuations int               `json:"continuations"`
}

// Requests returns the tool requests dispatched for this delivery.
func (d *Delivery) Requests() []core.Request { return d.Meta.Requests() }

// HasRequests reports whether the reply asked for tools.
func (d *Delivery) HasRequests() bool { return len(d.Meta.Requests()) > 0 }

// Deliver sends call and returns exactly one logical reply.
//
// Pending tool requests and results held by the registry are spliced into
// the payload and, once the whole cycle succeeds, into the tree: requests
// join the turn before Node and results lead Node's own content. On any
// failure the tree is unchanged and the pending buffers are put back.
func (m *Mailbox) Deliver(ctx context.Context, call Call) (*Delivery, error) {
	if call.Node == nil {
		return nil, errors.New("mailbox: call without a conversation node")
	}

	start := time.Now()
	ex := newExchange(m, call)
	log := ex.logger()

	d, err := ex.run(ctx)
	outcome := deliveryOutcome(err)
	m.metrics.delivery(m.name, outcome, time.Since(start).Seconds())
	logging.RecordProviderCall(m.opts.Logger, m.name, call.Model, ex.attempts, time.Since(start), err)

	if err != nil {
		ex.rollback()
		log.Error("mailbox.deliver.error", "outcome", outcome, "attempts", ex.attempts, "error", err)
		return nil, err
	}

	log.Debug("mailbox.deliver.done",
		"attempts", d.Attempts,
		"continuations", d.Continuations,
		"stop_reason", string(d.StopReason),
		"duration", time.Since(start),
	)
	return d, nil
}

func deliveryOutcome(err error) string {
	switch {
	case err == nil:
		return outcomeSuccess
	case errors.Is(err, ErrCancelled):
		return outcomeCancelled
	case errors.Is(err, ErrRetryExhausted):
		return outcomeExhausted
	default:
		return outcomeError
	}
}
