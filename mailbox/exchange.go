package mailbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbuzz790/llm-utilities/conversation"
	"github.com/benbuzz790/llm-utilities/core"
	"github.com/benbuzz790/llm-utilities/logging"
	"github.com/benbuzz790/llm-utilities/model"
	"github.com/benbuzz790/llm-utilities/tool"
)

// exchange is the private state of one Deliver call. It is never shared
// between calls.
type exchange struct {
	m    *Mailbox
	call Call
	id   string
	log  logging.Logger

	// Batch taken from the registry, and whether it belongs to another branch.
	taken    pendingBatch
	deferred bool

	// Tool segments spliced into the payload and, on commit, the tree.
	requests []core.Request
	results  []core.Result

	base          *model.Request // Spliced payload as first sent
	payload       *model.Request // Payload of the current round
	attempts      int
	continuations int
}

func newExchange(m *Mailbox, call Call) *exchange {
	id := core.NewID()
	return &exchange{
		m:    m,
		call: call,
		id:   id,
		log:  logging.With(logging.ForExchange(m.opts.Logger, call.Agent, id), "provider", m.name),
	}
}

func (ex *exchange) logger() logging.Logger { return ex.log }

func (ex *exchange) run(ctx context.Context) (*Delivery, error) {
	ex.claim()

	base, err := ex.build()
	if err != nil {
		return nil, err
	}
	ex.base = base
	ex.payload = base

	resp, err := ex.send(ctx)
	if err != nil {
		return nil, err
	}

	reply := resp.Content
	usage := addUsage(nil, resp.Usage)

	for resp.StopReason == model.StopMaxTokens {
		if max := ex.m.opts.MaxContinuations; max > 0 && ex.continuations >= max {
			ex.log.Warn("mailbox.continue.limit", "continuations", ex.continuations)
			break
		}

		ex.payload, err = continuation(ex.base, reply)
		if err != nil {
			return nil, err
		}
		ex.continuations++
		ex.m.metrics.continuation(ex.m.name)
		ex.log.Debug("mailbox.continue", "round", ex.continuations)

		resp, err = ex.send(ctx)
		if err != nil {
			return nil, err
		}
		reply, err = core.MergeContent(reply, resp.Content)
		if err != nil {
			return nil, err
		}
		usage = addUsage(usage, resp.Usage)
	}

	role := resp.Role
	if role == "" {
		role = core.RoleAssistant
	}

	d := &Delivery{
		Text:          reply.PlainText(),
		Role:          role,
		Content:       reply,
		Meta:          rawMeta(resp.Raw),
		StopReason:    resp.StopReason,
		Usage:         usage,
		Attempts:      ex.attempts,
		Continuations: ex.continuations,
	}

	if uses := reply.ToolUses(); len(uses) > 0 {
		if err := ex.dispatch(ctx, uses, d); err != nil {
			return nil, err
		}
	}

	ex.audit(Incoming, d)
	ex.commit(d)
	return d, nil
}

// pendingBatch is a tool batch held by the registry between two sends.
type pendingBatch struct {
	requests []core.Request
	results  []core.Result
}

func (b pendingBatch) empty() bool { return len(b.requests) == 0 && len(b.results) == 0 }

// claim decides which tool segments this send carries. A pending batch is
// spliced only below the turn that requested it; a batch from another
// branch stays pending. A tool turn whose batch was already spliced on a
// sibling branch gets its recorded results again, so every path through it
// pairs each tool use with its result.
func (ex *exchange) claim() {
	parent := ex.call.Node.Parent()
	if reg := ex.call.Registry; reg != nil {
		ex.taken.requests, ex.taken.results = reg.Take()
	}

	switch {
	case ex.taken.empty():
	case ownsBatch(parent, ex.taken):
		ex.requests, ex.results = ex.taken.requests, ex.taken.results
		return
	default:
		ex.deferred = true
		ex.log.Debug("mailbox.pending.deferred", "requests", len(ex.taken.requests))
	}

	if parent != nil && toolUsesSpliced(parent) {
		ex.results = append([]core.Result(nil), parent.Meta.Results()...)
	}
}

// ownsBatch reports whether every segment of b answers a request recorded
// on node.
func ownsBatch(node *conversation.Node, b pendingBatch) bool {
	if node == nil {
		return false
	}
	ids := requestIDs(node.Meta.Requests())
	if len(ids) == 0 {
		return false
	}
	for _, r := range b.requests {
		if _, ok := ids[r.ID]; !ok {
			return false
		}
	}
	for _, r := range b.results {
		if _, ok := ids[r.ToolUseID]; !ok {
			return false
		}
	}
	return true
}

// toolUsesSpliced reports whether node recorded tool requests that are
// already part of its content.
func toolUsesSpliced(node *conversation.Node) bool {
	recorded := node.Meta.Requests()
	if len(recorded) == 0 {
		return false
	}
	present := requestIDs(node.Content.ToolUses())
	for _, r := range recorded {
		if _, ok := present[r.ID]; !ok {
			return false
		}
	}
	return true
}

func requestIDs(reqs []core.Request) map[string]struct{} {
	ids := make(map[string]struct{}, len(reqs))
	for _, r := range reqs {
		ids[r.ID] = struct{}{}
	}
	return ids
}

// build linearizes the conversation and splices the pending buffers in.
func (ex *exchange) build() (*model.Request, error) {
	msgs := ex.call.Node.Linearize()
	if len(msgs) == 0 {
		return nil, errors.New("mailbox: nothing to send from an empty conversation")
	}

	if len(ex.requests) > 0 {
		if len(msgs) < 2 {
			return nil, errors.New("mailbox: tool requests without a preceding turn")
		}
		prev := &msgs[len(msgs)-2]
		prev.Content = withRequests(prev.Content, ex.requests)
	}
	if len(ex.results) > 0 {
		last := &msgs[len(msgs)-1]
		last.Content = withResults(last.Content, ex.results)
	}

	req := &model.Request{
		Model:       ex.call.Model,
		System:      ex.call.System,
		Messages:    msgs,
		MaxTokens:   ex.call.MaxTokens,
		Temperature: ex.call.Temperature,
	}
	if reg := ex.call.Registry; reg != nil && reg.Len() > 0 {
		req.Tools = reg.Schemas()
	}
	return req, nil
}

// withRequests appends tool requests after the content of a turn.
func withRequests(c core.Content, reqs []core.Request) core.Content {
	parts := c.AsSegments()
	for _, r := range reqs {
		parts = append(parts, core.CloneRequest(r))
	}
	return core.Segments(parts...)
}

// withResults places tool results ahead of the content of a turn.
func withResults(c core.Content, results []core.Result) core.Content {
	parts := make([]core.Part, 0, len(results)+len(c.Parts)+1)
	for _, r := range results {
		parts = append(parts, r)
	}
	parts = append(parts, c.AsSegments()...)
	return core.Segments(parts...)
}

// continuation returns base extended with the partial reply as the trailing
// assistant turn, so the provider resumes where it stopped.
func continuation(base *model.Request, partial core.Content) (*model.Request, error) {
	next := base.Clone()
	n := len(next.Messages)
	if n > 0 && next.Messages[n-1].Role == core.RoleAssistant {
		merged, err := core.MergeContent(next.Messages[n-1].Content, partial)
		if err != nil {
			return nil, err
		}
		next.Messages[n-1].Content = merged
		return next, nil
	}
	next.Messages = append(next.Messages, core.Message{Role: core.RoleAssistant, Content: partial.Clone()})
	return next, nil
}

// send delivers the current payload with retries.
func (ex *exchange) send(ctx context.Context) (*model.Response, error) {
	ex.audit(Outgoing, ex.payload)

	attempt := func(ctx context.Context) (*model.Response, error) {
		if l := ex.m.opts.Limiter; l != nil {
			if err := l.Wait(ctx); err != nil {
				if ctx.Err() != nil {
					return nil, err
				}
				return nil, model.NewFatalError(ex.m.name, 0, fmt.Errorf("rate limiter: %w", err))
			}
		}
		resp, err := ex.m.provider.Send(ctx, ex.payload)
		ex.m.metrics.attempt(ex.m.name, attemptOutcome(err))
		if err == nil && resp == nil {
			return nil, model.NewFatalError(ex.m.name, 0, errors.New("provider returned no response"))
		}
		return resp, err
	}

	observe := func(n int, err error, next time.Duration) {
		ex.log.Warn("mailbox.send.retry", "attempt", n, "delay", next, "error", err)
	}

	resp, n, err := sendWithRetry(ctx, ex.m.opts.Retry, attempt, observe)
	ex.attempts += n
	if err != nil {
		var exhausted *RetryExhaustedError
		if errors.As(err, &exhausted) {
			exhausted.Payload = ex.payload
		}
		return nil, err
	}
	return resp, nil
}

func attemptOutcome(err error) string {
	switch {
	case err == nil:
		return outcomeSuccess
	case model.IsTransient(err):
		return outcomeTransient
	default:
		return outcomeFatal
	}
}

// dispatch runs the requested tools and records the batch on d.
func (ex *exchange) dispatch(ctx context.Context, uses []core.Request, d *Delivery) error {
	reg := ex.call.Registry
	if reg == nil {
		ex.m.metrics.dispatch(outcomeError)
		return tool.NewToolError(uses[0].Name, "reply requested tools but no registry is attached", tool.CodeUnknownTool)
	}

	reqs, results, err := reg.Dispatch(ctx, uses)
	if err != nil {
		ex.m.metrics.dispatch(outcomeError)
		return err
	}
	ex.m.metrics.dispatch(outcomeSuccess)

	if d.Meta == nil {
		d.Meta = core.Metadata{}
	}
	d.Meta[core.MetaRequests] = core.RequestsAttr(reqs)
	d.Meta[core.MetaResults] = core.ResultsAttr(results)
	return nil
}

// commit applies the splice of this send to the tree, exactly once. A
// deferred batch goes back to the registry unless this reply dispatched a
// batch of its own.
func (ex *exchange) commit(d *Delivery) {
	node := ex.call.Node
	if len(ex.requests) > 0 {
		if prev := node.Parent(); prev != nil {
			prev.Content = withRequests(prev.Content, ex.requests)
		}
	}
	if len(ex.results) > 0 {
		node.Content = withResults(node.Content, ex.results)
	}
	if ex.deferred {
		if d.HasRequests() {
			ex.log.Debug("mailbox.pending.dropped", "requests", len(ex.taken.requests))
		} else if reg := ex.call.Registry; reg != nil {
			reg.Restore(ex.taken.requests, ex.taken.results)
		}
	}
	ex.requests, ex.results = nil, nil
	ex.taken, ex.deferred = pendingBatch{}, false
}

// rollback returns the taken pending buffers to the registry.
func (ex *exchange) rollback() {
	if reg := ex.call.Registry; reg != nil {
		reg.Restore(ex.taken.requests, ex.taken.results)
	}
}

// audit records a block; failures are logged and never change the outcome.
func (ex *exchange) audit(direction string, payload any) {
	al := ex.m.opts.AuditLog
	if al == nil {
		return
	}
	entry := auditEntry{Exchange: ex.id, Provider: ex.m.name, Round: ex.continuations, Payload: payload}
	if err := al.Record(direction, entry); err != nil {
		ex.log.Warn("audit.write.failed", "direction", direction, "error", err)
	}
}

func rawMeta(raw map[string]any) core.Metadata {
	if len(raw) == 0 {
		return nil
	}
	meta := make(core.Metadata, len(raw))
	for k, v := range raw {
		if k == core.MetaRequests || k == core.MetaResults {
			continue
		}
		meta[k] = core.ValueAttr(v)
	}
	return meta
}

func addUsage(total, next *model.TokenUsage) *model.TokenUsage {
	if next == nil {
		return total
	}
	if total == nil {
		total = &model.TokenUsage{}
	}
	total.InputTokens += next.InputTokens
	total.OutputTokens += next.OutputTokens
	return total
}
