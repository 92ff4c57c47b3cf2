package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benbuzz790/llm-utilities/conversation"
	"github.com/benbuzz790/llm-utilities/core"
	"github.com/benbuzz790/llm-utilities/internal/util"
	"github.com/benbuzz790/llm-utilities/logging"
	"github.com/benbuzz790/llm-utilities/mailbox"
	"github.com/benbuzz790/llm-utilities/tool"
)

// Defaults applied by New.
const (
	DefaultMaxTokens     = 4096
	DefaultTemperature   = 0.3
	DefaultRole          = core.RoleAssistant
	DefaultMaxToolCycles = 8
)

// WorkingSeparator joins the replies of an auto run into one transcript.
const WorkingSeparator = "\n\n ...working... \n\n"

// Options configures an Agent.
type Options struct {
	Name            string
	Model           string
	MaxTokens       int
	Temperature     float64
	Role            string
	RoleDescription string
	SystemMessage   string

	// MaxToolCycles caps RespondAuto when the call passes no cap.
	MaxToolCycles int

	// Registry holds the agent's tools. A fresh registry is created when nil.
	Registry *tool.Registry
	Logger   logging.Logger

	// Conversation is the node to continue from. A new empty conversation
	// is started when nil.
	Conversation *conversation.Node
}

func WithName(name string) func(o *Options) {
	return func(o *Options) { o.Name = name }
}

func WithModel(model string) func(o *Options) {
	return func(o *Options) { o.Model = model }
}

func WithMaxTokens(n int) func(o *Options) {
	return func(o *Options) { o.MaxTokens = n }
}

func WithTemperature(t float64) func(o *Options) {
	return func(o *Options) { o.Temperature = t }
}

// WithRole sets the persona role and its description.
func WithRole(role, description string) func(o *Options) {
	return func(o *Options) {
		o.Role = role
		o.RoleDescription = description
	}
}

func WithSystemMessage(msg string) func(o *Options) {
	return func(o *Options) { o.SystemMessage = msg }
}

func WithMaxToolCycles(n int) func(o *Options) {
	return func(o *Options) { o.MaxToolCycles = n }
}

func WithRegistry(r *tool.Registry) func(o *Options) {
	return func(o *Options) { o.Registry = r }
}

func WithLogger(l logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = l }
}

// WithConversation continues an existing conversation from node.
func WithConversation(node *conversation.Node) func(o *Options) {
	return func(o *Options) { o.Conversation = node }
}

// Agent is a conversational bot bound to one mailbox.
//
// An agent has at most one send in flight; concurrent calls on the same
// agent are serialized. Distinct agents may share a mailbox.
type Agent struct {
	mu sync.Mutex

	opts     Options
	mailbox  *mailbox.Mailbox
	registry *tool.Registry
	current  *conversation.Node
	log      logging.Logger
}

// New creates an agent sending through mb.
func New(mb *mailbox.Mailbox, optFns ...func(o *Options)) *Agent {
	opts := Options{
		Name:          "bot",
		MaxTokens:     DefaultMaxTokens,
		Temperature:   DefaultTemperature,
		Role:          DefaultRole,
		MaxToolCycles: DefaultMaxToolCycles,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Registry == nil {
		opts.Registry = tool.NewRegistry(func(o *tool.RegistryOptions) { o.Logger = opts.Logger })
	}
	if opts.Conversation == nil {
		opts.Conversation = conversation.NewEmpty()
	}
	if opts.MaxToolCycles <= 0 {
		opts.MaxToolCycles = DefaultMaxToolCycles
	}
	if opts.Model == "" && mb != nil {
		opts.Model = mb.Provider().Info().Name
	}

	return &Agent{
		opts:     opts,
		mailbox:  mb,
		registry: opts.Registry,
		current:  opts.Conversation,
		log:      logging.With(opts.Logger, "agent", opts.Name),
	}
}

// Name returns the agent name.
func (a *Agent) Name() string { return a.opts.Name }

// Options returns a copy of the agent configuration.
func (a *Agent) Options() Options {
	a.mu.Lock()
	defer a.mu.Unlock()
	o := a.opts
	o.Conversation = a.current
	return o
}

// Mailbox returns the mailbox the agent sends through.
func (a *Agent) Mailbox() *mailbox.Mailbox { return a.mailbox }

// Registry returns the agent's tool registry.
func (a *Agent) Registry() *tool.Registry { return a.registry }

// Respond appends text as a new turn, sends the conversation and appends the
// reply. role defaults to "user". The tree only changes when the send
// succeeds.
func (a *Agent) Respond(ctx context.Context, text, role string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	d, err := a.respond(ctx, text, role)
	if err != nil {
		return "", err
	}
	return d.Text, nil
}

// RespondAuto responds to text and then keeps answering tool requests with a
// short follow-up prompt until the model stops requesting tools or
// maxCycles sends have been made. A cap of zero or less uses the configured
// MaxToolCycles. The replies are joined with WorkingSeparator.
func (a *Agent) RespondAuto(ctx context.Context, text, role string, maxCycles int) (_ string, err error) {
	if maxCycles <= 0 {
		maxCycles = a.opts.MaxToolCycles
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	start := time.Now()
	budget := core.NewCycleBudget(maxCycles, 1)
	defer func() {
		logging.RecordTurn(a.opts.Logger, a.opts.Name, budget.Used(), time.Since(start), err)
	}()

	d, err := a.respond(ctx, text, role)
	if err != nil {
		return "", err
	}
	replies := []string{d.Text}

	for d.HasRequests() {
		left := budget.Left()
		if !budget.Next() {
			break
		}
		prompt := fmt.Sprintf("(auto for %d more tool calls max)", left)
		a.log.Debug("agent.auto.cycle", "cycle", budget.Used(), "max", maxCycles)
		if d, err = a.respond(ctx, prompt, core.RoleUser); err != nil {
			return "", fmt.Errorf("auto cycle %d: %w", budget.Used(), err)
		}
		replies = append(replies, d.Text)
	}

	if d.HasRequests() {
		a.log.Info("agent.auto.capped", "cycles", budget.Used())
	}
	return strings.Join(replies, WorkingSeparator), nil
}

func (a *Agent) respond(ctx context.Context, text, role string) (*mailbox.Delivery, error) {
	if a.mailbox == nil {
		return nil, errors.New("agent: no mailbox")
	}
	if role == "" {
		role = core.RoleUser
	}

	system, err := util.RenderTemplate(a.opts.SystemMessage, a.templateVars())
	if err != nil {
		return nil, fmt.Errorf("system message: %w", err)
	}

	start := time.Now()
	staged := a.current.Propose(core.Text(text), role, nil)
	d, err := a.mailbox.Deliver(ctx, mailbox.Call{
		Node:        staged,
		Registry:    a.registry,
		Agent:       a.opts.Name,
		Model:       a.opts.Model,
		System:      system,
		MaxTokens:   a.opts.MaxTokens,
		Temperature: a.opts.Temperature,
	})
	if err != nil {
		return nil, err
	}

	replyRole := d.Role
	if replyRole == "" {
		replyRole = core.RoleAssistant
	}
	a.current = staged.Commit().AddReply(core.Text(d.Text), replyRole, d.Meta)

	a.log.Debug("agent.respond.done",
		"node", a.current.ID,
		"tool_requests", len(d.Requests()),
		"duration", time.Since(start),
	)
	return d, nil
}

func (a *Agent) templateVars() map[string]any {
	return map[string]any{
		"name":             a.opts.Name,
		"model":            a.opts.Model,
		"role":             a.opts.Role,
		"role_description": a.opts.RoleDescription,
	}
}

// AddTool registers a Go function as a tool. See tool.NewFunc for the
// accepted shapes.
func (a *Agent) AddTool(fn any, optFns ...func(o *tool.FuncOptions)) (tool.Tool, error) {
	return a.registry.AddFunc(fn, optFns...)
}

// AddTools registers ready-made tools.
func (a *Agent) AddTools(tools ...tool.Tool) {
	a.registry.Register(tools...)
}

// AddToolsFromFile registers every exposed function of a script file, or of
// every file matching a doublestar pattern.
func (a *Agent) AddToolsFromFile(path string) ([]string, error) {
	if strings.ContainsAny(path, "*?[{") {
		return a.registry.AddFilesGlob(path)
	}
	return a.registry.AddFile(path)
}

// SetSystemMessage replaces the system message sent with every call. The
// message may reference {{.name}}, {{.model}}, {{.role}} and
// {{.role_description}}.
func (a *Agent) SetSystemMessage(msg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.opts.SystemMessage = msg
}

// Conversation returns the root of the agent's conversation tree.
func (a *Agent) Conversation() *conversation.Node {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current.Root()
}

// Current returns the node the next Respond continues from.
func (a *Agent) Current() *conversation.Node {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// SetCurrent moves the current pointer to node, which must belong to the
// agent's tree. The next Respond branches from there.
func (a *Agent) SetCurrent(node *conversation.Node) error {
	if node == nil {
		return errors.New("agent: nil node")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if node.Staged() || node.Root() != a.current.Root() {
		return fmt.Errorf("agent: node %s is not part of this conversation", node.ID)
	}
	a.current = node
	return nil
}
