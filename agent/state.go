package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/benbuzz790/llm-utilities/conversation"
	"github.com/benbuzz790/llm-utilities/logging"
	"github.com/benbuzz790/llm-utilities/mailbox"
	"github.com/benbuzz790/llm-utilities/session"
	"github.com/benbuzz790/llm-utilities/tool"
)

// StateVersion is the version written by Agent.State.
const StateVersion = 1

// ErrUnsupportedState is returned when loading state written by an unknown
// version.
var ErrUnsupportedState = errors.New("unsupported agent state version")

// State is the persisted form of an agent. Credentials are never part of it;
// the loader supplies a mailbox built from its own environment.
type State struct {
	Version         int                       `json:"version"`
	Name            string                    `json:"name"`
	Model           string                    `json:"model"`
	MaxTokens       int                       `json:"max_tokens"`
	Temperature     float64                   `json:"temperature"`
	Role            string                    `json:"role"`
	RoleDescription string                    `json:"role_description"`
	SystemMessage   string                    `json:"system_message"`
	MaxToolCycles   int                       `json:"max_tool_cycles,omitempty"`
	Provider        string                    `json:"provider"`
	ToolHandler     tool.Snapshot             `json:"tool_handler"`
	Conversation    conversation.PortableTree `json:"conversation"`
	CurrentID       string                    `json:"current_id"`
}

// State snapshots the agent, its tools and its whole conversation.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()

	st := State{
		Version:         StateVersion,
		Name:            a.opts.Name,
		Model:           a.opts.Model,
		MaxTokens:       a.opts.MaxTokens,
		Temperature:     a.opts.Temperature,
		Role:            a.opts.Role,
		RoleDescription: a.opts.RoleDescription,
		SystemMessage:   a.opts.SystemMessage,
		MaxToolCycles:   a.opts.MaxToolCycles,
		ToolHandler:     a.registry.Snapshot(),
		Conversation:    a.current.ToPortable(),
		CurrentID:       a.current.ID,
	}
	if a.mailbox != nil {
		st.Provider = a.mailbox.Provider().Info().Provider
	}
	return st
}

// FromState rebuilds an agent sending through mb. restoreOpts control how
// tools are re-bound; see tool.RestoreRegistry. The registry logger, when
// set, is used by the agent as well.
func FromState(st State, mb *mailbox.Mailbox, restoreOpts ...func(o *tool.RestoreOptions)) (*Agent, error) {
	if st.Version != StateVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedState, st.Version)
	}

	var ro tool.RestoreOptions
	for _, fn := range restoreOpts {
		fn(&ro)
	}
	logger := ro.Logger
	if logger == nil {
		logger = logging.NoOpLogger{}
	}

	reg, err := tool.RestoreRegistry(st.ToolHandler, restoreOpts...)
	if err != nil {
		return nil, fmt.Errorf("restore tools: %w", err)
	}
	root, err := conversation.FromPortable(st.Conversation)
	if err != nil {
		return nil, fmt.Errorf("restore conversation: %w", err)
	}
	current := root.FindByID(st.CurrentID)
	if current == nil {
		return nil, fmt.Errorf("restore conversation: current node %q not found", st.CurrentID)
	}

	return New(mb,
		WithName(st.Name),
		WithModel(st.Model),
		WithMaxTokens(st.MaxTokens),
		WithTemperature(st.Temperature),
		WithRole(st.Role, st.RoleDescription),
		WithSystemMessage(st.SystemMessage),
		WithMaxToolCycles(st.MaxToolCycles),
		WithRegistry(reg),
		WithLogger(logger),
		WithConversation(current),
	), nil
}

// Save writes the agent state to store under name and returns the name used.
// An empty name defaults to "<agent name>@<timestamp>".
func (a *Agent) Save(store session.Store, name string) (string, error) {
	if name == "" {
		name = session.DefaultName(a.opts.Name, time.Now())
	}
	data, err := json.MarshalIndent(a.State(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode agent state: %w", err)
	}
	if err := store.Save(name, data); err != nil {
		return "", err
	}
	a.log.Info("agent.save", "name", name)
	return name, nil
}

// Load reads a saved agent from store and binds it to mb.
func Load(store session.Store, name string, mb *mailbox.Mailbox, restoreOpts ...func(o *tool.RestoreOptions)) (*Agent, error) {
	data, err := store.Load(name)
	if err != nil {
		return nil, err
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode agent state %s: %w", name, err)
	}
	return FromState(st, mb, restoreOpts...)
}
