package model

import (
	"context"

	"github.com/benbuzz790/llm-utilities/core"
	"github.com/benbuzz790/llm-utilities/tool"
)

// StopReason explains why the provider ended a reply.
type StopReason string

const (
	StopEndTurn      StopReason = "end_turn"
	StopMaxTokens    StopReason = "max_tokens"
	StopToolUse      StopReason = "tool_use"
	StopSequence     StopReason = "stop_sequence"
	StopUnknown      StopReason = "unknown"
	defaultMaxTokens            = 4096
)

// Request is the outbound payload of a single provider call.
type Request struct {
	Model       string         `json:"model"`
	System      string         `json:"system,omitempty"`
	Messages    []core.Message `json:"messages"`
	Tools       []tool.Schema  `json:"tools,omitempty"`
	MaxTokens   int            `json:"max_tokens"`
	Temperature float64        `json:"temperature"`
}

// MaxTokensOrDefault returns MaxTokens, or a default when unset.
func (r *Request) MaxTokensOrDefault() int {
	if r.MaxTokens <= 0 {
		return defaultMaxTokens
	}
	return r.MaxTokens
}

// Clone returns a deep copy of the request.
func (r *Request) Clone() *Request {
	cp := *r
	cp.Messages = core.CloneMessages(r.Messages)
	cp.Tools = append([]tool.Schema(nil), r.Tools...)
	return &cp
}

// TokenUsage captures token usage statistics reported by a provider.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Response is a normalized provider reply.
type Response struct {
	ID         string         `json:"id,omitempty"`
	Model      string         `json:"model,omitempty"`
	Role       string         `json:"role"`
	Content    core.Content   `json:"content"`
	StopReason StopReason     `json:"stop_reason"`
	Usage      *TokenUsage    `json:"usage,omitempty"`
	Raw        map[string]any `json:"raw,omitempty"` // Provider-specific extras kept as node metadata
}

// Text returns the concatenated text segments of the reply.
func (r *Response) Text() string { return r.Content.PlainText() }

// ToolUses returns the tool requests in the reply, in emission order.
func (r *Response) ToolUses() []core.Request { return r.Content.ToolUses() }

// Info contains metadata about a provider implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "bedrock", "gemini", "mock"
	SupportsTools bool   `json:"supports_tools"`
}

// Provider sends one payload and returns one normalized reply. Errors must be
// classified with NewTransientError / NewFatalError; unclassified errors are
// treated as fatal.
type Provider interface {
	Send(ctx context.Context, req *Request) (*Response, error)

	// Info returns information about the provider implementation.
	Info() Info
}
