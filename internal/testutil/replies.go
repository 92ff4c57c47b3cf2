package testutil

import (
	"context"
	"strconv"
	"sync/atomic"

	"github.com/benbuzz790/llm-utilities/core"
	"github.com/benbuzz790/llm-utilities/model"
	"github.com/benbuzz790/llm-utilities/tool"
)

// TextReply is a complete assistant reply.
func TextReply(text string) *model.Response {
	return &model.Response{Role: core.RoleAssistant, Content: core.Text(text), StopReason: model.StopEndTurn}
}

// TruncatedReply is an assistant reply cut short by the token limit.
func TruncatedReply(text string) *model.Response {
	return &model.Response{Role: core.RoleAssistant, Content: core.Text(text), StopReason: model.StopMaxTokens}
}

// ToolUseReply is an assistant reply requesting one tool call, optionally
// preceded by text.
func ToolUseReply(text, id, name string, input map[string]string) *model.Response {
	var parts []core.Part
	if text != "" {
		parts = append(parts, core.TextPart{Text: text})
	}
	parts = append(parts, core.ToolUsePart{ID: id, Name: name, Input: input})
	return &model.Response{Role: core.RoleAssistant, Content: core.Segments(parts...), StopReason: model.StopToolUse}
}

// AlwaysToolUse returns a mock handler that requests the named tool on every
// call, with fresh ids.
func AlwaysToolUse(name string, input map[string]string) func(*model.Request) (*model.Response, error) {
	var n atomic.Int64
	return func(*model.Request) (*model.Response, error) {
		id := "call_" + strconv.FormatInt(n.Add(1), 10)
		return ToolUseReply("working", id, name, input), nil
	}
}

// Transient is a retryable provider error.
func Transient() error {
	return model.NewTransientError("mock", 529, errOverloaded)
}

type constError string

func (e constError) Error() string { return string(e) }

const errOverloaded = constError("overloaded")

type addArgs struct {
	A int `json:"a" description:"First addend"`
	B int `json:"b" description:"Second addend"`
}

// AddTool is a tool named "add" summing two integers.
func AddTool() tool.Tool {
	return tool.MustFunc(func(_ context.Context, args addArgs) (int, error) {
		return args.A + args.B, nil
	}, tool.WithName("add"), tool.WithDescription("Add two integers."))
}

// CountingTool is a tool named name that records how often it ran.
type CountingTool struct {
	ToolName string
	calls    atomic.Int64
}

// Name implements tool.Tool.
func (c *CountingTool) Name() string { return c.ToolName }

// Description implements tool.Tool.
func (c *CountingTool) Description() string { return "Counts its calls." }

// Parameters implements tool.Tool.
func (c *CountingTool) Parameters() []tool.Param { return nil }

// Call implements tool.Tool.
func (c *CountingTool) Call(context.Context, map[string]string) (string, error) {
	return strconv.FormatInt(c.calls.Add(1), 10), nil
}

// Calls returns the number of calls so far.
func (c *CountingTool) Calls() int { return int(c.calls.Load()) }
