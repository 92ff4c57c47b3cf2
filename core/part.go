package core

// Part represents a polymorphic segment of turn content. Concrete part types
// implement the unexported isPart marker enabling a closed set.
type Part interface {
	isPart()
	// Kind returns the wire discriminator of the segment.
	Kind() string
}

// Segment kinds as they appear in serialized content.
const (
	KindText       = "text"
	KindToolUse    = "tool_use"
	KindToolResult = "tool_result"
)

// TextPart is a plain text content segment.
type TextPart struct {
	Text string `json:"text"`
}

// isPart implements the Part interface for TextPart.
func (TextPart) isPart() {}

// Kind implements Part.
func (TextPart) Kind() string { return KindText }

// ToolUsePart is a tool invocation requested by the model. Input values are
// strings at the boundary; tools coerce them on their own.
type ToolUsePart struct {
	ID    string            `json:"id"`
	Name  string            `json:"name"`
	Input map[string]string `json:"input"`
}

// isPart implements the Part interface for ToolUsePart.
func (ToolUsePart) isPart() {}

// Kind implements Part.
func (ToolUsePart) Kind() string { return KindToolUse }

// ToolResultPart pairs the output of a tool with the id of the request that
// produced it.
type ToolResultPart struct {
	ToolUseID string `json:"tool_use_id"`
	Name      string `json:"name,omitempty"` // Tool name, required by some providers
	Content   string `json:"content"`
	IsError   bool   `json:"is_error,omitempty"`
}

// isPart implements the Part interface for ToolResultPart.
func (ToolResultPart) isPart() {}

// Kind implements Part.
func (ToolResultPart) Kind() string { return KindToolResult }

// Request is a tool invocation as carried through dispatch.
type Request = ToolUsePart

// Result is the outcome of a dispatched Request.
type Result = ToolResultPart

// CloneRequest returns a deep copy of r.
func CloneRequest(r Request) Request {
	in := make(map[string]string, len(r.Input))
	for k, v := range r.Input {
		in[k] = v
	}
	r.Input = in
	return r
}
