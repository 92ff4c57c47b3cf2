package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Content is the body of a conversation turn. It is either plain text or an
// ordered sequence of typed segments; Parts == nil selects the plain form.
type Content struct {
	Text  string
	Parts []Part
}

// Text returns plain text content.
func Text(s string) Content { return Content{Text: s} }

// Segments returns segmented content holding the given parts in order. An
// empty call yields segmented content without segments.
func Segments(parts ...Part) Content {
	if parts == nil {
		parts = []Part{}
	}
	return Content{Parts: parts}
}

// IsSegmented reports whether the content is held as a segment list.
func (c Content) IsSegmented() bool { return c.Parts != nil }

// IsZero reports whether the content carries nothing at all.
func (c Content) IsZero() bool { return c.Text == "" && len(c.Parts) == 0 }

// PlainText returns the text of the content. For segmented content the text
// segments are concatenated in order; tool segments are skipped.
func (c Content) PlainText() string {
	if !c.IsSegmented() {
		return c.Text
	}
	var sb strings.Builder
	for _, p := range c.Parts {
		if tp, ok := p.(TextPart); ok {
			sb.WriteString(tp.Text)
		}
	}
	return sb.String()
}

// AsSegments returns the content as a segment list. Plain text becomes a
// single text segment; empty text yields no segment.
func (c Content) AsSegments() []Part {
	if c.IsSegmented() {
		out := make([]Part, len(c.Parts))
		copy(out, c.Parts)
		return out
	}
	if c.Text == "" {
		return []Part{}
	}
	return []Part{TextPart{Text: c.Text}}
}

// Clone returns a deep copy of the content.
func (c Content) Clone() Content {
	if !c.IsSegmented() {
		return c
	}
	parts := make([]Part, len(c.Parts))
	for i, p := range c.Parts {
		if tu, ok := p.(ToolUsePart); ok {
			p = CloneRequest(tu)
		}
		parts[i] = p
	}
	return Content{Parts: parts}
}

// ToolUses returns the tool use segments in order.
func (c Content) ToolUses() []ToolUsePart {
	var out []ToolUsePart
	for _, p := range c.Parts {
		if tu, ok := p.(ToolUsePart); ok {
			out = append(out, tu)
		}
	}
	return out
}

// ToolResults returns the tool result segments in order.
func (c Content) ToolResults() []ToolResultPart {
	var out []ToolResultPart
	for _, p := range c.Parts {
		if tr, ok := p.(ToolResultPart); ok {
			out = append(out, tr)
		}
	}
	return out
}

// String implements fmt.Stringer.
func (c Content) String() string { return c.PlainText() }

type wirePart struct {
	Type      string            `json:"type"`
	Text      *string           `json:"text,omitempty"`
	ID        string            `json:"id,omitempty"`
	Name      string            `json:"name,omitempty"`
	Input     map[string]string `json:"input,omitempty"`
	ToolUseID string            `json:"tool_use_id,omitempty"`
	Content   *string           `json:"content,omitempty"`
	IsError   bool              `json:"is_error,omitempty"`
}

func encodePart(p Part) (wirePart, error) {
	switch v := p.(type) {
	case TextPart:
		return wirePart{Type: KindText, Text: &v.Text}, nil
	case ToolUsePart:
		in := v.Input
		if in == nil {
			in = map[string]string{}
		}
		return wirePart{Type: KindToolUse, ID: v.ID, Name: v.Name, Input: in}, nil
	case ToolResultPart:
		return wirePart{Type: KindToolResult, ToolUseID: v.ToolUseID, Name: v.Name, Content: &v.Content, IsError: v.IsError}, nil
	default:
		return wirePart{}, &ContentMergeError{Reason: fmt.Sprintf("unsupported segment %T", p)}
	}
}

func decodePart(w wirePart) (Part, error) {
	switch w.Type {
	case KindText:
		if w.Text == nil {
			return nil, fmt.Errorf("text segment without text")
		}
		return TextPart{Text: *w.Text}, nil
	case KindToolUse:
		in := w.Input
		if in == nil {
			in = map[string]string{}
		}
		return ToolUsePart{ID: w.ID, Name: w.Name, Input: in}, nil
	case KindToolResult:
		var body string
		if w.Content != nil {
			body = *w.Content
		}
		return ToolResultPart{ToolUseID: w.ToolUseID, Name: w.Name, Content: body, IsError: w.IsError}, nil
	default:
		return nil, fmt.Errorf("unknown segment type %q", w.Type)
	}
}

// MarshalJSON encodes plain text as a JSON string and segments as an array of
// typed objects.
func (c Content) MarshalJSON() ([]byte, error) {
	if !c.IsSegmented() {
		return json.Marshal(c.Text)
	}
	wire := make([]wirePart, 0, len(c.Parts))
	for _, p := range c.Parts {
		w, err := encodePart(p)
		if err != nil {
			return nil, err
		}
		wire = append(wire, w)
	}
	return json.Marshal(wire)
}

// UnmarshalJSON decodes either representation produced by MarshalJSON.
func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = Content{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Content{Text: s}
		return nil
	}
	var wire []wirePart
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("content: %w", err)
	}
	parts := make([]Part, 0, len(wire))
	for _, w := range wire {
		p, err := decodePart(w)
		if err != nil {
			return fmt.Errorf("content: %w", err)
		}
		parts = append(parts, p)
	}
	*c = Content{Parts: parts}
	return nil
}
