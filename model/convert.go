package model

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/benbuzz790/llm-utilities/core"
)

// StringifyInput converts decoded tool arguments into the string mapping
// used at the tool boundary. Strings are kept; other values become JSON.
func StringifyInput(raw map[string]any) map[string]string {
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch x := v.(type) {
		case string:
			out[k] = x
		case nil:
			out[k] = ""
		default:
			b, err := json.Marshal(x)
			if err != nil {
				out[k] = fmt.Sprint(x)
				continue
			}
			out[k] = string(b)
		}
	}
	return out
}

// DecodeInput parses a JSON object of tool arguments into the string mapping.
func DecodeInput(data []byte) (map[string]string, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return map[string]string{}, nil
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode tool input: %w", err)
	}
	return StringifyInput(raw), nil
}

// SplitSystem separates system turns from the dialogue. The system text of
// the request comes first, followed by any system turns in order.
func SplitSystem(req *Request) (string, []core.Message) {
	var (
		system []string
		msgs   = make([]core.Message, 0, len(req.Messages))
	)
	if req.System != "" {
		system = append(system, req.System)
	}
	for _, m := range req.Messages {
		switch m.Role {
		case core.RoleSystem:
			if t := m.Content.PlainText(); t != "" {
				system = append(system, t)
			}
		case core.RoleEmpty:
		default:
			msgs = append(msgs, m)
		}
	}
	return strings.Join(system, "\n\n"), msgs
}
