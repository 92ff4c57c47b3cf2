package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benbuzz790/llm-utilities/core"
	"github.com/benbuzz790/llm-utilities/model"
	"github.com/benbuzz790/llm-utilities/tool"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(func(o *Options) {
		o.APIKey = "test-key"
		o.BaseURL = srv.URL + "/"
	})
}

func TestBuildMessagesSplitsToolResults(t *testing.T) {
	msgs, err := BuildMessages("sys", []core.Message{
		{Role: core.RoleUser, Content: core.Text("add")},
		{Role: core.RoleAssistant, Content: core.Segments(
			core.ToolUsePart{ID: "call_1", Name: "add", Input: map[string]string{"a": "1"}},
		)},
		{Role: core.RoleUser, Content: core.Segments(
			core.ToolResultPart{ToolUseID: "call_1", Name: "add", Content: "1"},
			core.TextPart{Text: "and now?"},
		)},
	})
	require.NoError(t, err)
	require.Len(t, msgs, 5)

	assert.NotNil(t, msgs[0].OfSystem)
	assert.NotNil(t, msgs[1].OfUser)
	require.NotNil(t, msgs[2].OfAssistant)
	require.Len(t, msgs[2].OfAssistant.ToolCalls, 1)
	assert.JSONEq(t, `{"a":"1"}`, msgs[2].OfAssistant.ToolCalls[0].Function.Arguments)
	require.NotNil(t, msgs[3].OfTool)
	assert.Equal(t, "call_1", msgs[3].OfTool.ToolCallID)
	assert.NotNil(t, msgs[4].OfUser)
}

func TestBuildTools(t *testing.T) {
	tools := BuildTools([]tool.Schema{{
		Name:       "add",
		Parameters: []tool.Param{{Name: "a", Type: "string", Required: true}},
	}})
	require.Len(t, tools, 1)
	assert.Equal(t, "add", tools[0].Function.Name)
	assert.Equal(t, "object", tools[0].Function.Parameters["type"])
}

func TestSendNormalizesToolCalls(t *testing.T) {
	var body map[string]any
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "gpt-test",
			"choices": [{
				"index": 0,
				"message": {"role": "assistant", "content": null, "tool_calls": [
					{"id": "call_7", "type": "function", "function": {"name": "add", "arguments": "{\"a\": 2}"}}
				]},
				"finish_reason": "tool_calls"
			}],
			"usage": {"prompt_tokens": 3, "completion_tokens": 4, "total_tokens": 7}
		}`)
	})

	resp, err := p.Send(context.Background(), &model.Request{
		Model:    "gpt-test",
		Messages: []core.Message{{Role: core.RoleUser, Content: core.Text("add")}},
	})
	require.NoError(t, err)

	assert.Equal(t, model.StopToolUse, resp.StopReason)
	require.Len(t, resp.ToolUses(), 1)
	assert.Equal(t, "call_7", resp.ToolUses()[0].ID)
	assert.Equal(t, map[string]string{"a": "2"}, resp.ToolUses()[0].Input)
	assert.Equal(t, 4, resp.Usage.OutputTokens)
	assert.Equal(t, "gpt-test", body["model"])
}

func TestSendClassifiesServerError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"error":{"message":"overloaded","type":"server_error"}}`)
	})

	_, err := p.Send(context.Background(), &model.Request{
		Messages: []core.Message{{Role: core.RoleUser, Content: core.Text("hi")}},
	})
	require.Error(t, err)
	assert.True(t, model.IsTransient(err))
}

func TestStopReason(t *testing.T) {
	assert.Equal(t, model.StopEndTurn, stopReason("stop"))
	assert.Equal(t, model.StopMaxTokens, stopReason("length"))
	assert.Equal(t, model.StopToolUse, stopReason("tool_calls"))
}
