package bedrock

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benbuzz790/llm-utilities/core"
	"github.com/benbuzz790/llm-utilities/model"
	"github.com/benbuzz790/llm-utilities/tool"
)

type fakeInvoker struct {
	input *bedrockruntime.InvokeModelInput
	body  string
	err   error
}

func (f *fakeInvoker) InvokeModel(_ context.Context, in *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &bedrockruntime.InvokeModelOutput{Body: []byte(f.body)}, nil
}

func TestEncodeRequest(t *testing.T) {
	body, err := EncodeRequest(&model.Request{
		System: "sys",
		Messages: []core.Message{
			{Role: core.RoleSystem, Content: core.Text("extra")},
			{Role: core.RoleUser, Content: core.Segments(
				core.ToolResultPart{ToolUseID: "tu_1", Name: "add", Content: "3"},
			)},
		},
		Tools: []tool.Schema{{Name: "add", Parameters: []tool.Param{{Name: "a", Type: "string", Required: true}}}},
	})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))

	assert.Equal(t, anthropicVersion, decoded["anthropic_version"])
	assert.Equal(t, "sys\n\nextra", decoded["system"])
	assert.EqualValues(t, 4096, decoded["max_tokens"])

	msgs := decoded["messages"].([]any)
	require.Len(t, msgs, 1)
	block := msgs[0].(map[string]any)["content"].([]any)[0].(map[string]any)
	assert.Equal(t, "tool_result", block["type"])
	assert.NotContains(t, block, "name")

	tools := decoded["tools"].([]any)
	assert.Equal(t, "add", tools[0].(map[string]any)["name"])
}

func TestSendDecodesResponse(t *testing.T) {
	inv := &fakeInvoker{body: `{
		"id": "msg_1", "model": "claude", "stop_reason": "tool_use",
		"content": [{"type": "tool_use", "id": "tu_2", "name": "add", "input": {"a": 5}}],
		"usage": {"input_tokens": 1, "output_tokens": 2}
	}`}
	p := NewFromClient(inv, func(o *Options) { o.ModelID = "test-model" })

	resp, err := p.Send(context.Background(), &model.Request{
		Messages: []core.Message{{Role: core.RoleUser, Content: core.Text("hi")}},
	})
	require.NoError(t, err)

	assert.Equal(t, "test-model", aws.ToString(inv.input.ModelId))
	assert.Equal(t, model.StopToolUse, resp.StopReason)
	require.Len(t, resp.ToolUses(), 1)
	assert.Equal(t, map[string]string{"a": "5"}, resp.ToolUses()[0].Input)
}

func TestSendClassifiesThrottling(t *testing.T) {
	inv := &fakeInvoker{err: &types.ThrottlingException{Message: aws.String("slow down")}}
	p := NewFromClient(inv)

	_, err := p.Send(context.Background(), &model.Request{
		Messages: []core.Message{{Role: core.RoleUser, Content: core.Text("hi")}},
	})
	require.Error(t, err)
	assert.True(t, model.IsTransient(err))
}

func TestSendClassifiesValidationAsFatal(t *testing.T) {
	inv := &fakeInvoker{err: &types.ValidationException{Message: aws.String("bad")}}
	p := NewFromClient(inv)

	_, err := p.Send(context.Background(), &model.Request{
		Messages: []core.Message{{Role: core.RoleUser, Content: core.Text("hi")}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrFatal)
}

func TestDecodeResponseRejectsGarbage(t *testing.T) {
	_, err := DecodeResponse([]byte("not json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrFatal)
}
