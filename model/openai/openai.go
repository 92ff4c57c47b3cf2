// Package openai provides a Provider backed by the OpenAI Chat Completions
// API (including function/tool calling). It adapts canonical messages into
// the SDK's message format and back.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/benbuzz790/llm-utilities/core"
	"github.com/benbuzz790/llm-utilities/model"
	"github.com/benbuzz790/llm-utilities/tool"
)

const providerName = "openai"

// Options configure the OpenAI provider.
// Fields mirror a subset of Chat Completion parameters intentionally kept
// minimal; extend via functional options without breaking callers.
type Options struct {
	Model   string
	APIKey  string
	BaseURL string
}

// Provider wraps the OpenAI Chat Completions API behind model.Provider.
type Provider struct {
	client *openai.Client
	opts   Options
}

// New creates a new OpenAI provider using the official client.
func New(optFns ...func(o *Options)) *Provider {
	var opts Options
	for _, fn := range optFns {
		fn(&opts)
	}

	clientOpts := []option.RequestOption{option.WithMaxRetries(0)}
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}

	client := openai.NewClient(clientOpts...)
	return NewFromClient(&client, optFns...)
}

// NewFromClient creates a new OpenAI provider from an existing client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Provider {
	opts := Options{
		Model: openai.ChatModelGPT4oMini,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Provider{client: client, opts: opts}
}

// Send implements model.Provider.
func (p *Provider) Send(ctx context.Context, req *model.Request) (*model.Response, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, model.NewFatalError(providerName, 0, err)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, model.NewTransientError(providerName, 0, errors.New("no choices returned"))
	}

	return normalize(resp)
}

// buildParams assembles the OpenAI request parameters including tool definitions.
func (p *Provider) buildParams(req *model.Request) (openai.ChatCompletionNewParams, error) {
	system, msgs := model.SplitSystem(req)

	messages, err := BuildMessages(system, msgs)
	if err != nil {
		return openai.ChatCompletionNewParams{}, err
	}

	id := p.opts.Model
	if req.Model != "" {
		id = req.Model
	}

	params := openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               id,
		Temperature:         openai.Float(req.Temperature),
		MaxCompletionTokens: openai.Int(int64(req.MaxTokensOrDefault())),
	}
	if len(req.Tools) > 0 {
		params.Tools = BuildTools(req.Tools)
	}
	return params, nil
}

// BuildMessages converts canonical messages into OpenAI chat messages. Tool
// results carried in a user turn become separate tool messages placed ahead
// of the turn's remaining text.
func BuildMessages(system string, msgs []core.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}

	for _, m := range msgs {
		text := joinText(m.Content)

		if m.Role == core.RoleAssistant {
			calls, err := toolCalls(m.Content)
			if err != nil {
				return nil, err
			}
			if len(calls) == 0 {
				messages = append(messages, openai.AssistantMessage(text))
				continue
			}
			asst := &openai.ChatCompletionAssistantMessageParam{ToolCalls: calls}
			if text != "" {
				asst.Content.OfString = openai.String(text)
			}
			messages = append(messages, openai.ChatCompletionMessageParamUnion{OfAssistant: asst})
			continue
		}

		for _, r := range m.Content.ToolResults() {
			messages = append(messages, openai.ToolMessage(r.Content, r.ToolUseID))
		}
		if text != "" {
			messages = append(messages, openai.UserMessage(text))
		}
	}
	return messages, nil
}

func joinText(c core.Content) string {
	var b strings.Builder
	for _, part := range c.AsSegments() {
		if tp, ok := part.(core.TextPart); ok {
			b.WriteString(tp.Text)
		}
	}
	return b.String()
}

// toolCalls extracts tool use segments as OpenAI formatted tool calls.
func toolCalls(c core.Content) ([]openai.ChatCompletionMessageToolCallParam, error) {
	var calls []openai.ChatCompletionMessageToolCallParam
	for _, tu := range c.ToolUses() {
		input := tu.Input
		if input == nil {
			input = map[string]string{}
		}
		args, err := json.Marshal(input)
		if err != nil {
			return nil, fmt.Errorf("encode arguments for %s: %w", tu.Name, err)
		}
		calls = append(calls, openai.ChatCompletionMessageToolCallParam{
			ID: tu.ID,
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      tu.Name,
				Arguments: string(args),
			},
		})
	}
	return calls, nil
}

// BuildTools renders canonical tool schemas as OpenAI function tools.
func BuildTools(schemas []tool.Schema) []openai.ChatCompletionToolParam {
	tools := make([]openai.ChatCompletionToolParam, len(schemas))
	for i, s := range schemas {
		tools[i] = openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        s.Name,
				Description: openai.String(s.Description),
				Parameters:  openai.FunctionParameters(s.JSONSchema()),
			},
		}
	}
	return tools
}

func normalize(resp *openai.ChatCompletion) (*model.Response, error) {
	ch0 := resp.Choices[0]

	parts := make([]core.Part, 0, len(ch0.Message.ToolCalls)+1)
	if ch0.Message.Content != "" {
		parts = append(parts, core.TextPart{Text: ch0.Message.Content})
	}
	for _, tc := range ch0.Message.ToolCalls {
		input, err := model.DecodeInput([]byte(tc.Function.Arguments))
		if err != nil {
			return nil, model.NewFatalError(providerName, 0, err)
		}
		parts = append(parts, core.ToolUsePart{ID: tc.ID, Name: tc.Function.Name, Input: input})
	}

	return &model.Response{
		ID:         resp.ID,
		Model:      resp.Model,
		Role:       core.RoleAssistant,
		Content:    core.Segments(parts...),
		StopReason: stopReason(ch0.FinishReason),
		Usage: &model.TokenUsage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
	}, nil
}

func stopReason(finish string) model.StopReason {
	switch finish {
	case "stop":
		return model.StopEndTurn
	case "length":
		return model.StopMaxTokens
	case "tool_calls", "function_call":
		return model.StopToolUse
	case "content_filter":
		return model.StopSequence
	default:
		return model.StopUnknown
	}
}

func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		pe := model.ClassifyStatus(providerName, apiErr.StatusCode, err)
		if apiErr.Response != nil {
			pe.RetryAfter = model.ParseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
		}
		return pe
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return model.NewTransientError(providerName, 0, fmt.Errorf("openai request: %w", err))
}

// Info returns metadata describing this provider.
func (p *Provider) Info() model.Info {
	return model.Info{
		Name:          p.opts.Model,
		Provider:      providerName,
		SupportsTools: true,
	}
}
