// Package anthropic provides a Provider for the Anthropic Claude Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/benbuzz790/llm-utilities/core"
	"github.com/benbuzz790/llm-utilities/model"
	"github.com/benbuzz790/llm-utilities/tool"
)

const providerName = "anthropic"

// Options configures the Anthropic provider (default model id, API key,
// endpoint). Extend via functional options to preserve stability.
type Options struct {
	Model   anthropic.Model
	APIKey  string
	BaseURL string
}

// Provider wraps the Anthropic Messages API behind model.Provider.
type Provider struct {
	client *anthropic.Client
	opts   Options
}

// New creates a new Anthropic provider using the official client. The SDK's
// own retries are disabled; the mailbox owns retry policy.
func New(optFns ...func(o *Options)) *Provider {
	opts := Options{
		Model: anthropic.ModelClaude3_5Sonnet20241022,
	}

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

	client := anthropic.NewClient(clientOpts...)

	return &Provider{
		client: &client,
		opts:   opts,
	}
}

// NewFromClient creates a new Anthropic provider from an existing client.
func NewFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Provider {
	opts := Options{
		Model: anthropic.ModelClaude3_5Sonnet20241022,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Provider{
		client: client,
		opts:   opts,
	}
}

// Send implements model.Provider.
func (p *Provider) Send(ctx context.Context, req *model.Request) (*model.Response, error) {
	resp, err := p.client.Messages.New(ctx, p.buildParams(req))
	if err != nil {
		return nil, classify(err)
	}
	return normalize(resp)
}

func (p *Provider) buildParams(req *model.Request) anthropic.MessageNewParams {
	id := p.opts.Model
	if req.Model != "" {
		id = anthropic.Model(req.Model)
	}

	system, msgs := model.SplitSystem(req)
	params := anthropic.MessageNewParams{
		Model:       id,
		Messages:    BuildMessages(msgs),
		MaxTokens:   int64(req.MaxTokensOrDefault()),
		Temperature: anthropic.Float(req.Temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(req.Tools) > 0 {
		params.Tools = BuildTools(req.Tools)
	}
	return params
}

// BuildMessages converts canonical messages into Anthropic message params.
// Turns that end up without any block are dropped.
func BuildMessages(msgs []core.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		blocks := buildBlocks(m.Content)
		if len(blocks) == 0 {
			continue
		}
		if m.Role == core.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out
}

func buildBlocks(c core.Content) []anthropic.ContentBlockParamUnion {
	var blocks []anthropic.ContentBlockParamUnion
	for _, part := range c.AsSegments() {
		switch p := part.(type) {
		case core.TextPart:
			if p.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(p.Text))
			}
		case core.ToolUsePart:
			input := p.Input
			if input == nil {
				input = map[string]string{}
			}
			blocks = append(blocks, anthropic.NewToolUseBlock(p.ID, input, p.Name))
		case core.ToolResultPart:
			blocks = append(blocks, anthropic.NewToolResultBlock(p.ToolUseID, p.Content, p.IsError))
		}
	}
	return blocks
}

// BuildTools renders canonical tool schemas as Anthropic tool params.
func BuildTools(schemas []tool.Schema) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(schemas))
	for i, s := range schemas {
		inputSchema := anthropic.ToolInputSchemaParam{
			Type:       constant.Object("object"),
			Properties: s.Properties(),
			Required:   s.Required(),
		}
		u := anthropic.ToolUnionParamOfTool(inputSchema, s.Name)
		if s.Description != "" && u.OfTool != nil {
			u.OfTool.Description = anthropic.String(s.Description)
		}
		out[i] = u
	}
	return out
}

func normalize(resp *anthropic.Message) (*model.Response, error) {
	parts := make([]core.Part, 0, len(resp.Content))
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			parts = append(parts, core.TextPart{Text: block.AsText().Text})
		case "tool_use":
			tu := block.AsToolUse()
			input, err := model.DecodeInput(tu.Input)
			if err != nil {
				return nil, model.NewFatalError(providerName, 0, err)
			}
			parts = append(parts, core.ToolUsePart{ID: tu.ID, Name: tu.Name, Input: input})
		}
	}

	return &model.Response{
		ID:         resp.ID,
		Model:      string(resp.Model),
		Role:       core.RoleAssistant,
		Content:    core.Segments(parts...),
		StopReason: stopReason(string(resp.StopReason)),
		Usage: &model.TokenUsage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
	}, nil
}

func stopReason(s string) model.StopReason {
	switch s {
	case "end_turn":
		return model.StopEndTurn
	case "max_tokens":
		return model.StopMaxTokens
	case "tool_use":
		return model.StopToolUse
	case "stop_sequence":
		return model.StopSequence
	default:
		return model.StopUnknown
	}
}

func classify(err error) error {
	var apiErr *anthropic.Error
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
	// Connection level failures never reached the API.
	return model.NewTransientError(providerName, 0, fmt.Errorf("anthropic request: %w", err))
}

// Info returns metadata describing this provider.
func (p *Provider) Info() model.Info {
	return model.Info{
		Name:          string(p.opts.Model),
		Provider:      providerName,
		SupportsTools: true,
	}
}
