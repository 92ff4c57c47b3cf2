// Package bedrock provides a Provider for Anthropic models hosted on AWS
// Bedrock, using the InvokeModel API with the Anthropic messages body.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/benbuzz790/llm-utilities/core"
	"github.com/benbuzz790/llm-utilities/model"
	"github.com/benbuzz790/llm-utilities/tool"
)

const (
	providerName     = "bedrock"
	anthropicVersion = "bedrock-2023-05-31"
)

// Invoker is the subset of the Bedrock runtime client used by the provider.
type Invoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Options configure the Bedrock provider.
type Options struct {
	ModelID string
	Region  string
}

// Provider sends Anthropic message payloads through Bedrock.
type Provider struct {
	client Invoker
	opts   Options
}

// New loads the default AWS configuration and creates a provider.
// AWS credentials must be available in the environment.
func New(ctx context.Context, optFns ...func(o *Options)) (*Provider, error) {
	opts := defaultOptions(optFns)

	var cfgOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		cfgOpts = append(cfgOpts, config.WithRegion(opts.Region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, cfgOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	// The mailbox owns retry policy.
	client := bedrockruntime.NewFromConfig(cfg, func(o *bedrockruntime.Options) {
		o.RetryMaxAttempts = 1
	})

	return &Provider{client: client, opts: opts}, nil
}

// NewFromClient creates a provider from an existing client.
func NewFromClient(client Invoker, optFns ...func(o *Options)) *Provider {
	return &Provider{client: client, opts: defaultOptions(optFns)}
}

func defaultOptions(optFns []func(o *Options)) Options {
	opts := Options{
		ModelID: "anthropic.claude-3-5-sonnet-20241022-v2:0",
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return opts
}

type wireBlock struct {
	Type      string            `json:"type"`
	Text      string            `json:"text,omitempty"`
	ID        string            `json:"id,omitempty"`
	Name      string            `json:"name,omitempty"`
	Input     map[string]string `json:"input,omitempty"`
	ToolUseID string            `json:"tool_use_id,omitempty"`
	Content   string            `json:"content,omitempty"`
	IsError   bool              `json:"is_error,omitempty"`
}

type wireMessage struct {
	Role    string      `json:"role"`
	Content []wireBlock `json:"content"`
}

type wireTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

type wireRequest struct {
	AnthropicVersion string        `json:"anthropic_version"`
	MaxTokens        int           `json:"max_tokens"`
	Temperature      float64       `json:"temperature"`
	System           string        `json:"system,omitempty"`
	Messages         []wireMessage `json:"messages"`
	Tools            []wireTool    `json:"tools,omitempty"`
}

type wireResponseBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text"`
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

type wireResponse struct {
	ID         string              `json:"id"`
	Model      string              `json:"model"`
	Content    []wireResponseBlock `json:"content"`
	StopReason string              `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Send implements model.Provider.
func (p *Provider) Send(ctx context.Context, req *model.Request) (*model.Response, error) {
	body, err := EncodeRequest(req)
	if err != nil {
		return nil, model.NewFatalError(providerName, 0, err)
	}

	id := p.opts.ModelID
	if req.Model != "" {
		id = req.Model
	}

	out, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(id),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, classify(err)
	}

	return DecodeResponse(out.Body)
}

// EncodeRequest renders the Anthropic-on-Bedrock request body.
func EncodeRequest(req *model.Request) ([]byte, error) {
	system, msgs := model.SplitSystem(req)

	wire := wireRequest{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        req.MaxTokensOrDefault(),
		Temperature:      req.Temperature,
		System:           system,
		Messages:         make([]wireMessage, 0, len(msgs)),
	}

	for _, m := range msgs {
		blocks := encodeBlocks(m.Content)
		if len(blocks) == 0 {
			continue
		}
		role := core.RoleUser
		if m.Role == core.RoleAssistant {
			role = core.RoleAssistant
		}
		wire.Messages = append(wire.Messages, wireMessage{Role: role, Content: blocks})
	}

	for _, s := range req.Tools {
		wire.Tools = append(wire.Tools, toWireTool(s))
	}

	return json.Marshal(wire)
}

func encodeBlocks(c core.Content) []wireBlock {
	var blocks []wireBlock
	for _, part := range c.AsSegments() {
		switch p := part.(type) {
		case core.TextPart:
			if p.Text != "" {
				blocks = append(blocks, wireBlock{Type: core.KindText, Text: p.Text})
			}
		case core.ToolUsePart:
			input := p.Input
			if input == nil {
				input = map[string]string{}
			}
			blocks = append(blocks, wireBlock{Type: core.KindToolUse, ID: p.ID, Name: p.Name, Input: input})
		case core.ToolResultPart:
			// Bedrock rejects a name on tool results.
			blocks = append(blocks, wireBlock{
				Type:      core.KindToolResult,
				ToolUseID: p.ToolUseID,
				Content:   p.Content,
				IsError:   p.IsError,
			})
		}
	}
	return blocks
}

func toWireTool(s tool.Schema) wireTool {
	return wireTool{
		Name:        s.Name,
		Description: s.Description,
		InputSchema: s.JSONSchema(),
	}
}

// DecodeResponse converts a Bedrock response body into a normalized reply.
func DecodeResponse(body []byte) (*model.Response, error) {
	var wire wireResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, model.NewFatalError(providerName, 0, fmt.Errorf("unmarshal response: %w", err))
	}

	parts := make([]core.Part, 0, len(wire.Content))
	for _, block := range wire.Content {
		switch block.Type {
		case core.KindText:
			parts = append(parts, core.TextPart{Text: block.Text})
		case core.KindToolUse:
			input, err := model.DecodeInput(block.Input)
			if err != nil {
				return nil, model.NewFatalError(providerName, 0, err)
			}
			id := block.ID
			if id == "" {
				id = core.NewID()
			}
			parts = append(parts, core.ToolUsePart{ID: id, Name: block.Name, Input: input})
		}
	}

	return &model.Response{
		ID:         wire.ID,
		Model:      wire.Model,
		Role:       core.RoleAssistant,
		Content:    core.Segments(parts...),
		StopReason: stopReason(wire.StopReason),
		Usage: &model.TokenUsage{
			InputTokens:  wire.Usage.InputTokens,
			OutputTokens: wire.Usage.OutputTokens,
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
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var (
		throttled   *types.ThrottlingException
		unavailable *types.ServiceUnavailableException
		internal    *types.InternalServerException
		timeout     *types.ModelTimeoutException
		invalid     *types.ValidationException
		denied      *types.AccessDeniedException
		notFound    *types.ResourceNotFoundException
	)
	switch {
	case errors.As(err, &throttled):
		return model.NewTransientError(providerName, 429, err)
	case errors.As(err, &unavailable):
		return model.NewTransientError(providerName, 503, err)
	case errors.As(err, &internal):
		return model.NewTransientError(providerName, 500, err)
	case errors.As(err, &timeout):
		return model.NewTransientError(providerName, 408, err)
	case errors.As(err, &invalid):
		return model.NewFatalError(providerName, 400, err)
	case errors.As(err, &denied):
		return model.NewFatalError(providerName, 403, err)
	case errors.As(err, &notFound):
		return model.NewFatalError(providerName, 404, err)
	}

	var re *awshttp.ResponseError
	if errors.As(err, &re) {
		return model.ClassifyStatus(providerName, re.HTTPStatusCode(), err)
	}
	return model.NewTransientError(providerName, 0, fmt.Errorf("invoke model: %w", err))
}

// Info returns metadata describing this provider.
func (p *Provider) Info() model.Info {
	return model.Info{
		Name:          p.opts.ModelID,
		Provider:      providerName,
		SupportsTools: true,
	}
}
