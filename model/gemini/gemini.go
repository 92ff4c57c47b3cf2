// Package gemini provides a Provider for the Google Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/benbuzz790/llm-utilities/core"
	"github.com/benbuzz790/llm-utilities/model"
	"github.com/benbuzz790/llm-utilities/tool"
)

const providerName = "gemini"

// Options configure the Gemini provider.
type Options struct {
	Model  string
	APIKey string
}

// sendFunc performs one chat exchange: the prior history plus the parts of
// the newest turn.
type sendFunc func(ctx context.Context, cfg turnConfig, history []*genai.Content, parts []genai.Part) (*genai.GenerateContentResponse, error)

type turnConfig struct {
	model       string
	system      string
	temperature float32
	maxTokens   int32
	tools       []*genai.Tool
}

// Provider wraps the Gemini generative model API.
type Provider struct {
	client *genai.Client
	send   sendFunc
	opts   Options
}

// New creates a Gemini client authenticated with the configured API key.
func New(ctx context.Context, optFns ...func(o *Options)) (*Provider, error) {
	opts := defaultOptions(optFns)
	if opts.APIKey == "" {
		return nil, errors.New("gemini: API key not set")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(opts.APIKey))
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	p := &Provider{client: client, opts: opts}
	p.send = p.chat
	return p, nil
}

func defaultOptions(optFns []func(o *Options)) Options {
	opts := Options{
		Model: "gemini-1.5-pro",
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return opts
}

// Close releases the underlying client.
func (p *Provider) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}

func (p *Provider) chat(ctx context.Context, cfg turnConfig, history []*genai.Content, parts []genai.Part) (*genai.GenerateContentResponse, error) {
	// A model handle per call keeps concurrent sends from sharing settings.
	gm := p.client.GenerativeModel(cfg.model)
	gm.SetTemperature(cfg.temperature)
	gm.SetMaxOutputTokens(cfg.maxTokens)
	gm.Tools = cfg.tools
	if cfg.system != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(cfg.system)}}
	}

	cs := gm.StartChat()
	cs.History = history
	return cs.SendMessage(ctx, parts...)
}

// Send implements model.Provider.
func (p *Provider) Send(ctx context.Context, req *model.Request) (*model.Response, error) {
	system, msgs := model.SplitSystem(req)

	contents := BuildContents(msgs)
	if len(contents) == 0 {
		return nil, model.NewFatalError(providerName, 0, errors.New("no messages to send"))
	}

	cfg := turnConfig{
		model:       p.opts.Model,
		system:      system,
		temperature: float32(req.Temperature),
		maxTokens:   int32(req.MaxTokensOrDefault()),
		tools:       BuildTools(req.Tools),
	}
	if req.Model != "" {
		cfg.model = req.Model
	}

	last := contents[len(contents)-1]
	resp, err := p.send(ctx, cfg, contents[:len(contents)-1], last.Parts)
	if err != nil {
		return nil, classify(err)
	}

	return normalize(cfg.model, resp)
}

// BuildContents converts canonical messages into Gemini contents. Assistant
// turns use the "model" role and tool results become function responses.
func BuildContents(msgs []core.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		role := "user"
		if m.Role == core.RoleAssistant {
			role = "model"
		}

		var parts []genai.Part
		for _, part := range m.Content.AsSegments() {
			switch v := part.(type) {
			case core.TextPart:
				if v.Text != "" {
					parts = append(parts, genai.Text(v.Text))
				}
			case core.ToolUsePart:
				args := make(map[string]any, len(v.Input))
				for k, val := range v.Input {
					args[k] = val
				}
				parts = append(parts, genai.FunctionCall{Name: v.Name, Args: args})
			case core.ToolResultPart:
				resp := map[string]any{"content": v.Content}
				if v.IsError {
					resp["error"] = true
				}
				parts = append(parts, genai.FunctionResponse{Name: v.Name, Response: resp})
			}
		}
		if len(parts) == 0 {
			continue
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}
	return contents
}

// BuildTools converts canonical schemas into Gemini function declarations.
func BuildTools(schemas []tool.Schema) []*genai.Tool {
	if len(schemas) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(schemas))
	for _, s := range schemas {
		params := &genai.Schema{
			Type:       genai.TypeObject,
			Properties: make(map[string]*genai.Schema, len(s.Parameters)),
			Required:   s.Required(),
		}
		for _, p := range s.Parameters {
			params.Properties[p.Name] = paramSchema(p)
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        s.Name,
			Description: s.Description,
			Parameters:  params,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func paramSchema(p tool.Param) *genai.Schema {
	s := &genai.Schema{Description: p.Description}
	switch p.Type {
	case "integer":
		s.Type = genai.TypeInteger
	case "number":
		s.Type = genai.TypeNumber
	case "boolean":
		s.Type = genai.TypeBoolean
	case "array":
		s.Type = genai.TypeArray
		s.Items = &genai.Schema{Type: genai.TypeString}
	case "object":
		s.Type = genai.TypeObject
	default:
		s.Type = genai.TypeString
	}
	return s
}

func normalize(modelName string, resp *genai.GenerateContentResponse) (*model.Response, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, model.NewTransientError(providerName, 0, errors.New("empty response"))
	}

	cand := resp.Candidates[0]
	var (
		parts   []core.Part
		sawCall bool
	)
	for _, part := range cand.Content.Parts {
		switch v := part.(type) {
		case genai.Text:
			parts = append(parts, core.TextPart{Text: string(v)})
		case genai.FunctionCall:
			sawCall = true
			parts = append(parts, core.ToolUsePart{
				ID:    core.NewID(),
				Name:  v.Name,
				Input: model.StringifyInput(v.Args),
			})
		}
	}

	out := &model.Response{
		Model:      modelName,
		Role:       core.RoleAssistant,
		Content:    core.Segments(parts...),
		StopReason: stopReason(cand.FinishReason, sawCall),
	}
	if resp.UsageMetadata != nil {
		out.Usage = &model.TokenUsage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return out, nil
}

func stopReason(fr genai.FinishReason, sawCall bool) model.StopReason {
	if sawCall {
		return model.StopToolUse
	}
	switch fr {
	case genai.FinishReasonStop:
		return model.StopEndTurn
	case genai.FinishReasonMaxTokens:
		return model.StopMaxTokens
	case genai.FinishReasonSafety, genai.FinishReasonRecitation:
		return model.StopSequence
	default:
		return model.StopUnknown
	}
}

func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		pe := model.ClassifyStatus(providerName, gerr.Code, err)
		pe.RetryAfter = model.ParseRetryAfter(gerr.Header.Get("Retry-After"))
		return pe
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.ResourceExhausted:
			return model.NewTransientError(providerName, http.StatusTooManyRequests, err)
		case codes.Unavailable, codes.Internal, codes.Aborted:
			return model.NewTransientError(providerName, http.StatusServiceUnavailable, err)
		case codes.Unknown:
		default:
			return model.NewFatalError(providerName, 0, err)
		}
	}

	return model.NewTransientError(providerName, 0, fmt.Errorf("gemini request: %w", err))
}

// Info returns metadata describing this provider.
func (p *Provider) Info() model.Info {
	return model.Info{
		Name:          p.opts.Model,
		Provider:      providerName,
		SupportsTools: true,
	}
}
