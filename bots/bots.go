// Package bots wires configuration, providers, tools and persistence into a
// ready-to-use agent. Most programs interact with this package by:
//  1. Loading a config.Config (or starting from config.Default)
//  2. Calling New to obtain a Runtime holding the agent
//  3. Calling Respond / RespondAuto on Runtime.Agent, Save and Load as needed
//
// The façade delegates all conversation work to the agent, mailbox and tool
// packages and only owns the resources it opens (audit log, MCP servers,
// provider clients), released by Close.
package bots

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"golang.org/x/time/rate"

	"github.com/benbuzz790/llm-utilities/agent"
	"github.com/benbuzz790/llm-utilities/config"
	"github.com/benbuzz790/llm-utilities/logging"
	"github.com/benbuzz790/llm-utilities/mailbox"
	"github.com/benbuzz790/llm-utilities/model"
	"github.com/benbuzz790/llm-utilities/model/anthropic"
	"github.com/benbuzz790/llm-utilities/model/bedrock"
	"github.com/benbuzz790/llm-utilities/model/gemini"
	"github.com/benbuzz790/llm-utilities/model/openai"
	"github.com/benbuzz790/llm-utilities/session"
	"github.com/benbuzz790/llm-utilities/tool"
)

// GeminiKeyEnv holds the Gemini API key. The Anthropic and OpenAI clients
// read ANTHROPIC_API_KEY and OPENAI_API_KEY themselves; Bedrock uses the AWS
// credential chain.
const GeminiKeyEnv = "GEMINI_API_KEY"

// Options configures New.
type Options struct {
	Config *config.Config

	// Provider replaces the provider named by the config.
	Provider model.Provider
	// Natives are Go tools registered on new agents and re-bound on Load.
	Natives []tool.Tool
	// Fs is used for tool files and the file session store.
	Fs afero.Fs
	// Store holds saved agents. Defaults to a FileStore in Config.SavesDir.
	Store session.Store

	// Logger (defaults to one built from Config.Logging if nil)
	Logger  logging.Logger
	Metrics prometheus.Registerer
}

// Runtime is a configured agent together with the resources it uses.
type Runtime struct {
	Agent   *agent.Agent
	Mailbox *mailbox.Mailbox
	Store   session.Store

	cfg     *config.Config
	opts    Options
	mcp     []*tool.MCPServer
	closers []io.Closer
	log     logging.Logger
}

// New builds a runtime from the options. Tool files and MCP servers named by
// the config are registered before the agent is returned.
func New(ctx context.Context, optFns ...func(o *Options)) (*Runtime, error) {
	opts := Options{
		Fs: afero.NewOsFs(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = NewLogger(cfg.Logging, os.Stderr)
	}
	if opts.Store == nil {
		opts.Store = session.NewFileStore(opts.Fs, cfg.SavesDir)
	}

	rt := &Runtime{Store: opts.Store, cfg: cfg, opts: opts, log: opts.Logger}

	provider := opts.Provider
	if provider == nil {
		p, err := NewProvider(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if c, ok := p.(io.Closer); ok {
			rt.closers = append(rt.closers, c)
		}
		provider = p
	}

	mb, err := rt.newMailbox(provider)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.Mailbox = mb

	reg := tool.NewRegistry(func(o *tool.RegistryOptions) {
		o.Fs = opts.Fs
		o.Logger = logging.ForComponent(opts.Logger, "tool")
		o.Metrics = opts.Metrics
	})
	reg.Register(opts.Natives...)
	for _, pattern := range cfg.ToolFiles {
		if _, err := reg.AddFilesGlob(pattern); err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("register tool files %s: %w", pattern, err)
		}
	}
	for _, s := range cfg.MCPServers {
		srv, err := tool.ConnectMCP(ctx, s.Name, s.Command, s.Args...)
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
		rt.mcp = append(rt.mcp, srv)
		rt.closers = append(rt.closers, srv)
		reg.AddMCP(srv)
	}

	rt.Agent = agent.New(mb,
		agent.WithName(cfg.Name),
		agent.WithModel(cfg.Model),
		agent.WithMaxTokens(cfg.MaxTokens),
		agent.WithTemperature(cfg.Temperature),
		agent.WithRole(cfg.Role, cfg.RoleDescription),
		agent.WithSystemMessage(cfg.SystemMessage),
		agent.WithMaxToolCycles(cfg.MaxToolCycles),
		agent.WithRegistry(reg),
		agent.WithLogger(logging.ForComponent(opts.Logger, "agent")),
	)
	return rt, nil
}

func (rt *Runtime) newMailbox(p model.Provider) (*mailbox.Mailbox, error) {
	cfg := rt.cfg
	mbOpts := []func(o *mailbox.Options){
		mailbox.WithLogger(logging.ForComponent(rt.log, "mailbox")),
		mailbox.WithRetryPolicy(mailbox.RetryPolicy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			MaxJitter:   cfg.Retry.MaxJitter,
			MaxDelay:    cfg.Retry.MaxDelay,
		}),
	}
	if rt.opts.Metrics != nil {
		mbOpts = append(mbOpts, mailbox.WithMetrics(rt.opts.Metrics))
	}
	if rl := cfg.RateLimit; rl.RequestsPerSecond > 0 {
		burst := rl.Burst
		if burst <= 0 {
			burst = 1
		}
		mbOpts = append(mbOpts, mailbox.WithRateLimiter(rate.NewLimiter(rate.Limit(rl.RequestsPerSecond), burst)))
	}
	if a := cfg.AuditLog; a.Path != "" {
		audit, err := mailbox.OpenAuditLog(mailbox.AuditConfig{
			Fs:         rt.opts.Fs,
			Path:       a.Path,
			MaxSizeMB:  a.MaxSizeMB,
			MaxBackups: a.MaxBackups,
			MaxAgeDays: a.MaxAgeDays,
			Compress:   a.Compress,
		})
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, audit)
		mbOpts = append(mbOpts, mailbox.WithAuditLog(audit))
	}
	return mailbox.New(p, mbOpts...), nil
}

// NewProvider creates the provider named by cfg.Provider. Credentials are
// taken from the environment.
func NewProvider(ctx context.Context, cfg *config.Config) (model.Provider, error) {
	switch cfg.Provider {
	case "anthropic":
		return anthropic.New(func(o *anthropic.Options) {
			if cfg.Model != "" {
				o.Model = sdk.Model(cfg.Model)
			}
			o.BaseURL = cfg.BaseURL
		}), nil
	case "openai":
		return openai.New(func(o *openai.Options) {
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
			o.BaseURL = cfg.BaseURL
		}), nil
	case "bedrock":
		p, err := bedrock.New(ctx, func(o *bedrock.Options) {
			if cfg.Model != "" {
				o.ModelID = cfg.Model
			}
			o.Region = cfg.Region
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	case "gemini":
		p, err := gemini.New(ctx, func(o *gemini.Options) {
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
			o.APIKey = os.Getenv(GeminiKeyEnv)
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	case "mock":
		name := cfg.Model
		if name == "" {
			name = "mock"
		}
		return model.NewMockProvider(name), nil
	}
	return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
}

// NewLogger builds the structured logger described by cfg, writing to w.
func NewLogger(cfg config.Logging, w io.Writer) logging.Logger {
	lc := logging.DefaultLoggerConfig()
	lc.Level = logging.ParseLevel(cfg.Level)
	if cfg.Format != "" {
		lc.Format = cfg.Format
	}
	lc.Output = w
	lc.AddSource = false
	lc.Component = "bots"
	return logging.NewLogger(lc)
}

// Config returns the configuration the runtime was built from.
func (rt *Runtime) Config() *config.Config { return rt.cfg }

// Save stores the current agent under name; see agent.Agent.Save.
func (rt *Runtime) Save(name string) (string, error) {
	return rt.Agent.Save(rt.Store, name)
}

// Load replaces the runtime's agent with a saved one. Native tools and
// connected MCP servers are re-bound by name; script tools are re-read from
// their files.
func (rt *Runtime) Load(name string) error {
	a, err := agent.Load(rt.Store, name, rt.Mailbox, func(o *tool.RestoreOptions) {
		o.Fs = rt.opts.Fs
		o.Logger = rt.log
		o.Metrics = rt.opts.Metrics
		o.Natives = append(o.Natives, rt.opts.Natives...)
		o.MCPServers = append(o.MCPServers, rt.mcp...)
	})
	if err != nil {
		return err
	}
	rt.Agent = a
	return nil
}

// Close releases the audit log, MCP servers and provider clients.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
