package main

import (
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/benbuzz790/llm-utilities/bots"
	"github.com/benbuzz790/llm-utilities/config"
	"github.com/benbuzz790/llm-utilities/logging"
)

type globalOptions struct {
	ConfigFile string
	Provider   string
	Model      string
	LogLevel   string
	Load       string

	// fs backs tool files, saves and config; tests swap it out.
	fs afero.Fs
}

func NewRootCmd() *cobra.Command {
	return newRootCmd(&globalOptions{fs: afero.NewOsFs()})
}

func newRootCmd(options *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "bots",
		Short:         "Chat with language models that can call local tools.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&options.ConfigFile, "config", "", "extra config file applied after ~/.bots and ./.bots")
	cmd.PersistentFlags().StringVar(&options.Provider, "provider", "", "provider override (anthropic, openai, bedrock, gemini, mock)")
	cmd.PersistentFlags().StringVar(&options.Model, "model", "", "model override")
	cmd.PersistentFlags().StringVar(&options.LogLevel, "log-level", "", "log level override (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&options.Load, "load", "", "saved agent to resume")

	cmd.AddCommand(NewChatCmd(options))
	cmd.AddCommand(NewAskCmd(options))
	return cmd
}

// loadConfig applies command line overrides on top of the layered config.
func (o *globalOptions) loadConfig() (*config.Config, error) {
	loadOpts := []func(*config.Options){config.WithFs(o.fs)}
	if o.ConfigFile != "" {
		loadOpts = append(loadOpts, config.WithFile(o.ConfigFile))
	}
	cfg, err := config.Load(loadOpts...)
	if err != nil {
		return nil, err
	}
	if o.Provider != "" {
		cfg.Provider = o.Provider
	}
	if o.Model != "" {
		cfg.Model = o.Model
	}
	if o.LogLevel != "" {
		cfg.Logging.Level = o.LogLevel
	}
	return cfg, cfg.Validate()
}

func (o *globalOptions) runtime(cmd *cobra.Command) (*bots.Runtime, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	logger := bots.NewLogger(cfg.Logging, cmd.ErrOrStderr())

	rt, err := bots.New(cmd.Context(), func(opts *bots.Options) {
		opts.Config = cfg
		opts.Fs = o.fs
		opts.Logger = logging.With(logger, "cmd", cmd.Name())
	})
	if err != nil {
		return nil, err
	}
	if o.Load != "" {
		if err := rt.Load(o.Load); err != nil {
			_ = rt.Close()
			return nil, err
		}
	}
	return rt, nil
}
