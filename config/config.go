// Package config loads bot configuration from YAML files.
//
// Configuration is layered: ~/.bots/config.yaml is read first and
// ./.bots/config.yaml overrides it field by field. Credentials are never part
// of the configuration; providers read them from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Dir is the configuration directory below the home and working directories.
const Dir = ".bots"

// FileName is the configuration file name inside Dir.
const FileName = "config.yaml"

// Providers accepted by Config.Provider.
var Providers = []string{"anthropic", "openai", "bedrock", "gemini", "mock"}

// MCPServer describes an MCP server launched over stdio.
type MCPServer struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// Retry mirrors mailbox.RetryPolicy.
type Retry struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxJitter   time.Duration `yaml:"max_jitter"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// RateLimit configures client-side request pacing. Zero disables it.
type RateLimit struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// AuditLog configures the rotating mailbox log. An empty path disables it.
type AuditLog struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Logging selects the log level and format (json or text).
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the complete bot configuration.
type Config struct {
	Provider        string  `yaml:"provider"`
	Model           string  `yaml:"model"`
	Region          string  `yaml:"region"`
	BaseURL         string  `yaml:"base_url"`
	MaxTokens       int     `yaml:"max_tokens"`
	Temperature     float64 `yaml:"temperature"`
	Name            string  `yaml:"name"`
	Role            string  `yaml:"role"`
	RoleDescription string  `yaml:"role_description"`
	SystemMessage   string  `yaml:"system_message"`
	MaxToolCycles   int     `yaml:"max_tool_cycles"`

	ToolFiles  []string    `yaml:"tool_files"`
	MCPServers []MCPServer `yaml:"mcp_servers"`
	SavesDir   string      `yaml:"saves_dir"`

	Retry     Retry     `yaml:"retry"`
	RateLimit RateLimit `yaml:"rate_limit"`
	AuditLog  AuditLog  `yaml:"audit_log"`
	Logging   Logging   `yaml:"logging"`
}

// Default returns the configuration used when no file sets a value.
func Default() *Config {
	return &Config{
		Provider:      "anthropic",
		MaxTokens:     4096,
		Temperature:   0.3,
		Name:          "Claude",
		Role:          "assistant",
		MaxToolCycles: 8,
		SavesDir:      ".",
		Retry: Retry{
			MaxAttempts: 25,
			BaseDelay:   time.Second,
			MaxJitter:   time.Second,
		},
		AuditLog: AuditLog{Path: "data/mailbox_log.txt"},
		Logging:  Logging{Level: "info", Format: "text"},
	}
}

// Options configures Load.
type Options struct {
	Fs afero.Fs
	// HomeDir and WorkDir locate the user and project layers. They default
	// to the process home and working directories.
	HomeDir string
	WorkDir string
	// Files are extra layers applied after the project layer, in order.
	Files []string
}

// WithFs reads configuration through fsys.
func WithFs(fsys afero.Fs) func(o *Options) {
	return func(o *Options) { o.Fs = fsys }
}

// WithDirs overrides the home and working directories.
func WithDirs(home, work string) func(o *Options) {
	return func(o *Options) {
		o.HomeDir = home
		o.WorkDir = work
	}
}

// WithFile adds an explicit configuration file. Unlike the default layers
// it must exist.
func WithFile(path string) func(o *Options) {
	return func(o *Options) { o.Files = append(o.Files, path) }
}

// Load builds the configuration from defaults, the user layer, the project
// layer and any explicit files, then validates it.
func Load(optFns ...func(o *Options)) (*Config, error) {
	opts := Options{Fs: afero.NewOsFs()}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.HomeDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			opts.HomeDir = home
		}
	}
	if opts.WorkDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("could not get working directory: %w", err)
		}
		opts.WorkDir = wd
	}

	cfg := Default()
	layers := []struct {
		path     string
		required bool
	}{
		{filepath.Join(opts.HomeDir, Dir, FileName), false},
		{filepath.Join(opts.WorkDir, Dir, FileName), false},
	}
	if opts.HomeDir == "" {
		layers = layers[1:]
	}
	for _, f := range opts.Files {
		layers = append(layers, struct {
			path     string
			required bool
		}{f, true})
	}

	for _, l := range layers {
		err := loadFromFile(opts.Fs, l.path, cfg)
		if errors.Is(err, fs.ErrNotExist) && !l.required {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("error loading config %s: %w", l.path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode applies YAML data on top of cfg. Fields absent from data keep
// their current value.
func Decode(data []byte, cfg *Config) error {
	return yaml.Unmarshal(data, cfg)
}

func loadFromFile(fsys afero.Fs, path string, cfg *Config) error {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return err
	}
	return Decode(data, cfg)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	known := false
	for _, p := range Providers {
		if c.Provider == p {
			known = true
			break
		}
	}
	switch {
	case !known:
		return fmt.Errorf("config: unknown provider %q", c.Provider)
	case c.MaxTokens < 0:
		return fmt.Errorf("config: max_tokens must not be negative, got %d", c.MaxTokens)
	case c.Temperature < 0 || c.Temperature > 2:
		return fmt.Errorf("config: temperature must be within [0, 2], got %g", c.Temperature)
	case c.MaxToolCycles < 0:
		return fmt.Errorf("config: max_tool_cycles must not be negative, got %d", c.MaxToolCycles)
	case c.Retry.MaxAttempts < 0:
		return fmt.Errorf("config: retry.max_attempts must not be negative, got %d", c.Retry.MaxAttempts)
	case c.Retry.BaseDelay < 0 || c.Retry.MaxJitter < 0 || c.Retry.MaxDelay < 0:
		return errors.New("config: retry delays must not be negative")
	case c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0:
		return errors.New("config: rate_limit must not be negative")
	}
	for i, s := range c.MCPServers {
		if s.Name == "" || s.Command == "" {
			return fmt.Errorf("config: mcp_servers[%d] needs a name and a command", i)
		}
	}
	return nil
}
