package bots

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benbuzz790/llm-utilities/config"
	tu "github.com/benbuzz790/llm-utilities/internal/testutil"
	"github.com/benbuzz790/llm-utilities/logging"
	"github.com/benbuzz790/llm-utilities/model"
	"github.com/benbuzz790/llm-utilities/session"
)

const doubleScript = `
// Doubles a number.
function double(x) {
  return String(Number(x) * 2);
}
`

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Provider = "mock"
	cfg.AuditLog.Path = ""
	cfg.Retry.BaseDelay = 0
	cfg.Retry.MaxJitter = 0
	return cfg
}

func TestNewWiresAgent(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "tools/math.js", []byte(doubleScript), 0o644))

	cfg := testConfig()
	cfg.Name = "Helper"
	cfg.SystemMessage = "be brief"
	cfg.ToolFiles = []string{"tools/*.js"}

	p := model.NewMockProvider("m").EnqueueText("hi")
	rt, err := New(context.Background(), func(o *Options) {
		o.Config = cfg
		o.Provider = p
		o.Fs = fsys
		o.Logger = logging.NoOpLogger{}
		o.Natives = append(o.Natives, tu.AddTool())
	})
	require.NoError(t, err)
	defer rt.Close()

	assert.Equal(t, "Helper", rt.Agent.Name())
	assert.ElementsMatch(t, []string{"add", "double"}, rt.Agent.Registry().Names())

	reply, err := rt.Agent.Respond(context.Background(), "hello", "")
	require.NoError(t, err)
	assert.Equal(t, "hi", reply)

	req := p.Requests()[0]
	assert.Equal(t, "be brief", req.System)
	assert.Len(t, req.Tools, 2)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Provider = "nope"
	_, err := New(context.Background(), func(o *Options) { o.Config = cfg })
	assert.Error(t, err)
}

func TestNewMissingToolFiles(t *testing.T) {
	cfg := testConfig()
	cfg.ToolFiles = []string{"tools/*.js"}
	_, err := New(context.Background(), func(o *Options) {
		o.Config = cfg
		o.Fs = afero.NewMemMapFs()
		o.Logger = logging.NoOpLogger{}
	})
	assert.Error(t, err)
}

func TestSaveAndLoad(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "tools/math.js", []byte(doubleScript), 0o644))

	cfg := testConfig()
	cfg.ToolFiles = []string{"tools/*.js"}
	cfg.SavesDir = "saves"

	p := model.NewMockProvider("m").EnqueueText("hi there").EnqueueText("again")
	rt, err := New(context.Background(), func(o *Options) {
		o.Config = cfg
		o.Provider = p
		o.Fs = fsys
		o.Logger = logging.NoOpLogger{}
		o.Natives = append(o.Natives, tu.AddTool())
		o.Metrics = prometheus.NewRegistry()
	})
	require.NoError(t, err)
	defer rt.Close()

	_, err = rt.Agent.Respond(context.Background(), "hello", "")
	require.NoError(t, err)

	name, err := rt.Save("")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(name, "Claude@"))

	names, err := session.NewFileStore(fsys, "saves").List()
	require.NoError(t, err)
	assert.Equal(t, []string{name}, names)

	before := rt.Agent
	require.NoError(t, rt.Load(name))
	assert.NotSame(t, before, rt.Agent)
	assert.Equal(t, before.Current().Linearize(), rt.Agent.Current().Linearize())
	assert.ElementsMatch(t, []string{"add", "double"}, rt.Agent.Registry().Names())

	reply, err := rt.Agent.Respond(context.Background(), "more", "")
	require.NoError(t, err)
	assert.Equal(t, "again", reply)
}

func TestAuditLogIsOpened(t *testing.T) {
	cfg := testConfig()
	cfg.AuditLog.Path = filepath.Join(t.TempDir(), "data", "mailbox_log.txt")

	rt, err := New(context.Background(), func(o *Options) {
		o.Config = cfg
		o.Fs = afero.NewOsFs()
		o.Logger = logging.NoOpLogger{}
	})
	require.NoError(t, err)

	_, err = rt.Agent.Respond(context.Background(), "hello", "")
	require.NoError(t, err)
	require.NoError(t, rt.Close())

	data, err := afero.ReadFile(afero.NewOsFs(), cfg.AuditLog.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "OUTGOING:")
	assert.Contains(t, string(data), "INCOMING:")
}

func TestAuditLogFollowsFs(t *testing.T) {
	fsys := afero.NewMemMapFs()
	cfg := testConfig()
	cfg.AuditLog.Path = "logs/mailbox_log.txt"

	rt, err := New(context.Background(), func(o *Options) {
		o.Config = cfg
		o.Fs = fsys
		o.Logger = logging.NoOpLogger{}
	})
	require.NoError(t, err)

	_, err = rt.Agent.Respond(context.Background(), "hello", "")
	require.NoError(t, err)
	require.NoError(t, rt.Close())

	data, err := afero.ReadFile(fsys, cfg.AuditLog.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "INCOMING:")
}

func TestNewProvider(t *testing.T) {
	for _, name := range []string{"anthropic", "openai", "mock"} {
		cfg := testConfig()
		cfg.Provider = name
		p, err := NewProvider(context.Background(), cfg)
		require.NoError(t, err, name)
		assert.Equal(t, name, p.Info().Provider)
	}

	cfg := testConfig()
	cfg.Provider = "anthropic"
	cfg.Model = "claude-sonnet-4-20250514"
	p, err := NewProvider(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet-4-20250514", p.Info().Name)

	cfg = testConfig()
	cfg.Provider = "gemini"
	t.Setenv(GeminiKeyEnv, "")
	_, err = NewProvider(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(config.Logging{Level: "debug", Format: "json"}, &buf)
	log.Debug("mailbox.send.retry", "attempt", 2)
	assert.Contains(t, buf.String(), `"msg":"mailbox.send.retry"`)
	assert.Contains(t, buf.String(), `"attempt":2`)
}
