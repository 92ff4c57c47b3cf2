package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
provider: mock
name: Tester
saves_dir: saves
audit_log:
  path: ""
logging:
  level: error
retry:
  base_delay: 0s
  max_jitter: 0s
`

func run(t *testing.T, fsys afero.Fs, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(&globalOptions{fs: fsys})

	var out, errOut bytes.Buffer
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--config", "/etc/bots.yaml"}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func newFs(t *testing.T) afero.Fs {
	t.Helper()
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/etc/bots.yaml", []byte(testConfig), 0o644))
	return fsys
}

// -------------------- Ask Tests --------------------

func TestAskPrintsReply(t *testing.T) {
	out, err := run(t, newFs(t), "", "ask", "hello", "there")
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: hello there\n", out)
}

func TestAskSaveAndLoad(t *testing.T) {
	fsys := newFs(t)
	_, err := run(t, fsys, "", "ask", "--save", "first", "hello")
	require.NoError(t, err)

	ok, err := afero.Exists(fsys, "saves/first.bot")
	require.NoError(t, err)
	assert.True(t, ok)

	out, err := run(t, fsys, "", "--load", "first", "ask", "again")
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: again\n", out)
}

func TestAskUnknownProvider(t *testing.T) {
	_, err := run(t, newFs(t), "", "--provider", "nope", "ask", "hi")
	assert.Error(t, err)
}

// -------------------- Chat Tests --------------------

func TestChatCommands(t *testing.T) {
	fsys := newFs(t)
	stdin := strings.Join([]string{
		"hello",
		"/nodes",
		"/auto 3",
		"/auto x",
		"/save mine",
		"/load",
		"/bogus",
		"/exit",
		"never sent",
	}, "\n")

	out, err := run(t, fsys, stdin, "chat")
	require.NoError(t, err)

	assert.Contains(t, out, "Chat started with Tester")
	assert.Contains(t, out, "Tester: Mock response to: hello")
	assert.Contains(t, out, "System: 2 nodes")
	assert.Contains(t, out, "Automatic tool cycles set to 3")
	assert.Contains(t, out, "usage: /auto <cycles>")
	assert.Contains(t, out, "Conversation saved to mine")
	assert.Contains(t, out, "usage: /load <name>")
	assert.Contains(t, out, "unknown command /bogus")
	assert.NotContains(t, out, "never sent")

	ok, err := afero.Exists(fsys, "saves/mine.bot")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestChatLoadsSavedConversation(t *testing.T) {
	fsys := newFs(t)
	_, err := run(t, fsys, "hello\n/save s1\n/exit\n", "chat")
	require.NoError(t, err)

	out, err := run(t, fsys, "/load s1\n/nodes\n", "chat")
	require.NoError(t, err)
	assert.Contains(t, out, "Conversation loaded from s1")
	assert.Contains(t, out, "System: 2 nodes")
}
