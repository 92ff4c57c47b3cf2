package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benbuzz790/llm-utilities/core"
)

func recordingTool(name string, calls *[]string, fail bool) Tool {
	return NewFunctionTool(name, "records calls", []Param{{Name: "x", Type: ParamTypeString}}, func(_ context.Context, in map[string]string) (string, error) {
		*calls = append(*calls, name+":"+in["x"])
		if fail {
			return "", errors.New("failed on purpose")
		}
		return name + "=" + in["x"], nil
	})
}

func TestRegistry_RegisterReplacesByName(t *testing.T) {
	var calls []string
	reg := NewRegistry()
	reg.Register(recordingTool("a", &calls, false), recordingTool("b", &calls, false))
	reg.Register(recordingTool("a", &calls, true))

	assert.Equal(t, []string{"a", "b"}, reg.Names())
	assert.Equal(t, 2, reg.Len())

	_, _, err := reg.Dispatch(context.Background(), []core.Request{{ID: "1", Name: "a"}})
	assert.ErrorIs(t, err, ErrToolExecution)
}

func TestRegistry_DispatchAddScenario(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.AddFunc(AddNumbers, WithName("add"))
	require.NoError(t, err)

	reqs, results, err := reg.Dispatch(context.Background(), []core.Request{
		{ID: "1", Name: "add", Input: map[string]string{"a": "2", "b": "3"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []core.Result{{ToolUseID: "1", Name: "add", Content: "5"}}, results)
	assert.Len(t, reqs, 1)

	pendingReqs, pendingRes := reg.Pending()
	assert.Len(t, pendingReqs, 1)
	assert.Equal(t, results, pendingRes)

	takenReqs, takenRes := reg.Take()
	assert.Len(t, takenReqs, 1)
	assert.Len(t, takenRes, 1)

	pendingReqs, pendingRes = reg.Pending()
	assert.Empty(t, pendingReqs)
	assert.Empty(t, pendingRes)

	reg.Restore(takenReqs, takenRes)
	pendingReqs, _ = reg.Pending()
	assert.Len(t, pendingReqs, 1)
}

func TestRegistry_DispatchRunsInOrderAndAborts(t *testing.T) {
	var calls []string
	reg := NewRegistry()
	reg.Register(
		recordingTool("first", &calls, false),
		recordingTool("broken", &calls, true),
		recordingTool("last", &calls, false),
	)

	_, _, err := reg.Dispatch(context.Background(), []core.Request{
		{ID: "1", Name: "first", Input: map[string]string{"x": "1"}},
		{ID: "2", Name: "broken", Input: map[string]string{"x": "2"}},
		{ID: "3", Name: "last", Input: map[string]string{"x": "3"}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrToolExecution)
	assert.Equal(t, []string{"first:1", "broken:2"}, calls)

	reqs, res := reg.Pending()
	assert.Empty(t, reqs)
	assert.Empty(t, res)
}

func TestRegistry_DispatchUnknownTool(t *testing.T) {
	reg := NewRegistry()
	reg.Restore([]core.Request{{ID: "old"}}, []core.Result{{ToolUseID: "old"}})

	_, _, err := reg.Dispatch(context.Background(), []core.Request{{ID: "1", Name: "nope"}})
	assert.ErrorIs(t, err, ErrUnknownTool)

	reqs, _ := reg.Pending()
	assert.Empty(t, reqs, "dispatch clears stale buffers first")
}

func TestRegistry_DispatchRecoversPanics(t *testing.T) {
	reg := NewRegistry()
	reg.Register(panicTool{})
	_, _, err := reg.Dispatch(context.Background(), []core.Request{{ID: "1", Name: "panic"}})
	assert.ErrorIs(t, err, ErrToolExecution)
}

type panicTool struct{}

func (panicTool) Name() string        { return "panic" }
func (panicTool) Description() string { return "" }
func (panicTool) Parameters() []Param { return nil }
func (panicTool) Call(context.Context, map[string]string) (string, error) {
	panic("boom")
}

func TestRegistry_AddFileAndGlob(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/tools/a.js", []byte("function alpha(x) { return x; }"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/tools/nested/b.js", []byte("function beta() { return 'b'; }"), 0o644))

	reg := NewRegistry(func(o *RegistryOptions) { o.Fs = fs })

	names, err := reg.AddFile("/tools/a.js")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha"}, names)

	names, err = reg.AddFilesGlob("/tools/**/*.js")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alpha", "beta"}, names)
	assert.ElementsMatch(t, []string{"alpha", "beta"}, reg.Names())

	_, err = reg.AddFile("/tools/missing.js")
	assert.ErrorIs(t, err, ErrFileNotFound)

	_, err = reg.AddFilesGlob("/none/*.js")
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestRegistry_Schemas(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.AddFunc(AddNumbers)
	require.NoError(t, err)

	schemas := reg.Schemas()
	require.Len(t, schemas, 1)
	assert.Equal(t, "add_numbers", schemas[0].Name)
	assert.Equal(t, []string{"a", "b"}, schemas[0].Required())
}

func TestRegistry_Metrics(t *testing.T) {
	promReg := prometheus.NewRegistry()
	reg := NewRegistry(func(o *RegistryOptions) { o.Metrics = promReg })
	_, err := reg.AddFunc(AddNumbers, WithName("add"))
	require.NoError(t, err)

	_, _, err = reg.Dispatch(context.Background(), []core.Request{{ID: "1", Name: "add", Input: map[string]string{"a": "1", "b": "1"}}})
	require.NoError(t, err)
	_, _, _ = reg.Dispatch(context.Background(), []core.Request{{ID: "2", Name: "add"}})

	assert.Equal(t, 1.0, testutil.ToFloat64(reg.metrics.calls.WithLabelValues("add", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.metrics.calls.WithLabelValues("add", "error")))

	// A second registry on the same prometheus registry shares the collectors.
	other := NewRegistry(func(o *RegistryOptions) { o.Metrics = promReg })
	assert.Same(t, reg.metrics.calls, other.metrics.calls)
}
