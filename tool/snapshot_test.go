package tool

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benbuzz790/llm-utilities/core"
)

const echoScript = "// Echo the text back.\nfunction echo(text) { return text; }\n"

func snapshotFixture(t *testing.T) (afero.Fs, Snapshot) {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/tools/echo.js", []byte(echoScript), 0o644))

	reg := NewRegistry(func(o *RegistryOptions) { o.Fs = fs })
	_, err := reg.AddFile("/tools/echo.js")
	require.NoError(t, err)
	_, err = reg.AddFunc(AddNumbers, WithName("add"))
	require.NoError(t, err)
	_, _, err = reg.Dispatch(context.Background(), []core.Request{{ID: "1", Name: "echo", Input: map[string]string{"text": "hi"}}})
	require.NoError(t, err)

	snap := reg.Snapshot()

	// Snapshots survive JSON.
	data, err := json.Marshal(snap)
	require.NoError(t, err)
	var decoded Snapshot
	require.NoError(t, json.Unmarshal(data, &decoded))
	return fs, decoded
}

func TestSnapshot_Records(t *testing.T) {
	_, snap := snapshotFixture(t)

	require.Len(t, snap.Tools, 2)
	echo := snap.Tools[0]
	assert.Equal(t, OriginScript, echo.Origin)
	assert.Equal(t, "/tools/echo.js", echo.FilePath)
	assert.Equal(t, HashBytes([]byte(echoScript)), echo.FileHash)
	assert.Contains(t, echo.Source, "function echo(text)")
	assert.Equal(t, OriginNative, snap.Tools[1].Origin)
	require.Len(t, snap.Schemas, 2)
	for i, rec := range snap.Tools {
		assert.Equal(t, rec.Name, snap.Schemas[i].Name)
		assert.Equal(t, rec.Parameters, snap.Schemas[i].Parameters)
	}
	assert.Len(t, snap.PendingRequests, 1)
	assert.Len(t, snap.PendingResults, 1)
}

func TestSnapshot_SchemaParameterOrder(t *testing.T) {
	params := []Param{
		{Name: "zeta", Type: ParamTypeString, Required: true},
		{Name: "alpha", Type: ParamTypeString},
	}
	snap := Snapshot{
		Version: SnapshotVersion,
		Schemas: []Schema{{Name: "pick", Description: "Pick one", Parameters: params}},
		Tools:   []ToolRecord{{Name: "pick", Origin: OriginNative, Description: "Pick one", Parameters: params}},
	}

	data, err := json.Marshal(snap)
	require.NoError(t, err)
	var decoded Snapshot
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, params, decoded.Schemas[0].Parameters)
}

func TestRestoreRegistry_PrefersOriginFile(t *testing.T) {
	fs, snap := snapshotFixture(t)
	add := MustFunc(AddNumbers, WithName("add"))

	reg, err := RestoreRegistry(snap,
		func(o *RestoreOptions) { o.Fs = fs },
		WithNatives(add),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"echo", "add"}, reg.Names())

	echo, _ := reg.Get("echo")
	out, err := echo.Call(context.Background(), map[string]string{"text": "again"})
	require.NoError(t, err)
	assert.Equal(t, "again", out)

	reqs, res := reg.Pending()
	assert.Len(t, reqs, 1)
	assert.Equal(t, "hi", res[0].Content)
}

func TestRestoreRegistry_ChangedFile(t *testing.T) {
	fs, snap := snapshotFixture(t)
	require.NoError(t, afero.WriteFile(fs, "/tools/echo.js", []byte("function echo(text) { return 'tampered'; }"), 0o644))
	add := MustFunc(AddNumbers, WithName("add"))

	t.Run("fallback disabled", func(t *testing.T) {
		_, err := RestoreRegistry(snap, func(o *RestoreOptions) { o.Fs = fs }, WithNatives(add))
		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("fallback enabled", func(t *testing.T) {
		reg, err := RestoreRegistry(snap, func(o *RestoreOptions) { o.Fs = fs }, WithNatives(add), WithSourceFallback(true))
		require.NoError(t, err)

		echo, _ := reg.Get("echo")
		out, err := echo.Call(context.Background(), map[string]string{"text": "stored"})
		require.NoError(t, err)
		assert.Equal(t, "stored", out)
		assert.Equal(t, snap.Tools[0].FileHash, ProvenanceOf(echo).FileHash)
	})
}

func TestRestoreRegistry_FallbackKeepsHelpers(t *testing.T) {
	const src = "function _twice(text) { return text + text; }\n\n" +
		"// Doubles the text.\nfunction double(text) { return _twice(text); }\n\n" +
		"// Doubles the text twice.\nfunction quadruple(text) { return double(double(text)); }\n"
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/tools/text.js", []byte(src), 0o644))

	reg := NewRegistry(func(o *RegistryOptions) { o.Fs = fs })
	_, err := reg.AddFile("/tools/text.js")
	require.NoError(t, err)

	data, err := json.Marshal(reg.Snapshot())
	require.NoError(t, err)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Contains(t, snap.Modules["/tools/text.js"], "function _twice(text)")

	require.NoError(t, fs.Remove("/tools/text.js"))
	restored, err := RestoreRegistry(snap, func(o *RestoreOptions) { o.Fs = fs }, WithSourceFallback(true))
	require.NoError(t, err)
	assert.Equal(t, []string{"double", "quadruple"}, restored.Names())

	double, _ := restored.Get("double")
	out, err := double.Call(context.Background(), map[string]string{"text": "ab"})
	require.NoError(t, err)
	assert.Equal(t, "abab", out)

	quadruple, _ := restored.Get("quadruple")
	out, err = quadruple.Call(context.Background(), map[string]string{"text": "ab"})
	require.NoError(t, err)
	assert.Equal(t, "abababab", out)
}

func TestRestoreRegistry_UnboundNative(t *testing.T) {
	fs, snap := snapshotFixture(t)

	_, err := RestoreRegistry(snap, func(o *RestoreOptions) { o.Fs = fs })
	assert.ErrorIs(t, err, ErrUnavailable)

	reg, err := RestoreRegistry(snap, func(o *RestoreOptions) {
		o.Fs = fs
		o.SkipUnavailable = true
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"echo"}, reg.Names())
}

func TestRestoreRegistry_RejectsUnknownVersion(t *testing.T) {
	_, err := RestoreRegistry(Snapshot{Version: 7})
	assert.ErrorIs(t, err, ErrSchema)
}
