package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type point struct {
	X, Y int
}

func TestValueAttr(t *testing.T) {
	assert.Equal(t, TextAttr("plain"), ValueAttr("plain"))
	assert.Equal(t, TextAttr("42"), ValueAttr(42))
	assert.Equal(t, TextAttr("true"), ValueAttr(true))
	assert.Equal(t, TextAttr(`{"X":1,"Y":2}`), ValueAttr(point{1, 2}))
	assert.Equal(t, TextAttr(`["a","b"]`), ValueAttr([]string{"a", "b"}))
	// Values JSON cannot encode are still kept as text.
	assert.NotEmpty(t, ValueAttr(make(chan int)).Text)
}

func TestMetadata_JSONRoundTrip(t *testing.T) {
	meta := Metadata{
		"stop_reason": TextAttr("tool_use"),
		MetaRequests: RequestsAttr([]Request{{ID: "1", Name: "add", Input: map[string]string{"a": "2", "b": "3"}}}),
		MetaResults:  ResultsAttr([]Result{{ToolUseID: "1", Content: "5"}}),
	}

	b, err := json.Marshal(meta)
	require.NoError(t, err)

	var out Metadata
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, meta, out)
	assert.Equal(t, "add", out.Requests()[0].Name)
	assert.Equal(t, "5", out.Results()[0].Content)
	assert.Equal(t, []string{"requests", "results", "stop_reason"}, out.Keys())
}

func TestAttr_UnmarshalBareValues(t *testing.T) {
	var m Metadata
	require.NoError(t, json.Unmarshal([]byte(`{"a":"x","b":3,"c":{"k":1}}`), &m))
	assert.Equal(t, TextAttr("x"), m["a"])
	assert.Equal(t, TextAttr("3"), m["b"])
	assert.Equal(t, TextAttr(`{"k":1}`), m["c"])

	var a Attr
	assert.Error(t, json.Unmarshal([]byte(`{"kind":"blob"}`), &a))
}

func TestMetadata_CloneIsDeep(t *testing.T) {
	meta := Metadata{MetaRequests: RequestsAttr([]Request{{ID: "1", Input: map[string]string{"a": "1"}}})}
	cp := meta.Clone()
	cp[MetaRequests].Requests[0].Input["a"] = "2"
	assert.Equal(t, "1", meta.Requests()[0].Input["a"])
	assert.Nil(t, Metadata(nil).Clone())
}
