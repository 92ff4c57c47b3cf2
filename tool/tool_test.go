package tool

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -------------------- Schema Tests --------------------

func TestSchema_CanonicalJSON(t *testing.T) {
	s := Schema{
		Name:        "add",
		Description: "Add two numbers",
		Parameters: []Param{
			{Name: "a", Type: ParamTypeString, Required: true},
			{Name: "b", Type: ParamTypeString, Required: false},
		},
	}

	b, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"name": "add",
		"description": "Add two numbers",
		"parameters": {
			"a": {"type": "string", "required": true},
			"b": {"type": "string", "required": false}
		}
	}`, string(b))

	var decoded Schema
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, s, decoded)

	js := s.JSONSchema()
	assert.Equal(t, "object", js["type"])
	assert.Equal(t, []string{"a"}, js["required"])
	assert.Contains(t, js["properties"], "b")
}

// -------------------- FunctionTool Tests --------------------

type AddArgs struct {
	A int `json:"a" jsonschema:"description=First addend"`
	B int `json:"b" description:"Second addend"`
}

func AddNumbers(_ context.Context, args AddArgs) (int, error) {
	return args.A + args.B, nil
}

type greetArgs struct {
	Name     string  `json:"name"`
	Greeting *string `json:"greeting"`
	Shout    bool    `json:"shout,omitempty"`
}

func greet(args greetArgs) (string, error) {
	g := "Hello"
	if args.Greeting != nil {
		g = *args.Greeting
	}
	out := g + ", " + args.Name
	if args.Shout {
		out += "!"
	}
	return out, nil
}

func TestNewFunc_DerivesSchema(t *testing.T) {
	tl, err := NewFunc(AddNumbers, WithDescription("Add two integers"))
	require.NoError(t, err)

	assert.Equal(t, "add_numbers", tl.Name())
	assert.Equal(t, "Add two integers", tl.Description())
	assert.Equal(t, []Param{
		{Name: "a", Type: ParamTypeString, Required: true, Description: "First addend"},
		{Name: "b", Type: ParamTypeString, Required: true, Description: "Second addend"},
	}, tl.Parameters())

	out, err := tl.Call(context.Background(), map[string]string{"a": "2", "b": "3"})
	require.NoError(t, err)
	assert.Equal(t, "5", out)
}

func TestNewFunc_OptionalParameters(t *testing.T) {
	tl, err := NewFunc(greet)
	require.NoError(t, err)

	assert.Equal(t, DefaultDescription, tl.Description())
	assert.Equal(t, []string{"name"}, SchemaOf(tl).Required())

	out, err := tl.Call(context.Background(), map[string]string{"name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "Hello, Ada", out)

	out, err = tl.Call(context.Background(), map[string]string{"name": "Ada", "greeting": "Hi", "shout": "true"})
	require.NoError(t, err)
	assert.Equal(t, "Hi, Ada!", out)
}

func TestNewFunc_RequiresNameForLiterals(t *testing.T) {
	_, err := NewFunc(func(args AddArgs) (int, error) { return 0, nil })
	assert.ErrorIs(t, err, ErrSchema)

	tl, err := NewFunc(func(args AddArgs) (int, error) { return args.A * args.B, nil }, WithName("mul"))
	require.NoError(t, err)
	out, err := tl.Call(context.Background(), map[string]string{"a": "4", "b": "5"})
	require.NoError(t, err)
	assert.Equal(t, "20", out)
}

func TestNewFunc_RejectsUnsupportedShapes(t *testing.T) {
	cases := map[string]any{
		"not a function":   42,
		"no error result":  func(AddArgs) int { return 0 },
		"non-struct input": func(int) (int, error) { return 0, nil },
		"too many inputs":  func(context.Context, AddArgs, AddArgs) (int, error) { return 0, nil },
	}
	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewFunc(fn, WithName("x"))
			var te *ToolError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, CodeSchema, te.Code)
		})
	}
}

func TestNewFunc_NoArguments(t *testing.T) {
	tl, err := NewFunc(func(ctx context.Context) (time.Duration, error) { return time.Second, nil }, WithName("tick"))
	require.NoError(t, err)
	assert.Empty(t, tl.Parameters())

	out, err := tl.Call(context.Background(), map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, "1s", out)

	_, err = tl.Call(context.Background(), map[string]string{"x": "1"})
	assert.ErrorIs(t, err, ErrToolExecution)
}

func TestFunctionTool_ValidationError(t *testing.T) {
	tl, err := NewFunc(AddNumbers)
	require.NoError(t, err)

	_, err = tl.Call(context.Background(), map[string]string{"a": "2"})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeValidation, toolErr.Code)
	assert.ErrorIs(t, err, ErrToolExecution)

	_, err = tl.Call(context.Background(), map[string]string{"a": "two", "b": "3"})
	require.ErrorAs(t, err, &toolErr)
	assert.Contains(t, toolErr.Message, "expected integer")
}

func TestFunctionTool_ExecutionError(t *testing.T) {
	execTool := NewFunctionTool("fail", "Fails", nil, func(context.Context, map[string]string) (string, error) {
		return "", errors.New("boom")
	})
	_, err := execTool.Call(context.Background(), map[string]string{})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeExecution, toolErr.Code)
	assert.Equal(t, "boom", toolErr.Message)
}

func TestFunctionTool_RecoversPanics(t *testing.T) {
	panicky := NewFunctionTool("panicky", "", nil, func(context.Context, map[string]string) (string, error) {
		panic("kaboom")
	})
	_, err := panicky.Call(context.Background(), nil)
	assert.ErrorIs(t, err, ErrToolExecution)
	assert.ErrorContains(t, err, "kaboom")
}

func TestFunctionTool_PassesThroughToolErrors(t *testing.T) {
	custom := NewFunctionTool("custom", "", nil, func(context.Context, map[string]string) (string, error) {
		return "", NewToolError("custom", "quota", "QUOTA")
	})
	_, err := custom.Call(context.Background(), nil)
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "QUOTA", toolErr.Code)
}

func TestRenderResult(t *testing.T) {
	out, err := renderResult(map[string]int{"x": 1})
	require.NoError(t, err)
	assert.Equal(t, `{"x":1}`, out)

	out, err = renderResult(nil)
	require.NoError(t, err)
	assert.Equal(t, "", out)
}
