package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/benbuzz790/llm-utilities/internal/util"
)

// DefaultDescription is used when a tool is registered without one.
const DefaultDescription = "No description provided."

// FunctionTool exposes a Go function as a Tool.
//
// Responsibilities:
//   - Holds the parameter list advertised to the model
//   - Invokes the wrapped function with the request input
//   - Normalizes error handling so callers receive *ToolError with consistent codes:
//     VALIDATION_ERROR  -> argument mismatch
//     EXECUTION_ERROR   -> underlying function returned an error or panicked
//     (custom codes preserved if the function returns *ToolError directly)
//
// A FunctionTool has no internal mutable state after construction and is safe
// for concurrent use.
type FunctionTool struct {
	name        string
	description string
	params      []Param
	fn          func(ctx context.Context, input map[string]string) (string, error)
}

// NewFunctionTool constructs a FunctionTool from an explicit parameter list
// and an implementation that receives the raw string input.
//
// Example:
//
//	echo := NewFunctionTool(
//	  "echo",
//	  "Repeat the given text",
//	  []Param{{Name: "text", Type: ParamTypeString, Required: true}},
//	  func(ctx context.Context, in map[string]string) (string, error) {
//	    return in["text"], nil
//	  },
//	)
func NewFunctionTool(
	name, description string,
	params []Param,
	fn func(ctx context.Context, input map[string]string) (string, error),
) *FunctionTool {
	if description == "" {
		description = DefaultDescription
	}
	return &FunctionTool{
		name:        name,
		description: description,
		params:      params,
		fn:          fn,
	}
}

// FuncOptions configures NewFunc.
type FuncOptions struct {
	// Name overrides the name derived from the function symbol.
	Name string
	// Description is shown to the model.
	Description string
}

// WithName sets the tool name.
func WithName(name string) func(o *FuncOptions) {
	return func(o *FuncOptions) { o.Name = name }
}

// WithDescription sets the tool description.
func WithDescription(desc string) func(o *FuncOptions) {
	return func(o *FuncOptions) { o.Description = desc }
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// NewFunc derives a tool from a Go function by reflection. Accepted shapes:
//
//	func(ctx context.Context, args T) (R, error)
//	func(args T) (R, error)
//	func(ctx context.Context) (R, error)
//	func() (R, error)
//
// where T is a struct (or pointer to struct) whose exported fields are the
// tool parameters. Field names follow json tags; descriptions come from
// `jsonschema:"description=..."` or `description:"..."` tags. A field is
// required unless it is a pointer or tagged omitempty. Every parameter is
// advertised as a string and coerced into the field type on call.
//
// The name defaults to the snake_case function symbol. Function literals have
// no usable symbol and need WithName. Results are rendered as the string
// itself, via fmt.Stringer, or as JSON.
func NewFunc(fn any, optFns ...func(o *FuncOptions)) (*FunctionTool, error) {
	opts := FuncOptions{}
	for _, apply := range optFns {
		apply(&opts)
	}

	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return nil, schemaError(opts.Name, fmt.Errorf("expected a function, got %T", fn))
	}
	ft := v.Type()

	name := opts.Name
	if name == "" {
		if sym := util.FuncName(fn); sym != "" {
			name = util.SnakeCase(sym)
		}
	}
	if name == "" {
		return nil, schemaError("<anonymous>", errors.New("cannot derive a name from a function literal; use WithName"))
	}

	if ft.NumOut() != 2 || !ft.Out(1).Implements(errorType) {
		return nil, schemaError(name, fmt.Errorf("function must return (result, error), got %s", ft))
	}

	takesCtx := ft.NumIn() > 0 && ft.In(0) == contextType
	argIdx := 0
	if takesCtx {
		argIdx = 1
	}
	if ft.NumIn() > argIdx+1 || ft.IsVariadic() {
		return nil, schemaError(name, fmt.Errorf("function must take at most a context and one argument struct, got %s", ft))
	}

	var (
		argType reflect.Type
		fields  []util.Field
	)
	if ft.NumIn() == argIdx+1 {
		argType = ft.In(argIdx)
		var err error
		if fields, err = util.StructFields(argType); err != nil {
			return nil, schemaError(name, err)
		}
	}

	params := make([]Param, len(fields))
	for i, f := range fields {
		params[i] = Param{Name: f.Name, Type: ParamTypeString, Required: f.Required, Description: f.Description}
	}

	call := func(ctx context.Context, input map[string]string) (out string, err error) {
		in := make([]reflect.Value, 0, 2)
		if takesCtx {
			in = append(in, reflect.ValueOf(ctx))
		}
		if argType != nil {
			arg, err := util.DecodeArgs(argType, fields, input)
			if err != nil {
				return "", err
			}
			in = append(in, arg)
		} else if len(input) > 0 {
			for k, val := range input {
				return "", &ValidationError{Field: k, Value: val, Message: "unexpected argument"}
			}
		}

		res := v.Call(in)
		if errV := res[1]; !errV.IsNil() {
			return "", errV.Interface().(error)
		}
		return renderResult(res[0].Interface())
	}

	return NewFunctionTool(name, opts.Description, params, call), nil
}

// MustFunc is like NewFunc but panics on error. Intended for package-level
// tool declarations.
func MustFunc(fn any, optFns ...func(o *FuncOptions)) *FunctionTool {
	t, err := NewFunc(fn, optFns...)
	if err != nil {
		panic(err)
	}
	return t
}

func renderResult(v any) (string, error) {
	switch r := v.(type) {
	case nil:
		return "", nil
	case string:
		return r, nil
	case fmt.Stringer:
		return r.String(), nil
	case []byte:
		return string(r), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v), nil
	}
	return string(b), nil
}

func schemaError(name string, err error) *ToolError {
	return wrapToolError(name, CodeSchema, err)
}

// Name returns the unique tool name.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the natural language description exposed to models.
func (t *FunctionTool) Description() string { return t.description }

// Parameters returns the declared parameters.
func (t *FunctionTool) Parameters() []Param { return t.params }

// Call invokes the underlying function. Panics are recovered and reported as
// execution errors.
//
// Error Semantics:
//
//	*ToolError (returned directly)  -> forwarded unchanged
//	argument mismatch               -> *ToolError{Code: "VALIDATION_ERROR"}
//	other error or panic            -> *ToolError{Code: "EXECUTION_ERROR"}
func (t *FunctionTool) Call(ctx context.Context, input map[string]string) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = ""
			err = &ToolError{Tool: t.name, Message: fmt.Sprintf("panic: %v", r), Code: CodeExecution}
		}
	}()

	result, err = t.fn(ctx, input)
	if err != nil {
		var toolErr *ToolError
		if errors.As(err, &toolErr) {
			return "", toolErr
		}
		var vErr *ValidationError
		if errors.As(err, &vErr) {
			return "", &ToolError{Tool: t.name, Message: vErr.Error(), Code: CodeValidation, Details: vErr, Err: err}
		}
		return "", wrapToolError(t.name, CodeExecution, err)
	}
	return result, nil
}
