package tool

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/grafana/sobek"
	"github.com/grafana/sobek/ast"
	"github.com/spf13/afero"
)

// ScriptModule holds the tools extracted from one JavaScript source file.
//
// Only top-level function declarations are loaded into the module runtime;
// any other top-level statement in the file is never executed. Functions
// whose names start with an underscore stay callable as helpers but are not
// exposed as tools. Each module owns an isolated runtime guarded by a mutex.
type ScriptModule struct {
	Path   string // Origin file
	Hash   string // Hex SHA-256 of the file contents
	Source string // Function declarations loaded into the runtime, helpers included

	mu    sync.Mutex
	vm    *sobek.Runtime
	tools []*ScriptTool
}

// ScriptTool is a single function of a ScriptModule exposed as a Tool.
type ScriptTool struct {
	module      *ScriptModule
	name        string
	description string
	source      string
	params      []Param
}

// HashBytes returns the hex SHA-256 of data, as recorded in tool provenance.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// LoadScript reads and parses a script file from fsys.
func LoadScript(fsys afero.Fs, path string) (*ScriptModule, error) {
	ok, err := afero.Exists(fsys, path)
	if err != nil {
		return nil, wrapToolError(path, CodeFileNotFound, err)
	}
	if !ok {
		return nil, &ToolError{Tool: path, Message: "file does not exist", Code: CodeFileNotFound}
	}
	src, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, wrapToolError(path, CodeFileNotFound, err)
	}
	return ParseScript(path, src)
}

// ParseScript extracts the tools of a script held in memory. The path is only
// used for provenance and error messages.
func ParseScript(path string, src []byte) (*ScriptModule, error) {
	text := string(src)
	prg, err := sobek.Parse(path, text)
	if err != nil {
		return nil, wrapToolError(path, CodeSchema, err)
	}

	m := &ScriptModule{Path: path, Hash: HashBytes(src)}

	var decls []string
	for _, stmt := range prg.Body {
		fd, ok := stmt.(*ast.FunctionDeclaration)
		if !ok || fd.Function == nil || fd.Function.Name == nil {
			continue
		}
		fl := fd.Function
		name := fl.Name.Name.String()
		decls = append(decls, fl.Source)
		if strings.HasPrefix(name, "_") {
			continue
		}

		params, err := scriptParams(fl)
		if err != nil {
			return nil, wrapToolError(name, CodeSchema, err)
		}
		desc := leadingComment(text, int(fl.Function)-1)
		if desc == "" {
			desc = DefaultDescription
		}
		m.tools = append(m.tools, &ScriptTool{
			module:      m,
			name:        name,
			description: desc,
			source:      fl.Source,
			params:      params,
		})
	}

	m.Source = strings.Join(decls, "\n\n")
	if err := m.boot(m.Source); err != nil {
		return nil, wrapToolError(path, CodeSchema, err)
	}
	return m, nil
}

func (m *ScriptModule) boot(src string) error {
	prog, err := sobek.Compile(m.Path, src, false)
	if err != nil {
		return err
	}
	vm := sobek.New()
	vm.SetFieldNameMapper(sobek.TagFieldNameMapper("json", true))
	if _, err := vm.RunProgram(prog); err != nil {
		return err
	}
	m.vm = vm
	return nil
}

func scriptParams(fl *ast.FunctionLiteral) ([]Param, error) {
	if fl.ParameterList == nil {
		return nil, nil
	}
	if fl.ParameterList.Rest != nil {
		return nil, fmt.Errorf("rest parameters are not supported")
	}
	params := make([]Param, 0, len(fl.ParameterList.List))
	for _, b := range fl.ParameterList.List {
		id, ok := b.Target.(*ast.Identifier)
		if !ok {
			return nil, fmt.Errorf("destructured parameters are not supported")
		}
		params = append(params, Param{
			Name:     id.Name.String(),
			Type:     ParamTypeString,
			Required: b.Initializer == nil,
		})
	}
	return params, nil
}

// leadingComment returns the text of the comment block that ends right
// before offset, with comment markers stripped.
func leadingComment(src string, offset int) string {
	if offset < 0 || offset > len(src) {
		return ""
	}
	before := strings.TrimRight(src[:offset], " \t\r\n")

	if strings.HasSuffix(before, "*/") {
		start := strings.LastIndex(before, "/*")
		if start < 0 {
			return ""
		}
		body := strings.TrimSuffix(strings.TrimPrefix(before[start:], "/*"), "*/")
		var lines []string
		for _, l := range strings.Split(body, "\n") {
			l = strings.TrimSpace(l)
			l = strings.TrimSpace(strings.TrimLeft(l, "*"))
			if l != "" {
				lines = append(lines, l)
			}
		}
		return strings.Join(lines, "\n")
	}

	lines := strings.Split(before, "\n")
	var out []string
	for i := len(lines) - 1; i >= 0; i-- {
		l := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(l, "//") {
			break
		}
		out = append(out, strings.TrimSpace(strings.TrimPrefix(l, "//")))
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// Tools returns the exposed tools in declaration order.
func (m *ScriptModule) Tools() []Tool {
	out := make([]Tool, len(m.tools))
	for i, t := range m.tools {
		out[i] = t
	}
	return out
}

// Lookup returns the tool with the given name.
func (m *ScriptModule) Lookup(name string) (*ScriptTool, bool) {
	for _, t := range m.tools {
		if t.name == name {
			return t, true
		}
	}
	return nil, false
}

// Name implements Tool.
func (t *ScriptTool) Name() string { return t.name }

// Description implements Tool.
func (t *ScriptTool) Description() string { return t.description }

// Parameters implements Tool.
func (t *ScriptTool) Parameters() []Param { return t.params }

// Source returns the function source text.
func (t *ScriptTool) Source() string { return t.source }

// Provenance implements Sourced.
func (t *ScriptTool) Provenance() Provenance {
	return Provenance{Origin: OriginScript, Source: t.source, Module: t.module.Source, FilePath: t.module.Path, FileHash: t.module.Hash}
}

// Call runs the function in the module runtime. Arguments are passed
// positionally as strings; omitted optional parameters are undefined so that
// default initializers apply.
func (t *ScriptTool) Call(ctx context.Context, input map[string]string) (string, error) {
	known := make(map[string]struct{}, len(t.params))
	for _, p := range t.params {
		known[p.Name] = struct{}{}
	}
	var unexpected []string
	for k := range input {
		if _, ok := known[k]; !ok {
			unexpected = append(unexpected, k)
		}
	}
	if len(unexpected) > 0 {
		sort.Strings(unexpected)
		return "", &ToolError{Tool: t.name, Message: fmt.Sprintf("unexpected arguments: %s", strings.Join(unexpected, ", ")), Code: CodeValidation}
	}

	m := t.module
	m.mu.Lock()
	defer m.mu.Unlock()

	fn, ok := sobek.AssertFunction(m.vm.Get(t.name))
	if !ok {
		return "", &ToolError{Tool: t.name, Message: "function is not defined in its module", Code: CodeUnavailable}
	}

	args := make([]sobek.Value, len(t.params))
	for i, p := range t.params {
		raw, ok := input[p.Name]
		switch {
		case ok:
			args[i] = m.vm.ToValue(raw)
		case p.Required:
			return "", &ToolError{Tool: t.name, Message: fmt.Sprintf("missing required argument %q", p.Name), Code: CodeValidation}
		default:
			args[i] = sobek.Undefined()
		}
	}

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		select {
		case <-ctx.Done():
			m.vm.Interrupt("execution cancelled")
		case <-done:
		}
	}()

	val, err := fn(sobek.Undefined(), args...)
	close(done)
	<-stopped
	m.vm.ClearInterrupt()
	if err != nil {
		return "", wrapToolError(t.name, CodeExecution, err)
	}

	return exportValue(val)
}

func exportValue(v sobek.Value) (string, error) {
	if v == nil || sobek.IsUndefined(v) || sobek.IsNull(v) {
		return "", nil
	}
	switch x := v.Export().(type) {
	case string:
		return x, nil
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return v.String(), nil
		}
		return string(b), nil
	}
}
