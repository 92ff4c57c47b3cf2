package tool

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"

	"github.com/benbuzz790/llm-utilities/core"
	"github.com/benbuzz790/llm-utilities/logging"
)

// Registry maps tool names to tools, executes tool requests and buffers the
// requests and results of the last dispatch until they are merged into the
// next outbound message.
type Registry struct {
	mu    sync.Mutex
	tools map[string]Tool
	order []string

	pendingRequests []core.Request
	pendingResults  []core.Result

	fs      afero.Fs
	logger  logging.Logger
	metrics *toolMetrics
}

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	// Fs is used to read tool source files. Defaults to the OS filesystem.
	Fs afero.Fs
	// Logger receives dispatch diagnostics.
	Logger logging.Logger
	// Metrics, when set, receives tool call counters and latencies.
	Metrics prometheus.Registerer
}

// NewRegistry creates an empty registry.
func NewRegistry(optFns ...func(o *RegistryOptions)) *Registry {
	opts := RegistryOptions{
		Fs:     afero.NewOsFs(),
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Registry{
		tools:   make(map[string]Tool),
		fs:      opts.Fs,
		logger:  opts.Logger,
		metrics: newToolMetrics(opts.Metrics),
	}
}

// Fs returns the filesystem used for tool files.
func (r *Registry) Fs() afero.Fs { return r.fs }

// Register adds tools, replacing any tool already registered under the same
// name. Registration order is kept for schema listing.
func (r *Registry) Register(tools ...Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range tools {
		r.registerLocked(t)
	}
}

func (r *Registry) registerLocked(t Tool) {
	name := t.Name()
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	} else {
		r.logger.Debug("tool.register.replaced", "tool", name)
	}
	r.tools[name] = t
}

// AddFunc registers a Go function, see NewFunc.
func (r *Registry) AddFunc(fn any, optFns ...func(o *FuncOptions)) (Tool, error) {
	t, err := NewFunc(fn, optFns...)
	if err != nil {
		return nil, err
	}
	r.Register(t)
	return t, nil
}

// AddFile registers every exposed function of a script file. Nothing is
// registered when the file cannot be loaded.
func (r *Registry) AddFile(path string) ([]string, error) {
	m, err := LoadScript(r.fs, path)
	if err != nil {
		return nil, err
	}
	tools := m.Tools()
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name()
	}
	r.Register(tools...)
	r.logger.Info("tool.register.file", "path", path, "tools", names)
	return names, nil
}

// AddFilesGlob registers the script files matching a doublestar pattern such
// as "tools/**/*.js". All files are loaded before any tool is registered.
func (r *Registry) AddFilesGlob(pattern string) ([]string, error) {
	base, pat := doublestar.SplitPattern(filepath.ToSlash(pattern))
	root := r.fs
	if base != "." {
		root = afero.NewBasePathFs(r.fs, base)
	}
	fsys := afero.NewIOFS(root)

	matches, err := doublestar.Glob(fsys, pat)
	if err != nil {
		return nil, wrapToolError(pattern, CodeSchema, err)
	}
	if len(matches) == 0 {
		return nil, &ToolError{Tool: pattern, Message: "no files match pattern", Code: CodeFileNotFound}
	}

	var (
		modules []*ScriptModule
		names   []string
	)
	for _, m := range matches {
		mod, err := LoadScript(r.fs, path.Join(base, m))
		if err != nil {
			return nil, err
		}
		modules = append(modules, mod)
	}
	for _, mod := range modules {
		for _, t := range mod.Tools() {
			names = append(names, t.Name())
		}
		r.Register(mod.Tools()...)
	}
	return names, nil
}

// AddMCP registers the tools of an MCP server.
func (r *Registry) AddMCP(srv *MCPServer) []string {
	tools := srv.Tools()
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name()
	}
	r.Register(tools...)
	return names
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// Tools returns the registered tools in registration order.
func (r *Registry) Tools() []Tool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Tool, len(r.order))
	for i, n := range r.order {
		out[i] = r.tools[n]
	}
	return out
}

// Schemas returns the canonical schema of every tool in registration order.
func (r *Registry) Schemas() []Schema {
	tools := r.Tools()
	out := make([]Schema, len(tools))
	for i, t := range tools {
		out[i] = SchemaOf(t)
	}
	return out
}

// Dispatch executes requests strictly in order. The first unknown tool or
// failing call aborts the batch and leaves the pending buffers empty. On
// success the requests and their results are returned and also kept as
// pending for the next outbound message.
func (r *Registry) Dispatch(ctx context.Context, requests []core.Request) ([]core.Request, []core.Result, error) {
	r.Clear()

	reqs := make([]core.Request, len(requests))
	results := make([]core.Result, 0, len(requests))
	for i, req := range requests {
		reqs[i] = core.CloneRequest(req)

		t, ok := r.Get(req.Name)
		if !ok {
			r.logger.Error("tool.dispatch.unknown", "tool", req.Name, "id", req.ID)
			r.metrics.observe(req.Name, 0, ErrUnknownTool)
			return nil, nil, &ToolError{Tool: req.Name, Message: fmt.Sprintf("no tool registered under %q", req.Name), Code: CodeUnknownTool}
		}

		start := time.Now()
		out, err := callTool(ctx, t, reqs[i].Input)
		dur := time.Since(start)
		r.metrics.observe(req.Name, dur, err)
		logging.RecordToolCall(r.logger, req.Name, dur, err)
		if err != nil {
			r.logger.Error("tool.dispatch.error", "tool", req.Name, "id", req.ID, "error", err.Error())
			return nil, nil, asExecutionError(req.Name, err)
		}
		r.logger.Info("tool.dispatch.success", "tool", req.Name, "id", req.ID, "duration_ms", dur.Milliseconds())

		results = append(results, core.Result{ToolUseID: req.ID, Name: req.Name, Content: out})
	}

	r.mu.Lock()
	r.pendingRequests = cloneRequests(reqs)
	r.pendingResults = append([]core.Result(nil), results...)
	r.mu.Unlock()

	return reqs, results, nil
}

func callTool(ctx context.Context, t Tool, input map[string]string) (out string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &ToolError{Tool: t.Name(), Message: fmt.Sprintf("panic: %v", rec), Code: CodeExecution}
		}
	}()
	if input == nil {
		input = map[string]string{}
	}
	return t.Call(ctx, input)
}

// asExecutionError keeps ToolErrors that already classify as execution
// failures and wraps everything else.
func asExecutionError(name string, err error) error {
	if te, ok := err.(*ToolError); ok && te.Is(ErrToolExecution) {
		return te
	}
	return wrapToolError(name, CodeExecution, err)
}

// Pending returns copies of the pending buffers without clearing them.
func (r *Registry) Pending() ([]core.Request, []core.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneRequests(r.pendingRequests), append([]core.Result(nil), r.pendingResults...)
}

// Take returns the pending buffers and clears them.
func (r *Registry) Take() ([]core.Request, []core.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reqs, res := r.pendingRequests, r.pendingResults
	r.pendingRequests, r.pendingResults = nil, nil
	return reqs, res
}

// Restore puts previously taken buffers back, for a send that did not go
// through.
func (r *Registry) Restore(reqs []core.Request, res []core.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pendingRequests, r.pendingResults = reqs, res
}

// Clear empties the pending buffers.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pendingRequests, r.pendingResults = nil, nil
}

func cloneRequests(reqs []core.Request) []core.Request {
	if reqs == nil {
		return nil
	}
	out := make([]core.Request, len(reqs))
	for i, r := range reqs {
		out[i] = core.CloneRequest(r)
	}
	return out
}
