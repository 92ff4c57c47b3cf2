package tool

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/afero"

	"github.com/benbuzz790/llm-utilities/core"
	"github.com/benbuzz790/llm-utilities/logging"
)

// SnapshotVersion is the version written by Registry.Snapshot.
const SnapshotVersion = 1

// Snapshot is the persisted form of a registry.
type Snapshot struct {
	Version int          `json:"version"`
	Schemas []Schema     `json:"schemas"`
	Tools   []ToolRecord `json:"tools"`

	// Modules maps a script file path to its function declarations so that
	// source fallback can restore helpers alongside the tools.
	Modules map[string]string `json:"modules,omitempty"`

	PendingRequests []core.Request `json:"pending_requests,omitempty"`
	PendingResults  []core.Result  `json:"pending_results,omitempty"`
}

// ToolRecord is the persisted description of one tool.
type ToolRecord struct {
	Name        string  `json:"name"`
	Origin      Origin  `json:"origin"`
	Description string  `json:"description"`
	Parameters  []Param `json:"parameters"`
	Source      string  `json:"source,omitempty"`
	FilePath    string  `json:"file_path,omitempty"`
	FileHash    string  `json:"file_hash,omitempty"`
	Server      string  `json:"server,omitempty"`
}

// UnmarshalJSON decodes a snapshot and puts schema parameters back in the
// order recorded for their tool.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	type plain Snapshot
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = Snapshot(p)

	order := make(map[string]map[string]int, len(s.Tools))
	for _, rec := range s.Tools {
		idx := make(map[string]int, len(rec.Parameters))
		for i, prm := range rec.Parameters {
			idx[prm.Name] = i
		}
		order[rec.Name] = idx
	}
	for i := range s.Schemas {
		idx, ok := order[s.Schemas[i].Name]
		if !ok {
			continue
		}
		params := s.Schemas[i].Parameters
		sort.SliceStable(params, func(a, b int) bool {
			ia, okA := idx[params[a].Name]
			ib, okB := idx[params[b].Name]
			if okA != okB {
				return okA
			}
			return ia < ib
		})
	}
	return nil
}

// Snapshot captures the registered tools and pending buffers.
func (r *Registry) Snapshot() Snapshot {
	tools := r.Tools()
	snap := Snapshot{
		Version: SnapshotVersion,
		Schemas: make([]Schema, 0, len(tools)),
		Tools:   make([]ToolRecord, 0, len(tools)),
	}
	for _, t := range tools {
		p := ProvenanceOf(t)
		if p.Origin == OriginScript && p.FilePath != "" && p.Module != "" {
			if snap.Modules == nil {
				snap.Modules = map[string]string{}
			}
			snap.Modules[p.FilePath] = p.Module
		}
		snap.Schemas = append(snap.Schemas, SchemaOf(t))
		snap.Tools = append(snap.Tools, ToolRecord{
			Name:        t.Name(),
			Origin:      p.Origin,
			Description: t.Description(),
			Parameters:  t.Parameters(),
			Source:      p.Source,
			FilePath:    p.FilePath,
			FileHash:    p.FileHash,
			Server:      p.Server,
		})
	}
	snap.PendingRequests, snap.PendingResults = r.Pending()
	return snap
}

// RestoreOptions configures RestoreRegistry.
type RestoreOptions struct {
	RegistryOptions

	// Natives re-binds Go tools by name. Go callables cannot be persisted, so
	// the host program registers them again at startup.
	Natives []Tool
	// MCPServers provides connected servers for MCP-backed tools.
	MCPServers []*MCPServer
	// AllowSourceFallback evaluates the persisted function source when the
	// origin file is gone or has changed. This executes stored code and is
	// off unless explicitly enabled.
	AllowSourceFallback bool
	// SkipUnavailable drops tools that cannot be resolved instead of failing.
	SkipUnavailable bool
}

// WithNatives re-binds Go tools on restore.
func WithNatives(tools ...Tool) func(o *RestoreOptions) {
	return func(o *RestoreOptions) { o.Natives = append(o.Natives, tools...) }
}

// WithSourceFallback enables evaluation of persisted script source.
func WithSourceFallback(enabled bool) func(o *RestoreOptions) {
	return func(o *RestoreOptions) { o.AllowSourceFallback = enabled }
}

// RestoreRegistry rebuilds a registry from a snapshot.
//
// Script tools are re-extracted from their origin file when it still exists
// with an unchanged hash. Otherwise the persisted source is evaluated only if
// AllowSourceFallback is set. Native and MCP tools are resolved by name from
// the options. Unresolvable tools fail the restore with code UNAVAILABLE
// unless SkipUnavailable is set.
func RestoreRegistry(snap Snapshot, optFns ...func(o *RestoreOptions)) (*Registry, error) {
	opts := RestoreOptions{
		RegistryOptions: RegistryOptions{
			Fs:     afero.NewOsFs(),
			Logger: logging.NoOpLogger{},
		},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if snap.Version != SnapshotVersion {
		return nil, &ToolError{Tool: "registry", Message: fmt.Sprintf("unsupported snapshot version %d", snap.Version), Code: CodeSchema}
	}

	reg := NewRegistry(func(o *RegistryOptions) { *o = opts.RegistryOptions })
	log := reg.logger

	natives := make(map[string]Tool, len(opts.Natives))
	for _, t := range opts.Natives {
		natives[t.Name()] = t
	}
	served := map[string]Tool{}
	for _, srv := range opts.MCPServers {
		for _, t := range srv.Tools() {
			served[srv.Name+"/"+t.Name()] = t
		}
	}
	modules := map[string]*ScriptModule{}
	fallbacks := map[string]*ScriptModule{}

	for _, rec := range snap.Tools {
		var (
			t   Tool
			err error
		)
		switch rec.Origin {
		case OriginScript:
			t, err = restoreScript(reg.fs, rec, snap.Modules[rec.FilePath], modules, fallbacks, opts.AllowSourceFallback, log)
		case OriginMCP:
			if st, ok := served[rec.Server+"/"+rec.Name]; ok {
				t = st
			}
		default:
			if nt, ok := natives[rec.Name]; ok {
				t = nt
			}
		}
		if err == nil && t == nil {
			err = &ToolError{Tool: rec.Name, Message: fmt.Sprintf("%s tool is not bound", rec.Origin), Code: CodeUnavailable}
		}
		if err != nil {
			if opts.SkipUnavailable {
				log.Warn("tool.restore.skipped", "tool", rec.Name, "error", err.Error())
				continue
			}
			return nil, err
		}
		reg.Register(t)
	}

	reg.Restore(cloneRequests(snap.PendingRequests), append([]core.Result(nil), snap.PendingResults...))
	return reg, nil
}

func restoreScript(fsys afero.Fs, rec ToolRecord, moduleSrc string, modules, fallbacks map[string]*ScriptModule, fallback bool, log logging.Logger) (Tool, error) {
	if rec.FilePath != "" {
		m, ok := modules[rec.FilePath]
		if !ok {
			if loaded, err := LoadScript(fsys, rec.FilePath); err == nil {
				m = loaded
				modules[rec.FilePath] = m
			}
		}
		if m != nil && m.Hash == rec.FileHash {
			if t, ok := m.Lookup(rec.Name); ok {
				return t, nil
			}
		}
	}

	if !fallback {
		return nil, &ToolError{
			Tool:    rec.Name,
			Message: fmt.Sprintf("origin file %q is missing or changed and source fallback is disabled", rec.FilePath),
			Code:    CodeUnavailable,
		}
	}

	log.Warn("tool.restore.source_fallback", "tool", rec.Name, "path", rec.FilePath)
	m, ok := fallbacks[rec.FilePath]
	if !ok || rec.FilePath == "" {
		src := moduleSrc
		if src == "" {
			src = rec.Source
		}
		parsed, err := ParseScript(rec.FilePath, []byte(src))
		if err != nil {
			return nil, err
		}
		parsed.Hash = rec.FileHash
		m = parsed
		if rec.FilePath != "" {
			fallbacks[rec.FilePath] = m
		}
	}
	t, ok := m.Lookup(rec.Name)
	if !ok {
		return nil, &ToolError{Tool: rec.Name, Message: "persisted source does not define the tool", Code: CodeUnavailable}
	}
	return t, nil
}
