// Package tool implements the tool calling subsystem: local callables the
// model may invoke mid-turn, described by a canonical parameter schema and
// executed by a Registry in the order the provider requested them.
package tool

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/benbuzz790/llm-utilities/internal/util"
)

// Tool defines a capability the model may request.
//
// Every parameter is a string at the boundary; implementations coerce input
// values themselves. Call must be safe to invoke from the goroutine driving
// the owning agent; the registry never calls tools concurrently.
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description provided to the model.
	Description() string

	// Parameters returns the declared parameters in order.
	Parameters() []Param

	// Call executes the tool with the request input mapping.
	Call(ctx context.Context, input map[string]string) (string, error)
}

// Origin identifies how a tool was created, for persistence.
type Origin string

const (
	OriginNative Origin = "native" // Go callable, re-bound by the host program
	OriginScript Origin = "script" // Function extracted from a script file
	OriginMCP    Origin = "mcp"    // Tool served by an MCP server
)

// Provenance records where a tool came from.
type Provenance struct {
	Origin   Origin
	Source   string // Function source text (script tools)
	Module   string // Every function declaration of the origin module (script tools)
	FilePath string // Origin file (script tools)
	FileHash string // Hex SHA-256 of the origin file at load time
	Server   string // MCP server name
}

// Sourced is implemented by tools that can report their provenance.
type Sourced interface {
	Provenance() Provenance
}

// ProvenanceOf returns the provenance of t, defaulting to native.
func ProvenanceOf(t Tool) Provenance {
	if s, ok := t.(Sourced); ok {
		return s.Provenance()
	}
	return Provenance{Origin: OriginNative}
}

// ParamTypeString is the only parameter type exposed at the schema boundary.
const ParamTypeString = "string"

// Param describes one tool parameter.
type Param struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Description string `json:"description,omitempty"`
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// Schema is the canonical, provider-neutral description of a tool. Provider
// adapters render it into their own wire shapes.
type Schema struct {
	Name        string
	Description string
	Parameters  []Param
}

// SchemaOf builds the canonical schema of t.
func SchemaOf(t Tool) Schema {
	params := append([]Param(nil), t.Parameters()...)
	for i := range params {
		if params[i].Type == "" {
			params[i].Type = ParamTypeString
		}
	}
	return Schema{Name: t.Name(), Description: t.Description(), Parameters: params}
}

type paramSpec struct {
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Description string `json:"description,omitempty"`
}

// MarshalJSON renders {name, description, parameters: {name -> {type, required}}}.
func (s Schema) MarshalJSON() ([]byte, error) {
	params := make(map[string]paramSpec, len(s.Parameters))
	for _, p := range s.Parameters {
		params[p.Name] = paramSpec{Type: p.Type, Required: p.Required, Description: p.Description}
	}
	return json.Marshal(struct {
		Name        string               `json:"name"`
		Description string               `json:"description"`
		Parameters  map[string]paramSpec `json:"parameters"`
	}{s.Name, s.Description, params})
}

// UnmarshalJSON reads the canonical form written by MarshalJSON. The
// parameter map carries no order, so parameters come back sorted by name;
// Snapshot restores declaration order from its tool records.
func (s *Schema) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name        string               `json:"name"`
		Description string               `json:"description"`
		Parameters  map[string]paramSpec `json:"parameters"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	params := make([]Param, 0, len(raw.Parameters))
	for name, spec := range raw.Parameters {
		params = append(params, Param{Name: name, Type: spec.Type, Required: spec.Required, Description: spec.Description})
	}
	sort.Slice(params, func(i, j int) bool { return params[i].Name < params[j].Name })
	*s = Schema{Name: raw.Name, Description: raw.Description, Parameters: params}
	return nil
}

// Required returns the names of the required parameters in order.
func (s Schema) Required() []string {
	req := []string{}
	for _, p := range s.Parameters {
		if p.Required {
			req = append(req, p.Name)
		}
	}
	return req
}

// Properties returns the JSON schema property map of the parameters.
func (s Schema) Properties() map[string]any {
	props := make(map[string]any, len(s.Parameters))
	for _, p := range s.Parameters {
		prop := map[string]any{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		props[p.Name] = prop
	}
	return props
}

// JSONSchema renders the parameters as a JSON schema object.
func (s Schema) JSONSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": s.Properties(),
		"required":   s.Required(),
	}
}
