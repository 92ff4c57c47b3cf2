package tool

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// MCPSession is the subset of an MCP client session used by MCP tools.
// *mcpsdk.ClientSession satisfies it.
type MCPSession interface {
	ListTools(ctx context.Context, params *mcpsdk.ListToolsParams) (*mcpsdk.ListToolsResult, error)
	CallTool(ctx context.Context, params *mcpsdk.CallToolParams) (*mcpsdk.CallToolResult, error)
	Close() error
}

// MCPServer manages the connection to a single MCP server and the tools it
// exposes.
type MCPServer struct {
	Name string

	cmd   *exec.Cmd
	conn  MCPSession
	tools []*MCPTool
}

// ConnectMCP starts an MCP server subprocess, connects to it over stdio and
// discovers its tools.
func ConnectMCP(ctx context.Context, name, command string, args ...string) (*MCPServer, error) {
	cmd := exec.Command(command, args...)
	cmd.Stderr = os.Stderr

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "llm-utilities", Version: "v1.0.0"}, nil)
	conn, err := client.Connect(ctx, mcpsdk.NewCommandTransport(cmd))
	if err != nil {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		return nil, wrapToolError(name, CodeUnavailable, fmt.Errorf("connect to MCP server: %w", err))
	}

	srv, err := NewMCPServer(ctx, name, conn)
	if err != nil {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		return nil, err
	}
	srv.cmd = cmd
	return srv, nil
}

// NewMCPServer discovers the tools of an already connected session.
func NewMCPServer(ctx context.Context, name string, conn MCPSession) (*MCPServer, error) {
	srv := &MCPServer{Name: name, conn: conn}

	params := &mcpsdk.ListToolsParams{}
	for {
		list, err := conn.ListTools(ctx, params)
		if err != nil {
			return nil, wrapToolError(name, CodeUnavailable, fmt.Errorf("list tools: %w", err))
		}
		for _, t := range list.Tools {
			if t == nil {
				continue
			}
			srv.tools = append(srv.tools, &MCPTool{
				server:      srv,
				name:        t.Name,
				description: t.Description,
				params:      mcpParams(t),
			})
		}
		if list.NextCursor == "" {
			break
		}
		params.Cursor = list.NextCursor
	}
	return srv, nil
}

func mcpParams(t *mcpsdk.Tool) []Param {
	if t.InputSchema == nil {
		return nil
	}
	required := make(map[string]bool, len(t.InputSchema.Required))
	for _, r := range t.InputSchema.Required {
		required[r] = true
	}
	names := make([]string, 0, len(t.InputSchema.Properties))
	for n := range t.InputSchema.Properties {
		names = append(names, n)
	}
	sort.Strings(names)

	params := make([]Param, 0, len(names))
	for _, n := range names {
		p := Param{Name: n, Type: ParamTypeString, Required: required[n]}
		if prop := t.InputSchema.Properties[n]; prop != nil {
			p.Description = prop.Description
		}
		params = append(params, p)
	}
	return params
}

// Tools returns the discovered tools.
func (s *MCPServer) Tools() []Tool {
	out := make([]Tool, len(s.tools))
	for i, t := range s.tools {
		out[i] = t
	}
	return out
}

// Close ends the session and terminates the server subprocess, if any.
func (s *MCPServer) Close() error {
	var err error
	if s.conn != nil {
		err = s.conn.Close()
	}
	if s.cmd != nil && s.cmd.Process != nil {
		if kerr := s.cmd.Process.Kill(); err == nil {
			err = kerr
		}
	}
	return err
}

// MCPTool is a tool served by an MCP server.
type MCPTool struct {
	server      *MCPServer
	name        string
	description string
	params      []Param
}

// Name implements Tool.
func (t *MCPTool) Name() string { return t.name }

// Description implements Tool.
func (t *MCPTool) Description() string {
	if t.description == "" {
		return DefaultDescription
	}
	return t.description
}

// Parameters implements Tool.
func (t *MCPTool) Parameters() []Param { return t.params }

// Provenance implements Sourced.
func (t *MCPTool) Provenance() Provenance {
	return Provenance{Origin: OriginMCP, Server: t.server.Name}
}

// Call forwards the request to the server and concatenates the text content
// of the result.
func (t *MCPTool) Call(ctx context.Context, input map[string]string) (string, error) {
	args := make(map[string]any, len(input))
	for k, v := range input {
		args[k] = v
	}
	res, err := t.server.conn.CallTool(ctx, &mcpsdk.CallToolParams{Name: t.name, Arguments: args})
	if err != nil {
		return "", wrapToolError(t.name, CodeExecution, err)
	}

	var sb strings.Builder
	for _, c := range res.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	if res.IsError {
		return "", &ToolError{Tool: t.name, Message: sb.String(), Code: CodeExecution}
	}
	return sb.String(), nil
}
