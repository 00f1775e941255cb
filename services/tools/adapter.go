// Package tools turns the MCP servers attached to an agent into callable tool adapters.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agentsphere/agentsphere-api/services/llm"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// Adapter is one named capability exposed by a tool server
type Adapter interface {
	Name() string
	Description() string
	Schema() map[string]any
	Call(ctx context.Context, args map[string]any) (string, error)
}

// Definition converts an adapter into the provider-neutral tool definition
func Definition(a Adapter) llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        a.Name(),
		Description: a.Description(),
		Parameters:  a.Schema(),
	}
}

// mcpAdapter calls one tool over a shared MCP client connection
type mcpAdapter struct {
	conn        *client.Client
	name        string
	description string
	schema      map[string]any
	timeout     time.Duration
}

func newMCPAdapter(conn *client.Client, tool mcp.Tool, timeout time.Duration) (*mcpAdapter, error) {
	if strings.TrimSpace(tool.Name) == "" {
		return nil, errors.New("tool has no name")
	}

	schema, err := inputSchema(tool)
	if err != nil {
		return nil, fmt.Errorf("tool %s: %w", tool.Name, err)
	}

	return &mcpAdapter{
		conn:        conn,
		name:        tool.Name,
		description: tool.Description,
		schema:      schema,
		timeout:     timeout,
	}, nil
}

func (a *mcpAdapter) Name() string           { return a.name }
func (a *mcpAdapter) Description() string    { return a.description }
func (a *mcpAdapter) Schema() map[string]any { return a.schema }

func (a *mcpAdapter) Call(ctx context.Context, args map[string]any) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	result, err := a.conn.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      a.name,
			Arguments: args,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to call tool %s: %w", a.name, err)
	}

	text := contentText(result.Content)
	if result.IsError {
		return "", fmt.Errorf("tool %s returned an error: %s", a.name, text)
	}
	return text, nil
}

// inputSchema extracts the JSON schema of a tool, honouring raw schemas
func inputSchema(tool mcp.Tool) (map[string]any, error) {
	raw, err := json.Marshal(tool)
	if err != nil {
		return nil, err
	}

	var decoded struct {
		InputSchema map[string]any `json:"inputSchema"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}
	if decoded.InputSchema == nil {
		decoded.InputSchema = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return decoded.InputSchema, nil
}

func contentText(content []mcp.Content) string {
	parts := make([]string, 0, len(content))
	for _, c := range content {
		switch v := c.(type) {
		case mcp.TextContent:
			parts = append(parts, v.Text)
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		default:
			if b, err := json.Marshal(v); err == nil {
				parts = append(parts, string(b))
			}
		}
	}
	return strings.Join(parts, "\n")
}
