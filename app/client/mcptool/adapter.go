package mcptool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/samber/oops"
	"github.com/tmc/langchaingo/callbacks"
)

// toolAdapter exposes a remote MCP tool as a langchaingo tool.
type toolAdapter struct {
	client    client.MCPClient
	tool      mcp.Tool
	callbacks callbacks.Handler
}

func (m *toolAdapter) Name() string {
	return m.tool.Name
}

func (m *toolAdapter) Description() string {
	return m.tool.Description
}

// Call takes the tool arguments as a JSON object. Input that is not an
// object is passed as the tool's first required argument.
func (m *toolAdapter) Call(ctx context.Context, input string) (string, error) {
	if m.callbacks != nil {
		m.callbacks.HandleToolStart(ctx, input)
	}

	output, err := m.call(ctx, input)

	if m.callbacks != nil {
		if err != nil {
			m.callbacks.HandleToolError(ctx, err)
		} else {
			m.callbacks.HandleToolEnd(ctx, output)
		}
	}

	return output, err
}

func (m *toolAdapter) call(ctx context.Context, input string) (string, error) {
	callRequest := mcp.CallToolRequest{
		Request: mcp.Request{
			Method: "tools/call",
		},
	}
	callRequest.Params.Name = m.tool.Name

	args, err := m.arguments(input)
	if err != nil {
		return "", err
	}
	callRequest.Params.Arguments = args

	response, err := m.client.CallTool(ctx, callRequest)
	if err != nil {
		return "", fmt.Errorf("MCP tool call failed: %w", err)
	}

	var result strings.Builder
	for _, content := range response.Content {
		if textContent, ok := content.(mcp.TextContent); ok {
			result.WriteString(textContent.Text)
			result.WriteString("\n")
		}
	}
	text := strings.TrimSpace(result.String())

	if response.IsError {
		return "", oops.
			Code("tool_error").
			With("tool", m.tool.Name).
			Errorf("%s", text)
	}

	return text, nil
}

func (m *toolAdapter) arguments(input string) (map[string]any, error) {
	input = strings.TrimSpace(input)

	if strings.HasPrefix(input, "{") {
		var args map[string]any
		if err := json.Unmarshal([]byte(input), &args); err != nil {
			return nil, oops.Code("invalid_input").Wrapf(err, "invalid arguments JSON for %s", m.tool.Name)
		}
		return args, nil
	}

	if len(m.tool.InputSchema.Required) > 0 {
		return map[string]any{m.tool.InputSchema.Required[0]: input}, nil
	}

	return map[string]any{"input": input}, nil
}
