package mcptool

import (
	"context"
	"fmt"

	"github.com/elliotchance/pie/v2"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/samber/mo"
	"github.com/tmc/langchaingo/callbacks"
	"github.com/tmc/langchaingo/tools"
)

const (
	clientName    = "z3-examples"
	clientVersion = "0.1.0"
)

// Toolkit is a connected MCP client together with the tools it offers.
type Toolkit struct {
	client *client.Client
	tools  []tools.Tool
}

// ConnectStdio starts command as an MCP server subprocess and talks to it
// over its stdin/stdout.
func ConnectStdio(ctx context.Context, command string, args ...string) (*Toolkit, error) {
	c, err := client.NewStdioMCPClient(command, nil, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to create MCP client for %s: %w", command, err)
	}

	return connect(ctx, c)
}

// ConnectInProcess talks to srv without any transport.
func ConnectInProcess(ctx context.Context, srv *server.MCPServer) (*Toolkit, error) {
	c, err := client.NewInProcessClient(srv)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-process MCP client: %w", err)
	}

	if err = c.Start(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to start in-process MCP client: %w", err)
	}

	return connect(ctx, c)
}

func connect(ctx context.Context, c *client.Client) (*Toolkit, error) {
	initRequest := mcp.InitializeRequest{}
	initRequest.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initRequest.Params.ClientInfo = mcp.Implementation{
		Name:    clientName,
		Version: clientVersion,
	}

	if _, err := c.Initialize(ctx, initRequest); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to initialize MCP client: %w", err)
	}

	toolsResponse, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	langchainTools := pie.Map(toolsResponse.Tools, func(t mcp.Tool) tools.Tool {
		return &toolAdapter{client: c, tool: t, callbacks: LogCallbackHandler{}}
	})

	return &Toolkit{client: c, tools: langchainTools}, nil
}

// SetCallbacksHandler replaces the handler notified about every tool call.
func (t *Toolkit) SetCallbacksHandler(h callbacks.Handler) {
	for _, tool := range t.tools {
		tool.(*toolAdapter).callbacks = h
	}
}

func (t *Toolkit) Tools() []tools.Tool {
	return t.tools
}

func (t *Toolkit) Tool(name string) mo.Option[tools.Tool] {
	i := pie.FindFirstUsing(t.tools, func(tool tools.Tool) bool {
		return tool.Name() == name
	})
	if i < 0 {
		return mo.None[tools.Tool]()
	}
	return mo.Some(t.tools[i])
}

func (t *Toolkit) Close() error {
	return t.client.Close()
}
