// Copyright Open Responses Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package tools

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"sigs.k8s.io/yaml"

	"github.com/masaic-ai/open-responses/internal/json"
)

// MCPConfig is the server configuration document referenced by
// MCP_SERVER_CONFIG_FILE_PATH. YAML and JSON are both accepted.
type MCPConfig struct {
	MCPServers map[string]MCPServerConfig `json:"mcpServers"`
}

// MCPServerConfig describes one MCP server. Either Command (stdio transport)
// or URL (streamable HTTP transport) is set.
type MCPServerConfig struct {
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	URL     string            `json:"url,omitempty"`
}

// LoadMCPConfig reads and parses the config document at path.
func LoadMCPConfig(path string) (*MCPConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read mcp server config: %w", err)
	}
	cfg := &MCPConfig{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse mcp server config: %w", err)
	}
	return cfg, nil
}

// mcpSession is the subset of *mcp.ClientSession used here, extracted so
// discovery can be tested against a fake.
type mcpSession interface {
	ListTools(ctx context.Context, params *mcp.ListToolsParams) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, params *mcp.CallToolParams) (*mcp.CallToolResult, error)
	Close() error
}

// MCPClient discovers tools from configured MCP servers and registers a
// proxy executor for each.
type MCPClient struct {
	logger   *slog.Logger
	client   *mcp.Client
	sessions []mcpSession
	// connect is swapped in tests.
	connect func(ctx context.Context, server *MCPServerConfig) (mcpSession, error)
}

// NewMCPClient creates an MCPClient.
func NewMCPClient(logger *slog.Logger) *MCPClient {
	c := &MCPClient{
		logger: logger,
		client: mcp.NewClient(&mcp.Implementation{Name: "open-responses", Version: "1.0.0"}, nil),
	}
	c.connect = c.dial
	return c
}

// dial opens a session to one server over the transport its config implies.
func (c *MCPClient) dial(ctx context.Context, server *MCPServerConfig) (mcpSession, error) {
	var transport mcp.Transport
	switch {
	case server.URL != "":
		transport = mcp.NewStreamableClientTransport(server.URL, nil)
	case server.Command != "":
		cmd := exec.CommandContext(ctx, server.Command, server.Args...) // #nosec G204 -- operator-supplied config
		cmd.Env = os.Environ()
		for k, v := range server.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		transport = mcp.NewCommandTransport(cmd)
	default:
		return nil, fmt.Errorf("mcp server config needs a command or a url")
	}
	return c.client.Connect(ctx, transport)
}

// DiscoverAndRegister connects to every configured server, lists its tools
// and registers a proxy executor per tool in the registry. A server that
// cannot be reached is logged and skipped; tool discovery must not prevent
// startup.
func (c *MCPClient) DiscoverAndRegister(ctx context.Context, cfg *MCPConfig, registry *Registry) {
	for name, server := range cfg.MCPServers {
		server := server
		session, err := c.connect(ctx, &server)
		if err != nil {
			c.logger.Error("cannot connect to mcp server",
				slog.String("server", name), slog.String("error", err.Error()))
			continue
		}
		c.sessions = append(c.sessions, session)

		result, err := session.ListTools(ctx, &mcp.ListToolsParams{})
		if err != nil {
			c.logger.Error("cannot list mcp tools",
				slog.String("server", name), slog.String("error", err.Error()))
			continue
		}
		for _, tool := range result.Tools {
			toolName := tool.Name
			if registry.Has(toolName) {
				toolName = name + "_" + tool.Name
			}
			registry.Register(toolName, &mcpToolExecutor{session: session, tool: tool.Name})
			c.logger.Info("discovered mcp tool",
				slog.String("server", name), slog.String("tool", toolName))
		}
	}
}

// Close terminates all open sessions.
func (c *MCPClient) Close() error {
	var firstErr error
	for _, s := range c.sessions {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// mcpToolExecutor proxies one tool call to its MCP session.
type mcpToolExecutor struct {
	session mcpSession
	tool    string
}

// Execute implements [Executor]. The model's argument JSON is decoded into
// the generic map form the MCP call expects; text content blocks of the
// result are concatenated into the tool output.
func (e *mcpToolExecutor) Execute(ctx context.Context, arguments string) (string, error) {
	args := map[string]any{}
	if arguments != "" {
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			return "", fmt.Errorf("malformed tool arguments: %w", err)
		}
	}
	result, err := e.session.CallTool(ctx, &mcp.CallToolParams{Name: e.tool, Arguments: args})
	if err != nil {
		return "", err
	}
	var out string
	for _, content := range result.Content {
		if text, ok := content.(*mcp.TextContent); ok {
			out += text.Text
		}
	}
	if result.IsError {
		return "", fmt.Errorf("mcp tool returned an error: %s", out)
	}
	return out, nil
}
