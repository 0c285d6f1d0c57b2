// Package mcpserver provides the Model Context Protocol (MCP) server implementation.
//
// The mcpserver package implements an MCP-compliant server that exposes tools
// for code execution. It uses the mark3labs/mcp-go library to handle the
// protocol details and provides the run_code and run_message tools.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/isdmx/runbox/codeblock"
	"github.com/isdmx/runbox/config"
	"github.com/isdmx/runbox/language"
	"github.com/isdmx/runbox/sandbox"
)

// Tool names exposed by the server
const (
	RunCodeTool    = "run_code"
	RunMessageTool = "run_message"
)

// Version is reported to MCP clients during initialization
const Version = "0.1.0"

const failurePrefix = "Failed to process. "

// MCPServer represents the MCP server
type MCPServer struct {
	config      *config.Config
	logger      *zap.Logger
	registry    *language.Registry
	sandboxExec sandbox.SandboxExecutor
	mcpServer   *server.MCPServer
	httpServer  *server.StreamableHTTPServer
}

// New creates a new MCPServer
func New(cfg *config.Config, logger *zap.Logger, registry *language.Registry, sandboxExec sandbox.SandboxExecutor) (*MCPServer, error) {
	if registry == nil {
		return nil, errors.New("language registry is required")
	}

	s := &MCPServer{
		config:      cfg,
		logger:      logger,
		registry:    registry,
		sandboxExec: sandboxExec,
	}

	// Log configuration parameters on startup
	logger.Info("configuration loaded",
		zap.String("server.transport", cfg.Server.Transport),
		zap.Int("server.http_port", cfg.Server.HTTPPort),
		zap.String("server.ops_addr", cfg.Server.OpsAddr),
		zap.Int("server.max_output_chars", cfg.Server.MaxOutputChars),
		zap.String("sandbox.backend", cfg.Sandbox.Backend),
		zap.String("sandbox.image", cfg.Sandbox.Image),
		zap.Int("sandbox.run_timeout_sec", cfg.Sandbox.RunTimeoutSec),
		zap.Strings("languages", registry.IDs()),
	)

	s.mcpServer = server.NewMCPServer("runbox", Version, server.WithToolCapabilities(false))
	s.httpServer = server.NewStreamableHTTPServer(s.mcpServer)

	s.registerRunCodeTool()
	s.registerRunMessageTool()

	return s, nil
}

func (s *MCPServer) registerRunCodeTool() {
	tool := mcp.Tool{
		Name:        RunCodeTool,
		Description: "Run source code in a single-use, network-isolated container and return its combined stdout and stderr",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"language": map[string]any{
					"type":        "string",
					"description": "Language id or alias",
					"enum":        s.registry.IDs(),
				},
				"code": map[string]any{
					"type":        "string",
					"description": "Source code, written verbatim to the container",
				},
			},
			Required: []string{"language", "code"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleRunCode)
}

func (s *MCPServer) registerRunMessageTool() {
	tool := mcp.Tool{
		Name:        RunMessageTool,
		Description: "Run the first fenced code block of a chat message; the opening fence names the language",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"message": map[string]any{
					"type":        "string",
					"description": "Message text containing a ```<language> fenced block",
				},
			},
			Required: []string{"message"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleRunMessage)
}

func (s *MCPServer) handleRunCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	lang, err := request.RequireString("language")
	if err != nil {
		return errorResult(fmt.Errorf("language parameter is required: %w", err)), nil
	}

	code, err := request.RequireString("code")
	if err != nil {
		return errorResult(fmt.Errorf("code parameter is required: %w", err)), nil
	}

	return s.run(ctx, sandbox.Request{Language: lang, Code: code}), nil
}

func (s *MCPServer) handleRunMessage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	message, err := request.RequireString("message")
	if err != nil {
		return errorResult(fmt.Errorf("message parameter is required: %w", err)), nil
	}

	block, err := codeblock.Extract(message)
	if err != nil {
		s.logger.Info("no code block in message", zap.Int("message_len", len(message)))
		return textResult("Can not find code block.", true), nil
	}

	return s.run(ctx, sandbox.Request{Language: block.Language, Code: block.Code}), nil
}

// run executes req under the configured deadline and renders the result
func (s *MCPServer) run(ctx context.Context, req sandbox.Request) *mcp.CallToolResult {
	ctx, cancel := context.WithTimeout(ctx, s.config.GetRunTimeout())
	defer cancel()

	s.logger.Info("code execution requested",
		zap.String("language", req.Language),
		zap.Int("code_len", len(req.Code)))

	output, err := s.sandboxExec.Execute(ctx, req)
	if err != nil {
		s.logger.Warn("code execution failed",
			zap.String("language", req.Language),
			zap.String("stage", string(sandbox.StageOf(err))),
			zap.Error(err))
		return errorResult(err)
	}

	return textResult(TruncateOutput(output, s.config.Server.MaxOutputChars), false)
}

// TruncateOutput keeps the first limit characters of output and appends a
// notice when anything was cut
func TruncateOutput(output string, limit int) string {
	if utf8.RuneCountInString(output) <= limit {
		return output
	}

	cut, n := 0, 0
	for i := range output {
		if n == limit {
			cut = i
			break
		}
		n++
	}
	return fmt.Sprintf("%s\n...output is too big (printed first %d chars)", output[:cut], limit)
}

func errorResult(err error) *mcp.CallToolResult {
	return textResult(failurePrefix+err.Error(), true)
}

func textResult(text string, isError bool) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: text,
			},
		},
		IsError: isError,
	}
}

// ServeStdio starts the server on stdio
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server on stdio")
	return server.ServeStdio(s.mcpServer)
}

// ServeHTTP starts the server on HTTP and blocks until it stops
func (s *MCPServer) ServeHTTP() error {
	port := s.config.Server.HTTPPort
	s.logger.Info("starting MCP server on HTTP", zap.Int("port", port))

	return s.httpServer.Start(fmt.Sprintf(":%d", port))
}

// Shutdown stops the HTTP transport if it was started
func (s *MCPServer) Shutdown(ctx context.Context) error {
	if s.config.Server.Transport != "http" {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// GetMCPServer returns the underlying MCP server for fx
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
