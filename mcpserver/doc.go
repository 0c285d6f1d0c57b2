// Package mcpserver provides the Model Context Protocol (MCP) server implementation.
//
// The mcpserver package implements an MCP-compliant server that exposes tools
// for code execution. It uses the mark3labs/mcp-go library to handle the
// protocol details. Two tools are registered:
//
//   - run_code takes a language id and source code
//   - run_message takes a chat message and runs its first fenced code block
//
// Both return the combined output of the run, cut to the configured number of
// characters. Failures come back as tool errors starting with
// "Failed to process." so clients can show them as-is.
//
// The server supports both stdio and HTTP transports as configured by the
// application configuration.
//
// Usage:
//
//	server, err := mcpserver.New(config, logger, registry, executor)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = server.ServeStdio() // or server.ServeHTTP()
package mcpserver
