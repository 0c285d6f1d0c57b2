// Package main is the entry point for the runbox MCP server.
//
// The runbox server exposes a Model Context Protocol (MCP) tool that runs
// user code in single-use, network-isolated containers. The server supports
// both stdio and HTTP transports, and an optional ops listener for health
// checks and Prometheus metrics.
//
// The application uses Uber's fx framework for dependency injection and lifecycle
// management, with zap for structured logging and viper for configuration.
package main
