// Package mcp exposes plugin generation as MCP tools.
//
// The server wraps the generation orchestrator with the MCP SDK
// (github.com/modelcontextprotocol/go-sdk/mcp) and serves it on the stdio
// transport. Tools mirror the HTTP control surface:
//
//   - plugin_generate: start a generation from a description
//   - plugin_confirm: approve, refine or reject the pending proposal
//   - plugin_status: report the in-flight generation
//   - plugin_pending: show the pending proposal
package mcp
