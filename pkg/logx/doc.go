// Package logx configures tiny-ntfy-mcp's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - Everything on stderr (stdout carries the MCP stdio transport)
package logx
