// Package mcp exposes the filing question answering service as an MCP server.
//
// This implementation uses the MCP SDK (github.com/modelcontextprotocol/go-sdk/mcp)
// and calls the qa service directly. Tools: ask_filings, index_status,
// ingest_filings, plus tool_search and tool_list for discovery. Answer text is
// scrubbed for secrets before it is returned to clients.
package mcp
