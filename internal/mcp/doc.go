// Package mcp implements the Model Context Protocol (MCP) server for the
// Greptile code search API.
//
// The server exposes four tools to AI coding assistants (Claude Code, Codex CLI):
//   - index_repository: Submit a repository for indexing
//   - query_repository: Ask a natural language question about indexed repositories
//   - search_repository: Find relevant files and symbols without a full answer
//   - get_repository_info: Check indexing status for a repository
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol. The default transport is stdio:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// The server reads protocol messages from stdin and writes responses to
// stdout, so anything else it prints (logs, diagnostics) goes to stderr.
// A streamable HTTP transport is available for network deployments.
//
// # Tool: index_repository
//
// Submit a repository so Greptile can build its searchable index:
//
//	Request:
//	{
//	  "name": "index_repository",
//	  "arguments": {
//	    "remote": "github",
//	    "repository": "owner/repo",
//	    "branch": "main",
//	    "reload": true
//	  }
//	}
//
// The response relays the API's acknowledgement verbatim; indexing itself
// runs asynchronously on Greptile's side and get_repository_info reports
// its progress. Concurrent index_repository calls for the same repository
// collapse into a single upstream submission.
//
// # Tool: query_repository
//
// Ask a question and receive a synthesized answer with source citations:
//
//	Request:
//	{
//	  "name": "query_repository",
//	  "arguments": {
//	    "query": "How does authentication work?",
//	    "repositories": [
//	      {"remote": "github", "repository": "owner/repo", "branch": "main"}
//	    ],
//	    "session_id": "",
//	    "stream": false,
//	    "genius": true
//	  }
//	}
//
//	Response:
//	{
//	  "message": "Authentication is handled by the middleware in ...",
//	  "sources": [
//	    {
//	      "repository": "owner/repo",
//	      "filepath": "internal/auth/middleware.go",
//	      "linestart": 40,
//	      "lineend": 72
//	    }
//	  ],
//	  "session_id": "9f8d2c1a-..."
//	}
//
// When session_id is omitted the server mints one and returns it; passing
// it back on the next call continues the conversation with full history.
// With "stream": true the server consumes the API's streaming response
// internally and still returns the complete buffered answer.
//
// # Tool: search_repository
//
// Same arguments and response shape as query_repository, but the answers
// emphasize where relevant code lives rather than explaining how it works.
//
// # Tool: get_repository_info
//
// Check whether a repository is indexed and how far along indexing is:
//
//	Request:
//	{
//	  "name": "get_repository_info",
//	  "arguments": {
//	    "remote": "github",
//	    "repository": "owner/repo",
//	    "branch": "main"
//	  }
//	}
//
// The response is the API's status object (status, filesProcessed,
// numFiles, and related fields) relayed as-is.
//
// # MCP Client Configuration
//
// Configure in Claude Code's MCP settings:
//
//	{
//	  "mcpServers": {
//	    "greptile": {
//	      "command": "/usr/local/bin/greptile-mcp",
//	      "env": {
//	        "GREPTILE_API_KEY": "your-api-key",
//	        "GITHUB_TOKEN": "your-github-token"
//	      }
//	    }
//	  }
//	}
//
// # Error Handling
//
// Tool failures are reported as error results carrying a small JSON
// envelope instead of protocol-level errors, so the model can read and
// react to them:
//
//	{
//	  "error": "api error 404: repository not found",
//	  "type": "not_found",
//	  "session_id": "9f8d2c1a-..."
//	}
//
// Error types:
//   - invalid_params: missing or malformed arguments
//   - auth_error: the API rejected the credentials (401, 403)
//   - not_found: unknown repository or branch (404)
//   - rate_limited: the API throttled the request (429)
//   - api_error: any other upstream API failure
//   - timeout: the request deadline expired
//   - network_error: transport-level failure
//
// session_id is present when the failure happened inside an established
// conversation, so the client can retry without losing its history.
//
// # Sessions
//
// Conversation history lives in a bounded in-memory LRU store. Each
// successful query appends the user question and the assistant answer to
// its session, and the full history rides along on the next query so
// follow-up questions resolve references like "that function". Sessions
// are lost on restart; the session_id itself is still honored by the
// Greptile API, which keeps its own server-side context.
//
// # Logging
//
// The server logs to stderr with zerolog (stdout is reserved for the MCP
// protocol). Set the level in the config file or via environment:
//
//	GREPTILE_SERVER_LOG_LEVEL=debug greptile-mcp
package mcp
