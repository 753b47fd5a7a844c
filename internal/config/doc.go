// Package config loads the server configuration.
//
// Configuration precedence (highest to lowest):
//
//  1. Environment variables (GREPTILE_API_KEY, GREPTILE_SERVER_LOG_LEVEL, ...)
//  2. TOML config file (./greptile-mcp.toml or
//     ~/.config/greptile-mcp/config.toml, or the -config flag)
//  3. Built-in defaults
//
// Environment variables are uppercased with a GREPTILE_ prefix; the first
// underscore after the prefix separates the section from the field:
//
//	GREPTILE_API_KEY           -> api.key
//	GREPTILE_API_GITHUB_TOKEN  -> api.github_token
//	GREPTILE_SERVER_TRANSPORT  -> server.transport
//	GREPTILE_RETRY_MAX_ATTEMPTS -> retry.max_attempts
//
// The plain GITHUB_TOKEN name is honored as well, matching the convention
// MCP client configs already use for credentials.
//
// Example file:
//
//	[api]
//	key = "greptile-api-key"
//	github_token = "ghp_xxx"
//	genius = true
//
//	[server]
//	transport = "stdio"
//	log_level = "info"
//
//	[retry]
//	max_attempts = 3
//	base_delay = "1s"
//	max_delay = "5s"
package config
