package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// repositoryProperties are the arguments identifying one repository, shared
// by the tools that take a single repository.
func repositoryProperties() map[string]interface{} {
	return map[string]interface{}{
		"remote": map[string]interface{}{
			"type":        "string",
			"description": "Source control host: github or gitlab",
			"enum":        []string{"github", "gitlab"},
		},
		"repository": map[string]interface{}{
			"type":        "string",
			"description": "Repository in owner/name form (e.g. 'greptileai/greptile')",
		},
		"branch": map[string]interface{}{
			"type":        "string",
			"description": "Branch to operate on (e.g. 'main')",
		},
	}
}

// indexRepositoryTool returns the tool definition for index_repository
func indexRepositoryTool() mcp.Tool {
	props := repositoryProperties()
	props["reload"] = map[string]interface{}{
		"type":        "boolean",
		"description": "If true, reprocess a repository that was previously indexed (pick up new commits)",
		"default":     true,
	}
	props["notify"] = map[string]interface{}{
		"type":        "boolean",
		"description": "If true, email the requesting user when indexing completes",
		"default":     false,
	}

	return mcp.Tool{
		Name:        "index_repository",
		Description: "Submit a repository for indexing so it can be queried. Indexing runs asynchronously; use get_repository_info to watch progress.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: props,
			Required:   []string{"remote", "repository", "branch"},
		},
	}
}

// queryRepositoryTool returns the tool definition for query_repository
func queryRepositoryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "query_repository",
		Description: "Ask a natural-language question about indexed repositories and get an answer with code references",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: queryProperties(),
			Required:   []string{"query"},
		},
	}
}

// searchRepositoryTool returns the tool definition for search_repository
func searchRepositoryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_repository",
		Description: "Search indexed repositories for relevant files and code locations. Takes the same arguments as query_repository; answers emphasize where things live rather than how they work.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: queryProperties(),
			Required:   []string{"query"},
		},
	}
}

// queryProperties are the shared arguments of query_repository and
// search_repository.
func queryProperties() map[string]interface{} {
	return map[string]interface{}{
		"query": map[string]interface{}{
			"type":        "string",
			"description": "Natural-language question or search phrase",
		},
		"repositories": map[string]interface{}{
			"type":        "array",
			"description": "Repositories to query. Omit to rely on the session's earlier repositories.",
			"items": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"remote": map[string]interface{}{
						"type":        "string",
						"description": "Source control host: github or gitlab",
						"enum":        []string{"github", "gitlab"},
						"default":     "github",
					},
					"repository": map[string]interface{}{
						"type":        "string",
						"description": "Repository in owner/name form",
					},
					"branch": map[string]interface{}{
						"type":        "string",
						"description": "Branch to query",
						"default":     "main",
					},
				},
				"required": []string{"repository"},
			},
		},
		"session_id": map[string]interface{}{
			"type":        "string",
			"description": "Session identifier from an earlier result; continues that conversation with its history",
		},
		"stream": map[string]interface{}{
			"type":        "boolean",
			"description": "If true, consume the answer as a stream upstream and aggregate it here",
			"default":     false,
		},
		"genius": map[string]interface{}{
			"type":        "boolean",
			"description": "If true, use the slower, more thorough answering mode",
			"default":     true,
		},
	}
}

// getRepositoryInfoTool returns the tool definition for get_repository_info
func getRepositoryInfoTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_repository_info",
		Description: "Fetch indexing status and metadata for a repository",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: repositoryProperties(),
			Required:   []string{"remote", "repository", "branch"},
		},
	}
}
