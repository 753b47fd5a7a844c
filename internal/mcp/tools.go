package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog/log"

	"github.com/dshills/greptile-mcp/internal/greptile"
	"github.com/dshills/greptile-mcp/pkg/types"
)

// Envelope error types returned to MCP clients
const (
	ErrTypeInvalidParams = "invalid_params"
	ErrTypeAuth          = "auth_error"
	ErrTypeNotFound      = "not_found"
	ErrTypeRateLimited   = "rate_limited"
	ErrTypeAPI           = "api_error"
	ErrTypeTimeout       = "timeout"
	ErrTypeNetwork       = "network_error"
)

// handleIndexRepository handles the index_repository tool invocation
func (s *Server) handleIndexRepository(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return errorResult("invalid arguments", ErrTypeInvalidParams, ""), nil
	}

	repo, err := repositoryFromArgs(args)
	if err != nil {
		return errorResult(err.Error(), ErrTypeInvalidParams, ""), nil
	}

	req := greptile.IndexRequest{
		Repository: repo,
		Reload:     getBoolDefault(args, "reload", true),
		Notify:     getBoolDefault(args, "notify", false),
	}

	log.Debug().Str("tool", "index_repository").Str("repository", repo.ID()).Bool("reload", req.Reload).Msg("tool invoked")

	// Concurrent submissions for the same repository share one upstream call
	ack, err, shared := s.indexing.Do(repo.ID(), func() (interface{}, error) {
		return s.client.IndexRepository(ctx, req)
	})
	if err != nil {
		log.Error().Err(err).Str("repository", repo.ID()).Msg("index request failed")
		return apiErrorResult(err, ""), nil
	}
	if shared {
		log.Debug().Str("repository", repo.ID()).Msg("index request coalesced with an in-flight submission")
	}

	response, ok := ack.(map[string]interface{})
	if !ok {
		response = map[string]interface{}{}
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleQueryRepository handles the query_repository tool invocation
func (s *Server) handleQueryRepository(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.runQuery(ctx, request, "query_repository")
}

// handleSearchRepository handles the search_repository tool invocation. The
// API has no separate search endpoint; search shares the query path and
// differs only in how the tool describes itself to the model.
func (s *Server) handleSearchRepository(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.runQuery(ctx, request, "search_repository")
}

// runQuery is the shared body of query_repository and search_repository.
func (s *Server) runQuery(ctx context.Context, request mcp.CallToolRequest, tool string) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return errorResult("invalid arguments", ErrTypeInvalidParams, ""), nil
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return errorResult("query parameter is required and cannot be empty", ErrTypeInvalidParams, ""), nil
	}

	repos, err := repositoriesFromArgs(args)
	if err != nil {
		return errorResult(err.Error(), ErrTypeInvalidParams, ""), nil
	}

	// A known session id continues that conversation; otherwise mint one so
	// the client can continue this conversation later.
	sessionID := getStringDefault(args, "session_id", "")
	if sessionID == "" {
		sessionID = s.sessions.NewID()
	}
	history := s.sessions.History(sessionID)

	userMessage := types.Message{Role: types.RoleUser, Content: query}
	stream := getBoolDefault(args, "stream", false)

	req := greptile.QueryRequest{
		Messages:     append(history, userMessage),
		Repositories: repos,
		SessionID:    sessionID,
		Genius:       getBoolDefault(args, "genius", s.genius),
	}

	log.Debug().Str("tool", tool).Str("session_id", sessionID).Int("history", len(history)).Bool("stream", stream).Msg("tool invoked")

	var resp *types.QueryResponse
	if stream {
		chunkStream, err := s.client.QueryStream(ctx, req)
		if err != nil {
			log.Error().Err(err).Str("tool", tool).Msg("query stream failed")
			return apiErrorResult(err, sessionID), nil
		}
		resp, err = collectStream(chunkStream)
		if err != nil {
			log.Error().Err(err).Str("tool", tool).Msg("query stream interrupted")
			return apiErrorResult(err, sessionID), nil
		}
	} else {
		resp, err = s.client.Query(ctx, req)
		if err != nil {
			log.Error().Err(err).Str("tool", tool).Msg("query failed")
			return apiErrorResult(err, sessionID), nil
		}
	}

	// The result always carries a session id and a sources list, even when
	// the API omitted them. History is stored under the id the client will
	// pass back, which is the API's when it assigns one.
	resultSession := resp.SessionID
	if resultSession == "" {
		resultSession = sessionID
	}
	sources := resp.Sources
	if sources == nil {
		sources = []types.Source{}
	}

	s.sessions.Append(resultSession, userMessage, types.Message{Role: types.RoleAssistant, Content: resp.Message})

	response := map[string]interface{}{
		"message":    resp.Message,
		"sources":    sources,
		"session_id": resultSession,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetRepositoryInfo handles the get_repository_info tool invocation
func (s *Server) handleGetRepositoryInfo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return errorResult("invalid arguments", ErrTypeInvalidParams, ""), nil
	}

	repo, err := repositoryFromArgs(args)
	if err != nil {
		return errorResult(err.Error(), ErrTypeInvalidParams, ""), nil
	}

	log.Debug().Str("tool", "get_repository_info").Str("repository", repo.ID()).Msg("tool invoked")

	info, err := s.client.RepositoryInfo(ctx, repo)
	if err != nil {
		log.Error().Err(err).Str("repository", repo.ID()).Msg("repository info failed")
		return apiErrorResult(err, ""), nil
	}

	return mcp.NewToolResultText(formatJSON(info)), nil
}

// collectStream drains a chunk stream into the buffered answer shape: text
// chunks concatenate into the message, citations become sources, a session
// chunk sets the session id. An abnormal interruption fails the whole call;
// the partial answer is not returned.
func collectStream(stream *greptile.Stream) (*types.QueryResponse, error) {
	defer func() {
		_ = stream.Close()
	}()

	var text strings.Builder
	resp := &types.QueryResponse{}

	for stream.Next() {
		chunk := stream.Chunk()
		switch chunk.Kind {
		case types.ChunkText:
			text.WriteString(chunk.Content)
		case types.ChunkCitation:
			source := types.Source{Filepath: chunk.File}
			if len(chunk.Lines) > 0 {
				source.Linestart = chunk.Lines[0]
				source.Lineend = chunk.Lines[len(chunk.Lines)-1]
			}
			resp.Sources = append(resp.Sources, source)
		case types.ChunkSession:
			resp.SessionID = chunk.SessionID
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("collect stream: %w", err)
	}
	if n := stream.Dropped(); n > 0 {
		log.Debug().Int("dropped", n).Msg("stream contained malformed lines")
	}

	resp.Message = text.String()
	return resp, nil
}

// Helper functions

// errorResult builds the JSON error envelope returned for failed tool calls.
func errorResult(message, errType, sessionID string) *mcp.CallToolResult {
	envelope := map[string]interface{}{
		"error": message,
		"type":  errType,
	}
	if sessionID != "" {
		envelope["session_id"] = sessionID
	}
	return mcp.NewToolResultError(formatJSON(envelope))
}

// apiErrorResult classifies an upstream failure into the envelope vocabulary.
func apiErrorResult(err error, sessionID string) *mcp.CallToolResult {
	return errorResult(err.Error(), errorType(err), sessionID)
}

// errorType maps an error onto the envelope's type vocabulary.
func errorType(err error) string {
	var apiErr *greptile.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 401, 403:
			return ErrTypeAuth
		case 404:
			return ErrTypeNotFound
		case 429:
			return ErrTypeRateLimited
		default:
			return ErrTypeAPI
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTypeTimeout
	}
	return ErrTypeNetwork
}

// repositoryFromArgs builds a repository reference from flat tool arguments.
func repositoryFromArgs(args map[string]interface{}) (types.Repository, error) {
	repo := types.Repository{
		Remote:     getStringDefault(args, "remote", types.RemoteGitHub),
		Repository: getStringDefault(args, "repository", ""),
		Branch:     getStringDefault(args, "branch", "main"),
	}
	if err := repo.Validate(); err != nil {
		return types.Repository{}, err
	}
	return repo, nil
}

// repositoriesFromArgs parses the repositories array argument. A missing or
// empty array is fine; the upstream then relies on the session's earlier
// repositories.
func repositoriesFromArgs(args map[string]interface{}) ([]types.Repository, error) {
	raw, ok := args["repositories"].([]interface{})
	if !ok || len(raw) == 0 {
		return nil, nil
	}

	repos := make([]types.Repository, 0, len(raw))
	for i, item := range raw {
		entry, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("repository %d: expected an object", i)
		}
		repo := types.Repository{
			Remote:     getStringDefault(entry, "remote", types.RemoteGitHub),
			Repository: getStringDefault(entry, "repository", ""),
			Branch:     getStringDefault(entry, "branch", "main"),
		}
		if err := repo.Validate(); err != nil {
			return nil, fmt.Errorf("repository %d: %w", i, err)
		}
		repos = append(repos, repo)
	}
	return repos, nil
}

// formatJSON formats a value as indented JSON
func formatJSON(data interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// truncate shortens a string for log output.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
