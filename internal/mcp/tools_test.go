package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/greptile-mcp/internal/config"
)

// newTestServer wires a Server to a fake Greptile API.
func newTestServer(t *testing.T, upstream http.Handler) *Server {
	t.Helper()
	api := httptest.NewServer(upstream)
	t.Cleanup(api.Close)
	return newTestServerFor(t, testConfig(api.URL))
}

func newTestServerFor(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	srv, err := NewServer(cfg, "test")
	require.NoError(t, err)
	return srv
}

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		API: config.APIConfig{
			Key:         "test-key",
			GitHubToken: "ghp_test",
			BaseURL:     baseURL,
			Timeout:     5 * time.Second,
			Genius:      true,
		},
		Retry: config.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   time.Millisecond,
			MaxDelay:    5 * time.Millisecond,
			Multiplier:  2.0,
		},
		Sessions: config.SessionsConfig{MaxEntries: 16},
	}
}

func toolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func repoArgs() map[string]interface{} {
	return map[string]interface{}{
		"remote":     "github",
		"repository": "owner/repo",
		"branch":     "main",
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.Len(t, result.Content, 1)
	content, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")
	return content.Text
}

func decodeResult(t *testing.T, result *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &decoded))
	return decoded
}

// statusHandler replies with a fixed status code and counts calls.
func statusHandler(calls *atomic.Int32, status int, body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
}

func TestHandleIndexRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("submits the repository and relays the acknowledgement", func(t *testing.T) {
		var payload map[string]interface{}
		srv := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/repositories", r.URL.Path)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			_, _ = w.Write([]byte(`{"message": "started", "statusEndpoint": "/repositories/github%3Amain%3Aowner%2Frepo"}`))
		}))

		result, err := srv.handleIndexRepository(ctx, toolRequest("index_repository", repoArgs()))
		require.NoError(t, err)
		require.False(t, result.IsError)

		assert.Equal(t, map[string]interface{}{
			"remote":     "github",
			"repository": "owner/repo",
			"branch":     "main",
			"reload":     true,
			"notify":     false,
		}, payload)

		ack := decodeResult(t, result)
		assert.Equal(t, "started", ack["message"])
	})

	t.Run("reload and notify flags pass through", func(t *testing.T) {
		var payload map[string]interface{}
		srv := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			_, _ = w.Write([]byte(`{}`))
		}))

		args := repoArgs()
		args["reload"] = false
		args["notify"] = true
		result, err := srv.handleIndexRepository(ctx, toolRequest("index_repository", args))
		require.NoError(t, err)
		require.False(t, result.IsError)

		assert.Equal(t, false, payload["reload"])
		assert.Equal(t, true, payload["notify"])
	})

	t.Run("missing repository is rejected before any api call", func(t *testing.T) {
		var calls atomic.Int32
		srv := newTestServer(t, statusHandler(&calls, http.StatusOK, `{}`))

		result, err := srv.handleIndexRepository(ctx, toolRequest("index_repository", map[string]interface{}{
			"remote": "github",
			"branch": "main",
		}))
		require.NoError(t, err)
		require.True(t, result.IsError)

		envelope := decodeResult(t, result)
		assert.Equal(t, "invalid_params", envelope["type"])
		assert.Contains(t, envelope["error"], "repository")
		assert.Equal(t, int32(0), calls.Load())
	})

	t.Run("unknown remote is rejected", func(t *testing.T) {
		var calls atomic.Int32
		srv := newTestServer(t, statusHandler(&calls, http.StatusOK, `{}`))

		args := repoArgs()
		args["remote"] = "bitbucket"
		result, err := srv.handleIndexRepository(ctx, toolRequest("index_repository", args))
		require.NoError(t, err)
		require.True(t, result.IsError)

		envelope := decodeResult(t, result)
		assert.Equal(t, "invalid_params", envelope["type"])
		assert.Contains(t, envelope["error"], "github or gitlab")
		assert.Equal(t, int32(0), calls.Load())
	})

	t.Run("upstream failure maps to an api_error envelope", func(t *testing.T) {
		var calls atomic.Int32
		srv := newTestServer(t, statusHandler(&calls, http.StatusInternalServerError, `{"error": "boom"}`))

		result, err := srv.handleIndexRepository(ctx, toolRequest("index_repository", repoArgs()))
		require.NoError(t, err)
		require.True(t, result.IsError)

		envelope := decodeResult(t, result)
		assert.Equal(t, "api_error", envelope["type"])
		assert.Contains(t, envelope["error"], "api error 500")
		assert.Equal(t, int32(3), calls.Load(), "server errors should be retried to the attempt budget")
	})

	t.Run("auth failure is terminal", func(t *testing.T) {
		var calls atomic.Int32
		srv := newTestServer(t, statusHandler(&calls, http.StatusUnauthorized, `{"error": "bad key"}`))

		result, err := srv.handleIndexRepository(ctx, toolRequest("index_repository", repoArgs()))
		require.NoError(t, err)
		require.True(t, result.IsError)

		envelope := decodeResult(t, result)
		assert.Equal(t, "auth_error", envelope["type"])
		assert.Equal(t, int32(1), calls.Load(), "auth failures should not be retried")
	})

	t.Run("rate limiting is retried then reported", func(t *testing.T) {
		var calls atomic.Int32
		srv := newTestServer(t, statusHandler(&calls, http.StatusTooManyRequests, `{"error": "slow down"}`))

		result, err := srv.handleIndexRepository(ctx, toolRequest("index_repository", repoArgs()))
		require.NoError(t, err)
		require.True(t, result.IsError)

		envelope := decodeResult(t, result)
		assert.Equal(t, "rate_limited", envelope["type"])
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("concurrent submissions collapse into one api call", func(t *testing.T) {
		var calls atomic.Int32
		srv := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			time.Sleep(50 * time.Millisecond)
			_, _ = w.Write([]byte(`{"message": "started"}`))
		}))

		start := make(chan struct{})
		results := make([]*mcp.CallToolResult, 4)
		var wg sync.WaitGroup
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				result, err := srv.handleIndexRepository(ctx, toolRequest("index_repository", repoArgs()))
				assert.NoError(t, err)
				results[i] = result
			}(i)
		}
		close(start)
		wg.Wait()

		assert.Equal(t, int32(1), calls.Load(), "in-flight submissions for the same repository should be shared")
		for _, result := range results {
			require.NotNil(t, result)
			assert.False(t, result.IsError)
		}
	})
}

func TestHandleQueryRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the answer with sources and a session id", func(t *testing.T) {
		var payload map[string]interface{}
		srv := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/query", r.URL.Path)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			_, _ = w.Write([]byte(`{
				"message": "Auth lives in the middleware.",
				"sources": [{"repository": "owner/repo", "filepath": "internal/auth/middleware.go", "linestart": 40, "lineend": 72}],
				"session_id": "sess-up"
			}`))
		}))

		result, err := srv.handleQueryRepository(ctx, toolRequest("query_repository", map[string]interface{}{
			"query":        "How does authentication work?",
			"repositories": []interface{}{repoArgs()},
		}))
		require.NoError(t, err)
		require.False(t, result.IsError)

		messages, ok := payload["messages"].([]interface{})
		require.True(t, ok)
		require.Len(t, messages, 1)
		assert.Equal(t, map[string]interface{}{"role": "user", "content": "How does authentication work?"}, messages[0])

		repos, ok := payload["repositories"].([]interface{})
		require.True(t, ok)
		require.Len(t, repos, 1)
		assert.Equal(t, map[string]interface{}{"remote": "github", "repository": "owner/repo", "branch": "main"}, repos[0])

		assert.Equal(t, false, payload["stream"])
		assert.Equal(t, true, payload["genius"], "genius should default on from config")
		assert.NotEmpty(t, payload["sessionId"], "a session id should be minted and forwarded")

		decoded := decodeResult(t, result)
		assert.Equal(t, "Auth lives in the middleware.", decoded["message"])
		assert.Equal(t, "sess-up", decoded["session_id"], "the api's session id wins")

		sources, ok := decoded["sources"].([]interface{})
		require.True(t, ok)
		require.Len(t, sources, 1)
		source, ok := sources[0].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "internal/auth/middleware.go", source["filepath"])
		assert.Equal(t, float64(40), source["linestart"])
		assert.Equal(t, float64(72), source["lineend"])
	})

	t.Run("mints a session id when none is given", func(t *testing.T) {
		var sentSession string
		srv := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var payload map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			sentSession, _ = payload["sessionId"].(string)
			_, _ = w.Write([]byte(`{"message": "answer"}`))
		}))

		result, err := srv.handleQueryRepository(ctx, toolRequest("query_repository", map[string]interface{}{
			"query": "where is main?",
		}))
		require.NoError(t, err)
		require.False(t, result.IsError)

		decoded := decodeResult(t, result)
		assert.NotEmpty(t, sentSession)
		assert.Equal(t, sentSession, decoded["session_id"], "the minted id should come back to the caller")
	})

	t.Run("a follow-up call carries the conversation history", func(t *testing.T) {
		var mu sync.Mutex
		var bodies []map[string]interface{}
		answers := []string{`{"message": "in the middleware"}`, `{"message": "middleware_test.go"}`}
		srv := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var payload map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			mu.Lock()
			bodies = append(bodies, payload)
			answer := answers[len(bodies)-1]
			mu.Unlock()
			_, _ = w.Write([]byte(answer))
		}))

		first, err := srv.handleQueryRepository(ctx, toolRequest("query_repository", map[string]interface{}{
			"query":      "where is auth?",
			"session_id": "sess-1",
		}))
		require.NoError(t, err)
		require.False(t, first.IsError)

		second, err := srv.handleQueryRepository(ctx, toolRequest("query_repository", map[string]interface{}{
			"query":      "show me its tests",
			"session_id": "sess-1",
		}))
		require.NoError(t, err)
		require.False(t, second.IsError)

		require.Len(t, bodies, 2)
		assert.Equal(t, "sess-1", bodies[0]["sessionId"])

		history, ok := bodies[1]["messages"].([]interface{})
		require.True(t, ok)
		require.Len(t, history, 3, "second call should carry both prior turns plus the new question")
		assert.Equal(t, map[string]interface{}{"role": "user", "content": "where is auth?"}, history[0])
		assert.Equal(t, map[string]interface{}{"role": "assistant", "content": "in the middleware"}, history[1])
		assert.Equal(t, map[string]interface{}{"role": "user", "content": "show me its tests"}, history[2])
	})

	t.Run("sources default to an empty array", func(t *testing.T) {
		srv := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"message": "no citations here"}`))
		}))

		result, err := srv.handleQueryRepository(ctx, toolRequest("query_repository", map[string]interface{}{
			"query": "anything",
		}))
		require.NoError(t, err)
		require.False(t, result.IsError)

		decoded := decodeResult(t, result)
		sources, ok := decoded["sources"].([]interface{})
		require.True(t, ok, "sources should be present even when the api omits them")
		assert.Empty(t, sources)
	})

	t.Run("genius can be switched off per call", func(t *testing.T) {
		var payload map[string]interface{}
		srv := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			_, _ = w.Write([]byte(`{"message": "quick answer"}`))
		}))

		result, err := srv.handleQueryRepository(ctx, toolRequest("query_repository", map[string]interface{}{
			"query":  "anything",
			"genius": false,
		}))
		require.NoError(t, err)
		require.False(t, result.IsError)
		assert.Equal(t, false, payload["genius"])
	})

	t.Run("missing query is invalid_params", func(t *testing.T) {
		var calls atomic.Int32
		srv := newTestServer(t, statusHandler(&calls, http.StatusOK, `{}`))

		result, err := srv.handleQueryRepository(ctx, toolRequest("query_repository", map[string]interface{}{}))
		require.NoError(t, err)
		require.True(t, result.IsError)

		envelope := decodeResult(t, result)
		assert.Equal(t, "invalid_params", envelope["type"])
		assert.Contains(t, envelope["error"], "query")
		assert.Equal(t, int32(0), calls.Load())
	})

	t.Run("malformed repositories entry is invalid_params", func(t *testing.T) {
		var calls atomic.Int32
		srv := newTestServer(t, statusHandler(&calls, http.StatusOK, `{}`))

		result, err := srv.handleQueryRepository(ctx, toolRequest("query_repository", map[string]interface{}{
			"query":        "anything",
			"repositories": []interface{}{"owner/repo"},
		}))
		require.NoError(t, err)
		require.True(t, result.IsError)

		envelope := decodeResult(t, result)
		assert.Equal(t, "invalid_params", envelope["type"])
		assert.Contains(t, envelope["error"], "repository 0")
		assert.Equal(t, int32(0), calls.Load())
	})

	t.Run("upstream failure carries the session id in the envelope", func(t *testing.T) {
		var calls atomic.Int32
		srv := newTestServer(t, statusHandler(&calls, http.StatusInternalServerError, `{"error": "boom"}`))

		result, err := srv.handleQueryRepository(ctx, toolRequest("query_repository", map[string]interface{}{
			"query":      "anything",
			"session_id": "sess-err",
		}))
		require.NoError(t, err)
		require.True(t, result.IsError)

		envelope := decodeResult(t, result)
		assert.Equal(t, "api_error", envelope["type"])
		assert.Equal(t, "sess-err", envelope["session_id"])
	})

	t.Run("timeouts map to the timeout type", func(t *testing.T) {
		api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(150 * time.Millisecond)
			_, _ = w.Write([]byte(`{"message": "too late"}`))
		}))
		t.Cleanup(api.Close)

		cfg := testConfig(api.URL)
		cfg.API.Timeout = 30 * time.Millisecond
		cfg.Retry.MaxAttempts = 1
		srv := newTestServerFor(t, cfg)

		result, err := srv.handleQueryRepository(ctx, toolRequest("query_repository", map[string]interface{}{
			"query": "anything",
		}))
		require.NoError(t, err)
		require.True(t, result.IsError)

		envelope := decodeResult(t, result)
		assert.Equal(t, "timeout", envelope["type"])
	})

	t.Run("connection failures map to network_error", func(t *testing.T) {
		api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		baseURL := api.URL
		api.Close()

		cfg := testConfig(baseURL)
		cfg.Retry.MaxAttempts = 1
		srv := newTestServerFor(t, cfg)

		result, err := srv.handleQueryRepository(ctx, toolRequest("query_repository", map[string]interface{}{
			"query": "anything",
		}))
		require.NoError(t, err)
		require.True(t, result.IsError)

		envelope := decodeResult(t, result)
		assert.Equal(t, "network_error", envelope["type"])
	})

	t.Run("streaming mode returns the fully buffered answer", func(t *testing.T) {
		srv := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var payload map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			assert.Equal(t, true, payload["stream"])

			w.Header().Set("Content-Type", "text/event-stream")
			_, _ = w.Write([]byte("data: {\"type\": \"session\", \"sessionId\": \"sess-stream\"}\n\n"))
			_, _ = w.Write([]byte("data: {\"type\": \"text\", \"content\": \"Auth is \"}\n\n"))
			_, _ = w.Write([]byte("data: {\"type\": \"text\", \"content\": \"in the middleware.\"}\n\n"))
			_, _ = w.Write([]byte("data: {\"type\": \"citation\", \"file\": \"internal/auth/middleware.go\", \"lines\": [40, 72]}\n\n"))
		}))

		result, err := srv.handleQueryRepository(ctx, toolRequest("query_repository", map[string]interface{}{
			"query":  "How does authentication work?",
			"stream": true,
		}))
		require.NoError(t, err)
		require.False(t, result.IsError)

		decoded := decodeResult(t, result)
		assert.Equal(t, "Auth is in the middleware.", decoded["message"])
		assert.Equal(t, "sess-stream", decoded["session_id"])

		sources, ok := decoded["sources"].([]interface{})
		require.True(t, ok)
		require.Len(t, sources, 1)
		source, ok := sources[0].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "internal/auth/middleware.go", source["filepath"])
		assert.Equal(t, float64(40), source["linestart"])
		assert.Equal(t, float64(72), source["lineend"])
	})

	t.Run("an interrupted stream fails the whole call", func(t *testing.T) {
		var calls atomic.Int32
		srv := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.Header().Set("Content-Type", "text/event-stream")
			w.Header().Set("Content-Length", "100000")
			_, _ = w.Write([]byte("data: {\"type\": \"text\", \"content\": \"partial\"}\n\n"))
		}))

		result, err := srv.handleQueryRepository(ctx, toolRequest("query_repository", map[string]interface{}{
			"query":  "anything",
			"stream": true,
		}))
		require.NoError(t, err)
		require.True(t, result.IsError)

		envelope := decodeResult(t, result)
		assert.Equal(t, "network_error", envelope["type"])
		assert.Equal(t, int32(1), calls.Load(), "a mid-stream failure should not reconnect")
	})
}

func TestHandleSearchRepository(t *testing.T) {
	t.Run("shares the query pipeline", func(t *testing.T) {
		srv := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/query", r.URL.Path)
			_, _ = w.Write([]byte(`{"message": "see internal/auth", "session_id": "sess-search"}`))
		}))

		result, err := srv.handleSearchRepository(context.Background(), toolRequest("search_repository", map[string]interface{}{
			"query": "authentication middleware",
		}))
		require.NoError(t, err)
		require.False(t, result.IsError)

		decoded := decodeResult(t, result)
		assert.Equal(t, "see internal/auth", decoded["message"])
		assert.Equal(t, "sess-search", decoded["session_id"])
	})

	t.Run("requires a query", func(t *testing.T) {
		srv := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

		result, err := srv.handleSearchRepository(context.Background(), toolRequest("search_repository", map[string]interface{}{}))
		require.NoError(t, err)
		require.True(t, result.IsError)
		assert.Equal(t, "invalid_params", decodeResult(t, result)["type"])
	})
}

func TestHandleGetRepositoryInfo(t *testing.T) {
	ctx := context.Background()

	t.Run("fetches status by encoded repository id", func(t *testing.T) {
		srv := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodGet, r.Method)
			assert.Equal(t, "/repositories/github:main:owner%2Frepo", r.URL.EscapedPath())
			_, _ = w.Write([]byte(`{"status": "completed", "filesProcessed": 247, "numFiles": 247}`))
		}))

		result, err := srv.handleGetRepositoryInfo(ctx, toolRequest("get_repository_info", repoArgs()))
		require.NoError(t, err)
		require.False(t, result.IsError)

		info := decodeResult(t, result)
		assert.Equal(t, "completed", info["status"])
		assert.Equal(t, float64(247), info["filesProcessed"])
	})

	t.Run("empty branch is invalid_params", func(t *testing.T) {
		var calls atomic.Int32
		srv := newTestServer(t, statusHandler(&calls, http.StatusOK, `{}`))

		args := repoArgs()
		args["branch"] = ""
		result, err := srv.handleGetRepositoryInfo(ctx, toolRequest("get_repository_info", args))
		require.NoError(t, err)
		require.True(t, result.IsError)

		envelope := decodeResult(t, result)
		assert.Equal(t, "invalid_params", envelope["type"])
		assert.Contains(t, envelope["error"], "branch")
		assert.Equal(t, int32(0), calls.Load())
	})

	t.Run("unindexed repository maps to not_found", func(t *testing.T) {
		var calls atomic.Int32
		srv := newTestServer(t, statusHandler(&calls, http.StatusNotFound, `{"error": "repository not found"}`))

		result, err := srv.handleGetRepositoryInfo(ctx, toolRequest("get_repository_info", repoArgs()))
		require.NoError(t, err)
		require.True(t, result.IsError)

		envelope := decodeResult(t, result)
		assert.Equal(t, "not_found", envelope["type"])
		assert.Contains(t, envelope["error"], "repository not found")
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "abcde", truncate("abcde", 5))
	assert.Equal(t, "abcde...", truncate("abcdefgh", 5))
}
