// Package greptile is an HTTP client for the Greptile code-search API.
//
// The client covers the four API operations the server exposes: submitting
// repositories for indexing, querying indexed repositories in natural
// language (buffered or streamed), fetching repository indexing status, and
// probing service health.
//
// # Basic Usage
//
//	client, err := greptile.New(greptile.Config{
//	    APIKey:      os.Getenv("GREPTILE_API_KEY"),
//	    GitHubToken: os.Getenv("GITHUB_TOKEN"),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Submit a repository for indexing
//	ack, err := client.IndexRepository(ctx, greptile.IndexRequest{
//	    Repository: types.Repository{
//	        Remote:     "github",
//	        Repository: "owner/repo",
//	        Branch:     "main",
//	    },
//	    Reload: true,
//	})
//
//	// Ask a question about it
//	resp, err := client.Query(ctx, greptile.QueryRequest{
//	    Messages: []types.Message{
//	        {Role: "user", Content: "Where is authentication handled?"},
//	    },
//	    Repositories: []types.Repository{repo},
//	    Genius:       true,
//	})
//	fmt.Println(resp.Message)
//
// # Streaming
//
// QueryStream returns answer chunks as the API produces them instead of one
// buffered response:
//
//	stream, err := client.QueryStream(ctx, req)
//	if err != nil {
//	    return err
//	}
//	defer stream.Close()
//
//	for stream.Next() {
//	    chunk := stream.Chunk()
//	    if chunk.Text() {
//	        fmt.Print(chunk.Content)
//	    }
//	}
//	if err := stream.Err(); err != nil {
//	    return err
//	}
//
// Malformed stream lines are dropped without failing the stream; the count
// is available from Dropped and each dropped line can be observed through
// Config.OnDrop.
//
// # Retries
//
// Write and read operations retry transient failures with exponential
// backoff. Defaults: 3 attempts, 1s base delay, doubling, capped at 5s.
// Rate limiting (429) and server errors (5xx) retry; client errors such as
// 400, 401, 404, and 422 fail immediately. Each attempt runs under its own
// timeout, so a hung attempt counts as one transient failure rather than
// consuming the whole call.
//
// HealthCheck is the exception: one attempt, a 10 second timeout of its
// own, and a bool result. It never returns an error.
//
// # Error Handling
//
// Failures that reached the API surface as *APIError carrying the HTTP
// status code and the raw response body:
//
//	_, err := client.Query(ctx, req)
//	var apiErr *greptile.APIError
//	if errors.As(err, &apiErr) && apiErr.StatusCode == 404 {
//	    // repository not indexed yet
//	}
//
// # Concurrency
//
// The client is safe for concurrent use. Config.MaxConcurrent optionally
// caps in-flight upstream calls; the default (0) leaves every call
// independent with no shared limit.
package greptile
