package integration

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
)

// MockGreptile is a fake Greptile API for integration tests.
// It keeps submitted repositories in memory, records every query it
// receives, and answers with configurable canned responses.
type MockGreptile struct {
	server *httptest.Server

	mu            sync.Mutex
	repos         map[string]*RepoState
	queries       []QueryRecord
	healthy       bool
	indexCalls    int
	indexFailures int
	answer        string
	sources       []map[string]interface{}
}

// RepoState tracks one submitted repository.
type RepoState struct {
	Remote     string
	Repository string
	Branch     string
	Status     string
	Submits    int
}

// QueryRecord is one query call as the mock received it.
type QueryRecord struct {
	Messages  []map[string]interface{}
	SessionID string
	Genius    bool
	Stream    bool
}

// NewMockGreptile starts the fake API.
func NewMockGreptile() *MockGreptile {
	m := &MockGreptile{
		repos:   make(map[string]*RepoState),
		healthy: true,
		answer:  "The answer lives in internal/auth.",
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/repositories", m.handleIndex)
	mux.HandleFunc("/repositories/", m.handleStatus)
	mux.HandleFunc("/query", m.handleQuery)
	mux.HandleFunc("/health", m.handleHealth)
	m.server = httptest.NewServer(mux)
	return m
}

// URL returns the fake API's base URL.
func (m *MockGreptile) URL() string {
	return m.server.URL
}

// Close shuts the fake API down.
func (m *MockGreptile) Close() {
	m.server.Close()
}

// SetAnswer sets the canned answer text for subsequent queries.
func (m *MockGreptile) SetAnswer(answer string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answer = answer
}

// SetSources sets the canned source citations for subsequent queries.
func (m *MockGreptile) SetSources(sources []map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources = sources
}

// SetHealthy switches the health endpoint between healthy and failing.
func (m *MockGreptile) SetHealthy(healthy bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthy = healthy
}

// SetStatus overrides the indexing status of a submitted repository.
func (m *MockGreptile) SetStatus(id, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if repo, ok := m.repos[id]; ok {
		repo.Status = status
	}
}

// FailNextIndexes makes the next n index submissions fail with a 500.
func (m *MockGreptile) FailNextIndexes(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indexFailures = n
}

// Repo returns a copy of the state for an indexed repository.
func (m *MockGreptile) Repo(id string) (RepoState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	repo, ok := m.repos[id]
	if !ok {
		return RepoState{}, false
	}
	return *repo, true
}

// IndexCalls returns how many index submissions arrived, failures included.
func (m *MockGreptile) IndexCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.indexCalls
}

// Queries returns a copy of all recorded query calls.
func (m *MockGreptile) Queries() []QueryRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	queries := make([]QueryRecord, len(m.queries))
	copy(queries, m.queries)
	return queries
}

func (m *MockGreptile) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var payload struct {
		Remote     string `json:"remote"`
		Repository string `json:"repository"`
		Branch     string `json:"branch"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed payload"})
		return
	}

	m.mu.Lock()
	m.indexCalls++
	if m.indexFailures > 0 {
		m.indexFailures--
		m.mu.Unlock()
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "transient failure"})
		return
	}

	id := payload.Remote + ":" + payload.Branch + ":" + payload.Repository
	repo, ok := m.repos[id]
	if !ok {
		repo = &RepoState{
			Remote:     payload.Remote,
			Repository: payload.Repository,
			Branch:     payload.Branch,
		}
		m.repos[id] = repo
	}
	repo.Status = "processing"
	repo.Submits++
	m.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{
		"message":        "Indexing started",
		"statusEndpoint": "/repositories/" + url.PathEscape(id),
	})
}

func (m *MockGreptile) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/repositories/")

	m.mu.Lock()
	repo, ok := m.repos[id]
	m.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "repository not found"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"repository":     repo.Repository,
		"remote":         repo.Remote,
		"branch":         repo.Branch,
		"status":         repo.Status,
		"filesProcessed": 247,
		"numFiles":       247,
		"sha":            "0f3a9c1",
	})
}

func (m *MockGreptile) handleQuery(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Messages  []map[string]interface{} `json:"messages"`
		SessionID string                   `json:"sessionId"`
		Stream    bool                     `json:"stream"`
		Genius    bool                     `json:"genius"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed payload"})
		return
	}

	m.mu.Lock()
	m.queries = append(m.queries, QueryRecord{
		Messages:  payload.Messages,
		SessionID: payload.SessionID,
		Genius:    payload.Genius,
		Stream:    payload.Stream,
	})
	answer := m.answer
	sources := m.sources
	m.mu.Unlock()

	if payload.Stream {
		m.streamAnswer(w, payload.SessionID, answer, sources)
		return
	}

	body := map[string]interface{}{
		"message":    answer,
		"session_id": payload.SessionID,
	}
	if len(sources) > 0 {
		body["sources"] = sources
	}
	writeJSON(w, http.StatusOK, body)
}

// streamAnswer emits the canned answer as SSE chunks: a session marker,
// the answer text in two pieces, then one citation per source.
func (m *MockGreptile) streamAnswer(w http.ResponseWriter, sessionID, answer string, sources []map[string]interface{}) {
	w.Header().Set("Content-Type", "text/event-stream")

	writeChunk := func(chunk map[string]interface{}) {
		data, _ := json.Marshal(chunk)
		_, _ = w.Write([]byte("data: " + string(data) + "\n\n"))
	}

	writeChunk(map[string]interface{}{"type": "session", "sessionId": sessionID})

	half := len(answer) / 2
	writeChunk(map[string]interface{}{"type": "text", "content": answer[:half]})
	writeChunk(map[string]interface{}{"type": "text", "content": answer[half:]})

	for _, source := range sources {
		writeChunk(map[string]interface{}{
			"type":  "citation",
			"file":  source["filepath"],
			"lines": []interface{}{source["linestart"], source["lineend"]},
		})
	}
}

func (m *MockGreptile) handleHealth(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	healthy := m.healthy
	m.mu.Unlock()

	if !healthy {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
