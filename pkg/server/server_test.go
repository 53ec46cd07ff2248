package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partforge/partforge/pkg/agent"
	"github.com/partforge/partforge/pkg/history"
	"github.com/partforge/partforge/pkg/onshape"
)

// scriptedProvider replays canned model responses in order, clamping to
// the last one.
type scriptedProvider struct {
	mu    sync.Mutex
	steps []*agent.LLMResponse
	calls int
}

func (p *scriptedProvider) Call(_ context.Context, _ agent.LLMRequest) (*agent.LLMResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := p.calls
	if idx >= len(p.steps) {
		idx = len(p.steps) - 1
	}
	p.calls++
	return p.steps[idx], nil
}

func (p *scriptedProvider) Provider() string { return "scripted" }

// blockingProvider parks the model call until released so tests can
// observe the busy state.
type blockingProvider struct {
	startedOnce sync.Once
	started     chan struct{}
	release     chan struct{}
}

func newBlockingProvider() *blockingProvider {
	return &blockingProvider{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (p *blockingProvider) Call(ctx context.Context, _ agent.LLMRequest) (*agent.LLMResponse, error) {
	p.startedOnce.Do(func() { close(p.started) })
	select {
	case <-p.release:
		return &agent.LLMResponse{Content: "Created the part."}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *blockingProvider) Provider() string { return "scripted" }

func newTestService(t *testing.T, provider agent.LLMProvider) *agent.Service {
	t.Helper()

	registry := agent.NewRegistry(time.Second, zerolog.Nop())
	require.NoError(t, registry.Register(agent.ToolDefinition{
		Name:        "create_document",
		Description: "Create a CAD document.",
		Parameters: []agent.ToolParameter{
			{Name: "name", Type: "string", Description: "Document name.", Required: true},
		},
		Handler: func(_ context.Context, _ map[string]interface{}, session *agent.Session) (interface{}, error) {
			session.SetDocument("doc-1", "ws-1")
			return "created document doc-1", nil
		},
	}))
	registry.Seal()

	runner, err := agent.NewRunner(provider, registry, agent.Config{
		Model:        "test-model",
		MaxRounds:    4,
		ModelTimeout: time.Second,
	}, nil, zerolog.Nop())
	require.NoError(t, err)

	service, err := agent.NewService(runner, registry, nil, nil, zerolog.Nop())
	require.NoError(t, err)
	return service
}

func newTestServer(t *testing.T, service *agent.Service) *Server {
	t.Helper()
	srv, err := New(Config{
		Service:      service,
		DrainTimeout: 100 * time.Millisecond,
		Logger:       zerolog.Nop(),
	})
	require.NoError(t, err)
	return srv
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func getPath(handler http.HandlerFunc, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestNew_RequiresService(t *testing.T) {
	_, err := New(Config{Logger: zerolog.Nop()})
	assert.ErrorContains(t, err, "agent service is required")
}

func TestNew_Defaults(t *testing.T) {
	srv := newTestServer(t, newTestService(t, &scriptedProvider{steps: []*agent.LLMResponse{{Content: "ok"}}}))
	assert.Equal(t, "127.0.0.1", srv.config.Host)
	assert.Equal(t, 8320, srv.config.Port)
}

func TestHandleCreatePart(t *testing.T) {
	provider := &scriptedProvider{steps: []*agent.LLMResponse{
		{ToolCalls: []agent.ToolCall{{ID: "call-1", Name: "create_document", Parameters: map[string]interface{}{"name": "Box"}}}},
		{Content: "Created the part."},
	}}
	srv := newTestServer(t, newTestService(t, provider))

	rec := postJSON(t, srv.handleCreatePart, "/api/parts", createPartRequest{Description: "a box"})
	require.Equal(t, http.StatusOK, rec.Code)

	var result agent.PartResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.True(t, result.Success)
	assert.Equal(t, "Created the part.", result.Message)
	assert.Equal(t, "doc-1", result.Session.DocumentID)
	assert.NotEmpty(t, result.RunID)
}

func TestHandleCreatePart_MethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, newTestService(t, &scriptedProvider{steps: []*agent.LLMResponse{{Content: "ok"}}}))

	rec := getPath(srv.handleCreatePart, "/api/parts")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleCreatePart_InvalidJSON(t *testing.T) {
	srv := newTestServer(t, newTestService(t, &scriptedProvider{steps: []*agent.LLMResponse{{Content: "ok"}}}))

	req := httptest.NewRequest(http.MethodPost, "/api/parts", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	srv.handleCreatePart(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid JSON body")
}

func TestHandleCreatePart_EmptyDescription(t *testing.T) {
	srv := newTestServer(t, newTestService(t, &scriptedProvider{steps: []*agent.LLMResponse{{Content: "ok"}}}))

	rec := postJSON(t, srv.handleCreatePart, "/api/parts", createPartRequest{Description: "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "description cannot be empty")
}

func TestHandleCreatePart_BusyConflict(t *testing.T) {
	provider := newBlockingProvider()
	srv := newTestServer(t, newTestService(t, provider))

	firstDone := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		firstDone <- postJSON(t, srv.handleCreatePart, "/api/parts", createPartRequest{Description: "a slow part"})
	}()

	<-provider.started

	rec := postJSON(t, srv.handleCreatePart, "/api/parts", createPartRequest{Description: "another part"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "already in progress")

	close(provider.release)
	first := <-firstDone
	assert.Equal(t, http.StatusOK, first.Code)
}

func TestHandleStatus(t *testing.T) {
	provider := &scriptedProvider{steps: []*agent.LLMResponse{
		{ToolCalls: []agent.ToolCall{{ID: "call-1", Name: "create_document", Parameters: map[string]interface{}{"name": "Box"}}}},
		{Content: "Created the part."},
	}}
	service := newTestService(t, provider)
	srv := newTestServer(t, service)

	rec := getPath(srv.handleStatus, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var status statusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.Empty(t, status.SessionState.DocumentID)
	assert.False(t, status.Busy)

	_, err := service.CreatePart(context.Background(), "a box")
	require.NoError(t, err)

	rec = getPath(srv.handleStatus, "/api/status")
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.Equal(t, "doc-1", status.SessionState.DocumentID)
	assert.Equal(t, "ws-1", status.SessionState.WorkspaceID)
}

func TestHandleReset(t *testing.T) {
	provider := &scriptedProvider{steps: []*agent.LLMResponse{
		{ToolCalls: []agent.ToolCall{{ID: "call-1", Name: "create_document", Parameters: map[string]interface{}{"name": "Box"}}}},
		{Content: "Created the part."},
	}}
	service := newTestService(t, provider)
	srv := newTestServer(t, service)

	_, err := service.CreatePart(context.Background(), "a box")
	require.NoError(t, err)
	require.Equal(t, "doc-1", service.Status().DocumentID)

	rec := postJSON(t, srv.handleReset, "/api/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var status statusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.Empty(t, status.SessionState.DocumentID)
	assert.Empty(t, status.SessionState.WorkspaceID)
	assert.Empty(t, status.SessionState.ElementID)
}

func TestHandleTools(t *testing.T) {
	srv := newTestServer(t, newTestService(t, &scriptedProvider{steps: []*agent.LLMResponse{{Content: "ok"}}}))

	rec := getPath(srv.handleTools, "/api/tools")
	require.Equal(t, http.StatusOK, rec.Code)

	var tools toolsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&tools))
	require.Len(t, tools.Tools, 1)
	assert.Equal(t, "create_document", tools.Tools[0].Name)
}

func TestHandleDocuments(t *testing.T) {
	platform := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v10/documents", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items": [{"id": "doc-1", "name": "Box", "defaultWorkspace": {"id": "ws-1"}}]}`))
	}))
	defer platform.Close()

	cad, err := onshape.NewClient(onshape.Config{
		BaseURL:     platform.URL,
		Credentials: onshape.Credentials{AccessKey: "ak", SecretKey: "sk"},
		RetryDelay:  time.Millisecond,
		Logger:      zerolog.Nop(),
	})
	require.NoError(t, err)

	service := newTestService(t, &scriptedProvider{steps: []*agent.LLMResponse{{Content: "ok"}}})
	srv, err := New(Config{Service: service, CAD: cad, Logger: zerolog.Nop()})
	require.NoError(t, err)

	rec := getPath(srv.handleDocuments, "/api/documents?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)

	var docs documentsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&docs))
	require.Len(t, docs.Documents, 1)
	assert.Equal(t, "doc-1", docs.Documents[0].ID)
}

func TestHandleDocuments_NotConfigured(t *testing.T) {
	srv := newTestServer(t, newTestService(t, &scriptedProvider{steps: []*agent.LLMResponse{{Content: "ok"}}}))

	rec := getPath(srv.handleDocuments, "/api/documents")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "not configured")
}

func TestHandleHistory_NoStore(t *testing.T) {
	srv := newTestServer(t, newTestService(t, &scriptedProvider{steps: []*agent.LLMResponse{{Content: "ok"}}}))

	rec := getPath(srv.handleHistory, "/api/history")
	require.Equal(t, http.StatusOK, rec.Code)

	var runs historyResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&runs))
	assert.Empty(t, runs.Runs)
}

func TestHandleHistory_WithStore(t *testing.T) {
	store, err := history.Open(history.Config{
		Path:   filepath.Join(t.TempDir(), "history.db"),
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.RecordRun(context.Background(), agent.RunRecord{
		ID:          "run-1",
		Description: "a box",
		Outcome:     agent.OutcomeCompleted,
		Model:       "test-model",
		Rounds:      2,
	}))

	service := newTestService(t, &scriptedProvider{steps: []*agent.LLMResponse{{Content: "ok"}}})
	srv, err := New(Config{Service: service, History: store, Logger: zerolog.Nop()})
	require.NoError(t, err)

	rec := getPath(srv.handleHistory, "/api/history")
	require.Equal(t, http.StatusOK, rec.Code)

	var runs historyResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&runs))
	require.Len(t, runs.Runs, 1)
	assert.Equal(t, "run-1", runs.Runs[0].ID)
	assert.Equal(t, agent.OutcomeCompleted, runs.Runs[0].Outcome)
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t, newTestService(t, &scriptedProvider{steps: []*agent.LLMResponse{{Content: "ok"}}}))

	rec := getPath(srv.handleHealth, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestStop_RefusesNewRequests(t *testing.T) {
	srv := newTestServer(t, newTestService(t, &scriptedProvider{steps: []*agent.LLMResponse{{Content: "ok"}}}))

	require.NoError(t, srv.Stop())

	rec := getPath(srv.handleStatus, "/api/status")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = postJSON(t, srv.handleCreatePart, "/api/parts", createPartRequest{Description: "a box"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
