package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"llm-chat/internal/domain"
	"llm-chat/internal/llm"
	"llm-chat/internal/repository"
	"llm-chat/internal/service"
)

// fakeHistory es una implementación en memoria de repository.ChatHistory
// para probar handlers sin Redis.
type fakeHistory struct {
	messages map[string][]domain.Message
	names    map[string]string
	created  int
	cleared  bool
}

var _ repository.ChatHistory = (*fakeHistory)(nil)

func newFakeHistory() *fakeHistory {
	return &fakeHistory{
		messages: make(map[string][]domain.Message),
		names:    make(map[string]string),
	}
}

func (f *fakeHistory) CreateSession(_ context.Context, name string) (string, error) {
	f.created++
	id := fmt.Sprintf("chat:20240101_000000_%08d", f.created)
	f.messages[id] = []domain.Message{}
	if name == "" {
		name = "New Chat"
	}
	f.names[id] = name
	return id, nil
}

func (f *fakeHistory) AddMessage(_ context.Context, sessionID string, role domain.Role, content string) error {
	if !role.Valid() {
		return repository.ErrInvalidMessage
	}
	f.messages[sessionID] = append(f.messages[sessionID], domain.Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
	return nil
}

func (f *fakeHistory) GetMessages(_ context.Context, sessionID string) ([]domain.Message, error) {
	return f.messages[sessionID], nil
}

func (f *fakeHistory) GetSessionInfo(_ context.Context, sessionID string) domain.SessionInfo {
	name := f.names[sessionID]
	if name == "" {
		name = "New Chat"
	}
	return domain.SessionInfo{
		CreatedAt:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		MessageCount: len(f.messages[sessionID]),
		Name:         name,
	}
}

func (f *fakeHistory) ListSessions(ctx context.Context) []domain.SessionSummary {
	summaries := make([]domain.SessionSummary, 0, len(f.messages))
	for id := range f.messages {
		info := f.GetSessionInfo(ctx, id)
		summaries = append(summaries, domain.SessionSummary{
			ID:           id,
			CreatedAt:    info.CreatedAt,
			MessageCount: info.MessageCount,
			Name:         info.Name,
		})
	}
	return summaries
}

func (f *fakeHistory) RenameSession(_ context.Context, sessionID, name string) bool {
	if sessionID == "" || name == "" {
		return false
	}
	f.names[sessionID] = name
	return true
}

func (f *fakeHistory) DeleteSession(_ context.Context, sessionID string) bool {
	delete(f.messages, sessionID)
	delete(f.names, sessionID)
	return true
}

func (f *fakeHistory) ClearAllSessions(_ context.Context) bool {
	f.messages = make(map[string][]domain.Message)
	f.names = make(map[string]string)
	f.cleared = true
	return true
}

func newTestRouter(history *fakeHistory, client llm.Client) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()
	chatSvc := service.NewChatService(logger, history, client, "llama3", 0.5, 2048)
	return NewRouter(logger, NewChatHandler(logger, history, chatSvc))
}

func doJSON(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateSession(t *testing.T) {
	history := newFakeHistory()
	router := newTestRouter(history, &llm.MockClient{})

	rec := doJSON(t, router, http.MethodPost, "/sessions", `{"name":"mi chat"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		ID      string             `json:"id"`
		Session domain.SessionInfo `json:"session"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID == "" {
		t.Fatalf("expected session id in response")
	}
	if resp.Session.Name != "mi chat" {
		t.Fatalf("expected session name %q, got %q", "mi chat", resp.Session.Name)
	}
}

func TestCreateSession_EmptyBody(t *testing.T) {
	history := newFakeHistory()
	router := newTestRouter(history, &llm.MockClient{})

	rec := doJSON(t, router, http.MethodPost, "/sessions", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 without body, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestListSessions(t *testing.T) {
	history := newFakeHistory()
	router := newTestRouter(history, &llm.MockClient{})
	_, _ = history.CreateSession(context.Background(), "uno")
	_, _ = history.CreateSession(context.Background(), "dos")

	rec := doJSON(t, router, http.MethodGet, "/sessions", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Sessions []domain.SessionSummary `json:"sessions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(resp.Sessions))
	}
}

func TestGetSession_UnknownReturnsDefaults(t *testing.T) {
	router := newTestRouter(newFakeHistory(), &llm.MockClient{})

	rec := doJSON(t, router, http.MethodGet, "/sessions/chat:nope", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for unknown session, got %d", rec.Code)
	}

	var resp struct {
		Session domain.SessionInfo `json:"session"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Session.Name != "New Chat" || resp.Session.MessageCount != 0 {
		t.Fatalf("expected default session info, got %+v", resp.Session)
	}
}

func TestRenameSession(t *testing.T) {
	history := newFakeHistory()
	router := newTestRouter(history, &llm.MockClient{})
	id, _ := history.CreateSession(context.Background(), "")

	rec := doJSON(t, router, http.MethodPut, "/sessions/"+id+"/name", `{"name":"renombrado"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if history.names[id] != "renombrado" {
		t.Fatalf("rename not applied, name is %q", history.names[id])
	}
}

func TestRenameSession_MissingName(t *testing.T) {
	history := newFakeHistory()
	router := newTestRouter(history, &llm.MockClient{})
	id, _ := history.CreateSession(context.Background(), "")

	rec := doJSON(t, router, http.MethodPut, "/sessions/"+id+"/name", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without name, got %d", rec.Code)
	}
}

func TestDeleteSession(t *testing.T) {
	history := newFakeHistory()
	router := newTestRouter(history, &llm.MockClient{})
	id, _ := history.CreateSession(context.Background(), "")

	rec := doJSON(t, router, http.MethodDelete, "/sessions/"+id, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if _, ok := history.messages[id]; ok {
		t.Fatalf("session %q still present after delete", id)
	}
}

func TestClearSessions(t *testing.T) {
	history := newFakeHistory()
	router := newTestRouter(history, &llm.MockClient{})
	_, _ = history.CreateSession(context.Background(), "")

	rec := doJSON(t, router, http.MethodDelete, "/sessions", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !history.cleared || len(history.messages) != 0 {
		t.Fatalf("expected all sessions cleared")
	}
}

func TestPostMessage(t *testing.T) {
	history := newFakeHistory()
	client := &llm.MockClient{Response: "hola, soy Lucy"}
	router := newTestRouter(history, client)
	id, _ := history.CreateSession(context.Background(), "")

	rec := doJSON(t, router, http.MethodPost, "/sessions/"+id+"/messages", `{"content":"hola"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var turn service.Turn
	if err := json.Unmarshal(rec.Body.Bytes(), &turn); err != nil {
		t.Fatalf("decode turn: %v", err)
	}
	if turn.UserMessage.Content != "hola" {
		t.Fatalf("unexpected user message %q", turn.UserMessage.Content)
	}
	if turn.AssistantMessage.Content != "hola, soy Lucy" {
		t.Fatalf("unexpected assistant message %q", turn.AssistantMessage.Content)
	}
	if len(history.messages[id]) != 2 {
		t.Fatalf("expected both turn messages persisted, got %d", len(history.messages[id]))
	}
}

func TestPostMessage_MissingContent(t *testing.T) {
	history := newFakeHistory()
	router := newTestRouter(history, &llm.MockClient{})
	id, _ := history.CreateSession(context.Background(), "")

	rec := doJSON(t, router, http.MethodPost, "/sessions/"+id+"/messages", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without content, got %d", rec.Code)
	}
}

func TestPostMessage_BackendUnreachable(t *testing.T) {
	history := newFakeHistory()
	client := &llm.MockClient{Err: llm.ErrConnection}
	router := newTestRouter(history, client)
	id, _ := history.CreateSession(context.Background(), "")

	rec := doJSON(t, router, http.MethodPost, "/sessions/"+id+"/messages", `{"content":"hola"}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 when backend is down, got %d", rec.Code)
	}
}

func TestPostMessage_StreamEmitsDeltasAndDone(t *testing.T) {
	history := newFakeHistory()
	client := &llm.MockClient{Fragments: []string{"Hel", "lo"}}
	router := newTestRouter(history, client)
	id, _ := history.CreateSession(context.Background(), "")

	rec := doJSON(t, router, http.MethodPost, "/sessions/"+id+"/messages", `{"content":"hola","stream":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	body := rec.Body.String()
	if !strings.Contains(body, "event:delta") {
		t.Fatalf("expected delta events in stream, got %q", body)
	}
	if !strings.Contains(body, "event:done") {
		t.Fatalf("expected done event in stream, got %q", body)
	}
	if !strings.Contains(body, "Hello") {
		t.Fatalf("expected accumulated text in stream, got %q", body)
	}
}

func TestListModels_FallbackWhenBackendFails(t *testing.T) {
	history := newFakeHistory()
	client := &llm.MockClient{ListErr: llm.ErrConnection}
	router := newTestRouter(history, client)

	rec := doJSON(t, router, http.MethodGet, "/models", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Models []domain.ModelInfo `json:"models"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Models) != 1 || resp.Models[0].Name != "llama3" {
		t.Fatalf("expected configured model fallback, got %+v", resp.Models)
	}
}
