package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toolhub/toolhub/internal/db"
	"github.com/toolhub/toolhub/internal/llm"
	"github.com/toolhub/toolhub/internal/models"
	"github.com/toolhub/toolhub/internal/search"
	"github.com/toolhub/toolhub/internal/tools"
	"go.uber.org/zap"
)

type testEnv struct {
	db      *db.Database
	handler *Handler
	mux     *http.ServeMux
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	database, err := db.New(t.TempDir() + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	logger := zap.NewNop()
	registry := tools.NewRegistry()
	tools.RegisterBuiltins(registry)
	registry.Register(tools.WebSearchTool, tools.Tool{
		Description: "Search the web.",
		Handler:     func(prompt string) string { return "search results for: " + prompt },
	})

	handler := NewHandler(database,
		llm.New(logger, nil),
		search.New(database),
		tools.NewOrchestrator(registry, logger),
		registry, nil, 0, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/message", handler.HandleMessage)
	mux.HandleFunc("/api/message/cancel", handler.CancelSession)
	mux.HandleFunc("/api/conversations", handler.GetConversations)
	mux.HandleFunc("/api/conversations/update", handler.UpdateConversation)
	mux.HandleFunc("/api/conversations/delete", handler.DeleteConversation)
	mux.HandleFunc("/api/messages", handler.GetMessages)
	mux.HandleFunc("/api/messages/embedding", handler.UpsertEmbedding)
	mux.HandleFunc("/api/search", handler.SearchMessages)
	mux.HandleFunc("/api/search/semantic", handler.SemanticSearch)
	mux.HandleFunc("/api/tools", handler.GetTools)

	return &testEnv{db: database, handler: handler, mux: mux}
}

// pointModelAt aims the live-resolved endpoint config at a fake model
// server for the duration of the test.
func pointModelAt(t *testing.T, url string) {
	t.Helper()
	viper.Set("endpoint", url)
	viper.Set("model", "test-model")
	t.Cleanup(func() {
		viper.Set("endpoint", "")
		viper.Set("model", "")
	})
}

func fakeModel(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"choices":[{"message":{"content":%q}}]}`, reply)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, mux *http.ServeMux, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestConversationLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rec := postJSON(t, env.mux, "/api/conversations", CreateConversationRequest{Title: "my chat"})
	require.Equal(t, http.StatusOK, rec.Code)
	var conv models.Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conv))
	assert.Equal(t, "my chat", conv.Title)

	req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	rec = httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)
	var listed []models.Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 1)

	body, _ := json.Marshal(UpdateConversationRequest{Title: "renamed"})
	req = httptest.NewRequest(http.MethodPut,
		fmt.Sprintf("/api/conversations/update?conversation_id=%d", conv.ID), bytes.NewReader(body))
	rec = httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPut, "/api/conversations/update?conversation_id=999", bytes.NewReader(body))
	rec = httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req = httptest.NewRequest(http.MethodDelete,
		fmt.Sprintf("/api/conversations/delete?conversation_id=%d", conv.ID), nil)
	rec = httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleMessagePersistsTurn(t *testing.T) {
	env := newTestEnv(t)
	srv := fakeModel(t, "the answer")
	pointModelAt(t, srv.URL)

	conv, err := env.db.CreateConversation("New Chat")
	require.NoError(t, err)

	longPrompt := strings.Repeat("z", 80)
	rec := postJSON(t, env.mux,
		fmt.Sprintf("/api/message?conversation_id=%d", conv.ID),
		MessageRequest{Content: longPrompt})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp MessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "the answer", resp.Message.Content)
	assert.Equal(t, models.RoleAssistant, resp.Message.Role)

	messages, err := env.db.GetMessages(conv.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, models.RoleUser, messages[0].Role)
	assert.Equal(t, models.RoleAssistant, messages[1].Role)

	// First user message titles the conversation, capped at 60 runes.
	got, err := env.db.GetConversation(conv.ID)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("z", 60), got.Title)
}

func TestHandleMessageExplicitTool(t *testing.T) {
	env := newTestEnv(t)

	var modelBody struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&modelBody))
		fmt.Fprint(w, `{"choices":[{"message":{"content":"fixed"}}]}`)
	}))
	t.Cleanup(srv.Close)
	pointModelAt(t, srv.URL)

	conv, err := env.db.CreateConversation("New Chat")
	require.NoError(t, err)

	rec := postJSON(t, env.mux,
		fmt.Sprintf("/api/message?conversation_id=%d", conv.ID),
		MessageRequest{Content: "fix teh typo", Tool: tools.SpellTool})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp MessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, tools.SpellTool, resp.ToolName)
	assert.Equal(t, "fix the typo", resp.ToolOutput)

	messages, err := env.db.GetMessages(conv.ID)
	require.NoError(t, err)
	require.Len(t, messages, 3) // user, tool, assistant
	assert.Equal(t, models.RoleTool, messages[1].Role)
	assert.Equal(t, "fix the typo", messages[1].Content)

	last := modelBody.Messages[len(modelBody.Messages)-1]
	assert.Equal(t, "system", last.Role)
	assert.Contains(t, last.Content, "Tool result: fix the typo")
}

func TestHandleMessageAutoWebSearch(t *testing.T) {
	env := newTestEnv(t)
	srv := fakeModel(t, "Paris")
	pointModelAt(t, srv.URL)

	conv, err := env.db.CreateConversation("New Chat")
	require.NoError(t, err)

	rec := postJSON(t, env.mux,
		fmt.Sprintf("/api/message?conversation_id=%d", conv.ID),
		MessageRequest{Content: "what is the capital of France"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp MessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, tools.WebSearchTool, resp.ToolName)

	messages, err := env.db.GetMessages(conv.ID)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, models.RoleTool, messages[1].Role)
}

func TestHandleMessageNoAutoToolForPlainPrompt(t *testing.T) {
	env := newTestEnv(t)
	srv := fakeModel(t, "done")
	pointModelAt(t, srv.URL)

	conv, err := env.db.CreateConversation("New Chat")
	require.NoError(t, err)

	rec := postJSON(t, env.mux,
		fmt.Sprintf("/api/message?conversation_id=%d", conv.ID),
		MessageRequest{Content: "fix teh typo please"})
	require.Equal(t, http.StatusOK, rec.Code)

	messages, err := env.db.GetMessages(conv.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2) // no tool message
}

func TestHandleMessageUnknownConversation(t *testing.T) {
	env := newTestEnv(t)
	rec := postJSON(t, env.mux, "/api/message?conversation_id=12345",
		MessageRequest{Content: "hello there"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStreamingTurn(t *testing.T) {
	env := newTestEnv(t)

	model := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(model.Close)
	pointModelAt(t, model.URL)

	conv, err := env.db.CreateConversation("New Chat")
	require.NoError(t, err)

	front := httptest.NewServer(env.mux)
	t.Cleanup(front.Close)

	body, _ := json.Marshal(MessageRequest{Content: "greet me please", Stream: true})
	resp, err := http.Post(
		fmt.Sprintf("%s/api/message?conversation_id=%d", front.URL, conv.ID),
		"application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	var raw bytes.Buffer
	_, err = raw.ReadFrom(resp.Body)
	require.NoError(t, err)
	out := raw.String()
	assert.Contains(t, out, "event: session")
	assert.Contains(t, out, "event: chunk")
	assert.Contains(t, out, `"state":"completed"`)
	assert.Contains(t, out, "Hello")

	messages, err := env.db.GetMessages(conv.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "Hello", messages[1].Content)
}

func TestKeywordSearchEndpoint(t *testing.T) {
	env := newTestEnv(t)

	conv, err := env.db.CreateConversation("chatter")
	require.NoError(t, err)
	_, err = env.db.AddMessage(conv.ID, models.RoleUser, "tell me about the weather")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/search?q=WEATHER", nil)
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var results []models.KeywordResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 1)
	assert.Equal(t, conv.ID, results[0].ConvID)
	assert.Contains(t, results[0].Snippet, "weather")
}

func TestSemanticSearchEndpoint(t *testing.T) {
	env := newTestEnv(t)

	conv, err := env.db.CreateConversation("vectors")
	require.NoError(t, err)
	m1, err := env.db.AddMessage(conv.ID, models.RoleUser, "first")
	require.NoError(t, err)
	m2, err := env.db.AddMessage(conv.ID, models.RoleUser, "second")
	require.NoError(t, err)
	require.NoError(t, env.db.UpsertMessageEmbedding(m1, []float64{1, 0}))
	require.NoError(t, env.db.UpsertMessageEmbedding(m2, []float64{0, 1}))

	rec := postJSON(t, env.mux, "/api/search/semantic",
		SemanticSearchRequest{Vector: []float64{1, 0}, TopK: 1})
	require.Equal(t, http.StatusOK, rec.Code)

	var results []models.SemanticResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 1)
	assert.Equal(t, m1, results[0].Message.MessageID)

	// Mismatched query dimension fails closed.
	rec = postJSON(t, env.mux, "/api/search/semantic",
		SemanticSearchRequest{Vector: []float64{1, 0, 0}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpsertEmbeddingEndpoint(t *testing.T) {
	env := newTestEnv(t)

	conv, err := env.db.CreateConversation("attach")
	require.NoError(t, err)
	msgID, err := env.db.AddMessage(conv.ID, models.RoleUser, "embed me")
	require.NoError(t, err)

	rec := postJSON(t, env.mux, "/api/messages/embedding",
		UpsertEmbeddingRequest{MessageID: msgID, Vector: []float64{0.1, 0.2}})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = postJSON(t, env.mux, "/api/messages/embedding",
		UpsertEmbeddingRequest{MessageID: 999, Vector: []float64{0.1}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelUnknownSession(t *testing.T) {
	env := newTestEnv(t)
	rec := postJSON(t, env.mux, "/api/message/cancel?session=nope", struct{}{})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestToolsEndpointListsRegistry(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/tools", nil)
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var infos []struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &infos))
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name)
	}
	assert.Contains(t, names, tools.ShellTool)
	assert.Contains(t, names, tools.WebSearchTool)
}
