package ai

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/parleychat/parley/internal/middleware"
	"github.com/parleychat/parley/internal/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fakeClient returns canned replies in order, then repeats the last.
type fakeClient struct {
	replies []string
	errs    []error
	calls   int
	seen    [][]models.ChatMessage
}

func (f *fakeClient) Complete(ctx context.Context, agent *models.Agent, messages []models.ChatMessage, maxTokens int) (string, error) {
	idx := f.calls
	f.calls++
	f.seen = append(f.seen, messages)
	if idx < len(f.errs) && f.errs[idx] != nil {
		return "", f.errs[idx]
	}
	if idx >= len(f.replies) {
		idx = len(f.replies) - 1
	}
	return f.replies[idx], nil
}

func testAgent() *models.Agent {
	return &models.Agent{
		ID:          "agent1",
		Name:        "Ada",
		Personality: "You are Ada, a thoughtful engineer.",
		Model:       "test-model",
		TokenLimit:  200,
	}
}

func TestHTTPClientSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"hello from the model"}}]}`))
	}))
	defer server.Close()

	agent := testAgent()
	agent.Endpoint = server.URL
	agent.APIKey = "secret"

	client := NewHTTPClient(nil, middleware.NewMetrics(), testLogger())
	got, err := client.Complete(context.Background(), agent, []models.ChatMessage{{Role: "user", Content: "hi"}}, 100)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "hello from the model" {
		t.Errorf("got %q", got)
	}
}

func TestHTTPClientDoesNotRetryClientErrors(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, `{"error":{"message":"bad key"}}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	agent := testAgent()
	agent.Endpoint = server.URL

	client := NewHTTPClient(nil, middleware.NewMetrics(), testLogger())
	_, err := client.Complete(context.Background(), agent, nil, 100)
	if err == nil {
		t.Fatal("expected an error")
	}
	if calls != 1 {
		t.Errorf("server saw %d calls, want 1", calls)
	}
}

func TestHTTPClientSurfacesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"message":"model overloaded"}}`))
	}))
	defer server.Close()

	agent := testAgent()
	agent.Endpoint = server.URL

	client := NewHTTPClient(nil, middleware.NewMetrics(), testLogger())
	_, err := client.Complete(context.Background(), agent, nil, 100)
	if err == nil || !strings.Contains(err.Error(), "model overloaded") {
		t.Errorf("err = %v, want the API error message", err)
	}
}

func TestEffectiveLimit(t *testing.T) {
	if got := EffectiveLimit(200); got != 190 {
		t.Errorf("EffectiveLimit(200) = %d, want 190", got)
	}
	if got := EffectiveLimit(100); got != 95 {
		t.Errorf("EffectiveLimit(100) = %d, want 95", got)
	}
}

func TestGeneratePassesContextAsAssistantTurns(t *testing.T) {
	client := &fakeClient{replies: []string{"short reply"}}
	gen := NewGenerator(client, NewSummarizer(client, middleware.NewMetrics(), testLogger()), testLogger())

	_, err := gen.Generate(context.Background(), testAgent(), "Ada, what do you think?", []string{"Grace: hello", "You: hi"}, 200)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	messages := client.seen[0]
	if messages[0].Role != "system" || !strings.Contains(messages[0].Content, "group chat") {
		t.Errorf("system message = %+v", messages[0])
	}
	if messages[1].Role != "assistant" || messages[1].Content != "Grace: hello" {
		t.Errorf("context message = %+v", messages[1])
	}
	if last := messages[len(messages)-1]; last.Role != "user" || last.Content != "Ada, what do you think?" {
		t.Errorf("prompt message = %+v", last)
	}
}

func TestGenerateCondensesOversizeReply(t *testing.T) {
	long := strings.Repeat("word ", 500)
	client := &fakeClient{replies: []string{long, "a concise in-character reply"}}
	gen := NewGenerator(client, NewSummarizer(client, middleware.NewMetrics(), testLogger()), testLogger())

	got, err := gen.Generate(context.Background(), testAgent(), "hello", nil, 200)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "a concise in-character reply" {
		t.Errorf("got %q, want the smart summary", got)
	}
}

func TestCondenseFallsBackToTruncation(t *testing.T) {
	long := strings.Repeat("word ", 500)
	// Every summarization attempt fails; truncation must still fit.
	client := &fakeClient{
		replies: []string{"", ""},
		errs:    []error{errors.New("down"), errors.New("down")},
	}
	s := NewSummarizer(client, middleware.NewMetrics(), testLogger())

	got := s.Condense(context.Background(), testAgent(), long, 50)
	if !strings.HasSuffix(got, "...") {
		t.Errorf("truncated result missing ellipsis: %q", got[len(got)-10:])
	}
	if len([]rune(got)) > 50*4+3 {
		t.Errorf("truncated result too long: %d runes", len([]rune(got)))
	}
}

func TestCondenseReturnsShortTextUnchanged(t *testing.T) {
	client := &fakeClient{replies: []string{"unused"}}
	s := NewSummarizer(client, middleware.NewMetrics(), testLogger())

	if got := s.Condense(context.Background(), testAgent(), "already short", 100); got != "already short" {
		t.Errorf("got %q", got)
	}
	if client.calls != 0 {
		t.Errorf("client was called %d times for a fitting text", client.calls)
	}
}
