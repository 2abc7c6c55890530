package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/kalambet/aether/internal/query"
)

var testMessages = []Message{
	{Role: RoleSystem, Content: "be brief"},
	{Role: RoleUser, Content: "hi"},
}

func TestOpenAI_Generate(t *testing.T) {
	var got struct {
		Model       string    `json:"model"`
		Messages    []Message `json:"messages"`
		MaxTokens   int       `json:"max_tokens"`
		Temperature float64   `json:"temperature"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Hello!"}}]}`)
	}))
	defer srv.Close()

	a := NewOpenAI("sk-test", srv.URL)
	text, err := a.Generate(context.Background(), testMessages, query.Code)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != "Hello!" {
		t.Errorf("text = %q, want %q", text, "Hello!")
	}
	if got.Model != "gpt-4o" {
		t.Errorf("model = %q, want %q", got.Model, "gpt-4o")
	}
	if got.MaxTokens != MaxTokens {
		t.Errorf("max_tokens = %d, want %d", got.MaxTokens, MaxTokens)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != RoleSystem {
		t.Errorf("messages = %+v", got.Messages)
	}
}

func TestGroq_UsesGroqModels(t *testing.T) {
	var model string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model string `json:"model"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		model = req.Model
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`)
	}))
	defer srv.Close()

	a := NewGroq("gsk-test", srv.URL)
	if a.ID() != Groq {
		t.Errorf("ID() = %q, want %q", a.ID(), Groq)
	}
	if _, err := a.Generate(context.Background(), testMessages, query.General); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if model != "llama-3.1-8b-instant" {
		t.Errorf("model = %q, want %q", model, "llama-3.1-8b-instant")
	}
}

func TestOpenAI_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	_, err := NewOpenAI("bad", srv.URL).Generate(context.Background(), testMessages, query.General)
	if !errors.Is(err, ErrCallFailed) {
		t.Fatalf("err = %v, want ErrCallFailed", err)
	}
}

func TestOpenAI_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	_, err := NewOpenAI("k", srv.URL).Generate(context.Background(), testMessages, query.General)
	if !errors.Is(err, ErrCallFailed) {
		t.Fatalf("err = %v, want ErrCallFailed", err)
	}
}

func TestAnthropic_Generate(t *testing.T) {
	var got anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			t.Errorf("path = %q, want /messages", r.URL.Path)
		}
		if k := r.Header.Get("X-API-Key"); k != "ak-test" {
			t.Errorf("X-API-Key = %q", k)
		}
		if v := r.Header.Get("anthropic-version"); v != anthropicVersion {
			t.Errorf("anthropic-version = %q", v)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		fmt.Fprint(w, `{"id":"m1","content":[{"type":"text","text":"Once "},{"type":"text","text":"upon"}]}`)
	}))
	defer srv.Close()

	msgs := []Message{
		{Role: RoleSystem, Content: "style"},
		{Role: RoleUser, Content: "first"},
		{Role: RoleSystem, Content: "page context"},
		{Role: RoleUser, Content: "second"},
	}
	text, err := NewAnthropic("ak-test", srv.URL).Generate(context.Background(), msgs, query.Creative)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != "Once upon" {
		t.Errorf("text = %q, want %q", text, "Once upon")
	}
	if got.System != "style\n\npage context" {
		t.Errorf("system = %q", got.System)
	}
	if got.Model != "claude-3-5-sonnet-latest" {
		t.Errorf("model = %q", got.Model)
	}
	if len(got.Messages) != 1 || len(got.Messages[0].Content) != 2 {
		t.Errorf("consecutive user turns not merged: %+v", got.Messages)
	}
}

func TestAnthropic_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"type":"error","error":{"type":"invalid_request_error","message":"nope"}}`)
	}))
	defer srv.Close()

	_, err := NewAnthropic("k", srv.URL).Generate(context.Background(), testMessages, query.General)
	if !errors.Is(err, ErrCallFailed) {
		t.Fatalf("err = %v, want ErrCallFailed", err)
	}
}

func TestAnthropic_OnlySystemMessages(t *testing.T) {
	_, err := NewAnthropic("k", "http://unused").Generate(context.Background(), []Message{{Role: RoleSystem, Content: "x"}}, query.General)
	if !errors.Is(err, ErrCallFailed) {
		t.Fatalf("err = %v, want ErrCallFailed", err)
	}
}

func TestSplitSystem(t *testing.T) {
	system, turns := splitSystem([]Message{
		{Role: RoleUser, Content: "a"},
		{Role: RoleAssistant, Content: "b"},
		{Role: "tool", Content: "c"},
		{Role: RoleUser, Content: "d"},
	})
	if system != "" {
		t.Errorf("system = %q, want empty", system)
	}
	if len(turns) != 3 {
		t.Fatalf("len(turns) = %d, want 3", len(turns))
	}
	if turns[2].Role != RoleUser || len(turns[2].Content) != 2 {
		t.Errorf("unknown role should merge into user turn: %+v", turns[2])
	}
}

func TestOpenRouter_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Title") != "aether" {
			t.Errorf("X-Title = %q", r.Header.Get("X-Title"))
		}
		fmt.Fprint(w, `{"id":"gen-1","choices":[{"message":{"role":"assistant","content":"Bonjour"}}]}`)
	}))
	defer srv.Close()

	text, err := NewOpenRouter("or-key", srv.URL).Generate(context.Background(), testMessages, query.Translation)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != "Bonjour" {
		t.Errorf("text = %q, want %q", text, "Bonjour")
	}
}

func TestOpenRouter_RetriesOn429(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`)
	}))
	defer srv.Close()

	text, err := NewOpenRouter("k", srv.URL).Generate(context.Background(), testMessages, query.General)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != "ok" {
		t.Errorf("text = %q, want %q", text, "ok")
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("calls = %d, want 2", n)
	}
}

func TestOpenRouter_NoRetryOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewOpenRouter("k", srv.URL).Generate(context.Background(), testMessages, query.General)
	if !errors.Is(err, ErrCallFailed) {
		t.Fatalf("err = %v, want ErrCallFailed", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}

func TestOpenRouter_CancelDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewOpenRouter("k", srv.URL).Generate(ctx, testMessages, query.General)
	if !errors.Is(err, ErrCallFailed) {
		t.Fatalf("err = %v, want ErrCallFailed", err)
	}
}

func TestOllama_Generate(t *testing.T) {
	var got ollamaChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			fmt.Fprint(w, `{"models":[]}`)
		case "/api/chat":
			json.NewDecoder(r.Body).Decode(&got)
			fmt.Fprint(w, `{"message":{"role":"assistant","content":"func main() {}"}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	a := NewOllama(srv.URL + "/")
	if !a.IsRunning(context.Background()) {
		t.Error("IsRunning = false, want true")
	}
	text, err := a.Generate(context.Background(), testMessages, query.Code)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != "func main() {}" {
		t.Errorf("text = %q", text)
	}
	if got.Model != "qwen2.5-coder" || got.Stream {
		t.Errorf("request = %+v", got)
	}
	if got.Options.NumPredict != MaxTokens {
		t.Errorf("num_predict = %d, want %d", got.Options.NumPredict, MaxTokens)
	}
}

func TestOllama_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	a := NewOllama(url)
	if a.IsRunning(context.Background()) {
		t.Error("IsRunning = true for closed server")
	}
	if _, err := a.Generate(context.Background(), testMessages, query.General); !errors.Is(err, ErrCallFailed) {
		t.Fatalf("err = %v, want ErrCallFailed", err)
	}
}

func TestWithMaxTokens(t *testing.T) {
	var got chatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`)
	}))
	defer srv.Close()

	a := NewOpenRouter("k", srv.URL)
	if _, err := a.Generate(context.Background(), testMessages, query.Summarization, WithMaxTokens(150)); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got.MaxTokens != 150 {
		t.Errorf("max_tokens = %d, want 150", got.MaxTokens)
	}

	if _, err := a.Generate(context.Background(), testMessages, query.Summarization, WithMaxTokens(99999)); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got.MaxTokens != MaxTokens {
		t.Errorf("max_tokens = %d, want ceiling %d", got.MaxTokens, MaxTokens)
	}
}
