package reply

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"survey-dialer/internal/conversation"
)

type chatRequest struct {
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func TestOpenAIProvider_Complete(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer key")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1704067200,
			"model": "llama-3.1-8b-instant",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "How was the delivery?"}}]
		}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(Config{BaseURL: srv.URL + "/", APIKey: "test-key", Model: "llama-3.1-8b-instant", Timeout: 2 * time.Second})
	text, err := p.Complete(context.Background(), []conversation.Turn{
		{Role: conversation.RoleSystem, Content: "sys"},
		{Role: conversation.RoleUser, Content: "yes I did"},
	}, 120, 0.7)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if text != "How was the delivery?" {
		t.Fatalf("unexpected text %q", text)
	}
	if got.Model != "llama-3.1-8b-instant" || got.MaxTokens != 120 || got.Temperature != 0.7 {
		t.Fatalf("unexpected request params: %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Role != "user" {
		t.Fatalf("unexpected messages: %+v", got.Messages)
	}
}

func TestOpenAIProvider_ErrorFallsBackInGenerator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"message": "bad model", "type": "invalid_request_error"}}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(Config{BaseURL: srv.URL, APIKey: "k", Model: "m", MaxRetries: 0})
	g := NewGenerator(p, GeneratorOptions{Fallback: "fallback"})

	if got := g.Generate(context.Background(), []conversation.Turn{{Role: conversation.RoleSystem, Content: "s"}, {Role: conversation.RoleUser, Content: "u"}}); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
}

func TestConfigValidate(t *testing.T) {
	c := Config{APIKey: "k", Model: "m", MaxTokens: 120, Temperature: 0.7, Timeout: time.Second}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
	c.APIKey = ""
	c.MaxTokens = 0
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}
