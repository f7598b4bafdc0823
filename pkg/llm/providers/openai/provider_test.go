package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/scrivenlab/scriven/pkg/llm"
)

func TestChat(t *testing.T) {
	var gotAuth, gotPath string
	var gotReq llm.ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(llm.ChatResponse{
			Choices: []llm.Choice{{Message: llm.Message{Role: "assistant", Content: "hello"}}},
		})
	}))
	defer srv.Close()

	p := New(llm.Config{APIKey: "sk-test", BaseURL: srv.URL, Model: "default-model"})

	resp, err := p.Chat(context.Background(), &llm.ChatRequest{
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if gotPath != "/chat/completions" {
		t.Errorf("Expected /chat/completions, got %s", gotPath)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Expected bearer auth, got %q", gotAuth)
	}
	if gotReq.Model != "default-model" {
		t.Errorf("Empty model should fall back to config, got %q", gotReq.Model)
	}
	if resp.FirstText() != "hello" {
		t.Errorf("Expected hello, got %q", resp.FirstText())
	}
}

func TestChatErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := New(llm.Config{BaseURL: srv.URL, Model: "m"})
	_, err := p.Chat(context.Background(), &llm.ChatRequest{})
	if !errors.Is(err, llm.ErrUnavailable) {
		t.Errorf("Non-200 must wrap ErrUnavailable, got %v", err)
	}
}

func TestChatTransportError(t *testing.T) {
	p := New(llm.Config{BaseURL: "http://127.0.0.1:1", Model: "m"})
	_, err := p.Chat(context.Background(), &llm.ChatRequest{})
	if !errors.Is(err, llm.ErrUnavailable) {
		t.Errorf("Transport failure must wrap ErrUnavailable, got %v", err)
	}
}
