// Package llm provides the completion-service abstraction layer
package llm

import (
	"context"
	"errors"
	"fmt"
)

// ProviderType represents the type of completion provider
type ProviderType string

const (
	ProviderOpenAI ProviderType = "openai"
	ProviderGoogle ProviderType = "google"
	ProviderCustom ProviderType = "custom"
)

// Message represents a chat message
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall represents a function tool call requested by the model
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction carries the requested function name and raw JSON arguments
type ToolFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool describes a callable function in the request catalog
type Tool struct {
	Type     string   `json:"type"`
	Function *ToolDef `json:"function,omitempty"`
}

// ToolDef is the schema half of a tool catalog entry
type ToolDef struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  interface{} `json:"parameters"`
}

// ChatRequest represents a chat completion request
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Tools       []Tool    `json:"tools,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

// ChatResponse represents a chat completion response
type ChatResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Provider defines the interface for completion providers
type Provider interface {
	Name() string
	Type() ProviderType
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
}

// ErrUnavailable wraps transport failures, timeouts and non-2xx statuses from
// the completion service. Callers treat it as fatal for the current turn.
var ErrUnavailable = errors.New("completion service unavailable")

// Unavailable tags err as a completion-service availability failure
func Unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// Config holds provider configuration
type Config struct {
	Type    ProviderType `json:"type"`
	APIKey  string       `json:"apiKey,omitempty"`
	BaseURL string       `json:"baseUrl,omitempty"`
	Model   string       `json:"model,omitempty"`
	Timeout int          `json:"timeout,omitempty"`
}

// FirstText returns the text of the first choice, if any
func (r *ChatResponse) FirstText() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// FirstToolCalls returns tool calls from the first choice with the
// empty-name entries some providers emit filtered out
func (r *ChatResponse) FirstToolCalls() []ToolCall {
	if r == nil || len(r.Choices) == 0 {
		return nil
	}
	calls := make([]ToolCall, 0, len(r.Choices[0].Message.ToolCalls))
	for _, tc := range r.Choices[0].Message.ToolCalls {
		if tc.Function.Name != "" {
			calls = append(calls, tc)
		}
	}
	return calls
}
