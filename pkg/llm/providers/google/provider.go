// Package google provides a Google Gemini completion provider via the genai SDK
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"google.golang.org/genai"

	"github.com/scrivenlab/scriven/pkg/llm"
)

// Provider implements llm.Provider for Google Gemini
type Provider struct {
	config llm.Config
	client *genai.Client
}

// New creates a new Google provider
func New(ctx context.Context, cfg llm.Config) (*Provider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	return &Provider{config: cfg, client: client}, nil
}

// NewFromEnv creates a new Google provider from environment variables
func NewFromEnv(ctx context.Context) (*Provider, error) {
	model := os.Getenv("GOOGLE_MODEL")
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return New(ctx, llm.Config{
		Type:   llm.ProviderGoogle,
		APIKey: os.Getenv("GOOGLE_API_KEY"),
		Model:  model,
	})
}

func (p *Provider) Name() string           { return "google" }
func (p *Provider) Type() llm.ProviderType { return llm.ProviderGoogle }

// Chat implements llm.Provider.Chat
func (p *Provider) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.config.Model
	}

	cfg := &genai.GenerateContentConfig{}
	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}

	var contents []*genai.Content
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			// Gemini takes system text as a separate instruction block
			if cfg.SystemInstruction == nil {
				cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: m.Content}}}
			} else {
				cfg.SystemInstruction.Parts = append(cfg.SystemInstruction.Parts, &genai.Part{Text: m.Content})
			}
		case "assistant":
			contents = append(contents, &genai.Content{Role: "model", Parts: []*genai.Part{{Text: m.Content}}})
		case "tool":
			contents = append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: "Tool result: " + m.Content}}})
		default:
			contents = append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: m.Content}}})
		}
	}

	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			if t.Function == nil {
				continue
			}
			decls = append(decls, &genai.FunctionDeclaration{
				Name:                 t.Function.Name,
				Description:          t.Function.Description,
				ParametersJsonSchema: t.Function.Parameters,
			})
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	resp, err := p.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return nil, llm.Unavailable(err)
	}

	msg := llm.Message{Role: "assistant", Content: resp.Text()}
	for i, fc := range resp.FunctionCalls() {
		args, _ := json.Marshal(fc.Args)
		msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
			ID:       fmt.Sprintf("call_%d", i),
			Type:     "function",
			Function: llm.ToolFunction{Name: fc.Name, Arguments: string(args)},
		})
	}

	finish := "stop"
	if len(msg.ToolCalls) > 0 {
		finish = "tool_calls"
	}
	return &llm.ChatResponse{
		Model:   model,
		Choices: []llm.Choice{{Message: msg, FinishReason: finish}},
	}, nil
}
