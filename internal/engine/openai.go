package engine

import (
	"context"
	"time"

	"github.com/kalambet/sumq/internal/openai"
)

// OpenAIEngine adapts an OpenAI-compatible chat completion API.
type OpenAIEngine struct {
	client      *openai.Client
	temperature float64
}

func NewOpenAIEngine(apiKey, baseURL string, temperature float64) *OpenAIEngine {
	return &OpenAIEngine{
		client:      openai.NewClientWithBaseURL(apiKey, baseURL),
		temperature: temperature,
	}
}

func (e *OpenAIEngine) Name() string { return "openai" }

// Chat maps a non-nil schema to JSON mode. The schema itself is carried in
// the prompt; OpenAI-compatible servers differ too much in structured
// output support to rely on it.
func (e *OpenAIEngine) Chat(ctx context.Context, model string, messages []Message, jsonSchema *Schema) (string, error) {
	msgs := make([]openai.Message, len(messages))
	for i, m := range messages {
		msgs[i] = openai.Message{Role: m.Role, Content: m.Content}
	}
	temp := e.temperature
	req := openai.ChatRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: &temp,
	}
	if jsonSchema != nil && jsonSchema.Type == "object" {
		req.ResponseFormat = &openai.ResponseFormat{Type: "json_object"}
	}
	return e.client.Complete(ctx, req)
}

func (e *OpenAIEngine) IsRunning(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := e.client.ListModels(ctx)
	return err == nil
}
