package engine

import (
	"fmt"
	"log/slog"
)

// Backend names accepted by Detect.
const (
	BackendAuto   = "auto"
	BackendOpenAI = "openai"
	BackendOllama = "ollama"
	BackendMock   = "mock"
)

// DetectConfig holds parameters for backend selection.
type DetectConfig struct {
	Backend       string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OllamaBaseURL string
	Temperature   float64
}

// Detect returns the engine named by cfg.Backend. In auto mode an OpenAI
// key selects the OpenAI backend and its absence falls back to the offline
// mock.
func Detect(cfg DetectConfig) (Engine, error) {
	switch cfg.Backend {
	case "", BackendAuto:
		if cfg.OpenAIAPIKey != "" {
			return NewOpenAIEngine(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.Temperature), nil
		}
		slog.Warn("no OpenAI API key configured, using offline mock engine")
		return NewMockEngine(), nil
	case BackendOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("backend %q requires llm.openai_api_key (or SUMQ_OPENAI_API_KEY)", cfg.Backend)
		}
		return NewOpenAIEngine(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.Temperature), nil
	case BackendOllama:
		return NewOllamaEngine(cfg.OllamaBaseURL, cfg.Temperature), nil
	case BackendMock:
		return NewMockEngine(), nil
	default:
		return nil, fmt.Errorf("unknown llm backend %q (want auto, openai, ollama or mock)", cfg.Backend)
	}
}
