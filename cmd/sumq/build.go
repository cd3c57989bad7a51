package main

import (
	"context"
	"fmt"
	"os"

	"github.com/kalambet/sumq/internal/config"
	"github.com/kalambet/sumq/internal/engine"
	"github.com/kalambet/sumq/internal/generation"
	"github.com/kalambet/sumq/internal/notion"
	"github.com/kalambet/sumq/internal/pipeline"
	"github.com/kalambet/sumq/internal/validate"
	"github.com/kalambet/sumq/internal/video"
)

// Default chat models per backend, used when llm.model is empty.
var defaultModels = map[string]string{
	engine.BackendOpenAI: "gpt-4o-mini",
	engine.BackendOllama: "llama3.2",
	engine.BackendMock:   "mock",
}

func chatModel(cfg config.Config, eng engine.Engine) string {
	if cfg.LLM.Model != "" {
		return cfg.LLM.Model
	}
	return defaultModels[eng.Name()]
}

// prepareEngine selects the chat backend and waits until it can serve the
// configured model.
func prepareEngine(ctx context.Context, cfg config.Config) (engine.Engine, string, error) {
	eng, err := engine.Detect(engine.DetectConfig{
		Backend:       cfg.LLM.Backend,
		OpenAIAPIKey:  cfg.LLM.OpenAIAPIKey,
		OpenAIBaseURL: cfg.LLM.OpenAIBaseURL,
		OllamaBaseURL: cfg.LLM.OllamaBaseURL,
		Temperature:   cfg.LLM.Temperature,
	})
	if err != nil {
		return nil, "", fmt.Errorf("selecting llm backend: %w", err)
	}
	model := chatModel(cfg, eng)
	if err := engine.EnsureReady(ctx, eng, []string{model}, os.Stderr); err != nil {
		return nil, "", err
	}
	return eng, model, nil
}

// newRunner wires the collaborators named by cfg around eng. outputDir may
// be empty to skip writing files.
func newRunner(cfg config.Config, eng engine.Engine, model, outputDir string) (*pipeline.Runner, error) {
	policy, err := validate.ParsePolicy(cfg.Pipeline.QualityPolicy)
	if err != nil {
		return nil, err
	}
	timeout, err := cfg.Pipeline.Timeout()
	if err != nil {
		return nil, err
	}

	gen := generation.Config{Model: model, Language: cfg.Pipeline.Language}
	deps := pipeline.Deps{
		Source:     video.NewResolver(video.NewYouTube()),
		Extractor:  generation.NewTopicExtractor(eng, gen),
		QA:         generation.NewQAGenerator(eng, gen),
		Simplifier: generation.NewSimplifier(eng, gen),
	}
	if cfg.Pipeline.Review {
		deps.Reviewer = generation.NewReviewer(eng, gen)
	}
	if cfg.Notion.Enabled() {
		nc, err := notion.New(cfg.Notion.Token, cfg.Notion.DatabaseID)
		if err != nil {
			return nil, err
		}
		deps.Sink = nc.WithTargetAge(cfg.Pipeline.TargetAge)
	}

	return pipeline.NewRunner(deps, pipeline.Options{
		TopicCount:        cfg.Pipeline.TopicCount,
		QuestionsPerTopic: cfg.Pipeline.QuestionsPerTopic,
		TargetAge:         cfg.Pipeline.TargetAge,
		Workers:           cfg.Pipeline.Workers,
		QualityPolicy:     policy,
		OutputDir:         outputDir,
		StageTimeout:      timeout,
	})
}
