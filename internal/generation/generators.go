// Package generation turns transcripts into topics, questions and
// child-friendly rewrites using a chat engine.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kalambet/sumq/internal/content"
	"github.com/kalambet/sumq/internal/engine"
)

// MaxTranscriptRunes bounds how much transcript is sent for topic extraction.
const MaxTranscriptRunes = 3000

// Chatter is the slice of engine.Engine the generators need.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []engine.Message, jsonSchema *engine.Schema) (string, error)
}

// Config is shared by all generators.
type Config struct {
	Model    string
	Language string
}

func (c Config) language() string {
	if c.Language == "" {
		return DefaultLanguage
	}
	return c.Language
}

// TopicExtractor finds the distinct topics of a transcript.
type TopicExtractor struct {
	client Chatter
	cfg    Config
}

func NewTopicExtractor(client Chatter, cfg Config) *TopicExtractor {
	return &TopicExtractor{client: client, cfg: cfg}
}

// Extract returns at most count topics. Topics with a blank title or
// content are dropped. Chat and parse failures are returned as errors so the
// caller can retry.
func (e *TopicExtractor) Extract(ctx context.Context, transcript string, count int) ([]content.Topic, error) {
	if count < 1 {
		return nil, fmt.Errorf("topic extraction: count must be positive, got %d", count)
	}
	if r := []rune(transcript); len(r) > MaxTranscriptRunes {
		transcript = string(r[:MaxTranscriptRunes])
	}

	raw, err := e.client.Chat(ctx, e.cfg.Model, topicsPrompt(transcript, count, e.cfg.language()), nil)
	if err != nil {
		return nil, fmt.Errorf("topic extraction: %w", err)
	}

	var parsed []content.Topic
	if err := decodeJSON(raw, &parsed); err != nil {
		return nil, fmt.Errorf("topic extraction: %w", err)
	}

	topics := make([]content.Topic, 0, len(parsed))
	for _, t := range parsed {
		t.Title = strings.TrimSpace(t.Title)
		t.Content = strings.TrimSpace(t.Content)
		if t.Title == "" || t.Content == "" {
			continue
		}
		topics = append(topics, t)
		if len(topics) == count {
			break
		}
	}
	return topics, nil
}

// QAGenerator writes question/answer pairs for a topic.
type QAGenerator struct {
	client Chatter
	cfg    Config
}

func NewQAGenerator(client Chatter, cfg Config) *QAGenerator {
	return &QAGenerator{client: client, cfg: cfg}
}

// Generate returns at most count pairs, skipping pairs with an empty side.
func (g *QAGenerator) Generate(ctx context.Context, topic content.Topic, count int) ([]content.QAPair, error) {
	if count < 1 {
		return nil, fmt.Errorf("question generation: count must be positive, got %d", count)
	}

	raw, err := g.client.Chat(ctx, g.cfg.Model, questionsPrompt(topic, count, g.cfg.language()), nil)
	if err != nil {
		return nil, fmt.Errorf("question generation for %q: %w", topic.Title, err)
	}

	var parsed []content.QAPair
	if err := decodeJSON(raw, &parsed); err != nil {
		return nil, fmt.Errorf("question generation for %q: %w", topic.Title, err)
	}

	pairs := make([]content.QAPair, 0, len(parsed))
	for _, p := range parsed {
		p.Question = strings.TrimSpace(p.Question)
		p.Answer = strings.TrimSpace(p.Answer)
		if !p.Valid() {
			continue
		}
		pairs = append(pairs, p)
		if len(pairs) == count {
			break
		}
	}
	return pairs, nil
}

// Simplifier rewrites text for a young audience.
type Simplifier struct {
	client Chatter
	cfg    Config
}

func NewSimplifier(client Chatter, cfg Config) *Simplifier {
	return &Simplifier{client: client, cfg: cfg}
}

var errEmptyRewrite = errors.New("engine returned an empty rewrite")

// Simplify returns text rewritten for a child of targetAge.
func (s *Simplifier) Simplify(ctx context.Context, text string, targetAge int) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	raw, err := s.client.Chat(ctx, s.cfg.Model, simplifyPrompt(text, targetAge, s.cfg.language()), nil)
	if err != nil {
		return "", fmt.Errorf("simplify: %w", err)
	}
	out := cleanText(raw)
	if out == "" {
		return "", fmt.Errorf("simplify: %w", errEmptyRewrite)
	}
	return out, nil
}
