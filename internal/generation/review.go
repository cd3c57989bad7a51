package generation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kalambet/sumq/internal/content"
)

// ReviewContextRunes bounds how much transcript is given to the reviewer.
const ReviewContextRunes = 500

// Reviewer asks the engine to correct kid-friendly Q&A pairs topic by topic.
// It never fails a run: a topic whose review fails keeps its pairs.
type Reviewer struct {
	client Chatter
	cfg    Config
	logger *slog.Logger
}

func NewReviewer(client Chatter, cfg Config) *Reviewer {
	return &Reviewer{client: client, cfg: cfg, logger: slog.Default()}
}

type improvement struct {
	QuestionNumber   int    `yaml:"question_number"`
	ImprovedQuestion string `yaml:"improved_question"`
	ImprovedAnswer   string `yaml:"improved_answer"`
	ChangesMade      string `yaml:"changes_made"`
}

type reviewResponse struct {
	Improvements []improvement `yaml:"improvements"`
}

// Review returns annotated copies of topics and a report. A nil Reviewer
// returns the input unchanged with a skipped report.
func (r *Reviewer) Review(ctx context.Context, topics []content.KidTopic, videoTitle, videoContext string) ([]content.KidTopic, content.ReviewReport) {
	if r == nil {
		return topics, content.ReviewReport{Status: content.ReviewSkipped, Reason: "not_configured"}
	}
	if rs := []rune(videoContext); len(rs) > ReviewContextRunes {
		videoContext = string(rs[:ReviewContextRunes])
	}

	out := make([]content.KidTopic, len(topics))
	report := content.ReviewReport{Status: content.ReviewCompleted}

	for i, topic := range topics {
		out[i] = copyTopic(topic)
		if ctx.Err() != nil {
			continue
		}
		if len(topic.QAPairs) == 0 {
			continue
		}

		imps, err := r.reviewTopic(ctx, topic, videoTitle, videoContext)
		report.TopicsReviewed++
		if err != nil {
			r.logger.Warn("review failed, keeping original pairs", "topic", topic.Title, "error", err)
			continue
		}
		for _, imp := range imps {
			if detail, ok := apply(&out[i], imp); ok {
				report.TotalCorrections++
				report.Details = append(report.Details, detail)
			}
		}
	}
	return out, report
}

func (r *Reviewer) reviewTopic(ctx context.Context, topic content.KidTopic, videoTitle, videoContext string) ([]improvement, error) {
	raw, err := r.client.Chat(ctx, r.cfg.Model, reviewPrompt(topic, videoTitle, videoContext, r.cfg.language()), nil)
	if err != nil {
		return nil, fmt.Errorf("review chat: %w", err)
	}
	var resp reviewResponse
	if err := yaml.Unmarshal([]byte(ExtractYAML(raw)), &resp); err != nil {
		return nil, fmt.Errorf("parsing review YAML: %w", err)
	}
	return resp.Improvements, nil
}

// apply records imp on the numbered pair of topic. It reports false when the
// number is out of range or nothing actually changed.
func apply(topic *content.KidTopic, imp improvement) (content.ReviewDetail, bool) {
	idx := imp.QuestionNumber - 1
	if idx < 0 || idx >= len(topic.QAPairs) {
		return content.ReviewDetail{}, false
	}
	qa := &topic.QAPairs[idx]
	q := strings.TrimSpace(imp.ImprovedQuestion)
	a := strings.TrimSpace(imp.ImprovedAnswer)

	changed := false
	if q != "" && q != qa.Question() {
		qa.ReviewedQuestion = q
		changed = true
	}
	if a != "" && a != qa.Answer() {
		qa.ReviewedAnswer = a
		changed = true
	}
	if !changed {
		return content.ReviewDetail{}, false
	}
	return content.ReviewDetail{
		Topic:          topic.Title,
		QuestionNumber: imp.QuestionNumber,
		Changes:        strings.TrimSpace(imp.ChangesMade),
	}, true
}

func copyTopic(t content.KidTopic) content.KidTopic {
	pairs := make([]content.KidQA, len(t.QAPairs))
	copy(pairs, t.QAPairs)
	return content.KidTopic{Title: t.Title, QAPairs: pairs}
}
