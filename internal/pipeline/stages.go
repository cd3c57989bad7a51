package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/sumq/internal/content"
	"github.com/kalambet/sumq/internal/flow"
	"github.com/kalambet/sumq/internal/render"
	"github.com/kalambet/sumq/internal/validate"
)

// --- fetch_video ---

type fetchResult struct {
	info    content.VideoInfo
	quality validate.Quality
}

type fetchStage struct {
	source VideoSource
	policy validate.Policy
	logger *slog.Logger
}

func (s *fetchStage) Prep(_ context.Context, st *flow.Store) (string, error) {
	url := strings.TrimSpace(flow.Get(st, KeyURL))
	if url == "" {
		return "", flow.Invalid("url is required")
	}
	return url, nil
}

func (s *fetchStage) Exec(ctx context.Context, url string) (fetchResult, error) {
	info, err := s.source.Fetch(ctx, url)
	if err != nil {
		return fetchResult{}, err
	}
	if strings.TrimSpace(info.Transcript) == "" {
		return fetchResult{}, flow.Invalid("no transcript available for %s", url)
	}
	if info.URL == "" {
		info.URL = url
	}
	q := validate.Transcript(info.Transcript)
	if !q.Valid && s.policy == validate.PolicyFail {
		return fetchResult{}, fmt.Errorf("%w: %w", flow.ErrInvalidInput, q.Err())
	}
	return fetchResult{info: info, quality: q}, nil
}

func (s *fetchStage) Post(ctx context.Context, st *flow.Store, _ string, r fetchResult) (flow.Action, error) {
	flow.Set(st, KeyVideoInfo, r.info)
	flow.Set(st, KeyTranscriptQuality, r.quality)
	if !r.quality.Valid {
		s.logger.Warn("transcript quality issues, continuing", "issues", r.quality.Issues, "words", r.quality.WordCount)
	}
	flow.Report(ctx, "fetched "+r.info.Title)
	return flow.Default, nil
}

// --- extract_topics ---

type extractStage struct {
	extractor TopicExtractor
	count     int
}

func (s *extractStage) Prep(_ context.Context, st *flow.Store) (string, error) {
	info := flow.Get(st, KeyVideoInfo)
	if strings.TrimSpace(info.Transcript) == "" {
		return "", flow.Invalid("transcript is empty")
	}
	return info.Transcript, nil
}

func (s *extractStage) Exec(ctx context.Context, transcript string) ([]content.Topic, error) {
	topics, err := s.extractor.Extract(ctx, transcript, s.count)
	if err != nil {
		return nil, err
	}
	topics = validate.Diverse(topics)
	if len(topics) > s.count {
		topics = topics[:s.count]
	}
	if len(topics) == 0 {
		return nil, flow.Invalid("no topics could be extracted from the transcript")
	}
	return topics, nil
}

func (s *extractStage) Post(ctx context.Context, st *flow.Store, _ string, topics []content.Topic) (flow.Action, error) {
	flow.Set(st, KeyTopics, topics)
	flow.Report(ctx, fmt.Sprintf("extracted %d topics", len(topics)))
	return flow.Default, nil
}

// --- generate_qa ---

type qaStage struct {
	generator QAGenerator
	count     int
}

func (s *qaStage) Prep(_ context.Context, st *flow.Store) ([]content.Topic, error) {
	return flow.Get(st, KeyTopics), nil
}

func (s *qaStage) Exec(ctx context.Context, topic content.Topic) (content.TopicQA, error) {
	pairs, err := s.generator.Generate(ctx, topic, s.count)
	if err != nil {
		return content.TopicQA{}, err
	}
	var valid []content.QAPair
	for _, p := range pairs {
		p.Question, p.Answer = strings.TrimSpace(p.Question), strings.TrimSpace(p.Answer)
		if p.Valid() {
			valid = append(valid, p)
		}
	}
	if len(valid) > s.count {
		valid = valid[:s.count]
	}
	return content.TopicQA{Topic: topic, QAPairs: valid}, nil
}

func (s *qaStage) Post(ctx context.Context, st *flow.Store, _ []content.Topic, results []content.TopicQA) (flow.Action, error) {
	flow.Set(st, KeyTopicsWithQA, results)
	n := 0
	for _, r := range results {
		n += len(r.QAPairs)
	}
	flow.Report(ctx, fmt.Sprintf("generated %d questions across %d topics", n, len(results)))
	return flow.Default, nil
}

// --- kid_friendly ---

// kidItem is one Q&A pair tagged with the position of the topic it came
// from, so results regroup by origin rather than by title.
type kidItem struct {
	TopicIndex int
	Pair       content.QAPair
}

type kidStage struct {
	simplifier Simplifier
	targetAge  int
}

func (s *kidStage) Prep(_ context.Context, st *flow.Store) ([]kidItem, error) {
	var items []kidItem
	for i, t := range flow.Get(st, KeyTopicsWithQA) {
		for _, p := range t.QAPairs {
			items = append(items, kidItem{TopicIndex: i, Pair: p})
		}
	}
	if len(items) == 0 {
		return nil, flow.Invalid("no questions were generated")
	}
	return items, nil
}

func (s *kidStage) Exec(ctx context.Context, item kidItem) (content.KidQA, error) {
	q, err := s.simplifier.Simplify(ctx, item.Pair.Question, s.targetAge)
	if err != nil {
		return content.KidQA{}, fmt.Errorf("simplifying question: %w", err)
	}
	a, err := s.simplifier.Simplify(ctx, item.Pair.Answer, s.targetAge)
	if err != nil {
		return content.KidQA{}, fmt.Errorf("simplifying answer: %w", err)
	}
	return content.KidQA{
		OriginalQuestion:    item.Pair.Question,
		OriginalAnswer:      item.Pair.Answer,
		KidFriendlyQuestion: q,
		KidFriendlyAnswer:   a,
	}, nil
}

func (s *kidStage) Post(ctx context.Context, st *flow.Store, items []kidItem, results []content.KidQA) (flow.Action, error) {
	final, err := regroup(flow.Get(st, KeyTopicsWithQA), items, results)
	if err != nil {
		return "", err
	}
	flow.Set(st, KeyFinalTopics, final)
	flow.Report(ctx, fmt.Sprintf("converted %d pairs", content.PairCount(final)))
	return flow.Default, nil
}

// regroup places each result under the topic its item came from, keeping
// topic order. Pairs left with an empty side are dropped, then topics left
// with no pairs.
func regroup(topics []content.TopicQA, items []kidItem, results []content.KidQA) ([]content.KidTopic, error) {
	grouped := make([][]content.KidQA, len(topics))
	for i, item := range items {
		qa := results[i]
		if strings.TrimSpace(qa.KidFriendlyQuestion) == "" || strings.TrimSpace(qa.KidFriendlyAnswer) == "" {
			continue
		}
		grouped[item.TopicIndex] = append(grouped[item.TopicIndex], qa)
	}
	var out []content.KidTopic
	for i, pairs := range grouped {
		if len(pairs) == 0 {
			continue
		}
		out = append(out, content.KidTopic{Title: topics[i].Topic.Title, QAPairs: pairs})
	}
	if len(out) == 0 {
		return nil, flow.Invalid("no kid-friendly pairs survived conversion")
	}
	return out, nil
}

// --- review ---

type reviewInput struct {
	topics  []content.KidTopic
	title   string
	context string
}

type reviewResult struct {
	topics []content.KidTopic
	report content.ReviewReport
}

type reviewStage struct {
	reviewer Reviewer
	logger   *slog.Logger
}

func (s *reviewStage) Prep(_ context.Context, st *flow.Store) (reviewInput, error) {
	info := flow.Get(st, KeyVideoInfo)
	return reviewInput{
		topics:  flow.Get(st, KeyFinalTopics),
		title:   info.Title,
		context: info.Transcript,
	}, nil
}

func (s *reviewStage) Exec(ctx context.Context, in reviewInput) (reviewResult, error) {
	if s.reviewer == nil {
		return reviewResult{
			topics: in.topics,
			report: content.ReviewReport{Status: content.ReviewSkipped, Reason: "not_configured"},
		}, nil
	}
	topics, report := s.reviewer.Review(ctx, in.topics, in.title, in.context)
	if err := ctx.Err(); err != nil {
		return reviewResult{}, err
	}
	return reviewResult{topics: topics, report: report}, nil
}

// ExecFallback keeps the unreviewed topics. Review never fails a run.
func (s *reviewStage) ExecFallback(_ context.Context, in reviewInput, err error) (reviewResult, error) {
	return reviewResult{
		topics: in.topics,
		report: content.ReviewReport{Status: content.ReviewSkipped, Reason: err.Error()},
	}, nil
}

func (s *reviewStage) Post(ctx context.Context, st *flow.Store, _ reviewInput, r reviewResult) (flow.Action, error) {
	flow.Set(st, KeyFinalTopics, r.topics)
	flow.Set(st, KeyReviewReport, r.report)
	s.logger.Info("review finished", "summary", r.report.Summary())
	flow.Report(ctx, r.report.Summary())
	return flow.Default, nil
}

// --- render ---

type renderInput struct {
	video  content.VideoInfo
	topics []content.KidTopic
	review content.ReviewReport
}

type renderStage struct {
	renderer Renderer
	now      func() time.Time
}

func (s *renderStage) Prep(_ context.Context, st *flow.Store) (renderInput, error) {
	return renderInput{
		video:  flow.Get(st, KeyVideoInfo),
		topics: flow.Get(st, KeyFinalTopics),
		review: flow.Get(st, KeyReviewReport),
	}, nil
}

func (s *renderStage) Exec(_ context.Context, in renderInput) (string, error) {
	sections := render.Sections(in.topics)
	if len(sections) == 0 {
		return "", flow.Invalid("nothing to render")
	}
	return s.renderer.Render(in.video.Title, in.video.ThumbnailURL, sections)
}

func (s *renderStage) Post(_ context.Context, st *flow.Store, in renderInput, html string) (flow.Action, error) {
	doc := content.Document{
		Video:       in.video,
		Topics:      in.topics,
		GeneratedAt: s.now().UTC(),
	}
	if in.review.Status != "" {
		review := in.review
		doc.Review = &review
	}
	flow.Set(st, KeyHTMLOutput, html)
	flow.Set(st, KeyDocument, doc)
	return flow.Default, nil
}

// --- save ---

type saveStage struct {
	sink   Sink
	logger *slog.Logger
}

func (s *saveStage) Prep(_ context.Context, st *flow.Store) (content.SaveRequest, error) {
	req := content.SaveRequest{
		Video:       flow.Get(st, KeyVideoInfo),
		Topics:      flow.Get(st, KeyTopics),
		KidFriendly: flow.Get(st, KeyFinalTopics),
	}
	for _, t := range flow.Get(st, KeyTopicsWithQA) {
		req.QAPairs = append(req.QAPairs, t.QAPairs...)
	}
	return req, nil
}

func (s *saveStage) Exec(ctx context.Context, req content.SaveRequest) (content.SaveResult, error) {
	res, err := s.sink.Save(ctx, req)
	if err != nil {
		return content.SaveResult{}, err
	}
	if !res.Success {
		msg := res.Error
		if msg == "" {
			msg = "sink reported failure"
		}
		return content.SaveResult{}, errors.New(msg)
	}
	return res, nil
}

// ExecFallback records the failure. Persistence never fails a run.
func (s *saveStage) ExecFallback(_ context.Context, req content.SaveRequest, err error) (content.SaveResult, error) {
	return content.SaveResult{Success: false, Title: req.Video.Title, Error: err.Error()}, nil
}

func (s *saveStage) Post(ctx context.Context, st *flow.Store, _ content.SaveRequest, r content.SaveResult) (flow.Action, error) {
	flow.Set(st, KeySaveResult, r)
	if r.Success {
		s.logger.Info("run saved", "page_url", r.PageURL)
		flow.Report(ctx, "saved "+r.PageURL)
	} else {
		s.logger.Warn("saving run failed", "error", r.Error)
		flow.Report(ctx, "save failed: "+r.Error)
	}
	return flow.Default, nil
}
