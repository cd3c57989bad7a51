// Package pipeline wires the video summarization stages into a flow and runs
// it once per request.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/sumq/internal/content"
	"github.com/kalambet/sumq/internal/flow"
	"github.com/kalambet/sumq/internal/render"
	"github.com/kalambet/sumq/internal/validate"
)

const (
	fetchWait      = 5 * time.Second
	generationWait = 2 * time.Second
	finishWait     = 1 * time.Second
)

// Defaults applied by NewRunner to zero Options fields.
const (
	DefaultTopicCount        = 5
	DefaultQuestionsPerTopic = 3
	DefaultTargetAge         = 5
)

type VideoSource interface {
	Fetch(ctx context.Context, url string) (content.VideoInfo, error)
}

type TopicExtractor interface {
	Extract(ctx context.Context, transcript string, count int) ([]content.Topic, error)
}

type QAGenerator interface {
	Generate(ctx context.Context, topic content.Topic, count int) ([]content.QAPair, error)
}

type Simplifier interface {
	Simplify(ctx context.Context, text string, targetAge int) (string, error)
}

// Reviewer corrects kid-friendly pairs. It reports problems in the returned
// report instead of failing.
type Reviewer interface {
	Review(ctx context.Context, topics []content.KidTopic, videoTitle, videoContext string) ([]content.KidTopic, content.ReviewReport)
}

type Renderer interface {
	Render(title, thumbnailURL string, sections []render.Section) (string, error)
}

// Sink persists a finished run somewhere outside the process.
type Sink interface {
	Save(ctx context.Context, req content.SaveRequest) (content.SaveResult, error)
}

// Deps are the collaborators of a run. Reviewer and Sink are optional.
type Deps struct {
	Source     VideoSource
	Extractor  TopicExtractor
	QA         QAGenerator
	Simplifier Simplifier
	Reviewer   Reviewer
	Renderer   Renderer
	Sink       Sink
}

type Options struct {
	TopicCount        int
	QuestionsPerTopic int
	TargetAge         int
	Workers           int
	QualityPolicy     validate.Policy
	// OutputDir receives output.html and output.json after a successful
	// run. Empty disables file output.
	OutputDir string
	// StageTimeout caps each Exec attempt. Zero disables the cap.
	StageTimeout time.Duration
	// Policies overrides the retry budget of individual stages by name.
	Policies map[string]flow.RetryPolicy
	Logger   *slog.Logger
}

// Runner builds and executes a fresh pipeline for each request.
type Runner struct {
	deps     Deps
	opts     Options
	policies map[string]flow.RetryPolicy
	logger   *slog.Logger
	now      func() time.Time
}

func NewRunner(deps Deps, opts Options) (*Runner, error) {
	switch {
	case deps.Source == nil:
		return nil, errors.New("pipeline: video source is required")
	case deps.Extractor == nil:
		return nil, errors.New("pipeline: topic extractor is required")
	case deps.QA == nil:
		return nil, errors.New("pipeline: Q&A generator is required")
	case deps.Simplifier == nil:
		return nil, errors.New("pipeline: simplifier is required")
	}
	if deps.Renderer == nil {
		deps.Renderer = render.Renderer{}
	}
	if opts.TopicCount <= 0 {
		opts.TopicCount = DefaultTopicCount
	}
	if opts.QuestionsPerTopic <= 0 {
		opts.QuestionsPerTopic = DefaultQuestionsPerTopic
	}
	if opts.TargetAge <= 0 {
		opts.TargetAge = DefaultTargetAge
	}
	if opts.QualityPolicy == "" {
		opts.QualityPolicy = validate.PolicyWarn
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	policies := DefaultPolicies()
	for name, p := range opts.Policies {
		policies[name] = p
	}
	if opts.StageTimeout > 0 {
		for name, p := range policies {
			if p.Timeout == 0 {
				policies[name] = p.WithTimeout(opts.StageTimeout)
			}
		}
	}

	return &Runner{deps: deps, opts: opts, policies: policies, logger: logger, now: time.Now}, nil
}

// Request is one run. Observer and Token may be nil.
type Request struct {
	URL      string
	Observer flow.Observer
	Token    *flow.Token
}

// Result carries everything a finished run produced.
type Result struct {
	Video        content.VideoInfo
	Quality      validate.Quality
	Topics       []content.Topic
	TopicsWithQA []content.TopicQA
	FinalTopics  []content.KidTopic
	Review       content.ReviewReport
	HTML         string
	Document     content.Document
	OutputPath   string
	// Save is nil when no sink is configured.
	Save     *content.SaveResult
	Duration time.Duration
}

// Stages returns the stage names a run will execute, in order.
func (r *Runner) Stages() []string {
	steps := r.build(Request{}).Steps()
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.Name()
	}
	return names
}

func (r *Runner) build(req Request) *flow.Pipeline {
	p := r.policies
	steps := []flow.Step{
		flow.Node(StageFetch, p[StageFetch], &fetchStage{source: r.deps.Source, policy: r.opts.QualityPolicy, logger: r.logger}),
		flow.Node(StageExtract, p[StageExtract], &extractStage{extractor: r.deps.Extractor, count: r.opts.TopicCount}),
		flow.Batch(StageQA, p[StageQA], r.opts.Workers, &qaStage{generator: r.deps.QA, count: r.opts.QuestionsPerTopic}),
		flow.Batch(StageKid, p[StageKid], r.opts.Workers, &kidStage{simplifier: r.deps.Simplifier, targetAge: r.opts.TargetAge}),
		flow.Node(StageReview, p[StageReview], &reviewStage{reviewer: r.deps.Reviewer, logger: r.logger}),
		flow.Node(StageRender, p[StageRender], &renderStage{renderer: r.deps.Renderer, now: r.now}),
	}
	if r.deps.Sink != nil {
		steps = append(steps, flow.Node(StageSave, p[StageSave], &saveStage{sink: r.deps.Sink, logger: r.logger}))
	}
	return flow.New(
		flow.WithObserver(req.Observer),
		flow.WithCancel(req.Token),
		flow.WithLogger(r.logger),
	).Chain(steps...)
}

// Run executes the pipeline for req.URL. Output files are written only when
// every stage succeeded.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	store := flow.NewStore()
	flow.Set(store, KeyURL, req.URL)

	r.logger.Info("run started", "url", req.URL)
	if err := r.build(req).Run(ctx, store); err != nil {
		return nil, err
	}

	res := &Result{
		Video:        flow.Get(store, KeyVideoInfo),
		Quality:      flow.Get(store, KeyTranscriptQuality),
		Topics:       flow.Get(store, KeyTopics),
		TopicsWithQA: flow.Get(store, KeyTopicsWithQA),
		FinalTopics:  flow.Get(store, KeyFinalTopics),
		Review:       flow.GetOr(store, KeyReviewReport, content.ReviewReport{Status: content.ReviewSkipped, Reason: "not_run"}),
		HTML:         flow.Get(store, KeyHTMLOutput),
		Document:     flow.Get(store, KeyDocument),
	}
	if sr, ok := flow.Lookup(store, KeySaveResult); ok {
		res.Save = &sr
	}

	if r.opts.OutputDir != "" {
		path, err := render.WriteOutputs(r.opts.OutputDir, res.HTML, res.Document)
		if err != nil {
			return nil, fmt.Errorf("writing outputs: %w", err)
		}
		flow.Set(store, KeyOutputPath, path)
		res.OutputPath = path
	}

	res.Duration = time.Since(start)
	r.logger.Info("run completed",
		"title", res.Video.Title,
		"topics", len(res.FinalTopics),
		"pairs", content.PairCount(res.FinalTopics),
		"duration", res.Duration,
	)
	r.logger.Debug("run store", "keys", store.Keys(), "version", store.Version())
	return res, nil
}

// Describe turns a run error into a message for end users.
func Describe(err error) string {
	var se *flow.StageError
	switch {
	case err == nil:
		return ""
	case flow.IsCancelled(err):
		return "Run cancelled."
	case flow.IsInvalidInput(err):
		return fmt.Sprintf("%v. Try a different video or check the URL.", err)
	case errors.As(err, &se):
		return fmt.Sprintf("Step %q failed after retries: %v. Try again later.", se.Stage, se.Err)
	default:
		return err.Error()
	}
}
