package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kalambet/sumq/internal/content"
	"github.com/kalambet/sumq/internal/flow"
	"github.com/kalambet/sumq/internal/render"
	"github.com/kalambet/sumq/internal/validate"
)

const testURL = "https://example.com/v/abc123"

type fakeSource struct {
	calls atomic.Int32
	info  content.VideoInfo
	err   error
}

func (f *fakeSource) Fetch(_ context.Context, url string) (content.VideoInfo, error) {
	f.calls.Add(1)
	if f.err != nil {
		return content.VideoInfo{}, f.err
	}
	info := f.info
	info.URL = url
	return info, nil
}

type fakeExtractor struct {
	calls  atomic.Int32
	topics []content.Topic
}

func (f *fakeExtractor) Extract(context.Context, string, int) ([]content.Topic, error) {
	f.calls.Add(1)
	return f.topics, nil
}

type fakeQA struct {
	maxDelay time.Duration
}

func (f *fakeQA) Generate(_ context.Context, topic content.Topic, count int) ([]content.QAPair, error) {
	if f.maxDelay > 0 {
		time.Sleep(rand.N(f.maxDelay))
	}
	pairs := make([]content.QAPair, 0, count)
	for i := range count {
		pairs = append(pairs, content.QAPair{
			Question: fmt.Sprintf("%s question %d?", topic.Title, i+1),
			Answer:   fmt.Sprintf("%s answer %d.", topic.Title, i+1),
		})
	}
	// A blank pair from the generator never reaches the output.
	pairs = append(pairs, content.QAPair{Question: " ", Answer: "x"})
	return pairs, nil
}

type prefixSimplifier struct{}

func (prefixSimplifier) Simplify(_ context.Context, text string, _ int) (string, error) {
	return "kid: " + text, nil
}

type fakeSink struct {
	calls atomic.Int32
	err   error
}

func (f *fakeSink) Save(_ context.Context, req content.SaveRequest) (content.SaveResult, error) {
	f.calls.Add(1)
	if f.err != nil {
		return content.SaveResult{}, f.err
	}
	return content.SaveResult{Success: true, PageURL: "https://notion.so/p", Title: req.Video.Title}, nil
}

type annotatingReviewer struct{}

func (annotatingReviewer) Review(_ context.Context, topics []content.KidTopic, _, _ string) ([]content.KidTopic, content.ReviewReport) {
	out := make([]content.KidTopic, len(topics))
	for i, t := range topics {
		out[i] = content.KidTopic{Title: t.Title, QAPairs: append([]content.KidQA(nil), t.QAPairs...)}
	}
	out[0].QAPairs[0].ReviewedAnswer = "reviewed answer"
	return out, content.ReviewReport{Status: content.ReviewCompleted, TotalCorrections: 1, TopicsReviewed: len(topics)}
}

func makeTopics(n int) []content.Topic {
	topics := make([]content.Topic, n)
	for i := range topics {
		topics[i] = content.Topic{Title: fmt.Sprintf("Topic %d", i), Content: fmt.Sprintf("notes%d here", i)}
	}
	return topics
}

func fastPolicies() map[string]flow.RetryPolicy {
	p := DefaultPolicies()
	for name, rp := range p {
		rp.Wait = 0
		p[name] = rp
	}
	return p
}

type fixture struct {
	source    *fakeSource
	extractor *fakeExtractor
	deps      Deps
	opts      Options
}

func newFixture(t *testing.T, topics int) *fixture {
	t.Helper()
	f := &fixture{
		source: &fakeSource{info: content.VideoInfo{
			Title:        "Volcanoes",
			Transcript:   "Volcanoes erupt when magma rises through the crust.",
			ThumbnailURL: "https://img.example.com/t.jpg",
		}},
		extractor: &fakeExtractor{topics: makeTopics(topics)},
	}
	f.deps = Deps{
		Source:     f.source,
		Extractor:  f.extractor,
		QA:         &fakeQA{},
		Simplifier: prefixSimplifier{},
	}
	f.opts = Options{
		TopicCount:        topics,
		QuestionsPerTopic: 2,
		Workers:           3,
		OutputDir:         filepath.Join(t.TempDir(), "out"),
		Policies:          fastPolicies(),
	}
	return f
}

func (f *fixture) runner(t *testing.T) *Runner {
	t.Helper()
	r, err := NewRunner(f.deps, f.opts)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	return r
}

type recorder struct {
	mu     sync.Mutex
	events []flow.Event
}

func (r *recorder) Progress(e flow.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func TestRun_EndToEnd(t *testing.T) {
	f := newFixture(t, 3)
	rec := &recorder{}

	res, err := f.runner(t).Run(context.Background(), Request{URL: testURL, Observer: rec})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(res.FinalTopics) != 3 {
		t.Fatalf("len(FinalTopics) = %d, want 3", len(res.FinalTopics))
	}
	for i, topic := range res.FinalTopics {
		if topic.Title != fmt.Sprintf("Topic %d", i) {
			t.Errorf("FinalTopics[%d].Title = %q", i, topic.Title)
		}
		if len(topic.QAPairs) != 2 {
			t.Errorf("topic %d has %d pairs, want 2", i, len(topic.QAPairs))
		}
	}
	first := res.FinalTopics[0].QAPairs[0]
	if first.KidFriendlyQuestion != "kid: Topic 0 question 1?" || first.OriginalAnswer != "Topic 0 answer 1." {
		t.Errorf("first pair = %+v", first)
	}
	if res.Review.Status != content.ReviewSkipped || res.Review.Reason != "not_configured" {
		t.Errorf("Review = %+v, want skipped/not_configured", res.Review)
	}
	if res.Save != nil {
		t.Errorf("Save = %+v, want nil without a sink", res.Save)
	}
	if !strings.Contains(res.HTML, "Topic 2") || res.Document.Video.URL != testURL {
		t.Error("html or document missing run data")
	}

	if res.OutputPath != filepath.Join(f.opts.OutputDir, render.HTMLFile) {
		t.Errorf("OutputPath = %q", res.OutputPath)
	}
	b, err := os.ReadFile(filepath.Join(f.opts.OutputDir, render.DocumentFile))
	if err != nil {
		t.Fatalf("reading document: %v", err)
	}
	doc, err := content.DecodeDocument(b)
	if err != nil {
		t.Fatalf("DecodeDocument: %v", err)
	}
	if content.PairCount(doc.Topics) != 6 || doc.Review == nil {
		t.Errorf("document = %+v", doc)
	}

	last := -1
	for _, e := range rec.events {
		if e.Percent < last {
			t.Fatalf("progress went backwards: %v", rec.events)
		}
		last = e.Percent
	}
	if end := rec.events[len(rec.events)-1]; end.Percent != 100 || end.Stage != StageRender {
		t.Errorf("last event = %+v, want render at 100", end)
	}
}

func TestRun_ZeroTopicsIsInvalid(t *testing.T) {
	f := newFixture(t, 3)
	f.extractor.topics = []content.Topic{{Title: "  ", Content: "x"}}

	_, err := f.runner(t).Run(context.Background(), Request{URL: testURL})
	if !flow.IsInvalidInput(err) {
		t.Fatalf("err = %v, want input error", err)
	}
	if n := f.extractor.calls.Load(); n != 1 {
		t.Errorf("extractor called %d times, want 1 (not retried)", n)
	}
	if _, statErr := os.Stat(f.opts.OutputDir); !os.IsNotExist(statErr) {
		t.Error("output written for a failed run")
	}
}

func TestRun_EmptyURL(t *testing.T) {
	f := newFixture(t, 1)

	_, err := f.runner(t).Run(context.Background(), Request{URL: "   "})
	if !flow.IsInvalidInput(err) {
		t.Fatalf("err = %v, want input error", err)
	}
	if f.source.calls.Load() != 0 {
		t.Error("source called for an empty url")
	}
}

func TestRun_FetchRetriesThenFails(t *testing.T) {
	f := newFixture(t, 1)
	f.source.err = errors.New("network down")

	_, err := f.runner(t).Run(context.Background(), Request{URL: testURL})
	var se *flow.StageError
	if !errors.As(err, &se) || se.Stage != StageFetch || se.Attempts != 2 {
		t.Fatalf("err = %v, want fetch StageError after 2 attempts", err)
	}
	if n := f.source.calls.Load(); n != 2 {
		t.Errorf("source called %d times, want 2", n)
	}
}

func TestRun_FailPolicyRejectsPoorTranscript(t *testing.T) {
	f := newFixture(t, 1)
	f.opts.QualityPolicy = validate.PolicyFail

	_, err := f.runner(t).Run(context.Background(), Request{URL: testURL})
	if !flow.IsInvalidInput(err) {
		t.Fatalf("err = %v, want input error for a short transcript", err)
	}
	if f.extractor.calls.Load() != 0 {
		t.Error("extraction ran after a rejected transcript")
	}
}

func TestRun_SinkFailureIsRecorded(t *testing.T) {
	f := newFixture(t, 2)
	sink := &fakeSink{err: errors.New("notion is down")}
	f.deps.Sink = sink

	res, err := f.runner(t).Run(context.Background(), Request{URL: testURL})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.HTML == "" || res.OutputPath == "" {
		t.Error("run did not render")
	}
	if res.Save == nil || res.Save.Success || !strings.Contains(res.Save.Error, "notion is down") {
		t.Errorf("Save = %+v, want recorded failure", res.Save)
	}
	if n := sink.calls.Load(); n != 2 {
		t.Errorf("sink called %d times, want 2", n)
	}
}

func TestRun_SinkSuccess(t *testing.T) {
	f := newFixture(t, 1)
	f.deps.Sink = &fakeSink{}

	res, err := f.runner(t).Run(context.Background(), Request{URL: testURL})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Save == nil || !res.Save.Success || res.Save.PageURL != "https://notion.so/p" {
		t.Errorf("Save = %+v", res.Save)
	}
}

func TestRun_ReviewerAnnotates(t *testing.T) {
	f := newFixture(t, 2)
	f.deps.Reviewer = annotatingReviewer{}

	res, err := f.runner(t).Run(context.Background(), Request{URL: testURL})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Review.Status != content.ReviewCompleted || res.Review.TotalCorrections != 1 {
		t.Errorf("Review = %+v", res.Review)
	}
	if !strings.Contains(res.HTML, "reviewed answer") {
		t.Error("html does not use the reviewed answer")
	}
	if res.Document.Review == nil || res.Document.Review.Status != content.ReviewCompleted {
		t.Errorf("document review = %+v", res.Document.Review)
	}
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	f := newFixture(t, 1)
	tok := flow.NewToken()
	tok.Cancel("user request")

	_, err := f.runner(t).Run(context.Background(), Request{URL: testURL, Token: tok})
	if !flow.IsCancelled(err) {
		t.Fatalf("err = %v, want cancellation", err)
	}
	if f.source.calls.Load() != 0 {
		t.Error("source called after cancellation")
	}
}

func TestRun_QAOrderUnderRandomDelay(t *testing.T) {
	f := newFixture(t, 10)
	f.deps.QA = &fakeQA{maxDelay: 5 * time.Millisecond}
	f.opts.Workers = 4

	res, err := f.runner(t).Run(context.Background(), Request{URL: testURL})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.TopicsWithQA) != 10 {
		t.Fatalf("len(TopicsWithQA) = %d, want 10", len(res.TopicsWithQA))
	}
	for i, tq := range res.TopicsWithQA {
		want := fmt.Sprintf("Topic %d", i)
		if tq.Topic.Title != want || !strings.HasPrefix(tq.QAPairs[0].Question, want+" ") {
			t.Errorf("TopicsWithQA[%d] = %q / %q, want %q", i, tq.Topic.Title, tq.QAPairs[0].Question, want)
		}
	}
}

func TestKidStage_Idempotent(t *testing.T) {
	s := &kidStage{simplifier: prefixSimplifier{}, targetAge: 5}
	item := kidItem{TopicIndex: 0, Pair: content.QAPair{Question: "Why?", Answer: "Because."}}

	a, err := s.Exec(context.Background(), item)
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	b, err := s.Exec(context.Background(), item)
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if a != b {
		t.Errorf("Exec not idempotent: %+v != %+v", a, b)
	}
}

func TestRegroup_ByOriginIndex(t *testing.T) {
	topics := []content.TopicQA{
		{Topic: content.Topic{Title: "Same"}},
		{Topic: content.Topic{Title: "Empty"}},
		{Topic: content.Topic{Title: "Same"}},
	}
	items := []kidItem{{TopicIndex: 0}, {TopicIndex: 2}, {TopicIndex: 2}, {TopicIndex: 1}}
	results := []content.KidQA{
		{KidFriendlyQuestion: "q0", KidFriendlyAnswer: "a0"},
		{KidFriendlyQuestion: "q1", KidFriendlyAnswer: "a1"},
		{KidFriendlyQuestion: "q2", KidFriendlyAnswer: "a2"},
		{KidFriendlyQuestion: "", KidFriendlyAnswer: "dropped"},
	}

	got, err := regroup(topics, items, results)
	if err != nil {
		t.Fatalf("regroup: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2 (duplicate titles kept apart, empty topic dropped)", len(got))
	}
	if len(got[0].QAPairs) != 1 || len(got[1].QAPairs) != 2 || got[1].QAPairs[1].KidFriendlyQuestion != "q2" {
		t.Errorf("regroup = %+v", got)
	}

	_, err = regroup(topics[1:2], []kidItem{{TopicIndex: 0}}, results[3:])
	if !flow.IsInvalidInput(err) {
		t.Errorf("err = %v, want input error when nothing survives", err)
	}
}

func TestNewRunner_RequiresCollaborators(t *testing.T) {
	if _, err := NewRunner(Deps{}, Options{}); err == nil {
		t.Error("NewRunner with no deps should fail")
	}
	f := newFixture(t, 1)
	f.deps.Sink = &fakeSink{}
	r := f.runner(t)
	if got := r.Stages(); len(got) != 7 || got[6] != StageSave {
		t.Errorf("Stages = %v", got)
	}
}

func TestDescribe(t *testing.T) {
	if got := Describe(&flow.CancelledError{Stage: StageQA}); got != "Run cancelled." {
		t.Errorf("Describe(cancelled) = %q", got)
	}
	if got := Describe(flow.Invalid("bad url")); !strings.Contains(got, "Try a different video") {
		t.Errorf("Describe(invalid) = %q", got)
	}
	got := Describe(&flow.StageError{Stage: StageFetch, Phase: flow.PhaseExec, Attempts: 2, Err: errors.New("timeout")})
	if !strings.Contains(got, `"fetch_video"`) || !strings.Contains(got, "timeout") {
		t.Errorf("Describe(stage) = %q", got)
	}
	if Describe(nil) != "" {
		t.Error("Describe(nil) should be empty")
	}
}
