package flow

import (
	"context"
	"strconv"
	"sync"
)

// Event is a single progress notification.
type Event struct {
	Stage   string
	Message string
	Percent int
}

// Observer receives progress events. Implementations must be safe for
// concurrent use: batch stages report from worker goroutines.
type Observer interface {
	Progress(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Progress(e Event) { f(e) }

// reporter turns stage positions into monotonic percentages.
type reporter struct {
	mu       sync.Mutex
	observer Observer
	total    int
	last     int
}

func newReporter(o Observer, total int) *reporter {
	if total < 1 {
		total = 1
	}
	return &reporter{observer: o, total: total}
}

func (r *reporter) bounds(index int) (start, end int) {
	return index * 100 / r.total, (index + 1) * 100 / r.total
}

func (r *reporter) emit(stage, msg string, pct int) {
	if r == nil || r.observer == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if pct > 100 {
		pct = 100
	}
	if pct < r.last {
		pct = r.last
	}
	r.last = pct
	r.observer.Progress(Event{Stage: stage, Message: msg, Percent: pct})
}

func (r *reporter) current() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func (r *reporter) begin(index int, stage string) {
	start, _ := r.bounds(index)
	r.emit(stage, "started", start)
}

func (r *reporter) item(index int, stage string, done, total int) {
	start, end := r.bounds(index)
	pct := end
	if total > 0 {
		pct = start + (end-start)*done/total
	}
	r.emit(stage, itemMessage(done, total), pct)
}

func (r *reporter) finish(index int, stage string) {
	_, end := r.bounds(index)
	r.emit(stage, "completed", end)
}

func itemMessage(done, total int) string {
	return "processed " + strconv.Itoa(done) + "/" + strconv.Itoa(total)
}

type reportKey struct{}

type stageReport struct {
	r     *reporter
	stage string
}

func withReport(ctx context.Context, r *reporter, stage string) context.Context {
	return context.WithValue(ctx, reportKey{}, stageReport{r: r, stage: stage})
}

// Report emits a message for the running stage at the current percent.
// It is a no-op outside a pipeline run.
func Report(ctx context.Context, msg string) {
	sr, ok := ctx.Value(reportKey{}).(stageReport)
	if !ok || sr.r == nil {
		return
	}
	sr.r.emit(sr.stage, msg, sr.r.current())
}
