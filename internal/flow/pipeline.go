package flow

import (
	"context"
	"log/slog"
	"time"
)

// Pipeline drives steps in order, following each step's Action to its
// successor. The run ends when a step has no successor for its action or
// when any step fails.
type Pipeline struct {
	steps    []Step
	index    map[Step]int
	edges    map[Step]map[Action]Step
	start    Step
	observer Observer
	token    *Token
	logger   *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithObserver sets the progress observer.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

// WithCancel sets the run's cancellation token.
func WithCancel(t *Token) Option {
	return func(p *Pipeline) { p.token = t }
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		index:  make(map[Step]int),
		edges:  make(map[Step]map[Action]Step),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Pipeline) add(s Step) {
	if _, ok := p.index[s]; ok {
		return
	}
	p.index[s] = len(p.steps)
	p.steps = append(p.steps, s)
	if p.start == nil {
		p.start = s
	}
}

// Chain links steps with Default transitions. The first step ever added
// becomes the start of the pipeline.
func (p *Pipeline) Chain(steps ...Step) *Pipeline {
	for i, s := range steps {
		p.add(s)
		if i > 0 {
			p.On(steps[i-1], Default, s)
		}
	}
	return p
}

// On routes action emitted by from to the step to.
func (p *Pipeline) On(from Step, action Action, to Step) *Pipeline {
	p.add(from)
	p.add(to)
	if p.edges[from] == nil {
		p.edges[from] = make(map[Action]Step)
	}
	p.edges[from][action] = to
	return p
}

// Steps returns the registered steps in registration order.
func (p *Pipeline) Steps() []Step {
	out := make([]Step, len(p.steps))
	copy(out, p.steps)
	return out
}

// Run executes the pipeline against store. It returns nil on success, a
// *CancelledError when the token or ctx stopped the run, and a *StageError
// for the first unrecovered stage failure.
func (p *Pipeline) Run(ctx context.Context, store *Store) error {
	rc := &runContext{
		store:    store,
		token:    p.token,
		reporter: newReporter(p.observer, len(p.steps)),
		logger:   p.logger,
	}

	for cur := p.start; cur != nil; {
		idx := p.index[cur]
		name := cur.Name()

		if err := checkpoint(ctx, rc.token, name); err != nil {
			p.logger.Info("run cancelled", "stage", name, "error", err)
			return err
		}

		rc.reporter.begin(idx, name)
		started := time.Now()
		p.logger.Debug("stage started", "stage", name)

		act, err := cur.run(withReport(ctx, rc.reporter, name), rc, idx)
		if err != nil {
			if IsCancelled(err) {
				p.logger.Info("run cancelled", "stage", name, "error", err)
			} else {
				p.logger.Error("stage failed", "stage", name, "error", err)
			}
			return err
		}

		rc.reporter.finish(idx, name)
		p.logger.Debug("stage completed", "stage", name, "duration", time.Since(started))

		if act == "" {
			act = Default
		}
		next, ok := p.edges[cur][act]
		if !ok && act != Default {
			p.logger.Warn("no successor for action, ending run", "stage", name, "action", act)
		}
		cur = next
	}
	return nil
}
