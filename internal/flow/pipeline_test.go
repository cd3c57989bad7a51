package flow

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Progress(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func appendStep(name string, order *[]string) Step {
	return Node(name, Retry(1, 0), &funcStage[int, int]{
		exec: func(context.Context, int) (int, error) {
			*order = append(*order, name)
			return 0, nil
		},
	})
}

func TestPipeline_RunsLinearChainInOrder(t *testing.T) {
	var order []string
	p := New().Chain(appendStep("a", &order), appendStep("b", &order), appendStep("c", &order))

	if err := p.Run(context.Background(), NewStore()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !slices.Equal(order, []string{"a", "b", "c"}) {
		t.Errorf("order = %v", order)
	}
	if got := len(p.Steps()); got != 3 {
		t.Errorf("len(Steps()) = %d, want 3", got)
	}
}

func TestPipeline_StopsAtFirstError(t *testing.T) {
	var order []string
	failing := Node("b", Retry(2, 0), &funcStage[int, int]{
		exec: func(context.Context, int) (int, error) {
			order = append(order, "b")
			return 0, errors.New("down")
		},
	})
	p := New().Chain(appendStep("a", &order), failing, appendStep("c", &order))

	err := p.Run(context.Background(), NewStore())
	var se *StageError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *StageError", err)
	}
	if se.Stage != "b" || IsCancelled(err) {
		t.Errorf("StageError = %+v", se)
	}
	if !slices.Equal(order, []string{"a", "b", "b"}) {
		t.Errorf("order = %v", order)
	}
}

func TestPipeline_FollowsActions(t *testing.T) {
	var order []string
	router := Node("router", Retry(1, 0), &funcStage[int, int]{
		post: func(context.Context, *Store, int, int) (Action, error) {
			return "short", nil
		},
	})
	long := appendStep("long", &order)
	short := appendStep("short", &order)

	p := New().Chain(router, long).On(router, "short", short)
	if err := p.Run(context.Background(), NewStore()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !slices.Equal(order, []string{"short"}) {
		t.Errorf("order = %v", order)
	}
}

func TestPipeline_ProgressIsMonotonicAndCompletes(t *testing.T) {
	rec := &recorder{}
	var order []string
	items := &funcBatch[int, int]{
		items: []int{1, 2, 3, 4},
		exec: func(ctx context.Context, i int) (int, error) {
			Report(ctx, "working")
			return i, nil
		},
	}
	p := New(WithObserver(rec)).Chain(
		appendStep("first", &order),
		Batch("items", Retry(1, 0), 2, items),
		appendStep("last", &order),
	)

	if err := p.Run(context.Background(), NewStore()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rec.events) == 0 {
		t.Fatal("no progress events")
	}

	prev := 0
	for _, e := range rec.events {
		if e.Percent < prev {
			t.Errorf("percent went backwards: %+v after %d", e, prev)
		}
		prev = e.Percent
	}
	last := rec.events[len(rec.events)-1]
	if last.Percent != 100 || last.Stage != "last" {
		t.Errorf("last event = %+v", last)
	}
}

func TestPipeline_CancelledStageEmitsNoStartEvent(t *testing.T) {
	rec := &recorder{}
	tok := NewToken()
	var order []string
	stopper := Node("stopper", Retry(1, 0), &funcStage[int, int]{
		exec: func(context.Context, int) (int, error) {
			tok.Cancel("user requested")
			return 0, nil
		},
	})

	p := New(WithObserver(rec), WithCancel(tok)).Chain(stopper, appendStep("skipped", &order))
	if err := p.Run(context.Background(), NewStore()); !IsCancelled(err) {
		t.Fatalf("err = %v, want cancellation", err)
	}
	for _, e := range rec.events {
		if e.Stage == "skipped" {
			t.Errorf("got event for a stage that never ran: %+v", e)
		}
	}
	if len(order) != 0 {
		t.Errorf("order = %v, want nothing run", order)
	}
}

func TestPipeline_ContextCancellationSurfacesAsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := &recorder{}
	var order []string
	err := New(WithObserver(rec)).Chain(appendStep("a", &order)).Run(ctx, NewStore())
	if !IsCancelled(err) || !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want cancellation caused by context.Canceled", err)
	}
	if len(order) != 0 || len(rec.events) != 0 {
		t.Errorf("order = %v events = %v, want nothing", order, rec.events)
	}
}

func TestPipeline_EmptyRunsNothing(t *testing.T) {
	if err := New().Run(context.Background(), NewStore()); err != nil {
		t.Errorf("Run on empty pipeline: %v", err)
	}
}
