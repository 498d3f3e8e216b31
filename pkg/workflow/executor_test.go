package workflow

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestEngine() *Engine {
	return NewEngine(zerolog.Nop())
}

// callRecorder tracks task invocations across goroutines.
type callRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *callRecorder) action(id string, err error) Action {
	return func(ctx context.Context) (any, error) {
		r.mu.Lock()
		r.calls = append(r.calls, id)
		r.mu.Unlock()
		return id, err
	}
}

func (r *callRecorder) count(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c == id {
			n++
		}
	}
	return n
}

func TestEngine_Execute_SequentialSuccess(t *testing.T) {
	rec := &callRecorder{}
	g := mustGraph(t, []TaskSpec{
		{ID: "sync", Action: rec.action("sync", nil)},
		{ID: "analyze", DependsOn: []string{"sync"}, Action: rec.action("analyze", nil)},
		{ID: "test", DependsOn: []string{"analyze"}, Action: rec.action("test", nil)},
	})

	res, err := newTestEngine().Execute(context.Background(), g, PolicySequential)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if !res.Success {
		t.Error("Expected run to succeed")
	}
	if len(res.Outcomes) != 3 {
		t.Fatalf("Expected 3 outcomes, got %d", len(res.Outcomes))
	}
	for _, id := range []string{"sync", "analyze", "test"} {
		out := res.Outcomes[id]
		if out.Status != TaskStatusSucceeded {
			t.Errorf("Expected %s succeeded, got %s", id, out.Status)
		}
		if out.Attempts != 1 {
			t.Errorf("Expected %s attempted once, got %d", id, out.Attempts)
		}
	}
	if res.Summary.Succeeded != 3 || res.Summary.Failed != 0 || res.Summary.Skipped != 0 {
		t.Errorf("Unexpected summary: %+v", res.Summary)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.calls) != 3 || rec.calls[0] != "sync" || rec.calls[1] != "analyze" || rec.calls[2] != "test" {
		t.Errorf("Expected invocation order [sync analyze test], got %v", rec.calls)
	}
}

func TestEngine_Execute_RetryBound(t *testing.T) {
	var attempts atomic.Int32
	g := mustGraph(t, []TaskSpec{
		{
			ID:      "stubborn",
			Retries: 2,
			Action: func(ctx context.Context) (any, error) {
				attempts.Add(1)
				return nil, errors.New("always fails")
			},
		},
	})

	res, err := newTestEngine().Execute(context.Background(), g, PolicySequential)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if got := attempts.Load(); got != 3 {
		t.Errorf("Expected exactly 3 attempts for retries=2, got %d", got)
	}
	out := res.Outcomes["stubborn"]
	if out.Status != TaskStatusFailed {
		t.Errorf("Expected failed status, got %s", out.Status)
	}
	if out.Attempts != 3 {
		t.Errorf("Expected recorded attempts 3, got %d", out.Attempts)
	}
	if res.Success {
		t.Error("Expected run to fail")
	}
	if !IsExecutionFailure(out.Err) {
		t.Errorf("Expected execution failure, got: %v", out.Err)
	}
}

func TestEngine_Execute_FlakyTaskSucceedsWithinBudget(t *testing.T) {
	var attempts atomic.Int32
	g := mustGraph(t, []TaskSpec{
		{
			ID:      "flaky",
			Retries: 2,
			Action: func(ctx context.Context) (any, error) {
				if attempts.Add(1) < 3 {
					return nil, errors.New("transient failure")
				}
				return "done", nil
			},
		},
	})

	res, err := newTestEngine().Execute(context.Background(), g, PolicySequential)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	out := res.Outcomes["flaky"]
	if out.Status != TaskStatusSucceeded {
		t.Errorf("Expected succeeded, got %s", out.Status)
	}
	if out.Attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", out.Attempts)
	}
	if out.Value != "done" {
		t.Errorf("Expected final attempt value, got %v", out.Value)
	}
	if !res.Success {
		t.Error("Expected run to succeed")
	}
}

func TestEngine_Execute_SequentialHalt(t *testing.T) {
	rec := &callRecorder{}
	g := mustGraph(t, []TaskSpec{
		{ID: "A", Action: rec.action("A", errors.New("boom"))},
		{ID: "B", DependsOn: []string{"A"}, Action: rec.action("B", nil)},
		{ID: "C", DependsOn: []string{"B"}, Action: rec.action("C", nil)},
	})

	res, err := newTestEngine().Execute(context.Background(), g, PolicySequential)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if res.Success {
		t.Error("Expected run to fail")
	}
	if res.Outcomes["A"].Status != TaskStatusFailed {
		t.Errorf("Expected A failed, got %s", res.Outcomes["A"].Status)
	}
	for _, id := range []string{"B", "C"} {
		out := res.Outcomes[id]
		if out.Status != TaskStatusSkipped {
			t.Errorf("Expected %s skipped, got %s", id, out.Status)
		}
		if out.Attempts != 0 {
			t.Errorf("Expected %s never attempted, got %d attempts", id, out.Attempts)
		}
		if rec.count(id) != 0 {
			t.Errorf("Expected %s never invoked", id)
		}
	}
}

func TestEngine_Execute_OptionalFailureDoesNotHalt(t *testing.T) {
	rec := &callRecorder{}
	g := mustGraph(t, []TaskSpec{
		{ID: "lint", Optional: true, Action: rec.action("lint", errors.New("style issues"))},
		{ID: "build", Action: rec.action("build", nil)},
		{ID: "report", DependsOn: []string{"lint"}, Action: rec.action("report", nil)},
	})

	res, err := newTestEngine().Execute(context.Background(), g, PolicySequential)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if !res.Success {
		t.Error("Expected run to succeed despite optional failure")
	}
	if res.Outcomes["lint"].Status != TaskStatusFailed {
		t.Errorf("Expected lint failed, got %s", res.Outcomes["lint"].Status)
	}
	if res.Outcomes["build"].Status != TaskStatusSucceeded {
		t.Errorf("Expected build to run, got %s", res.Outcomes["build"].Status)
	}
	// Dependents of a failed task are skipped even when the failure was
	// optional for the run as a whole.
	if res.Outcomes["report"].Status != TaskStatusSkipped {
		t.Errorf("Expected report skipped, got %s", res.Outcomes["report"].Status)
	}
}

func TestEngine_Execute_ParallelLayerBarrier(t *testing.T) {
	var aDone, cDone atomic.Bool
	g := mustGraph(t, []TaskSpec{
		{ID: "a", Action: func(ctx context.Context) (any, error) {
			time.Sleep(20 * time.Millisecond)
			aDone.Store(true)
			return nil, nil
		}},
		{ID: "c", Action: func(ctx context.Context) (any, error) {
			time.Sleep(5 * time.Millisecond)
			cDone.Store(true)
			return nil, nil
		}},
		{ID: "b", DependsOn: []string{"a"}, Action: func(ctx context.Context) (any, error) {
			if !aDone.Load() {
				return nil, errors.New("started before dependency a completed")
			}
			if !cDone.Load() {
				return nil, errors.New("started before layer sibling c joined")
			}
			return nil, nil
		}},
	})

	res, err := newTestEngine().Execute(context.Background(), g, PolicyParallel)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !res.Success {
		t.Errorf("Expected run to succeed, outcomes: %+v", res.Outcomes)
	}
}

func TestEngine_Execute_ParallelismCap(t *testing.T) {
	var running, peak atomic.Int32
	action := func(ctx context.Context) (any, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		running.Add(-1)
		return nil, nil
	}
	g := mustGraph(t, []TaskSpec{
		{ID: "a", Action: action},
		{ID: "b", Action: action},
		{ID: "c", Action: action},
		{ID: "d", Action: action},
	})

	res, err := newTestEngine().WithParallelism(2).Execute(context.Background(), g, PolicyParallel)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !res.Success {
		t.Errorf("Expected run to succeed, outcomes: %+v", res.Outcomes)
	}
	if p := peak.Load(); p > 2 {
		t.Errorf("Expected at most 2 concurrent tasks, observed %d", p)
	}
}

func TestEngine_Execute_ParallelSkipsDownstreamOfFailure(t *testing.T) {
	rec := &callRecorder{}
	g := mustGraph(t, []TaskSpec{
		{ID: "bad", Action: rec.action("bad", errors.New("boom"))},
		{ID: "sibling", Action: rec.action("sibling", nil)},
		{ID: "child", DependsOn: []string{"bad"}, Action: rec.action("child", nil)},
		{ID: "grandchild", DependsOn: []string{"child"}, Action: rec.action("grandchild", nil)},
	})

	res, err := newTestEngine().Execute(context.Background(), g, PolicyParallel)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if res.Success {
		t.Error("Expected run to fail")
	}
	if res.Outcomes["sibling"].Status != TaskStatusSucceeded {
		t.Errorf("Expected layer sibling to finish, got %s", res.Outcomes["sibling"].Status)
	}
	for _, id := range []string{"child", "grandchild"} {
		if res.Outcomes[id].Status != TaskStatusSkipped {
			t.Errorf("Expected %s skipped, got %s", id, res.Outcomes[id].Status)
		}
		if rec.count(id) != 0 {
			t.Errorf("Expected %s never invoked", id)
		}
	}
	if res.Summary.Skipped != 2 {
		t.Errorf("Expected 2 skipped, got %d", res.Summary.Skipped)
	}
}

func TestEngine_Execute_TimeoutCountsAsFailedAttempt(t *testing.T) {
	var attempts atomic.Int32
	g := mustGraph(t, []TaskSpec{
		{
			ID:      "slow",
			Retries: 1,
			Timeout: 10 * time.Millisecond,
			Action: func(ctx context.Context) (any, error) {
				attempts.Add(1)
				select {
				case <-time.After(200 * time.Millisecond):
					return nil, nil
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			},
		},
	})

	res, err := newTestEngine().Execute(context.Background(), g, PolicySequential)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	out := res.Outcomes["slow"]
	if out.Status != TaskStatusFailed {
		t.Errorf("Expected failed, got %s", out.Status)
	}
	if out.Attempts != 2 {
		t.Errorf("Expected timeout to be retried once (2 attempts), got %d", out.Attempts)
	}
	if got := attempts.Load(); got != 2 {
		t.Errorf("Expected 2 dispatched attempts, got %d", got)
	}
	if !IsTimeout(out.Err) {
		t.Errorf("Expected timeout error, got: %v", out.Err)
	}
	if !IsExecutionFailure(out.Err) {
		t.Error("Expected timeout to count as execution failure")
	}
}

func TestEngine_Execute_RefusesInvalidGraph(t *testing.T) {
	rec := &callRecorder{}
	g := mustGraph(t, []TaskSpec{
		{ID: "a", DependsOn: []string{"b"}, Action: rec.action("a", nil)},
		{ID: "b", DependsOn: []string{"a"}, Action: rec.action("b", nil)},
	})

	for _, policy := range []Policy{PolicySequential, PolicyParallel} {
		res, err := newTestEngine().Execute(context.Background(), g, policy)
		if !IsConfiguration(err) {
			t.Errorf("policy %s: expected configuration error, got: %v", policy, err)
		}
		if res != nil {
			t.Errorf("policy %s: expected nil result, got %+v", policy, res)
		}
	}
	if len(rec.calls) != 0 {
		t.Errorf("Expected no task invocations on invalid graph, got %v", rec.calls)
	}
}

func TestEngine_Execute_InvalidPolicy(t *testing.T) {
	g := mustGraph(t, []TaskSpec{{ID: "a", Action: func(ctx context.Context) (any, error) { return nil, nil }}})

	if _, err := newTestEngine().Execute(context.Background(), g, Policy("bogus")); !IsConfiguration(err) {
		t.Errorf("Expected configuration error, got: %v", err)
	}
}

func TestEngine_Execute_NilActionFails(t *testing.T) {
	g := mustGraph(t, []TaskSpec{{ID: "a"}})

	res, err := newTestEngine().Execute(context.Background(), g, PolicySequential)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if res.Outcomes["a"].Status != TaskStatusFailed {
		t.Errorf("Expected nil-action task to fail, got %s", res.Outcomes["a"].Status)
	}
}

func TestEngine_Execute_Idempotent(t *testing.T) {
	specs := []TaskSpec{
		{ID: "a", Action: func(ctx context.Context) (any, error) { return 1, nil }},
		{ID: "b", DependsOn: []string{"a"}, Action: func(ctx context.Context) (any, error) { return 2, nil }},
	}
	g := mustGraph(t, specs)
	engine := newTestEngine()

	first, err := engine.Execute(context.Background(), g, PolicySequential)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	second, err := engine.Execute(context.Background(), g, PolicySequential)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if !first.Success || !second.Success {
		t.Error("Expected both runs to succeed")
	}
	if first.RunID == second.RunID {
		t.Error("Expected fresh run ids per execution")
	}
	for id := range first.Outcomes {
		if first.Outcomes[id].Status != second.Outcomes[id].Status {
			t.Errorf("Status of %s changed between runs: %s vs %s",
				id, first.Outcomes[id].Status, second.Outcomes[id].Status)
		}
	}
}

// sinkRecorder verifies metrics wiring.
type sinkRecorder struct {
	mu        sync.Mutex
	started   int
	completed int
	retried   int
}

func (s *sinkRecorder) TaskStarted(string) { s.mu.Lock(); s.started++; s.mu.Unlock() }
func (s *sinkRecorder) TaskCompleted(string, string, time.Duration) {
	s.mu.Lock()
	s.completed++
	s.mu.Unlock()
}
func (s *sinkRecorder) TaskRetried(string, int) { s.mu.Lock(); s.retried++; s.mu.Unlock() }

func TestEngine_MetricsSink(t *testing.T) {
	sink := &sinkRecorder{}
	var attempts atomic.Int32
	g := mustGraph(t, []TaskSpec{
		{
			ID:      "flaky",
			Retries: 1,
			Action: func(ctx context.Context) (any, error) {
				if attempts.Add(1) < 2 {
					return nil, errors.New("transient")
				}
				return nil, nil
			},
		},
	})

	if _, err := NewEngine(zerolog.Nop()).WithMetrics(sink).Execute(
		context.Background(), g, PolicySequential); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if sink.started != 1 || sink.completed != 1 || sink.retried != 1 {
		t.Errorf("Expected 1 start, 1 completion, 1 retry; got %d/%d/%d",
			sink.started, sink.completed, sink.retried)
	}
}
