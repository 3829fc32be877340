package pool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/simkit/rollout-engine/pkg/config"
	"github.com/simkit/rollout-engine/pkg/sim"
)

// scriptActor is a scriptable Actor for pool tests. Episodes end after
// horizon steps (0 = never), failStep and panicStep make that step fail,
// blockCh makes Step hang until the channel is closed or the context is
// cancelled. The shared counters are incremented atomically so tests can
// read them while workers are still running.
type scriptActor struct {
	id      int
	horizon int
	episode int
	step    int
	seed    int64

	failReset bool
	failStep  int
	panicStep int
	blockCh   chan struct{}
	specs     *sim.Specs

	resets *int64
	closes *int64
	specQs *int64
}

func (a *scriptActor) Reset(ctx context.Context) (sim.Observation, error) {
	if a.failReset {
		return nil, fmt.Errorf("scripted reset failure")
	}
	if a.resets != nil {
		atomic.AddInt64(a.resets, 1)
	}
	a.episode++
	a.step = 0
	return a.obs(), nil
}

func (a *scriptActor) Step(ctx context.Context, act sim.Action) (*sim.StepResult, error) {
	if a.blockCh != nil {
		select {
		case <-a.blockCh:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if a.episode == 0 {
		return nil, fmt.Errorf("step before reset")
	}
	a.step++
	if a.step == a.panicStep {
		panic("scripted step panic")
	}
	if a.step == a.failStep {
		return nil, fmt.Errorf("scripted step failure")
	}
	over := a.horizon > 0 && a.step >= a.horizon
	return &sim.StepResult{
		Obs:    a.obs(),
		Reward: sim.Reward{"agent": 1},
		Done:   sim.Done{Agent: map[string]bool{"agent": over}, All: over},
		Info:   sim.Info{"agent": {"got": act["agent"]}},
	}, nil
}

func (a *scriptActor) Seed(ctx context.Context, seed int64) (int64, error) {
	a.seed = seed
	return seed, nil
}

func (a *scriptActor) Specs(ctx context.Context) (*sim.Specs, error) {
	if a.specQs != nil {
		atomic.AddInt64(a.specQs, 1)
	}
	if a.specs != nil {
		return a.specs, nil
	}
	return &sim.Specs{
		Observation: &sim.Space{Name: "script_obs", Shape: []int{1}, Dtype: "float64", High: 1},
		Action:      &sim.Space{Name: "script_act", Shape: []int{1}, Dtype: "int64", High: 4},
	}, nil
}

func (a *scriptActor) Close() error {
	if a.closes != nil {
		atomic.AddInt64(a.closes, 1)
	}
	return nil
}

// obs encodes actor id, episode and step so tests can assert ordering and
// episode rollover from the payload alone.
func (a *scriptActor) obs() sim.Observation {
	return sim.Observation{"agent": fmt.Sprintf("a%d-ep%d-s%d", a.id, a.episode, a.step)}
}

// entriesFor wraps prebuilt actors into entries named env-<i>.
func entriesFor(actors ...*scriptActor) []Entry {
	entries := make([]Entry, 0, len(actors))
	for i, a := range actors {
		a := a
		a.id = i
		entries = append(entries, Entry{
			Name: fmt.Sprintf("env-%d", i),
			Constructor: func(ctx context.Context, name string) (sim.Actor, error) {
				return a, nil
			},
		})
	}
	return entries
}

// stepActions builds one action set per worker, all carrying the same value.
func stepActions(p *Pool, val any) map[string]sim.Action {
	actions := make(map[string]sim.Action, p.Size())
	for _, name := range p.Names() {
		actions[name] = sim.Action{"agent": val}
	}
	return actions
}

func TestPool_EntryValidation(t *testing.T) {
	ctor := func(ctx context.Context, name string) (sim.Actor, error) {
		return &scriptActor{}, nil
	}
	tests := []struct {
		name    string
		entries []Entry
	}{
		{name: "no entries", entries: nil},
		{name: "unnamed entry", entries: []Entry{{Constructor: ctor}}},
		{name: "duplicate name", entries: []Entry{{Name: "a", Constructor: ctor}, {Name: "a", Constructor: ctor}}},
		{name: "nil constructor", entries: []Entry{{Name: "a"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(context.Background(), tt.entries)
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
		})
	}
}

func TestPool_ConstructAllOrNothing(t *testing.T) {
	tests := []struct {
		name string
		bad  sim.Constructor
	}{
		{
			name: "constructor error",
			bad: func(ctx context.Context, name string) (sim.Actor, error) {
				return nil, fmt.Errorf("no backend")
			},
		},
		{
			name: "constructor panic",
			bad: func(ctx context.Context, name string) (sim.Actor, error) {
				panic("boom")
			},
		},
		{
			name: "nil actor",
			bad: func(ctx context.Context, name string) (sim.Actor, error) {
				return nil, nil
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var closes int64
			good := func(ctx context.Context, name string) (sim.Actor, error) {
				return &scriptActor{closes: &closes}, nil
			}
			_, err := New(context.Background(), []Entry{
				{Name: "env-0", Constructor: good},
				{Name: "env-1", Constructor: tt.bad},
				{Name: "env-2", Constructor: good},
			})
			var be *BatchError
			if !errors.As(err, &be) {
				t.Fatalf("expected BatchError, got %v", err)
			}
			if be.Op != "construct" {
				t.Fatalf("batch op = %q, want construct", be.Op)
			}
			if len(be.Reports) != 1 || be.Reports[0].Worker != 1 || be.Reports[0].Kind != ReportConstruct {
				t.Fatalf("unexpected reports: %v", be.Reports)
			}
			// the two actors that did construct were torn down again
			if got := atomic.LoadInt64(&closes); got != 2 {
				t.Fatalf("closed %d actors, want 2", got)
			}
		})
	}
}

func TestPool_ResetOrder(t *testing.T) {
	p, err := New(context.Background(), entriesFor(&scriptActor{}, &scriptActor{}, &scriptActor{}))
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	obs, err := p.Reset(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := []sim.Observation{
		{"agent": "a0-ep1-s0"},
		{"agent": "a1-ep1-s0"},
		{"agent": "a2-ep1-s0"},
	}
	if diff := cmp.Diff(want, obs); diff != "" {
		t.Fatalf("observations (-want +got):\n%s", diff)
	}
	if got := p.State(); got != Idle {
		t.Fatalf("pool state = %s, want %s", got, Idle)
	}
}

func TestPool_StepRoundTrip(t *testing.T) {
	p, err := New(context.Background(), entriesFor(&scriptActor{}, &scriptActor{}))
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	ctx := context.Background()
	if _, err := p.Reset(ctx); err != nil {
		t.Fatal(err)
	}

	batch, err := p.Step(ctx, map[string]sim.Action{
		"env-0": {"agent": "left"},
		"env-1": {"agent": "right"},
	})
	if err != nil {
		t.Fatal(err)
	}
	wantObs := []sim.Observation{{"agent": "a0-ep1-s1"}, {"agent": "a1-ep1-s1"}}
	if diff := cmp.Diff(wantObs, batch.Observations); diff != "" {
		t.Fatalf("observations (-want +got):\n%s", diff)
	}
	// actions are routed by entry name, not map iteration order
	if got := batch.Infos[0]["agent"]["got"]; got != "left" {
		t.Fatalf("worker 0 received action %v, want left", got)
	}
	if got := batch.Infos[1]["agent"]["got"]; got != "right" {
		t.Fatalf("worker 1 received action %v, want right", got)
	}
	if batch.Rewards[0]["agent"] != 1 || batch.Dones[0].All {
		t.Fatalf("unexpected reward/done: %v %v", batch.Rewards[0], batch.Dones[0])
	}
}

func TestPool_StepArgumentValidation(t *testing.T) {
	p, err := New(context.Background(), entriesFor(&scriptActor{}, &scriptActor{}))
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	ctx := context.Background()
	if _, err := p.Reset(ctx); err != nil {
		t.Fatal(err)
	}

	var ce *ConfigError
	if err := p.StepAsync(map[string]sim.Action{"env-0": {}}); !errors.As(err, &ce) {
		t.Fatalf("missing action set: %v", err)
	}
	if err := p.StepAsync(map[string]sim.Action{"env-0": {}, "nope": {}}); !errors.As(err, &ce) {
		t.Fatalf("unknown worker name: %v", err)
	}
	// rejected asyncs must leave the pool usable
	if _, err := p.Step(ctx, stepActions(p, nil)); err != nil {
		t.Fatalf("step after rejected asyncs: %v", err)
	}
}

func TestPool_AutoReset(t *testing.T) {
	var resets int64
	p, err := New(context.Background(), entriesFor(&scriptActor{horizon: 2, resets: &resets}))
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	ctx := context.Background()
	if _, err := p.Reset(ctx); err != nil {
		t.Fatal(err)
	}

	if _, err := p.Step(ctx, stepActions(p, nil)); err != nil {
		t.Fatal(err)
	}
	batch, err := p.Step(ctx, stepActions(p, nil))
	if err != nil {
		t.Fatal(err)
	}
	if !batch.Dones[0].All {
		t.Fatal("expected the episode to end on step 2")
	}
	// the returned observation already belongs to the next episode
	if diff := cmp.Diff(sim.Observation{"agent": "a0-ep2-s0"}, batch.Observations[0]); diff != "" {
		t.Fatalf("observation (-want +got):\n%s", diff)
	}
	// the terminal observation moved into the info
	if got := batch.Infos[0]["agent"][sim.KeyEnvObs]; got != "a0-ep1-s2" {
		t.Fatalf("stashed terminal observation = %v, want a0-ep1-s2", got)
	}
	if got := atomic.LoadInt64(&resets); got != 2 {
		t.Fatalf("reset count = %d, want 2", got)
	}
}

func TestPool_AutoResetDisabled(t *testing.T) {
	var resets int64
	p, err := New(context.Background(), entriesFor(&scriptActor{horizon: 1, resets: &resets}), WithAutoReset(false))
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	ctx := context.Background()
	if _, err := p.Reset(ctx); err != nil {
		t.Fatal(err)
	}

	batch, err := p.Step(ctx, stepActions(p, nil))
	if err != nil {
		t.Fatal(err)
	}
	if !batch.Dones[0].All {
		t.Fatal("expected the episode to end on step 1")
	}
	if diff := cmp.Diff(sim.Observation{"agent": "a0-ep1-s1"}, batch.Observations[0]); diff != "" {
		t.Fatalf("observation (-want +got):\n%s", diff)
	}
	if _, ok := batch.Infos[0]["agent"][sim.KeyEnvObs]; ok {
		t.Fatalf("unexpected terminal observation stash: %v", batch.Infos[0])
	}
	if got := atomic.LoadInt64(&resets); got != 1 {
		t.Fatalf("reset count = %d, want 1", got)
	}
}

func TestPool_ProtocolViolations(t *testing.T) {
	p, err := New(context.Background(), entriesFor(&scriptActor{}))
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	var pe *ProtocolError
	if _, err := p.ResetWait(time.Second); !errors.As(err, &pe) {
		t.Fatalf("ResetWait without async: %v", err)
	}
	if _, err := p.StepWait(time.Second); !errors.As(err, &pe) {
		t.Fatalf("StepWait without async: %v", err)
	}
	if _, err := p.SeedWait(time.Second); !errors.As(err, &pe) {
		t.Fatalf("SeedWait without async: %v", err)
	}

	if err := p.ResetAsync(); err != nil {
		t.Fatal(err)
	}
	if err := p.ResetAsync(); !errors.As(err, &pe) {
		t.Fatalf("double async: %v", err)
	}
	if err := p.StepAsync(stepActions(p, nil)); !errors.As(err, &pe) {
		t.Fatalf("async while awaiting reset: %v", err)
	}
	// a mismatched wait must not consume the pending batch
	if _, err := p.StepWait(time.Second); !errors.As(err, &pe) {
		t.Fatalf("mismatched wait: %v", err)
	}
	if _, err := p.ResetWait(5 * time.Second); err != nil {
		t.Fatalf("matching wait after violations: %v", err)
	}
}

func TestPool_StepFailureAggregation(t *testing.T) {
	tests := []struct {
		name string
		bad  *scriptActor
	}{
		{name: "actor error", bad: &scriptActor{failStep: 1}},
		{name: "actor panic", bad: &scriptActor{panicStep: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(context.Background(), entriesFor(&scriptActor{}, tt.bad, &scriptActor{}))
			if err != nil {
				t.Fatal(err)
			}
			defer p.Close()
			ctx := context.Background()
			if _, err := p.Reset(ctx); err != nil {
				t.Fatal(err)
			}

			_, err = p.Step(ctx, stepActions(p, nil))
			var be *BatchError
			if !errors.As(err, &be) {
				t.Fatalf("expected BatchError, got %v", err)
			}
			if be.Op != "step" || len(be.Reports) != 1 {
				t.Fatalf("unexpected aggregate: %v", be)
			}
			if r := be.Reports[0]; r.Worker != 1 || r.Kind != ReportActor {
				t.Fatalf("unexpected report: %v", r)
			}
			if got := p.State(); got != Idle {
				t.Fatalf("pool state = %s, want %s", got, Idle)
			}
			// the workers survive a failed batch
			if _, err := p.Step(ctx, stepActions(p, nil)); err != nil {
				t.Fatalf("step after failed batch: %v", err)
			}
		})
	}
}

func TestPool_StepTimeoutAndRecovery(t *testing.T) {
	release := make(chan struct{})
	p, err := New(context.Background(), entriesFor(&scriptActor{}, &scriptActor{blockCh: release}))
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	ctx := context.Background()
	if _, err := p.Reset(ctx); err != nil {
		t.Fatal(err)
	}

	if err := p.StepAsync(stepActions(p, nil)); err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	_, err = p.StepWait(100 * time.Millisecond)
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond || elapsed > 5*time.Second {
		t.Fatalf("timeout not honored, wait took %s", elapsed)
	}
	if got := p.State(); got != Idle {
		t.Fatalf("pool state = %s, want %s", got, Idle)
	}

	// unblock the straggler; its stale reply must not leak into the next
	// batch
	close(release)
	batch, err := p.Step(ctx, stepActions(p, nil))
	if err != nil {
		t.Fatalf("step after timeout: %v", err)
	}
	// both workers executed the abandoned step and the new one
	wantObs := []sim.Observation{{"agent": "a0-ep1-s2"}, {"agent": "a1-ep1-s2"}}
	if diff := cmp.Diff(wantObs, batch.Observations); diff != "" {
		t.Fatalf("observations (-want +got):\n%s", diff)
	}
}

// A worker stuck inside Step piles up the commands of abandoned batches
// until its buffer is full. Dispatch must keep returning immediately and
// fail the batch at the wait, and Close must not wait for the stuck actor.
func TestPool_StuckWorkerDispatch(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	p, err := New(context.Background(), entriesFor(&scriptActor{blockCh: block}),
		WithCloseTimeout(100*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	ctx := context.Background()
	if _, err := p.Reset(ctx); err != nil {
		t.Fatal(err)
	}

	// the first round wedges the worker, four more fill its command buffer
	for round := 0; round < 5; round++ {
		if err := p.StepAsync(stepActions(p, nil)); err != nil {
			t.Fatalf("round %d: %v", round, err)
		}
		var te *TimeoutError
		if _, err := p.StepWait(20 * time.Millisecond); !errors.As(err, &te) {
			t.Fatalf("round %d: expected TimeoutError, got %v", round, err)
		}
	}

	done := make(chan error, 1)
	go func() {
		if err := p.StepAsync(stepActions(p, nil)); err != nil {
			done <- err
			return
		}
		_, err := p.StepWait(time.Second)
		done <- err
	}()
	select {
	case err := <-done:
		var be *BatchError
		if !errors.As(err, &be) {
			t.Fatalf("expected BatchError, got %v", err)
		}
		if len(be.Reports) != 1 || be.Reports[0].Worker != 0 {
			t.Fatalf("unexpected reports: %v", be.Reports)
		}
		if !strings.Contains(err.Error(), "command buffer full") {
			t.Fatalf("error does not name the stuck worker: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch blocked on a stuck worker")
	}

	closed := make(chan struct{})
	go func() {
		_ = p.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("close blocked on a stuck worker")
	}
}

func TestPool_Seed(t *testing.T) {
	actors := []*scriptActor{{}, {}, {}}
	p, err := New(context.Background(), entriesFor(actors...))
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	ctx := context.Background()

	applied, err := p.Seed(ctx, []int64{7})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int64{7, 7, 7}, applied); diff != "" {
		t.Fatalf("broadcast seeds (-want +got):\n%s", diff)
	}

	applied, err = p.Seed(ctx, []int64{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int64{1, 2, 3}, applied); diff != "" {
		t.Fatalf("per-worker seeds (-want +got):\n%s", diff)
	}
	for i, a := range actors {
		if a.seed != int64(i+1) {
			t.Fatalf("actor %d seeded with %d, want %d", i, a.seed, i+1)
		}
	}

	var ce *ConfigError
	if err := p.SeedAsync([]int64{1, 2}); !errors.As(err, &ce) {
		t.Fatalf("seed count mismatch: %v", err)
	}
}

func TestPool_GetSpecsCached(t *testing.T) {
	var queries int64
	p, err := New(context.Background(), entriesFor(&scriptActor{specQs: &queries}, &scriptActor{specQs: &queries}))
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	ctx := context.Background()

	first, err := p.GetSpecs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt64(&queries); got != 2 {
		t.Fatalf("spec queries = %d, want one per worker", got)
	}
	second, err := p.GetSpecs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Fatal("expected the cached specs on the second call")
	}
	if got := atomic.LoadInt64(&queries); got != 2 {
		t.Fatalf("spec queries = %d after cached call, want 2", got)
	}
	if got := p.State(); got != Idle {
		t.Fatalf("pool state = %s, want %s", got, Idle)
	}
}

func TestPool_GetSpecsMismatch(t *testing.T) {
	odd := &sim.Specs{
		Observation: &sim.Space{Name: "other_obs", Shape: []int{3}, Dtype: "float64"},
		Action:      &sim.Space{Name: "other_act", Shape: []int{1}, Dtype: "int64"},
	}
	p, err := New(context.Background(), entriesFor(&scriptActor{}, &scriptActor{specs: odd}, &scriptActor{}))
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	_, err = p.GetSpecs(context.Background())
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if !strings.Contains(err.Error(), "worker(s) 1") {
		t.Fatalf("mismatch does not name worker 1: %v", err)
	}
}

func TestPool_CloseIdempotent(t *testing.T) {
	var closes int64
	p, err := New(context.Background(), entriesFor(&scriptActor{closes: &closes}, &scriptActor{closes: &closes}))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Reset(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt64(&closes); got != 2 {
		t.Fatalf("closed %d actors, want each exactly once", got)
	}

	if err := p.ResetAsync(); !errors.Is(err, ErrClosed) {
		t.Fatalf("ResetAsync on closed pool: %v", err)
	}
	if err := p.StepAsync(stepActions(p, nil)); !errors.Is(err, ErrClosed) {
		t.Fatalf("StepAsync on closed pool: %v", err)
	}
	if _, err := p.ResetWait(time.Second); !errors.Is(err, ErrClosed) {
		t.Fatalf("ResetWait on closed pool: %v", err)
	}
	if _, err := p.GetSpecs(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("GetSpecs on closed pool: %v", err)
	}
}

// Two workers run episodes of four steps each: three mid-episode steps,
// then a terminal one that hands back next-episode observations without any
// caller-side reset.
func TestPool_EpisodeCycle(t *testing.T) {
	predator := &scriptActor{horizon: 4}
	prey := &scriptActor{horizon: 4}
	entries := []Entry{
		{Name: "predator", Constructor: func(ctx context.Context, name string) (sim.Actor, error) { return predator, nil }},
		{Name: "prey", Constructor: func(ctx context.Context, name string) (sim.Actor, error) { return prey, nil }},
	}
	prey.id = 1
	p, err := New(context.Background(), entries)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	ctx := context.Background()
	if _, err := p.Reset(ctx); err != nil {
		t.Fatal(err)
	}

	for s := 1; s <= 3; s++ {
		batch, err := p.Step(ctx, stepActions(p, nil))
		if err != nil {
			t.Fatal(err)
		}
		for i := range batch.Dones {
			if batch.Dones[i].All {
				t.Fatalf("worker %d done after %d step(s), horizon is 4", i, s)
			}
			if batch.Rewards[i]["agent"] != 1 {
				t.Fatalf("worker %d reward = %v, want 1", i, batch.Rewards[i])
			}
		}
	}
	batch, err := p.Step(ctx, stepActions(p, nil))
	if err != nil {
		t.Fatal(err)
	}
	for i := range batch.Dones {
		if !batch.Dones[i].All || !batch.Dones[i].Agent["agent"] {
			t.Fatalf("worker %d not done on step 4: %v", i, batch.Dones[i])
		}
	}
	// auto-reset already delivered episode 2 observations
	wantObs := []sim.Observation{{"agent": "a0-ep2-s0"}, {"agent": "a1-ep2-s0"}}
	if diff := cmp.Diff(wantObs, batch.Observations); diff != "" {
		t.Fatalf("observations (-want +got):\n%s", diff)
	}
}

// Two pools built from the same deterministic actors and seeds must produce
// identical trajectories.
func TestPool_SeedReproducibility(t *testing.T) {
	ctx := context.Background()
	build := func() *Pool {
		t.Helper()
		entries := make([]Entry, 0, 2)
		for i := 0; i < 2; i++ {
			ac := &config.ActorConfig{Name: fmt.Sprintf("tag-%d", i), Type: "tag"}
			entries = append(entries, Entry{
				Name: ac.Name,
				Constructor: func(ctx context.Context, name string) (sim.Actor, error) {
					return sim.New(ctx, name, ac)
				},
			})
		}
		p, err := New(ctx, entries)
		if err != nil {
			t.Fatal(err)
		}
		return p
	}
	a, b := build(), build()
	defer a.Close()
	defer b.Close()

	action := sim.Action{sim.TagPredator: sim.MoveStay, sim.TagPrey: sim.MoveStay}
	trajectory := func(p *Pool) []*Batch {
		t.Helper()
		if _, err := p.Seed(ctx, []int64{21, 42}); err != nil {
			t.Fatal(err)
		}
		if _, err := p.Reset(ctx); err != nil {
			t.Fatal(err)
		}
		actions := map[string]sim.Action{"tag-0": action, "tag-1": action}
		out := make([]*Batch, 0, 3)
		for i := 0; i < 3; i++ {
			batch, err := p.Step(ctx, actions)
			if err != nil {
				t.Fatal(err)
			}
			out = append(out, batch)
		}
		return out
	}
	if diff := cmp.Diff(trajectory(a), trajectory(b)); diff != "" {
		t.Fatalf("same seeds, different trajectories (-a +b):\n%s", diff)
	}
}

func TestPool_InterruptPoisons(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p, err := New(ctx, entriesFor(&scriptActor{}, &scriptActor{blockCh: block}))
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	if _, err := p.Reset(ctx); err != nil {
		t.Fatal(err)
	}

	if err := p.StepAsync(stepActions(p, nil)); err != nil {
		t.Fatal(err)
	}
	cancel()
	// the in-flight batch fails promptly instead of waiting out its timeout
	if _, err := p.StepWait(30 * time.Second); err == nil {
		t.Fatal("expected the interrupted batch to fail")
	}
	if err := p.ResetAsync(); !errors.Is(err, ErrInterrupted) {
		t.Fatalf("expected ErrInterrupted, got %v", err)
	}
	if _, err := p.GetSpecs(context.Background()); !errors.Is(err, ErrInterrupted) {
		t.Fatalf("expected ErrInterrupted, got %v", err)
	}
	if !p.Interrupted() {
		t.Fatal("pool not marked interrupted")
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close after interrupt: %v", err)
	}
}
