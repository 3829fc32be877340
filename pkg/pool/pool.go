package pool

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/simkit/rollout-engine/pkg/metrics"
	"github.com/simkit/rollout-engine/pkg/sim"
)

const (
	defaultWaitTimeout  = 60 * time.Second
	defaultSpecsTimeout = 30 * time.Second
	defaultCloseTimeout = 5 * time.Second
)

// Entry names one actor of the pool and the constructor that builds it.
// The slice given to New fixes the worker order; batch results come back
// in that order.
type Entry struct {
	Name        string
	Constructor sim.Constructor
}

// Batch holds the outcome of one step fan-out, one slot per worker in
// entry order.
type Batch struct {
	Observations []sim.Observation
	Rewards      []sim.Reward
	Dones        []sim.Done
	Infos        []sim.Info
}

type Option func(*Pool)

// WithAutoReset controls whether workers start a fresh episode as soon as
// one ends. Enabled by default.
func WithAutoReset(enabled bool) Option {
	return func(p *Pool) { p.autoReset = enabled }
}

// WithRunName prefixes worker names, so actors of concurrent runs are
// distinguishable in logs and records.
func WithRunName(name string) Option {
	return func(p *Pool) { p.runName = name }
}

// WithCloseTimeout bounds how long Close waits for workers to stop.
func WithCloseTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.closeTimeout = d
		}
	}
}

// WithMetrics attaches prometheus instrumentation to the pool.
func WithMetrics(m *metrics.PoolMetrics) Option {
	return func(p *Pool) { p.metrics = m }
}

// Pool fans commands out to one worker goroutine per actor and collects
// the replies. All batch operations are all-or-nothing: either every
// worker succeeded and the results are returned in entry order, or the
// batch fails with an aggregate naming every failing worker.
//
// The async/wait pairs implement a strict contract: an async is only legal
// when the pool is idle, a wait only when its matching async is pending.
// Violations fail fast with a ProtocolError, they never block.
type Pool struct {
	ctx    context.Context
	cancel context.CancelFunc

	autoReset    bool
	runName      string
	closeTimeout time.Duration
	metrics      *metrics.PoolMetrics

	entryNames []string
	workers    []*worker
	skipped    []bool
	byName     map[string]int
	reports    *reportQueue

	mu          sync.Mutex
	state       State
	seq         uint64
	pending     uint64
	interrupted bool
	specs       *sim.Specs

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New starts one worker per entry and waits for every actor to be
// constructed. Construction is all-or-nothing: a single failing
// constructor tears the whole pool down again.
func New(ctx context.Context, entries []Entry, opts ...Option) (*Pool, error) {
	if len(entries) == 0 {
		return nil, &ConfigError{Reason: "no actor entries"}
	}
	byName := make(map[string]int, len(entries))
	names := make([]string, 0, len(entries))
	for i, e := range entries {
		if e.Name == "" {
			return nil, &ConfigError{Reason: fmt.Sprintf("entry %d has no name", i)}
		}
		if _, dup := byName[e.Name]; dup {
			return nil, &ConfigError{Reason: fmt.Sprintf("duplicate entry name %q", e.Name)}
		}
		if e.Constructor == nil {
			return nil, &ConfigError{Reason: fmt.Sprintf("entry %q has no constructor", e.Name)}
		}
		byName[e.Name] = i
		names = append(names, e.Name)
	}
	if n := len(entries); n > runtime.NumCPU() {
		log.Warnf("pool size %d exceeds the %d available CPUs", n, runtime.NumCPU())
	}

	wctx, cancel := context.WithCancel(ctx)
	p := &Pool{
		ctx:          wctx,
		cancel:       cancel,
		autoReset:    true,
		closeTimeout: defaultCloseTimeout,
		entryNames:   names,
		byName:       byName,
		skipped:      make([]bool, len(entries)),
		reports:      newReportQueue(),
	}
	for _, o := range opts {
		o(p)
	}

	p.workers = make([]*worker, 0, len(entries))
	for i, e := range entries {
		name := e.Name
		if p.runName != "" {
			name = p.runName + "-" + e.Name
		}
		p.workers = append(p.workers, newWorker(i, name, e.Constructor, p.autoReset, p.reports))
	}
	log.Infof("starting pool with %d worker(s)", len(p.workers))
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *worker) {
			defer p.wg.Done()
			w.run(wctx)
		}(w)
	}
	if err := p.awaitReady(); err != nil {
		_ = p.Close()
		return nil, err
	}
	return p, nil
}

// awaitReady blocks until every worker acknowledged construction.
func (p *Pool) awaitReady() error {
	failed := false
	for _, w := range p.workers {
		select {
		case rep, open := <-w.replyCh:
			if !open || !rep.ok {
				failed = true
			}
		case <-p.ctx.Done():
			return fmt.Errorf("pool construction: %w", ErrInterrupted)
		}
	}
	if !failed {
		return nil
	}
	return &BatchError{Op: "construct", Reports: p.drainReports(nil)}
}

// Names returns the entry names in worker order.
func (p *Pool) Names() []string {
	out := make([]string, len(p.entryNames))
	copy(out, p.entryNames)
	return out
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// State returns the pool's current protocol state.
func (p *Pool) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Interrupted reports whether the pool context was cancelled. Once true,
// every operation but Close fails with ErrInterrupted.
func (p *Pool) Interrupted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interrupted
}

// ResetAsync tells every worker to start a new episode.
func (p *Pool) ResetAsync() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ensureIdle("ResetAsync"); err != nil {
		return err
	}
	p.fanOut(opReset, nil, nil)
	p.state = AwaitingReset
	return nil
}

// ResetWait collects the initial observations of all workers in entry
// order.
func (p *Pool) ResetWait(timeout time.Duration) ([]sim.Observation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	replies, err := p.await("ResetWait", AwaitingReset, "reset", timeout)
	if err != nil {
		return nil, err
	}
	obs := make([]sim.Observation, len(replies))
	for i, rep := range replies {
		obs[i] = rep.obs
	}
	return obs, nil
}

// StepAsync dispatches one action set per worker, keyed by entry name.
// Every worker must be covered exactly once.
func (p *Pool) StepAsync(actions map[string]sim.Action) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ensureIdle("StepAsync"); err != nil {
		return err
	}
	if len(actions) != len(p.workers) {
		return &ConfigError{Reason: fmt.Sprintf("step wants %d action sets, got %d", len(p.workers), len(actions))}
	}
	ordered := make([]sim.Action, len(p.workers))
	for name, act := range actions {
		i, ok := p.byName[name]
		if !ok {
			return &ConfigError{Reason: fmt.Sprintf("step action for unknown worker %q", name)}
		}
		ordered[i] = act
	}
	p.fanOut(opStep, ordered, nil)
	p.state = AwaitingStep
	return nil
}

// StepWait collects the step results of all workers. When auto-reset is
// enabled and a worker's episode ended, its observation already belongs to
// the next episode; the terminal one sits in the info under sim.KeyEnvObs.
func (p *Pool) StepWait(timeout time.Duration) (*Batch, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	replies, err := p.await("StepWait", AwaitingStep, "step", timeout)
	if err != nil {
		return nil, err
	}
	b := &Batch{
		Observations: make([]sim.Observation, len(replies)),
		Rewards:      make([]sim.Reward, len(replies)),
		Dones:        make([]sim.Done, len(replies)),
		Infos:        make([]sim.Info, len(replies)),
	}
	resets := 0
	for i, rep := range replies {
		b.Observations[i] = rep.step.Obs
		b.Rewards[i] = rep.step.Reward
		b.Dones[i] = rep.step.Done
		b.Infos[i] = rep.step.Info
		if rep.step.Done.All {
			resets++
		}
	}
	p.metrics.AddSteps(len(replies))
	if p.autoReset {
		p.metrics.AddAutoResets(resets)
	}
	return b, nil
}

// SeedAsync dispatches seeds to the workers. A single seed is broadcast to
// all of them, otherwise one seed per worker is expected.
func (p *Pool) SeedAsync(seeds []int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ensureIdle("SeedAsync"); err != nil {
		return err
	}
	ordered := make([]int64, len(p.workers))
	switch len(seeds) {
	case 1:
		for i := range ordered {
			ordered[i] = seeds[0]
		}
	case len(p.workers):
		copy(ordered, seeds)
	default:
		return &ConfigError{Reason: fmt.Sprintf("seed wants 1 or %d seeds, got %d", len(p.workers), len(seeds))}
	}
	p.fanOut(opSeed, nil, ordered)
	p.state = AwaitingSeed
	return nil
}

// SeedWait collects the seeds the actors actually applied, in entry order.
func (p *Pool) SeedWait(timeout time.Duration) ([]int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	replies, err := p.await("SeedWait", AwaitingSeed, "seed", timeout)
	if err != nil {
		return nil, err
	}
	seeds := make([]int64, len(replies))
	for i, rep := range replies {
		seeds[i] = rep.seed
	}
	return seeds, nil
}

// Reset is ResetAsync immediately followed by ResetWait. The timeout is
// taken from the context deadline when one is set.
func (p *Pool) Reset(ctx context.Context) ([]sim.Observation, error) {
	if err := p.ResetAsync(); err != nil {
		return nil, err
	}
	return p.ResetWait(timeoutFrom(ctx, defaultWaitTimeout))
}

// Step is StepAsync immediately followed by StepWait.
func (p *Pool) Step(ctx context.Context, actions map[string]sim.Action) (*Batch, error) {
	if err := p.StepAsync(actions); err != nil {
		return nil, err
	}
	return p.StepWait(timeoutFrom(ctx, defaultWaitTimeout))
}

// Seed is SeedAsync immediately followed by SeedWait.
func (p *Pool) Seed(ctx context.Context, seeds []int64) ([]int64, error) {
	if err := p.SeedAsync(seeds); err != nil {
		return nil, err
	}
	return p.SeedWait(timeoutFrom(ctx, defaultWaitTimeout))
}

// GetSpecs returns the spaces shared by all actors. The first call fans
// out to every worker and fails with a ConfigError when any actor exposes
// different spaces than worker 0; later calls return the cached result.
func (p *Pool) GetSpecs(ctx context.Context) (*sim.Specs, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.specs != nil {
		if p.state == Closed {
			return nil, ErrClosed
		}
		return p.specs, nil
	}
	if err := p.ensureIdle("GetSpecs"); err != nil {
		return nil, err
	}
	p.fanOut(opSpecs, nil, nil)
	p.state = AwaitingSpecs
	replies, err := p.await("GetSpecs", AwaitingSpecs, "specs", timeoutFrom(ctx, defaultSpecsTimeout))
	if err != nil {
		return nil, err
	}
	base := replies[0].specs
	var off []string
	for i, rep := range replies {
		if !rep.specs.Equal(base) {
			off = append(off, strconv.Itoa(i))
		}
	}
	if len(off) > 0 {
		return nil, &ConfigError{Reason: fmt.Sprintf("actor specs of worker(s) %s differ from worker 0", strings.Join(off, ", "))}
	}
	p.specs = base
	return base, nil
}

// Close shuts the pool down and is safe to call any number of times.
// Workers get closeTimeout to acknowledge before the pool context is
// cancelled; a goroutine stuck in a non-cooperative actor cannot be killed
// and is logged as leaked.
func (p *Pool) Close() error {
	p.closeOnce.Do(p.doClose)
	return nil
}

func (p *Pool) doClose() {
	p.mu.Lock()
	p.state = Closed
	p.seq++
	seq := p.seq
	p.mu.Unlock()

	for _, w := range p.workers {
		select {
		case w.cmdCh <- command{seq: seq, op: opClose}:
		default:
			// command buffer wedged, the context cancel below is its signal
		}
	}
	deadline := time.Now().Add(p.closeTimeout)
	leaked := 0
	for _, w := range p.workers {
		if !drainWorkerClose(w, deadline) {
			leaked++
			log.Warnf("worker %d (%s) did not stop within %s", w.index, w.name, p.closeTimeout)
		}
	}
	p.cancel()

	stopped := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(p.closeTimeout):
		log.Warnf("%d worker goroutine(s) left behind, a blocked actor cannot be killed", leaked)
	}
	p.reports.close()
	log.Infof("pool closed")
}

// drainWorkerClose reads replies until the worker acknowledges the close
// or its reply channel closes. Stale replies of abandoned batches are
// swallowed along the way.
func drainWorkerClose(w *worker, deadline time.Time) bool {
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			select {
			case rep, open := <-w.replyCh:
				if !open || rep.op == opClose {
					return true
				}
			default:
				return false
			}
			continue
		}
		timer := time.NewTimer(remaining)
		select {
		case rep, open := <-w.replyCh:
			timer.Stop()
			if !open || rep.op == opClose {
				return true
			}
		case <-timer.C:
		}
	}
}

// ensureIdle guards the entry of every async operation. Callers hold mu.
func (p *Pool) ensureIdle(call string) error {
	if p.state == Closed {
		return ErrClosed
	}
	if p.ctx.Err() != nil {
		p.interrupted = true
	}
	if p.interrupted {
		return fmt.Errorf("%s: %w", call, ErrInterrupted)
	}
	if p.state != Idle {
		return &ProtocolError{Call: call, State: p.state}
	}
	return nil
}

// fanOut sends one command per worker under a fresh batch seq. Dispatch
// never blocks: a worker whose command buffer is still full of abandoned
// commands is presumed stuck inside its actor, gets no command and is
// reported, so the wait fails the batch naming it. Callers hold mu.
func (p *Pool) fanOut(o op, actions []sim.Action, seeds []int64) {
	p.seq++
	p.pending = p.seq
	for i := range p.skipped {
		p.skipped[i] = false
	}
	for i, w := range p.workers {
		cmd := command{seq: p.seq, op: o}
		if actions != nil {
			cmd.action = actions[i]
		}
		if seeds != nil {
			cmd.seed = seeds[i]
		}
		select {
		case w.cmdCh <- cmd:
		default:
			p.skipped[i] = true
			r := Report{
				Worker: i,
				Name:   w.name,
				Kind:   ReportActor,
				Err:    fmt.Errorf("%s not dispatched, command buffer full, worker presumed stuck", o),
			}
			log.Errorf("%s", r)
			_ = p.reports.put(r)
		}
	}
}

// await validates the wait call, collects one reply per worker and
// aggregates failures. The pool is Idle again when it returns, whatever
// the outcome. Callers hold mu.
func (p *Pool) await(call string, want State, opName string, timeout time.Duration) ([]reply, error) {
	if p.state == Closed {
		return nil, ErrClosed
	}
	if p.interrupted {
		return nil, fmt.Errorf("%s: %w", call, ErrInterrupted)
	}
	if p.state != want {
		return nil, &ProtocolError{Call: call, State: p.state}
	}
	start := time.Now()
	replies, err := p.collect(opName, p.pending, timeout)
	p.state = Idle
	if err != nil {
		p.metrics.ObserveBatch(opName, "timeout", time.Since(start))
		return nil, err
	}
	if reports := p.drainReports(replies); len(reports) > 0 {
		p.latch(reports)
		for _, r := range reports {
			p.metrics.WorkerError(r.Worker, string(r.Kind))
		}
		p.metrics.ObserveBatch(opName, "error", time.Since(start))
		return nil, &BatchError{Op: opName, Reports: reports}
	}
	p.metrics.ObserveBatch(opName, "ok", time.Since(start))
	return replies, nil
}

// collect gathers exactly one reply per worker for the given batch seq, in
// entry order, under a single deadline. Stale replies of timed out batches
// are discarded. A closed reply channel counts as a failed reply; the dead
// worker left a report behind or gets one synthesized during aggregation.
func (p *Pool) collect(opName string, seq uint64, timeout time.Duration) ([]reply, error) {
	if timeout <= 0 {
		return nil, &TimeoutError{Op: opName, Timeout: timeout}
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	replies := make([]reply, len(p.workers))
	for i, w := range p.workers {
		if p.skipped[i] {
			replies[i] = reply{seq: seq}
			continue
		}
	next:
		for {
			select {
			case rep, open := <-w.replyCh:
				if !open {
					replies[i] = reply{seq: seq}
					break next
				}
				if rep.seq != seq {
					continue // stale reply from a timed out batch
				}
				replies[i] = rep
				break next
			case <-deadline.C:
				return nil, &TimeoutError{Op: opName, Timeout: timeout}
			}
		}
	}
	return replies, nil
}

// drainReports empties the report queue and synthesizes a report for any
// failed reply that did not leave one, so the aggregate names every
// failing worker. Reports come back ordered by worker index.
func (p *Pool) drainReports(replies []reply) []Report {
	reports := p.reports.drain()
	if len(replies) > 0 {
		seen := make(map[int]struct{}, len(reports))
		for _, r := range reports {
			seen[r.Worker] = struct{}{}
		}
		for i, rep := range replies {
			if rep.ok {
				continue
			}
			if _, ok := seen[i]; ok {
				continue
			}
			reports = append(reports, Report{
				Worker: i,
				Name:   p.workers[i].name,
				Kind:   ReportActor,
				Err:    errors.New("worker exited without report"),
			})
		}
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].Worker < reports[j].Worker })
	return reports
}

// latch poisons the pool when any report was caused by cancellation.
func (p *Pool) latch(reports []Report) {
	for _, r := range reports {
		if r.Kind == ReportInterrupt {
			p.interrupted = true
			return
		}
	}
}

func timeoutFrom(ctx context.Context, def time.Duration) time.Duration {
	if dl, ok := ctx.Deadline(); ok {
		return time.Until(dl)
	}
	return def
}
