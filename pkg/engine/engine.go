package engine

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/simkit/rollout-engine/pkg/config"
	"github.com/simkit/rollout-engine/pkg/metrics"
	"github.com/simkit/rollout-engine/pkg/pool"
	"github.com/simkit/rollout-engine/pkg/sim"
)

// Engine owns a worker pool and drives it through the configured rollout:
// seed, reset, then batches of steps with every finished episode handed to
// the recorder.
type Engine struct {
	config *config.Config

	cfn context.CancelFunc

	runID string

	pool     *pool.Pool
	recorder *recorder
	counts   []int

	router *mux.Router
	reg    *prometheus.Registry

	pm *metrics.PoolMetrics
	rm *metrics.RolloutMetrics
}

func New(ctx context.Context, c *config.Config) (*Engine, error) {
	if len(c.Actors) == 0 {
		return nil, fmt.Errorf("no actors configured")
	}
	ctx, cancel := context.WithCancel(ctx)
	e := &Engine{
		config: c,
		cfn:    cancel,
		runID:  "run-" + uuid.New().String(),
		counts: make([]int, len(c.Actors)),
		router: mux.NewRouter(),
		reg:    prometheus.NewRegistry(),
	}
	if c.Prometheus != nil {
		e.pm = metrics.NewPoolMetrics()
		e.rm = metrics.NewRolloutMetrics()
		e.pm.Register(e.reg)
		e.rm.Register(e.reg)
	}

	rec, err := newRecorder(c.Recorder, e.runID, e.rm)
	if err != nil {
		cancel()
		return nil, err
	}
	e.recorder = rec

	entries := make([]pool.Entry, 0, len(c.Actors))
	for _, ac := range c.Actors {
		ac := ac
		entries = append(entries, pool.Entry{
			Name: ac.Name,
			Constructor: func(ctx context.Context, name string) (sim.Actor, error) {
				return sim.New(ctx, name, ac)
			},
		})
	}
	p, err := pool.New(ctx, entries,
		pool.WithAutoReset(*c.Pool.AutoReset),
		pool.WithRunName(c.Pool.RunName),
		pool.WithCloseTimeout(c.Pool.CloseTimeout),
		pool.WithMetrics(e.pm),
	)
	if err != nil {
		cancel()
		_ = rec.Close()
		return nil, err
	}
	e.pool = p
	log.Infof("engine %s ready with %d actor(s)", e.runID, p.Size())
	return e, nil
}

// RunID identifies this engine instance in logs and episode records.
func (e *Engine) RunID() string { return e.runID }

// Pool exposes the engine's worker pool.
func (e *Engine) Pool() *pool.Pool { return e.pool }

// Run seeds the workers, resets them and steps through the configured
// batches. Episodes that end mid run are recorded as they finish; whatever
// is still running when the last batch completes is recorded as cut off.
func (e *Engine) Run(ctx context.Context) error {
	rc := e.config.Rollout
	pc := e.config.Pool

	specs, err := e.pool.GetSpecs(ctx)
	if err != nil {
		return err
	}
	policy := newRandomPolicy(specs, rc.Seed)

	if err := e.seed(rc.Seed, pc.SeedTimeout); err != nil {
		return err
	}
	if err := e.pool.ResetAsync(); err != nil {
		return err
	}
	obs, err := e.pool.ResetWait(pc.ResetTimeout)
	if err != nil {
		return err
	}

	names := e.pool.Names()
	eps := make([]*episodeState, e.pool.Size())
	for i := range eps {
		eps[i] = newEpisodeState()
	}

	for batch := 1; batch <= rc.Batches; batch++ {
		finished := 0
		for step := 0; step < rc.BatchSize; step++ {
			actions := make(map[string]sim.Action, len(names))
			for i, name := range names {
				actions[name] = policy.action(obs[i])
			}
			if err := e.pool.StepAsync(actions); err != nil {
				return err
			}
			res, err := e.pool.StepWait(pc.StepTimeout)
			if err != nil {
				return err
			}
			obs = res.Observations
			for i := range names {
				eps[i].add(res.Rewards[i])
				if res.Dones[i].All {
					e.finishEpisode(ctx, i, names[i], eps[i], true)
					eps[i] = newEpisodeState()
					finished++
				}
			}
		}
		log.Infof("run %s: batch %d/%d done, %d step(s), %d episode(s) finished",
			e.runID, batch, rc.Batches, rc.BatchSize, finished)
		if batch%rc.SaveInterval == 0 {
			log.Infof("run %s: checkpoint marker at batch %d", e.runID, batch)
		}
	}

	for i, st := range eps {
		if st.steps > 0 {
			e.finishEpisode(ctx, i, names[i], st, false)
		}
	}
	return nil
}

func (e *Engine) seed(base int64, timeout time.Duration) error {
	seeds := make([]int64, e.pool.Size())
	for i := range seeds {
		seeds[i] = base + int64(i)
	}
	if err := e.pool.SeedAsync(seeds); err != nil {
		return err
	}
	applied, err := e.pool.SeedWait(timeout)
	if err != nil {
		return err
	}
	log.Infof("run %s: workers seeded with %v", e.runID, applied)
	return nil
}

func (e *Engine) finishEpisode(ctx context.Context, worker int, name string, st *episodeState, terminal bool) {
	e.counts[worker]++
	e.rm.EpisodeDone(name, st.steps)
	e.recorder.Record(ctx, &EpisodeRecord{
		Worker:     worker,
		Name:       name,
		Episode:    e.counts[worker],
		Steps:      st.steps,
		Reward:     st.reward,
		Terminal:   terminal,
		StartedAt:  st.startedAt,
		FinishedAt: time.Now(),
	})
}

// ServeHTTP exposes the engine's prometheus registry on /metrics. It
// blocks, callers run it in its own goroutine.
func (e *Engine) ServeHTTP() {
	e.router.Handle("/metrics", promhttp.HandlerFor(e.reg, promhttp.HandlerOpts{}))
	e.reg.MustRegister(collectors.NewGoCollector())
	e.reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	srv := &http.Server{
		Addr:         e.config.Prometheus.Address,
		Handler:      e.router,
		ReadTimeout:  time.Minute,
		WriteTimeout: time.Minute,
	}
	err := srv.ListenAndServe()
	if err != nil {
		log.Errorf("HTTP server stopped: %v", err)
	}
}

// Stop closes the pool and the recorder. Safe to call more than once.
func (e *Engine) Stop() {
	if err := e.pool.Close(); err != nil {
		log.Errorf("pool close: %v", err)
	}
	if err := e.recorder.Close(); err != nil {
		log.Errorf("recorder close: %v", err)
	}
	e.cfn()
}

// episodeState accumulates one in-flight episode of a single worker.
type episodeState struct {
	steps     int
	reward    map[string]float64
	startedAt time.Time
}

func newEpisodeState() *episodeState {
	return &episodeState{
		reward:    make(map[string]float64),
		startedAt: time.Now(),
	}
}

func (s *episodeState) add(r sim.Reward) {
	s.steps++
	for agent, v := range r {
		s.reward[agent] += v
	}
}
