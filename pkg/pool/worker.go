package pool

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/simkit/rollout-engine/pkg/sim"
)

// cmdBufSize bounds how many commands of abandoned batches a worker can
// sit on before the pool presumes it stuck and stops dispatching to it.
const cmdBufSize = 4

// worker drives one actor in its own goroutine. Commands arrive on cmdCh
// and every command is answered on replyCh. The reply channel is closed
// when the worker exits, whatever the cause, which is how the pool tells a
// dead worker from a slow one.
type worker struct {
	index int
	name  string

	ctor      sim.Constructor
	autoReset bool

	cmdCh   chan command
	replyCh chan reply
	reports *reportQueue
}

func newWorker(index int, name string, ctor sim.Constructor, autoReset bool, reports *reportQueue) *worker {
	return &worker{
		index:     index,
		name:      name,
		ctor:      ctor,
		autoReset: autoReset,
		cmdCh:     make(chan command, cmdBufSize),
		replyCh:   make(chan reply, 1),
		reports:   reports,
	}
}

func (w *worker) run(ctx context.Context) {
	defer close(w.replyCh)

	actor, err := w.construct(ctx)
	if err != nil {
		w.report(ReportConstruct, err)
		w.send(ctx, reply{op: opReady})
		return
	}
	defer func() {
		if cerr := actor.Close(); cerr != nil {
			log.Errorf("worker %d (%s): actor close: %v", w.index, w.name, cerr)
		}
	}()
	w.send(ctx, reply{op: opReady, ok: true})

	for {
		select {
		case <-ctx.Done():
			w.report(ReportInterrupt, ctx.Err())
			return
		case cmd := <-w.cmdCh:
			if cmd.op == opClose {
				w.send(ctx, reply{seq: cmd.seq, op: opClose, ok: true})
				return
			}
			w.send(ctx, w.handle(ctx, actor, cmd))
		}
	}
}

func (w *worker) construct(ctx context.Context) (actor sim.Actor, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("constructor panic: %v", r)
		}
	}()
	actor, err = w.ctor(ctx, w.name)
	if err == nil && actor == nil {
		err = fmt.Errorf("constructor returned no actor")
	}
	return actor, err
}

// handle runs one command against the actor. Failures are pushed onto the
// report queue and answered with a failed reply; the worker itself stays
// alive so the pool decides whether to abort.
func (w *worker) handle(ctx context.Context, actor sim.Actor, cmd command) (rep reply) {
	rep = reply{seq: cmd.seq, op: cmd.op}
	defer func() {
		if r := recover(); r != nil {
			w.report(ReportActor, fmt.Errorf("%s panic: %v", cmd.op, r))
			rep.ok = false
		}
	}()

	switch cmd.op {
	case opReset:
		obs, err := actor.Reset(ctx)
		if err != nil {
			w.report(ReportActor, err)
			return rep
		}
		rep.ok, rep.obs = true, obs
	case opStep:
		res, err := actor.Step(ctx, cmd.action)
		if err != nil {
			w.report(ReportActor, err)
			return rep
		}
		if res.Done.All && w.autoReset {
			if err := w.rollOver(ctx, actor, res); err != nil {
				w.report(ReportActor, err)
				return rep
			}
		}
		rep.ok, rep.step = true, res
	case opSeed:
		seed, err := actor.Seed(ctx, cmd.seed)
		if err != nil {
			w.report(ReportActor, err)
			return rep
		}
		rep.ok, rep.seed = true, seed
	case opSpecs:
		specs, err := actor.Specs(ctx)
		if err != nil {
			w.report(ReportActor, err)
			return rep
		}
		rep.ok, rep.specs = true, specs
	default:
		w.report(ReportProtocol, fmt.Errorf("unknown op %d", cmd.op))
	}
	return rep
}

// rollOver finishes an episode in place: each sub-agent's terminal
// observation moves into the step info and the actor is reset so the
// returned observation already belongs to the next episode.
func (w *worker) rollOver(ctx context.Context, actor sim.Actor, res *sim.StepResult) error {
	if res.Info == nil {
		res.Info = sim.Info{}
	}
	for agent, payload := range res.Obs {
		if res.Info[agent] == nil {
			res.Info[agent] = map[string]any{}
		}
		res.Info[agent][sim.KeyEnvObs] = payload
	}
	obs, err := actor.Reset(ctx)
	if err != nil {
		return fmt.Errorf("auto-reset: %w", err)
	}
	res.Obs = obs
	return nil
}

func (w *worker) report(kind ReportKind, err error) {
	r := Report{Worker: w.index, Name: w.name, Kind: kind, Err: err}
	if kind == ReportInterrupt {
		log.Debugf("worker %d (%s) interrupted", w.index, w.name)
	} else {
		log.Errorf("%s", r)
	}
	// a closed queue means the pool is shutting down and no longer cares
	_ = w.reports.put(r)
}

func (w *worker) send(ctx context.Context, rep reply) {
	select {
	case w.replyCh <- rep:
	case <-ctx.Done():
	}
}
