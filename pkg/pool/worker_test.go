package pool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/simkit/rollout-engine/pkg/sim"
)

// readReply pops the next reply off a worker channel or fails the test.
func readReply(t *testing.T, ch chan reply) reply {
	t.Helper()
	select {
	case rep := <-ch:
		return rep
	case <-time.After(2 * time.Second):
		t.Fatal("no reply from worker")
	}
	return reply{}
}

// An op the pool never sends must not kill the worker: it files a protocol
// report, answers with a failed reply and keeps serving valid commands.
func TestWorker_UnknownOp(t *testing.T) {
	var closes int64
	ctor := func(ctx context.Context, name string) (sim.Actor, error) {
		return &scriptActor{closes: &closes}, nil
	}
	reports := newReportQueue()
	w := newWorker(0, "env-0", ctor, true, reports)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	exited := make(chan struct{})
	go func() {
		w.run(ctx)
		close(exited)
	}()

	if rep := readReply(t, w.replyCh); rep.op != opReady || !rep.ok {
		t.Fatalf("unexpected ready reply: %+v", rep)
	}

	w.cmdCh <- command{seq: 7, op: op(99)}
	rep := readReply(t, w.replyCh)
	if rep.seq != 7 || rep.ok {
		t.Fatalf("unexpected reply to unknown op: %+v", rep)
	}
	r, ok := reports.tryPop()
	if !ok {
		t.Fatal("no report filed for unknown op")
	}
	if r.Kind != ReportProtocol || r.Worker != 0 {
		t.Fatalf("unexpected report: %v", r)
	}

	// the worker is still in business
	w.cmdCh <- command{seq: 8, op: opReset}
	rep = readReply(t, w.replyCh)
	if rep.seq != 8 || !rep.ok || rep.obs == nil {
		t.Fatalf("unexpected reset reply: %+v", rep)
	}

	w.cmdCh <- command{seq: 9, op: opClose}
	if rep := readReply(t, w.replyCh); rep.op != opClose || !rep.ok {
		t.Fatalf("unexpected close reply: %+v", rep)
	}
	select {
	case <-exited:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit after close")
	}
	if n := atomic.LoadInt64(&closes); n != 1 {
		t.Fatalf("actor closed %d times, want 1", n)
	}
}
