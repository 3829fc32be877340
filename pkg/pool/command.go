package pool

import (
	"github.com/simkit/rollout-engine/pkg/sim"
)

type op uint8

const (
	opReady op = iota
	opReset
	opStep
	opSeed
	opSpecs
	opClose
)

func (o op) String() string {
	switch o {
	case opReady:
		return "ready"
	case opReset:
		return "reset"
	case opStep:
		return "step"
	case opSeed:
		return "seed"
	case opSpecs:
		return "specs"
	case opClose:
		return "close"
	}
	return "unknown"
}

// command travels from the pool to a single worker. Every command is
// answered by exactly one reply carrying the same seq.
type command struct {
	seq    uint64
	op     op
	action sim.Action
	seed   int64
}

// reply travels from a worker back to the pool. Replies whose seq does not
// match the pool's current batch are stale leftovers of a timed out batch
// and are discarded by the collector.
type reply struct {
	seq   uint64
	op    op
	ok    bool
	obs   sim.Observation
	step  *sim.StepResult
	seed  int64
	specs *sim.Specs
}
