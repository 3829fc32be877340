package engine

import (
	"math/rand"
	"sort"

	"github.com/simkit/rollout-engine/pkg/sim"
)

// randomPolicy samples uniform actions from the shared action space. It
// stands in for a learned policy driving the actors.
type randomPolicy struct {
	rng    *rand.Rand
	lo, hi int64
}

func newRandomPolicy(specs *sim.Specs, seed int64) *randomPolicy {
	var lo, hi int64
	if specs != nil && specs.Action != nil {
		lo, hi = int64(specs.Action.Low), int64(specs.Action.High)
	}
	if hi < lo {
		hi = lo
	}
	return &randomPolicy{
		rng: rand.New(rand.NewSource(seed)),
		lo:  lo,
		hi:  hi,
	}
}

// action draws one action per sub-agent. Agents are visited in sorted
// order so a given seed always produces the same action stream.
func (p *randomPolicy) action(obs sim.Observation) sim.Action {
	agents := make([]string, 0, len(obs))
	for agent := range obs {
		agents = append(agents, agent)
	}
	sort.Strings(agents)
	act := make(sim.Action, len(agents))
	for _, agent := range agents {
		act[agent] = p.lo + p.rng.Int63n(p.hi-p.lo+1)
	}
	return act
}
