package sim

import (
	"context"
)

// noopActor observes nothing, earns nothing and never terminates. It is
// used by benchmarks and as a wiring check.
type noopActor struct {
	name string
	seed int64
}

func newNoopActor(_ context.Context, name string) (*noopActor, error) {
	na := &noopActor{
		name: name,
	}
	return na, nil
}

func (a *noopActor) Reset(_ context.Context) (Observation, error) {
	return Observation{}, nil
}

func (a *noopActor) Step(_ context.Context, _ Action) (*StepResult, error) {
	return &StepResult{
		Obs:    Observation{},
		Reward: Reward{},
		Done:   Done{Agent: map[string]bool{}},
		Info:   Info{},
	}, nil
}

func (a *noopActor) Seed(_ context.Context, seed int64) (int64, error) {
	a.seed = seed
	return seed, nil
}

func (a *noopActor) Specs(_ context.Context) (*Specs, error) {
	return &Specs{
		Observation: &Space{Name: "noop", Dtype: "float64"},
		Action:      &Space{Name: "noop", Dtype: "int64"},
	}, nil
}

func (a *noopActor) Close() error { return nil }
