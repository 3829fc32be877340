package sim

import (
	"context"
	"fmt"
	"math/rand"

	log "github.com/sirupsen/logrus"
)

const (
	defaultTagGrid    = 8
	defaultTagHorizon = 4

	tagCaptureReward = 10.0
	tagStepReward    = 1.0
)

// Sub-agent ids of the tag actor.
const (
	TagPredator = "predator"
	TagPrey     = "prey"
)

// Move directions accepted as tag actions.
const (
	MoveStay = iota
	MoveUp
	MoveDown
	MoveLeft
	MoveRight
)

// tagActor is a two player pursuit on an integer grid. The predator tries
// to reach the prey's cell; the episode ends on capture or when the horizon
// is reached. Fully deterministic for a given seed and action sequence.
type tagActor struct {
	name    string
	grid    int
	horizon int

	rng     *rand.Rand
	seed    int64
	started bool
	steps   int

	px, py int
	qx, qy int
}

func newTagActor(_ context.Context, name string, params map[string]any) (*tagActor, error) {
	grid, err := intParam(params, "grid", defaultTagGrid)
	if err != nil {
		return nil, fmt.Errorf("actor %s: %v", name, err)
	}
	horizon, err := intParam(params, "horizon", defaultTagHorizon)
	if err != nil {
		return nil, fmt.Errorf("actor %s: %v", name, err)
	}
	if grid < 2 {
		return nil, fmt.Errorf("actor %s: grid must be at least 2, got %d", name, grid)
	}
	if horizon < 1 {
		return nil, fmt.Errorf("actor %s: horizon must be at least 1, got %d", name, horizon)
	}
	ta := &tagActor{
		name:    name,
		grid:    grid,
		horizon: horizon,
		seed:    1,
	}
	ta.rng = rand.New(rand.NewSource(ta.seed))
	return ta, nil
}

func (a *tagActor) Reset(_ context.Context) (Observation, error) {
	a.px, a.py = a.rng.Intn(a.grid), a.rng.Intn(a.grid)
	a.qx, a.qy = a.px, a.py
	for a.qx == a.px && a.qy == a.py {
		a.qx, a.qy = a.rng.Intn(a.grid), a.rng.Intn(a.grid)
	}
	a.steps = 0
	a.started = true
	log.Debugf("actor %s: new episode, predator (%d,%d) prey (%d,%d)", a.name, a.px, a.py, a.qx, a.qy)
	return a.observe(), nil
}

func (a *tagActor) Step(_ context.Context, act Action) (*StepResult, error) {
	if !a.started {
		return nil, fmt.Errorf("actor %s: step before reset", a.name)
	}
	pd, err := moveDir(act, TagPredator)
	if err != nil {
		return nil, fmt.Errorf("actor %s: %v", a.name, err)
	}
	qd, err := moveDir(act, TagPrey)
	if err != nil {
		return nil, fmt.Errorf("actor %s: %v", a.name, err)
	}
	a.px, a.py = a.move(a.px, a.py, pd)
	a.qx, a.qy = a.move(a.qx, a.qy, qd)
	a.steps++

	captured := a.px == a.qx && a.py == a.qy
	over := captured || a.steps >= a.horizon

	reward := Reward{TagPredator: tagStepReward, TagPrey: tagStepReward}
	if captured {
		reward[TagPredator] = tagCaptureReward
		reward[TagPrey] = 0
	}
	info := Info{TagPredator: map[string]any{}, TagPrey: map[string]any{}}
	if over {
		a.started = false
		info[TagPredator]["captured"] = captured
		info[TagPrey]["captured"] = captured
	}
	return &StepResult{
		Obs:    a.observe(),
		Reward: reward,
		Done: Done{
			Agent: map[string]bool{TagPredator: over, TagPrey: over},
			All:   over,
		},
		Info: info,
	}, nil
}

// Seed reseeds the position generator. Negative seeds are folded into the
// non-negative range, the applied value is returned.
func (a *tagActor) Seed(_ context.Context, seed int64) (int64, error) {
	if seed < 0 {
		seed = -seed
	}
	a.seed = seed
	a.rng = rand.New(rand.NewSource(seed))
	return seed, nil
}

func (a *tagActor) Specs(_ context.Context) (*Specs, error) {
	return &Specs{
		Observation: &Space{
			Name:  "tag_obs",
			Shape: []int{4},
			Dtype: "float64",
			Low:   0,
			High:  float64(a.grid - 1),
		},
		Action: &Space{
			Name:  "tag_act",
			Shape: []int{1},
			Dtype: "int64",
			Low:   MoveStay,
			High:  MoveRight,
		},
	}, nil
}

func (a *tagActor) Close() error { return nil }

// observe reports each sub-agent's own position followed by the opponent's.
func (a *tagActor) observe() Observation {
	return Observation{
		TagPredator: []float64{float64(a.px), float64(a.py), float64(a.qx), float64(a.qy)},
		TagPrey:     []float64{float64(a.qx), float64(a.qy), float64(a.px), float64(a.py)},
	}
}

func (a *tagActor) move(x, y, dir int) (int, int) {
	switch dir {
	case MoveUp:
		y++
	case MoveDown:
		y--
	case MoveLeft:
		x--
	case MoveRight:
		x++
	}
	return clamp(x, 0, a.grid-1), clamp(y, 0, a.grid-1)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func moveDir(act Action, agent string) (int, error) {
	v, ok := act[agent]
	if !ok {
		return 0, fmt.Errorf("missing action for %s", agent)
	}
	dir, err := toInt(v)
	if err != nil {
		return 0, fmt.Errorf("action for %s: %v", agent, err)
	}
	if dir < MoveStay || dir > MoveRight {
		return 0, fmt.Errorf("action for %s: direction %d out of range", agent, dir)
	}
	return dir, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	}
	return 0, fmt.Errorf("unexpected type %T", v)
}

func intParam(params map[string]any, key string, def int) (int, error) {
	v, ok := params[key]
	if !ok {
		return def, nil
	}
	n, err := toInt(v)
	if err != nil {
		return 0, fmt.Errorf("param %s: %v", key, err)
	}
	return n, nil
}
