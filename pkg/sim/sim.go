package sim

import (
	"context"
	"fmt"

	"github.com/simkit/rollout-engine/pkg/config"
)

// KeyEnvObs is the info key under which a worker stores the true terminal
// observation of a sub-agent when the episode ended and the actor was
// auto-reset.
const KeyEnvObs = "env_obs"

// Observation maps a sub-agent id to its observation payload.
type Observation map[string]any

// Action maps a sub-agent id to its action payload.
type Action map[string]any

// Reward maps a sub-agent id to its scalar reward.
type Reward map[string]float64

// Done carries per-sub-agent termination flags. All is set when the
// episode as a whole is over.
type Done struct {
	Agent map[string]bool
	All   bool
}

// Info maps a sub-agent id to auxiliary step data.
type Info map[string]map[string]any

// StepResult is the outcome of a single actor transition.
type StepResult struct {
	Obs    Observation
	Reward Reward
	Done   Done
	Info   Info
}

// Space describes the shape and bounds of an observation or action payload.
type Space struct {
	Name  string  `json:"name,omitempty"`
	Shape []int   `json:"shape,omitempty"`
	Dtype string  `json:"dtype,omitempty"`
	Low   float64 `json:"low"`
	High  float64 `json:"high"`
}

func (s *Space) Equal(o *Space) bool {
	if s == nil || o == nil {
		return s == o
	}
	if s.Name != o.Name || s.Dtype != o.Dtype || s.Low != o.Low || s.High != o.High {
		return false
	}
	if len(s.Shape) != len(o.Shape) {
		return false
	}
	for i := range s.Shape {
		if s.Shape[i] != o.Shape[i] {
			return false
		}
	}
	return true
}

func (s *Space) String() string {
	if s == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s%v %s [%v, %v]", s.Name, s.Shape, s.Dtype, s.Low, s.High)
}

// Specs groups the observation and action spaces an actor exposes.
type Specs struct {
	Observation *Space `json:"observation,omitempty"`
	Action      *Space `json:"action,omitempty"`
}

func (s *Specs) Equal(o *Specs) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.Observation.Equal(o.Observation) && s.Action.Equal(o.Action)
}

// Actor is a policy plus the environment it acts in, driven by a single
// worker. Implementations need not be safe for concurrent use.
type Actor interface {
	// Reset starts a new episode and returns the initial observation.
	Reset(ctx context.Context) (Observation, error)
	// Step advances the episode by one joint action.
	Step(ctx context.Context, act Action) (*StepResult, error)
	// Seed reseeds the actor and returns the seed actually applied.
	Seed(ctx context.Context, seed int64) (int64, error)
	// Specs reports the actor's spaces without mutating episode state.
	Specs(ctx context.Context) (*Specs, error)
	Close() error
}

// Constructor builds an actor inside its worker goroutine. The name is the
// identity assigned by the pool.
type Constructor func(ctx context.Context, name string) (Actor, error)

// New builds an actor from its config.
func New(ctx context.Context, name string, cfg *config.ActorConfig) (Actor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("actor %s: missing config", name)
	}
	switch cfg.Type {
	case "tag":
		return newTagActor(ctx, name, cfg.Params)
	case "noop", "":
		return newNoopActor(ctx, name)
	}
	return nil, fmt.Errorf("actor %s: unknown type %q", name, cfg.Type)
}

// Types lists the known actor types.
func Types() []string {
	return []string{"tag", "noop"}
}
