package pool

// State tracks which wait call, if any, the pool currently owes its caller.
type State uint8

const (
	Idle State = iota
	AwaitingReset
	AwaitingStep
	AwaitingSeed
	AwaitingSpecs
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingReset:
		return "awaiting-reset"
	case AwaitingStep:
		return "awaiting-step"
	case AwaitingSeed:
		return "awaiting-seed"
	case AwaitingSpecs:
		return "awaiting-specs"
	case Closed:
		return "closed"
	}
	return "unknown"
}
