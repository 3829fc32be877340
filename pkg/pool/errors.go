package pool

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrClosed is returned by any operation on a closed pool.
	ErrClosed = errors.New("pool is closed")
	// ErrInterrupted is returned once the pool context was cancelled.
	// The pool stays poisoned until Close.
	ErrInterrupted = errors.New("pool interrupted")
)

// ReportKind classifies worker failure reports.
type ReportKind string

const (
	ReportConstruct ReportKind = "construct"
	ReportActor     ReportKind = "actor"
	ReportProtocol  ReportKind = "protocol"
	ReportInterrupt ReportKind = "interrupt"
)

// Report is a failure note a worker pushes onto the shared report queue.
// Producers never block on it.
type Report struct {
	Worker int
	Name   string
	Kind   ReportKind
	Err    error
}

func (r Report) String() string {
	return fmt.Sprintf("worker %d (%s) %s: %v", r.Worker, r.Name, r.Kind, r.Err)
}

// ConfigError flags an unusable pool setup, such as bad entries or
// mismatched actor specs.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return "pool config: " + e.Reason }

// ProtocolError flags an API call that is illegal in the pool's current
// state, such as a wait without a matching async. It is always a caller
// bug.
type ProtocolError struct {
	Call  string
	State State
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s called while pool is %s", e.Call, e.State)
}

// TimeoutError reports a batch that did not complete within its deadline.
// No partial results were applied.
type TimeoutError struct {
	Op      string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s batch timed out after %s", e.Op, e.Timeout)
}

// BatchError aggregates the failure reports of one batch. The batch as a
// whole produced no results.
type BatchError struct {
	Op      string
	Reports []Report
}

func (e *BatchError) Error() string {
	sb := new(strings.Builder)
	fmt.Fprintf(sb, "%s batch failed on %d worker(s):", e.Op, len(e.Reports))
	for _, r := range e.Reports {
		sb.WriteString(" [")
		sb.WriteString(r.String())
		sb.WriteString("]")
	}
	return sb.String()
}

// Is reports interrupt poisoning so callers can errors.Is against
// ErrInterrupted without digging through the reports.
func (e *BatchError) Is(target error) bool {
	if target != ErrInterrupted {
		return false
	}
	for _, r := range e.Reports {
		if r.Kind == ReportInterrupt {
			return true
		}
	}
	return false
}
