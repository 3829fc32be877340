package pool

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestBatchError_Is(t *testing.T) {
	plain := &BatchError{Op: "step", Reports: []Report{
		{Worker: 0, Name: "env-0", Kind: ReportActor, Err: errors.New("boom")},
	}}
	if errors.Is(plain, ErrInterrupted) {
		t.Fatal("actor failure must not match ErrInterrupted")
	}
	poisoned := &BatchError{Op: "step", Reports: []Report{
		{Worker: 0, Name: "env-0", Kind: ReportActor, Err: errors.New("boom")},
		{Worker: 1, Name: "env-1", Kind: ReportInterrupt, Err: context.Canceled},
	}}
	if !errors.Is(poisoned, ErrInterrupted) {
		t.Fatal("interrupt report must match ErrInterrupted")
	}
}

func TestBatchError_NamesEveryWorker(t *testing.T) {
	err := &BatchError{Op: "reset", Reports: []Report{
		{Worker: 0, Name: "env-0", Kind: ReportActor, Err: errors.New("a")},
		{Worker: 2, Name: "env-2", Kind: ReportConstruct, Err: errors.New("b")},
	}}
	msg := err.Error()
	for _, want := range []string{"reset batch failed on 2 worker(s)", "worker 0 (env-0)", "worker 2 (env-2)"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("error %q does not contain %q", msg, want)
		}
	}
}
