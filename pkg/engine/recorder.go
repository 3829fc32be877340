package engine

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/simkit/rollout-engine/pkg/config"
	"github.com/simkit/rollout-engine/pkg/metrics"
)

const recorderFlushTimeout = 10 * time.Second

// EpisodeRecord is one finished episode as written to the JSONL sink.
// Terminal is false for episodes cut off by the end of the run.
type EpisodeRecord struct {
	RunID      string             `json:"run_id"`
	Worker     int                `json:"worker"`
	Name       string             `json:"name"`
	Episode    int                `json:"episode"`
	Steps      int                `json:"steps"`
	Reward     map[string]float64 `json:"reward"`
	Terminal   bool               `json:"terminal"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
}

// recorder appends episode records to a JSONL file. Records are written by
// background goroutines bounded by a weighted semaphore; the encoder is
// mutex guarded so records never interleave. A nil recorder drops records.
type recorder struct {
	runID string
	slots int64
	sem   *semaphore.Weighted
	rm    *metrics.RolloutMetrics

	mu  sync.Mutex
	f   *os.File
	enc *json.Encoder

	closeOnce sync.Once
	closeErr  error
}

func newRecorder(cfg *config.RecorderConfig, runID string, rm *metrics.RolloutMetrics) (*recorder, error) {
	if cfg == nil || cfg.Disabled {
		return nil, nil
	}
	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return &recorder{
		runID: runID,
		slots: cfg.WriteWorkers,
		sem:   semaphore.NewWeighted(cfg.WriteWorkers),
		rm:    rm,
		f:     f,
		enc:   json.NewEncoder(f),
	}, nil
}

// Record hands the episode to a bounded background write.
func (r *recorder) Record(ctx context.Context, rec *EpisodeRecord) {
	if r == nil {
		return
	}
	rec.RunID = r.runID
	if err := r.sem.Acquire(ctx, 1); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		log.Errorf("failed to acquire semaphore: %v", err)
		return
	}
	go r.write(rec)
}

func (r *recorder) write(rec *EpisodeRecord) {
	defer r.sem.Release(1)
	r.mu.Lock()
	err := r.enc.Encode(rec)
	r.mu.Unlock()
	if err != nil {
		log.Errorf("episode record write failed: %v", err)
	}
	r.rm.RecorderWrite(err)
}

// Close waits for in-flight writes, bounded, then closes the sink.
func (r *recorder) Close() error {
	if r == nil {
		return nil
	}
	r.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), recorderFlushTimeout)
		defer cancel()
		if err := r.sem.Acquire(ctx, r.slots); err != nil {
			log.Warnf("recorder close: still flushing: %v", err)
		}
		r.closeErr = r.f.Close()
	})
	return r.closeErr
}
