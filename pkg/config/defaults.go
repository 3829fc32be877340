package config

import "time"

const (
	defaultResetTimeout = 60 * time.Second
	defaultStepTimeout  = 60 * time.Second
	defaultSeedTimeout  = 30 * time.Second
	defaultCloseTimeout = 5 * time.Second

	defaultBatches      = 3
	defaultBatchSize    = 1024
	defaultSaveInterval = 2

	defaultRecorderPath = "./episodes.jsonl"
	defaultWriteWorkers = 16
)
