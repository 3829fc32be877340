package config

import (
	"fmt"
	"os"
	"time"

	"github.com/AlekSi/pointer"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Pool       *PoolConfig     `yaml:"pool,omitempty" json:"pool,omitempty"`
	Actors     []*ActorConfig  `yaml:"actors,omitempty" json:"actors,omitempty"`
	Rollout    *RolloutConfig  `yaml:"rollout,omitempty" json:"rollout,omitempty"`
	Recorder   *RecorderConfig `yaml:"recorder,omitempty" json:"recorder,omitempty"`
	Prometheus *PromConfig     `yaml:"prometheus,omitempty" json:"prometheus,omitempty"`
}

func New(file string) (*Config, error) {
	c := new(Config)
	if file != "" {
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}

		err = yaml.Unmarshal(b, c)
		if err != nil {
			return nil, err
		}
	}
	err := c.validateSetDefaults()
	return c, err
}

func (c *Config) validateSetDefaults() error {
	if c.Pool == nil {
		c.Pool = &PoolConfig{}
	}
	if err := c.Pool.validateSetDefaults(); err != nil {
		return err
	}
	names := make(map[string]struct{}, len(c.Actors))
	for _, a := range c.Actors {
		if err := a.validateSetDefaults(); err != nil {
			return err
		}
		if _, ok := names[a.Name]; ok {
			return fmt.Errorf("duplicate actor name %q", a.Name)
		}
		names[a.Name] = struct{}{}
	}
	if c.Rollout == nil {
		c.Rollout = &RolloutConfig{}
	}
	if err := c.Rollout.validateSetDefaults(); err != nil {
		return err
	}
	if c.Recorder == nil {
		c.Recorder = &RecorderConfig{}
	}
	return c.Recorder.validateSetDefaults()
}

// PoolConfig tunes the worker pool's batch deadlines and episode handling.
type PoolConfig struct {
	RunName      string        `yaml:"run-name,omitempty" json:"run-name,omitempty"`
	AutoReset    *bool         `yaml:"auto-reset,omitempty" json:"auto-reset,omitempty"`
	ResetTimeout time.Duration `yaml:"reset-timeout,omitempty" json:"reset-timeout,omitempty"`
	StepTimeout  time.Duration `yaml:"step-timeout,omitempty" json:"step-timeout,omitempty"`
	SeedTimeout  time.Duration `yaml:"seed-timeout,omitempty" json:"seed-timeout,omitempty"`
	CloseTimeout time.Duration `yaml:"close-timeout,omitempty" json:"close-timeout,omitempty"`
}

func (p *PoolConfig) validateSetDefaults() error {
	if p.AutoReset == nil {
		p.AutoReset = pointer.ToBool(true)
	}
	if p.ResetTimeout <= 0 {
		p.ResetTimeout = defaultResetTimeout
	}
	if p.StepTimeout <= 0 {
		p.StepTimeout = defaultStepTimeout
	}
	if p.SeedTimeout <= 0 {
		p.SeedTimeout = defaultSeedTimeout
	}
	if p.CloseTimeout <= 0 {
		p.CloseTimeout = defaultCloseTimeout
	}
	return nil
}

// ActorConfig declares one pooled actor. Params are passed through to the
// actor constructor uninterpreted.
type ActorConfig struct {
	Name   string         `yaml:"name,omitempty" json:"name,omitempty"`
	Type   string         `yaml:"type,omitempty" json:"type,omitempty"`
	Params map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
}

func (a *ActorConfig) validateSetDefaults() error {
	if a == nil {
		return fmt.Errorf("empty actor definition")
	}
	if a.Name == "" {
		return fmt.Errorf("actor with type %q has no name", a.Type)
	}
	return nil
}

// RolloutConfig shapes the batch loop of the rollout driver.
type RolloutConfig struct {
	Batches      int   `yaml:"batches,omitempty" json:"batches,omitempty"`
	BatchSize    int   `yaml:"batch-size,omitempty" json:"batch-size,omitempty"`
	Seed         int64 `yaml:"seed,omitempty" json:"seed,omitempty"`
	SaveInterval int   `yaml:"save-interval,omitempty" json:"save-interval,omitempty"`
}

func (r *RolloutConfig) validateSetDefaults() error {
	if r.Batches <= 0 {
		r.Batches = defaultBatches
	}
	if r.BatchSize <= 0 {
		r.BatchSize = defaultBatchSize
	}
	if r.SaveInterval <= 0 {
		r.SaveInterval = defaultSaveInterval
	}
	return nil
}

// RecorderConfig controls the episode record sink.
type RecorderConfig struct {
	Path         string `yaml:"path,omitempty" json:"path,omitempty"`
	WriteWorkers int64  `yaml:"write-workers,omitempty" json:"write-workers,omitempty"`
	Disabled     bool   `yaml:"disabled,omitempty" json:"disabled,omitempty"`
}

func (r *RecorderConfig) validateSetDefaults() error {
	if r.Path == "" {
		r.Path = defaultRecorderPath
	}
	if r.WriteWorkers <= 0 {
		r.WriteWorkers = defaultWriteWorkers
	}
	return nil
}

type PromConfig struct {
	Address string `yaml:"address,omitempty" json:"address,omitempty"`
}
