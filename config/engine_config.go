package config

import (
	"context"
	"errors"
	"time"
)

// ErrRingLengthTooSmall mirrors cmdbuffer.ErrRingLengthTooSmall so an
// invalid EngineConfig is rejected before it ever reaches the manager.
var ErrRingLengthTooSmall = errors.New("config: ring_length must be at least 2")

// EngineConfig holds the tunables shared by the thread host, async queue,
// and command-buffer manager. Fields carry toml/yaml tags for file
// sources and env tags for the env source, with defaults applied by
// Loader.Load when a field is left zero.
type EngineConfig struct {
	RingLength         int           `toml:"ring_length" yaml:"ring_length" env:"KERNEL_RING_LENGTH" default:"3"`
	QueueHighWaterMark int           `toml:"queue_high_water_mark" yaml:"queue_high_water_mark" env:"KERNEL_QUEUE_HIGH_WATER_MARK" default:"1024"`
	FenceWaitTimeout   time.Duration `toml:"fence_wait_timeout" yaml:"fence_wait_timeout" env:"KERNEL_FENCE_WAIT_TIMEOUT" default:"5s"`
	TaskJoinTimeout    time.Duration `toml:"task_join_timeout" yaml:"task_join_timeout" env:"KERNEL_TASK_JOIN_TIMEOUT" default:"60s"`
	UpdateTickInterval time.Duration `toml:"update_tick_interval" yaml:"update_tick_interval" env:"KERNEL_UPDATE_TICK_INTERVAL" default:"16ms"`
}

// LoadEngineConfig loads an EngineConfig through loader (applying every
// configured source in priority order, then defaults for fields still
// unset) and validates it.
func LoadEngineConfig(ctx context.Context, loader *Loader) (*EngineConfig, error) {
	cfg := &EngineConfig{}
	if err := loader.Load(ctx, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces the structural invariants EngineConfig must hold
// before it can configure a live ring (cmdbuffer.ErrRingLengthTooSmall's
// constraint, checked here so a bad config file fails fast at load time
// rather than inside NewManager).
func (c *EngineConfig) Validate() error {
	if c.RingLength < 2 {
		return ErrRingLengthTooSmall
	}
	return nil
}
