// Package config holds the core's runtime options (spec §6) behind a
// Global Config Owner: readers always see a fully-formed *Config, never
// one half-applied by a concurrent update. Grounded on aistore's
// cmn.GCO (globalConfigOwner) pattern.
package config

import (
	"time"

	"go.uber.org/atomic"
)

// Config is the set of options the core recognizes, per spec §6.
type Config struct {
	// BufferSizeExp is k such that the circular buffer's capacity is 2^k.
	BufferSizeExp uint

	// CheckpointFrequency is the number of sequences between periodic
	// checkpoints.
	CheckpointFrequency int

	// MaxAssets is the asset store's capacity.
	MaxAssets int

	// FilterDuplicates enables the DuplicateFilter pipeline transform.
	FilterDuplicates bool

	// IgnoreTimestamps makes the pipeline substitute ingest time for
	// whatever timestamp the adapter sent.
	IgnoreTimestamps bool

	// UpcaseDataItemValue enables the UpcaseValue pipeline transform.
	UpcaseDataItemValue bool

	// ConversionRequired enables the ConvertValue pipeline transform.
	ConversionRequired bool

	// PreserveUUID stops the core from overwriting a device's uuid on
	// adapter reconnection.
	PreserveUUID bool

	// ReconnectInterval is passed through to adapters; the core doesn't
	// interpret it but carries it so control-plane code has one place to
	// read/update it.
	ReconnectInterval time.Duration

	// LegacyTimeout is the staleness window after which a data item not
	// refreshed is marked UNAVAILABLE.
	LegacyTimeout time.Duration
}

// Default returns the out-of-the-box configuration used by the demo
// binary and by tests that don't care about the specific values.
func Default() *Config {
	return &Config{
		BufferSizeExp:       17, // 131072 slots
		CheckpointFrequency: 1000,
		MaxAssets:           1024,
		FilterDuplicates:    true,
		IgnoreTimestamps:    false,
		UpcaseDataItemValue: false,
		ConversionRequired:  true,
		PreserveUUID:        false,
		ReconnectInterval:   10 * time.Second,
		LegacyTimeout:       60 * time.Second,
	}
}

// Validate reports whether the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.BufferSizeExp == 0 || c.BufferSizeExp > 32 {
		return errInvalid("bufferSizeExp must be in (0, 32]")
	}
	if c.CheckpointFrequency <= 0 {
		return errInvalid("checkpointFrequency must be positive")
	}
	if c.MaxAssets <= 0 {
		return errInvalid("maxAssets must be positive")
	}
	return nil
}

type validationError string

func (e validationError) Error() string { return string(e) }

func errInvalid(msg string) error { return validationError(msg) }

// Owner is the Global Config Owner: it holds the live *Config behind an
// atomic pointer and serializes updates with a mutex, so BeginUpdate /
// CommitUpdate brackets a transaction no other update can interleave
// with, while Get never blocks. Mirrors cmn.globalConfigOwner.
type Owner struct {
	cur  atomic.Value // holds *Config
	lock chan struct{}
}

// NewOwner creates an Owner seeded with initial.
func NewOwner(initial *Config) *Owner {
	o := &Owner{lock: make(chan struct{}, 1)}
	o.cur.Store(initial)
	return o
}

// Get returns the current configuration. Safe for concurrent use with
// BeginUpdate/CommitUpdate; never observes a torn update.
func (o *Owner) Get() *Config {
	return o.cur.Load().(*Config)
}

// Clone returns a shallow copy of the current configuration, suitable as
// a starting point for BeginUpdate.
func (o *Owner) Clone() *Config {
	c := *o.Get()
	return &c
}

// BeginUpdate locks the owner for a single in-flight update and returns a
// clone to mutate. Must be followed by CommitUpdate or DiscardUpdate.
func (o *Owner) BeginUpdate() *Config {
	o.lock <- struct{}{}
	return o.Clone()
}

// CommitUpdate publishes config as the new current configuration and
// releases the update lock.
func (o *Owner) CommitUpdate(config *Config) {
	o.cur.Store(config)
	<-o.lock
}

// DiscardUpdate releases the update lock without publishing any change.
func (o *Owner) DiscardUpdate() {
	<-o.lock
}
