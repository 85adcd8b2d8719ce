package config_test

import (
	"testing"
	"time"

	"github.com/mtconnect/agent/config"
)

func TestDefaultValidates(t *testing.T) {
	if err := config.Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v, want nil", err)
	}
}

func TestValidateRejectsBadFields(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*config.Config)
	}{
		{"zero bufferSizeExp", func(c *config.Config) { c.BufferSizeExp = 0 }},
		{"bufferSizeExp too large", func(c *config.Config) { c.BufferSizeExp = 33 }},
		{"zero checkpointFrequency", func(c *config.Config) { c.CheckpointFrequency = 0 }},
		{"negative maxAssets", func(c *config.Config) { c.MaxAssets = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mut(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("Validate() = nil, want an error for %s", tc.name)
			}
		})
	}
}

func TestOwnerGetReflectsLatestCommit(t *testing.T) {
	owner := config.NewOwner(config.Default())

	upd := owner.BeginUpdate()
	upd.MaxAssets = 42
	owner.CommitUpdate(upd)

	if got := owner.Get().MaxAssets; got != 42 {
		t.Errorf("Get().MaxAssets = %d, want 42", got)
	}
}

func TestOwnerDiscardUpdateLeavesCurrentUnchanged(t *testing.T) {
	owner := config.NewOwner(config.Default())
	before := owner.Get()

	upd := owner.BeginUpdate()
	upd.MaxAssets = 999
	owner.DiscardUpdate()

	if got := owner.Get(); got != before {
		t.Errorf("Get() changed identity after DiscardUpdate")
	}
	if got := owner.Get().MaxAssets; got == 999 {
		t.Errorf("Get().MaxAssets = %d, DiscardUpdate should not have published it", got)
	}
}

func TestOwnerCloneIsIndependentOfCurrent(t *testing.T) {
	owner := config.NewOwner(config.Default())
	clone := owner.Clone()
	clone.ReconnectInterval = time.Hour

	if got := owner.Get().ReconnectInterval; got == time.Hour {
		t.Errorf("mutating Clone() leaked into Get()")
	}
}
