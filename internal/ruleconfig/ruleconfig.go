// Package ruleconfig stores detection tuning values as key/value entries.
//
// The engine loads the enabled entries fresh at the start of every
// invocation, so an admin change takes effect on the next analyzed log
// entry without a restart.
package ruleconfig

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a config entry does not exist.
var ErrNotFound = errors.New("ruleconfig: entry not found")

// Well-known configuration keys.
const (
	KeyVelocityMaxActionsPerMinute = "velocity_max_actions_per_minute"
	KeyClockDriftToleranceSeconds  = "clock_drift_tolerance_seconds"
	KeyAutoFlagThreshold           = "auto_flag_threshold"
	KeyAutoFlagEnabled             = "auto_flag_enabled"
)

// Entry is one stored configuration value. Values are bools, ints or
// floats; disabled entries are kept but excluded from ListEnabled.
type Entry struct {
	Key       string    `json:"key"`
	Value     any       `json:"value"`
	Enabled   bool      `json:"enabled"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store persists rule configuration.
type Store interface {
	// ListEnabled returns the enabled entries as a key -> value map.
	ListEnabled(ctx context.Context) (map[string]any, error)
	List(ctx context.Context) ([]*Entry, error)
	Upsert(ctx context.Context, entry *Entry) error
	Delete(ctx context.Context, key string) error
}

// Defaults returns the baked-in tuning values. They are seeded into fresh
// stores and also act as the fallback when a key is missing at runtime.
func Defaults() map[string]any {
	return map[string]any{
		KeyVelocityMaxActionsPerMinute: 30,
		KeyClockDriftToleranceSeconds:  30,
		KeyAutoFlagThreshold:           150,
		KeyAutoFlagEnabled:             true,
	}
}

// Seed writes any missing default entries into the store.
func Seed(ctx context.Context, s Store) error {
	existing, err := s.ListEnabled(ctx)
	if err != nil {
		return err
	}
	for key, value := range Defaults() {
		if _, ok := existing[key]; ok {
			continue
		}
		if err := s.Upsert(ctx, &Entry{Key: key, Value: value, Enabled: true}); err != nil {
			return err
		}
	}
	return nil
}
