// Package idgen produces message ids. Every generator returns ids whose
// lexicographic order matches creation order within one process, which is
// what the store relies on to break timestamp ties.
package idgen

import (
	"fmt"
	"time"
)

// Generator creates unique ids.
type Generator interface {
	Generate() (string, error)
	// GenerateAt embeds t instead of the current time. A t older than an
	// earlier call is treated as that earlier time, so ids keep increasing.
	GenerateAt(t time.Time) (string, error)
}

// Supported generator types.
const (
	TypeULID      = "ulid"
	TypeSnowflake = "snowflake"
)

// Config selects and parameterises a generator.
type Config struct {
	Type      string `mapstructure:"type"`
	MachineID int64  `mapstructure:"machine_id"`
	Epoch     int64  `mapstructure:"epoch"` // unix ms, snowflake only
}

// New builds the generator named by cfg.Type.
func New(cfg Config) (Generator, error) {
	switch cfg.Type {
	case "", TypeULID:
		return NewULIDGenerator(), nil
	case TypeSnowflake:
		return NewSnowflakeGenerator(cfg.MachineID, cfg.Epoch)
	default:
		return nil, fmt.Errorf("unsupported id generator type: %s", cfg.Type)
	}
}
