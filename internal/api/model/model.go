package model

import (
	"encoding/json"
	"time"
)

// Analysis is the status/result row for one (user, fingerprint) job.
type Analysis struct {
	UserID       string          `db:"user_id"`
	Fingerprint  string          `db:"fingerprint"`
	ObjectKey    string          `db:"object_key"`
	Name         string          `db:"name"`
	Status       string          `db:"status"`
	Result       json.RawMessage `db:"result"`
	ErrorMessage string          `db:"error_message"`
	CreatedAt    time.Time       `db:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"`
}

// WorkerConfig is the single-row operator/worker runtime configuration.
type WorkerConfig struct {
	ID                  int       `db:"id"`
	FailureRate         float64   `db:"failure_rate"`
	InducedDelaySeconds int       `db:"induced_delay_seconds"`
	CircuitOpen         bool      `db:"circuit_open"`
	Paused              bool      `db:"paused"`
	UpdatedAt           time.Time `db:"updated_at"`
}
