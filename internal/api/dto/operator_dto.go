package dto

import "encoding/json"

// WorkerConfigDTO mirrors the single worker_config row. The harness reads
// it as a snapshot before mutating and writes it back verbatim to restore.
type WorkerConfigDTO struct {
	FailureRate         float64 `json:"failure_rate"`
	InducedDelaySeconds int     `json:"induced_delay_seconds"`
	CircuitOpen         bool    `json:"circuit_open"`
	Paused              bool    `json:"paused"`
	UpdatedAt           string  `json:"updated_at,omitempty"`
}

type SetCircuitRequest struct {
	Open bool `json:"open"`
}

type DeadLettersResponse struct {
	Count    int               `json:"count"`
	Messages []json.RawMessage `json:"messages"`
}

type RedriveResponse struct {
	Redriven int `json:"redriven"`
}

type DrainResponse struct {
	Drained int `json:"drained"`
}
