package domain

import "time"

// JobMessage is the queue message published by the ingest trigger when an
// artifact lands in the object store. Delivery counting is broker state; the
// application never persists its own attempt counter.
type JobMessage struct {
	OwnerID     string    `json:"owner_id"`
	Fingerprint string    `json:"fingerprint"`
	Key         string    `json:"key"`
	Name        string    `json:"name"`
	EnqueuedAt  time.Time `json:"enqueued_at"`

	DeliveryTag uint64 `json:"-"`
	Redelivered bool   `json:"-"`
}

// ChaosConfig is the operator-set fault-injection state read by the worker
// before each message. The zero value means all faults disabled, circuit
// closed, consumption enabled.
type ChaosConfig struct {
	FailureRate  float64       // probability in [0,1] of a forced transient failure
	InducedDelay time.Duration // sleep before the analysis call
	CircuitOpen  bool          // skip the analysis call, write a degraded result
	Paused       bool          // queue-to-worker binding disabled
}
