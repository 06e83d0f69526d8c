package domain

// Analysis job status constants. Transitions are monotonic forward except
// processing -> queued (redelivery) and queued/processing -> failed after
// retry exhaustion. completed, degraded, and failed are terminal.
const (
	StatusUnprocessed = "unprocessed"
	StatusQueued      = "queued"
	StatusProcessing  = "processing"
	StatusCompleted   = "completed"
	StatusFailed      = "failed"
	StatusDegraded    = "degraded"
)

// IsTerminal reports whether a status admits no further transitions.
func IsTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusDegraded:
		return true
	}
	return false
}

// HasResult reports whether a status carries an immutable result document.
// Only these statuses may be surfaced to a polling client as done.
func HasResult(status string) bool {
	return status == StatusCompleted || status == StatusDegraded
}
