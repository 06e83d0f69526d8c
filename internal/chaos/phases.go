package chaos

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// faultsOff is the baseline config every fault phase steps back to.
var faultsOff = WorkerConfig{}

// runBaseline measures the healthy round trip: admit, upload, poll to a
// result, then verify a second admission of the same content is answered
// from the cache.
func (h *Harness) runBaseline(ctx context.Context) (map[string]any, error) {
	if err := h.Apply(ctx, faultsOff); err != nil {
		return nil, err
	}

	artifact := newArtifact()

	admission, err := h.api.Admit(ctx, h.opts.OwnerID, artifact.name, artifact.contentType, artifact.size, artifact.lastModified)
	if err != nil {
		return nil, err
	}
	if admission.Cached {
		return nil, fmt.Errorf("fresh artifact %q was admitted as cached", artifact.name)
	}
	if admission.Upload == nil {
		return nil, fmt.Errorf("admission returned no upload target")
	}

	start := time.Now()
	if err := h.api.Upload(ctx, admission.Upload, artifact.body); err != nil {
		return nil, err
	}

	status, err := h.pollForResult(ctx, admission.Fingerprint)
	if err != nil {
		return nil, err
	}
	roundTrip := time.Since(start)

	// Same triple, second admission: must short-circuit without a new
	// capability or job.
	again, err := h.api.Admit(ctx, h.opts.OwnerID, artifact.name, artifact.contentType, artifact.size, artifact.lastModified)
	if err != nil {
		return nil, err
	}
	if !again.Cached {
		return nil, fmt.Errorf("second admission of %q was not cached", artifact.name)
	}
	if again.Fingerprint != admission.Fingerprint {
		return nil, fmt.Errorf("fingerprint drifted between admissions: %s vs %s", admission.Fingerprint, again.Fingerprint)
	}

	return map[string]any{
		"fingerprint":     admission.Fingerprint,
		"result_status":   status,
		"round_trip_ms":   roundTrip.Milliseconds(),
		"cached_on_retry": again.Cached,
	}, nil
}

// runDeadLetterOnFailure measures time-to-dead-letter with every attempt
// failing. Rate 1.0 keeps the phase deterministic: exactly the delivery
// limit of attempts, then the dead-letter queue.
func (h *Harness) runDeadLetterOnFailure(ctx context.Context) (map[string]any, error) {
	if err := h.Apply(ctx, WorkerConfig{FailureRate: 1.0}); err != nil {
		return nil, err
	}
	defer h.Apply(ctx, faultsOff)

	return h.submitAndAwaitDeadLetter(ctx)
}

// runDeadLetterOnTimeout measures time-to-dead-letter when every attempt
// outlives the analysis deadline instead of failing outright.
func (h *Harness) runDeadLetterOnTimeout(ctx context.Context) (map[string]any, error) {
	delaySeconds := int(h.opts.InducedDelay.Seconds())
	if delaySeconds <= 0 {
		return nil, fmt.Errorf("induced delay not configured")
	}

	if err := h.Apply(ctx, WorkerConfig{InducedDelaySeconds: delaySeconds}); err != nil {
		return nil, err
	}
	defer h.Apply(ctx, faultsOff)

	details, err := h.submitAndAwaitDeadLetter(ctx)
	if err != nil {
		return nil, err
	}
	details["induced_delay_seconds"] = delaySeconds
	return details, nil
}

// runRecovery verifies the pipeline heals once faults are lifted: with the
// snapshot restored, a fresh submission completes end to end.
func (h *Harness) runRecovery(ctx context.Context) (map[string]any, error) {
	if err := h.Apply(ctx, faultsOff); err != nil {
		return nil, err
	}

	artifact := newArtifact()

	admission, err := h.api.Admit(ctx, h.opts.OwnerID, artifact.name, artifact.contentType, artifact.size, artifact.lastModified)
	if err != nil {
		return nil, err
	}
	if admission.Upload == nil {
		return nil, fmt.Errorf("admission returned no upload target")
	}

	start := time.Now()
	if err := h.api.Upload(ctx, admission.Upload, artifact.body); err != nil {
		return nil, err
	}

	status, err := h.pollForResult(ctx, admission.Fingerprint)
	if err != nil {
		return nil, fmt.Errorf("pipeline did not recover: %w", err)
	}

	return map[string]any{
		"fingerprint":              admission.Fingerprint,
		"result_status":            status,
		"time_to_first_success_ms": time.Since(start).Milliseconds(),
	}, nil
}

// submitAndAwaitDeadLetter submits a fresh artifact and waits for the
// dead-letter queue to grow, returning the measured time to dead-letter.
func (h *Harness) submitAndAwaitDeadLetter(ctx context.Context) (map[string]any, error) {
	before, err := h.api.DeadLetterCount(ctx)
	if err != nil {
		return nil, err
	}

	artifact := newArtifact()

	admission, err := h.api.Admit(ctx, h.opts.OwnerID, artifact.name, artifact.contentType, artifact.size, artifact.lastModified)
	if err != nil {
		return nil, err
	}
	if admission.Upload == nil {
		return nil, fmt.Errorf("admission returned no upload target")
	}

	start := time.Now()
	if err := h.api.Upload(ctx, admission.Upload, artifact.body); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(h.opts.DLQPollTimeout)
	for {
		count, err := h.api.DeadLetterCount(ctx)
		if err != nil {
			return nil, err
		}
		if count > before {
			timeToDeadLetter := time.Since(start)

			// The job must not have produced a result on the side.
			status, err := h.api.GetStatus(ctx, h.opts.OwnerID, admission.Fingerprint)
			if err != nil {
				return nil, err
			}
			if status.Data != nil {
				return nil, fmt.Errorf("dead-lettered job unexpectedly holds a result (status %s)", status.Status)
			}

			return map[string]any{
				"fingerprint":            admission.Fingerprint,
				"time_to_dead_letter_ms": timeToDeadLetter.Milliseconds(),
				"dead_letters":           count - before,
			}, nil
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("message did not dead-letter within %s", h.opts.DLQPollTimeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(h.opts.DLQPollInterval):
		}
	}
}

// pollForResult polls the status endpoint until the job resolves to a
// result or the poll window closes.
func (h *Harness) pollForResult(ctx context.Context, fp string) (string, error) {
	deadline := time.Now().Add(h.opts.ResultPollTimeout)
	for {
		status, err := h.api.GetStatus(ctx, h.opts.OwnerID, fp)
		if err != nil {
			return "", err
		}
		if status.Data != nil {
			return status.Status, nil
		}

		if time.Now().After(deadline) {
			return "", fmt.Errorf("no result within %s (last status %q)", h.opts.ResultPollTimeout, status.Status)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(h.opts.ResultPollInterval):
		}
	}
}

type artifact struct {
	name         string
	contentType  string
	body         []byte
	size         int64
	lastModified int64
}

// newArtifact builds a unique synthetic video artifact. Uniqueness of the
// (name, size, lastModified) triple guarantees a fresh fingerprint per
// experiment.
func newArtifact() artifact {
	id := uuid.New().String()
	body := []byte("synthetic video payload " + id)
	return artifact{
		name:         fmt.Sprintf("chaos-%s.mp4", id[:8]),
		contentType:  "video/mp4",
		body:         body,
		size:         int64(len(body)),
		lastModified: time.Now().Unix(),
	}
}
