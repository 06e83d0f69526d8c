package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/videopipe/video-analyzer/internal/analysis"
	"github.com/videopipe/video-analyzer/internal/worker/domain"
)

// processJob drives one job attempt through the state machine. A nil
// return means the attempt reached writing_result (or the idempotency
// short-circuit) and the caller may acknowledge; a RetryableError means
// the message should become visible again for redelivery.
func (w *Worker) processJob(ctx context.Context, msg *domain.JobMessage) error {
	// Idempotency check first. At-least-once delivery plus a long-running
	// analysis call means duplicates must be cheap to detect: if a result
	// already exists (a previous attempt wrote but failed to ack, or a
	// duplicate delivery raced us), skip straight to acknowledgment.
	status, hasResult, err := w.store.GetStatus(ctx, msg.OwnerID, msg.Fingerprint)
	if err != nil && !errors.Is(err, domain.ErrAnalysisNotFound) {
		return domain.NewRetryableError(fmt.Errorf("idempotency check failed: %w", err))
	}
	if hasResult {
		w.logger.Info("Result already exists, skipping analysis",
			slog.String("fingerprint", msg.Fingerprint),
			slog.String("status", status),
		)
		return nil
	}

	// Fault injection and the circuit flag are operator state, read fresh
	// for every message. A read failure means no faults, never a stuck job.
	chaos, err := w.store.GetChaosConfig(ctx)
	if err != nil {
		w.logger.Warn("Failed to read chaos config, faults disabled",
			slog.Any("error", err),
		)
		chaos = domain.ChaosConfig{}
	}

	// One deadline covers the whole attempt from here on, induced delay
	// included, and it is strictly shorter than the queue visibility
	// window. A delay that outlives the budget fails the attempt the same
	// way a hung analysis call does, so both turn into a redelivery
	// instead of a late ack or two consumers racing on the same message.
	attemptCtx, cancel := context.WithTimeout(ctx, w.analysisTimeout)
	defer cancel()

	if chaos.InducedDelay > 0 {
		w.logger.Warn("Chaos: delaying before analysis",
			slog.Duration("delay", chaos.InducedDelay),
			slog.String("fingerprint", msg.Fingerprint),
		)
		select {
		case <-time.After(chaos.InducedDelay):
		case <-attemptCtx.Done():
			return domain.NewRetryableError(fmt.Errorf("induced delay exceeded the attempt budget: %w", attemptCtx.Err()))
		}
	}

	if w.rollInducedFailure(chaos.FailureRate) {
		if reqErr := w.store.MarkQueuedAgain(ctx, msg.OwnerID, msg.Fingerprint); reqErr != nil {
			w.logger.Warn("Failed to mark job queued after induced failure",
				slog.Any("error", reqErr),
			)
		}
		return domain.NewRetryableError(domain.ErrChaosInducedFailure)
	}

	if err := w.store.MarkProcessing(ctx, msg.OwnerID, msg.Fingerprint); err != nil {
		// Advisory only: the status row lagging behind does not affect
		// correctness, the result write is the authoritative transition.
		w.logger.Warn("Failed to mark job processing",
			slog.Any("error", err),
		)
	}

	// Circuit breaker: when the analysis dependency is known-unhealthy,
	// write a degraded result immediately instead of burning the full
	// timeout budget on every message.
	if chaos.CircuitOpen {
		w.logger.Warn("Analysis circuit open, writing degraded result",
			slog.String("fingerprint", msg.Fingerprint),
		)
		degraded := analysis.DegradedResult("The analysis service was marked unhealthy; this artifact was not analyzed. Resubmit after recovery or redrive the job.")
		if err := w.store.WriteResult(ctx, msg.OwnerID, msg.Fingerprint, msg.Key, msg.Name, domain.StatusDegraded, degraded); err != nil {
			return domain.NewRetryableError(fmt.Errorf("failed to write degraded result: %w", err))
		}
		return nil
	}

	// Best-effort side channel: upload context attached at admission time.
	var uploadContext string
	if meta, err := w.artifacts.Stat(msg.Key); err != nil {
		w.logger.Warn("Failed to read artifact metadata",
			slog.String("key", msg.Key),
			slog.Any("error", err),
		)
	} else {
		uploadContext = meta.Context
	}

	w.logger.Info("Analyzing artifact",
		slog.String("key", msg.Key),
		slog.String("fingerprint", msg.Fingerprint),
	)

	result, err := w.analyzer.Analyze(attemptCtx, analysis.Request{
		ObjectKey: msg.Key,
		Name:      msg.Name,
		Context:   uploadContext,
	})
	if err != nil {
		if reqErr := w.store.MarkQueuedAgain(ctx, msg.OwnerID, msg.Fingerprint); reqErr != nil {
			w.logger.Warn("Failed to mark job queued after analysis failure",
				slog.Any("error", reqErr),
			)
		}
		return domain.NewRetryableError(fmt.Errorf("analysis failed: %w", err))
	}

	// Persist before acknowledging. If the process dies between the write
	// and the ack, the redelivery hits the idempotency check above.
	if err := w.store.WriteResult(ctx, msg.OwnerID, msg.Fingerprint, msg.Key, msg.Name, domain.StatusCompleted, result); err != nil {
		return domain.NewRetryableError(fmt.Errorf("failed to write result: %w", err))
	}

	return nil
}
