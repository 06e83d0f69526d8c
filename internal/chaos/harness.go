package chaos

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// API is the api-service surface the experiments run against. Satisfied by
// APIClient.
type API interface {
	GetWorkerConfig(ctx context.Context) (WorkerConfig, error)
	UpdateWorkerConfig(ctx context.Context, cfg WorkerConfig) error
	Admit(ctx context.Context, ownerID, filename, contentType string, size, lastModified int64) (AdmissionResponse, error)
	Upload(ctx context.Context, target *UploadTarget, body []byte) error
	GetStatus(ctx context.Context, ownerID, fp string) (StatusResponse, error)
	DeadLetterCount(ctx context.Context) (int, error)
	DrainDeadLetters(ctx context.Context) (int, error)
	RedriveDeadLetters(ctx context.Context) (int, error)
}

// Options configures one harness run.
type Options struct {
	OwnerID            string
	ResultPollTimeout  time.Duration
	ResultPollInterval time.Duration
	DLQPollTimeout     time.Duration
	DLQPollInterval    time.Duration
	// InducedDelay is the per-message delay injected during the timeout
	// experiment. It must exceed the deployment's analysis timeout for the
	// experiment to mean anything.
	InducedDelay time.Duration
}

// Harness owns the fault-injection lifecycle: snapshot the live worker
// config before touching anything, apply faults per phase, and restore the
// snapshot on every exit path.
type Harness struct {
	logger *slog.Logger
	api    API
	opts   Options

	mu       sync.Mutex
	snapshot *WorkerConfig
	restored bool
}

// NewHarness creates a harness bound to one deployment.
func NewHarness(api API, opts Options, logger *slog.Logger) *Harness {
	return &Harness{
		logger: logger,
		api:    api,
		opts:   opts,
	}
}

// Snapshot captures the pre-test worker config. Must succeed before any
// fault is applied; without it there is nothing safe to restore to.
func (h *Harness) Snapshot(ctx context.Context) error {
	cfg, err := h.api.GetWorkerConfig(ctx)
	if err != nil {
		return fmt.Errorf("failed to snapshot worker config: %w", err)
	}

	h.mu.Lock()
	h.snapshot = &cfg
	h.restored = false
	h.mu.Unlock()

	h.logger.Info("Worker config snapshot taken",
		slog.Float64("failure_rate", cfg.FailureRate),
		slog.Int("induced_delay_seconds", cfg.InducedDelaySeconds),
		slog.Bool("circuit_open", cfg.CircuitOpen),
		slog.Bool("paused", cfg.Paused),
	)
	return nil
}

// Apply overwrites the worker config with a fault configuration.
func (h *Harness) Apply(ctx context.Context, cfg WorkerConfig) error {
	h.mu.Lock()
	haveSnapshot := h.snapshot != nil
	h.mu.Unlock()
	if !haveSnapshot {
		return fmt.Errorf("refusing to apply faults without a snapshot")
	}

	if err := h.api.UpdateWorkerConfig(ctx, cfg); err != nil {
		return fmt.Errorf("failed to apply fault config: %w", err)
	}

	h.logger.Info("Fault config applied",
		slog.Float64("failure_rate", cfg.FailureRate),
		slog.Int("induced_delay_seconds", cfg.InducedDelaySeconds),
		slog.Bool("circuit_open", cfg.CircuitOpen),
		slog.Bool("paused", cfg.Paused),
	)
	return nil
}

// Restore writes the snapshot back. Idempotent, and deliberately not bound
// to the run context: it must still succeed after the run is canceled, so
// it uses its own deadline.
func (h *Harness) Restore() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.snapshot == nil || h.restored {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := h.api.UpdateWorkerConfig(ctx, *h.snapshot); err != nil {
		return fmt.Errorf("failed to restore worker config: %w", err)
	}

	h.restored = true
	h.logger.Info("Worker config restored from snapshot")
	return nil
}

// Run executes the full experiment sequence and always restores the
// snapshot before returning, even when a phase fails or ctx is canceled.
func (h *Harness) Run(ctx context.Context) (*Report, error) {
	report := NewReport()

	if err := h.Snapshot(ctx); err != nil {
		return report, err
	}
	defer func() {
		if err := h.Restore(); err != nil {
			h.logger.Error("Restore failed, worker config may still hold faults",
				slog.Any("error", err),
			)
		}
	}()

	// A dirty dead-letter queue would make the timing phases unreadable.
	if drained, err := h.api.DrainDeadLetters(ctx); err != nil {
		h.logger.Warn("Failed to drain dead letters before run", slog.Any("error", err))
	} else if drained > 0 {
		h.logger.Info("Drained stale dead letters", slog.Int("count", drained))
	}

	phases := []struct {
		name string
		run  func(context.Context) (map[string]any, error)
	}{
		{"baseline", h.runBaseline},
		{"dead_letter_on_failure", h.runDeadLetterOnFailure},
		{"dead_letter_on_timeout", h.runDeadLetterOnTimeout},
		{"recovery", h.runRecovery},
	}

	for _, phase := range phases {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		h.logger.Info("Phase starting", slog.String("phase", phase.name))
		start := time.Now()
		details, err := phase.run(ctx)
		report.Add(phase.name, time.Since(start), details, err)

		if err != nil {
			h.logger.Error("Phase failed",
				slog.String("phase", phase.name),
				slog.Any("error", err),
			)
			continue
		}
		h.logger.Info("Phase passed",
			slog.String("phase", phase.name),
			slog.Duration("duration", time.Since(start)),
		)
	}

	// Leave nothing behind for the next run.
	if _, err := h.api.DrainDeadLetters(ctx); err != nil {
		h.logger.Warn("Failed to drain dead letters after run", slog.Any("error", err))
	}

	report.Finish()
	return report, nil
}
