package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/videopipe/video-analyzer/internal/api/model"
	"github.com/videopipe/video-analyzer/internal/worker/domain"
	"github.com/videopipe/video-analyzer/shared/postgresql"
)

// ErrNotFound is returned when no analysis row exists for the identity.
var ErrNotFound = errors.New("analysis not found")

// Storage handles the api-service's database operations: the admission
// cache lookup, the status read path, and the operator config surface.
type Storage struct {
	db *sqlx.DB
}

func NewStorage(pg *postgresql.Client) *Storage {
	return &Storage{
		db: pg.GetDB(),
	}
}

// GetAnalysis returns the row for one (user, fingerprint) identity.
func (s *Storage) GetAnalysis(ctx context.Context, userID, fp string) (*model.Analysis, error) {
	var a model.Analysis
	query := `
		SELECT user_id, fingerprint, object_key, name, status, result, error_message, created_at, updated_at
		FROM analyses
		WHERE user_id = $1 AND fingerprint = $2
	`

	err := s.db.GetContext(ctx, &a, query, userID, fp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}

	return &a, nil
}

// GetCompleted returns the row only if it holds a completed result. Used
// by the admission cache check: a hit here means no new capability is
// issued and no new job is created. A degraded row is deliberately not a
// hit, so resubmitting the same artifact after the analysis dependency
// recovers gets a fresh job instead of the stale degraded document.
func (s *Storage) GetCompleted(ctx context.Context, userID, fp string) (*model.Analysis, error) {
	var a model.Analysis
	query := `
		SELECT user_id, fingerprint, object_key, name, status, result, error_message, created_at, updated_at
		FROM analyses
		WHERE user_id = $1 AND fingerprint = $2 AND status = $3
	`

	err := s.db.GetContext(ctx, &a, query, userID, fp, domain.StatusCompleted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get completed analysis: %w", err)
	}

	return &a, nil
}

// ListAnalyses returns every analysis row for an owner, newest first.
func (s *Storage) ListAnalyses(ctx context.Context, userID string) ([]model.Analysis, error) {
	var analyses []model.Analysis
	query := `
		SELECT user_id, fingerprint, object_key, name, status, result, error_message, created_at, updated_at
		FROM analyses
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	err := s.db.SelectContext(ctx, &analyses, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}

	return analyses, nil
}

// MarkQueued records that an artifact landed and its job message was
// enqueued. Completed and failed rows are left untouched so a duplicate
// upload of an already-analyzed artifact never reopens the job. A degraded
// row is the exception: the degraded document is a circuit-breaker stopgap,
// so a re-upload reopens the row and clears it, letting the worker produce
// a real result once the dependency is healthy again.
func (s *Storage) MarkQueued(ctx context.Context, userID, fp, objectKey, name string) error {
	query := `
		INSERT INTO analyses (user_id, fingerprint, object_key, name, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (user_id, fingerprint) DO UPDATE
		SET status = $5, object_key = $3, name = $4, result = NULL, error_message = '', updated_at = NOW()
		WHERE analyses.status NOT IN ($6, $7)
	`

	_, err := s.db.ExecContext(ctx, query,
		userID, fp, objectKey, name,
		domain.StatusQueued,
		domain.StatusCompleted, domain.StatusFailed,
	)
	if err != nil {
		return fmt.Errorf("failed to mark analysis queued: %w", err)
	}

	return nil
}

// MarkFailed terminalizes a job. Only an operator (after inspecting the
// dead-letter queue) calls this; the worker itself never writes failed.
func (s *Storage) MarkFailed(ctx context.Context, userID, fp, reason string) error {
	query := `
		UPDATE analyses
		SET status = $3, error_message = $4, updated_at = NOW()
		WHERE user_id = $1 AND fingerprint = $2 AND status NOT IN ($5, $6)
	`

	_, err := s.db.ExecContext(ctx, query,
		userID, fp, domain.StatusFailed, reason,
		domain.StatusCompleted, domain.StatusDegraded,
	)
	if err != nil {
		return fmt.Errorf("failed to mark analysis failed: %w", err)
	}

	return nil
}

// GetWorkerConfig reads the single operator/worker runtime configuration row.
func (s *Storage) GetWorkerConfig(ctx context.Context) (*model.WorkerConfig, error) {
	var cfg model.WorkerConfig
	query := `
		SELECT id, failure_rate, induced_delay_seconds, circuit_open, paused, updated_at
		FROM worker_config
		WHERE id = 1
	`

	if err := s.db.GetContext(ctx, &cfg, query); err != nil {
		return nil, fmt.Errorf("failed to get worker config: %w", err)
	}

	return &cfg, nil
}

// UpdateWorkerConfig replaces the operator/worker runtime configuration.
func (s *Storage) UpdateWorkerConfig(ctx context.Context, cfg *model.WorkerConfig) error {
	query := `
		UPDATE worker_config
		SET failure_rate = $1,
		    induced_delay_seconds = $2,
		    circuit_open = $3,
		    paused = $4,
		    updated_at = NOW()
		WHERE id = 1
	`

	_, err := s.db.ExecContext(ctx, query,
		cfg.FailureRate, cfg.InducedDelaySeconds, cfg.CircuitOpen, cfg.Paused,
	)
	if err != nil {
		return fmt.Errorf("failed to update worker config: %w", err)
	}

	return nil
}
