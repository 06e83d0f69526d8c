package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/videopipe/video-analyzer/internal/analysis"
	"github.com/videopipe/video-analyzer/internal/worker/domain"
)

// Storage handles all database operations for the worker.
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// analysisRow is the subset of the analyses table the worker reads.
type analysisRow struct {
	Status string          `db:"status"`
	Result json.RawMessage `db:"result"`
}

// GetStatus returns the current status for a job identity and whether an
// immutable result already exists. This is the idempotency check: a
// completed row means a duplicate delivery must skip straight to ack.
func (s *Storage) GetStatus(ctx context.Context, ownerID, fp string) (string, bool, error) {
	query := `
		SELECT status, result
		FROM analyses
		WHERE user_id = $1 AND fingerprint = $2
	`

	var row analysisRow
	err := s.db.GetContext(ctx, &row, query, ownerID, fp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, domain.ErrAnalysisNotFound
		}
		return "", false, fmt.Errorf("failed to get analysis status: %w", err)
	}

	return row.Status, domain.HasResult(row.Status) && len(row.Result) > 0, nil
}

// MarkProcessing moves a job to processing for the duration of an attempt.
// Terminal rows are never touched.
func (s *Storage) MarkProcessing(ctx context.Context, ownerID, fp string) error {
	query := `
		UPDATE analyses
		SET status = $3, updated_at = NOW()
		WHERE user_id = $1 AND fingerprint = $2 AND status NOT IN ($4, $5, $6)
	`

	_, err := s.db.ExecContext(ctx, query, ownerID, fp,
		domain.StatusProcessing,
		domain.StatusCompleted, domain.StatusDegraded, domain.StatusFailed,
	)
	if err != nil {
		return fmt.Errorf("failed to mark analysis processing: %w", err)
	}

	return nil
}

// MarkQueuedAgain returns a job to queued after a transient failure, so the
// status store mirrors the message becoming visible again.
func (s *Storage) MarkQueuedAgain(ctx context.Context, ownerID, fp string) error {
	query := `
		UPDATE analyses
		SET status = $3, updated_at = NOW()
		WHERE user_id = $1 AND fingerprint = $2 AND status = $4
	`

	_, err := s.db.ExecContext(ctx, query, ownerID, fp,
		domain.StatusQueued, domain.StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("failed to requeue analysis status: %w", err)
	}

	return nil
}

// WriteResult persists the result document and the terminal status in one
// statement. Write-once: a row that already holds a result is left intact,
// so a racing duplicate attempt cannot clobber the first writer.
func (s *Storage) WriteResult(ctx context.Context, ownerID, fp, objectKey, name, status string, result analysis.Result) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	query := `
		INSERT INTO analyses (user_id, fingerprint, object_key, name, status, result, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (user_id, fingerprint) DO UPDATE
		SET status = $5, result = $6, updated_at = NOW()
		WHERE analyses.status NOT IN ($7, $8)
	`

	_, err = s.db.ExecContext(ctx, query,
		ownerID, fp, objectKey, name, status, resultJSON,
		domain.StatusCompleted, domain.StatusDegraded,
	)
	if err != nil {
		return fmt.Errorf("failed to write analysis result: %w", err)
	}

	s.logger.Info("Analysis result written",
		slog.String("owner_id", ownerID),
		slog.String("fingerprint", fp),
		slog.String("status", status),
	)

	return nil
}

// GetChaosConfig reads the operator-set fault-injection state. Missing row
// or read failure degrades to the zero value (all faults disabled) so a
// config blip can never take the worker down.
func (s *Storage) GetChaosConfig(ctx context.Context) (domain.ChaosConfig, error) {
	query := `
		SELECT failure_rate, induced_delay_seconds, circuit_open, paused
		FROM worker_config
		WHERE id = 1
	`

	var row struct {
		FailureRate         float64 `db:"failure_rate"`
		InducedDelaySeconds int     `db:"induced_delay_seconds"`
		CircuitOpen         bool    `db:"circuit_open"`
		Paused              bool    `db:"paused"`
	}

	if err := s.db.GetContext(ctx, &row, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ChaosConfig{}, nil
		}
		return domain.ChaosConfig{}, fmt.Errorf("failed to get chaos config: %w", err)
	}

	return domain.ChaosConfig{
		FailureRate:  row.FailureRate,
		InducedDelay: time.Duration(row.InducedDelaySeconds) * time.Second,
		CircuitOpen:  row.CircuitOpen,
		Paused:       row.Paused,
	}, nil
}
