package handler

import (
	"context"
	"log/slog"

	"github.com/videopipe/video-analyzer/internal/api/model"
	"github.com/videopipe/video-analyzer/internal/blobstore"
)

// AnalysisStore is the database surface the handlers need. Implemented by
// internal/api/storage.
type AnalysisStore interface {
	GetAnalysis(ctx context.Context, userID, fp string) (*model.Analysis, error)
	GetCompleted(ctx context.Context, userID, fp string) (*model.Analysis, error)
	ListAnalyses(ctx context.Context, userID string) ([]model.Analysis, error)
	MarkQueued(ctx context.Context, userID, fp, objectKey, name string) error
	MarkFailed(ctx context.Context, userID, fp, reason string) error
	GetWorkerConfig(ctx context.Context) (*model.WorkerConfig, error)
	UpdateWorkerConfig(ctx context.Context, cfg *model.WorkerConfig) error
}

// QueueAdmin is the dead-letter surface of the queue client.
type QueueAdmin interface {
	DeadLetterCount() (int, error)
	PeekDeadLetters(max int) ([][]byte, error)
	DrainDeadLetters() (int, error)
	RedriveDeadLetters(ctx context.Context) (int, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger       *slog.Logger
	Storage      AnalysisStore
	Blobstore    *blobstore.Store
	Minter       *blobstore.CapabilityMinter
	Trigger      *blobstore.Trigger
	RabbitClient QueueAdmin
}
