// Package worker consumes job messages from the ingest queue and drives
// each one through the analysis state machine: received -> analyzing ->
// writing_result -> acknowledged, with transient failures left to the
// broker's redelivery and delivery-limit machinery.
package worker

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/videopipe/video-analyzer/internal/analysis"
	"github.com/videopipe/video-analyzer/internal/blobstore"
	"github.com/videopipe/video-analyzer/internal/worker/domain"
)

// ResultStore is the status/result store surface the worker needs.
// Implemented by internal/worker/storage.
type ResultStore interface {
	GetStatus(ctx context.Context, ownerID, fp string) (status string, hasResult bool, err error)
	MarkProcessing(ctx context.Context, ownerID, fp string) error
	MarkQueuedAgain(ctx context.Context, ownerID, fp string) error
	WriteResult(ctx context.Context, ownerID, fp, objectKey, name, status string, result analysis.Result) error
	GetChaosConfig(ctx context.Context) (domain.ChaosConfig, error)
}

// ArtifactStore is the object-store surface the worker needs: only the
// metadata sidecar, for the best-effort upload context.
type ArtifactStore interface {
	Stat(key string) (blobstore.Metadata, error)
}

// JobQueue is the queue surface the worker needs. Implemented by
// shared/rabbitmq.Client.
type JobQueue interface {
	Consume(consumerTag string, prefetchCount int) (<-chan amqp.Delivery, error)
	CancelConsumer(consumerTag string) error
	Ack(deliveryTag uint64) error
	Nack(deliveryTag uint64, requeue bool) error
}

// Config holds worker configuration
type Config struct {
	Logger             *slog.Logger
	Store              ResultStore
	Artifacts          ArtifactStore
	Analyzer           analysis.Analyzer
	Queue              JobQueue
	Concurrency        int
	PrefetchCount      int
	AnalysisTimeout    time.Duration
	ConfigPollInterval time.Duration
}

// Worker represents the background analysis worker.
type Worker struct {
	logger             *slog.Logger
	store              ResultStore
	artifacts          ArtifactStore
	analyzer           analysis.Analyzer
	queue              JobQueue
	concurrency        int
	prefetchCount      int
	analysisTimeout    time.Duration
	configPollInterval time.Duration
	workerID           string

	jobsChan chan *domain.JobMessage
	wg       sync.WaitGroup
	stopChan chan struct{}
	randFn   func() float64
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	pollInterval := cfg.ConfigPollInterval
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}

	return &Worker{
		logger:             cfg.Logger,
		store:              cfg.Store,
		artifacts:          cfg.Artifacts,
		analyzer:           cfg.Analyzer,
		queue:              cfg.Queue,
		concurrency:        cfg.Concurrency,
		prefetchCount:      cfg.PrefetchCount,
		analysisTimeout:    cfg.AnalysisTimeout,
		configPollInterval: pollInterval,
		workerID:           "worker-" + uuid.New().String()[:8],
		jobsChan:           make(chan *domain.JobMessage),
		stopChan:           make(chan struct{}),
		randFn:             rand.Float64,
	}
}

// Start begins consuming and processing jobs. It blocks until ctx is
// canceled or the consume loop fails permanently.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("analysis_timeout", w.analysisTimeout),
	)

	w.spawnWorkerPool(ctx)

	return w.consumeLoop(ctx)
}

// Stop gracefully stops the worker pool.
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}

// rollInducedFailure decides whether the chaos config forces this attempt
// to fail. rate >= 1 is deterministic, which is what makes dead-letter
// timing measurable.
func (w *Worker) rollInducedFailure(rate float64) bool {
	if rate <= 0 {
		return false
	}
	if rate >= 1 {
		return true
	}
	return w.randFn() < rate
}
