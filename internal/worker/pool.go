package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/videopipe/video-analyzer/internal/worker/domain"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency
// configuration. Goroutines share nothing but the jobs channel; all state
// lives in the status/result store.
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// workerLoop is the main processing loop for each worker goroutine.
// The ack/nack ordering matters: the result write happens inside
// processJob, before the ack here, so a crash between the two leaves a
// redelivery that the idempotency check resolves.
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Info("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for {
		select {
		case <-w.stopChan:
			w.logger.Info("Worker goroutine stopping - stopChan closed",
				slog.String("worker_name", workerName),
			)
			return

		case <-ctx.Done():
			w.logger.Info("Worker goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return

		case msg, ok := <-w.jobsChan:
			if !ok {
				w.logger.Info("Worker goroutine stopping - jobsChan closed",
					slog.String("worker_name", workerName),
				)
				return
			}

			w.logger.Info("Worker received job",
				slog.String("worker_name", workerName),
				slog.String("fingerprint", msg.Fingerprint),
				slog.Uint64("delivery_tag", msg.DeliveryTag),
				slog.Bool("redelivered", msg.Redelivered),
			)

			err := w.processJob(ctx, msg)

			if err != nil {
				w.logger.Error("Job processing failed",
					slog.String("worker_name", workerName),
					slog.String("fingerprint", msg.Fingerprint),
					slog.String("error", err.Error()),
				)

				// Transient failures requeue; the broker's delivery limit
				// decides when the message dead-letters. Everything else
				// dead-letters immediately.
				requeue := domain.IsRetryable(err)

				if nackErr := w.queue.Nack(msg.DeliveryTag, requeue); nackErr != nil {
					w.logger.Error("Failed to NACK message",
						slog.String("worker_name", workerName),
						slog.String("error", nackErr.Error()),
					)
				} else {
					w.logger.Info("Message NACKed",
						slog.String("worker_name", workerName),
						slog.String("fingerprint", msg.Fingerprint),
						slog.Bool("requeue", requeue),
					)
				}
			} else {
				if ackErr := w.queue.Ack(msg.DeliveryTag); ackErr != nil {
					w.logger.Error("Failed to ACK message",
						slog.String("worker_name", workerName),
						slog.String("error", ackErr.Error()),
					)
				} else {
					w.logger.Info("Job acknowledged",
						slog.String("worker_name", workerName),
						slog.String("fingerprint", msg.Fingerprint),
					)
				}
			}
		}
	}
}
