package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/videopipe/video-analyzer/internal/worker/domain"
)

// consumeLoop manages the queue-to-worker binding. It consumes until the
// operator pauses the binding, then cancels the consumer and waits for
// resume. Pause/resume is the only supported cancellation primitive;
// in-flight jobs are never interrupted.
func (w *Worker) consumeLoop(ctx context.Context) error {
	for {
		if err := w.waitWhileUnpaused(ctx); err != nil {
			return err
		}

		consumerTag := fmt.Sprintf("%s-%s", w.workerID, uuid.New().String()[:8])
		deliveries, err := w.queue.Consume(consumerTag, w.prefetchCount)
		if err != nil {
			return fmt.Errorf("failed to start consuming: %w", err)
		}

		w.logger.Info("Queue-to-worker binding enabled",
			slog.String("consumer_tag", consumerTag),
		)

		resumed, err := w.dispatch(ctx, consumerTag, deliveries)
		if err != nil {
			return err
		}
		if !resumed {
			return ctx.Err()
		}
	}
}

// waitWhileUnpaused blocks until the binding is enabled (or ctx ends).
func (w *Worker) waitWhileUnpaused(ctx context.Context) error {
	for {
		cfg, err := w.store.GetChaosConfig(ctx)
		if err != nil {
			w.logger.Warn("Failed to read worker config, assuming unpaused",
				slog.Any("error", err),
			)
			return nil
		}
		if !cfg.Paused {
			return nil
		}

		w.logger.Info("Queue-to-worker binding paused, waiting")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.configPollInterval):
		}
	}
}

// dispatch feeds deliveries to the worker pool until the binding is paused
// (resumed=true, caller re-enters the pause wait), the context ends, or
// the consumer cannot be detached cleanly (non-nil error, caller shuts
// down).
func (w *Worker) dispatch(ctx context.Context, consumerTag string, deliveries <-chan amqp.Delivery) (bool, error) {
	ticker := time.NewTicker(w.configPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return false, nil

		case <-ticker.C:
			cfg, err := w.store.GetChaosConfig(ctx)
			if err != nil {
				w.logger.Warn("Failed to read worker config",
					slog.Any("error", err),
				)
				continue
			}
			if cfg.Paused {
				if err := w.queue.CancelConsumer(consumerTag); err != nil {
					// Without a successful cancel the broker never closes
					// the delivery channel, so draining it would block
					// forever. Shut down; a restart redelivers the unacked
					// messages.
					w.logger.Error("Failed to cancel consumer on pause",
						slog.Any("error", err),
					)
					return false, fmt.Errorf("failed to cancel consumer on pause: %w", err)
				}
				// The broker closes the delivery channel once the cancel
				// lands; unacked messages return to the queue.
				w.drainCanceled(deliveries)
				return true, nil
			}

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("RabbitMQ delivery channel closed")
				return false, nil
			}
			w.dispatchOne(ctx, delivery)
		}
	}
}

// dispatchOne parses a delivery and hands it to the pool. Malformed
// messages can never succeed, so they bypass retry and dead-letter
// immediately via nack without requeue.
func (w *Worker) dispatchOne(ctx context.Context, delivery amqp.Delivery) {
	var msg domain.JobMessage
	if err := json.Unmarshal(delivery.Body, &msg); err != nil {
		w.logger.Error("Failed to parse job message",
			slog.Any("error", fmt.Errorf("%w: %w", domain.ErrMalformedMessage, err)),
			slog.String("body", string(delivery.Body)),
		)
		if nackErr := delivery.Nack(false, false); nackErr != nil {
			w.logger.Error("Failed to NACK malformed message",
				slog.String("error", nackErr.Error()),
			)
		}
		return
	}

	if msg.OwnerID == "" || msg.Fingerprint == "" || msg.Key == "" {
		w.logger.Error("Job message missing identity fields",
			slog.Any("error", domain.ErrMalformedMessage),
			slog.String("body", string(delivery.Body)),
		)
		if nackErr := delivery.Nack(false, false); nackErr != nil {
			w.logger.Error("Failed to NACK malformed message",
				slog.String("error", nackErr.Error()),
			)
		}
		return
	}

	msg.DeliveryTag = delivery.DeliveryTag
	msg.Redelivered = delivery.Redelivered

	select {
	case w.jobsChan <- &msg:
		w.logger.Debug("Job dispatched to worker pool",
			slog.String("fingerprint", msg.Fingerprint),
			slog.Uint64("delivery_tag", msg.DeliveryTag),
		)
	case <-ctx.Done():
		w.logger.Info("Dispatcher stopped while dispatching job")
		// Requeue so the message is redelivered after restart.
		if nackErr := delivery.Nack(false, true); nackErr != nil {
			w.logger.Error("Failed to NACK message on shutdown",
				slog.String("error", nackErr.Error()),
			)
		}
	}
}

// drainCanceled requeues anything still buffered after a consumer cancel.
func (w *Worker) drainCanceled(deliveries <-chan amqp.Delivery) {
	for delivery := range deliveries {
		if err := delivery.Nack(false, true); err != nil {
			w.logger.Error("Failed to requeue buffered delivery after pause",
				slog.String("error", err.Error()),
			)
		}
	}
}
