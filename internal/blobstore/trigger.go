package blobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/videopipe/video-analyzer/internal/fingerprint"
	"github.com/videopipe/video-analyzer/internal/worker/domain"
)

// Publisher is the queue side of the ingest trigger. Satisfied by the
// rabbitmq client.
type Publisher interface {
	Publish(ctx context.Context, body []byte, contentType string) error
}

// Trigger is the storage-event bridge: every object creation under the
// ingest prefix produces exactly one queue message referencing that object.
// Downstream consumers must still treat delivery as at-least-once.
type Trigger struct {
	publisher Publisher
	logger    *slog.Logger
}

// NewTrigger creates the ingest trigger.
func NewTrigger(publisher Publisher, logger *slog.Logger) *Trigger {
	return &Trigger{publisher: publisher, logger: logger}
}

// ObjectCreated enqueues the processing message for a freshly written
// object. The job identity is recovered from the key itself, so the trigger
// needs no store lookup.
func (t *Trigger) ObjectCreated(ctx context.Context, key string) error {
	ownerID, fp, name, err := fingerprint.ParseObjectKey(key)
	if err != nil {
		return fmt.Errorf("refusing to enqueue object with unparseable key: %w", err)
	}

	msg := domain.JobMessage{
		OwnerID:     ownerID,
		Fingerprint: fp,
		Key:         key,
		Name:        name,
		EnqueuedAt:  time.Now().UTC(),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode job message: %w", err)
	}

	if err := t.publisher.Publish(ctx, body, "application/json"); err != nil {
		return fmt.Errorf("failed to enqueue job message: %w", err)
	}

	t.logger.Info("Job enqueued for new object",
		slog.String("key", key),
		slog.String("owner_id", ownerID),
		slog.String("fingerprint", fp),
	)

	return nil
}
