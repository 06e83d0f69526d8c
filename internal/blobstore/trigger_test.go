package blobstore

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/videopipe/video-analyzer/internal/fingerprint"
	"github.com/videopipe/video-analyzer/internal/worker/domain"
)

type capturePublisher struct {
	bodies [][]byte
	err    error
}

func (p *capturePublisher) Publish(_ context.Context, body []byte, _ string) error {
	if p.err != nil {
		return p.err
	}
	p.bodies = append(p.bodies, body)
	return nil
}

func TestTrigger_ObjectCreated(t *testing.T) {
	pub := &capturePublisher{}
	trigger := NewTrigger(pub, slog.Default())

	fp := fingerprint.Resolve("a.mp4", 1000, 1000)
	key := fingerprint.ObjectKey("owner@example.com", fp, "a.mp4")

	err := trigger.ObjectCreated(context.Background(), key)
	require.NoError(t, err)
	require.Len(t, pub.bodies, 1, "one object creation must produce exactly one message")

	var msg domain.JobMessage
	require.NoError(t, json.Unmarshal(pub.bodies[0], &msg))
	assert.Equal(t, "owner@example.com", msg.OwnerID)
	assert.Equal(t, fp, msg.Fingerprint)
	assert.Equal(t, key, msg.Key)
	assert.Equal(t, "a.mp4", msg.Name)
	assert.False(t, msg.EnqueuedAt.IsZero())
}

func TestTrigger_ObjectCreated_BadKey(t *testing.T) {
	pub := &capturePublisher{}
	trigger := NewTrigger(pub, slog.Default())

	err := trigger.ObjectCreated(context.Background(), "not-a-valid-key")
	assert.Error(t, err)
	assert.Empty(t, pub.bodies)
}

func TestTrigger_ObjectCreated_PublishFailure(t *testing.T) {
	pub := &capturePublisher{err: errors.New("broker down")}
	trigger := NewTrigger(pub, slog.Default())

	fp := fingerprint.Resolve("a.mp4", 1000, 1000)
	key := fingerprint.ObjectKey("u1", fp, "a.mp4")

	err := trigger.ObjectCreated(context.Background(), key)
	assert.ErrorContains(t, err, "broker down")
}
