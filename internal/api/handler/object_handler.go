package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/videopipe/video-analyzer/internal/api/dto"
	"github.com/videopipe/video-analyzer/internal/blobstore"
	"github.com/videopipe/video-analyzer/internal/fingerprint"
	"github.com/videopipe/video-analyzer/internal/worker/domain"
)

// ObjectHandler handles artifact reads and capability-scoped writes
type ObjectHandler struct {
	logger  *slog.Logger
	storage AnalysisStore
	store   *blobstore.Store
	minter  *blobstore.CapabilityMinter
	trigger *blobstore.Trigger
}

// NewObjectHandler creates a new ObjectHandler instance
func NewObjectHandler(deps *Dependencies) *ObjectHandler {
	return &ObjectHandler{
		logger:  deps.Logger,
		storage: deps.Storage,
		store:   deps.Blobstore,
		minter:  deps.Minter,
		trigger: deps.Trigger,
	}
}

// PutObject handles PUT /api/v1/objects/*key
// Accepts an artifact write under a previously minted capability, stores
// the blob, records the job as queued, and fires the ingest trigger.
func (h *ObjectHandler) PutObject(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	contentType := c.GetHeader("Content-Type")

	err := h.minter.Verify(
		key,
		contentType,
		c.Query("expires"),
		c.Query("signature"),
		time.Now(),
	)
	if err != nil {
		status := http.StatusForbidden
		if errors.Is(err, blobstore.ErrCapabilityExpired) {
			status = http.StatusGone
		}
		h.logger.Warn("Rejected object write",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		c.JSON(status, gin.H{
			"error": "Upload not authorized for this object",
		})
		return
	}

	ownerID, fp, name, err := fingerprint.ParseObjectKey(key)
	if err != nil {
		h.logger.Error("Capability key is not a valid object key",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid object key",
		})
		return
	}

	meta := blobstore.Metadata{
		ContentType: contentType,
		Context:     c.GetHeader(UploadContextHeader),
	}

	size, err := h.store.Put(key, meta, c.Request.Body)
	if err != nil {
		h.logger.Error("Failed to store object",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to store object",
		})
		return
	}

	if err := h.storage.MarkQueued(c.Request.Context(), ownerID, fp, key, name); err != nil {
		h.logger.Error("Failed to record queued analysis",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to record analysis job",
		})
		return
	}

	// Exactly one message per successful write. A failed publish surfaces
	// as an error so the client retries the PUT; the store write and the
	// queued row are both idempotent under that retry.
	if err := h.trigger.ObjectCreated(c.Request.Context(), key); err != nil {
		h.logger.Error("Failed to enqueue analysis job",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to enqueue analysis job",
		})
		return
	}

	c.JSON(http.StatusOK, dto.PutObjectResponse{
		Key:         key,
		Fingerprint: fp,
		Size:        size,
		Status:      domain.StatusQueued,
	})
}

// GetObject handles GET /api/v1/objects/*key
// Debug read of a stored artifact.
func (h *ObjectHandler) GetObject(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")

	body, meta, err := h.store.Get(key)
	if err != nil {
		if errors.Is(err, blobstore.ErrObjectNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Object not found",
			})
			return
		}
		h.logger.Error("Failed to read object",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to read object",
		})
		return
	}
	defer body.Close()

	c.Header("Content-Type", meta.ContentType)
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, body); err != nil {
		h.logger.Error("Failed to stream object",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}
