package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/videopipe/video-analyzer/internal/api/dto"
	"github.com/videopipe/video-analyzer/internal/api/storage"
	"github.com/videopipe/video-analyzer/internal/blobstore"
	"github.com/videopipe/video-analyzer/internal/fingerprint"
)

// UploadContextHeader carries the opaque upload context from admission to
// the object write. It travels as a header so the artifact body stays raw.
const UploadContextHeader = "X-Upload-Context"

// UploadHandler handles upload admission requests
type UploadHandler struct {
	logger  *slog.Logger
	storage AnalysisStore
	minter  *blobstore.CapabilityMinter
}

// NewUploadHandler creates a new UploadHandler instance
func NewUploadHandler(deps *Dependencies) *UploadHandler {
	return &UploadHandler{
		logger:  deps.Logger,
		storage: deps.Storage,
		minter:  deps.Minter,
	}
}

// CreateUpload handles POST /api/v1/uploads
// Admits an upload: resolves the content fingerprint, answers from the
// cache when a result already exists, otherwise mints an upload capability.
func (h *UploadHandler) CreateUpload(c *gin.Context) {
	var req dto.CreateUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid upload request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	fp := fingerprint.Resolve(req.Filename, req.Size, req.LastModified)
	key := fingerprint.ObjectKey(req.UserID, fp, req.Filename)

	h.logger.Info("Upload admission",
		slog.String("user_id", req.UserID),
		slog.String("filename", req.Filename),
		slog.String("fingerprint", fp),
	)

	// Cache check: a completed result under this identity means the exact
	// same content was already analyzed. No capability, no job. Degraded
	// rows do not count; resubmitting after the analysis service recovers
	// must get a real analysis.
	existing, err := h.storage.GetCompleted(c.Request.Context(), req.UserID, fp)
	if err == nil {
		h.logger.Info("Cache hit, skipping upload",
			slog.String("fingerprint", fp),
			slog.String("status", existing.Status),
		)
		c.JSON(http.StatusOK, dto.CreateUploadResponse{
			Cached:      true,
			Key:         existing.ObjectKey,
			Fingerprint: fp,
			Status:      existing.Status,
			Result:      existing.Result,
		})
		return
	}
	if !errors.Is(err, storage.ErrNotFound) {
		// A broken cache check degrades to an uncached admission. Worst
		// case the artifact is re-analyzed; the result write is idempotent.
		h.logger.Warn("Cache check failed, admitting as uncached",
			slog.String("fingerprint", fp),
			slog.String("error", err.Error()),
		)
	}

	cap := h.minter.Mint(key, req.ContentType, time.Now())

	headers := map[string]string{
		"Content-Type": req.ContentType,
	}
	if req.Context != "" {
		headers[UploadContextHeader] = req.Context
	}

	c.JSON(http.StatusOK, dto.CreateUploadResponse{
		Cached:      false,
		Key:         key,
		Fingerprint: fp,
		Upload: &dto.UploadTarget{
			URL:       cap.URL,
			Method:    cap.Method,
			Headers:   headers,
			ExpiresAt: cap.ExpiresAt.Format(time.RFC3339),
		},
	})
}
