package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/videopipe/video-analyzer/internal/api/dto"
	"github.com/videopipe/video-analyzer/internal/api/storage"
	"github.com/videopipe/video-analyzer/internal/worker/domain"
)

// AnalysisHandler handles the status poll and result read surface
type AnalysisHandler struct {
	logger  *slog.Logger
	storage AnalysisStore
}

// NewAnalysisHandler creates a new AnalysisHandler instance
func NewAnalysisHandler(deps *Dependencies) *AnalysisHandler {
	return &AnalysisHandler{
		logger:  deps.Logger,
		storage: deps.Storage,
	}
}

// GetAnalysis handles GET /api/v1/analyses/:user_id/:fingerprint
// The poll contract: the response is "processing" for every state that has
// not positively resolved to a result. Missing rows, in-flight retries, and
// read failures all look identical to the poller, which simply polls again.
func (h *AnalysisHandler) GetAnalysis(c *gin.Context) {
	userID := c.Param("user_id")
	fp := c.Param("fingerprint")

	analysis, err := h.storage.GetAnalysis(c.Request.Context(), userID, fp)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			h.logger.Warn("Status read failed, reporting processing",
				slog.String("user_id", userID),
				slog.String("fingerprint", fp),
				slog.String("error", err.Error()),
			)
		}
		c.JSON(http.StatusOK, dto.AnalysisStatusResponse{
			Status: domain.StatusProcessing,
		})
		return
	}

	if domain.HasResult(analysis.Status) && len(analysis.Result) > 0 {
		c.JSON(http.StatusOK, dto.AnalysisStatusResponse{
			Status: analysis.Status,
			Data:   analysis.Result,
		})
		return
	}

	c.JSON(http.StatusOK, dto.AnalysisStatusResponse{
		Status: domain.StatusProcessing,
	})
}

// ListAnalyses handles GET /api/v1/analyses/:user_id
// Lists every analysis row for an owner, newest first.
func (h *AnalysisHandler) ListAnalyses(c *gin.Context) {
	userID := c.Param("user_id")

	analyses, err := h.storage.ListAnalyses(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to list analyses",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list analyses",
		})
		return
	}

	response := make([]dto.AnalysisDTO, len(analyses))
	for i, a := range analyses {
		response[i] = dto.AnalysisDTO{
			UserID:      a.UserID,
			Fingerprint: a.Fingerprint,
			Key:         a.ObjectKey,
			Name:        a.Name,
			Status:      a.Status,
			Result:      a.Result,
			CreatedAt:   a.CreatedAt.Format(time.RFC3339),
			UpdatedAt:   a.UpdatedAt.Format(time.RFC3339),
		}
	}

	c.JSON(http.StatusOK, dto.ListAnalysesResponse{
		Analyses: response,
	})
}

// FailAnalysis handles POST /api/v1/analyses/:user_id/:fingerprint/fail
// Operator terminalization of a dead-lettered job. The worker never writes
// failed on its own.
func (h *AnalysisHandler) FailAnalysis(c *gin.Context) {
	userID := c.Param("user_id")
	fp := c.Param("fingerprint")

	var req dto.FailAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	if err := h.storage.MarkFailed(c.Request.Context(), userID, fp, req.Reason); err != nil {
		h.logger.Error("Failed to mark analysis failed",
			slog.String("user_id", userID),
			slog.String("fingerprint", fp),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to mark analysis failed",
		})
		return
	}

	h.logger.Info("Analysis marked failed by operator",
		slog.String("user_id", userID),
		slog.String("fingerprint", fp),
		slog.String("reason", req.Reason),
	)

	c.JSON(http.StatusOK, gin.H{
		"user_id":     userID,
		"fingerprint": fp,
		"status":      domain.StatusFailed,
	})
}
