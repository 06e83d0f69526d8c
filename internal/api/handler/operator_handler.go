package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/videopipe/video-analyzer/internal/api/dto"
	"github.com/videopipe/video-analyzer/internal/api/model"
)

// peekLimit bounds how many dead letters a single peek returns.
const peekLimit = 25

// OperatorHandler handles the operator surface: dead-letter inspection and
// redrive, worker pause/resume, the circuit flag, and fault injection.
type OperatorHandler struct {
	logger       *slog.Logger
	storage      AnalysisStore
	rabbitClient QueueAdmin
}

// NewOperatorHandler creates a new OperatorHandler instance
func NewOperatorHandler(deps *Dependencies) *OperatorHandler {
	return &OperatorHandler{
		logger:       deps.Logger,
		storage:      deps.Storage,
		rabbitClient: deps.RabbitClient,
	}
}

// GetDeadLetters handles GET /api/v1/dlq
// Non-destructive peek at the dead-letter queue.
func (h *OperatorHandler) GetDeadLetters(c *gin.Context) {
	count, err := h.rabbitClient.DeadLetterCount()
	if err != nil {
		h.logger.Error("Failed to count dead letters", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to inspect dead-letter queue",
		})
		return
	}

	bodies, err := h.rabbitClient.PeekDeadLetters(peekLimit)
	if err != nil {
		h.logger.Error("Failed to peek dead letters", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to inspect dead-letter queue",
		})
		return
	}

	messages := make([]json.RawMessage, 0, len(bodies))
	for _, body := range bodies {
		if json.Valid(body) {
			messages = append(messages, json.RawMessage(body))
			continue
		}
		// Malformed payloads dead-letter too; quote them so the response
		// stays valid JSON.
		quoted, _ := json.Marshal(string(body))
		messages = append(messages, json.RawMessage(quoted))
	}

	c.JSON(http.StatusOK, dto.DeadLettersResponse{
		Count:    count,
		Messages: messages,
	})
}

// RedriveDeadLetters handles POST /api/v1/dlq/redrive
// Moves every dead-lettered message back to the live queue. This is the
// only path out of the dead-letter queue; nothing redrives automatically.
func (h *OperatorHandler) RedriveDeadLetters(c *gin.Context) {
	moved, err := h.rabbitClient.RedriveDeadLetters(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to redrive dead letters", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to redrive dead-letter queue",
		})
		return
	}

	h.logger.Info("Dead letters redriven", slog.Int("count", moved))

	c.JSON(http.StatusOK, dto.RedriveResponse{
		Redriven: moved,
	})
}

// DrainDeadLetters handles POST /api/v1/dlq/drain
// Discards every dead-lettered message. Used to reset state between test
// runs; destructive by intent.
func (h *OperatorHandler) DrainDeadLetters(c *gin.Context) {
	drained, err := h.rabbitClient.DrainDeadLetters()
	if err != nil {
		h.logger.Error("Failed to drain dead letters", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to drain dead-letter queue",
		})
		return
	}

	h.logger.Info("Dead letters drained", slog.Int("count", drained))

	c.JSON(http.StatusOK, dto.DrainResponse{
		Drained: drained,
	})
}

// GetWorkerConfig handles GET /api/v1/worker/config
func (h *OperatorHandler) GetWorkerConfig(c *gin.Context) {
	cfg, err := h.storage.GetWorkerConfig(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to get worker config", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get worker config",
		})
		return
	}

	c.JSON(http.StatusOK, workerConfigDTO(cfg))
}

// UpdateWorkerConfig handles PUT /api/v1/worker/config
// Full replacement of the worker runtime configuration. The harness uses
// this both to apply fault injection and to restore its snapshot.
func (h *OperatorHandler) UpdateWorkerConfig(c *gin.Context) {
	var req dto.WorkerConfigDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	if req.FailureRate < 0 || req.FailureRate > 1 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "failure_rate must be between 0 and 1",
		})
		return
	}

	if req.InducedDelaySeconds < 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "induced_delay_seconds must not be negative",
		})
		return
	}

	cfg := &model.WorkerConfig{
		FailureRate:         req.FailureRate,
		InducedDelaySeconds: req.InducedDelaySeconds,
		CircuitOpen:         req.CircuitOpen,
		Paused:              req.Paused,
	}

	if err := h.storage.UpdateWorkerConfig(c.Request.Context(), cfg); err != nil {
		h.logger.Error("Failed to update worker config", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to update worker config",
		})
		return
	}

	h.logger.Info("Worker config updated",
		slog.Float64("failure_rate", req.FailureRate),
		slog.Int("induced_delay_seconds", req.InducedDelaySeconds),
		slog.Bool("circuit_open", req.CircuitOpen),
		slog.Bool("paused", req.Paused),
	)

	h.respondWithConfig(c)
}

// PauseWorker handles POST /api/v1/worker/pause
// Disables the queue-to-worker binding. In-flight jobs finish; nothing new
// is dispatched until resume.
func (h *OperatorHandler) PauseWorker(c *gin.Context) {
	h.setPaused(c, true)
}

// ResumeWorker handles POST /api/v1/worker/resume
func (h *OperatorHandler) ResumeWorker(c *gin.Context) {
	h.setPaused(c, false)
}

// SetCircuit handles POST /api/v1/worker/circuit
// Opens or closes the analysis circuit breaker.
func (h *OperatorHandler) SetCircuit(c *gin.Context) {
	var req dto.SetCircuitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	cfg, err := h.storage.GetWorkerConfig(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to get worker config", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get worker config",
		})
		return
	}

	cfg.CircuitOpen = req.Open
	if err := h.storage.UpdateWorkerConfig(c.Request.Context(), cfg); err != nil {
		h.logger.Error("Failed to update worker config", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to update worker config",
		})
		return
	}

	h.logger.Info("Analysis circuit toggled", slog.Bool("open", req.Open))

	h.respondWithConfig(c)
}

func (h *OperatorHandler) setPaused(c *gin.Context, paused bool) {
	cfg, err := h.storage.GetWorkerConfig(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to get worker config", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get worker config",
		})
		return
	}

	cfg.Paused = paused
	if err := h.storage.UpdateWorkerConfig(c.Request.Context(), cfg); err != nil {
		h.logger.Error("Failed to update worker config", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to update worker config",
		})
		return
	}

	h.logger.Info("Worker binding toggled", slog.Bool("paused", paused))

	h.respondWithConfig(c)
}

func (h *OperatorHandler) respondWithConfig(c *gin.Context) {
	cfg, err := h.storage.GetWorkerConfig(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to read back worker config", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to read worker config",
		})
		return
	}
	c.JSON(http.StatusOK, workerConfigDTO(cfg))
}

func workerConfigDTO(cfg *model.WorkerConfig) dto.WorkerConfigDTO {
	return dto.WorkerConfigDTO{
		FailureRate:         cfg.FailureRate,
		InducedDelaySeconds: cfg.InducedDelaySeconds,
		CircuitOpen:         cfg.CircuitOpen,
		Paused:              cfg.Paused,
		UpdatedAt:           cfg.UpdatedAt.Format(time.RFC3339),
	}
}
