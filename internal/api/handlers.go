package api

import (
	"errors"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"valora/server/internal/artifacts"
	"valora/server/internal/database"
	"valora/server/internal/models"
	"valora/server/internal/queue"
	"valora/server/internal/valuation"
)

type Handler struct {
	db        *database.Database
	queue     *queue.RecordQueue
	trainer   *valuation.Trainer
	predictor *valuation.Predictor
	store     *artifacts.Store
	logger    *logrus.Logger
}

type ValuationRequest struct {
	PropertyType    string                `json:"property_type" binding:"required"`
	Property        models.PropertyRecord `json:"property" binding:"required"`
	ConfidenceLevel float64               `json:"confidence_level"`
	TopDrivers      int                   `json:"top_drivers"`
}

type TrainRequest struct {
	PropertyType string `json:"property_type"`
	Tune         bool   `json:"tune"`
}

func NewHandler(db *database.Database, queue *queue.RecordQueue, trainer *valuation.Trainer, predictor *valuation.Predictor, store *artifacts.Store, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	return &Handler{
		db:        db,
		queue:     queue,
		trainer:   trainer,
		predictor: predictor,
		store:     store,
		logger:    logger,
	}
}

// statusFor maps pipeline errors onto HTTP statuses. Unknown errors stay
// internal.
func statusFor(err error) int {
	switch {
	case errors.Is(err, valuation.ErrUnknownPropertyType),
		errors.Is(err, valuation.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, valuation.ErrModelNotFound),
		errors.Is(err, artifacts.ErrArtifactNotFound):
		return http.StatusNotFound
	case errors.Is(err, valuation.ErrEmptyDataset),
		errors.Is(err, valuation.ErrInsufficientData):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// CreateValuation values one property: point estimate, intervals and ranked
// value drivers.
func (h *Handler) CreateValuation(c *gin.Context) {
	var req ValuationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.predictor.Explain(req.Property, req.PropertyType, req.ConfidenceLevel, req.TopDrivers)
	if err != nil {
		h.logger.WithError(err).WithField("property_type", req.PropertyType).Error("Valuation failed")
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// IngestRecords accepts a batch of property records and queues it for
// persistence.
func (h *Handler) IngestRecords(c *gin.Context) {
	var records []*models.PropertyRecord
	if err := c.ShouldBindJSON(&records); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(records) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty batch"})
		return
	}
	for _, r := range records {
		if !models.ValidPropertyType(r.PropertyType) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown property type: " + r.PropertyType})
			return
		}
	}

	if err := h.queue.Push(records); err != nil {
		h.logger.WithError(err).Error("Failed to queue record batch")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"queued": len(records)})
}

// TrainModels retrains one property type, or all of them when none is given.
func (h *Handler) TrainModels(c *gin.Context) {
	var req TrainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	records, err := h.db.AllRecords()
	if err != nil {
		h.logger.WithError(err).Error("Failed to load training corpus")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load records"})
		return
	}

	if req.PropertyType != "" {
		result, err := h.trainer.Train(c.Request.Context(), records, req.PropertyType, req.Tune)
		if err != nil {
			h.logger.WithError(err).WithField("property_type", req.PropertyType).Error("Training failed")
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
		return
	}

	results, failures := h.trainer.TrainAll(c.Request.Context(), records, req.Tune)
	failed := make(map[string]string, len(failures))
	for pt, err := range failures {
		failed[pt] = err.Error()
	}
	c.JSON(http.StatusOK, gin.H{"trained": results, "failed": failed})
}

// GetModelMetrics returns the persisted evaluation metrics for one model.
func (h *Handler) GetModelMetrics(c *gin.Context) {
	propertyType := c.Param("property_type")
	art, err := h.loadArtifact(c, propertyType)
	if err != nil {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"property_type": art.PropertyType,
		"metrics":       art.Metrics,
		"trained_at":    art.TrainedAt,
		"best_round":    art.Booster.BestRound,
	})
}

// GetModelImportance returns the model's gain importances, highest first.
func (h *Handler) GetModelImportance(c *gin.Context) {
	propertyType := c.Param("property_type")
	art, err := h.loadArtifact(c, propertyType)
	if err != nil {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"property_type": art.PropertyType,
		"importance":    art.Importance,
	})
}

// GetTrainingHistory returns the last recorded training run.
func (h *Handler) GetTrainingHistory(c *gin.Context) {
	history, err := h.store.LoadHistory()
	if err != nil {
		if errors.Is(err, artifacts.ErrArtifactNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no training runs recorded"})
			return
		}
		h.logger.WithError(err).Error("Failed to load training history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}

	c.JSON(http.StatusOK, history)
}

// GetRecordCounts returns how many stored records each property type has.
func (h *Handler) GetRecordCounts(c *gin.Context) {
	counts, err := h.db.CountByType()
	if err != nil {
		h.logger.WithError(err).Error("Failed to count records")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count records"})
		return
	}
	c.JSON(http.StatusOK, counts)
}

func (h *Handler) loadArtifact(c *gin.Context, propertyType string) (*artifacts.ModelArtifact, error) {
	if !models.ValidPropertyType(propertyType) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown property type: " + propertyType})
		return nil, valuation.ErrUnknownPropertyType
	}

	art, err := h.store.LoadModel(propertyType)
	if err != nil {
		if errors.Is(err, artifacts.ErrArtifactNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no trained model for " + propertyType})
			return nil, err
		}
		h.logger.WithError(err).WithField("property_type", propertyType).Error("Failed to load artifact")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load model"})
		return nil, err
	}
	return art, nil
}
