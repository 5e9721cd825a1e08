package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/http/response"
	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/learner/forecast"
	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/services"
)

type ForecastHandler struct {
	learners services.LearnerModelService
}

func NewForecastHandler(learners services.LearnerModelService) *ForecastHandler {
	return &ForecastHandler{learners: learners}
}

type batchForecastRequest struct {
	Features []forecast.Features `json:"features" validate:"required,min=1,max=1000"`
}

type trainingRequest struct {
	Features    forecast.Features `json:"features"`
	ActualScore *float64          `json:"actualScore" validate:"required"`
}

// POST /api/forecast/batch
func (h *ForecastHandler) Batch(c *gin.Context) {
	var req batchForecastRequest
	if err := bindJSON(c, &req); err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"predictions": h.learners.BatchForecast(c.Request.Context(), req.Features)})
}

// POST /api/forecast/training
func (h *ForecastHandler) AddTrainingExample(c *gin.Context) {
	var req trainingRequest
	if err := bindJSON(c, &req); err != nil {
		response.RespondErr(c, err)
		return
	}
	n, err := h.learners.AddTrainingExample(c.Request.Context(), req.Features, *req.ActualScore)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"trainingExamples": n})
}

// GET /api/forecast/metrics
func (h *ForecastHandler) Metrics(c *gin.Context) {
	response.RespondOK(c, gin.H{"metrics": h.learners.ModelMetrics()})
}
