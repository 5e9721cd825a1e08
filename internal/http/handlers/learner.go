package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/http/response"
	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/learner/knowledge"
	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/services"
)

const defaultAttemptsPerDay = 3

type LearnerHandler struct {
	learners services.LearnerModelService
}

func NewLearnerHandler(learners services.LearnerModelService) *LearnerHandler {
	return &LearnerHandler{learners: learners}
}

// answersRequest accepts either one answer inline or a batch under "answers".
type answersRequest struct {
	knowledge.Response
	Answers []knowledge.Response `json:"answers"`
}

// POST /api/learners/:id/answers
func (h *LearnerHandler) RecordAnswers(c *gin.Context) {
	id, err := learnerID(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	var req answersRequest
	if err := decodeJSON(c, &req); err != nil {
		response.RespondErr(c, err)
		return
	}
	if len(req.Answers) == 0 {
		res, err := h.learners.RecordAnswer(c.Request.Context(), id, req.Response)
		if err != nil {
			response.RespondErr(c, err)
			return
		}
		response.RespondOK(c, gin.H{"result": res})
		return
	}
	if err := validate.Struct(struct {
		Answers []knowledge.Response `validate:"dive"`
	}{req.Answers}); err != nil {
		response.RespondErr(c, invalid("answers", err))
		return
	}
	res, err := h.learners.RecordAnswers(c.Request.Context(), id, req.Answers)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"results": res})
}

// GET /api/learners/:id/knowledge
func (h *LearnerHandler) Knowledge(c *gin.Context) {
	id, err := learnerID(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	view, err := h.learners.Knowledge(c.Request.Context(), id)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"knowledge": view})
}

// GET /api/learners/:id/knowledge/:skill?attemptsPerDay=N
func (h *LearnerHandler) Skill(c *gin.Context) {
	id, err := learnerID(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	perDay := defaultAttemptsPerDay
	if raw := c.Query("attemptsPerDay"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			response.RespondErr(c, invalid("attemptsPerDay", err))
			return
		}
		perDay = n
	}
	d, err := h.learners.SkillDetail(c.Request.Context(), id, c.Param("skill"), perDay)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"skill": d})
}

// POST /api/learners/:id/knowledge/:skill/reset
func (h *LearnerHandler) ResetSkill(c *gin.Context) {
	id, err := learnerID(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	skill := c.Param("skill")
	if err := h.learners.ResetSkill(c.Request.Context(), id, skill); err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"skillId": skill, "reset": true})
}

type initSkillsRequest struct {
	Skills map[string]*knowledge.SkillParams `json:"skills" validate:"required,min=1"`
}

// POST /api/learners/:id/skills
func (h *LearnerHandler) InitializeSkills(c *gin.Context) {
	id, err := learnerID(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	var req initSkillsRequest
	if err := bindJSON(c, &req); err != nil {
		response.RespondErr(c, err)
		return
	}
	for skill, params := range req.Skills {
		if params == nil {
			continue
		}
		if err := validate.Struct(params); err != nil {
			response.RespondErr(c, invalid("skill "+skill, err))
			return
		}
	}
	states, err := h.learners.InitializeSkills(c.Request.Context(), id, req.Skills)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"skills": states})
}

// POST /api/learners/:id/actions/select
func (h *LearnerHandler) SelectAction(c *gin.Context) {
	id, err := learnerID(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	var req services.ActionRequest
	if err := bindJSON(c, &req); err != nil {
		response.RespondErr(c, err)
		return
	}
	sel, err := h.learners.NextAction(c.Request.Context(), id, req)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"selection": sel})
}

// POST /api/learners/:id/actions/observe
func (h *LearnerHandler) ObserveOutcome(c *gin.Context) {
	id, err := learnerID(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	var req services.OutcomeRequest
	if err := bindJSON(c, &req); err != nil {
		response.RespondErr(c, err)
		return
	}
	obs, err := h.learners.ObserveOutcome(c.Request.Context(), id, req)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"observation": obs})
}

// GET /api/learners/:id/policies
func (h *LearnerHandler) Policies(c *gin.Context) {
	id, err := learnerID(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	perf, err := h.learners.PolicyPerformance(c.Request.Context(), id)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"policies": perf})
}

// GET /api/learners/:id/policies/:policy/trajectory
func (h *LearnerHandler) Trajectory(c *gin.Context) {
	id, err := learnerID(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	tr, err := h.learners.Trajectory(c.Request.Context(), id, c.Param("policy"))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"trajectory": tr})
}

// POST /api/learners/:id/forecast
func (h *LearnerHandler) Forecast(c *gin.Context) {
	id, err := learnerID(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	var sig services.ProfileSignals
	if err := bindJSON(c, &sig); err != nil {
		response.RespondErr(c, err)
		return
	}
	p, err := h.learners.Forecast(c.Request.Context(), id, sig)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"prediction": p})
}

// POST /api/learners/:id/forecast/:skill
func (h *LearnerHandler) ForecastSkill(c *gin.Context) {
	id, err := learnerID(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	var sig services.ProfileSignals
	if err := bindJSON(c, &sig); err != nil {
		response.RespondErr(c, err)
		return
	}
	p, err := h.learners.ForecastSkill(c.Request.Context(), id, c.Param("skill"), sig)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"prediction": p})
}

// GET /api/learners/:id/snapshot
func (h *LearnerHandler) ExportSnapshot(c *gin.Context) {
	id, err := learnerID(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	snap, err := h.learners.Export(c.Request.Context(), id)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"snapshot": snap})
}

// PUT /api/learners/:id/snapshot
func (h *LearnerHandler) ImportSnapshot(c *gin.Context) {
	id, err := learnerID(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	var snap services.LearnerSnapshot
	if err := bindJSON(c, &snap); err != nil {
		response.RespondErr(c, err)
		return
	}
	if err := h.learners.Import(c.Request.Context(), id, snap); err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"imported": true})
}

// POST /api/learners/:id/checkpoint
func (h *LearnerHandler) Checkpoint(c *gin.Context) {
	id, err := learnerID(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	v, err := h.learners.Checkpoint(c.Request.Context(), id)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"version": v})
}

// GET /api/learners/:id/snapshots?limit=N
func (h *LearnerHandler) History(c *gin.Context) {
	id, err := learnerID(c)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			response.RespondErr(c, invalid("limit", err))
			return
		}
		limit = n
	}
	versions, err := h.learners.History(c.Request.Context(), id, limit)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"versions": versions})
}
