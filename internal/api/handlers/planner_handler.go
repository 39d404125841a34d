package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/foundry/services/scheduling/internal/services"
	"example.com/foundry/services/scheduling/internal/tracing"
)

// PlannerHandler handles planner HTTP requests
type PlannerHandler struct {
	plannerService *services.PlannerService
	tracer         tracing.Tracer
}

// NewPlannerHandler creates a new planner handler
func NewPlannerHandler(plannerService *services.PlannerService, tracer tracing.Tracer) *PlannerHandler {
	return &PlannerHandler{
		plannerService: plannerService,
		tracer:         tracer,
	}
}

// RegisterRoutes registers the planner routes
func (h *PlannerHandler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		v1.POST("/scenarios/:scenario_id/plan", h.HandleRunPlan)
		v1.GET("/scenarios/:scenario_id/plan", h.HandleGetPlan)
		v1.GET("/scenarios/:scenario_id/ledger", h.HandleGetLedger)
	}
}

// HandleRunPlan executes a planner pass for a scenario
func (h *PlannerHandler) HandleRunPlan(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-run-plan")
	defer h.tracer.EndTransaction(txn)

	scenarioID, ok := h.scenarioID(c)
	if !ok {
		return
	}
	h.tracer.AddAttribute(txn, "scenario_id", scenarioID.String())

	if err := h.plannerService.RunPlan(c, scenarioID); err != nil {
		if errors.Is(err, services.ErrNoOrders) {
			c.JSON(http.StatusPreconditionFailed, gin.H{"error": err.Error()})
			return
		}
		log.Error().Err(err).Str("scenario_id", scenarioID.String()).Msg("Failed to run plan")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		h.tracer.RecordError(txn, err)
		return
	}

	view, err := h.plannerService.GetPlan(c, scenarioID)
	if err != nil {
		log.Error().Err(err).Str("scenario_id", scenarioID.String()).Msg("Failed to load plan")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		h.tracer.RecordError(txn, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// HandleGetPlan returns the latest plan for a scenario
func (h *PlannerHandler) HandleGetPlan(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-get-plan")
	defer h.tracer.EndTransaction(txn)

	scenarioID, ok := h.scenarioID(c)
	if !ok {
		return
	}

	view, err := h.plannerService.GetPlan(c, scenarioID)
	if err != nil {
		log.Error().Err(err).Str("scenario_id", scenarioID.String()).Msg("Failed to load plan")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		h.tracer.RecordError(txn, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// HandleGetLedger returns the persisted capacity ledger for a scenario
func (h *PlannerHandler) HandleGetLedger(c *gin.Context) {
	scenarioID, ok := h.scenarioID(c)
	if !ok {
		return
	}

	records, err := h.plannerService.GetLedger(c, scenarioID)
	if err != nil {
		log.Error().Err(err).Str("scenario_id", scenarioID.String()).Msg("Failed to load ledger")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"scenario_id": scenarioID, "days": records})
}

func (h *PlannerHandler) scenarioID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("scenario_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid scenario id"})
		return uuid.Nil, false
	}
	return id, true
}
