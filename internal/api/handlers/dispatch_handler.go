package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/foundry/services/scheduling/internal/models"
	"example.com/foundry/services/scheduling/internal/services"
	"example.com/foundry/services/scheduling/internal/tracing"
)

// DispatchHandler handles dispatch program and pin HTTP requests
type DispatchHandler struct {
	dispatchService *services.DispatchService
	tracer          tracing.Tracer
}

// NewDispatchHandler creates a new dispatch handler
func NewDispatchHandler(dispatchService *services.DispatchService, tracer tracing.Tracer) *DispatchHandler {
	return &DispatchHandler{
		dispatchService: dispatchService,
		tracer:          tracer,
	}
}

// RegisterRoutes registers the dispatch routes
func (h *DispatchHandler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		v1.POST("/processes/:process_id/program", h.HandleGenerateProgram)
		v1.GET("/processes/:process_id/program", h.HandleGetProgram)
		v1.GET("/processes/:process_id/pins", h.HandleListPins)
		v1.POST("/processes/:process_id/pins", h.HandleCreatePin)
		v1.DELETE("/processes/:process_id/pins/:pin_id", h.HandleDeletePin)
		v1.PUT("/priority-weights", h.HandleUpdateWeights)
	}
}

// CreatePinRequest represents an incoming pin creation request
type CreatePinRequest struct {
	Pedido   string `json:"pedido" binding:"required"`
	Posicion string `json:"posicion" binding:"required"`
	IsTest   bool   `json:"is_test"`
	SplitID  int    `json:"split_id"`
	LineID   uint   `json:"line_id" binding:"required"`
	Quantity int    `json:"quantity"`
}

// UpdateWeightsRequest represents an incoming priority weight update
type UpdateWeightsRequest struct {
	Test   int `json:"test" binding:"required"`
	Manual int `json:"manual" binding:"required"`
	Normal int `json:"normal" binding:"required"`
}

// HandleGenerateProgram runs a full dispatch pass for a process
func (h *DispatchHandler) HandleGenerateProgram(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-generate-program")
	defer h.tracer.EndTransaction(txn)

	processID, ok := h.processID(c)
	if !ok {
		return
	}
	h.tracer.AddAttribute(txn, "process_id", processID)

	if err := h.dispatchService.GenerateProgram(c, processID); err != nil {
		if errors.Is(err, services.ErrNoLinesConfigured) {
			c.JSON(http.StatusPreconditionFailed, gin.H{"error": err.Error()})
			return
		}
		log.Error().Err(err).Uint("process_id", processID).Msg("Failed to generate program")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		h.tracer.RecordError(txn, err)
		return
	}

	view, err := h.dispatchService.GetProgram(c, processID)
	if err != nil {
		log.Error().Err(err).Uint("process_id", processID).Msg("Failed to load generated program")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		h.tracer.RecordError(txn, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// HandleGetProgram returns the persisted program for a process
func (h *DispatchHandler) HandleGetProgram(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-get-program")
	defer h.tracer.EndTransaction(txn)

	processID, ok := h.processID(c)
	if !ok {
		return
	}

	view, err := h.dispatchService.GetProgram(c, processID)
	if err != nil {
		log.Error().Err(err).Uint("process_id", processID).Msg("Failed to load program")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		h.tracer.RecordError(txn, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// HandleListPins returns the live pins for a process
func (h *DispatchHandler) HandleListPins(c *gin.Context) {
	processID, ok := h.processID(c)
	if !ok {
		return
	}

	pins, err := h.dispatchService.ListPins(c, processID)
	if err != nil {
		log.Error().Err(err).Uint("process_id", processID).Msg("Failed to list pins")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"pins": pins})
}

// HandleCreatePin pins an order-position to a line
func (h *DispatchHandler) HandleCreatePin(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-create-pin")
	defer h.tracer.EndTransaction(txn)

	processID, ok := h.processID(c)
	if !ok {
		return
	}

	var req CreatePinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Error().Err(err).Msg("Invalid request body")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		h.tracer.RecordError(txn, err)
		return
	}

	pin := &models.Pin{
		ProcessID: processID,
		Pedido:    req.Pedido,
		Posicion:  req.Posicion,
		IsTest:    req.IsTest,
		SplitID:   req.SplitID,
		LineID:    req.LineID,
		Quantity:  req.Quantity,
	}

	if err := h.dispatchService.CreatePin(c, pin); err != nil {
		if errors.Is(err, services.ErrUnknownLine) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if errors.Is(err, services.ErrNoLinesConfigured) {
			c.JSON(http.StatusPreconditionFailed, gin.H{"error": err.Error()})
			return
		}
		log.Error().Err(err).Uint("process_id", processID).Msg("Failed to create pin")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		h.tracer.RecordError(txn, err)
		return
	}

	c.JSON(http.StatusCreated, pin)
}

// HandleDeletePin removes a pin and refreshes the stored program
func (h *DispatchHandler) HandleDeletePin(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-delete-pin")
	defer h.tracer.EndTransaction(txn)

	processID, ok := h.processID(c)
	if !ok {
		return
	}

	pinID, err := strconv.ParseUint(c.Param("pin_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid pin id"})
		return
	}

	if err := h.dispatchService.DeletePin(c, processID, uint(pinID)); err != nil {
		if errors.Is(err, services.ErrPinNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		log.Error().Err(err).Uint("process_id", processID).Msg("Failed to delete pin")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		h.tracer.RecordError(txn, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// HandleUpdateWeights updates the priority class weights
func (h *DispatchHandler) HandleUpdateWeights(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-update-weights")
	defer h.tracer.EndTransaction(txn)

	var req UpdateWeightsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Error().Err(err).Msg("Invalid request body")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.dispatchService.UpdatePriorityWeights(c, req.Test, req.Manual, req.Normal); err != nil {
		if errors.Is(err, services.ErrInvalidWeights) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.Error().Err(err).Msg("Failed to update priority weights")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		h.tracer.RecordError(txn, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *DispatchHandler) processID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("process_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid process id"})
		return 0, false
	}
	return uint(id), true
}
