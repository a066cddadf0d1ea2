package handler

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"

	"github.com/seatwise/seatwise/internal/dto"
	"github.com/seatwise/seatwise/internal/queue"
	"github.com/seatwise/seatwise/internal/response"
	"github.com/seatwise/seatwise/internal/telemetry"
)

// QueueHandler handles queue HTTP requests
type QueueHandler struct {
	controller *queue.Controller
}

// NewQueueHandler creates a new queue handler
func NewQueueHandler(controller *queue.Controller) *QueueHandler {
	return &QueueHandler{controller: controller}
}

// Join handles POST /queue/join
func (h *QueueHandler) Join(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.queue.join")
	defer span.End()

	userID := c.GetString("user_id")

	var req dto.JoinQueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("event_id", req.EventID),
	)

	pos, err := h.controller.Join(ctx, req.EventID, userID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, pos)
}

// GetPosition handles GET /queue/:event_id/position
func (h *QueueHandler) GetPosition(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.queue.position")
	defer span.End()

	pos, err := h.controller.GetPosition(ctx, c.Param("event_id"), c.GetString("user_id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, pos)
}

// GetStatus handles GET /queue/:event_id/status
func (h *QueueHandler) GetStatus(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.queue.status")
	defer span.End()

	status, err := h.controller.GetStatus(ctx, c.Param("event_id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, status)
}

// Leave handles DELETE /queue/:event_id
func (h *QueueHandler) Leave(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.queue.leave")
	defer span.End()

	if err := h.controller.Leave(ctx, c.Param("event_id"), c.GetString("user_id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"left": true})
}
