package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/seatwise/seatwise/internal/cart"
	"github.com/seatwise/seatwise/internal/dto"
	"github.com/seatwise/seatwise/internal/response"
	"github.com/seatwise/seatwise/internal/telemetry"
)

// CartHandler handles cart HTTP requests
type CartHandler struct {
	manager *cart.Manager
}

// NewCartHandler creates a new cart handler
func NewCartHandler(manager *cart.Manager) *CartHandler {
	return &CartHandler{manager: manager}
}

// Create handles POST /carts
func (h *CartHandler) Create(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.cart.create")
	defer span.End()

	var req dto.CreateCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	agg, err := h.manager.GetOrCreate(ctx, c.GetString("user_id"), req.EventID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Created(c, agg)
}

// Get handles GET /carts/event/:event_id
func (h *CartHandler) Get(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.cart.get")
	defer span.End()

	agg, err := h.manager.Get(ctx, c.GetString("user_id"), c.Param("event_id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, agg)
}

// AddItem handles POST /carts/:cart_id/items
func (h *CartHandler) AddItem(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.cart.add_item")
	defer span.End()

	var req dto.AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	agg, err := h.manager.AddItem(ctx, c.GetString("user_id"), cart.AddItemParams{
		CartID:     c.Param("cart_id"),
		CategoryID: req.CategoryID,
		SeatIDs:    req.SeatIDs,
		Quantity:   req.Quantity,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, agg)
}

// UpdateItem handles PATCH /carts/:cart_id/items/:item_id
func (h *CartHandler) UpdateItem(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.cart.update_item")
	defer span.End()

	var req dto.UpdateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	agg, err := h.manager.UpdateItemQuantity(ctx,
		c.GetString("user_id"), c.Param("cart_id"), c.Param("item_id"), req.Quantity)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, agg)
}

// RemoveItem handles DELETE /carts/:cart_id/items/:item_id
func (h *CartHandler) RemoveItem(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.cart.remove_item")
	defer span.End()

	agg, err := h.manager.RemoveItem(ctx,
		c.GetString("user_id"), c.Param("cart_id"), c.Param("item_id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, agg)
}

// Validate handles POST /carts/:cart_id/validate
func (h *CartHandler) Validate(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.cart.validate")
	defer span.End()

	result, agg, err := h.manager.Validate(ctx, c.Param("cart_id"))
	if err != nil {
		handleError(c, err)
		return
	}
	if agg.Cart.UserID != c.GetString("user_id") {
		response.NotFound(c, "cart not found")
		return
	}
	response.Success(c, gin.H{"validation": result, "cart": agg})
}

// Abandon handles DELETE /carts/:cart_id
func (h *CartHandler) Abandon(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.cart.abandon")
	defer span.End()

	if err := h.manager.Abandon(ctx, c.GetString("user_id"), c.Param("cart_id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"abandoned": true})
}
