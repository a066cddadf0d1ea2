package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/seatwise/seatwise/internal/booking"
	"github.com/seatwise/seatwise/internal/dto"
	"github.com/seatwise/seatwise/internal/response"
	"github.com/seatwise/seatwise/internal/telemetry"
)

// BookingHandler handles booking HTTP requests
type BookingHandler struct {
	finalizer *booking.Finalizer
}

// NewBookingHandler creates a new booking handler
func NewBookingHandler(finalizer *booking.Finalizer) *BookingHandler {
	return &BookingHandler{finalizer: finalizer}
}

// Checkout handles POST /bookings
func (h *BookingHandler) Checkout(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.checkout")
	defer span.End()

	var req dto.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if req.Contact.Name == "" || req.Contact.Email == "" {
		response.BadRequest(c, "contact name and email are required")
		return
	}

	agg, err := h.finalizer.Finalize(ctx, c.GetString("user_id"), req.CartID, req.Contact)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Created(c, agg)
}

// Get handles GET /bookings/:id
func (h *BookingHandler) Get(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.get")
	defer span.End()

	agg, err := h.finalizer.Get(ctx, c.GetString("user_id"), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, agg)
}

// List handles GET /bookings
func (h *BookingHandler) List(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.list")
	defer span.End()

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	bookings, err := h.finalizer.List(ctx, c.GetString("user_id"), limit, offset)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, bookings)
}

// Cancel handles POST /bookings/:id/cancel
func (h *BookingHandler) Cancel(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.booking.cancel")
	defer span.End()

	var req dto.CancelBookingRequest
	_ = c.ShouldBindJSON(&req)

	if err := h.finalizer.Cancel(ctx, c.GetString("user_id"), c.Param("id"), req.Reason); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"cancelled": true})
}
