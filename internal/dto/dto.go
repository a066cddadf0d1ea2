// Package dto holds the HTTP request and response shapes.
package dto

import "github.com/seatwise/seatwise/internal/domain"

// JoinQueueRequest is the body for POST /queue/join
type JoinQueueRequest struct {
	EventID string `json:"event_id" binding:"required"`
}

// CreateCartRequest is the body for POST /carts
type CreateCartRequest struct {
	EventID string `json:"event_id" binding:"required"`
}

// AddItemRequest is the body for POST /carts/:cart_id/items. SeatIDs selects
// explicit seats; leaving it empty makes this a general-admission line and
// Quantity applies.
type AddItemRequest struct {
	CategoryID string   `json:"category_id" binding:"required"`
	SeatIDs    []string `json:"seat_ids"`
	Quantity   int      `json:"quantity"`
}

// UpdateItemRequest is the body for PATCH /carts/:cart_id/items/:item_id
type UpdateItemRequest struct {
	Quantity int `json:"quantity" binding:"required,min=1"`
}

// CheckoutRequest is the body for POST /bookings
type CheckoutRequest struct {
	CartID  string             `json:"cart_id" binding:"required"`
	Contact domain.ContactInfo `json:"contact" binding:"required"`
}

// CancelBookingRequest is the body for POST /bookings/:id/cancel
type CancelBookingRequest struct {
	Reason string `json:"reason"`
}
