package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/seatwise/seatwise/internal/middleware"
)

// RouterParams bundles everything the router needs
type RouterParams struct {
	Queue     *QueueHandler
	Cart      *CartHandler
	Booking   *BookingHandler
	Health    *HealthHandler
	JWTSecret string
	JWTIssuer string
	Debug     bool
}

// NewRouter builds the gin engine with all routes mounted
func NewRouter(p RouterParams) *gin.Engine {
	if !p.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health/live", p.Health.Live)
	r.GET("/health/ready", p.Health.Ready)

	api := r.Group("/api/v1")
	api.Use(middleware.Auth(p.JWTSecret, p.JWTIssuer))
	{
		api.POST("/queue/join", p.Queue.Join)
		api.GET("/queue/:event_id/position", p.Queue.GetPosition)
		api.GET("/queue/:event_id/status", p.Queue.GetStatus)
		api.DELETE("/queue/:event_id", p.Queue.Leave)

		api.POST("/carts", p.Cart.Create)
		api.GET("/carts/event/:event_id", p.Cart.Get)
		api.DELETE("/carts/:cart_id", p.Cart.Abandon)
		api.POST("/carts/:cart_id/items", p.Cart.AddItem)
		api.PATCH("/carts/:cart_id/items/:item_id", p.Cart.UpdateItem)
		api.DELETE("/carts/:cart_id/items/:item_id", p.Cart.RemoveItem)
		api.POST("/carts/:cart_id/validate", p.Cart.Validate)

		api.POST("/bookings", p.Booking.Checkout)
		api.GET("/bookings", p.Booking.List)
		api.GET("/bookings/:id", p.Booking.Get)
		api.POST("/bookings/:id/cancel", p.Booking.Cancel)
	}

	return r
}
