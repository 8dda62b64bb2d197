package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/khidma/service-settlement/internal/application"
	"github.com/khidma/service-settlement/pkg/auth"
	"github.com/khidma/service-settlement/pkg/middleware"
	"github.com/khidma/service-settlement/pkg/response"
)

// RejectBookingRequest carries the provider's optional reason.
type RejectBookingRequest struct {
	Note string `json:"note" binding:"max=500"`
}

// BookingHandler handles HTTP requests for the booking lifecycle.
type BookingHandler struct {
	service *application.SettlementService
}

// NewBookingHandler creates a new BookingHandler.
func NewBookingHandler(service *application.SettlementService) *BookingHandler {
	return &BookingHandler{service: service}
}

// RegisterRoutes registers all booking routes on the given router group.
func (h *BookingHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	providerOrAdmin := middleware.RequireRole(auth.RoleProvider, auth.RoleAdmin)

	bookings := r.Group("/bookings")
	bookings.Use(middleware.AuthMiddleware(jwtManager))
	{
		bookings.POST("", middleware.RequireRole(auth.RoleClient), h.CreateBooking)
		bookings.GET("", h.ListBookings)
		bookings.GET("/:id", h.GetBooking)
		bookings.POST("/:id/pay", middleware.RequireRole(auth.RoleClient), h.PayBooking)
		bookings.POST("/:id/accept", providerOrAdmin, h.AcceptBooking)
		bookings.POST("/:id/reject", providerOrAdmin, h.RejectBooking)
		bookings.POST("/:id/cancel", middleware.RequireRole(auth.RoleClient, auth.RoleAdmin), h.CancelBooking)
		bookings.POST("/:id/complete", providerOrAdmin, h.CompleteBooking)
	}
}

// CreateBooking handles POST /api/v1/bookings
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var req application.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	dto, err := h.service.CreateBooking(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto)
}

// GetBooking handles GET /api/v1/bookings/:id
func (h *BookingHandler) GetBooking(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id", "booking ID")
	if !ok {
		return
	}

	dto, err := h.service.GetBooking(c.Request.Context(), actor, id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto)
}

// ListBookings handles GET /api/v1/bookings?status=
func (h *BookingHandler) ListBookings(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	page, limit := pagination(c)

	result, err := h.service.ListBookings(c.Request.Context(), actor, c.Query("status"), page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	paginated(c, result)
}

// PayBooking handles POST /api/v1/bookings/:id/pay
func (h *BookingHandler) PayBooking(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id", "booking ID")
	if !ok {
		return
	}

	var req application.PayBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	dto, err := h.service.PayBooking(c.Request.Context(), actor, id, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto)
}

// AcceptBooking handles POST /api/v1/bookings/:id/accept
func (h *BookingHandler) AcceptBooking(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id", "booking ID")
	if !ok {
		return
	}

	dto, err := h.service.AcceptBooking(c.Request.Context(), actor, id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto)
}

// RejectBooking handles POST /api/v1/bookings/:id/reject
func (h *BookingHandler) RejectBooking(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id", "booking ID")
	if !ok {
		return
	}

	var req RejectBookingRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	dto, err := h.service.RejectBooking(c.Request.Context(), actor, id, req.Note)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto)
}

// CancelBooking handles POST /api/v1/bookings/:id/cancel
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id", "booking ID")
	if !ok {
		return
	}

	var req application.CancelBookingRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	dto, err := h.service.CancelBooking(c.Request.Context(), actor, id, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto)
}

// CompleteBooking handles POST /api/v1/bookings/:id/complete
func (h *BookingHandler) CompleteBooking(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id", "booking ID")
	if !ok {
		return
	}

	dto, err := h.service.CompleteBooking(c.Request.Context(), actor, id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, dto)
}
