package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/khidma/service-settlement/internal/application"
	"github.com/khidma/service-settlement/pkg/auth"
	"github.com/khidma/service-settlement/pkg/middleware"
	"github.com/khidma/service-settlement/pkg/response"
)

// PayoutHandler handles provider balance, withdrawal and profile requests.
type PayoutHandler struct {
	service *application.PayoutService
}

// NewPayoutHandler creates a new PayoutHandler.
func NewPayoutHandler(service *application.PayoutService) *PayoutHandler {
	return &PayoutHandler{service: service}
}

// RegisterRoutes registers provider payout routes.
func (h *PayoutHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	providerOnly := middleware.RequireRole(auth.RoleProvider)

	payouts := r.Group("/payouts")
	payouts.Use(middleware.AuthMiddleware(jwtManager))
	{
		payouts.GET("/balance", providerOnly, h.GetBalance)
		payouts.POST("/withdrawals", providerOnly, h.RequestWithdrawal)
		payouts.GET("/withdrawals", middleware.RequireRole(auth.RoleProvider, auth.RoleAdmin), h.ListWithdrawals)
		payouts.GET("/withdrawals/:id", middleware.RequireRole(auth.RoleProvider, auth.RoleAdmin), h.GetWithdrawal)
		payouts.GET("/profile", providerOnly, h.GetProfile)
		payouts.PUT("/profile", providerOnly, h.UpdateProfile)
	}
}

// GetBalance handles GET /api/v1/payouts/balance.
func (h *PayoutHandler) GetBalance(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	result, err := h.service.GetPayableBalance(c.Request.Context(), actor.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// RequestWithdrawal handles POST /api/v1/payouts/withdrawals.
func (h *PayoutHandler) RequestWithdrawal(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var req application.WithdrawalInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.RequestWithdrawal(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, result)
}

// ListWithdrawals handles GET /api/v1/payouts/withdrawals?status=.
func (h *PayoutHandler) ListWithdrawals(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	page, limit := pagination(c)

	result, err := h.service.ListWithdrawals(c.Request.Context(), actor, c.Query("status"), page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	paginated(c, result)
}

// GetWithdrawal handles GET /api/v1/payouts/withdrawals/:id.
func (h *PayoutHandler) GetWithdrawal(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id", "withdrawal ID")
	if !ok {
		return
	}

	result, err := h.service.GetWithdrawal(c.Request.Context(), actor, id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// GetProfile handles GET /api/v1/payouts/profile.
func (h *PayoutHandler) GetProfile(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	result, err := h.service.GetProviderProfile(c.Request.Context(), actor.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// UpdateProfile handles PUT /api/v1/payouts/profile. Providers may only change
// their bank details.
func (h *PayoutHandler) UpdateProfile(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var req application.ProviderProfileInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.UpsertProviderProfile(c.Request.Context(), actor, actor.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}
