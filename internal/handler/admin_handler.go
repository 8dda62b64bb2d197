package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/khidma/service-settlement/internal/application"
	"github.com/khidma/service-settlement/pkg/auth"
	"github.com/khidma/service-settlement/pkg/middleware"
	"github.com/khidma/service-settlement/pkg/response"
)

// AdminHandler handles back-office requests: withdrawal review, provider
// commission settings, ledger audits and manual sweeps.
type AdminHandler struct {
	settlement *application.SettlementService
	payouts    *application.PayoutService
	wallet     *application.WalletService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(settlement *application.SettlementService, payouts *application.PayoutService, wallet *application.WalletService) *AdminHandler {
	return &AdminHandler{settlement: settlement, payouts: payouts, wallet: wallet}
}

// RegisterRoutes registers admin routes.
func (h *AdminHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	admin := r.Group("/admin")
	admin.Use(middleware.AuthMiddleware(jwtManager), middleware.RequireRole(auth.RoleAdmin))
	{
		admin.POST("/withdrawals/:id/review", h.ReviewWithdrawal)
		admin.GET("/providers/:id/profile", h.GetProviderProfile)
		admin.PUT("/providers/:id/profile", h.UpdateProviderProfile)
		admin.GET("/providers/:id/balance", h.GetProviderBalance)
		admin.GET("/ledger/:id/verify", h.VerifyLedger)
		admin.POST("/bookings/expire", h.ExpireOverdueBookings)
	}
}

// ReviewWithdrawal handles POST /api/v1/admin/withdrawals/:id/review.
func (h *AdminHandler) ReviewWithdrawal(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id", "withdrawal ID")
	if !ok {
		return
	}

	var req application.ReviewWithdrawalInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.payouts.ReviewWithdrawal(c.Request.Context(), actor, id, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// GetProviderProfile handles GET /api/v1/admin/providers/:id/profile.
func (h *AdminHandler) GetProviderProfile(c *gin.Context) {
	id, ok := paramID(c, "id", "provider ID")
	if !ok {
		return
	}

	result, err := h.payouts.GetProviderProfile(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// UpdateProviderProfile handles PUT /api/v1/admin/providers/:id/profile.
func (h *AdminHandler) UpdateProviderProfile(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id", "provider ID")
	if !ok {
		return
	}

	var req application.ProviderProfileInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.payouts.UpsertProviderProfile(c.Request.Context(), actor, id, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// GetProviderBalance handles GET /api/v1/admin/providers/:id/balance.
func (h *AdminHandler) GetProviderBalance(c *gin.Context) {
	id, ok := paramID(c, "id", "provider ID")
	if !ok {
		return
	}

	result, err := h.payouts.GetPayableBalance(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// VerifyLedger handles GET /api/v1/admin/ledger/:id/verify?account=.
func (h *AdminHandler) VerifyLedger(c *gin.Context) {
	id, ok := paramID(c, "id", "owner ID")
	if !ok {
		return
	}

	result, err := h.wallet.VerifyLedger(c.Request.Context(), id, c.Query("account"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// ExpireOverdueBookings handles POST /api/v1/admin/bookings/expire. It runs
// the payment deadline sweep immediately.
func (h *AdminHandler) ExpireOverdueBookings(c *gin.Context) {
	n, err := h.settlement.ExpireOverdueBookings(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, gin.H{"expired": n})
}
