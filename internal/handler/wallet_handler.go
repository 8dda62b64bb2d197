package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/khidma/service-settlement/internal/application"
	"github.com/khidma/service-settlement/pkg/auth"
	"github.com/khidma/service-settlement/pkg/middleware"
	"github.com/khidma/service-settlement/pkg/response"
)

// WalletHandler serves the caller's own ledger accounts.
type WalletHandler struct {
	service *application.WalletService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(service *application.WalletService) *WalletHandler {
	return &WalletHandler{service: service}
}

// RegisterRoutes registers wallet routes.
func (h *WalletHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	wallet := r.Group("/wallet")
	wallet.Use(middleware.AuthMiddleware(jwtManager))
	{
		wallet.GET("", h.GetBalance)
		wallet.GET("/transactions", h.GetHistory)
		wallet.GET("/verify", h.VerifyLedger)
		wallet.POST("/deposits", middleware.RequireRole(auth.RoleClient), h.Deposit)
	}
}

// GetBalance handles GET /api/v1/wallet.
func (h *WalletHandler) GetBalance(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	result, err := h.service.GetBalance(c.Request.Context(), actor.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// GetHistory handles GET /api/v1/wallet/transactions?account=wallet|payable.
func (h *WalletHandler) GetHistory(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	page, limit := pagination(c)

	result, err := h.service.GetHistory(c.Request.Context(), actor.UserID, c.Query("account"), page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	paginated(c, result)
}

// Deposit handles POST /api/v1/wallet/deposits.
func (h *WalletHandler) Deposit(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var req application.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.Deposit(c.Request.Context(), actor.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, result)
}

// VerifyLedger handles GET /api/v1/wallet/verify?account=.
func (h *WalletHandler) VerifyLedger(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	result, err := h.service.VerifyLedger(c.Request.Context(), actor.UserID, c.Query("account"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}
