package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/khidma/service-settlement/internal/application"
	"github.com/khidma/service-settlement/pkg/auth"
	"github.com/khidma/service-settlement/pkg/middleware"
	"github.com/khidma/service-settlement/pkg/response"
)

// PromoHandler handles HTTP requests for promo code operations.
type PromoHandler struct {
	service *application.PromoService
	limiter *middleware.RateLimiter
}

// NewPromoHandler creates a new PromoHandler. limiter bounds promo validation
// per client and may be nil.
func NewPromoHandler(service *application.PromoService, limiter *middleware.RateLimiter) *PromoHandler {
	return &PromoHandler{service: service, limiter: limiter}
}

// RegisterRoutes registers all promo routes.
func (h *PromoHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	owners := middleware.RequireRole(auth.RoleProvider, auth.RoleAdmin)

	promos := r.Group("/promos")
	promos.Use(middleware.AuthMiddleware(jwtManager))
	{
		validate := []gin.HandlerFunc{middleware.RequireRole(auth.RoleClient)}
		if h.limiter != nil {
			validate = append(validate, h.limiter.Middleware())
		}
		promos.POST("/validate", append(validate, h.ValidatePromo)...)

		promos.POST("", owners, h.CreatePromo)
		promos.GET("", owners, h.ListPromos)
		promos.GET("/:id", owners, h.GetPromo)
		promos.PATCH("/:id", owners, h.UpdatePromo)
	}
}

// CreatePromo handles POST /api/v1/promos.
func (h *PromoHandler) CreatePromo(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var req application.CreatePromoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.CreatePromo(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, result)
}

// UpdatePromo handles PATCH /api/v1/promos/:id.
func (h *PromoHandler) UpdatePromo(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id", "promo ID")
	if !ok {
		return
	}

	var req application.UpdatePromoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.UpdatePromo(c.Request.Context(), actor, id, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// GetPromo handles GET /api/v1/promos/:id. Providers only see their own codes.
func (h *PromoHandler) GetPromo(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id", "promo ID")
	if !ok {
		return
	}

	result, err := h.service.GetPromo(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !actor.IsAdmin() && (result.OwnerID == nil || *result.OwnerID != actor.UserID) {
		response.Forbidden(c, "you can only view your own promo codes")
		return
	}

	response.Success(c, result)
}

// ListPromos handles GET /api/v1/promos?active=true.
func (h *PromoHandler) ListPromos(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	page, limit := pagination(c)
	activeOnly := c.Query("active") == "true"

	result, err := h.service.ListPromos(c.Request.Context(), actor, activeOnly, page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	paginated(c, result)
}

// ValidatePromo handles POST /api/v1/promos/validate.
func (h *PromoHandler) ValidatePromo(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var req application.ValidatePromoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.ValidatePromo(c.Request.Context(), actor.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}
