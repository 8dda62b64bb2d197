package response

import (
	"errors"
	"math"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/khidma/service-settlement/pkg/domain"
)

// Envelope is the JSON body of every API response.
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
}

// Meta carries pagination details.
type Meta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// Success writes a 200 response.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Envelope{Success: true, Data: data})
}

// Created writes a 201 response.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Envelope{Success: true, Data: data})
}

// Paginated writes a 200 response with pagination metadata.
func Paginated(c *gin.Context, data interface{}, total int64, page, limit int) {
	pages := 0
	if limit > 0 {
		pages = int(math.Ceil(float64(total) / float64(limit)))
	}
	c.JSON(http.StatusOK, Envelope{
		Success: true,
		Data:    data,
		Meta:    &Meta{Page: page, Limit: limit, Total: total, TotalPages: pages},
	})
}

// BadRequest writes a 400 response.
func BadRequest(c *gin.Context, msg string) {
	abort(c, http.StatusBadRequest, "VALIDATION_FAILED", msg, "")
}

// Unauthorized writes a 401 response.
func Unauthorized(c *gin.Context, msg string) {
	abort(c, http.StatusUnauthorized, "UNAUTHORIZED", msg, "")
}

// Forbidden writes a 403 response.
func Forbidden(c *gin.Context, msg string) {
	abort(c, http.StatusForbidden, "FORBIDDEN", msg, "")
}

// Error maps a domain error onto an HTTP status and writes it.
func Error(c *gin.Context, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	// Illegal transitions are programming or race errors; the caller only
	// needs to know the request conflicted.
	if errors.Is(err, domain.ErrInvalidStateTransition) || errors.Is(err, domain.ErrPersistenceConflict) {
		msg = "the resource was changed by another request"
		var de *domain.DomainError
		if errors.As(err, &de) && de.Message != "" {
			msg = de.Message
		}
	}
	_ = c.Error(err)
	abort(c, status, code, msg, domain.ReasonOf(err))
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "VALIDATION_FAILED"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "UNAUTHORIZED"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, domain.ErrPromoExhausted):
		return http.StatusUnprocessableEntity, "PROMO_EXHAUSTED"
	case errors.Is(err, domain.ErrPromoExpired):
		return http.StatusUnprocessableEntity, "PROMO_EXPIRED"
	case errors.Is(err, domain.ErrPromoNotApplicable):
		return http.StatusUnprocessableEntity, "PROMO_NOT_APPLICABLE"
	case errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS"
	case errors.Is(err, domain.ErrInsufficientPayableBalance):
		return http.StatusUnprocessableEntity, "INSUFFICIENT_PAYABLE_BALANCE"
	case errors.Is(err, domain.ErrPaymentFailed):
		return http.StatusPaymentRequired, "PAYMENT_FAILED"
	case errors.Is(err, domain.ErrInvalidStateTransition):
		return http.StatusConflict, "INVALID_STATE_TRANSITION"
	case errors.Is(err, domain.ErrPersistenceConflict), errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "CONFLICT"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

func abort(c *gin.Context, status int, code, msg, reason string) {
	c.AbortWithStatusJSON(status, Envelope{
		Success: false,
		Error:   &ErrorBody{Code: code, Message: msg, Reason: reason},
	})
}
