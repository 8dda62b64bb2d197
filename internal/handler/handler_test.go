package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/khidma/service-settlement/internal/adapter"
	"github.com/khidma/service-settlement/internal/application"
	"github.com/khidma/service-settlement/internal/config"
	"github.com/khidma/service-settlement/internal/repository/memory"
	"github.com/khidma/service-settlement/pkg/auth"
	"github.com/khidma/service-settlement/pkg/middleware"
	"github.com/khidma/service-settlement/pkg/response"
)

func init() {
	gin.SetMode(gin.TestMode)
	if err := RegisterValidators(); err != nil {
		panic(err)
	}
}

type envelope struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorBody `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

type api struct {
	t      *testing.T
	router *gin.Engine
	jwt    *auth.JWTManager

	client, provider, admin uuid.UUID
}

func newAPI(t *testing.T) *api {
	t.Helper()
	logger := zap.NewNop()
	cfg := config.DefaultSettlementConfig()

	store := memory.NewStore()
	gateway := adapter.NewMockGateway(logger)
	promos := application.NewPromoService(store, logger)
	settlement := application.NewSettlementService(store, promos, gateway, adapter.NopNotifier{}, cfg, logger)
	wallet := application.NewWalletService(store, gateway, adapter.NopNotifier{}, cfg.Currency, logger)
	payouts := application.NewPayoutService(store, adapter.NopNotifier{}, cfg, logger)

	jwt := auth.NewJWTManager("test-secret", time.Hour, time.Hour)
	router := gin.New()
	v1 := router.Group("/api/v1")
	NewPromoHandler(promos, middleware.NewRateLimiter(60, 2, logger)).RegisterRoutes(v1, jwt)
	NewBookingHandler(settlement).RegisterRoutes(v1, jwt)
	NewWalletHandler(wallet).RegisterRoutes(v1, jwt)
	NewPayoutHandler(payouts).RegisterRoutes(v1, jwt)
	NewAdminHandler(settlement, payouts, wallet).RegisterRoutes(v1, jwt)

	return &api{t: t, router: router, jwt: jwt, client: uuid.New(), provider: uuid.New(), admin: uuid.New()}
}

func (a *api) do(method, path string, userID uuid.UUID, role auth.Role, body any) (int, envelope) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, "/api/v1"+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != uuid.Nil {
		token, err := a.jwt.GenerateAccessToken(userID, role)
		require.NoError(a.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func (a *api) asClient(method, path string, body any) (int, envelope) {
	return a.do(method, path, a.client, auth.RoleClient, body)
}

func (a *api) asProvider(method, path string, body any) (int, envelope) {
	return a.do(method, path, a.provider, auth.RoleProvider, body)
}

func (a *api) asAdmin(method, path string, body any) (int, envelope) {
	return a.do(method, path, a.admin, auth.RoleAdmin, body)
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func (a *api) createBooking(price string) application.BookingDTO {
	a.t.Helper()
	code, env := a.asClient(http.MethodPost, "/bookings", gin.H{
		"provider_id": a.provider,
		"items":       []gin.H{{"service_id": "grooming", "price": price, "quantity": 1}},
	})
	require.Equal(a.t, http.StatusCreated, code, env.Error)
	return decode[application.BookingDTO](a.t, env)
}

func TestBookingFlow(t *testing.T) {
	a := newAPI(t)

	code, _ := a.asClient(http.MethodPost, "/wallet/deposits", gin.H{"amount": "500.00", "payment_token": "pm_card_visa"})
	require.Equal(t, http.StatusCreated, code)

	b := a.createBooking("200")
	assert.True(t, decimal.NewFromInt(230).Equal(b.TotalAmount), b.TotalAmount.String())
	assert.Equal(t, "pending", b.Status)

	code, env := a.asClient(http.MethodPost, "/bookings/"+b.ID.String()+"/pay", gin.H{"method": "wallet"})
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.Equal(t, "confirmed", decode[application.BookingDTO](t, env).Status)

	code, env = a.asProvider(http.MethodPost, "/bookings/"+b.ID.String()+"/complete", nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	done := decode[application.BookingDTO](t, env)
	assert.Equal(t, "completed", done.Status)
	assert.True(t, decimal.RequireFromString("34.5").Equal(done.CommissionAmount), done.CommissionAmount.String())

	code, env = a.asProvider(http.MethodGet, "/payouts/balance", nil)
	require.Equal(t, http.StatusOK, code)
	payable := decode[application.PayableBalanceDTO](t, env)
	assert.True(t, decimal.RequireFromString("195.5").Equal(payable.Available), payable.Available.String())

	code, env = a.asClient(http.MethodGet, "/wallet", nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, decimal.NewFromInt(270).Equal(decode[application.WalletBalanceDTO](t, env).Balance))

	code, env = a.asClient(http.MethodGet, "/wallet/transactions?limit=1", nil)
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, env.Meta)
	assert.EqualValues(t, 2, env.Meta.Total)
	assert.Equal(t, 2, env.Meta.TotalPages)
}

func TestPayBooking_InsufficientFunds(t *testing.T) {
	a := newAPI(t)
	b := a.createBooking("100")

	code, env := a.asClient(http.MethodPost, "/bookings/"+b.ID.String()+"/pay", gin.H{"method": "wallet"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INSUFFICIENT_FUNDS", env.Error.Code)
}

func TestCancelBooking_EmptyBody(t *testing.T) {
	a := newAPI(t)
	b := a.createBooking("100")

	code, env := a.asClient(http.MethodPost, "/bookings/"+b.ID.String()+"/cancel", nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.Equal(t, "cancelled", decode[application.BookingDTO](t, env).Status)

	code, env = a.asClient(http.MethodPost, "/bookings/"+b.ID.String()+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "INVALID_STATE_TRANSITION", env.Error.Code)
}

func TestRoutes_AuthAndRoles(t *testing.T) {
	a := newAPI(t)

	tests := []struct {
		name   string
		status int
		call   func() (int, envelope)
	}{
		{"missing token", http.StatusUnauthorized, func() (int, envelope) {
			return a.do(http.MethodGet, "/bookings", uuid.Nil, "", nil)
		}},
		{"provider cannot book", http.StatusForbidden, func() (int, envelope) {
			return a.asProvider(http.MethodPost, "/bookings", gin.H{})
		}},
		{"client cannot review withdrawals", http.StatusForbidden, func() (int, envelope) {
			return a.asClient(http.MethodPost, "/admin/withdrawals/"+uuid.NewString()+"/review", gin.H{"action": "approve"})
		}},
		{"client cannot read payable balance", http.StatusForbidden, func() (int, envelope) {
			return a.asClient(http.MethodGet, "/payouts/balance", nil)
		}},
		{"bad booking id", http.StatusBadRequest, func() (int, envelope) {
			return a.asClient(http.MethodGet, "/bookings/not-a-uuid", nil)
		}},
		{"unknown booking", http.StatusNotFound, func() (int, envelope) {
			return a.asClient(http.MethodGet, "/bookings/"+uuid.NewString(), nil)
		}},
		{"unknown withdrawal", http.StatusNotFound, func() (int, envelope) {
			return a.asAdmin(http.MethodPost, "/admin/withdrawals/"+uuid.NewString()+"/review", gin.H{"action": "approve"})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := tt.call()
			assert.Equal(t, tt.status, code)
			assert.False(t, env.Success)
		})
	}
}

func TestMoneyValidation(t *testing.T) {
	a := newAPI(t)

	tests := []struct {
		amount any
		status int
	}{
		{"100.50", http.StatusCreated},
		{25, http.StatusCreated},
		{"10.005", http.StatusBadRequest},
		{"-5", http.StatusBadRequest},
		{"abc", http.StatusBadRequest},
	}

	for _, tt := range tests {
		code, _ := a.asClient(http.MethodPost, "/wallet/deposits", gin.H{"amount": tt.amount, "payment_token": "pm_card_visa"})
		assert.Equal(t, tt.status, code, "amount %v", tt.amount)
	}
}

func TestValidatePromo_RateLimited(t *testing.T) {
	a := newAPI(t)
	body := gin.H{"code": "NOPE", "order_total": "100"}

	for i := 0; i < 2; i++ {
		code, env := a.asClient(http.MethodPost, "/promos/validate", body)
		require.Equal(t, http.StatusOK, code)
		result := decode[application.PromoValidationDTO](t, env)
		assert.False(t, result.Valid)
		assert.NotEmpty(t, result.Reason)
	}

	code, _ := a.asClient(http.MethodPost, "/promos/validate", body)
	assert.Equal(t, http.StatusTooManyRequests, code)
}

func TestPromoRoutes(t *testing.T) {
	a := newAPI(t)
	now := time.Now().UTC()

	code, env := a.asProvider(http.MethodPost, "/promos", gin.H{
		"code":        "SAVE20",
		"discount":    gin.H{"type": "percentage", "value": "20", "max_discount_amount": "50"},
		"valid_from":  now.Add(-time.Hour),
		"valid_until": now.Add(24 * time.Hour),
		"usage_limit": 10,
	})
	require.Equal(t, http.StatusCreated, code, env.Error)
	promo := decode[application.PromoDTO](t, env)

	code, _ = a.asProvider(http.MethodGet, "/promos/"+promo.ID.String(), nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = a.do(http.MethodGet, "/promos/"+promo.ID.String(), uuid.New(), auth.RoleProvider, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, env = a.asClient(http.MethodPost, "/promos/validate", gin.H{
		"code": "SAVE20", "provider_id": a.provider, "order_total": "400", "service_ids": []string{"grooming"},
	})
	require.Equal(t, http.StatusOK, code)
	result := decode[application.PromoValidationDTO](t, env)
	assert.True(t, result.Valid, result.Reason)
	assert.True(t, decimal.NewFromInt(50).Equal(result.DiscountAmount))

	code, env = a.asAdmin(http.MethodGet, "/promos?active=true", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, env.Meta.Total)
}

func TestAdminExpireOverdueBookings(t *testing.T) {
	a := newAPI(t)

	code, env := a.asAdmin(http.MethodPost, "/admin/bookings/expire", nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"expired":0}`, string(env.Data))
}
