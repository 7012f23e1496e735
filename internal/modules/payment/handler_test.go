package payment

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"lingomeet/internal/domain"
	"lingomeet/internal/middleware"
	"lingomeet/internal/pkg/jwt"
)

type envelope struct {
	Success bool `json:"success"`
	Data    struct {
		Booking      json.RawMessage `json:"booking"`
		Reference    string          `json:"payment_intent_id"`
		ClientSecret string          `json:"client_secret"`
		Provider     string          `json:"provider"`
		Received     bool            `json:"received"`
	} `json:"data"`
	Error struct {
		Code string `json:"code"`
	} `json:"error"`
}

func newRouter(f *fixture) (*gin.Engine, *jwt.Service) {
	gin.SetMode(gin.TestMode)
	jwtSvc := jwt.New("test-secret", time.Hour)
	h := NewHandler(f.svc)

	r := gin.New()
	api := r.Group("/api/v1")
	h.RegisterPublicRoutes(api)
	h.RegisterProtectedRoutes(api.Group("", middleware.JWTAuth(jwtSvc)))
	return r, jwtSvc
}

func post(t *testing.T, r *gin.Engine, path string, body []byte, headers map[string]string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w.Code, env
}

func TestHandler_IntentAndConfirm(t *testing.T) {
	f := newFixture(t, nil)
	r, jwtSvc := newRouter(f)
	ev := f.publishedEvent(t, 700)
	b, err := f.bookings.Create(t.Context(), actorOf(f.alice), ev.ID, 1)
	require.NoError(t, err)
	token, err := jwtSvc.GenerateToken(f.alice.ID, f.alice.Role)
	require.NoError(t, err)
	auth := map[string]string{"Authorization": "Bearer " + token}
	base := "/api/v1/bookings/" + b.PublicID.String()

	f.provider.On("CreateIntent", mock.Anything, mock.Anything).Return(&Intent{Reference: "pi_h", ClientSecret: "pi_h_secret"}, nil).Once()
	status, env := post(t, r, base+"/payment-intent", nil, auth)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "pi_h", env.Data.Reference)
	assert.Equal(t, "pi_h_secret", env.Data.ClientSecret)
	assert.Equal(t, "mock", env.Data.Provider)

	status, env = post(t, r, base+"/confirm-payment", []byte(`{}`), auth)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	f.provider.On("Succeeded", mock.Anything, "pi_h").Return(true, nil).Once()
	status, env = post(t, r, base+"/confirm-payment", []byte(`{"payment_intent_id":"pi_h"}`), auth)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(env.Data.Booking), `"status":"confirmed"`)

	status, _ = post(t, r, base+"/payment-intent", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestHandler_ProviderErrorIsBadGateway(t *testing.T) {
	f := newFixture(t, nil)
	r, jwtSvc := newRouter(f)
	ev := f.publishedEvent(t, 700)
	b, err := f.bookings.Create(t.Context(), actorOf(f.alice), ev.ID, 1)
	require.NoError(t, err)
	token, err := jwtSvc.GenerateToken(f.alice.ID, f.alice.Role)
	require.NoError(t, err)

	f.provider.On("CreateIntent", mock.Anything, mock.Anything).Return(nil, assert.AnError)
	status, env := post(t, r, "/api/v1/bookings/"+b.PublicID.String()+"/payment-intent", nil,
		map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, "PAYMENT_PROVIDER_ERROR", env.Error.Code)
}

func TestHandler_StripeWebhook(t *testing.T) {
	f := newFixture(t, NewStripeProvider("sk_test_unused", testWebhookSecret))
	r, _ := newRouter(f)

	ev := f.publishedEvent(t, 700)
	b, err := f.bookings.Create(t.Context(), actorOf(f.alice), ev.ID, 1)
	require.NoError(t, err)
	// the intent was created earlier; only the webhook path is under test here
	_, err = f.store.Bookings.SetPaymentIntent(t.Context(), b.ID, "pi_wh")
	require.NoError(t, err)
	require.NoError(t, f.store.Payments.Create(t.Context(), &domain.Payment{
		BookingID: b.ID, Provider: "stripe", Reference: "pi_wh", AmountCents: 700, Currency: "eur", Status: domain.PaymentCreated,
	}))

	payload := stripeEvent("payment_intent.succeeded", "pi_wh", 700)

	status, env := post(t, r, "/api/v1/webhooks/stripe", payload, map[string]string{"Stripe-Signature": "t=1,v1=forged"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_SIGNATURE", env.Error.Code)
	assert.Equal(t, domain.BookingPending, f.reloadBooking(t, b.ID).Status)

	headers := map[string]string{"Stripe-Signature": sign(payload, testWebhookSecret)}
	for i := 0; i < 2; i++ {
		status, env = post(t, r, "/api/v1/webhooks/stripe", payload, headers)
		require.Equal(t, http.StatusOK, status)
		assert.True(t, env.Data.Received)
	}

	got := f.reloadBooking(t, b.ID)
	assert.Equal(t, domain.BookingConfirmed, got.Status)
	assert.Equal(t, domain.PaymentSucceeded, f.payment(t, "pi_wh").Status)
}

func (f *fixture) reloadBooking(t *testing.T, id int64) *domain.Booking {
	t.Helper()
	b, err := f.store.Bookings.GetByID(t.Context(), id)
	require.NoError(t, err)
	return b
}
