package payment

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"lingomeet/internal/middleware"
	"lingomeet/internal/modules/booking"
	"lingomeet/internal/pkg/response"
)

// maxWebhookBody matches the limit stripe documents for event payloads.
const maxWebhookBody = 65536

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterProtectedRoutes(rg *gin.RouterGroup) {
	rg.POST("/bookings/:public_id/payment-intent", h.CreateIntent)
	rg.POST("/bookings/:public_id/confirm-payment", h.ConfirmPayment)
}

func (h *Handler) RegisterPublicRoutes(rg *gin.RouterGroup) {
	rg.POST("/webhooks/stripe", h.StripeWebhook)
}

func (h *Handler) CreateIntent(c *gin.Context) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}
	publicID, err := uuid.Parse(c.Param("public_id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "INVALID_ID", "Invalid booking ID")
		return
	}

	res, err := h.service.CreateIntent(c.Request.Context(), actor, publicID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	out := IntentResponse{
		Booking:      booking.ToResponse(res.Booking),
		Reference:    res.Reference,
		ClientSecret: res.ClientSecret,
		Confirmed:    res.Confirmed,
	}
	if !res.Confirmed {
		out.Provider = h.service.Provider()
	}
	response.Success(c, http.StatusOK, out)
}

func (h *Handler) ConfirmPayment(c *gin.Context) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}
	publicID, err := uuid.Parse(c.Param("public_id"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "INVALID_ID", "Invalid booking ID")
		return
	}
	var req ConfirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "payment_intent_id is required")
		return
	}

	res, err := h.service.ConfirmPayment(c.Request.Context(), actor, publicID, req.PaymentIntentID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, ConfirmResponse{
		Booking:              booking.ToResponse(res.Booking),
		EventPublished:       res.Published,
		ConfirmedAfterExpiry: res.Booking.ConfirmedAfterExpiry,
	})
}

// StripeWebhook acknowledges every verified delivery with 200 so stripe
// stops retrying; only signature failures and storage errors are reported.
func (h *Handler) StripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		response.Error(c, http.StatusServiceUnavailable, "READ_ERROR", "could not read request body")
		return
	}

	err = h.service.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"received": true})
}
