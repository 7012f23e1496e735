package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"lingomeet/internal/middleware"
	"lingomeet/internal/modules/booking"
	"lingomeet/internal/modules/event"
	"lingomeet/internal/modules/payment"
	jwtsvc "lingomeet/internal/pkg/jwt"
)

// NewRouter mounts the HTTP API under /api/v1.
func NewRouter(a *App, j *jwtsvc.Service, corsOrigins string, log logrus.FieldLogger) *gin.Engine {
	r := gin.New()
	r.Use(middleware.ErrorLogger(log), middleware.CORS(corsOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	eventHandler := event.NewHandler(a.Events)
	bookingHandler := booking.NewHandler(a.Bookings)
	paymentHandler := payment.NewHandler(a.Payments)

	v1 := r.Group("/api/v1")
	{
		// public
		paymentHandler.RegisterPublicRoutes(v1)

		protected := v1.Group("")
		protected.Use(middleware.JWTAuth(j))
		{
			eventHandler.RegisterRoutes(protected)
			bookingHandler.RegisterRoutes(protected)
			paymentHandler.RegisterProtectedRoutes(protected)
		}
	}
	return r
}
