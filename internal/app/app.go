// Package app wires the services shared by the API server and the batch commands.
package app

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"lingomeet/internal/config"
	"lingomeet/internal/jobs"
	"lingomeet/internal/modules/booking"
	"lingomeet/internal/modules/event"
	"lingomeet/internal/modules/payment"
	"lingomeet/internal/repository"
)

type App struct {
	Store    *repository.Store
	Provider payment.Provider
	Events   *event.Service
	Bookings *booking.Service
	Payments *payment.Service
	Jobs     []jobs.Job
}

func NewProvider(cfg config.Payment) (payment.Provider, error) {
	switch cfg.Provider {
	case "stripe":
		return payment.NewStripeProvider(cfg.StripeSecretKey, cfg.StripeWebhookSecret), nil
	case "simulator", "":
		return payment.NewSimulator(), nil
	}
	return nil, fmt.Errorf("unknown payment provider %q", cfg.Provider)
}

// New builds the service graph on db. Refunds run through provider.
func New(db *gorm.DB, cfg *config.Config, provider payment.Provider, log logrus.FieldLogger) *App {
	store := repository.NewStore(db)
	refunder := payment.NewRefunder(store, provider, log)

	events := event.NewService(store, refunder, cfg.Lifecycle, log)
	bookings := booking.NewService(store, events, refunder, cfg.Lifecycle, log)
	payments := payment.NewService(store, provider, bookings, events, refunder, cfg.Lifecycle, log)

	return &App{
		Store:    store,
		Provider: provider,
		Events:   events,
		Bookings: bookings,
		Payments: payments,
		Jobs:     jobs.All(bookings, events, cfg.Lifecycle),
	}
}
