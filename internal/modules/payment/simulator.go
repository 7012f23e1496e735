package payment

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

var errSimulatorWebhook = errors.New("simulator does not send webhooks")

// Simulator stands in for a real gateway in development. Every intent
// succeeds as soon as the client confirms it.
type Simulator struct {
	mu       sync.Mutex
	refunded map[string]int64
}

func NewSimulator() *Simulator {
	return &Simulator{refunded: make(map[string]int64)}
}

func (s *Simulator) Name() string { return "simulator" }

func (s *Simulator) CreateIntent(_ context.Context, _ IntentRequest) (*Intent, error) {
	ref := "sim_pi_" + uuid.NewString()
	return &Intent{Reference: ref, ClientSecret: ref + "_secret_" + uuid.NewString()}, nil
}

func (s *Simulator) Succeeded(_ context.Context, _ string) (bool, error) {
	return true, nil
}

func (s *Simulator) Refund(_ context.Context, reference string, amountCents int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refunded[reference] += amountCents
	return nil
}

// Refunded returns the total refunded for reference.
func (s *Simulator) Refunded(reference string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refunded[reference]
}

func (s *Simulator) ParseWebhook(_ []byte, _ string) (*WebhookEvent, error) {
	return nil, errSimulatorWebhook
}
