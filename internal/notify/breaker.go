package notify

import (
	"context"
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerSettings configures the delivery circuit breaker.
type BreakerSettings struct {
	Name             string
	MaxFailures      int
	OpenTimeout      time.Duration
	HalfOpenRequests int
}

// BreakerSender guards another sender with a circuit breaker so a dead
// delivery backend fails fast instead of stalling every request.
type BreakerSender struct {
	next    Sender
	breaker *gobreaker.CircuitBreaker[any]
}

// NewBreakerSender wraps next.
func NewBreakerSender(next Sender, cfg BreakerSettings) *BreakerSender {
	maxFailures := cfg.MaxFailures
	if maxFailures <= 0 {
		maxFailures = 5
	}
	halfOpen := cfg.HalfOpenRequests
	if halfOpen <= 0 {
		halfOpen = 1
	}
	name := cfg.Name
	if name == "" {
		name = "notify"
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: uint32(halfOpen),
		Interval:    60 * time.Second,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(maxFailures)
		},
	}

	return &BreakerSender{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker[any](settings),
	}
}

// Send delivers msg unless the breaker is open, in which case gobreaker.ErrOpenState is returned.
func (s *BreakerSender) Send(ctx context.Context, msg Message) error {
	_, err := s.breaker.Execute(func() (any, error) {
		return nil, s.next.Send(ctx, msg)
	})
	return err
}

// State reports the breaker state.
func (s *BreakerSender) State() gobreaker.State {
	return s.breaker.State()
}
