package treatment

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/sipadi/padi/internal/domain"
)

// Guarded runs an advisor behind a circuit breaker. Failures and an open
// breaker both degrade to StaticTreatment, so Advise never returns an error.
type Guarded struct {
	next    domain.TreatmentAdvisor
	breaker *gobreaker.CircuitBreaker
}

// NewGuarded wraps next. The breaker opens after maxFailures consecutive
// failures and stays open for openFor.
func NewGuarded(next domain.TreatmentAdvisor, maxFailures int, openFor time.Duration) *Guarded {
	if maxFailures <= 0 {
		maxFailures = 3
	}
	if openFor <= 0 {
		openFor = time.Minute
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "treatment-advisor",
		MaxRequests: 1,
		Timeout:     openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(maxFailures)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	return &Guarded{next: next, breaker: breaker}
}

// Advise implements domain.TreatmentAdvisor.
func (g *Guarded) Advise(ctx context.Context, req *domain.TreatmentRequest) (*domain.Treatment, error) {
	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.next.Advise(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			slog.Debug("treatment advisor short-circuited", "history_id", req.HistoryID)
		} else {
			slog.Warn("treatment advisor failed, using fallback",
				"history_id", req.HistoryID,
				"error", err,
			)
		}
		return StaticTreatment(req), nil
	}

	t, ok := out.(*domain.Treatment)
	if !ok || t == nil {
		return StaticTreatment(req), nil
	}
	return t, nil
}

// State reports the breaker state, for health output.
func (g *Guarded) State() string {
	return g.breaker.State().String()
}

// New builds the advisor named in configuration. The http advisor is
// always guarded.
func New(cfg domain.TreatmentConfig) (domain.TreatmentAdvisor, error) {
	switch cfg.Advisor {
	case "", "fallback":
		return NewFallback(), nil
	case "http":
		remote, err := NewHTTPAdvisor(cfg)
		if err != nil {
			return nil, err
		}
		return NewGuarded(remote, cfg.BreakerMaxFailures, time.Duration(cfg.BreakerOpenDuration)*time.Second), nil
	default:
		return nil, errors.New("unsupported treatment advisor: " + cfg.Advisor)
	}
}
