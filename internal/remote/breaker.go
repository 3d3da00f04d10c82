package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/tejusbharadwaj/pvwatch/internal/models"
)

// BreakerConfig controls when repeated remote failures open the circuit.
type BreakerConfig struct {
	Failures uint32        // consecutive failures before opening
	Cooldown time.Duration // time spent open before a trial call
}

// BreakerSource guards a Source with a circuit breaker so a dead host is not
// dialled on every tick. While open, calls fail fast with ErrUnreachable.
type BreakerSource struct {
	next Source
	cb   *gobreaker.CircuitBreaker
}

func NewBreakerSource(next Source, cfg BreakerConfig, logger *logrus.Logger) *BreakerSource {
	if cfg.Failures == 0 {
		cfg.Failures = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = time.Minute
	}

	settings := gobreaker.Settings{
		Name:        "remote",
		MaxRequests: 1,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.Failures
		},
		// A missing MDTM capability is a property of the server, not an outage.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrUnsupported)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logger != nil {
				logger.WithFields(logrus.Fields{
					"breaker": name,
					"from":    from.String(),
					"to":      to.String(),
				}).Warn("remote circuit breaker state changed")
			}
		},
	}

	return &BreakerSource{
		next: next,
		cb:   gobreaker.NewCircuitBreaker(settings),
	}
}

func (b *BreakerSource) Probe(ctx context.Context) (models.ChangeToken, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Probe(ctx)
	})
	if err != nil {
		return "", b.wrap(err)
	}
	return res.(models.ChangeToken), nil
}

func (b *BreakerSource) Download(ctx context.Context) ([]byte, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Download(ctx)
	})
	if err != nil {
		return nil, b.wrap(err)
	}
	return res.([]byte), nil
}

// State reports the breaker state, e.g. "closed" or "open".
func (b *BreakerSource) State() string {
	return b.cb.State().String()
}

func (b *BreakerSource) wrap(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	return err
}

var _ Source = (*BreakerSource)(nil)
