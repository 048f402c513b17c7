package gateway

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/sony/gobreaker"

	"github.com/magabrotheeeer/teleguard/internal/config"
)

// NewBreaker создаёт circuit breaker для вызовов платформы
func NewBreaker(name string, cfg config.Breaker, log *slog.Logger) *gobreaker.CircuitBreaker {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			switch to {
			case gobreaker.StateOpen:
				log.Warn("circuit breaker opened", slog.String("cb_name", name))
			case gobreaker.StateHalfOpen:
				log.Info("circuit breaker half-open", slog.String("cb_name", name))
			case gobreaker.StateClosed:
				log.Info("circuit breaker closed", slog.String("cb_name", name))
			}
		},
	})
}

// Rejected ошибка платформы, которая не говорит о её недоступности
// (нет прав, нет участника, неверный запрос). Такие ошибки не открывают breaker.
type Rejected struct {
	Err error
}

func (r *Rejected) Error() string { return r.Err.Error() }
func (r *Rejected) Unwrap() error { return r.Err }

// IsRejected true, если платформа ответила отказом, а не оказалась недоступна.
// Повтор такого запроса даст тот же ответ.
func IsRejected(err error) bool {
	var rejected *Rejected
	return errors.As(err, &rejected)
}

// Execute выполняет fn через breaker. fn возвращает *Rejected как результат,
// чтобы ошибка не учитывалась breaker'ом, и он же возвращается вызывающему;
// остальные ошибки считаются отказом платформы и оборачиваются в ErrUnavailable.
func Execute[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	var zero T
	result, err := cb.Execute(func() (any, error) {
		v, err := fn()
		var rejected *Rejected
		if errors.As(err, &rejected) {
			return rejected, nil
		}
		if err != nil {
			return nil, err
		}
		return v, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if errors.Is(err, ErrUnavailable) {
			return zero, err
		}
		return zero, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if rejected, ok := result.(*Rejected); ok {
		return zero, rejected
	}
	v, _ := result.(T)
	return v, nil
}
