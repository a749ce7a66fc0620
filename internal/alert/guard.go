package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// GuardSettings — параметры надежности одного канала
type GuardSettings struct {
	Name           string
	MaxRequests    uint32        // Пробных запросов в half-open
	Interval       time.Duration // Период сброса счетчиков в closed
	Timeout        time.Duration // Сколько держать open перед half-open
	Rate           float64       // Отправок в секунду
	Burst          int
	Attempts       uint
	AttemptTimeout time.Duration

	OnStateChange func(name string, from, to gobreaker.State)
}

// Guard оборачивает каждую исходящую отправку канала:
// rate limiter -> circuit breaker -> retry с учетом Retry-After.
type Guard struct {
	cb       *gobreaker.CircuitBreaker
	limiter  *rate.Limiter
	attempts uint
	timeout  time.Duration
}

func NewGuard(s GuardSettings) *Guard {
	if s.Attempts == 0 {
		s.Attempts = 1 // 0 в retry-go означает "бесконечно"
	}
	if s.Burst <= 0 {
		s.Burst = 1
	}
	if s.Rate <= 0 {
		s.Rate = 1
	}
	if s.AttemptTimeout <= 0 {
		s.AttemptTimeout = 10 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Провайдер лежит: после 3 проваленных серий подряд перестаем долбить
			return counts.ConsecutiveFailures >= 3
		},
		// Отказ по нашей вине (4xx) не повод размыкать цепь
		IsSuccessful: func(err error) bool {
			return err == nil || !IsRetryable(err)
		},
		OnStateChange: s.OnStateChange,
	})

	return &Guard{
		cb:       cb,
		limiter:  rate.NewLimiter(rate.Limit(s.Rate), s.Burst),
		attempts: s.Attempts,
		timeout:  s.AttemptTimeout,
	}
}

// Do выполняет одну логическую отправку
func (g *Guard) Do(ctx context.Context, send func(ctx context.Context) error) error {
	// 1. Rate Limiter
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	// 2. Circuit Breaker
	_, err := g.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(g.attempts),
			retry.LastErrorOnly(true),
			retry.RetryIf(IsRetryable),
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				// Провайдер сам сказал, сколько ждать
				var tErr *ThrottleError
				if errors.As(err, &tErr) {
					return tErr.RetryAfter
				}
				return retry.BackOffDelay(n, err, config)
			}),
		)

		return nil, r.Do(func() error {
			tCtx, cancel := context.WithTimeout(ctx, g.timeout)
			defer cancel()
			return send(tCtx)
		})
	})
	return err
}

// State — текущее состояние предохранителя (для метрик и тестов)
func (g *Guard) State() gobreaker.State {
	return g.cb.State()
}
