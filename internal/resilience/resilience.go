// Package resilience wraps outbound calls and storage transactions with a
// circuit breaker (sony/gobreaker) and a bounded exponential-backoff retry.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/sony/gobreaker"
)

var (
	// ErrCircuitOpen indicates the circuit breaker is open
	ErrCircuitOpen = gobreaker.ErrOpenState
	// ErrTimeout indicates an operation timed out
	ErrTimeout = errors.New("operation timed out")
	// ErrExhaustedRetries indicates retry attempts were exhausted
	ErrExhaustedRetries = errors.New("retry attempts exhausted")
)

// CircuitState represents the state of a circuit breaker
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateHalfOpen
	StateOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateHalfOpen:
		return "HALF-OPEN"
	case StateOpen:
		return "OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreaker guards a remote dependency. Errors the caller classifies as
// harmless (see CircuitBreakerConfig.IsSuccessful) do not count as failures.
type CircuitBreaker struct {
	name    string
	timeout time.Duration
	cb      *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// CircuitBreakerConfig holds configuration for circuit breakers
type CircuitBreakerConfig struct {
	Name          string
	MaxFailures   int
	Timeout       time.Duration
	HalfOpenLimit int
	ResetInterval time.Duration
	// IsSuccessful reports whether a non-nil error should still count as a
	// success for the breaker, e.g. a rejected request the remote end answered.
	IsSuccessful  func(err error) bool
	OnStateChange func(name string, from, to CircuitState)
	Logger        *slog.Logger
}

func mapState(state gobreaker.State) CircuitState {
	switch state {
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	case gobreaker.StateOpen:
		return StateOpen
	default:
		return StateClosed
	}
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HalfOpenLimit <= 0 {
		cfg.HalfOpenLimit = 1
	}
	if cfg.ResetInterval <= 0 {
		cfg.ResetInterval = 60 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "circuit_breaker", "name", cfg.Name)

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: uint32(cfg.HalfOpenLimit),
		Interval:    cfg.ResetInterval,
		Timeout:     cfg.ResetInterval,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.MaxFailures)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			fromState, toState := mapState(from), mapState(to)
			log.Warn("Circuit breaker state changed", "from", fromState, "to", toState)
			if cfg.OnStateChange != nil {
				cfg.OnStateChange(name, fromState, toState)
			}
		},
	}
	if cfg.IsSuccessful != nil {
		isSuccessful := cfg.IsSuccessful
		settings.IsSuccessful = func(err error) bool {
			return err == nil || isSuccessful(err)
		}
	}

	return &CircuitBreaker{
		name:    cfg.Name,
		timeout: cfg.Timeout,
		cb:      gobreaker.NewCircuitBreaker(settings),
		logger:  log,
	}
}

// State returns the breaker's current state.
func (cb *CircuitBreaker) State() CircuitState {
	return mapState(cb.cb.State())
}

// Execute runs an operation through the circuit breaker
func (cb *CircuitBreaker) Execute(ctx context.Context, operation func(context.Context) error) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cb.timeout)
		defer cancel()
	}

	_, err := cb.cb.Execute(func() (interface{}, error) {
		err := operation(ctx)
		if err != nil && errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return nil, err
	})
	return err
}

// RetryConfig holds configuration for retry operations
type RetryConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	RandomFactor    float64
	// Retryable decides whether a failed attempt may be repeated. Nil retries
	// every error except an open circuit.
	Retryable func(err error) bool
}

// DefaultRetryConfig returns a default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
		RandomFactor:    0.1,
	}
}

// WithRetry executes an operation with exponential backoff retry. A
// non-retryable error is returned as is; running out of attempts wraps the
// last error together with ErrExhaustedRetries.
func WithRetry(ctx context.Context, operation func(context.Context) error, cfg RetryConfig) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 1
	}

	var lastErr error
	interval := cfg.InitialInterval
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := operation(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return fmt.Errorf("retry abandoned: %w", ctx.Err())
		}
		if errors.Is(err, ErrCircuitOpen) {
			return err
		}
		if cfg.Retryable != nil && !cfg.Retryable(err) {
			return err
		}

		if attempt < cfg.MaxAttempts {
			wait := interval
			if cfg.RandomFactor > 0 {
				jitter := 1.0 + (cfg.RandomFactor * (2*rnd.Float64() - 1))
				wait = time.Duration(float64(interval) * jitter)
			}
			if cfg.MaxInterval > 0 && wait > cfg.MaxInterval {
				wait = cfg.MaxInterval
			}

			slog.Debug("Operation failed, retrying",
				"attempt", attempt,
				"max_attempts", cfg.MaxAttempts,
				"next_interval", wait,
				"error", err,
			)

			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("retry abandoned: %w", ctx.Err())
			case <-timer.C:
			}
			interval = time.Duration(float64(interval) * cfg.Multiplier)
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrExhaustedRetries, cfg.MaxAttempts, lastErr)
}
