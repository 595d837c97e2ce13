package openrouter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/noor188/Intelligent-LLM-Router/domain/chat"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned without calling upstream while a model's breaker is open.
var ErrCircuitOpen = fmt.Errorf("circuit breaker open: %w", chat.ErrUpstreamUnavailable)

// CircuitBreakerConfig holds configuration for circuit breaker behavior
type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled" json:"enabled"`
	FailureThreshold uint32        `yaml:"failure_threshold" json:"failure_threshold"`
	SuccessThreshold uint32        `yaml:"success_threshold" json:"success_threshold"`
	Timeout          time.Duration `yaml:"timeout" json:"timeout"`
	MaxRequests      uint32        `yaml:"max_requests" json:"max_requests"`
}

// DefaultCircuitBreakerConfig returns sensible defaults for circuit breaker configuration
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Enabled:          true,
		FailureThreshold: 5,                // Open after 5 consecutive failures
		SuccessThreshold: 2,                // Close after 2 successes in half-open state
		Timeout:          60 * time.Second, // Stay open for 60 seconds
		MaxRequests:      3,                // Allow max 3 requests in half-open state
	}
}

// CircuitBreakerProvider wraps a chat provider with one breaker per model, so a failing
// meta-model does not trip completions to other models and vice versa.
type CircuitBreakerProvider struct {
	provider chat.ProviderPort
	config   CircuitBreakerConfig
	breakers map[string]*gobreaker.CircuitBreaker
	mutex    sync.RWMutex
}

func NewCircuitBreakerProvider(provider chat.ProviderPort, config CircuitBreakerConfig) *CircuitBreakerProvider {
	return &CircuitBreakerProvider{
		provider: provider,
		config:   config,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Chat implements the ProviderPort interface with circuit breaker protection
func (c *CircuitBreakerProvider) Chat(ctx context.Context, req *chat.Request) (*chat.Response, error) {
	if !c.config.Enabled {
		return c.provider.Chat(ctx, req)
	}

	model := breakerKey(req.Model)
	breaker := c.getOrCreateBreaker(model)

	result, err := breaker.Execute(func() (interface{}, error) {
		return c.provider.Chat(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			logrus.WithFields(logrus.Fields{
				"model": req.Model,
				"state": breaker.State().String(),
			}).Warn("Circuit breaker is open, failing fast")
			return nil, fmt.Errorf("%w for model %s", ErrCircuitOpen, req.Model)
		}
		return nil, err
	}

	return result.(*chat.Response), nil
}

// GetCircuitStates returns the current state of all circuit breakers for monitoring
func (c *CircuitBreakerProvider) GetCircuitStates() map[string]gobreaker.State {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	states := make(map[string]gobreaker.State, len(c.breakers))
	for model, breaker := range c.breakers {
		states[model] = breaker.State()
	}
	return states
}

func (c *CircuitBreakerProvider) getOrCreateBreaker(model string) *gobreaker.CircuitBreaker {
	c.mutex.RLock()
	if breaker, exists := c.breakers[model]; exists {
		c.mutex.RUnlock()
		return breaker
	}
	c.mutex.RUnlock()

	c.mutex.Lock()
	defer c.mutex.Unlock()

	// Double-check pattern: another goroutine might have created it while we waited
	if breaker, exists := c.breakers[model]; exists {
		return breaker
	}

	settings := gobreaker.Settings{
		Name:        fmt.Sprintf("llm-model-%s", model),
		MaxRequests: c.config.MaxRequests,
		Interval:    0, // No automatic clearing of counts (we rely on timeout)
		Timeout:     c.config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= c.config.FailureThreshold
		},
		IsSuccessful: countsAsSuccess,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logrus.WithFields(logrus.Fields{
				"model":      model,
				"from_state": from.String(),
				"to_state":   to.String(),
			}).Info("Circuit breaker state changed")
		},
	}

	breaker := gobreaker.NewCircuitBreaker(settings)
	c.breakers[model] = breaker

	logrus.WithField("model", model).Debug("Created new circuit breaker for model")
	return breaker
}

// countsAsSuccess keeps caller cancellations and client-side 4xx answers (other than 429)
// from tripping the breaker.
func countsAsSuccess(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return !apiErr.Retryable()
	}
	return false
}

func breakerKey(model string) string {
	if model == "" {
		return "default"
	}
	key := strings.ToLower(strings.ReplaceAll(model, "/", "-"))
	return strings.ReplaceAll(key, ".", "-")
}
