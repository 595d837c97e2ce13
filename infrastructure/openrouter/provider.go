package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/noor188/Intelligent-LLM-Router/domain/chat"

	"github.com/sirupsen/logrus"
)

const DefaultBaseURL = "https://openrouter.ai/api/v1"

var ErrModelRequired = errors.New("request does not name a model")

// ProviderConfig configures the OpenAI-compatible upstream client.
type ProviderConfig struct {
	APIKey      string
	BaseURL     string
	RefererURL  string
	AppName     string
	Timeout     time.Duration
	MaxAttempts int
}

// APIError is a non-2xx answer from the upstream API.
type APIError struct {
	StatusCode int
	Model      string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("openrouter api error: status %d, model %s: %s", e.StatusCode, e.Model, e.Body)
}

// HTTPStatus exposes the upstream status to callers that only know chat.StatusCoder.
func (e *APIError) HTTPStatus() int {
	return e.StatusCode
}

// Retryable reports server errors and rate limiting.
func (e *APIError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Provider sends chat completions to an OpenAI-compatible endpoint. Copies made by
// WithMaxAttempts share the connection pool.
type Provider struct {
	apiKey      string
	baseURL     string
	refererURL  string
	appName     string
	maxAttempts int
	httpClient  *http.Client
	rng         *rand.Rand
	rngMutex    *sync.Mutex
}

func NewProvider(cfg ProviderConfig) *Provider {
	// Configure HTTP client with connection pooling
	transport := &http.Transport{
		MaxIdleConns:          200,
		MaxIdleConnsPerHost:   100,
		MaxConnsPerHost:       200,
		IdleConnTimeout:       90 * time.Second,
		DisableCompression:    false,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 180 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	return &Provider{
		apiKey:      cfg.APIKey,
		baseURL:     cfg.BaseURL,
		refererURL:  cfg.RefererURL,
		appName:     cfg.AppName,
		maxAttempts: cfg.MaxAttempts,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		rngMutex: &sync.Mutex{},
	}
}

// WithMaxAttempts returns a provider sharing this one's client that makes up to n attempts per call.
func (p *Provider) WithMaxAttempts(n int) *Provider {
	if n <= 0 {
		n = 1
	}
	cp := *p
	cp.maxAttempts = n
	return &cp
}

func (p *Provider) MaxAttempts() int {
	return p.maxAttempts
}

type usageOptions struct {
	Include bool `json:"include"`
}

type apiChatRequest struct {
	Model          string               `json:"model"`
	Messages       []chat.Message       `json:"messages"`
	ResponseFormat *chat.ResponseFormat `json:"response_format,omitempty"`
	Usage          *usageOptions        `json:"usage,omitempty"`
}

func (p *Provider) Chat(ctx context.Context, req *chat.Request) (*chat.Response, error) {
	if req.Model == "" {
		return nil, ErrModelRequired
	}

	jsonData, err := json.Marshal(apiChatRequest{
		Model:          req.Model,
		Messages:       req.Messages,
		ResponseFormat: req.ResponseFormat,
		Usage:          &usageOptions{Include: true},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		if attempt > 0 {
			// Exponential backoff: 1s, 2s, 4s
			backoff := time.Duration(math.Pow(2, float64(attempt-1)))*time.Second + p.jitter()
			logrus.WithFields(logrus.Fields{
				"attempt": attempt + 1,
				"backoff": backoff,
				"model":   req.Model,
			}).Info("Retrying API call after backoff")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, fmt.Errorf("retry aborted: %w (last error: %v)", ctx.Err(), lastErr)
			}
		}

		out, err := p.do(ctx, req.Model, jsonData)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if ctx.Err() != nil || !retryable(err) {
			return nil, err
		}
	}

	if p.maxAttempts == 1 {
		return nil, lastErr
	}
	return nil, fmt.Errorf("api call failed after %d attempts: %w", p.maxAttempts, lastErr)
}

func (p *Provider) do(ctx context.Context, model string, payload []byte) (*chat.Response, error) {
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	hreq.Header.Set("Content-Type", "application/json")
	hreq.Header.Set("Authorization", "Bearer "+p.apiKey)
	if p.refererURL != "" {
		hreq.Header.Set("HTTP-Referer", p.refererURL)
	}
	if p.appName != "" {
		hreq.Header.Set("X-Title", p.appName)
	}

	resp, err := p.httpClient.Do(hreq)
	if err != nil {
		return nil, &transientError{err: fmt.Errorf("do: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &transientError{err: fmt.Errorf("read: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode, Model: model, Body: string(body)}
		fields := logrus.Fields{"status": resp.StatusCode, "body": string(body), "model": model}
		if apiErr.Retryable() {
			logrus.WithFields(fields).Warn("Retryable API error")
		} else {
			logrus.WithFields(fields).Error("OpenRouter API error")
		}
		return nil, apiErr
	}

	var out chat.Response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &transientError{err: fmt.Errorf("unmarshal: %w", err)}
	}
	return &out, nil
}

func (p *Provider) jitter() time.Duration {
	p.rngMutex.Lock()
	defer p.rngMutex.Unlock()
	return time.Duration(p.rng.Intn(250)) * time.Millisecond
}

// transientError marks network, read and decode failures, which are worth another attempt.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	var te *transientError
	return errors.As(err, &te)
}
