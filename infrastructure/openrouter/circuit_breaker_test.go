package openrouter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/noor188/Intelligent-LLM-Router/domain/chat"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockProvider is a mock implementation of the chat provider interface
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Chat(ctx context.Context, req *chat.Request) (*chat.Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*chat.Response), args.Error(1)
}

func testRequest(model string) *chat.Request {
	return &chat.Request{
		Model:    model,
		Messages: []chat.Message{{Role: "user", Content: "Hello"}},
	}
}

func lowThresholdConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Enabled:          true,
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          time.Minute,
		MaxRequests:      1,
	}
}

func TestCircuitBreakerProvider_Chat_Success(t *testing.T) {
	mockProvider := &MockProvider{}
	cbProvider := NewCircuitBreakerProvider(mockProvider, DefaultCircuitBreakerConfig())

	req := testRequest("openai/gpt-5-mini")
	expectedResponse := &chat.Response{
		ID:      "test-response",
		Model:   "openai/gpt-5-mini",
		Choices: []chat.Choice{{Message: chat.Message{Role: "assistant", Content: "Hi there!"}}},
	}
	mockProvider.On("Chat", mock.Anything, req).Return(expectedResponse, nil)

	response, err := cbProvider.Chat(context.Background(), req)

	assert.NoError(t, err)
	assert.Equal(t, expectedResponse, response)
	mockProvider.AssertExpectations(t)
}

func TestCircuitBreakerProvider_Chat_Disabled(t *testing.T) {
	mockProvider := &MockProvider{}
	cbProvider := NewCircuitBreakerProvider(mockProvider, CircuitBreakerConfig{Enabled: false})

	req := testRequest("openai/gpt-5-mini")
	mockProvider.On("Chat", mock.Anything, req).Return(nil, errors.New("boom")).Times(10)

	for i := 0; i < 10; i++ {
		_, err := cbProvider.Chat(context.Background(), req)
		assert.EqualError(t, err, "boom")
	}

	assert.Empty(t, cbProvider.GetCircuitStates())
	mockProvider.AssertExpectations(t)
}

func TestCircuitBreakerProvider_Chat_CircuitOpen(t *testing.T) {
	mockProvider := &MockProvider{}
	cbProvider := NewCircuitBreakerProvider(mockProvider, lowThresholdConfig())

	req := testRequest("anthropic/claude-sonnet-4")
	upstream := &APIError{StatusCode: 503, Model: req.Model, Body: "unavailable"}
	mockProvider.On("Chat", mock.Anything, req).Return(nil, upstream).Times(2)

	for i := 0; i < 2; i++ {
		_, err := cbProvider.Chat(context.Background(), req)
		assert.ErrorIs(t, err, upstream)
	}

	// Third call fails fast without reaching the provider
	_, err := cbProvider.Chat(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Contains(t, err.Error(), "anthropic/claude-sonnet-4")

	assert.Equal(t, gobreaker.StateOpen, cbProvider.GetCircuitStates()["anthropic-claude-sonnet-4"])
	mockProvider.AssertExpectations(t)
}

func TestCircuitBreakerProvider_BreakersArePerModel(t *testing.T) {
	mockProvider := &MockProvider{}
	cbProvider := NewCircuitBreakerProvider(mockProvider, lowThresholdConfig())

	failing := testRequest("openai/gpt-oss-20b:free")
	healthy := testRequest("openai/gpt-5-mini")
	mockProvider.On("Chat", mock.Anything, failing).Return(nil, errors.New("connection refused")).Times(2)
	mockProvider.On("Chat", mock.Anything, healthy).Return(&chat.Response{ID: "ok"}, nil)

	for i := 0; i < 3; i++ {
		_, _ = cbProvider.Chat(context.Background(), failing)
	}

	resp, err := cbProvider.Chat(context.Background(), healthy)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.ID)

	states := cbProvider.GetCircuitStates()
	assert.Equal(t, gobreaker.StateOpen, states["openai-gpt-oss-20b:free"])
	assert.Equal(t, gobreaker.StateClosed, states["openai-gpt-5-mini"])
}

func TestCircuitBreakerProvider_ClientErrorsDoNotTrip(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "bad request", err: &APIError{StatusCode: 400, Model: "m", Body: "bad"}},
		{name: "caller cancelled", err: context.Canceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockProvider := &MockProvider{}
			cbProvider := NewCircuitBreakerProvider(mockProvider, lowThresholdConfig())

			req := testRequest("openai/gpt-5-mini")
			mockProvider.On("Chat", mock.Anything, req).Return(nil, tt.err).Times(5)

			for i := 0; i < 5; i++ {
				_, err := cbProvider.Chat(context.Background(), req)
				assert.ErrorIs(t, err, tt.err)
				assert.NotErrorIs(t, err, ErrCircuitOpen)
			}
			mockProvider.AssertExpectations(t)
		})
	}
}

func TestBreakerKey(t *testing.T) {
	tests := []struct {
		name     string
		model    string
		expected string
	}{
		{name: "model with slashes", model: "openai/gpt-5-mini", expected: "openai-gpt-5-mini"},
		{name: "model with dots", model: "claude-3.5-sonnet", expected: "claude-3-5-sonnet"},
		{name: "empty model", model: "", expected: "default"},
		{name: "variant suffix", model: "openai/gpt-oss-20b:free", expected: "openai-gpt-oss-20b:free"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, breakerKey(tt.model))
		})
	}
}

func TestDefaultCircuitBreakerConfig(t *testing.T) {
	config := DefaultCircuitBreakerConfig()

	assert.True(t, config.Enabled)
	assert.Equal(t, uint32(5), config.FailureThreshold)
	assert.Equal(t, uint32(2), config.SuccessThreshold)
	assert.Equal(t, 60*time.Second, config.Timeout)
	assert.Equal(t, uint32(3), config.MaxRequests)
}
