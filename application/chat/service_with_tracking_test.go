package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/noor188/Intelligent-LLM-Router/domain/chat"
	"github.com/noor188/Intelligent-LLM-Router/domain/persistence"
	"github.com/noor188/Intelligent-LLM-Router/domain/routing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Mock request tracker for testing
type MockRequestTracker struct {
	mock.Mock
}

func (m *MockRequestTracker) StartTracking(ctx context.Context, requestID uuid.UUID, content string, decision *routing.Decision) error {
	args := m.Called(ctx, requestID, content, decision)
	return args.Error(0)
}

func (m *MockRequestTracker) CompleteTracking(ctx context.Context, requestID uuid.UUID, reply string, metrics persistence.RequestMetrics) error {
	args := m.Called(ctx, requestID, reply, metrics)
	return args.Error(0)
}

func (m *MockRequestTracker) FailTracking(ctx context.Context, requestID uuid.UUID, stage chat.Stage, errorMsg string) error {
	args := m.Called(ctx, requestID, stage, errorMsg)
	return args.Error(0)
}

func (m *MockRequestTracker) SubmitFeedback(ctx context.Context, requestID uuid.UUID, feedbackText string, score float64) error {
	args := m.Called(ctx, requestID, feedbackText, score)
	return args.Error(0)
}

func TestService_ChatWithTracking_Success(t *testing.T) {
	router := &MockRouter{}
	completer := &MockCompleter{}
	tracker := &MockRequestTracker{}
	service := NewService(router, completer, defaultCatalog(), tracker, nil)

	decision := routing.Decision{Model: "anthropic/claude-sonnet-4", Reasoning: "Complex code.", MetaModel: "openai/gpt-oss-20b:free"}
	router.On("Route", "Refactor this").Return(decision, nil)
	completer.On("Complete", "anthropic/claude-sonnet-4", "Refactor this").Return(&chat.Completion{
		Model: "anthropic/claude-sonnet-4",
		Text:  "Here is the refactor.",
		Usage: chat.Usage{PromptTokens: 1000, CompletionTokens: 2000, TotalTokens: 3000},
	}, nil)

	id := uuid.New()
	tracker.On("StartTracking", mock.Anything, id, "Refactor this", &decision).Return(nil).Once()
	tracker.On("CompleteTracking", mock.Anything, id, "Model: anthropic/claude-sonnet-4\n\nHere is the refactor.",
		mock.MatchedBy(func(m persistence.RequestMetrics) bool {
			return m.TotalTokens == 3000 &&
				m.PromptTokens == 1000 &&
				m.TotalCost.Equal(decimal.RequireFromString("0.033")) &&
				m.CostSource == persistence.CostSourceEstimated
		})).Return(nil).Once()

	reply, err := service.Chat(chat.WithRequestID(context.Background(), id), &chat.ChatRequest{Content: "Refactor this"})

	require.NoError(t, err)
	assert.Equal(t, "Here is the refactor.", reply.Text)
	tracker.AssertExpectations(t)
}

func TestService_ChatWithTracking_CompletionFailure(t *testing.T) {
	router := &MockRouter{}
	completer := &MockCompleter{}
	tracker := &MockRequestTracker{}
	service := NewService(router, completer, defaultCatalog(), tracker, nil)

	decision := routing.Decision{Model: "openai/gpt-5-mini"}
	upstream := chat.NewUpstreamError(chat.StageCompletion, "openai/gpt-5-mini", errors.New("bad gateway"))
	router.On("Route", "hello").Return(decision, nil)
	completer.On("Complete", "openai/gpt-5-mini", "hello").Return(nil, upstream)

	tracker.On("StartTracking", mock.Anything, mock.Anything, "hello", &decision).Return(nil).Once()
	tracker.On("FailTracking", mock.Anything, mock.Anything, chat.StageCompletion, upstream.Error()).Return(nil).Once()

	_, err := service.Chat(context.Background(), &chat.ChatRequest{Content: "hello"})

	assert.ErrorIs(t, err, upstream)
	tracker.AssertExpectations(t)
	tracker.AssertNotCalled(t, "CompleteTracking", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestService_ChatWithTracking_RoutingFailureHasNoDecision(t *testing.T) {
	router := &MockRouter{}
	completer := &MockCompleter{}
	tracker := &MockRequestTracker{}
	service := NewService(router, completer, defaultCatalog(), tracker, nil)

	upstream := chat.NewUpstreamError(chat.StageRouting, "openai/gpt-oss-20b:free", errors.New("timeout"))
	router.On("Route", "hello").Return(routing.Decision{}, upstream)

	tracker.On("StartTracking", mock.Anything, mock.Anything, "hello", (*routing.Decision)(nil)).Return(nil).Once()
	tracker.On("FailTracking", mock.Anything, mock.Anything, chat.StageRouting, mock.Anything).Return(nil).Once()

	_, err := service.Chat(context.Background(), &chat.ChatRequest{Content: "hello"})

	assert.Error(t, err)
	tracker.AssertExpectations(t)
}

func TestService_ChatWithTracking_TrackerErrorsDoNotFailRequest(t *testing.T) {
	router := &MockRouter{}
	completer := &MockCompleter{}
	tracker := &MockRequestTracker{}
	service := NewService(router, completer, defaultCatalog(), tracker, nil)

	router.On("Route", "hello").Return(routing.Decision{Model: "openai/gpt-5-mini"}, nil)
	completer.On("Complete", "openai/gpt-5-mini", "hello").Return(&chat.Completion{Text: "hi"}, nil)
	tracker.On("StartTracking", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("event processor queue is full"))

	reply, err := service.Chat(context.Background(), &chat.ChatRequest{Content: "hello"})

	require.NoError(t, err)
	assert.Equal(t, "hi", reply.Text)
	tracker.AssertNotCalled(t, "CompleteTracking", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestService_SubmitFeedback(t *testing.T) {
	id := uuid.New()

	t.Run("forwards to tracker", func(t *testing.T) {
		tracker := &MockRequestTracker{}
		tracker.On("SubmitFeedback", mock.Anything, id, "great", 0.9).Return(nil)
		service := NewService(&MockRouter{}, &MockCompleter{}, defaultCatalog(), tracker, nil)

		require.NoError(t, service.SubmitFeedback(context.Background(), id, "great", 0.9))
		tracker.AssertExpectations(t)
	})

	t.Run("score out of range", func(t *testing.T) {
		service := NewService(&MockRouter{}, &MockCompleter{}, defaultCatalog(), &MockRequestTracker{}, nil)

		err := service.SubmitFeedback(context.Background(), id, "", 1.5)
		assert.ErrorIs(t, err, chat.ErrMalformedRequest)
	})

	t.Run("tracking disabled", func(t *testing.T) {
		service := NewServiceWithoutTracking(&MockRouter{}, &MockCompleter{}, defaultCatalog())

		err := service.SubmitFeedback(context.Background(), id, "", 0.5)
		assert.ErrorIs(t, err, ErrTrackingDisabled)
	})
}

func TestService_CalculateCost(t *testing.T) {
	service := NewServiceWithoutTracking(&MockRouter{}, &MockCompleter{}, defaultCatalog())

	tests := []struct {
		name       string
		model      string
		usage      chat.Usage
		expected   string
		wantSource persistence.CostSource
	}{
		{
			name:       "estimated from catalog prices",
			model:      "openai/gpt-5-mini",
			usage:      chat.Usage{PromptTokens: 1000, CompletionTokens: 500, TotalTokens: 1500},
			expected:   "0.00125",
			wantSource: persistence.CostSourceEstimated,
		},
		{
			name:       "free model",
			model:      "openai/gpt-oss-20b:free",
			usage:      chat.Usage{PromptTokens: 1000, CompletionTokens: 500, TotalTokens: 1500},
			expected:   "0",
			wantSource: persistence.CostSourceEstimated,
		},
		{
			name:       "unknown model",
			model:      "unknown/model",
			usage:      chat.Usage{PromptTokens: 1000, CompletionTokens: 500, TotalTokens: 1500},
			expected:   "0",
			wantSource: persistence.CostSourceEstimated,
		},
		{
			name:       "provider reported cost wins",
			model:      "anthropic/claude-sonnet-4",
			usage:      chat.Usage{PromptTokens: 1000, CompletionTokens: 500, TotalTokens: 1500, Cost: &[]float64{0.0125}[0]},
			expected:   "0.0125",
			wantSource: persistence.CostSourceProvider,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cost, source := service.calculateCost(tt.model, tt.usage)
			assert.True(t, cost.Equal(decimal.RequireFromString(tt.expected)), cost.String())
			assert.Equal(t, tt.wantSource, source)
		})
	}
}
