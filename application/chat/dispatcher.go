package chat

import (
	"context"
	"time"

	"github.com/noor188/Intelligent-LLM-Router/domain/chat"

	"github.com/sirupsen/logrus"
)

const DefaultCompletionTimeout = 120 * time.Second

// Completer generates the reply for a routed message.
type Completer interface {
	Complete(ctx context.Context, modelID, message string) (*chat.Completion, error)
}

// Dispatcher sends the user message, unchanged and as the only turn, to the chosen model.
type Dispatcher struct {
	provider chat.ProviderPort
	timeout  time.Duration
}

var _ Completer = (*Dispatcher)(nil)

func NewDispatcher(provider chat.ProviderPort, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultCompletionTimeout
	}
	return &Dispatcher{provider: provider, timeout: timeout}
}

func (d *Dispatcher) Complete(ctx context.Context, modelID, message string) (*chat.Completion, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	resp, err := d.provider.Chat(ctx, &chat.Request{
		Model:    modelID,
		Messages: []chat.Message{{Role: "user", Content: message}},
	})
	if err != nil {
		logrus.WithError(err).WithField("model", modelID).Error("Completion call failed")
		return nil, chat.NewUpstreamError(chat.StageCompletion, modelID, err)
	}
	if len(resp.Choices) == 0 {
		logrus.WithField("model", modelID).Error("Completion returned no choices")
		return nil, chat.NewUpstreamError(chat.StageCompletion, modelID, chat.ErrNoChoices)
	}

	return &chat.Completion{
		Model: modelID,
		Text:  resp.Choices[0].Message.Content,
		Usage: resp.Usage,
	}, nil
}
