package chat

import "context"

// ProviderPort abstracts an OpenAI-compatible chat provider (e.g., OpenRouter)
type ProviderPort interface {
	// Non-streaming chat
	Chat(ctx context.Context, req *Request) (*Response, error)
}
