package chat

import (
	"time"

	"github.com/google/uuid"
)

// Core chat entities independent of frameworks and vendors

// ChatRequest is the inbound user message. No conversation history is carried.
type ChatRequest struct {
	Content string `json:"content"`
}

// ChatResponse is the outward wire shape: one string embedding the model id and reply.
type ChatResponse struct {
	Messages string `json:"messages"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// Upstream wire types (OpenAI/OpenRouter-compatible)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ResponseFormat struct {
	Type string `json:"type"`
}

// JSONObjectFormat constrains the upstream model to emit a single JSON object.
var JSONObjectFormat = &ResponseFormat{Type: "json_object"}

type Request struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type Usage struct {
	PromptTokens     int      `json:"prompt_tokens"`
	CompletionTokens int      `json:"completion_tokens"`
	TotalTokens      int      `json:"total_tokens"`
	Cost             *float64 `json:"cost,omitempty"`
}

type Response struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Completion is the generated text of the chosen model together with its usage.
type Completion struct {
	Model string
	Text  string
	Usage Usage
}

// Reply keeps the pipeline result structured until the final serialization step.
type Reply struct {
	RequestID uuid.UUID
	Model     string
	Reasoning string
	Fallback  bool
	Text      string
	Usage     Usage

	RoutingLatency    time.Duration
	CompletionLatency time.Duration
}

// Messages renders the reply in the outward wire shape.
func (r *Reply) Messages() string {
	return Compose(r.Model, r.Text)
}
