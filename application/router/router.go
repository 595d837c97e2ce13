package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/noor188/Intelligent-LLM-Router/domain/catalog"
	"github.com/noor188/Intelligent-LLM-Router/domain/chat"
	"github.com/noor188/Intelligent-LLM-Router/domain/routing"

	"github.com/sirupsen/logrus"
)

const (
	DefaultMetaModel = "openai/gpt-oss-20b:free"
	DefaultTimeout   = 10 * time.Second

	maxLoggedContent = 512
)

var ErrNilCatalog = errors.New("router requires a catalog")

// Config holds the routing stage settings.
type Config struct {
	MetaModel    string
	DefaultModel string // empty selects the cheapest catalog model
	Timeout      time.Duration
}

// Router asks the meta-model to choose a catalog model and validates the answer.
type Router struct {
	provider      chat.ProviderPort
	catalog       *catalog.Catalog
	metaModel     string
	fallbackModel string
	timeout       time.Duration
	observer      routing.Observer
}

var _ routing.Router = (*Router)(nil)

func New(provider chat.ProviderPort, c *catalog.Catalog, cfg Config, observer routing.Observer) (*Router, error) {
	if c == nil {
		return nil, ErrNilCatalog
	}
	if cfg.MetaModel == "" {
		cfg.MetaModel = DefaultMetaModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if observer == nil {
		observer = routing.NopObserver{}
	}

	fallback := cfg.DefaultModel
	if fallback == "" {
		fallback = c.Cheapest().ID
	} else if !c.Contains(fallback) {
		return nil, fmt.Errorf("default model %q: %w", fallback, chat.ErrRoutingUnknownModel)
	}

	return &Router{
		provider:      provider,
		catalog:       c,
		metaModel:     cfg.MetaModel,
		fallbackModel: fallback,
		timeout:       cfg.Timeout,
		observer:      observer,
	}, nil
}

func (r *Router) MetaModel() string     { return r.metaModel }
func (r *Router) FallbackModel() string { return r.fallbackModel }

// Route returns a decision whose Model is always a catalog id. Unusable meta-model output
// yields a fallback decision; only upstream failures are returned as errors.
func (r *Router) Route(ctx context.Context, message string) (routing.Decision, error) {
	logger := logrus.WithField("meta_model", r.metaModel)
	if id, ok := chat.RequestIDFrom(ctx); ok {
		logger = logger.WithField("request_id", id.String())
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resp, err := r.provider.Chat(ctx, &chat.Request{
		Model:          r.metaModel,
		Messages:       []chat.Message{{Role: "user", Content: BuildPrompt(r.catalog, message)}},
		ResponseFormat: chat.JSONObjectFormat,
	})
	if err != nil {
		logger.WithError(err).Error("Routing call failed")
		return routing.Decision{}, chat.NewUpstreamError(chat.StageRouting, r.metaModel, err)
	}
	if len(resp.Choices) == 0 {
		logger.Error("Routing call returned no choices")
		return routing.Decision{}, chat.NewUpstreamError(chat.StageRouting, r.metaModel, chat.ErrNoChoices)
	}

	content := resp.Choices[0].Message.Content
	decision, err := r.validate(content)
	if err != nil {
		decision = r.fallback(err)
		logger.WithError(err).WithFields(logrus.Fields{
			"reason":   decision.FallbackReason,
			"model":    decision.Model,
			"response": truncate(content, maxLoggedContent),
		}).Warn("Routing response unusable, using default model")
	} else {
		logger.WithFields(logrus.Fields{
			"model":     decision.Model,
			"reasoning": decision.Reasoning,
		}).Info("Routed message")
	}

	r.observer.ObserveDecision(decision)
	return decision, nil
}

func (r *Router) validate(content string) (routing.Decision, error) {
	raw, err := parseDecision(content)
	if err != nil {
		return routing.Decision{}, err
	}
	if !r.catalog.Contains(raw.Model) {
		return routing.Decision{}, fmt.Errorf("%w: %q", chat.ErrRoutingUnknownModel, raw.Model)
	}
	return routing.Decision{
		Model:     raw.Model,
		Reasoning: strings.TrimSpace(raw.Reasoning),
		MetaModel: r.metaModel,
	}, nil
}

func (r *Router) fallback(cause error) routing.Decision {
	reason := routing.FallbackParseError
	if errors.Is(cause, chat.ErrRoutingUnknownModel) {
		reason = routing.FallbackUnknownModel
	}
	return routing.Decision{
		Model:          r.fallbackModel,
		Reasoning:      fmt.Sprintf("Routing response was unusable (%s), so the default model %s was used.", reason, r.fallbackModel),
		Fallback:       true,
		FallbackReason: reason,
		MetaModel:      r.metaModel,
	}
}

type rawDecision struct {
	Model     string `json:"model"`
	Reasoning string `json:"reasoning"`
}

// parseDecision accepts a JSON object optionally wrapped in whitespace, a markdown code
// fence or surrounding prose.
func parseDecision(content string) (rawDecision, error) {
	s := stripCodeFence(strings.TrimSpace(content))
	if s == "" {
		return rawDecision{}, fmt.Errorf("%w: empty response", chat.ErrRoutingParse)
	}

	var raw rawDecision
	err := json.Unmarshal([]byte(s), &raw)
	if err != nil {
		start, end := strings.Index(s, "{"), strings.LastIndex(s, "}")
		if start < 0 || end <= start {
			return rawDecision{}, fmt.Errorf("%w: %v", chat.ErrRoutingParse, err)
		}
		if err := json.Unmarshal([]byte(s[start:end+1]), &raw); err != nil {
			return rawDecision{}, fmt.Errorf("%w: %v", chat.ErrRoutingParse, err)
		}
	}

	raw.Model = strings.TrimSpace(raw.Model)
	if raw.Model == "" {
		return rawDecision{}, fmt.Errorf("%w: missing model field", chat.ErrRoutingParse)
	}
	return raw, nil
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	// drop the opening fence line, which may carry a language tag
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
