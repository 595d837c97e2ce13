package catalog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrEmptyCatalog = errors.New("catalog must contain at least one model")
	ErrEmptyModelID = errors.New("model id cannot be empty")
	ErrDuplicateID  = errors.New("duplicate model id")
)

var tokensPerMillion = decimal.NewFromInt(1_000_000)

// ModelDescriptor describes one candidate model. A nil price means the model is free.
type ModelDescriptor struct {
	ID                        string           `json:"id"`
	Summary                   string           `json:"summary"`
	ContextWindow             int              `json:"context_window"`
	PriceInputPerMillion      *decimal.Decimal `json:"price_input_per_million"`
	PriceOutputPerMillion     *decimal.Decimal `json:"price_output_per_million"`
	TimeToFirstTokenSeconds   float64          `json:"time_to_first_token_seconds"`
	ThroughputTokensPerSecond float64          `json:"throughput_tokens_per_second"`
}

// IsFree reports whether neither input nor output tokens are billed.
func (m ModelDescriptor) IsFree() bool {
	return priceOrZero(m.PriceInputPerMillion).IsZero() && priceOrZero(m.PriceOutputPerMillion).IsZero()
}

// BlendedPrice is the sum of the input and output price per million tokens.
func (m ModelDescriptor) BlendedPrice() decimal.Decimal {
	return priceOrZero(m.PriceInputPerMillion).Add(priceOrZero(m.PriceOutputPerMillion))
}

// EstimateCost prices a completion from its token counts.
func (m ModelDescriptor) EstimateCost(promptTokens, completionTokens int) decimal.Decimal {
	in := priceOrZero(m.PriceInputPerMillion).Mul(decimal.NewFromInt(int64(promptTokens)))
	out := priceOrZero(m.PriceOutputPerMillion).Mul(decimal.NewFromInt(int64(completionTokens)))
	return in.Add(out).Div(tokensPerMillion)
}

func priceOrZero(p *decimal.Decimal) decimal.Decimal {
	if p == nil {
		return decimal.Zero
	}
	return *p
}

// Catalog is the fixed, ordered set of candidate models. It is read-only after New.
type Catalog struct {
	models []ModelDescriptor
	index  map[string]int
}

// New builds a catalog, rejecting empty or duplicate ids.
func New(models ...ModelDescriptor) (*Catalog, error) {
	if len(models) == 0 {
		return nil, ErrEmptyCatalog
	}

	c := &Catalog{
		models: make([]ModelDescriptor, len(models)),
		index:  make(map[string]int, len(models)),
	}
	for i, m := range models {
		m.ID = strings.TrimSpace(m.ID)
		if m.ID == "" {
			return nil, fmt.Errorf("model %d: %w", i, ErrEmptyModelID)
		}
		if _, exists := c.index[m.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, m.ID)
		}
		c.models[i] = m
		c.index[m.ID] = i
	}
	return c, nil
}

// MustNew is New for statically known descriptors.
func MustNew(models ...ModelDescriptor) *Catalog {
	c, err := New(models...)
	if err != nil {
		panic(err)
	}
	return c
}

// Descriptors returns the models in catalog order.
func (c *Catalog) Descriptors() []ModelDescriptor {
	out := make([]ModelDescriptor, len(c.models))
	copy(out, c.models)
	return out
}

func (c *Catalog) Lookup(id string) (ModelDescriptor, bool) {
	i, ok := c.index[id]
	if !ok {
		return ModelDescriptor{}, false
	}
	return c.models[i], true
}

func (c *Catalog) Contains(id string) bool {
	_, ok := c.index[id]
	return ok
}

func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.models))
	for i, m := range c.models {
		ids[i] = m.ID
	}
	return ids
}

func (c *Catalog) Len() int {
	return len(c.models)
}

// Cheapest returns the model with the lowest blended price; ties keep catalog order.
func (c *Catalog) Cheapest() ModelDescriptor {
	best := c.models[0]
	for _, m := range c.models[1:] {
		if m.BlendedPrice().LessThan(best.BlendedPrice()) {
			best = m
		}
	}
	return best
}
