package metrics

import (
	"net/http"
	"time"

	"github.com/noor188/Intelligent-LLM-Router/domain/routing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "llm_router"

// Recorder implements routing.Observer on top of Prometheus collectors.
type Recorder struct {
	requests       *prometheus.CounterVec
	decisions      *prometheus.CounterVec
	fallbacks      *prometheus.CounterVec
	upstreamErrors *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	tokens         *prometheus.CounterVec
	cost           *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

var _ routing.Observer = (*Recorder)(nil)

// NewRecorder registers the router collectors on reg. A nil reg uses a private registry.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	r := &Recorder{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Chat requests by outcome",
			},
			[]string{"status"}, // status: ok|bad_request|upstream_error|timeout|unavailable|internal_error
		),
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "routing_decisions_total",
				Help:      "Routing decisions by chosen model",
			},
			[]string{"model", "outcome"}, // outcome: routed|fallback
		),
		fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "routing_fallbacks_total",
				Help:      "Routing responses replaced by the default model",
			},
			[]string{"reason"},
		),
		upstreamErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_errors_total",
				Help:      "Failed upstream calls by pipeline stage",
			},
			[]string{"stage"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Upstream call duration by pipeline stage",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
			},
			[]string{"stage"},
		),
		tokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tokens_total",
				Help:      "Tokens consumed by completions",
			},
			[]string{"model", "type"}, // type: input|output
		),
		cost: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cost_usd_total",
				Help:      "Completion cost in USD",
			},
			[]string{"model"},
		),
	}

	reg.MustRegister(r.requests, r.decisions, r.fallbacks, r.upstreamErrors, r.stageDuration, r.tokens, r.cost)

	if g, ok := reg.(prometheus.Gatherer); ok {
		r.gatherer = g
	} else {
		r.gatherer = prometheus.DefaultGatherer
	}
	return r
}

func (r *Recorder) ObserveDecision(d routing.Decision) {
	r.decisions.WithLabelValues(d.Model, d.Outcome()).Inc()
	if d.Fallback {
		r.fallbacks.WithLabelValues(string(d.FallbackReason)).Inc()
	}
}

func (r *Recorder) ObserveStage(stage string, elapsed time.Duration) {
	r.stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func (r *Recorder) ObserveUpstreamError(stage string) {
	r.upstreamErrors.WithLabelValues(stage).Inc()
}

func (r *Recorder) ObserveRequest(status string) {
	r.requests.WithLabelValues(status).Inc()
}

func (r *Recorder) ObserveUsage(model string, promptTokens, completionTokens int, costUSD float64) {
	r.tokens.WithLabelValues(model, "input").Add(float64(promptTokens))
	r.tokens.WithLabelValues(model, "output").Add(float64(completionTokens))
	if costUSD > 0 {
		r.cost.WithLabelValues(model).Add(costUSD)
	}
}

// Handler serves the registry the recorder was registered on.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}
