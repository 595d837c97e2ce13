package httpiface

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/noor188/Intelligent-LLM-Router/domain/catalog"
	domain "github.com/noor188/Intelligent-LLM-Router/domain/chat"
	"github.com/noor188/Intelligent-LLM-Router/domain/persistence"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

const (
	HeaderRequestID       = "X-Request-ID"
	HeaderCorrelationID   = "X-Correlation-ID"
	HeaderRoutedModel     = "X-Routed-Model"
	HeaderRoutingFallback = "X-Routing-Fallback"

	requestUUIDKey = "request_uuid"
)

// Request outcome labels reported to the RequestObserver.
const (
	StatusOK            = "ok"
	StatusBadRequest    = "bad_request"
	StatusUpstreamError = "upstream_error"
	StatusTimeout       = "timeout"
	StatusUnavailable   = "unavailable"
	StatusInternalError = "internal_error"
)

type ChatService interface {
	Chat(ctx context.Context, req *domain.ChatRequest) (*domain.Reply, error)
	SubmitFeedback(ctx context.Context, requestID uuid.UUID, text string, score float64) error
}

// RequestObserver counts finished chat requests by outcome.
type RequestObserver interface {
	ObserveRequest(status string)
}

// CircuitStateReporter exposes per-model breaker states for the health endpoint.
type CircuitStateReporter interface {
	GetCircuitStates() map[string]gobreaker.State
}

type Router struct {
	service     ChatService
	catalog     *catalog.Catalog
	corsOrigins []string

	observer       RequestObserver
	breakers       CircuitStateReporter
	metricsPath    string
	metricsHandler http.Handler

	metricsRepo persistence.MetricsRepository
	requestRepo persistence.RequestRepository
	dbManager   persistence.DatabaseManager
	processor   persistence.EventProcessor
}

func NewRouter(service ChatService, c *catalog.Catalog, corsOrigins []string) *Router {
	return &Router{
		service:     service,
		catalog:     c,
		corsOrigins: corsOrigins,
	}
}

// NewRouterWithPersistence creates a router that also serves the audit endpoints
func NewRouterWithPersistence(
	service ChatService,
	c *catalog.Catalog,
	corsOrigins []string,
	metricsRepo persistence.MetricsRepository,
	requestRepo persistence.RequestRepository,
	dbManager persistence.DatabaseManager,
	processor persistence.EventProcessor,
) *Router {
	r := NewRouter(service, c, corsOrigins)
	r.metricsRepo = metricsRepo
	r.requestRepo = requestRepo
	r.dbManager = dbManager
	r.processor = processor
	return r
}

func (r *Router) WithObserver(observer RequestObserver) *Router {
	r.observer = observer
	return r
}

func (r *Router) WithCircuitStates(breakers CircuitStateReporter) *Router {
	r.breakers = breakers
	return r
}

// WithMetricsHandler serves h (usually promhttp) at path.
func (r *Router) WithMetricsHandler(path string, h http.Handler) *Router {
	r.metricsPath = path
	r.metricsHandler = h
	return r
}

func (r *Router) SetupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(r.corsMiddleware())

	// Health endpoints - no request ID handling for monitoring tools
	router.GET("/live", r.liveness)
	router.GET("/ready", r.readiness)
	router.GET("/health", r.healthCheck)

	if r.metricsHandler != nil {
		path := r.metricsPath
		if path == "" {
			path = "/metrics"
		}
		router.GET(path, gin.WrapH(r.metricsHandler))
	}

	api := router.Group("/api")
	api.Use(r.requestIDMiddleware())
	api.POST("/chat", r.chat)
	api.GET("/models", r.listModels)
	api.POST("/feedback", r.submitFeedback)

	// Audit endpoints (only available if repositories are configured)
	if r.metricsRepo != nil && r.requestRepo != nil {
		api.GET("/requests/:request-id", r.getRequest)
		api.GET("/stats", r.getStats)
	}

	return router
}

func (r *Router) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqOrigin := c.GetHeader("Origin")
		if reqOrigin == "" {
			c.Header("Access-Control-Allow-Origin", strings.Join(r.corsOrigins, ", "))
		} else {
			allowOrigin := ""
			if len(r.corsOrigins) == 1 && r.corsOrigins[0] == "*" {
				allowOrigin = "*"
			} else {
				for _, allowed := range r.corsOrigins {
					if allowed == reqOrigin {
						allowOrigin = reqOrigin
						break
					}
				}
			}
			if allowOrigin != "" {
				c.Header("Access-Control-Allow-Origin", allowOrigin)
			}
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, X-Correlation-ID")
		c.Header("Access-Control-Expose-Headers", "X-Request-ID, X-Routed-Model, X-Routing-Fallback")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// requestIDMiddleware adopts a client UUID from X-Request-ID or X-Correlation-ID and
// generates one otherwise. Non-UUID client ids are echoed back under X-Client-*.
func (r *Router) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestUUID := uuid.Nil

		for _, header := range []string{HeaderRequestID, HeaderCorrelationID} {
			clientID := c.GetHeader(header)
			if clientID == "" {
				continue
			}
			if parsed, err := uuid.Parse(clientID); err == nil {
				requestUUID = parsed
			} else {
				c.Header("X-Client-"+strings.TrimPrefix(header, "X-"), clientID)
			}
			break
		}
		if requestUUID == uuid.Nil {
			requestUUID = uuid.New()
		}

		c.Header(HeaderRequestID, requestUUID.String())
		c.Set(requestUUIDKey, requestUUID)
		c.Request = c.Request.WithContext(domain.WithRequestID(c.Request.Context(), requestUUID))

		c.Next()
	}
}

func (r *Router) healthCheck(c *gin.Context) {
	checks := gin.H{
		"api": "ok",
	}

	overallOK := true

	if r.dbManager != nil {
		if err := r.dbManager.Health(c.Request.Context()); err != nil {
			checks["db"] = gin.H{"ok": false, "error": err.Error()}
			overallOK = false
		} else {
			checks["db"] = gin.H{"ok": true}
		}
	}

	if r.processor != nil {
		ph := r.processor.Health()
		checks["processor"] = ph
		if !ph.IsRunning {
			overallOK = false
		}
	}

	// open breakers degrade a single model, not the service
	if r.breakers != nil {
		states := gin.H{}
		for model, state := range r.breakers.GetCircuitStates() {
			states[model] = state.String()
		}
		checks["circuit_breakers"] = states
	}

	status := "healthy"
	code := http.StatusOK
	if !overallOK {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "llm-router",
		"version":   "1.0.0",
		"checks":    checks,
	})
}

// liveness probe: process is up and serving HTTP
func (r *Router) liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// readiness probe: dependencies healthy and ready to serve traffic
func (r *Router) readiness(c *gin.Context) {
	checks := gin.H{}
	ready := true

	if r.dbManager != nil {
		if err := r.dbManager.Health(c.Request.Context()); err != nil {
			checks["db"] = gin.H{"ok": false, "error": err.Error()}
			ready = false
		} else {
			checks["db"] = gin.H{"ok": true}
		}
	}

	if r.processor != nil {
		ph := r.processor.Health()
		checks["processor"] = ph
		if !ph.IsRunning {
			ready = false
		}
	}

	if ready {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ready",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"checks":    checks,
		})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{
		"status":    "not_ready",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

func (r *Router) chat(c *gin.Context) {
	var req domain.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Failed to bind chat request")
		r.observe(StatusBadRequest)
		c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: "Invalid request format"})
		return
	}

	reply, err := r.service.Chat(c.Request.Context(), &req)
	if err != nil {
		code, status := classify(err)
		r.observe(status)

		entry := logrus.WithError(err).WithFields(logrus.Fields{
			"request_id":  c.Writer.Header().Get(HeaderRequestID),
			"http_status": code,
		})
		var message string
		switch code {
		case http.StatusInternalServerError:
			message = "Failed to process request"
			entry.Error("Chat request failed")
		case http.StatusBadRequest:
			message = err.Error()
			entry.Info("Rejected chat request")
		default:
			message = upstreamMessage(err)
			entry.Error("Chat request failed upstream")
		}

		c.JSON(code, domain.ErrorResponse{Error: message})
		return
	}

	r.observe(StatusOK)
	c.Header(HeaderRoutedModel, reply.Model)
	c.Header(HeaderRoutingFallback, strconv.FormatBool(reply.Fallback))
	c.JSON(http.StatusOK, domain.ChatResponse{Messages: reply.Messages()})
}

// classify maps a pipeline error to its HTTP status and outcome label.
func classify(err error) (int, string) {
	var upstream *domain.UpstreamError
	switch {
	case errors.Is(err, domain.ErrMalformedRequest):
		return http.StatusBadRequest, StatusBadRequest
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable, StatusUnavailable
	case errors.As(err, &upstream) && upstream.Timeout():
		return http.StatusGatewayTimeout, StatusTimeout
	case upstream != nil:
		return http.StatusBadGateway, StatusUpstreamError
	default:
		return http.StatusInternalServerError, StatusInternalError
	}
}

// upstreamMessage keeps upstream response bodies out of client-facing errors; they are logged.
func upstreamMessage(err error) string {
	var upstream *domain.UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Summary()
	}
	return "Upstream unavailable"
}

func (r *Router) observe(status string) {
	if r.observer != nil {
		r.observer.ObserveRequest(status)
	}
}

func (r *Router) listModels(c *gin.Context) {
	if r.catalog == nil {
		c.JSON(http.StatusOK, gin.H{"models": []catalog.ModelDescriptor{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": r.catalog.Descriptors()})
}

// FeedbackRequest represents the structure for feedback submission
type FeedbackRequest struct {
	RequestID    string   `json:"request_id" binding:"required"`
	FeedbackText string   `json:"feedback_text"`
	Score        *float64 `json:"score" binding:"required,min=0,max=1"`
}

// submitFeedback queues a score for an earlier request
func (r *Router) submitFeedback(c *gin.Context) {
	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "details": err.Error()})
		return
	}

	requestID, err := uuid.Parse(req.RequestID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request ID format"})
		return
	}

	ctx := context.WithoutCancel(c.Request.Context())
	if err := r.service.SubmitFeedback(ctx, requestID, req.FeedbackText, *req.Score); err != nil {
		switch {
		case errors.Is(err, domain.ErrMalformedRequest):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, persistence.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Request not found"})
		default:
			logrus.WithError(err).Errorf("Failed to submit feedback for request %s", requestID)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Feedback system not available"})
		}
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message":    "Feedback submitted successfully",
		"request_id": req.RequestID,
	})
}

// getRequest retrieves a complete request record with all relations
func (r *Router) getRequest(c *gin.Context) {
	requestID, err := uuid.Parse(c.Param("request-id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request ID format"})
		return
	}

	record, err := r.requestRepo.FindByIDWithRelations(c.Request.Context(), requestID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Request not found"})
			return
		}
		logrus.WithError(err).Errorf("Failed to get request %s", requestID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve request"})
		return
	}

	c.JSON(http.StatusOK, record)
}

// getStats returns aggregated metrics over the most recent requests and per-model usage
func (r *Router) getStats(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "1000"))
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit parameter"})
		return
	}

	ctx := c.Request.Context()
	aggregated, err := r.metricsRepo.GetAggregatedMetrics(ctx, limit)
	if err != nil {
		logrus.WithError(err).Error("Failed to get aggregated metrics")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve aggregated metrics"})
		return
	}

	usage, err := r.requestRepo.CountByModel(ctx)
	if err != nil {
		logrus.WithError(err).Error("Failed to count requests by model")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve model usage"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"metrics": aggregated,
		"models":  usage,
	})
}
