package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	chatapp "github.com/noor188/Intelligent-LLM-Router/application/chat"
	routerapp "github.com/noor188/Intelligent-LLM-Router/application/router"
	"github.com/noor188/Intelligent-LLM-Router/domain/routing"
	"github.com/noor188/Intelligent-LLM-Router/infrastructure/metrics"
	"github.com/noor188/Intelligent-LLM-Router/infrastructure/openrouter"
	infrapersistence "github.com/noor188/Intelligent-LLM-Router/infrastructure/persistence"
	httpiface "github.com/noor188/Intelligent-LLM-Router/interfaces/http"
	"github.com/noor188/Intelligent-LLM-Router/internal/config"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// breakerStates reports routing and completion breakers under one health key.
type breakerStates struct {
	routing    *openrouter.CircuitBreakerProvider
	completion *openrouter.CircuitBreakerProvider
}

func (b breakerStates) GetCircuitStates() map[string]gobreaker.State {
	states := b.completion.GetCircuitStates()
	for model, state := range b.routing.GetCircuitStates() {
		states["routing:"+model] = state
	}
	return states
}

func configureLogging(cfg config.LoggingConfig) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	switch cfg.Format {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	logrus.SetReportCaller(cfg.ReportCaller)
}

func main() {
	ctx := context.Background()

	cfg, err := config.LoadYAML(os.Getenv("CONFIG_FILE"))
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	configureLogging(cfg.Logging)

	modelCatalog, err := cfg.BuildCatalog()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to build model catalog")
	}

	logrus.WithFields(logrus.Fields{
		"port":               cfg.Server.Port,
		"host":               cfg.Server.Host,
		"meta_model":         cfg.Router.MetaModel,
		"models":             modelCatalog.IDs(),
		"max_content":        humanize.Comma(int64(cfg.Server.MaxContentLength)),
		"enable_persistence": cfg.Database.EnablePersistence,
	}).Info("Starting Intelligent LLM Router")

	completionProvider := openrouter.NewProvider(openrouter.ProviderConfig{
		APIKey:      cfg.LLMProvider.APIKey,
		BaseURL:     cfg.LLMProvider.BaseURL,
		RefererURL:  cfg.Server.RefererURL,
		AppName:     cfg.Server.AppName,
		Timeout:     cfg.LLMProvider.Timeout,
		MaxAttempts: 1,
	})
	routingProvider := completionProvider.WithMaxAttempts(cfg.Router.RoutingRetries + 1)

	breakerConfig := openrouter.CircuitBreakerConfig{
		Enabled:          cfg.CircuitBreaker.Enabled,
		FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
		SuccessThreshold: cfg.CircuitBreaker.SuccessThreshold,
		Timeout:          cfg.CircuitBreaker.Timeout,
		MaxRequests:      cfg.CircuitBreaker.MaxRequests,
	}
	breakers := breakerStates{
		routing:    openrouter.NewCircuitBreakerProvider(routingProvider, breakerConfig),
		completion: openrouter.NewCircuitBreakerProvider(completionProvider, breakerConfig),
	}

	logrus.WithFields(logrus.Fields{
		"enabled":           breakerConfig.Enabled,
		"failure_threshold": breakerConfig.FailureThreshold,
		"timeout":           breakerConfig.Timeout,
	}).Info("Circuit breaker configured")

	var recorder *metrics.Recorder
	var observer routing.Observer = routing.NopObserver{}
	if cfg.Metrics.Enabled {
		recorder = metrics.NewRecorder(prometheus.DefaultRegisterer)
		observer = recorder
	}

	router, err := routerapp.New(breakers.routing, modelCatalog, routerapp.Config{
		MetaModel:    cfg.Router.MetaModel,
		DefaultModel: cfg.Router.DefaultModel,
		Timeout:      cfg.Router.RoutingTimeout,
	}, observer)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to create router")
	}
	dispatcher := chatapp.NewDispatcher(breakers.completion, cfg.Router.CompletionTimeout)

	var api *httpiface.Router
	var dbManager *infrapersistence.DatabaseManager
	var eventProcessor *infrapersistence.EventProcessor

	if cfg.Database.EnablePersistence {
		dbManager = infrapersistence.NewDatabaseManager()

		if err := dbManager.Connect(ctx, cfg.Database.Driver, cfg.GetDatabaseDSN()); err != nil {
			logrus.WithError(err).Fatal("Failed to connect to database")
		}

		if err := dbManager.Migrate(); err != nil {
			logrus.WithError(err).Fatal("Failed to run database migrations")
		}

		requestRepo, metricsRepo, feedbackRepo := dbManager.GetRepositories()

		eventProcessor = infrapersistence.NewEventProcessor(
			requestRepo,
			metricsRepo,
			feedbackRepo,
			cfg.Database.Workers,
			cfg.Database.BufferSize,
		)
		if err := eventProcessor.Start(ctx); err != nil {
			logrus.WithError(err).Fatal("Failed to start event processor")
		}

		tracker := infrapersistence.NewRequestTracker(eventProcessor, requestRepo)
		service := chatapp.NewService(router, dispatcher, modelCatalog, tracker, observer).
			WithMaxContentLength(cfg.Server.MaxContentLength)

		api = httpiface.NewRouterWithPersistence(service, modelCatalog, cfg.Server.CorsOrigins, metricsRepo, requestRepo, dbManager, eventProcessor)

		logrus.WithField("driver", cfg.Database.Driver).Info("Persistence layer initialized successfully")
	} else {
		service := chatapp.NewService(router, dispatcher, modelCatalog, nil, observer).
			WithMaxContentLength(cfg.Server.MaxContentLength)

		api = httpiface.NewRouter(service, modelCatalog, cfg.Server.CorsOrigins)

		logrus.Info("Running without persistence layer")
	}

	api = api.WithCircuitStates(breakers)
	if recorder != nil {
		api = api.WithObserver(recorder).WithMetricsHandler(cfg.Metrics.Path, recorder.Handler())
	}

	// routing and completion run back to back inside one request
	writeTimeout := cfg.Router.RoutingTimeout*time.Duration(cfg.Router.RoutingRetries+1) + cfg.Router.CompletionTimeout + 10*time.Second

	address := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              address,
		Handler:           api.SetupRoutes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		logrus.WithField("address", address).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("Failed to start server")
		}
	}()

	<-c
	logrus.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("Server forced to shutdown")
	} else {
		logrus.Info("Server shutdown complete")
	}

	if cfg.Database.EnablePersistence {
		logrus.Info("Shutting down persistence layer...")

		if eventProcessor != nil {
			if err := eventProcessor.Stop(); err != nil {
				logrus.WithError(err).Error("Failed to stop event processor")
			}
		}

		if dbManager != nil {
			if err := dbManager.Close(); err != nil {
				logrus.WithError(err).Error("Failed to close database connection")
			}
		}

		logrus.Info("Persistence layer shutdown complete")
	}
}
