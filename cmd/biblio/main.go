package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/biblio/internal/config"
	"github.com/kailas-cloud/biblio/internal/domain/query"
	logpkg "github.com/kailas-cloud/biblio/internal/logger"
	"github.com/kailas-cloud/biblio/internal/metrics"
	chiTransport "github.com/kailas-cloud/biblio/internal/transport/chi"
	"github.com/kailas-cloud/biblio/internal/transport/library"
	openaiLLM "github.com/kailas-cloud/biblio/internal/transport/openai"
	"github.com/kailas-cloud/biblio/internal/usecase/assistant"
	healthuc "github.com/kailas-cloud/biblio/internal/usecase/health"
	imagesuc "github.com/kailas-cloud/biblio/internal/usecase/images"
	planneruc "github.com/kailas-cloud/biblio/internal/usecase/planner"
	searchuc "github.com/kailas-cloud/biblio/internal/usecase/search"
	summaryuc "github.com/kailas-cloud/biblio/internal/usecase/summary"
	"github.com/kailas-cloud/biblio/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting biblio API server",
		zap.String("version", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("llm_model", cfg.LLM.Model),
		zap.String("search_url", cfg.Library.SearchURL),
		zap.Bool("debug", cfg.Pipeline.Debug),
	)

	// Register metrics explicitly (no init())
	metrics.Register()

	catalog, source, err := query.LoadCatalog(cfg.Catalog.SchemaPath)
	if err != nil {
		logger.Warn("Search schema unavailable, using default catalog",
			zap.String("path", cfg.Catalog.SchemaPath),
			zap.Error(err),
		)
	}
	logger.Info("Parameter catalog loaded",
		zap.String("source", string(source)),
		zap.Int("params", catalog.Len()),
	)

	// Outbound clients
	libClient := library.New(library.Config{
		APIKey:       cfg.Library.APIKey,
		SearchURL:    cfg.Library.SearchURL,
		ImageBaseURL: cfg.Library.ImageBaseURL,
		ManifestURL:  cfg.Library.ManifestURL,
		RatePerSec:   cfg.Library.RatePerSec,
		Burst:        cfg.Library.Burst,
		HTTPClient:   library.NewHTTPClient(cfg.Library.SearchTimeout()),
	})

	completer := openaiLLM.NewCompleter(&openaiLLM.Config{
		APIKey:   cfg.LLM.APIKey,
		BaseURL:  cfg.LLM.BaseURL,
		Model:    cfg.LLM.Model,
		Provider: cfg.LLM.Provider,
		Timeout:  cfg.LLM.LLMTimeout(),
		HTTPClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		Logger: logger,
	})

	// Pipeline stages
	debug := cfg.Pipeline.Debug
	plannerSvc := planneruc.New(completer, catalog, planneruc.Options{
		Temperature: cfg.LLM.PlannerTemperature,
		Debug:       debug,
	})
	searchSvc := searchuc.New(libClient, plannerSvc.Allowed(), searchuc.Options{
		Timeout:        cfg.Library.SearchTimeout(),
		MaxConcurrency: cfg.Library.MaxConcurrency,
		Debug:          debug,
	})
	imagesSvc := imagesuc.New(libClient, imagesuc.Options{
		Timeout:        cfg.Library.ManifestTimeout(),
		MaxConcurrency: cfg.Library.MaxConcurrency,
		Debug:          debug,
	})
	summarySvc := summaryuc.New(completer, summaryuc.Options{
		Temperature: cfg.LLM.SummaryTemperature,
		Language:    cfg.Pipeline.FallbackLanguage,
		Debug:       debug,
	})
	assistantSvc := assistant.New(plannerSvc, searchSvc, imagesSvc, summarySvc)

	// Health service
	healthSvc := healthuc.New(libClient, completer, version.String())

	// Create chi server
	server := chiTransport.NewServer(assistantSvc, libClient, healthSvc, catalog.Allowed(), logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(tracing(logpkg.ServiceName))
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// tracing wraps every request in an OpenTelemetry server span.
func tracing(serviceName string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, serviceName)
	}
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					if rvr == http.ErrAbortHandler {
						panic(rvr)
					}
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.String("path", r.URL.Path),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(chiTransport.ErrorResponse{
						Code:    chiTransport.ErrorCodeInternal,
						Message: "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
