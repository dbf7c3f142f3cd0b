// Copyright Home Assistant Mobile Push Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package server exposes the notification endpoints and drives the per-request
// pipeline: validate, transform, admit, send, account, classify.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	promregistry "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/home-assistant/mobile-push/internal/apischema/push"
	"github.com/home-assistant/mobile-push/internal/errlog"
	"github.com/home-assistant/mobile-push/internal/gateway"
	"github.com/home-assistant/mobile-push/internal/json"
	"github.com/home-assistant/mobile-push/internal/metrics"
	"github.com/home-assistant/mobile-push/internal/ratelimit"
	"github.com/home-assistant/mobile-push/internal/transformer"
)

// requestTimeout bounds one request end to end, downstream calls included.
const requestTimeout = 10 * time.Second

// Server holds the process-wide collaborators shared by all requests. Per
// request state lives in the processor.
type Server struct {
	logger  *slog.Logger
	engine  *ratelimit.Engine
	sender  gateway.Sender
	sink    errlog.Sink
	metrics metrics.Push
	debug   bool
}

// New creates a Server.
func New(logger *slog.Logger, engine *ratelimit.Engine, sender gateway.Sender, sink errlog.Sink, pushMetrics metrics.Push, debug bool) *Server {
	return &Server{
		logger:  logger.With(slog.String("component", "server")),
		engine:  engine,
		sender:  sender,
		sink:    sink,
		metrics: pushMetrics,
		debug:   debug,
	}
}

// Routes builds the HTTP handler. The metrics endpoint is mounted only when a
// Prometheus registry is active.
func (s *Server) Routes(registry *promregistry.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	r.Post("/sendPushNotification", s.handleSend("legacy", transformer.Legacy))
	r.Post("/androidV1", s.handleSend("android-v1", transformer.AndroidV1))
	r.Post("/iOSV1", s.handleSend("ios-v1", transformer.IOSV1))
	r.Post("/checkRateLimits", s.handleCheck)
	r.Get("/health", s.handleHealth)
	if registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}
	return r
}

func (s *Server) handleSend(variant string, build transformer.Builder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := &processor{srv: s, variant: variant, build: build}
		p.run(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, push.HealthResponse{Status: "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to write response", slog.String("error", err.Error()))
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		level := slog.LevelDebug
		if ww.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		if level == slog.LevelDebug && !s.debug {
			return
		}
		s.logger.Log(r.Context(), level, "request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("requestID", middleware.GetReqID(r.Context())),
		)
	})
}
