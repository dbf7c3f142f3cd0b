// Copyright Home Assistant Mobile Push Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package mainlib holds the testable entrypoint of the push gateway binary.
package mainlib

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alecthomas/kong"

	"github.com/home-assistant/mobile-push/internal/errlog"
	"github.com/home-assistant/mobile-push/internal/gateway"
	"github.com/home-assistant/mobile-push/internal/metrics"
	"github.com/home-assistant/mobile-push/internal/ratelimit"
	"github.com/home-assistant/mobile-push/internal/server"
	"github.com/home-assistant/mobile-push/internal/version"
)

// flags is the process configuration, every field bound to the environment
// variable the deployment manifests set.
type flags struct {
	Port        int    `name:"port" env:"PORT" default:"8080" help:"Listening port."`
	MaxPerDay   int    `name:"max-notifications-per-day" env:"MAX_NOTIFICATIONS_PER_DAY" default:"500" help:"Daily notification quota per device token."`
	Region      string `name:"region" env:"REGION" default:"us-central1" help:"Deployment region label for telemetry."`
	Debug       bool   `name:"debug" env:"DEBUG" help:"Enable verbose logging."`
	Project     string `name:"gcp-project" env:"GCP_PROJECT" help:"GCP project hosting FCM, Firestore and Cloud Logging."`
	FCMEndpoint string `name:"fcm-endpoint" env:"FCM_ENDPOINT" help:"Override the FCM API host, for tests and emulators."`
	ValkeyHost  string `name:"valkey-host" env:"VALKEY_HOST" help:"Valkey host; with valkey-port, selects the cluster KV rate limit backend."`
	ValkeyPort  string `name:"valkey-port" env:"VALKEY_PORT" help:"Valkey port."`
}

// parseFlags parses the command line with environment bindings. It never calls
// os.Exit; parse failures come back as errors.
func parseFlags(args []string, stderr io.Writer) (*flags, error) {
	var f flags
	parser, err := kong.New(&f,
		kong.Name("pushgw"),
		kong.Description("Push notification gateway for the Home Assistant companion apps."),
		kong.Writers(stderr, stderr),
		kong.Exit(func(int) {}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create flag parser: %w", err)
	}
	if _, err := parser.Parse(args); err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}
	f.Region = strings.ToLower(f.Region)
	if f.MaxPerDay <= 0 {
		return nil, fmt.Errorf("max-notifications-per-day must be positive, got %d", f.MaxPerDay)
	}
	return &f, nil
}

// Main runs the push gateway until ctx is canceled or startup fails.
func Main(ctx context.Context, args []string, stderr io.Writer) error {
	f, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	level := slog.LevelInfo
	if f.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: level}))

	m, err := metrics.NewMetricsFromEnv(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	pushMetrics, err := metrics.NewPush(m.Meter(), f.Region)
	if err != nil {
		return fmt.Errorf("failed to create push metrics: %w", err)
	}

	store, backend, err := newStore(ctx, f)
	if err != nil {
		return err
	}
	engine := ratelimit.NewEngine(store, f.MaxPerDay)

	sender, err := gateway.NewClient(ctx, f.Project, f.FCMEndpoint)
	if err != nil {
		return fmt.Errorf("failed to create FCM client: %w", err)
	}

	sink := newSink(ctx, f, logger)

	srv := server.New(logger, engine, sender, sink, pushMetrics, f.Debug)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", f.Port),
		Handler:           srv.Routes(m.Registry()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()
	logger.Info("push gateway started",
		slog.String("version", version.Version),
		slog.Int("port", f.Port),
		slog.String("region", f.Region),
		slog.String("rateLimitBackend", backend),
		slog.Int("maxNotificationsPerDay", f.MaxPerDay),
	)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to drain active requests", slog.String("error", err.Error()))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	if err := store.Close(); err != nil {
		logger.Error("failed to close rate limit store", slog.String("error", err.Error()))
	}
	if err := sink.Close(); err != nil {
		logger.Error("failed to close error sink", slog.String("error", err.Error()))
	}
	if err := m.Shutdown(context.Background()); err != nil {
		logger.Error("failed to shut down metrics", slog.String("error", err.Error()))
	}
	return nil
}

// newStore selects the rate limit backend: cluster KV when both Valkey
// variables are set, the document store otherwise.
func newStore(ctx context.Context, f *flags) (ratelimit.Store, string, error) {
	if f.ValkeyHost != "" && f.ValkeyPort != "" {
		store, err := ratelimit.NewValkeyStore(ctx, f.ValkeyHost, f.ValkeyPort)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create valkey store: %w", err)
		}
		return store, "valkey", nil
	}
	if f.Project == "" {
		return nil, "", errors.New("gcp-project is required when no valkey backend is configured")
	}
	store, err := ratelimit.NewFirestoreStore(ctx, f.Project)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create firestore store: %w", err)
	}
	return store, "firestore", nil
}

// newSink prefers Cloud Logging when a project is configured and degrades to
// the process logger otherwise.
func newSink(ctx context.Context, f *flags, logger *slog.Logger) errlog.Sink {
	if f.Project != "" {
		sink, err := errlog.NewCloudSink(ctx, f.Project, f.Region)
		if err == nil {
			return sink
		}
		logger.Warn("cloud logging unavailable, using process logger for error records",
			slog.String("error", err.Error()))
	}
	return errlog.NewSlogSink(logger)
}
