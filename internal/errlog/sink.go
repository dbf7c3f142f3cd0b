// Copyright Home Assistant Mobile Push Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package errlog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"cloud.google.com/go/logging"
	"google.golang.org/api/option"
	mrpb "google.golang.org/genproto/googleapis/api/monitoredres"

	"github.com/home-assistant/mobile-push/internal/apischema/push"
)

// Entry is one structured error record.
type Entry struct {
	Step             Step
	Message          string
	RequestBody      []byte
	SentPayload      []byte
	RegistrationInfo push.RegistrationInfo
}

// Sink receives the loggable error entries. Implementations must be safe for
// concurrent use; Report is best-effort and never fails the request.
type Sink interface {
	Report(ctx context.Context, e Entry)
	Close() error
}

// NoopSink drops every entry.
type NoopSink struct{}

// Report implements [Sink.Report].
func (NoopSink) Report(context.Context, Entry) {}

// Close implements [Sink.Close].
func (NoopSink) Close() error { return nil }

// SlogSink writes entries to the process logger. It is the local and
// development fallback when Cloud Logging is not configured.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink creates a SlogSink on the given logger.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return &SlogSink{logger: logger.With(slog.String("component", "errlog"))}
}

// Report implements [Sink.Report].
func (s *SlogSink) Report(ctx context.Context, e Entry) {
	s.logger.ErrorContext(ctx, e.Message,
		slog.String("step", string(e.Step)),
		slog.String("requestBody", string(e.RequestBody)),
		slog.String("sentPayload", string(e.SentPayload)),
		slog.String("appId", e.RegistrationInfo.AppID),
		slog.String("appVersion", e.RegistrationInfo.AppVersion),
		slog.String("osVersion", e.RegistrationInfo.OSVersion),
	)
}

// Close implements [Sink.Close].
func (s *SlogSink) Close() error { return nil }

// CloudSink writes entries to Cloud Logging, one log stream per step named
// errors-<step>, severity ERROR, resource type global.
type CloudSink struct {
	client *logging.Client
	region string

	mu      sync.Mutex
	loggers map[Step]*logging.Logger
}

var _ Sink = (*CloudSink)(nil)

// NewCloudSink connects to the project's Cloud Logging API.
func NewCloudSink(ctx context.Context, projectID, region string, opts ...option.ClientOption) (*CloudSink, error) {
	client, err := logging.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create logging client: %w", err)
	}
	return &CloudSink{client: client, region: region, loggers: map[Step]*logging.Logger{}}, nil
}

// Report implements [Sink.Report].
func (s *CloudSink) Report(_ context.Context, e Entry) {
	s.logger(e.Step).Log(logging.Entry{
		Severity: logging.Error,
		Payload:  map[string]string{"message": e.Message},
		Labels: map[string]string{
			"step":        string(e.Step),
			"region":      s.region,
			"requestBody": string(e.RequestBody),
			"sentPayload": string(e.SentPayload),
			"app_id":      e.RegistrationInfo.AppID,
			"app_version": e.RegistrationInfo.AppVersion,
			"os_version":  e.RegistrationInfo.OSVersion,
		},
	})
}

// Close flushes buffered entries and releases the client.
func (s *CloudSink) Close() error {
	return s.client.Close()
}

func (s *CloudSink) logger(step Step) *logging.Logger {
	s.mu.Lock()
	defer s.mu.Unlock()
	logger, ok := s.loggers[step]
	if !ok {
		logger = s.client.Logger("errors-"+string(step),
			logging.CommonResource(&mrpb.MonitoredResource{Type: "global"}))
		s.loggers[step] = logger
	}
	return logger
}
