// Copyright Home Assistant Mobile Push Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/home-assistant/mobile-push/internal/apischema/fcm"
	"github.com/home-assistant/mobile-push/internal/apischema/push"
	"github.com/home-assistant/mobile-push/internal/errlog"
	"github.com/home-assistant/mobile-push/internal/json"
	"github.com/home-assistant/mobile-push/internal/transformer"
)

const (
	errMissingToken = "You did not send a token!"
	errInvalidToken = "That is not a valid FCM token"
)

// processor owns the state of one notification request as it moves through
// validate, transform, admit, send and account. Nothing here is shared across
// requests.
type processor struct {
	srv     *Server
	variant string
	build   transformer.Builder

	rawBody      []byte
	notification push.Notification
	message      *fcm.Message
}

// run drives the request state machine and always writes exactly one response.
func (p *processor) run(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s := p.srv

	if !p.readRequest(w, r) {
		return
	}
	token := p.notification.PushToken

	update, msg := p.build(&p.notification)
	msg.Token = token
	p.message = msg

	// Admission. The pre-attempt read also serves the updateRateLimits=false
	// path, whose response reflects the quota untouched.
	status, err := s.engine.Check(ctx, token)
	if err != nil {
		p.fail(ctx, w, errlog.StepGetRateLimitDoc, err)
		return
	}
	if update {
		status, err = s.engine.RecordAttempt(ctx, token)
		if err != nil {
			p.fail(ctx, w, errlog.StepCreateRateLimitDoc, err)
			return
		}
		if status.RateLimited {
			s.metrics.RecordRateLimited(ctx, p.variant)
			p.respond(ctx, w, http.StatusTooManyRequests, push.RateLimitedResponse{
				ErrorType:  "RateLimited",
				Message:    "The given target has reached the maximum number of notifications allowed per day. Please try again later.",
				Target:     token,
				RateLimits: status.Limits,
			})
			return
		}
	}

	// Send. The error path still counts against errorCount before the
	// response is classified, so that the counters track real attempts.
	label := ""
	if msg.Options != nil {
		label = msg.Options.AnalyticsLabel
	}
	start := time.Now()
	messageID, err := s.sender.Send(ctx, msg)
	s.metrics.RecordSend(ctx, label, time.Since(start), err == nil)
	if err != nil {
		if update {
			if _, accErr := s.engine.RecordError(ctx, token); accErr != nil {
				s.logger.Error("failed to record send error",
					slog.String("target", token), slog.String("error", accErr.Error()))
			}
		}
		p.fail(ctx, w, errlog.StepSendNotification, err)
		return
	}

	if update {
		status, err = s.engine.RecordSuccess(ctx, token)
		if err != nil {
			p.fail(ctx, w, errlog.StepUpdateRateLimitDoc, err)
			return
		}
		if status.ShouldNotify {
			p.sendRateLimitNotification(ctx, token)
		}
	}

	p.respond(ctx, w, http.StatusCreated, push.SendResponse{
		MessageID:   messageID,
		SentPayload: msg,
		Target:      token,
		RateLimits:  status.Limits,
	})
}

// handleCheck serves the read-only quota endpoint.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := &processor{srv: s, variant: "check"}
	if !p.readRequest(w, r) {
		return
	}
	token := p.notification.PushToken
	status, err := s.engine.Check(ctx, token)
	if err != nil {
		p.fail(ctx, w, errlog.StepGetRateLimitDoc, err)
		return
	}
	p.respond(ctx, w, http.StatusOK, push.CheckResponse{Target: token, RateLimits: status.Limits})
}

// readRequest parses the body and rejects missing or malformed tokens cheaply,
// before any downstream call. It reports whether processing should continue.
func (p *processor) readRequest(w http.ResponseWriter, r *http.Request) bool {
	ctx := r.Context()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		p.respond(ctx, w, http.StatusForbidden, push.TokenErrorResponse{ErrorMessage: errMissingToken})
		return false
	}
	p.rawBody = body
	if len(body) > 0 {
		// A malformed body is treated like a body without a token.
		_ = json.Unmarshal(body, &p.notification)
	}
	if p.notification.PushToken == "" {
		p.respond(ctx, w, http.StatusForbidden, push.TokenErrorResponse{ErrorMessage: errMissingToken})
		return false
	}
	if !strings.Contains(p.notification.PushToken, ":") {
		p.respond(ctx, w, http.StatusForbidden, push.TokenErrorResponse{ErrorMessage: errInvalidToken})
		return false
	}
	return true
}

// sendRateLimitNotification fires the one-shot quota push on a best-effort
// basis; a failure is reported but never fails the request.
func (p *processor) sendRateLimitNotification(ctx context.Context, token string) {
	s := p.srv
	oneShot := transformer.RateLimited(token, s.engine.Maximum(), s.engine.ResetsAt())
	start := time.Now()
	_, err := s.sender.Send(ctx, oneShot)
	s.metrics.RecordSend(ctx, fcm.LabelRateLimit, time.Since(start), err == nil)
	if err == nil {
		return
	}
	c := errlog.Classify(errlog.StepSendRateLimit, err)
	s.logger.Error("failed to send rate limit notification",
		slog.String("target", token),
		slog.String("errorType", c.Type),
		slog.String("error", err.Error()),
	)
	if c.Loggable {
		s.sink.Report(ctx, p.entry(c))
	}
}

// fail classifies err, reports it when loggable and writes the 500 envelope.
func (p *processor) fail(ctx context.Context, w http.ResponseWriter, step errlog.Step, err error) {
	c := errlog.Classify(step, err)
	s := p.srv
	s.metrics.RecordClassifiedError(ctx, c.Type, string(c.Step))
	if c.Loggable {
		s.sink.Report(ctx, p.entry(c))
	}
	p.respond(ctx, w, http.StatusInternalServerError, push.ErrorResponse{
		ErrorType: c.Type,
		ErrorCode: c.Code,
		ErrorStep: string(c.Step),
		Message:   c.Message,
	})
}

func (p *processor) entry(c errlog.Classification) errlog.Entry {
	var sentPayload []byte
	if p.message != nil {
		sentPayload, _ = json.Marshal(p.message)
	}
	return errlog.Entry{
		Step:             c.Step,
		Message:          c.Message,
		RequestBody:      p.rawBody,
		SentPayload:      sentPayload,
		RegistrationInfo: p.notification.RegistrationInfo,
	}
}

func (p *processor) respond(ctx context.Context, w http.ResponseWriter, status int, v any) {
	p.srv.metrics.RecordRequest(ctx, p.variant, status)
	p.srv.writeJSON(w, status, v)
}
