// Copyright Home Assistant Mobile Push Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package errlog classifies send-path failures into the client-visible error
// taxonomy and reports the loggable ones to a structured error sink.
package errlog

import (
	"errors"
	"strings"

	"github.com/home-assistant/mobile-push/internal/gateway"
)

// Step names the processing stage a failure happened in. It is reflected into
// the error response and into the sink log name.
type Step string

const (
	StepGetRateLimitDoc    Step = "getRateLimitDoc"
	StepSendNotification   Step = "sendNotification"
	StepSendRateLimit      Step = "sendRateLimitNotification"
	StepCreateRateLimitDoc Step = "createRateLimitDocument"
	StepUpdateRateLimitDoc Step = "updateRateLimitDocument"
)

// Client-visible error types.
const (
	TypeInvalidToken    = "InvalidToken"
	TypePayloadTooLarge = "PayloadTooLarge"
	TypeInternalError   = "InternalError"
)

// Classification is the classifier verdict for one failure.
type Classification struct {
	Type    string
	Code    string
	Step    Step
	Message string
	// Loggable is false for client-caused failures (dead tokens, oversized
	// payloads) that would only flood the error sink.
	Loggable bool
}

// Classify maps a failure to the client-visible taxonomy.
func Classify(step Step, err error) Classification {
	message := err.Error()
	code := ""
	var sendErr *gateway.SendError
	if errors.As(err, &sendErr) {
		code = sendErr.Code
		message = sendErr.Detail
	}
	lower := strings.ToLower(message)
	switch {
	case code == "invalid-registration-token" || code == "registration-token-not-registered":
		return Classification{Type: TypeInvalidToken, Code: code, Step: step, Message: message}
	case code == "invalid-argument" || code == "payload-too-large" ||
		strings.Contains(lower, "message is too big") ||
		strings.Contains(lower, "payload too large"):
		return Classification{Type: TypePayloadTooLarge, Code: code, Step: step, Message: message}
	default:
		return Classification{Type: TypeInternalError, Step: step, Message: message, Loggable: true}
	}
}
