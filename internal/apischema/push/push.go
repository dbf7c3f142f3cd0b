// Copyright Home Assistant Mobile Push Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package push defines the wire schema of the notification endpoints: the
// request body posted by the companion apps and the response envelopes
// returned by the gateway.
package push

import (
	"strings"

	"github.com/home-assistant/mobile-push/internal/ratelimit"
)

const (
	// iosAppID marks builds of the iOS companion app. Matched as a substring so
	// the beta and debug bundle ids are covered.
	iosAppID = "io.robbie.HomeAssistant"
	// androidAppID marks builds of the Android companion app, including the
	// .debug and .beta flavors.
	androidAppID = "io.homeassistant.companion.android"
)

// RegistrationInfo identifies the installed app posting the notification.
type RegistrationInfo struct {
	AppID      string `json:"app_id"`
	AppVersion string `json:"app_version,omitempty"`
	OSVersion  string `json:"os_version,omitempty"`
	WebhookID  string `json:"webhook_id,omitempty"`
}

// Notification is the body of every notification endpoint. Data is a free-form
// tree; the transformer enumerates the recognized keys per variant and ignores
// the rest.
type Notification struct {
	PushToken        string           `json:"push_token"`
	Message          string           `json:"message,omitempty"`
	Title            string           `json:"title,omitempty"`
	RegistrationInfo RegistrationInfo `json:"registration_info"`
	Data             map[string]any   `json:"data,omitempty"`
}

// HomeAssistantIOS reports whether the request comes from the iOS companion app.
func (n *Notification) HomeAssistantIOS() bool {
	return strings.Contains(n.RegistrationInfo.AppID, iosAppID)
}

// HomeAssistantAndroid reports whether the request comes from the Android companion app.
func (n *Notification) HomeAssistantAndroid() bool {
	return strings.Contains(n.RegistrationInfo.AppID, androidAppID)
}

// DataMap returns the value of a data key when it is an object.
func (n *Notification) DataMap(key string) (map[string]any, bool) {
	m, ok := n.Data[key].(map[string]any)
	return m, ok
}

// DataString returns the value of a data key when it is a string.
func (n *Notification) DataString(key string) (string, bool) {
	s, ok := n.Data[key].(string)
	return s, ok
}

// SendResponse is the 201 envelope of a delivered notification.
type SendResponse struct {
	MessageID   string           `json:"messageId"`
	SentPayload any              `json:"sentPayload"`
	Target      string           `json:"target"`
	RateLimits  ratelimit.Limits `json:"rateLimits"`
}

// CheckResponse is the 200 envelope of /checkRateLimits.
type CheckResponse struct {
	Target     string           `json:"target"`
	RateLimits ratelimit.Limits `json:"rateLimits"`
}

// RateLimitedResponse is the 429 envelope returned once the daily quota is spent.
type RateLimitedResponse struct {
	ErrorType  string           `json:"errorType"`
	Message    string           `json:"message"`
	Target     string           `json:"target"`
	RateLimits ratelimit.Limits `json:"rateLimits"`
}

// ErrorResponse is the 500 envelope of a classified send failure.
type ErrorResponse struct {
	ErrorType string `json:"errorType"`
	ErrorCode string `json:"errorCode,omitempty"`
	ErrorStep string `json:"errorStep,omitempty"`
	Message   string `json:"message,omitempty"`
}

// TokenErrorResponse is the 403 envelope for a missing or malformed token.
type TokenErrorResponse struct {
	ErrorMessage string `json:"errorMessage"`
}

// HealthResponse is the /health body.
type HealthResponse struct {
	Status string `json:"status"`
}
