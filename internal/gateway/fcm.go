// Copyright Home Assistant Mobile Push Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package gateway holds the FCM HTTP v1 client the orchestrator sends through.
package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/home-assistant/mobile-push/internal/apischema/fcm"
	"github.com/home-assistant/mobile-push/internal/json"
)

// messagingScope is the OAuth scope of the FCM v1 send API.
const messagingScope = "https://www.googleapis.com/auth/firebase.messaging"

// Sender delivers one message to the upstream push gateway.
type Sender interface {
	// Send posts the message and returns the upstream message id.
	Send(ctx context.Context, msg *fcm.Message) (messageID string, err error)
}

// Client implements Sender against the FCM HTTP v1 API.
type Client struct {
	httpClient *http.Client
	endpoint   string
}

var _ Sender = (*Client)(nil)

// NewClient builds a client for the given project using application default
// credentials. endpointOverride replaces the production API host for tests and
// emulators.
func NewClient(ctx context.Context, projectID, endpointOverride string) (*Client, error) {
	host := "https://fcm.googleapis.com"
	if endpointOverride != "" {
		host = strings.TrimSuffix(endpointOverride, "/")
	}
	endpoint := fmt.Sprintf("%s/v1/projects/%s/messages:send", host, projectID)
	ts, err := google.DefaultTokenSource(ctx, messagingScope)
	if err != nil {
		return nil, fmt.Errorf("failed to create FCM token source: %w", err)
	}
	return &Client{httpClient: oauth2.NewClient(ctx, ts), endpoint: endpoint}, nil
}

// NewClientWithHTTP builds a client over an existing HTTP client and full send
// URL. Used by tests.
func NewClientWithHTTP(httpClient *http.Client, endpoint string) *Client {
	return &Client{httpClient: httpClient, endpoint: endpoint}
}

// Send implements [Sender.Send].
func (c *Client) Send(ctx context.Context, msg *fcm.Message) (string, error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal FCM message: %w", err)
	}
	// The v1 wire envelope wraps the message object.
	body, err := sjson.SetRawBytes([]byte(`{}`), "message", raw)
	if err != nil {
		return "", fmt.Errorf("failed to build FCM request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create FCM request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to reach FCM: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read FCM response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", decodeSendError(resp.StatusCode, respBody)
	}
	// The success body is {"name": "projects/<p>/messages/<id>"}.
	name := gjson.GetBytes(respBody, "name").String()
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		return name[i+1:], nil
	}
	return name, nil
}

// SendError is a classified upstream rejection. Code carries the Firebase
// admin-SDK style error code the error classifier consumes.
type SendError struct {
	Code   string
	Status string
	Detail string
	HTTP   int
}

// Error implements error.
func (e *SendError) Error() string {
	return fmt.Sprintf("fcm send failed (%s): %s", e.Code, e.Detail)
}

// decodeSendError maps the v1 error body onto the admin-SDK style code space.
// The body shape is {"error": {"status", "message", "details": [{"@type",
// "errorCode"}]}}.
func decodeSendError(httpStatus int, body []byte) *SendError {
	errBody := gjson.GetBytes(body, "error")
	status := errBody.Get("status").String()
	message := errBody.Get("message").String()
	fcmCode := ""
	errBody.Get("details").ForEach(func(_, detail gjson.Result) bool {
		if code := detail.Get("errorCode").String(); code != "" {
			fcmCode = code
			return false
		}
		return true
	})
	return &SendError{
		Code:   adminCode(httpStatus, status, fcmCode, message),
		Status: status,
		Detail: message,
		HTTP:   httpStatus,
	}
}

func adminCode(httpStatus int, status, fcmCode, message string) string {
	switch fcmCode {
	case "UNREGISTERED":
		return "registration-token-not-registered"
	case "SENDER_ID_MISMATCH":
		return "mismatched-credential"
	case "QUOTA_EXCEEDED":
		return "quota-exceeded"
	case "UNAVAILABLE":
		return "unavailable"
	case "INTERNAL":
		return "internal-error"
	case "THIRD_PARTY_AUTH_ERROR":
		return "third-party-auth-error"
	case "INVALID_ARGUMENT":
		// The v1 API reports a malformed token as INVALID_ARGUMENT; tell the
		// two cases apart by the message.
		if strings.Contains(strings.ToLower(message), "token") {
			return "invalid-registration-token"
		}
		return "invalid-argument"
	}
	switch {
	case status == "NOT_FOUND":
		return "registration-token-not-registered"
	case status == "INVALID_ARGUMENT":
		return "invalid-argument"
	case httpStatus == http.StatusRequestEntityTooLarge:
		return "payload-too-large"
	}
	return "unknown-error"
}
