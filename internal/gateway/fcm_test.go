// Copyright Home Assistant Mobile Push Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package gateway

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/home-assistant/mobile-push/internal/apischema/fcm"
)

func TestClient_SendSuccess(t *testing.T) {
	var gotBody []byte
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name": "projects/push-test/messages/0:12345%abc"}`))
	}))
	defer ts.Close()

	client := NewClientWithHTTP(ts.Client(), ts.URL)
	msg := &fcm.Message{
		Token:        "abc:1",
		Notification: &fcm.Notification{Body: "Hi"},
	}
	messageID, err := client.Send(t.Context(), msg)
	require.NoError(t, err)
	assert.Equal(t, "0:12345%abc", messageID)

	// The wire envelope wraps the message.
	assert.Equal(t, "abc:1", gjson.GetBytes(gotBody, "message.token").String())
	assert.Equal(t, "Hi", gjson.GetBytes(gotBody, "message.notification.body").String())
}

func TestClient_SendErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode string
	}{
		{
			name:   "unregistered token",
			status: http.StatusNotFound,
			body: `{"error": {"status": "NOT_FOUND", "message": "Requested entity was not found.",
				"details": [{"@type": "type.googleapis.com/google.firebase.fcm.v1.FcmError", "errorCode": "UNREGISTERED"}]}}`,
			wantCode: "registration-token-not-registered",
		},
		{
			name:   "invalid token argument",
			status: http.StatusBadRequest,
			body: `{"error": {"status": "INVALID_ARGUMENT", "message": "The registration token is not a valid FCM registration token",
				"details": [{"@type": "type.googleapis.com/google.firebase.fcm.v1.FcmError", "errorCode": "INVALID_ARGUMENT"}]}}`,
			wantCode: "invalid-registration-token",
		},
		{
			name:   "invalid argument",
			status: http.StatusBadRequest,
			body: `{"error": {"status": "INVALID_ARGUMENT", "message": "Invalid JSON payload received.",
				"details": [{"@type": "type.googleapis.com/google.firebase.fcm.v1.FcmError", "errorCode": "INVALID_ARGUMENT"}]}}`,
			wantCode: "invalid-argument",
		},
		{
			name:     "payload too large",
			status:   http.StatusRequestEntityTooLarge,
			body:     `{"error": {"status": "FAILED_PRECONDITION", "message": "Request payload size exceeds the limit"}}`,
			wantCode: "payload-too-large",
		},
		{
			name:     "quota exceeded",
			status:   http.StatusTooManyRequests,
			body:     `{"error": {"status": "RESOURCE_EXHAUSTED", "message": "Sending limit exceeded", "details": [{"errorCode": "QUOTA_EXCEEDED"}]}}`,
			wantCode: "quota-exceeded",
		},
		{
			name:     "internal",
			status:   http.StatusInternalServerError,
			body:     `{"error": {"status": "INTERNAL", "message": "Internal error encountered.", "details": [{"errorCode": "INTERNAL"}]}}`,
			wantCode: "internal-error",
		},
		{
			name:     "unavailable",
			status:   http.StatusServiceUnavailable,
			body:     `{"error": {"status": "UNAVAILABLE", "message": "The service is currently unavailable.", "details": [{"errorCode": "UNAVAILABLE"}]}}`,
			wantCode: "unavailable",
		},
		{
			name:     "unknown",
			status:   http.StatusBadGateway,
			body:     `{"error": {"status": "UNKNOWN", "message": "upstream hiccup"}}`,
			wantCode: "unknown-error",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer ts.Close()

			client := NewClientWithHTTP(ts.Client(), ts.URL)
			_, err := client.Send(t.Context(), &fcm.Message{Token: "abc:1"})
			require.Error(t, err)
			var sendErr *SendError
			require.ErrorAs(t, err, &sendErr)
			assert.Equal(t, tc.wantCode, sendErr.Code)
			assert.Equal(t, tc.status, sendErr.HTTP)
		})
	}
}
