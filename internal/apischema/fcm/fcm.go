// Copyright Home Assistant Mobile Push Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package fcm models the FCM HTTP v1 message produced by the payload
// transformers. Only the fields the shipping companion apps consume are typed;
// the platform sub-trees stay dynamic because the request's data tree is
// grafted into them as-is.
package fcm

// Analytics labels attached to every outgoing message, one per transformer
// variant plus the one-shot rate-limit push.
const (
	LabelLegacy    = "legacyNotification"
	LabelAndroidV1 = "androidV1Notification"
	LabelIOSV1     = "iosV1Notification"
	LabelRateLimit = "rateLimitNotification"
	LabelEncrypted = "encryptedV1Notification"
)

// Message is one FCM HTTP v1 message. The wire envelope posted to the API is
// {"message": <Message>}; see the gateway client.
type Message struct {
	Token        string         `json:"token,omitempty"`
	Notification *Notification  `json:"notification,omitempty"`
	Android      map[string]any `json:"android,omitempty"`
	Webpush      map[string]any `json:"webpush,omitempty"`
	APNS         *APNSConfig    `json:"apns,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
	Options      *Options       `json:"fcm_options,omitempty"`
}

// Notification is the cross-platform alert block.
type Notification struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
}

// APNSConfig carries the APNs headers and payload of an iOS delivery.
type APNSConfig struct {
	Headers map[string]string `json:"headers,omitempty"`
	Payload map[string]any    `json:"payload,omitempty"`
}

// Options is the fcm_options block.
type Options struct {
	AnalyticsLabel string `json:"analytics_label,omitempty"`
}

// EnsureAPNS returns the APNS config, allocating it and its maps on first use.
func (m *Message) EnsureAPNS() *APNSConfig {
	if m.APNS == nil {
		m.APNS = &APNSConfig{}
	}
	if m.APNS.Headers == nil {
		m.APNS.Headers = map[string]string{}
	}
	if m.APNS.Payload == nil {
		m.APNS.Payload = map[string]any{}
	}
	return m.APNS
}

// EnsureAps returns the aps dictionary inside the APNs payload, allocating on
// first use.
func (m *Message) EnsureAps() map[string]any {
	c := m.EnsureAPNS()
	aps, ok := c.Payload["aps"].(map[string]any)
	if !ok {
		aps = map[string]any{}
		c.Payload["aps"] = aps
	}
	return aps
}

// Aps returns the aps dictionary if present, without allocating.
func (m *Message) Aps() (map[string]any, bool) {
	if m.APNS == nil {
		return nil, false
	}
	aps, ok := m.APNS.Payload["aps"].(map[string]any)
	return aps, ok
}

// EnsureAlert returns the aps.alert dictionary, allocating on first use.
func (m *Message) EnsureAlert() map[string]any {
	aps := m.EnsureAps()
	alert, ok := aps["alert"].(map[string]any)
	if !ok {
		alert = map[string]any{}
		aps["alert"] = alert
	}
	return alert
}

// EnsureData returns the data map, allocating on first use.
func (m *Message) EnsureData() map[string]any {
	if m.Data == nil {
		m.Data = map[string]any{}
	}
	return m.Data
}

// EnsureAndroid returns the android map, allocating on first use.
func (m *Message) EnsureAndroid() map[string]any {
	if m.Android == nil {
		m.Android = map[string]any{}
	}
	return m.Android
}
