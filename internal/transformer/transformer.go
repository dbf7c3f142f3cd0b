// Copyright Home Assistant Mobile Push Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package transformer turns the generic notification request into the exact
// FCM HTTP v1 message each companion app expects. One builder per endpoint
// variant; all builders are pure: they never mutate the request and every
// subtree grafted from it is deep-copied into the output.
package transformer

import (
	"fmt"
	"strconv"

	"github.com/home-assistant/mobile-push/internal/apischema/fcm"
	"github.com/home-assistant/mobile-push/internal/apischema/push"
	"github.com/home-assistant/mobile-push/internal/json"
)

// Builder produces the outgoing message for one notification variant. The
// updateRateLimits result reports whether the delivery counts against the
// daily quota; command overloads and critical-sound pushes opt out.
type Builder func(*push.Notification) (updateRateLimits bool, msg *fcm.Message)

// Variants is the route dispatch table.
var Variants = map[string]Builder{
	"legacy":     Legacy,
	"android-v1": AndroidV1,
	"ios-v1":     IOSV1,
}

// seed builds the variant-independent part of the message: the alert block
// from message/title and the recognized passthrough subtrees of req.data.
func seed(n *push.Notification, passthrough ...string) *fcm.Message {
	msg := &fcm.Message{}
	if n.Message != "" {
		msg.Notification = &fcm.Notification{Body: n.Message}
	}
	if n.Title != "" {
		if msg.Notification == nil {
			msg.Notification = &fcm.Notification{}
		}
		msg.Notification.Title = n.Title
		msg.EnsureAlert()["title"] = n.Title
	}
	for _, key := range passthrough {
		v, ok := n.Data[key]
		if !ok {
			continue
		}
		switch key {
		case "android":
			if m, ok := v.(map[string]any); ok {
				msg.Android = cloneMap(m)
			}
		case "webpush":
			if m, ok := v.(map[string]any); ok {
				msg.Webpush = cloneMap(m)
			}
		case "data":
			if m, ok := v.(map[string]any); ok {
				msg.Data = cloneMap(m)
			}
		case "apns":
			applyAPNSPassthrough(msg, v)
		}
	}
	// Note the top-level rename: data.apns_headers feeds apns.headers, not the
	// APNs payload.
	if headers, ok := n.DataMap("apns_headers"); ok {
		dst := msg.EnsureAPNS().Headers
		for k, v := range headers {
			dst[k] = stringify(v)
		}
	}
	return msg
}

// applyAPNSPassthrough grafts a data.apns subtree shaped like the FCM APNs
// config ({headers, payload}) onto the message.
func applyAPNSPassthrough(msg *fcm.Message, v any) {
	m, ok := v.(map[string]any)
	if !ok {
		return
	}
	c := msg.EnsureAPNS()
	if headers, ok := m["headers"].(map[string]any); ok {
		for k, hv := range headers {
			c.Headers[k] = stringify(hv)
		}
	}
	if payload, ok := m["payload"].(map[string]any); ok {
		for k, pv := range payload {
			c.Payload[k] = cloneAny(pv)
		}
	}
}

// cloneAny deep-copies a decoded JSON tree.
func cloneAny(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneAny(e)
		}
		return out
	default:
		return v
	}
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneAny(v)
	}
	return out
}

// stringify renders a data value the way the companion apps expect string
// fields: strings verbatim, booleans as true/false, numbers in plain decimal,
// arrays comma-joined, objects as JSON.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case []any:
		s := ""
		for i, e := range t {
			if i > 0 {
				s += ","
			}
			s += stringify(e)
		}
		return s
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}

// asFloat coerces a decoded JSON value to a float.
func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// asInt coerces a decoded JSON value to an integer, treating booleans as 0/1.
func asInt(v any) (int64, bool) {
	switch t := v.(type) {
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case float64:
		return int64(t), true
	case int:
		return int64(t), true
	case int64:
		return t, true
	case string:
		i, err := strconv.ParseInt(t, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

// truthy mirrors JS truthiness for the decoded JSON values that reach it.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != "" && t != "false"
	default:
		return true
	}
}
