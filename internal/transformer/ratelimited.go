// Copyright Home Assistant Mobile Push Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package transformer

import (
	"strconv"
	"time"

	"github.com/home-assistant/mobile-push/internal/apischema/fcm"
)

const (
	rateLimitTitleLocKey = "rate_limit_notification.title"
	rateLimitBodyLocKey  = "rate_limit_notification.body"
)

// RateLimited builds the one-shot push telling the user their device just hit
// the daily quota. It is sent at most once per threshold crossing and is
// itself exempt from accounting.
func RateLimited(token string, maximum int, resetsAt time.Time) *fcm.Message {
	maxStr := strconv.Itoa(maximum)
	title := "Notifications Rate Limited"
	body := "You have now sent more than " + maxStr + " notifications today. " +
		"You will not receive new notifications until midnight."
	msg := &fcm.Message{
		Token:        token,
		Notification: &fcm.Notification{Title: title, Body: body},
		Android: map[string]any{
			"notification": map[string]any{
				"titleLocKey": rateLimitTitleLocKey,
				"bodyLocKey":  rateLimitBodyLocKey,
				"bodyLocArgs": []any{maxStr},
			},
		},
		Data: map[string]any{
			"rateLimited":            "true",
			"maxNotificationsPerDay": maxStr,
			"resetsAt":               resetsAt.Format(time.RFC3339),
		},
		Options: &fcm.Options{AnalyticsLabel: fcm.LabelRateLimit},
	}
	msg.EnsureAps()["alert"] = map[string]any{
		"title":       title,
		"body":        body,
		"titleLocKey": rateLimitTitleLocKey,
		"locKey":      rateLimitBodyLocKey,
		"locArgs":     []any{maxStr},
	}
	msg.EnsureAPNS().Headers["apns-push-type"] = "alert"
	return msg
}
