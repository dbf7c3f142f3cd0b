// Copyright Home Assistant Mobile Push Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package transformer

import (
	"github.com/home-assistant/mobile-push/internal/apischema/fcm"
	"github.com/home-assistant/mobile-push/internal/apischema/push"
)

// Legacy builds the payload of /sendPushNotification. It is the superset
// variant: every passthrough subtree is recognized and the Home Assistant
// branches of both platforms apply, gated on the registered app id.
func Legacy(n *push.Notification) (bool, *fcm.Message) {
	msg := seed(n, "android", "apns", "data", "webpush")
	msg.Options = &fcm.Options{AnalyticsLabel: fcm.LabelLegacy}
	update := true
	switch {
	case n.HomeAssistantIOS():
		if webhookID := n.RegistrationInfo.WebhookID; webhookID != "" {
			msg.EnsureAPNS().Payload["webhook_id"] = webhookID
		}
		if applyEncrypted(n, msg) {
			return true, msg
		}
		update = applyIOS(n, msg)
	case n.HomeAssistantAndroid():
		update = applyAndroid(n, msg)
	}
	return update, msg
}
