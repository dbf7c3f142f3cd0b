// Copyright Home Assistant Mobile Push Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package transformer

import (
	"strconv"

	"github.com/home-assistant/mobile-push/internal/apischema/fcm"
	"github.com/home-assistant/mobile-push/internal/apischema/push"
)

// androidDataKeys is the allow-list of notification keys the Android companion
// app reads out of the data block. Each present key is stringified and copied
// verbatim under the same name.
var androidDataKeys = []string{
	"icon", "color", "sound", "tag", "channel", "ticker", "sticky",
	"eventTime", "localOnly", "notificationPriority", "defaultSound",
	"defaultVibrateTimings", "defaultLightSettings", "vibrateTimings",
	"visibility", "notificationCount", "lightSettings", "image", "timeout",
	"importance", "subject", "group", "icon_url", "ledColor",
	"vibrationPattern", "persistent", "chronometer", "when", "alert_once",
	"intent_class_name", "notification_icon", "ble_advertise", "ble_transmit",
	"video", "high_accuracy_update_interval", "package_name", "tts_text",
	"media_stream", "command", "intent_package_name", "intent_action",
	"intent_extras", "media_command", "media_package_name", "intent_uri",
	"intent_type", "ble_uuid", "ble_major", "ble_minor", "confirmation",
	"app_lock_enabled", "app_lock_timeout", "home_bypass_enabled", "car_ui",
	"ble_measured_power", "progress", "progress_max", "progress_indeterminate",
	"bodyLocKey", "bodyLocArgs", "titleLocKey", "titleLocArgs", "clickAction",
	"when_relative",
}

// androidCommands are the message values the Android app treats as device
// commands rather than user-visible notifications; they bypass rate-limit
// accounting.
var androidCommands = map[string]struct{}{
	"request_location_update":         {},
	"clear_notification":              {},
	"remove_channel":                  {},
	"command_dnd":                     {},
	"command_ringer_mode":             {},
	"command_broadcast_intent":        {},
	"command_volume_level":            {},
	"command_screen_on":               {},
	"command_bluetooth":               {},
	"command_high_accuracy_mode":      {},
	"command_activity":                {},
	"command_app_lock":                {},
	"command_webview":                 {},
	"command_media":                   {},
	"command_update_sensors":          {},
	"command_ble_transmitter":         {},
	"command_persistent_connection":   {},
	"command_stop_tts":                {},
	"command_auto_screen_brightness":  {},
	"command_screen_brightness_level": {},
	"command_screen_off_timeout":      {},
	"command_flashlight":              {},
}

// AndroidV1 builds the payload of /androidV1.
func AndroidV1(n *push.Notification) (bool, *fcm.Message) {
	msg := seed(n)
	msg.Options = &fcm.Options{AnalyticsLabel: fcm.LabelAndroidV1}
	update := applyAndroid(n, msg)
	return update, msg
}

// applyAndroid flattens the request into the data block the Android companion
// app consumes and reports whether the delivery counts against the quota.
func applyAndroid(n *push.Notification, msg *fcm.Message) (update bool) {
	data := msg.EnsureData()
	if actions, ok := n.Data["actions"].([]any); ok {
		flattenActions(actions, data)
	}
	if ttl, ok := n.Data["ttl"]; ok {
		msg.EnsureAndroid()["ttl"] = cloneAny(ttl)
	}
	if priority, ok := n.Data["priority"]; ok {
		msg.EnsureAndroid()["priority"] = cloneAny(priority)
	}
	for _, key := range androidDataKeys {
		if v, ok := n.Data[key]; ok {
			data[key] = stringify(v)
		}
	}
	data["message"] = n.Message
	data["title"] = n.Title
	data["webhook_id"] = n.RegistrationInfo.WebhookID
	_, isCommand := androidCommands[n.Message]
	return !isCommand
}

// flattenActions turns data.actions into the indexed action_<i>_<field> keys
// the app parses, indexes starting at 1.
func flattenActions(actions []any, data map[string]any) {
	for i, a := range actions {
		action, ok := a.(map[string]any)
		if !ok {
			continue
		}
		prefix := "action_" + strconv.Itoa(i+1) + "_"
		for _, field := range []string{"key", "title", "uri", "behavior"} {
			if v, ok := action[field]; ok {
				data[prefix+field] = stringify(v)
			}
		}
	}
}
