// Copyright Home Assistant Mobile Push Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package transformer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/home-assistant/mobile-push/internal/apischema/fcm"
	"github.com/home-assistant/mobile-push/internal/apischema/push"
)

func iosReq(message string, data map[string]any) *push.Notification {
	return &push.Notification{
		PushToken: "abc:1",
		Message:   message,
		RegistrationInfo: push.RegistrationInfo{
			AppID:      "io.robbie.HomeAssistant",
			AppVersion: "2026.1",
			OSVersion:  "17.0",
		},
		Data: data,
	}
}

func TestIOSV1_CommandOverloads(t *testing.T) {
	tests := []struct {
		message string
		command string
	}{
		{"request_location_update", "request_location_update"},
		{"request_location_updates", "request_location_update"},
		{"clear_badge", "clear_badge"},
		{"clear_notification", "clear_notification"},
		{"update_complications", "update_complications"},
		{"update_widgets", "update_widgets"},
	}
	for _, tc := range tests {
		t.Run(tc.message, func(t *testing.T) {
			update, msg := IOSV1(iosReq(tc.message, nil))
			assert.False(t, update)
			assert.Nil(t, msg.Notification)

			aps, ok := msg.Aps()
			require.True(t, ok)
			assert.Equal(t, true, aps["contentAvailable"])
			ha, ok := msg.APNS.Payload["homeassistant"].(map[string]any)
			require.True(t, ok)
			assert.Equal(t, tc.command, ha["command"])
			assert.Equal(t, "background", msg.APNS.Headers["apns-push-type"])
		})
	}
}

func TestIOSV1_ClearBadge(t *testing.T) {
	update, msg := IOSV1(iosReq("clear_badge", nil))
	assert.False(t, update)
	aps, ok := msg.Aps()
	require.True(t, ok)
	assert.Equal(t, int64(0), aps["badge"])
}

func TestIOSV1_ClearNotificationCarriesTagAndCollapseID(t *testing.T) {
	update, msg := IOSV1(iosReq("clear_notification", map[string]any{
		"tag":          "garage-door",
		"apns_headers": map[string]any{"apns-collapse-id": "collapse-1"},
	}))
	assert.False(t, update)

	ha := msg.APNS.Payload["homeassistant"].(map[string]any)
	assert.Equal(t, "clear_notification", ha["command"])
	assert.Equal(t, "garage-door", ha["tag"])
	assert.Equal(t, "collapse-1", ha["collapseId"])
	_, present := msg.APNS.Headers["apns-collapse-id"]
	assert.False(t, present, "collapse id header must be consumed")
}

func TestIOSV1_DeleteAlertKeepsStructure(t *testing.T) {
	n := iosReq("delete_alert", map[string]any{
		"tag":      "old-alert",
		"push":     map[string]any{"sound": "chime.wav"},
		"subtitle": "gone",
	})
	n.Title = "Old title"
	update, msg := IOSV1(n)
	assert.False(t, update)

	aps, ok := msg.Aps()
	require.True(t, ok)
	_, hasSound := aps["sound"]
	assert.False(t, hasSound)
	alert, ok := aps["alert"].(map[string]any)
	require.True(t, ok)
	assert.NotContains(t, alert, "title")
	assert.NotContains(t, alert, "subtitle")
	assert.NotContains(t, alert, "body")
	ha := msg.APNS.Payload["homeassistant"].(map[string]any)
	assert.Equal(t, "delete_alert", ha["command"])
	// Not a silent push: the collapse id still targets the rendered alert.
	assert.Equal(t, "alert", msg.APNS.Headers["apns-push-type"])
	assert.Equal(t, "old-alert", msg.APNS.Headers["apns-collapse-id"])
}

func TestIOSV1_DataKeys(t *testing.T) {
	update, msg := IOSV1(iosReq("Door opened", map[string]any{
		"subtitle":             "Front door",
		"entity_id":            "binary_sensor.front_door",
		"action_data":          map[string]any{"entity_id": "lock.front"},
		"url":                  "/lovelace/0",
		"shortcut":             map[string]any{"name": "doors"},
		"presentation_options": []any{"alert"},
		"tag":                  "door",
		"group":                "doors",
	}))
	assert.True(t, update)

	payload := msg.APNS.Payload
	aps := payload["aps"].(map[string]any)
	alert := aps["alert"].(map[string]any)
	assert.Equal(t, "Front door", alert["subtitle"])
	assert.Equal(t, "binary_sensor.front_door", payload["entity_id"])
	assert.Equal(t, map[string]any{"entity_id": "lock.front"}, payload["homeassistant"])
	assert.Equal(t, "/lovelace/0", payload["url"])
	assert.Equal(t, map[string]any{"name": "doors"}, payload["shortcut"])
	assert.Equal(t, []any{"alert"}, payload["presentation_options"])
	assert.Equal(t, "door", msg.APNS.Headers["apns-collapse-id"])
	assert.Equal(t, "doors", aps["thread-id"])
	// entity_id demands a category and mutable content.
	assert.Equal(t, "DYNAMIC", aps["category"])
	assert.Equal(t, true, aps["mutableContent"])
	assert.Equal(t, "alert", msg.APNS.Headers["apns-push-type"])
}

func TestIOSV1_ActionsSetDynamicCategory(t *testing.T) {
	actions := []any{map[string]any{"action": "OPEN", "title": "Open"}}
	update, msg := IOSV1(iosReq("Hi", map[string]any{"actions": actions}))
	assert.True(t, update)
	assert.Equal(t, actions, msg.APNS.Payload["actions"])
	aps := msg.APNS.Payload["aps"].(map[string]any)
	assert.Equal(t, "DYNAMIC", aps["category"])
	_, hasMutable := aps["mutableContent"]
	assert.False(t, hasMutable)
}

func TestIOSV1_ExplicitCategoryIsUppercased(t *testing.T) {
	_, msg := IOSV1(iosReq("Hi", map[string]any{
		"push":    map[string]any{"category": "map"},
		"actions": []any{map[string]any{"action": "OPEN"}},
	}))
	aps := msg.APNS.Payload["aps"].(map[string]any)
	assert.Equal(t, "MAP", aps["category"])
}

func TestIOSV1_PushMergesShallowlyIntoAps(t *testing.T) {
	_, msg := IOSV1(iosReq("Hi", map[string]any{
		"push": map[string]any{"badge": "7", "interruption-level": "time-sensitive"},
	}))
	aps := msg.APNS.Payload["aps"].(map[string]any)
	assert.Equal(t, int64(7), aps["badge"], "badge is coerced to a number")
	assert.Equal(t, "time-sensitive", aps["interruption-level"])
}

func TestIOSV1_SoundHandling(t *testing.T) {
	t.Run("none removes the sound in any case", func(t *testing.T) {
		for _, none := range []string{"none", "None", "NONE"} {
			_, msg := IOSV1(iosReq("Hi", map[string]any{"sound": none}))
			aps := msg.APNS.Payload["aps"].(map[string]any)
			_, hasSound := aps["sound"]
			assert.False(t, hasSound, none)
		}
	})
	t.Run("push.sound is the fallback", func(t *testing.T) {
		_, msg := IOSV1(iosReq("Hi", map[string]any{
			"push": map[string]any{"sound": "fallback.wav"},
		}))
		aps := msg.APNS.Payload["aps"].(map[string]any)
		assert.Equal(t, "fallback.wav", aps["sound"])
	})
	t.Run("data.sound wins over push.sound", func(t *testing.T) {
		_, msg := IOSV1(iosReq("Hi", map[string]any{
			"sound": "explicit.wav",
			"push":  map[string]any{"sound": "fallback.wav"},
		}))
		aps := msg.APNS.Payload["aps"].(map[string]any)
		assert.Equal(t, "explicit.wav", aps["sound"])
	})
	t.Run("object form coerces volume and critical", func(t *testing.T) {
		update, msg := IOSV1(iosReq("Hi", map[string]any{
			"sound": map[string]any{"name": "siren.wav", "critical": "1", "volume": "0.8"},
		}))
		assert.False(t, update, "audible critical sound bypasses accounting")
		aps := msg.APNS.Payload["aps"].(map[string]any)
		sound := aps["sound"].(map[string]any)
		assert.Equal(t, int64(1), sound["critical"])
		assert.Equal(t, 0.8, sound["volume"])
	})
	t.Run("silent critical sound still counts", func(t *testing.T) {
		update, _ := IOSV1(iosReq("Hi", map[string]any{
			"sound": map[string]any{"name": "siren.wav", "critical": 1, "volume": 0},
		}))
		assert.True(t, update)
	})
}

func TestIOSV1_CatalinaStripsSoundExtension(t *testing.T) {
	t.Run("string sound", func(t *testing.T) {
		n := iosReq("Hi", map[string]any{"sound": "chime.wav"})
		n.RegistrationInfo.OSVersion = "10.15.7"
		_, msg := IOSV1(n)
		aps := msg.APNS.Payload["aps"].(map[string]any)
		assert.Equal(t, "chime", aps["sound"])
	})
	t.Run("object sound", func(t *testing.T) {
		n := iosReq("Hi", map[string]any{"sound": map[string]any{"name": "chime.wav"}})
		n.RegistrationInfo.OSVersion = "10.15"
		_, msg := IOSV1(n)
		aps := msg.APNS.Payload["aps"].(map[string]any)
		sound := aps["sound"].(map[string]any)
		assert.Equal(t, "chime", sound["name"])
	})
	t.Run("other versions keep the extension", func(t *testing.T) {
		_, msg := IOSV1(iosReq("Hi", map[string]any{"sound": "chime.wav"}))
		aps := msg.APNS.Payload["aps"].(map[string]any)
		assert.Equal(t, "chime.wav", aps["sound"])
	})
}

func TestIOSV1_AttachmentShorthands(t *testing.T) {
	t.Run("video shorthand builds an attachment", func(t *testing.T) {
		_, msg := IOSV1(iosReq("Hi", map[string]any{"video": "https://example.com/clip.mp4"}))
		att := msg.APNS.Payload["attachment"].(map[string]any)
		assert.Equal(t, "https://example.com/clip.mp4", att["url"])
		assert.Equal(t, "mpeg4", att["content-type"])
		aps := msg.APNS.Payload["aps"].(map[string]any)
		assert.Equal(t, "DYNAMIC", aps["category"])
		assert.Equal(t, true, aps["mutableContent"])
	})
	t.Run("image and audio content types", func(t *testing.T) {
		_, msg := IOSV1(iosReq("Hi", map[string]any{"image": "https://example.com/a.jpg"}))
		att := msg.APNS.Payload["attachment"].(map[string]any)
		assert.Equal(t, "jpeg", att["content-type"])

		_, msg = IOSV1(iosReq("Hi", map[string]any{"audio": "https://example.com/a.wav"}))
		att = msg.APNS.Payload["attachment"].(map[string]any)
		assert.Equal(t, "waveformaudio", att["content-type"])
	})
	t.Run("explicit attachment wins over shorthand", func(t *testing.T) {
		_, msg := IOSV1(iosReq("Hi", map[string]any{
			"attachment": map[string]any{"url": "https://example.com/keep.png", "content-type": "png"},
			"video":      "https://example.com/clip.mp4",
		}))
		att := msg.APNS.Payload["attachment"].(map[string]any)
		assert.Equal(t, "https://example.com/keep.png", att["url"])
		assert.Equal(t, "png", att["content-type"])
	})
}

func TestIOSV1_PushTypeFollowsContentAvailable(t *testing.T) {
	_, msg := IOSV1(iosReq("Hi", map[string]any{
		"push": map[string]any{"contentAvailable": true},
	}))
	assert.Equal(t, "background", msg.APNS.Headers["apns-push-type"])
}

func TestIOSV1_EncryptedPayload(t *testing.T) {
	n := iosReq("", map[string]any{
		"encrypted":      true,
		"encrypted_data": "deadbeef",
	})
	n.RegistrationInfo.WebhookID = "hook-1"
	update, msg := IOSV1(n)
	assert.True(t, update)
	assert.Nil(t, msg.Notification)
	assert.Equal(t, fcm.LabelEncrypted, msg.Options.AnalyticsLabel)

	payload := msg.APNS.Payload
	assert.Equal(t, true, payload["encrypted"])
	assert.Equal(t, "deadbeef", payload["encrypted_data"])
	assert.Equal(t, "hook-1", payload["webhook_id"])
	aps := payload["aps"].(map[string]any)
	alert := aps["alert"].(map[string]any)
	assert.Equal(t, "Encrypted notification", alert["title"])
	assert.Equal(t, "If you can read this, decryption failed.", alert["body"])
	assert.Equal(t, true, aps["mutableContent"])
}

func TestIOSV1_AnalyticsLabel(t *testing.T) {
	_, msg := IOSV1(iosReq("Hi", nil))
	require.NotNil(t, msg.Options)
	assert.Equal(t, fcm.LabelIOSV1, msg.Options.AnalyticsLabel)
}

func TestIOSV1_PureAndIdempotent(t *testing.T) {
	data := map[string]any{
		"sound":       map[string]any{"name": "chime.wav", "critical": "1", "volume": "0.5"},
		"push":        map[string]any{"badge": "3"},
		"tag":         "door",
		"action_data": map[string]any{"entity_id": "lock.front"},
	}
	n := iosReq("Hi", data)
	update1, msg1 := IOSV1(n)
	update2, msg2 := IOSV1(n)
	assert.Equal(t, update1, update2)
	assert.Equal(t, msg1, msg2)
	// The request data tree stays untouched, coercions included.
	assert.Equal(t, "1", n.Data["sound"].(map[string]any)["critical"])
	assert.Equal(t, "3", n.Data["push"].(map[string]any)["badge"])
}
