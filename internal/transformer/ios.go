// Copyright Home Assistant Mobile Push Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package transformer

import (
	"path/filepath"
	"strings"

	"github.com/home-assistant/mobile-push/internal/apischema/fcm"
	"github.com/home-assistant/mobile-push/internal/apischema/push"
)

// iosCommands maps the command-message overloads to the command delivered in
// apns.payload.homeassistant.command. delete_alert is handled apart because it
// keeps the built payload instead of replacing aps.
var iosCommands = map[string]string{
	"request_location_update":  "request_location_update",
	"request_location_updates": "request_location_update",
	"clear_badge":              "clear_badge",
	"clear_notification":       "clear_notification",
	"update_complications":     "update_complications",
	"update_widgets":           "update_widgets",
}

// attachmentShorthands maps the data shorthand keys to the content type of the
// attachment they imply, in evaluation order.
var attachmentShorthands = []struct {
	key         string
	contentType string
}{
	{"video", "mpeg4"},
	{"image", "jpeg"},
	{"audio", "waveformaudio"},
}

// IOSV1 builds the payload of /iOSV1.
func IOSV1(n *push.Notification) (bool, *fcm.Message) {
	msg := seed(n, "apns", "data")
	msg.Options = &fcm.Options{AnalyticsLabel: fcm.LabelIOSV1}
	if applyEncrypted(n, msg) {
		return true, msg
	}
	update := true
	if n.HomeAssistantIOS() {
		update = applyIOS(n, msg)
	}
	return update, msg
}

type iosFlags struct {
	needsCategory       bool
	needsMutableContent bool
}

// applyIOS mutates msg with the Home Assistant iOS quirks and reports whether
// the delivery still counts against the daily quota.
func applyIOS(n *push.Notification, msg *fcm.Message) (update bool) {
	update = true
	if cmd, ok := iosCommands[n.Message]; ok {
		applyIOSCommand(n, msg, cmd)
		update = false
	} else {
		var flags iosFlags
		applyIOSData(n, msg, &flags)
		if n.Message == "delete_alert" {
			applyDeleteAlert(msg)
			update = false
		}
		finalizeIOS(msg, &flags)
	}
	if !normalizeSound(msg) {
		update = false
	}
	coerceBadge(msg)
	setPushType(msg)
	return update
}

// applyIOSCommand repurposes the notification into a silent control message:
// the alert block is dropped and aps is replaced wholesale so the only
// user-visible effect is the command the app executes.
func applyIOSCommand(n *push.Notification, msg *fcm.Message, cmd string) {
	msg.Notification = nil
	c := msg.EnsureAPNS()
	aps := map[string]any{"contentAvailable": true}
	ha := map[string]any{"command": cmd}
	switch cmd {
	case "clear_badge":
		aps["badge"] = 0
	case "clear_notification":
		if tag, ok := n.DataString("tag"); ok {
			ha["tag"] = tag
		}
		if collapseID, ok := c.Headers["apns-collapse-id"]; ok {
			ha["collapseId"] = collapseID
			delete(c.Headers, "apns-collapse-id")
		}
	}
	c.Payload["aps"] = aps
	c.Payload["homeassistant"] = ha
}

// applyIOSData processes the presence-gated data keys of the non-command path.
func applyIOSData(n *push.Notification, msg *fcm.Message, flags *iosFlags) {
	if len(n.Data) == 0 {
		return
	}
	c := msg.EnsureAPNS()
	aps := msg.EnsureAps()
	if subtitle, ok := n.DataString("subtitle"); ok {
		msg.EnsureAlert()["subtitle"] = subtitle
	}
	// data.push shallow-merges into aps: each of its own keys overwrites the
	// corresponding aps key, sound included.
	if pushMap, ok := n.DataMap("push"); ok {
		for k, v := range pushMap {
			aps[k] = cloneAny(v)
		}
	}
	if actions, ok := n.Data["actions"]; ok {
		c.Payload["actions"] = cloneAny(actions)
		flags.needsCategory = true
	}
	if sound, ok := n.Data["sound"]; ok {
		aps["sound"] = cloneAny(sound)
	}
	if sound, ok := aps["sound"]; ok && strings.HasPrefix(n.RegistrationInfo.OSVersion, "10.15") {
		// Catalina rejects sound names carrying a filename extension.
		aps["sound"] = stripSoundExtension(sound)
	}
	if entityID, ok := n.Data["entity_id"]; ok {
		c.Payload["entity_id"] = cloneAny(entityID)
		flags.needsCategory = true
		flags.needsMutableContent = true
	}
	if actionData, ok := n.Data["action_data"]; ok {
		c.Payload["homeassistant"] = cloneAny(actionData)
		flags.needsCategory = true
	}
	applyAttachment(n, c.Payload, flags)
	for _, key := range []string{"url", "shortcut", "presentation_options"} {
		if v, ok := n.Data[key]; ok {
			c.Payload[key] = cloneAny(v)
		}
	}
	if tag, ok := n.DataString("tag"); ok {
		c.Headers["apns-collapse-id"] = tag
	}
	if group, ok := n.DataString("group"); ok {
		aps["thread-id"] = group
	}
}

// applyAttachment combines data.attachment with the video/image/audio
// shorthands. An explicit url or content-type always wins over a shorthand.
func applyAttachment(n *push.Notification, payload map[string]any, flags *iosFlags) {
	var attachment map[string]any
	if m, ok := n.DataMap("attachment"); ok {
		attachment = cloneMap(m)
	}
	for _, sh := range attachmentShorthands {
		url, ok := n.DataString(sh.key)
		if !ok {
			continue
		}
		if attachment == nil {
			attachment = map[string]any{}
		}
		if _, ok := attachment["url"]; !ok {
			attachment["url"] = url
		}
		if _, ok := attachment["content-type"]; !ok {
			attachment["content-type"] = sh.contentType
		}
	}
	if attachment == nil {
		return
	}
	payload["attachment"] = attachment
	flags.needsCategory = true
	flags.needsMutableContent = true
}

// applyDeleteAlert keeps the built structure but strips everything that would
// render: the alert text and the sound.
func applyDeleteAlert(msg *fcm.Message) {
	if msg.Notification != nil {
		msg.Notification.Body = ""
		if msg.Notification.Title == "" {
			msg.Notification = nil
		}
	}
	c := msg.EnsureAPNS()
	aps := msg.EnsureAps()
	if alert, ok := aps["alert"].(map[string]any); ok {
		delete(alert, "title")
		delete(alert, "subtitle")
		delete(alert, "body")
	}
	delete(aps, "sound")
	ha, ok := c.Payload["homeassistant"].(map[string]any)
	if !ok {
		ha = map[string]any{}
		c.Payload["homeassistant"] = ha
	}
	ha["command"] = "delete_alert"
}

func finalizeIOS(msg *fcm.Message, flags *iosFlags) {
	aps, ok := msg.Aps()
	if !ok {
		if !flags.needsCategory && !flags.needsMutableContent {
			return
		}
		aps = msg.EnsureAps()
	}
	if flags.needsCategory {
		if _, ok := aps["category"]; !ok {
			aps["category"] = "DYNAMIC"
		}
	}
	if category, ok := aps["category"].(string); ok {
		aps["category"] = strings.ToUpper(category)
	}
	if flags.needsMutableContent {
		aps["mutableContent"] = true
	}
}

// stripSoundExtension removes the filename extension from a sound name, in
// both the plain string and the {name: ...} object form.
func stripSoundExtension(sound any) any {
	switch t := sound.(type) {
	case string:
		return strings.TrimSuffix(t, filepath.Ext(t))
	case map[string]any:
		if name, ok := t["name"].(string); ok {
			t["name"] = strings.TrimSuffix(name, filepath.Ext(name))
		}
		return t
	default:
		return sound
	}
}

// normalizeSound applies the universal sound rules: the literal "none" mutes
// the push entirely, and the object form gets its volume and critical fields
// coerced. A critical sound with audible volume bypasses rate-limit
// accounting; normalizeSound returns false in that case.
func normalizeSound(msg *fcm.Message) (update bool) {
	update = true
	aps, ok := msg.Aps()
	if !ok {
		return update
	}
	switch sound := aps["sound"].(type) {
	case string:
		if strings.EqualFold(sound, "none") {
			delete(aps, "sound")
		}
	case map[string]any:
		if volume, ok := asFloat(sound["volume"]); ok {
			sound["volume"] = volume
		}
		if critical, ok := asInt(sound["critical"]); ok {
			sound["critical"] = critical
		}
		critical, _ := asInt(sound["critical"])
		volume, _ := asFloat(sound["volume"])
		if critical != 0 && volume > 0 {
			update = false
		}
	}
	return update
}

func coerceBadge(msg *fcm.Message) {
	aps, ok := msg.Aps()
	if !ok {
		return
	}
	if badge, ok := aps["badge"]; ok {
		if n, ok := asInt(badge); ok {
			aps["badge"] = n
		}
	}
}

// setPushType selects the apns-push-type header: background for silent
// content-available pushes, alert otherwise.
func setPushType(msg *fcm.Message) {
	pushType := "alert"
	if aps, ok := msg.Aps(); ok && truthy(aps["contentAvailable"]) {
		pushType = "background"
	}
	msg.EnsureAPNS().Headers["apns-push-type"] = pushType
}

// applyEncrypted rewrites the message into the opaque encrypted form when the
// request carries an encrypted_data blob. The visible alert is a fixed
// fallback shown only when the app fails to decrypt.
func applyEncrypted(n *push.Notification, msg *fcm.Message) bool {
	if !truthy(n.Data["encrypted"]) {
		return false
	}
	blob, ok := n.DataString("encrypted_data")
	if !ok || blob == "" {
		return false
	}
	msg.Notification = nil
	c := msg.EnsureAPNS()
	c.Payload["encrypted"] = true
	c.Payload["encrypted_data"] = blob
	if webhookID := n.RegistrationInfo.WebhookID; webhookID != "" {
		c.Payload["webhook_id"] = webhookID
	}
	aps := msg.EnsureAps()
	aps["alert"] = map[string]any{
		"title": "Encrypted notification",
		"body":  "If you can read this, decryption failed.",
	}
	aps["mutableContent"] = true
	c.Headers["apns-push-type"] = "alert"
	msg.Options = &fcm.Options{AnalyticsLabel: fcm.LabelEncrypted}
	return true
}
