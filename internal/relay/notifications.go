// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package relay

import "time"

// NotificationTopic is the bus topic carrying Notification values.
const NotificationTopic = "relay.notifications"

// NotificationType is the kind of an outbound notification.
type NotificationType string

const (
	NotifyStarted NotificationType = "started"
	NotifyStopped NotificationType = "stopped"
	NotifyError   NotificationType = "error"
)

// Notification is published for the control-plane caller.
type Notification struct {
	Type      NotificationType `json:"type"`
	Message   string           `json:"message,omitempty"`
	SessionID string           `json:"sessionId,omitempty"`
	At        time.Time        `json:"at"`
}
