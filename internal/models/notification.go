package models

import (
	"time"
)

// NoticeKind classifies a user-facing notice
type NoticeKind string

const (
	NoticeSuccess   NoticeKind = "success"
	NoticeFailure   NoticeKind = "failure"
	NoticeAmbiguous NoticeKind = "ambiguous"
	NoticeInfo      NoticeKind = "info"
)

// NotificationType defines the delivery channel
type NotificationType string

const (
	NotificationTypeWebhook NotificationType = "webhook"
	NotificationTypeLog     NotificationType = "log"
)

// Notice is a transient message shown to the user about an action outcome
type Notice struct {
	ID        string                 `json:"id"`
	Kind      NoticeKind             `json:"kind"`
	Action    string                 `json:"action"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	TxHash    string                 `json:"tx_hash,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}
