package domain

import "time"

// EventType identifies a security-relevant action recorded by the audit sink.
type EventType string

const (
	EventUserRegistered    EventType = "USER_REGISTERED"
	EventUserLogin         EventType = "USER_LOGIN"
	EventUserRoleChanged   EventType = "USER_ROLE_CHANGED"
	EventUserStatusChanged EventType = "USER_STATUS_CHANGED"
)

// AuditEvent is an immutable record of a security-relevant action.
// CreatedAt is assigned by the repository at write time.
type AuditEvent struct {
	ID        string    `json:"id" bson:"_id"`
	UserID    string    `json:"user_id" bson:"user_id"`
	EventType EventType `json:"event_type" bson:"event_type"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}
