package models

import (
	"time"

	"gorm.io/datatypes"
)

// PointsEvent is a persisted copy of an emitted points-domain event.
//
// Notification consumers read the live redis channels; the outbox rows let
// them replay anything missed during downtime.
type PointsEvent struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	EventType string         `gorm:"type:text;not null;index"` // Channel name, e.g. points:earned.
	UserID    uint64         `gorm:"not null;index"`           // User the event concerns.
	Payload   datatypes.JSON `gorm:"type:jsonb"`               // Event body as published.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Emission timestamp.
}
