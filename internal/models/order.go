package models

import "time"

// Order lifecycle statuses visible to the points engine.
const (
	// OrderStatusPaid marks an order whose payment completed.
	OrderStatusPaid = "PAID"
	// OrderStatusCancelled marks a cancelled order.
	OrderStatusCancelled = "CANCELLED"
)

// Order is the read model of the external commerce order.
//
// The commerce subsystem owns order rows; the points engine only reads the
// totals it needs to compute earnings and refunds.
type Order struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key, shared with the commerce subsystem.

	UserID      uint64 `gorm:"not null;index"`     // Purchasing user.
	TotalAmount int64  `gorm:"not null;default:0"` // Order total in the smallest currency unit.
	PointsUsed  int64  `gorm:"not null;default:0"` // Points redeemed against this order.
	Status      string `gorm:"type:text;not null"` // Lifecycle status.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
