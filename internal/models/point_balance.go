package models

import "time"

// PointBalance tracks the running points balance for a single user.
//
// CurrentBalance is always the sum of the signed amounts of the user's
// point transactions; the lifetime counters only ever grow.
type PointBalance struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;uniqueIndex"` // Owning user, externally assigned.

	CurrentBalance  int64 `gorm:"not null;default:0"` // Live balance, never negative.
	LifetimeEarned  int64 `gorm:"not null;default:0"` // Total earned via orders and manual credit.
	LifetimeUsed    int64 `gorm:"not null;default:0"` // Total spent via redemption and manual debit.
	LifetimeExpired int64 `gorm:"not null;default:0"` // Total removed by expiration runs.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last mutation timestamp.
}
