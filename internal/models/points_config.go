package models

import "time"

// PointsConfig is the singleton row of tunable points-program parameters.
//
// The settings provider creates it with defaults on first read and applies
// partial updates; nothing else touches the row directly.
type PointsConfig struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key; a single row exists.

	PointsEnabled        bool `gorm:"not null;default:true"` // Master switch for the points program.
	PointEarningRate     int  `gorm:"not null;default:1"`    // Earning rate in percent of order total, 0-100.
	PointMinRedemption   int  `gorm:"not null;default:1000"` // Minimum points spendable in one order.
	PointMaxRedemptionPct int `gorm:"not null;default:10"`   // Max share of an order payable in points, 1-100.

	PointExpirationEnabled bool `gorm:"not null;default:true"` // Whether earned points expire.
	PointExpirationMonths  int  `gorm:"not null;default:12"`   // Expiration horizon in months, 1-120.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
