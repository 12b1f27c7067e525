package models

import "time"

// Point transaction types. Credits carry positive amounts, debits negative.
const (
	// TransactionEarnedOrder credits points earned from a paid order.
	TransactionEarnedOrder = "EARNED_ORDER"
	// TransactionManualAdd credits points granted by an administrator.
	TransactionManualAdd = "MANUAL_ADD"
	// TransactionManualSubtract debits points removed by an administrator.
	TransactionManualSubtract = "MANUAL_SUBTRACT"
	// TransactionRefundCancelled credits points restored after an order cancellation.
	TransactionRefundCancelled = "REFUND_CANCELLED"
	// TransactionExpired debits points removed by the expiration engine.
	TransactionExpired = "EXPIRED"
	// TransactionUsed debits points redeemed against an order.
	TransactionUsed = "USED"
)

// CreditTypes lists transaction types whose amounts are positive.
var CreditTypes = []string{TransactionEarnedOrder, TransactionManualAdd, TransactionRefundCancelled}

// DebitTypes lists transaction types whose amounts are negative.
var DebitTypes = []string{TransactionManualSubtract, TransactionExpired, TransactionUsed}

// IsCreditType reports whether the transaction type credits points.
func IsCreditType(transactionType string) bool {
	switch transactionType {
	case TransactionEarnedOrder, TransactionManualAdd, TransactionRefundCancelled:
		return true
	default:
		return false
	}
}

// IsDebitType reports whether the transaction type debits points.
func IsDebitType(transactionType string) bool {
	switch transactionType {
	case TransactionManualSubtract, TransactionExpired, TransactionUsed:
		return true
	default:
		return false
	}
}

// PointTransaction is one append-only entry in a user's points ledger.
//
// Rows are never edited after insertion except for the single permitted
// mutation: the expiration engine clears ExpiresAt once the row has been
// consumed by an expiration run.
type PointTransaction struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	BalanceID uint64        `gorm:"not null;index"`        // Owning balance row.
	Balance   *PointBalance `gorm:"foreignKey:BalanceID"`  // Owning balance record.

	TransactionType string `gorm:"type:text;not null;index:idx_point_tx_type_expires"` // One of the Transaction* constants.
	Amount          int64  `gorm:"not null"`                                           // Signed amount; sign matches the type.
	BalanceAfter    int64  `gorm:"not null"`                                           // Balance snapshot after applying Amount.

	OrderID *uint64 `gorm:"index"`      // Related order, set for order-driven entries.
	Reason  string  `gorm:"type:text"`  // Free-text reason, required for manual adjustments.

	ExpiresAt *time.Time `gorm:"index:idx_point_tx_type_expires"` // Expiry deadline for EARNED_ORDER credits; nil once processed.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Creation timestamp.
}
