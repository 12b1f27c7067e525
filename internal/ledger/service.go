package ledger

import (
	"context"
	"errors"
	"time"

	dbutil "github.com/livemerce/pointsledger/internal/db"
	"github.com/livemerce/pointsledger/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// maxHistoryLimit caps the page size of transaction history queries.
const maxHistoryLimit = 100

// Service is the transactional core of the points ledger. It is the only
// writer of point balances and point transactions; every mutation runs as
// one atomic database transaction serialized per user.
type Service struct {
	db *gorm.DB
}

// NewService constructs a ledger service backed by GORM.
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// AddParams describes a credit mutation.
type AddParams struct {
	UserID          uint64     // Owning user.
	Amount          int64      // Points to credit, must be positive.
	TransactionType string     // One of the credit transaction types.
	OrderID         *uint64    // Originating order for order-driven credits.
	Reason          string     // Free-text reason, required for manual credit.
	ExpiresAt       *time.Time // Expiry deadline for EARNED_ORDER credits.
}

// DeductParams describes a debit mutation.
type DeductParams struct {
	UserID          uint64  // Owning user.
	Amount          int64   // Points to debit, must be positive.
	TransactionType string  // One of the debit transaction types.
	OrderID         *uint64 // Related order, when applicable.
	Reason          string  // Free-text reason, required for manual debit.
}

// MutationResult reports the outcome of a balance mutation.
type MutationResult struct {
	NewBalance    int64  // Balance after applying the mutation.
	TransactionID uint64 // Ledger row recording the mutation.
}

// BalanceSummary is the read view of a user's balance row.
type BalanceSummary struct {
	UserID          uint64 `json:"user_id"`
	CurrentBalance  int64  `json:"current_balance"`
	LifetimeEarned  int64  `json:"lifetime_earned"`
	LifetimeUsed    int64  `json:"lifetime_used"`
	LifetimeExpired int64  `json:"lifetime_expired"`
}

// HistoryQuery filters and paginates a transaction history read.
type HistoryQuery struct {
	Page            int        // 1-based page number.
	Limit           int        // Page size, capped at maxHistoryLimit.
	TransactionType string     // Optional type filter.
	StartDate       *time.Time // Optional inclusive lower bound on created_at.
	EndDate         *time.Time // Optional exclusive upper bound on created_at.
}

// HistoryPage is one page of a user's ledger, newest first.
type HistoryPage struct {
	Transactions []models.PointTransaction `json:"transactions"`
	Total        int64                     `json:"total"`
	Page         int                       `json:"page"`
	Limit        int                       `json:"limit"`
}

// AddPoints credits points to a user, creating the balance row on first use.
func (s *Service) AddPoints(ctx context.Context, p AddParams) (*MutationResult, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("ledger: service not initialized")
	}
	if p.Amount <= 0 {
		return nil, newValidationError("amount must be positive, got %d", p.Amount)
	}
	if !models.IsCreditType(p.TransactionType) {
		return nil, newValidationError("transaction type %q is not a credit type", p.TransactionType)
	}

	var result MutationResult
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		balance, errLock := s.lockOrCreateBalance(tx, p.UserID)
		if errLock != nil {
			return errLock
		}

		newBalance := balance.CurrentBalance + p.Amount
		row := models.PointTransaction{
			BalanceID:       balance.ID,
			TransactionType: p.TransactionType,
			Amount:          p.Amount,
			BalanceAfter:    newBalance,
			OrderID:         p.OrderID,
			Reason:          p.Reason,
			ExpiresAt:       p.ExpiresAt,
			CreatedAt:       time.Now().UTC(),
		}
		if errCreate := tx.Create(&row).Error; errCreate != nil {
			return errCreate
		}

		updates := map[string]any{"current_balance": newBalance}
		// REFUND_CANCELLED restores a prior debit and does not re-count
		// as earned value.
		if p.TransactionType == models.TransactionEarnedOrder || p.TransactionType == models.TransactionManualAdd {
			updates["lifetime_earned"] = balance.LifetimeEarned + p.Amount
		}
		if errUpdate := tx.Model(&models.PointBalance{}).
			Where("id = ?", balance.ID).
			Updates(updates).Error; errUpdate != nil {
			return errUpdate
		}

		result = MutationResult{NewBalance: newBalance, TransactionID: row.ID}
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return &result, nil
}

// DeductPoints debits points from a user. The balance is read under a row
// lock inside the same transaction so concurrent deductions can never
// overdraw the account.
func (s *Service) DeductPoints(ctx context.Context, p DeductParams) (*MutationResult, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("ledger: service not initialized")
	}
	if p.Amount <= 0 {
		return nil, newValidationError("amount must be positive, got %d", p.Amount)
	}
	if !models.IsDebitType(p.TransactionType) {
		return nil, newValidationError("transaction type %q is not a debit type", p.TransactionType)
	}

	var result MutationResult
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		balance, errLock := s.lockBalance(tx, p.UserID)
		if errors.Is(errLock, gorm.ErrRecordNotFound) {
			return &InsufficientBalanceError{UserID: p.UserID, Requested: p.Amount, Available: 0}
		}
		if errLock != nil {
			return errLock
		}
		if balance.CurrentBalance < p.Amount {
			return &InsufficientBalanceError{UserID: p.UserID, Requested: p.Amount, Available: balance.CurrentBalance}
		}

		newBalance := balance.CurrentBalance - p.Amount
		row := models.PointTransaction{
			BalanceID:       balance.ID,
			TransactionType: p.TransactionType,
			Amount:          -p.Amount,
			BalanceAfter:    newBalance,
			OrderID:         p.OrderID,
			Reason:          p.Reason,
			CreatedAt:       time.Now().UTC(),
		}
		if errCreate := tx.Create(&row).Error; errCreate != nil {
			return errCreate
		}

		updates := map[string]any{"current_balance": newBalance}
		switch p.TransactionType {
		case models.TransactionExpired:
			updates["lifetime_expired"] = balance.LifetimeExpired + p.Amount
		case models.TransactionManualSubtract, models.TransactionUsed:
			updates["lifetime_used"] = balance.LifetimeUsed + p.Amount
		}
		if errUpdate := tx.Model(&models.PointBalance{}).
			Where("id = ?", balance.ID).
			Updates(updates).Error; errUpdate != nil {
			return errUpdate
		}

		result = MutationResult{NewBalance: newBalance, TransactionID: row.ID}
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return &result, nil
}

// GetBalance returns a user's balance summary. Unknown users read as a
// fresh, empty account rather than an error.
func (s *Service) GetBalance(ctx context.Context, userID uint64) (*BalanceSummary, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("ledger: service not initialized")
	}

	var balance models.PointBalance
	errFind := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&balance).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return &BalanceSummary{UserID: userID}, nil
	}
	if errFind != nil {
		return nil, errFind
	}
	return &BalanceSummary{
		UserID:          userID,
		CurrentBalance:  balance.CurrentBalance,
		LifetimeEarned:  balance.LifetimeEarned,
		LifetimeUsed:    balance.LifetimeUsed,
		LifetimeExpired: balance.LifetimeExpired,
	}, nil
}

// GetTransactionHistory returns one page of a user's ledger, newest first.
func (s *Service) GetTransactionHistory(ctx context.Context, userID uint64, q HistoryQuery) (*HistoryPage, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("ledger: service not initialized")
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 || q.Limit > maxHistoryLimit {
		q.Limit = 20
	}

	page := &HistoryPage{Transactions: []models.PointTransaction{}, Page: q.Page, Limit: q.Limit}

	var balance models.PointBalance
	errFind := s.db.WithContext(ctx).Select("id").Where("user_id = ?", userID).First(&balance).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return page, nil
	}
	if errFind != nil {
		return nil, errFind
	}

	query := s.db.WithContext(ctx).Model(&models.PointTransaction{}).Where("balance_id = ?", balance.ID)
	if q.TransactionType != "" {
		query = query.Where("transaction_type = ?", q.TransactionType)
	}
	if q.StartDate != nil {
		query = query.Where("created_at >= ?", *q.StartDate)
	}
	if q.EndDate != nil {
		query = query.Where("created_at < ?", *q.EndDate)
	}

	if errCount := query.Count(&page.Total).Error; errCount != nil {
		return nil, errCount
	}

	offset := (q.Page - 1) * q.Limit
	if errList := query.
		Order("created_at DESC, id DESC").
		Offset(offset).Limit(q.Limit).
		Find(&page.Transactions).Error; errList != nil {
		return nil, errList
	}
	return page, nil
}

// lockBalance loads a user's balance row under a row lock where the
// dialect supports one.
func (s *Service) lockBalance(tx *gorm.DB, userID uint64) (*models.PointBalance, error) {
	q := tx.Where("user_id = ?", userID)
	if dbutil.SupportsRowLocking(tx) {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var balance models.PointBalance
	if errFind := q.First(&balance).Error; errFind != nil {
		return nil, errFind
	}
	return &balance, nil
}

// lockOrCreateBalance loads a user's balance row, seeding an empty row on
// first use. The seed insert is conflict-tolerant so two concurrent first
// mutations cannot race each other into an error.
func (s *Service) lockOrCreateBalance(tx *gorm.DB, userID uint64) (*models.PointBalance, error) {
	balance, errLock := s.lockBalance(tx, userID)
	if errLock == nil {
		return balance, nil
	}
	if !errors.Is(errLock, gorm.ErrRecordNotFound) {
		return nil, errLock
	}

	seed := models.PointBalance{UserID: userID}
	if errSeed := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&seed).Error; errSeed != nil {
		return nil, errSeed
	}
	return s.lockBalance(tx, userID)
}
