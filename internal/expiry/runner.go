package expiry

import (
	"context"
	"errors"
	"time"

	"github.com/livemerce/pointsledger/internal/events"
	"github.com/livemerce/pointsledger/internal/ledger"
	"github.com/livemerce/pointsledger/internal/models"
	"github.com/livemerce/pointsledger/internal/settings"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	// runHour is the local hour of the daily expiration run.
	runHour = 4
	// warningHorizon is the look-ahead window for expiring-soon warnings.
	warningHorizon = 7 * 24 * time.Hour
	// expiredReason annotates EXPIRED ledger entries.
	expiredReason = "Points expired"
)

// Runner executes the daily points expiration pass. It only knows how to
// run; scheduling stays outside the algorithm so tests invoke Run directly.
type Runner struct {
	db        *gorm.DB
	ledger    *ledger.Service
	config    *settings.Provider
	publisher events.Publisher
}

// NewRunner wires an expiration runner with its collaborators.
func NewRunner(db *gorm.DB, ledgerSvc *ledger.Service, config *settings.Provider, publisher events.Publisher) *Runner {
	if db == nil || ledgerSvc == nil || config == nil {
		return nil
	}
	return &Runner{db: db, ledger: ledgerSvc, config: config, publisher: publisher}
}

// Start launches the daily schedule loop in a background goroutine.
func (r *Runner) Start(ctx context.Context) {
	if r == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go r.loop(ctx)
	log.Infof("expiration runner started (daily at %02d:00)", runHour)
}

func (r *Runner) loop(ctx context.Context) {
	for {
		timer := time.NewTimer(time.Until(nextRunAt(time.Now())))
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return
		case <-timer.C:
		}
		if errRun := r.Run(ctx); errRun != nil {
			log.WithError(errRun).Warn("expiration run failed")
		}
	}
}

// nextRunAt returns the next daily run time after now.
func nextRunAt(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), runHour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// maturedRow is one matured earning joined with its owning user.
type maturedRow struct {
	ID     uint64
	UserID uint64
	Amount int64
}

// userBatch aggregates one user's matured earnings.
type userBatch struct {
	totalExpiring  int64
	transactionIDs []uint64
}

// Run executes one expiration pass: deduct matured earnings capped at each
// user's live balance, mark the matured rows processed, then announce
// points expiring within the warning horizon.
func (r *Runner) Run(ctx context.Context) error {
	if r == nil || r.db == nil {
		return errors.New("expiry: runner not initialized")
	}

	cfg, errCfg := r.config.Get(ctx)
	if errCfg != nil {
		return errCfg
	}
	if !cfg.PointsEnabled || !cfg.PointExpirationEnabled {
		return nil
	}

	now := time.Now().UTC()
	batches, errLoad := r.loadMatured(ctx, now)
	if errLoad != nil {
		return errLoad
	}

	processed, expired := 0, int64(0)
	for userID, batch := range batches {
		// One user's failure must not abort the rest of the cohort.
		amount, errUser := r.expireForUser(ctx, userID, batch)
		if errUser != nil {
			log.WithError(errUser).Warnf("expire points failed (user=%d)", userID)
			continue
		}
		if amount > 0 {
			processed++
			expired += amount
		}
	}
	if len(batches) > 0 {
		log.Infof("expiration run: %d users matured, %d users expired, %d points removed", len(batches), processed, expired)
	}

	return r.announceExpiring(ctx, now)
}

// loadMatured finds unprocessed matured earnings grouped per user.
func (r *Runner) loadMatured(ctx context.Context, now time.Time) (map[uint64]*userBatch, error) {
	var rows []maturedRow
	if errScan := r.db.WithContext(ctx).
		Model(&models.PointTransaction{}).
		Select("point_transactions.id, point_transactions.amount, point_balances.user_id").
		Joins("JOIN point_balances ON point_balances.id = point_transactions.balance_id").
		Where("point_transactions.transaction_type = ?", models.TransactionEarnedOrder).
		Where("point_transactions.amount > 0").
		Where("point_transactions.expires_at IS NOT NULL AND point_transactions.expires_at <= ?", now).
		Order("point_transactions.id ASC").
		Scan(&rows).Error; errScan != nil {
		return nil, errScan
	}

	batches := make(map[uint64]*userBatch)
	for _, row := range rows {
		batch := batches[row.UserID]
		if batch == nil {
			batch = &userBatch{}
			batches[row.UserID] = batch
		}
		batch.totalExpiring += row.Amount
		batch.transactionIDs = append(batch.transactionIDs, row.ID)
	}
	return batches, nil
}

// expireForUser deducts one user's matured total capped at the live
// balance and marks the matured rows processed. Returns the deducted
// amount, zero when the user was skipped.
func (r *Runner) expireForUser(ctx context.Context, userID uint64, batch *userBatch) (int64, error) {
	balance, errBalance := r.ledger.GetBalance(ctx, userID)
	if errBalance != nil {
		return 0, errBalance
	}
	// Points already spent from the matured batch cannot be taken back
	// beyond what remains in the account.
	if balance.CurrentBalance <= 0 {
		return 0, nil
	}
	amountToExpire := batch.totalExpiring
	if amountToExpire > balance.CurrentBalance {
		amountToExpire = balance.CurrentBalance
	}
	if amountToExpire <= 0 {
		return 0, nil
	}

	if _, errDeduct := r.ledger.DeductPoints(ctx, ledger.DeductParams{
		UserID:          userID,
		Amount:          amountToExpire,
		TransactionType: models.TransactionExpired,
		Reason:          expiredReason,
	}); errDeduct != nil {
		return 0, errDeduct
	}

	// The matured rows are fully accounted for even when the deduction
	// was capped below their nominal total; clearing expires_at keeps the
	// next run from re-evaluating them.
	if errMark := r.db.WithContext(ctx).
		Model(&models.PointTransaction{}).
		Where("id IN ?", batch.transactionIDs).
		Update("expires_at", nil).Error; errMark != nil {
		return 0, errMark
	}
	return amountToExpire, nil
}

// expiringRow is one soon-to-expire earning joined with its owning user.
type expiringRow struct {
	UserID    uint64
	Amount    int64
	ExpiresAt time.Time
}

// announceExpiring emits one expiring-soon event per user for earnings
// expiring within the warning horizon.
func (r *Runner) announceExpiring(ctx context.Context, now time.Time) error {
	if r.publisher == nil {
		return nil
	}

	var rows []expiringRow
	if errScan := r.db.WithContext(ctx).
		Model(&models.PointTransaction{}).
		Select("point_balances.user_id, point_transactions.amount, point_transactions.expires_at").
		Joins("JOIN point_balances ON point_balances.id = point_transactions.balance_id").
		Where("point_transactions.transaction_type = ?", models.TransactionEarnedOrder).
		Where("point_transactions.amount > 0").
		Where("point_transactions.expires_at > ? AND point_transactions.expires_at <= ?", now, now.Add(warningHorizon)).
		Scan(&rows).Error; errScan != nil {
		return errScan
	}

	type warning struct {
		amount    int64
		expiresAt time.Time
	}
	warnings := make(map[uint64]*warning)
	for _, row := range rows {
		w := warnings[row.UserID]
		if w == nil {
			warnings[row.UserID] = &warning{amount: row.Amount, expiresAt: row.ExpiresAt}
			continue
		}
		w.amount += row.Amount
		if row.ExpiresAt.Before(w.expiresAt) {
			w.expiresAt = row.ExpiresAt
		}
	}

	for userID, w := range warnings {
		payload := events.ExpiringSoonEvent{
			UserID:         userID,
			ExpiringAmount: w.amount,
			ExpiresAt:      w.expiresAt,
			Timestamp:      time.Now().UTC(),
		}
		if errPublish := r.publisher.Publish(ctx, events.ChannelPointsExpiringSoon, userID, payload); errPublish != nil {
			log.WithError(errPublish).Warnf("publish expiring-soon failed (user=%d)", userID)
		}
	}
	return nil
}
