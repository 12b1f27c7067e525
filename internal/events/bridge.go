package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/livemerce/pointsledger/internal/ledger"
	"github.com/livemerce/pointsledger/internal/models"
	"github.com/livemerce/pointsledger/internal/settings"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// errDuplicateEarning marks an order that already produced an earning
// transaction. It never escapes the bridge; at-least-once delivery makes
// redelivery normal, so the duplicate is logged and skipped.
var errDuplicateEarning = errors.New("events: order already earned points")

// Bridge translates order lifecycle events into ledger mutations and
// re-emits points-domain events for notification consumers.
type Bridge struct {
	db        *gorm.DB
	ledger    *ledger.Service
	config    *settings.Provider
	publisher Publisher
}

// NewBridge wires the event bridge with its collaborators.
func NewBridge(db *gorm.DB, ledgerSvc *ledger.Service, config *settings.Provider, publisher Publisher) *Bridge {
	return &Bridge{db: db, ledger: ledgerSvc, config: config, publisher: publisher}
}

// HandleOrderPaid awards points for a paid order. The caller owns error
// logging; a points failure must never fail the triggering order flow.
func (b *Bridge) HandleOrderPaid(ctx context.Context, evt OrderPaidEvent) error {
	if b == nil || b.db == nil {
		return errors.New("events: bridge not initialized")
	}

	cfg, errCfg := b.config.Get(ctx)
	if errCfg != nil {
		return fmt.Errorf("load points config: %w", errCfg)
	}
	if !cfg.PointsEnabled {
		return nil
	}

	order, errOrder := b.loadOrder(ctx, evt.OrderID)
	if errOrder != nil {
		return errOrder
	}

	earned := order.TotalAmount * int64(cfg.PointEarningRate) / 100
	if earned <= 0 {
		return nil
	}

	if errDup := b.checkDuplicateEarning(ctx, evt.OrderID); errDup != nil {
		if errors.Is(errDup, errDuplicateEarning) {
			log.Infof("order %d already earned points, skipping", evt.OrderID)
			return nil
		}
		return errDup
	}

	var expiresAt *time.Time
	if cfg.PointExpirationEnabled {
		deadline := time.Now().UTC().AddDate(0, cfg.PointExpirationMonths, 0)
		expiresAt = &deadline
	}

	orderID := evt.OrderID
	result, errAdd := b.ledger.AddPoints(ctx, ledger.AddParams{
		UserID:          evt.UserID,
		Amount:          earned,
		TransactionType: models.TransactionEarnedOrder,
		OrderID:         &orderID,
		ExpiresAt:       expiresAt,
	})
	if errAdd != nil {
		return fmt.Errorf("award points for order %d: %w", evt.OrderID, errAdd)
	}

	payload := EarnedEvent{
		UserID:     evt.UserID,
		OrderID:    evt.OrderID,
		Amount:     earned,
		NewBalance: result.NewBalance,
		Timestamp:  time.Now().UTC(),
	}
	if errPublish := b.publisher.Publish(ctx, ChannelPointsEarned, evt.UserID, payload); errPublish != nil {
		log.WithError(errPublish).Warnf("publish points earned failed (order=%d)", evt.OrderID)
	}
	return nil
}

// HandleOrderCancelled restores points spent on a cancelled order.
func (b *Bridge) HandleOrderCancelled(ctx context.Context, evt OrderCancelledEvent) error {
	if b == nil || b.db == nil {
		return errors.New("events: bridge not initialized")
	}

	order, errOrder := b.loadOrder(ctx, evt.OrderID)
	if errOrder != nil {
		return errOrder
	}
	if order.PointsUsed <= 0 {
		return nil
	}

	orderID := evt.OrderID
	result, errAdd := b.ledger.AddPoints(ctx, ledger.AddParams{
		UserID:          order.UserID,
		Amount:          order.PointsUsed,
		TransactionType: models.TransactionRefundCancelled,
		OrderID:         &orderID,
		Reason:          "Points refunded for cancelled order",
	})
	if errAdd != nil {
		return fmt.Errorf("refund points for order %d: %w", evt.OrderID, errAdd)
	}

	payload := RefundedEvent{
		UserID:     order.UserID,
		OrderID:    evt.OrderID,
		Amount:     order.PointsUsed,
		NewBalance: result.NewBalance,
		Timestamp:  time.Now().UTC(),
	}
	if errPublish := b.publisher.Publish(ctx, ChannelPointsRefunded, order.UserID, payload); errPublish != nil {
		log.WithError(errPublish).Warnf("publish points refunded failed (order=%d)", evt.OrderID)
	}
	return nil
}

// loadOrder reads the commerce order referenced by an event.
func (b *Bridge) loadOrder(ctx context.Context, orderID uint64) (*models.Order, error) {
	var order models.Order
	errFind := b.db.WithContext(ctx).First(&order, orderID).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, &ledger.NotFoundError{Resource: "order", ID: orderID}
	}
	if errFind != nil {
		return nil, errFind
	}
	return &order, nil
}

// checkDuplicateEarning guards against at-least-once event redelivery by
// refusing to credit an order that already has an earning transaction.
func (b *Bridge) checkDuplicateEarning(ctx context.Context, orderID uint64) error {
	var count int64
	if errCount := b.db.WithContext(ctx).
		Model(&models.PointTransaction{}).
		Where("order_id = ? AND transaction_type = ?", orderID, models.TransactionEarnedOrder).
		Count(&count).Error; errCount != nil {
		return errCount
	}
	if count > 0 {
		return errDuplicateEarning
	}
	return nil
}
