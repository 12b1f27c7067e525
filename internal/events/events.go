package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/livemerce/pointsledger/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Points-domain event channels consumed by the notification subsystem.
const (
	// ChannelPointsEarned announces points credited from a paid order.
	ChannelPointsEarned = "points:earned"
	// ChannelPointsRefunded announces points restored after a cancellation.
	ChannelPointsRefunded = "points:refunded"
	// ChannelPointsExpiringSoon warns about points expiring within the horizon.
	ChannelPointsExpiringSoon = "points:expiring-soon"
)

// Order lifecycle channels consumed from the commerce subsystem.
const (
	// ChannelOrderPaid carries order payment completions.
	ChannelOrderPaid = "order:paid"
	// ChannelOrderCancelled carries order cancellations.
	ChannelOrderCancelled = "order:cancelled"
)

// EarnedEvent is the payload published on ChannelPointsEarned.
type EarnedEvent struct {
	UserID     uint64    `json:"user_id"`
	OrderID    uint64    `json:"order_id"`
	Amount     int64     `json:"amount"`
	NewBalance int64     `json:"new_balance"`
	Timestamp  time.Time `json:"timestamp"`
}

// RefundedEvent is the payload published on ChannelPointsRefunded.
type RefundedEvent struct {
	UserID     uint64    `json:"user_id"`
	OrderID    uint64    `json:"order_id"`
	Amount     int64     `json:"amount"`
	NewBalance int64     `json:"new_balance"`
	Timestamp  time.Time `json:"timestamp"`
}

// ExpiringSoonEvent is the payload published on ChannelPointsExpiringSoon.
type ExpiringSoonEvent struct {
	UserID         uint64    `json:"user_id"`
	ExpiringAmount int64     `json:"expiring_amount"`
	ExpiresAt      time.Time `json:"expires_at"`
	Timestamp      time.Time `json:"timestamp"`
}

// OrderPaidEvent is the inbound payload on ChannelOrderPaid.
type OrderPaidEvent struct {
	OrderID uint64 `json:"order_id"`
	UserID  uint64 `json:"user_id"`
}

// OrderCancelledEvent is the inbound payload on ChannelOrderCancelled.
type OrderCancelledEvent struct {
	OrderID uint64 `json:"order_id"`
}

// Publisher delivers points-domain events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, channel string, userID uint64, payload any) error
}

// OutboxPublisher persists each event as a points_events row so consumers
// can replay anything missed from the live channels.
type OutboxPublisher struct {
	db *gorm.DB
}

// NewOutboxPublisher constructs an outbox publisher backed by GORM.
func NewOutboxPublisher(db *gorm.DB) *OutboxPublisher {
	return &OutboxPublisher{db: db}
}

// Publish writes the event to the outbox table.
func (p *OutboxPublisher) Publish(ctx context.Context, channel string, userID uint64, payload any) error {
	if p == nil || p.db == nil {
		return errors.New("events: outbox not initialized")
	}
	data, errMarshal := json.Marshal(payload)
	if errMarshal != nil {
		return errMarshal
	}
	row := models.PointsEvent{
		EventType: channel,
		UserID:    userID,
		Payload:   datatypes.JSON(data),
		CreatedAt: time.Now().UTC(),
	}
	return p.db.WithContext(ctx).Create(&row).Error
}

// MultiPublisher fans one event out to several publishers.
type MultiPublisher struct {
	publishers []Publisher
}

// NewMultiPublisher composes publishers into one fan-out publisher.
func NewMultiPublisher(publishers ...Publisher) *MultiPublisher {
	return &MultiPublisher{publishers: publishers}
}

// Publish delivers to every publisher and joins any failures.
func (p *MultiPublisher) Publish(ctx context.Context, channel string, userID uint64, payload any) error {
	if p == nil {
		return nil
	}
	var errs []error
	for _, pub := range p.publishers {
		if pub == nil {
			continue
		}
		if errPublish := pub.Publish(ctx, channel, userID, payload); errPublish != nil {
			errs = append(errs, errPublish)
		}
	}
	return errors.Join(errs...)
}
