package events

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// RedisPublisher broadcasts points-domain events on redis Pub/Sub channels.
type RedisPublisher struct {
	rdb *redis.Client
}

// NewRedisPublisher constructs a redis-backed publisher.
func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

// Publish marshals the payload and publishes it on the channel.
func (p *RedisPublisher) Publish(ctx context.Context, channel string, _ uint64, payload any) error {
	if p == nil || p.rdb == nil {
		return errors.New("events: redis publisher not initialized")
	}
	data, errMarshal := json.Marshal(payload)
	if errMarshal != nil {
		return errMarshal
	}
	return p.rdb.Publish(ctx, channel, data).Err()
}

// Subscriber consumes order lifecycle events from redis Pub/Sub and feeds
// them to the bridge. Handler failures are logged and swallowed; points are
// a secondary effect of the order flow, never a prerequisite.
type Subscriber struct {
	rdb    *redis.Client
	bridge *Bridge
}

// NewSubscriber constructs an order-event subscriber.
func NewSubscriber(rdb *redis.Client, bridge *Bridge) *Subscriber {
	if rdb == nil || bridge == nil {
		return nil
	}
	return &Subscriber{rdb: rdb, bridge: bridge}
}

// Start launches the subscription loop in a background goroutine.
func (s *Subscriber) Start(ctx context.Context) {
	if s == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go s.run(ctx)
	log.Infof("order event subscriber started (channels=%s,%s)", ChannelOrderPaid, ChannelOrderCancelled)
}

func (s *Subscriber) run(ctx context.Context) {
	pubsub := s.rdb.Subscribe(ctx, ChannelOrderPaid, ChannelOrderCancelled)
	defer func() {
		if errClose := pubsub.Close(); errClose != nil {
			log.WithError(errClose).Warn("close order event subscription failed")
		}
	}()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.dispatch(ctx, msg.Channel, []byte(msg.Payload))
		}
	}
}

// dispatch routes one raw message to the matching bridge handler.
func (s *Subscriber) dispatch(ctx context.Context, channel string, payload []byte) {
	switch channel {
	case ChannelOrderPaid:
		var evt OrderPaidEvent
		if errUnmarshal := json.Unmarshal(payload, &evt); errUnmarshal != nil {
			log.WithError(errUnmarshal).Warn("decode order paid event failed")
			return
		}
		if errHandle := s.bridge.HandleOrderPaid(ctx, evt); errHandle != nil {
			log.WithError(errHandle).Warnf("handle order paid failed (order=%d)", evt.OrderID)
		}
	case ChannelOrderCancelled:
		var evt OrderCancelledEvent
		if errUnmarshal := json.Unmarshal(payload, &evt); errUnmarshal != nil {
			log.WithError(errUnmarshal).Warn("decode order cancelled event failed")
			return
		}
		if errHandle := s.bridge.HandleOrderCancelled(ctx, evt); errHandle != nil {
			log.WithError(errHandle).Warnf("handle order cancelled failed (order=%d)", evt.OrderID)
		}
	default:
		log.Warnf("unexpected channel %q", channel)
	}
}
