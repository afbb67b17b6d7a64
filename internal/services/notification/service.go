// Package notification delivers balance, tier and card events to the
// surrounding platform. Delivery is fire-and-forget: the ledger engine
// never blocks on a sink and a failed publish never rolls back a
// committed transaction.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"loyka/internal/models"
)

// Event types published by the ledger engine.
const (
	EventBalanceChanged = "BALANCE_CHANGED"
	EventTierChanged    = "TIER_CHANGED"
	EventCardRotated    = "CARD_ROTATED"
)

// DefaultChannel is the Redis channel loyalty events are published on.
const DefaultChannel = "loyalty:events"

// Sink receives ledger events. Implementations must be safe for
// concurrent use and should return quickly.
type Sink interface {
	Notify(ctx context.Context, accountID uint, eventType string, payload models.JSON) error
}

// Event is the wire form of one published notification.
type Event struct {
	AccountID uint        `json:"account_id"`
	Type      string      `json:"type"`
	Payload   models.JSON `json:"payload,omitempty"`
	At        time.Time   `json:"at"`
}

// RedisSink publishes events on a Redis pub/sub channel. Consumers
// (push, email, analytics) subscribe out of process; delivery is
// best-effort by design.
type RedisSink struct {
	client  *redis.Client
	channel string
}

// NewRedisSink creates a sink publishing on channel, or DefaultChannel
// when empty.
func NewRedisSink(client *redis.Client, channel string) *RedisSink {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisSink{client: client, channel: channel}
}

func (s *RedisSink) Notify(ctx context.Context, accountID uint, eventType string, payload models.JSON) error {
	event := Event{
		AccountID: accountID,
		Type:      eventType,
		Payload:   payload,
		At:        time.Now().UTC(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal notification event: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel, data).Err(); err != nil {
		return fmt.Errorf("publish notification event: %w", err)
	}
	return nil
}

// LogSink writes events to the structured log. Used when Redis is not
// configured and as the last-resort sink in development.
type LogSink struct {
	logger *logrus.Entry
}

func NewLogSink(logger *logrus.Entry) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Notify(_ context.Context, accountID uint, eventType string, payload models.JSON) error {
	s.logger.WithFields(logrus.Fields{
		"account_id": accountID,
		"event_type": eventType,
		"payload":    payload,
	}).Info("loyalty event")
	return nil
}
