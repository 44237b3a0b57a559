package notify

import (
	"context"
	"errors"
	"fmt"

	json "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Sender delivers a message to the external delivery collaborator.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Publisher is the subset of the redis client used for delivery.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisSender publishes JSON-encoded messages on a Redis pub/sub channel.
type RedisSender struct {
	client  Publisher
	channel string
}

// NewRedisSender builds a sender publishing on channel.
func NewRedisSender(client Publisher, channel string) *RedisSender {
	if channel == "" {
		channel = "notifications"
	}
	return &RedisSender{client: client, channel: channel}
}

// Send marshals msg and publishes it.
func (s *RedisSender) Send(ctx context.Context, msg Message) error {
	if s.client == nil {
		return errors.New("redis publisher not configured")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel, data).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// LogSender writes messages to the log instead of delivering them.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender returns a sender for environments without Redis.
func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.Info("notification",
		zap.String("channel", string(msg.Channel)),
		zap.String("template", msg.Template),
		zap.String("recipient", msg.Recipient),
		zap.Any("data", msg.Data),
	)
	return nil
}
