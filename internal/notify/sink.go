package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/servicedesk/internal/domain"
)

// Sink accepts one notification for delivery. Implementations must be safe for concurrent use.
type Sink interface {
	Deliver(ctx context.Context, n domain.Notification) error
}

// RedisSink appends notifications to a Redis stream that client gateways consume.
type RedisSink struct {
	client redis.Cmdable
	stream string
	maxLen int64
}

// NewRedisSink creates a stream sink. maxLen <= 0 leaves the stream untrimmed.
func NewRedisSink(client redis.Cmdable, stream string, maxLen int64) *RedisSink {
	return &RedisSink{client: client, stream: stream, maxLen: maxLen}
}

// Deliver XADDs the notification.
func (s *RedisSink) Deliver(ctx context.Context, n domain.Notification) error {
	if s == nil || s.client == nil {
		return errors.New("redis sink not configured")
	}
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: streamValues(n),
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}

// streamValues flattens n into ordered field/value pairs.
func streamValues(n domain.Notification) []interface{} {
	return []interface{}{
		"id", n.ID,
		"user_id", n.UserID,
		"ticket_id", n.TicketID,
		"title", n.Title,
		"message", n.Message,
		"type", string(n.Type),
		"created_at", n.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// LogSink writes notifications to the structured log. Used when no broker is configured.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a log-backed sink.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Deliver logs n and never fails.
func (s *LogSink) Deliver(_ context.Context, n domain.Notification) error {
	s.logger.Info("notification",
		zap.String("notification_id", n.ID),
		zap.String("user_id", n.UserID),
		zap.String("ticket_id", n.TicketID),
		zap.String("type", string(n.Type)),
		zap.String("title", n.Title),
		zap.String("message", n.Message))
	return nil
}
