package queue

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type MessageHandler interface {
	Handle(ctx context.Context, msg redis.XMessage) error
}

type Consumer struct {
	client        *redis.Client
	stream        string
	group         string
	consumer      string
	claimInterval time.Duration
	maxDeliveries int64
	block         time.Duration
	logger        zerolog.Logger
	handler       MessageHandler
}

// DeadLetterStream is where messages go once they exceed maxDeliveries.
func DeadLetterStream(stream string) string {
	return stream + ":dead"
}

// NewConsumer builds a group consumer. A message delivered maxDeliveries
// times without success is moved to DeadLetterStream(stream); zero or less
// retries forever.
func NewConsumer(client *redis.Client, stream, group, consumer string, claimInterval time.Duration, maxDeliveries int, logger zerolog.Logger, handler MessageHandler) *Consumer {
	return &Consumer{
		client:        client,
		stream:        stream,
		group:         group,
		consumer:      consumer,
		claimInterval: claimInterval,
		maxDeliveries: int64(maxDeliveries),
		block:         5 * time.Second,
		logger:        logger,
		handler:       handler,
	}
}

// EnsureGroup creates the stream and consumer group if they do not exist.
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

func (c *Consumer) Start(ctx context.Context) error {
	if err := c.EnsureGroup(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(c.claimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := c.read(ctx); err != nil && !errors.Is(err, context.Canceled) {
				c.logger.Error().Err(err).Msg("stream read error")
				sleep(ctx, 2*time.Second)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.claimStalled(ctx); err != nil {
				c.logger.Error().Err(err).Msg("claim stalled failed")
			}
		default:
		}
	}
}

func (c *Consumer) read(ctx context.Context) error {
	result, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  []string{c.stream, ">"},
		Count:    10,
		Block:    c.block,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}

	for _, stream := range result {
		for _, msg := range stream.Messages {
			c.process(ctx, msg)
		}
	}
	return nil
}

// process hands msg to the handler and acks it on success. Failed messages
// stay pending and are retried by claimStalled.
func (c *Consumer) process(ctx context.Context, msg redis.XMessage) {
	if err := c.handler.Handle(ctx, msg); err != nil {
		c.logger.Error().
			Err(err).
			Str("message_id", msg.ID).
			Msg("handle message failed")
		return
	}
	if err := c.client.XAck(ctx, c.stream, c.group, msg.ID).Err(); err != nil {
		c.logger.Error().Err(err).Str("message_id", msg.ID).Msg("ack failed")
	}
}

func (c *Consumer) claimStalled(ctx context.Context) error {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.stream,
		Group:  c.group,
		Idle:   c.claimInterval,
		Start:  "-",
		End:    "+",
		Count:  10,
	}).Result()
	if err != nil {
		return err
	}

	for _, entry := range pending {
		msgs, err := c.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   c.stream,
			Group:    c.group,
			Consumer: c.consumer,
			MinIdle:  c.claimInterval,
			Messages: []string{entry.ID},
		}).Result()
		if err != nil {
			c.logger.Error().Err(err).Msg("claim error")
			continue
		}
		if c.maxDeliveries > 0 && entry.RetryCount >= c.maxDeliveries {
			c.deadLetter(ctx, entry, msgs)
			continue
		}
		for _, msg := range msgs {
			c.process(ctx, msg)
		}
	}
	return nil
}

func (c *Consumer) deadLetter(ctx context.Context, entry redis.XPendingExt, msgs []redis.XMessage) {
	for _, msg := range msgs {
		values := make(map[string]interface{}, len(msg.Values)+2)
		for k, v := range msg.Values {
			values[k] = v
		}
		values["source_id"] = msg.ID
		values["attempts"] = entry.RetryCount

		if err := c.client.XAdd(ctx, &redis.XAddArgs{
			Stream: DeadLetterStream(c.stream),
			Values: values,
		}).Err(); err != nil {
			c.logger.Error().Err(err).Str("message_id", msg.ID).Msg("dead letter failed")
			return
		}
	}

	if err := c.client.XAck(ctx, c.stream, c.group, entry.ID).Err(); err != nil {
		c.logger.Error().Err(err).Str("message_id", entry.ID).Msg("ack failed")
		return
	}
	c.logger.Warn().
		Str("message_id", entry.ID).
		Int64("attempts", entry.RetryCount).
		Msg("message moved to dead letter stream")
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
