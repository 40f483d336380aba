package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/amirasaad/escrow/pkg/domain/events"
	"github.com/amirasaad/escrow/pkg/eventbus"
	"github.com/redis/go-redis/v9"
)

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// RedisEventBus implements the bus on a single Redis stream. Every
// registered event type reads through its own consumer group.
type RedisEventBus struct {
	client        redis.UniversalClient
	stream        string
	group         string
	block         time.Duration
	typeFactories map[string]func() events.Event
	logger        *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWithRedis creates a Redis Streams bus over an existing client.
func NewWithRedis(
	client redis.UniversalClient,
	stream, group string,
	types map[string]func() events.Event,
	logger *slog.Logger,
) (*RedisEventBus, error) {
	if client == nil || stream == "" || group == "" {
		return nil, fmt.Errorf("redis event bus: client, stream, and group are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisEventBus{
		client:        client,
		stream:        stream,
		group:         group,
		block:         5 * time.Second,
		typeFactories: types,
		logger:        logger.With("component", "redis-event-bus"),
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

// Emit appends the event to the stream.
func (b *RedisEventBus) Emit(ctx context.Context, event events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis event bus: marshal failed: %w", err)
	}
	envBytes, err := json.Marshal(envelope{Type: event.Type(), Payload: data})
	if err != nil {
		return fmt.Errorf("redis event bus: envelope marshal failed: %w", err)
	}
	if err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: b.stream,
		Values: map[string]any{"event": string(envBytes)},
	}).Err(); err != nil {
		b.logger.Error("failed to emit event", "error", err, "type", event.Type())
		return fmt.Errorf("redis event bus: emit failed: %w", err)
	}
	b.logger.Debug("event emitted", "type", event.Type())
	return nil
}

// Register starts a consumer for eventType.
func (b *RedisEventBus) Register(eventType string, handler eventbus.HandlerFunc) {
	group := groupNameFor(b.group, eventType)
	consumer := consumerNameFor(eventType, time.Now().UnixNano())
	if err := b.client.XGroupCreateMkStream(b.ctx, b.stream, group, "0").Err(); err != nil &&
		!isBusyGroup(err) {
		b.logger.Error("failed to create consumer group", "error", err, "group", group)
	}
	b.logger.Info("registering handler", "event_type", eventType, "consumer", consumer)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for b.ctx.Err() == nil {
			res, err := b.client.XReadGroup(b.ctx, &redis.XReadGroupArgs{
				Group:    group,
				Consumer: consumer,
				Streams:  []string{b.stream, ">"},
				Count:    10,
				Block:    b.block,
			}).Result()
			if err != nil {
				if b.ctx.Err() != nil {
					return
				}
				if !errors.Is(err, redis.Nil) {
					b.logger.Error("error reading from stream", "error", err, "consumer", consumer)
					time.Sleep(time.Second)
				}
				continue
			}
			for _, stream := range res {
				for _, msg := range stream.Messages {
					b.handleMessage(eventType, group, msg, handler)
				}
			}
		}
	}()
}

func (b *RedisEventBus) handleMessage(eventType, group string, msg redis.XMessage, handler eventbus.HandlerFunc) {
	defer func() {
		if err := b.client.XAck(b.ctx, b.stream, group, msg.ID).Err(); err != nil {
			b.logger.Error("failed to acknowledge message", "error", err, "msg_id", msg.ID)
		}
	}()

	evt, ok := b.decode(eventType, msg)
	if !ok {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("handler panic recovered", "panic", r, "event_type", eventType)
			b.pushToDLQ(msg.Values)
		}
	}()
	if err := handler(b.ctx, evt); err != nil {
		b.logger.Error("handler error", "error", err, "event_type", eventType)
		b.pushToDLQ(msg.Values)
	}
}

// decode returns the event carried by msg when it has the wanted type.
func (b *RedisEventBus) decode(eventType string, msg redis.XMessage) (events.Event, bool) {
	raw, ok := msg.Values["event"].(string)
	if !ok {
		return nil, false
	}
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		b.logger.Error("failed to unmarshal envelope", "error", err)
		return nil, false
	}
	if env.Type != eventType {
		return nil, false
	}
	constructor, ok := b.typeFactories[env.Type]
	if !ok {
		b.logger.Error("unknown event type", "event_type", env.Type)
		b.pushToDLQ(msg.Values)
		return nil, false
	}
	evt := constructor()
	if err := json.Unmarshal(env.Payload, evt); err != nil {
		b.logger.Error("failed to unmarshal payload", "error", err, "event_type", env.Type)
		b.pushToDLQ(msg.Values)
		return nil, false
	}
	return evt, true
}

// pushToDLQ keeps the raw message for inspection or reprocessing.
func (b *RedisEventBus) pushToDLQ(values map[string]any) {
	dlq := dlqStreamName(b.stream)
	if err := b.client.XAdd(b.ctx, &redis.XAddArgs{Stream: dlq, Values: values}).Err(); err != nil {
		b.logger.Error("failed to push to DLQ", "error", err, "stream", dlq)
		return
	}
	b.logger.Warn("event pushed to DLQ", "stream", dlq)
}

// Close stops all consumers and waits for them to exit.
func (b *RedisEventBus) Close() error {
	b.cancel()
	b.wg.Wait()
	return nil
}

func isBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

var _ eventbus.Bus = (*RedisEventBus)(nil)
