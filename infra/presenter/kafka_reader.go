package presenter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/amirasaad/escrow/pkg/presentation"
	"github.com/segmentio/kafka-go"
)

// MessageReader is the part of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaReader creates a consumer-group reader on the presentation topic.
func NewKafkaReader(brokers []string, topic, group string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     group,
		Topic:       topic,
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
	})
}

// Consume decodes presentation messages from r and passes them to fn until
// ctx is done. A message is committed once fn returns nil. Messages that do
// not decode are logged and committed.
func Consume(ctx context.Context, r MessageReader, fn func(presentation.Message) error, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		var msg presentation.Message
		if err := json.Unmarshal(m.Value, &msg); err != nil {
			logger.Warn("skipping undecodable presentation message", "offset", m.Offset, "error", err)
		} else if err := fn(msg); err != nil {
			return err
		}
		if err := r.CommitMessages(ctx, m); err != nil {
			return err
		}
	}
}
