package presenter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/amirasaad/escrow/pkg/presentation"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer the outbox uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPresenter publishes every Adapter call as a presentation.Message to a
// topic consumed by the chat front-end. Messages are keyed by user id so one
// user's messages stay ordered.
type KafkaPresenter struct {
	writer   MessageWriter
	currency string
	logger   *slog.Logger
}

// NewKafkaWriter creates the writer used by NewKafkaPresenter.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireOne,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
	}
}

// NewKafkaPresenter creates a presenter writing through w.
func NewKafkaPresenter(w MessageWriter, currency string, logger *slog.Logger) *KafkaPresenter {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaPresenter{writer: w, currency: currency, logger: logger.With("presenter", "kafka")}
}

func (p *KafkaPresenter) publish(ctx context.Context, msg presentation.Message) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.UserID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(msg.Kind)},
		},
	})
	if err != nil {
		p.logger.Error("failed to publish presentation message", "kind", msg.Kind, "user_id", msg.UserID, "error", err)
		return fmt.Errorf("publish %s for %s: %w", msg.Kind, msg.UserID, err)
	}
	return nil
}

func (p *KafkaPresenter) PromptAmount(ctx context.Context, userID string) error {
	return p.publish(ctx, presentation.Message{
		Kind:   presentation.KindPromptAmount,
		UserID: userID,
		Text:   presentation.AmountPrompt(p.currency),
	})
}

func (p *KafkaPresenter) PromptWallet(ctx context.Context, userID string) error {
	return p.publish(ctx, presentation.Message{
		Kind:   presentation.KindPromptWallet,
		UserID: userID,
		Text:   presentation.WalletPrompt,
	})
}

func (p *KafkaPresenter) ShowPayLink(ctx context.Context, userID, url string, amount int64, reference string) error {
	return p.publish(ctx, presentation.Message{
		Kind:      presentation.KindPayLink,
		UserID:    userID,
		Text:      fmt.Sprintf("Pay %s to buy USDT. We hold the funds until the seller delivers 🔒", presentation.FormatAmount(amount, p.currency)),
		URL:       url,
		Amount:    amount,
		Reference: reference,
	})
}

func (p *KafkaPresenter) Notify(ctx context.Context, userID, message string) error {
	return p.publish(ctx, presentation.Message{
		Kind:   presentation.KindNotify,
		UserID: userID,
		Text:   message,
	})
}

// Close flushes and closes the writer.
func (p *KafkaPresenter) Close() error {
	return p.writer.Close()
}

var _ presentation.Adapter = (*KafkaPresenter)(nil)
