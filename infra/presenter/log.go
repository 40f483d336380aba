// Package presenter holds the presentation adapters the escrow talks to the
// chat front-end through.
package presenter

import (
	"context"
	"log/slog"

	"github.com/amirasaad/escrow/pkg/presentation"
)

// LogPresenter writes every prompt and notification to the log. It is the
// development default when no chat front-end is attached.
type LogPresenter struct {
	currency string
	logger   *slog.Logger
}

// NewLogPresenter creates a LogPresenter.
func NewLogPresenter(currency string, logger *slog.Logger) *LogPresenter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPresenter{currency: currency, logger: logger.With("presenter", "log")}
}

func (p *LogPresenter) PromptAmount(ctx context.Context, userID string) error {
	p.logger.InfoContext(ctx, "💬 prompt amount", "user_id", userID, "text", presentation.AmountPrompt(p.currency))
	return nil
}

func (p *LogPresenter) PromptWallet(ctx context.Context, userID string) error {
	p.logger.InfoContext(ctx, "💬 prompt wallet", "user_id", userID, "text", presentation.WalletPrompt)
	return nil
}

func (p *LogPresenter) ShowPayLink(ctx context.Context, userID, url string, amount int64, reference string) error {
	p.logger.InfoContext(ctx, "💳 pay link", "user_id", userID, "url", url, "amount", amount, "reference", reference)
	return nil
}

func (p *LogPresenter) Notify(ctx context.Context, userID, message string) error {
	p.logger.InfoContext(ctx, "💬 notify", "user_id", userID, "text", message)
	return nil
}

var _ presentation.Adapter = (*LogPresenter)(nil)
