// Package presentation defines what the escrow needs from the chat front-end.
package presentation

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Adapter renders prompts and notifications to one chat user.
type Adapter interface {
	PromptAmount(ctx context.Context, userID string) error
	PromptWallet(ctx context.Context, userID string) error
	ShowPayLink(ctx context.Context, userID, url string, amount int64, reference string) error
	Notify(ctx context.Context, userID, message string) error
}

// Kind names a presentation message, used by adapters that serialize them.
type Kind string

const (
	KindPromptAmount Kind = "prompt_amount"
	KindPromptWallet Kind = "prompt_wallet"
	KindPayLink      Kind = "pay_link"
	KindNotify       Kind = "notify"
)

// Message is the serialized form of one Adapter call.
type Message struct {
	Kind      Kind   `json:"kind"`
	UserID    string `json:"user_id"`
	Text      string `json:"text,omitempty"`
	URL       string `json:"url,omitempty"`
	Amount    int64  `json:"amount,omitempty"`
	Reference string `json:"reference,omitempty"`
}

// WalletPrompt asks the buyer where the seller should send the stablecoin.
const WalletPrompt = "Enter the USDT wallet address to receive your coins:"

// AmountPrompt asks the buyer for the trade amount in whole currency units.
func AmountPrompt(currency string) string {
	if currency == "" {
		return "Enter amount (e.g., 50000):"
	}
	return fmt.Sprintf("Enter amount in %s (e.g., 50000):", currency)
}

// FormatAmount renders a minor-unit amount such as 5000000 as "NGN 50,000.00".
func FormatAmount(minor int64, currency string) string {
	s := decimal.New(minor, -2).StringFixed(2)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	whole, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := sign + b.String() + "." + frac
	if currency == "" {
		return out
	}
	return currency + " " + out
}
