package events

import (
	"time"

	"github.com/amirasaad/escrow/pkg/domain/trade"
)

func NewTradeOpened(t *trade.Trade, now time.Time) *TradeOpened {
	return &TradeOpened{Base: newBase(now), Parties: partiesOf(t), Amount: t.Amount, PayURL: t.PayURL}
}

func NewPaymentInitFailed(t *trade.Trade, reason string, now time.Time) *PaymentInitFailed {
	return &PaymentInitFailed{Base: newBase(now), Parties: partiesOf(t), Reason: reason}
}

func NewTradePaid(t *trade.Trade, now time.Time) *TradePaid {
	return &TradePaid{
		Base:        newBase(now),
		Parties:     partiesOf(t),
		Amount:      t.Amount,
		AmountPaid:  t.AmountPaid,
		BuyerWallet: t.BuyerWallet,
		Flagged:     t.Flagged,
	}
}

func NewTradeFlagged(t *trade.Trade, now time.Time) *TradeFlagged {
	return &TradeFlagged{Base: newBase(now), Parties: partiesOf(t), Reason: t.FlagReason}
}

func NewTradeReleased(t *trade.Trade, releasedBy string, now time.Time) *TradeReleased {
	return &TradeReleased{
		Base:          newBase(now),
		Parties:       partiesOf(t),
		Amount:        t.Amount,
		Fee:           t.Fee,
		Payout:        t.Payout,
		PayoutAddress: t.SellerPayoutAddress,
		ReleasedBy:    releasedBy,
	}
}

func NewTradeRefunded(t *trade.Trade, refundedBy string, now time.Time) *TradeRefunded {
	return &TradeRefunded{Base: newBase(now), Parties: partiesOf(t), Amount: t.Amount, RefundedBy: refundedBy}
}

func NewUnknownReferenceReported(reference string, amount int64, providerEventID string, now time.Time) *UnknownReferenceReported {
	return &UnknownReferenceReported{
		Base:             newBase(now),
		PaymentReference: reference,
		Amount:           amount,
		ProviderEventID:  providerEventID,
	}
}

func NewPaymentOnClosedTrade(t *trade.Trade, amountPaid int64, now time.Time) *PaymentOnClosedTrade {
	return &PaymentOnClosedTrade{Base: newBase(now), Parties: partiesOf(t), Status: t.Status, AmountPaid: amountPaid}
}
