package stripepayment

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/amirasaad/escrow/pkg/config"
	"github.com/amirasaad/escrow/pkg/provider/payment"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// SignatureHeader is the header Stripe signs webhooks in.
const SignatureHeader = "Stripe-Signature"

// StripePaymentProvider collects payments with Stripe Checkout and pays
// sellers with transfers to their connected account.
type StripePaymentProvider struct {
	client   *stripe.Client
	cfg      *config.Stripe
	currency string
	logger   *slog.Logger
}

// New creates a new StripePaymentProvider.
func New(cfg *config.Stripe, currency string, logger *slog.Logger, opts ...stripe.ClientOption) *StripePaymentProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &StripePaymentProvider{
		client:   stripe.NewClient(cfg.ApiKey, opts...),
		cfg:      cfg,
		currency: strings.ToLower(currency),
		logger:   logger.With("provider", "stripe"),
	}
}

// Name implements payment.Gateway.
func (s *StripePaymentProvider) Name() string { return "stripe" }

// SignatureHeader implements payment.Gateway.
func (s *StripePaymentProvider) SignatureHeader() string { return SignatureHeader }

// InitiatePayment creates a Checkout Session whose client reference is the
// trade's payment reference.
func (s *StripePaymentProvider) InitiatePayment(
	ctx context.Context,
	params *payment.InitiatePaymentParams,
) (*payment.InitiatePaymentResponse, error) {
	currency := strings.ToLower(params.Currency)
	if currency == "" {
		currency = s.currency
	}
	metadata := map[string]string{
		"trade_id":  params.TradeID.String(),
		"reference": params.Reference,
		"buyer_id":  params.BuyerID,
	}
	successURL := s.cfg.SuccessURL
	if params.CallbackURL != "" {
		successURL = params.CallbackURL
	}

	checkoutParams := &stripe.CheckoutSessionCreateParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:         stripe.String(successURL),
		CancelURL:          stripe.String(s.cfg.CancelURL),
		ClientReferenceID:  stripe.String(params.Reference),
		Metadata:           metadata,
		PaymentIntentData: &stripe.CheckoutSessionCreatePaymentIntentDataParams{
			Metadata: metadata,
		},
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{{
			PriceData: &stripe.CheckoutSessionCreateLineItemPriceDataParams{
				Currency: stripe.String(currency),
				ProductData: &stripe.CheckoutSessionCreateLineItemPriceDataProductDataParams{
					Name: stripe.String("Escrow deposit " + params.Reference)},
				UnitAmount: stripe.Int64(params.Amount),
			},
			Quantity: stripe.Int64(1),
		}},
	}

	session, err := s.client.V1CheckoutSessions.Create(ctx, checkoutParams)
	if err != nil {
		s.logger.Error("failed to create checkout session", "reference", params.Reference, "error", err)
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}
	s.logger.Info("✅ Created checkout session", "session_id", session.ID, "reference", params.Reference)
	return &payment.InitiatePaymentResponse{PayURL: session.URL, ProviderID: session.ID}, nil
}

// VerifySignature validates the Stripe-Signature header over the raw body.
func (s *StripePaymentProvider) VerifySignature(payload []byte, signature string) bool {
	if s.cfg.SigningSecret == "" || signature == "" {
		return false
	}
	if err := webhook.ValidatePayload(payload, signature, s.cfg.SigningSecret); err != nil {
		s.logger.Warn("webhook signature rejected", "error", err)
		return false
	}
	return true
}

// ParseEvent maps Checkout Session events. Only a completed, paid session
// confirms a payment.
func (s *StripePaymentProvider) ParseEvent(payload []byte) (*payment.Event, error) {
	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", payment.ErrMalformedEvent, err)
	}
	evt := &payment.Event{
		Kind:            payment.EventOther,
		RawKind:         string(event.Type),
		ProviderEventID: event.ID,
	}

	switch string(event.Type) {
	case "checkout.session.completed",
		"checkout.session.async_payment_succeeded",
		"checkout.session.async_payment_failed":
	default:
		return evt, nil
	}
	if event.Data == nil {
		return nil, fmt.Errorf("%w: event without data", payment.ErrMalformedEvent)
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, fmt.Errorf("%w: checkout session: %v", payment.ErrMalformedEvent, err)
	}
	evt.Reference = session.ClientReferenceID
	if evt.Reference == "" {
		evt.Reference = session.Metadata["reference"]
	}
	evt.Amount = session.AmountTotal

	switch {
	case string(event.Type) == "checkout.session.async_payment_failed":
		evt.Kind = payment.EventChargeFailed
	case session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid:
		if evt.Reference == "" {
			return nil, fmt.Errorf("%w: paid session without reference", payment.ErrMalformedEvent)
		}
		evt.Kind = payment.EventChargeSucceeded
	}
	return evt, nil
}

// InitiatePayout transfers the payout to the seller's connected account.
// The destination must be a Stripe account id.
func (s *StripePaymentProvider) InitiatePayout(
	ctx context.Context,
	params *payment.InitiatePayoutParams,
) (*payment.InitiatePayoutResponse, error) {
	destination := strings.TrimSpace(params.Destination)
	if !strings.HasPrefix(destination, "acct_") {
		return nil, fmt.Errorf("payout destination %q is not a Stripe connected account", params.Destination)
	}
	currency := strings.ToLower(params.Currency)
	if currency == "" {
		currency = s.currency
	}

	transferParams := &stripe.TransferCreateParams{
		Amount:        stripe.Int64(params.Amount),
		Currency:      stripe.String(currency),
		Destination:   stripe.String(destination),
		Description:   stripe.String(params.Description),
		TransferGroup: stripe.String(params.Reference),
	}
	transferParams.AddMetadata("trade_id", params.TradeID.String())
	transferParams.AddMetadata("seller_id", params.SellerID)
	transferParams.SetIdempotencyKey("payout-" + params.Reference)

	transfer, err := s.client.V1Transfers.Create(ctx, transferParams)
	if err != nil {
		s.logger.Error("failed to create transfer", "seller_id", params.SellerID, "error", err)
		return nil, fmt.Errorf("failed to create transfer: %w", err)
	}

	status := payment.PayoutPending
	if transfer.Reversed {
		status = payment.PayoutFailed
	} else if transfer.DestinationPayment != nil && transfer.DestinationPayment.ID != "" {
		status = payment.PayoutCompleted
	}
	return &payment.InitiatePayoutResponse{
		PayoutID: transfer.ID,
		Status:   status,
		Amount:   transfer.Amount,
	}, nil
}

var (
	_ payment.Gateway = (*StripePaymentProvider)(nil)
	_ payment.Payouts = (*StripePaymentProvider)(nil)
)
