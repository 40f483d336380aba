package mockpayment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/amirasaad/escrow/pkg/config"
	"github.com/amirasaad/escrow/pkg/provider/payment"
)

// SignatureHeader carries the hex HMAC-SHA256 of the notification body.
const SignatureHeader = "X-Mock-Signature"

// ErrInitiateDisabled is returned when the provider is configured to fail.
var ErrInitiateDisabled = errors.New("mock payment initiation disabled")

// MockPaymentProvider simulates a payment provider for tests and local
// development. Notifications are signed with a shared secret; use Sign and
// ChargeSucceeded to forge one.
type MockPaymentProvider struct {
	cfg    *config.MockPayment
	logger *slog.Logger

	mu      sync.Mutex
	payouts []payment.InitiatePayoutParams
}

// NewMockPaymentProvider creates a new instance of MockPaymentProvider.
func NewMockPaymentProvider(cfg *config.MockPayment, logger *slog.Logger) *MockPaymentProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &MockPaymentProvider{cfg: cfg, logger: logger.With("provider", "mock")}
}

// Name implements payment.Gateway.
func (m *MockPaymentProvider) Name() string { return "mock" }

// SignatureHeader implements payment.Gateway.
func (m *MockPaymentProvider) SignatureHeader() string { return SignatureHeader }

// InitiatePayment returns a link under the configured pay base URL.
func (m *MockPaymentProvider) InitiatePayment(
	ctx context.Context,
	params *payment.InitiatePaymentParams,
) (*payment.InitiatePaymentResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.cfg.FailInitiate {
		return nil, ErrInitiateDisabled
	}
	m.logger.Info("mock payment initiated", "reference", params.Reference, "amount", params.Amount)
	return &payment.InitiatePaymentResponse{
		PayURL:     strings.TrimRight(m.cfg.PayBaseURL, "/") + "/" + params.Reference,
		ProviderID: "mock_" + params.Reference,
	}, nil
}

// Sign returns the signature expected for payload.
func (m *MockPaymentProvider) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(m.cfg.SigningSecret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature implements payment.Gateway.
func (m *MockPaymentProvider) VerifySignature(payload []byte, signature string) bool {
	if m.cfg.SigningSecret == "" || signature == "" {
		return false
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(m.cfg.SigningSecret))
	mac.Write(payload)
	return hmac.Equal(got, mac.Sum(nil))
}

type notification struct {
	ID    string `json:"id"`
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Amount    int64  `json:"amount"`
	} `json:"data"`
}

// ChargeSucceeded builds a charge.success notification body.
func ChargeSucceeded(eventID, reference string, amount int64) []byte {
	n := notification{ID: eventID, Event: string(payment.EventChargeSucceeded)}
	n.Data.Reference = reference
	n.Data.Amount = amount
	b, _ := json.Marshal(n)
	return b
}

// ParseEvent implements payment.Gateway.
func (m *MockPaymentProvider) ParseEvent(payload []byte) (*payment.Event, error) {
	var n notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, fmt.Errorf("%w: %v", payment.ErrMalformedEvent, err)
	}
	evt := &payment.Event{
		Kind:            payment.EventOther,
		RawKind:         n.Event,
		Reference:       n.Data.Reference,
		Amount:          n.Data.Amount,
		ProviderEventID: n.ID,
	}
	switch payment.EventKind(n.Event) {
	case payment.EventChargeSucceeded, payment.EventChargeFailed:
		evt.Kind = payment.EventKind(n.Event)
	}
	if evt.Kind == payment.EventChargeSucceeded && evt.Reference == "" {
		return nil, fmt.Errorf("%w: missing reference", payment.ErrMalformedEvent)
	}
	return evt, nil
}

// InitiatePayout records the payout and reports it completed.
func (m *MockPaymentProvider) InitiatePayout(
	ctx context.Context,
	params *payment.InitiatePayoutParams,
) (*payment.InitiatePayoutResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.payouts = append(m.payouts, *params)
	m.mu.Unlock()
	return &payment.InitiatePayoutResponse{
		PayoutID: "mock_payout_" + params.Reference,
		Status:   payment.PayoutCompleted,
		Amount:   params.Amount,
	}, nil
}

// Payouts returns the payouts initiated so far.
func (m *MockPaymentProvider) Payouts() []payment.InitiatePayoutParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]payment.InitiatePayoutParams(nil), m.payouts...)
}

var (
	_ payment.Gateway = (*MockPaymentProvider)(nil)
	_ payment.Payouts = (*MockPaymentProvider)(nil)
)
