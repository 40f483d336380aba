// Package paystack is the Paystack payment gateway: hosted checkout links,
// HMAC-SHA512 signed webhooks and bank transfers for seller payouts.
package paystack

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/amirasaad/escrow/pkg/config"
	"github.com/amirasaad/escrow/pkg/provider/payment"
	"golang.org/x/time/rate"
)

// SignatureHeader is the header Paystack signs webhooks in.
const SignatureHeader = "x-paystack-signature"

// ErrAPI is returned when Paystack answers with status=false or a non-2xx code.
var ErrAPI = errors.New("paystack api error")

// PaystackPaymentProvider implements payment.Gateway and payment.Payouts.
type PaystackPaymentProvider struct {
	cfg      *config.Paystack
	currency string
	client   *http.Client
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// New creates a Paystack provider. Outbound calls are throttled to the
// configured requests per second.
func New(cfg *config.Paystack, currency string, logger *slog.Logger) *PaystackPaymentProvider {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &PaystackPaymentProvider{
		cfg:      cfg,
		currency: currency,
		client:   &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(limit, burst),
		logger:   logger.With("provider", "paystack"),
	}
}

// Name implements payment.Gateway.
func (p *PaystackPaymentProvider) Name() string { return "paystack" }

// SignatureHeader implements payment.Gateway.
func (p *PaystackPaymentProvider) SignatureHeader() string { return SignatureHeader }

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (p *PaystackPaymentProvider) do(ctx context.Context, method, path string, body, out any) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(p.cfg.BaseURL, "/")+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%w: %s %s: status %d: %v", ErrAPI, method, path, resp.StatusCode, err)
	}
	if resp.StatusCode >= 300 || !env.Status {
		return fmt.Errorf("%w: %s %s: status %d: %s", ErrAPI, method, path, resp.StatusCode, env.Message)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

// buyerEmail is the placeholder address Paystack requires for a charge.
func (p *PaystackPaymentProvider) buyerEmail(buyerID string) string {
	return fmt.Sprintf("buyer_%s@%s", buyerID, p.cfg.EmailDomain)
}

// InitiatePayment implements payment.Gateway.
func (p *PaystackPaymentProvider) InitiatePayment(
	ctx context.Context,
	params *payment.InitiatePaymentParams,
) (*payment.InitiatePaymentResponse, error) {
	currency := params.Currency
	if currency == "" {
		currency = p.currency
	}
	req := map[string]any{
		"email":        p.buyerEmail(params.BuyerID),
		"amount":       params.Amount,
		"currency":     currency,
		"reference":    params.Reference,
		"callback_url": params.CallbackURL,
		"metadata":     map[string]string{"trade_id": params.TradeID.String()},
	}
	var data struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	}
	if err := p.do(ctx, http.MethodPost, "/transaction/initialize", req, &data); err != nil {
		p.logger.Error("failed to initialize transaction", "reference", params.Reference, "error", err)
		return nil, err
	}
	p.logger.Info("✅ transaction initialized", "reference", params.Reference, "access_code", data.AccessCode)
	return &payment.InitiatePaymentResponse{PayURL: data.AuthorizationURL, ProviderID: data.AccessCode}, nil
}

// VerifySignature checks the hex HMAC-SHA512 of the raw body keyed by the
// secret key.
func (p *PaystackPaymentProvider) VerifySignature(payload []byte, signature string) bool {
	if p.cfg.SecretKey == "" || signature == "" {
		return false
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha512.New, []byte(p.cfg.SecretKey))
	mac.Write(payload)
	return hmac.Equal(got, mac.Sum(nil))
}

type webhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		ID        json.Number `json:"id"`
		Reference string      `json:"reference"`
		Amount    int64       `json:"amount"`
		Status    string      `json:"status"`
	} `json:"data"`
}

// ParseEvent implements payment.Gateway.
func (p *PaystackPaymentProvider) ParseEvent(payload []byte) (*payment.Event, error) {
	var we webhookEvent
	if err := json.Unmarshal(payload, &we); err != nil {
		return nil, fmt.Errorf("%w: %v", payment.ErrMalformedEvent, err)
	}
	evt := &payment.Event{
		Kind:            payment.EventOther,
		RawKind:         we.Event,
		Reference:       we.Data.Reference,
		Amount:          we.Data.Amount,
		ProviderEventID: we.Data.ID.String(),
	}
	if we.Event == "charge.success" {
		if we.Data.Reference == "" {
			return nil, fmt.Errorf("%w: charge.success without reference", payment.ErrMalformedEvent)
		}
		evt.Kind = payment.EventChargeSucceeded
	}
	return evt, nil
}

type bank struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

// bankCode resolves the bank part of a payout destination. Digits are used
// as the code; anything else is matched against the bank list by name.
func (p *PaystackPaymentProvider) bankCode(ctx context.Context, name string) (string, error) {
	if _, err := strconv.Atoi(name); err == nil {
		return name, nil
	}
	var banks []bank
	if err := p.do(ctx, http.MethodGet, "/bank?currency="+p.currency, nil, &banks); err != nil {
		return "", err
	}
	want := strings.ToLower(name)
	for _, b := range banks {
		if strings.Contains(strings.ToLower(b.Name), want) {
			return b.Code, nil
		}
	}
	return "", fmt.Errorf("unknown bank %q", name)
}

// InitiatePayout creates a transfer recipient for "Bank | Account" and sends
// the payout. The trade reference makes the transfer idempotent at Paystack.
func (p *PaystackPaymentProvider) InitiatePayout(
	ctx context.Context,
	params *payment.InitiatePayoutParams,
) (*payment.InitiatePayoutResponse, error) {
	parts := strings.Split(params.Destination, "|")
	if len(parts) != 2 {
		return nil, fmt.Errorf("payout destination %q is not \"Bank | Account\"", params.Destination)
	}
	bankName, account := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	code, err := p.bankCode(ctx, bankName)
	if err != nil {
		return nil, err
	}

	currency := params.Currency
	if currency == "" {
		currency = p.currency
	}
	var recipient struct {
		RecipientCode string `json:"recipient_code"`
	}
	if err := p.do(ctx, http.MethodPost, "/transferrecipient", map[string]any{
		"type":           "nuban",
		"name":           params.SellerID,
		"account_number": account,
		"bank_code":      code,
		"currency":       currency,
	}, &recipient); err != nil {
		return nil, err
	}

	var transfer struct {
		TransferCode string `json:"transfer_code"`
		Status       string `json:"status"`
		Amount       int64  `json:"amount"`
	}
	if err := p.do(ctx, http.MethodPost, "/transfer", map[string]any{
		"source":    "balance",
		"amount":    params.Amount,
		"recipient": recipient.RecipientCode,
		"reference": params.Reference + "-payout",
		"reason":    params.Description,
	}, &transfer); err != nil {
		return nil, err
	}

	status := payment.PayoutPending
	switch transfer.Status {
	case "success":
		status = payment.PayoutCompleted
	case "failed", "reversed":
		status = payment.PayoutFailed
	}
	return &payment.InitiatePayoutResponse{
		PayoutID: transfer.TransferCode,
		Status:   status,
		Amount:   transfer.Amount,
	}, nil
}

var (
	_ payment.Gateway = (*PaystackPaymentProvider)(nil)
	_ payment.Payouts = (*PaystackPaymentProvider)(nil)
)
