package stripepayment

import (
	"context"
	"testing"
	"time"

	"github.com/amirasaad/escrow/pkg/config"
	"github.com/amirasaad/escrow/pkg/provider/payment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
)

func newProvider() *StripePaymentProvider {
	return New(&config.Stripe{ApiKey: "sk_test_123", SigningSecret: "whsec_test"}, "NGN", nil)
}

const completedSession = `{
  "id": "evt_1",
  "object": "event",
  "type": "checkout.session.completed",
  "data": {"object": {
    "id": "cs_test_1",
    "object": "checkout.session",
    "client_reference_id": "esc-1",
    "amount_total": 5000000,
    "payment_status": "paid",
    "metadata": {"reference": "esc-1"}
  }}
}`

func TestVerifySignature(t *testing.T) {
	p := newProvider()
	body := []byte(completedSession)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   body,
		Secret:    "whsec_test",
		Timestamp: time.Now(),
	})

	assert.True(t, p.VerifySignature(body, signed.Header))
	assert.False(t, p.VerifySignature(append([]byte(nil), append(body, '\n')...), signed.Header))
	assert.False(t, p.VerifySignature(body, "t=1,v1=deadbeef"))
	assert.False(t, p.VerifySignature(body, ""))
}

func TestParseEvent_CompletedPaidSession(t *testing.T) {
	evt, err := newProvider().ParseEvent([]byte(completedSession))
	require.NoError(t, err)
	assert.Equal(t, payment.EventChargeSucceeded, evt.Kind)
	assert.Equal(t, "esc-1", evt.Reference)
	assert.Equal(t, int64(5000000), evt.Amount)
	assert.Equal(t, "evt_1", evt.ProviderEventID)
}

func TestParseEvent_UnpaidSessionIsIgnored(t *testing.T) {
	body := `{"id":"evt_2","object":"event","type":"checkout.session.completed",
		"data":{"object":{"id":"cs_2","object":"checkout.session","client_reference_id":"esc-2","amount_total":100,"payment_status":"unpaid"}}}`
	evt, err := newProvider().ParseEvent([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, payment.EventOther, evt.Kind)
}

func TestParseEvent_OtherTypes(t *testing.T) {
	evt, err := newProvider().ParseEvent([]byte(`{"id":"evt_3","object":"event","type":"payment_intent.created","data":{"object":{}}}`))
	require.NoError(t, err)
	assert.Equal(t, payment.EventOther, evt.Kind)
	assert.Equal(t, "payment_intent.created", evt.RawKind)

	_, err = newProvider().ParseEvent([]byte(`garbage`))
	assert.ErrorIs(t, err, payment.ErrMalformedEvent)
}

func TestInitiatePayout_RequiresConnectedAccount(t *testing.T) {
	_, err := newProvider().InitiatePayout(context.Background(), &payment.InitiatePayoutParams{
		Destination: "Zenith | 1234567890",
		Amount:      100,
	})
	assert.Error(t, err)
}
