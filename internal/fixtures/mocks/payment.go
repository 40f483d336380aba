// Package mocks holds testify mocks of the escrow's external collaborators.
package mocks

import (
	"context"

	"github.com/amirasaad/escrow/pkg/provider/payment"
	"github.com/stretchr/testify/mock"
)

// Gateway is a testify mock of payment.Gateway.
type Gateway struct {
	mock.Mock
}

func (m *Gateway) InitiatePayment(
	ctx context.Context,
	params *payment.InitiatePaymentParams,
) (*payment.InitiatePaymentResponse, error) {
	args := m.Called(ctx, params)
	if fn, ok := args.Get(0).(func(context.Context, *payment.InitiatePaymentParams) *payment.InitiatePaymentResponse); ok {
		return fn(ctx, params), args.Error(1)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.InitiatePaymentResponse), args.Error(1)
}

func (m *Gateway) VerifySignature(payload []byte, signature string) bool {
	return m.Called(payload, signature).Bool(0)
}

func (m *Gateway) ParseEvent(payload []byte) (*payment.Event, error) {
	args := m.Called(payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Event), args.Error(1)
}

func (m *Gateway) SignatureHeader() string {
	return m.Called().String(0)
}

func (m *Gateway) Name() string {
	return "mock-gateway"
}

// Payouts is a testify mock of payment.Payouts.
type Payouts struct {
	mock.Mock
}

func (m *Payouts) InitiatePayout(
	ctx context.Context,
	params *payment.InitiatePayoutParams,
) (*payment.InitiatePayoutResponse, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.InitiatePayoutResponse), args.Error(1)
}

var (
	_ payment.Gateway = (*Gateway)(nil)
	_ payment.Payouts = (*Payouts)(nil)
)
