package mocks

import (
	"context"

	"github.com/amirasaad/escrow/pkg/presentation"
	"github.com/stretchr/testify/mock"
)

// Presenter is a testify mock of presentation.Adapter.
type Presenter struct {
	mock.Mock
}

func (m *Presenter) PromptAmount(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *Presenter) PromptWallet(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *Presenter) ShowPayLink(ctx context.Context, userID, url string, amount int64, reference string) error {
	return m.Called(ctx, userID, url, amount, reference).Error(0)
}

func (m *Presenter) Notify(ctx context.Context, userID, message string) error {
	return m.Called(ctx, userID, message).Error(0)
}

// AllowAll makes every call succeed, for tests that do not assert on
// presentation.
func (m *Presenter) AllowAll() *Presenter {
	m.On("PromptAmount", mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("PromptWallet", mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("ShowPayLink", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("Notify", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	return m
}

var _ presentation.Adapter = (*Presenter)(nil)
