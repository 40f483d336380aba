// Package session holds per-user chat state outside the process so a restart
// does not strand users mid-conversation.
package session

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a user has no active session.
var ErrNotFound = errors.New("session not found")

// Role is the side a chat user is acting on.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
)

// Step names the input the conversation is waiting for.
type Step string

const (
	StepNone          Step = ""
	StepAmount        Step = "amount"
	StepWallet        Step = "wallet"
	StepPayoutDetails Step = "payout_details"
)

// State is one user's conversation state.
type State struct {
	Role       Role   `json:"role"`
	WaitingFor Step   `json:"waiting_for"`
	Amount     int64  `json:"amount,omitempty"`
	TradeID    string `json:"trade_id,omitempty"`
}

// Store persists session state keyed by user id.
type Store interface {
	Get(ctx context.Context, userID string) (*State, error)
	Set(ctx context.Context, userID string, state *State) error
	Delete(ctx context.Context, userID string) error
}
