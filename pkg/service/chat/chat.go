// Package chat drives the buyer and seller conversations of the chat
// front-end. Conversation state lives in a session.Store keyed by user id.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/amirasaad/escrow/pkg/domain/trade"
	"github.com/amirasaad/escrow/pkg/presentation"
	"github.com/amirasaad/escrow/pkg/repository"
	"github.com/amirasaad/escrow/pkg/service/matching"
	"github.com/amirasaad/escrow/pkg/service/release"
	"github.com/amirasaad/escrow/pkg/service/seller"
	tradesvc "github.com/amirasaad/escrow/pkg/service/trade"
	"github.com/amirasaad/escrow/pkg/session"
	"github.com/google/uuid"
)

// Commands understood by HandleText.
const (
	CommandStart     = "/start"
	CommandBuy       = "/buy"
	CommandSell      = "/sell"
	CommandRelease   = "/release"
	CommandAvailable = "/available"
	CommandPause     = "/pause"
	CommandAdmin     = "/admin"
	CommandRefund    = "/refund"
)

// Replies sent to users.
const (
	MsgWelcome = "🔒 Welcome to the P2P escrow! Money is held until you get your USDT.\n\n" +
		"Buying or selling USDT? Send /buy or /sell."
	MsgInvalidAmount  = "Invalid amount. Enter numbers only."
	MsgPayoutFormat   = "Enter your bank details for payouts:\nFormat: Zenith | 1234567890"
	MsgInvalidPayout  = "Invalid details. Format: Zenith | 1234567890"
	MsgNoSession      = "Use /start to begin."
	MsgNoSeller       = "No seller is available right now. Try again shortly."
	MsgNothingRelease = "No active trade to release. Use /start."
	MsgFlagged        = "This trade is flagged for manual review. An operator will release it."
	MsgAvailable      = "You are available for buyers again."
	MsgPaused         = "You are paused and will not be matched."
	MsgSellerBusy     = "You still have an open trade. Use /available once it is closed."
)

// minorPerMajor converts the whole currency units users type into minor units.
const minorPerMajor = 100

// Config holds the chat settings.
type Config struct {
	Currency string
}

// Service runs conversations on behalf of the chat front-end.
type Service struct {
	sessions  session.Store
	presenter presentation.Adapter
	engine    *matching.Engine
	sellers   *seller.Service
	registry  *tradesvc.Registry
	release   *release.Controller
	cfg       Config
	logger    *slog.Logger
}

// New creates a chat service.
func New(
	sessions session.Store,
	presenter presentation.Adapter,
	engine *matching.Engine,
	sellers *seller.Service,
	registry *tradesvc.Registry,
	releaser *release.Controller,
	cfg Config,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		sessions:  sessions,
		presenter: presenter,
		engine:    engine,
		sellers:   sellers,
		registry:  registry,
		release:   releaser,
		cfg:       cfg,
		logger:    logger.With("service", "chat"),
	}
}

// Start begins a conversation in the given role.
func (s *Service) Start(ctx context.Context, userID string, role session.Role) error {
	switch role {
	case session.RoleBuyer:
		if err := s.sessions.Set(ctx, userID, &session.State{Role: role, WaitingFor: session.StepAmount}); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		return s.presenter.PromptAmount(ctx, userID)
	case session.RoleSeller:
		if err := s.sessions.Set(ctx, userID, &session.State{Role: role, WaitingFor: session.StepPayoutDetails}); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		return s.presenter.Notify(ctx, userID, MsgPayoutFormat)
	default:
		return fmt.Errorf("unknown role %q", role)
	}
}

// HandleText handles one message from a user: a command or the answer to the
// last prompt.
func (s *Service) HandleText(ctx context.Context, userID, text string) error {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "/") {
		return s.handleCommand(ctx, userID, text)
	}

	state, err := s.sessions.Get(ctx, userID)
	if errors.Is(err, session.ErrNotFound) {
		return s.presenter.Notify(ctx, userID, MsgNoSession)
	}
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	switch state.WaitingFor {
	case session.StepAmount:
		return s.onAmount(ctx, userID, state, text)
	case session.StepWallet:
		return s.onWallet(ctx, userID, state, text)
	case session.StepPayoutDetails:
		return s.onPayoutDetails(ctx, userID, text)
	default:
		return s.presenter.Notify(ctx, userID, MsgNoSession)
	}
}

func (s *Service) handleCommand(ctx context.Context, userID, text string) error {
	fields := strings.Fields(text)
	switch strings.ToLower(fields[0]) {
	case CommandStart:
		if err := s.sessions.Delete(ctx, userID); err != nil {
			return fmt.Errorf("reset session: %w", err)
		}
		return s.presenter.Notify(ctx, userID, MsgWelcome)
	case CommandBuy:
		return s.Start(ctx, userID, session.RoleBuyer)
	case CommandSell:
		return s.Start(ctx, userID, session.RoleSeller)
	case CommandRelease:
		return s.releaseActive(ctx, userID)
	case CommandAvailable:
		return s.setAvailability(ctx, userID, true)
	case CommandPause:
		return s.setAvailability(ctx, userID, false)
	case CommandAdmin:
		return s.admin(ctx, userID)
	case CommandRefund:
		return s.refund(ctx, userID, fields[1:])
	default:
		return s.presenter.Notify(ctx, userID, MsgNoSession)
	}
}

// parseAmount reads a whole number of major units, allowing thousands
// separators, and returns minor units.
func parseAmount(text string) (int64, bool) {
	major, err := strconv.ParseInt(strings.ReplaceAll(text, ",", ""), 10, 64)
	if err != nil || major <= 0 || major > math.MaxInt64/minorPerMajor {
		return 0, false
	}
	return major * minorPerMajor, true
}

func (s *Service) onAmount(ctx context.Context, userID string, state *session.State, text string) error {
	amount, ok := parseAmount(text)
	if !ok {
		return s.presenter.Notify(ctx, userID, MsgInvalidAmount)
	}
	state.Amount = amount
	state.WaitingFor = session.StepWallet
	if err := s.sessions.Set(ctx, userID, state); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return s.presenter.PromptWallet(ctx, userID)
}

func (s *Service) onWallet(ctx context.Context, userID string, state *session.State, wallet string) error {
	if wallet == "" {
		return s.presenter.PromptWallet(ctx, userID)
	}
	t, err := s.engine.RequestTrade(ctx, matching.RequestParams{
		BuyerID:     userID,
		AmountMinor: state.Amount,
		BuyerWallet: wallet,
	})
	switch {
	case errors.Is(err, trade.ErrInvalidAmount):
		state.WaitingFor = session.StepAmount
		state.Amount = 0
		if serr := s.sessions.Set(ctx, userID, state); serr != nil {
			return fmt.Errorf("save session: %w", serr)
		}
		if nerr := s.presenter.Notify(ctx, userID, fmt.Sprintf("%s (%s)", MsgInvalidAmount, trade.ReasonOf(err))); nerr != nil {
			return nerr
		}
		return s.presenter.PromptAmount(ctx, userID)
	case errors.Is(err, trade.ErrNoSellerAvailable):
		if derr := s.sessions.Delete(ctx, userID); derr != nil {
			return fmt.Errorf("reset session: %w", derr)
		}
		return s.presenter.Notify(ctx, userID, MsgNoSeller)
	case errors.Is(err, trade.ErrPaymentInitFailed):
		// The buyer is told by the PaymentInitFailed subscriber.
		return s.sessions.Delete(ctx, userID)
	case err != nil:
		return err
	}

	if err := s.sessions.Set(ctx, userID, &session.State{Role: session.RoleBuyer, TradeID: t.ID.String()}); err != nil {
		s.logger.Error("failed to save session after opening trade", "user_id", userID, "trade_id", t.ID, "error", err)
	}
	return s.presenter.ShowPayLink(ctx, userID, t.PayURL, t.Amount, t.PaymentReference)
}

// parsePayoutDetails accepts "Bank | Account".
func parsePayoutDetails(text string) (bank, account string, ok bool) {
	parts := strings.Split(text, "|")
	if len(parts) != 2 {
		return "", "", false
	}
	bank, account = strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	if bank == "" || account == "" {
		return "", "", false
	}
	return bank, account, true
}

func (s *Service) onPayoutDetails(ctx context.Context, userID, text string) error {
	bank, account, ok := parsePayoutDetails(text)
	if !ok {
		return s.presenter.Notify(ctx, userID, MsgInvalidPayout)
	}
	address := bank + " | " + account

	_, err := s.sellers.Register(ctx, userID, address)
	if errors.Is(err, trade.ErrSellerExists) {
		if err := s.sellers.UpdatePayoutAddress(ctx, userID, address); err != nil {
			return err
		}
		err = s.sellers.Reopen(ctx, userID)
	}
	if derr := s.sessions.Delete(ctx, userID); derr != nil {
		s.logger.Warn("failed to clear session", "user_id", userID, "error", derr)
	}

	confirm := fmt.Sprintf("Got it! Bank: %s | Acct: %s", bank, account)
	switch {
	case errors.Is(err, trade.ErrSellerBusy):
		return s.presenter.Notify(ctx, userID, confirm+"\n"+MsgSellerBusy)
	case err != nil:
		return err
	}
	return s.presenter.Notify(ctx, userID, confirm+"\n"+MsgAvailable)
}

func (s *Service) setAvailability(ctx context.Context, userID string, available bool) error {
	err := s.sellers.SetAvailability(ctx, userID, available)
	switch {
	case errors.Is(err, trade.ErrSellerNotFound):
		return s.presenter.Notify(ctx, userID, MsgPayoutFormat)
	case errors.Is(err, trade.ErrSellerBusy):
		return s.presenter.Notify(ctx, userID, MsgSellerBusy)
	case err != nil:
		return err
	}
	if available {
		return s.presenter.Notify(ctx, userID, MsgAvailable)
	}
	return s.presenter.Notify(ctx, userID, MsgPaused)
}

// releaseActive releases the seller's oldest paid trade. The seller and
// buyer are told the settlement by the TradeReleased subscriber.
func (s *Service) releaseActive(ctx context.Context, userID string) error {
	archived := false
	trades, err := s.registry.List(ctx, repository.TradeFilter{
		SellerID: userID,
		Statuses: []trade.Status{trade.StatusPaid},
		Archived: &archived,
		Limit:    1,
	})
	if err != nil {
		return err
	}
	if len(trades) == 0 {
		return s.presenter.Notify(ctx, userID, MsgNothingRelease)
	}

	_, err = s.release.Release(ctx, trades[0].ID, userID)
	if errors.Is(err, trade.ErrNotReady) {
		if trade.ReasonOf(err) == release.ReasonFlagged {
			return s.presenter.Notify(ctx, userID, MsgFlagged)
		}
		return s.presenter.Notify(ctx, userID, MsgNothingRelease)
	}
	return err
}

func (s *Service) admin(ctx context.Context, userID string) error {
	if !s.release.IsOperator(userID) {
		return nil
	}
	pending, err := s.registry.List(ctx, repository.TradeFilter{Statuses: []trade.Status{trade.StatusPaid}})
	if err != nil {
		return err
	}
	flagged := 0
	for _, t := range pending {
		if t.Flagged {
			flagged++
		}
	}
	msg := fmt.Sprintf("Pending trades: %d (flagged: %d)\nUse /release or /refund [id]", len(pending), flagged)
	for _, t := range pending {
		msg += fmt.Sprintf("\n%s %s %s", t.ID, t.PaymentReference, presentation.FormatAmount(t.Amount, s.cfg.Currency))
	}
	return s.presenter.Notify(ctx, userID, msg)
}

func (s *Service) refund(ctx context.Context, userID string, args []string) error {
	if !s.release.IsOperator(userID) {
		return nil
	}
	if len(args) != 1 {
		return s.presenter.Notify(ctx, userID, "Usage: /refund [id]")
	}
	id, err := uuid.Parse(args[0])
	if err != nil {
		return s.presenter.Notify(ctx, userID, "Invalid trade id.")
	}
	t, err := s.release.Refund(ctx, id, userID)
	switch {
	case errors.Is(err, trade.ErrTradeNotFound), errors.Is(err, trade.ErrNotReady):
		return s.presenter.Notify(ctx, userID, fmt.Sprintf("Cannot refund %s: %v", id, err))
	case err != nil:
		return err
	}
	return s.presenter.Notify(ctx, userID, fmt.Sprintf("Trade %s refunded.", t.PaymentReference))
}
