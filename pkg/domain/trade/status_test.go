package trade

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestApply_TransitionTable(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		event   Event
		want    Status
		changed bool
		wantErr error
	}{
		{"link issued", StatusCreated, EventPaymentLinkIssued, StatusAwaitingPayment, true, nil},
		{"init failed from created", StatusCreated, EventPaymentInitFailed, StatusFailedPaymentInit, true, nil},
		{"init failed from awaiting", StatusAwaitingPayment, EventPaymentInitFailed, StatusFailedPaymentInit, true, nil},
		{"confirmed from created", StatusCreated, EventPaymentConfirmed, StatusPaid, true, nil},
		{"confirmed from awaiting", StatusAwaitingPayment, EventPaymentConfirmed, StatusPaid, true, nil},
		{"duplicate confirm on paid", StatusPaid, EventPaymentConfirmed, StatusPaid, false, nil},
		{"duplicate confirm on released", StatusReleased, EventPaymentConfirmed, StatusReleased, false, nil},
		{"duplicate confirm on refunded", StatusRefunded, EventPaymentConfirmed, StatusRefunded, false, nil},
		{"release from paid", StatusPaid, EventReleaseAuthorized, StatusReleased, true, nil},
		{"refund from paid", StatusPaid, EventRefundAuthorized, StatusRefunded, true, nil},
		{"release before payment", StatusAwaitingPayment, EventReleaseAuthorized, StatusAwaitingPayment, false, ErrInvalidTransition},
		{"release twice", StatusReleased, EventReleaseAuthorized, StatusReleased, false, ErrInvalidTransition},
		{"confirm after init failure", StatusFailedPaymentInit, EventPaymentConfirmed, StatusFailedPaymentInit, false, ErrInvalidTransition},
		{"link after paid", StatusPaid, EventPaymentLinkIssued, StatusPaid, false, ErrInvalidTransition},
		{"refund after release", StatusReleased, EventRefundAuthorized, StatusReleased, false, ErrInvalidTransition},
		{"unknown event", StatusCreated, Event("bogus"), StatusCreated, false, ErrInvalidTransition},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, changed, err := Apply(tc.from, tc.event)
			if tc.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tc.wantErr))
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.changed, changed)
		})
	}
}

func TestAllowedFrom_ReturnsCopy(t *testing.T) {
	from := AllowedFrom(EventPaymentConfirmed)
	require.Equal(t, []Status{StatusCreated, StatusAwaitingPayment}, from)
	from[0] = StatusReleased
	assert.Equal(t, []Status{StatusCreated, StatusAwaitingPayment}, AllowedFrom(EventPaymentConfirmed))
	assert.Nil(t, AllowedFrom(Event("bogus")))
}

func TestParseStatus(t *testing.T) {
	for _, s := range Statuses {
		got, err := ParseStatus(string(s))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	_, err := ParseStatus("pending_payment")
	assert.Error(t, err)
}

var order = map[Status]int{
	StatusCreated:           0,
	StatusAwaitingPayment:   1,
	StatusPaid:              2,
	StatusReleased:          3,
	StatusFailedPaymentInit: 3,
	StatusRefunded:          3,
}

// Any sequence of events only ever moves a trade forward and never leaves a
// terminal status.
func TestApply_MonotonicProperty(t *testing.T) {
	events := []Event{
		EventPaymentLinkIssued,
		EventPaymentInitFailed,
		EventPaymentConfirmed,
		EventReleaseAuthorized,
		EventRefundAuthorized,
	}
	rapid.Check(t, func(t *rapid.T) {
		status := StatusCreated
		steps := rapid.IntRange(1, 20).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			e := rapid.SampledFrom(events).Draw(t, "event")
			next, changed, err := Apply(status, e)
			if err != nil {
				if next != status {
					t.Fatalf("failed transition changed status %s -> %s", status, next)
				}
				continue
			}
			if status.IsTerminal() && changed {
				t.Fatalf("terminal status %s left via %s", status, e)
			}
			if order[next] < order[status] {
				t.Fatalf("transition moved backwards %s -> %s", status, next)
			}
			status = next
		}
	})
}
