package domain

import (
	"errors"
	"testing"
)

var allowedPaymentMoves = map[PaymentStatus]map[PaymentStatus]bool{
	PaymentStatusPending: {
		PaymentStatusProcessing: true,
		PaymentStatusFailed:     true,
		PaymentStatusCancelled:  true,
	},
	PaymentStatusProcessing: {
		PaymentStatusSucceeded: true,
		PaymentStatusFailed:    true,
		PaymentStatusCancelled: true,
		PaymentStatusExpired:   true,
	},
	PaymentStatusSucceeded: {
		PaymentStatusRefunded: true,
	},
	PaymentStatusFailed:    {},
	PaymentStatusCancelled: {},
	PaymentStatusExpired:   {},
	PaymentStatusRefunded:  {},
}

func TestPaymentTransitionsExhaustive(t *testing.T) {
	for _, from := range AllStatuses() {
		for _, to := range AllStatuses() {
			want := allowedPaymentMoves[from][to]
			if got := from.CanTransitionTo(to); got != want {
				t.Fatalf("%s -> %s: expected %v, got %v", from, to, want, got)
			}

			err := CheckTransition(from, to)
			if want && err != nil {
				t.Fatalf("%s -> %s: unexpected error %v", from, to, err)
			}
			if !want && !errors.Is(err, ErrInvalidStatusTransition) {
				t.Fatalf("%s -> %s: expected ErrInvalidStatusTransition, got %v", from, to, err)
			}
		}
	}
}

func TestPaymentRetryable(t *testing.T) {
	retryable := map[PaymentStatus]bool{
		PaymentStatusFailed:  true,
		PaymentStatusExpired: true,
	}
	for _, status := range AllStatuses() {
		payment := Payment{Status: status}
		if got := payment.Retryable(); got != retryable[status] {
			t.Fatalf("%s: expected retryable=%v, got %v", status, retryable[status], got)
		}
	}
}

func TestPaymentMethodOffline(t *testing.T) {
	offline := map[PaymentMethod]bool{
		PaymentMethodBankTransfer: true,
		PaymentMethodCash:         true,
		PaymentMethodCheck:        true,
		PaymentMethodGateway:      false,
	}
	for method, want := range offline {
		if got := method.Offline(); got != want {
			t.Fatalf("%s: expected offline=%v, got %v", method, want, got)
		}
	}
}
