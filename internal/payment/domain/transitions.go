package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidStatusTransition is wrapped by every TransitionError.
var ErrInvalidStatusTransition = errors.New("invalid_payment_status_transition")

// paymentTransitions is the full adjacency table of legal status moves.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:    {PaymentStatusProcessing, PaymentStatusFailed, PaymentStatusCancelled},
	PaymentStatusProcessing: {PaymentStatusSucceeded, PaymentStatusFailed, PaymentStatusCancelled, PaymentStatusExpired},
	PaymentStatusSucceeded:  {PaymentStatusRefunded},
	PaymentStatusFailed:     {},
	PaymentStatusCancelled:  {},
	PaymentStatusExpired:    {},
	PaymentStatusRefunded:   {},
}

// AllStatuses lists every payment status, for exhaustive transition tests.
func AllStatuses() []PaymentStatus {
	return []PaymentStatus{
		PaymentStatusPending,
		PaymentStatusProcessing,
		PaymentStatusSucceeded,
		PaymentStatusFailed,
		PaymentStatusCancelled,
		PaymentStatusExpired,
		PaymentStatusRefunded,
	}
}

// CanTransitionTo reports whether the move from s to next is legal.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s PaymentStatus) Terminal() bool {
	return len(paymentTransitions[s]) == 0
}

// TransitionError identifies a rejected payment status move.
type TransitionError struct {
	From PaymentStatus
	To   PaymentStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", ErrInvalidStatusTransition, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidStatusTransition }

// CheckTransition returns nil for a legal move and a TransitionError otherwise.
func CheckTransition(from, to PaymentStatus) error {
	if from.CanTransitionTo(to) {
		return nil
	}
	return &TransitionError{From: from, To: to}
}
