package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidStatusTransition is wrapped by every TransitionError.
var ErrInvalidStatusTransition = errors.New("invalid_invoice_status_transition")

// invoiceTransitions is the full adjacency table of legal status moves.
// Keeping it data lets tests enumerate every (from, to) pair.
var invoiceTransitions = map[InvoiceStatus][]InvoiceStatus{
	InvoiceStatusDraft:               {InvoiceStatusSent, InvoiceStatusCancelled},
	InvoiceStatusSent:                {InvoiceStatusPaid, InvoiceStatusPendingConfirmation, InvoiceStatusOverdue, InvoiceStatusCancelled},
	InvoiceStatusPendingConfirmation: {InvoiceStatusPaid, InvoiceStatusCancelled},
	InvoiceStatusOverdue:             {InvoiceStatusPaid, InvoiceStatusCancelled},
	InvoiceStatusPaid:                {},
	InvoiceStatusCancelled:           {},
}

// AllStatuses lists every invoice status, for exhaustive transition tests.
func AllStatuses() []InvoiceStatus {
	return []InvoiceStatus{
		InvoiceStatusDraft,
		InvoiceStatusSent,
		InvoiceStatusPendingConfirmation,
		InvoiceStatusPaid,
		InvoiceStatusOverdue,
		InvoiceStatusCancelled,
	}
}

// CanTransitionTo reports whether the move from s to next is legal.
func (s InvoiceStatus) CanTransitionTo(next InvoiceStatus) bool {
	for _, allowed := range invoiceTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s InvoiceStatus) Terminal() bool {
	return len(invoiceTransitions[s]) == 0
}

// TransitionError identifies a rejected invoice status move.
type TransitionError struct {
	From InvoiceStatus
	To   InvoiceStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", ErrInvalidStatusTransition, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidStatusTransition }

// CheckTransition returns nil for a legal move and a TransitionError otherwise.
func CheckTransition(from, to InvoiceStatus) error {
	if from.CanTransitionTo(to) {
		return nil
	}
	return &TransitionError{From: from, To: to}
}
