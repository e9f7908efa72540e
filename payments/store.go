package payments

import (
	"context"
	"time"

	"github.com/ClipFinance/settlement-lib/common/types"
)

// Store persists payment records.
type Store interface {
	// CreatePayment inserts a new payment. It fails with ErrPaymentExists if the id is taken.
	CreatePayment(ctx context.Context, payment *types.Payment) error
	// UpdatePaymentStatus moves a PENDING payment to a terminal status. It fails with
	// ErrPaymentNotFound for an unknown id and ErrInvalidTransition when the stored
	// payment is no longer PENDING.
	UpdatePaymentStatus(ctx context.Context, update StatusUpdate) error
	// GetPayment returns the payment with the given id.
	GetPayment(ctx context.Context, id string) (*types.Payment, error)
}

// StatusUpdate describes a terminal status change of a payment.
//
// Fields:
// - ID: the payment identifier.
// - Status: the new status.
// - Signature: the transaction signature, empty if nothing was submitted.
// - Reason: the failure reason, empty on success.
// - At: the time of the change.
type StatusUpdate struct {
	ID        string
	Status    types.PaymentStatus
	Signature string
	Reason    string
	At        time.Time
}
