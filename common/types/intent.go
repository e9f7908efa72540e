package types

import (
	"time"

	commonerrors "github.com/ClipFinance/settlement-lib/common/errors"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Payment represents a merchant payment with its current lifecycle state.
type Payment struct {
	ID            string
	MerchantID    string
	FromWallet    string
	Amount        decimal.Decimal
	Token         string
	Status        PaymentStatus
	Signature     string
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Transition moves the payment to next, recording the signature and failure
// reason. It refuses any transition other than PENDING -> CONFIRMED|FAILED.
func (p *Payment) Transition(next PaymentStatus, signature, reason string, at time.Time) error {
	if !p.Status.CanTransitionTo(next) {
		return errors.Wrapf(commonerrors.ErrInvalidTransition, "payment %s: %s -> %s", p.ID, p.Status, next)
	}
	p.Status = next
	if signature != "" {
		p.Signature = signature
	}
	p.FailureReason = reason
	p.UpdatedAt = at
	return nil
}

// PaymentIntent holds the caller-supplied fields needed to open a payment.
type PaymentIntent struct {
	MerchantID string
	FromWallet string
	Amount     decimal.Decimal
	Token      string
}
