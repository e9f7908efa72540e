package errors

import "github.com/pkg/errors"

var (
	// ErrValidation marks missing or malformed caller input. It is never retried.
	ErrValidation = errors.New("validation failed")
	// ErrNoRoute is returned when the aggregator has no route for the requested pair.
	ErrNoRoute = errors.New("no route found")
	// ErrSignerRejected is returned when the external signer declines or fails to sign.
	ErrSignerRejected = errors.New("signer rejected transaction")
	// ErrSigningTimeout is returned when the external signer does not answer in time.
	ErrSigningTimeout = errors.New("signing timed out")
	// ErrUnsupportedEncoding is returned when a signer cannot sign the transaction encoding.
	ErrUnsupportedEncoding = errors.New("signer does not support transaction encoding")
	// ErrTransactionFailed is returned when a submitted transaction is not confirmed.
	ErrTransactionFailed = errors.New("transaction failed")
	// ErrBlockhashExpired is returned when the validity window passed without confirmation.
	ErrBlockhashExpired = errors.New("blockhash expired before confirmation")
	// ErrConfirmationTimeout is returned when confirmation polling exhausted its budget.
	ErrConfirmationTimeout = errors.New("confirmation polling exhausted")
	// ErrInvalidTransition is returned when a payment status would move backward.
	ErrInvalidTransition = errors.New("invalid payment status transition")
	// ErrPaymentNotFound is returned when a payment record does not exist.
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrPaymentExists is returned when a payment with the same id was already created.
	ErrPaymentExists = errors.New("payment already exists")
	// ErrInvalidConfig is returned when the configuration fails validation.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrNotImplemented is returned by capabilities a component does not provide.
	ErrNotImplemented = errors.New("functionality not implemented")
)

// Validationf wraps ErrValidation with a formatted message.
func Validationf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrValidation, format, args...)
}
