package types

// PaymentStatus is the lifecycle state of a payment.
type PaymentStatus string

const (
	// StatusPending is the status of a payment when its intent has been opened.
	StatusPending PaymentStatus = "PENDING"
	// StatusConfirmed is the status of a payment once its transaction is confirmed on-chain.
	StatusConfirmed PaymentStatus = "CONFIRMED"
	// StatusFailed is the status of a payment that could not be settled.
	StatusFailed PaymentStatus = "FAILED"
)

// String converts PaymentStatus to string representation
func (s PaymentStatus) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition is allowed.
func (s PaymentStatus) IsTerminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

// CanTransitionTo reports whether moving from s to next is allowed.
// Only PENDING -> CONFIRMED and PENDING -> FAILED are valid.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	return s == StatusPending && next.IsTerminal()
}

// AttemptState is the state of a single construct-sign-submit-confirm cycle.
type AttemptState string

const (
	// AttemptBuilt indicates that the unsigned transaction has been constructed.
	AttemptBuilt AttemptState = "BUILT"
	// AttemptSigned indicates that the external signer returned a signed transaction.
	AttemptSigned AttemptState = "SIGNED"
	// AttemptSubmitted indicates that the signed bytes were accepted by an RPC node.
	AttemptSubmitted AttemptState = "SUBMITTED"
	// AttemptConfirmed indicates that the transaction reached the configured commitment.
	AttemptConfirmed AttemptState = "CONFIRMED"
	// AttemptFailed indicates that the cycle ended without confirmation.
	AttemptFailed AttemptState = "FAILED"
)

// String converts AttemptState to string representation
func (s AttemptState) String() string {
	return string(s)
}

// QuoteSource tells where a quote came from.
type QuoteSource string

const (
	// SourceLive is a quote fetched from the aggregator during this call.
	SourceLive QuoteSource = "live"
	// SourceCache is a live quote served from a fresh cache entry.
	SourceCache QuoteSource = "cache"
	// SourceStaleCache is a quote served from an expired cache entry after a failed fetch.
	SourceStaleCache QuoteSource = "stale-cache"
	// SourceEstimate is a quote computed from the static fallback price table.
	SourceEstimate QuoteSource = "estimate"
)

// String converts QuoteSource to string representation
func (s QuoteSource) String() string {
	return string(s)
}

// IsDegraded reports whether the quote is best-effort rather than authoritative.
func (s QuoteSource) IsDegraded() bool {
	return s == SourceStaleCache || s == SourceEstimate
}
