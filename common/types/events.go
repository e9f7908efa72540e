package types

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/event"
)

// PaymentEvent is published every time a payment changes status.
//
// Fields:
// - PaymentID: the payment identifier.
// - MerchantID: the merchant the payment belongs to.
// - From: the previous status.
// - To: the new status.
// - Signature: the transaction signature, empty if nothing was submitted.
// - Reason: the failure reason for FAILED payments.
// - At: the time of the transition.
type PaymentEvent struct {
	PaymentID  string
	MerchantID string
	From       PaymentStatus
	To         PaymentStatus
	Signature  string
	Reason     string
	At         time.Time
}

// Subscription wraps a payment event subscription.
//
// Fields:
// - Subscription: the event feed subscription.
// - EventChan: the channel receiving payment events.
// - sync.Mutex: the mutex to protect access to the subscription data.
type Subscription struct {
	Subscription event.Subscription
	EventChan    chan PaymentEvent
	sync.Mutex
}

// Close unsubscribes from the feed and closes the event channel.
func (s *Subscription) Close() {
	s.Lock()
	defer s.Unlock()

	if s.Subscription != nil {
		s.Subscription.Unsubscribe()
		s.Subscription = nil
	}

	if s.EventChan != nil {
		close(s.EventChan)
		s.EventChan = nil
	}
}
