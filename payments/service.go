package payments

import (
	"context"
	"time"

	commonerrors "github.com/ClipFinance/settlement-lib/common/errors"
	"github.com/ClipFinance/settlement-lib/common/types"
	"github.com/ClipFinance/settlement-lib/metrics"
	"github.com/ethereum/go-ethereum/event"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// UnknownWallet is recorded when a payment is opened before the payer is known.
const UnknownWallet = "pending"

// defaultDeliveryTimeout bounds how long Settle waits on slow subscribers.
const defaultDeliveryTimeout = time.Second

// Service owns the payment lifecycle: it opens payments as PENDING and
// settles them exactly once into CONFIRMED or FAILED.
type Service struct {
	store   Store
	logger  *logrus.Logger
	metrics *metrics.Metrics
	feed    event.Feed
	now     func() time.Time

	deliveryTimeout time.Duration
}

// NewService creates a payment service on top of store.
//
// Parameters:
// - store: the payment store.
// - logger: the logger for logging purposes.
// - m: the metrics sink, may be nil.
//
// Returns:
// - *Service: the new service.
func NewService(store Store, logger *logrus.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		store:   store,
		logger:  logger,
		metrics: m,
		now:     time.Now,

		deliveryTimeout: defaultDeliveryTimeout,
	}
}

// Open creates a PENDING payment for the intent.
//
// Parameters:
// - ctx: the context for managing the request.
// - intent: the merchant, payer, amount and token of the payment.
//
// Returns:
// - *types.Payment: the stored payment.
// - error: a validation or store error.
func (s *Service) Open(ctx context.Context, intent types.PaymentIntent) (*types.Payment, error) {
	if intent.MerchantID == "" {
		return nil, commonerrors.Validationf("merchant id is required")
	}
	if intent.Token == "" {
		return nil, commonerrors.Validationf("token is required")
	}
	if !intent.Amount.IsPositive() {
		return nil, commonerrors.Validationf("amount must be positive, got %s", intent.Amount)
	}

	fromWallet := intent.FromWallet
	if fromWallet == "" {
		fromWallet = UnknownWallet
	}

	now := s.now().UTC()
	payment := &types.Payment{
		ID:         uuid.NewString(),
		MerchantID: intent.MerchantID,
		FromWallet: fromWallet,
		Amount:     intent.Amount,
		Token:      intent.Token,
		Status:     types.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.CreatePayment(ctx, payment); err != nil {
		return nil, errors.Wrap(err, "failed to create payment")
	}

	s.logger.WithFields(logrus.Fields{
		"payment":  payment.ID,
		"merchant": payment.MerchantID,
		"token":    payment.Token,
		"amount":   payment.Amount.String(),
	}).Info("Payment opened")
	return payment, nil
}

// Settle moves payment to a terminal status, persists it and publishes a
// PaymentEvent. payment is updated in place only when the store accepts
// the change.
//
// Parameters:
// - ctx: the context for managing the request.
// - payment: the payment to settle.
// - status: CONFIRMED or FAILED.
// - signature: the transaction signature, empty if nothing was submitted.
// - reason: the failure reason.
//
// Returns:
// - error: ErrInvalidTransition if the payment is already terminal, or a store error.
func (s *Service) Settle(ctx context.Context, payment *types.Payment, status types.PaymentStatus, signature, reason string) error {
	if payment == nil {
		return commonerrors.Validationf("payment is required")
	}

	next := *payment
	from := next.Status
	at := s.now().UTC()
	if err := next.Transition(status, signature, reason, at); err != nil {
		return err
	}

	err := s.store.UpdatePaymentStatus(ctx, StatusUpdate{
		ID:        next.ID,
		Status:    status,
		Signature: signature,
		Reason:    reason,
		At:        at,
	})
	if err != nil {
		return errors.Wrapf(err, "failed to settle payment %s", next.ID)
	}
	*payment = next

	s.metrics.PaymentSettled(status.String())
	entry := s.logger.WithFields(logrus.Fields{
		"payment":   payment.ID,
		"status":    status,
		"signature": signature,
	})
	if status == types.StatusFailed {
		entry.WithField("reason", reason).Warn("Payment failed")
	} else {
		entry.Info("Payment confirmed")
	}

	s.publish(types.PaymentEvent{
		PaymentID:  payment.ID,
		MerchantID: payment.MerchantID,
		From:       from,
		To:         status,
		Signature:  payment.Signature,
		Reason:     reason,
		At:         at,
	})
	return nil
}

// publish sends ev to the subscribers and waits at most deliveryTimeout.
// A stalled delivery is logged and completes in the background once the
// subscriber drains its channel or closes the subscription.
func (s *Service) publish(ev types.PaymentEvent) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.feed.Send(ev)
	}()

	timer := time.NewTimer(s.deliveryTimeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		s.logger.WithFields(logrus.Fields{
			"payment": ev.PaymentID,
			"status":  ev.To,
			"timeout": s.deliveryTimeout,
		}).Warn("Payment event delivery stalled, a subscriber is not draining its channel")
	}
}

// Get returns the stored payment.
func (s *Service) Get(ctx context.Context, id string) (*types.Payment, error) {
	return s.store.GetPayment(ctx, id)
}

// SubscribeStatus subscribes to payment status changes. Settle waits a
// bounded time for subscribers to accept an event; a subscriber that does
// not drain its channel delays later events until it does or closes.
//
// Parameters:
// - buffer: the capacity of the event channel.
//
// Returns:
// - *types.Subscription: the subscription, closed with Close.
func (s *Service) SubscribeStatus(buffer int) *types.Subscription {
	ch := make(chan types.PaymentEvent, buffer)
	return &types.Subscription{
		Subscription: s.feed.Subscribe(ch),
		EventChan:    ch,
	}
}
