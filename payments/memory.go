package payments

import (
	"context"
	"sync"

	commonerrors "github.com/ClipFinance/settlement-lib/common/errors"
	"github.com/ClipFinance/settlement-lib/common/types"
	"github.com/pkg/errors"
)

// MemoryStore keeps payments in process memory. Callers always receive copies.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]types.Payment
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]types.Payment)}
}

func (ms *MemoryStore) CreatePayment(_ context.Context, payment *types.Payment) error {
	if payment == nil || payment.ID == "" {
		return commonerrors.Validationf("payment id is required")
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, ok := ms.data[payment.ID]; ok {
		return errors.Wrapf(commonerrors.ErrPaymentExists, "payment %s", payment.ID)
	}
	ms.data[payment.ID] = *payment
	return nil
}

func (ms *MemoryStore) UpdatePaymentStatus(_ context.Context, update StatusUpdate) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	stored, ok := ms.data[update.ID]
	if !ok {
		return errors.Wrapf(commonerrors.ErrPaymentNotFound, "payment %s", update.ID)
	}
	if err := stored.Transition(update.Status, update.Signature, update.Reason, update.At); err != nil {
		return err
	}
	ms.data[update.ID] = stored
	return nil
}

func (ms *MemoryStore) GetPayment(_ context.Context, id string) (*types.Payment, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	stored, ok := ms.data[id]
	if !ok {
		return nil, errors.Wrapf(commonerrors.ErrPaymentNotFound, "payment %s", id)
	}
	return &stored, nil
}
