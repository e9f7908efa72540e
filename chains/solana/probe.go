package solana

import (
	"context"

	"github.com/ClipFinance/settlement-lib/common/types"
	"github.com/pkg/errors"
)

// Probe checks that an RPC endpoint answers getVersion.
func (l *Ledger) Probe(ctx context.Context, endpoint types.Endpoint) error {
	version, err := l.client(endpoint).GetVersion(ctx)
	if err != nil {
		return errors.Wrapf(err, "getVersion on %s", endpoint.URL)
	}
	if version == nil || version.SolanaCore == "" {
		return errors.Errorf("getVersion on %s returned no version", endpoint.URL)
	}
	return nil
}
