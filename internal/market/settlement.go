package market

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DevKavathiya11/marketd/internal/domain"
)

// settlement describes one atomic "move asset + move payment" exchange.
// required is the amount ultimately forwarded to the payee; payment is what
// the payer remitted with the call. Callers verify payment >= required
// before building a settlement.
type settlement struct {
	kind       domain.AssetKind
	itemIDs    []uint64
	quantities []uint64
	from       common.Address // asset source
	to         common.Address // asset destination
	payer      common.Address
	payee      common.Address
	required   *big.Int
	payment    *big.Int
}

// execute runs the settlement. The fixed ordering is: collect the remitted
// payment into the operator escrow, attempt the custody transfer, forward
// the required amount to the payee, refund any surplus to the payer. A
// failure at any step undoes every movement already made, so the asset and
// the payment move together or not at all. Must be called with the
// marketplace lock held.
func (m *Marketplace) execute(ctx context.Context, s settlement) error {
	if err := m.payments.Transfer(ctx, s.payer, m.operator, s.payment); err != nil {
		return fmt.Errorf("settlement: collect payment: %w", err)
	}

	adapter := m.adapter(s.kind)
	var custodyErr error
	if len(s.itemIDs) == 1 {
		custodyErr = adapter.Transfer(ctx, s.from, s.to, s.itemIDs[0], s.quantities[0])
	} else {
		custodyErr = adapter.BatchTransfer(ctx, s.from, s.to, s.itemIDs, s.quantities)
	}
	if custodyErr != nil {
		if refundErr := m.payments.Transfer(ctx, m.operator, s.payer, s.payment); refundErr != nil {
			return fmt.Errorf("settlement: refund after custody failure: %w (custody: %v)", refundErr, custodyErr)
		}
		return fmt.Errorf("settlement: %w: %v", domain.ErrCustody, custodyErr)
	}

	if err := m.payments.Transfer(ctx, m.operator, s.payee, s.required); err != nil {
		// The payee cannot receive: an asset moved without the seller being
		// paid violates the core invariant, so undo the custody leg too.
		var rollbackErr error
		if len(s.itemIDs) == 1 {
			rollbackErr = adapter.Transfer(ctx, s.to, s.from, s.itemIDs[0], s.quantities[0])
		} else {
			rollbackErr = adapter.BatchTransfer(ctx, s.to, s.from, s.itemIDs, s.quantities)
		}
		if rollbackErr != nil {
			return fmt.Errorf("settlement: custody rollback after payment failure: %w (payment: %v)", rollbackErr, err)
		}
		if refundErr := m.payments.Transfer(ctx, m.operator, s.payer, s.payment); refundErr != nil {
			return fmt.Errorf("settlement: refund after payment failure: %w (payment: %v)", refundErr, err)
		}
		return fmt.Errorf("settlement: forward payment: %w", err)
	}

	if surplus := new(big.Int).Sub(s.payment, s.required); surplus.Sign() > 0 {
		if err := m.payments.Transfer(ctx, m.operator, s.payer, surplus); err != nil {
			// Unwind in reverse order so no partial state survives.
			var rollbackErr error
			if reclaimErr := m.payments.Transfer(ctx, s.payee, m.operator, s.required); reclaimErr != nil {
				rollbackErr = reclaimErr
			} else if len(s.itemIDs) == 1 {
				rollbackErr = adapter.Transfer(ctx, s.to, s.from, s.itemIDs[0], s.quantities[0])
			} else {
				rollbackErr = adapter.BatchTransfer(ctx, s.to, s.from, s.itemIDs, s.quantities)
			}
			if rollbackErr == nil {
				rollbackErr = m.payments.Transfer(ctx, m.operator, s.payer, s.payment)
			}
			if rollbackErr != nil {
				return fmt.Errorf("settlement: rollback after surplus refund failure: %w (refund: %v)", rollbackErr, err)
			}
			return fmt.Errorf("settlement: refund surplus: %w", err)
		}
	}

	return nil
}
