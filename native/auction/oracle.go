package auction

import (
	"fmt"
	"math/big"
)

// PriceSource resolves the 18-decimal reference price for an asset. The
// engine consumes exactly one snapshot per auction, at open time; stale or
// failed quotes propagate as typed errors, never as silent defaults.
type PriceSource interface {
	ReferencePrice(asset Asset) (*big.Int, error)
}

// CollateralSource reports the collateral a custody ledger holds for a
// debtor. Read once at open time.
type CollateralSource interface {
	HeldAmount(debtor [20]byte, asset Asset) (*big.Int, error)
}

// OpenSeized opens an auction for a seized position using the wired price and
// custody collaborators: the custody ledger supplies the collateral snapshot
// and the price source the starting reference price.
func (e *Engine) OpenSeized(debtor [20]byte, asset Asset, debtAmount *big.Int) (uint64, error) {
	if e == nil {
		return 0, errNilState
	}
	if e.prices == nil {
		return 0, ErrPriceUnavailable
	}
	if e.custody == nil {
		return 0, ErrCustodyUnavailable
	}
	startPrice, err := e.prices.ReferencePrice(asset)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPriceUnavailable, err)
	}
	collateral, err := e.custody.HeldAmount(debtor, asset)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCustodyUnavailable, err)
	}
	return e.OpenAuction(debtor, asset, debtAmount, collateral, startPrice)
}
