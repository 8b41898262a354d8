package auction

import "math/big"

// PriceAt evaluates the linear decay curve. The curve is pure: the clearing
// price depends only on elapsed time and the auction's immutable bounds.
//
//   - elapsed beyond the duration collapses the price to zero (unsellable)
//   - elapsed equal to the duration yields the floor exactly, with no
//     rounding drift at the boundary
//   - otherwise the price interpolates linearly using integer floor
//     division, so the curve is monotonically non-increasing and
//     reproducible across implementations
func PriceAt(elapsed, duration int64, startPrice, floorPrice *big.Int) *big.Int {
	if startPrice == nil || floorPrice == nil || duration <= 0 {
		return big.NewInt(0)
	}
	if elapsed <= 0 {
		return new(big.Int).Set(startPrice)
	}
	if elapsed > duration {
		return big.NewInt(0)
	}
	if elapsed == duration {
		return new(big.Int).Set(floorPrice)
	}
	drop := new(big.Int).Sub(startPrice, floorPrice)
	drop.Mul(drop, big.NewInt(elapsed))
	drop.Quo(drop, big.NewInt(duration))
	return new(big.Int).Sub(startPrice, drop)
}
