package auction

import "math/big"

const moduleName = "auction"

// Protocol constants governing the commit-reveal windows and the protection
// heuristics. Amounts are denominated in wei (18 decimals).
const (
	// CommitDuration is the mandatory blind window between a commit and the
	// earliest valid reveal, in seconds.
	CommitDuration int64 = 60
	// RevealDuration is the lifetime of a commitment; reveals after
	// commitTime+RevealDuration are rejected.
	RevealDuration int64 = 300
	// MinBidDelay is the minimum spacing between protected bids on one
	// auction, and between any two bids from the same bidder.
	MinBidDelay int64 = 2
	// MaxPriceImpactBps is the basis-point price drop above which the next
	// protected bid on the auction is rejected.
	MaxPriceImpactBps uint64 = 1000
	// FlashloanCooldownBlocks is the number of blocks bids stay rejected
	// after a balance spike detection.
	FlashloanCooldownBlocks uint64 = 5
)

var (
	basisPoints = big.NewInt(10_000)

	// PriceScale normalises prices to 18-decimal fixed point.
	PriceScale = big.NewInt(1_000_000_000_000_000_000)

	// FlashloanThreshold is the absolute balance above which a bidder is
	// suspected of operating on borrowed capital: one million coins.
	FlashloanThreshold = new(big.Int).Mul(big.NewInt(1_000_000), PriceScale)

	// IncentivePerCleanup is the flat reward paid per expired auction
	// closed: 0.01 coin.
	IncentivePerCleanup = big.NewInt(10_000_000_000_000_000)
)
