package auction

import (
	"math/big"
	"strings"
)

// AssetKind distinguishes the chain's native coin from fungible tokens.
type AssetKind string

const (
	AssetKindNative AssetKind = "native"
	AssetKindToken  AssetKind = "token"
)

// NativeSymbol is the display symbol for the chain's native coin.
const NativeSymbol = "GUARD"

// Asset is a tagged variant identifying what is being auctioned. All balance
// movement goes through the AssetTransfer capability so callers never branch
// on a sentinel value.
type Asset struct {
	Kind   AssetKind `json:"kind"`
	Symbol string    `json:"symbol,omitempty"`
}

// NativeAsset returns the variant for the chain's native coin.
func NativeAsset() Asset {
	return Asset{Kind: AssetKindNative}
}

// TokenAsset returns the variant for the fungible token with the given symbol.
func TokenAsset(symbol string) Asset {
	return Asset{Kind: AssetKindToken, Symbol: strings.ToUpper(strings.TrimSpace(symbol))}
}

// Native reports whether the asset is the chain's native coin.
func (a Asset) Native() bool { return a.Kind == AssetKindNative }

// Validate ensures the variant is well formed.
func (a Asset) Validate() error {
	switch a.Kind {
	case AssetKindNative:
		if a.Symbol != "" {
			return ErrInvalidAsset
		}
		return nil
	case AssetKindToken:
		if strings.TrimSpace(a.Symbol) == "" {
			return ErrInvalidAsset
		}
		return nil
	default:
		return ErrInvalidAsset
	}
}

// Key renders the canonical identifier used for balance maps and state keys.
func (a Asset) Key() string {
	if a.Native() {
		return NativeSymbol
	}
	return a.Symbol
}

func (a Asset) String() string { return a.Key() }

// Auction is the canonical record for one descending-price sale of seized
// collateral. All fields except Active are immutable snapshots taken at open
// time; Active flips to false exactly once, on settlement or expiry cleanup.
type Auction struct {
	ID uint64 `json:"id"`
	// Debtor identifies the position being liquidated.
	Debtor [20]byte `json:"debtor"`
	Asset  Asset    `json:"asset"`
	// DebtAmount and CollateralAmount are snapshots from the position ledger.
	DebtAmount       *big.Int `json:"debtAmount"`
	CollateralAmount *big.Int `json:"collateralAmount"`
	StartTime        int64    `json:"startTime"`
	Duration         int64    `json:"duration"`
	StartPrice       *big.Int `json:"startPrice"`
	FloorPrice       *big.Int `json:"floorPrice"`
	Active           bool     `json:"active"`
}

// Clone returns a deep copy of the auction record.
func (a *Auction) Clone() *Auction {
	if a == nil {
		return nil
	}
	clone := &Auction{
		ID:        a.ID,
		Debtor:    a.Debtor,
		Asset:     a.Asset,
		StartTime: a.StartTime,
		Duration:  a.Duration,
		Active:    a.Active,
	}
	if a.DebtAmount != nil {
		clone.DebtAmount = new(big.Int).Set(a.DebtAmount)
	}
	if a.CollateralAmount != nil {
		clone.CollateralAmount = new(big.Int).Set(a.CollateralAmount)
	}
	if a.StartPrice != nil {
		clone.StartPrice = new(big.Int).Set(a.StartPrice)
	}
	if a.FloorPrice != nil {
		clone.FloorPrice = new(big.Int).Set(a.FloorPrice)
	}
	return clone
}

// CommitRecord stores one hashed bid commitment awaiting reveal.
type CommitRecord struct {
	CommitHash [32]byte `json:"commitHash"`
	Bidder     [20]byte `json:"bidder"`
	AuctionID  uint64   `json:"auctionId"`
	CommitTime int64    `json:"commitTime"`
	// RevealDeadline is CommitTime + RevealDuration.
	RevealDeadline int64 `json:"revealDeadline"`
	Revealed       bool  `json:"revealed"`
}

// Clone returns a copy of the commit record.
func (c *CommitRecord) Clone() *CommitRecord {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// MevProtectionRecord tracks per-auction bid cadence and price impact.
// LastBidPrice is carried so the next protected bid's impact can be computed
// against the price effective at the previous one.
type MevProtectionRecord struct {
	LastBidTime    int64    `json:"lastBidTime"`
	LastBidBlock   uint64   `json:"lastBidBlock"`
	LastBidPrice   *big.Int `json:"lastBidPrice,omitempty"`
	PriceImpactBps uint64   `json:"priceImpactBps"`
}

// Clone returns a deep copy of the protection record.
func (m *MevProtectionRecord) Clone() *MevProtectionRecord {
	if m == nil {
		return nil
	}
	clone := &MevProtectionRecord{
		LastBidTime:    m.LastBidTime,
		LastBidBlock:   m.LastBidBlock,
		PriceImpactBps: m.PriceImpactBps,
	}
	if m.LastBidPrice != nil {
		clone.LastBidPrice = new(big.Int).Set(m.LastBidPrice)
	}
	return clone
}

// FlashloanState is the single process-wide record of the last observed
// balance spike. Sharing across auctions is deliberate: a borrowed-capital
// spike is a property of the caller, not of one auction.
type FlashloanState struct {
	// Block is the height at which the spike was observed; zero means no
	// detection has occurred.
	Block uint64 `json:"block"`
}

// Settlement summarises a winning bid.
type Settlement struct {
	AuctionID        uint64   `json:"auctionId"`
	Bidder           [20]byte `json:"bidder"`
	Asset            Asset    `json:"asset"`
	Price            *big.Int `json:"price"`
	CollateralAmount *big.Int `json:"collateralAmount"`
	TotalCost        *big.Int `json:"totalCost"`
	Refund           *big.Int `json:"refund"`
	SettledAt        int64    `json:"settledAt"`
}
