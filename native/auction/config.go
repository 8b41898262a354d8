package auction

import "math/big"

// Config captures the governance-controlled auction parameters. All factors
// are expressed in basis points for deterministic accounting.
type Config struct {
	// DurationSeconds is the length of the price decay window.
	DurationSeconds int64 `toml:"DurationSeconds"`
	// MinPriceFactorBps sets the floor price relative to the start price.
	MinPriceFactorBps uint64 `toml:"MinPriceFactorBps"`
	// LiquidationBonusBps is the discount granted to liquidators, consumed
	// by the position ledger when it absorbs the settlement outcome.
	LiquidationBonusBps uint64 `toml:"LiquidationBonusBps"`
}

// DefaultConfig returns the parameters used when governance has not supplied
// overrides.
func DefaultConfig() Config {
	return Config{
		DurationSeconds:     3600,
		MinPriceFactorBps:   5000,
		LiquidationBonusBps: 500,
	}
}

// Validate enforces the update bounds: every field nonzero, factors capped at
// 100%.
func (c Config) Validate() error {
	if c.DurationSeconds <= 0 {
		return ErrInvalidConfig
	}
	if c.MinPriceFactorBps == 0 || c.MinPriceFactorBps > 10_000 {
		return ErrInvalidConfig
	}
	if c.LiquidationBonusBps == 0 || c.LiquidationBonusBps > 10_000 {
		return ErrInvalidConfig
	}
	return nil
}

// FloorPrice derives the decay floor from a start price using the configured
// minimum price factor.
func (c Config) FloorPrice(startPrice *big.Int) *big.Int {
	if startPrice == nil {
		return big.NewInt(0)
	}
	floor := new(big.Int).Mul(startPrice, new(big.Int).SetUint64(c.MinPriceFactorBps))
	return floor.Quo(floor, basisPoints)
}
