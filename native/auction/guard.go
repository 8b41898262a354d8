package auction

import "math/big"

// checkProtection is the ordered gate wrapping both bid paths. The order is
// load-bearing: cadence, same-block, stored impact, flashloan, then the
// per-bidder rate limit, whose activity stamp updates on pass regardless of
// how the settlement downstream turns out.
func (e *Engine) checkProtection(bidder [20]byte, a *Auction, payment *big.Int) error {
	rec, ok, err := e.state.ProtectionGet(a.ID)
	if err != nil {
		return err
	}
	now := e.now()

	if ok && rec.LastBidTime > 0 {
		if now < rec.LastBidTime+MinBidDelay {
			e.emit(NewMevDetectedEvent(a.ID, bidder, "cadence"))
			return ErrBidTooFrequent
		}
		if rec.LastBidBlock == e.blockHeight {
			e.emit(NewMevDetectedEvent(a.ID, bidder, "same_block"))
			return ErrSameBlockBid
		}
	}

	// Lagged gate: the impact recorded by the previous protected bid blocks
	// this attempt; the bid that produced the reading was allowed through.
	if ok && rec.PriceImpactBps > MaxPriceImpactBps {
		e.emit(NewMevDetectedEvent(a.ID, bidder, "price_impact"))
		return ErrExcessiveImpact
	}

	if err := e.checkFlashloan(bidder, a, payment); err != nil {
		return err
	}

	last, hasActivity, err := e.state.ActivityGet(bidder)
	if err != nil {
		return err
	}
	if hasActivity && now < last+MinBidDelay {
		e.emit(NewMevDetectedEvent(a.ID, bidder, "rate_limit"))
		return ErrRateLimited
	}
	return e.state.ActivityPut(bidder, now)
}

// checkFlashloan consults the single process-wide detection slot shared by
// all auctions. The attached payment is excluded from the spike measurement.
func (e *Engine) checkFlashloan(bidder [20]byte, a *Auction, payment *big.Int) error {
	fl, err := e.state.FlashloanGet()
	if err != nil {
		return err
	}
	if fl == nil {
		fl = &FlashloanState{}
	}
	if fl.Block > 0 && e.blockHeight >= fl.Block && e.blockHeight-fl.Block <= FlashloanCooldownBlocks {
		return ErrFlashloanCooldown
	}

	balance, err := e.state.BalanceOf(bidder, a.Asset)
	if err != nil {
		return err
	}
	if a.Asset.Native() && payment != nil {
		balance = new(big.Int).Sub(balance, payment)
	}
	if balance.Cmp(FlashloanThreshold) > 0 {
		fl.Block = e.blockHeight
		if err := e.state.FlashloanPut(fl); err != nil {
			return err
		}
		e.emit(NewFlashloanDetectedEvent(bidder, e.blockHeight, balance))
		return ErrFlashloanSuspected
	}
	return nil
}

// recordProtectedBid runs after a settlement clears: it stamps cadence
// tracking, recomputes the basis-point impact against the price effective at
// the previous protected bid (the start price when there was none), and
// nudges the bidder's advisory reputation.
func (e *Engine) recordProtectedBid(a *Auction, bidder [20]byte, paidPrice *big.Int) error {
	rec, ok, err := e.state.ProtectionGet(a.ID)
	if err != nil {
		return err
	}
	if !ok {
		rec = &MevProtectionRecord{}
	}

	prevPrice := a.StartPrice
	if rec.LastBidPrice != nil && rec.LastBidPrice.Sign() > 0 {
		prevPrice = rec.LastBidPrice
	}
	impact := priceImpactBps(prevPrice, paidPrice)

	rec.LastBidTime = e.now()
	rec.LastBidBlock = e.blockHeight
	rec.LastBidPrice = new(big.Int).Set(paidPrice)
	rec.PriceImpactBps = impact
	if err := e.state.ProtectionPut(a.ID, rec); err != nil {
		return err
	}

	score, err := e.state.ReputationGet(bidder)
	if err != nil {
		return err
	}
	if impact < MaxPriceImpactBps/2 {
		score++
	} else if score > 0 {
		score--
	}
	return e.state.ReputationPut(bidder, score)
}

// priceImpactBps returns the basis-point decrease from prev to paid, zero
// when the price held or rose.
func priceImpactBps(prev, paid *big.Int) uint64 {
	if prev == nil || prev.Sign() <= 0 || paid == nil {
		return 0
	}
	if paid.Cmp(prev) >= 0 {
		return 0
	}
	drop := new(big.Int).Sub(prev, paid)
	drop.Mul(drop, basisPoints)
	drop.Quo(drop, prev)
	return drop.Uint64()
}
