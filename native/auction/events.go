package auction

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"stableguard/core/types"
)

const (
	EventTypeAuctionOpened     = "auction.opened"
	EventTypeBidSettled        = "auction.bid_settled"
	EventTypeAuctionExpired    = "auction.expired"
	EventTypeAuctionCleaned    = "auction.cleaned"
	EventTypeConfigUpdated     = "auction.config_updated"
	EventTypeCommitRecorded    = "auction.commit_recorded"
	EventTypeRevealRecorded    = "auction.reveal_recorded"
	EventTypeMevDetected       = "auction.mev_detected"
	EventTypeFlashloanDetected = "auction.flashloan_detected"
	EventTypePauseChanged      = "auction.pause_changed"

	EventTypeProtectionRecordFailed = "auction.protection_record_failed"
)

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// NewOpenedEvent returns the canonical payload emitted when an auction opens.
func NewOpenedEvent(a *Auction) *types.Event {
	attrs := make(map[string]string)
	if a == nil {
		return &types.Event{Type: EventTypeAuctionOpened, Attributes: attrs}
	}
	attrs["auctionId"] = strconv.FormatUint(a.ID, 10)
	attrs["debtor"] = hex.EncodeToString(a.Debtor[:])
	attrs["asset"] = a.Asset.Key()
	attrs["debtAmount"] = bigString(a.DebtAmount)
	attrs["collateralAmount"] = bigString(a.CollateralAmount)
	attrs["startPrice"] = bigString(a.StartPrice)
	attrs["floorPrice"] = bigString(a.FloorPrice)
	attrs["startTime"] = strconv.FormatInt(a.StartTime, 10)
	attrs["duration"] = strconv.FormatInt(a.Duration, 10)
	return &types.Event{Type: EventTypeAuctionOpened, Attributes: attrs}
}

// NewBidSettledEvent returns the payload for a winning settlement.
func NewBidSettledEvent(s *Settlement) *types.Event {
	attrs := make(map[string]string)
	if s == nil {
		return &types.Event{Type: EventTypeBidSettled, Attributes: attrs}
	}
	attrs["auctionId"] = strconv.FormatUint(s.AuctionID, 10)
	attrs["bidder"] = hex.EncodeToString(s.Bidder[:])
	attrs["asset"] = s.Asset.Key()
	attrs["price"] = bigString(s.Price)
	attrs["collateralAmount"] = bigString(s.CollateralAmount)
	attrs["totalCost"] = bigString(s.TotalCost)
	attrs["refund"] = bigString(s.Refund)
	attrs["settledAt"] = strconv.FormatInt(s.SettledAt, 10)
	return &types.Event{Type: EventTypeBidSettled, Attributes: attrs}
}

// NewExpiredEvent returns the payload emitted when an expired auction is
// closed by cleanup.
func NewExpiredEvent(a *Auction, caller [20]byte) *types.Event {
	attrs := make(map[string]string)
	if a != nil {
		attrs["auctionId"] = strconv.FormatUint(a.ID, 10)
		attrs["debtor"] = hex.EncodeToString(a.Debtor[:])
		attrs["asset"] = a.Asset.Key()
		attrs["collateralAmount"] = bigString(a.CollateralAmount)
	}
	attrs["caller"] = hex.EncodeToString(caller[:])
	return &types.Event{Type: EventTypeAuctionExpired, Attributes: attrs}
}

// NewCleanedEvent returns the payload summarising a cleanup batch and the
// incentive paid for it.
func NewCleanedEvent(caller [20]byte, count uint64, paid *big.Int) *types.Event {
	return &types.Event{Type: EventTypeAuctionCleaned, Attributes: map[string]string{
		"caller":  hex.EncodeToString(caller[:]),
		"cleaned": strconv.FormatUint(count, 10),
		"paid":    bigString(paid),
	}}
}

// NewConfigUpdatedEvent returns the payload for a governance parameter change.
func NewConfigUpdatedEvent(cfg Config) *types.Event {
	return &types.Event{Type: EventTypeConfigUpdated, Attributes: map[string]string{
		"durationSeconds":     strconv.FormatInt(cfg.DurationSeconds, 10),
		"minPriceFactorBps":   strconv.FormatUint(cfg.MinPriceFactorBps, 10),
		"liquidationBonusBps": strconv.FormatUint(cfg.LiquidationBonusBps, 10),
	}}
}

// NewCommitRecordedEvent returns the payload for a stored bid commitment. The
// commitment hash stays opaque; only scheduling metadata is exposed.
func NewCommitRecordedEvent(id [32]byte, rec *CommitRecord) *types.Event {
	attrs := map[string]string{
		"commitId": hex.EncodeToString(id[:]),
	}
	if rec != nil {
		attrs["bidder"] = hex.EncodeToString(rec.Bidder[:])
		attrs["auctionId"] = strconv.FormatUint(rec.AuctionID, 10)
		attrs["commitTime"] = strconv.FormatInt(rec.CommitTime, 10)
		attrs["revealDeadline"] = strconv.FormatInt(rec.RevealDeadline, 10)
	}
	return &types.Event{Type: EventTypeCommitRecorded, Attributes: attrs}
}

// NewRevealRecordedEvent returns the payload emitted once a commitment is
// consumed.
func NewRevealRecordedEvent(id [32]byte, bidder [20]byte, auctionID uint64, maxPrice *big.Int) *types.Event {
	return &types.Event{Type: EventTypeRevealRecorded, Attributes: map[string]string{
		"commitId":  hex.EncodeToString(id[:]),
		"bidder":    hex.EncodeToString(bidder[:]),
		"auctionId": strconv.FormatUint(auctionID, 10),
		"maxPrice":  bigString(maxPrice),
	}}
}

// NewMevDetectedEvent returns the payload for a protection-heuristic
// rejection.
func NewMevDetectedEvent(auctionID uint64, bidder [20]byte, reason string) *types.Event {
	return &types.Event{Type: EventTypeMevDetected, Attributes: map[string]string{
		"auctionId": strconv.FormatUint(auctionID, 10),
		"bidder":    hex.EncodeToString(bidder[:]),
		"reason":    reason,
	}}
}

// NewPauseChangedEvent returns the payload for a pause switch flip.
func NewPauseChangedEvent(paused bool) *types.Event {
	return &types.Event{Type: EventTypePauseChanged, Attributes: map[string]string{
		"paused": strconv.FormatBool(paused),
	}}
}

// NewProtectionRecordFailedEvent flags a settlement whose protection
// bookkeeping could not be persisted. The settlement itself stands.
func NewProtectionRecordFailedEvent(auctionID uint64, bidder [20]byte, err error) *types.Event {
	attrs := map[string]string{
		"auctionId": strconv.FormatUint(auctionID, 10),
		"bidder":    hex.EncodeToString(bidder[:]),
	}
	if err != nil {
		attrs["error"] = err.Error()
	}
	return &types.Event{Type: EventTypeProtectionRecordFailed, Attributes: attrs}
}

// NewFlashloanDetectedEvent returns the payload for a balance-spike
// detection.
func NewFlashloanDetectedEvent(bidder [20]byte, block uint64, balance *big.Int) *types.Event {
	return &types.Event{Type: EventTypeFlashloanDetected, Attributes: map[string]string{
		"bidder":  hex.EncodeToString(bidder[:]),
		"block":   strconv.FormatUint(block, 10),
		"balance": bigString(balance),
	}}
}
