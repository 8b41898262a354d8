package auction

import "errors"

// Input validation failures. Rejected before any state mutation; callers may
// retry with corrected input.
var (
	ErrInvalidParameters = errors.New("auction engine: invalid parameters")
	ErrNoCollateral      = errors.New("auction engine: no collateral to auction")
	ErrInvalidConfig     = errors.New("auction engine: config out of bounds")
	ErrInvalidAsset      = errors.New("auction engine: invalid asset")
)

// State precondition failures.
var (
	ErrAuctionInactiveOrExpired = errors.New("auction engine: auction inactive or expired")
	ErrAuctionNotExpired        = errors.New("auction engine: auction not expired")
	ErrPriceTooHigh             = errors.New("auction engine: current price above ceiling")
	ErrInsufficientPayment      = errors.New("auction engine: insufficient payment")
	ErrInvalidCommit            = errors.New("auction engine: invalid commit")
	ErrRevealTooEarly           = errors.New("auction engine: reveal before blind window elapsed")
	ErrRevealExpired            = errors.New("auction engine: reveal deadline passed")
	ErrHashMismatch             = errors.New("auction engine: reveal does not match commitment")
)

// Protection rejections. Expected and frequent under adversarial load; they
// mean "try later", not "malformed request".
var (
	ErrBidTooFrequent     = errors.New("auction engine: bid cadence too fast")
	ErrSameBlockBid       = errors.New("auction engine: second bid in same block")
	ErrExcessiveImpact    = errors.New("auction engine: prior bid impact excessive")
	ErrFlashloanSuspected = errors.New("auction engine: flashloan balance spike detected")
	ErrFlashloanCooldown  = errors.New("auction engine: flashloan cooldown active")
	ErrRateLimited        = errors.New("auction engine: bidder rate limited")
)

// Operational failures.
var (
	ErrTransferFailed      = errors.New("auction engine: asset transfer failed")
	ErrInsufficientReserve = errors.New("auction engine: reserve balance too low")
	ErrReentrantCall       = errors.New("auction engine: reentrant call rejected")
	ErrUnauthorized        = errors.New("auction engine: caller not authorized")
	ErrPriceUnavailable    = errors.New("auction engine: reference price unavailable")
	ErrCustodyUnavailable  = errors.New("auction engine: custody balance unavailable")

	errNilState = errors.New("auction engine: state not configured")
)

// IsProtectionRejection reports whether err is one of the MEV/flashloan
// heuristics rather than a validation or state failure, so callers and
// monitoring can distinguish "try later" from hard errors.
func IsProtectionRejection(err error) bool {
	switch {
	case errors.Is(err, ErrBidTooFrequent),
		errors.Is(err, ErrSameBlockBid),
		errors.Is(err, ErrExcessiveImpact),
		errors.Is(err, ErrFlashloanSuspected),
		errors.Is(err, ErrFlashloanCooldown),
		errors.Is(err, ErrRateLimited):
		return true
	}
	return false
}
