package auction

import (
	"fmt"
	"math/big"

	nativecommon "stableguard/native/common"
)

// CleanExpired walks the supplied ids, flips every auction that is still
// active but past its decay window, and pays the caller a flat reward per
// closure from the module reserve. Reward transfer failure does not reopen
// the auctions: the single-flip invariant outranks the incentive.
func (e *Engine) CleanExpired(caller [20]byte, ids []uint64) (uint64, *big.Int, error) {
	if e == nil || e.state == nil || e.transfers == nil {
		return 0, big.NewInt(0), errNilState
	}
	if err := e.enter(); err != nil {
		return 0, big.NewInt(0), err
	}
	defer e.exit()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return 0, big.NewInt(0), err
	}
	if isZeroAddress(caller) {
		return 0, big.NewInt(0), ErrInvalidParameters
	}

	var cleaned uint64
	for _, id := range ids {
		a, ok, err := e.state.AuctionGet(id)
		if err != nil {
			return cleaned, big.NewInt(0), err
		}
		if !ok || !a.Active || !e.expired(a) {
			continue
		}
		if err := e.closeExpired(a, caller); err != nil {
			return cleaned, big.NewInt(0), err
		}
		cleaned++
	}

	paid := new(big.Int).Mul(new(big.Int).SetUint64(cleaned), IncentivePerCleanup)
	if cleaned > 0 {
		if err := e.transfers.TransferOut(NativeAsset(), caller, paid); err != nil {
			return cleaned, big.NewInt(0), fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
		e.emit(NewCleanedEvent(caller, cleaned, paid))
	}
	return cleaned, paid, nil
}

// CancelExpired is the single-auction variant. It rejects auctions whose
// decay window has not fully elapsed.
func (e *Engine) CancelExpired(caller [20]byte, id uint64) error {
	if e == nil || e.state == nil || e.transfers == nil {
		return errNilState
	}
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if isZeroAddress(caller) {
		return ErrInvalidParameters
	}

	a, ok, err := e.state.AuctionGet(id)
	if err != nil {
		return err
	}
	if !ok || !a.Active {
		return ErrAuctionInactiveOrExpired
	}
	if !e.expired(a) {
		return ErrAuctionNotExpired
	}
	if err := e.closeExpired(a, caller); err != nil {
		return err
	}
	if err := e.transfers.TransferOut(NativeAsset(), caller, IncentivePerCleanup); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	e.emit(NewCleanedEvent(caller, 1, IncentivePerCleanup))
	return nil
}

func (e *Engine) closeExpired(a *Auction, caller [20]byte) error {
	a.Active = false
	if err := e.state.AuctionPut(a); err != nil {
		return err
	}
	if err := e.removeActive(a.ID); err != nil {
		return err
	}
	e.emit(NewExpiredEvent(a, caller))
	return nil
}
