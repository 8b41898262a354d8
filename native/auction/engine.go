package auction

import (
	"bytes"
	"fmt"
	"math/big"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"stableguard/core/events"
	"stableguard/core/types"
	nativecommon "stableguard/native/common"
)

// engineState is the subset of state-manager functionality the auction module
// mutates. Each record has exactly one owner (the engine); the manager only
// persists and indexes.
type engineState interface {
	AuctionCounter() (uint64, error)
	SetAuctionCounter(uint64) error
	CommitSequence() (uint64, error)
	SetCommitSequence(uint64) error
	AuctionGet(id uint64) (*Auction, bool, error)
	AuctionPut(a *Auction) error
	ActiveAuctions() ([]uint64, error)
	SetActiveAuctions(ids []uint64) error
	UserAuctionGet(debtor [20]byte, assetKey string) (uint64, bool, error)
	UserAuctionPut(debtor [20]byte, assetKey string, id uint64) error
	CommitGet(id [32]byte) (*CommitRecord, bool, error)
	CommitPut(id [32]byte, rec *CommitRecord) error
	ProtectionGet(auctionID uint64) (*MevProtectionRecord, bool, error)
	ProtectionPut(auctionID uint64, rec *MevProtectionRecord) error
	FlashloanGet() (*FlashloanState, error)
	FlashloanPut(st *FlashloanState) error
	ReputationGet(addr [20]byte) (uint64, error)
	ReputationPut(addr [20]byte, score uint64) error
	ActivityGet(addr [20]byte) (int64, bool, error)
	ActivityPut(addr [20]byte, ts int64) error
	BalanceOf(addr [20]byte, asset Asset) (*big.Int, error)
}

// AssetTransfer moves value between accounts and the module vault. It is the
// single capability through which both native-coin and token legs run; the
// implementation dispatches on the Asset variant.
type AssetTransfer interface {
	TransferOut(asset Asset, to [20]byte, amount *big.Int) error
	PullIn(asset Asset, from [20]byte, amount *big.Int) error
}

// PauseControl persists the module pause switch read back through the
// nativecommon.PauseView wired via SetPauses.
type PauseControl interface {
	SetModulePaused(module string, paused bool) error
}

type auctionEvent struct {
	evt *types.Event
}

func (e auctionEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e auctionEvent) Event() *types.Event { return e.evt }

// Engine owns the canonical auction records and lifecycle transitions. Every
// external entry point runs as one serialized atomic transition: concurrent
// callers queue on the operation lock, while a reentrant self-call through
// the transfer collaborator is rejected outright.
type Engine struct {
	state       engineState
	transfers   AssetTransfer
	prices      PriceSource
	custody     CollateralSource
	emitter     events.Emitter
	pauses      nativecommon.PauseView
	pauseCtl    PauseControl
	cfg         Config
	owner       [20]byte
	vault       [20]byte
	nowFn       func() int64
	blockHeight uint64

	mu     sync.Mutex
	holder atomic.Uint64
}

// NewEngine constructs an auction engine. The vault address holds accepted
// payments and the cleanup reserve; owner gates the admin surface.
func NewEngine(vault, owner [20]byte, cfg Config) *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		cfg:     cfg,
		owner:   owner,
		vault:   vault,
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetTransfers configures the asset movement capability.
func (e *Engine) SetTransfers(t AssetTransfer) { e.transfers = t }

// SetPriceSource configures the reference price collaborator consumed at open
// time.
func (e *Engine) SetPriceSource(p PriceSource) { e.prices = p }

// SetCustodySource configures the collateral custody collaborator read once
// at open time.
func (e *Engine) SetCustodySource(c CollateralSource) { e.custody = c }

// SetPauses wires the module pause switchboard.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetPauseControl wires the writable side of the pause switchboard consumed
// by SetPaused.
func (e *Engine) SetPauseControl(p PauseControl) {
	if e == nil {
		return
	}
	e.pauseCtl = p
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetBlockHeight records the block height used by the same-block and
// flashloan heuristics. Safe to call from the height ticker while bids are in
// flight; the write queues behind the operation lock.
func (e *Engine) SetBlockHeight(height uint64) {
	if e == nil {
		return
	}
	e.mu.Lock()
	e.blockHeight = height
	e.mu.Unlock()
}

// Config returns the currently effective auction parameters.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(auctionEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// enter acquires the engine's operation lock. Concurrent callers block until
// the in-flight transition finishes; only a transfer collaborator calling
// back into an entry point on the same goroutine observes ErrReentrantCall,
// instead of deadlocking on its own lock.
func (e *Engine) enter() error {
	gid := goroutineID()
	if gid != 0 && e.holder.Load() == gid {
		return ErrReentrantCall
	}
	e.mu.Lock()
	e.holder.Store(gid)
	return nil
}

func (e *Engine) exit() {
	e.holder.Store(0)
	e.mu.Unlock()
}

// goroutineID parses the caller's goroutine id from the stack header. Zero
// means the id could not be determined; reentrancy detection is skipped then.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return 0
	}
	id, err := strconv.ParseUint(string(fields[1]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func isZeroAddress(addr [20]byte) bool { return addr == ([20]byte{}) }

// OpenAuction snapshots a seized position and starts the price decay. The
// start price is the 18-decimal reference price supplied by the caller (or by
// the oracle via OpenSeized); it is never re-queried afterward.
func (e *Engine) OpenAuction(debtor [20]byte, asset Asset, debtAmount, collateralAmount, startPrice *big.Int) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	if err := e.enter(); err != nil {
		return 0, err
	}
	defer e.exit()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return 0, err
	}
	if isZeroAddress(debtor) {
		return 0, ErrInvalidParameters
	}
	if err := asset.Validate(); err != nil {
		return 0, err
	}
	if debtAmount == nil || debtAmount.Sign() <= 0 {
		return 0, ErrInvalidParameters
	}
	if startPrice == nil || startPrice.Sign() <= 0 {
		return 0, ErrInvalidParameters
	}
	if collateralAmount == nil || collateralAmount.Sign() <= 0 {
		return 0, ErrNoCollateral
	}

	counter, err := e.state.AuctionCounter()
	if err != nil {
		return 0, err
	}
	id := counter + 1

	a := &Auction{
		ID:               id,
		Debtor:           debtor,
		Asset:            asset,
		DebtAmount:       new(big.Int).Set(debtAmount),
		CollateralAmount: new(big.Int).Set(collateralAmount),
		StartTime:        e.now(),
		Duration:         e.cfg.DurationSeconds,
		StartPrice:       new(big.Int).Set(startPrice),
		FloorPrice:       e.cfg.FloorPrice(startPrice),
		Active:           true,
	}

	if err := e.state.AuctionPut(a); err != nil {
		return 0, err
	}
	if err := e.state.SetAuctionCounter(id); err != nil {
		return 0, err
	}
	active, err := e.state.ActiveAuctions()
	if err != nil {
		return 0, err
	}
	if err := e.state.SetActiveAuctions(append(active, id)); err != nil {
		return 0, err
	}
	if err := e.state.UserAuctionPut(debtor, asset.Key(), id); err != nil {
		return 0, err
	}

	e.emit(NewOpenedEvent(a))
	return id, nil
}

// CurrentPrice returns the clearing price for the auction right now. Unknown
// and inactive auctions price at zero.
func (e *Engine) CurrentPrice(id uint64) *big.Int {
	if e == nil || e.state == nil {
		return big.NewInt(0)
	}
	a, ok, err := e.state.AuctionGet(id)
	if err != nil || !ok || !a.Active {
		return big.NewInt(0)
	}
	return e.priceOf(a)
}

func (e *Engine) priceOf(a *Auction) *big.Int {
	return PriceAt(e.now()-a.StartTime, a.Duration, a.StartPrice, a.FloorPrice)
}

// IsExpired reports whether the decay window has fully elapsed, independent
// of the active flag. Unknown auctions report false.
func (e *Engine) IsExpired(id uint64) bool {
	if e == nil || e.state == nil {
		return false
	}
	a, ok, err := e.state.AuctionGet(id)
	if err != nil || !ok {
		return false
	}
	return e.expired(a)
}

func (e *Engine) expired(a *Auction) bool {
	return e.now() >= a.StartTime+a.Duration
}

// Bid is the direct path: the bidder names a ceiling price and settles at the
// current curve price if every protection heuristic passes.
func (e *Engine) Bid(bidder [20]byte, auctionID uint64, ceilingPrice, payment *big.Int) (*Settlement, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.exit()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if isZeroAddress(bidder) || ceilingPrice == nil || ceilingPrice.Sign() <= 0 {
		return nil, ErrInvalidParameters
	}
	if payment == nil {
		payment = big.NewInt(0)
	}

	a, ok, err := e.state.AuctionGet(auctionID)
	if err != nil {
		return nil, err
	}
	if !ok || !a.Active {
		return nil, ErrAuctionInactiveOrExpired
	}

	if err := e.checkProtection(bidder, a, payment); err != nil {
		return nil, err
	}
	settlement, err := e.executeBid(a, bidder, ceilingPrice, payment)
	if err != nil {
		return nil, err
	}
	// The settlement is final once executeBid returns; a bookkeeping failure
	// must not mask it as a failed call.
	if err := e.recordProtectedBid(a, bidder, settlement.Price); err != nil {
		e.emit(NewProtectionRecordFailedEvent(a.ID, bidder, err))
	}
	e.emit(NewBidSettledEvent(settlement))
	return settlement, nil
}

// executeBid validates payment, flips the auction inactive and moves both
// transfer legs. The active flag is cleared only after payment has been
// accepted and before the collateral leg, so a collateral failure surfaces as
// unrecoverable rather than silently reopening the sale.
func (e *Engine) executeBid(a *Auction, bidder [20]byte, ceilingPrice, payment *big.Int) (*Settlement, error) {
	if e.transfers == nil {
		return nil, errNilState
	}
	price := e.priceOf(a)
	if !a.Active || price.Sign() == 0 {
		return nil, ErrAuctionInactiveOrExpired
	}
	if price.Cmp(ceilingPrice) > 0 {
		return nil, ErrPriceTooHigh
	}

	totalCost := new(big.Int).Mul(price, a.CollateralAmount)
	totalCost.Quo(totalCost, PriceScale)

	refund := big.NewInt(0)
	if a.Asset.Native() {
		if payment.Cmp(totalCost) < 0 {
			return nil, ErrInsufficientPayment
		}
		refund = new(big.Int).Sub(payment, totalCost)
		// The full attached payment is accepted first; the excess goes
		// back on the refund leg after settlement.
		if err := e.transfers.PullIn(NativeAsset(), bidder, payment); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
	} else {
		if payment.Sign() != 0 {
			return nil, ErrInsufficientPayment
		}
		if err := e.transfers.PullIn(NativeAsset(), bidder, totalCost); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
	}

	// Payment accepted: the single Active flip happens now, before any
	// outgoing transfer can reenter.
	a.Active = false
	if err := e.state.AuctionPut(a); err != nil {
		return nil, err
	}
	if err := e.removeActive(a.ID); err != nil {
		return nil, err
	}

	if err := e.transfers.TransferOut(a.Asset, bidder, a.CollateralAmount); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if refund.Sign() > 0 {
		if err := e.transfers.TransferOut(NativeAsset(), bidder, refund); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
	}

	return &Settlement{
		AuctionID:        a.ID,
		Bidder:           bidder,
		Asset:            a.Asset,
		Price:            price,
		CollateralAmount: new(big.Int).Set(a.CollateralAmount),
		TotalCost:        totalCost,
		Refund:           refund,
		SettledAt:        e.now(),
	}, nil
}

func (e *Engine) removeActive(id uint64) error {
	active, err := e.state.ActiveAuctions()
	if err != nil {
		return err
	}
	filtered := active[:0]
	for _, aid := range active {
		if aid != id {
			filtered = append(filtered, aid)
		}
	}
	return e.state.SetActiveAuctions(filtered)
}

// UpdateConfig replaces the auction parameters. Owner only; bounds per the
// config documentation.
func (e *Engine) UpdateConfig(caller [20]byte, cfg Config) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if caller != e.owner {
		return ErrUnauthorized
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.cfg = cfg
	e.emit(NewConfigUpdatedEvent(cfg))
	return nil
}

// SetPaused flips the module pause switch. Owner only. The pause guard is
// deliberately not consulted here so a paused module can be resumed.
func (e *Engine) SetPaused(caller [20]byte, paused bool) error {
	if e == nil || e.pauseCtl == nil {
		return errNilState
	}
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if caller != e.owner {
		return ErrUnauthorized
	}
	if err := e.pauseCtl.SetModulePaused(moduleName, paused); err != nil {
		return err
	}
	e.emit(NewPauseChangedEvent(paused))
	return nil
}

// Paused reports whether the module's entry points are suspended.
func (e *Engine) Paused() bool {
	if e == nil || e.pauses == nil {
		return false
	}
	return e.pauses.IsPaused(moduleName)
}

// EmergencyWithdraw moves reserve funds to the owner, bounded by the balance
// actually held in the vault.
func (e *Engine) EmergencyWithdraw(caller [20]byte, asset Asset, amount *big.Int) error {
	if e == nil || e.state == nil || e.transfers == nil {
		return errNilState
	}
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if caller != e.owner {
		return ErrUnauthorized
	}
	if err := asset.Validate(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidParameters
	}
	held, err := e.state.BalanceOf(e.vault, asset)
	if err != nil {
		return err
	}
	if held.Cmp(amount) < 0 {
		return ErrInsufficientReserve
	}
	if err := e.transfers.TransferOut(asset, caller, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	return nil
}

// --- Read surface ---

// GetAuction returns a copy of the auction record.
func (e *Engine) GetAuction(id uint64) (*Auction, bool) {
	if e == nil || e.state == nil {
		return nil, false
	}
	a, ok, err := e.state.AuctionGet(id)
	if err != nil || !ok {
		return nil, false
	}
	return a.Clone(), true
}

// GetActiveAuctions returns copies of every auction still accepting bids.
func (e *Engine) GetActiveAuctions() []*Auction {
	if e == nil || e.state == nil {
		return nil
	}
	ids, err := e.state.ActiveAuctions()
	if err != nil {
		return nil
	}
	out := make([]*Auction, 0, len(ids))
	for _, id := range ids {
		a, ok, err := e.state.AuctionGet(id)
		if err != nil || !ok {
			continue
		}
		out = append(out, a.Clone())
	}
	return out
}

// GetUserTokenAuction resolves the most recent auction opened against a
// debtor for the given asset.
func (e *Engine) GetUserTokenAuction(debtor [20]byte, asset Asset) (uint64, bool) {
	if e == nil || e.state == nil {
		return 0, false
	}
	id, ok, err := e.state.UserAuctionGet(debtor, asset.Key())
	if err != nil {
		return 0, false
	}
	return id, ok
}

// GetMevProtection returns a copy of the per-auction protection record.
func (e *Engine) GetMevProtection(auctionID uint64) (*MevProtectionRecord, bool) {
	if e == nil || e.state == nil {
		return nil, false
	}
	rec, ok, err := e.state.ProtectionGet(auctionID)
	if err != nil || !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// GetBidderReputation returns the advisory reputation counter for a bidder.
func (e *Engine) GetBidderReputation(bidder [20]byte) uint64 {
	if e == nil || e.state == nil {
		return 0
	}
	score, err := e.state.ReputationGet(bidder)
	if err != nil {
		return 0
	}
	return score
}
