package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"stableguard/core/types"
	"stableguard/native/auction"
	"stableguard/storage"
)

// Key prefixes for the auction module and the account ledger. Records are
// JSON payloads; every prefix owns exactly one record shape.
var (
	auctionRecordPrefix = []byte("auction/record/")
	auctionCommitPrefix = []byte("auction/commit/")
	auctionMevPrefix    = []byte("auction/mev/")
	auctionUserPrefix   = []byte("auction/user/")
	reputationPrefix    = []byte("auction/reputation/")
	activityPrefix      = []byte("auction/activity/")
	accountPrefix       = []byte("account/")
	modulePausePrefix   = []byte("module/paused/")

	auctionCounterKey = []byte("auction/counter")
	commitSequenceKey = []byte("auction/commitseq")
	activeAuctionsKey = []byte("auction/active")
	flashloanKey      = []byte("auction/flashloan")
	currentHeightKey  = []byte("chain/height")
)

var errInsufficientFunds = errors.New("state: insufficient funds")

// Manager persists auction records and account balances on a key-value
// backend and implements the engine's state and asset-transfer capabilities.
// The vault address accumulates accepted payments and funds cleanup rewards.
type Manager struct {
	mu    sync.Mutex
	db    storage.Database
	vault [20]byte
}

// NewManager wraps the database with the auction state schema.
func NewManager(db storage.Database, vault [20]byte) *Manager {
	return &Manager{db: db, vault: vault}
}

// Vault returns the module vault address.
func (m *Manager) Vault() [20]byte { return m.vault }

func (m *Manager) kvGet(key []byte, out interface{}) (bool, error) {
	ok, err := m.db.Has(key)
	if err != nil || !ok {
		return false, err
	}
	raw, err := m.db.Get(key)
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("state: decode %q: %w", key, err)
	}
	return true, nil
}

func (m *Manager) kvPut(key []byte, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("state: encode %q: %w", key, err)
	}
	return m.db.Put(key, raw)
}

func (m *Manager) counter(key []byte) (uint64, error) {
	var v uint64
	if _, err := m.kvGet(key, &v); err != nil {
		return 0, err
	}
	return v, nil
}

// --- engineState ---

func (m *Manager) AuctionCounter() (uint64, error)  { return m.counter(auctionCounterKey) }
func (m *Manager) SetAuctionCounter(v uint64) error { return m.kvPut(auctionCounterKey, v) }
func (m *Manager) CommitSequence() (uint64, error)  { return m.counter(commitSequenceKey) }
func (m *Manager) SetCommitSequence(v uint64) error { return m.kvPut(commitSequenceKey, v) }

func auctionKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%016x", auctionRecordPrefix, id))
}

func (m *Manager) AuctionGet(id uint64) (*auction.Auction, bool, error) {
	a := new(auction.Auction)
	ok, err := m.kvGet(auctionKey(id), a)
	if err != nil || !ok {
		return nil, false, err
	}
	return a, true, nil
}

func (m *Manager) AuctionPut(a *auction.Auction) error {
	if a == nil {
		return errors.New("state: nil auction")
	}
	return m.kvPut(auctionKey(a.ID), a)
}

func (m *Manager) ActiveAuctions() ([]uint64, error) {
	var ids []uint64
	if _, err := m.kvGet(activeAuctionsKey, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (m *Manager) SetActiveAuctions(ids []uint64) error {
	if ids == nil {
		ids = []uint64{}
	}
	return m.kvPut(activeAuctionsKey, ids)
}

func userAuctionKey(debtor [20]byte, assetKey string) []byte {
	return []byte(fmt.Sprintf("%s%x/%s", auctionUserPrefix, debtor, assetKey))
}

func (m *Manager) UserAuctionGet(debtor [20]byte, assetKey string) (uint64, bool, error) {
	var id uint64
	ok, err := m.kvGet(userAuctionKey(debtor, assetKey), &id)
	if err != nil || !ok {
		return 0, false, err
	}
	return id, true, nil
}

func (m *Manager) UserAuctionPut(debtor [20]byte, assetKey string, id uint64) error {
	return m.kvPut(userAuctionKey(debtor, assetKey), id)
}

func commitKey(id [32]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", auctionCommitPrefix, id))
}

func (m *Manager) CommitGet(id [32]byte) (*auction.CommitRecord, bool, error) {
	rec := new(auction.CommitRecord)
	ok, err := m.kvGet(commitKey(id), rec)
	if err != nil || !ok {
		return nil, false, err
	}
	return rec, true, nil
}

func (m *Manager) CommitPut(id [32]byte, rec *auction.CommitRecord) error {
	if rec == nil {
		return errors.New("state: nil commit record")
	}
	return m.kvPut(commitKey(id), rec)
}

func mevKey(auctionID uint64) []byte {
	return []byte(fmt.Sprintf("%s%016x", auctionMevPrefix, auctionID))
}

func (m *Manager) ProtectionGet(auctionID uint64) (*auction.MevProtectionRecord, bool, error) {
	rec := new(auction.MevProtectionRecord)
	ok, err := m.kvGet(mevKey(auctionID), rec)
	if err != nil || !ok {
		return nil, false, err
	}
	return rec, true, nil
}

func (m *Manager) ProtectionPut(auctionID uint64, rec *auction.MevProtectionRecord) error {
	if rec == nil {
		return errors.New("state: nil protection record")
	}
	return m.kvPut(mevKey(auctionID), rec)
}

func (m *Manager) FlashloanGet() (*auction.FlashloanState, error) {
	st := new(auction.FlashloanState)
	if _, err := m.kvGet(flashloanKey, st); err != nil {
		return nil, err
	}
	return st, nil
}

func (m *Manager) FlashloanPut(st *auction.FlashloanState) error {
	if st == nil {
		st = &auction.FlashloanState{}
	}
	return m.kvPut(flashloanKey, st)
}

func addrKey(prefix []byte, addr [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", prefix, addr))
}

func (m *Manager) ReputationGet(addr [20]byte) (uint64, error) {
	var score uint64
	if _, err := m.kvGet(addrKey(reputationPrefix, addr), &score); err != nil {
		return 0, err
	}
	return score, nil
}

func (m *Manager) ReputationPut(addr [20]byte, score uint64) error {
	return m.kvPut(addrKey(reputationPrefix, addr), score)
}

func (m *Manager) ActivityGet(addr [20]byte) (int64, bool, error) {
	var ts int64
	ok, err := m.kvGet(addrKey(activityPrefix, addr), &ts)
	if err != nil || !ok {
		return 0, false, err
	}
	return ts, true, nil
}

func (m *Manager) ActivityPut(addr [20]byte, ts int64) error {
	return m.kvPut(addrKey(activityPrefix, addr), ts)
}

// --- Accounts and asset movement ---

// GetAccount loads an account, defaulting zero balances for fresh addresses.
func (m *Manager) GetAccount(addr [20]byte) (*types.Account, error) {
	acc := new(types.Account)
	if _, err := m.kvGet(addrKey(accountPrefix, addr), acc); err != nil {
		return nil, err
	}
	acc.EnsureDefaults()
	return acc, nil
}

// PutAccount persists an account record.
func (m *Manager) PutAccount(addr [20]byte, acc *types.Account) error {
	if acc == nil {
		return errors.New("state: nil account")
	}
	return m.kvPut(addrKey(accountPrefix, addr), acc)
}

// BalanceOf reports the balance an address holds in the given asset.
func (m *Manager) BalanceOf(addr [20]byte, asset auction.Asset) (*big.Int, error) {
	acc, err := m.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if asset.Native() {
		return new(big.Int).Set(acc.BalanceGUARD), nil
	}
	return new(big.Int).Set(acc.TokenBalance(asset.Key())), nil
}

// Credit adds funds to an address. Used by genesis allocation and tests.
func (m *Manager) Credit(addr [20]byte, asset auction.Asset, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.credit(addr, asset, amount)
}

func (m *Manager) credit(addr [20]byte, asset auction.Asset, amount *big.Int) error {
	acc, err := m.GetAccount(addr)
	if err != nil {
		return err
	}
	if asset.Native() {
		acc.BalanceGUARD = new(big.Int).Add(acc.BalanceGUARD, amount)
	} else {
		bal := acc.TokenBalance(asset.Key())
		acc.TokenBalances[asset.Key()] = new(big.Int).Add(bal, amount)
	}
	return m.PutAccount(addr, acc)
}

func (m *Manager) debit(addr [20]byte, asset auction.Asset, amount *big.Int) error {
	acc, err := m.GetAccount(addr)
	if err != nil {
		return err
	}
	if asset.Native() {
		if acc.BalanceGUARD.Cmp(amount) < 0 {
			return errInsufficientFunds
		}
		acc.BalanceGUARD = new(big.Int).Sub(acc.BalanceGUARD, amount)
	} else {
		bal := acc.TokenBalance(asset.Key())
		if bal.Cmp(amount) < 0 {
			return errInsufficientFunds
		}
		acc.TokenBalances[asset.Key()] = new(big.Int).Sub(bal, amount)
	}
	return m.PutAccount(addr, acc)
}

// PullIn moves amount of asset from the address into the module vault.
func (m *Manager) PullIn(asset auction.Asset, from [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return errors.New("state: invalid amount")
	}
	if amount.Sign() == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.debit(from, asset, amount); err != nil {
		return err
	}
	return m.credit(m.vault, asset, amount)
}

// TransferOut moves amount of asset from the module vault to the address.
func (m *Manager) TransferOut(asset auction.Asset, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return errors.New("state: invalid amount")
	}
	if amount.Sign() == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.debit(m.vault, asset, amount); err != nil {
		return err
	}
	return m.credit(to, asset, amount)
}

// HeldAmount implements the collateral custody read used at auction open:
// seized collateral sits in the vault credited against the debtor's entry.
func (m *Manager) HeldAmount(debtor [20]byte, asset auction.Asset) (*big.Int, error) {
	return m.BalanceOf(debtor, asset)
}

// --- Module pause switchboard ---

func pauseKey(module string) []byte {
	return append(append([]byte{}, modulePausePrefix...), module...)
}

// SetModulePaused persists the pause switch for a module.
func (m *Manager) SetModulePaused(module string, paused bool) error {
	if module == "" {
		return errors.New("state: module name required")
	}
	return m.kvPut(pauseKey(module), paused)
}

// IsPaused reports whether the module's entry points are suspended. Lookup
// failures read as not paused.
func (m *Manager) IsPaused(module string) bool {
	var paused bool
	ok, err := m.kvGet(pauseKey(module), &paused)
	return err == nil && ok && paused
}

// --- Chain height ---

// CurrentHeight returns the persisted block height.
func (m *Manager) CurrentHeight() (uint64, error) { return m.counter(currentHeightKey) }

// SetCurrentHeight persists the block height the engine operates at.
func (m *Manager) SetCurrentHeight(h uint64) error { return m.kvPut(currentHeightKey, h) }
