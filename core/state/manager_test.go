package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"stableguard/native/auction"
	"stableguard/storage"
)

var (
	vaultAddr  = [20]byte{0x01}
	debtorAddr = [20]byte{0x02}
	bidderAddr = [20]byte{0x03}
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(storage.NewMemDB(), vaultAddr)
}

func TestCountersStartAtZero(t *testing.T) {
	m := newManager(t)

	counter, err := m.AuctionCounter()
	require.NoError(t, err)
	require.Zero(t, counter)

	require.NoError(t, m.SetAuctionCounter(7))
	counter, err = m.AuctionCounter()
	require.NoError(t, err)
	require.Equal(t, uint64(7), counter)

	seq, err := m.CommitSequence()
	require.NoError(t, err)
	require.Zero(t, seq)
	require.NoError(t, m.SetCommitSequence(3))
	seq, err = m.CommitSequence()
	require.NoError(t, err)
	require.Equal(t, uint64(3), seq)
}

func TestAuctionRoundTrip(t *testing.T) {
	m := newManager(t)

	_, ok, err := m.AuctionGet(1)
	require.NoError(t, err)
	require.False(t, ok)

	record := &auction.Auction{
		ID:               1,
		Debtor:           debtorAddr,
		Asset:            auction.TokenAsset("USDX"),
		DebtAmount:       big.NewInt(500),
		CollateralAmount: big.NewInt(1000),
		StartTime:        100,
		Duration:         3600,
		StartPrice:       big.NewInt(1000),
		FloorPrice:       big.NewInt(500),
		Active:           true,
	}
	require.NoError(t, m.AuctionPut(record))

	loaded, ok, err := m.AuctionGet(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, record.Debtor, loaded.Debtor)
	require.Equal(t, "USDX", loaded.Asset.Key())
	require.Zero(t, loaded.StartPrice.Cmp(record.StartPrice))
	require.True(t, loaded.Active)

	require.Error(t, m.AuctionPut(nil))
}

func TestActiveIndexRoundTrip(t *testing.T) {
	m := newManager(t)

	ids, err := m.ActiveAuctions()
	require.NoError(t, err)
	require.Empty(t, ids)

	require.NoError(t, m.SetActiveAuctions([]uint64{3, 1, 2}))
	ids, err = m.ActiveAuctions()
	require.NoError(t, err)
	require.Equal(t, []uint64{3, 1, 2}, ids)

	require.NoError(t, m.SetActiveAuctions(nil))
	ids, err = m.ActiveAuctions()
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestUserIndexPerAsset(t *testing.T) {
	m := newManager(t)

	require.NoError(t, m.UserAuctionPut(debtorAddr, "USDX", 4))
	require.NoError(t, m.UserAuctionPut(debtorAddr, auction.NativeSymbol, 9))

	id, ok, err := m.UserAuctionGet(debtorAddr, "USDX")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(4), id)

	id, ok, err = m.UserAuctionGet(debtorAddr, auction.NativeSymbol)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(9), id)

	_, ok, err = m.UserAuctionGet(bidderAddr, "USDX")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCommitAndProtectionRecords(t *testing.T) {
	m := newManager(t)
	commitID := [32]byte{0xAB}

	_, ok, err := m.CommitGet(commitID)
	require.NoError(t, err)
	require.False(t, ok)

	rec := &auction.CommitRecord{
		CommitHash:     [32]byte{0x01},
		Bidder:         bidderAddr,
		AuctionID:      1,
		CommitTime:     100,
		RevealDeadline: 400,
	}
	require.NoError(t, m.CommitPut(commitID, rec))
	loaded, ok, err := m.CommitGet(commitID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, rec.CommitHash, loaded.CommitHash)
	require.False(t, loaded.Revealed)

	prot := &auction.MevProtectionRecord{
		LastBidTime:    100,
		LastBidBlock:   5,
		LastBidPrice:   big.NewInt(900),
		PriceImpactBps: 1000,
	}
	require.NoError(t, m.ProtectionPut(1, prot))
	loadedProt, ok, err := m.ProtectionGet(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1000), loadedProt.PriceImpactBps)
	require.Zero(t, loadedProt.LastBidPrice.Cmp(big.NewInt(900)))
}

func TestFlashloanSlotDefaults(t *testing.T) {
	m := newManager(t)

	st, err := m.FlashloanGet()
	require.NoError(t, err)
	require.Zero(t, st.Block)

	require.NoError(t, m.FlashloanPut(&auction.FlashloanState{Block: 42}))
	st, err = m.FlashloanGet()
	require.NoError(t, err)
	require.Equal(t, uint64(42), st.Block)
}

func TestBalanceMovement(t *testing.T) {
	m := newManager(t)
	native := auction.NativeAsset()
	token := auction.TokenAsset("USDX")

	require.NoError(t, m.Credit(bidderAddr, native, big.NewInt(1000)))
	require.NoError(t, m.Credit(vaultAddr, token, big.NewInt(500)))

	bal, err := m.BalanceOf(bidderAddr, native)
	require.NoError(t, err)
	require.Zero(t, bal.Cmp(big.NewInt(1000)))

	// PullIn moves bidder -> vault.
	require.NoError(t, m.PullIn(native, bidderAddr, big.NewInt(400)))
	bal, _ = m.BalanceOf(bidderAddr, native)
	require.Zero(t, bal.Cmp(big.NewInt(600)))
	bal, _ = m.BalanceOf(vaultAddr, native)
	require.Zero(t, bal.Cmp(big.NewInt(400)))

	// Overdrafts are rejected without partial effect.
	require.Error(t, m.PullIn(native, bidderAddr, big.NewInt(601)))
	bal, _ = m.BalanceOf(bidderAddr, native)
	require.Zero(t, bal.Cmp(big.NewInt(600)))

	// TransferOut moves vault -> recipient, tokens kept separate.
	require.NoError(t, m.TransferOut(token, bidderAddr, big.NewInt(200)))
	bal, _ = m.BalanceOf(bidderAddr, token)
	require.Zero(t, bal.Cmp(big.NewInt(200)))
	require.Error(t, m.TransferOut(token, bidderAddr, big.NewInt(301)))

	// Zero-amount legs are no-ops.
	require.NoError(t, m.TransferOut(token, bidderAddr, big.NewInt(0)))
	require.Error(t, m.TransferOut(token, bidderAddr, nil))
}

func TestReputationAndActivity(t *testing.T) {
	m := newManager(t)

	score, err := m.ReputationGet(bidderAddr)
	require.NoError(t, err)
	require.Zero(t, score)
	require.NoError(t, m.ReputationPut(bidderAddr, 12))
	score, err = m.ReputationGet(bidderAddr)
	require.NoError(t, err)
	require.Equal(t, uint64(12), score)

	_, ok, err := m.ActivityGet(bidderAddr)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, m.ActivityPut(bidderAddr, 777))
	ts, ok, err := m.ActivityGet(bidderAddr)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(777), ts)
}

func TestModulePauseSwitch(t *testing.T) {
	m := newManager(t)

	require.False(t, m.IsPaused("auction"))
	require.Error(t, m.SetModulePaused("", true))

	require.NoError(t, m.SetModulePaused("auction", true))
	require.True(t, m.IsPaused("auction"))
	require.False(t, m.IsPaused("other"))

	require.NoError(t, m.SetModulePaused("auction", false))
	require.False(t, m.IsPaused("auction"))
}

func TestChainHeightPersistence(t *testing.T) {
	m := newManager(t)

	h, err := m.CurrentHeight()
	require.NoError(t, err)
	require.Zero(t, h)
	require.NoError(t, m.SetCurrentHeight(55))
	h, err = m.CurrentHeight()
	require.NoError(t, err)
	require.Equal(t, uint64(55), h)
}
