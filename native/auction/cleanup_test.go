package auction

import (
	"errors"
	"math/big"
	"testing"
)

func TestCleanExpiredBatch(t *testing.T) {
	env := newTestEnv(t)

	// Three auctions expire, one settles, one stays live under a longer
	// window configured later.
	a := env.openAuction(t, NativeAsset(), 1, 1000)
	b := env.openAuction(t, NativeAsset(), 1, 1000)
	c := env.openAuction(t, NativeAsset(), 1, 1000)
	settled := env.openAuction(t, NativeAsset(), 1, 1000)
	if _, err := env.engine.Bid(bidderAddr, settled, big.NewInt(1000), big.NewInt(1000)); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if err := env.engine.UpdateConfig(ownerAddr, Config{DurationSeconds: 100_000, MinPriceFactorBps: 5000, LiquidationBonusBps: 500}); err != nil {
		t.Fatalf("update config: %v", err)
	}
	live := env.openAuction(t, NativeAsset(), 1, 1000)

	env.now += 3601

	before := env.state.balance(otherAddr, NativeAsset())
	cleaned, paid, err := env.engine.CleanExpired(otherAddr, []uint64{a, b, c, settled, live, 999})
	if err != nil {
		t.Fatalf("clean: %v", err)
	}
	if cleaned != 3 {
		t.Fatalf("expected 3 cleaned, got %d", cleaned)
	}
	want := new(big.Int).Mul(big.NewInt(3), IncentivePerCleanup)
	if paid.Cmp(want) != 0 {
		t.Fatalf("expected payout %s, got %s", want, paid)
	}
	after := env.state.balance(otherAddr, NativeAsset())
	if new(big.Int).Sub(after, before).Cmp(want) != 0 {
		t.Fatalf("caller not credited the incentive")
	}

	for _, id := range []uint64{a, b, c} {
		rec, ok := env.engine.GetAuction(id)
		if !ok || rec.Active {
			t.Fatalf("auction %d should be closed", id)
		}
	}
	liveRec, _ := env.engine.GetAuction(live)
	if !liveRec.Active {
		t.Fatalf("live auction must not be touched")
	}
	if !env.emitted.has(EventTypeAuctionExpired) || !env.emitted.has(EventTypeAuctionCleaned) {
		t.Fatalf("expected expiry and cleanup events, saw %v", env.emitted.typesSeen())
	}
}

func TestCleanExpiredNothingEligible(t *testing.T) {
	env := newTestEnv(t)
	id := env.openAuction(t, NativeAsset(), 1, 1000)

	cleaned, paid, err := env.engine.CleanExpired(otherAddr, []uint64{id, 999})
	if err != nil {
		t.Fatalf("clean: %v", err)
	}
	if cleaned != 0 || paid.Sign() != 0 {
		t.Fatalf("expected no-op cleanup, got cleaned=%d paid=%s", cleaned, paid)
	}
	if got := env.state.balance(otherAddr, NativeAsset()); got.Sign() != 0 {
		t.Fatalf("no reward expected, got %s", got)
	}
}

func TestCleanExpiredRequiresCaller(t *testing.T) {
	env := newTestEnv(t)
	if _, _, err := env.engine.CleanExpired([20]byte{}, nil); !errors.Is(err, ErrInvalidParameters) {
		t.Fatalf("expected ErrInvalidParameters, got %v", err)
	}
}

func TestCancelExpired(t *testing.T) {
	env := newTestEnv(t)
	id := env.openAuction(t, NativeAsset(), 1, 1000)

	if err := env.engine.CancelExpired(otherAddr, id); !errors.Is(err, ErrAuctionNotExpired) {
		t.Fatalf("live auction: expected ErrAuctionNotExpired, got %v", err)
	}
	if err := env.engine.CancelExpired(otherAddr, 999); !errors.Is(err, ErrAuctionInactiveOrExpired) {
		t.Fatalf("unknown auction: expected ErrAuctionInactiveOrExpired, got %v", err)
	}

	env.now += DefaultConfig().DurationSeconds + 1
	if err := env.engine.CancelExpired(otherAddr, id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := env.state.balance(otherAddr, NativeAsset()); got.Cmp(IncentivePerCleanup) != 0 {
		t.Fatalf("expected single incentive payout, got %s", got)
	}

	// Second attempt finds the auction already closed.
	if err := env.engine.CancelExpired(otherAddr, id); !errors.Is(err, ErrAuctionInactiveOrExpired) {
		t.Fatalf("expected ErrAuctionInactiveOrExpired on closed auction, got %v", err)
	}
}
