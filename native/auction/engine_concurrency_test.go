package auction

import (
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"
)

// gatedTransfers parks the first payment pull until released, holding the
// engine mid-settlement so another goroutine can contend for entry.
type gatedTransfers struct {
	*mockTransfers
	reached chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedTransfers) PullIn(asset Asset, from [20]byte, amount *big.Int) error {
	g.once.Do(func() {
		close(g.reached)
		<-g.release
	})
	return g.mockTransfers.PullIn(asset, from, amount)
}

// reentrantTransfers calls back into the engine from inside the payment pull,
// the way a misbehaving transfer hook would.
type reentrantTransfers struct {
	*mockTransfers
	engine *Engine
	target uint64
	nested error
	fired  bool
}

func (r *reentrantTransfers) PullIn(asset Asset, from [20]byte, amount *big.Int) error {
	if !r.fired {
		r.fired = true
		_, r.nested = r.engine.Bid(from, r.target, big.NewInt(1000), big.NewInt(1000))
	}
	return r.mockTransfers.PullIn(asset, from, amount)
}

func TestConcurrentBiddersSerialize(t *testing.T) {
	env := newTestEnv(t)
	env.state.setBalance(otherAddr, NativeAsset(), big.NewInt(1_000_000))
	first := env.openAuction(t, NativeAsset(), 1, 1000)
	second := env.openAuction(t, NativeAsset(), 1, 1000)

	gate := &gatedTransfers{mockTransfers: env.transfers, reached: make(chan struct{}), release: make(chan struct{})}
	env.engine.SetTransfers(gate)

	firstDone := make(chan error, 1)
	go func() {
		_, err := env.engine.Bid(bidderAddr, first, big.NewInt(1000), big.NewInt(1000))
		firstDone <- err
	}()
	<-gate.reached

	secondDone := make(chan error, 1)
	go func() {
		_, err := env.engine.Bid(otherAddr, second, big.NewInt(1000), big.NewInt(1000))
		secondDone <- err
	}()

	// An independent bidder queues behind the in-flight settlement instead
	// of being bounced with a reentrancy error.
	select {
	case err := <-secondDone:
		t.Fatalf("second bid finished while the first held the engine: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(gate.release)
	if err := <-firstDone; err != nil {
		t.Fatalf("first bid: %v", err)
	}
	if err := <-secondDone; err != nil {
		t.Fatalf("second bid: %v", err)
	}
	for _, id := range []uint64{first, second} {
		if a, ok := env.engine.GetAuction(id); !ok || a.Active {
			t.Fatalf("auction %d should have settled", id)
		}
	}
}

func TestConcurrentSameAuctionSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	env.state.setBalance(otherAddr, NativeAsset(), big.NewInt(1_000_000))
	id := env.openAuction(t, NativeAsset(), 1, 1000)

	gate := &gatedTransfers{mockTransfers: env.transfers, reached: make(chan struct{}), release: make(chan struct{})}
	env.engine.SetTransfers(gate)

	winner := make(chan error, 1)
	go func() {
		_, err := env.engine.Bid(bidderAddr, id, big.NewInt(1000), big.NewInt(1000))
		winner <- err
	}()
	<-gate.reached

	loser := make(chan error, 1)
	go func() {
		_, err := env.engine.Bid(otherAddr, id, big.NewInt(1000), big.NewInt(1000))
		loser <- err
	}()

	close(gate.release)
	if err := <-winner; err != nil {
		t.Fatalf("winning bid: %v", err)
	}
	if err := <-loser; !errors.Is(err, ErrAuctionInactiveOrExpired) {
		t.Fatalf("losing bid: expected ErrAuctionInactiveOrExpired, got %v", err)
	}
}

func TestTransferCallbackReentryRejected(t *testing.T) {
	env := newTestEnv(t)
	first := env.openAuction(t, NativeAsset(), 1, 1000)
	second := env.openAuction(t, NativeAsset(), 1, 1000)

	rt := &reentrantTransfers{mockTransfers: env.transfers, engine: env.engine, target: second}
	env.engine.SetTransfers(rt)

	if _, err := env.engine.Bid(bidderAddr, first, big.NewInt(1000), big.NewInt(1000)); err != nil {
		t.Fatalf("outer bid: %v", err)
	}
	if !errors.Is(rt.nested, ErrReentrantCall) {
		t.Fatalf("nested call: expected ErrReentrantCall, got %v", rt.nested)
	}
	if a, ok := env.engine.GetAuction(second); !ok || !a.Active {
		t.Fatalf("nested call must not settle")
	}
}

func TestBlockHeightAdvancesDuringBids(t *testing.T) {
	env := newTestEnv(t)
	env.state.setBalance(vaultAddr, NativeAsset(), new(big.Int).Mul(PriceScale, big.NewInt(100)))

	// Mirrors the daemon's height ticker running next to live bids; run
	// under the race detector this pins both sides to the engine lock.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for h := uint64(101); h <= 400; h++ {
			env.engine.SetBlockHeight(h)
		}
	}()

	for i := 0; i < 10; i++ {
		id := env.openAuction(t, NativeAsset(), 1, 1000)
		if _, err := env.engine.Bid(bidderAddr, id, big.NewInt(1000), big.NewInt(1000)); err != nil {
			t.Fatalf("bid %d: %v", i, err)
		}
		env.now += MinBidDelay
	}
	<-done
}
