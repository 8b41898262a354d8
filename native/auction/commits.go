package auction

import (
	"encoding/binary"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	nativecommon "stableguard/native/common"
)

// ComputeCommitHash derives the 256-bit commitment a bidder submits ahead of
// a reveal: keccak256 over bidder, auction id, the ceiling price and a secret
// nonce. Reveals recompute this exact preimage.
func ComputeCommitHash(bidder [20]byte, auctionID uint64, maxPrice *big.Int, nonce [32]byte) [32]byte {
	var idBuf [8]byte
	binary.BigEndian.PutUint64(idBuf[:], auctionID)
	price := big.NewInt(0)
	if maxPrice != nil {
		price = maxPrice
	}
	digest := ethcrypto.Keccak256(bidder[:], idBuf[:], price.Bytes(), nonce[:])
	var out [32]byte
	copy(out[:], digest)
	return out
}

// commitID derives the registry key for a commitment. A global monotonically
// increasing sequence is hashed in so two commits from the same bidder for
// the same auction within one timestamp can never collide and overwrite.
func commitID(bidder [20]byte, auctionID, seq uint64) [32]byte {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], auctionID)
	binary.BigEndian.PutUint64(buf[8:], seq)
	digest := ethcrypto.Keccak256(bidder[:], buf[:])
	var out [32]byte
	copy(out[:], digest)
	return out
}

// Commit stores a hashed bid commitment against an active auction and opens
// its reveal window.
func (e *Engine) Commit(bidder [20]byte, auctionID uint64, hash [32]byte) ([32]byte, error) {
	if e == nil || e.state == nil {
		return [32]byte{}, errNilState
	}
	if err := e.enter(); err != nil {
		return [32]byte{}, err
	}
	defer e.exit()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return [32]byte{}, err
	}
	if isZeroAddress(bidder) || hash == ([32]byte{}) {
		return [32]byte{}, ErrInvalidCommit
	}
	a, ok, err := e.state.AuctionGet(auctionID)
	if err != nil {
		return [32]byte{}, err
	}
	if !ok || !a.Active {
		return [32]byte{}, ErrInvalidCommit
	}

	seq, err := e.state.CommitSequence()
	if err != nil {
		return [32]byte{}, err
	}
	seq++
	if err := e.state.SetCommitSequence(seq); err != nil {
		return [32]byte{}, err
	}

	now := e.now()
	id := commitID(bidder, auctionID, seq)
	rec := &CommitRecord{
		CommitHash:     hash,
		Bidder:         bidder,
		AuctionID:      auctionID,
		CommitTime:     now,
		RevealDeadline: now + RevealDuration,
	}
	if err := e.state.CommitPut(id, rec); err != nil {
		return [32]byte{}, err
	}
	e.emit(NewCommitRecordedEvent(id, rec))
	return id, nil
}

// verifyAndConsumeReveal enforces the reveal invariants: a record is consumed
// at most once, only inside [commitTime+CommitDuration, revealDeadline], and
// only when the recomputed commitment matches the stored hash.
func (e *Engine) verifyAndConsumeReveal(id [32]byte, bidder [20]byte, auctionID uint64, maxPrice *big.Int, nonce [32]byte) error {
	rec, ok, err := e.state.CommitGet(id)
	if err != nil {
		return err
	}
	if !ok || rec.Revealed {
		return ErrInvalidCommit
	}
	now := e.now()
	if now < rec.CommitTime+CommitDuration {
		return ErrRevealTooEarly
	}
	if now > rec.RevealDeadline {
		return ErrRevealExpired
	}
	if ComputeCommitHash(bidder, auctionID, maxPrice, nonce) != rec.CommitHash {
		return ErrHashMismatch
	}
	rec.Revealed = true
	return e.state.CommitPut(id, rec)
}

// Reveal discloses a commitment and runs the revealed ceiling price through
// the same protection gate and settlement path as a direct bid. The
// commitment is consumed even when the downstream bid fails; the blind
// window has served its purpose by then.
func (e *Engine) Reveal(bidder [20]byte, id [32]byte, auctionID uint64, maxPrice *big.Int, nonce [32]byte, payment *big.Int) (*Settlement, error) {
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
	if isZeroAddress(bidder) || maxPrice == nil || maxPrice.Sign() <= 0 {
		return nil, ErrInvalidParameters
	}
	if payment == nil {
		payment = big.NewInt(0)
	}

	if err := e.verifyAndConsumeReveal(id, bidder, auctionID, maxPrice, nonce); err != nil {
		return nil, err
	}
	e.emit(NewRevealRecordedEvent(id, bidder, auctionID, maxPrice))

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
	settlement, err := e.executeBid(a, bidder, maxPrice, payment)
	if err != nil {
		return nil, err
	}
	// As on the direct path, the settlement outranks its bookkeeping.
	if err := e.recordProtectedBid(a, bidder, settlement.Price); err != nil {
		e.emit(NewProtectionRecordFailedEvent(a.ID, bidder, err))
	}
	e.emit(NewBidSettledEvent(settlement))
	return settlement, nil
}
