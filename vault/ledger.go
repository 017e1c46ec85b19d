// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vault

import (
	"fmt"
	"math/big"

	"github.com/luxfi/geth/common"
)

// ledger holds the pool's aggregate counters. It is the only mutable
// shared state in the vault and is mutated exclusively through the
// primitives below so the accounting invariants stay centrally
// enforced. Callers serialize access; the ledger takes no locks.
type ledger struct {
	// Sum of LP capital. Increases on stake, decreases on unstake.
	totalStakedAssets *big.Int

	// Bps fraction of staked assets that must remain as a buffer,
	// protecting stakers from over-extension.
	rebalanceThreshold uint32

	// Per-category fee buckets. Claimable is always collected-claimed.
	buckets [feeCategoryCount]feeBucket

	// Amounts earmarked for in-flight orders, keyed by 32-byte token id
	reserved map[common.Hash]*big.Int
}

type feeBucket struct {
	collected *big.Int
	claimed   *big.Int
}

func newLedger(rebalanceThreshold uint32) *ledger {
	l := &ledger{
		totalStakedAssets:  big.NewInt(0),
		rebalanceThreshold: rebalanceThreshold,
		reserved:           make(map[common.Hash]*big.Int),
	}
	for i := range l.buckets {
		l.buckets[i] = feeBucket{collected: big.NewInt(0), claimed: big.NewInt(0)}
	}
	return l
}

// addStake increases total staked assets
func (l *ledger) addStake(amount *big.Int) {
	l.totalStakedAssets.Add(l.totalStakedAssets, amount)
}

// subStake decreases total staked assets, rejecting underflow
func (l *ledger) subStake(amount *big.Int) error {
	if amount.Cmp(l.totalStakedAssets) > 0 {
		return fmt.Errorf("%w: requested %s, staked %s",
			ErrInsufficientStake, amount, l.totalStakedAssets)
	}
	l.totalStakedAssets.Sub(l.totalStakedAssets, amount)
	return nil
}

// reserve earmarks amount of token for an in-flight order
func (l *ledger) reserve(token common.Hash, amount *big.Int) {
	cur := l.reserved[token]
	if cur == nil {
		cur = big.NewInt(0)
		l.reserved[token] = cur
	}
	cur.Add(cur, amount)
}

// release returns a reservation made by reserve
func (l *ledger) release(token common.Hash, amount *big.Int) error {
	cur := l.reserved[token]
	if cur == nil || amount.Cmp(cur) > 0 {
		return fmt.Errorf("%w: token %s", ErrReserveUnderflow, token)
	}
	cur.Sub(cur, amount)
	return nil
}

// reservedFor returns the amount currently earmarked for token
func (l *ledger) reservedFor(token common.Hash) *big.Int {
	if cur := l.reserved[token]; cur != nil {
		return new(big.Int).Set(cur)
	}
	return big.NewInt(0)
}

// collectFee credits a fee bucket
func (l *ledger) collectFee(category FeeCategory, amount *big.Int) error {
	if category >= feeCategoryCount {
		return ErrInvalidFeeCategory
	}
	l.buckets[category].collected.Add(l.buckets[category].collected, amount)
	return nil
}

// claimFee debits a fee bucket. Claiming exactly the claimable amount is
// allowed; over-claiming is rejected, never truncated.
func (l *ledger) claimFee(category FeeCategory, amount *big.Int) error {
	if category >= feeCategoryCount {
		return ErrInvalidFeeCategory
	}
	claimable := l.claimable(category)
	if amount.Cmp(claimable) > 0 {
		return fmt.Errorf("%w: requested %s, claimable %s (%s)",
			ErrClaimExceedsCollected, amount, claimable, category)
	}
	l.buckets[category].claimed.Add(l.buckets[category].claimed, amount)
	return nil
}

// uncollectFee undoes a collectFee when a later step of the same
// operation fails
func (l *ledger) uncollectFee(category FeeCategory, amount *big.Int) {
	l.buckets[category].collected.Sub(l.buckets[category].collected, amount)
}

// unclaimFee undoes a claimFee when the payout transfer fails
func (l *ledger) unclaimFee(category FeeCategory, amount *big.Int) {
	l.buckets[category].claimed.Sub(l.buckets[category].claimed, amount)
}

// claimable returns collected - claimed for one category
func (l *ledger) claimable(category FeeCategory) *big.Int {
	b := l.buckets[category]
	return new(big.Int).Sub(b.collected, b.claimed)
}

// claimableTotal sums claimable fees across all categories
func (l *ledger) claimableTotal() *big.Int {
	total := big.NewInt(0)
	for i := range l.buckets {
		total.Add(total, l.claimable(FeeCategory(i)))
	}
	return total
}

// minLiquidity is the amount of the primary asset that must stay in the
// pool: the staker-protection buffer plus claimable fees plus reserved
// in-flight order amounts. Recomputed from live counters on every call.
func (l *ledger) minLiquidity(asset common.Hash) *big.Int {
	buffer := new(big.Int).Mul(l.totalStakedAssets, big.NewInt(int64(l.rebalanceThreshold)))
	buffer.Div(buffer, big.NewInt(BasisPoints))

	buffer.Add(buffer, l.claimableTotal())
	buffer.Add(buffer, l.reservedFor(asset))
	return buffer
}

// availableAssets is the above-threshold surplus: balance minus
// minLiquidity, clamped at zero.
func (l *ledger) availableAssets(asset common.Hash, balance *big.Int) *big.Int {
	available := new(big.Int).Sub(balance, l.minLiquidity(asset))
	if available.Sign() < 0 {
		return big.NewInt(0)
	}
	return available
}
