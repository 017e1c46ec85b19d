// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vault

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/luxfi/database"
	"github.com/luxfi/geth/common"
	log "github.com/luxfi/log"

	"github.com/Genius-Foundation/genius-contracts-sub002/fees"
)

// Config is the vault's static deployment configuration
type Config struct {
	ChainID uint32 // Chain this vault is deployed on

	// Address is the vault's own account in the token ledger
	Address common.Address

	// Asset is the primary stablecoin backing the pool
	Asset common.Address

	// TrackedTokens are additional tokens whose balances are bracketed
	// around external call batches. Asset is always tracked.
	TrackedTokens []common.Address

	// RebalanceThreshold is the staker-protection buffer in bps
	RebalanceThreshold uint32

	MaxOrderAmount *big.Int // Per-order amountIn cap
	MaxOrderTime   uint64   // Max seconds between creation and fillDeadline
	RevertBuffer   uint64   // Grace period after fillDeadline before revert

	// RevertFeeBps is the slice of the order fee retained by the
	// protocol when an order reverts
	RevertFeeBps uint32

	// LPFeeBps splits the non-base, non-insurance remainder of an order
	// fee between LP and protocol buckets at settlement
	LPFeeBps uint32
}

// Vault is the cross-chain stablecoin liquidity pool. All value-moving
// operations are serialized by an explicit reentrancy guard; an external
// callee re-entering the vault mid-operation is rejected, not blocked.
//
// The guard, not the mutex, serializes operations: ledger counters are
// mutated only while the guard is held, mirroring the one-call-at-a-time
// execution of the contract host. mu covers the guard and pause flags
// and the order table, keeping the read-only views safe against a
// concurrent commit; a view that must not observe an operation's
// intermediate counters has to be called outside any in-flight
// operation, as on chain.
type Vault struct {
	cfg  Config
	calc *fees.Calculator

	tokens   TokenLedger
	executor BatchExecutor
	permits  PermitVerifier
	acl      AccessRegistry

	ledger *ledger
	orders map[common.Hash]OrderStatus

	paused bool
	locked bool

	db  database.Database
	log log.Logger

	// now is the clock; replaced in tests
	now func() uint64

	mu sync.RWMutex
}

// NewVault wires a vault from its collaborators. If db is nil the vault
// keeps all state in memory only; otherwise counters and order statuses
// are loaded from db and written through on every committed operation.
func NewVault(
	cfg Config,
	calc *fees.Calculator,
	tokens TokenLedger,
	executor BatchExecutor,
	permits PermitVerifier,
	acl AccessRegistry,
	db database.Database,
) (*Vault, error) {
	if cfg.RebalanceThreshold > BasisPoints {
		return nil, ErrInvalidThreshold
	}
	if cfg.RevertFeeBps > BasisPoints || cfg.LPFeeBps > BasisPoints {
		return nil, fmt.Errorf("%w: fee split", ErrInvalidThreshold)
	}
	if cfg.MaxOrderAmount == nil || cfg.MaxOrderAmount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: maxOrderAmount", ErrZeroAmount)
	}

	v := &Vault{
		cfg:      cfg,
		calc:     calc,
		tokens:   tokens,
		executor: executor,
		permits:  permits,
		acl:      acl,
		ledger:   newLedger(cfg.RebalanceThreshold),
		orders:   make(map[common.Hash]OrderStatus),
		db:       db,
		log:      log.NewTestLogger(log.InfoLevel),
		now:      func() uint64 { return uint64(time.Now().Unix()) },
	}

	if db != nil {
		if err := v.loadState(); err != nil {
			return nil, fmt.Errorf("load vault state: %w", err)
		}
	}
	return v, nil
}

// SetLogger replaces the vault's logger
func (v *Vault) SetLogger(logger log.Logger) {
	v.mu.Lock()
	v.log = logger
	v.mu.Unlock()
}

// SetClock replaces the vault's time source. Deadline checks read the
// clock once per operation.
func (v *Vault) SetClock(now func() uint64) {
	v.mu.Lock()
	v.now = now
	v.mu.Unlock()
}

// assetID is the pool asset in 32-byte order-identifier form
func (v *Vault) assetID() common.Hash {
	return AddressToBytes32(v.cfg.Asset)
}

// trackedTokens returns the asset plus configured tracked tokens
func (v *Vault) trackedTokens() []common.Address {
	tokens := make([]common.Address, 0, len(v.cfg.TrackedTokens)+1)
	tokens = append(tokens, v.cfg.Asset)
	for _, t := range v.cfg.TrackedTokens {
		if t != v.cfg.Asset {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

// acquire takes the reentrancy guard. Every operation that moves value
// or mutates counters holds the guard for its full duration, so a
// reentrant call from an external callee observes locked=true and is
// rejected instead of interleaving.
func (v *Vault) acquire() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.locked {
		return ErrReentrantCall
	}
	v.locked = true
	return nil
}

func (v *Vault) releaseGuard() {
	v.mu.Lock()
	v.locked = false
	v.mu.Unlock()
}

// requireRole gates a privileged entry point
func (v *Vault) requireRole(role common.Hash, caller common.Address) error {
	if v.acl == nil || !v.acl.HasRole(role, caller) {
		return fmt.Errorf("%w: %s", ErrUnauthorized, caller)
	}
	return nil
}

// requireNotPaused is the first guard of every value-moving operation
func (v *Vault) requireNotPaused() error {
	if v.paused {
		return ErrPaused
	}
	return nil
}

// Pause halts all value-moving operations
func (v *Vault) Pause(caller common.Address) error {
	if err := v.requireRole(RolePauser, caller); err != nil {
		return err
	}
	v.mu.Lock()
	v.paused = true
	v.mu.Unlock()
	v.log.Info("vault paused", "by", caller)
	return nil
}

// Unpause resumes operations
func (v *Vault) Unpause(caller common.Address) error {
	if err := v.requireRole(RolePauser, caller); err != nil {
		return err
	}
	v.mu.Lock()
	v.paused = false
	v.mu.Unlock()
	v.log.Info("vault unpaused", "by", caller)
	return nil
}

// Paused reports whether value-moving operations are halted
func (v *Vault) Paused() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.paused
}

// SetRebalanceThreshold updates the staker-protection buffer
func (v *Vault) SetRebalanceThreshold(caller common.Address, bps uint32) error {
	if err := v.requireRole(RoleAdmin, caller); err != nil {
		return err
	}
	if bps > BasisPoints {
		return ErrInvalidThreshold
	}

	v.mu.Lock()
	v.ledger.rebalanceThreshold = bps
	err := v.storeCounters()
	v.mu.Unlock()
	return err
}

// StablecoinBalance is the vault's actual primary-asset balance
func (v *Vault) StablecoinBalance() *big.Int {
	return v.tokens.BalanceOf(v.cfg.Asset, v.cfg.Address)
}

// TotalStakedAssets returns the aggregate LP capital counter
func (v *Vault) TotalStakedAssets() *big.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return new(big.Int).Set(v.ledger.totalStakedAssets)
}

// MinLiquidity is the primary-asset amount that must remain pooled.
// Recomputed from live counters on every call, never cached.
func (v *Vault) MinLiquidity() *big.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.ledger.minLiquidity(v.assetID())
}

// AvailableAssets is the above-threshold surplus spendable by
// rebalancing and fill operations, clamped at zero.
func (v *Vault) AvailableAssets() *big.Int {
	balance := v.StablecoinBalance()
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.ledger.availableAssets(v.assetID(), balance)
}

// ClaimableFees returns collected minus claimed for one category
func (v *Vault) ClaimableFees(category FeeCategory) *big.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.ledger.claimable(category)
}

// ReservedAssets returns the amount earmarked for in-flight orders in
// the primary asset
func (v *Vault) ReservedAssets() *big.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.ledger.reservedFor(v.assetID())
}

// Stake pulls amount of the pool asset from staker and credits the
// staked counter. Staking only increases the cushion, so no threshold
// check applies.
func (v *Vault) Stake(staker common.Address, amount *big.Int) error {
	if err := v.acquire(); err != nil {
		return err
	}
	defer v.releaseGuard()

	if err := v.requireNotPaused(); err != nil {
		return err
	}
	if amount == nil {
		return ErrNilAmount
	}
	if amount.Sign() <= 0 {
		return ErrZeroAmount
	}

	if err := v.tokens.TransferFrom(v.cfg.Asset, v.cfg.Address, staker, v.cfg.Address, amount); err != nil {
		return fmt.Errorf("stake transfer: %w", err)
	}

	v.ledger.addStake(amount)
	if err := v.storeCounters(); err != nil {
		return err
	}

	v.log.Info("stake", "staker", staker, "amount", amount,
		"totalStaked", v.ledger.totalStakedAssets)
	return nil
}

// Unstake debits the staked counter and pushes tokens back to the
// staker. The counter is decremented before the transfer so a reentrant
// callee cannot double-spend against a stale counter.
func (v *Vault) Unstake(staker common.Address, amount *big.Int) error {
	if err := v.acquire(); err != nil {
		return err
	}
	defer v.releaseGuard()

	if err := v.requireNotPaused(); err != nil {
		return err
	}
	if amount == nil {
		return ErrNilAmount
	}
	if amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	if amount.Cmp(v.StablecoinBalance()) > 0 {
		return fmt.Errorf("%w: requested %s", ErrInsufficientBalance, amount)
	}

	if err := v.ledger.subStake(amount); err != nil {
		return err
	}

	if err := v.tokens.Transfer(v.cfg.Asset, v.cfg.Address, staker, amount); err != nil {
		// Transfer failed after the decrement: restore the counter
		v.ledger.addStake(amount)
		return fmt.Errorf("unstake transfer: %w", err)
	}

	if err := v.storeCounters(); err != nil {
		return err
	}

	v.log.Info("unstake", "staker", staker, "amount", amount,
		"totalStaked", v.ledger.totalStakedAssets)
	return nil
}

// ClaimFees pays out claimable fees from one category. Claiming exactly
// the claimable amount zeroes the bucket; over-claims are rejected.
func (v *Vault) ClaimFees(caller common.Address, category FeeCategory, amount *big.Int, to common.Address) error {
	if err := v.requireRole(RoleOrchestrator, caller); err != nil {
		return err
	}
	if err := v.acquire(); err != nil {
		return err
	}
	defer v.releaseGuard()

	if err := v.requireNotPaused(); err != nil {
		return err
	}
	if amount == nil {
		return ErrNilAmount
	}
	if amount.Sign() <= 0 {
		return ErrZeroAmount
	}

	if err := v.ledger.claimFee(category, amount); err != nil {
		return err
	}

	if err := v.tokens.Transfer(v.cfg.Asset, v.cfg.Address, to, amount); err != nil {
		v.ledger.unclaimFee(category, amount)
		return fmt.Errorf("fee payout: %w", err)
	}

	if err := v.storeCounters(); err != nil {
		return err
	}

	v.log.Info("fees claimed", "category", category, "amount", amount, "to", to)
	return nil
}
