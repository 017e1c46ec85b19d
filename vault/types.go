// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package vault implements the cross-chain stablecoin liquidity vault:
// a pool of stablecoin collateral staked by liquidity providers, from
// which orchestrators fill cross-chain swap orders, claim fees, and
// rebalance liquidity across chains.
//
// The vault owns the order lifecycle state machine (Nonexistent ->
// Created -> Filled | Reverted), the pool's liquidity accounting, and
// the balance-invariant checks bracketing every external call.
package vault

import (
	"encoding/binary"
	"errors"
	"math/big"

	"github.com/luxfi/geth/common"
	"github.com/zeebo/blake3"
)

// BasisPoints is the denominator for all bps math
const BasisPoints = 10_000

// Roles gating privileged entry points. Checked through the injected
// AccessRegistry on every call.
var (
	RoleAdmin        = RoleID("genius.vault.admin")
	RoleOrchestrator = RoleID("genius.vault.orchestrator")
	RolePauser       = RoleID("genius.vault.pauser")
)

// RoleID derives a 32-byte role identifier from a label
func RoleID(label string) common.Hash {
	h := blake3.New()
	h.Write([]byte(label))
	var id common.Hash
	h.Digest().Read(id[:])
	return id
}

// OrderStatus is the lifecycle state of an order, keyed by order hash.
// Filled and Reverted are terminal.
type OrderStatus uint8

const (
	StatusNonexistent OrderStatus = iota
	StatusCreated
	StatusFilled
	StatusReverted
)

func (s OrderStatus) String() string {
	switch s {
	case StatusNonexistent:
		return "Nonexistent"
	case StatusCreated:
		return "Created"
	case StatusFilled:
		return "Filled"
	case StatusReverted:
		return "Reverted"
	default:
		return "Unknown"
	}
}

// Order is a single cross-chain swap intent. Orders are immutable once
// created and identified solely by the deterministic hash of all fields.
// Principals and assets are 32-byte identifiers so that non-EVM
// destination chains can be addressed; on the local chain the low 20
// bytes hold an address (see AddressToBytes32).
//
// AmountIn includes the fee: the fee is subtracted from AmountIn at
// settlement, never charged on top.
type Order struct {
	Seed         common.Hash // Creator-chosen discriminator
	Trader       common.Hash // Order creator, refunded on revert
	Receiver     common.Hash // Recipient on the destination chain
	TokenIn      common.Hash // Input asset (must be the pool asset)
	TokenOut     common.Hash // Output asset on the destination chain
	AmountIn     *big.Int    // Input amount, fee included
	MinAmountOut *big.Int    // Slippage floor for swap fills
	Fee          *big.Int    // Total fee paid by the trader
	SrcChainID   uint32      // Chain the order was created on
	DestChainID  uint32      // Chain the fill executes on
	FillDeadline uint64      // Unix time bound for filling
}

// Hash computes the order's unique identifier: blake3 over the fixed
// field encoding seed || trader || receiver || tokenIn || tokenOut ||
// amountIn(32) || minAmountOut(32) || fee(32) || srcChain(4) ||
// destChain(4) || fillDeadline(8), amounts big-endian left-padded.
func (o *Order) Hash() common.Hash {
	h := blake3.New()
	h.Write(o.Seed[:])
	h.Write(o.Trader[:])
	h.Write(o.Receiver[:])
	h.Write(o.TokenIn[:])
	h.Write(o.TokenOut[:])
	h.Write(bigTo32(o.AmountIn))
	h.Write(bigTo32(o.MinAmountOut))
	h.Write(bigTo32(o.Fee))

	var chains [8]byte
	binary.BigEndian.PutUint32(chains[:4], o.SrcChainID)
	binary.BigEndian.PutUint32(chains[4:], o.DestChainID)
	h.Write(chains[:])

	var deadline [8]byte
	binary.BigEndian.PutUint64(deadline[:], o.FillDeadline)
	h.Write(deadline[:])

	var id common.Hash
	h.Digest().Read(id[:])
	return id
}

func bigTo32(v *big.Int) []byte {
	buf := make([]byte, 32)
	if v != nil {
		v.FillBytes(buf)
	}
	return buf
}

// AddressToBytes32 widens a local address into the 32-byte identifier
// form used by orders
func AddressToBytes32(addr common.Address) common.Hash {
	var h common.Hash
	copy(h[12:], addr.Bytes())
	return h
}

// Bytes32ToAddress narrows a 32-byte identifier to a local address
func Bytes32ToAddress(id common.Hash) common.Address {
	return common.BytesToAddress(id[12:])
}

// FeeCategory selects one of the vault's fee buckets
type FeeCategory uint8

const (
	FeeProtocol FeeCategory = iota
	FeeLP
	FeeOperator // Covers orchestrator execution costs (base fee)
	FeeInsurance
	feeCategoryCount
)

func (c FeeCategory) String() string {
	switch c {
	case FeeProtocol:
		return "protocol"
	case FeeLP:
		return "lp"
	case FeeOperator:
		return "operator"
	case FeeInsurance:
		return "insurance"
	default:
		return "unknown"
	}
}

// CallAction is one opaque external call in a swap or bridge batch.
// Targets are untrusted; the vault brackets every batch with balance
// checks instead of inspecting calldata.
type CallAction struct {
	Target common.Address // Call target
	Input  []byte         // Opaque calldata
	Value  *big.Int       // Native value to attach
}

// BatchExecutor performs a sequence of external calls atomically: either
// every action is applied or none is. The vault re-validates balance
// invariants after every Execute since targets may run arbitrary code.
type BatchExecutor interface {
	Execute(actions []CallAction) error
}

// TokenLedger is the external token balance ledger (ERC-20 semantics).
// A failed transfer aborts the whole vault operation.
type TokenLedger interface {
	BalanceOf(token, holder common.Address) *big.Int
	Transfer(token, from, to common.Address, amount *big.Int) error
	TransferFrom(token, spender, from, to common.Address, amount *big.Int) error
}

// TransferPermit authorizes the vault to pull Amount of Token from
// Owner. Verified by the injected PermitVerifier before any pull.
type TransferPermit struct {
	Owner    common.Address
	Spender  common.Address
	Token    common.Address
	Amount   *big.Int
	Nonce    uint64
	Deadline uint64
}

// PermitVerifier validates a signed transfer permit. A forged or
// mismatched signature must abort before any state mutation.
type PermitVerifier interface {
	Authorize(permit TransferPermit, signature []byte) error
}

// AccessRegistry answers role checks for privileged entry points
type AccessRegistry interface {
	HasRole(role common.Hash, principal common.Address) bool
}

// Validation errors (caller's fault, no state mutated)
var (
	ErrZeroAmount        = errors.New("amount must be positive")
	ErrNilAmount         = errors.New("amount must not be nil")
	ErrFeeExceedsAmount  = errors.New("fee must be positive and below amountIn")
	ErrOrderTooLarge     = errors.New("amountIn exceeds max order amount")
	ErrUnsupportedToken  = errors.New("token is not the pool asset")
	ErrWrongSourceChain  = errors.New("srcChainId does not match this chain")
	ErrWrongDestChain    = errors.New("destChainId does not match this chain")
	ErrSameChainOrder    = errors.New("source and destination chain must differ")
	ErrInvalidDeadline   = errors.New("fillDeadline outside the allowed window")
	ErrInsufficientFee   = errors.New("fee below the required minimum")
	ErrDeadlinePassed    = errors.New("fillDeadline has passed")
	ErrDeadlineNotPassed = errors.New("revert buffer has not elapsed")
)

// State-conflict errors
var (
	ErrInvalidOrderStatus = errors.New("order not in the expected status")
	ErrOrderExists        = errors.New("order hash already seen")
)

// Invariant-violation errors (detected after an external call)
var (
	ErrInvalidDelta         = errors.New("primary asset balance delta mismatch")
	ErrUnexpectedTokenDelta = errors.New("tracked token balance decreased unexpectedly")
	ErrNoStablecoinGain     = errors.New("swap produced no stablecoin gain")
	ErrExcessiveConsumption = errors.New("swap consumed more input than allowed")
	ErrSlippageExceeded     = errors.New("swap output below minAmountOut")
)

// Authorization errors
var (
	ErrUnauthorized  = errors.New("caller lacks the required role")
	ErrPaused        = errors.New("vault is paused")
	ErrReentrantCall = errors.New("reentrancy detected")
)

// Accounting errors
var (
	ErrThresholdWouldExceed  = errors.New("operation would breach the rebalance threshold")
	ErrInsufficientLiquidity = errors.New("amount exceeds available liquidity")
	ErrInsufficientStake     = errors.New("amount exceeds total staked assets")
	ErrInsufficientBalance   = errors.New("amount exceeds actual token balance")
	ErrClaimExceedsCollected = errors.New("claim exceeds collected minus claimed fees")
	ErrReserveUnderflow      = errors.New("reserved amount underflow")
	ErrInvalidThreshold      = errors.New("rebalance threshold exceeds 10000 bps")
	ErrInvalidFeeCategory    = errors.New("unknown fee category")
)
