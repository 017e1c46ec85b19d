// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package distributor accumulates protocol revenue and splits it
// between the protocol treasury, liquidity providers and the operator
// by basis-point shares. Splits are computed in 256-bit unsigned
// arithmetic; the remainder after the protocol and LP cuts always goes
// to the operator so no dust is stranded.
package distributor

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	log "github.com/luxfi/log"
)

const BasisPoints = 10_000

var (
	ErrInvalidShares      = errors.New("shares exceed 10000 bps")
	ErrZeroAmount         = errors.New("amount must be positive")
	ErrNilAmount          = errors.New("amount must not be nil")
	ErrAmountOverflow     = errors.New("amount exceeds 256 bits")
	ErrClaimExceedsEarned = errors.New("claim exceeds earned balance")
	ErrUnknownParty       = errors.New("unknown party")
)

// Party identifies a revenue share recipient.
type Party uint8

const (
	PartyProtocol Party = iota
	PartyLP
	PartyOperator
	partyCount
)

func (p Party) String() string {
	switch p {
	case PartyProtocol:
		return "protocol"
	case PartyLP:
		return "lp"
	case PartyOperator:
		return "operator"
	default:
		return fmt.Sprintf("party(%d)", uint8(p))
	}
}

// Payer moves tokens out of the collector's account on claim.
type Payer interface {
	Transfer(token, from, to common.Address, amount *big.Int) error
}

// Collector splits deposited revenue and tracks per-party earned
// balances per token.
type Collector struct {
	address common.Address
	payer   Payer
	log     log.Logger

	mu          sync.RWMutex
	protocolBps uint32
	lpBps       uint32

	// party -> token -> earned but unclaimed
	earned [partyCount]map[common.Address]*uint256.Int
}

// validShares rejects share pairs summing past 10000 bps. The sum is
// taken in uint64 so oversized inputs cannot wrap past the check.
func validShares(protocolBps, lpBps uint32) bool {
	return uint64(protocolBps)+uint64(lpBps) <= BasisPoints
}

// NewCollector creates a collector holding funds at address, paying
// claims through payer. protocolBps+lpBps must not exceed 10000; the
// operator share is the remainder.
func NewCollector(address common.Address, payer Payer, protocolBps, lpBps uint32) (*Collector, error) {
	if !validShares(protocolBps, lpBps) {
		return nil, ErrInvalidShares
	}
	c := &Collector{
		address:     address,
		payer:       payer,
		log:         log.NewTestLogger(log.InfoLevel),
		protocolBps: protocolBps,
		lpBps:       lpBps,
	}
	for i := range c.earned {
		c.earned[i] = make(map[common.Address]*uint256.Int)
	}
	return c, nil
}

// SetLogger replaces the collector's logger.
func (c *Collector) SetLogger(logger log.Logger) {
	c.mu.Lock()
	c.log = logger
	c.mu.Unlock()
}

// SetShares updates the split. In-flight earned balances are not
// re-split.
func (c *Collector) SetShares(protocolBps, lpBps uint32) error {
	if !validShares(protocolBps, lpBps) {
		return ErrInvalidShares
	}
	c.mu.Lock()
	c.protocolBps = protocolBps
	c.lpBps = lpBps
	c.mu.Unlock()
	return nil
}

// Split computes the three-way division of value. Protocol and LP take
// their bps cut rounded down; the operator takes the remainder, so the
// parts always sum to value.
func Split(value *uint256.Int, protocolBps, lpBps uint32) (protocol, lp, operator *uint256.Int) {
	if value.IsZero() {
		return uint256.NewInt(0), uint256.NewInt(0), uint256.NewInt(0)
	}

	protocol = new(uint256.Int).Mul(value, uint256.NewInt(uint64(protocolBps)))
	protocol = protocol.Div(protocol, uint256.NewInt(BasisPoints))

	lp = new(uint256.Int).Mul(value, uint256.NewInt(uint64(lpBps)))
	lp = lp.Div(lp, uint256.NewInt(BasisPoints))

	operator = new(uint256.Int).Sub(value, protocol)
	operator = operator.Sub(operator, lp)

	return protocol, lp, operator
}

// Deposit records amount of token as revenue and credits each party's
// earned balance. The tokens themselves must already sit at the
// collector's address.
func (c *Collector) Deposit(token common.Address, amount *big.Int) error {
	if amount == nil {
		return ErrNilAmount
	}
	if amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	value, overflow := uint256.FromBig(amount)
	if overflow {
		return ErrAmountOverflow
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	protocol, lp, operator := Split(value, c.protocolBps, c.lpBps)
	c.credit(PartyProtocol, token, protocol)
	c.credit(PartyLP, token, lp)
	c.credit(PartyOperator, token, operator)

	c.log.Info("revenue deposited", "token", token, "amount", amount,
		"protocol", protocol, "lp", lp, "operator", operator)
	return nil
}

func (c *Collector) credit(party Party, token common.Address, amount *uint256.Int) {
	if amount.IsZero() {
		return
	}
	cur, ok := c.earned[party][token]
	if !ok {
		cur = uint256.NewInt(0)
		c.earned[party][token] = cur
	}
	cur.Add(cur, amount)
}

// Earned returns a party's unclaimed balance of token.
func (c *Collector) Earned(party Party, token common.Address) (*big.Int, error) {
	if party >= partyCount {
		return nil, fmt.Errorf("%w: %d", ErrUnknownParty, party)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if b, ok := c.earned[party][token]; ok {
		return b.ToBig(), nil
	}
	return new(big.Int), nil
}

// Claim pays out up to the party's earned balance of token to the
// given recipient. Over-claims are rejected without mutation.
func (c *Collector) Claim(party Party, token common.Address, amount *big.Int, to common.Address) error {
	if party >= partyCount {
		return fmt.Errorf("%w: %d", ErrUnknownParty, party)
	}
	if amount == nil {
		return ErrNilAmount
	}
	if amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	value, overflow := uint256.FromBig(amount)
	if overflow {
		return ErrAmountOverflow
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	balance, ok := c.earned[party][token]
	if !ok || balance.Lt(value) {
		return fmt.Errorf("%w: party %s token %s", ErrClaimExceedsEarned, party, token)
	}

	balance.Sub(balance, value)
	if err := c.payer.Transfer(token, c.address, to, amount); err != nil {
		balance.Add(balance, value)
		return fmt.Errorf("claim payout: %w", err)
	}

	c.log.Info("revenue claimed", "party", party, "token", token, "amount", amount, "to", to)
	return nil
}
