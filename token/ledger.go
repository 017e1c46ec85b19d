// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package token provides an in-memory multi-token balance ledger with
// ERC20-style transfer and allowance semantics. Amounts are stored as
// 256-bit unsigned integers and overflow is rejected, matching on-chain
// token behavior.
package token

import (
	"errors"
	"math/big"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
)

var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrAmountOverflow        = errors.New("amount exceeds 256 bits")
	ErrNegativeAmount        = errors.New("negative amount")
)

// Ledger tracks balances and allowances for any number of tokens.
// The zero value is not usable; construct with NewLedger.
type Ledger struct {
	mu sync.RWMutex

	// token -> holder -> balance
	balances map[common.Address]map[common.Address]*uint256.Int

	// token -> owner -> spender -> allowance
	allowances map[common.Address]map[common.Address]map[common.Address]*uint256.Int
}

func NewLedger() *Ledger {
	return &Ledger{
		balances:   make(map[common.Address]map[common.Address]*uint256.Int),
		allowances: make(map[common.Address]map[common.Address]map[common.Address]*uint256.Int),
	}
}

func toUint256(amount *big.Int) (*uint256.Int, error) {
	if amount == nil {
		return uint256.NewInt(0), nil
	}
	if amount.Sign() < 0 {
		return nil, ErrNegativeAmount
	}
	v, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, ErrAmountOverflow
	}
	return v, nil
}

func (l *Ledger) balance(token, holder common.Address) *uint256.Int {
	if holders, ok := l.balances[token]; ok {
		if b, ok := holders[holder]; ok {
			return b
		}
	}
	return nil
}

func (l *Ledger) setBalance(token, holder common.Address, v *uint256.Int) {
	holders, ok := l.balances[token]
	if !ok {
		holders = make(map[common.Address]*uint256.Int)
		l.balances[token] = holders
	}
	holders[holder] = v
}

// BalanceOf returns holder's balance of token. Unknown tokens and
// holders read as zero.
func (l *Ledger) BalanceOf(token, holder common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if b := l.balance(token, holder); b != nil {
		return b.ToBig()
	}
	return new(big.Int)
}

// Mint credits amount of token to holder.
func (l *Ledger) Mint(token, holder common.Address, amount *big.Int) error {
	v, err := toUint256(amount)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.balance(token, holder)
	if b == nil {
		b = uint256.NewInt(0)
	}
	sum := new(uint256.Int)
	if _, overflow := sum.AddOverflow(b, v); overflow {
		return ErrAmountOverflow
	}
	l.setBalance(token, holder, sum)
	return nil
}

// Transfer moves amount of token from from to to.
func (l *Ledger) Transfer(token, from, to common.Address, amount *big.Int) error {
	v, err := toUint256(amount)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.move(token, from, to, v)
}

// Approve lets spender move up to amount of owner's token.
func (l *Ledger) Approve(token, owner, spender common.Address, amount *big.Int) error {
	v, err := toUint256(amount)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	owners, ok := l.allowances[token]
	if !ok {
		owners = make(map[common.Address]map[common.Address]*uint256.Int)
		l.allowances[token] = owners
	}
	spenders, ok := owners[owner]
	if !ok {
		spenders = make(map[common.Address]*uint256.Int)
		owners[owner] = spenders
	}
	spenders[spender] = v
	return nil
}

// Allowance returns how much of owner's token spender may still move.
func (l *Ledger) Allowance(token, owner, spender common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if a := l.allowance(token, owner, spender); a != nil {
		return a.ToBig()
	}
	return new(big.Int)
}

func (l *Ledger) allowance(token, owner, spender common.Address) *uint256.Int {
	if owners, ok := l.allowances[token]; ok {
		if spenders, ok := owners[owner]; ok {
			if a, ok := spenders[spender]; ok {
				return a
			}
		}
	}
	return nil
}

// TransferFrom moves amount of token from from to to on spender's
// authority, debiting spender's allowance.
func (l *Ledger) TransferFrom(token, spender, from, to common.Address, amount *big.Int) error {
	v, err := toUint256(amount)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if spender != from {
		a := l.allowance(token, from, spender)
		if a == nil || a.Lt(v) {
			return ErrInsufficientAllowance
		}
		l.allowances[token][from][spender] = new(uint256.Int).Sub(a, v)
	}
	return l.move(token, from, to, v)
}

func (l *Ledger) move(token, from, to common.Address, v *uint256.Int) error {
	fromBal := l.balance(token, from)
	if fromBal == nil || fromBal.Lt(v) {
		return ErrInsufficientBalance
	}

	toBal := l.balance(token, to)
	if toBal == nil {
		toBal = uint256.NewInt(0)
	}
	sum := new(uint256.Int)
	if _, overflow := sum.AddOverflow(toBal, v); overflow {
		return ErrAmountOverflow
	}

	l.setBalance(token, from, new(uint256.Int).Sub(fromBal, v))
	l.setBalance(token, to, sum)
	return nil
}
