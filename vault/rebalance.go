// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vault

import (
	"fmt"
	"math/big"

	"github.com/luxfi/geth/common"
)

// RemoveBridgeLiquidity exports above-threshold surplus to another chain
// through the batch executor. The vault's tracked-token balances are
// recorded before the batch and re-validated after it: the primary asset
// must decrease by exactly amount, and no other tracked token may
// decrease. Any deviation aborts the operation.
func (v *Vault) RemoveBridgeLiquidity(caller common.Address, amount *big.Int, actions []CallAction) error {
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
	if len(actions) == 0 {
		return fmt.Errorf("%w: empty bridge batch", ErrZeroAmount)
	}

	// Surplus check comes before any external call is attempted
	if available := v.AvailableAssets(); amount.Cmp(available) > 0 {
		return fmt.Errorf("%w: requested %s, available %s",
			ErrInsufficientLiquidity, amount, available)
	}

	pre := v.snapshotBalances()

	if err := v.executor.Execute(actions); err != nil {
		return fmt.Errorf("bridge batch: %w", err)
	}

	// Exact-delta assertion: the bridge consumed precisely the declared
	// amount of the primary asset, no more and no less
	spent := new(big.Int).Sub(pre[v.cfg.Asset], v.StablecoinBalance())
	if spent.Cmp(amount) != 0 {
		return fmt.Errorf("%w: spent %s, declared %s", ErrInvalidDelta, spent, amount)
	}
	if err := v.checkNoUnexpectedDecrease(pre, v.cfg.Asset); err != nil {
		return err
	}

	v.log.Info("bridge liquidity removed", "amount", amount, "actions", len(actions))
	return nil
}

// RemoveRewardLiquidity pays above-threshold surplus out directly, used
// to route accumulated rewards without an external call batch.
func (v *Vault) RemoveRewardLiquidity(caller common.Address, amount *big.Int, to common.Address) error {
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
	if available := v.AvailableAssets(); amount.Cmp(available) > 0 {
		return fmt.Errorf("%w: requested %s, available %s",
			ErrInsufficientLiquidity, amount, available)
	}

	before := v.StablecoinBalance()
	if err := v.tokens.Transfer(v.cfg.Asset, v.cfg.Address, to, amount); err != nil {
		return fmt.Errorf("reward payout: %w", err)
	}

	spent := new(big.Int).Sub(before, v.StablecoinBalance())
	if spent.Cmp(amount) != 0 {
		return fmt.Errorf("%w: spent %s, declared %s", ErrInvalidDelta, spent, amount)
	}

	v.log.Info("reward liquidity removed", "amount", amount, "to", to)
	return nil
}

// SwapToStables converts up to amountIn of a non-primary token held by
// the vault into the pool asset through a swap batch. The swap must
// produce a strictly positive stablecoin gain and may not consume more
// than the nominal input amount or touch any other tracked token.
func (v *Vault) SwapToStables(caller common.Address, tokenIn common.Address, amountIn *big.Int, actions []CallAction) error {
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
	if amountIn == nil {
		return ErrNilAmount
	}
	if amountIn.Sign() <= 0 {
		return ErrZeroAmount
	}
	if tokenIn == v.cfg.Asset {
		return fmt.Errorf("%w: cannot swap the pool asset into itself", ErrUnsupportedToken)
	}
	if len(actions) == 0 {
		return fmt.Errorf("%w: empty swap batch", ErrZeroAmount)
	}

	preStable := v.StablecoinBalance()
	preInput := v.tokens.BalanceOf(tokenIn, v.cfg.Address)
	pre := v.snapshotBalances()

	if err := v.executor.Execute(actions); err != nil {
		return fmt.Errorf("swap batch: %w", err)
	}

	gain := new(big.Int).Sub(v.StablecoinBalance(), preStable)
	if gain.Sign() <= 0 {
		return fmt.Errorf("%w: delta %s", ErrNoStablecoinGain, gain)
	}

	consumed := new(big.Int).Sub(preInput, v.tokens.BalanceOf(tokenIn, v.cfg.Address))
	if consumed.Cmp(amountIn) > 0 {
		return fmt.Errorf("%w: consumed %s, nominal %s", ErrExcessiveConsumption, consumed, amountIn)
	}

	// The input token is allowed to decrease; everything else is not
	delete(pre, tokenIn)
	if err := v.checkNoUnexpectedDecrease(pre, v.cfg.Asset); err != nil {
		return err
	}

	v.log.Info("swapped to stables", "tokenIn", tokenIn, "consumed", consumed, "gain", gain)
	return nil
}
