// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vault

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/luxfi/geth/common"
)

// CreateOrder records a new cross-chain swap order on its source chain
// and pulls amountIn from the trader under a signed transfer permit.
// The full amountIn (fee included) is reserved until the order leaves
// Created; the fee component moves to the claimable buckets only at
// mark-filled or revert time.
func (v *Vault) CreateOrder(order Order, permitSig []byte) error {
	if err := v.acquire(); err != nil {
		return err
	}
	defer v.releaseGuard()

	if err := v.requireNotPaused(); err != nil {
		return err
	}
	if err := v.validateNewOrder(&order); err != nil {
		return err
	}

	hash := order.Hash()
	status, err := v.orderStatus(hash)
	if err != nil {
		return err
	}
	if status != StatusNonexistent {
		return fmt.Errorf("%w: %s is %s", ErrOrderExists, hash, status)
	}

	// Authorize then pull. A forged permit aborts before any mutation.
	// The nonce is derived from the order hash so every order binds a
	// distinct permit and a spent permit cannot be replayed.
	trader := Bytes32ToAddress(order.Trader)
	permit := TransferPermit{
		Owner:    trader,
		Spender:  v.cfg.Address,
		Token:    v.cfg.Asset,
		Amount:   order.AmountIn,
		Nonce:    binary.BigEndian.Uint64(hash[:8]),
		Deadline: order.FillDeadline,
	}
	if err := v.permits.Authorize(permit, permitSig); err != nil {
		return fmt.Errorf("permit: %w", err)
	}
	if err := v.tokens.TransferFrom(v.cfg.Asset, v.cfg.Address, trader, v.cfg.Address, order.AmountIn); err != nil {
		return fmt.Errorf("order deposit: %w", err)
	}

	v.ledger.reserve(order.TokenIn, order.AmountIn)
	if err := v.commitOrder(hash, StatusCreated); err != nil {
		return err
	}

	v.log.Info("order created", "hash", hash, "trader", trader,
		"amountIn", order.AmountIn, "fee", order.Fee, "dest", order.DestChainID)
	return nil
}

// validateNewOrder enforces the creation guards
func (v *Vault) validateNewOrder(order *Order) error {
	if order.AmountIn == nil || order.Fee == nil || order.MinAmountOut == nil {
		return ErrNilAmount
	}
	if order.AmountIn.Sign() <= 0 {
		return ErrZeroAmount
	}
	if order.Fee.Sign() <= 0 || order.Fee.Cmp(order.AmountIn) >= 0 {
		return fmt.Errorf("%w: fee %s, amountIn %s", ErrFeeExceedsAmount, order.Fee, order.AmountIn)
	}
	if order.AmountIn.Cmp(v.cfg.MaxOrderAmount) > 0 {
		return fmt.Errorf("%w: %s > %s", ErrOrderTooLarge, order.AmountIn, v.cfg.MaxOrderAmount)
	}
	if order.TokenIn != v.assetID() {
		return fmt.Errorf("%w: %s", ErrUnsupportedToken, order.TokenIn)
	}
	if order.SrcChainID != v.cfg.ChainID {
		return fmt.Errorf("%w: got %d, this chain is %d", ErrWrongSourceChain, order.SrcChainID, v.cfg.ChainID)
	}
	if order.DestChainID == v.cfg.ChainID {
		return fmt.Errorf("%w: %d", ErrSameChainOrder, order.DestChainID)
	}

	now := v.now()
	if order.FillDeadline <= now || order.FillDeadline > now+v.cfg.MaxOrderTime {
		return fmt.Errorf("%w: deadline %d, now %d, max %d",
			ErrInvalidDeadline, order.FillDeadline, now, now+v.cfg.MaxOrderTime)
	}

	required := v.calc.ComputeFees(v.cfg.Asset, order.AmountIn, order.DestChainID)
	if order.Fee.Cmp(required.TotalFee) < 0 {
		return fmt.Errorf("%w: provided %s, required %s", ErrInsufficientFee, order.Fee, required.TotalFee)
	}
	return nil
}

// MarkOrderFilled settles a Created order on its source chain after the
// orchestrator has executed the fill on the destination chain. The
// reservation is released and the order fee becomes claimable; the
// remaining amountIn stays pooled as cross-chain inventory.
func (v *Vault) MarkOrderFilled(caller common.Address, order Order) error {
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
	if order.SrcChainID != v.cfg.ChainID {
		return fmt.Errorf("%w: got %d", ErrWrongSourceChain, order.SrcChainID)
	}

	hash := order.Hash()
	status, err := v.orderStatus(hash)
	if err != nil {
		return err
	}
	if status != StatusCreated {
		return fmt.Errorf("%w: %s is %s, want Created", ErrInvalidOrderStatus, hash, status)
	}

	if err := v.ledger.release(order.TokenIn, order.AmountIn); err != nil {
		return err
	}
	v.apportionFee(&order)
	if err := v.commitOrder(hash, StatusFilled); err != nil {
		return err
	}

	v.log.Info("order marked filled", "hash", hash, "fee", order.Fee)
	return nil
}

// FillOrder executes an order on its destination chain, paying the
// receiver amountIn-fee of the pool asset directly or through a swap
// batch with minAmountOut enforcement.
//
// The trust model is one-sided: the destination vault accepts a
// well-formed order hash it has never seen, on the orchestrator's
// authority, and records it Filled for replay protection. Source-side
// bookkeeping settles independently via MarkOrderFilled.
func (v *Vault) FillOrder(caller common.Address, order Order, actions []CallAction) error {
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
	if order.AmountIn == nil || order.Fee == nil || order.MinAmountOut == nil {
		return ErrNilAmount
	}
	if order.DestChainID != v.cfg.ChainID {
		return fmt.Errorf("%w: got %d, this chain is %d", ErrWrongDestChain, order.DestChainID, v.cfg.ChainID)
	}
	if order.SrcChainID == v.cfg.ChainID {
		return fmt.Errorf("%w: %d", ErrSameChainOrder, order.SrcChainID)
	}
	if order.Fee.Sign() <= 0 || order.Fee.Cmp(order.AmountIn) >= 0 {
		return fmt.Errorf("%w: fee %s, amountIn %s", ErrFeeExceedsAmount, order.Fee, order.AmountIn)
	}
	if now := v.now(); now > order.FillDeadline {
		return fmt.Errorf("%w: deadline %d, now %d", ErrDeadlinePassed, order.FillDeadline, now)
	}

	hash := order.Hash()
	status, err := v.orderStatus(hash)
	if err != nil {
		return err
	}
	if status != StatusNonexistent {
		return fmt.Errorf("%w: %s is %s", ErrInvalidOrderStatus, hash, status)
	}

	amountOut := new(big.Int).Sub(order.AmountIn, order.Fee)
	if amountOut.Cmp(v.AvailableAssets()) > 0 {
		return fmt.Errorf("%w: need %s, available %s",
			ErrInsufficientLiquidity, amountOut, v.AvailableAssets())
	}

	// Status goes terminal before any external call so a reentrant fill
	// of the same order sees Filled and is rejected.
	if err := v.commitOrder(hash, StatusFilled); err != nil {
		return err
	}

	var fillErr error
	if len(actions) == 0 {
		fillErr = v.fillDirect(&order, amountOut)
	} else {
		fillErr = v.fillWithSwap(&order, amountOut, actions)
	}
	if fillErr != nil {
		// Whole fill aborted: the order returns to its prior status
		if err := v.commitOrder(hash, StatusNonexistent); err != nil {
			return err
		}
		return fillErr
	}

	v.log.Info("order filled", "hash", hash, "receiver", Bytes32ToAddress(order.Receiver),
		"amountOut", amountOut, "swap", len(actions) > 0)
	return nil
}

// fillDirect pays the receiver in the pool asset
func (v *Vault) fillDirect(order *Order, amountOut *big.Int) error {
	if order.TokenOut != v.assetID() {
		return fmt.Errorf("%w: direct fill requires the pool asset, got %s",
			ErrUnsupportedToken, order.TokenOut)
	}

	before := v.StablecoinBalance()
	receiver := Bytes32ToAddress(order.Receiver)
	if err := v.tokens.Transfer(v.cfg.Asset, v.cfg.Address, receiver, amountOut); err != nil {
		return fmt.Errorf("fill transfer: %w", err)
	}

	// Conservation: the pool spent exactly amountOut
	spent := new(big.Int).Sub(before, v.StablecoinBalance())
	if spent.Cmp(amountOut) != 0 {
		return fmt.Errorf("%w: spent %s, declared %s", ErrInvalidDelta, spent, amountOut)
	}
	return nil
}

// fillWithSwap delegates to the batch executor and re-validates balances
// on return: the pool spends at most amountOut of the asset, the
// receiver gains at least minAmountOut of tokenOut, and no tracked token
// decreases unexpectedly.
func (v *Vault) fillWithSwap(order *Order, amountOut *big.Int, actions []CallAction) error {
	receiver := Bytes32ToAddress(order.Receiver)
	tokenOut := Bytes32ToAddress(order.TokenOut)

	preVault := v.snapshotBalances()
	preReceiver := v.tokens.BalanceOf(tokenOut, receiver)

	if err := v.executor.Execute(actions); err != nil {
		return fmt.Errorf("swap batch: %w", err)
	}

	spent := new(big.Int).Sub(preVault[v.cfg.Asset], v.StablecoinBalance())
	if spent.Sign() < 0 || spent.Cmp(amountOut) > 0 {
		return fmt.Errorf("%w: spent %s, allowed %s", ErrInvalidDelta, spent, amountOut)
	}

	gained := new(big.Int).Sub(v.tokens.BalanceOf(tokenOut, receiver), preReceiver)
	if gained.Cmp(order.MinAmountOut) < 0 {
		return fmt.Errorf("%w: got %s, want at least %s", ErrSlippageExceeded, gained, order.MinAmountOut)
	}

	return v.checkNoUnexpectedDecrease(preVault, v.cfg.Asset)
}

// RevertOrder refunds a Created order on its source chain after the
// revert buffer has elapsed. The buffer exists so a revert cannot race
// an in-flight legitimate fill. The protocol retains a configured slice
// of the fee; the rest of amountIn is refunded to the trader.
func (v *Vault) RevertOrder(caller common.Address, order Order) error {
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
	if order.SrcChainID != v.cfg.ChainID {
		return fmt.Errorf("%w: got %d", ErrWrongSourceChain, order.SrcChainID)
	}
	if now := v.now(); now < order.FillDeadline+v.cfg.RevertBuffer {
		return fmt.Errorf("%w: revertible at %d, now %d",
			ErrDeadlineNotPassed, order.FillDeadline+v.cfg.RevertBuffer, now)
	}

	hash := order.Hash()
	status, err := v.orderStatus(hash)
	if err != nil {
		return err
	}
	if status != StatusCreated {
		return fmt.Errorf("%w: %s is %s, want Created", ErrInvalidOrderStatus, hash, status)
	}

	retained := new(big.Int).Mul(order.Fee, big.NewInt(int64(v.cfg.RevertFeeBps)))
	retained.Div(retained, big.NewInt(BasisPoints))
	refund := new(big.Int).Sub(order.AmountIn, retained)

	if err := v.ledger.release(order.TokenIn, order.AmountIn); err != nil {
		return err
	}
	if retained.Sign() > 0 {
		if err := v.ledger.collectFee(FeeProtocol, retained); err != nil {
			return err
		}
	}
	if err := v.commitOrder(hash, StatusReverted); err != nil {
		return err
	}

	trader := Bytes32ToAddress(order.Trader)
	if err := v.tokens.Transfer(v.cfg.Asset, v.cfg.Address, trader, refund); err != nil {
		// Refund failed: undo every effect of this operation
		v.ledger.reserve(order.TokenIn, order.AmountIn)
		if retained.Sign() > 0 {
			v.ledger.uncollectFee(FeeProtocol, retained)
		}
		if err := v.commitOrder(hash, StatusCreated); err != nil {
			return err
		}
		return fmt.Errorf("revert refund: %w", err)
	}

	v.log.Info("order reverted", "hash", hash, "refund", refund, "retained", retained)
	return nil
}

// OrderStatusOf returns the lifecycle state recorded for an order hash
func (v *Vault) OrderStatusOf(hash common.Hash) (OrderStatus, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.orderStatus(hash)
}

// apportionFee moves a settled order's fee into the claimable buckets.
// The base-fee component covers orchestrator execution, the insurance
// component funds the insurance bucket, and the remainder (tier fee plus
// any overpayment) splits between LP and protocol by LPFeeBps.
func (v *Vault) apportionFee(order *Order) {
	breakdown := v.calc.ComputeFees(v.cfg.Asset, order.AmountIn, order.DestChainID)

	remaining := new(big.Int).Set(order.Fee)

	base := capAt(breakdown.BaseFee, remaining)
	remaining.Sub(remaining, base)

	insurance := capAt(breakdown.InsuranceFee, remaining)
	remaining.Sub(remaining, insurance)

	lp := new(big.Int).Mul(remaining, big.NewInt(int64(v.cfg.LPFeeBps)))
	lp.Div(lp, big.NewInt(BasisPoints))
	protocol := new(big.Int).Sub(remaining, lp)

	// collectFee only fails on an unknown category
	_ = v.ledger.collectFee(FeeOperator, base)
	_ = v.ledger.collectFee(FeeInsurance, insurance)
	_ = v.ledger.collectFee(FeeLP, lp)
	_ = v.ledger.collectFee(FeeProtocol, protocol)
}

func capAt(v, limit *big.Int) *big.Int {
	if v.Cmp(limit) > 0 {
		return new(big.Int).Set(limit)
	}
	return new(big.Int).Set(v)
}

// snapshotBalances records the vault's balance of every tracked token
func (v *Vault) snapshotBalances() map[common.Address]*big.Int {
	snap := make(map[common.Address]*big.Int)
	for _, token := range v.trackedTokens() {
		snap[token] = v.tokens.BalanceOf(token, v.cfg.Address)
	}
	return snap
}

// checkNoUnexpectedDecrease asserts that no tracked token other than
// exempt lost balance across an external call batch. Any unexpected
// decrease means the batch siphoned funds and aborts the operation.
func (v *Vault) checkNoUnexpectedDecrease(pre map[common.Address]*big.Int, exempt common.Address) error {
	for token, before := range pre {
		if token == exempt {
			continue
		}
		after := v.tokens.BalanceOf(token, v.cfg.Address)
		if after.Cmp(before) < 0 {
			return fmt.Errorf("%w: token %s went %s -> %s",
				ErrUnexpectedTokenDelta, token, before, after)
		}
	}
	return nil
}
