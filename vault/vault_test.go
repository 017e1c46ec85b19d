// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vault_test

import (
	"errors"
	"math/big"
	"testing"

	"github.com/luxfi/geth/common"

	"github.com/Genius-Foundation/genius-contracts-sub002/vault"
)

var lpAddr = common.HexToAddress("0x8000000000000000000000000000000000000008")

func TestNewVault_ConfigValidation(t *testing.T) {
	e := newEnv(t, defaultConfig())

	bad := defaultConfig()
	bad.RebalanceThreshold = 10_001
	if _, err := vault.NewVault(bad, e.calc, e.tokens, e.exec, e.verifier, e.acl, nil); !errors.Is(err, vault.ErrInvalidThreshold) {
		t.Errorf("Expected ErrInvalidThreshold, got %v", err)
	}

	bad = defaultConfig()
	bad.MaxOrderAmount = nil
	if _, err := vault.NewVault(bad, e.calc, e.tokens, e.exec, e.verifier, e.acl, nil); err == nil {
		t.Error("Expected nil MaxOrderAmount to be rejected")
	}

	bad = defaultConfig()
	bad.LPFeeBps = 10_001
	if _, err := vault.NewVault(bad, e.calc, e.tokens, e.exec, e.verifier, e.acl, nil); err == nil {
		t.Error("Expected oversized LPFeeBps to be rejected")
	}
}

func TestStakeUnstake(t *testing.T) {
	e := newEnv(t, defaultConfig())
	e.fund(lpAddr, 5000)

	if err := e.vlt.Stake(lpAddr, big.NewInt(3000)); err != nil {
		t.Fatalf("Expected stake to succeed: %v", err)
	}
	if got := e.vlt.TotalStakedAssets(); got.Cmp(big.NewInt(3000)) != 0 {
		t.Fatalf("Expected 3000 staked, got %s", got)
	}
	if got := e.vaultBalance(assetAddr); got.Cmp(big.NewInt(3000)) != 0 {
		t.Fatalf("Expected vault to hold 3000, got %s", got)
	}

	// 10% of staked stays as buffer
	if got := e.vlt.MinLiquidity(); got.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("Expected minLiquidity 300, got %s", got)
	}
	if got := e.vlt.AvailableAssets(); got.Cmp(big.NewInt(2700)) != 0 {
		t.Fatalf("Expected 2700 available, got %s", got)
	}

	if err := e.vlt.Unstake(lpAddr, big.NewInt(1000)); err != nil {
		t.Fatalf("Expected unstake to succeed: %v", err)
	}
	if got := e.vlt.TotalStakedAssets(); got.Cmp(big.NewInt(2000)) != 0 {
		t.Fatalf("Expected 2000 staked, got %s", got)
	}
	if got := e.tokens.BalanceOf(assetAddr, lpAddr); got.Cmp(big.NewInt(3000)) != 0 {
		t.Fatalf("Expected staker to hold 3000, got %s", got)
	}

	// Vault only holds 2000, so the balance guard fires first
	err := e.vlt.Unstake(lpAddr, big.NewInt(2001))
	if !errors.Is(err, vault.ErrInsufficientBalance) {
		t.Fatalf("Expected ErrInsufficientBalance, got %v", err)
	}

	// With spare balance the stake counter is the binding limit
	if err := e.tokens.Mint(assetAddr, vaultAddr, big.NewInt(5000)); err != nil {
		t.Fatalf("Expected mint to succeed: %v", err)
	}
	err = e.vlt.Unstake(lpAddr, big.NewInt(2001))
	if !errors.Is(err, vault.ErrInsufficientStake) {
		t.Fatalf("Expected ErrInsufficientStake, got %v", err)
	}
}

func TestStake_ZeroAndNilRejected(t *testing.T) {
	e := newEnv(t, defaultConfig())
	e.fund(lpAddr, 100)

	if err := e.vlt.Stake(lpAddr, big.NewInt(0)); !errors.Is(err, vault.ErrZeroAmount) {
		t.Errorf("Expected ErrZeroAmount, got %v", err)
	}
	if err := e.vlt.Stake(lpAddr, nil); !errors.Is(err, vault.ErrNilAmount) {
		t.Errorf("Expected ErrNilAmount, got %v", err)
	}
}

func TestClaimFees(t *testing.T) {
	e := newEnv(t, defaultConfig())
	e.fund(e.trader, 10_000)

	o := e.order(1, 1000, 100)
	e.createOrder(o)
	if err := e.vlt.MarkOrderFilled(orchAddr, o); err != nil {
		t.Fatalf("Expected mark-filled to succeed: %v", err)
	}

	// Fee 100: base 5 operator, insurance 1, remaining 94 split 47/47
	lp := e.vlt.ClaimableFees(vault.FeeLP)
	if lp.Cmp(big.NewInt(47)) != 0 {
		t.Fatalf("Expected 47 claimable LP, got %s", lp)
	}

	treasury := common.HexToAddress("0xbbbb000000000000000000000000000000000bbb")
	if err := e.vlt.ClaimFees(strangerAddr, vault.FeeLP, lp, treasury); !errors.Is(err, vault.ErrUnauthorized) {
		t.Fatalf("Expected ErrUnauthorized, got %v", err)
	}
	if err := e.vlt.ClaimFees(orchAddr, vault.FeeLP, lp, treasury); err != nil {
		t.Fatalf("Expected claim to succeed: %v", err)
	}
	if got := e.tokens.BalanceOf(assetAddr, treasury); got.Cmp(lp) != 0 {
		t.Fatalf("Expected treasury to hold %s, got %s", lp, got)
	}
	if got := e.vlt.ClaimableFees(vault.FeeLP); got.Sign() != 0 {
		t.Fatalf("Expected LP bucket zeroed, got %s", got)
	}

	err := e.vlt.ClaimFees(orchAddr, vault.FeeLP, big.NewInt(1), treasury)
	if !errors.Is(err, vault.ErrClaimExceedsCollected) {
		t.Fatalf("Expected ErrClaimExceedsCollected, got %v", err)
	}
}

func TestPauseBlocksOperations(t *testing.T) {
	e := newEnv(t, defaultConfig())
	e.fund(e.trader, 10_000)

	if err := e.vlt.Pause(strangerAddr); !errors.Is(err, vault.ErrUnauthorized) {
		t.Fatalf("Expected ErrUnauthorized, got %v", err)
	}
	if err := e.vlt.Pause(adminAddr); err != nil {
		t.Fatalf("Expected pause to succeed: %v", err)
	}
	if !e.vlt.Paused() {
		t.Fatal("Expected vault to report paused")
	}

	o := e.order(1, 1000, 10)
	if err := e.vlt.CreateOrder(o, e.signPermit(o)); !errors.Is(err, vault.ErrPaused) {
		t.Errorf("Expected ErrPaused on create, got %v", err)
	}
	if err := e.vlt.Stake(e.trader, big.NewInt(100)); !errors.Is(err, vault.ErrPaused) {
		t.Errorf("Expected ErrPaused on stake, got %v", err)
	}

	if err := e.vlt.Unpause(adminAddr); err != nil {
		t.Fatalf("Expected unpause to succeed: %v", err)
	}
	e.createOrder(o)
}

func TestSetRebalanceThreshold(t *testing.T) {
	e := newEnv(t, defaultConfig())
	e.fund(lpAddr, 1000)
	if err := e.vlt.Stake(lpAddr, big.NewInt(1000)); err != nil {
		t.Fatalf("Expected stake to succeed: %v", err)
	}

	if err := e.vlt.SetRebalanceThreshold(strangerAddr, 5000); !errors.Is(err, vault.ErrUnauthorized) {
		t.Fatalf("Expected ErrUnauthorized, got %v", err)
	}
	if err := e.vlt.SetRebalanceThreshold(adminAddr, 10_001); !errors.Is(err, vault.ErrInvalidThreshold) {
		t.Fatalf("Expected ErrInvalidThreshold, got %v", err)
	}
	if err := e.vlt.SetRebalanceThreshold(adminAddr, 5000); err != nil {
		t.Fatalf("Expected threshold update to succeed: %v", err)
	}

	if got := e.vlt.MinLiquidity(); got.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("Expected minLiquidity 500 after update, got %s", got)
	}
}

func TestOrderHashDeterminism(t *testing.T) {
	e := newEnv(t, defaultConfig())

	a := e.order(1, 1000, 10)
	b := e.order(1, 1000, 10)
	if a.Hash() != b.Hash() {
		t.Fatal("Expected identical orders to hash identically")
	}

	c := e.order(2, 1000, 10)
	if a.Hash() == c.Hash() {
		t.Fatal("Expected different seeds to produce different hashes")
	}

	d := e.order(1, 1000, 11)
	if a.Hash() == d.Hash() {
		t.Fatal("Expected different fees to produce different hashes")
	}
}
