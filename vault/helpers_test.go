// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vault_test

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/binary"
	"math/big"
	"testing"

	"github.com/luxfi/crypto/secp256k1"
	"github.com/luxfi/database"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/geth/common"

	"github.com/Genius-Foundation/genius-contracts-sub002/access"
	"github.com/Genius-Foundation/genius-contracts-sub002/fees"
	"github.com/Genius-Foundation/genius-contracts-sub002/permit"
	"github.com/Genius-Foundation/genius-contracts-sub002/token"
	"github.com/Genius-Foundation/genius-contracts-sub002/vault"
)

const (
	srcChainID  = 1
	destChainID = 7

	maxOrderTime = 3600
	revertBuffer = 600
	startTime    = 1_700_000_000
)

var (
	vaultAddr    = common.HexToAddress("0x1000000000000000000000000000000000000001")
	assetAddr    = common.HexToAddress("0x2000000000000000000000000000000000000002")
	altTokenAddr = common.HexToAddress("0x3000000000000000000000000000000000000003")
	adminAddr    = common.HexToAddress("0x4000000000000000000000000000000000000004")
	orchAddr     = common.HexToAddress("0x5000000000000000000000000000000000000005")
	receiverAddr = common.HexToAddress("0x6000000000000000000000000000000000000006")
	strangerAddr = common.HexToAddress("0x7000000000000000000000000000000000000007")
)

// scriptExecutor runs a test-supplied function in place of an external
// call batch.
type scriptExecutor struct {
	run func(actions []vault.CallAction) error
}

func (e *scriptExecutor) Execute(actions []vault.CallAction) error {
	if e.run == nil {
		return nil
	}
	return e.run(actions)
}

type env struct {
	t        *testing.T
	tokens   *token.Ledger
	acl      *access.Registry
	verifier *permit.Verifier
	exec     *scriptExecutor
	calc     *fees.Calculator
	vlt      *vault.Vault
	db       database.Database

	traderKey *ecdsa.PrivateKey
	trader    common.Address

	clock uint64
}

func defaultConfig() vault.Config {
	return vault.Config{
		ChainID:            srcChainID,
		Address:            vaultAddr,
		Asset:              assetAddr,
		TrackedTokens:      []common.Address{altTokenAddr},
		RebalanceThreshold: 1000, // 10%
		MaxOrderAmount:     big.NewInt(1_000_000),
		MaxOrderTime:       maxOrderTime,
		RevertBuffer:       revertBuffer,
		RevertFeeBps:       2000, // 20% of the fee retained on revert
		LPFeeBps:           5000,
	}
}

func newEnv(t *testing.T, cfg vault.Config) *env {
	t.Helper()

	e := &env{
		t:        t,
		tokens:   token.NewLedger(),
		acl:      access.NewRegistry(adminAddr),
		verifier: permit.NewVerifier(),
		exec:     &scriptExecutor{},
		db:       memdb.New(),
		clock:    startTime,
	}

	for _, pair := range []struct {
		role common.Hash
		who  common.Address
	}{
		{vault.RoleAdmin, adminAddr},
		{vault.RoleOrchestrator, orchAddr},
		{vault.RolePauser, adminAddr},
	} {
		if err := e.acl.GrantRole(adminAddr, pair.role, pair.who); err != nil {
			t.Fatalf("Expected role grant to succeed: %v", err)
		}
	}

	key, err := ecdsa.GenerateKey(secp256k1.S256(), rand.Reader)
	if err != nil {
		t.Fatalf("Expected key generation to succeed: %v", err)
	}
	e.traderKey = key
	e.trader, err = e.verifier.RegisterKey(secp256k1.CompressPubkey(key.X, key.Y))
	if err != nil {
		t.Fatalf("Expected key registration to succeed: %v", err)
	}

	e.calc = fees.NewCalculator(cfg.ChainID)
	calc := e.calc
	if err := calc.SetBaseFee(cfg.Asset, destChainID, big.NewInt(5)); err != nil {
		t.Fatalf("Expected base fee set to succeed: %v", err)
	}
	if err := calc.SetFeeTiers([]fees.Tier{
		{ThresholdAmount: big.NewInt(0), BpsFee: 30},
		{ThresholdAmount: big.NewInt(10_000), BpsFee: 20},
	}); err != nil {
		t.Fatalf("Expected fee tiers set to succeed: %v", err)
	}
	if err := calc.SetInsuranceFeeTiers([]fees.Tier{
		{ThresholdAmount: big.NewInt(0), BpsFee: 10},
	}); err != nil {
		t.Fatalf("Expected insurance tiers set to succeed: %v", err)
	}

	vlt, err := vault.NewVault(cfg, calc, e.tokens, e.exec, e.verifier, e.acl, e.db)
	if err != nil {
		t.Fatalf("Expected vault construction to succeed: %v", err)
	}
	vlt.SetClock(func() uint64 { return e.clock })
	e.vlt = vlt
	return e
}

// fund mints amount of the pool asset to holder and approves the vault
// to pull it.
func (e *env) fund(holder common.Address, amount int64) {
	e.t.Helper()
	if err := e.tokens.Mint(assetAddr, holder, big.NewInt(amount)); err != nil {
		e.t.Fatalf("Expected mint to succeed: %v", err)
	}
	if err := e.tokens.Approve(assetAddr, holder, vaultAddr, big.NewInt(amount)); err != nil {
		e.t.Fatalf("Expected approve to succeed: %v", err)
	}
}

// order builds a well-formed outbound order from the trader. seed
// distinguishes otherwise identical orders.
func (e *env) order(seed byte, amountIn, fee int64) vault.Order {
	return vault.Order{
		Seed:         common.BytesToHash([]byte{seed}),
		Trader:       vault.AddressToBytes32(e.trader),
		Receiver:     vault.AddressToBytes32(receiverAddr),
		TokenIn:      vault.AddressToBytes32(assetAddr),
		TokenOut:     vault.AddressToBytes32(assetAddr),
		AmountIn:     big.NewInt(amountIn),
		MinAmountOut: big.NewInt(0),
		Fee:          big.NewInt(fee),
		SrcChainID:   srcChainID,
		DestChainID:  destChainID,
		FillDeadline: e.clock + 1800,
	}
}

// inboundOrder builds an order arriving from another chain for fill on
// this one.
func (e *env) inboundOrder(seed byte, amountIn, fee int64) vault.Order {
	o := e.order(seed, amountIn, fee)
	o.SrcChainID = destChainID
	o.DestChainID = srcChainID
	return o
}

// signPermit signs the transfer permit that CreateOrder will verify for
// this order.
func (e *env) signPermit(o vault.Order) []byte {
	e.t.Helper()
	hash := o.Hash()
	sig, err := permit.Sign(e.traderKey, vault.TransferPermit{
		Owner:    e.trader,
		Spender:  vaultAddr,
		Token:    assetAddr,
		Amount:   o.AmountIn,
		Nonce:    binary.BigEndian.Uint64(hash[:8]),
		Deadline: o.FillDeadline,
	})
	if err != nil {
		e.t.Fatalf("Expected permit signing to succeed: %v", err)
	}
	return sig
}

func (e *env) createOrder(o vault.Order) {
	e.t.Helper()
	if err := e.vlt.CreateOrder(o, e.signPermit(o)); err != nil {
		e.t.Fatalf("Expected order creation to succeed: %v", err)
	}
}

func (e *env) mustStatus(o vault.Order, want vault.OrderStatus) {
	e.t.Helper()
	got, err := e.vlt.OrderStatusOf(o.Hash())
	if err != nil {
		e.t.Fatalf("Expected status lookup to succeed: %v", err)
	}
	if got != want {
		e.t.Fatalf("Expected order status %s, got %s", want, got)
	}
}

func (e *env) vaultBalance(tok common.Address) *big.Int {
	return e.tokens.BalanceOf(tok, vaultAddr)
}
