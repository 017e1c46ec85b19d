// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package fees implements the tiered fee calculator used to price
// cross-chain swap orders. Fees have three components: a per-(token,
// destination chain) base fee, a size-tiered basis-point fee, and a
// size-tiered insurance fee.
package fees

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/luxfi/geth/common"
)

// BasisPoints is the denominator for all bps math
const BasisPoints = 10_000

// Fee calculator errors
var (
	ErrEmptyTiers         = errors.New("fee tiers must not be empty")
	ErrTiersNotAscending  = errors.New("fee tier thresholds must be strictly ascending")
	ErrFeeTooHigh         = errors.New("fee exceeds 10000 basis points")
	ErrNilThreshold       = errors.New("fee tier threshold must not be nil")
	ErrSameChainBaseFee   = errors.New("base fee destination cannot be the current chain")
	ErrNilBaseFee         = errors.New("base fee amount must not be nil")
	ErrNegativeBaseFee    = errors.New("base fee amount must not be negative")
	ErrInvalidFeeAmount   = errors.New("fee amount must be positive")
	ErrUnknownDestination = errors.New("unknown destination chain")
)

// Tier is a single fee tier. The tier applies to any amount greater than
// or equal to ThresholdAmount, up to the next tier's threshold.
type Tier struct {
	ThresholdAmount *big.Int // Minimum amount for this tier
	BpsFee          uint32   // Fee in basis points
}

// Breakdown is the fee decomposition for a single order
type Breakdown struct {
	BaseFee      *big.Int // Flat per-(token, dest chain) fee
	BpsFee       *big.Int // Size-tiered bps fee
	InsuranceFee *big.Int // Size-tiered insurance fee
	TotalFee     *big.Int // Sum of the three
}

// Calculator computes the required fee for an order given its input
// token, amount and destination chain. Configuration is replaced
// atomically; ComputeFees is a pure function of a fixed configuration.
type Calculator struct {
	chainID uint32 // Chain this calculator is deployed on

	// baseFees maps token -> destination chain -> flat fee
	baseFees map[common.Address]map[uint32]*big.Int

	feeTiers          []Tier
	insuranceFeeTiers []Tier

	mu sync.RWMutex
}

// NewCalculator creates a calculator for the given chain with no tiers
// configured. With no tiers, bps and insurance fees default to zero.
func NewCalculator(chainID uint32) *Calculator {
	return &Calculator{
		chainID:  chainID,
		baseFees: make(map[common.Address]map[uint32]*big.Int),
	}
}

// ChainID returns the chain this calculator prices orders from
func (c *Calculator) ChainID() uint32 {
	return c.chainID
}

// SetBaseFee configures the flat fee for bridging token to destChainID.
// Setting a base fee for the calculator's own chain is rejected: a chain
// cannot be its own bridge destination.
func (c *Calculator) SetBaseFee(token common.Address, destChainID uint32, amount *big.Int) error {
	if destChainID == c.chainID {
		return fmt.Errorf("%w: chain %d", ErrSameChainBaseFee, destChainID)
	}
	if amount == nil {
		return ErrNilBaseFee
	}
	if amount.Sign() < 0 {
		return ErrNegativeBaseFee
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.baseFees[token] == nil {
		c.baseFees[token] = make(map[uint32]*big.Int)
	}
	c.baseFees[token][destChainID] = new(big.Int).Set(amount)
	return nil
}

// SetFeeTiers replaces the bps fee tier table atomically
func (c *Calculator) SetFeeTiers(tiers []Tier) error {
	checked, err := validateTiers(tiers)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.feeTiers = checked
	c.mu.Unlock()
	return nil
}

// SetInsuranceFeeTiers replaces the insurance fee tier table atomically
func (c *Calculator) SetInsuranceFeeTiers(tiers []Tier) error {
	checked, err := validateTiers(tiers)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.insuranceFeeTiers = checked
	c.mu.Unlock()
	return nil
}

// ComputeFees returns the fee breakdown for bridging amount of token to
// destChainID. An unset base fee contributes zero; empty tier tables
// contribute zero.
func (c *Calculator) ComputeFees(token common.Address, amount *big.Int, destChainID uint32) Breakdown {
	c.mu.RLock()
	defer c.mu.RUnlock()

	base := big.NewInt(0)
	if chainFees := c.baseFees[token]; chainFees != nil {
		if fee := chainFees[destChainID]; fee != nil {
			base = new(big.Int).Set(fee)
		}
	}

	bps := tierFee(c.feeTiers, amount)
	insurance := tierFee(c.insuranceFeeTiers, amount)

	total := new(big.Int).Add(base, bps)
	total.Add(total, insurance)

	return Breakdown{
		BaseFee:      base,
		BpsFee:       bps,
		InsuranceFee: insurance,
		TotalFee:     total,
	}
}

// tierFee selects the highest tier whose threshold is <= amount and
// applies its bps rate. No qualifying tier means zero fee.
func tierFee(tiers []Tier, amount *big.Int) *big.Int {
	var selected *Tier
	for i := range tiers {
		if tiers[i].ThresholdAmount.Cmp(amount) <= 0 {
			selected = &tiers[i]
		} else {
			break
		}
	}
	if selected == nil {
		return big.NewInt(0)
	}

	fee := new(big.Int).Mul(amount, big.NewInt(int64(selected.BpsFee)))
	fee.Div(fee, big.NewInt(BasisPoints))
	return fee
}

// validateTiers checks a tier table and returns a defensive copy so a
// caller-held slice cannot mutate the installed table.
func validateTiers(tiers []Tier) ([]Tier, error) {
	if len(tiers) == 0 {
		return nil, ErrEmptyTiers
	}

	checked := make([]Tier, len(tiers))
	var prev *big.Int
	for i, tier := range tiers {
		if tier.ThresholdAmount == nil {
			return nil, ErrNilThreshold
		}
		if tier.BpsFee > BasisPoints {
			return nil, fmt.Errorf("%w: tier %d has %d bps", ErrFeeTooHigh, i, tier.BpsFee)
		}
		if prev != nil && tier.ThresholdAmount.Cmp(prev) <= 0 {
			return nil, fmt.Errorf("%w: tier %d", ErrTiersNotAscending, i)
		}
		prev = tier.ThresholdAmount
		checked[i] = Tier{
			ThresholdAmount: new(big.Int).Set(tier.ThresholdAmount),
			BpsFee:          tier.BpsFee,
		}
	}
	return checked, nil
}
