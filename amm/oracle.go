// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package amm

import (
	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
)

// updateCumulativePrices accrues the time-weighted cumulative prices on a
// pool. Called on every reserve-mutating operation, before the reserves
// change, so each accrual window is priced at the reserves that held during
// it.
//
// Accumulation is modular: a wrapped accumulator still yields correct TWAPs
// as long as readers difference two observations taken less than one full
// wrap apart. Readers derive the average themselves; this core only
// maintains the accumulators.
func updateCumulativePrices(p *Pool, now uint64) {
	if now <= p.LastUpdate {
		return
	}
	if p.ReserveA.IsZero() || p.ReserveB.IsZero() {
		p.LastUpdate = now
		return
	}
	elapsed := uint256.NewInt(now - p.LastUpdate)

	// priceA = reserveB * SCALE / reserveA, and symmetrically for priceB.
	// Multiplication and addition wrap in 256 bits.
	priceA := new(uint256.Int).Mul(p.ReserveB, PriceScale)
	priceA.Div(priceA, p.ReserveA)
	priceB := new(uint256.Int).Mul(p.ReserveA, PriceScale)
	priceB.Div(priceB, p.ReserveB)

	p.CumulativePriceA.Add(p.CumulativePriceA, priceA.Mul(priceA, elapsed))
	p.CumulativePriceB.Add(p.CumulativePriceB, priceB.Mul(priceB, elapsed))
	p.LastUpdate = now
}

// SpotPrice returns the instantaneous price of token in terms of its
// counterpart, scaled by PriceScale. Fails on an empty pool.
func (p *Pool) SpotPrice(token common.Address) (*uint256.Int, error) {
	if p.ReserveA.IsZero() || p.ReserveB.IsZero() {
		return nil, ErrInsufficientLiquidity
	}
	numer, denom := p.ReserveB, p.ReserveA
	if token == p.Key.TokenB {
		numer, denom = p.ReserveA, p.ReserveB
	} else if token != p.Key.TokenA {
		return nil, ErrInvalidToken
	}
	price := new(uint256.Int).Mul(numer, PriceScale)
	return price.Div(price, denom), nil
}
