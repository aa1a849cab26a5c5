// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package amm

import (
	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/sugawarayuuta/sonnet"
)

// Read-only query surface for external callers and analytics. Nothing here
// mutates state or takes the reentrancy guard.

// GetPool returns a copy of the pool for key.
func (e *Engine) GetPool(key PoolKey) (*Pool, error) {
	pool, err := e.ledger.GetPool(key)
	if err != nil {
		return nil, err
	}
	return pool.Copy(), nil
}

// Pools returns a snapshot copy of all pools.
func (e *Engine) Pools() []*Pool {
	return e.ledger.Pools()
}

// PoolsForPair returns all fee tiers of the unordered token pair.
func (e *Engine) PoolsForPair(tokenA, tokenB common.Address) []*Pool {
	want := NewPoolKey(tokenA, tokenB, 0).PairID()
	var out []*Pool
	for _, p := range e.ledger.Pools() {
		if p.Key.PairID() == want {
			out = append(out, p)
		}
	}
	return out
}

// ShareBalance returns holder's liquidity shares in the pool.
func (e *Engine) ShareBalance(key PoolKey, holder common.Address) *uint256.Int {
	return e.ledger.ShareBalance(key, holder)
}

// TotalShares returns the pool's total share supply.
func (e *Engine) TotalShares(key PoolKey) (*uint256.Int, error) {
	pool, err := e.ledger.GetPool(key)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Set(pool.TotalShares), nil
}

// Statistics returns the committed protocol statistics.
func (e *Engine) Statistics() *ProtocolStatistics {
	return e.ledger.Statistics()
}

// Quote prices an exact-input swap against current reserves without
// mutating anything.
func (e *Engine) Quote(key PoolKey, tokenIn common.Address, amountIn *uint256.Int) (*uint256.Int, error) {
	pool, err := e.ledger.GetPool(key)
	if err != nil {
		return nil, err
	}
	reserveIn, reserveOut, ok := pool.Reserves(tokenIn)
	if !ok {
		return nil, ErrInvalidToken
	}
	return QuoteOutput(amountIn, reserveIn, reserveOut, pool.FeeBps)
}

// QuoteExactOutput prices an exact-output swap against current reserves.
func (e *Engine) QuoteExactOutput(key PoolKey, tokenIn common.Address, amountOut *uint256.Int) (*uint256.Int, error) {
	pool, err := e.ledger.GetPool(key)
	if err != nil {
		return nil, err
	}
	reserveIn, reserveOut, ok := pool.Reserves(tokenIn)
	if !ok {
		return nil, ErrInvalidToken
	}
	return QuoteInput(amountOut, reserveIn, reserveOut, pool.FeeBps)
}

// statisticsSnapshot is the JSON shape of the analytics export.
type statisticsSnapshot struct {
	PoolCount       uint64 `json:"poolCount"`
	SwapCount       uint64 `json:"swapCount"`
	SwapVolume      string `json:"swapVolume"`
	LPFees          string `json:"lpFees"`
	ProtocolFees    string `json:"protocolFees"`
	FlashLoanCount  uint64 `json:"flashLoanCount"`
	FlashLoanVolume string `json:"flashLoanVolume"`
	FlashLoanFees   string `json:"flashLoanFees"`
}

// StatisticsJSON serializes the committed statistics for analytics
// consumers.
func (e *Engine) StatisticsJSON() ([]byte, error) {
	s := e.ledger.Statistics()
	return sonnet.Marshal(statisticsSnapshot{
		PoolCount:       s.PoolCount,
		SwapCount:       s.SwapCount,
		SwapVolume:      s.SwapVolume.Dec(),
		LPFees:          s.LPFees.Dec(),
		ProtocolFees:    s.ProtocolFees.Dec(),
		FlashLoanCount:  s.FlashLoanCount,
		FlashLoanVolume: s.FlashLoanVolume.Dec(),
		FlashLoanFees:   s.FlashLoanFees.Dec(),
	})
}
