// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package amm

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestCumulativePriceAccrual(t *testing.T) {
	eng, tokens, clock := newTestEngine(t)
	key := seedPool(t, eng, tokens, tokenX, tokenY, 1_000_000)

	// Balanced reserves price at exactly 1.0 for ten seconds before the
	// first swap mutates them.
	clock.now += 10
	fund(tokens, tokenX, bob, 10_000)
	_, err := eng.ExecuteSwap(bob, key, tokenX, uint256.NewInt(10_000), nil, 0)
	require.NoError(t, err)

	pool, err := eng.GetPool(key)
	require.NoError(t, err)
	want := new(uint256.Int).Mul(PriceScale, uint256.NewInt(10))
	require.Equal(t, want, pool.CumulativePriceA)
	require.Equal(t, want, pool.CumulativePriceB)
	require.Equal(t, clock.now, pool.LastUpdate)
}

func TestCumulativePriceSameTimestampNoop(t *testing.T) {
	p := NewPool(NewPoolKey(tokenX, tokenY, DefaultFeeBps))
	p.ReserveA.SetUint64(1_000_000)
	p.ReserveB.SetUint64(2_000_000)
	p.LastUpdate = 500

	updateCumulativePrices(p, 510)
	cumA := new(uint256.Int).Set(p.CumulativePriceA)
	cumB := new(uint256.Int).Set(p.CumulativePriceB)

	// Same second, and going backwards, must both be no-ops.
	updateCumulativePrices(p, 510)
	updateCumulativePrices(p, 509)
	require.Equal(t, cumA, p.CumulativePriceA)
	require.Equal(t, cumB, p.CumulativePriceB)
	require.Equal(t, uint64(510), p.LastUpdate)
}

func TestCumulativePriceEmptyPoolAdvancesClockOnly(t *testing.T) {
	p := NewPool(NewPoolKey(tokenX, tokenY, DefaultFeeBps))
	p.LastUpdate = 500

	updateCumulativePrices(p, 600)
	require.True(t, p.CumulativePriceA.IsZero())
	require.True(t, p.CumulativePriceB.IsZero())
	require.Equal(t, uint64(600), p.LastUpdate)
}

func TestCumulativePriceWraps(t *testing.T) {
	p := NewPool(NewPoolKey(tokenX, tokenY, DefaultFeeBps))
	p.ReserveA.SetUint64(1)
	p.ReserveB.SetUint64(1)
	p.CumulativePriceA.SetAllOne()
	p.CumulativePriceB.SetAllOne()
	p.LastUpdate = 500

	// One second at price 1.0 on a saturated accumulator wraps modulo
	// 2^256; readers differencing two observations still see PriceScale.
	updateCumulativePrices(p, 501)
	want := new(uint256.Int).Sub(PriceScale, uint256.NewInt(1))
	require.Equal(t, want, p.CumulativePriceA)
}

func TestSpotPrice(t *testing.T) {
	p := NewPool(NewPoolKey(tokenX, tokenY, DefaultFeeBps))
	p.ReserveA.SetUint64(1_000_000)
	p.ReserveB.SetUint64(2_000_000)

	// One X buys two Y, so X is worth 2.0 in Y terms.
	priceX, err := p.SpotPrice(tokenX)
	require.NoError(t, err)
	require.Equal(t, new(uint256.Int).Mul(PriceScale, uint256.NewInt(2)), priceX)

	priceY, err := p.SpotPrice(tokenY)
	require.NoError(t, err)
	require.Equal(t, new(uint256.Int).Div(PriceScale, uint256.NewInt(2)), priceY)

	_, err = p.SpotPrice(tokenZ)
	require.ErrorIs(t, err, ErrInvalidToken)

	empty := NewPool(NewPoolKey(tokenX, tokenY, DefaultFeeBps))
	_, err = empty.SpotPrice(tokenX)
	require.ErrorIs(t, err, ErrInsufficientLiquidity)
}
