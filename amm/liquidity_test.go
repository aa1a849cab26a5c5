// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package amm

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestCreatePoolLocksMinimumLiquidity(t *testing.T) {
	eng, tokens, _ := newTestEngine(t)

	fund(tokens, tokenX, alice, 1_000_000)
	fund(tokens, tokenY, alice, 1_000_000)
	key, minted, err := eng.CreatePool(alice, tokenX, tokenY,
		uint256.NewInt(1_000_000), uint256.NewInt(1_000_000), DefaultFeeBps)
	require.NoError(t, err)

	// sqrt(1e6 * 1e6) = 1e6 shares; the floor stays with the burn sentinel.
	require.Equal(t, uint64(1_000_000-1_000), minted.Uint64())
	require.Equal(t, minted, eng.ShareBalance(key, alice))
	require.Equal(t, MinimumLiquidity, eng.ShareBalance(key, burnAddr))

	total, err := eng.TotalShares(key)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000_000), total.Uint64())

	// The deposit moved into protocol inventory.
	require.True(t, tokens.BalanceOf(tokenX, alice).IsZero())
	require.Equal(t, uint64(1_000_000), tokens.BalanceOf(tokenX, protocolAddr).Uint64())
}

func TestCreatePoolCanonicalOrder(t *testing.T) {
	eng, tokens, _ := newTestEngine(t)

	fund(tokens, tokenX, alice, 400)
	fund(tokens, tokenY, alice, 90_000)
	// Created with the pair reversed; amounts must follow the tokens.
	key, _, err := eng.CreatePool(alice, tokenY, tokenX,
		uint256.NewInt(90_000), uint256.NewInt(400), DefaultFeeBps)
	require.NoError(t, err)
	require.Equal(t, tokenX, key.TokenA)

	pool, err := eng.GetPool(key)
	require.NoError(t, err)
	require.Equal(t, uint64(400), pool.ReserveA.Uint64())
	require.Equal(t, uint64(90_000), pool.ReserveB.Uint64())
}

func TestCreatePoolRejects(t *testing.T) {
	eng, tokens, _ := newTestEngine(t)
	one := uint256.NewInt(1_000_000)

	fund(tokens, tokenX, alice, 10_000_000)
	fund(tokens, tokenY, alice, 10_000_000)

	_, _, err := eng.CreatePool(alice, tokenX, tokenX, one, one, DefaultFeeBps)
	require.ErrorIs(t, err, ErrIdenticalTokens)

	_, _, err = eng.CreatePool(alice, tokenX, tokenY, new(uint256.Int), one, DefaultFeeBps)
	require.ErrorIs(t, err, ErrZeroAmount)

	_, _, err = eng.CreatePool(alice, tokenX, tokenY, one, one, 0)
	require.ErrorIs(t, err, ErrInvalidFee)

	// Seed below the locked floor.
	_, _, err = eng.CreatePool(alice, tokenX, tokenY, uint256.NewInt(30), uint256.NewInt(30), DefaultFeeBps)
	require.ErrorIs(t, err, ErrInsufficientLiquidity)

	_, _, err = eng.CreatePool(alice, tokenX, tokenY, one, one, DefaultFeeBps)
	require.NoError(t, err)
	_, _, err = eng.CreatePool(alice, tokenY, tokenX, one, one, DefaultFeeBps)
	require.ErrorIs(t, err, ErrPoolExists)

	// Same pair at another fee tier is a distinct pool.
	_, _, err = eng.CreatePool(alice, tokenX, tokenY, one, one, 100)
	require.NoError(t, err)
}

func TestAddLiquidityPairsToRatio(t *testing.T) {
	eng, tokens, _ := newTestEngine(t)
	key := seedPool(t, eng, tokens, tokenX, tokenY, 1_000_000)

	// Offering excess B: the optimal B for 500k A is 500k, so the extra
	// 100k desired stays with the provider.
	fund(tokens, tokenX, bob, 500_000)
	fund(tokens, tokenY, bob, 600_000)
	minted, err := eng.AddLiquidity(bob, key,
		uint256.NewInt(500_000), uint256.NewInt(600_000), nil, nil, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(500_000), minted.Uint64())
	require.Equal(t, uint64(100_000), tokens.BalanceOf(tokenY, bob).Uint64())

	pool, err := eng.GetPool(key)
	require.NoError(t, err)
	require.Equal(t, uint64(1_500_000), pool.ReserveA.Uint64())
	require.Equal(t, uint64(1_500_000), pool.ReserveB.Uint64())
	require.Equal(t, uint64(1_500_000), pool.TotalShares.Uint64())
}

func TestAddLiquiditySlippageGuard(t *testing.T) {
	eng, tokens, _ := newTestEngine(t)
	key := seedPool(t, eng, tokens, tokenX, tokenY, 1_000_000)

	fund(tokens, tokenX, bob, 500_000)
	fund(tokens, tokenY, bob, 600_000)
	_, err := eng.AddLiquidity(bob, key,
		uint256.NewInt(500_000), uint256.NewInt(600_000),
		nil, uint256.NewInt(600_000), 0)
	require.ErrorIs(t, err, ErrSlippageExceeded)
}

func TestRemoveLiquidityProportional(t *testing.T) {
	eng, tokens, _ := newTestEngine(t)
	key := seedPool(t, eng, tokens, tokenX, tokenY, 1_000_000)

	// Burn half of alice's shares.
	amountA, amountB, err := eng.RemoveLiquidity(alice, key,
		uint256.NewInt(499_500), nil, nil, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(499_500), amountA.Uint64())
	require.Equal(t, uint64(499_500), amountB.Uint64())
	require.Equal(t, uint64(499_500), tokens.BalanceOf(tokenX, alice).Uint64())

	pool, err := eng.GetPool(key)
	require.NoError(t, err)
	require.Equal(t, uint64(500_500), pool.ReserveA.Uint64())
	require.Equal(t, uint64(500_500), pool.TotalShares.Uint64())
	require.Equal(t, uint64(499_500), eng.ShareBalance(key, alice).Uint64())
}

func TestRemoveLiquidityChecksBalance(t *testing.T) {
	eng, tokens, _ := newTestEngine(t)
	key := seedPool(t, eng, tokens, tokenX, tokenY, 1_000_000)

	_, _, err := eng.RemoveLiquidity(bob, key, uint256.NewInt(1), nil, nil, 0)
	require.ErrorIs(t, err, ErrInsufficientBalance)

	// More than alice holds, even though the pool could cover it.
	_, _, err = eng.RemoveLiquidity(alice, key, uint256.NewInt(999_001), nil, nil, 0)
	require.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestRemoveLiquidityFromInactivePool(t *testing.T) {
	eng, tokens, _ := newTestEngine(t)
	key := seedPool(t, eng, tokens, tokenX, tokenY, 1_000_000)
	require.NoError(t, eng.SetPoolActive(admin, key, false))

	// Deactivation blocks deposits but never exit.
	fund(tokens, tokenX, bob, 1_000)
	fund(tokens, tokenY, bob, 1_000)
	_, err := eng.AddLiquidity(bob, key, uint256.NewInt(1_000), uint256.NewInt(1_000), nil, nil, 0)
	require.ErrorIs(t, err, ErrPoolInactive)

	_, _, err = eng.RemoveLiquidity(alice, key, uint256.NewInt(1_000), nil, nil, 0)
	require.NoError(t, err)
}

func TestLiquidityValueGrowsWithFees(t *testing.T) {
	eng, tokens, _ := newTestEngine(t)
	key := seedPool(t, eng, tokens, tokenX, tokenY, 1_000_000)

	// Churn swaps to accrue LP fees in-reserve.
	fund(tokens, tokenX, bob, 200_000)
	fund(tokens, tokenY, bob, 200_000)
	for i := 0; i < 5; i++ {
		out, err := eng.ExecuteSwap(bob, key, tokenX, uint256.NewInt(50_000), nil, 0)
		require.NoError(t, err)
		_, err = eng.ExecuteSwap(bob, key, tokenY, out, nil, 0)
		require.NoError(t, err)
	}

	// Without fee accrual, alice's 999000 shares redeem for exactly 999000
	// per side. Fees push the redemption strictly above that baseline.
	shares := eng.ShareBalance(key, alice)
	amountA, amountB, err := eng.RemoveLiquidity(alice, key, shares, nil, nil, 0)
	require.NoError(t, err)
	sum := new(uint256.Int).Add(amountA, amountB)
	require.True(t, sum.Cmp(uint256.NewInt(1_998_000)) > 0,
		"fees did not accrue: got back %s", sum)
}
