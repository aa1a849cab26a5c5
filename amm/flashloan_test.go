// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package amm

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
)

// borrowerFn adapts a closure to FlashBorrower.
type borrowerFn func(initiator, token common.Address, amount, fee *uint256.Int, payload []byte) error

func (f borrowerFn) OnFlashLoan(initiator, token common.Address, amount, fee *uint256.Int, payload []byte) error {
	return f(initiator, token, amount, fee, payload)
}

func TestFlashLoanRepaid(t *testing.T) {
	eng, tokens, _ := newTestEngine(t)
	seedPool(t, eng, tokens, tokenX, tokenY, 1_000_000)

	// The borrower covers the fee from pre-held funds.
	tokens.Mint(tokenX, bob, uint256.NewInt(1_000))
	amount := uint256.NewInt(100_000)
	fee := eng.FlashFee(amount)
	require.Equal(t, uint64(90), fee.Uint64())

	var seenAmount uint64
	err := eng.FlashLoan(borrowerFn(func(initiator, token common.Address, amount, fee *uint256.Int, payload []byte) error {
		seenAmount = amount.Uint64()
		owed := new(uint256.Int).Add(amount, fee)
		if !tokens.Transfer(token, bob, protocolAddr, owed) {
			return errors.New("repay transfer failed")
		}
		return nil
	}), bob, tokenX, amount, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(100_000), seenAmount)

	// Inventory grew by exactly the fee; the borrower paid it.
	require.Equal(t, uint64(1_000_090), tokens.BalanceOf(tokenX, protocolAddr).Uint64())
	require.Equal(t, uint64(910), tokens.BalanceOf(tokenX, bob).Uint64())

	stats := eng.Statistics()
	require.Equal(t, uint64(1), stats.FlashLoanCount)
	require.Equal(t, uint64(100_000), stats.FlashLoanVolume.Uint64())
	require.Equal(t, uint64(90), stats.FlashLoanFees.Uint64())
}

func TestFlashLoanDefaultRestoresState(t *testing.T) {
	eng, tokens, _ := newTestEngine(t)
	key := seedPool(t, eng, tokens, tokenX, tokenY, 1_000_000)
	statsBefore := eng.Statistics()

	// The borrower keeps the principal.
	err := eng.FlashLoan(borrowerFn(func(_, _ common.Address, _, _ *uint256.Int, _ []byte) error {
		return nil
	}), bob, tokenX, uint256.NewInt(100_000), nil)
	require.ErrorIs(t, err, ErrLoanNotRepaid)

	// Every effect of the envelope is gone, the principal transfer included.
	require.Equal(t, uint64(1_000_000), tokens.BalanceOf(tokenX, protocolAddr).Uint64())
	require.True(t, tokens.BalanceOf(tokenX, bob).IsZero())
	require.Equal(t, statsBefore, eng.Statistics())

	pool, err := eng.GetPool(key)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000_000), pool.ReserveA.Uint64())
}

func TestFlashLoanCallbackErrorRestoresState(t *testing.T) {
	eng, tokens, _ := newTestEngine(t)
	seedPool(t, eng, tokens, tokenX, tokenY, 1_000_000)

	boom := errors.New("strategy failed")
	err := eng.FlashLoan(borrowerFn(func(_, token common.Address, amount, fee *uint256.Int, _ []byte) error {
		// Even a partial repayment before the error is unwound.
		tokens.Transfer(token, bob, protocolAddr, amount)
		return boom
	}), bob, tokenX, uint256.NewInt(100_000), nil)
	require.ErrorIs(t, err, ErrLoanNotRepaid)
	require.Equal(t, uint64(1_000_000), tokens.BalanceOf(tokenX, protocolAddr).Uint64())
}

func TestFlashLoanRejectsZeroFee(t *testing.T) {
	eng, tokens, _ := newTestEngine(t)
	seedPool(t, eng, tokens, tokenX, tokenY, 1_000_000)

	// 9 bps of 100 rounds to zero.
	err := eng.FlashLoan(borrowerFn(func(_, _ common.Address, _, _ *uint256.Int, _ []byte) error {
		return nil
	}), bob, tokenX, uint256.NewInt(100), nil)
	require.ErrorIs(t, err, ErrZeroFlashFee)
}

func TestFlashLoanCeiling(t *testing.T) {
	clock := &manualClock{now: 1_000}
	tokens := NewMemoryTokenState()
	cfg := DefaultConfig()
	cfg.FlashLoanCeiling = uint256.NewInt(50_000)
	eng, err := NewEngine(cfg, nil, tokens, clock, nil, nil)
	require.NoError(t, err)
	seedPool(t, eng, tokens, tokenX, tokenY, 1_000_000)

	err = eng.FlashLoan(borrowerFn(func(_, _ common.Address, _, _ *uint256.Int, _ []byte) error {
		return nil
	}), bob, tokenX, uint256.NewInt(50_001), nil)
	require.ErrorIs(t, err, ErrLoanTooLarge)
}

func TestFlashLoanExceedsInventory(t *testing.T) {
	eng, tokens, _ := newTestEngine(t)
	seedPool(t, eng, tokens, tokenX, tokenY, 1_000_000)

	err := eng.FlashLoan(borrowerFn(func(_, _ common.Address, _, _ *uint256.Int, _ []byte) error {
		return nil
	}), bob, tokenX, uint256.NewInt(2_000_000), nil)
	require.ErrorIs(t, err, ErrInsufficientLiquidity)
}

func TestFlashLoanCallbackCannotReenter(t *testing.T) {
	eng, tokens, _ := newTestEngine(t)
	key := seedPool(t, eng, tokens, tokenX, tokenY, 1_000_000)

	var reentryErr error
	err := eng.FlashLoan(borrowerFn(func(_, token common.Address, amount, fee *uint256.Int, _ []byte) error {
		// The guard is held for the whole envelope.
		_, reentryErr = eng.ExecuteSwap(bob, key, tokenX, amount, nil, 0)
		return reentryErr
	}), bob, tokenX, uint256.NewInt(100_000), nil)
	require.ErrorIs(t, reentryErr, ErrReentrantCall)
	require.ErrorIs(t, err, ErrLoanNotRepaid)
	require.Equal(t, uint64(1_000_000), tokens.BalanceOf(tokenX, protocolAddr).Uint64())
}

func TestFlashLoanSwapInsideEnvelope(t *testing.T) {
	eng, tokens, _ := newTestEngine(t)
	key := seedPool(t, eng, tokens, tokenX, tokenY, 1_000_000)

	// Composed under one guard: borrow, trade through the pool with the
	// guard-held handle, repay from proceeds plus pre-held funds.
	fund(tokens, tokenX, bob, 2_000)
	fund(tokens, tokenY, bob, 60_000)
	amount := uint256.NewInt(50_000)

	err := eng.Lock(func(tx *Tx) error {
		return tx.FlashLoan(borrowerFn(func(_, token common.Address, amount, fee *uint256.Int, _ []byte) error {
			out, err := tx.Swap(bob, key, tokenX, amount, nil, 0)
			if err != nil {
				return err
			}
			// Sell the output back for tokenX to simplify repayment.
			if _, err := tx.Swap(bob, key, tokenY, out, nil, 0); err != nil {
				return err
			}
			owed := new(uint256.Int).Add(amount, fee)
			if !tokens.Transfer(token, bob, protocolAddr, owed) {
				return ErrTransferFailed
			}
			return nil
		}), bob, tokenX, amount, nil)
	})
	require.NoError(t, err)

	stats := eng.Statistics()
	require.Equal(t, uint64(2), stats.SwapCount)
	require.Equal(t, uint64(1), stats.FlashLoanCount)
}
