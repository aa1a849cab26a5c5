// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package amm

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/dex/safemath"
)

// QuoteOutput computes the constant-product output for an exact input:
//
//	amountInNet = amountIn * (10000 - feeBps)
//	amountOut   = floor(amountInNet * reserveOut / (reserveIn*10000 + amountInNet))
//
// Rounding is downward so the pool never loses value to rounding. The
// function is pure and usable without mutating state.
func QuoteOutput(amountIn, reserveIn, reserveOut *uint256.Int, feeBps uint64) (*uint256.Int, error) {
	if amountIn == nil || amountIn.IsZero() {
		return nil, ErrInsufficientInput
	}
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, ErrInsufficientLiquidity
	}
	if feeBps >= BpsDenominator {
		return nil, ErrInvalidFee
	}

	net, err := safemath.Mul(amountIn, uint256.NewInt(BpsDenominator-feeBps))
	if err != nil {
		return nil, err
	}
	scaledIn, err := safemath.Mul(reserveIn, uint256.NewInt(BpsDenominator))
	if err != nil {
		return nil, err
	}
	denom, err := safemath.Add(scaledIn, net)
	if err != nil {
		return nil, err
	}
	return safemath.MulDiv(net, reserveOut, denom)
}

// QuoteInput computes the exact input required for a desired output, the
// algebraic inverse of QuoteOutput rounded up so the pool never loses value:
//
//	amountIn = floor(reserveIn*amountOut*10000 / ((reserveOut-amountOut)*(10000-feeBps))) + 1
func QuoteInput(amountOut, reserveIn, reserveOut *uint256.Int, feeBps uint64) (*uint256.Int, error) {
	if amountOut == nil || amountOut.IsZero() {
		return nil, ErrInsufficientOutput
	}
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, ErrInsufficientLiquidity
	}
	if amountOut.Cmp(reserveOut) >= 0 {
		return nil, ErrInsufficientLiquidity
	}
	if feeBps >= BpsDenominator {
		return nil, ErrInvalidFee
	}

	num, err := safemath.Mul(reserveIn, amountOut)
	if err != nil {
		return nil, err
	}
	remaining := new(uint256.Int).Sub(reserveOut, amountOut)
	denom, err := safemath.Mul(remaining, uint256.NewInt(BpsDenominator-feeBps))
	if err != nil {
		return nil, err
	}
	in, err := safemath.MulDiv(num, uint256.NewInt(BpsDenominator), denom)
	if err != nil {
		return nil, err
	}
	return safemath.Add(in, uint256.NewInt(1))
}

// checkSwapInvariant asserts that the fee-scaled constant product does not
// decrease:
//
//	(reserveIn*10000 + amountIn*(10000-feeBps)) * (reserveOut - amountOut)
//	    >= reserveIn * reserveOut * 10000
//
// The comparison runs at full precision; a violation indicates an
// arithmetic bug or adversarial input and is fatal to the operation.
func checkSwapInvariant(reserveIn, reserveOut, amountIn, amountOut *uint256.Int, feeBps uint64) error {
	bps := big.NewInt(int64(BpsDenominator))

	lhs := new(big.Int).Mul(reserveIn.ToBig(), bps)
	net := new(big.Int).Mul(amountIn.ToBig(), big.NewInt(int64(BpsDenominator-feeBps)))
	lhs.Add(lhs, net)
	lhs.Mul(lhs, new(big.Int).Sub(reserveOut.ToBig(), amountOut.ToBig()))

	rhs := new(big.Int).Mul(reserveIn.ToBig(), reserveOut.ToBig())
	rhs.Mul(rhs, bps)

	if lhs.Cmp(rhs) < 0 {
		return fmt.Errorf("%w: lhs=%s rhs=%s", ErrInvariantViolation, lhs, rhs)
	}
	return nil
}

// ExecuteSwap swaps an exact amountIn of tokenIn against the pool,
// enforcing the caller's minimum output and the K-invariant. The whole
// operation runs under the reentrancy guard.
func (e *Engine) ExecuteSwap(trader common.Address, key PoolKey, tokenIn common.Address, amountIn, minAmountOut *uint256.Int, deadline uint64) (*uint256.Int, error) {
	var out *uint256.Int
	err := e.Lock(func(tx *Tx) error {
		var err error
		out, err = tx.Swap(trader, key, tokenIn, amountIn, minAmountOut, deadline)
		return err
	})
	return out, err
}

// Swap is ExecuteSwap under an already-held guard.
func (tx *Tx) Swap(trader common.Address, key PoolKey, tokenIn common.Address, amountIn, minAmountOut *uint256.Int, deadline uint64) (*uint256.Int, error) {
	e := tx.e
	if e.isPaused() {
		return nil, ErrPaused
	}
	now := e.clock.Now()
	if deadline != 0 && now > deadline {
		return nil, ErrDeadlineExpired
	}

	pool, err := e.ledger.GetPool(key)
	if err != nil {
		return nil, err
	}
	if !pool.Active {
		return nil, ErrPoolInactive
	}
	reserveIn, reserveOut, ok := pool.Reserves(tokenIn)
	if !ok {
		return nil, ErrInvalidToken
	}

	amountOut, err := QuoteOutput(amountIn, reserveIn, reserveOut, pool.FeeBps)
	if err != nil {
		return nil, err
	}
	if minAmountOut != nil && amountOut.Cmp(minAmountOut) < 0 {
		return nil, ErrSlippageExceeded
	}
	if amountOut.Cmp(reserveOut) >= 0 {
		// The pool can never be fully drained.
		return nil, ErrInsufficientLiquidity
	}
	if err := checkSwapInvariant(reserveIn, reserveOut, amountIn, amountOut, pool.FeeBps); err != nil {
		return nil, err
	}

	// Fee split: the protocol share is skimmed out of the reserves into the
	// pool's protocol-fee accumulator, the rest accrues to LPs in-reserve.
	feeAmount := new(uint256.Int).Mul(amountIn, uint256.NewInt(pool.FeeBps))
	feeAmount.Div(feeAmount, uint256.NewInt(BpsDenominator))
	protocolFee := new(uint256.Int).Mul(feeAmount, uint256.NewInt(e.cfg.ProtocolFeeBps))
	protocolFee.Div(protocolFee, uint256.NewInt(BpsDenominator))
	lpFee := new(uint256.Int).Sub(feeAmount, protocolFee)

	// Move tokens before committing reserves; any failure reverts both legs.
	snap := e.tokens.Snapshot()
	tokenOut := key.Other(tokenIn)
	if e.tokens.Allowance(tokenIn, trader, protocolAddr).Cmp(amountIn) < 0 {
		return nil, ErrInsufficientAllowance
	}
	if !e.tokens.TransferFrom(tokenIn, protocolAddr, trader, protocolAddr, amountIn) {
		return nil, ErrTransferFailed
	}
	if !e.tokens.Transfer(tokenOut, protocolAddr, trader, amountOut) {
		e.tokens.RevertToSnapshot(snap)
		return nil, ErrTransferFailed
	}

	updated := pool.Copy()
	updateCumulativePrices(updated, now)

	newIn := new(uint256.Int).Add(reserveIn, amountIn)
	newIn.Sub(newIn, protocolFee)
	newOut := new(uint256.Int).Sub(reserveOut, amountOut)
	if tokenIn == key.TokenA {
		updated.ReserveA = newIn
		updated.ReserveB = newOut
		updated.ProtocolFeesA.Add(updated.ProtocolFeesA, protocolFee)
	} else {
		updated.ReserveB = newIn
		updated.ReserveA = newOut
		updated.ProtocolFeesB.Add(updated.ProtocolFeesB, protocolFee)
	}

	if err := e.ledger.PutPool(updated); err != nil {
		e.tokens.RevertToSnapshot(snap)
		return nil, err
	}
	if err := e.ledger.recordSwap(amountIn, lpFee, protocolFee); err != nil {
		return nil, err
	}

	e.log.Debug("swap executed",
		"tokenIn", tokenIn, "amountIn", amountIn, "amountOut", amountOut,
		"feeBps", pool.FeeBps, "trader", trader)
	return amountOut, nil
}

// Donate adds tokens to a pool's reserves without minting shares,
// increasing the value of every existing share.
func (e *Engine) Donate(from common.Address, key PoolKey, token common.Address, amount *uint256.Int) error {
	return e.Lock(func(tx *Tx) error {
		return tx.Donate(from, key, token, amount)
	})
}

// Donate is Engine.Donate under an already-held guard.
func (tx *Tx) Donate(from common.Address, key PoolKey, token common.Address, amount *uint256.Int) error {
	e := tx.e
	if e.isPaused() {
		return ErrPaused
	}
	if amount == nil || amount.IsZero() {
		return ErrZeroAmount
	}
	pool, err := e.ledger.GetPool(key)
	if err != nil {
		return err
	}
	if pool.TotalShares.IsZero() {
		return ErrInsufficientLiquidity
	}
	if !key.Contains(token) {
		return ErrInvalidToken
	}

	if !e.tokens.TransferFrom(token, protocolAddr, from, protocolAddr, amount) {
		return ErrTransferFailed
	}

	updated := pool.Copy()
	updateCumulativePrices(updated, e.clock.Now())
	if token == key.TokenA {
		updated.ReserveA.Add(updated.ReserveA, amount)
	} else {
		updated.ReserveB.Add(updated.ReserveB, amount)
	}
	return e.ledger.PutPool(updated)
}
