// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package amm

import (
	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/dex/safemath"
)

// CreatePool creates a pool for the token pair at the given fee tier and
// seeds it with the creator's initial deposit. Initial shares are
// floor(sqrt(amountA*amountB)); MinimumLiquidity of them is locked to the
// burn sentinel forever and the remainder is credited to the creator.
func (e *Engine) CreatePool(creator common.Address, tokenA, tokenB common.Address, amountA, amountB *uint256.Int, feeBps uint64) (PoolKey, *uint256.Int, error) {
	var (
		key    PoolKey
		minted *uint256.Int
	)
	err := e.Lock(func(tx *Tx) error {
		var err error
		key, minted, err = tx.CreatePool(creator, tokenA, tokenB, amountA, amountB, feeBps)
		return err
	})
	return key, minted, err
}

// CreatePool is Engine.CreatePool under an already-held guard.
func (tx *Tx) CreatePool(creator common.Address, tokenA, tokenB common.Address, amountA, amountB *uint256.Int, feeBps uint64) (PoolKey, *uint256.Int, error) {
	e := tx.e
	if e.isPaused() {
		return PoolKey{}, nil, ErrPaused
	}
	if tokenA == (common.Address{}) || tokenB == (common.Address{}) {
		return PoolKey{}, nil, ErrInvalidToken
	}
	if tokenA == tokenB {
		return PoolKey{}, nil, ErrIdenticalTokens
	}
	if amountA == nil || amountA.IsZero() || amountB == nil || amountB.IsZero() {
		return PoolKey{}, nil, ErrZeroAmount
	}
	if feeBps < e.cfg.MinFeeBps || feeBps > e.cfg.MaxFeeBps {
		return PoolKey{}, nil, ErrInvalidFee
	}

	key := NewPoolKey(tokenA, tokenB, feeBps)
	if key.TokenA != tokenA {
		amountA, amountB = amountB, amountA
	}
	if e.ledger.HasPool(key) {
		return PoolKey{}, nil, ErrPoolExists
	}

	product, err := safemath.Mul(amountA, amountB)
	if err != nil {
		return PoolKey{}, nil, err
	}
	shares := safemath.Sqrt(product)
	if shares.Cmp(MinimumLiquidity) <= 0 {
		return PoolKey{}, nil, ErrInsufficientLiquidity
	}
	creatorShares := new(uint256.Int).Sub(shares, MinimumLiquidity)

	snap := e.tokens.Snapshot()
	if !e.tokens.TransferFrom(key.TokenA, protocolAddr, creator, protocolAddr, amountA) {
		return PoolKey{}, nil, ErrTransferFailed
	}
	if !e.tokens.TransferFrom(key.TokenB, protocolAddr, creator, protocolAddr, amountB) {
		e.tokens.RevertToSnapshot(snap)
		return PoolKey{}, nil, ErrTransferFailed
	}

	pool := NewPool(key)
	pool.ReserveA.Set(amountA)
	pool.ReserveB.Set(amountB)
	pool.TotalShares.Set(shares)
	pool.LastUpdate = e.clock.Now()

	if err := e.ledger.PutPool(pool); err != nil {
		e.tokens.RevertToSnapshot(snap)
		return PoolKey{}, nil, err
	}
	if err := e.ledger.CreditShares(key, burnAddr, MinimumLiquidity); err != nil {
		return PoolKey{}, nil, err
	}
	if err := e.ledger.CreditShares(key, creator, creatorShares); err != nil {
		return PoolKey{}, nil, err
	}
	if err := e.ledger.recordPoolCreated(); err != nil {
		return PoolKey{}, nil, err
	}

	e.log.Info("pool created",
		"tokenA", key.TokenA, "tokenB", key.TokenB, "feeBps", feeBps,
		"shares", shares, "creator", creator)
	return key, creatorShares, nil
}

// AddLiquidity deposits a paired amount preserving the current price ratio
// and mints shares proportional to the contribution.
func (e *Engine) AddLiquidity(provider common.Address, key PoolKey, amountADesired, amountBDesired, amountAMin, amountBMin *uint256.Int, deadline uint64) (*uint256.Int, error) {
	var minted *uint256.Int
	err := e.Lock(func(tx *Tx) error {
		var err error
		minted, err = tx.AddLiquidity(provider, key, amountADesired, amountBDesired, amountAMin, amountBMin, deadline)
		return err
	})
	return minted, err
}

// AddLiquidity is Engine.AddLiquidity under an already-held guard.
func (tx *Tx) AddLiquidity(provider common.Address, key PoolKey, amountADesired, amountBDesired, amountAMin, amountBMin *uint256.Int, deadline uint64) (*uint256.Int, error) {
	e := tx.e
	if e.isPaused() {
		return nil, ErrPaused
	}
	now := e.clock.Now()
	if deadline != 0 && now > deadline {
		return nil, ErrDeadlineExpired
	}
	if amountADesired == nil || amountADesired.IsZero() || amountBDesired == nil || amountBDesired.IsZero() {
		return nil, ErrZeroAmount
	}

	pool, err := e.ledger.GetPool(key)
	if err != nil {
		return nil, err
	}
	if !pool.Active {
		return nil, ErrPoolInactive
	}

	amountA, amountB := amountADesired, amountBDesired
	if !pool.ReserveA.IsZero() || !pool.ReserveB.IsZero() {
		// Pair to the pool's current price ratio, preferring the A axis and
		// falling back to B when the optimal B exceeds the desire.
		amountBOptimal, err := safemath.MulDiv(amountADesired, pool.ReserveB, pool.ReserveA)
		if err != nil {
			return nil, err
		}
		if amountBOptimal.Cmp(amountBDesired) <= 0 {
			if amountBMin != nil && amountBOptimal.Cmp(amountBMin) < 0 {
				return nil, ErrSlippageExceeded
			}
			amountB = amountBOptimal
		} else {
			amountAOptimal, err := safemath.MulDiv(amountBDesired, pool.ReserveA, pool.ReserveB)
			if err != nil {
				return nil, err
			}
			if amountAOptimal.Cmp(amountADesired) > 0 {
				return nil, ErrSlippageExceeded
			}
			if amountAMin != nil && amountAOptimal.Cmp(amountAMin) < 0 {
				return nil, ErrSlippageExceeded
			}
			amountA = amountAOptimal
		}
	}

	var minted *uint256.Int
	if pool.TotalShares.IsZero() {
		product, err := safemath.Mul(amountA, amountB)
		if err != nil {
			return nil, err
		}
		minted = safemath.Sqrt(product)
	} else {
		minted, err = safemath.MulDiv(amountA, pool.TotalShares, pool.ReserveA)
		if err != nil {
			return nil, err
		}
	}
	if minted.IsZero() {
		return nil, ErrInsufficientLiquidity
	}

	snap := e.tokens.Snapshot()
	if !e.tokens.TransferFrom(key.TokenA, protocolAddr, provider, protocolAddr, amountA) {
		return nil, ErrTransferFailed
	}
	if !e.tokens.TransferFrom(key.TokenB, protocolAddr, provider, protocolAddr, amountB) {
		e.tokens.RevertToSnapshot(snap)
		return nil, ErrTransferFailed
	}

	updated := pool.Copy()
	updateCumulativePrices(updated, now)
	updated.ReserveA.Add(updated.ReserveA, amountA)
	updated.ReserveB.Add(updated.ReserveB, amountB)
	updated.TotalShares.Add(updated.TotalShares, minted)

	if err := e.ledger.PutPool(updated); err != nil {
		e.tokens.RevertToSnapshot(snap)
		return nil, err
	}
	if err := e.ledger.CreditShares(key, provider, minted); err != nil {
		return nil, err
	}

	e.log.Debug("liquidity added",
		"pool", key, "amountA", amountA, "amountB", amountB,
		"shares", minted, "provider", provider)
	return minted, nil
}

// RemoveLiquidity burns the provider's shares and withdraws the
// proportional amounts of both reserves.
func (e *Engine) RemoveLiquidity(provider common.Address, key PoolKey, shares, amountAMin, amountBMin *uint256.Int, deadline uint64) (*uint256.Int, *uint256.Int, error) {
	var amountA, amountB *uint256.Int
	err := e.Lock(func(tx *Tx) error {
		var err error
		amountA, amountB, err = tx.RemoveLiquidity(provider, key, shares, amountAMin, amountBMin, deadline)
		return err
	})
	return amountA, amountB, err
}

// RemoveLiquidity is Engine.RemoveLiquidity under an already-held guard.
// Withdrawal is allowed from inactive pools; deactivation only blocks new
// deposits and swaps.
func (tx *Tx) RemoveLiquidity(provider common.Address, key PoolKey, shares, amountAMin, amountBMin *uint256.Int, deadline uint64) (*uint256.Int, *uint256.Int, error) {
	e := tx.e
	if e.isPaused() {
		return nil, nil, ErrPaused
	}
	now := e.clock.Now()
	if deadline != 0 && now > deadline {
		return nil, nil, ErrDeadlineExpired
	}
	if shares == nil || shares.IsZero() {
		return nil, nil, ErrZeroAmount
	}

	pool, err := e.ledger.GetPool(key)
	if err != nil {
		return nil, nil, err
	}
	if e.ledger.ShareBalance(key, provider).Cmp(shares) < 0 {
		return nil, nil, ErrInsufficientBalance
	}

	amountA, err := safemath.MulDiv(shares, pool.ReserveA, pool.TotalShares)
	if err != nil {
		return nil, nil, err
	}
	amountB, err := safemath.MulDiv(shares, pool.ReserveB, pool.TotalShares)
	if err != nil {
		return nil, nil, err
	}
	if amountA.IsZero() || amountB.IsZero() {
		return nil, nil, ErrInsufficientLiquidity
	}
	if amountAMin != nil && amountA.Cmp(amountAMin) < 0 {
		return nil, nil, ErrSlippageExceeded
	}
	if amountBMin != nil && amountB.Cmp(amountBMin) < 0 {
		return nil, nil, ErrSlippageExceeded
	}

	snap := e.tokens.Snapshot()
	if !e.tokens.Transfer(key.TokenA, protocolAddr, provider, amountA) {
		return nil, nil, ErrTransferFailed
	}
	if !e.tokens.Transfer(key.TokenB, protocolAddr, provider, amountB) {
		e.tokens.RevertToSnapshot(snap)
		return nil, nil, ErrTransferFailed
	}

	updated := pool.Copy()
	updateCumulativePrices(updated, now)
	updated.ReserveA.Sub(updated.ReserveA, amountA)
	updated.ReserveB.Sub(updated.ReserveB, amountB)
	updated.TotalShares.Sub(updated.TotalShares, shares)

	if err := e.ledger.PutPool(updated); err != nil {
		e.tokens.RevertToSnapshot(snap)
		return nil, nil, err
	}
	if err := e.ledger.DebitShares(key, provider, shares); err != nil {
		return nil, nil, err
	}

	e.log.Debug("liquidity removed",
		"pool", key, "amountA", amountA, "amountB", amountB,
		"shares", shares, "provider", provider)
	return amountA, amountB, nil
}
