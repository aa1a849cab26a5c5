// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package amm

import (
	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
)

// The administrative surface: simple setters gated by the external
// authorizer. None of these participate in the hard core invariants.

func (e *Engine) requireAdmin(caller common.Address) error {
	if e.auth == nil || !e.auth.CanAdmin(caller) {
		return ErrUnauthorized
	}
	return nil
}

// Pause halts all mutating operations.
func (e *Engine) Pause(caller common.Address) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	e.mu.Lock()
	e.paused = true
	e.mu.Unlock()
	e.log.Info("protocol paused", "caller", caller)
	return nil
}

// Unpause resumes operation.
func (e *Engine) Unpause(caller common.Address) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	e.mu.Lock()
	e.paused = false
	e.mu.Unlock()
	e.log.Info("protocol unpaused", "caller", caller)
	return nil
}

// SetPoolActive enables or disables a pool. Inactive pools refuse swaps and
// deposits but still honor withdrawals; pools are never deleted.
func (e *Engine) SetPoolActive(caller common.Address, key PoolKey, active bool) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	return e.Lock(func(tx *Tx) error {
		pool, err := e.ledger.GetPool(key)
		if err != nil {
			return err
		}
		updated := pool.Copy()
		updated.Active = active
		return e.ledger.PutPool(updated)
	})
}

// SetPoolFee adjusts a pool's live swap fee within the configured bounds.
// The fee tier in the pool's key is identity and does not change.
func (e *Engine) SetPoolFee(caller common.Address, key PoolKey, feeBps uint64) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if feeBps < e.cfg.MinFeeBps || feeBps > e.cfg.MaxFeeBps {
		return ErrInvalidFee
	}
	return e.Lock(func(tx *Tx) error {
		pool, err := e.ledger.GetPool(key)
		if err != nil {
			return err
		}
		updated := pool.Copy()
		updated.FeeBps = feeBps
		if err := e.ledger.PutPool(updated); err != nil {
			return err
		}
		e.log.Info("pool fee updated", "pool", key, "feeBps", feeBps, "caller", caller)
		return nil
	})
}

// SetProtocolFeeBps adjusts the protocol's share of swap fees.
func (e *Engine) SetProtocolFeeBps(caller common.Address, bps uint64) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if bps >= BpsDenominator {
		return ErrInvalidFee
	}
	return e.Lock(func(tx *Tx) error {
		e.cfg.ProtocolFeeBps = bps
		return nil
	})
}

// CollectProtocolFees transfers a pool's accumulated protocol fees to the
// treasury.
func (e *Engine) CollectProtocolFees(caller common.Address, key PoolKey) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	return e.Lock(func(tx *Tx) error {
		pool, err := e.ledger.GetPool(key)
		if err != nil {
			return err
		}
		updated := pool.Copy()
		snap := e.tokens.Snapshot()
		if !updated.ProtocolFeesA.IsZero() {
			if !e.tokens.Transfer(key.TokenA, protocolAddr, e.cfg.Treasury, updated.ProtocolFeesA) {
				return ErrTransferFailed
			}
			updated.ProtocolFeesA = new(uint256.Int)
		}
		if !updated.ProtocolFeesB.IsZero() {
			if !e.tokens.Transfer(key.TokenB, protocolAddr, e.cfg.Treasury, updated.ProtocolFeesB) {
				e.tokens.RevertToSnapshot(snap)
				return ErrTransferFailed
			}
			updated.ProtocolFeesB = new(uint256.Int)
		}
		if err := e.ledger.PutPool(updated); err != nil {
			e.tokens.RevertToSnapshot(snap)
			return err
		}
		return nil
	})
}
