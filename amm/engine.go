// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package amm

import (
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/database"
	"github.com/luxfi/geth/common"
	log "github.com/luxfi/log"
)

// Config carries the protocol policy constants.
type Config struct {
	DefaultFeeBps    uint64
	MinFeeBps        uint64
	MaxFeeBps        uint64
	ProtocolFeeBps   uint64 // protocol share of each swap fee
	FlashFeeBps      uint64
	FlashLoanCeiling *uint256.Int // per-loan maximum, nil = unlimited
	Treasury         common.Address
}

// DefaultConfig returns the standard policy.
func DefaultConfig() Config {
	return Config{
		DefaultFeeBps:  DefaultFeeBps,
		MinFeeBps:      MinFeeBps,
		MaxFeeBps:      MaxFeeBps,
		ProtocolFeeBps: DefaultProtocolFeeBps,
		FlashFeeBps:    DefaultFlashFeeBps,
	}
}

// Validate checks the configuration bounds.
func (c Config) Validate() error {
	if c.MinFeeBps == 0 || c.MaxFeeBps >= BpsDenominator || c.MinFeeBps > c.MaxFeeBps {
		return ErrInvalidFee
	}
	if c.DefaultFeeBps < c.MinFeeBps || c.DefaultFeeBps > c.MaxFeeBps {
		return ErrInvalidFee
	}
	if c.ProtocolFeeBps >= BpsDenominator || c.FlashFeeBps >= BpsDenominator {
		return ErrInvalidFee
	}
	return nil
}

// Engine is the single entry point into the AMM core. Every public
// operation runs to completion under a reentrancy guard with no
// interleaving; nested re-entry while the guard is held is rejected rather
// than queued.
type Engine struct {
	cfg    Config
	ledger *Ledger
	tokens TokenState
	clock  Clock
	auth   Authorizer
	log    log.Logger

	// mu protects the guard flag; locked is the reentrancy guard itself.
	mu     sync.Mutex
	locked bool
	paused bool
}

// NewEngine creates an engine. A nil db keeps the ledger in memory only; a
// nil authorizer rejects all administrative calls.
func NewEngine(cfg Config, db database.Database, tokens TokenState, clock Clock, auth Authorizer, logger log.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewTestLogger(log.InfoLevel)
	}
	ledger, err := NewLedger(db, logger)
	if err != nil {
		return nil, err
	}
	return &Engine{
		cfg:    cfg,
		ledger: ledger,
		tokens: tokens,
		clock:  clock,
		auth:   auth,
		log:    logger,
	}, nil
}

// Lock acquires the reentrancy guard, runs fn with a transaction handle,
// and releases the guard on every exit path. An operation already holding
// the guard fails with ErrReentrantCall.
func (e *Engine) Lock(fn func(tx *Tx) error) error {
	e.mu.Lock()
	if e.locked {
		e.mu.Unlock()
		return ErrReentrantCall
	}
	e.locked = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.locked = false
		e.mu.Unlock()
	}()

	return fn(&Tx{e: e})
}

// Tx is the handle to guarded operations. It is valid only for the duration
// of the Lock callback that produced it.
type Tx struct {
	e *Engine
}

// Ledger returns the pool ledger for read-only access.
func (e *Engine) Ledger() *Ledger { return e.ledger }

// Tokens returns the token transfer collaborator.
func (e *Engine) Tokens() TokenState { return e.tokens }

// ProtocolAccount returns the address holding pool inventory.
func (e *Engine) ProtocolAccount() common.Address { return protocolAddr }

// Config returns the active policy constants.
func (e *Engine) Config() Config { return e.cfg }

// Clock returns the environment clock.
func (e *Engine) Clock() Clock { return e.clock }

func (e *Engine) isPaused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}
