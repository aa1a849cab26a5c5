// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package amm implements a constant-product automated market maker core:
// a pool ledger, fee-aware swap math, liquidity share accounting, a
// time-weighted price oracle and an atomic flash-loan coordinator.
//
// The package is a library embedded by a host execution environment. Role
// checks, persistent storage mechanics beyond the database interface,
// scheduling and event emission are host concerns.
package amm

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/zeebo/blake3"

	"github.com/luxfi/dex/registry"
)

// Protocol addresses. The protocol account holds pool inventory; the burn
// sentinel permanently holds the minimum-liquidity lock of every pool.
const (
	ProtocolAddress = registry.AMMEngineAddress
	BurnAddress     = registry.BurnAddress
)

var (
	protocolAddr = common.HexToAddress(ProtocolAddress)
	burnAddr     = common.HexToAddress(BurnAddress)
)

// Basis-point arithmetic constants.
const (
	BpsDenominator uint64 = 10_000

	// Pool fee bounds. A fee of BpsDenominator or more would consume the
	// entire input.
	MinFeeBps     uint64 = 1
	MaxFeeBps     uint64 = 9_999
	DefaultFeeBps uint64 = 30

	// DefaultFlashFeeBps is the default flash-loan fee (0.09%).
	DefaultFlashFeeBps uint64 = 9

	// DefaultProtocolFeeBps is the default protocol share of swap fees.
	DefaultProtocolFeeBps uint64 = 1_000
)

// MinimumLiquidity is the share amount permanently locked to the burn
// sentinel on pool creation, preventing total-supply collapse to zero.
var MinimumLiquidity = uint256.NewInt(1_000)

// PriceScale is the fixed-point scale for oracle prices (18 decimals).
var PriceScale = uint256.NewInt(1_000_000_000_000_000_000)

// PoolKey uniquely identifies a pool: a canonical (sorted) token pair plus
// a fee tier. The same pair may exist at several fee tiers; those are
// distinct pools.
type PoolKey struct {
	TokenA common.Address // Lower address token
	TokenB common.Address // Higher address token
	FeeBps uint64
}

// NewPoolKey canonicalizes the token order so (A,B) and (B,A) map to the
// same key.
func NewPoolKey(tokenA, tokenB common.Address, feeBps uint64) PoolKey {
	if bytes.Compare(tokenA.Bytes(), tokenB.Bytes()) > 0 {
		tokenA, tokenB = tokenB, tokenA
	}
	return PoolKey{TokenA: tokenA, TokenB: tokenB, FeeBps: feeBps}
}

// PairID identifies the unordered token pair regardless of fee tier.
func (k PoolKey) PairID() [32]byte {
	h := blake3.New()
	h.Write(k.TokenA.Bytes())
	h.Write(k.TokenB.Bytes())
	var id [32]byte
	h.Digest().Read(id[:])
	return id
}

// ID computes the unique pool identifier.
func (k PoolKey) ID() [32]byte {
	h := blake3.New()
	h.Write(k.TokenA.Bytes())
	h.Write(k.TokenB.Bytes())
	var feeBytes [8]byte
	binary.BigEndian.PutUint64(feeBytes[:], k.FeeBps)
	h.Write(feeBytes[:])
	var id [32]byte
	h.Digest().Read(id[:])
	return id
}

// Contains returns true if the pool trades the given token.
func (k PoolKey) Contains(token common.Address) bool {
	return k.TokenA == token || k.TokenB == token
}

// Other returns the counterpart token of the pair, or the zero address if
// token is not in the pair.
func (k PoolKey) Other(token common.Address) common.Address {
	switch token {
	case k.TokenA:
		return k.TokenB
	case k.TokenB:
		return k.TokenA
	}
	return common.Address{}
}

// Pool is the authoritative state of one liquidity pool. Reserves and share
// supply are wide unsigned integers supporting 18-decimal tokens. Once any
// liquidity exists both reserves are strictly positive, and the product
// ReserveA*ReserveB never decreases across a swap.
type Pool struct {
	Key PoolKey

	// FeeBps is the live swap fee. It starts at the key's fee tier and may
	// be adjusted through the admin surface within the configured bounds;
	// the tier in the key is the pool's immutable identity.
	FeeBps uint64

	ReserveA    *uint256.Int
	ReserveB    *uint256.Int
	TotalShares *uint256.Int

	// Cumulative prices are monotonically non-decreasing modulo 256-bit
	// wraparound; external readers derive TWAPs from accumulator deltas.
	CumulativePriceA *uint256.Int
	CumulativePriceB *uint256.Int
	LastUpdate       uint64

	// ProtocolFeesA/B accumulate the protocol's share of swap fees until
	// collected through the admin surface.
	ProtocolFeesA *uint256.Int
	ProtocolFeesB *uint256.Int

	Active bool
}

// NewPool creates an empty pool for the given key.
func NewPool(key PoolKey) *Pool {
	return &Pool{
		Key:              key,
		FeeBps:           key.FeeBps,
		ReserveA:         new(uint256.Int),
		ReserveB:         new(uint256.Int),
		TotalShares:      new(uint256.Int),
		CumulativePriceA: new(uint256.Int),
		CumulativePriceB: new(uint256.Int),
		ProtocolFeesA:    new(uint256.Int),
		ProtocolFeesB:    new(uint256.Int),
		Active:           true,
	}
}

// Copy returns a deep copy. Operations mutate a copy and commit on success
// so a failed validation or invariant never publishes partial pool state.
func (p *Pool) Copy() *Pool {
	return &Pool{
		Key:              p.Key,
		FeeBps:           p.FeeBps,
		ReserveA:         new(uint256.Int).Set(p.ReserveA),
		ReserveB:         new(uint256.Int).Set(p.ReserveB),
		TotalShares:      new(uint256.Int).Set(p.TotalShares),
		CumulativePriceA: new(uint256.Int).Set(p.CumulativePriceA),
		CumulativePriceB: new(uint256.Int).Set(p.CumulativePriceB),
		LastUpdate:       p.LastUpdate,
		ProtocolFeesA:    new(uint256.Int).Set(p.ProtocolFeesA),
		ProtocolFeesB:    new(uint256.Int).Set(p.ProtocolFeesB),
		Active:           p.Active,
	}
}

// Reserves returns the reserves oriented by input token: reserveIn is the
// side of tokenIn. ok is false if tokenIn is not in the pair.
func (p *Pool) Reserves(tokenIn common.Address) (reserveIn, reserveOut *uint256.Int, ok bool) {
	switch tokenIn {
	case p.Key.TokenA:
		return p.ReserveA, p.ReserveB, true
	case p.Key.TokenB:
		return p.ReserveB, p.ReserveA, true
	}
	return nil, nil, false
}

// FlashLoanStatus tracks the borrow/execute/repay envelope state machine.
// Defaulted is terminal and fatal to the enclosing operation.
type FlashLoanStatus uint8

const (
	FlashLoanIssued FlashLoanStatus = iota
	FlashLoanVerified
	FlashLoanDefaulted
)

// String returns a human-readable status.
func (s FlashLoanStatus) String() string {
	switch s {
	case FlashLoanIssued:
		return "issued"
	case FlashLoanVerified:
		return "verified"
	case FlashLoanDefaulted:
		return "defaulted"
	default:
		return "unknown"
	}
}

// FlashLoanRecord is ephemeral: it exists only for the duration of one
// borrow/execute/repay envelope and is never persisted.
type FlashLoanRecord struct {
	Borrower common.Address
	Token    common.Address
	Amount   *uint256.Int
	Fee      *uint256.Int
	Deadline uint64
	Payload  []byte
	Status   FlashLoanStatus
}

// FlashBorrower is the callback collaborator exposed to flash-loan users.
// The borrower must end the call having returned principal plus fee to the
// protocol account, or the loan reverts. Repayment is measured on the
// protocol's unreserved balance, so the borrower may trade through pools
// inside the envelope.
type FlashBorrower interface {
	OnFlashLoan(initiator, token common.Address, amount, fee *uint256.Int, payload []byte) error
}

// TokenState is the token transfer collaborator. Transfers can fail; every
// result is checked and a failure aborts the enclosing operation. Snapshot
// and RevertToSnapshot give the coordinator all-or-nothing settlement.
type TokenState interface {
	BalanceOf(token, account common.Address) *uint256.Int
	Allowance(token, owner, spender common.Address) *uint256.Int
	Transfer(token, from, to common.Address, amount *uint256.Int) bool
	TransferFrom(token, spender, from, to common.Address, amount *uint256.Int) bool
	Snapshot() int
	RevertToSnapshot(id int)
}

// Clock supplies monotonically increasing unix-second time. Deadlines are
// compared against it; expired deadlines reject before any state mutation.
type Clock interface {
	Now() uint64
}

// Authorizer gates the administrative surface. Role semantics are a host
// concern.
type Authorizer interface {
	CanAdmin(account common.Address) bool
}

// Validation errors: rejected before any state mutation, recoverable by
// the caller retrying with corrected input.
var (
	ErrIdenticalTokens = errors.New("identical token identifiers")
	ErrInvalidToken    = errors.New("invalid token identifier")
	ErrZeroAmount      = errors.New("zero amount")
	ErrInvalidFee      = errors.New("fee out of range")
	ErrZeroFlashFee    = errors.New("flash fee rounds to zero")
	ErrDeadlineExpired = errors.New("deadline expired")
	ErrPaused          = errors.New("protocol paused")
	ErrPoolInactive    = errors.New("pool inactive")
	ErrPoolExists      = errors.New("pool already exists")
	ErrPoolNotFound    = errors.New("pool not found")
	ErrLoanTooLarge    = errors.New("flash loan exceeds ceiling")
)

// Invariant errors: fatal to the current operation; the operation's effects
// are discarded as a unit and never retried automatically.
var (
	ErrInvariantViolation = errors.New("constant-product invariant violated")
	ErrLoanNotRepaid      = errors.New("flash loan not repaid")
	ErrReentrantCall      = errors.New("reentrant call")
)

// Liquidity errors: recoverable, surfaced to the caller. Retry policy is a
// caller concern.
var (
	ErrInsufficientInput     = errors.New("insufficient input amount")
	ErrInsufficientOutput    = errors.New("insufficient output amount")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrSlippageExceeded      = errors.New("slippage exceeded")
	ErrTransferFailed        = errors.New("token transfer failed")
	ErrUnauthorized          = errors.New("unauthorized")
)
