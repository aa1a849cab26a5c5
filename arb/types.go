// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package arb implements the arbitrage engine: detection of profitable
// price discrepancies across the AMM's pools and execution of the detected
// trade sequences, optionally funded by a flash loan.
package arb

import (
	"errors"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/dex/amm"
)

// Kind tags the detection strategy that produced an opportunity.
type Kind uint8

const (
	KindSimple Kind = iota
	KindTriangular
	KindCrossPool
	KindFlashFunded
)

// String returns the strategy name.
func (k Kind) String() string {
	switch k {
	case KindSimple:
		return "simple"
	case KindTriangular:
		return "triangular"
	case KindCrossPool:
		return "cross-pool"
	case KindFlashFunded:
		return "flash-funded"
	default:
		return "unknown"
	}
}

// Meta carries the fields common to every opportunity: the ordered pools
// and token hops of the route, the simulated intermediate amounts, the
// profit estimate, scoring, and the expiry past which the opportunity is
// worthless.
type Meta struct {
	Pools   []amm.PoolKey
	Path    []common.Address
	Amounts []*uint256.Int

	GrossProfit   *uint256.Int
	ExecutionCost *uint256.Int
	NetProfit     *uint256.Int

	// Confidence in basis points; Priority is the confidence-weighted net
	// profit used for ranking.
	Confidence uint64
	Priority   *uint256.Int

	// MEVRisk scores front-running exposure from 0 to 100: larger trades
	// over shorter paths score higher.
	MEVRisk uint64

	Expiry uint64
}

// Opportunity is the sum type over the four strategies. Each concrete type
// carries exactly the fields its execution path needs; the executor
// dispatches on the concrete type.
type Opportunity interface {
	Kind() Kind
	Meta() *Meta
}

// Simple is a two-hop round trip between two pools on the same pair.
type Simple struct {
	meta Meta
}

func (o *Simple) Kind() Kind  { return KindSimple }
func (o *Simple) Meta() *Meta { return &o.meta }

// Triangular is a three-hop cycle through three pools.
type Triangular struct {
	meta Meta
}

func (o *Triangular) Kind() Kind  { return KindTriangular }
func (o *Triangular) Meta() *Meta { return &o.meta }

// CrossPool is a two-hop round trip detected among more than two pools on
// the same pair.
type CrossPool struct {
	meta Meta
}

func (o *CrossPool) Kind() Kind  { return KindCrossPool }
func (o *CrossPool) Meta() *Meta { return &o.meta }

// FlashFunded is a round trip whose input is borrowed under a flash loan;
// the loan fee is already credited against NetProfit.
type FlashFunded struct {
	meta Meta

	LoanToken  common.Address
	LoanAmount *uint256.Int
}

func (o *FlashFunded) Kind() Kind  { return KindFlashFunded }
func (o *FlashFunded) Meta() *Meta { return &o.meta }

// Opportunity errors. Expired or risk-gated opportunities are expected
// steady-state outcomes, not faults; callers drop them and move on.
var (
	ErrOpportunityExpired = errors.New("opportunity expired")
	ErrMEVRiskTooHigh     = errors.New("MEV risk above threshold")
	ErrTradeFailed        = errors.New("trade produced zero output")
	ErrUnknownOpportunity = errors.New("unknown opportunity type")
)
