// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package arb

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	log "github.com/luxfi/log"

	"github.com/luxfi/dex/amm"
)

// ExecutorConfig controls risk gating and profit distribution.
type ExecutorConfig struct {
	// Operator funds trades and receives the operator share of profit.
	Operator common.Address

	// Treasury and Insurance receive their shares on every realized profit.
	Treasury  common.Address
	Insurance common.Address

	// MEVRiskThreshold rejects opportunities scoring above it.
	MEVRiskThreshold uint64

	// ProtectionWindowSecs lets an opportunity above the risk threshold
	// execute anyway while at least this many seconds remain before its
	// expiry, i.e. only while the detection-time state is still fresh.
	// Zero disables high-risk execution entirely.
	ProtectionWindowSecs uint64

	// Profit split in basis points. Must sum to the full denominator; the
	// operator share is whatever remains with the operator after the other
	// three are paid out.
	PoolShareBps      uint64
	TreasuryShareBps  uint64
	OperatorShareBps  uint64
	InsuranceShareBps uint64
}

// DefaultExecutorConfig returns the standard split: 60% back to the pools
// traded through, 25% treasury, 10% operator, 5% insurance.
func DefaultExecutorConfig(operator, treasury, insurance common.Address) ExecutorConfig {
	return ExecutorConfig{
		Operator:          operator,
		Treasury:          treasury,
		Insurance:         insurance,
		MEVRiskThreshold:  80,
		PoolShareBps:      6_000,
		TreasuryShareBps:  2_500,
		OperatorShareBps:  1_000,
		InsuranceShareBps: 500,
	}
}

// Validate checks the split covers exactly the whole profit.
func (c ExecutorConfig) Validate() error {
	sum := c.PoolShareBps + c.TreasuryShareBps + c.OperatorShareBps + c.InsuranceShareBps
	if sum != amm.BpsDenominator {
		return fmt.Errorf("profit split sums to %d bps, want %d", sum, amm.BpsDenominator)
	}
	return nil
}

// Executor replays detected opportunities against the live engine. A whole
// route either lands or is rolled back; partial fills are never left behind.
type Executor struct {
	engine *amm.Engine
	cfg    ExecutorConfig
	log    log.Logger
}

// NewExecutor creates an executor trading on behalf of cfg.Operator.
func NewExecutor(engine *amm.Engine, cfg ExecutorConfig, logger log.Logger) (*Executor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewTestLogger(log.InfoLevel)
	}
	return &Executor{engine: engine, cfg: cfg, log: logger}, nil
}

// Execute validates, replays, and settles one opportunity, returning the
// realized net profit in the route's input token. Expiry and risk checks
// happen against current state, not detection-time state.
func (x *Executor) Execute(opp Opportunity) (*uint256.Int, error) {
	m := opp.Meta()
	now := x.engine.Clock().Now()
	if now > m.Expiry {
		return nil, fmt.Errorf("%w: expired at %d, now %d", ErrOpportunityExpired, m.Expiry, now)
	}
	if m.MEVRisk > x.cfg.MEVRiskThreshold {
		if x.cfg.ProtectionWindowSecs == 0 || m.Expiry-now < x.cfg.ProtectionWindowSecs {
			return nil, fmt.Errorf("%w: score %d, threshold %d", ErrMEVRiskTooHigh, m.MEVRisk, x.cfg.MEVRiskThreshold)
		}
		x.log.Warn("executing high-risk opportunity inside protection window",
			"risk", m.MEVRisk, "expiry", m.Expiry, "now", now)
	}

	var profit *uint256.Int
	err := x.engine.Lock(func(tx *amm.Tx) error {
		tokens := x.engine.Tokens()
		tokenSnap := tokens.Snapshot()
		ledgerSnap := x.engine.Ledger().Snapshot()

		var runErr error
		switch o := opp.(type) {
		case *Simple, *Triangular, *CrossPool:
			profit, runErr = x.runPath(tx, m)
		case *FlashFunded:
			profit, runErr = x.runFlashFunded(tx, o)
		default:
			runErr = fmt.Errorf("%w: %T", ErrUnknownOpportunity, opp)
		}
		if runErr == nil {
			runErr = x.distribute(tx, m, profit)
		}
		if runErr != nil {
			tokens.RevertToSnapshot(tokenSnap)
			if rerr := x.engine.Ledger().Restore(ledgerSnap); rerr != nil {
				return rerr
			}
			return runErr
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	x.log.Info("opportunity executed",
		"kind", opp.Kind().String(),
		"profit", profit.Dec(),
		"hops", len(m.Pools),
	)
	return profit, nil
}

// runPath replays the route hop by hop with operator funds. Amounts are
// re-derived from live reserves rather than trusted from detection time.
func (x *Executor) runPath(tx *amm.Tx, m *Meta) (*uint256.Int, error) {
	amount := new(uint256.Int).Set(m.Amounts[0])
	spent := new(uint256.Int).Set(amount)

	for i, key := range m.Pools {
		out, err := tx.Swap(x.cfg.Operator, key, m.Path[i], amount, uint256.NewInt(1), m.Expiry)
		if err != nil {
			return nil, fmt.Errorf("%w: hop %d: %v", ErrTradeFailed, i, err)
		}
		amount = out
	}
	if amount.Cmp(spent) <= 0 {
		return nil, fmt.Errorf("%w: round trip returned %s for %s in", ErrTradeFailed, amount.Dec(), spent.Dec())
	}
	return new(uint256.Int).Sub(amount, spent), nil
}

// borrowerFunc adapts a closure to the flash-loan callback interface.
type borrowerFunc func(initiator, token common.Address, amount, fee *uint256.Int, payload []byte) error

func (f borrowerFunc) OnFlashLoan(initiator, token common.Address, amount, fee *uint256.Int, payload []byte) error {
	return f(initiator, token, amount, fee, payload)
}

// runFlashFunded executes the route inside a flash-loan envelope: the input
// is borrowed, the hops run, and principal plus fee is repaid from the
// proceeds before the envelope closes.
func (x *Executor) runFlashFunded(tx *amm.Tx, o *FlashFunded) (*uint256.Int, error) {
	m := o.Meta()
	tokens := x.engine.Tokens()
	profit := new(uint256.Int)

	callback := borrowerFunc(func(_, token common.Address, amount, fee *uint256.Int, _ []byte) error {
		proceeds := new(uint256.Int).Set(amount)
		for i, key := range m.Pools {
			out, err := tx.Swap(x.cfg.Operator, key, m.Path[i], proceeds, uint256.NewInt(1), m.Expiry)
			if err != nil {
				return fmt.Errorf("%w: hop %d: %v", ErrTradeFailed, i, err)
			}
			proceeds = out
		}

		owed := new(uint256.Int).Add(amount, fee)
		if proceeds.Cmp(owed) <= 0 {
			return fmt.Errorf("%w: proceeds %s do not cover %s owed", ErrTradeFailed, proceeds.Dec(), owed.Dec())
		}
		if !tokens.Transfer(token, x.cfg.Operator, x.engine.ProtocolAccount(), owed) {
			return amm.ErrTransferFailed
		}
		profit.Sub(proceeds, owed)
		return nil
	})

	if err := tx.FlashLoan(callback, x.cfg.Operator, o.LoanToken, o.LoanAmount, nil); err != nil {
		return nil, err
	}
	return profit, nil
}

// distribute settles realized profit: the pool share is donated pro-rata by
// total shares to the pools traded through, treasury and insurance are paid
// out, and the operator keeps the remainder.
func (x *Executor) distribute(tx *amm.Tx, m *Meta, profit *uint256.Int) error {
	if profit == nil || profit.IsZero() {
		return nil
	}
	token := m.Path[0]
	tokens := x.engine.Tokens()
	bps := uint256.NewInt(amm.BpsDenominator)

	poolShare := new(uint256.Int).Mul(profit, uint256.NewInt(x.cfg.PoolShareBps))
	poolShare.Div(poolShare, bps)
	if !poolShare.IsZero() {
		if err := x.donateToPools(tx, m, token, poolShare); err != nil {
			return err
		}
	}

	for _, cut := range []struct {
		to  common.Address
		bps uint64
	}{
		{x.cfg.Treasury, x.cfg.TreasuryShareBps},
		{x.cfg.Insurance, x.cfg.InsuranceShareBps},
	} {
		amount := new(uint256.Int).Mul(profit, uint256.NewInt(cut.bps))
		amount.Div(amount, bps)
		if amount.IsZero() {
			continue
		}
		if !tokens.Transfer(token, x.cfg.Operator, cut.to, amount) {
			return amm.ErrTransferFailed
		}
	}
	return nil
}

// donateToPools splits the pool share by total LP shares across the pools
// that priced the route, skipping pools that do not trade the profit token.
func (x *Executor) donateToPools(tx *amm.Tx, m *Meta, token common.Address, total *uint256.Int) error {
	type target struct {
		key    amm.PoolKey
		shares *uint256.Int
	}
	var targets []target
	weight := new(uint256.Int)
	for _, key := range m.Pools {
		if !key.Contains(token) {
			continue
		}
		pool, err := x.engine.GetPool(key)
		if err != nil {
			return err
		}
		targets = append(targets, target{key: key, shares: pool.TotalShares})
		weight.Add(weight, pool.TotalShares)
	}
	if len(targets) == 0 || weight.IsZero() {
		// No eligible pool; the share stays with the operator.
		return nil
	}

	for _, t := range targets {
		amount := new(uint256.Int).Mul(total, t.shares)
		amount.Div(amount, weight)
		if amount.IsZero() {
			continue
		}
		if err := tx.Donate(x.cfg.Operator, t.key, token, amount); err != nil {
			return err
		}
	}
	return nil
}
