// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package arb

import (
	"bytes"
	"math/big"
	"sort"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	log "github.com/luxfi/log"
	"github.com/sugawarayuuta/sonnet"

	"github.com/luxfi/dex/amm"
)

// Strategy confidence weights in basis points. Shorter, same-pair routes
// estimate more reliably than longer cycles.
const (
	confidenceSimple      uint64 = 9_000
	confidenceCrossPool   uint64 = 8_500
	confidenceTriangular  uint64 = 7_500
	confidenceFlashFunded uint64 = 8_000
)

// DetectorConfig bounds the search.
type DetectorConfig struct {
	// MinProfit is the absolute net-profit floor below which candidates are
	// discarded.
	MinProfit *uint256.Int

	// MaxTradeBps caps round-trip sizing at this fraction of the smaller
	// pool's reserve, limiting price impact and griefing exposure.
	MaxTradeBps uint64

	// TriangularTradeBps sizes cycle inputs as a fraction of the smallest
	// reserve along the path.
	TriangularTradeBps uint64

	// HopCost is the estimated execution cost per trade hop, in input-token
	// units, charged against gross profit.
	HopCost *uint256.Int

	// TopN opportunities are retained per pass; the rest are discarded.
	// There is no retry queue, staleness makes them worthless.
	TopN int

	// TTL is the opportunity lifetime in seconds.
	TTL uint64
}

// DefaultDetectorConfig returns the standard search bounds.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		MinProfit:          uint256.NewInt(1),
		MaxTradeBps:        2_500,
		TriangularTradeBps: 1_000,
		HopCost:            new(uint256.Int),
		TopN:               10,
		TTL:                60,
	}
}

// Detector scans the full pool set for profitable price discrepancies. Each
// pass operates over a consistent snapshot, never a partial view.
type Detector struct {
	engine *amm.Engine
	cfg    DetectorConfig
	log    log.Logger
}

// NewDetector creates a detector over the engine's pools.
func NewDetector(engine *amm.Engine, cfg DetectorConfig, logger log.Logger) *Detector {
	if logger == nil {
		logger = log.NewTestLogger(log.InfoLevel)
	}
	return &Detector{engine: engine, cfg: cfg, log: logger}
}

// Scan runs all four strategies over a pool snapshot and returns the top-N
// candidates by priority, best first.
func (d *Detector) Scan() []Opportunity {
	pools := d.engine.Pools()
	now := d.engine.Clock().Now()
	expiry := now + d.cfg.TTL

	// Adjacency index: token -> pools containing it, built once per pass.
	byToken := make(map[common.Address][]*amm.Pool)
	byPair := make(map[[32]byte][]*amm.Pool)
	for _, p := range pools {
		if !p.Active || p.ReserveA.IsZero() || p.ReserveB.IsZero() {
			continue
		}
		byToken[p.Key.TokenA] = append(byToken[p.Key.TokenA], p)
		byToken[p.Key.TokenB] = append(byToken[p.Key.TokenB], p)
		byPair[p.Key.PairID()] = append(byPair[p.Key.PairID()], p)
	}

	var opps []Opportunity
	opps = append(opps, d.scanSamePair(byPair, expiry)...)
	opps = append(opps, d.scanTriangular(byToken, expiry)...)
	opps = append(opps, d.scanFlashFunded(byPair, expiry)...)

	sort.SliceStable(opps, func(i, j int) bool {
		return opps[i].Meta().Priority.Cmp(opps[j].Meta().Priority) > 0
	})
	if d.cfg.TopN > 0 && len(opps) > d.cfg.TopN {
		opps = opps[:d.cfg.TopN]
	}

	d.log.Debug("detection pass complete", "pools", len(pools), "opportunities", len(opps))
	return opps
}

// scanSamePair finds round trips between pools trading the same pair at
// diverging prices. Groups of exactly two pools yield simple opportunities;
// larger groups are compared pairwise as cross-pool opportunities.
func (d *Detector) scanSamePair(byPair map[[32]byte][]*amm.Pool, expiry uint64) []Opportunity {
	var opps []Opportunity
	for _, group := range byPair {
		if len(group) < 2 {
			continue
		}
		cross := len(group) > 2
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				meta, ok := d.evalRoundTrip(group[i], group[j], nil, expiry)
				if !ok {
					continue
				}
				if cross {
					meta.Confidence = confidenceCrossPool
					finishScore(meta)
					opps = append(opps, &CrossPool{meta: *meta})
				} else {
					meta.Confidence = confidenceSimple
					finishScore(meta)
					opps = append(opps, &Simple{meta: *meta})
				}
			}
		}
	}
	return opps
}

// scanFlashFunded reconsiders the same round trips with the input borrowed
// under a flash loan, crediting the loan fee against profit.
func (d *Detector) scanFlashFunded(byPair map[[32]byte][]*amm.Pool, expiry uint64) []Opportunity {
	flashFee := func(amount *uint256.Int) *uint256.Int {
		return d.engine.FlashFee(amount)
	}
	var opps []Opportunity
	for _, group := range byPair {
		if len(group) < 2 {
			continue
		}
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				meta, ok := d.evalRoundTrip(group[i], group[j], flashFee, expiry)
				if !ok {
					continue
				}
				meta.Confidence = confidenceFlashFunded
				finishScore(meta)
				opps = append(opps, &FlashFunded{
					meta:       *meta,
					LoanToken:  meta.Path[0],
					LoanAmount: new(uint256.Int).Set(meta.Amounts[0]),
				})
			}
		}
	}
	return opps
}

// evalRoundTrip sizes and simulates buy-cheap/sell-dear between two pools
// on the same pair. extraCost, when non-nil, charges an additional
// amount-dependent cost (the flash-loan fee) against gross profit.
func (d *Detector) evalRoundTrip(a, b *amm.Pool, extraCost func(*uint256.Int) *uint256.Int, expiry uint64) (*Meta, bool) {
	key := a.Key
	tokenIn, tokenMid := key.TokenA, key.TokenB

	// Price of the B token in A units; buy B where it is cheap.
	priceA, errA := a.SpotPrice(tokenMid)
	priceB, errB := b.SpotPrice(tokenMid)
	if errA != nil || errB != nil || priceA.Eq(priceB) {
		return nil, false
	}
	buy, sell := a, b
	if priceA.Cmp(priceB) > 0 {
		buy, sell = b, a
	}

	amountIn := d.sizeRoundTrip(buy, sell, tokenIn, tokenMid)
	if amountIn.IsZero() {
		return nil, false
	}

	buyIn, buyOut, _ := buy.Reserves(tokenIn)
	out1, err := amm.QuoteOutput(amountIn, buyIn, buyOut, buy.FeeBps)
	if err != nil || out1.IsZero() {
		return nil, false
	}
	sellIn, sellOut, _ := sell.Reserves(tokenMid)
	out2, err := amm.QuoteOutput(out1, sellIn, sellOut, sell.FeeBps)
	if err != nil || out2.Cmp(amountIn) <= 0 {
		return nil, false
	}

	gross := new(uint256.Int).Sub(out2, amountIn)
	cost := new(uint256.Int).Mul(d.cfg.HopCost, uint256.NewInt(2))
	if extraCost != nil {
		cost.Add(cost, extraCost(amountIn))
	}
	if gross.Cmp(cost) <= 0 {
		return nil, false
	}
	net := new(uint256.Int).Sub(gross, cost)
	if net.Cmp(d.cfg.MinProfit) < 0 {
		return nil, false
	}

	meta := &Meta{
		Pools:         []amm.PoolKey{buy.Key, sell.Key},
		Path:          []common.Address{tokenIn, tokenMid, tokenIn},
		Amounts:       []*uint256.Int{amountIn, out1, out2},
		GrossProfit:   gross,
		ExecutionCost: cost,
		NetProfit:     net,
		MEVRisk:       mevRisk(amountIn, smallestReserve(buy, sell), 2),
		Expiry:        expiry,
	}
	return meta, true
}

// sizeRoundTrip computes the profit-maximizing input for two sequential
// constant-product hops. Composing both hops yields out = Ax/(B+Cx), whose
// profit peaks at x = (sqrt(AB)-B)/C. With g = 10000-fee per hop:
//
//	A = g1*g2*R1out*R2out, B = 10^8*R1in*R2in, C = g1*(10^4*R2in + g2*R1out)
//
// A non-positive numerator means no gap survives the fees. The result is
// capped at MaxTradeBps of the smaller pool's reserve to bound price
// impact. Intermediate products exceed 256 bits, so the arithmetic runs on
// big integers.
func (d *Detector) sizeRoundTrip(buy, sell *amm.Pool, tokenIn, tokenMid common.Address) *uint256.Int {
	zero := new(uint256.Int)
	r1in, r1out, ok := buy.Reserves(tokenIn)
	if !ok {
		return zero
	}
	r2in, r2out, ok := sell.Reserves(tokenMid)
	if !ok {
		return zero
	}

	bps := big.NewInt(int64(amm.BpsDenominator))
	g1 := big.NewInt(int64(amm.BpsDenominator - buy.FeeBps))
	g2 := big.NewInt(int64(amm.BpsDenominator - sell.FeeBps))

	prod := new(big.Int).Mul(r1in.ToBig(), r1out.ToBig())
	prod.Mul(prod, r2in.ToBig())
	prod.Mul(prod, r2out.ToBig())
	prod.Mul(prod, g1)
	prod.Mul(prod, g2)
	root := new(big.Int).Sqrt(prod)
	root.Mul(root, bps)

	base := new(big.Int).Mul(r1in.ToBig(), r2in.ToBig())
	base.Mul(base, new(big.Int).Mul(bps, bps))
	if root.Cmp(base) <= 0 {
		return zero
	}
	num := root.Sub(root, base)

	den := new(big.Int).Mul(bps, r2in.ToBig())
	den.Add(den, new(big.Int).Mul(g2, r1out.ToBig()))
	den.Mul(den, g1)
	x := num.Div(num, den)

	cap256 := new(uint256.Int).Mul(smallestReserve(buy, sell), uint256.NewInt(d.cfg.MaxTradeBps))
	cap256.Div(cap256, uint256.NewInt(amm.BpsDenominator))
	size, overflow := uint256.FromBig(x)
	if overflow || size.Cmp(cap256) > 0 {
		return cap256
	}
	return size
}

// scanTriangular walks the adjacency index for three-pool cycles
// A -> B -> C -> A. Cycles are anchored at their lowest-addressed token so
// each traversal is enumerated exactly once; both directions around a cycle
// are distinct traversals and are evaluated separately.
func (d *Detector) scanTriangular(byToken map[common.Address][]*amm.Pool, expiry uint64) []Opportunity {
	var opps []Opportunity
	for start, firstHops := range byToken {
		for _, p1 := range firstHops {
			mid := p1.Key.Other(start)
			if bytes.Compare(start.Bytes(), mid.Bytes()) >= 0 {
				continue
			}
			for _, p2 := range byToken[mid] {
				if p2.Key == p1.Key {
					continue
				}
				third := p2.Key.Other(mid)
				if third == (common.Address{}) || bytes.Compare(start.Bytes(), third.Bytes()) >= 0 {
					continue
				}
				for _, p3 := range byToken[third] {
					if p3.Key == p1.Key || p3.Key == p2.Key || !p3.Key.Contains(start) {
						continue
					}
					if meta, ok := d.evalCycle(start, mid, third, p1, p2, p3, expiry); ok {
						opps = append(opps, &Triangular{meta: *meta})
					}
				}
			}
		}
	}
	return opps
}

func (d *Detector) evalCycle(a, b, c common.Address, p1, p2, p3 *amm.Pool, expiry uint64) (*Meta, bool) {
	smallest := smallestReserve(p1, p2, p3)
	amountIn := new(uint256.Int).Mul(smallest, uint256.NewInt(d.cfg.TriangularTradeBps))
	amountIn.Div(amountIn, uint256.NewInt(amm.BpsDenominator))
	if amountIn.IsZero() {
		return nil, false
	}

	hop := func(p *amm.Pool, tokenIn common.Address, in *uint256.Int) *uint256.Int {
		rIn, rOut, ok := p.Reserves(tokenIn)
		if !ok {
			return new(uint256.Int)
		}
		out, err := amm.QuoteOutput(in, rIn, rOut, p.FeeBps)
		if err != nil {
			return new(uint256.Int)
		}
		return out
	}

	out1 := hop(p1, a, amountIn)
	out2 := hop(p2, b, out1)
	out3 := hop(p3, c, out2)
	if out3.Cmp(amountIn) <= 0 {
		return nil, false
	}

	gross := new(uint256.Int).Sub(out3, amountIn)
	cost := new(uint256.Int).Mul(d.cfg.HopCost, uint256.NewInt(3))
	if gross.Cmp(cost) <= 0 {
		return nil, false
	}
	net := new(uint256.Int).Sub(gross, cost)
	if net.Cmp(d.cfg.MinProfit) < 0 {
		return nil, false
	}

	meta := &Meta{
		Pools:         []amm.PoolKey{p1.Key, p2.Key, p3.Key},
		Path:          []common.Address{a, b, c, a},
		Amounts:       []*uint256.Int{amountIn, out1, out2, out3},
		GrossProfit:   gross,
		ExecutionCost: cost,
		NetProfit:     net,
		Confidence:    confidenceTriangular,
		MEVRisk:       mevRisk(amountIn, smallest, 3),
		Expiry:        expiry,
	}
	finishScore(meta)
	return meta, true
}

// finishScore derives the ranking priority from net profit and confidence.
func finishScore(m *Meta) {
	p := new(uint256.Int).Mul(m.NetProfit, uint256.NewInt(m.Confidence))
	m.Priority = p.Div(p, uint256.NewInt(amm.BpsDenominator))
}

// mevRisk scores front-running exposure: trade size relative to the
// thinnest involved reserve, with a premium for short paths that are
// cheaper to sandwich.
func mevRisk(amountIn, smallestReserve *uint256.Int, hops int) uint64 {
	if smallestReserve.IsZero() {
		return 100
	}
	shareBps := new(uint256.Int).Mul(amountIn, uint256.NewInt(amm.BpsDenominator))
	shareBps.Div(shareBps, smallestReserve)

	risk := shareBps.Uint64() / 50
	if hops <= 2 {
		risk += 25
	} else {
		risk += 10
	}
	if risk > 100 {
		risk = 100
	}
	return risk
}

func smallestReserve(pools ...*amm.Pool) *uint256.Int {
	var min *uint256.Int
	for _, p := range pools {
		for _, r := range []*uint256.Int{p.ReserveA, p.ReserveB} {
			if min == nil || r.Cmp(min) < 0 {
				min = r
			}
		}
	}
	if min == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(min)
}

// opportunitySnapshot is the JSON shape of the analytics export.
type opportunitySnapshot struct {
	Kind      string   `json:"kind"`
	Path      []string `json:"path"`
	NetProfit string   `json:"netProfit"`
	Priority  string   `json:"priority"`
	MEVRisk   uint64   `json:"mevRisk"`
	Expiry    uint64   `json:"expiry"`
}

// Report serializes a detection pass for analytics consumers.
func Report(opps []Opportunity) ([]byte, error) {
	out := make([]opportunitySnapshot, 0, len(opps))
	for _, o := range opps {
		m := o.Meta()
		path := make([]string, len(m.Path))
		for i, t := range m.Path {
			path[i] = t.Hex()
		}
		out = append(out, opportunitySnapshot{
			Kind:      o.Kind().String(),
			Path:      path,
			NetProfit: m.NetProfit.Dec(),
			Priority:  m.Priority.Dec(),
			MEVRisk:   m.MEVRisk,
			Expiry:    m.Expiry,
		})
	}
	return sonnet.Marshal(out)
}
