// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package amm

import (
	"encoding/binary"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/database"
	"github.com/luxfi/geth/common"
	log "github.com/luxfi/log"
)

// Storage key prefixes for ledger state.
var (
	poolPrefix  = []byte("pool")
	sharePrefix = []byte("shar")
	statsKey    = []byte("stat")
	indexKey    = []byte("indx")
)

const poolRecordSize = 20 + 20 + 8 + 8 + 1 + 8 + 7*32

// ProtocolStatistics aggregates committed pool activity. It is owned by the
// ledger and updated transactionally alongside the pool it derives from, so
// it always reflects committed state.
type ProtocolStatistics struct {
	PoolCount       uint64
	SwapCount       uint64
	SwapVolume      *uint256.Int
	LPFees          *uint256.Int
	ProtocolFees    *uint256.Int
	FlashLoanCount  uint64
	FlashLoanVolume *uint256.Int
	FlashLoanFees   *uint256.Int
}

func newStatistics() *ProtocolStatistics {
	return &ProtocolStatistics{
		SwapVolume:      new(uint256.Int),
		LPFees:          new(uint256.Int),
		ProtocolFees:    new(uint256.Int),
		FlashLoanVolume: new(uint256.Int),
		FlashLoanFees:   new(uint256.Int),
	}
}

func (s *ProtocolStatistics) copy() *ProtocolStatistics {
	return &ProtocolStatistics{
		PoolCount:       s.PoolCount,
		SwapCount:       s.SwapCount,
		SwapVolume:      new(uint256.Int).Set(s.SwapVolume),
		LPFees:          new(uint256.Int).Set(s.LPFees),
		ProtocolFees:    new(uint256.Int).Set(s.ProtocolFees),
		FlashLoanCount:  s.FlashLoanCount,
		FlashLoanVolume: new(uint256.Int).Set(s.FlashLoanVolume),
		FlashLoanFees:   new(uint256.Int).Set(s.FlashLoanFees),
	}
}

// Ledger owns the authoritative map of pool key to pool state plus the
// per-(pool, holder) liquidity share balances. An in-memory map is the
// working copy; every commit writes through to the backing database when one
// is configured.
type Ledger struct {
	db     database.Database
	log    log.Logger
	pools  map[[32]byte]*Pool
	order  [][32]byte
	shares map[[32]byte]map[common.Address]*uint256.Int
	stats  *ProtocolStatistics
}

// NewLedger creates a ledger backed by db. A nil db keeps all state in
// memory only.
func NewLedger(db database.Database, logger log.Logger) (*Ledger, error) {
	l := &Ledger{
		db:     db,
		log:    logger,
		pools:  make(map[[32]byte]*Pool),
		shares: make(map[[32]byte]map[common.Address]*uint256.Int),
		stats:  newStatistics(),
	}
	if db != nil {
		if err := l.load(); err != nil {
			return nil, fmt.Errorf("loading ledger: %w", err)
		}
	}
	return l, nil
}

// GetPool returns the pool for key, or ErrPoolNotFound. Callers must not
// mutate the returned pool; mutations go through Copy then PutPool.
func (l *Ledger) GetPool(key PoolKey) (*Pool, error) {
	id := key.ID()
	if p, ok := l.pools[id]; ok {
		return p, nil
	}
	return nil, ErrPoolNotFound
}

// HasPool reports whether a pool exists for key.
func (l *Ledger) HasPool(key PoolKey) bool {
	_, ok := l.pools[key.ID()]
	return ok
}

// PutPool commits pool state, writing through to the database.
func (l *Ledger) PutPool(p *Pool) error {
	id := p.Key.ID()
	if _, ok := l.pools[id]; !ok {
		l.order = append(l.order, id)
		if err := l.persistIndex(); err != nil {
			return err
		}
	}
	l.pools[id] = p
	return l.persistPool(id, p)
}

// Pools returns a snapshot copy of every pool, in creation order. Detection
// passes operate over this snapshot, never over partial views.
func (l *Ledger) Pools() []*Pool {
	out := make([]*Pool, 0, len(l.order))
	for _, id := range l.order {
		if p, ok := l.pools[id]; ok {
			out = append(out, p.Copy())
		}
	}
	return out
}

// ShareBalance returns holder's liquidity share balance in the pool.
func (l *Ledger) ShareBalance(key PoolKey, holder common.Address) *uint256.Int {
	id := key.ID()
	if holders, ok := l.shares[id]; ok {
		if b, ok := holders[holder]; ok {
			return new(uint256.Int).Set(b)
		}
	}
	if l.db != nil {
		if raw, err := l.db.Get(shareKey(id, holder)); err == nil {
			b := new(uint256.Int).SetBytes(raw)
			l.setShares(id, holder, b)
			return new(uint256.Int).Set(b)
		}
	}
	return new(uint256.Int)
}

// CreditShares adds shares to holder's balance.
func (l *Ledger) CreditShares(key PoolKey, holder common.Address, amount *uint256.Int) error {
	bal := l.ShareBalance(key, holder)
	bal.Add(bal, amount)
	return l.writeShares(key.ID(), holder, bal)
}

// DebitShares removes shares from holder's balance, failing if the balance
// is insufficient.
func (l *Ledger) DebitShares(key PoolKey, holder common.Address, amount *uint256.Int) error {
	bal := l.ShareBalance(key, holder)
	if bal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	bal.Sub(bal, amount)
	return l.writeShares(key.ID(), holder, bal)
}

// ReservedBalance returns the portion of the protocol's holdings of token
// that backs pool reserves and uncollected protocol fees. The remainder of
// the protocol's balance is free float.
func (l *Ledger) ReservedBalance(token common.Address) *uint256.Int {
	total := new(uint256.Int)
	for _, id := range l.order {
		p := l.pools[id]
		switch token {
		case p.Key.TokenA:
			total.Add(total, p.ReserveA)
			total.Add(total, p.ProtocolFeesA)
		case p.Key.TokenB:
			total.Add(total, p.ReserveB)
			total.Add(total, p.ProtocolFeesB)
		}
	}
	return total
}

// Statistics returns a copy of the committed protocol statistics.
func (l *Ledger) Statistics() *ProtocolStatistics {
	return l.stats.copy()
}

// recordPoolCreated, recordSwap and recordFlashLoan update the statistics
// aggregate; they are called only after the driving mutation has committed.

func (l *Ledger) recordPoolCreated() error {
	l.stats.PoolCount++
	return l.persistStats()
}

func (l *Ledger) recordSwap(volume, lpFee, protocolFee *uint256.Int) error {
	l.stats.SwapCount++
	l.stats.SwapVolume.Add(l.stats.SwapVolume, volume)
	l.stats.LPFees.Add(l.stats.LPFees, lpFee)
	l.stats.ProtocolFees.Add(l.stats.ProtocolFees, protocolFee)
	return l.persistStats()
}

func (l *Ledger) recordFlashLoan(amount, fee *uint256.Int) error {
	l.stats.FlashLoanCount++
	l.stats.FlashLoanVolume.Add(l.stats.FlashLoanVolume, amount)
	l.stats.FlashLoanFees.Add(l.stats.FlashLoanFees, fee)
	return l.persistStats()
}

// ledgerSnapshot captures pool and statistics state for all-or-nothing
// rollback of operations that call out to borrower-supplied logic.
type ledgerSnapshot struct {
	pools map[[32]byte]*Pool
	order [][32]byte
	stats *ProtocolStatistics
}

// Snapshot deep-copies pool state and statistics.
func (l *Ledger) Snapshot() *ledgerSnapshot {
	snap := &ledgerSnapshot{
		pools: make(map[[32]byte]*Pool, len(l.pools)),
		order: append([][32]byte(nil), l.order...),
		stats: l.stats.copy(),
	}
	for id, p := range l.pools {
		snap.pools[id] = p.Copy()
	}
	return snap
}

// Restore rewinds pools and statistics to the snapshot, rewriting the
// backing store so committed-per-hop state inside a failed envelope is
// discarded as a unit.
func (l *Ledger) Restore(snap *ledgerSnapshot) error {
	l.pools = snap.pools
	l.order = snap.order
	l.stats = snap.stats
	for id, p := range l.pools {
		if err := l.persistPool(id, p); err != nil {
			return err
		}
	}
	if err := l.persistIndex(); err != nil {
		return err
	}
	return l.persistStats()
}

// =========================================================================
// Persistence
// =========================================================================

func (l *Ledger) load() error {
	raw, err := l.db.Get(indexKey)
	if err == database.ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	if len(raw)%32 != 0 {
		return fmt.Errorf("corrupt pool index: %d bytes", len(raw))
	}
	for off := 0; off < len(raw); off += 32 {
		var id [32]byte
		copy(id[:], raw[off:off+32])
		rec, err := l.db.Get(poolKeyBytes(id))
		if err != nil {
			return fmt.Errorf("pool %x: %w", id, err)
		}
		p, err := decodePool(rec)
		if err != nil {
			return fmt.Errorf("pool %x: %w", id, err)
		}
		l.pools[id] = p
		l.order = append(l.order, id)
	}

	rawStats, err := l.db.Get(statsKey)
	if err == database.ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	stats, err := decodeStatistics(rawStats)
	if err != nil {
		return err
	}
	l.stats = stats
	return nil
}

func (l *Ledger) persistPool(id [32]byte, p *Pool) error {
	if l.db == nil {
		return nil
	}
	return l.db.Put(poolKeyBytes(id), encodePool(p))
}

func (l *Ledger) persistIndex() error {
	if l.db == nil {
		return nil
	}
	raw := make([]byte, 0, len(l.order)*32)
	for _, id := range l.order {
		raw = append(raw, id[:]...)
	}
	return l.db.Put(indexKey, raw)
}

func (l *Ledger) persistStats() error {
	if l.db == nil {
		return nil
	}
	return l.db.Put(statsKey, encodeStatistics(l.stats))
}

func (l *Ledger) writeShares(id [32]byte, holder common.Address, bal *uint256.Int) error {
	l.setShares(id, holder, bal)
	if l.db == nil {
		return nil
	}
	b32 := bal.Bytes32()
	return l.db.Put(shareKey(id, holder), b32[:])
}

func (l *Ledger) setShares(id [32]byte, holder common.Address, bal *uint256.Int) {
	holders, ok := l.shares[id]
	if !ok {
		holders = make(map[common.Address]*uint256.Int)
		l.shares[id] = holders
	}
	holders[holder] = bal
}

func poolKeyBytes(id [32]byte) []byte {
	return append(append([]byte{}, poolPrefix...), id[:]...)
}

func shareKey(id [32]byte, holder common.Address) []byte {
	k := append(append([]byte{}, sharePrefix...), id[:]...)
	return append(k, holder.Bytes()...)
}

func encodePool(p *Pool) []byte {
	buf := make([]byte, 0, poolRecordSize)
	buf = append(buf, p.Key.TokenA.Bytes()...)
	buf = append(buf, p.Key.TokenB.Bytes()...)
	buf = binary.BigEndian.AppendUint64(buf, p.Key.FeeBps)
	buf = binary.BigEndian.AppendUint64(buf, p.FeeBps)
	if p.Active {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = binary.BigEndian.AppendUint64(buf, p.LastUpdate)
	for _, v := range []*uint256.Int{
		p.ReserveA, p.ReserveB, p.TotalShares,
		p.CumulativePriceA, p.CumulativePriceB,
		p.ProtocolFeesA, p.ProtocolFeesB,
	} {
		b32 := v.Bytes32()
		buf = append(buf, b32[:]...)
	}
	return buf
}

func decodePool(raw []byte) (*Pool, error) {
	if len(raw) != poolRecordSize {
		return nil, fmt.Errorf("invalid pool record length %d", len(raw))
	}
	key := PoolKey{
		TokenA: common.BytesToAddress(raw[0:20]),
		TokenB: common.BytesToAddress(raw[20:40]),
		FeeBps: binary.BigEndian.Uint64(raw[40:48]),
	}
	p := NewPool(key)
	p.FeeBps = binary.BigEndian.Uint64(raw[48:56])
	p.Active = raw[56] == 1
	p.LastUpdate = binary.BigEndian.Uint64(raw[57:65])
	fields := []*uint256.Int{
		p.ReserveA, p.ReserveB, p.TotalShares,
		p.CumulativePriceA, p.CumulativePriceB,
		p.ProtocolFeesA, p.ProtocolFeesB,
	}
	off := 65
	for _, f := range fields {
		f.SetBytes(raw[off : off+32])
		off += 32
	}
	return p, nil
}

func encodeStatistics(s *ProtocolStatistics) []byte {
	buf := make([]byte, 0, 3*8+5*32)
	buf = binary.BigEndian.AppendUint64(buf, s.PoolCount)
	buf = binary.BigEndian.AppendUint64(buf, s.SwapCount)
	buf = binary.BigEndian.AppendUint64(buf, s.FlashLoanCount)
	for _, v := range []*uint256.Int{
		s.SwapVolume, s.LPFees, s.ProtocolFees,
		s.FlashLoanVolume, s.FlashLoanFees,
	} {
		b32 := v.Bytes32()
		buf = append(buf, b32[:]...)
	}
	return buf
}

func decodeStatistics(raw []byte) (*ProtocolStatistics, error) {
	if len(raw) != 3*8+5*32 {
		return nil, fmt.Errorf("invalid statistics record length %d", len(raw))
	}
	s := newStatistics()
	s.PoolCount = binary.BigEndian.Uint64(raw[0:8])
	s.SwapCount = binary.BigEndian.Uint64(raw[8:16])
	s.FlashLoanCount = binary.BigEndian.Uint64(raw[16:24])
	fields := []*uint256.Int{
		s.SwapVolume, s.LPFees, s.ProtocolFees,
		s.FlashLoanVolume, s.FlashLoanFees,
	}
	off := 24
	for _, f := range fields {
		f.SetBytes(raw[off : off+32])
		off += 32
	}
	return s, nil
}
