// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package amm

import (
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
)

// MemoryTokenState is an in-memory TokenState with journaled snapshots.
// Hosts with native token ledgers supply their own implementation; this one
// backs tests and standalone deployments.
type MemoryTokenState struct {
	mu         sync.Mutex
	balances   map[common.Address]map[common.Address]*uint256.Int
	allowances map[allowanceKey]*uint256.Int
	journal    []journalEntry
	snapshots  []int
}

type allowanceKey struct {
	token   common.Address
	owner   common.Address
	spender common.Address
}

type journalEntry struct {
	isAllowance bool
	token       common.Address
	account     common.Address
	allowance   allowanceKey
	prev        *uint256.Int
}

// NewMemoryTokenState creates an empty token state.
func NewMemoryTokenState() *MemoryTokenState {
	return &MemoryTokenState{
		balances:   make(map[common.Address]map[common.Address]*uint256.Int),
		allowances: make(map[allowanceKey]*uint256.Int),
	}
}

// Mint credits amount to account, for test and genesis setup.
func (s *MemoryTokenState) Mint(token, account common.Address, amount *uint256.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bal := s.balance(token, account)
	s.recordBalance(token, account, bal)
	s.setBalance(token, account, new(uint256.Int).Add(bal, amount))
}

// Approve sets the allowance owner grants spender.
func (s *MemoryTokenState) Approve(token, owner, spender common.Address, amount *uint256.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := allowanceKey{token: token, owner: owner, spender: spender}
	s.recordAllowance(key)
	s.allowances[key] = new(uint256.Int).Set(amount)
}

// BalanceOf returns the token balance of account.
func (s *MemoryTokenState) BalanceOf(token, account common.Address) *uint256.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return new(uint256.Int).Set(s.balance(token, account))
}

// Allowance returns what spender may move on behalf of owner.
func (s *MemoryTokenState) Allowance(token, owner, spender common.Address) *uint256.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := allowanceKey{token: token, owner: owner, spender: spender}
	if a, ok := s.allowances[key]; ok {
		return new(uint256.Int).Set(a)
	}
	return new(uint256.Int)
}

// Transfer moves amount from one account to another. Returns false if the
// source balance is insufficient.
func (s *MemoryTokenState) Transfer(token, from, to common.Address, amount *uint256.Int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transfer(token, from, to, amount)
}

// TransferFrom moves amount from owner to recipient, consuming spender's
// allowance. Returns false on insufficient allowance or balance.
func (s *MemoryTokenState) TransferFrom(token, spender, from, to common.Address, amount *uint256.Int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if spender != from {
		key := allowanceKey{token: token, owner: from, spender: spender}
		allowed, ok := s.allowances[key]
		if !ok || allowed.Cmp(amount) < 0 {
			return false
		}
		s.recordAllowance(key)
		s.allowances[key] = new(uint256.Int).Sub(allowed, amount)
	}
	return s.transfer(token, from, to, amount)
}

// Snapshot marks the current journal position and returns its identifier.
func (s *MemoryTokenState) Snapshot() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := len(s.snapshots)
	s.snapshots = append(s.snapshots, len(s.journal))
	return id
}

// RevertToSnapshot undoes every mutation made since the snapshot was taken.
func (s *MemoryTokenState) RevertToSnapshot(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 0 || id >= len(s.snapshots) {
		return
	}
	mark := s.snapshots[id]
	for i := len(s.journal) - 1; i >= mark; i-- {
		e := s.journal[i]
		if e.isAllowance {
			if e.prev == nil {
				delete(s.allowances, e.allowance)
			} else {
				s.allowances[e.allowance] = e.prev
			}
		} else {
			s.setBalance(e.token, e.account, e.prev)
		}
	}
	s.journal = s.journal[:mark]
	s.snapshots = s.snapshots[:id]
}

func (s *MemoryTokenState) transfer(token, from, to common.Address, amount *uint256.Int) bool {
	fromBal := s.balance(token, from)
	if fromBal.Cmp(amount) < 0 {
		return false
	}
	toBal := s.balance(token, to)
	s.recordBalance(token, from, fromBal)
	s.recordBalance(token, to, toBal)
	s.setBalance(token, from, new(uint256.Int).Sub(fromBal, amount))
	s.setBalance(token, to, new(uint256.Int).Add(toBal, amount))
	return true
}

func (s *MemoryTokenState) balance(token, account common.Address) *uint256.Int {
	if accts, ok := s.balances[token]; ok {
		if b, ok := accts[account]; ok {
			return b
		}
	}
	return new(uint256.Int)
}

func (s *MemoryTokenState) setBalance(token, account common.Address, amount *uint256.Int) {
	accts, ok := s.balances[token]
	if !ok {
		accts = make(map[common.Address]*uint256.Int)
		s.balances[token] = accts
	}
	accts[account] = amount
}

func (s *MemoryTokenState) recordBalance(token, account common.Address, prev *uint256.Int) {
	s.journal = append(s.journal, journalEntry{
		token:   token,
		account: account,
		prev:    new(uint256.Int).Set(prev),
	})
}

func (s *MemoryTokenState) recordAllowance(key allowanceKey) {
	var prev *uint256.Int
	if a, ok := s.allowances[key]; ok {
		prev = new(uint256.Int).Set(a)
	}
	s.journal = append(s.journal, journalEntry{
		isAllowance: true,
		allowance:   key,
		prev:        prev,
	})
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns the current unix time in seconds.
func (SystemClock) Now() uint64 {
	return uint64(time.Now().Unix())
}
