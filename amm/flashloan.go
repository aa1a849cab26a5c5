// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package amm

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
)

// FlashLoan issues an uncollateralized loan of the protocol's token
// inventory, invokes the borrower callback synchronously and verifies
// principal-plus-fee repayment before the operation may complete. A loan
// that is not repaid reverts every effect of the envelope, the transfer of
// the principal included; there is no partial-success state.
//
// The reentrancy guard is held for the whole envelope, so a callback that
// calls back into any public operation fails with ErrReentrantCall.
func (e *Engine) FlashLoan(borrower FlashBorrower, receiver, token common.Address, amount *uint256.Int, payload []byte) error {
	return e.Lock(func(tx *Tx) error {
		return tx.FlashLoan(borrower, receiver, token, amount, payload)
	})
}

// FlashLoan is Engine.FlashLoan under an already-held guard.
func (tx *Tx) FlashLoan(borrower FlashBorrower, receiver, token common.Address, amount *uint256.Int, payload []byte) error {
	e := tx.e
	if e.isPaused() {
		return ErrPaused
	}
	if amount == nil || amount.IsZero() {
		return ErrZeroAmount
	}
	if e.cfg.FlashLoanCeiling != nil && amount.Cmp(e.cfg.FlashLoanCeiling) > 0 {
		return ErrLoanTooLarge
	}

	fee := new(uint256.Int).Mul(amount, uint256.NewInt(e.cfg.FlashFeeBps))
	fee.Div(fee, uint256.NewInt(BpsDenominator))
	if fee.IsZero() {
		// A zero fee would make dust loans free.
		return ErrZeroFlashFee
	}

	balanceBefore := e.tokens.BalanceOf(token, protocolAddr)
	if balanceBefore.Cmp(amount) < 0 {
		return ErrInsufficientLiquidity
	}

	// Repayment is verified on the free float, not the raw balance: trades
	// inside the envelope move pool-backed inventory, and those moves are
	// mirrored in the reserve bookkeeping. Netting reserves out leaves
	// exactly the principal and repayment flows.
	freeBefore := new(uint256.Int)
	if reserved := e.ledger.ReservedBalance(token); balanceBefore.Cmp(reserved) > 0 {
		freeBefore.Sub(balanceBefore, reserved)
	}

	record := &FlashLoanRecord{
		Borrower: receiver,
		Token:    token,
		Amount:   new(uint256.Int).Set(amount),
		Fee:      fee,
		Payload:  payload,
		Status:   FlashLoanIssued,
	}

	// Everything from the principal transfer onward is one unit of work.
	tokenSnap := e.tokens.Snapshot()
	ledgerSnap := e.ledger.Snapshot()

	revert := func() error {
		e.tokens.RevertToSnapshot(tokenSnap)
		return e.ledger.Restore(ledgerSnap)
	}

	if !e.tokens.Transfer(token, protocolAddr, receiver, amount) {
		return ErrTransferFailed
	}

	if err := borrower.OnFlashLoan(receiver, token, amount, fee, payload); err != nil {
		record.Status = FlashLoanDefaulted
		if rerr := revert(); rerr != nil {
			return rerr
		}
		e.log.Warn("flash loan defaulted", "borrower", receiver, "token", token,
			"amount", amount, "status", record.Status)
		return fmt.Errorf("%w: callback: %v", ErrLoanNotRepaid, err)
	}

	required := new(uint256.Int).Add(e.ledger.ReservedBalance(token), freeBefore)
	required.Add(required, fee)
	balanceAfter := e.tokens.BalanceOf(token, protocolAddr)
	if balanceAfter.Cmp(required) < 0 {
		record.Status = FlashLoanDefaulted
		if rerr := revert(); rerr != nil {
			return rerr
		}
		e.log.Warn("flash loan defaulted", "borrower", receiver, "token", token,
			"amount", amount, "status", record.Status)
		return fmt.Errorf("%w: balance %s below required %s",
			ErrLoanNotRepaid, balanceAfter, required)
	}

	record.Status = FlashLoanVerified
	if err := e.ledger.recordFlashLoan(amount, fee); err != nil {
		return err
	}
	e.log.Debug("flash loan settled", "borrower", receiver, "token", token,
		"amount", amount, "fee", fee, "status", record.Status)
	return nil
}

// FlashFee quotes the fee for borrowing amount.
func (e *Engine) FlashFee(amount *uint256.Int) *uint256.Int {
	fee := new(uint256.Int).Mul(amount, uint256.NewInt(e.cfg.FlashFeeBps))
	return fee.Div(fee, uint256.NewInt(BpsDenominator))
}
