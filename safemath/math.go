// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package safemath provides overflow-checked integer arithmetic for the AMM
// core. Two widths are supported: a wide 256-bit width (holiman/uint256) for
// token amounts, reserves and cumulative prices, and a narrow 64-bit width
// for basis-point fees and timestamps.
//
// All operations return an explicit error on overflow, underflow or division
// by zero. Rounding direction is always explicit: MulDiv floors, MulDivUp
// rounds up. Callers pick the direction that favors the pool.
package safemath

import (
	"errors"
	"math/big"
	"math/bits"

	"github.com/holiman/uint256"
)

var (
	ErrOverflow       = errors.New("arithmetic overflow")
	ErrUnderflow      = errors.New("arithmetic underflow")
	ErrDivisionByZero = errors.New("division by zero")
)

// Add returns a+b, failing on 256-bit overflow.
func Add(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// Sub returns a-b, failing if b > a.
func Sub(a, b *uint256.Int) (*uint256.Int, error) {
	z, underflow := new(uint256.Int).SubOverflow(a, b)
	if underflow {
		return nil, ErrUnderflow
	}
	return z, nil
}

// Mul returns a*b, failing on 256-bit overflow.
func Mul(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// Div returns floor(a/b), failing if b is zero.
func Div(a, b *uint256.Int) (*uint256.Int, error) {
	if b.IsZero() {
		return nil, ErrDivisionByZero
	}
	return new(uint256.Int).Div(a, b), nil
}

// MulDiv returns floor(a*b/d) computed at full intermediate precision, so
// a*b may exceed 256 bits as long as the quotient fits.
func MulDiv(a, b, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrDivisionByZero
	}
	prod := new(big.Int).Mul(a.ToBig(), b.ToBig())
	prod.Div(prod, d.ToBig())
	z, overflow := uint256.FromBig(prod)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// MulDivUp returns ceil(a*b/d) at full intermediate precision.
func MulDivUp(a, b, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrDivisionByZero
	}
	prod := new(big.Int).Mul(a.ToBig(), b.ToBig())
	quo, rem := new(big.Int).QuoRem(prod, d.ToBig(), new(big.Int))
	if rem.Sign() != 0 {
		quo.Add(quo, big.NewInt(1))
	}
	z, overflow := uint256.FromBig(quo)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// sqrtMaxIterations bounds the Newton iteration count. 256-bit inputs
// converge in well under 64 steps from the initial guess used below.
const sqrtMaxIterations = 64

// Sqrt returns floor(sqrt(x)) via Newton's method.
func Sqrt(x *uint256.Int) *uint256.Int {
	if x.IsZero() {
		return new(uint256.Int)
	}
	one := uint256.NewInt(1)
	if x.Cmp(uint256.NewInt(4)) < 0 {
		return one
	}

	// Initial guess: 2^(ceil(bitlen/2)), always >= sqrt(x).
	z := new(uint256.Int).Lsh(one, uint((x.BitLen()+1)/2))
	y := new(uint256.Int)
	tmp := new(uint256.Int)

	for i := 0; i < sqrtMaxIterations; i++ {
		// y = (z + x/z) / 2
		tmp.Div(x, z)
		y.Add(z, tmp)
		y.Rsh(y, 1)
		if y.Cmp(z) >= 0 {
			break
		}
		z.Set(y)
	}
	return z
}

// AddU64 returns a+b, failing on 64-bit overflow.
func AddU64(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrOverflow
	}
	return sum, nil
}

// SubU64 returns a-b, failing if b > a.
func SubU64(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, ErrUnderflow
	}
	return diff, nil
}

// MulU64 returns a*b, failing on 64-bit overflow.
func MulU64(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, ErrOverflow
	}
	return lo, nil
}

// DivU64 returns floor(a/b), failing if b is zero.
func DivU64(a, b uint64) (uint64, error) {
	if b == 0 {
		return 0, ErrDivisionByZero
	}
	return a / b, nil
}
