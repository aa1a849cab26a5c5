// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package safemath

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func u64(v uint64) *uint256.Int { return uint256.NewInt(v) }

// maxU256 is 2^256 - 1.
func maxU256() *uint256.Int {
	z := new(uint256.Int)
	return z.Not(z)
}

func TestAddOverflow(t *testing.T) {
	z, err := Add(u64(1), u64(2))
	require.NoError(t, err)
	require.Equal(t, u64(3), z)

	_, err = Add(maxU256(), u64(1))
	require.ErrorIs(t, err, ErrOverflow)
}

func TestSubUnderflow(t *testing.T) {
	z, err := Sub(u64(5), u64(3))
	require.NoError(t, err)
	require.Equal(t, u64(2), z)

	_, err = Sub(u64(3), u64(5))
	require.ErrorIs(t, err, ErrUnderflow)
}

func TestMulOverflow(t *testing.T) {
	z, err := Mul(u64(1_000_000), u64(1_000_000))
	require.NoError(t, err)
	require.Equal(t, u64(1_000_000_000_000), z)

	_, err = Mul(maxU256(), u64(2))
	require.ErrorIs(t, err, ErrOverflow)
}

func TestDivByZero(t *testing.T) {
	z, err := Div(u64(10), u64(3))
	require.NoError(t, err)
	require.Equal(t, u64(3), z)

	_, err = Div(u64(10), u64(0))
	require.ErrorIs(t, err, ErrDivisionByZero)
}

func TestMulDivFullPrecision(t *testing.T) {
	// a*b overflows 256 bits but the quotient fits.
	a := maxU256()
	b := u64(1_000)
	d := u64(1_000)

	z, err := MulDiv(a, b, d)
	require.NoError(t, err)
	require.Equal(t, a, z)

	_, err = MulDiv(a, b, u64(0))
	require.ErrorIs(t, err, ErrDivisionByZero)

	// Quotient itself overflows.
	_, err = MulDiv(a, u64(2), u64(1))
	require.ErrorIs(t, err, ErrOverflow)
}

func TestMulDivRoundingDirection(t *testing.T) {
	// 10*10/3 = 33.33...
	down, err := MulDiv(u64(10), u64(10), u64(3))
	require.NoError(t, err)
	require.Equal(t, u64(33), down)

	up, err := MulDivUp(u64(10), u64(10), u64(3))
	require.NoError(t, err)
	require.Equal(t, u64(34), up)

	// Exact division rounds the same both ways.
	exact, err := MulDivUp(u64(10), u64(10), u64(4))
	require.NoError(t, err)
	require.Equal(t, u64(25), exact)
}

func TestSqrt(t *testing.T) {
	cases := []struct {
		in   uint64
		want uint64
	}{
		{0, 0},
		{1, 1},
		{3, 1},
		{4, 2},
		{15, 3},
		{16, 4},
		{1_000_000, 1_000},
		{1_000_000_000_000, 1_000_000},
		{999_999_999_999, 999_999},
	}
	for _, tc := range cases {
		got := Sqrt(u64(tc.in))
		if got.Uint64() != tc.want {
			t.Errorf("Sqrt(%d) = %d, want %d", tc.in, got.Uint64(), tc.want)
		}
	}
}

func TestSqrtLarge(t *testing.T) {
	// sqrt(2^200) = 2^100
	x := new(uint256.Int).Lsh(uint256.NewInt(1), 200)
	want := new(uint256.Int).Lsh(uint256.NewInt(1), 100)
	require.Equal(t, want, Sqrt(x))

	// Result of sqrt(max) squared must not exceed max.
	r := Sqrt(maxU256())
	sq, err := Mul(r, r)
	require.NoError(t, err)
	require.True(t, sq.Cmp(maxU256()) <= 0)
}

func TestNarrowOps(t *testing.T) {
	sum, err := AddU64(1, 2)
	require.NoError(t, err)
	require.Equal(t, uint64(3), sum)

	_, err = AddU64(^uint64(0), 1)
	require.ErrorIs(t, err, ErrOverflow)

	_, err = SubU64(1, 2)
	require.ErrorIs(t, err, ErrUnderflow)

	prod, err := MulU64(10_000, 10_000)
	require.NoError(t, err)
	require.Equal(t, uint64(100_000_000), prod)

	_, err = MulU64(^uint64(0), 2)
	require.ErrorIs(t, err, ErrOverflow)

	_, err = DivU64(1, 0)
	require.ErrorIs(t, err, ErrDivisionByZero)
}
