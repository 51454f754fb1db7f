// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package math holds checked uint64 arithmetic. Products are formed in 256
// bits so they never overflow before the final narrowing.
package math

import (
	"errors"

	"github.com/holiman/uint256"
)

var (
	ErrOverflow       = errors.New("overflow")
	ErrUnderflow      = errors.New("underflow")
	ErrDivisionByZero = errors.New("division by zero")
)

// Add returns a + b, or ErrOverflow.
func Add(a, b uint64) (uint64, error) {
	if a > ^uint64(0)-b {
		return 0, ErrOverflow
	}
	return a + b, nil
}

// Sub returns a - b, or ErrUnderflow.
func Sub(a, b uint64) (uint64, error) {
	if a < b {
		return 0, ErrUnderflow
	}
	return a - b, nil
}

func AbsDiff(a, b uint64) uint64 {
	return max(a, b) - min(a, b)
}

// U256 lifts a uint64 into a 256-bit integer.
func U256(v uint64) *uint256.Int {
	return new(uint256.Int).SetUint64(v)
}

// Uint64 narrows x back to 64 bits.
func Uint64(x *uint256.Int) (uint64, error) {
	if !x.IsUint64() {
		return 0, ErrOverflow
	}
	return x.Uint64(), nil
}

// MulDiv returns floor(a * b / c). The product is formed in 256 bits.
func MulDiv(a, b, c uint64) (uint64, error) {
	if c == 0 {
		return 0, ErrDivisionByZero
	}
	p := new(uint256.Int).Mul(U256(a), U256(b))
	return Uint64(p.Div(p, U256(c)))
}

// MulDivUp returns ceil(a * b / c).
func MulDivUp(a, b, c uint64) (uint64, error) {
	if c == 0 {
		return 0, ErrDivisionByZero
	}
	p := new(uint256.Int).Mul(U256(a), U256(b))
	q, r := new(uint256.Int), new(uint256.Int)
	q.DivMod(p, U256(c), r)
	if !r.IsZero() {
		q.AddUint64(q, 1)
	}
	return Uint64(q)
}

// SqrtProduct returns floor(sqrt(a * b)).
func SqrtProduct(a, b uint64) uint64 {
	p := new(uint256.Int).Mul(U256(a), U256(b))
	// sqrt of a 128-bit value always fits in 64 bits
	return p.Sqrt(p).Uint64()
}
