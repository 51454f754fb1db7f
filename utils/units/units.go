// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package units

// Denominations of token amounts. Every asset uses 9 decimals.
const (
	NanoUnit  uint64 = 1                // base unit
	MicroUnit uint64 = 1000 * NanoUnit  // 0.000001
	MilliUnit uint64 = 1000 * MicroUnit // 0.001
	Unit      uint64 = 1000 * MilliUnit // 1 whole token
	KiloUnit  uint64 = 1000 * Unit
	MegaUnit  uint64 = 1000 * KiloUnit
)

// Rate and time constants.
const (
	// BasisPoints is 100% expressed in basis points.
	BasisPoints uint64 = 10_000

	// SecondsPerYear is a 365 day year.
	SecondsPerYear uint64 = 365 * 24 * 60 * 60

	SecondsPerDay uint64 = 24 * 60 * 60
)
