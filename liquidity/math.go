// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package liquidity

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/luxfi/yieldvm/utils/units"

	safemath "github.com/luxfi/yieldvm/utils/math"
)

var hundred = decimal.NewFromInt(100)

// AmountOut implements the x * y = k formula net of the trading fee:
// reserveOut * amountIn * (10000 - fee) / (reserveIn * 10000 + amountIn * (10000 - fee))
func AmountOut(reserveIn, reserveOut, amountIn, feeBps uint64) (uint64, error) {
	amountInWithFee := new(uint256.Int).Mul(safemath.U256(amountIn), safemath.U256(units.BasisPoints-feeBps))
	numerator := new(uint256.Int).Mul(safemath.U256(reserveOut), amountInWithFee)
	denominator := new(uint256.Int).Mul(safemath.U256(reserveIn), safemath.U256(units.BasisPoints))
	denominator.Add(denominator, amountInWithFee)
	if denominator.IsZero() {
		return 0, ErrInsufficientLiquidity
	}
	return safemath.Uint64(numerator.Div(numerator, denominator))
}

// MaxAmountOut is the largest output for amountIn that keeps
// (reserveIn + amountIn) * (reserveOut - out) >= reserveIn * reserveOut.
func MaxAmountOut(reserveIn, reserveOut, amountIn uint64) (uint64, error) {
	newIn, err := safemath.Add(reserveIn, amountIn)
	if err != nil {
		return 0, err
	}
	minOut, err := safemath.MulDivUp(reserveIn, reserveOut, newIn)
	if err != nil {
		return 0, err
	}
	return safemath.Sub(reserveOut, minOut)
}

// ImpliedAPY derives the APY, in basis points, priced into a PT/YT pool.
// One PT plus one YT reconstructs one unit of underlying, so the YT share
// of a unit is reservePT / (reservePT + reserveYT). That share is the
// yield left until maturity, annualized linearly.
func ImpliedAPY(reservePT, reserveYT, timeToMaturity uint64) (uint64, error) {
	if timeToMaturity == 0 || reservePT == 0 || reserveYT == 0 {
		return 0, nil
	}
	num := new(uint256.Int).Mul(safemath.U256(reservePT), safemath.U256(units.BasisPoints))
	num.Mul(num, safemath.U256(units.SecondsPerYear))
	den := new(uint256.Int).Add(safemath.U256(reservePT), safemath.U256(reserveYT))
	den.Mul(den, safemath.U256(timeToMaturity))
	return safemath.Uint64(num.Div(num, den))
}

// YieldMultiplier scales a swap output by how far the implied APY sits
// from the reference APY. The side the market prices cheaply gets more
// output. The deviation is weighted by time left (capped at a year),
// damped by volatility and capped at maxAdjustmentBps.
func YieldMultiplier(
	impliedBps uint64,
	referenceBps uint64,
	timeToMaturity uint64,
	volatilityBps uint64,
	maxAdjustmentBps uint64,
	outIsPT bool,
) uint64 {
	if referenceBps == 0 || timeToMaturity == 0 || impliedBps == referenceBps {
		return units.BasisPoints
	}

	// deviation * weight / year * 10000 / (10000 + volatility)
	dev := new(uint256.Int).Mul(
		safemath.U256(safemath.AbsDiff(impliedBps, referenceBps)),
		safemath.U256(units.BasisPoints),
	)
	dev.Div(dev, safemath.U256(referenceBps))
	dev.Mul(dev, safemath.U256(min(timeToMaturity, units.SecondsPerYear)))
	dev.Mul(dev, safemath.U256(units.BasisPoints))
	den := new(uint256.Int).Mul(
		safemath.U256(units.SecondsPerYear),
		safemath.U256(units.BasisPoints+volatilityBps),
	)
	dev.Div(dev, den)

	adj := maxAdjustmentBps
	if dev.LtUint64(maxAdjustmentBps) {
		adj = dev.Uint64()
	}

	ptCheap := impliedBps > referenceBps
	if ptCheap == outIsPT {
		return units.BasisPoints + adj
	}
	return units.BasisPoints - adj
}

// priceImpactBps is |executionPrice - spotPrice| / spotPrice in basis points.
func priceImpactBps(reserveIn, reserveOut, amountIn, amountOut uint64) uint64 {
	exec := new(uint256.Int).Mul(safemath.U256(amountOut), safemath.U256(reserveIn))
	spot := new(uint256.Int).Mul(safemath.U256(amountIn), safemath.U256(reserveOut))
	diff := new(uint256.Int)
	if exec.Gt(spot) {
		diff.Sub(exec, spot)
	} else {
		diff.Sub(spot, exec)
	}
	diff.Mul(diff, safemath.U256(units.BasisPoints))
	diff.Div(diff, spot)
	if !diff.IsUint64() {
		return units.BasisPoints
	}
	return diff.Uint64()
}

// ewma folds sample into avg with weight alphaBps.
func ewma(avg, sample, alphaBps uint64) uint64 {
	v := new(uint256.Int).Mul(safemath.U256(sample), safemath.U256(alphaBps))
	v.Add(v, new(uint256.Int).Mul(safemath.U256(avg), safemath.U256(units.BasisPoints-alphaBps)))
	v.Div(v, safemath.U256(units.BasisPoints))
	return v.Uint64()
}

func dec(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

func decProduct(a, b uint64) decimal.Decimal {
	p := new(big.Int).Mul(new(big.Int).SetUint64(a), new(big.Int).SetUint64(b))
	return decimal.NewFromBigInt(p, 0)
}

// pricePct returns |1 - num/den| as a percentage.
func pricePct(num, den decimal.Decimal) decimal.Decimal {
	if den.IsZero() {
		return decimal.Zero
	}
	return decimal.NewFromInt(1).Sub(num.Div(den)).Abs().Mul(hundred).Round(6)
}

// yieldAdjustmentPct converts a multiplier to a signed percentage.
func yieldAdjustmentPct(multiplierBps uint64) decimal.Decimal {
	return dec(multiplierBps).Sub(dec(units.BasisPoints)).Div(hundred)
}
