// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package liquidity implements constant-product pools with a yield-aware
// pricing overlay for PT/YT pairs.
package liquidity

import (
	"errors"

	"github.com/luxfi/ids"
	"github.com/shopspring/decimal"

	"github.com/luxfi/yieldvm/state"
)

var (
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrPoolNotFound          = errors.New("pool not found")
	ErrPoolInactive          = errors.New("pool inactive")
	ErrPoolAlreadyExists     = errors.New("pool already exists")
	ErrSlippageExceeded      = errors.New("slippage exceeded")
	ErrSameToken             = errors.New("cannot create pool with same token")
	ErrInvalidFee            = errors.New("fee must be below 100%")
	ErrInvalidAmount         = state.ErrInvalidAmount

	prefixPool = []byte("pool")
)

// Pool is a constant-product pool keyed by PoolKey(Token0, Token1).
type Pool struct {
	Key    ids.ID `serialize:"true" json:"key"`
	Token0 ids.ID `serialize:"true" json:"token0"` // smaller id, fixed at creation
	Token1 ids.ID `serialize:"true" json:"token1"`

	Reserve0      uint64 `serialize:"true" json:"reserve0"`
	Reserve1      uint64 `serialize:"true" json:"reserve1"`
	TotalLPSupply uint64 `serialize:"true" json:"totalLPSupply"`

	IsYieldPool bool   `serialize:"true" json:"isYieldPool"`
	FeeBps      uint64 `serialize:"true" json:"feeBps"`
	// YieldMultiplierBps is the multiplier applied to the last swap, 10000
	// meaning no adjustment
	YieldMultiplierBps uint64 `serialize:"true" json:"yieldMultiplierBps"`
	// VolatilityBps is an EWMA of swap price impact
	VolatilityBps uint64 `serialize:"true" json:"volatilityBps"`
	IsActive      bool   `serialize:"true" json:"isActive"`

	// Statistics
	Volume0 uint64 `serialize:"true" json:"volume0"`
	Volume1 uint64 `serialize:"true" json:"volume1"`
	Fees0   uint64 `serialize:"true" json:"fees0"`
	Fees1   uint64 `serialize:"true" json:"fees1"`
	TxCount uint64 `serialize:"true" json:"txCount"`

	CreatedAt uint64 `serialize:"true" json:"createdAt"`
	UpdatedAt uint64 `serialize:"true" json:"updatedAt"`
}

// Account holds the pool's reserves.
func (p *Pool) Account() ids.ShortID {
	return PoolAccount(p.Key)
}

// PoolAccount holds the reserves of the pool with key.
func PoolAccount(key ids.ID) ids.ShortID {
	return state.DeriveAccount("pool", key[:])
}

// LPToken is the asset minted to liquidity providers.
func (p *Pool) LPToken() ids.ID {
	return state.DeriveID("lp", p.Key[:])
}

// reserves returns (reserveIn, reserveOut) for a trade selling tokenIn.
func (p *Pool) reserves(tokenIn ids.ID) (uint64, uint64) {
	if tokenIn == p.Token0 {
		return p.Reserve0, p.Reserve1
	}
	return p.Reserve1, p.Reserve0
}

func (p *Pool) other(token ids.ID) ids.ID {
	if token == p.Token0 {
		return p.Token1
	}
	return p.Token0
}

// SwapResult contains the result of a swap operation.
type SwapResult struct {
	AmountIn           uint64 `json:"amountIn"`
	AmountOut          uint64 `json:"amountOut"`
	Fee                uint64 `json:"fee"`
	PriceImpactBps     uint64 `json:"priceImpactBps"`
	YieldMultiplierBps uint64 `json:"yieldMultiplierBps"`
	NewReserve0        uint64 `json:"newReserve0"`
	NewReserve1        uint64 `json:"newReserve1"`
}

// Quote is a read-only replay of swap pricing.
type Quote struct {
	AmountOut          uint64          `json:"amountOut"`
	Fee                uint64          `json:"fee"`
	YieldAdjustmentPct decimal.Decimal `json:"yieldAdjustmentPct"`
	SlippagePct        decimal.Decimal `json:"slippagePct"`
	PriceImpactPct     decimal.Decimal `json:"priceImpactPct"`
}

// LiquidityResult reports the amounts actually moved by a liquidity
// operation, in the caller's token order.
type LiquidityResult struct {
	AmountA uint64 `json:"amountA"`
	AmountB uint64 `json:"amountB"`
	LP      uint64 `json:"lp"`
}

// PoolKey is the identity of the pool for a pair. It is symmetric in its
// arguments.
func PoolKey(tokenA, tokenB ids.ID) ids.ID {
	token0, token1 := sortTokens(tokenA, tokenB)
	return state.DeriveID("pool", token0[:], token1[:])
}

func sortTokens(tokenA, tokenB ids.ID) (ids.ID, ids.ID) {
	if tokenA.Compare(tokenB) > 0 {
		return tokenB, tokenA
	}
	return tokenA, tokenB
}
