// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package liquidity

import (
	"fmt"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/yieldvm/state"
	"github.com/luxfi/yieldvm/utils/units"

	safemath "github.com/luxfi/yieldvm/utils/math"
)

// Params tunes pool behaviour.
type Params struct {
	DefaultFeeBps         uint64
	MinLiquidity          uint64
	MaxYieldAdjustmentBps uint64
	VolatilityAlphaBps    uint64
}

// YieldInfo describes the market behind a PT/YT pool.
type YieldInfo struct {
	Market          ids.ID
	PT              ids.ID
	YT              ids.ID
	Maturity        uint64
	ReferenceAPYBps uint64
}

// YieldSource resolves the market a pair belongs to. ok is false when the
// pair is not the PT and YT of a single market.
type YieldSource interface {
	YieldInfo(r state.Records, tokenA, tokenB ids.ID) (info *YieldInfo, ok bool, err error)
}

// Manager manages all liquidity pools. Pools live in the store passed to
// each call, keyed by PoolKey.
type Manager struct {
	log    log.Logger
	params Params
	yield  YieldSource
}

// NewManager creates a new liquidity pool manager.
func NewManager(log log.Logger, params Params, yield YieldSource) *Manager {
	return &Manager{
		log:    log,
		params: params,
		yield:  yield,
	}
}

// CreatePool creates an empty pool charging the default fee.
func (m *Manager) CreatePool(s state.Store, tokenA, tokenB ids.ID, isYieldPool bool, now uint64) (*Pool, error) {
	return m.CreatePoolWithFee(s, tokenA, tokenB, isYieldPool, m.params.DefaultFeeBps, now)
}

// CreatePoolWithFee creates an empty pool charging feeBps.
func (m *Manager) CreatePoolWithFee(s state.Store, tokenA, tokenB ids.ID, isYieldPool bool, feeBps, now uint64) (*Pool, error) {
	// Cannot create a pool with the same token
	if tokenA == tokenB {
		return nil, ErrSameToken
	}
	if feeBps >= units.BasisPoints {
		return nil, fmt.Errorf("%w: %d bps", ErrInvalidFee, feeBps)
	}

	key := PoolKey(tokenA, tokenB)
	exists, err := state.HasRecord(s, prefixPool, key[:])
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrPoolAlreadyExists, key)
	}

	token0, token1 := sortTokens(tokenA, tokenB)
	pool := &Pool{
		Key:                key,
		Token0:             token0,
		Token1:             token1,
		IsYieldPool:        isYieldPool,
		FeeBps:             feeBps,
		YieldMultiplierBps: units.BasisPoints,
		IsActive:           true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := m.put(s, pool); err != nil {
		return nil, err
	}

	m.log.Info("created pool",
		log.Stringer("poolKey", key),
		log.Stringer("token0", token0),
		log.Stringer("token1", token1),
		log.Bool("yieldPool", isYieldPool),
		log.Uint64("feeBps", feeBps),
	)
	return pool, nil
}

// GetPool returns a pool by key.
func (m *Manager) GetPool(r state.Records, key ids.ID) (*Pool, error) {
	pool, err := state.GetRecord[Pool](r, prefixPool, key[:])
	if state.IsNotFound(err) {
		return nil, fmt.Errorf("%w: %s", ErrPoolNotFound, key)
	}
	return pool, err
}

// GetPoolByPair returns a pool by token pair, in either order.
func (m *Manager) GetPoolByPair(r state.Records, tokenA, tokenB ids.ID) (*Pool, error) {
	return m.GetPool(r, PoolKey(tokenA, tokenB))
}

// ListPools returns all pools ordered by key.
func (m *Manager) ListPools(r state.Records) ([]*Pool, error) {
	return state.ListRecords[Pool](r, prefixPool)
}

// SetPoolActive pauses or resumes trading and deposits.
func (m *Manager) SetPoolActive(s state.Store, key ids.ID, active bool, now uint64) error {
	pool, err := m.GetPool(s, key)
	if err != nil {
		return err
	}
	pool.IsActive = active
	pool.UpdatedAt = now
	return m.put(s, pool)
}

// AddLiquidity deposits up to the desired amounts at the pool's current
// ratio and mints LP to provider. The first deposit sets the ratio.
func (m *Manager) AddLiquidity(
	s state.Store,
	provider ids.ShortID,
	tokenA, tokenB ids.ID,
	amountADesired, amountBDesired uint64,
	minLPOut uint64,
	now uint64,
) (*LiquidityResult, error) {
	pool, err := m.activePool(s, tokenA, tokenB)
	if err != nil {
		return nil, err
	}
	if amountADesired == 0 || amountBDesired == 0 {
		return nil, ErrInvalidAmount
	}

	// work in canonical order
	amount0, amount1 := amountADesired, amountBDesired
	if tokenA != pool.Token0 {
		amount0, amount1 = amount1, amount0
	}

	var liquidity uint64
	if pool.TotalLPSupply == 0 {
		// First liquidity provision
		liquidity = safemath.SqrtProduct(amount0, amount1)
		if liquidity < m.params.MinLiquidity {
			return nil, fmt.Errorf("%w: first deposit mints %d LP, minimum is %d",
				ErrInsufficientLiquidity, liquidity, m.params.MinLiquidity)
		}
	} else {
		amount0, amount1, err = optimalAmounts(pool, amount0, amount1)
		if err != nil {
			return nil, err
		}
		liquidity0, err := safemath.MulDiv(amount0, pool.TotalLPSupply, pool.Reserve0)
		if err != nil {
			return nil, err
		}
		liquidity1, err := safemath.MulDiv(amount1, pool.TotalLPSupply, pool.Reserve1)
		if err != nil {
			return nil, err
		}
		liquidity = min(liquidity0, liquidity1)
		if liquidity == 0 {
			return nil, ErrInsufficientLiquidity
		}
	}
	if liquidity < minLPOut {
		return nil, fmt.Errorf("%w: %d LP, minimum %d", ErrSlippageExceeded, liquidity, minLPOut)
	}

	newReserve0, err := safemath.Add(pool.Reserve0, amount0)
	if err != nil {
		return nil, err
	}
	newReserve1, err := safemath.Add(pool.Reserve1, amount1)
	if err != nil {
		return nil, err
	}

	account := pool.Account()
	if err := s.TransferFrom(state.Router, pool.Token0, provider, account, amount0); err != nil {
		return nil, err
	}
	if err := s.TransferFrom(state.Router, pool.Token1, provider, account, amount1); err != nil {
		return nil, err
	}
	if err := s.Mint(pool.LPToken(), provider, liquidity); err != nil {
		return nil, err
	}

	// Update pool
	pool.Reserve0 = newReserve0
	pool.Reserve1 = newReserve1
	pool.TotalLPSupply += liquidity
	pool.UpdatedAt = now
	if err := m.put(s, pool); err != nil {
		return nil, err
	}

	result := &LiquidityResult{AmountA: amount0, AmountB: amount1, LP: liquidity}
	if tokenA != pool.Token0 {
		result.AmountA, result.AmountB = amount1, amount0
	}
	return result, nil
}

// RemoveLiquidity burns lpAmount and pays out the proportional share of
// both reserves.
func (m *Manager) RemoveLiquidity(
	s state.Store,
	provider ids.ShortID,
	tokenA, tokenB ids.ID,
	lpAmount uint64,
	minAOut, minBOut uint64,
	now uint64,
) (*LiquidityResult, error) {
	if lpAmount == 0 {
		return nil, ErrInvalidAmount
	}
	pool, err := m.GetPoolByPair(s, tokenA, tokenB)
	if err != nil {
		return nil, err
	}
	if lpAmount > pool.TotalLPSupply {
		return nil, fmt.Errorf("%w: %d LP of %d outstanding",
			ErrInsufficientLiquidity, lpAmount, pool.TotalLPSupply)
	}

	amount0, err := safemath.MulDiv(lpAmount, pool.Reserve0, pool.TotalLPSupply)
	if err != nil {
		return nil, err
	}
	amount1, err := safemath.MulDiv(lpAmount, pool.Reserve1, pool.TotalLPSupply)
	if err != nil {
		return nil, err
	}
	if amount0 == 0 || amount1 == 0 {
		return nil, ErrInsufficientLiquidity
	}

	minOut0, minOut1 := minAOut, minBOut
	if tokenA != pool.Token0 {
		minOut0, minOut1 = minOut1, minOut0
	}
	if amount0 < minOut0 || amount1 < minOut1 {
		return nil, fmt.Errorf("%w: would receive %d/%d", ErrSlippageExceeded, amount0, amount1)
	}

	if err := s.Burn(pool.LPToken(), provider, lpAmount); err != nil {
		return nil, err
	}
	account := pool.Account()
	if err := s.Transfer(pool.Token0, account, provider, amount0); err != nil {
		return nil, err
	}
	if err := s.Transfer(pool.Token1, account, provider, amount1); err != nil {
		return nil, err
	}

	// Update pool
	pool.Reserve0 -= amount0
	pool.Reserve1 -= amount1
	pool.TotalLPSupply -= lpAmount
	pool.UpdatedAt = now
	if err := m.put(s, pool); err != nil {
		return nil, err
	}

	result := &LiquidityResult{AmountA: amount0, AmountB: amount1, LP: lpAmount}
	if tokenA != pool.Token0 {
		result.AmountA, result.AmountB = amount1, amount0
	}
	return result, nil
}

// Swap sells amountIn of tokenIn from trader and sends the output to
// recipient.
func (m *Manager) Swap(
	s state.Store,
	trader ids.ShortID,
	tokenIn, tokenOut ids.ID,
	amountIn, minAmountOut uint64,
	recipient ids.ShortID,
	now uint64,
) (*SwapResult, error) {
	if tokenIn == tokenOut {
		return nil, ErrSameToken
	}
	pool, err := m.GetPoolByPair(s, tokenIn, tokenOut)
	if err != nil {
		return nil, err
	}
	p, err := m.price(s, pool, tokenIn, amountIn, now)
	if err != nil {
		return nil, err
	}
	if p.amountOut < minAmountOut {
		return nil, fmt.Errorf("%w: out %d, minimum %d", ErrSlippageExceeded, p.amountOut, minAmountOut)
	}

	volume, fees := &pool.Volume0, &pool.Fees0
	if tokenIn != pool.Token0 {
		volume, fees = &pool.Volume1, &pool.Fees1
	}
	newVolume, err := safemath.Add(*volume, amountIn)
	if err != nil {
		return nil, fmt.Errorf("volume of %s: %w", pool.Key, err)
	}
	newFees, err := safemath.Add(*fees, p.fee)
	if err != nil {
		return nil, fmt.Errorf("fees of %s: %w", pool.Key, err)
	}
	txCount, err := safemath.Add(pool.TxCount, 1)
	if err != nil {
		return nil, fmt.Errorf("tx count of %s: %w", pool.Key, err)
	}

	account := pool.Account()
	if err := s.TransferFrom(state.Router, tokenIn, trader, account, amountIn); err != nil {
		return nil, err
	}
	if err := s.Transfer(tokenOut, account, recipient, p.amountOut); err != nil {
		return nil, err
	}

	newReserveIn := p.reserveIn + amountIn
	newReserveOut := p.reserveOut - p.amountOut

	if tokenIn == pool.Token0 {
		pool.Reserve0, pool.Reserve1 = newReserveIn, newReserveOut
	} else {
		pool.Reserve1, pool.Reserve0 = newReserveIn, newReserveOut
	}
	*volume, *fees = newVolume, newFees
	pool.TxCount = txCount
	pool.YieldMultiplierBps = p.multiplierBps
	pool.VolatilityBps = ewma(pool.VolatilityBps, p.priceImpactBps, m.params.VolatilityAlphaBps)
	pool.UpdatedAt = now
	if err := m.put(s, pool); err != nil {
		return nil, err
	}

	m.log.Debug("swap",
		log.Stringer("poolKey", pool.Key),
		log.Stringer("tokenIn", tokenIn),
		log.Uint64("amountIn", amountIn),
		log.Uint64("amountOut", p.amountOut),
		log.Uint64("multiplierBps", p.multiplierBps),
	)
	return &SwapResult{
		AmountIn:           amountIn,
		AmountOut:          p.amountOut,
		Fee:                p.fee,
		PriceImpactBps:     p.priceImpactBps,
		YieldMultiplierBps: p.multiplierBps,
		NewReserve0:        pool.Reserve0,
		NewReserve1:        pool.Reserve1,
	}, nil
}

// GetQuote returns what Swap would produce against the current reserves
// without changing anything.
func (m *Manager) GetQuote(r state.Records, tokenIn, tokenOut ids.ID, amountIn, now uint64) (*Quote, error) {
	if tokenIn == tokenOut {
		return nil, ErrSameToken
	}
	pool, err := m.GetPoolByPair(r, tokenIn, tokenOut)
	if err != nil {
		return nil, err
	}
	p, err := m.price(r, pool, tokenIn, amountIn, now)
	if err != nil {
		return nil, err
	}

	// spot price before vs after the trade
	before := decProduct(p.reserveOut, p.reserveIn+amountIn)
	after := decProduct(p.reserveOut-p.amountOut, p.reserveIn)
	// execution price vs spot price
	exec := decProduct(p.amountOut, p.reserveIn)
	spot := decProduct(amountIn, p.reserveOut)

	return &Quote{
		AmountOut:          p.amountOut,
		Fee:                p.fee,
		YieldAdjustmentPct: yieldAdjustmentPct(p.multiplierBps),
		SlippagePct:        pricePct(after, before),
		PriceImpactPct:     pricePct(exec, spot),
	}, nil
}

type pricing struct {
	reserveIn      uint64
	reserveOut     uint64
	fee            uint64
	amountOut      uint64
	multiplierBps  uint64
	priceImpactBps uint64
}

// price is the single pricing path shared by Swap and GetQuote.
func (m *Manager) price(r state.Records, pool *Pool, tokenIn ids.ID, amountIn, now uint64) (*pricing, error) {
	if tokenIn != pool.Token0 && tokenIn != pool.Token1 {
		return nil, fmt.Errorf("%w: %s not in pool %s", ErrPoolNotFound, tokenIn, pool.Key)
	}
	if !pool.IsActive {
		return nil, fmt.Errorf("%w: %s", ErrPoolInactive, pool.Key)
	}
	if amountIn == 0 {
		return nil, ErrInvalidAmount
	}
	reserveIn, reserveOut := pool.reserves(tokenIn)
	if reserveIn == 0 || reserveOut == 0 {
		return nil, ErrInsufficientLiquidity
	}
	if _, err := safemath.Add(reserveIn, amountIn); err != nil {
		return nil, err
	}

	amountOut, err := AmountOut(reserveIn, reserveOut, amountIn, pool.FeeBps)
	if err != nil {
		return nil, err
	}
	multiplier, err := m.multiplier(r, pool, tokenIn, now)
	if err != nil {
		return nil, err
	}
	if multiplier != units.BasisPoints {
		amountOut, err = safemath.MulDiv(amountOut, multiplier, units.BasisPoints)
		if err != nil {
			return nil, err
		}
		maxOut, err := MaxAmountOut(reserveIn, reserveOut, amountIn)
		if err != nil {
			return nil, err
		}
		amountOut = min(amountOut, maxOut)
	}
	if amountOut == 0 || amountOut >= reserveOut {
		return nil, ErrInsufficientLiquidity
	}

	fee, err := safemath.MulDiv(amountIn, pool.FeeBps, units.BasisPoints)
	if err != nil {
		return nil, err
	}
	return &pricing{
		reserveIn:      reserveIn,
		reserveOut:     reserveOut,
		fee:            fee,
		amountOut:      amountOut,
		multiplierBps:  multiplier,
		priceImpactBps: priceImpactBps(reserveIn, reserveOut, amountIn, amountOut),
	}, nil
}

func (m *Manager) multiplier(r state.Records, pool *Pool, tokenIn ids.ID, now uint64) (uint64, error) {
	if !pool.IsYieldPool || m.yield == nil {
		return units.BasisPoints, nil
	}
	info, ok, err := m.yield.YieldInfo(r, pool.Token0, pool.Token1)
	if err != nil || !ok {
		return units.BasisPoints, err
	}
	if now >= info.Maturity {
		return units.BasisPoints, nil
	}

	reservePT, reserveYT := pool.Reserve0, pool.Reserve1
	if info.PT != pool.Token0 {
		reservePT, reserveYT = reserveYT, reservePT
	}
	ttm := info.Maturity - now
	implied, err := ImpliedAPY(reservePT, reserveYT, ttm)
	if err != nil {
		return 0, err
	}
	outIsPT := pool.other(tokenIn) == info.PT
	return YieldMultiplier(
		implied,
		info.ReferenceAPYBps,
		ttm,
		pool.VolatilityBps,
		m.params.MaxYieldAdjustmentBps,
		outIsPT,
	), nil
}

// optimalAmounts scales the desired pair down to the pool's ratio.
func optimalAmounts(pool *Pool, amount0Desired, amount1Desired uint64) (uint64, uint64, error) {
	amount1Optimal, err := safemath.MulDiv(amount0Desired, pool.Reserve1, pool.Reserve0)
	if err != nil {
		return 0, 0, err
	}
	if amount1Optimal <= amount1Desired {
		if amount1Optimal == 0 {
			return 0, 0, ErrInsufficientLiquidity
		}
		return amount0Desired, amount1Optimal, nil
	}
	amount0Optimal, err := safemath.MulDiv(amount1Desired, pool.Reserve0, pool.Reserve1)
	if err != nil {
		return 0, 0, err
	}
	if amount0Optimal == 0 {
		return 0, 0, ErrInsufficientLiquidity
	}
	return amount0Optimal, amount1Desired, nil
}

func (m *Manager) activePool(r state.Records, tokenA, tokenB ids.ID) (*Pool, error) {
	if tokenA == tokenB {
		return nil, ErrSameToken
	}
	pool, err := m.GetPoolByPair(r, tokenA, tokenB)
	if err != nil {
		return nil, err
	}
	if !pool.IsActive {
		return nil, fmt.Errorf("%w: %s", ErrPoolInactive, pool.Key)
	}
	return pool, nil
}

func (m *Manager) put(r state.Records, pool *Pool) error {
	return state.PutRecord(r, prefixPool, pool.Key[:], pool)
}
