// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package yieldvm

import (
	"context"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/yieldvm/analytics"
	"github.com/luxfi/yieldvm/liquidity"
	"github.com/luxfi/yieldvm/state"
)

// CreatePool creates an empty pool for the pair. A zero feeBps charges the
// configured default.
func (vm *VM) CreatePool(ctx context.Context, tokenA, tokenB ids.ID, isYieldPool bool, feeBps uint64) (*liquidity.Pool, error) {
	if feeBps == 0 {
		feeBps = vm.DefaultSwapFeeBps
	}
	var pool *liquidity.Pool
	key := liquidity.PoolKey(tokenA, tokenB)
	err := vm.apply(ctx, "createPool", poolKeys(key), func(s state.Store, now uint64) error {
		var err error
		pool, err = vm.pools.CreatePoolWithFee(s, tokenA, tokenB, isYieldPool, feeBps, now)
		return err
	})
	return pool, err
}

func (vm *VM) SetPoolActive(ctx context.Context, key ids.ID, active bool) error {
	return vm.apply(ctx, "setPoolActive", poolKeys(key), func(s state.Store, now uint64) error {
		return vm.pools.SetPoolActive(s, key, active, now)
	})
}

func (vm *VM) AddLiquidity(
	ctx context.Context,
	provider ids.ShortID,
	tokenA, tokenB ids.ID,
	amountADesired, amountBDesired uint64,
	minLPOut uint64,
) (*liquidity.LiquidityResult, error) {
	var result *liquidity.LiquidityResult
	keys := poolKeys(liquidity.PoolKey(tokenA, tokenB), provider)
	err := vm.apply(ctx, "addLiquidity", keys, func(s state.Store, now uint64) error {
		var err error
		result, err = vm.pools.AddLiquidity(s, provider, tokenA, tokenB, amountADesired, amountBDesired, minLPOut, now)
		return err
	})
	return result, err
}

func (vm *VM) RemoveLiquidity(
	ctx context.Context,
	provider ids.ShortID,
	tokenA, tokenB ids.ID,
	lpAmount uint64,
	minAOut, minBOut uint64,
) (*liquidity.LiquidityResult, error) {
	var result *liquidity.LiquidityResult
	keys := poolKeys(liquidity.PoolKey(tokenA, tokenB), provider)
	err := vm.apply(ctx, "removeLiquidity", keys, func(s state.Store, now uint64) error {
		var err error
		result, err = vm.pools.RemoveLiquidity(s, provider, tokenA, tokenB, lpAmount, minAOut, minBOut, now)
		return err
	})
	return result, err
}

// Swap sells amountIn of tokenIn from trader and sends the output to
// recipient. A swap against a market's PT/YT pool also records the APY the
// new reserves imply.
func (vm *VM) Swap(
	ctx context.Context,
	trader ids.ShortID,
	tokenIn, tokenOut ids.ID,
	amountIn, minAmountOut uint64,
	recipient ids.ShortID,
) (*liquidity.SwapResult, error) {
	var (
		result   *liquidity.SwapResult
		market   ids.ID
		implied  uint64
		observed bool
		at       uint64
	)
	keys := poolKeys(liquidity.PoolKey(tokenIn, tokenOut), trader, recipient)
	err := vm.apply(ctx, "swap", keys, func(s state.Store, now uint64) error {
		var err error
		result, err = vm.pools.Swap(s, trader, tokenIn, tokenOut, amountIn, minAmountOut, recipient, now)
		if err != nil {
			return err
		}
		at = now
		market, implied, observed, err = vm.impliedAfterSwap(s, tokenIn, tokenOut, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	vm.metrics.MarkSwap(result.AmountIn, result.Fee)
	if observed {
		vm.history.Record(market, implied, at)
		vm.log.Debug("recorded implied APY",
			log.Stringer("marketID", market),
			log.Uint64("impliedAPYBps", implied),
		)
	}
	return result, nil
}

// impliedAfterSwap reads the APY implied by a PT/YT pool after a trade.
// observed is false for any other pool or once the market has matured.
func (vm *VM) impliedAfterSwap(s state.Store, tokenIn, tokenOut ids.ID, now uint64) (ids.ID, uint64, bool, error) {
	pool, err := vm.pools.GetPoolByPair(s, tokenIn, tokenOut)
	if err != nil || !pool.IsYieldPool {
		return ids.Empty, 0, false, err
	}
	info, ok, err := vm.yield.YieldInfo(s, tokenIn, tokenOut)
	if err != nil || !ok || now >= info.Maturity {
		return ids.Empty, 0, false, err
	}
	reservePT, reserveYT := pool.Reserve0, pool.Reserve1
	if pool.Token0 != info.PT {
		reservePT, reserveYT = reserveYT, reservePT
	}
	implied, err := liquidity.ImpliedAPY(reservePT, reserveYT, info.Maturity-now)
	if err != nil {
		return ids.Empty, 0, false, err
	}
	return info.Market, implied, true, nil
}

// GetQuote prices a swap without executing it.
func (vm *VM) GetQuote(ctx context.Context, tokenIn, tokenOut ids.ID, amountIn uint64) (*liquidity.Quote, error) {
	var quote *liquidity.Quote
	err := vm.view(ctx, func(s state.Store, now uint64) error {
		var err error
		quote, err = vm.pools.GetQuote(s, tokenIn, tokenOut, amountIn, now)
		return err
	})
	return quote, err
}

// GetPoolKey returns the key of the pair's pool whether or not it exists.
func (*VM) GetPoolKey(tokenA, tokenB ids.ID) ids.ID {
	return liquidity.PoolKey(tokenA, tokenB)
}

func (vm *VM) GetPool(ctx context.Context, key ids.ID) (*liquidity.Pool, error) {
	var pool *liquidity.Pool
	err := vm.view(ctx, func(s state.Store, _ uint64) error {
		var err error
		pool, err = vm.pools.GetPool(s, key)
		return err
	})
	return pool, err
}

func (vm *VM) ListPools(ctx context.Context) ([]*liquidity.Pool, error) {
	var pools []*liquidity.Pool
	err := vm.view(ctx, func(s state.Store, _ uint64) error {
		var err error
		pools, err = vm.pools.ListPools(s)
		return err
	})
	return pools, err
}

// LPBalance returns account's LP holding in the pool with key.
func (vm *VM) LPBalance(ctx context.Context, key ids.ID, account ids.ShortID) (uint64, error) {
	var balance uint64
	err := vm.view(ctx, func(s state.Store, _ uint64) error {
		pool, err := vm.pools.GetPool(s, key)
		if err != nil {
			return err
		}
		balance, err = s.BalanceOf(account, pool.LPToken())
		return err
	})
	return balance, err
}

func (vm *VM) ImpliedAPY(ctx context.Context, market ids.ID) (uint64, error) {
	var apy uint64
	err := vm.view(ctx, func(s state.Store, now uint64) error {
		var err error
		apy, err = vm.analytics.ImpliedAPY(s, market, now)
		return err
	})
	return apy, err
}

func (vm *VM) ClassifyMode(ctx context.Context, market ids.ID) (*analytics.Classification, error) {
	var c *analytics.Classification
	err := vm.view(ctx, func(s state.Store, now uint64) error {
		var err error
		c, err = vm.analytics.ClassifyMode(s, market, now)
		return err
	})
	return c, err
}

func (vm *VM) TradingSignal(ctx context.Context, market ids.ID) (*analytics.Signal, error) {
	var signal *analytics.Signal
	err := vm.view(ctx, func(s state.Store, now uint64) error {
		var err error
		signal, err = vm.analytics.TradingSignal(s, market, now)
		return err
	})
	return signal, err
}

// Approve lets spender move up to amount of owner's asset. state.Router is
// the spender every pull into protocol custody goes through.
func (vm *VM) Approve(ctx context.Context, owner, spender ids.ShortID, asset ids.ID, amount uint64) error {
	keys := []ids.ID{state.AccountLock(owner)}
	return vm.apply(ctx, "approve", keys, func(s state.Store, _ uint64) error {
		return s.Approve(owner, spender, asset, amount)
	})
}

func (vm *VM) Balance(ctx context.Context, account ids.ShortID, asset ids.ID) (uint64, error) {
	var balance uint64
	err := vm.view(ctx, func(s state.Store, _ uint64) error {
		var err error
		balance, err = s.BalanceOf(account, asset)
		return err
	})
	return balance, err
}

func (vm *VM) Allowance(ctx context.Context, owner, spender ids.ShortID, asset ids.ID) (uint64, error) {
	var allowance uint64
	err := vm.view(ctx, func(s state.Store, _ uint64) error {
		var err error
		allowance, err = s.Allowance(owner, spender, asset)
		return err
	})
	return allowance, err
}

// poolKeys locks the pool record, the pool's reserve account and every
// account the operation moves funds for.
func poolKeys(key ids.ID, accounts ...ids.ShortID) []ids.ID {
	keys := make([]ids.ID, 0, 2+len(accounts))
	keys = append(keys, key, state.AccountLock(liquidity.PoolAccount(key)))
	for _, a := range accounts {
		keys = append(keys, state.AccountLock(a))
	}
	return keys
}
