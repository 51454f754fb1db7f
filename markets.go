// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package yieldvm

import (
	"context"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/yieldvm/accrual"
	"github.com/luxfi/yieldvm/state"
	"github.com/luxfi/yieldvm/tokenization"
)

// CreateMarket registers a market for underlying maturing at maturity.
func (vm *VM) CreateMarket(ctx context.Context, underlying ids.ID, maturity, fixedAPYBps uint64) (*tokenization.Market, error) {
	var m *tokenization.Market
	keys := []ids.ID{tokenization.MarketID(underlying, maturity)}
	err := vm.apply(ctx, "createMarket", keys, func(s state.Store, now uint64) error {
		var err error
		m, err = vm.markets.CreateMarket(s, underlying, maturity, fixedAPYBps, now)
		return err
	})
	return m, err
}

func (vm *VM) SetMarketActive(ctx context.Context, market ids.ID, active bool) error {
	return vm.apply(ctx, "setMarketActive", []ids.ID{market}, func(s state.Store, _ uint64) error {
		return vm.markets.SetMarketActive(s, market, active)
	})
}

func (vm *VM) GetMarket(ctx context.Context, market ids.ID) (*tokenization.Market, error) {
	var m *tokenization.Market
	err := vm.view(ctx, func(s state.Store, _ uint64) error {
		var err error
		m, err = vm.markets.GetMarket(s, market)
		return err
	})
	return m, err
}

func (vm *VM) ListMarkets(ctx context.Context) ([]*tokenization.Market, error) {
	var markets []*tokenization.Market
	err := vm.view(ctx, func(s state.Store, _ uint64) error {
		var err error
		markets, err = vm.markets.ListMarkets(s)
		return err
	})
	return markets, err
}

// Wrap deposits amount underlying and mints as much SY.
func (vm *VM) Wrap(ctx context.Context, market ids.ID, user ids.ShortID, amount uint64) error {
	return vm.apply(ctx, "wrap", marketKeys(market, user), func(s state.Store, _ uint64) error {
		return vm.markets.Wrap(s, market, user, amount)
	})
}

// Unwrap burns amount SY and returns as much underlying.
func (vm *VM) Unwrap(ctx context.Context, market ids.ID, user ids.ShortID, amount uint64) error {
	return vm.apply(ctx, "unwrap", marketKeys(market, user), func(s state.Store, _ uint64) error {
		return vm.markets.Unwrap(s, market, user, amount)
	})
}

// Split burns amount SY and mints amount PT and amount YT.
func (vm *VM) Split(ctx context.Context, market ids.ID, user ids.ShortID, amount uint64) error {
	return vm.apply(ctx, "split", marketKeys(market, user), func(s state.Store, now uint64) error {
		return vm.markets.Split(s, market, user, amount, now)
	})
}

// Merge pays out the user's accrued yield and then burns equal PT and YT
// for SY. It returns the yield paid.
func (vm *VM) Merge(ctx context.Context, market ids.ID, user ids.ShortID, ptAmount, ytAmount uint64) (uint64, error) {
	var claimed uint64
	err := vm.apply(ctx, "merge", marketKeys(market, user), func(s state.Store, now uint64) error {
		var err error
		claimed, err = vm.accrual.Claim(s, market, user, now)
		if err != nil {
			return err
		}
		return vm.markets.Merge(s, market, user, ptAmount, ytAmount)
	})
	if err == nil && claimed > 0 {
		vm.metrics.MarkYieldClaimed(claimed)
	}
	return claimed, err
}

// RedeemPT burns matured PT for as much underlying.
func (vm *VM) RedeemPT(ctx context.Context, market ids.ID, user ids.ShortID, amount uint64) error {
	return vm.apply(ctx, "redeemPT", marketKeys(market, user), func(s state.Store, now uint64) error {
		return vm.markets.RedeemPT(s, market, user, amount, now)
	})
}

// Harvest moves amount underlying from the yield source into the market's
// yield reserve.
func (vm *VM) Harvest(ctx context.Context, market ids.ID, from ids.ShortID, amount uint64) error {
	return vm.apply(ctx, "harvest", marketKeys(market, from), func(s state.Store, _ uint64) error {
		return vm.markets.Harvest(s, market, from, amount)
	})
}

// AccrueYield checkpoints account's YT position in market at the VM time.
func (vm *VM) AccrueYield(ctx context.Context, market ids.ID, account ids.ShortID) (*accrual.Checkpoint, error) {
	var cp *accrual.Checkpoint
	err := vm.apply(ctx, "accrueYield", marketKeys(market, account), func(s state.Store, now uint64) error {
		var err error
		cp, err = vm.accrual.Accrue(s, market, account, now)
		return err
	})
	return cp, err
}

// ClaimYield pays account what the yield reserve can cover of its accrued
// yield and returns the amount paid.
func (vm *VM) ClaimYield(ctx context.Context, market ids.ID, account ids.ShortID) (uint64, error) {
	var paid uint64
	err := vm.apply(ctx, "claimYield", marketKeys(market, account), func(s state.Store, now uint64) error {
		var err error
		paid, err = vm.accrual.Claim(s, market, account, now)
		return err
	})
	if err == nil && paid > 0 {
		vm.metrics.MarkYieldClaimed(paid)
		vm.log.Debug("claimed yield",
			log.Stringer("marketID", market),
			log.Stringer("account", account),
			log.Uint64("paid", paid),
		)
	}
	return paid, err
}

func (vm *VM) Claimable(ctx context.Context, market ids.ID, account ids.ShortID) (uint64, error) {
	var owed uint64
	err := vm.view(ctx, func(s state.Store, now uint64) error {
		var err error
		owed, err = vm.accrual.Claimable(s, market, account, now)
		return err
	})
	return owed, err
}

// SetReferenceAPY publishes the APY the market's PT/YT pool is priced
// toward. Zero reverts to the market's fixed APY.
func (vm *VM) SetReferenceAPY(ctx context.Context, market ids.ID, apyBps uint64) error {
	publisher, ok := vm.feed.(Publisher)
	if !ok {
		return errFeedReadOnly
	}
	if _, err := vm.GetMarket(ctx, market); err != nil {
		return err
	}
	publisher.Set(market, apyBps)
	vm.log.Info("set reference APY",
		log.Stringer("marketID", market),
		log.Uint64("apyBps", apyBps),
	)
	return nil
}

// ReferenceAPY returns the APY the market is priced toward.
func (vm *VM) ReferenceAPY(ctx context.Context, market ids.ID) (uint64, error) {
	m, err := vm.GetMarket(ctx, market)
	if err != nil {
		return 0, err
	}
	return vm.yield.referenceAPY(m), nil
}

func marketKeys(market ids.ID, accounts ...ids.ShortID) []ids.ID {
	keys := make([]ids.ID, 0, 1+len(accounts))
	keys = append(keys, market)
	for _, a := range accounts {
		keys = append(keys, state.AccountLock(a))
	}
	return keys
}
