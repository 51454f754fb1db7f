// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package api exposes the yield VM over JSON-RPC.
//
// The service trusts the account fields of its arguments. Callers must be
// authenticated by the embedding node before requests reach it.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/luxfi/ids"

	"github.com/luxfi/yieldvm/accrual"
	"github.com/luxfi/yieldvm/analytics"
	"github.com/luxfi/yieldvm/liquidity"
	"github.com/luxfi/yieldvm/tokenization"
	"github.com/luxfi/yieldvm/utils/json"
)

var (
	ErrNotBootstrapped = errors.New("yield VM not bootstrapped")
	ErrInvalidRequest  = errors.New("invalid request")
)

// VM is what the service needs from the yield VM.
type VM interface {
	IsBootstrapped() bool
	Version(context.Context) (string, error)

	CreateMarket(ctx context.Context, underlying ids.ID, maturity, fixedAPYBps uint64) (*tokenization.Market, error)
	SetMarketActive(ctx context.Context, market ids.ID, active bool) error
	GetMarket(ctx context.Context, market ids.ID) (*tokenization.Market, error)
	ListMarkets(ctx context.Context) ([]*tokenization.Market, error)
	Wrap(ctx context.Context, market ids.ID, user ids.ShortID, amount uint64) error
	Unwrap(ctx context.Context, market ids.ID, user ids.ShortID, amount uint64) error
	Split(ctx context.Context, market ids.ID, user ids.ShortID, amount uint64) error
	Merge(ctx context.Context, market ids.ID, user ids.ShortID, ptAmount, ytAmount uint64) (uint64, error)
	RedeemPT(ctx context.Context, market ids.ID, user ids.ShortID, amount uint64) error
	Harvest(ctx context.Context, market ids.ID, from ids.ShortID, amount uint64) error

	AccrueYield(ctx context.Context, market ids.ID, account ids.ShortID) (*accrual.Checkpoint, error)
	ClaimYield(ctx context.Context, market ids.ID, account ids.ShortID) (uint64, error)
	Claimable(ctx context.Context, market ids.ID, account ids.ShortID) (uint64, error)
	SetReferenceAPY(ctx context.Context, market ids.ID, apyBps uint64) error
	ReferenceAPY(ctx context.Context, market ids.ID) (uint64, error)

	CreatePool(ctx context.Context, tokenA, tokenB ids.ID, isYieldPool bool, feeBps uint64) (*liquidity.Pool, error)
	SetPoolActive(ctx context.Context, key ids.ID, active bool) error
	AddLiquidity(ctx context.Context, provider ids.ShortID, tokenA, tokenB ids.ID, amountADesired, amountBDesired, minLPOut uint64) (*liquidity.LiquidityResult, error)
	RemoveLiquidity(ctx context.Context, provider ids.ShortID, tokenA, tokenB ids.ID, lpAmount, minAOut, minBOut uint64) (*liquidity.LiquidityResult, error)
	Swap(ctx context.Context, trader ids.ShortID, tokenIn, tokenOut ids.ID, amountIn, minAmountOut uint64, recipient ids.ShortID) (*liquidity.SwapResult, error)
	GetQuote(ctx context.Context, tokenIn, tokenOut ids.ID, amountIn uint64) (*liquidity.Quote, error)
	GetPoolKey(tokenA, tokenB ids.ID) ids.ID
	GetPool(ctx context.Context, key ids.ID) (*liquidity.Pool, error)
	ListPools(ctx context.Context) ([]*liquidity.Pool, error)
	LPBalance(ctx context.Context, key ids.ID, account ids.ShortID) (uint64, error)

	ImpliedAPY(ctx context.Context, market ids.ID) (uint64, error)
	ClassifyMode(ctx context.Context, market ids.ID) (*analytics.Classification, error)
	TradingSignal(ctx context.Context, market ids.ID) (*analytics.Signal, error)

	Approve(ctx context.Context, owner, spender ids.ShortID, asset ids.ID, amount uint64) error
	Balance(ctx context.Context, account ids.ShortID, asset ids.ID) (uint64, error)
	Allowance(ctx context.Context, owner, spender ids.ShortID, asset ids.ID) (uint64, error)
}

// Service provides the RPC API for the yield VM.
type Service struct {
	vm VM
}

func NewService(vm VM) *Service {
	return &Service{vm: vm}
}

func (s *Service) ready() error {
	if !s.vm.IsBootstrapped() {
		return ErrNotBootstrapped
	}
	return nil
}

// EmptyArgs is the argument of calls that take none.
type EmptyArgs struct{}

// SuccessReply is the reply of calls that return nothing.
type SuccessReply struct {
	Success bool `json:"success"`
}

// AmountReply carries a single base-unit amount.
type AmountReply struct {
	Amount json.Uint64 `json:"amount"`
}

// APYReply carries a single APY.
type APYReply struct {
	APYBps json.Uint64 `json:"apyBps"`
}

type StatusReply struct {
	Bootstrapped bool   `json:"bootstrapped"`
	Version      string `json:"version"`
}

func (s *Service) Status(r *http.Request, _ *EmptyArgs, reply *StatusReply) error {
	version, err := s.vm.Version(r.Context())
	if err != nil {
		return err
	}
	reply.Bootstrapped = s.vm.IsBootstrapped()
	reply.Version = version
	return nil
}

// ============================================
// Markets
// ============================================

type CreateMarketArgs struct {
	Underlying  ids.ID      `json:"underlying"`
	Maturity    json.Uint64 `json:"maturity"`
	FixedAPYBps json.Uint64 `json:"fixedApyBps"`
}

type MarketReply struct {
	Market *tokenization.Market `json:"market"`
}

func (s *Service) CreateMarket(r *http.Request, args *CreateMarketArgs, reply *MarketReply) error {
	if err := s.ready(); err != nil {
		return err
	}
	m, err := s.vm.CreateMarket(r.Context(), args.Underlying, uint64(args.Maturity), uint64(args.FixedAPYBps))
	if err != nil {
		return err
	}
	reply.Market = m
	return nil
}

type SetActiveArgs struct {
	ID     ids.ID `json:"id"`
	Active bool   `json:"active"`
}

func (s *Service) SetMarketActive(r *http.Request, args *SetActiveArgs, reply *SuccessReply) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.vm.SetMarketActive(r.Context(), args.ID, args.Active); err != nil {
		return err
	}
	reply.Success = true
	return nil
}

type MarketArgs struct {
	Market ids.ID `json:"market"`
}

func (s *Service) GetMarket(r *http.Request, args *MarketArgs, reply *MarketReply) error {
	if err := s.ready(); err != nil {
		return err
	}
	m, err := s.vm.GetMarket(r.Context(), args.Market)
	if err != nil {
		return err
	}
	reply.Market = m
	return nil
}

type GetMarketsReply struct {
	Markets []*tokenization.Market `json:"markets"`
}

func (s *Service) GetMarkets(r *http.Request, _ *EmptyArgs, reply *GetMarketsReply) error {
	if err := s.ready(); err != nil {
		return err
	}
	markets, err := s.vm.ListMarkets(r.Context())
	if err != nil {
		return err
	}
	reply.Markets = markets
	return nil
}

// PositionArgs names an account's amount in a market.
type PositionArgs struct {
	Market ids.ID      `json:"market"`
	User   ids.ShortID `json:"user"`
	Amount json.Uint64 `json:"amount"`
}

func (a *PositionArgs) verify() error {
	if a.Amount == 0 {
		return fmt.Errorf("%w: amount required", ErrInvalidRequest)
	}
	return nil
}

func (s *Service) Wrap(r *http.Request, args *PositionArgs, reply *SuccessReply) error {
	return s.position(r, args, reply, s.vm.Wrap)
}

func (s *Service) Unwrap(r *http.Request, args *PositionArgs, reply *SuccessReply) error {
	return s.position(r, args, reply, s.vm.Unwrap)
}

func (s *Service) Split(r *http.Request, args *PositionArgs, reply *SuccessReply) error {
	return s.position(r, args, reply, s.vm.Split)
}

func (s *Service) RedeemPT(r *http.Request, args *PositionArgs, reply *SuccessReply) error {
	return s.position(r, args, reply, s.vm.RedeemPT)
}

// Harvest deposits Amount underlying from User into the yield reserve.
func (s *Service) Harvest(r *http.Request, args *PositionArgs, reply *SuccessReply) error {
	return s.position(r, args, reply, s.vm.Harvest)
}

func (s *Service) position(
	r *http.Request,
	args *PositionArgs,
	reply *SuccessReply,
	op func(context.Context, ids.ID, ids.ShortID, uint64) error,
) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := args.verify(); err != nil {
		return err
	}
	if err := op(r.Context(), args.Market, args.User, uint64(args.Amount)); err != nil {
		return err
	}
	reply.Success = true
	return nil
}

type MergeArgs struct {
	Market   ids.ID      `json:"market"`
	User     ids.ShortID `json:"user"`
	PTAmount json.Uint64 `json:"ptAmount"`
	YTAmount json.Uint64 `json:"ytAmount"`
}

type MergeReply struct {
	YieldClaimed json.Uint64 `json:"yieldClaimed"`
}

func (s *Service) Merge(r *http.Request, args *MergeArgs, reply *MergeReply) error {
	if err := s.ready(); err != nil {
		return err
	}
	claimed, err := s.vm.Merge(r.Context(), args.Market, args.User, uint64(args.PTAmount), uint64(args.YTAmount))
	if err != nil {
		return err
	}
	reply.YieldClaimed = json.Uint64(claimed)
	return nil
}

// ============================================
// Yield
// ============================================

type AccountArgs struct {
	Market  ids.ID      `json:"market"`
	Account ids.ShortID `json:"account"`
}

type CheckpointReply struct {
	LastCheckpoint   json.Uint64 `json:"lastCheckpoint"`
	AccruedUnclaimed json.Uint64 `json:"accruedUnclaimed"`
}

func (s *Service) AccrueYield(r *http.Request, args *AccountArgs, reply *CheckpointReply) error {
	if err := s.ready(); err != nil {
		return err
	}
	cp, err := s.vm.AccrueYield(r.Context(), args.Market, args.Account)
	if err != nil {
		return err
	}
	reply.LastCheckpoint = json.Uint64(cp.LastCheckpoint)
	reply.AccruedUnclaimed = json.Uint64(cp.AccruedUnclaimed)
	return nil
}

func (s *Service) ClaimYield(r *http.Request, args *AccountArgs, reply *AmountReply) error {
	if err := s.ready(); err != nil {
		return err
	}
	paid, err := s.vm.ClaimYield(r.Context(), args.Market, args.Account)
	if err != nil {
		return err
	}
	reply.Amount = json.Uint64(paid)
	return nil
}

func (s *Service) Claimable(r *http.Request, args *AccountArgs, reply *AmountReply) error {
	if err := s.ready(); err != nil {
		return err
	}
	owed, err := s.vm.Claimable(r.Context(), args.Market, args.Account)
	if err != nil {
		return err
	}
	reply.Amount = json.Uint64(owed)
	return nil
}

type SetReferenceAPYArgs struct {
	Market ids.ID      `json:"market"`
	APYBps json.Uint64 `json:"apyBps"`
}

func (s *Service) SetReferenceAPY(r *http.Request, args *SetReferenceAPYArgs, reply *SuccessReply) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.vm.SetReferenceAPY(r.Context(), args.Market, uint64(args.APYBps)); err != nil {
		return err
	}
	reply.Success = true
	return nil
}

func (s *Service) GetReferenceAPY(r *http.Request, args *MarketArgs, reply *APYReply) error {
	if err := s.ready(); err != nil {
		return err
	}
	apy, err := s.vm.ReferenceAPY(r.Context(), args.Market)
	if err != nil {
		return err
	}
	reply.APYBps = json.Uint64(apy)
	return nil
}

// ============================================
// Pools
// ============================================

type CreatePoolArgs struct {
	TokenA      ids.ID      `json:"tokenA"`
	TokenB      ids.ID      `json:"tokenB"`
	IsYieldPool bool        `json:"isYieldPool"`
	FeeBps      json.Uint64 `json:"feeBps"`
}

type PoolReply struct {
	Pool *liquidity.Pool `json:"pool"`
}

func (s *Service) CreatePool(r *http.Request, args *CreatePoolArgs, reply *PoolReply) error {
	if err := s.ready(); err != nil {
		return err
	}
	pool, err := s.vm.CreatePool(r.Context(), args.TokenA, args.TokenB, args.IsYieldPool, uint64(args.FeeBps))
	if err != nil {
		return err
	}
	reply.Pool = pool
	return nil
}

func (s *Service) SetPoolActive(r *http.Request, args *SetActiveArgs, reply *SuccessReply) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.vm.SetPoolActive(r.Context(), args.ID, args.Active); err != nil {
		return err
	}
	reply.Success = true
	return nil
}

type AddLiquidityArgs struct {
	Provider       ids.ShortID `json:"provider"`
	TokenA         ids.ID      `json:"tokenA"`
	TokenB         ids.ID      `json:"tokenB"`
	AmountADesired json.Uint64 `json:"amountADesired"`
	AmountBDesired json.Uint64 `json:"amountBDesired"`
	MinLPOut       json.Uint64 `json:"minLpOut"`
}

type LiquidityReply struct {
	AmountA json.Uint64 `json:"amountA"`
	AmountB json.Uint64 `json:"amountB"`
	LP      json.Uint64 `json:"lp"`
}

func (reply *LiquidityReply) set(result *liquidity.LiquidityResult) {
	reply.AmountA = json.Uint64(result.AmountA)
	reply.AmountB = json.Uint64(result.AmountB)
	reply.LP = json.Uint64(result.LP)
}

func (s *Service) AddLiquidity(r *http.Request, args *AddLiquidityArgs, reply *LiquidityReply) error {
	if err := s.ready(); err != nil {
		return err
	}
	result, err := s.vm.AddLiquidity(
		r.Context(),
		args.Provider,
		args.TokenA,
		args.TokenB,
		uint64(args.AmountADesired),
		uint64(args.AmountBDesired),
		uint64(args.MinLPOut),
	)
	if err != nil {
		return err
	}
	reply.set(result)
	return nil
}

type RemoveLiquidityArgs struct {
	Provider ids.ShortID `json:"provider"`
	TokenA   ids.ID      `json:"tokenA"`
	TokenB   ids.ID      `json:"tokenB"`
	LPAmount json.Uint64 `json:"lpAmount"`
	MinAOut  json.Uint64 `json:"minAOut"`
	MinBOut  json.Uint64 `json:"minBOut"`
}

func (s *Service) RemoveLiquidity(r *http.Request, args *RemoveLiquidityArgs, reply *LiquidityReply) error {
	if err := s.ready(); err != nil {
		return err
	}
	result, err := s.vm.RemoveLiquidity(
		r.Context(),
		args.Provider,
		args.TokenA,
		args.TokenB,
		uint64(args.LPAmount),
		uint64(args.MinAOut),
		uint64(args.MinBOut),
	)
	if err != nil {
		return err
	}
	reply.set(result)
	return nil
}

// SwapArgs sells AmountIn of TokenIn. An empty Recipient pays the trader.
type SwapArgs struct {
	Trader       ids.ShortID `json:"trader"`
	TokenIn      ids.ID      `json:"tokenIn"`
	TokenOut     ids.ID      `json:"tokenOut"`
	AmountIn     json.Uint64 `json:"amountIn"`
	MinAmountOut json.Uint64 `json:"minAmountOut"`
	Recipient    ids.ShortID `json:"recipient"`
}

type SwapReply struct {
	AmountOut          json.Uint64 `json:"amountOut"`
	Fee                json.Uint64 `json:"fee"`
	PriceImpactBps     json.Uint64 `json:"priceImpactBps"`
	YieldMultiplierBps json.Uint64 `json:"yieldMultiplierBps"`
}

func (s *Service) Swap(r *http.Request, args *SwapArgs, reply *SwapReply) error {
	if err := s.ready(); err != nil {
		return err
	}
	recipient := args.Recipient
	if recipient == ids.ShortEmpty {
		recipient = args.Trader
	}
	result, err := s.vm.Swap(
		r.Context(),
		args.Trader,
		args.TokenIn,
		args.TokenOut,
		uint64(args.AmountIn),
		uint64(args.MinAmountOut),
		recipient,
	)
	if err != nil {
		return err
	}
	reply.AmountOut = json.Uint64(result.AmountOut)
	reply.Fee = json.Uint64(result.Fee)
	reply.PriceImpactBps = json.Uint64(result.PriceImpactBps)
	reply.YieldMultiplierBps = json.Uint64(result.YieldMultiplierBps)
	return nil
}

type GetQuoteArgs struct {
	TokenIn  ids.ID      `json:"tokenIn"`
	TokenOut ids.ID      `json:"tokenOut"`
	AmountIn json.Uint64 `json:"amountIn"`
}

type GetQuoteReply struct {
	Quote *liquidity.Quote `json:"quote"`
}

func (s *Service) GetQuote(r *http.Request, args *GetQuoteArgs, reply *GetQuoteReply) error {
	if err := s.ready(); err != nil {
		return err
	}
	quote, err := s.vm.GetQuote(r.Context(), args.TokenIn, args.TokenOut, uint64(args.AmountIn))
	if err != nil {
		return err
	}
	reply.Quote = quote
	return nil
}

type PairArgs struct {
	TokenA ids.ID `json:"tokenA"`
	TokenB ids.ID `json:"tokenB"`
}

type GetPoolKeyReply struct {
	Key ids.ID `json:"key"`
}

func (s *Service) GetPoolKey(_ *http.Request, args *PairArgs, reply *GetPoolKeyReply) error {
	reply.Key = s.vm.GetPoolKey(args.TokenA, args.TokenB)
	return nil
}

type PoolArgs struct {
	Key ids.ID `json:"key"`
}

func (s *Service) GetPool(r *http.Request, args *PoolArgs, reply *PoolReply) error {
	if err := s.ready(); err != nil {
		return err
	}
	pool, err := s.vm.GetPool(r.Context(), args.Key)
	if err != nil {
		return err
	}
	reply.Pool = pool
	return nil
}

type GetPoolsReply struct {
	Pools []*liquidity.Pool `json:"pools"`
}

func (s *Service) GetPools(r *http.Request, _ *EmptyArgs, reply *GetPoolsReply) error {
	if err := s.ready(); err != nil {
		return err
	}
	pools, err := s.vm.ListPools(r.Context())
	if err != nil {
		return err
	}
	reply.Pools = pools
	return nil
}

type LPBalanceArgs struct {
	Key     ids.ID      `json:"key"`
	Account ids.ShortID `json:"account"`
}

func (s *Service) GetLPBalance(r *http.Request, args *LPBalanceArgs, reply *AmountReply) error {
	if err := s.ready(); err != nil {
		return err
	}
	balance, err := s.vm.LPBalance(r.Context(), args.Key, args.Account)
	if err != nil {
		return err
	}
	reply.Amount = json.Uint64(balance)
	return nil
}

// ============================================
// Analytics
// ============================================

func (s *Service) ImpliedAPY(r *http.Request, args *MarketArgs, reply *APYReply) error {
	if err := s.ready(); err != nil {
		return err
	}
	apy, err := s.vm.ImpliedAPY(r.Context(), args.Market)
	if err != nil {
		return err
	}
	reply.APYBps = json.Uint64(apy)
	return nil
}

type ClassifyModeReply struct {
	Classification *analytics.Classification `json:"classification"`
}

func (s *Service) ClassifyMode(r *http.Request, args *MarketArgs, reply *ClassifyModeReply) error {
	if err := s.ready(); err != nil {
		return err
	}
	c, err := s.vm.ClassifyMode(r.Context(), args.Market)
	if err != nil {
		return err
	}
	reply.Classification = c
	return nil
}

type TradingSignalReply struct {
	Signal *analytics.Signal `json:"signal"`
}

func (s *Service) TradingSignal(r *http.Request, args *MarketArgs, reply *TradingSignalReply) error {
	if err := s.ready(); err != nil {
		return err
	}
	signal, err := s.vm.TradingSignal(r.Context(), args.Market)
	if err != nil {
		return err
	}
	reply.Signal = signal
	return nil
}

// ============================================
// Balances
// ============================================

type ApproveArgs struct {
	Owner   ids.ShortID `json:"owner"`
	Spender ids.ShortID `json:"spender"`
	Asset   ids.ID      `json:"asset"`
	Amount  json.Uint64 `json:"amount"`
}

func (s *Service) Approve(r *http.Request, args *ApproveArgs, reply *SuccessReply) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.vm.Approve(r.Context(), args.Owner, args.Spender, args.Asset, uint64(args.Amount)); err != nil {
		return err
	}
	reply.Success = true
	return nil
}

type BalanceArgs struct {
	Account ids.ShortID `json:"account"`
	Asset   ids.ID      `json:"asset"`
}

func (s *Service) GetBalance(r *http.Request, args *BalanceArgs, reply *AmountReply) error {
	if err := s.ready(); err != nil {
		return err
	}
	balance, err := s.vm.Balance(r.Context(), args.Account, args.Asset)
	if err != nil {
		return err
	}
	reply.Amount = json.Uint64(balance)
	return nil
}

type AllowanceArgs struct {
	Owner   ids.ShortID `json:"owner"`
	Spender ids.ShortID `json:"spender"`
	Asset   ids.ID      `json:"asset"`
}

func (s *Service) GetAllowance(r *http.Request, args *AllowanceArgs, reply *AmountReply) error {
	if err := s.ready(); err != nil {
		return err
	}
	allowance, err := s.vm.Allowance(r.Context(), args.Owner, args.Spender, args.Asset)
	if err != nil {
		return err
	}
	reply.Amount = json.Uint64(allowance)
	return nil
}
