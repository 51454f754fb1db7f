// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package tokenization wraps an underlying asset into SY and splits SY into
// principal (PT) and yield (YT) claims.
//
// One SY is always worth exactly one unit of underlying. Yield is never
// folded into the SY rate; it is carried by YT accrual records and paid
// from the market's yield reserve. The custody account of a market
// therefore always holds exactly supply(SY) + supply(PT) underlying.
package tokenization

import (
	"errors"
	"fmt"

	"github.com/luxfi/cache/lru"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/yieldvm/accrual"
	"github.com/luxfi/yieldvm/state"
	"github.com/luxfi/yieldvm/utils/units"
)

var (
	ErrMarketNotFound        = errors.New("market not found")
	ErrMarketExists          = errors.New("market already exists")
	ErrMarketInactive        = errors.New("market inactive")
	ErrMarketNotMatured      = errors.New("market not matured")
	ErrMarketAlreadyMatured  = errors.New("market already matured")
	ErrAsymmetricMergeAmount = errors.New("asymmetric merge amount")
	ErrInvalidMaturity       = errors.New("maturity must be in the future")
	ErrInvalidAPY            = errors.New("fixed APY out of range")
	ErrCustodyMismatch       = errors.New("custody does not back supply")
	ErrInvalidAmount         = state.ErrInvalidAmount

	prefixMarket = []byte("market")
	prefixToken  = []byte("token")

	_ accrual.Resolver = (*Engine)(nil)
)

// Kind is the role a token plays in its market.
type Kind uint8

const (
	KindSY Kind = iota + 1
	KindPT
	KindYT
)

func (k Kind) String() string {
	switch k {
	case KindSY:
		return "SY"
	case KindPT:
		return "PT"
	case KindYT:
		return "YT"
	default:
		return "unknown"
	}
}

type tokenRef struct {
	Market ids.ID `serialize:"true"`
	Kind   Kind   `serialize:"true"`
}

// Engine runs the wrap/split/merge/unwrap state machine.
type Engine struct {
	log log.Logger

	// token -> market. Entries never change once written.
	tokens *lru.Cache[ids.ID, tokenRef]
}

func New(log log.Logger, cacheSize int) *Engine {
	return &Engine{
		log:    log,
		tokens: lru.NewCache[ids.ID, tokenRef](cacheSize),
	}
}

// CreateMarket registers a market for underlying at maturity.
func (e *Engine) CreateMarket(s state.Store, underlying ids.ID, maturity, fixedAPYBps, now uint64) (*Market, error) {
	if maturity <= now {
		return nil, fmt.Errorf("%w: maturity %d, now %d", ErrInvalidMaturity, maturity, now)
	}
	if fixedAPYBps == 0 || fixedAPYBps > units.BasisPoints {
		return nil, fmt.Errorf("%w: %d bps", ErrInvalidAPY, fixedAPYBps)
	}

	m := newMarket(underlying, maturity, fixedAPYBps, now)
	exists, err := state.HasRecord(s, prefixMarket, m.ID[:])
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrMarketExists, m.ID)
	}

	if err := state.PutRecord(s, prefixMarket, m.ID[:], m); err != nil {
		return nil, err
	}
	for token, kind := range map[ids.ID]Kind{m.SY: KindSY, m.PT: KindPT, m.YT: KindYT} {
		ref := &tokenRef{Market: m.ID, Kind: kind}
		if err := state.PutRecord(s, prefixToken, token[:], ref); err != nil {
			return nil, err
		}
	}

	e.log.Info("created market",
		log.Stringer("marketID", m.ID),
		log.Stringer("underlying", underlying),
		log.Uint64("maturity", maturity),
		log.Uint64("fixedAPYBps", fixedAPYBps),
	)
	return m, nil
}

// GetMarket returns the market with id.
func (e *Engine) GetMarket(r state.Records, id ids.ID) (*Market, error) {
	m, err := state.GetRecord[Market](r, prefixMarket, id[:])
	if state.IsNotFound(err) {
		return nil, fmt.Errorf("%w: %s", ErrMarketNotFound, id)
	}
	return m, err
}

// ListMarkets returns every market ordered by id.
func (e *Engine) ListMarkets(r state.Records) ([]*Market, error) {
	return state.ListRecords[Market](r, prefixMarket)
}

// MarketByToken returns the market that issued token and the role token
// plays in it.
func (e *Engine) MarketByToken(r state.Records, token ids.ID) (*Market, Kind, error) {
	ref, ok := e.tokens.Get(token)
	if !ok {
		stored, err := state.GetRecord[tokenRef](r, prefixToken, token[:])
		if state.IsNotFound(err) {
			return nil, 0, fmt.Errorf("%w: no market issues %s", ErrMarketNotFound, token)
		}
		if err != nil {
			return nil, 0, err
		}
		ref = *stored
	}
	m, err := e.GetMarket(r, ref.Market)
	if err != nil {
		return nil, 0, err
	}
	// only cache after the market itself is readable, so an aborted
	// CreateMarket never leaves a stale entry behind
	e.tokens.Put(token, ref)
	return m, ref.Kind, nil
}

// SetMarketActive toggles whether the market accepts new positions.
func (e *Engine) SetMarketActive(s state.Store, id ids.ID, active bool) error {
	m, err := e.GetMarket(s, id)
	if err != nil {
		return err
	}
	m.IsActive = active
	return state.PutRecord(s, prefixMarket, m.ID[:], m)
}

// Wrap moves amount underlying from user into custody and mints the same
// amount of SY.
func (e *Engine) Wrap(s state.Store, id ids.ID, user ids.ShortID, amount uint64) error {
	m, err := e.activeMarket(s, id, amount)
	if err != nil {
		return err
	}
	if err := s.TransferFrom(state.Router, m.Underlying, user, m.Custody(), amount); err != nil {
		return err
	}
	return s.Mint(m.SY, user, amount)
}

// Unwrap burns SY and releases the same amount of underlying. It stays
// available after a market is deactivated.
func (e *Engine) Unwrap(s state.Store, id ids.ID, user ids.ShortID, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	m, err := e.GetMarket(s, id)
	if err != nil {
		return err
	}
	if err := s.Burn(m.SY, user, amount); err != nil {
		return err
	}
	return e.release(s, m, user, amount)
}

// Split burns SY and mints equal amounts of PT and YT. YT minted here
// starts accruing at now.
func (e *Engine) Split(s state.Store, id ids.ID, user ids.ShortID, amount, now uint64) error {
	m, err := e.activeMarket(s, id, amount)
	if err != nil {
		return err
	}
	if m.Matured(now) {
		return fmt.Errorf("%w: %s matured at %d", ErrMarketAlreadyMatured, m.ID, m.Maturity)
	}
	if err := s.Burn(m.SY, user, amount); err != nil {
		return err
	}
	if err := s.Mint(m.PT, user, amount); err != nil {
		return err
	}
	return s.Mint(m.YT, user, amount)
}

// Merge burns equal amounts of PT and YT and mints the same amount of SY.
// It remains allowed after maturity. Callers settle outstanding yield
// before merging.
func (e *Engine) Merge(s state.Store, id ids.ID, user ids.ShortID, ptAmount, ytAmount uint64) error {
	if ptAmount != ytAmount {
		return fmt.Errorf("%w: %d PT, %d YT", ErrAsymmetricMergeAmount, ptAmount, ytAmount)
	}
	m, err := e.activeMarket(s, id, ptAmount)
	if err != nil {
		return err
	}
	if err := s.Burn(m.PT, user, ptAmount); err != nil {
		return err
	}
	if err := s.Burn(m.YT, user, ytAmount); err != nil {
		return err
	}
	return s.Mint(m.SY, user, ptAmount)
}

// RedeemPT burns PT for underlying 1:1 once the market has matured.
func (e *Engine) RedeemPT(s state.Store, id ids.ID, user ids.ShortID, amount, now uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	m, err := e.GetMarket(s, id)
	if err != nil {
		return err
	}
	if !m.Matured(now) {
		return fmt.Errorf("%w: %s matures at %d", ErrMarketNotMatured, m.ID, m.Maturity)
	}
	if err := s.Burn(m.PT, user, amount); err != nil {
		return err
	}
	return e.release(s, m, user, amount)
}

// Harvest deposits underlying yield into the market's yield reserve.
func (e *Engine) Harvest(s state.Store, id ids.ID, from ids.ShortID, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	m, err := e.GetMarket(s, id)
	if err != nil {
		return err
	}
	return s.TransferFrom(state.Router, m.Underlying, from, m.YieldReserve(), amount)
}

// CheckCustody verifies custody holds exactly supply(SY) + supply(PT).
func (e *Engine) CheckCustody(s state.Store, id ids.ID) error {
	m, err := e.GetMarket(s, id)
	if err != nil {
		return err
	}
	custody, err := s.BalanceOf(m.Custody(), m.Underlying)
	if err != nil {
		return err
	}
	sy, err := s.TotalSupply(m.SY)
	if err != nil {
		return err
	}
	pt, err := s.TotalSupply(m.PT)
	if err != nil {
		return err
	}
	if custody != sy+pt {
		return fmt.Errorf("%w: custody %d, SY %d, PT %d", ErrCustodyMismatch, custody, sy, pt)
	}
	return nil
}

// TermsByYT implements accrual.Resolver.
func (e *Engine) TermsByYT(r state.Records, asset ids.ID) (*accrual.Terms, bool, error) {
	m, kind, err := e.MarketByToken(r, asset)
	switch {
	case errors.Is(err, ErrMarketNotFound):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	case kind != KindYT:
		return nil, false, nil
	}
	return m.Terms(), true, nil
}

// Terms implements accrual.Resolver.
func (e *Engine) Terms(r state.Records, id ids.ID) (*accrual.Terms, error) {
	m, err := e.GetMarket(r, id)
	if err != nil {
		return nil, err
	}
	return m.Terms(), nil
}

func (e *Engine) activeMarket(r state.Records, id ids.ID, amount uint64) (*Market, error) {
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	m, err := e.GetMarket(r, id)
	if err != nil {
		return nil, err
	}
	if !m.IsActive {
		return nil, fmt.Errorf("%w: %s", ErrMarketInactive, m.ID)
	}
	return m, nil
}

func (e *Engine) release(s state.Store, m *Market, user ids.ShortID, amount uint64) error {
	custody, err := s.BalanceOf(m.Custody(), m.Underlying)
	if err != nil {
		return err
	}
	if custody < amount {
		return fmt.Errorf("%w: custody of %s holds %d, need %d",
			state.ErrInsufficientBalance, m.ID, custody, amount)
	}
	return s.Transfer(m.Underlying, m.Custody(), user, amount)
}
