// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package genesis describes the markets, pools and balances a chain starts
// with, and applies them exactly once.
package genesis

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/luxfi/crypto/hash"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/yieldvm/liquidity"
	"github.com/luxfi/yieldvm/state"
	"github.com/luxfi/yieldvm/tokenization"

	jsonutil "github.com/luxfi/yieldvm/utils/json"
)

var (
	ErrAlreadyApplied = errors.New("a different genesis was already applied")
	ErrIssuedAsset    = errors.New("allocation of a protocol-issued asset")
	errUnknownMarket  = errors.New("pool references unknown market")
	errUnknownKind    = errors.New("unknown token kind")
	errSameKind       = errors.New("pool pairs a token with itself")
	errZeroAllocation = errors.New("zero allocation")

	prefixGenesis = []byte("genesis")
	appliedKey    = []byte("applied")
)

type Genesis struct {
	Markets     []Market     `json:"markets"`
	Pools       []Pool       `json:"pools"`
	Allocations []Allocation `json:"allocations"`
}

type Market struct {
	Underlying  ids.ID          `json:"underlying"`
	Maturity    jsonutil.Uint64 `json:"maturity"`
	FixedAPYBps uint64          `json:"fixedApyBps"`
}

// Pool pairs two tokens of Markets[Market], named by kind ("SY", "PT" or
// "YT"). A PT/YT pool is created as a yield pool. A zero FeeBps takes the
// configured default.
type Pool struct {
	Market int    `json:"market"`
	TokenA string `json:"tokenA"`
	TokenB string `json:"tokenB"`
	FeeBps uint64 `json:"feeBps"`
}

type Allocation struct {
	Asset   ids.ID          `json:"asset"`
	Account ids.ShortID     `json:"account"`
	Amount  jsonutil.Uint64 `json:"amount"`
}

type applied struct {
	ID ids.ID `serialize:"true"`
}

// Parse decodes and validates a genesis document. The returned ID is the
// hash of b and identifies the document once applied.
func Parse(b []byte) (*Genesis, ids.ID, error) {
	g := &Genesis{}
	if err := json.Unmarshal(b, g); err != nil {
		return nil, ids.Empty, fmt.Errorf("failed to unmarshal genesis: %w", err)
	}
	if err := g.Verify(); err != nil {
		return nil, ids.Empty, err
	}
	return g, ids.ID(hash.ComputeHash256Array(b)), nil
}

func (g *Genesis) Verify() error {
	for i, p := range g.Pools {
		if p.Market < 0 || p.Market >= len(g.Markets) {
			return fmt.Errorf("%w: pool %d references market %d", errUnknownMarket, i, p.Market)
		}
		for _, kind := range []string{p.TokenA, p.TokenB} {
			if _, err := parseKind(kind); err != nil {
				return fmt.Errorf("pool %d: %w", i, err)
			}
		}
		if p.TokenA == p.TokenB {
			return fmt.Errorf("%w: pool %d", errSameKind, i)
		}
	}
	for i, a := range g.Allocations {
		if a.Amount == 0 {
			return fmt.Errorf("%w: allocation %d", errZeroAllocation, i)
		}
	}
	return nil
}

// Apply writes g into s. Applying the same document again is a no-op;
// applying a different one fails with ErrAlreadyApplied.
func Apply(
	logger log.Logger,
	s state.Store,
	id ids.ID,
	g *Genesis,
	markets *tokenization.Engine,
	pools *liquidity.Manager,
	defaultFeeBps uint64,
	now uint64,
) error {
	prev, err := state.GetRecord[applied](s, prefixGenesis, appliedKey)
	switch {
	case err == nil && prev.ID == id:
		logger.Debug("genesis already applied", log.Stringer("genesisID", id))
		return nil
	case err == nil:
		return fmt.Errorf("%w: have %s, got %s", ErrAlreadyApplied, prev.ID, id)
	case !state.IsNotFound(err):
		return err
	}

	created := make([]*tokenization.Market, len(g.Markets))
	for i, gm := range g.Markets {
		m, err := markets.CreateMarket(s, gm.Underlying, uint64(gm.Maturity), gm.FixedAPYBps, now)
		if err != nil {
			return fmt.Errorf("market %d: %w", i, err)
		}
		created[i] = m
	}

	lpTokens := make(map[ids.ID]struct{}, len(g.Pools))
	for i, gp := range g.Pools {
		m := created[gp.Market]
		kindA, _ := parseKind(gp.TokenA)
		kindB, _ := parseKind(gp.TokenB)
		fee := gp.FeeBps
		if fee == 0 {
			fee = defaultFeeBps
		}
		isYieldPool := kindA != tokenization.KindSY && kindB != tokenization.KindSY
		pool, err := pools.CreatePoolWithFee(s, m.Token(kindA), m.Token(kindB), isYieldPool, fee, now)
		if err != nil {
			return fmt.Errorf("pool %d: %w", i, err)
		}
		lpTokens[pool.LPToken()] = struct{}{}
	}

	// SY, PT, YT and LP only come into existence backed by deposits.
	for i, a := range g.Allocations {
		if _, ok := lpTokens[a.Asset]; ok {
			return fmt.Errorf("%w: allocation %d mints LP %s", ErrIssuedAsset, i, a.Asset)
		}
		_, kind, err := markets.MarketByToken(s, a.Asset)
		switch {
		case err == nil:
			return fmt.Errorf("%w: allocation %d mints %s %s", ErrIssuedAsset, i, kind, a.Asset)
		case !errors.Is(err, tokenization.ErrMarketNotFound):
			return err
		}
		if err := s.Mint(a.Asset, a.Account, uint64(a.Amount)); err != nil {
			return fmt.Errorf("allocation %d: %w", i, err)
		}
	}

	logger.Info("applied genesis",
		log.Stringer("genesisID", id),
		log.Int("markets", len(g.Markets)),
		log.Int("pools", len(g.Pools)),
		log.Int("allocations", len(g.Allocations)),
	)
	return state.PutRecord(s, prefixGenesis, appliedKey, &applied{ID: id})
}

func parseKind(s string) (tokenization.Kind, error) {
	for _, k := range []tokenization.Kind{tokenization.KindSY, tokenization.KindPT, tokenization.KindYT} {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", errUnknownKind, s)
}
