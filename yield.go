// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package yieldvm

import (
	"errors"

	"github.com/luxfi/ids"

	"github.com/luxfi/yieldvm/liquidity"
	"github.com/luxfi/yieldvm/oracle"
	"github.com/luxfi/yieldvm/state"
	"github.com/luxfi/yieldvm/tokenization"
)

var _ liquidity.YieldSource = (*yieldSource)(nil)

// yieldSource tells the pool manager which pairs are a market's PT and YT,
// and what APY that market should be priced toward.
type yieldSource struct {
	markets *tokenization.Engine
	feed    oracle.Feed
}

func (y *yieldSource) YieldInfo(r state.Records, tokenA, tokenB ids.ID) (*liquidity.YieldInfo, bool, error) {
	m, kind, err := y.markets.MarketByToken(r, tokenA)
	if errors.Is(err, tokenization.ErrMarketNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	switch {
	case kind == tokenization.KindPT && tokenB == m.YT:
	case kind == tokenization.KindYT && tokenB == m.PT:
	default:
		return nil, false, nil
	}
	return &liquidity.YieldInfo{
		Market:          m.ID,
		PT:              m.PT,
		YT:              m.YT,
		Maturity:        m.Maturity,
		ReferenceAPYBps: y.referenceAPY(m),
	}, true, nil
}

// referenceAPY prefers the feed and falls back to the market's fixed APY.
func (y *yieldSource) referenceAPY(m *tokenization.Market) uint64 {
	if apy, ok := y.feed.APY(m.ID); ok {
		return apy
	}
	return m.FixedAPYBps
}
