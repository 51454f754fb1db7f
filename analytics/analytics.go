// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package analytics reads pool prices to judge whether a market's PT or YT
// is cheap. Nothing here writes state.
package analytics

import (
	"errors"
	"fmt"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/luxfi/yieldvm/liquidity"
	"github.com/luxfi/yieldvm/oracle"
	"github.com/luxfi/yieldvm/state"
	"github.com/luxfi/yieldvm/tokenization"
)

// Mode classifies a market's pricing.
type Mode string

const (
	PTCheap  Mode = "PT_CHEAP"
	YTCheap  Mode = "YT_CHEAP"
	Balanced Mode = "BALANCED"
)

// Markets looks up markets.
type Markets interface {
	GetMarket(r state.Records, id ids.ID) (*tokenization.Market, error)
}

// Pools looks up pools by pair.
type Pools interface {
	GetPoolByPair(r state.Records, tokenA, tokenB ids.ID) (*liquidity.Pool, error)
}

// Classification explains a Mode.
type Classification struct {
	Mode             Mode   `json:"mode"`
	ImpliedAPYBps    uint64 `json:"impliedApyBps"`
	FixedAPYBps      uint64 `json:"fixedApyBps"`
	HistoricalAPYBps uint64 `json:"historicalApyBps"`
	ExpectedAPYBps   uint64 `json:"expectedApyBps"`
}

// Signal is a trading suggestion derived from a Classification.
type Signal struct {
	Mode          Mode            `json:"mode"`
	BuyPT         bool            `json:"buyPT"`
	BuyYT         bool            `json:"buyYT"`
	ConfidencePct decimal.Decimal `json:"confidencePct"`
	Reasoning     string          `json:"reasoning"`
}

type Analyzer struct {
	log          log.Logger
	markets      Markets
	pools        Pools
	history      *oracle.History
	thresholdBps uint64
}

func New(log log.Logger, markets Markets, pools Pools, history *oracle.History, thresholdBps uint64) *Analyzer {
	return &Analyzer{
		log:          log,
		markets:      markets,
		pools:        pools,
		history:      history,
		thresholdBps: thresholdBps,
	}
}

// ImpliedAPY derives the APY priced into the market's PT/YT pool. A
// matured market implies nothing and reports zero.
func (a *Analyzer) ImpliedAPY(r state.Records, market ids.ID, now uint64) (uint64, error) {
	m, err := a.markets.GetMarket(r, market)
	if err != nil {
		return 0, err
	}
	return a.impliedAPY(r, m, now)
}

// ClassifyMode compares the implied APY to the average of the fixed APY and
// the trailing historical APY.
func (a *Analyzer) ClassifyMode(r state.Records, market ids.ID, now uint64) (*Classification, error) {
	m, err := a.markets.GetMarket(r, market)
	if err != nil {
		return nil, err
	}
	implied, err := a.impliedAPY(r, m, now)
	if err != nil {
		return nil, err
	}

	historical, err := a.history.TWAP(m.ID, now)
	if errors.Is(err, oracle.ErrNoObservations) {
		historical = m.FixedAPYBps
	} else if err != nil {
		return nil, err
	}
	expected := (m.FixedAPYBps + historical) / 2

	mode := Balanced
	switch {
	case implied > expected+a.thresholdBps:
		mode = PTCheap
	case implied+a.thresholdBps < expected:
		mode = YTCheap
	}
	a.log.Debug("classified market",
		log.Stringer("marketID", m.ID),
		log.String("mode", string(mode)),
		log.Uint64("impliedAPYBps", implied),
		log.Uint64("expectedAPYBps", expected),
	)
	return &Classification{
		Mode:             mode,
		ImpliedAPYBps:    implied,
		FixedAPYBps:      m.FixedAPYBps,
		HistoricalAPYBps: historical,
		ExpectedAPYBps:   expected,
	}, nil
}

// TradingSignal maps the market's mode to a suggestion. Confidence grows
// with the distance from the expected APY, measured in threshold bands, and
// with how unusual the implied APY is against its recent observations.
func (a *Analyzer) TradingSignal(r state.Records, market ids.ID, now uint64) (*Signal, error) {
	c, err := a.ClassifyMode(r, market, now)
	if err != nil {
		return nil, err
	}

	gap := float64(max(c.ImpliedAPYBps, c.ExpectedAPYBps) - min(c.ImpliedAPYBps, c.ExpectedAPYBps))
	band := gap / float64(max(a.thresholdBps, 1))
	z := a.zScore(market, now, float64(c.ImpliedAPYBps))

	s := &Signal{Mode: c.Mode}
	var confidence float64
	switch c.Mode {
	case PTCheap:
		s.BuyPT = true
		confidence = 50 + 15*min(band-1, 2) + 15*min(z, 1)
		s.Reasoning = fmt.Sprintf(
			"implied APY %d bps is above expected %d bps: PT trades at a discount, lock in the higher fixed yield",
			c.ImpliedAPYBps, c.ExpectedAPYBps,
		)
	case YTCheap:
		s.BuyYT = true
		confidence = 50 + 15*min(band-1, 2) + 15*min(z, 1)
		s.Reasoning = fmt.Sprintf(
			"implied APY %d bps is below expected %d bps: YT underprices the yield still to accrue",
			c.ImpliedAPYBps, c.ExpectedAPYBps,
		)
	default:
		confidence = 100 - 50*band
		s.Reasoning = fmt.Sprintf(
			"implied APY %d bps is within %d bps of expected %d bps: no edge",
			c.ImpliedAPYBps, a.thresholdBps, c.ExpectedAPYBps,
		)
	}
	s.ConfidencePct = decimal.NewFromFloat(max(0, min(confidence, 100))).Round(2)
	return s, nil
}

func (a *Analyzer) impliedAPY(r state.Records, m *tokenization.Market, now uint64) (uint64, error) {
	ttm := m.TimeToMaturity(now)
	if ttm == 0 {
		return 0, nil
	}
	pool, err := a.pools.GetPoolByPair(r, m.PT, m.YT)
	if err != nil {
		return 0, err
	}
	reservePT, reserveYT := pool.Reserve0, pool.Reserve1
	if pool.Token0 != m.PT {
		reservePT, reserveYT = reserveYT, reservePT
	}
	return liquidity.ImpliedAPY(reservePT, reserveYT, ttm)
}

// zScore is |value - mean| / stddev over the observations in the window.
// It is zero when there are too few observations to say.
func (a *Analyzer) zScore(market ids.ID, now uint64, value float64) float64 {
	obs := a.history.Observations(market, now)
	if len(obs) < 2 {
		return 0
	}
	samples := make([]float64, len(obs))
	for i, o := range obs {
		samples[i] = float64(o.APYBps)
	}
	mean, std := stat.MeanStdDev(samples, nil)
	if std == 0 {
		return 0
	}
	d := value - mean
	if d < 0 {
		d = -d
	}
	return d / std
}
