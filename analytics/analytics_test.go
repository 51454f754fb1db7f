// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package analytics

import (
	"testing"
	"time"

	"github.com/luxfi/database/memdb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/yieldvm/liquidity"
	"github.com/luxfi/yieldvm/oracle"
	"github.com/luxfi/yieldvm/state"
	"github.com/luxfi/yieldvm/tokenization"
	"github.com/luxfi/yieldvm/utils/units"
)

const now uint64 = 1_700_000_000

type testEnv struct {
	analyzer *Analyzer
	history  *oracle.History
	state    *state.State
	market   *tokenization.Market
}

// newTestEnv creates a one year market at 850 bps whose PT/YT pool holds
// the given reserves.
func newTestEnv(t *testing.T, reservePT, reserveYT uint64) *testEnv {
	require := require.New(t)

	history, err := oracle.NewHistory(time.Hour)
	require.NoError(err)

	markets := tokenization.New(log.NewNoOpLogger(), 16)
	pools := liquidity.NewManager(log.NewNoOpLogger(), liquidity.Params{
		DefaultFeeBps:         30,
		MinLiquidity:          1000,
		MaxYieldAdjustmentBps: 500,
		VolatilityAlphaBps:    2_000,
	}, nil)
	env := &testEnv{
		analyzer: New(log.NewNoOpLogger(), markets, pools, history, 50),
		history:  history,
		state:    state.New(memdb.New()),
	}

	provider := ids.GenerateTestShortID()
	require.NoError(env.state.Apply(nil, func(d *state.Diff) error {
		var err error
		env.market, err = markets.CreateMarket(d, ids.GenerateTestID(), now+units.SecondsPerYear, 850, now)
		if err != nil {
			return err
		}
		for token, amount := range map[ids.ID]uint64{env.market.PT: reservePT, env.market.YT: reserveYT} {
			if err := d.Mint(token, provider, amount); err != nil {
				return err
			}
			if err := d.Approve(provider, state.Router, token, state.Unlimited); err != nil {
				return err
			}
		}
		if _, err := pools.CreatePool(d, env.market.PT, env.market.YT, true, now); err != nil {
			return err
		}
		_, err = pools.AddLiquidity(d, provider, env.market.PT, env.market.YT, reservePT, reserveYT, 0, now)
		return err
	}))
	return env
}

func (env *testEnv) signal(t *testing.T, at uint64) *Signal {
	var s *Signal
	require.NoError(t, env.state.View(func(d *state.Diff) error {
		var err error
		s, err = env.analyzer.TradingSignal(d, env.market.ID, at)
		return err
	}))
	return s
}

func TestImpliedAPY(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t, 100*units.Unit, 1_000*units.Unit)
	require.NoError(env.state.View(func(d *state.Diff) error {
		apy, err := env.analyzer.ImpliedAPY(d, env.market.ID, now)
		require.NoError(err)
		require.Equal(uint64(909), apy)

		apy, err = env.analyzer.ImpliedAPY(d, env.market.ID, env.market.Maturity)
		require.NoError(err)
		require.Zero(apy)

		_, err = env.analyzer.ImpliedAPY(d, ids.GenerateTestID(), now)
		require.ErrorIs(err, tokenization.ErrMarketNotFound)
		return nil
	}))
}

func TestImpliedAPYWithoutPool(t *testing.T) {
	require := require.New(t)

	history, err := oracle.NewHistory(time.Hour)
	require.NoError(err)
	markets := tokenization.New(log.NewNoOpLogger(), 16)
	analyzer := New(log.NewNoOpLogger(), markets, liquidity.NewManager(log.NewNoOpLogger(), liquidity.Params{}, nil), history, 50)

	s := state.New(memdb.New())
	var market *tokenization.Market
	require.NoError(s.Apply(nil, func(d *state.Diff) error {
		market, err = markets.CreateMarket(d, ids.GenerateTestID(), now+1, 850, now)
		return err
	}))
	require.NoError(s.View(func(d *state.Diff) error {
		_, err := analyzer.ImpliedAPY(d, market.ID, now)
		require.ErrorIs(err, liquidity.ErrPoolNotFound)
		return nil
	}))
}

func TestClassifyMode(t *testing.T) {
	tests := []struct {
		name      string
		reservePT uint64
		reserveYT uint64
		want      Mode
		buyPT     bool
		buyYT     bool
	}{
		{
			name:      "pt cheap",
			reservePT: 100 * units.Unit,
			reserveYT: 1_000 * units.Unit,
			want:      PTCheap,
			buyPT:     true,
		},
		{
			name:      "yt cheap",
			reservePT: 100 * units.Unit,
			reserveYT: 1_300 * units.Unit,
			want:      YTCheap,
			buyYT:     true,
		},
		{
			name:      "balanced",
			reservePT: 100 * units.Unit,
			reserveYT: 1_076 * units.Unit,
			want:      Balanced,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require := require.New(t)

			env := newTestEnv(t, test.reservePT, test.reserveYT)
			s := env.signal(t, now)
			require.Equal(test.want, s.Mode)
			require.Equal(test.buyPT, s.BuyPT)
			require.Equal(test.buyYT, s.BuyYT)
			require.NotEmpty(s.Reasoning)
			require.True(s.ConfidencePct.GreaterThanOrEqual(decimal.Zero))
			require.True(s.ConfidencePct.LessThanOrEqual(decimal.NewFromInt(100)))
		})
	}
}

func TestSignalConfidence(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t, 100*units.Unit, 1_000*units.Unit)
	// 909 bps implied, 850 expected, 50 bps bands: 1.18 bands out
	require.True(decimal.RequireFromString("52.7").Equal(env.signal(t, now).ConfidencePct))

	env = newTestEnv(t, 100*units.Unit, 1_076*units.Unit)
	require.True(decimal.NewFromInt(100).Equal(env.signal(t, now).ConfidencePct))
}

func TestClassifyUsesHistory(t *testing.T) {
	require := require.New(t)

	// 850 bps implied
	env := newTestEnv(t, 100*units.Unit, 1_076*units.Unit)
	env.history.Record(env.market.ID, 700, now-100)
	env.history.Record(env.market.ID, 700, now-50)

	require.NoError(env.state.View(func(d *state.Diff) error {
		c, err := env.analyzer.ClassifyMode(d, env.market.ID, now)
		require.NoError(err)
		require.Equal(uint64(700), c.HistoricalAPYBps)
		require.Equal(uint64(775), c.ExpectedAPYBps)
		require.Equal(PTCheap, c.Mode)
		return nil
	}))
}
