// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package genesis

import (
	"encoding/json"
	"testing"

	"github.com/luxfi/database/memdb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/yieldvm/liquidity"
	"github.com/luxfi/yieldvm/state"
	"github.com/luxfi/yieldvm/tokenization"
	"github.com/luxfi/yieldvm/utils/units"

	jsonutil "github.com/luxfi/yieldvm/utils/json"
)

const now uint64 = 1_700_000_000

func testGenesis() *Genesis {
	underlying := ids.GenerateTestID()
	return &Genesis{
		Markets: []Market{
			{
				Underlying:  underlying,
				Maturity:    jsonutil.Uint64(now + units.SecondsPerYear),
				FixedAPYBps: 850,
			},
		},
		Pools: []Pool{
			{Market: 0, TokenA: "PT", TokenB: "YT"},
			{Market: 0, TokenA: "SY", TokenB: "PT", FeeBps: 5},
		},
		Allocations: []Allocation{
			{Asset: underlying, Account: ids.GenerateTestShortID(), Amount: jsonutil.Uint64(1_000 * units.Unit)},
		},
	}
}

func marshal(t *testing.T, g *Genesis) []byte {
	b, err := json.Marshal(g)
	require.NoError(t, err)
	return b
}

type testEnv struct {
	state   *state.State
	markets *tokenization.Engine
	pools   *liquidity.Manager
}

func newTestEnv() *testEnv {
	return &testEnv{
		state:   state.New(memdb.New()),
		markets: tokenization.New(log.NewNoOpLogger(), 16),
		pools:   liquidity.NewManager(log.NewNoOpLogger(), liquidity.Params{DefaultFeeBps: 30, MinLiquidity: 1000}, nil),
	}
}

func (env *testEnv) apply(id ids.ID, g *Genesis, at uint64) error {
	return env.state.Apply(nil, func(d *state.Diff) error {
		return Apply(log.NewNoOpLogger(), d, id, g, env.markets, env.pools, 30, at)
	})
}

func TestParse(t *testing.T) {
	require := require.New(t)

	want := testGenesis()
	b := marshal(t, want)

	g, id, err := Parse(b)
	require.NoError(err)
	require.Equal(want, g)
	require.NotEqual(ids.Empty, id)

	_, id2, err := Parse(b)
	require.NoError(err)
	require.Equal(id, id2)
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Genesis)
		wantErr error
	}{
		{
			name:    "unknown market",
			mutate:  func(g *Genesis) { g.Pools[0].Market = 3 },
			wantErr: errUnknownMarket,
		},
		{
			name:    "unknown kind",
			mutate:  func(g *Genesis) { g.Pools[0].TokenA = "LP" },
			wantErr: errUnknownKind,
		},
		{
			name:    "same kind",
			mutate:  func(g *Genesis) { g.Pools[0].TokenB = "PT" },
			wantErr: errSameKind,
		},
		{
			name:    "zero allocation",
			mutate:  func(g *Genesis) { g.Allocations[0].Amount = 0 },
			wantErr: errZeroAllocation,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			g := testGenesis()
			test.mutate(g)
			_, _, err := Parse(marshal(t, g))
			require.ErrorIs(t, err, test.wantErr)
		})
	}

	_, _, err := Parse([]byte("{"))
	require.Error(t, err)
}

func TestApply(t *testing.T) {
	require := require.New(t)

	env := newTestEnv()
	g, id, err := Parse(marshal(t, testGenesis()))
	require.NoError(err)
	require.NoError(env.apply(id, g, now))

	require.NoError(env.state.View(func(d *state.Diff) error {
		markets, err := env.markets.ListMarkets(d)
		require.NoError(err)
		require.Len(markets, 1)
		m := markets[0]
		require.Equal(tokenization.MarketID(g.Markets[0].Underlying, uint64(g.Markets[0].Maturity)), m.ID)

		yieldPool, err := env.pools.GetPoolByPair(d, m.PT, m.YT)
		require.NoError(err)
		require.True(yieldPool.IsYieldPool)
		require.Equal(uint64(30), yieldPool.FeeBps)

		syPool, err := env.pools.GetPoolByPair(d, m.SY, m.PT)
		require.NoError(err)
		require.False(syPool.IsYieldPool)
		require.Equal(uint64(5), syPool.FeeBps)

		a := g.Allocations[0]
		balance, err := d.BalanceOf(a.Account, a.Asset)
		require.NoError(err)
		require.Equal(uint64(a.Amount), balance)
		return nil
	}))
}

func TestApplyIdempotent(t *testing.T) {
	require := require.New(t)

	env := newTestEnv()
	g, id, err := Parse(marshal(t, testGenesis()))
	require.NoError(err)
	require.NoError(env.apply(id, g, now))
	require.NoError(env.apply(id, g, now+1))

	a := g.Allocations[0]
	require.NoError(env.state.View(func(d *state.Diff) error {
		balance, err := d.BalanceOf(a.Account, a.Asset)
		require.NoError(err)
		require.Equal(uint64(a.Amount), balance)
		return nil
	}))

	other, otherID, err := Parse(marshal(t, testGenesis()))
	require.NoError(err)
	require.ErrorIs(env.apply(otherID, other, now), ErrAlreadyApplied)
}

func TestApplyRollsBack(t *testing.T) {
	require := require.New(t)

	env := newTestEnv()
	g := testGenesis()
	g.Pools = append(g.Pools, Pool{Market: 0, TokenA: "YT", TokenB: "PT"})
	id := ids.GenerateTestID()

	// the reversed pair maps to the same pool key
	require.ErrorIs(env.apply(id, g, now), liquidity.ErrPoolAlreadyExists)

	require.NoError(env.state.View(func(d *state.Diff) error {
		markets, err := env.markets.ListMarkets(d)
		require.NoError(err)
		require.Empty(markets)
		return nil
	}))
}

func TestApplyRejectsIssuedAssets(t *testing.T) {
	issued := func(g *Genesis) (sy, pt, yt, lp ids.ID) {
		m := g.Markets[0]
		marketID := tokenization.MarketID(m.Underlying, uint64(m.Maturity))
		sy = state.DeriveID("sy", marketID[:])
		pt = state.DeriveID("pt", marketID[:])
		yt = state.DeriveID("yt", marketID[:])
		key := liquidity.PoolKey(pt, yt)
		return sy, pt, yt, state.DeriveID("lp", key[:])
	}

	tests := []struct {
		name  string
		asset func(*Genesis) ids.ID
	}{
		{
			name:  "SY",
			asset: func(g *Genesis) ids.ID { sy, _, _, _ := issued(g); return sy },
		},
		{
			name:  "PT",
			asset: func(g *Genesis) ids.ID { _, pt, _, _ := issued(g); return pt },
		},
		{
			name:  "YT",
			asset: func(g *Genesis) ids.ID { _, _, yt, _ := issued(g); return yt },
		},
		{
			name:  "LP",
			asset: func(g *Genesis) ids.ID { _, _, _, lp := issued(g); return lp },
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require := require.New(t)

			env := newTestEnv()
			g := testGenesis()
			asset := test.asset(g)
			g.Allocations = append(g.Allocations, Allocation{
				Asset:   asset,
				Account: ids.GenerateTestShortID(),
				Amount:  jsonutil.Uint64(5 * units.Unit),
			})
			require.ErrorIs(env.apply(ids.GenerateTestID(), g, now), ErrIssuedAsset)

			require.NoError(env.state.View(func(d *state.Diff) error {
				supply, err := d.TotalSupply(asset)
				require.NoError(err)
				require.Zero(supply)

				markets, err := env.markets.ListMarkets(d)
				require.NoError(err)
				require.Empty(markets)
				return nil
			}))
		})
	}
}
