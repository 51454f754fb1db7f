// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package yieldvm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/luxfi/database/memdb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/luxfi/yieldvm/accrual"
	"github.com/luxfi/yieldvm/config"
	"github.com/luxfi/yieldvm/genesis"
	"github.com/luxfi/yieldvm/liquidity"
	"github.com/luxfi/yieldvm/oracle"
	"github.com/luxfi/yieldvm/oracle/oraclemock"
	"github.com/luxfi/yieldvm/state"
	"github.com/luxfi/yieldvm/tokenization"
	"github.com/luxfi/yieldvm/utils/units"

	jsonutil "github.com/luxfi/yieldvm/utils/json"
	utilmetric "github.com/luxfi/yieldvm/utils/metric"
)

const (
	start = 1_700_000_000
	month = 30 * 24 * time.Hour
)

type testEnv struct {
	vm         *VM
	underlying ids.ID
	market     *tokenization.Market
	alice      ids.ShortID
	bob        ids.ShortID
}

func testGenesis(underlying ids.ID, alice, bob ids.ShortID) []byte {
	g := &genesis.Genesis{
		Markets: []genesis.Market{
			{
				Underlying:  underlying,
				Maturity:    jsonutil.Uint64(start + units.SecondsPerYear),
				FixedAPYBps: 850,
			},
		},
		Pools: []genesis.Pool{
			{Market: 0, TokenA: "PT", TokenB: "YT"},
		},
		Allocations: []genesis.Allocation{
			{Asset: underlying, Account: alice, Amount: jsonutil.Uint64(1_000 * units.Unit)},
			{Asset: underlying, Account: bob, Amount: jsonutil.Uint64(1_000 * units.Unit)},
		},
	}
	b, _ := json.Marshal(g)
	return b
}

// newTestEnv starts a VM in normal operation over a genesis with one market
// and its PT/YT pool. Alice and Bob have approved the router for every
// token of the market.
func newTestEnv(t *testing.T, feed oracle.Feed) *testEnv {
	require := require.New(t)

	env := &testEnv{
		underlying: ids.GenerateTestID(),
		alice:      ids.GenerateTestShortID(),
		bob:        ids.GenerateTestShortID(),
	}
	vm := New(config.DefaultConfig(), log.NewNoOpLogger(), feed)
	vm.Clock().Set(time.Unix(start, 0))

	ctx := context.Background()
	require.NoError(vm.Initialize(ctx, memdb.New(), testGenesis(env.underlying, env.alice, env.bob), nil))
	require.NoError(vm.SetState(ctx, NormalOp))
	t.Cleanup(func() {
		require.NoError(vm.Shutdown(context.Background()))
	})
	env.vm = vm

	m, err := vm.GetMarket(ctx, tokenization.MarketID(env.underlying, start+units.SecondsPerYear))
	require.NoError(err)
	env.market = m

	for _, user := range []ids.ShortID{env.alice, env.bob} {
		for _, asset := range []ids.ID{m.Underlying, m.SY, m.PT, m.YT} {
			require.NoError(vm.Approve(ctx, user, state.Router, asset, state.Unlimited))
		}
	}
	return env
}

// mint wraps and splits amount of user's underlying.
func (env *testEnv) mint(t *testing.T, user ids.ShortID, amount uint64) {
	ctx := context.Background()
	require.NoError(t, env.vm.Wrap(ctx, env.market.ID, user, amount))
	require.NoError(t, env.vm.Split(ctx, env.market.ID, user, amount))
}

func (env *testEnv) balance(t *testing.T, user ids.ShortID, asset ids.ID) uint64 {
	b, err := env.vm.Balance(context.Background(), user, asset)
	require.NoError(t, err)
	return b
}

func (env *testEnv) checkCustody(t *testing.T) {
	err := env.vm.view(context.Background(), func(s state.Store, _ uint64) error {
		return env.vm.markets.CheckCustody(s, env.market.ID)
	})
	require.NoError(t, err)
}

func TestLifecycle(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	vm := New(config.DefaultConfig(), log.NewNoOpLogger(), nil)
	require.Equal(Unknown, vm.State())
	require.ErrorIs(vm.SetState(ctx, NormalOp), errNotInitialized)
	_, err := vm.ListMarkets(ctx)
	require.ErrorIs(err, errNotInitialized)
	_, err = vm.CreateHandlers(ctx)
	require.ErrorIs(err, errNotInitialized)

	health, err := vm.HealthCheck(ctx)
	require.NoError(err)
	require.Equal(false, health.(map[string]interface{})["healthy"])

	require.NoError(vm.Initialize(ctx, memdb.New(), nil, nil))
	require.Equal(Bootstrapping, vm.State())
	require.False(vm.IsBootstrapped())

	require.ErrorIs(vm.SetState(ctx, Stopped), errUnknownState)
	require.NoError(vm.SetState(ctx, NormalOp))
	require.True(vm.IsBootstrapped())

	version, err := vm.Version(ctx)
	require.NoError(err)
	require.Equal(Version, version)

	require.NoError(vm.Shutdown(ctx))
	require.Equal(Stopped, vm.State())
	require.ErrorIs(vm.SetState(ctx, NormalOp), errShutdown)
	_, err = vm.ListMarkets(ctx)
	require.ErrorIs(err, errShutdown)
	require.NoError(vm.Shutdown(ctx))
}

func TestInitializeConfig(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	vm := New(config.DefaultConfig(), log.NewNoOpLogger(), nil)
	require.ErrorIs(
		vm.Initialize(ctx, memdb.New(), nil, []byte(`{"defaultSwapFeeBps": 10000}`)),
		config.ErrInvalidFee,
	)

	vm = New(config.DefaultConfig(), log.NewNoOpLogger(), nil)
	require.NoError(vm.Initialize(ctx, memdb.New(), nil, []byte(`{"defaultSwapFeeBps": 5}`)))
	require.Equal(uint64(5), vm.DefaultSwapFeeBps)
	require.NoError(vm.Shutdown(ctx))
}

func TestInitializeGenesis(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t, nil)
	ctx := context.Background()

	markets, err := env.vm.ListMarkets(ctx)
	require.NoError(err)
	require.Len(markets, 1)
	require.Equal(uint64(850), markets[0].FixedAPYBps)
	require.True(markets[0].IsActive)

	pools, err := env.vm.ListPools(ctx)
	require.NoError(err)
	require.Len(pools, 1)
	require.True(pools[0].IsYieldPool)
	require.Equal(config.DefaultConfig().DefaultSwapFeeBps, pools[0].FeeBps)
	require.Equal(env.vm.GetPoolKey(env.market.YT, env.market.PT), pools[0].Key)

	require.Equal(1_000*units.Unit, env.balance(t, env.alice, env.underlying))
	require.NotEqual(ids.Empty, env.vm.genesis)
}

func TestTokenizationFlow(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t, nil)
	ctx := context.Background()
	m := env.market

	require.NoError(env.vm.Wrap(ctx, m.ID, env.alice, 200*units.Unit))
	require.Equal(200*units.Unit, env.balance(t, env.alice, m.SY))
	require.Equal(800*units.Unit, env.balance(t, env.alice, env.underlying))

	require.NoError(env.vm.Split(ctx, m.ID, env.alice, 150*units.Unit))
	require.Equal(50*units.Unit, env.balance(t, env.alice, m.SY))
	require.Equal(150*units.Unit, env.balance(t, env.alice, m.PT))
	require.Equal(150*units.Unit, env.balance(t, env.alice, m.YT))
	env.checkCustody(t)

	claimed, err := env.vm.Merge(ctx, m.ID, env.alice, 50*units.Unit, 50*units.Unit)
	require.NoError(err)
	require.Zero(claimed)
	require.Equal(100*units.Unit, env.balance(t, env.alice, m.SY))
	require.Equal(100*units.Unit, env.balance(t, env.alice, m.PT))

	require.NoError(env.vm.Unwrap(ctx, m.ID, env.alice, 100*units.Unit))
	require.Equal(900*units.Unit, env.balance(t, env.alice, env.underlying))
	env.checkCustody(t)

	err = env.vm.RedeemPT(ctx, m.ID, env.alice, units.Unit)
	require.ErrorIs(err, tokenization.ErrMarketNotMatured)

	env.vm.Clock().Set(time.Unix(int64(m.Maturity), 0))
	require.NoError(env.vm.RedeemPT(ctx, m.ID, env.alice, 100*units.Unit))
	require.Zero(env.balance(t, env.alice, m.PT))
	require.Equal(1_000*units.Unit, env.balance(t, env.alice, env.underlying))

	err = env.vm.Split(ctx, m.ID, env.bob, units.Unit)
	require.ErrorIs(err, tokenization.ErrMarketAlreadyMatured)
	env.checkCustody(t)
}

func TestYieldFlow(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t, nil)
	ctx := context.Background()
	m := env.market

	env.mint(t, env.alice, 100*units.Unit)
	require.NoError(env.vm.Harvest(ctx, m.ID, env.bob, 10*units.Unit))

	env.vm.Clock().Advance(month)
	owed, err := env.vm.Claimable(ctx, m.ID, env.alice)
	require.NoError(err)
	require.Equal(uint64(698_630_136), owed)

	cp, err := env.vm.AccrueYield(ctx, m.ID, env.alice)
	require.NoError(err)
	require.Equal(owed, cp.AccruedUnclaimed)
	require.Equal(uint64(start)+uint64(month/time.Second), cp.LastCheckpoint)

	paid, err := env.vm.ClaimYield(ctx, m.ID, env.alice)
	require.NoError(err)
	require.Equal(owed, paid)
	require.Equal(900*units.Unit+paid, env.balance(t, env.alice, env.underlying))

	owed, err = env.vm.Claimable(ctx, m.ID, env.alice)
	require.NoError(err)
	require.Zero(owed)
	env.checkCustody(t)
}

func TestYieldFollowsTransfers(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t, nil)
	ctx := context.Background()
	m := env.market

	env.mint(t, env.alice, 100*units.Unit)
	require.NoError(env.vm.Harvest(ctx, m.ID, env.bob, 10*units.Unit))

	// Alice holds the YT for one month, then merges half of it.
	env.vm.Clock().Advance(month)
	claimed, err := env.vm.Merge(ctx, m.ID, env.alice, 50*units.Unit, 50*units.Unit)
	require.NoError(err)
	require.Equal(uint64(698_630_136), claimed)

	env.vm.Clock().Advance(month)
	owed, err := env.vm.Claimable(ctx, m.ID, env.alice)
	require.NoError(err)
	want, err := accrual.Yield(50*units.Unit, 850, uint64(month/time.Second))
	require.NoError(err)
	require.Equal(want, owed)
}

func TestClaimLimitedByReserve(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t, nil)
	ctx := context.Background()
	m := env.market

	env.mint(t, env.alice, 100*units.Unit)
	require.NoError(env.vm.Harvest(ctx, m.ID, env.bob, 100_000_000))

	env.vm.Clock().Advance(month)
	paid, err := env.vm.ClaimYield(ctx, m.ID, env.alice)
	require.NoError(err)
	require.Equal(uint64(100_000_000), paid)

	owed, err := env.vm.Claimable(ctx, m.ID, env.alice)
	require.NoError(err)
	require.Equal(uint64(698_630_136-100_000_000), owed)
}

func TestPoolFlow(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t, nil)
	ctx := context.Background()
	m := env.market

	env.mint(t, env.alice, 200*units.Unit)
	added, err := env.vm.AddLiquidity(ctx, env.alice, m.PT, m.YT, 100*units.Unit, 100*units.Unit, 0)
	require.NoError(err)
	require.Equal(100*units.Unit, added.AmountA)
	require.Equal(100*units.Unit, added.AmountB)

	key := env.vm.GetPoolKey(m.PT, m.YT)
	lp, err := env.vm.LPBalance(ctx, key, env.alice)
	require.NoError(err)
	require.Equal(added.LP, lp)

	quote, err := env.vm.GetQuote(ctx, m.PT, m.YT, 10*units.Unit)
	require.NoError(err)

	swapped, err := env.vm.Swap(ctx, env.alice, m.PT, m.YT, 10*units.Unit, 0, env.bob)
	require.NoError(err)
	require.Equal(quote.AmountOut, swapped.AmountOut)
	require.Equal(swapped.AmountOut, env.balance(t, env.bob, m.YT))

	// The swap recorded the implied APY of the new reserves.
	observations := env.vm.history.Observations(m.ID, start)
	require.Len(observations, 1)
	implied, err := env.vm.ImpliedAPY(ctx, m.ID)
	require.NoError(err)
	require.Equal(implied, observations[0].APYBps)

	c, err := env.vm.ClassifyMode(ctx, m.ID)
	require.NoError(err)
	require.Equal(implied, c.ImpliedAPYBps)
	require.Equal(implied, c.HistoricalAPYBps)

	signal, err := env.vm.TradingSignal(ctx, m.ID)
	require.NoError(err)
	require.Equal(c.Mode, signal.Mode)

	removed, err := env.vm.RemoveLiquidity(ctx, env.alice, m.PT, m.YT, lp, 0, 0)
	require.NoError(err)
	require.Positive(removed.AmountA)
	require.Positive(removed.AmountB)
	lp, err = env.vm.LPBalance(ctx, key, env.alice)
	require.NoError(err)
	require.Zero(lp)
}

func TestCreatePool(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t, nil)
	ctx := context.Background()
	m := env.market

	pool, err := env.vm.CreatePool(ctx, m.SY, m.PT, false, 0)
	require.NoError(err)
	require.Equal(env.vm.DefaultSwapFeeBps, pool.FeeBps)

	pool, err = env.vm.CreatePool(ctx, m.SY, m.YT, false, 5)
	require.NoError(err)
	require.Equal(uint64(5), pool.FeeBps)

	_, err = env.vm.CreatePool(ctx, m.PT, m.SY, false, 0)
	require.ErrorIs(err, liquidity.ErrPoolAlreadyExists)

	require.NoError(env.vm.SetPoolActive(ctx, pool.Key, false))
	pool, err = env.vm.GetPool(ctx, pool.Key)
	require.NoError(err)
	require.False(pool.IsActive)

	env.mint(t, env.alice, 10*units.Unit)
	_, err = env.vm.Swap(ctx, env.alice, m.YT, m.SY, units.Unit, 0, env.alice)
	require.ErrorIs(err, liquidity.ErrPoolInactive)
}

func TestRejectedSwapChangesNothing(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t, nil)
	ctx := context.Background()
	m := env.market

	env.mint(t, env.alice, 200*units.Unit)
	_, err := env.vm.AddLiquidity(ctx, env.alice, m.PT, m.YT, 100*units.Unit, 100*units.Unit, 0)
	require.NoError(err)

	key := env.vm.GetPoolKey(m.PT, m.YT)
	before, err := env.vm.GetPool(ctx, key)
	require.NoError(err)

	_, err = env.vm.Swap(ctx, env.alice, m.PT, m.YT, 10*units.Unit, 100*units.Unit, env.alice)
	require.ErrorIs(err, liquidity.ErrSlippageExceeded)

	after, err := env.vm.GetPool(ctx, key)
	require.NoError(err)
	require.Equal(before, after)
	require.Equal(100*units.Unit, env.balance(t, env.alice, m.PT))
	require.Empty(env.vm.history.Observations(m.ID, start))
}

func TestRejectedMergeKeepsYield(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t, nil)
	ctx := context.Background()
	m := env.market

	env.mint(t, env.alice, 100*units.Unit)
	require.NoError(env.vm.Harvest(ctx, m.ID, env.bob, 10*units.Unit))
	env.vm.Clock().Advance(month)

	_, err := env.vm.Merge(ctx, m.ID, env.alice, 50*units.Unit, 40*units.Unit)
	require.ErrorIs(err, tokenization.ErrAsymmetricMergeAmount)

	// The yield claimed ahead of the merge was rolled back with it.
	owed, err := env.vm.Claimable(ctx, m.ID, env.alice)
	require.NoError(err)
	require.Equal(uint64(698_630_136), owed)
	require.Equal(900*units.Unit, env.balance(t, env.alice, env.underlying))
}

func TestInactiveMarket(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t, nil)
	ctx := context.Background()
	m := env.market

	require.NoError(env.vm.Wrap(ctx, m.ID, env.alice, 10*units.Unit))
	require.NoError(env.vm.SetMarketActive(ctx, m.ID, false))

	err := env.vm.Wrap(ctx, m.ID, env.alice, units.Unit)
	require.ErrorIs(err, tokenization.ErrMarketInactive)
	err = env.vm.Split(ctx, m.ID, env.alice, units.Unit)
	require.ErrorIs(err, tokenization.ErrMarketInactive)

	require.NoError(env.vm.Unwrap(ctx, m.ID, env.alice, 10*units.Unit))
	require.Equal(1_000*units.Unit, env.balance(t, env.alice, env.underlying))
}

func TestReferenceAPY(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t, nil)
	ctx := context.Background()
	m := env.market

	apy, err := env.vm.ReferenceAPY(ctx, m.ID)
	require.NoError(err)
	require.Equal(uint64(850), apy)

	require.NoError(env.vm.SetReferenceAPY(ctx, m.ID, 1_200))
	apy, err = env.vm.ReferenceAPY(ctx, m.ID)
	require.NoError(err)
	require.Equal(uint64(1_200), apy)

	require.NoError(env.vm.SetReferenceAPY(ctx, m.ID, 0))
	apy, err = env.vm.ReferenceAPY(ctx, m.ID)
	require.NoError(err)
	require.Equal(uint64(850), apy)

	err = env.vm.SetReferenceAPY(ctx, ids.GenerateTestID(), 1_200)
	require.ErrorIs(err, tokenization.ErrMarketNotFound)
}

func TestReadOnlyFeed(t *testing.T) {
	require := require.New(t)

	ctrl := gomock.NewController(t)
	feed := oraclemock.NewFeed(ctrl)
	feed.EXPECT().APY(gomock.Any()).Return(uint64(1_500), true).AnyTimes()

	env := newTestEnv(t, feed)
	ctx := context.Background()

	apy, err := env.vm.ReferenceAPY(ctx, env.market.ID)
	require.NoError(err)
	require.Equal(uint64(1_500), apy)

	err = env.vm.SetReferenceAPY(ctx, env.market.ID, 900)
	require.ErrorIs(err, errFeedReadOnly)
}

func TestHealthCheck(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t, nil)
	health, err := env.vm.HealthCheck(context.Background())
	require.NoError(err)

	details := health.(map[string]interface{})
	require.Equal(true, details["healthy"])
	require.Equal(NormalOp, details["state"])
	require.Equal(1, details["markets"])
	require.Equal(1, details["pools"])
}

func TestCanceledContext(t *testing.T) {
	env := newTestEnv(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := env.vm.Wrap(ctx, env.market.ID, env.alice, units.Unit)
	require.ErrorIs(t, err, context.Canceled)
}

func TestMetricsHandler(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	env := newTestEnv(t, nil)
	env.mint(t, env.alice, 10*units.Unit)
	require.ErrorIs(env.vm.Split(ctx, env.market.ID, env.alice, 10*units.Unit), state.ErrInsufficientBalance)

	accepted, ok, err := utilmetric.Value(env.vm.registry, "ops_accepted", metric.Labels{"op": "split"})
	require.NoError(err)
	require.True(ok)
	require.InDelta(1, accepted, 0)

	rejected, ok, err := utilmetric.Value(env.vm.registry, "ops_rejected", metric.Labels{"op": "split"})
	require.NoError(err)
	require.True(ok)
	require.InDelta(1, rejected, 0)

	handlers, err := env.vm.CreateHandlers(ctx)
	require.NoError(err)
	w := httptest.NewRecorder()
	handlers["/metrics"].ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(http.StatusOK, w.Code)
	require.Contains(w.Body.String(), "ops_accepted")
}
