// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package yieldvm is a yield-tokenization VM. Deposits of an underlying
// asset are wrapped into SY and split into principal (PT) and yield (YT)
// tokens that trade against each other in constant-product pools whose
// pricing leans toward the APY the market expects.
//
// Every operation runs as one atomic transition over the VM's database:
// it either commits all of its effects or none of them.
package yieldvm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/rpc/v2"
	"github.com/luxfi/database"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"

	"github.com/luxfi/yieldvm/accrual"
	"github.com/luxfi/yieldvm/analytics"
	"github.com/luxfi/yieldvm/api"
	"github.com/luxfi/yieldvm/config"
	"github.com/luxfi/yieldvm/genesis"
	"github.com/luxfi/yieldvm/liquidity"
	"github.com/luxfi/yieldvm/metrics"
	"github.com/luxfi/yieldvm/oracle"
	"github.com/luxfi/yieldvm/state"
	"github.com/luxfi/yieldvm/tokenization"
	"github.com/luxfi/yieldvm/utils/json"
	"github.com/luxfi/yieldvm/utils/timer/mockable"

	utilmetric "github.com/luxfi/yieldvm/utils/metric"
)

const (
	// Version of the VM
	Version = "1.0.0"

	// ServiceName is the JSON-RPC service name, as in "yield.swap".
	ServiceName = "yield"
)

var (
	errUnknownState   = errors.New("unknown state")
	errNotInitialized = errors.New("VM not initialized")
	errShutdown       = errors.New("VM is shutting down")
	errFeedReadOnly   = errors.New("reference APY feed is read only")

	_ api.VM = (*VM)(nil)
)

// Publisher is a Feed an operator can push reference APYs into.
type Publisher interface {
	oracle.Feed
	Set(market ids.ID, apyBps uint64)
}

// VM wires the tokenization engine, the accrual ledger, the pool manager
// and the analyzer over one database.
type VM struct {
	config.Config

	log log.Logger

	// Lock guards the lifecycle only. Transitions serialize on the keyed
	// locks of state.State.
	lock    sync.RWMutex
	status  State
	genesis ids.ID

	state *state.State

	// Used to check local time
	clock mockable.Clock

	registry metric.Registry
	metrics  metrics.Metrics

	feed    oracle.Feed
	yield   *yieldSource
	history *oracle.History

	markets   *tokenization.Engine
	accrual   *accrual.Ledger
	pools     *liquidity.Manager
	analytics *analytics.Analyzer
}

// New returns an uninitialized VM. A nil feed is replaced by an empty
// oracle.StaticFeed.
func New(cfg config.Config, logger log.Logger, feed oracle.Feed) *VM {
	if feed == nil {
		feed = oracle.NewStaticFeed()
	}
	return &VM{
		Config: cfg,
		log:    logger,
		feed:   feed,
	}
}

// Initialize opens the VM over db. configBytes, when present, replace the
// configuration with its JSON applied over the defaults. genesisBytes, when
// present, are applied once.
func (vm *VM) Initialize(
	ctx context.Context,
	db database.Database,
	genesisBytes []byte,
	configBytes []byte,
) error {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	if len(configBytes) > 0 {
		cfg, err := config.Parse(configBytes)
		if err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}
		vm.Config = cfg
	}
	if err := vm.Config.Verify(); err != nil {
		return err
	}

	history, err := oracle.NewHistory(vm.HistoryWindow)
	if err != nil {
		return err
	}
	vm.history = history

	vm.registry = metric.NewRegistry()
	vm.metrics, err = metrics.New(vm.registry)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	vm.state = state.New(db)
	vm.markets = tokenization.New(vm.log, vm.MarketCacheSize)
	vm.accrual = accrual.New(vm.log, vm.markets)
	vm.yield = &yieldSource{markets: vm.markets, feed: vm.feed}
	vm.pools = liquidity.NewManager(
		vm.log,
		liquidity.Params{
			DefaultFeeBps:         vm.DefaultSwapFeeBps,
			MinLiquidity:          vm.MinLiquidity,
			MaxYieldAdjustmentBps: vm.MaxYieldAdjustmentBps,
			VolatilityAlphaBps:    vm.VolatilityAlphaBps,
		},
		vm.yield,
	)
	vm.analytics = analytics.New(vm.log, vm.markets, vm.pools, vm.history, vm.ModeThresholdBps)

	if len(genesisBytes) > 0 {
		if err := vm.applyGenesis(ctx, genesisBytes); err != nil {
			return fmt.Errorf("failed to apply genesis: %w", err)
		}
	}

	vm.status = Bootstrapping
	vm.log.Info("yield VM initialized",
		log.Stringer("genesisID", vm.genesis),
		log.Uint64("defaultSwapFeeBps", vm.DefaultSwapFeeBps),
	)
	return nil
}

func (vm *VM) applyGenesis(ctx context.Context, genesisBytes []byte) error {
	g, id, err := genesis.Parse(genesisBytes)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	now := vm.clock.Unix()
	err = vm.state.Apply(nil, func(d *state.Diff) error {
		return genesis.Apply(vm.log, vm.accrual.Hook(d, now), id, g, vm.markets, vm.pools, vm.DefaultSwapFeeBps, now)
	})
	if err != nil {
		return err
	}
	vm.genesis = id
	return nil
}

// SetState moves the VM between bootstrapping and normal operation.
func (vm *VM) SetState(_ context.Context, s State) error {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	if vm.status == Unknown {
		return errNotInitialized
	}
	if vm.status == Stopped {
		return errShutdown
	}
	switch s {
	case Bootstrapping, NormalOp:
		vm.log.Info("yield VM changing state",
			log.Stringer("from", vm.status),
			log.Stringer("to", s),
		)
		vm.status = s
		return nil
	default:
		return fmt.Errorf("%w: %d", errUnknownState, s)
	}
}

// State returns the current lifecycle state.
func (vm *VM) State() State {
	vm.lock.RLock()
	defer vm.lock.RUnlock()

	return vm.status
}

// IsBootstrapped reports whether the VM is in normal operation.
func (vm *VM) IsBootstrapped() bool {
	return vm.State() == NormalOp
}

// Shutdown stops accepting operations and closes the database. In-flight
// transitions finish first.
func (vm *VM) Shutdown(context.Context) error {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	if vm.status == Unknown || vm.status == Stopped {
		return nil
	}
	vm.log.Info("shutting down yield VM")
	vm.status = Stopped
	if err := vm.state.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

func (*VM) Version(context.Context) (string, error) {
	return Version, nil
}

// HealthCheck reports lifecycle and store sizes.
func (vm *VM) HealthCheck(ctx context.Context) (interface{}, error) {
	vm.lock.RLock()
	status, genesisID := vm.status, vm.genesis
	vm.lock.RUnlock()

	health := map[string]interface{}{
		"healthy":      status == NormalOp,
		"state":        status,
		"bootstrapped": status == NormalOp,
		"genesisID":    genesisID,
	}
	err := vm.view(ctx, func(s state.Store, _ uint64) error {
		markets, err := vm.markets.ListMarkets(s)
		if err != nil {
			return err
		}
		pools, err := vm.pools.ListPools(s)
		if err != nil {
			return err
		}
		health["markets"] = len(markets)
		health["pools"] = len(pools)
		return nil
	})
	if errors.Is(err, errNotInitialized) || errors.Is(err, errShutdown) {
		return health, nil
	}
	return health, err
}

// CreateHandlers returns the JSON-RPC service at "" and the metrics
// registry at "/metrics".
func (vm *VM) CreateHandlers(context.Context) (map[string]http.Handler, error) {
	vm.lock.RLock()
	defer vm.lock.RUnlock()

	if vm.status == Unknown {
		return nil, errNotInitialized
	}

	codec := json.NewCodec()
	server := rpc.NewServer()
	server.RegisterCodec(codec, "application/json")
	server.RegisterCodec(codec, "application/json;charset=UTF-8")
	server.RegisterInterceptFunc(vm.metrics.InterceptRequest)
	server.RegisterAfterFunc(vm.metrics.AfterRequest)
	if err := server.RegisterService(api.NewService(vm), ServiceName); err != nil {
		return nil, fmt.Errorf("failed to register %s service: %w", ServiceName, err)
	}

	return map[string]http.Handler{
		"":         server,
		"/metrics": utilmetric.Handler(vm.registry),
	}, nil
}

// Clock exposes the VM clock so tests and tools can pin time.
func (vm *VM) Clock() *mockable.Clock {
	return &vm.clock
}

// apply runs fn as one transition holding keys. fn sees the store through
// the accrual hook and the VM time at entry.
func (vm *VM) apply(ctx context.Context, op string, keys []ids.ID, fn func(s state.Store, now uint64) error) error {
	if err := vm.running(ctx); err != nil {
		return err
	}
	defer vm.lock.RUnlock()

	start := time.Now()
	now := vm.clock.Unix()
	err := vm.state.Apply(keys, func(d *state.Diff) error {
		return fn(vm.accrual.Hook(d, now), now)
	})
	vm.metrics.MarkOperation(op, start, err)
	if err != nil {
		vm.log.Debug("operation rejected",
			log.String("op", op),
			log.Err(err),
		)
	}
	return err
}

// view runs fn against the committed state. Nothing fn writes survives.
func (vm *VM) view(ctx context.Context, fn func(s state.Store, now uint64) error) error {
	if err := vm.running(ctx); err != nil {
		return err
	}
	defer vm.lock.RUnlock()

	now := vm.clock.Unix()
	return vm.state.View(func(d *state.Diff) error {
		return fn(d, now)
	})
}

// running read-locks the lifecycle when the VM accepts operations. The
// caller releases the lock.
func (vm *VM) running(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	vm.lock.RLock()
	switch vm.status {
	case Bootstrapping, NormalOp:
		return nil
	case Stopped:
		vm.lock.RUnlock()
		return errShutdown
	default:
		vm.lock.RUnlock()
		return errNotInitialized
	}
}
