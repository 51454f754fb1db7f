// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metrics

import (
	"errors"
	"time"

	"github.com/luxfi/metric"

	utilmetric "github.com/luxfi/yieldvm/utils/metric"
	"github.com/luxfi/yieldvm/utils/wrappers"
)

const opLabel = "op"

var (
	_ Metrics = (*metricsImpl)(nil)

	opLabels = []string{opLabel}

	errNotRegistry = errors.New("registerer must be a Registry")
)

type Metrics interface {
	utilmetric.APIInterceptor

	// MarkOperation records the outcome and duration of a state transition.
	MarkOperation(op string, start time.Time, err error)
	// MarkSwap adds to the swap volume of the input token's side.
	MarkSwap(amountIn, fee uint64)
	MarkYieldClaimed(amount uint64)
}

type metricsImpl struct {
	utilmetric.APIInterceptor

	accepted    metric.CounterVec
	rejected    metric.CounterVec
	durationSum metric.GaugeVec

	swapVolume   metric.Counter
	swapFees     metric.Counter
	yieldClaimed metric.Counter
}

func New(registerer metric.Registerer) (Metrics, error) {
	registry, ok := registerer.(metric.Registry)
	if !ok {
		return nil, errNotRegistry
	}

	m := &metricsImpl{
		accepted: metric.NewCounterVec(
			metric.CounterOpts{
				Name: "ops_accepted",
				Help: "Number of operations committed",
			},
			opLabels,
		),
		rejected: metric.NewCounterVec(
			metric.CounterOpts{
				Name: "ops_rejected",
				Help: "Number of operations rolled back",
			},
			opLabels,
		),
		durationSum: metric.NewGaugeVec(
			metric.GaugeOpts{
				Name: "op_duration_sum",
				Help: "Time (in ns) spent applying operations",
			},
			opLabels,
		),
		swapVolume: metric.NewCounter(metric.CounterOpts{
			Name: "swap_volume",
			Help: "Base units swapped in",
		}),
		swapFees: metric.NewCounter(metric.CounterOpts{
			Name: "swap_fees",
			Help: "Base units charged as swap fees",
		}),
		yieldClaimed: metric.NewCounter(metric.CounterOpts{
			Name: "yield_claimed",
			Help: "Base units of underlying paid out as yield",
		}),
	}

	apiRequestMetrics, err := utilmetric.NewAPIInterceptor("api", registry)
	m.APIInterceptor = apiRequestMetrics
	errs := wrappers.Errs{Err: err}
	errs.Add(
		registerer.Register(metric.AsCollector(m.accepted)),
		registerer.Register(metric.AsCollector(m.rejected)),
		registerer.Register(metric.AsCollector(m.durationSum)),
		registerer.Register(metric.AsCollector(m.swapVolume)),
		registerer.Register(metric.AsCollector(m.swapFees)),
		registerer.Register(metric.AsCollector(m.yieldClaimed)),
	)
	return m, errs.Err
}

func (m *metricsImpl) MarkOperation(op string, start time.Time, err error) {
	labels := metric.Labels{opLabel: op}
	m.durationSum.With(labels).Add(float64(time.Since(start)))
	if err != nil {
		m.rejected.With(labels).Inc()
		return
	}
	m.accepted.With(labels).Inc()
}

func (m *metricsImpl) MarkSwap(amountIn, fee uint64) {
	m.swapVolume.Add(float64(amountIn))
	m.swapFees.Add(float64(fee))
}

func (m *metricsImpl) MarkYieldClaimed(amount uint64) {
	m.yieldClaimed.Add(float64(amount))
}
