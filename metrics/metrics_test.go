// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/luxfi/metric"
	"github.com/stretchr/testify/require"

	utilmetric "github.com/luxfi/yieldvm/utils/metric"
)

func gathered(t *testing.T, registry metric.Registry, name string, labels metric.Labels) float64 {
	value, ok, err := utilmetric.Value(registry, name, labels)
	require.NoError(t, err)
	require.True(t, ok, name)
	return value
}

func TestMarkOperation(t *testing.T) {
	require := require.New(t)

	registry := metric.NewRegistry()
	m, err := New(registry)
	require.NoError(err)

	m.MarkOperation("swap", time.Now(), nil)
	m.MarkOperation("swap", time.Now(), nil)
	m.MarkOperation("swap", time.Now(), errors.New("slippage"))

	swap := metric.Labels{opLabel: "swap"}
	require.InDelta(2, gathered(t, registry, "ops_accepted", swap), 0)
	require.InDelta(1, gathered(t, registry, "ops_rejected", swap), 0)
}

func TestMarkSwap(t *testing.T) {
	require := require.New(t)

	registry := metric.NewRegistry()
	m, err := New(registry)
	require.NoError(err)

	m.MarkSwap(10_000, 30)
	m.MarkYieldClaimed(7)

	require.InDelta(10_000, gathered(t, registry, "swap_volume", nil), 0)
	require.InDelta(30, gathered(t, registry, "swap_fees", nil), 0)
	require.InDelta(7, gathered(t, registry, "yield_claimed", nil), 0)
}
