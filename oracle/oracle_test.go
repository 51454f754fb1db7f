// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package oracle

import (
	"testing"
	"time"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"
)

func TestStaticFeed(t *testing.T) {
	require := require.New(t)

	feed := NewStaticFeed()
	market := ids.GenerateTestID()

	_, ok := feed.APY(market)
	require.False(ok)

	feed.Set(market, 900)
	apy, ok := feed.APY(market)
	require.True(ok)
	require.Equal(uint64(900), apy)

	feed.Set(market, 0)
	_, ok = feed.APY(market)
	require.False(ok)
}

func TestNewHistoryInvalidWindow(t *testing.T) {
	_, err := NewHistory(0)
	require.ErrorIs(t, err, ErrInvalidWindow)
}

func TestHistoryTWAP(t *testing.T) {
	tests := []struct {
		name    string
		obs     []Observation
		at      uint64
		want    uint64
		wantErr error
	}{
		{
			name:    "empty",
			at:      1_000,
			wantErr: ErrNoObservations,
		},
		{
			name: "single",
			obs:  []Observation{{APYBps: 800, Timestamp: 900}},
			at:   1_000,
			want: 800,
		},
		{
			name: "time weighted",
			obs: []Observation{
				{APYBps: 800, Timestamp: 700},
				{APYBps: 1_200, Timestamp: 900},
			},
			at: 1_000,
			// 800 for 200s, 1200 for 100s
			want: 933,
		},
		{
			name: "carries value into window",
			obs: []Observation{
				{APYBps: 600, Timestamp: 100},
				{APYBps: 900, Timestamp: 800},
			},
			at: 1_000,
			// window starts at 400: 600 for 400s, 900 for 200s
			want: 700,
		},
		{
			name: "only stale",
			obs:  []Observation{{APYBps: 500, Timestamp: 10}},
			at:   1_000,
			want: 500,
		},
		{
			name: "all at query time",
			obs: []Observation{
				{APYBps: 500, Timestamp: 1_000},
				{APYBps: 700, Timestamp: 1_000},
			},
			at:   1_000,
			want: 700,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require := require.New(t)

			h, err := NewHistory(600 * time.Second)
			require.NoError(err)
			market := ids.GenerateTestID()
			for _, obs := range test.obs {
				h.Record(market, obs.APYBps, obs.Timestamp)
			}

			got, err := h.TWAP(market, test.at)
			require.ErrorIs(err, test.wantErr)
			require.Equal(test.want, got)
		})
	}
}

func TestHistoryPrunes(t *testing.T) {
	require := require.New(t)

	h, err := NewHistory(100 * time.Second)
	require.NoError(err)
	market := ids.GenerateTestID()

	h.Record(market, 100, 1_000)
	h.Record(market, 200, 1_150)
	h.Record(market, 300, 1_300)

	require.Len(h.observations[market], 2)
	require.Equal([]Observation{{APYBps: 300, Timestamp: 1_300}}, h.Observations(market, 1_300))

	long, err := NewHistory(24 * time.Hour)
	require.NoError(err)
	for i := uint64(0); i < MaxObservations+10; i++ {
		long.Record(market, 1, 1_300+i)
	}
	require.Len(long.observations[market], MaxObservations)
}
