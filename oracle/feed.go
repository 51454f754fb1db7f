// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package oracle supplies reference APYs and keeps a trailing history of
// the APY implied by pool prices.
package oracle

import (
	"sync"

	"github.com/luxfi/ids"
)

var _ Feed = (*StaticFeed)(nil)

// Feed reports an externally observed APY for a market, in basis points.
type Feed interface {
	APY(market ids.ID) (apyBps uint64, ok bool)
}

// StaticFeed is a Feed whose values are pushed by an operator.
type StaticFeed struct {
	mu   sync.RWMutex
	apys map[ids.ID]uint64
}

func NewStaticFeed() *StaticFeed {
	return &StaticFeed{
		apys: make(map[ids.ID]uint64),
	}
}

func (f *StaticFeed) APY(market ids.ID) (uint64, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	apy, ok := f.apys[market]
	return apy, ok
}

// Set publishes apyBps for market. Zero removes the entry.
func (f *StaticFeed) Set(market ids.ID, apyBps uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if apyBps == 0 {
		delete(f.apys, market)
		return
	}
	f.apys[market] = apyBps
}
