// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package oracle

import (
	"errors"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/ids"

	safemath "github.com/luxfi/yieldvm/utils/math"
)

var (
	ErrNoObservations = errors.New("no APY observations available")
	ErrInvalidWindow  = errors.New("history window must be positive")
)

// MaxObservations bounds the observations kept per market.
const MaxObservations = 1000

// Observation is one implied APY sample.
type Observation struct {
	APYBps    uint64 `json:"apyBps"`
	Timestamp uint64 `json:"timestamp"`
}

// History keeps a rolling window of implied APY observations per market
// and averages them by time.
type History struct {
	mu           sync.RWMutex
	window       uint64
	observations map[ids.ID][]Observation
}

func NewHistory(window time.Duration) (*History, error) {
	if window <= 0 {
		return nil, ErrInvalidWindow
	}
	return &History{
		window:       uint64(window / time.Second),
		observations: make(map[ids.ID][]Observation),
	}, nil
}

// Record adds an observation. Observations older than twice the window
// are pruned.
func (h *History) Record(market ids.ID, apyBps, timestamp uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	obs := append(h.observations[market], Observation{
		APYBps:    apyBps,
		Timestamp: timestamp,
	})

	start := 0
	if timestamp > 2*h.window {
		cutoff := timestamp - 2*h.window
		for start < len(obs)-1 && obs[start].Timestamp <= cutoff {
			start++
		}
	}
	start = max(start, len(obs)-MaxObservations)
	h.observations[market] = append(obs[:0:0], obs[start:]...)
}

// Observations returns the samples of market inside the window ending at.
func (h *History) Observations(market ids.ID, at uint64) []Observation {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var windowStart uint64
	if at > h.window {
		windowStart = at - h.window
	}
	var out []Observation
	for _, obs := range h.observations[market] {
		if obs.Timestamp >= windowStart && obs.Timestamp <= at {
			out = append(out, obs)
		}
	}
	return out
}

// TWAP returns the time-weighted average implied APY over the window
// ending at. Each observation holds until the next one.
func (h *History) TWAP(market ids.ID, at uint64) (uint64, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	all := h.observations[market]
	var windowStart uint64
	if at > h.window {
		windowStart = at - h.window
	}

	var (
		relevant []Observation
		carry    *Observation
	)
	for i := range all {
		switch {
		case all[i].Timestamp > at:
		case all[i].Timestamp < windowStart:
			carry = &all[i]
		default:
			relevant = append(relevant, all[i])
		}
	}
	if len(relevant) == 0 {
		if carry == nil {
			return 0, ErrNoObservations
		}
		return carry.APYBps, nil
	}
	if carry != nil {
		// the last sample before the window is in force at its start
		relevant = append([]Observation{{APYBps: carry.APYBps, Timestamp: windowStart}}, relevant...)
	}

	weighted := new(uint256.Int)
	var total uint64
	for i, obs := range relevant {
		end := at
		if i+1 < len(relevant) {
			end = relevant[i+1].Timestamp
		}
		d := end - obs.Timestamp
		weighted.Add(weighted, new(uint256.Int).Mul(safemath.U256(obs.APYBps), safemath.U256(d)))
		total += d
	}
	if total == 0 {
		return relevant[len(relevant)-1].APYBps, nil
	}
	return safemath.Uint64(weighted.Div(weighted, safemath.U256(total)))
}
