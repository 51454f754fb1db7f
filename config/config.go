// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config defines configuration types for the yield VM.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/luxfi/yieldvm/utils/units"
)

var (
	ErrInvalidFee        = errors.New("fee must be below 100%")
	ErrInvalidAdjustment = errors.New("yield adjustment cap must be below 100%")
	ErrInvalidAlpha      = errors.New("volatility alpha must be in (0, 100%]")
	ErrInvalidWindow     = errors.New("history window must be positive")
	ErrInvalidLiquidity  = errors.New("minimum liquidity must be positive")
)

// Config contains configuration parameters for the yield VM.
type Config struct {
	// DefaultSwapFeeBps is used for pools created without an explicit fee
	DefaultSwapFeeBps uint64 `json:"defaultSwapFeeBps" mapstructure:"default_swap_fee_bps"`
	// MinLiquidity is the least LP a pool's first deposit may mint
	MinLiquidity uint64 `json:"minLiquidity" mapstructure:"min_liquidity"`

	// MaxYieldAdjustmentBps caps how far the yield overlay may move a
	// swap's output
	MaxYieldAdjustmentBps uint64 `json:"maxYieldAdjustmentBps" mapstructure:"max_yield_adjustment_bps"`
	// VolatilityAlphaBps is the EWMA weight of the newest price impact in a
	// pool's volatility index
	VolatilityAlphaBps uint64 `json:"volatilityAlphaBps" mapstructure:"volatility_alpha_bps"`

	// ModeThresholdBps is the band around the expected APY inside which a
	// market is BALANCED
	ModeThresholdBps uint64 `json:"modeThresholdBps" mapstructure:"mode_threshold_bps"`
	// HistoryWindow is the trailing window of the historical implied APY
	HistoryWindow time.Duration `json:"historyWindow" mapstructure:"history_window"`

	// MarketCacheSize bounds the token -> market cache
	MarketCacheSize int `json:"marketCacheSize" mapstructure:"market_cache_size"`
}

// DefaultConfig returns the default configuration for the yield VM.
func DefaultConfig() Config {
	return Config{
		DefaultSwapFeeBps: 30, // 0.3%
		MinLiquidity:      1000,

		MaxYieldAdjustmentBps: 500,   // 5%
		VolatilityAlphaBps:    2_000, // 20%

		ModeThresholdBps: 100, // 1%
		HistoryWindow:    24 * time.Hour,

		MarketCacheSize: 1024,
	}
}

// Parse applies the JSON in b on top of the defaults.
func Parse(b []byte) (Config, error) {
	c := DefaultConfig()
	if len(b) > 0 {
		if err := json.Unmarshal(b, &c); err != nil {
			return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}
	return c, c.Verify()
}

// Verify reports the first invalid parameter.
func (c Config) Verify() error {
	switch {
	case c.DefaultSwapFeeBps >= units.BasisPoints:
		return fmt.Errorf("%w: %d", ErrInvalidFee, c.DefaultSwapFeeBps)
	case c.MaxYieldAdjustmentBps >= units.BasisPoints:
		return fmt.Errorf("%w: %d", ErrInvalidAdjustment, c.MaxYieldAdjustmentBps)
	case c.VolatilityAlphaBps == 0 || c.VolatilityAlphaBps > units.BasisPoints:
		return fmt.Errorf("%w: %d", ErrInvalidAlpha, c.VolatilityAlphaBps)
	case c.HistoryWindow <= 0:
		return ErrInvalidWindow
	case c.MinLiquidity == 0:
		return ErrInvalidLiquidity
	default:
		return nil
	}
}
