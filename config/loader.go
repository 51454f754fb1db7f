// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g.
// YIELDVM_DEFAULT_SWAP_FEE_BPS.
const EnvPrefix = "YIELDVM"

// Load reads configuration in priority order:
// 1. Default values
// 2. Configuration file, if path is set
// 3. Environment variables (YIELDVM_ prefix)
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return Config{}, fmt.Errorf("config file %s: %w", path, err)
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return c, c.Verify()
}

// setDefaults registers every key so environment overrides are seen by
// Unmarshal.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("default_swap_fee_bps", d.DefaultSwapFeeBps)
	v.SetDefault("min_liquidity", d.MinLiquidity)
	v.SetDefault("max_yield_adjustment_bps", d.MaxYieldAdjustmentBps)
	v.SetDefault("volatility_alpha_bps", d.VolatilityAlphaBps)
	v.SetDefault("mode_threshold_bps", d.ModeThresholdBps)
	v.SetDefault("history_window", d.HistoryWindow)
	v.SetDefault("market_cache_size", d.MarketCacheSize)
}
