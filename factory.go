// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package yieldvm

import (
	"github.com/luxfi/log"

	"github.com/luxfi/yieldvm/config"
	"github.com/luxfi/yieldvm/oracle"
)

// Factory creates VM instances sharing one configuration.
type Factory struct {
	config.Config

	// Feed overrides the operator-published reference APYs when set.
	Feed oracle.Feed
}

func (f *Factory) New(logger log.Logger) (*VM, error) {
	if err := f.Config.Verify(); err != nil {
		return nil, err
	}
	return New(f.Config, logger, f.Feed), nil
}
