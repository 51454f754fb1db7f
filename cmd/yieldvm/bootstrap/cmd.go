// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/luxfi/log"
	"github.com/spf13/cobra"

	"github.com/luxfi/yieldvm/cmd/yieldvm/node"
)

const (
	ConfigFileKey  = "config-file"
	DBDirKey       = "db-dir"
	GenesisFileKey = "genesis-file"
)

var errMissingFlag = errors.New("missing required flag")

func Command() *cobra.Command {
	c := &cobra.Command{
		Use:   "bootstrap",
		Short: "Applies a genesis file to a database and lists the resulting markets and pools",
		RunE:  bootstrapFunc,
	}
	flags := c.Flags()
	flags.String(ConfigFileKey, "", "VM config file (json, yaml or toml)")
	flags.String(DBDirKey, "", "Database directory (required)")
	flags.String(GenesisFileKey, "", "Genesis file (required)")
	return c
}

func bootstrapFunc(c *cobra.Command, args []string) error {
	flags := c.Flags()
	if err := flags.Parse(args); err != nil {
		return err
	}
	configFile, err := flags.GetString(ConfigFileKey)
	if err != nil {
		return err
	}
	dbDir, err := flags.GetString(DBDirKey)
	if err != nil {
		return err
	}
	genesisFile, err := flags.GetString(GenesisFileKey)
	if err != nil {
		return err
	}
	if dbDir == "" {
		return fmt.Errorf("%w: --%s", errMissingFlag, DBDirKey)
	}
	if genesisFile == "" {
		return fmt.Errorf("%w: --%s", errMissingFlag, GenesisFileKey)
	}

	logger := log.NewLogger("yieldvm")
	ctx := c.Context()
	vm, err := node.Start(ctx, logger, configFile, dbDir, genesisFile)
	if err != nil {
		return err
	}
	defer func() {
		if err := vm.Shutdown(context.Background()); err != nil {
			logger.Error("failed to shut down VM", log.Err(err))
		}
	}()

	markets, err := vm.ListMarkets(ctx)
	if err != nil {
		return err
	}
	pools, err := vm.ListPools(ctx)
	if err != nil {
		return err
	}

	out := c.OutOrStdout()
	for _, m := range markets {
		fmt.Fprintf(out, "market %s underlying=%s maturity=%d sy=%s pt=%s yt=%s\n",
			m.ID, m.Underlying, m.Maturity, m.SY, m.PT, m.YT)
	}
	for _, p := range pools {
		fmt.Fprintf(out, "pool %s %s/%s fee=%dbps yield=%t\n",
			p.Key, p.Token0, p.Token1, p.FeeBps, p.IsYieldPool)
	}
	return nil
}
