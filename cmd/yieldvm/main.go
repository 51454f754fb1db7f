// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/luxfi/yieldvm"
	"github.com/luxfi/yieldvm/cmd/yieldvm/bootstrap"
	"github.com/luxfi/yieldvm/cmd/yieldvm/run"
)

func main() {
	cmd := &cobra.Command{
		Use:          "yieldvm",
		Short:        "Yield tokenization VM",
		Version:      yieldvm.Version,
		SilenceUsage: true,
	}
	cmd.AddCommand(
		run.Command(),
		bootstrap.Command(),
	)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "command failed %v\n", err)
		os.Exit(1)
	}
}
