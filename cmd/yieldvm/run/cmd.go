// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package run

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/luxfi/log"
	"github.com/luxfi/metric"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/luxfi/yieldvm"
	"github.com/luxfi/yieldvm/api/server"
	"github.com/luxfi/yieldvm/cmd/yieldvm/node"

	utilmetric "github.com/luxfi/yieldvm/utils/metric"
)

// serverMetricsEndpoint serves the HTTP server's own request metrics next
// to the VM's.
const serverMetricsEndpoint = "/server/metrics"

func Command() *cobra.Command {
	c := &cobra.Command{
		Use:   "run",
		Short: "Runs the yield VM and serves its API",
		RunE:  runFunc,
	}
	AddFlags(c.Flags())
	return c
}

func runFunc(c *cobra.Command, args []string) error {
	config, err := ParseFlags(c.Flags(), args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := log.NewLogger("yieldvm")
	vm, err := node.Start(ctx, logger, config.ConfigFile, config.DBDir, config.GenesisFile)
	if err != nil {
		return err
	}
	defer func() {
		if err := vm.Shutdown(context.Background()); err != nil {
			logger.Error("failed to shut down VM", log.Err(err))
		}
	}()
	if err := vm.SetState(ctx, yieldvm.NormalOp); err != nil {
		return err
	}

	handlers, err := vm.CreateHandlers(ctx)
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(config.HTTPHost, fmt.Sprint(config.HTTPPort))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	registry := metric.NewRegistry()
	srv, err := server.New(
		logger,
		listener,
		config.AllowedOrigins,
		config.ShutdownTimeout,
		registry,
		server.DefaultHTTPConfig(),
	)
	if err != nil {
		_ = listener.Close()
		return err
	}
	handlers[serverMetricsEndpoint] = utilmetric.Handler(registry)
	for endpoint, handler := range handlers {
		if err := srv.AddRoute(handler, yieldvm.ServiceName, endpoint); err != nil {
			_ = listener.Close()
			return err
		}
	}

	logger.Info("serving yield VM API",
		log.String("address", listener.Addr().String()),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(srv.Dispatch)
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down API server")
		return srv.Shutdown()
	})
	return g.Wait()
}
