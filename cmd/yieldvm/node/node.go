// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package node opens what the yieldvm commands share: the database, the
// genesis file and a VM over both.
package node

import (
	"context"
	"fmt"
	"os"

	"github.com/luxfi/database"
	"github.com/luxfi/database/badgerdb"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/log"

	"github.com/luxfi/yieldvm"
	"github.com/luxfi/yieldvm/config"
)

// OpenDB opens the badger database in dir, or an in-memory database when
// dir is empty.
func OpenDB(logger log.Logger, dir string) (database.Database, error) {
	if dir == "" {
		logger.Warn("using an in-memory database, state is lost on exit")
		return memdb.New(), nil
	}
	db, err := badgerdb.New(
		dir,
		nil, // configBytes - use default
		"",  // namespace
		nil, // metrics
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", dir, err)
	}
	return db, nil
}

// ReadGenesis returns the contents of path, or nothing when path is empty.
func ReadGenesis(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read genesis file: %w", err)
	}
	return b, nil
}

// Start loads the VM config from configFile and initializes a VM over
// dbDir with the genesis in genesisFile.
func Start(ctx context.Context, logger log.Logger, configFile, dbDir, genesisFile string) (*yieldvm.VM, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	genesisBytes, err := ReadGenesis(genesisFile)
	if err != nil {
		return nil, err
	}
	db, err := OpenDB(logger, dbDir)
	if err != nil {
		return nil, err
	}

	factory := yieldvm.Factory{Config: cfg}
	vm, err := factory.New(logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := vm.Initialize(ctx, db, genesisBytes, nil); err != nil {
		_ = db.Close()
		return nil, err
	}
	return vm, nil
}
