// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package state persists balances and engine records and runs every
// mutation as an all-or-nothing transition.
package state

import (
	"sync"

	"github.com/luxfi/database"
	"github.com/luxfi/database/prefixdb"
	"github.com/luxfi/database/versiondb"
	"github.com/luxfi/ids"
)

var (
	prefixBalance   = []byte("balance")
	prefixSupply    = []byte("supply")
	prefixAllowance = []byte("allowance")
	prefixRecord    = []byte("record")
)

var _ Store = (*Diff)(nil)

// Diff is the writable view of a single transition. It is discarded unless
// the transition succeeds.
type Diff struct {
	db *versiondb.Database

	balances   database.Database
	supplies   database.Database
	allowances database.Database
	records    database.Database

	namespaces map[string]database.Database
}

func newDiff(base database.Database) *Diff {
	vdb := versiondb.New(base)
	return &Diff{
		db:         vdb,
		balances:   prefixdb.New(prefixBalance, vdb),
		supplies:   prefixdb.New(prefixSupply, vdb),
		allowances: prefixdb.New(prefixAllowance, vdb),
		records:    prefixdb.New(prefixRecord, vdb),
		namespaces: make(map[string]database.Database),
	}
}

func (d *Diff) Namespace(prefix []byte) database.Database {
	db, ok := d.namespaces[string(prefix)]
	if !ok {
		db = prefixdb.New(prefix, d.records)
		d.namespaces[string(prefix)] = db
	}
	return db
}

// State owns the base database and the lock table that serializes
// conflicting transitions.
type State struct {
	db    database.Database
	locks *lockTable
}

// New returns a State over db.
func New(db database.Database) *State {
	return &State{
		db:    db,
		locks: newLockTable(),
	}
}

// Apply runs fn as one transition while holding the given keys. If fn
// returns an error nothing it wrote is kept.
func (s *State) Apply(keys []ids.ID, fn func(*Diff) error) error {
	unlock := s.locks.lock(keys)
	defer unlock()

	d := newDiff(s.db)
	if err := fn(d); err != nil {
		d.db.Abort()
		return err
	}
	return d.db.Commit()
}

// View runs fn against a throwaway diff. Writes made by fn are dropped.
func (s *State) View(fn func(*Diff) error) error {
	d := newDiff(s.db)
	defer d.db.Abort()
	return fn(d)
}

// Close closes the base database.
func (s *State) Close() error {
	return s.db.Close()
}

type lockTable struct {
	mu    sync.Mutex
	locks map[ids.ID]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[ids.ID]*keyLock)}
}
