// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package accrual tracks the yield owed to YT holders.
//
// Every (market, account) pair carries a Checkpoint. A checkpoint is
// brought forward to the current time before any YT balance change and
// before a claim, so the yield owed is always computed against the balance
// that was actually held over the elapsed interval.
package accrual

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/yieldvm/state"
	"github.com/luxfi/yieldvm/utils/units"

	safemath "github.com/luxfi/yieldvm/utils/math"
)

var (
	ErrUnknownMarket = errors.New("unknown yield market")

	prefixCheckpoint = []byte("accrual")
)

// Terms are the parts of a market the accrual ledger needs.
type Terms struct {
	Market     ids.ID
	YT         ids.ID
	Underlying ids.ID
	Maturity   uint64
	APYBps     uint64
	// Reserve holds harvested yield. Claims are paid from it.
	Reserve ids.ShortID
}

// Resolver looks up market terms.
type Resolver interface {
	// TermsByYT returns the terms of the market whose YT is asset. ok is
	// false when asset is not a YT.
	TermsByYT(r state.Records, asset ids.ID) (terms *Terms, ok bool, err error)
	Terms(r state.Records, market ids.ID) (*Terms, error)
}

// Checkpoint is the accrual record of one account in one market.
type Checkpoint struct {
	LastCheckpoint   uint64 `serialize:"true" json:"lastCheckpoint"`
	AccruedUnclaimed uint64 `serialize:"true" json:"accruedUnclaimed"`
}

// Yield returns floor(balance * apyBps * elapsed / (10000 * year)).
func Yield(balance, apyBps, elapsed uint64) (uint64, error) {
	num := new(uint256.Int).Mul(safemath.U256(balance), safemath.U256(apyBps))
	num.Mul(num, safemath.U256(elapsed))
	den := new(uint256.Int).Mul(safemath.U256(units.BasisPoints), safemath.U256(units.SecondsPerYear))
	return safemath.Uint64(num.Div(num, den))
}

// Advance brings cp forward to now for an account that held balance since
// cp.LastCheckpoint. Accrual stops at maturity.
func Advance(cp Checkpoint, balance, apyBps, maturity, now uint64) (Checkpoint, error) {
	end := min(now, maturity)
	if cp.LastCheckpoint >= end {
		return cp, nil
	}
	delta, err := Yield(balance, apyBps, end-cp.LastCheckpoint)
	if err != nil {
		return cp, err
	}
	accrued, err := safemath.Add(cp.AccruedUnclaimed, delta)
	if err != nil {
		return cp, err
	}
	return Checkpoint{
		LastCheckpoint:   end,
		AccruedUnclaimed: accrued,
	}, nil
}

// Ledger owns the accrual records.
type Ledger struct {
	log      log.Logger
	resolver Resolver
}

func New(log log.Logger, resolver Resolver) *Ledger {
	return &Ledger{
		log:      log,
		resolver: resolver,
	}
}

// Checkpoint returns the stored record. A missing record is reported as
// ok == false.
func (l *Ledger) Checkpoint(r state.Records, market ids.ID, account ids.ShortID) (*Checkpoint, bool, error) {
	cp, err := state.GetRecord[Checkpoint](r, prefixCheckpoint, checkpointKey(market, account))
	if state.IsNotFound(err) {
		return &Checkpoint{}, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return cp, true, nil
}

// Accrue brings the account's checkpoint in market forward to now and
// persists it.
func (l *Ledger) Accrue(s state.Store, market ids.ID, account ids.ShortID, now uint64) (*Checkpoint, error) {
	terms, err := l.resolver.Terms(s, market)
	if err != nil {
		return nil, err
	}
	return l.accrue(s, terms, account, now)
}

// Claim accrues and then pays the account what the yield reserve can cover.
// Whatever the reserve cannot cover stays owed.
func (l *Ledger) Claim(s state.Store, market ids.ID, account ids.ShortID, now uint64) (uint64, error) {
	terms, err := l.resolver.Terms(s, market)
	if err != nil {
		return 0, err
	}
	cp, err := l.accrue(s, terms, account, now)
	if err != nil {
		return 0, err
	}
	if cp.AccruedUnclaimed == 0 {
		return 0, nil
	}

	reserve, err := s.BalanceOf(terms.Reserve, terms.Underlying)
	if err != nil {
		return 0, err
	}
	paid := min(cp.AccruedUnclaimed, reserve)
	if paid == 0 {
		l.log.Debug("yield reserve empty",
			log.Stringer("market", market),
			log.Uint64("owed", cp.AccruedUnclaimed),
		)
		return 0, nil
	}
	if err := s.Transfer(terms.Underlying, terms.Reserve, account, paid); err != nil {
		return 0, fmt.Errorf("paying yield: %w", err)
	}
	cp.AccruedUnclaimed -= paid
	if err := l.put(s, market, account, cp); err != nil {
		return 0, err
	}
	return paid, nil
}

// Claimable projects the yield owed at now without writing anything.
func (l *Ledger) Claimable(s state.Store, market ids.ID, account ids.ShortID, now uint64) (uint64, error) {
	terms, err := l.resolver.Terms(s, market)
	if err != nil {
		return 0, err
	}
	cp, err := l.project(s, terms, account, now)
	if err != nil {
		return 0, err
	}
	return cp.AccruedUnclaimed, nil
}

func (l *Ledger) accrue(s state.Store, terms *Terms, account ids.ShortID, now uint64) (*Checkpoint, error) {
	cp, err := l.project(s, terms, account, now)
	if err != nil {
		return nil, err
	}
	if err := l.put(s, terms.Market, account, cp); err != nil {
		return nil, err
	}
	return cp, nil
}

func (l *Ledger) project(s state.Store, terms *Terms, account ids.ShortID, now uint64) (*Checkpoint, error) {
	cp, ok, err := l.Checkpoint(s, terms.Market, account)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Nothing was held before the first balance change.
		cp.LastCheckpoint = min(now, terms.Maturity)
		return cp, nil
	}
	balance, err := s.BalanceOf(account, terms.YT)
	if err != nil {
		return nil, err
	}
	next, err := Advance(*cp, balance, terms.APYBps, terms.Maturity, now)
	if err != nil {
		return nil, err
	}
	return &next, nil
}

func (l *Ledger) put(r state.Records, market ids.ID, account ids.ShortID, cp *Checkpoint) error {
	return state.PutRecord(r, prefixCheckpoint, checkpointKey(market, account), cp)
}

func checkpointKey(market ids.ID, account ids.ShortID) []byte {
	key := make([]byte, 0, len(market)+len(account))
	key = append(key, market[:]...)
	return append(key, account[:]...)
}
