// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package accrual

import (
	"github.com/luxfi/ids"

	"github.com/luxfi/yieldvm/state"
)

var _ state.Store = (*HookedStore)(nil)

// HookedStore checkpoints YT holders before their balance changes. Every
// other call passes straight through.
type HookedStore struct {
	state.Store

	ledger *Ledger
	now    uint64
}

// Hook wraps s so YT balance changes at now are accrued first.
func (l *Ledger) Hook(s state.Store, now uint64) *HookedStore {
	return &HookedStore{
		Store:  s,
		ledger: l,
		now:    now,
	}
}

func (h *HookedStore) Mint(asset ids.ID, to ids.ShortID, amount uint64) error {
	if err := h.before(asset, to); err != nil {
		return err
	}
	return h.Store.Mint(asset, to, amount)
}

func (h *HookedStore) Burn(asset ids.ID, from ids.ShortID, amount uint64) error {
	if err := h.before(asset, from); err != nil {
		return err
	}
	return h.Store.Burn(asset, from, amount)
}

func (h *HookedStore) Transfer(asset ids.ID, from, to ids.ShortID, amount uint64) error {
	if err := h.before(asset, from, to); err != nil {
		return err
	}
	return h.Store.Transfer(asset, from, to, amount)
}

func (h *HookedStore) TransferFrom(spender ids.ShortID, asset ids.ID, from, to ids.ShortID, amount uint64) error {
	if err := h.before(asset, from, to); err != nil {
		return err
	}
	return h.Store.TransferFrom(spender, asset, from, to, amount)
}

func (h *HookedStore) before(asset ids.ID, accounts ...ids.ShortID) error {
	terms, ok, err := h.ledger.resolver.TermsByYT(h.Store, asset)
	if err != nil || !ok {
		return err
	}
	for _, account := range accounts {
		if _, err := h.ledger.accrue(h.Store, terms, account, h.now); err != nil {
			return err
		}
	}
	return nil
}
