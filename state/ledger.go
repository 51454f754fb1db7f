// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"errors"
	"fmt"
	"math"

	"github.com/luxfi/database"
	"github.com/luxfi/ids"

	safemath "github.com/luxfi/yieldvm/utils/math"
)

var (
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
)

// Unlimited is an allowance that is never consumed.
const Unlimited = math.MaxUint64

// Ledger holds fungible balances for every asset.
type Ledger interface {
	BalanceOf(account ids.ShortID, asset ids.ID) (uint64, error)
	TotalSupply(asset ids.ID) (uint64, error)
	Allowance(owner, spender ids.ShortID, asset ids.ID) (uint64, error)

	Mint(asset ids.ID, to ids.ShortID, amount uint64) error
	Burn(asset ids.ID, from ids.ShortID, amount uint64) error
	Transfer(asset ids.ID, from, to ids.ShortID, amount uint64) error
	Approve(owner, spender ids.ShortID, asset ids.ID, amount uint64) error
	// TransferFrom moves amount of asset from -> to on behalf of spender,
	// consuming allowance.
	TransferFrom(spender ids.ShortID, asset ids.ID, from, to ids.ShortID, amount uint64) error
}

func (d *Diff) BalanceOf(account ids.ShortID, asset ids.ID) (uint64, error) {
	return getUint(d.balances, pairKey(account[:], asset[:]))
}

func (d *Diff) TotalSupply(asset ids.ID) (uint64, error) {
	return getUint(d.supplies, asset[:])
}

func (d *Diff) Allowance(owner, spender ids.ShortID, asset ids.ID) (uint64, error) {
	return getUint(d.allowances, pairKey(owner[:], spender[:], asset[:]))
}

func (d *Diff) Mint(asset ids.ID, to ids.ShortID, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	supply, err := d.TotalSupply(asset)
	if err != nil {
		return err
	}
	newSupply, err := safemath.Add(supply, amount)
	if err != nil {
		return fmt.Errorf("minting %d of %s: %w", amount, asset, err)
	}
	if err := putUint(d.supplies, asset[:], newSupply); err != nil {
		return err
	}
	return d.credit(to, asset, amount)
}

func (d *Diff) Burn(asset ids.ID, from ids.ShortID, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	if err := d.debit(from, asset, amount); err != nil {
		return err
	}
	supply, err := d.TotalSupply(asset)
	if err != nil {
		return err
	}
	newSupply, err := safemath.Sub(supply, amount)
	if err != nil {
		return fmt.Errorf("burning %d of %s: %w", amount, asset, err)
	}
	return putUint(d.supplies, asset[:], newSupply)
}

func (d *Diff) Transfer(asset ids.ID, from, to ids.ShortID, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	if err := d.debit(from, asset, amount); err != nil {
		return err
	}
	return d.credit(to, asset, amount)
}

func (d *Diff) Approve(owner, spender ids.ShortID, asset ids.ID, amount uint64) error {
	return putUint(d.allowances, pairKey(owner[:], spender[:], asset[:]), amount)
}

func (d *Diff) TransferFrom(spender ids.ShortID, asset ids.ID, from, to ids.ShortID, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	allowance, err := d.Allowance(from, spender, asset)
	if err != nil {
		return err
	}
	if allowance < amount {
		return fmt.Errorf("%w: %s approved %d of %s, need %d",
			ErrInsufficientAllowance, from, allowance, asset, amount)
	}
	if allowance != Unlimited {
		err := putUint(d.allowances, pairKey(from[:], spender[:], asset[:]), allowance-amount)
		if err != nil {
			return err
		}
	}
	return d.Transfer(asset, from, to, amount)
}

func (d *Diff) credit(account ids.ShortID, asset ids.ID, amount uint64) error {
	key := pairKey(account[:], asset[:])
	bal, err := getUint(d.balances, key)
	if err != nil {
		return err
	}
	newBal, err := safemath.Add(bal, amount)
	if err != nil {
		return fmt.Errorf("crediting %s: %w", account, err)
	}
	return putUint(d.balances, key, newBal)
}

func (d *Diff) debit(account ids.ShortID, asset ids.ID, amount uint64) error {
	key := pairKey(account[:], asset[:])
	bal, err := getUint(d.balances, key)
	if err != nil {
		return err
	}
	if bal < amount {
		return fmt.Errorf("%w: %s holds %d of %s, need %d",
			ErrInsufficientBalance, account, bal, asset, amount)
	}
	return putUint(d.balances, key, bal-amount)
}

func getUint(db database.Database, key []byte) (uint64, error) {
	v, err := database.GetUInt64(db, key)
	if errors.Is(err, database.ErrNotFound) {
		return 0, nil
	}
	return v, err
}

func putUint(db database.Database, key []byte, v uint64) error {
	if v == 0 {
		return db.Delete(key)
	}
	return database.PutUInt64(db, key, v)
}

func pairKey(parts ...[]byte) []byte {
	size := 0
	for _, p := range parts {
		size += len(p)
	}
	key := make([]byte, 0, size)
	for _, p := range parts {
		key = append(key, p...)
	}
	return key
}
