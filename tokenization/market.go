// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package tokenization

import (
	"github.com/luxfi/database"
	"github.com/luxfi/ids"

	"github.com/luxfi/yieldvm/accrual"
	"github.com/luxfi/yieldvm/state"
)

// Market splits one underlying asset at one maturity into SY, PT and YT.
// Only IsActive changes after creation.
type Market struct {
	ID          ids.ID `serialize:"true" json:"id"`
	Underlying  ids.ID `serialize:"true" json:"underlying"`
	SY          ids.ID `serialize:"true" json:"sy"`
	PT          ids.ID `serialize:"true" json:"pt"`
	YT          ids.ID `serialize:"true" json:"yt"`
	Maturity    uint64 `serialize:"true" json:"maturity"`
	FixedAPYBps uint64 `serialize:"true" json:"fixedApyBps"`
	IsActive    bool   `serialize:"true" json:"isActive"`
	CreatedAt   uint64 `serialize:"true" json:"createdAt"`
}

// MarketID is the identity of the market for underlying at maturity.
func MarketID(underlying ids.ID, maturity uint64) ids.ID {
	return state.DeriveID("market", underlying[:], database.PackUInt64(maturity))
}

func newMarket(underlying ids.ID, maturity, fixedAPYBps, now uint64) *Market {
	id := MarketID(underlying, maturity)
	return &Market{
		ID:          id,
		Underlying:  underlying,
		SY:          state.DeriveID("sy", id[:]),
		PT:          state.DeriveID("pt", id[:]),
		YT:          state.DeriveID("yt", id[:]),
		Maturity:    maturity,
		FixedAPYBps: fixedAPYBps,
		IsActive:    true,
		CreatedAt:   now,
	}
}

// Token returns the market's token of kind k.
func (m *Market) Token(k Kind) ids.ID {
	switch k {
	case KindSY:
		return m.SY
	case KindPT:
		return m.PT
	case KindYT:
		return m.YT
	default:
		return ids.Empty
	}
}

// Custody holds the underlying backing SY and PT.
func (m *Market) Custody() ids.ShortID {
	return state.DeriveAccount("custody", m.ID[:])
}

// YieldReserve holds harvested yield owed to YT holders.
func (m *Market) YieldReserve() ids.ShortID {
	return state.DeriveAccount("reserve", m.ID[:])
}

// Matured reports whether now is at or after maturity.
func (m *Market) Matured(now uint64) bool {
	return now >= m.Maturity
}

// TimeToMaturity returns the seconds left before maturity.
func (m *Market) TimeToMaturity(now uint64) uint64 {
	if m.Matured(now) {
		return 0
	}
	return m.Maturity - now
}

// Terms returns the accrual view of the market.
func (m *Market) Terms() *accrual.Terms {
	return &accrual.Terms{
		Market:     m.ID,
		YT:         m.YT,
		Underlying: m.Underlying,
		Maturity:   m.Maturity,
		APYBps:     m.FixedAPYBps,
		Reserve:    m.YieldReserve(),
	}
}
