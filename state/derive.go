// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"github.com/luxfi/ids"
	"github.com/zeebo/blake3"
)

// Router is the spender the protocol uses to pull approved funds into
// custody.
var Router = DeriveAccount("router")

// DeriveID returns a deterministic identifier for tag and parts.
func DeriveID(tag string, parts ...[]byte) ids.ID {
	var id ids.ID
	digest(tag, parts).Read(id[:])
	return id
}

// DeriveAccount returns a deterministic protocol-owned account for tag and
// parts. Nobody holds a key for it.
func DeriveAccount(tag string, parts ...[]byte) ids.ShortID {
	var addr ids.ShortID
	digest(tag, parts).Read(addr[:])
	return addr
}

// AccountLock maps an account onto the lock key space.
func AccountLock(account ids.ShortID) ids.ID {
	return DeriveID("lock/account", account[:])
}

func digest(tag string, parts [][]byte) *blake3.Digest {
	h := blake3.New()
	_, _ = h.Write([]byte(tag))
	_, _ = h.Write([]byte{0})
	for _, p := range parts {
		_, _ = h.Write(p)
	}
	return h.Digest()
}
