// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package yieldvm

// State is the lifecycle state of a VM instance.
type State uint8

const (
	// Unknown is the state before Initialize.
	Unknown State = iota

	// Bootstrapping accepts operations but the API reports not ready.
	Bootstrapping

	// NormalOp is fully serving.
	NormalOp

	// Stopped follows Shutdown. Nothing is accepted.
	Stopped
)

func (s State) String() string {
	switch s {
	case Bootstrapping:
		return "Bootstrapping"
	case NormalOp:
		return "NormalOp"
	case Stopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
