// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"errors"

	"github.com/luxfi/database"
)

// Records gives engines namespaced key/value storage inside a transition.
type Records interface {
	Namespace(prefix []byte) database.Database
}

// Store is everything an engine needs from a transition.
type Store interface {
	Ledger
	Records
}

// GetRecord decodes the record at key. A missing record returns
// database.ErrNotFound.
func GetRecord[T any](r Records, prefix, key []byte) (*T, error) {
	b, err := r.Namespace(prefix).Get(key)
	if err != nil {
		return nil, err
	}
	v := new(T)
	if _, err := Codec.Unmarshal(b, v); err != nil {
		return nil, err
	}
	return v, nil
}

// HasRecord reports whether key exists.
func HasRecord(r Records, prefix, key []byte) (bool, error) {
	return r.Namespace(prefix).Has(key)
}

// PutRecord encodes and stores v at key.
func PutRecord[T any](r Records, prefix, key []byte, v *T) error {
	b, err := Codec.Marshal(CodecVersion, v)
	if err != nil {
		return err
	}
	return r.Namespace(prefix).Put(key, b)
}

// ListRecords decodes every record under prefix in key order.
func ListRecords[T any](r Records, prefix []byte) ([]*T, error) {
	it := r.Namespace(prefix).NewIterator()
	defer it.Release()

	var out []*T
	for it.Next() {
		v := new(T)
		if _, err := Codec.Unmarshal(it.Value(), v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, it.Error()
}

// IsNotFound reports whether err is a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, database.ErrNotFound)
}
