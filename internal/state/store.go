// Package state is the host-backed persistent map the contract's state lives
// in. Every operation is a point lookup or point write; nothing here iterates
// the full key space, so execution cost stays bounded under metering.
package state

import (
	"context"
	"errors"
)

var (
	// ErrKeyExists occurs when Insert targets a key that is already present.
	// It is a local signal consumed by registry logic, never surfaced raw.
	ErrKeyExists = errors.New("key exists")

	// ErrKeyAbsent occurs when Replace, Remove or Get target a missing key.
	ErrKeyAbsent = errors.New("key absent")
)

// Store is the key-scoped interface all contract state goes through.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Insert(ctx context.Context, key string, value []byte) error
	Replace(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}

// WriteOp discriminates buffered mutations.
type WriteOp uint8

const (
	// OpInsert adds a key that was absent from the backing store.
	OpInsert WriteOp = iota + 1
	// OpReplace overwrites a key present in the backing store.
	OpReplace
	// OpRemove deletes a key present in the backing store.
	OpRemove
)

// Write is one mutation in an invocation's flushed write set.
type Write struct {
	Op    WriteOp
	Key   string
	Value []byte
}

// Applier is implemented by backends that can commit a whole write set in a
// single backend transaction.
type Applier interface {
	Apply(ctx context.Context, writes []Write) error
}
