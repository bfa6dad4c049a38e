package state

import (
	"context"
	"encoding/binary"
	"errors"
	"sort"

	"golang.org/x/crypto/blake2b"
)

type bufferEntry struct {
	value       []byte
	deleted     bool
	baseExisted bool
	mutated     bool
}

// Buffer overlays an invocation's writes on top of a backing store. Reads see
// the overlay first; nothing reaches the backing store until Commit. Dropping
// the buffer discards every write, which is how an aborted invocation leaves
// persisted state untouched.
type Buffer struct {
	base    Store
	overlay map[string]*bufferEntry
}

// NewBuffer wraps a backing store for one invocation.
func NewBuffer(base Store) *Buffer {
	return &Buffer{base: base, overlay: make(map[string]*bufferEntry)}
}

// entry loads the overlay entry for key, consulting the backing store once to
// learn whether the key existed before this invocation.
func (b *Buffer) entry(ctx context.Context, key string) (*bufferEntry, error) {
	if e, ok := b.overlay[key]; ok {
		return e, nil
	}
	value, err := b.base.Get(ctx, key)
	if err != nil && !errors.Is(err, ErrKeyAbsent) {
		return nil, err
	}
	e := &bufferEntry{baseExisted: err == nil, value: value, deleted: err != nil}
	b.overlay[key] = e
	return e, nil
}

func (b *Buffer) Get(ctx context.Context, key string) ([]byte, error) {
	e, err := b.entry(ctx, key)
	if err != nil {
		return nil, err
	}
	if e.deleted {
		return nil, ErrKeyAbsent
	}
	return append([]byte(nil), e.value...), nil
}

func (b *Buffer) Insert(ctx context.Context, key string, value []byte) error {
	e, err := b.entry(ctx, key)
	if err != nil {
		return err
	}
	if !e.deleted {
		return ErrKeyExists
	}
	e.value = append([]byte(nil), value...)
	e.deleted = false
	e.mutated = true
	return nil
}

func (b *Buffer) Replace(ctx context.Context, key string, value []byte) error {
	e, err := b.entry(ctx, key)
	if err != nil {
		return err
	}
	if e.deleted {
		return ErrKeyAbsent
	}
	e.value = append([]byte(nil), value...)
	e.mutated = true
	return nil
}

func (b *Buffer) Remove(ctx context.Context, key string) error {
	e, err := b.entry(ctx, key)
	if err != nil {
		return err
	}
	if e.deleted {
		return ErrKeyAbsent
	}
	e.value = nil
	e.deleted = true
	e.mutated = true
	return nil
}

// Writes returns the net effect of the invocation as an ordered write set.
// Keys are sorted so the flush order, and therefore the commit digest, is
// deterministic.
func (b *Buffer) Writes() []Write {
	keys := make([]string, 0, len(b.overlay))
	for key := range b.overlay {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	writes := make([]Write, 0, len(keys))
	for _, key := range keys {
		e := b.overlay[key]
		if !e.mutated {
			continue
		}
		switch {
		case e.deleted && e.baseExisted:
			writes = append(writes, Write{Op: OpRemove, Key: key})
		case e.deleted:
			// Never existed, nothing to flush.
		case e.baseExisted:
			writes = append(writes, Write{Op: OpReplace, Key: key, Value: e.value})
		default:
			writes = append(writes, Write{Op: OpInsert, Key: key, Value: e.value})
		}
	}
	return writes
}

// Commit flushes the write set to the backing store. Backends that implement
// Applier get the whole set in one backend transaction.
func (b *Buffer) Commit(ctx context.Context) error {
	writes := b.Writes()
	if len(writes) == 0 {
		return nil
	}
	if applier, ok := b.base.(Applier); ok {
		return applier.Apply(ctx, writes)
	}
	for _, w := range writes {
		var err error
		switch w.Op {
		case OpInsert:
			err = b.base.Insert(ctx, w.Key, w.Value)
		case OpReplace:
			err = b.base.Replace(ctx, w.Key, w.Value)
		case OpRemove:
			err = b.base.Remove(ctx, w.Key)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Dirty reports whether the invocation produced any net writes. Read-only
// entry points leave the buffer clean and skip the commit entirely.
func (b *Buffer) Dirty() bool {
	return len(b.Writes()) > 0
}

// Digest hashes the ordered write set with BLAKE2b-256. Two invocations with
// the same net effect produce the same digest regardless of backend.
func (b *Buffer) Digest() [blake2b.Size256]byte {
	h, _ := blake2b.New256(nil)
	var scratch [4]byte
	for _, w := range b.Writes() {
		h.Write([]byte{byte(w.Op)})
		binary.LittleEndian.PutUint32(scratch[:], uint32(len(w.Key)))
		h.Write(scratch[:])
		h.Write([]byte(w.Key))
		binary.LittleEndian.PutUint32(scratch[:], uint32(len(w.Value)))
		h.Write(scratch[:])
		h.Write(w.Value)
	}
	var digest [blake2b.Size256]byte
	h.Sum(digest[:0])
	return digest
}
