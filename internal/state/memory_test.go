package state

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStoreSemantics(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	if _, err := s.Get(ctx, "a"); !errors.Is(err, ErrKeyAbsent) {
		t.Fatalf("expected ErrKeyAbsent, got %v", err)
	}
	if err := s.Replace(ctx, "a", []byte("x")); !errors.Is(err, ErrKeyAbsent) {
		t.Fatalf("expected ErrKeyAbsent for replace, got %v", err)
	}
	if err := s.Remove(ctx, "a"); !errors.Is(err, ErrKeyAbsent) {
		t.Fatalf("expected ErrKeyAbsent for remove, got %v", err)
	}

	if err := s.Insert(ctx, "a", []byte("x")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.Insert(ctx, "a", []byte("y")); !errors.Is(err, ErrKeyExists) {
		t.Fatalf("expected ErrKeyExists, got %v", err)
	}

	if err := s.Replace(ctx, "a", []byte("y")); err != nil {
		t.Fatalf("replace: %v", err)
	}
	value, err := s.Get(ctx, "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(value) != "y" {
		t.Fatalf("expected y, got %q", value)
	}

	if err := s.Remove(ctx, "a"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := s.Get(ctx, "a"); !errors.Is(err, ErrKeyAbsent) {
		t.Fatalf("expected ErrKeyAbsent after remove, got %v", err)
	}
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	value := []byte("original")
	if err := s.Insert(ctx, "a", value); err != nil {
		t.Fatalf("insert: %v", err)
	}
	value[0] = 'X'

	stored, err := s.Get(ctx, "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(stored) != "original" {
		t.Fatalf("stored value aliased caller buffer: %q", stored)
	}
}
