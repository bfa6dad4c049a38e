package state

import (
	"context"

	"github.com/overlaydao/overlay-users/internal/contract"
)

// Per-operation energy costs. Writes also pay per value byte so oversized
// payloads cannot hide inside a flat fee.
const (
	costGet    = 10
	costWrite  = 50
	costRemove = 20
)

// Meter charges every store operation against a fixed invocation budget and
// aborts the invocation with ResourceExhausted once the budget runs out,
// mirroring the host runtime's execution metering.
type Meter struct {
	inner     Store
	remaining uint64
}

// NewMeter wraps a store with an energy budget for one invocation.
func NewMeter(inner Store, budget uint64) *Meter {
	return &Meter{inner: inner, remaining: budget}
}

// Remaining reports the unused budget.
func (m *Meter) Remaining() uint64 {
	return m.remaining
}

func (m *Meter) charge(cost uint64) error {
	if cost > m.remaining {
		m.remaining = 0
		return contract.ErrEnergyExhausted
	}
	m.remaining -= cost
	return nil
}

func (m *Meter) Get(ctx context.Context, key string) ([]byte, error) {
	if err := m.charge(costGet); err != nil {
		return nil, err
	}
	return m.inner.Get(ctx, key)
}

func (m *Meter) Insert(ctx context.Context, key string, value []byte) error {
	if err := m.charge(costWrite + uint64(len(value))); err != nil {
		return err
	}
	return m.inner.Insert(ctx, key, value)
}

func (m *Meter) Replace(ctx context.Context, key string, value []byte) error {
	if err := m.charge(costWrite + uint64(len(value))); err != nil {
		return err
	}
	return m.inner.Replace(ctx, key, value)
}

func (m *Meter) Remove(ctx context.Context, key string) error {
	if err := m.charge(costRemove); err != nil {
		return err
	}
	return m.inner.Remove(ctx, key)
}
