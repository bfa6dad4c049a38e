// Package registry is the CRUD state machine over user records. Every
// operation reads the state it needs, validates against the access policy and
// the record lifecycle, and only then issues the minimal set of store writes,
// so an abort at any point leaves all invariants intact.
package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/overlaydao/overlay-users/internal/access"
	"github.com/overlaydao/overlay-users/internal/codec"
	"github.com/overlaydao/overlay-users/internal/contract"
	"github.com/overlaydao/overlay-users/internal/state"
)

const (
	recordKeyPrefix = "user:"
	recordCountKey  = "sys:records"
)

func recordKey(addr contract.AccountAddress) string {
	return recordKeyPrefix + addr.String()
}

// Registry executes entry-point semantics against one invocation's store
// view. Construct a fresh one per invocation.
type Registry struct {
	store state.Store
}

// New builds a registry over the given store view.
func New(store state.Store) *Registry {
	return &Registry{store: store}
}

// Init seeds contract state: the admin allow-list and the record counter.
// Fails with EmptyAdminSet when no admin is supplied.
func Init(ctx context.Context, store state.Store, admins []contract.AccountAddress) error {
	if len(admins) == 0 {
		return contract.ErrEmptyAdminSet
	}
	set := access.NewAdminSet(admins)
	if err := set.Seed(ctx, store); err != nil {
		if errors.Is(err, state.ErrKeyExists) {
			return contract.ErrAlreadyInitialized
		}
		return err
	}
	return store.Insert(ctx, recordCountKey, codec.EncodeUint64(0))
}

// fetch loads and decodes the record stored for addr. A decode failure or an
// owner/key mismatch is corrupted contract state and aborts the invocation.
func (r *Registry) fetch(ctx context.Context, addr contract.AccountAddress) (contract.UserRecord, error) {
	raw, err := r.store.Get(ctx, recordKey(addr))
	if err != nil {
		if errors.Is(err, state.ErrKeyAbsent) {
			return contract.UserRecord{}, contract.ErrNotFound
		}
		return contract.UserRecord{}, err
	}
	rec, err := codec.DecodeRecord(raw)
	if err != nil {
		panic(fmt.Sprintf("corrupted record for %s: %v", addr, err))
	}
	if rec.Owner != addr {
		panic(fmt.Sprintf("record key %s does not match owner %s", addr, rec.Owner))
	}
	return rec, nil
}

func (r *Registry) admins(ctx context.Context) (*access.AdminSet, error) {
	set, err := access.LoadAdminSet(ctx, r.store)
	if err != nil {
		if errors.Is(err, contract.ErrEnergyExhausted) {
			return nil, err
		}
		panic(err.Error())
	}
	return set, nil
}

func (r *Registry) bumpCount(ctx context.Context, delta int64) error {
	raw, err := r.store.Get(ctx, recordCountKey)
	if err != nil {
		if errors.Is(err, state.ErrKeyAbsent) {
			panic("record counter missing from state")
		}
		return err
	}
	count, err := codec.DecodeUint64(raw)
	if err != nil {
		panic(fmt.Sprintf("corrupted record counter: %v", err))
	}
	if delta < 0 && count == 0 {
		panic("record counter underflow")
	}
	count = uint64(int64(count) + delta)
	return r.store.Replace(ctx, recordCountKey, codec.EncodeUint64(count))
}

// Register creates the caller's record. Fails AlreadyRegistered when one
// exists, regardless of its status.
func (r *Registry) Register(ctx context.Context, inv contract.Invocation, profile []byte) (contract.UserRecord, error) {
	key := recordKey(inv.Invoker)
	if _, err := r.store.Get(ctx, key); err == nil {
		return contract.UserRecord{}, contract.ErrAlreadyRegistered
	} else if !errors.Is(err, state.ErrKeyAbsent) {
		return contract.UserRecord{}, err
	}

	rec := contract.UserRecord{
		Owner:         inv.Invoker,
		Profile:       profile,
		Status:        contract.StatusActive,
		SchemaVersion: codec.CurrentSchema,
		UpdatedAt:     inv.Sequence,
	}
	if err := r.store.Insert(ctx, key, codec.EncodeRecord(rec)); err != nil {
		return contract.UserRecord{}, err
	}
	if err := r.bumpCount(ctx, 1); err != nil {
		return contract.UserRecord{}, err
	}
	return rec, nil
}

// Update rewrites the caller's profile in the current schema. Permitted while
// deactivated; never changes owner or status.
func (r *Registry) Update(ctx context.Context, inv contract.Invocation, profile []byte) (contract.UserRecord, error) {
	rec, err := r.fetch(ctx, inv.Invoker)
	if err != nil {
		return contract.UserRecord{}, err
	}
	if err := access.Authorize(inv.Invoker, &rec, nil, access.OpUpdate); err != nil {
		return contract.UserRecord{}, err
	}

	rec.Profile = profile
	rec.SchemaVersion = codec.CurrentSchema
	rec.UpdatedAt = inv.Sequence
	if err := r.store.Replace(ctx, recordKey(rec.Owner), codec.EncodeRecord(rec)); err != nil {
		return contract.UserRecord{}, err
	}
	return rec, nil
}

// Deactivate hides the target record. Owner or admin; fails InvalidState when
// the record is already deactivated instead of silently succeeding.
func (r *Registry) Deactivate(ctx context.Context, inv contract.Invocation, target contract.AccountAddress) error {
	rec, err := r.fetch(ctx, target)
	if err != nil {
		return err
	}
	admins, err := r.admins(ctx)
	if err != nil {
		return err
	}
	if err := access.Authorize(inv.Invoker, &rec, admins, access.OpDeactivate); err != nil {
		return err
	}
	if rec.Status != contract.StatusActive {
		return contract.ErrInvalidState
	}

	rec.Status = contract.StatusDeactivated
	rec.UpdatedAt = inv.Sequence
	return r.store.Replace(ctx, recordKey(target), codec.EncodeRecord(rec))
}

// Reactivate restores the caller's deactivated record. Owner only.
func (r *Registry) Reactivate(ctx context.Context, inv contract.Invocation) error {
	rec, err := r.fetch(ctx, inv.Invoker)
	if err != nil {
		return err
	}
	if err := access.Authorize(inv.Invoker, &rec, nil, access.OpReactivate); err != nil {
		return err
	}
	if rec.Status != contract.StatusDeactivated {
		return contract.ErrInvalidState
	}

	rec.Status = contract.StatusActive
	rec.UpdatedAt = inv.Sequence
	return r.store.Replace(ctx, recordKey(inv.Invoker), codec.EncodeRecord(rec))
}

// AdminTransfer relocates the record at from to the key of to, rewriting the
// owner. The record is deleted and reinserted rather than mutated in place so
// the key always equals the owner. Fails TargetOccupied before any write when
// to already holds a record.
func (r *Registry) AdminTransfer(ctx context.Context, inv contract.Invocation, from, to contract.AccountAddress) error {
	admins, err := r.admins(ctx)
	if err != nil {
		return err
	}
	if err := access.Authorize(inv.Invoker, nil, admins, access.OpAdminTransfer); err != nil {
		return err
	}
	rec, err := r.fetch(ctx, from)
	if err != nil {
		return err
	}
	if _, err := r.store.Get(ctx, recordKey(to)); err == nil {
		return contract.ErrTargetOccupied
	} else if !errors.Is(err, state.ErrKeyAbsent) {
		return err
	}

	rec.Owner = to
	rec.UpdatedAt = inv.Sequence
	if err := r.store.Remove(ctx, recordKey(from)); err != nil {
		return err
	}
	return r.store.Insert(ctx, recordKey(to), codec.EncodeRecord(rec))
}

// Purge removes the target record regardless of status. Owner or admin.
func (r *Registry) Purge(ctx context.Context, inv contract.Invocation, target contract.AccountAddress) error {
	rec, err := r.fetch(ctx, target)
	if err != nil {
		return err
	}
	admins, err := r.admins(ctx)
	if err != nil {
		return err
	}
	if err := access.Authorize(inv.Invoker, &rec, admins, access.OpPurge); err != nil {
		return err
	}

	if err := r.store.Remove(ctx, recordKey(target)); err != nil {
		return err
	}
	return r.bumpCount(ctx, -1)
}

// View returns a snapshot of the target record. Read-only; records written
// under an older schema decode through the forward-compatible path and are
// not rewritten.
func (r *Registry) View(ctx context.Context, target contract.AccountAddress) (contract.UserRecord, error) {
	return r.fetch(ctx, target)
}

// ViewAdmin returns the privileged admin snapshot. Admin only.
func (r *Registry) ViewAdmin(ctx context.Context, inv contract.Invocation) (contract.AdminView, error) {
	admins, err := r.admins(ctx)
	if err != nil {
		return contract.AdminView{}, err
	}
	if err := access.Authorize(inv.Invoker, nil, admins, access.OpViewAdmin); err != nil {
		return contract.AdminView{}, err
	}
	raw, err := r.store.Get(ctx, recordCountKey)
	if err != nil {
		if errors.Is(err, state.ErrKeyAbsent) {
			panic("record counter missing from state")
		}
		return contract.AdminView{}, err
	}
	count, err := codec.DecodeUint64(raw)
	if err != nil {
		panic(fmt.Sprintf("corrupted record counter: %v", err))
	}
	return contract.AdminView{
		Admins:        admins.Addrs(),
		SchemaVersion: codec.CurrentSchema,
		Records:       count,
	}, nil
}

// AdminAdd appends an admin to the allow-list. Admin only; idempotent for
// existing members. A set at its encoding bound fails AdminSetFull before
// anything is persisted.
func (r *Registry) AdminAdd(ctx context.Context, inv contract.Invocation, addr contract.AccountAddress) error {
	admins, err := r.admins(ctx)
	if err != nil {
		return err
	}
	if err := access.Authorize(inv.Invoker, nil, admins, access.OpAdminManage); err != nil {
		return err
	}
	if !admins.Contains(addr) && admins.Len() >= access.MaxAdmins {
		return contract.ErrAdminSetFull
	}
	admins.Add(addr)
	return admins.Save(ctx, r.store)
}

// AdminRemove drops an admin from the allow-list. Admin only; removing the
// last admin fails LastAdmin.
func (r *Registry) AdminRemove(ctx context.Context, inv contract.Invocation, addr contract.AccountAddress) error {
	admins, err := r.admins(ctx)
	if err != nil {
		return err
	}
	if err := access.Authorize(inv.Invoker, nil, admins, access.OpAdminManage); err != nil {
		return err
	}
	if err := admins.Remove(addr); err != nil {
		return err
	}
	return admins.Save(ctx, r.store)
}

// AdminSetRoles grants or revokes platform roles on the target record. Admin
// only; the whole bitset is replaced.
func (r *Registry) AdminSetRoles(ctx context.Context, inv contract.Invocation, target contract.AccountAddress, roles contract.Roles) error {
	admins, err := r.admins(ctx)
	if err != nil {
		return err
	}
	if err := access.Authorize(inv.Invoker, nil, admins, access.OpSetRoles); err != nil {
		return err
	}
	rec, err := r.fetch(ctx, target)
	if err != nil {
		return err
	}

	rec.Roles = roles
	rec.SchemaVersion = codec.CurrentSchema
	rec.UpdatedAt = inv.Sequence
	return r.store.Replace(ctx, recordKey(target), codec.EncodeRecord(rec))
}
