package registry

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/overlaydao/overlay-users/internal/access"
	"github.com/overlaydao/overlay-users/internal/codec"
	"github.com/overlaydao/overlay-users/internal/contract"
	"github.com/overlaydao/overlay-users/internal/state"
)

func addr(b byte) contract.AccountAddress {
	var a contract.AccountAddress
	a[0] = b
	return a
}

var (
	admin = addr(100)
	u1    = addr(1)
	u2    = addr(2)
)

func inv(caller contract.AccountAddress, seq uint64) contract.Invocation {
	return contract.Invocation{Invoker: caller, Sequence: seq}
}

func setup(t *testing.T) (context.Context, state.Store, *Registry) {
	t.Helper()
	ctx := context.Background()
	store := state.NewMemory()
	if err := Init(ctx, store, []contract.AccountAddress{admin}); err != nil {
		t.Fatalf("init: %v", err)
	}
	return ctx, store, New(store)
}

func TestInitRequiresAdmins(t *testing.T) {
	err := Init(context.Background(), state.NewMemory(), nil)
	if !errors.Is(err, contract.ErrEmptyAdminSet) {
		t.Fatalf("expected EmptyAdminSet, got %v", err)
	}
}

func TestRegisterAndView(t *testing.T) {
	ctx, _, reg := setup(t)

	if _, err := reg.Register(ctx, inv(u1, 1), []byte("alice")); err != nil {
		t.Fatalf("register: %v", err)
	}

	rec, err := reg.View(ctx, u1)
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if rec.Owner != u1 {
		t.Fatalf("owner mismatch: %s", rec.Owner)
	}
	if !bytes.Equal(rec.Profile, []byte("alice")) {
		t.Fatalf("profile mismatch: %q", rec.Profile)
	}
	if rec.Status != contract.StatusActive {
		t.Fatalf("expected active, got %v", rec.Status)
	}
	if rec.SchemaVersion != codec.CurrentSchema || rec.UpdatedAt != 1 {
		t.Fatalf("metadata mismatch: %+v", rec)
	}
}

func TestRegisterTwiceFails(t *testing.T) {
	ctx, _, reg := setup(t)

	if _, err := reg.Register(ctx, inv(u1, 1), []byte("alice")); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := reg.Register(ctx, inv(u1, 2), []byte("other")); !errors.Is(err, contract.ErrAlreadyRegistered) {
		t.Fatalf("expected AlreadyRegistered, got %v", err)
	}

	// The failed call left the record untouched.
	rec, err := reg.View(ctx, u1)
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if !bytes.Equal(rec.Profile, []byte("alice")) || rec.UpdatedAt != 1 {
		t.Fatalf("record changed by failed register: %+v", rec)
	}
}

func TestUpdateRewritesProfile(t *testing.T) {
	ctx, _, reg := setup(t)

	if _, err := reg.Register(ctx, inv(u1, 1), []byte("alice")); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := reg.Update(ctx, inv(u1, 2), []byte("alice2")); err != nil {
		t.Fatalf("update: %v", err)
	}

	rec, err := reg.View(ctx, u1)
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if !bytes.Equal(rec.Profile, []byte("alice2")) {
		t.Fatalf("profile not rewritten: %q", rec.Profile)
	}
	if rec.UpdatedAt != 2 || rec.Status != contract.StatusActive || rec.Owner != u1 {
		t.Fatalf("update touched more than the profile: %+v", rec)
	}
}

func TestUpdateWithoutRecord(t *testing.T) {
	ctx, _, reg := setup(t)
	if _, err := reg.Update(ctx, inv(u1, 1), []byte("x")); !errors.Is(err, contract.ErrNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestDeactivateLifecycle(t *testing.T) {
	ctx, _, reg := setup(t)

	if _, err := reg.Register(ctx, inv(u1, 1), []byte("alice")); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Deactivate(ctx, inv(u1, 2), u1); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	// Deactivating again is a caller bug, not a no-op.
	if err := reg.Deactivate(ctx, inv(u1, 3), u1); !errors.Is(err, contract.ErrInvalidState) {
		t.Fatalf("expected InvalidState, got %v", err)
	}

	if err := reg.Reactivate(ctx, inv(u1, 4)); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	rec, err := reg.View(ctx, u1)
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if rec.Status != contract.StatusActive {
		t.Fatalf("expected active after reactivate, got %v", rec.Status)
	}

	// Reactivating an active record is invalid too.
	if err := reg.Reactivate(ctx, inv(u1, 5)); !errors.Is(err, contract.ErrInvalidState) {
		t.Fatalf("expected InvalidState, got %v", err)
	}
}

func TestDeactivateByAdminAndStranger(t *testing.T) {
	ctx, _, reg := setup(t)

	if _, err := reg.Register(ctx, inv(u1, 1), []byte("alice")); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Deactivate(ctx, inv(u2, 2), u1); !errors.Is(err, contract.ErrNotOwner) {
		t.Fatalf("expected NotOwner for stranger, got %v", err)
	}
	if err := reg.Deactivate(ctx, inv(admin, 3), u1); err != nil {
		t.Fatalf("admin deactivate: %v", err)
	}
	// Reactivate is owner-only, even for admins.
	if err := reg.Reactivate(ctx, inv(admin, 4)); !errors.Is(err, contract.ErrNotFound) {
		t.Fatalf("expected NotFound for admin's own record, got %v", err)
	}
	if err := reg.Reactivate(ctx, inv(u1, 5)); err != nil {
		t.Fatalf("owner reactivate: %v", err)
	}
}

func TestUpdateWhileDeactivated(t *testing.T) {
	ctx, _, reg := setup(t)

	if _, err := reg.Register(ctx, inv(u1, 1), []byte("alice")); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Deactivate(ctx, inv(admin, 2), u1); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	if _, err := reg.Update(ctx, inv(u1, 3), []byte("alice2")); err != nil {
		t.Fatalf("owner update of deactivated record: %v", err)
	}
	rec, err := reg.View(ctx, u1)
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if rec.Status != contract.StatusDeactivated {
		t.Fatalf("update changed status: %v", rec.Status)
	}
	if !bytes.Equal(rec.Profile, []byte("alice2")) {
		t.Fatalf("profile not rewritten: %q", rec.Profile)
	}
	// Still registered.
	if _, err := reg.Register(ctx, inv(u1, 4), []byte("fresh")); !errors.Is(err, contract.ErrAlreadyRegistered) {
		t.Fatalf("expected AlreadyRegistered, got %v", err)
	}
}

func TestAdminTransfer(t *testing.T) {
	ctx, _, reg := setup(t)

	if _, err := reg.Register(ctx, inv(u1, 1), []byte("alice")); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.AdminTransfer(ctx, inv(admin, 2), u1, u2); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	if _, err := reg.View(ctx, u1); !errors.Is(err, contract.ErrNotFound) {
		t.Fatalf("expected old key gone, got %v", err)
	}
	rec, err := reg.View(ctx, u2)
	if err != nil {
		t.Fatalf("view new key: %v", err)
	}
	if rec.Owner != u2 {
		t.Fatalf("owner not rewritten: %s", rec.Owner)
	}
	if !bytes.Equal(rec.Profile, []byte("alice")) {
		t.Fatalf("profile lost in transfer: %q", rec.Profile)
	}
	if rec.UpdatedAt != 2 {
		t.Fatalf("UpdatedAt not bumped: %d", rec.UpdatedAt)
	}
}

func TestAdminTransferTargetOccupied(t *testing.T) {
	ctx, _, reg := setup(t)

	if _, err := reg.Register(ctx, inv(u1, 1), []byte("alice")); err != nil {
		t.Fatalf("register u1: %v", err)
	}
	if _, err := reg.Register(ctx, inv(u2, 2), []byte("bob")); err != nil {
		t.Fatalf("register u2: %v", err)
	}

	if err := reg.AdminTransfer(ctx, inv(admin, 3), u1, u2); !errors.Is(err, contract.ErrTargetOccupied) {
		t.Fatalf("expected TargetOccupied, got %v", err)
	}

	// Neither record was modified by the failed transfer.
	rec1, err := reg.View(ctx, u1)
	if err != nil {
		t.Fatalf("view u1: %v", err)
	}
	rec2, err := reg.View(ctx, u2)
	if err != nil {
		t.Fatalf("view u2: %v", err)
	}
	if !bytes.Equal(rec1.Profile, []byte("alice")) || rec1.UpdatedAt != 1 {
		t.Fatalf("u1 modified: %+v", rec1)
	}
	if !bytes.Equal(rec2.Profile, []byte("bob")) || rec2.UpdatedAt != 2 {
		t.Fatalf("u2 modified: %+v", rec2)
	}
}

func TestAdminTransferRequiresAdmin(t *testing.T) {
	ctx, _, reg := setup(t)

	if _, err := reg.Register(ctx, inv(u1, 1), []byte("alice")); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.AdminTransfer(ctx, inv(u1, 2), u1, u2); !errors.Is(err, contract.ErrNotAdmin) {
		t.Fatalf("expected NotAdmin, got %v", err)
	}
}

func TestPurge(t *testing.T) {
	ctx, _, reg := setup(t)

	if _, err := reg.Register(ctx, inv(u1, 1), []byte("alice")); err != nil {
		t.Fatalf("register: %v", err)
	}
	// Purge works regardless of status.
	if err := reg.Deactivate(ctx, inv(u1, 2), u1); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if err := reg.Purge(ctx, inv(u2, 3), u1); !errors.Is(err, contract.ErrNotOwner) {
		t.Fatalf("expected NotOwner for stranger purge, got %v", err)
	}
	if err := reg.Purge(ctx, inv(u1, 4), u1); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if _, err := reg.View(ctx, u1); !errors.Is(err, contract.ErrNotFound) {
		t.Fatalf("expected NotFound after purge, got %v", err)
	}

	// Purge is terminal; a fresh register starts over.
	if _, err := reg.Register(ctx, inv(u1, 5), []byte("again")); err != nil {
		t.Fatalf("re-register: %v", err)
	}
}

func TestPurgeByAdmin(t *testing.T) {
	ctx, _, reg := setup(t)

	if _, err := reg.Register(ctx, inv(u1, 1), []byte("alice")); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Purge(ctx, inv(admin, 2), u1); err != nil {
		t.Fatalf("admin purge: %v", err)
	}
	if err := reg.Purge(ctx, inv(admin, 3), u1); !errors.Is(err, contract.ErrNotFound) {
		t.Fatalf("expected NotFound for second purge, got %v", err)
	}
}

func TestAdminManagement(t *testing.T) {
	ctx, _, reg := setup(t)
	second := addr(101)

	if err := reg.AdminAdd(ctx, inv(u1, 1), second); !errors.Is(err, contract.ErrNotAdmin) {
		t.Fatalf("expected NotAdmin, got %v", err)
	}
	if err := reg.AdminAdd(ctx, inv(admin, 2), second); err != nil {
		t.Fatalf("admin add: %v", err)
	}

	if err := reg.AdminRemove(ctx, inv(second, 3), admin); err != nil {
		t.Fatalf("admin remove: %v", err)
	}
	// second is now the sole admin and cannot remove itself.
	if err := reg.AdminRemove(ctx, inv(second, 4), second); !errors.Is(err, contract.ErrLastAdmin) {
		t.Fatalf("expected LastAdmin, got %v", err)
	}

	view, err := reg.ViewAdmin(ctx, inv(second, 5))
	if err != nil {
		t.Fatalf("view admin: %v", err)
	}
	if len(view.Admins) != 1 || view.Admins[0] != second {
		t.Fatalf("admin set mismatch: %v", view.Admins)
	}
}

func TestAdminAddStopsAtCapacity(t *testing.T) {
	ctx, _, reg := setup(t)

	// Fill the allow-list to its encoding bound; setup seeded one admin.
	for i := 1; i < access.MaxAdmins; i++ {
		var a contract.AccountAddress
		binary.LittleEndian.PutUint32(a[:4], uint32(i))
		a[31] = 0xAA
		if err := reg.AdminAdd(ctx, inv(admin, uint64(i)), a); err != nil {
			t.Fatalf("add admin %d: %v", i, err)
		}
	}

	var overflow contract.AccountAddress
	overflow[31] = 0xFF
	if err := reg.AdminAdd(ctx, inv(admin, 5000), overflow); !errors.Is(err, contract.ErrAdminSetFull) {
		t.Fatalf("expected AdminSetFull, got %v", err)
	}
	// Re-adding an existing member at the bound stays a no-op.
	if err := reg.AdminAdd(ctx, inv(admin, 5001), admin); err != nil {
		t.Fatalf("re-add at bound: %v", err)
	}

	// The persisted set still loads and serves admin operations.
	view, err := reg.ViewAdmin(ctx, inv(admin, 5002))
	if err != nil {
		t.Fatalf("view admin at bound: %v", err)
	}
	if len(view.Admins) != access.MaxAdmins {
		t.Fatalf("expected %d admins, got %d", access.MaxAdmins, len(view.Admins))
	}
}

func TestViewAdminCountsRecords(t *testing.T) {
	ctx, _, reg := setup(t)

	if _, err := reg.Register(ctx, inv(u1, 1), []byte("alice")); err != nil {
		t.Fatalf("register u1: %v", err)
	}
	if _, err := reg.Register(ctx, inv(u2, 2), []byte("bob")); err != nil {
		t.Fatalf("register u2: %v", err)
	}
	if err := reg.Purge(ctx, inv(u2, 3), u2); err != nil {
		t.Fatalf("purge: %v", err)
	}

	view, err := reg.ViewAdmin(ctx, inv(admin, 4))
	if err != nil {
		t.Fatalf("view admin: %v", err)
	}
	if view.Records != 1 {
		t.Fatalf("expected 1 record, got %d", view.Records)
	}
	if view.SchemaVersion != codec.CurrentSchema {
		t.Fatalf("schema version mismatch: %d", view.SchemaVersion)
	}

	if _, err := reg.ViewAdmin(ctx, inv(u1, 5)); !errors.Is(err, contract.ErrNotAdmin) {
		t.Fatalf("expected NotAdmin, got %v", err)
	}
}

func TestAdminSetRoles(t *testing.T) {
	ctx, _, reg := setup(t)

	if _, err := reg.Register(ctx, inv(u1, 1), []byte("alice")); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.AdminSetRoles(ctx, inv(u1, 2), u1, contract.RoleCurator); !errors.Is(err, contract.ErrNotAdmin) {
		t.Fatalf("expected NotAdmin, got %v", err)
	}
	if err := reg.AdminSetRoles(ctx, inv(admin, 3), u1, contract.RoleCurator|contract.RoleValidator); err != nil {
		t.Fatalf("set roles: %v", err)
	}

	rec, err := reg.View(ctx, u1)
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if !rec.Roles.Has(contract.RoleCurator) || !rec.Roles.Has(contract.RoleValidator) {
		t.Fatalf("roles not set: %v", rec.Roles)
	}

	// The whole bitset is replaced, so roles can be revoked.
	if err := reg.AdminSetRoles(ctx, inv(admin, 4), u1, 0); err != nil {
		t.Fatalf("clear roles: %v", err)
	}
	rec, err = reg.View(ctx, u1)
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if rec.Roles != 0 {
		t.Fatalf("roles not cleared: %v", rec.Roles)
	}
}

// encodeV1 builds the launch record layout, which had no roles byte.
func encodeV1(owner contract.AccountAddress, status contract.Status, updatedAt uint64, profile []byte) []byte {
	out := []byte{codec.SchemaV1}
	out = append(out, owner[:]...)
	out = append(out, byte(status))
	out = binary.LittleEndian.AppendUint64(out, updatedAt)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(profile)))
	return append(out, profile...)
}

func TestOldSchemaRecordMigratesOnRead(t *testing.T) {
	ctx, store, reg := setup(t)

	state.Seed(store, recordKey(u1), encodeV1(u1, contract.StatusActive, 3, []byte("legacy")))

	rec, err := reg.View(ctx, u1)
	if err != nil {
		t.Fatalf("view v1 record: %v", err)
	}
	if rec.SchemaVersion != codec.SchemaV1 {
		t.Fatalf("view must report the stored schema, got %d", rec.SchemaVersion)
	}
	if !bytes.Equal(rec.Profile, []byte("legacy")) || rec.Roles != 0 {
		t.Fatalf("v1 fields mishandled: %+v", rec)
	}

	// A write rewrites the record at the current schema.
	if _, err := reg.Update(ctx, inv(u1, 4), []byte("migrated")); err != nil {
		t.Fatalf("update v1 record: %v", err)
	}
	rec, err = reg.View(ctx, u1)
	if err != nil {
		t.Fatalf("view after update: %v", err)
	}
	if rec.SchemaVersion != codec.CurrentSchema {
		t.Fatalf("expected rewrite at schema %d, got %d", codec.CurrentSchema, rec.SchemaVersion)
	}
}

func TestCorruptedRecordAbortsInvocation(t *testing.T) {
	ctx, store, reg := setup(t)

	// A record stored under a key that does not match its owner is corrupted
	// contract state and must abort, not return a typed error.
	state.Seed(store, recordKey(u1), codec.EncodeRecord(contract.UserRecord{
		Owner:  u2,
		Status: contract.StatusActive,
	}))

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on owner/key mismatch")
		}
	}()
	_, _ = reg.View(ctx, u1)
}

func TestLifecycleScenario(t *testing.T) {
	ctx, _, reg := setup(t)

	if _, err := reg.Register(ctx, inv(u1, 1), []byte("alice")); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := reg.Update(ctx, inv(u1, 2), []byte("alice2")); err != nil {
		t.Fatalf("update: %v", err)
	}

	rec, err := reg.View(ctx, u1)
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if rec.Owner != u1 || !bytes.Equal(rec.Profile, []byte("alice2")) || rec.Status != contract.StatusActive {
		t.Fatalf("unexpected record: %+v", rec)
	}

	if err := reg.Deactivate(ctx, inv(admin, 3), u1); err != nil {
		t.Fatalf("admin deactivate: %v", err)
	}
	if _, err := reg.Update(ctx, inv(u1, 4), []byte("alice3")); err != nil {
		t.Fatalf("update while deactivated: %v", err)
	}
	if _, err := reg.Register(ctx, inv(u1, 5), []byte("alice4")); !errors.Is(err, contract.ErrAlreadyRegistered) {
		t.Fatalf("expected AlreadyRegistered, got %v", err)
	}
}
