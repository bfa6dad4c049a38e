// Package access evaluates caller identity against record ownership and the
// admin allow-list. It owns the persisted AdminSet and the policy table that
// decides every entry point.
package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/overlaydao/overlay-users/internal/codec"
	"github.com/overlaydao/overlay-users/internal/contract"
	"github.com/overlaydao/overlay-users/internal/state"
)

// adminSetKey is the reserved state key the admin list persists under.
const adminSetKey = "sys:admins"

// MaxAdmins bounds the allow-list so it always fits its persisted encoding.
const MaxAdmins = codec.MaxAddressListLen

// Operation names a policy-relevant contract operation.
type Operation uint8

const (
	// OpUpdate rewrites a record's profile.
	OpUpdate Operation = iota + 1
	// OpDeactivate hides a record.
	OpDeactivate
	// OpReactivate restores a deactivated record.
	OpReactivate
	// OpAdminTransfer relocates a record to a new owner.
	OpAdminTransfer
	// OpPurge removes a record entirely.
	OpPurge
	// OpAdminManage adds or removes admins.
	OpAdminManage
	// OpSetRoles grants or revokes platform roles.
	OpSetRoles
	// OpViewAdmin reads the privileged admin snapshot.
	OpViewAdmin
)

// AdminSet is the ordered allow-list of privileged accounts. It is never
// empty once the contract is initialized.
type AdminSet struct {
	addrs []contract.AccountAddress
}

// NewAdminSet builds an admin set from the init parameter, dropping
// duplicates but preserving first-seen order.
func NewAdminSet(addrs []contract.AccountAddress) *AdminSet {
	s := &AdminSet{}
	for _, a := range addrs {
		s.Add(a)
	}
	return s
}

// LoadAdminSet reads the persisted admin set. A missing or undecodable set
// after initialization is corrupted contract state, reported as a plain error
// for the caller to treat as fatal.
func LoadAdminSet(ctx context.Context, store state.Store) (*AdminSet, error) {
	raw, err := store.Get(ctx, adminSetKey)
	if err != nil {
		if errors.Is(err, state.ErrKeyAbsent) {
			return nil, fmt.Errorf("admin set missing from state")
		}
		return nil, err
	}
	addrs, err := codec.DecodeAddressList(raw)
	if err != nil {
		return nil, fmt.Errorf("decode admin set: %w", err)
	}
	return &AdminSet{addrs: addrs}, nil
}

// Seed persists the initial admin set. Fails if one is already stored.
func (s *AdminSet) Seed(ctx context.Context, store state.Store) error {
	return store.Insert(ctx, adminSetKey, codec.EncodeAddressList(s.addrs))
}

// Save rewrites the persisted admin set.
func (s *AdminSet) Save(ctx context.Context, store state.Store) error {
	return store.Replace(ctx, adminSetKey, codec.EncodeAddressList(s.addrs))
}

// Contains reports membership.
func (s *AdminSet) Contains(addr contract.AccountAddress) bool {
	for _, a := range s.addrs {
		if a == addr {
			return true
		}
	}
	return false
}

// Add appends an admin. Adding an existing member is a no-op.
func (s *AdminSet) Add(addr contract.AccountAddress) {
	if s.Contains(addr) {
		return
	}
	s.addrs = append(s.addrs, addr)
}

// Remove drops an admin. Removing the last member is rejected so the set can
// never reach zero; removing a non-member is a no-op.
func (s *AdminSet) Remove(addr contract.AccountAddress) error {
	if !s.Contains(addr) {
		return nil
	}
	if len(s.addrs) == 1 {
		return contract.ErrLastAdmin
	}
	kept := s.addrs[:0]
	for _, a := range s.addrs {
		if a != addr {
			kept = append(kept, a)
		}
	}
	s.addrs = kept
	return nil
}

// Len reports the current cardinality.
func (s *AdminSet) Len() int {
	return len(s.addrs)
}

// Addrs returns a copy of the member list in insertion order.
func (s *AdminSet) Addrs() []contract.AccountAddress {
	return append([]contract.AccountAddress(nil), s.addrs...)
}

// Authorize applies the policy table for one operation. record may be nil for
// operations that target no record. A nil return means allow; otherwise the
// structured deny reason is returned.
func Authorize(caller contract.AccountAddress, record *contract.UserRecord, admins *AdminSet, op Operation) error {
	switch op {
	case OpUpdate, OpReactivate:
		if record == nil || record.Owner != caller {
			return contract.ErrNotOwner
		}
		return nil
	case OpDeactivate, OpPurge:
		if record != nil && record.Owner == caller {
			return nil
		}
		if admins != nil && admins.Contains(caller) {
			return nil
		}
		return contract.ErrNotOwner
	case OpAdminTransfer, OpAdminManage, OpSetRoles, OpViewAdmin:
		if admins == nil || !admins.Contains(caller) {
			return contract.ErrNotAdmin
		}
		return nil
	default:
		return contract.ErrNotAdmin
	}
}
