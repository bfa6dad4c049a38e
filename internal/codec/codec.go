// Package codec defines the binary layout and version tag of every value the
// contract persists or exchanges with the host. All encodings are
// little-endian and length-prefixed so decoding is deterministic and never
// over-reads. Writes always use the current schema; reads accept every schema
// the contract has ever shipped.
package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/overlaydao/overlay-users/internal/contract"
)

const (
	// SchemaV1 is the launch layout: owner, status, updatedAt, profile.
	SchemaV1 uint8 = 1
	// SchemaV2 adds the roles bitset.
	SchemaV2 uint8 = 2
	// CurrentSchema is the layout all writes use.
	CurrentSchema = SchemaV2

	// MaxProfileSize bounds the opaque profile payload so a single record
	// cannot blow the execution budget of the invocations that touch it.
	MaxProfileSize = 1 << 16

	// MaxAddressListLen bounds encoded address lists (admin sets, init
	// parameters).
	MaxAddressListLen = 1 << 10
)

// reader is a bounds-checked cursor over an encoded value.
type reader struct {
	data []byte
	off  int
}

func (r *reader) take(n int) ([]byte, error) {
	if n < 0 || len(r.data)-r.off < n {
		return nil, fmt.Errorf("truncated value: need %d bytes at offset %d", n, r.off)
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) u8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) u16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *reader) u32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *reader) u64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *reader) address() (contract.AccountAddress, error) {
	var addr contract.AccountAddress
	b, err := r.take(contract.AddressLength)
	if err != nil {
		return addr, err
	}
	copy(addr[:], b)
	return addr, nil
}

func (r *reader) rest() error {
	if r.off != len(r.data) {
		return fmt.Errorf("trailing garbage: %d bytes past end of value", len(r.data)-r.off)
	}
	return nil
}

func appendUint16(dst []byte, v uint16) []byte {
	return binary.LittleEndian.AppendUint16(dst, v)
}

func appendUint32(dst []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(dst, v)
}

func appendUint64(dst []byte, v uint64) []byte {
	return binary.LittleEndian.AppendUint64(dst, v)
}

// EncodeRecord serializes a record in the current schema. The stored
// SchemaVersion of the input is ignored: persisting a record always rewrites
// it at CurrentSchema.
func EncodeRecord(rec contract.UserRecord) []byte {
	out := make([]byte, 0, 1+contract.AddressLength+1+1+8+4+len(rec.Profile))
	out = append(out, CurrentSchema)
	out = append(out, rec.Owner[:]...)
	out = append(out, byte(rec.Status))
	out = append(out, byte(rec.Roles))
	out = appendUint64(out, rec.UpdatedAt)
	out = appendUint32(out, uint32(len(rec.Profile)))
	out = append(out, rec.Profile...)
	return out
}

// EncodeRecordSnapshot serializes a record under the schema version it
// carries, for read paths that must report the stored tag untouched. Only
// writes migrate a record to the current schema.
func EncodeRecordSnapshot(rec contract.UserRecord) []byte {
	if rec.SchemaVersion != SchemaV1 {
		return EncodeRecord(rec)
	}
	out := make([]byte, 0, 1+contract.AddressLength+1+8+4+len(rec.Profile))
	out = append(out, SchemaV1)
	out = append(out, rec.Owner[:]...)
	out = append(out, byte(rec.Status))
	out = appendUint64(out, rec.UpdatedAt)
	out = appendUint32(out, uint32(len(rec.Profile)))
	return append(out, rec.Profile...)
}

// DecodeRecord reads a record written under any supported schema version.
// Fields absent from older layouts decode to their zero value; the returned
// SchemaVersion is the tag found on the wire, not CurrentSchema.
func DecodeRecord(data []byte) (contract.UserRecord, error) {
	r := &reader{data: data}
	version, err := r.u8()
	if err != nil {
		return contract.UserRecord{}, err
	}

	var rec contract.UserRecord
	rec.SchemaVersion = version

	switch version {
	case SchemaV1, SchemaV2:
	default:
		return contract.UserRecord{}, fmt.Errorf("unsupported schema version %d", version)
	}

	if rec.Owner, err = r.address(); err != nil {
		return contract.UserRecord{}, err
	}
	status, err := r.u8()
	if err != nil {
		return contract.UserRecord{}, err
	}
	rec.Status = contract.Status(status)
	if !rec.Status.Valid() {
		return contract.UserRecord{}, fmt.Errorf("invalid status %d", status)
	}
	if version >= SchemaV2 {
		roles, err := r.u8()
		if err != nil {
			return contract.UserRecord{}, err
		}
		rec.Roles = contract.Roles(roles)
	}
	if rec.UpdatedAt, err = r.u64(); err != nil {
		return contract.UserRecord{}, err
	}
	profile, err := decodeProfile(r)
	if err != nil {
		return contract.UserRecord{}, err
	}
	rec.Profile = profile
	if err := r.rest(); err != nil {
		return contract.UserRecord{}, err
	}
	return rec, nil
}

func decodeProfile(r *reader) ([]byte, error) {
	size, err := r.u32()
	if err != nil {
		return nil, err
	}
	if size > MaxProfileSize {
		return nil, fmt.Errorf("profile exceeds %d bytes", MaxProfileSize)
	}
	raw, err := r.take(int(size))
	if err != nil {
		return nil, err
	}
	profile := make([]byte, size)
	copy(profile, raw)
	return profile, nil
}

// EncodeProfileParams serializes the parameter of register and update.
func EncodeProfileParams(profile []byte) []byte {
	out := appendUint32(make([]byte, 0, 4+len(profile)), uint32(len(profile)))
	return append(out, profile...)
}

// DecodeProfileParams reads the parameter of register and update.
func DecodeProfileParams(data []byte) ([]byte, error) {
	r := &reader{data: data}
	profile, err := decodeProfile(r)
	if err != nil {
		return nil, err
	}
	if err := r.rest(); err != nil {
		return nil, err
	}
	return profile, nil
}

// EncodeAddressParams serializes a single-address parameter (deactivate,
// purge, view, adminAdd, adminRemove).
func EncodeAddressParams(addr contract.AccountAddress) []byte {
	out := make([]byte, contract.AddressLength)
	copy(out, addr[:])
	return out
}

// DecodeAddressParams reads a single-address parameter.
func DecodeAddressParams(data []byte) (contract.AccountAddress, error) {
	r := &reader{data: data}
	addr, err := r.address()
	if err != nil {
		return contract.AccountAddress{}, err
	}
	if err := r.rest(); err != nil {
		return contract.AccountAddress{}, err
	}
	return addr, nil
}

// EncodeTransferParams serializes the adminTransfer parameter pair.
func EncodeTransferParams(from, to contract.AccountAddress) []byte {
	out := make([]byte, 0, 2*contract.AddressLength)
	out = append(out, from[:]...)
	return append(out, to[:]...)
}

// DecodeTransferParams reads the adminTransfer parameter pair.
func DecodeTransferParams(data []byte) (from, to contract.AccountAddress, err error) {
	r := &reader{data: data}
	if from, err = r.address(); err != nil {
		return from, to, err
	}
	if to, err = r.address(); err != nil {
		return from, to, err
	}
	return from, to, r.rest()
}

// EncodeRolesParams serializes the adminSetRoles parameter.
func EncodeRolesParams(target contract.AccountAddress, roles contract.Roles) []byte {
	out := make([]byte, 0, contract.AddressLength+1)
	out = append(out, target[:]...)
	return append(out, byte(roles))
}

// DecodeRolesParams reads the adminSetRoles parameter.
func DecodeRolesParams(data []byte) (contract.AccountAddress, contract.Roles, error) {
	r := &reader{data: data}
	target, err := r.address()
	if err != nil {
		return contract.AccountAddress{}, 0, err
	}
	roles, err := r.u8()
	if err != nil {
		return contract.AccountAddress{}, 0, err
	}
	if err := r.rest(); err != nil {
		return contract.AccountAddress{}, 0, err
	}
	return target, contract.Roles(roles), nil
}

// EncodeAddressList serializes an ordered address list (init parameter,
// persisted admin set). Lists over MaxAddressListLen cannot be decoded back,
// so encoding one is an invariant fault, never a silent truncation.
func EncodeAddressList(addrs []contract.AccountAddress) []byte {
	if len(addrs) > MaxAddressListLen {
		panic(fmt.Sprintf("address list exceeds %d entries", MaxAddressListLen))
	}
	out := appendUint16(make([]byte, 0, 2+len(addrs)*contract.AddressLength), uint16(len(addrs)))
	for _, a := range addrs {
		out = append(out, a[:]...)
	}
	return out
}

// DecodeAddressList reads an ordered address list.
func DecodeAddressList(data []byte) ([]contract.AccountAddress, error) {
	r := &reader{data: data}
	addrs, err := decodeAddressList(r)
	if err != nil {
		return nil, err
	}
	if err := r.rest(); err != nil {
		return nil, err
	}
	return addrs, nil
}

func decodeAddressList(r *reader) ([]contract.AccountAddress, error) {
	count, err := r.u16()
	if err != nil {
		return nil, err
	}
	if count > MaxAddressListLen {
		return nil, fmt.Errorf("address list exceeds %d entries", MaxAddressListLen)
	}
	addrs := make([]contract.AccountAddress, 0, count)
	for i := 0; i < int(count); i++ {
		addr, err := r.address()
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

// EncodeAdminView serializes the viewAdmin result payload.
func EncodeAdminView(v contract.AdminView) []byte {
	out := make([]byte, 0, 1+8+2+len(v.Admins)*contract.AddressLength)
	out = append(out, v.SchemaVersion)
	out = appendUint64(out, v.Records)
	out = appendUint16(out, uint16(len(v.Admins)))
	for _, a := range v.Admins {
		out = append(out, a[:]...)
	}
	return out
}

// DecodeAdminView reads the viewAdmin result payload.
func DecodeAdminView(data []byte) (contract.AdminView, error) {
	r := &reader{data: data}
	var v contract.AdminView
	var err error
	if v.SchemaVersion, err = r.u8(); err != nil {
		return contract.AdminView{}, err
	}
	if v.Records, err = r.u64(); err != nil {
		return contract.AdminView{}, err
	}
	if v.Admins, err = decodeAddressList(r); err != nil {
		return contract.AdminView{}, err
	}
	return v, r.rest()
}

// EncodeUint64 serializes a persisted counter.
func EncodeUint64(v uint64) []byte {
	return appendUint64(make([]byte, 0, 8), v)
}

// DecodeUint64 reads a persisted counter.
func DecodeUint64(data []byte) (uint64, error) {
	r := &reader{data: data}
	v, err := r.u64()
	if err != nil {
		return 0, err
	}
	return v, r.rest()
}
