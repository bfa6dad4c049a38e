package contract

// Status is the lifecycle flag of a user record.
type Status uint8

const (
	// StatusActive marks a record usable by the platform.
	StatusActive Status = 0
	// StatusDeactivated marks a record hidden from the platform but still
	// owned and editable by its owner.
	StatusDeactivated Status = 1
)

// String renders the status for logs and API responses.
func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusDeactivated:
		return "deactivated"
	default:
		return "unknown"
	}
}

// Valid reports whether the status is a known lifecycle value.
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusDeactivated
}

// Roles is a bitset of privileged platform roles granted by admins.
type Roles uint8

const (
	// RoleCurator allows the account to curate projects.
	RoleCurator Roles = 1 << iota
	// RoleValidator allows the account to validate projects.
	RoleValidator
)

// Has reports whether all bits of r are set.
func (r Roles) Has(want Roles) bool {
	return r&want == want
}

// UserRecord is one registry entry. The record key in the state store always
// equals Owner; a mismatch indicates corrupted contract state.
type UserRecord struct {
	Owner         AccountAddress
	Profile       []byte
	Status        Status
	Roles         Roles
	SchemaVersion uint8
	UpdatedAt     uint64
}

// AdminView is the privileged snapshot returned by the viewAdmin entry point.
type AdminView struct {
	Admins        []AccountAddress
	SchemaVersion uint8
	Records       uint64
}
