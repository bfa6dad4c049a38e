package contract

// Kind groups contract errors into the taxonomy exposed to clients.
type Kind uint8

const (
	// KindMalformed covers decode failures and unknown entry points.
	KindMalformed Kind = iota + 1
	// KindAccessDenied covers policy rejections.
	KindAccessDenied
	// KindStateConflict covers operations invalid for the current record state.
	KindStateConflict
	// KindResourceExhausted covers the host execution budget running out.
	KindResourceExhausted
)

// Error is a structured contract error with a stable numeric code and label.
// Internal details (store layout, codec internals) never appear in the label.
type Error struct {
	Kind  Kind
	Code  int32
	Label string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Label
}

var (
	// ErrMalformed rejects an invocation whose parameters cannot be decoded
	// or whose entry-point tag is unknown.
	ErrMalformed = &Error{Kind: KindMalformed, Code: -1, Label: "MALFORMED"}
	// ErrEmptyAdminSet rejects initialization without at least one admin.
	ErrEmptyAdminSet = &Error{Kind: KindMalformed, Code: -2, Label: "EMPTY_ADMIN_SET"}

	// ErrNotOwner rejects a self-service operation by a non-owner.
	ErrNotOwner = &Error{Kind: KindAccessDenied, Code: -10, Label: "NOT_OWNER"}
	// ErrNotAdmin rejects a privileged operation by a non-admin.
	ErrNotAdmin = &Error{Kind: KindAccessDenied, Code: -11, Label: "NOT_ADMIN"}
	// ErrLastAdmin rejects removal of the sole remaining admin.
	ErrLastAdmin = &Error{Kind: KindAccessDenied, Code: -12, Label: "LAST_ADMIN"}

	// ErrAlreadyRegistered rejects a second registration for the same account.
	ErrAlreadyRegistered = &Error{Kind: KindStateConflict, Code: -20, Label: "ALREADY_REGISTERED"}
	// ErrNotFound signals the target record does not exist.
	ErrNotFound = &Error{Kind: KindStateConflict, Code: -21, Label: "NOT_FOUND"}
	// ErrInvalidState rejects a lifecycle transition not allowed from the
	// record's current status.
	ErrInvalidState = &Error{Kind: KindStateConflict, Code: -22, Label: "INVALID_STATE"}
	// ErrTargetOccupied rejects an admin transfer onto an account that
	// already holds a record.
	ErrTargetOccupied = &Error{Kind: KindStateConflict, Code: -23, Label: "TARGET_OCCUPIED"}
	// ErrAlreadyInitialized rejects a second initialization.
	ErrAlreadyInitialized = &Error{Kind: KindStateConflict, Code: -24, Label: "ALREADY_INITIALIZED"}
	// ErrAdminSetFull rejects growing the admin set past its encoding bound.
	ErrAdminSetFull = &Error{Kind: KindStateConflict, Code: -25, Label: "ADMIN_SET_FULL"}

	// ErrEnergyExhausted signals the invocation exceeded its execution budget.
	ErrEnergyExhausted = &Error{Kind: KindResourceExhausted, Code: -30, Label: "RESOURCE_EXHAUSTED"}
)
