package contract

// Invocation carries the host-supplied context of one entry-point call. The
// host verifies Invoker and totally orders invocations; Sequence is the
// position of this invocation in that order, used as the monotonic UpdatedAt
// value for stale-write detection.
type Invocation struct {
	Invoker  AccountAddress
	Sequence uint64
}
