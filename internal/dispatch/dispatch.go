// Package dispatch is the contract's invocation boundary: it decodes raw
// parameter bytes, routes to the matching registry operation, and encodes a
// stable result code for the host. Decode failures and unknown entry points
// fail Malformed before any state is touched. Logic faults are not caught
// here; a panic aborts the whole invocation so the host discards all writes.
package dispatch

import (
	"context"
	"errors"
	"log/slog"

	"github.com/overlaydao/overlay-users/internal/codec"
	"github.com/overlaydao/overlay-users/internal/contract"
	"github.com/overlaydao/overlay-users/internal/event"
	"github.com/overlaydao/overlay-users/internal/registry"
	"github.com/overlaydao/overlay-users/internal/state"
)

// Entry-point tags, as named on the wire.
const (
	EPRegister      = "register"
	EPUpdate        = "update"
	EPDeactivate    = "deactivate"
	EPReactivate    = "reactivate"
	EPAdminTransfer = "adminTransfer"
	EPPurge         = "purge"
	EPView          = "view"
	EPViewAdmin     = "viewAdmin"
	EPAdminAdd      = "adminAdd"
	EPAdminRemove   = "adminRemove"
	EPAdminSetRoles = "adminSetRoles"
)

// Outcome is the encoded result of one invocation: code 0 with an optional
// payload on success, a stable negative code otherwise.
type Outcome struct {
	Code    int32
	Label   string
	Kind    contract.Kind
	Payload []byte
}

// OK reports whether the invocation succeeded.
func (o Outcome) OK() bool {
	return o.Code == 0
}

func success(payload []byte) Outcome {
	return Outcome{Label: "OK", Payload: payload}
}

func reject(err *contract.Error) Outcome {
	return Outcome{Code: err.Code, Label: err.Label, Kind: err.Kind}
}

// Dispatcher routes invocations to registry logic.
type Dispatcher struct {
	logger *slog.Logger
	events event.Sink
}

// New builds a dispatcher.
func New(logger *slog.Logger, events event.Sink) *Dispatcher {
	return &Dispatcher{logger: logger, events: events}
}

// Init handles the one-time initialization invocation.
func (d *Dispatcher) Init(ctx context.Context, store state.Store, params []byte) Outcome {
	admins, err := codec.DecodeAddressList(params)
	if err != nil {
		return reject(contract.ErrMalformed)
	}
	if err := registry.Init(ctx, store, admins); err != nil {
		return d.outcome("init", err)
	}
	d.logger.Info("contract initialized", slog.Int("admins", len(admins)))
	return success(nil)
}

// Invoke decodes and runs one entry point. The store is the invocation's
// buffered, metered view; the host commits or discards it based on the
// outcome.
func (d *Dispatcher) Invoke(ctx context.Context, store state.Store, inv contract.Invocation, entrypoint string, params []byte) Outcome {
	reg := registry.New(store)

	switch entrypoint {
	case EPRegister:
		profile, err := codec.DecodeProfileParams(params)
		if err != nil {
			return reject(contract.ErrMalformed)
		}
		if _, err := reg.Register(ctx, inv, profile); err != nil {
			return d.outcome(entrypoint, err)
		}
		d.emit(ctx, entrypoint, inv, inv.Invoker)
		return success(nil)

	case EPUpdate:
		profile, err := codec.DecodeProfileParams(params)
		if err != nil {
			return reject(contract.ErrMalformed)
		}
		if _, err := reg.Update(ctx, inv, profile); err != nil {
			return d.outcome(entrypoint, err)
		}
		d.emit(ctx, entrypoint, inv, inv.Invoker)
		return success(nil)

	case EPDeactivate:
		target, err := codec.DecodeAddressParams(params)
		if err != nil {
			return reject(contract.ErrMalformed)
		}
		if err := reg.Deactivate(ctx, inv, target); err != nil {
			return d.outcome(entrypoint, err)
		}
		d.emit(ctx, entrypoint, inv, target)
		return success(nil)

	case EPReactivate:
		if len(params) != 0 {
			return reject(contract.ErrMalformed)
		}
		if err := reg.Reactivate(ctx, inv); err != nil {
			return d.outcome(entrypoint, err)
		}
		d.emit(ctx, entrypoint, inv, inv.Invoker)
		return success(nil)

	case EPAdminTransfer:
		from, to, err := codec.DecodeTransferParams(params)
		if err != nil {
			return reject(contract.ErrMalformed)
		}
		if err := reg.AdminTransfer(ctx, inv, from, to); err != nil {
			return d.outcome(entrypoint, err)
		}
		d.emit(ctx, entrypoint, inv, to)
		return success(nil)

	case EPPurge:
		target, err := codec.DecodeAddressParams(params)
		if err != nil {
			return reject(contract.ErrMalformed)
		}
		if err := reg.Purge(ctx, inv, target); err != nil {
			return d.outcome(entrypoint, err)
		}
		d.emit(ctx, entrypoint, inv, target)
		return success(nil)

	case EPView:
		target, err := codec.DecodeAddressParams(params)
		if err != nil {
			return reject(contract.ErrMalformed)
		}
		rec, err := reg.View(ctx, target)
		if err != nil {
			return d.outcome(entrypoint, err)
		}
		return success(codec.EncodeRecordSnapshot(rec))

	case EPViewAdmin:
		if len(params) != 0 {
			return reject(contract.ErrMalformed)
		}
		view, err := reg.ViewAdmin(ctx, inv)
		if err != nil {
			return d.outcome(entrypoint, err)
		}
		return success(codec.EncodeAdminView(view))

	case EPAdminAdd:
		addr, err := codec.DecodeAddressParams(params)
		if err != nil {
			return reject(contract.ErrMalformed)
		}
		if err := reg.AdminAdd(ctx, inv, addr); err != nil {
			return d.outcome(entrypoint, err)
		}
		d.emit(ctx, entrypoint, inv, addr)
		return success(nil)

	case EPAdminRemove:
		addr, err := codec.DecodeAddressParams(params)
		if err != nil {
			return reject(contract.ErrMalformed)
		}
		if err := reg.AdminRemove(ctx, inv, addr); err != nil {
			return d.outcome(entrypoint, err)
		}
		d.emit(ctx, entrypoint, inv, addr)
		return success(nil)

	case EPAdminSetRoles:
		target, roles, err := codec.DecodeRolesParams(params)
		if err != nil {
			return reject(contract.ErrMalformed)
		}
		if err := reg.AdminSetRoles(ctx, inv, target, roles); err != nil {
			return d.outcome(entrypoint, err)
		}
		d.emit(ctx, entrypoint, inv, target)
		return success(nil)

	default:
		return reject(contract.ErrMalformed)
	}
}

// outcome maps a registry error to its stable code. Anything outside the
// contract error taxonomy is a logic fault and aborts the invocation.
func (d *Dispatcher) outcome(entrypoint string, err error) Outcome {
	var cerr *contract.Error
	if errors.As(err, &cerr) {
		d.logger.Debug("invocation rejected",
			slog.String("entrypoint", entrypoint),
			slog.String("code", cerr.Label),
		)
		return reject(cerr)
	}
	panic("invariant violation in " + entrypoint + ": " + err.Error())
}

func (d *Dispatcher) emit(ctx context.Context, name string, inv contract.Invocation, target contract.AccountAddress) {
	if d.events == nil {
		return
	}
	ev := event.Event{Name: name, Actor: inv.Invoker, Target: target, Sequence: inv.Sequence}
	if err := d.events.Emit(ctx, ev); err != nil {
		d.logger.Warn("emit event", slog.String("event", name), slog.Any("error", err))
	}
}
