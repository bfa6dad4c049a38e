package routes

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/gofiber/fiber/v2"

	"github.com/overlaydao/overlay-users/internal/codec"
	"github.com/overlaydao/overlay-users/internal/config"
	"github.com/overlaydao/overlay-users/internal/contract"
	"github.com/overlaydao/overlay-users/internal/dispatch"
	"github.com/overlaydao/overlay-users/internal/state"
)

// hostSequenceKey is where the emulator keeps its invocation counter. It is
// host bookkeeping, written outside the metered contract view.
const hostSequenceKey = "host:seq"

const callerHeader = "X-Caller"

// host drives invocations the way the ledger runtime would: one at a time,
// each against a buffered view of the store, committed only on success.
type host struct {
	cfg        config.Config
	store      state.Store
	dispatcher *dispatch.Dispatcher

	// The host schedules invocations serially; the contract itself has no
	// locking because it never sees concurrent access.
	mu sync.Mutex
}

// RegisterContractRoutes wires the init and invocation endpoints.
func RegisterContractRoutes(r fiber.Router, d Deps, dispatcher *dispatch.Dispatcher) {
	h := &host{cfg: d.Cfg, store: d.Store, dispatcher: dispatcher}
	r.Post("/contract/init", h.init)
	r.Post("/contract/:entrypoint", h.invoke)
}

func (h *host) init(c *fiber.Ctx) error {
	var req struct {
		Admins []string `json:"admins"`
	}
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, contract.ErrMalformed)
	}
	if len(req.Admins) > codec.MaxAddressListLen {
		return respondError(c, contract.ErrMalformed)
	}
	admins := make([]contract.AccountAddress, 0, len(req.Admins))
	for _, s := range req.Admins {
		addr, err := contract.ParseAccountAddress(s)
		if err != nil {
			return respondError(c, contract.ErrMalformed)
		}
		admins = append(admins, addr)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := c.UserContext()
	buffer := state.NewBuffer(h.store)
	outcome := h.dispatcher.Init(ctx, buffer, codec.EncodeAddressList(admins))
	if !outcome.OK() {
		return respondOutcome(c, "init", outcome, "")
	}
	digest := buffer.Digest()
	if err := buffer.Commit(ctx); err != nil {
		return err
	}
	return respondOutcome(c, "init", outcome, hex.EncodeToString(digest[:]))
}

func (h *host) invoke(c *fiber.Ctx) error {
	entrypoint := c.Params("entrypoint")

	caller, err := contract.ParseAccountAddress(c.Get(callerHeader))
	if err != nil {
		return respondError(c, contract.ErrMalformed)
	}
	params, err := encodeParams(entrypoint, c.Body())
	if err != nil {
		return respondError(c, contract.ErrMalformed)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := c.UserContext()
	var seq uint64
	if isReadOnly(entrypoint) {
		// Views bear no write commitment and do not consume a sequence slot.
		seq, err = h.peekSequence(ctx)
	} else {
		seq, err = h.nextSequence(ctx)
	}
	if err != nil {
		return err
	}

	inv := contract.Invocation{Invoker: caller, Sequence: seq}
	buffer := state.NewBuffer(h.store)
	meter := state.NewMeter(buffer, h.cfg.InvocationEnergy)
	outcome := h.dispatcher.Invoke(ctx, meter, inv, entrypoint, params)

	var digest string
	if outcome.OK() && buffer.Dirty() {
		sum := buffer.Digest()
		if err := buffer.Commit(ctx); err != nil {
			return err
		}
		digest = hex.EncodeToString(sum[:])
	}
	return respondOutcome(c, entrypoint, outcome, digest)
}

func isReadOnly(entrypoint string) bool {
	return entrypoint == dispatch.EPView || entrypoint == dispatch.EPViewAdmin
}

// peekSequence reads the invocation counter without consuming a slot.
func (h *host) peekSequence(ctx context.Context) (uint64, error) {
	raw, err := h.store.Get(ctx, hostSequenceKey)
	if errors.Is(err, state.ErrKeyAbsent) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return codec.DecodeUint64(raw)
}

// nextSequence advances the invocation counter. The counter is consumed even
// by rejected invocations, matching how a ledger burns a transaction slot
// regardless of outcome.
func (h *host) nextSequence(ctx context.Context) (uint64, error) {
	raw, err := h.store.Get(ctx, hostSequenceKey)
	if errors.Is(err, state.ErrKeyAbsent) {
		if err := h.store.Insert(ctx, hostSequenceKey, codec.EncodeUint64(1)); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	seq, err := codec.DecodeUint64(raw)
	if err != nil {
		return 0, err
	}
	seq++
	if err := h.store.Replace(ctx, hostSequenceKey, codec.EncodeUint64(seq)); err != nil {
		return 0, err
	}
	return seq, nil
}

// encodeParams converts the JSON request body into the binary parameter
// layout the contract codec understands. Unknown entry points pass through
// with empty parameters so the dispatcher rejects them itself.
func encodeParams(entrypoint string, body []byte) ([]byte, error) {
	switch entrypoint {
	case dispatch.EPRegister, dispatch.EPUpdate:
		var req struct {
			Profile string `json:"profile"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, err
		}
		return codec.EncodeProfileParams([]byte(req.Profile)), nil

	case dispatch.EPDeactivate, dispatch.EPPurge, dispatch.EPView, dispatch.EPAdminAdd, dispatch.EPAdminRemove:
		var req struct {
			Target string `json:"target"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, err
		}
		target, err := contract.ParseAccountAddress(req.Target)
		if err != nil {
			return nil, err
		}
		return codec.EncodeAddressParams(target), nil

	case dispatch.EPAdminTransfer:
		var req struct {
			From string `json:"from"`
			To   string `json:"to"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, err
		}
		from, err := contract.ParseAccountAddress(req.From)
		if err != nil {
			return nil, err
		}
		to, err := contract.ParseAccountAddress(req.To)
		if err != nil {
			return nil, err
		}
		return codec.EncodeTransferParams(from, to), nil

	case dispatch.EPAdminSetRoles:
		var req struct {
			Target    string `json:"target"`
			Curator   bool   `json:"curator"`
			Validator bool   `json:"validator"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, err
		}
		target, err := contract.ParseAccountAddress(req.Target)
		if err != nil {
			return nil, err
		}
		var roles contract.Roles
		if req.Curator {
			roles |= contract.RoleCurator
		}
		if req.Validator {
			roles |= contract.RoleValidator
		}
		return codec.EncodeRolesParams(target, roles), nil

	default:
		// Includes reactivate and viewAdmin, whose parameters are empty.
		return nil, nil
	}
}

func respondError(c *fiber.Ctx, cerr *contract.Error) error {
	return c.Status(httpStatus(cerr.Kind)).JSON(fiber.Map{
		"code":  cerr.Code,
		"error": cerr.Label,
	})
}

func respondOutcome(c *fiber.Ctx, entrypoint string, outcome dispatch.Outcome, digest string) error {
	if !outcome.OK() {
		return c.Status(httpStatus(outcome.Kind)).JSON(fiber.Map{
			"code":  outcome.Code,
			"error": outcome.Label,
		})
	}

	resp := fiber.Map{"code": outcome.Code}
	if digest != "" {
		resp["state_digest"] = digest
	}
	switch entrypoint {
	case dispatch.EPView:
		rec, err := codec.DecodeRecord(outcome.Payload)
		if err != nil {
			return err
		}
		resp["result"] = recordJSON(rec)
	case dispatch.EPViewAdmin:
		view, err := codec.DecodeAdminView(outcome.Payload)
		if err != nil {
			return err
		}
		admins := make([]string, 0, len(view.Admins))
		for _, a := range view.Admins {
			admins = append(admins, a.String())
		}
		resp["result"] = fiber.Map{
			"admins":         admins,
			"schema_version": view.SchemaVersion,
			"records":        view.Records,
		}
	}
	return c.Status(http.StatusOK).JSON(resp)
}

func recordJSON(rec contract.UserRecord) fiber.Map {
	return fiber.Map{
		"owner":          rec.Owner.String(),
		"profile":        string(rec.Profile),
		"status":         rec.Status.String(),
		"curator":        rec.Roles.Has(contract.RoleCurator),
		"validator":      rec.Roles.Has(contract.RoleValidator),
		"schema_version": rec.SchemaVersion,
		"updated_at":     rec.UpdatedAt,
	}
}

func httpStatus(kind contract.Kind) int {
	switch kind {
	case contract.KindMalformed:
		return http.StatusBadRequest
	case contract.KindAccessDenied:
		return http.StatusForbidden
	case contract.KindStateConflict:
		return http.StatusConflict
	case contract.KindResourceExhausted:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
