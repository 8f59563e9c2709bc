package runtime

import (
	"github.com/cockroachdb/errors"
	"github.com/forbearing/sqlwhitelist/internal/wire"
	"github.com/forbearing/sqlwhitelist/metrics"
)

// Task is a tenant-registered entry point: given a context bound to the
// inbound request and its argument, it returns a result value synchronously,
// or a *Pending sentinel when its completion is chained to a subtask's
// eventual resolution (the runtime's one supported tail-await).
type Task func(ctx *Context, arg any) (any, error)

// DefaultTimerCeiling bounds the number of timers a runtime may have
// outstanding at once, absent an explicit override.
const DefaultTimerCeiling = 10

// ErrTaskNotFound is the rejection reason used when an inbox slot names a
// task neither the registered table nor the built-ins recognize.
var ErrTaskNotFound = errors.New("no such task")

// ErrTimerCeilingExceeded is returned when CreateTimer would exceed the
// runtime's concurrent-timer ceiling.
var ErrTimerCeilingExceeded = errors.New("timer ceiling exceeded")

// ErrBadSubtaskID is returned when an inbox slot's subtask id cannot be
// interpreted as an unsigned 32-bit integer.
var ErrBadSubtaskID = errors.New("malformed subtask id")

// Runtime is one tenant's sandboxed execution core: a frozen clock and
// reseeded PRNG shared by every task invoked within a tick, a subtask
// registry spanning ticks, and the two-tier (registered table, then
// built-ins) dispatch table the host's inbox slots are matched against.
type Runtime struct {
	Clock    *Clock
	PRNG     *PRNG
	Registry *Registry

	tasks    map[string]Task
	builtins map[string]Task

	timerCeiling int
	activeTimers int

	outbox *Outbox
}

// New returns a Runtime with its subtask id counter seeded from seed and
// its built-in tasks (__init, __cancel) pre-registered.
func New(seed uint32) *Runtime {
	rt := &Runtime{
		Clock:        &Clock{},
		PRNG:         &PRNG{},
		Registry:     NewRegistry(seed),
		tasks:        make(map[string]Task),
		timerCeiling: DefaultTimerCeiling,
	}
	rt.builtins = map[string]Task{
		"__init":   defaultInit,
		"__cancel": rt.builtinCancel,
	}
	return rt
}

// Register binds name in the user-task table, consulted before built-ins.
func (rt *Runtime) Register(name string, task Task) { rt.tasks[name] = task }

// Builtins exposes the built-in dispatch table for override or inspection,
// distinct from Register's user-task table.
func (rt *Runtime) Builtins() map[string]Task { return rt.builtins }

// WithTimerCeiling overrides the runtime's concurrent-timer limit.
func (rt *Runtime) WithTimerCeiling(n int) *Runtime {
	rt.timerCeiling = n
	return rt
}

func defaultInit(_ *Context, _ any) (any, error) {
	return map[string]any{"ready": true}, nil
}

func (rt *Runtime) builtinCancel(_ *Context, arg any) (any, error) {
	requestID, ok := asUint32(arg)
	if !ok {
		return nil, errors.Wrapf(ErrBadSubtaskID, "__cancel arg=%v", arg)
	}
	rt.Registry.CancelRequest(requestID)
	return nil, nil
}

// RunTasks executes one tick: it installs a fresh Outbox starting at
// outboxLen, freezes the clock and reseeds the PRNG from nowMillis, and
// dispatches every inbox slot in order — either as a subtask resumption or
// a new task invocation — returning the outbox's final tail for the host
// to read back.
func (rt *Runtime) RunTasks(inbox []wire.InboxSlot, outboxLen int, nowMillis int64) int {
	rt.outbox = NewOutbox(outboxLen)
	rt.Clock.Freeze(nowMillis)
	rt.PRNG.Reseed(nowMillis)

	for _, slot := range inbox {
		if slot.IsSubtaskCompletion() {
			rt.resumeTask(slot)
		} else {
			rt.dispatchTask(slot)
		}
	}

	if metrics.TenantTicksTotal != nil {
		metrics.TenantTicksTotal.Inc()
	}
	if metrics.TenantSubtasksActive != nil {
		metrics.TenantSubtasksActive.Set(float64(rt.Registry.Count()))
	}

	return rt.outbox.Tail()
}

// dispatchTask resolves functionName against the user-task table, then the
// built-ins, constructs a fresh Context bound to requestId, and invokes it.
func (rt *Runtime) dispatchTask(slot wire.InboxSlot) {
	requestID := slot.RequestID()
	ctx := &Context{rt: rt, requestID: requestID}

	name, _ := slot.NameOrSubtaskID.(string)
	task, ok := rt.tasks[name]
	if !ok {
		task, ok = rt.builtins[name]
	}
	if !ok {
		rt.emitCallError(requestID, errors.Wrapf(ErrTaskNotFound, "task=%q", name))
		return
	}

	result, err := task(ctx, slot.Argument)
	if err != nil {
		rt.emitCallError(requestID, err)
		return
	}
	if _, pending := result.(*Pending); pending {
		// Completion is chained to a subtask's resolve/reject, already
		// wired when that subtask was created (ExecuteQuery/Fetch).
		return
	}
	rt.emitCallResult(requestID, result)
	ctx.detach()
}

// resumeTask looks up subtaskId and resolves or rejects it per the flags
// carried in the slot's request id. A miss or request-id mismatch is
// reported as a Log message, never a panic.
func (rt *Runtime) resumeTask(slot wire.InboxSlot) {
	requestID := slot.RequestID()
	subtaskID, ok := asUint32(slot.NameOrSubtaskID)
	if !ok {
		rt.emitLog(errors.Wrapf(ErrBadSubtaskID, "resumeTask arg=%v", slot.NameOrSubtaskID).Error())
		return
	}
	reject := slot.RequestIDWithFlags&wire.Reject != 0
	if warning, ok := rt.Registry.Resume(requestID, subtaskID, reject, slot.Argument); !ok {
		rt.emitLog(warning)
	}
}

// emitQuery allocates a promise subtask whose resolve/reject chain directly
// to CallResult/CallError against ctx's request, then writes the Query
// message describing msg.
func (rt *Runtime) emitQuery(ctx *Context, msg QueryMessage) (*Pending, error) {
	requestID := ctx.requestID
	st := rt.Registry.NewPromiseSubtask(requestID,
		func(data any) { rt.emitCallResult(requestID, data); ctx.detach() },
		func(err error) { rt.emitCallError(requestID, err); ctx.detach() },
	)
	rt.outbox.outTask(wire.MsgQuery, requestID, int32(st.ID), msg, nil)
	return &Pending{SubtaskID: st.ID}, nil
}

// emitFetch allocates a promise subtask chained the same way as emitQuery,
// and writes the Fetch message describing req.
func (rt *Runtime) emitFetch(ctx *Context, req any) (*Pending, error) {
	requestID := ctx.requestID
	st := rt.Registry.NewPromiseSubtask(requestID,
		func(data any) { rt.emitCallResult(requestID, data); ctx.detach() },
		func(err error) { rt.emitCallError(requestID, err); ctx.detach() },
	)
	rt.outbox.outTask(wire.MsgFetch, requestID, int32(st.ID), req, nil)
	return &Pending{SubtaskID: st.ID}, nil
}

// CreateTimer registers a callback subtask against ctx's request and emits
// a CreateTimer message carrying milliseconds (negated here when interval is
// true). onFire is invoked — possibly repeatedly, for an interval timer
// — each time the host resumes the returned subtask id. Timers are a side
// effect, not a tail-await: the task that calls CreateTimer is expected to
// return its own result separately.
func (c *Context) CreateTimer(milliseconds int64, interval bool, onFire func(data any)) (uint32, error) {
	rt := c.rt
	if rt.activeTimers >= rt.timerCeiling {
		return 0, errors.Wrapf(ErrTimerCeilingExceeded, "ceiling=%d", rt.timerCeiling)
	}
	st := rt.Registry.NewCallbackSubtask(c.requestID, onFire)
	rt.activeTimers++

	ms := milliseconds
	if interval {
		ms = -ms
	}
	rt.outbox.outTask(wire.MsgCreateTimer, c.requestID, int32(st.ID), ms, nil)
	return st.ID, nil
}

// DeleteTimer removes a previously created timer's callback subtask and
// emits a DeleteTimer message so the host stops scheduling it.
func (c *Context) DeleteTimer(subtaskID uint32) {
	rt := c.rt
	if _, ok := rt.Registry.Get(subtaskID); ok {
		rt.Registry.Delete(subtaskID)
		rt.activeTimers--
	}
	rt.outbox.outTask(wire.MsgDeleteTimer, c.requestID, int32(subtaskID), nil, nil)
}

func (rt *Runtime) emitCallResult(requestID uint32, data any) {
	rt.outbox.outTask(wire.MsgCallResult, requestID, -1, data, nil)
}

func (rt *Runtime) emitCallError(requestID uint32, err error) {
	rt.outbox.outTask(wire.MsgCallError, requestID, -1, err.Error(), nil)
}

func (rt *Runtime) emitLog(msg string) {
	rt.outbox.outTask(wire.MsgLog, 0, -1, msg, nil)
}

func asUint32(v any) (uint32, bool) {
	switch n := v.(type) {
	case uint32:
		return n, true
	case int:
		return uint32(n), true
	case int32:
		return uint32(n), true
	case int64:
		return uint32(n), true
	case uint64:
		return uint32(n), true
	case float64:
		return uint32(n), true
	default:
		return 0, false
	}
}
