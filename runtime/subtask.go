package runtime

import (
	"strconv"
	"sync"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// SubtaskKind distinguishes a promise-backed subtask (has both a resolve
// and a reject handle, single-shot) from a bare-callback subtask used by
// timers (resolve only, may re-fire for intervals).
type SubtaskKind int

const (
	KindPromise SubtaskKind = iota
	KindCallback
)

// Subtask is a pending continuation inside the tenant runtime: it has
// exactly one terminal transition (resolve, reject, or cancel-by-request),
// except interval-timer callback subtasks, which persist across
// resolutions until explicitly deleted.
type Subtask struct {
	ID        uint32
	RequestID uint32 // masked request id this subtask's context belongs to
	Kind      SubtaskKind
	Resolve   func(data any)
	Reject    func(err error)

	// UntrustedSubtaskID and UntrustedRequestID are advisory copies exposed
	// to tenant code for best-effort logging only — tenant code may read
	// and rewrite them, so the registry never trusts them back.
	UntrustedSubtaskID  uint32
	UntrustedRequestID  uint32
}

// subtaskKey renders id as the cmap string key.
func subtaskKey(id uint32) string { return strconv.FormatUint(uint64(id), 10) }

// Registry tracks outstanding subtasks by 31-bit id, counting up from the
// seed passed to NewRegistry and strictly monotonic thereafter; ids are
// never reused. The registry does not pick a random seed itself.
type Registry struct {
	mu      sync.Mutex
	nextID  uint32
	entries cmap.ConcurrentMap[string, *Subtask]
}

// NewRegistry returns a registry whose id counter starts at seed (masked
// to 31 bits).
func NewRegistry(seed uint32) *Registry {
	return &Registry{
		nextID:  seed & 0x7fffffff,
		entries: cmap.New[*Subtask](),
	}
}

func (r *Registry) allocID() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID = (r.nextID + 1) & 0x7fffffff
	return r.nextID
}

// NewPromiseSubtask records a fresh promise-backed subtask bound to
// requestID, with resolve/reject handles supplied by the caller (typically
// wired to a chained host-message emission or a tenant-visible promise).
func (r *Registry) NewPromiseSubtask(requestID uint32, resolve func(any), reject func(error)) *Subtask {
	id := r.allocID()
	st := &Subtask{
		ID: id, RequestID: requestID, Kind: KindPromise,
		Resolve: resolve, Reject: reject,
		UntrustedSubtaskID: id, UntrustedRequestID: requestID,
	}
	r.entries.Set(subtaskKey(id), st)
	return st
}

// NewCallbackSubtask records a fire-and-forget callback subtask (timers):
// reject is always nil, so Resumption leaves the entry in place to allow
// interval timers to re-fire.
func (r *Registry) NewCallbackSubtask(requestID uint32, resolve func(any)) *Subtask {
	id := r.allocID()
	st := &Subtask{
		ID: id, RequestID: requestID, Kind: KindCallback,
		Resolve: resolve, UntrustedSubtaskID: id, UntrustedRequestID: requestID,
	}
	r.entries.Set(subtaskKey(id), st)
	return st
}

// Count returns the number of outstanding subtasks currently registered.
func (r *Registry) Count() int { return r.entries.Count() }

// Delete removes id from the registry.
func (r *Registry) Delete(id uint32) { r.entries.Remove(subtaskKey(id)) }

// Get returns the subtask recorded under id, if any.
func (r *Registry) Get(id uint32) (*Subtask, bool) {
	return r.entries.Get(subtaskKey(id))
}

// Resume resolves or rejects the subtask identified by subtaskID: a miss is
// normal (a timer cancelled after the host already queued its tick) and is
// reported via ok=false without error. A requestID mismatch against the
// subtask's own recorded request (masked) is likewise reported, not
// panicked — a stale or reused id across tenant restarts must never crash
// the tick.
func (r *Registry) Resume(requestID uint32, subtaskID uint32, reject bool, data any) (warning string, ok bool) {
	st, found := r.Get(subtaskID)
	if !found {
		return "resumeTask: no such subtask (normal after cancellation)", false
	}
	if st.RequestID != requestID {
		return "resumeTask: request id mismatch; stale or reused subtask id", false
	}

	if reject {
		if st.Reject != nil {
			st.Reject(&SubtaskError{Data: data})
		}
	} else {
		st.Resolve(data)
	}

	if st.Kind == KindPromise {
		r.Delete(subtaskID)
	}
	return "", true
}

// CancelRequest rejects and removes every promise-backed subtask belonging
// to requestID; callback subtasks (timers) are infrastructure, not part of
// the request, and are left alone.
func (r *Registry) CancelRequest(requestID uint32) {
	var toDelete []string
	r.entries.IterCb(func(key string, st *Subtask) {
		if st.RequestID != requestID || st.Kind != KindPromise {
			return
		}
		if st.Reject != nil {
			st.Reject(ErrRequestCancelled)
		}
		toDelete = append(toDelete, key)
	})
	for _, key := range toDelete {
		r.entries.Remove(key)
	}
}

// SubtaskError wraps the data payload a rejected subtask carries.
type SubtaskError struct{ Data any }

func (e *SubtaskError) Error() string { return "subtask rejected" }

// ErrRequestCancelled is the rejection reason CancelRequest uses for every
// promise-backed subtask it tears down.
var ErrRequestCancelled = &SubtaskError{Data: "request cancelled"}
