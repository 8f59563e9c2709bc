package runtime

import (
	"context"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/forbearing/sqlwhitelist/internal/query"
	"github.com/forbearing/sqlwhitelist/internal/validate"
)

// InvalidFingerprint is the sentinel fingerprint value a runtime-constructed
// (uncompiled) query carries; executing one is always refused.
const InvalidFingerprint = query.InvalidFingerprint

// ErrUncompiledQuery is raised on any attempt to execute a query whose
// fingerprint is the sentinel value — it indicates the compiler did not
// recognize the call site.
var ErrUncompiledQuery = errors.New("query is not compiled; its call site was not recognized by the whitelist compiler")

// QueryMessage is the payload a Context.ExecuteQuery/Commit/Rollback call
// emits as an outbound Query message: the query's identity (fingerprint,
// or literal text when dynamic) plus its prepared parameter bundle.
type QueryMessage struct {
	Fingerprint string
	Text        string // populated only when Dynamic
	Dynamic     bool
	Params      map[string]any
	Fragments   []string
}

// Pending is returned by a Context host-call method in place of a
// synchronous result: the call has been dispatched as a subtask and its
// eventual resolution (a later tick's inbox resumption) supplies the real
// value. A task function that returns *Pending from its top level chains
// its own CallResult/CallError to that subtask's resolution — this is the
// one level of await the port models directly; see the package doc for
// why deeper chains are out of scope.
type Pending struct {
	SubtaskID uint32
}

// Context is handed to each task function invocation: it exposes
// ExecuteQuery/Commit/Rollback/Fetch and carries a closure-private request
// id that tenant code cannot mutate. On terminal disposition the context
// is detached — id() then reports zero and further host calls become
// zero-id messages the host can correlate to nothing.
type Context struct {
	rt        *Runtime
	requestID uint32
	detached  bool
}

// ID returns the context's request id, or zero once detached.
func (c *Context) ID() uint32 {
	if c.detached {
		return 0
	}
	return c.requestID
}

// detach zeroes the context's id, capturing the original value once for
// the caller that triggered detachment (a terminal resolve/reject).
func (c *Context) detach() uint32 {
	id := c.requestID
	c.detached = true
	return id
}

// ExecuteQuery refuses sentinel/uncompiled queries, merges q's compiled
// parameter schema with the caller-supplied params, runs validators, and —
// on success — allocates a promise subtask and emits a Query message
// carrying the query's fingerprint (or literal text, for a dynamic query)
// and the prepared parameter bundle.
func (c *Context) ExecuteQuery(q *query.Query, params map[string]any, validators ...validate.Validator) (*Pending, error) {
	if !q.Dynamic && q.Fingerprint() == InvalidFingerprint {
		return nil, ErrUncompiledQuery
	}

	merged := make(map[string]any, len(params)+q.Params.Len())
	for _, name := range q.Params.Names() {
		if v, ok := params[name]; ok {
			merged[name] = v
		}
	}
	for k, v := range params {
		merged[k] = v
	}

	if len(validators) > 0 {
		errs, err := validate.Run(context.Background(), merged, validators...)
		if err != nil {
			return nil, err
		}
		if errs != nil {
			return nil, errs
		}
	}

	msg := QueryMessage{Params: merged, Fragments: q.Fragments}
	if q.Dynamic {
		msg.Dynamic = true
		msg.Text = q.Text
	} else {
		msg.Fingerprint = q.Fingerprint()
	}

	return c.rt.emitQuery(c, msg)
}

// Commit emits a Query message for the literal "commit" statement against
// the context's open transaction.
func (c *Context) Commit() (*Pending, error) {
	return c.rt.emitQuery(c, QueryMessage{Dynamic: true, Text: "commit"})
}

// Rollback emits a Query message for the literal "rollback" statement.
func (c *Context) Rollback() (*Pending, error) {
	return c.rt.emitQuery(c, QueryMessage{Dynamic: true, Text: "rollback"})
}

// Fetch delegates to the host's fetch collaborator, injecting a
// RequestId header so the host can correlate this sub-fetch back to the
// tenant request that issued it.
func (c *Context) Fetch(req *http.Request) (*Pending, error) {
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	req.Header.Set("RequestId", subtaskKey(c.ID()))
	return c.rt.emitFetch(c, req)
}
