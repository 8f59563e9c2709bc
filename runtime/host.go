package runtime

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/forbearing/sqlwhitelist/internal/dbexec"
	"github.com/forbearing/sqlwhitelist/internal/query"
	"github.com/forbearing/sqlwhitelist/internal/wire"
	"github.com/forbearing/sqlwhitelist/types"
)

// DBHost is a minimal in-process reference host: given a Query message
// emitted onto a tenant's Outbox, it recovers the statement's canonical
// text and ordered parameter names from a whitelist (or runs dynamic text
// verbatim), executes it through a dbexec.Executor, and produces the
// Resume/Reject inbox slot that feeds the outcome back into the tenant's
// next tick. A production host process sits outside this module's scope;
// this exists to drive the query/runtime/dbexec boundary end to end.
type DBHost struct {
	exec      *dbexec.Executor
	whitelist *query.Whitelist
	logger    types.Logger
}

// NewDBHost pairs an executor with the whitelist used to recover a
// fingerprinted query's text and declared parameter order.
func NewDBHost(exec *dbexec.Executor, whitelist *query.Whitelist) *DBHost {
	return &DBHost{exec: exec, whitelist: whitelist}
}

// WithLogger attaches l, which receives a warning for every query that
// fails to resolve or execute.
func (h *DBHost) WithLogger(l types.Logger) *DBHost {
	h.logger = l
	return h
}

// Execute runs msg's statement and returns the inbox slot that resumes
// subtaskID on requestID: a Resume slot carrying row maps on success, or a
// Reject slot carrying the error message on failure.
func (h *DBHost) Execute(ctx context.Context, requestID, subtaskID uint32, msg QueryMessage) wire.InboxSlot {
	text, names, err := h.resolve(msg)
	if err != nil {
		if h.logger != nil {
			h.logger.Warnw("query resolution failed", "requestId", requestID, "subtaskId", subtaskID, "error", err)
		}
		return rejectSlot(requestID, subtaskID, err)
	}

	args := make([]any, len(names))
	for i, name := range names {
		args[i] = msg.Params[name]
	}

	rr, err := h.exec.Query(ctx, text, args...)
	if err != nil {
		if h.logger != nil {
			h.logger.Warnw("query execution failed", "requestId", requestID, "subtaskId", subtaskID, "error", err)
		}
		return rejectSlot(requestID, subtaskID, err)
	}
	return wire.InboxSlot{
		RequestIDWithFlags: requestID | wire.Resume,
		NameOrSubtaskID:    subtaskID,
		Argument:           rr.AsMaps(),
	}
}

func (h *DBHost) resolve(msg QueryMessage) (text string, paramNames []string, err error) {
	if msg.Dynamic {
		return msg.Text, nil, nil
	}
	entry, ok := h.whitelist.Lookup(msg.Fingerprint)
	if !ok {
		return "", nil, errors.Newf("query fingerprint %q not in whitelist", msg.Fingerprint)
	}
	names := make([]string, len(entry.Params))
	for i, p := range entry.Params {
		names[i] = p.Name
	}
	return entry.Text, names, nil
}

func rejectSlot(requestID, subtaskID uint32, err error) wire.InboxSlot {
	return wire.InboxSlot{
		RequestIDWithFlags: requestID | wire.Reject,
		NameOrSubtaskID:    subtaskID,
		Argument:           err.Error(),
	}
}
