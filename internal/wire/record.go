package wire

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// EventType identifies a server-push record that carries no matching
// request id.
type EventType string

const (
	EventVersionChange EventType = "V"
	EventDataChange    EventType = "D"
)

// Record is one inbound JSON record: either a response correlated to a
// pending request by ID, or — when ID has no matching entry in the request
// table — a server-initiated push identified by EventType.
type Record struct {
	ID        uint32          `json:"id"`
	Session   string          `json:"session,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	ErrorType string          `json:"errorType,omitempty"`
	EventType EventType       `json:"eventType,omitempty"`
}

// IsError reports whether the record carries a rejection rather than a
// result.
func (r Record) IsError() bool { return r.Error != "" }

// IsPush reports whether r looks like a server push: it carries an
// eventType and no error.
func (r Record) IsPush() bool { return r.EventType != "" && !r.IsError() }

// RowResult is the sentinel envelope a query result's raw JSON may carry:
// columns, rows, and optional metadata. ParseResult recognizes this shape
// the way a configurable JSON reviver would and rehydrates it into a typed
// iterator; any other JSON shape is returned to the caller untouched.
type RowResult struct {
	Columns    []string `json:"__C_"`
	Rows       [][]any  `json:"__R_"`
	Additional any      `json:"__A_,omitempty"`
}

// looksLikeRowResult is a cheap structural probe used before attempting the
// strict unmarshal, so that a non-row-shaped result doesn't produce a
// spurious decode error.
func looksLikeRowResult(raw json.RawMessage) bool {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	_, hasCols := probe["__C_"]
	_, hasRows := probe["__R_"]
	return hasCols && hasRows
}

// ParseResult decodes record's Result field, recognizing the row-envelope
// sentinel and returning a *RowResult when it matches, or the raw decoded
// JSON value otherwise.
func ParseResult(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	if looksLikeRowResult(raw) {
		var rr RowResult
		if err := json.Unmarshal(raw, &rr); err != nil {
			return nil, errors.Wrap(err, "decoding row-result envelope")
		}
		return &rr, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, errors.Wrap(err, "decoding result")
	}
	return v, nil
}

// AsMaps returns an iterator-friendly slice of per-row column maps, in
// __R_ order with keys in __C_ order.
func (rr *RowResult) AsMaps() []map[string]any {
	out := make([]map[string]any, 0, len(rr.Rows))
	for _, row := range rr.Rows {
		m := make(map[string]any, len(rr.Columns))
		for i, col := range rr.Columns {
			if i < len(row) {
				m[col] = row[i]
			}
		}
		out = append(out, m)
	}
	return out
}

// ParseRecord decodes a single inbound text frame's JSON payload into a
// Record.
func ParseRecord(data []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, errors.Wrap(err, "decoding inbound record")
	}
	return rec, nil
}
