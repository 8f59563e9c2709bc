// Package validate implements the validation engine: an ordered list of
// validator callbacks run over a parameter map, accumulating per-field and
// non-field errors in declaration order.
package validate

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
)

// Errors accumulates validation failures: at most one message per field
// (first-wins) plus an ordered sequence of non-field messages.
type Errors struct {
	mu        sync.Mutex
	fields    map[string]string
	fieldOrd  []string
	nonField  []string
}

// NewErrors returns an empty accumulator.
func NewErrors() *Errors {
	return &Errors{fields: make(map[string]string)}
}

// Add records msg for name. A name that already has a message is ignored —
// first-wins per field. An empty name routes to the non-field sequence.
func (e *Errors) Add(name, msg string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(name) == 0 {
		e.nonField = append(e.nonField, msg)
		return
	}
	if _, ok := e.fields[name]; ok {
		return
	}
	e.fields[name] = msg
	e.fieldOrd = append(e.fieldOrd, name)
}

// IsEmpty reports whether no field or non-field errors were recorded.
func (e *Errors) IsEmpty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.fields) == 0 && len(e.nonField) == 0
}

// Field returns the first error recorded for name, if any.
func (e *Errors) Field(name string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	msg, ok := e.fields[name]
	return msg, ok
}

// Fields returns a copy of the field errors keyed by field name. The result
// is a map and carries no order; Error lists fields in the order they first
// failed.
func (e *Errors) Fields() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]string, len(e.fields))
	for _, name := range e.fieldOrd {
		out[name] = e.fields[name]
	}
	return out
}

// NonField returns the accumulated non-field error messages, in order.
func (e *Errors) NonField() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.nonField))
	copy(out, e.nonField)
	return out
}

func (e *Errors) Error() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.fields) == 0 && len(e.nonField) == 0 {
		return "validation failed"
	}
	msg := "validation failed"
	for _, name := range e.fieldOrd {
		msg += ": " + name + "=" + e.fields[name]
	}
	for _, m := range e.nonField {
		msg += ": " + m
	}
	return msg
}

// Validator inspects params and records failures on errs. It may run
// asynchronously — see Run.
type Validator func(ctx context.Context, errs *Errors, params map[string]any) error

// ErrUndefinedParam is returned when a parameter value is the sentinel
// "undefined" marker rather than an explicit nil.
var ErrUndefinedParam = errors.New("parameter value is undefined; callers must use an explicit null")

// Undefined is the sentinel value callers must never pass for a param —
// Run synchronously rejects any param bound to it, distinct from an
// explicit nil which is permitted.
var Undefined = struct{ undefined byte }{}

// Run invokes validators in declaration order against params, accumulating
// errors from all of them, then returns nil if none resulted or the
// populated Errors otherwise. Validators run synchronously in sequence, so
// first-wins-per-field resolves predictably; a validator that needs to do
// asynchronous work does so internally and blocks Run until it settles,
// rather than Run racing several validators' Add calls against each other.
func Run(ctx context.Context, params map[string]any, validators ...Validator) (*Errors, error) {
	for name, v := range params {
		if v == Undefined {
			return nil, errors.Wrapf(ErrUndefinedParam, "param=%s", name)
		}
	}

	errs := NewErrors()
	for _, v := range validators {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if err := v(ctx, errs, params); err != nil {
			return nil, err
		}
	}

	if errs.IsEmpty() {
		return nil, nil
	}
	return errs, nil
}
