package compiler

import (
	"fmt"
	"strings"
)

// Trace accumulates an indented resolution log for a single call site. It is
// cheap to build eagerly; Compile renders it for every site that fails to
// resolve, and for resolved sites only when Config.Verbose is set.
type Trace struct {
	lines []string
	depth int
}

func newTrace() *Trace { return &Trace{} }

func (t *Trace) push(format string, args ...any) {
	t.lines = append(t.lines, strings.Repeat("  ", t.depth)+fmt.Sprintf(format, args...))
}

func (t *Trace) enter(format string, args ...any) func() {
	t.push(format, args...)
	t.depth++
	return func() { t.depth-- }
}

// String renders the full indented trace, one step per line.
func (t *Trace) String() string {
	return strings.Join(t.lines, "\n")
}
