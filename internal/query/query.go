package query

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/stoewer/go-strcase"
)

// SourceLocation is a single call-site where a query is invoked.
type SourceLocation struct {
	File string
	Line int
	Col  int
}

func (l SourceLocation) String() string {
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Col)
}

// Query is the canonical record of one SQL statement: its normalized text,
// ordered parameter schema, validator references, and the call sites that
// invoke it. Two call sites producing identical text+schema always collapse
// to the same Fingerprint.
type Query struct {
	Text       string
	Params     *ParamSchema
	Validators []string
	Referenced []SourceLocation

	// Fragments lists fingerprints of fragments this query's compiled form
	// statically allows merging in at runtime via Merge.
	Fragments []string

	// Dynamic marks a server-only, runtime-constructed query produced by the
	// dynamic SQL escape hatch. Dynamic queries carry no
	// fingerprint and are never whitelist-eligible.
	Dynamic bool

	// stub marks a client-side placeholder produced by Stub: client code
	// never reconstructs real SQL, so its "sql" tag resolves to a stand-in
	// object carrying the sentinel fingerprint instead of a real hash.
	stub bool
}

// Stub returns a client-side placeholder for a tagged-template call site:
// its text is kept only for debugging and its Fingerprint always reports
// the sentinel InvalidFingerprint. The trusted (server) boundary refuses to
// execute a stub query — only the offline compiler's resolved, whitelisted
// form may ever run.
func Stub(text string) *Query {
	return &Query{Text: text, Params: NewParamSchema(), stub: true}
}

// Fingerprint computes the query's 30-character public identity. Dynamic
// queries always report the empty string; stub queries always report the
// sentinel InvalidFingerprint.
func (q *Query) Fingerprint() string {
	if q.Dynamic {
		return ""
	}
	if q.stub {
		return InvalidFingerprint
	}
	return Fingerprint(q.Text, q.Params)
}

// IsPublic reports whether the query has no parameter of type session —
// whitelist entries use this to admit the query outside an authenticated
// session.
func (q *Query) IsPublic() bool {
	for _, name := range q.Params.Names() {
		typ, _ := q.Params.Get(name)
		if typ == ParamSession {
			return false
		}
	}
	return true
}

// slotMarker is the literal text a compiled template uses to mark a
// substitution site; occurrences are consumed left to right in argument
// order, mirroring a JS tagged template's interleaved substitution slots.
const slotMarker = "${}"

// lateBoundMarker matches %{name} and %{name:type} markers written directly
// into template text for late-bound (session/env/explicit-type) parameters.
var lateBoundMarker = regexp.MustCompile(`%\{([A-Za-z_][A-Za-z0-9_.]*)(?::([A-Za-z_][A-Za-z0-9_\[\]]*))?\}`)

// Slot is one substitution argument supplied alongside a template's raw text.
// Exactly one of Fragment or SourceText is set.
type Slot struct {
	// Fragment is set when the slot expression itself resolved (recursively)
	// to another compiled sql template; its text is inlined.
	Fragment *Query
	// SourceText is the canonical rendered source of an opaque runtime
	// expression slot; a named parameter is synthesized from it.
	SourceText string
}

// Build assembles a canonical Query from a tagged template's raw text and its
// ordered substitution slots, in two passes: first slots are resolved left
// to right (inlining fragments, synthesizing positional params for opaque
// expressions), then %{name}/%{name:type} late-bound markers are rewritten
// into further positional placeholders.
func Build(rawText string, slots []Slot) (*Query, []string, error) {
	var warnings []string
	schema := NewParamSchema()
	var out strings.Builder
	placeholder := 0

	remaining := rawText
	for _, slot := range slots {
		idx := strings.Index(remaining, slotMarker)
		if idx < 0 {
			return nil, nil, errors.Newf("template has fewer substitution slots than arguments supplied")
		}
		out.WriteString(remaining[:idx])
		remaining = remaining[idx+len(slotMarker):]

		switch {
		case slot.Fragment != nil:
			inlined, _, err := inlineFragmentText(slot.Fragment.Text, placeholder)
			if err != nil {
				return nil, nil, err
			}
			placeholder += slot.Fragment.Params.Len()
			_, w := schema.MergeFragment(slot.Fragment.Params)
			warnings = append(warnings, w...)
			out.WriteString(inlined)
		default:
			placeholder++
			name := synthesizeParamName(slot.SourceText)
			if err := schema.Set(name, ParamString); err != nil {
				return nil, nil, err
			}
			out.WriteString(fmt.Sprintf("$%d", placeholder))
		}
	}
	out.WriteString(remaining)

	text, placeholder, err := rewriteLateBoundMarkers(out.String(), schema, placeholder)
	if err != nil {
		return nil, nil, err
	}

	return &Query{Text: text, Params: schema}, warnings, nil
}

// synthesizeParamName turns an opaque slot's rendered source text into a
// stable parameter name by replacing dots with underscores and then
// snake_case canonicalization, so a simple property-access expression yields
// a predictable name regardless of the call site's own naming convention
// (e.g. "user.ID" -> "user_id").
func synthesizeParamName(sourceText string) string {
	return strcase.SnakeCase(strings.ReplaceAll(sourceText, ".", "_"))
}

// inlineFragmentText renumbers a fragment's own $k placeholders so they
// continue the parent's placeholder count.
func inlineFragmentText(fragText string, parentCount int) (string, int, error) {
	re := regexp.MustCompile(`\$(\d+)`)
	var outerErr error
	result := re.ReplaceAllStringFunc(fragText, func(m string) string {
		var n int
		if _, err := fmt.Sscanf(m, "$%d", &n); err != nil {
			outerErr = err
			return m
		}
		return fmt.Sprintf("$%d", parentCount+n)
	})
	return result, parentCount, outerErr
}

// rewriteLateBoundMarkers converts %{name} / %{name:type} markers into
// further $k positional placeholders, returning the rewritten text and the
// updated running placeholder count.
func rewriteLateBoundMarkers(text string, schema *ParamSchema, placeholder int) (string, int, error) {
	var outerErr error
	result := lateBoundMarker.ReplaceAllStringFunc(text, func(m string) string {
		groups := lateBoundMarker.FindStringSubmatch(m)
		name := groups[1]
		typ := ParamString
		switch {
		case strings.HasPrefix(name, "SESSION."):
			typ = ParamSession
		case strings.HasPrefix(name, "ENV."):
			typ = ParamEnv
		case groups[2] != "":
			typ = ParamType(groups[2])
		}
		if err := schema.Set(name, typ); err != nil {
			outerErr = err
			return m
		}
		placeholder++
		return fmt.Sprintf("$%d", placeholder)
	})
	if outerErr != nil {
		return "", 0, outerErr
	}
	return result, placeholder, nil
}
