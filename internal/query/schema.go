// Package query implements the canonical query/fragment/whitelist data model:
// normalized text, ordered parameter schema, fingerprinting, and runtime
// fragment merging.
package query

import (
	"fmt"
	"regexp"
	"slices"

	"github.com/cockroachdb/errors"
)

// ParamType is the type tag carried by a named query parameter.
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamInt     ParamType = "int"
	ParamNumber  ParamType = "number"
	ParamBool    ParamType = "boolean"
	ParamArray   ParamType = "T[]"
	ParamSession ParamType = "session"
	ParamEnv     ParamType = "env"
)

var paramNamePattern = regexp.MustCompile(`^\d*$`)

// ErrBadParamName is returned when a parameter name is empty or digit-only.
var ErrBadParamName = errors.New("parameter name must not be empty or digit-only")

// ParamSchema is an ordered mapping from parameter name to type tag.
// Insertion order is preserved; it is the order the parameter first appeared.
type ParamSchema struct {
	order []string
	types map[string]ParamType
}

// NewParamSchema returns an empty schema.
func NewParamSchema() *ParamSchema {
	return &ParamSchema{types: make(map[string]ParamType)}
}

// Set records name -> typ. Re-declaring the same name with the same type is a
// no-op; redeclaring with an incompatible type is an error.
func (s *ParamSchema) Set(name string, typ ParamType) error {
	if len(name) == 0 || paramNamePattern.MatchString(name) {
		return errors.Wrapf(ErrBadParamName, "got %q", name)
	}
	if existing, ok := s.types[name]; ok {
		if existing != typ {
			return errors.Newf("parameter %q redeclared with incompatible type: %s != %s", name, existing, typ)
		}
		return nil
	}
	s.order = append(s.order, name)
	s.types[name] = typ
	return nil
}

// Get returns the type tag for name, if present.
func (s *ParamSchema) Get(name string) (ParamType, bool) {
	t, ok := s.types[name]
	return t, ok
}

// Has reports whether name is already declared.
func (s *ParamSchema) Has(name string) bool {
	_, ok := s.types[name]
	return ok
}

// Names returns the declared parameter names in declaration order.
func (s *ParamSchema) Names() []string {
	return slices.Clone(s.order)
}

// Len returns the number of declared parameters.
func (s *ParamSchema) Len() int {
	return len(s.order)
}

// Clone returns an independent deep copy.
func (s *ParamSchema) Clone() *ParamSchema {
	out := NewParamSchema()
	out.order = slices.Clone(s.order)
	out.types = make(map[string]ParamType, len(s.types))
	for k, v := range s.types {
		out.types[k] = v
	}
	return out
}

// Equal reports whether two schemas declare the same names, types, and order
// — the form the fingerprint is computed over.
func (s *ParamSchema) Equal(other *ParamSchema) bool {
	if other == nil {
		return s == nil
	}
	if len(s.order) != len(other.order) {
		return false
	}
	for i, name := range s.order {
		if other.order[i] != name {
			return false
		}
		if s.types[name] != other.types[name] {
			return false
		}
	}
	return true
}

// MergeFragment folds frag's parameters into s, renaming on name collision by
// appending an increasing integer starting at 2 until the name is unique.
// Collision is keyed purely on name — even an identical name+type pair is
// renamed, since the two bindings are independent call-site values. Returns
// the rename map (old name -> new name, collisions only) and a
// human-readable warning per rename.
func (s *ParamSchema) MergeFragment(frag *ParamSchema) (renames map[string]string, warnings []string) {
	renames = make(map[string]string)
	for _, name := range frag.Names() {
		typ := frag.types[name]
		finalName := name
		if s.Has(finalName) {
			for i := 2; ; i++ {
				candidate := fmt.Sprintf("%s%d", name, i)
				if !s.Has(candidate) {
					finalName = candidate
					break
				}
			}
			warnings = append(warnings, fmt.Sprintf("fragment parameter %q renamed to %q to avoid collision with parent", name, finalName))
			renames[name] = finalName
		}
		// finalName is derived from an already-valid frag name plus a numeric
		// suffix, so Set cannot fail here.
		_ = s.Set(finalName, typ)
	}
	return renames, warnings
}
