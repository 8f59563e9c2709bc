package query

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// mergeSlot is the literal marker a parent query may place in its text to
// opt into an explicit fragment-insertion point. Parents without the marker
// simply have fragments appended, space-separated, in argument order.
const mergeSlot = "%{merge}"

// ErrFragmentNotAllowed is returned when Merge is asked to splice in a
// fragment whose fingerprint is not in the parent's declared allow-list.
var ErrFragmentNotAllowed = errors.New("fragment fingerprint not allowed for this parent")

// Merge composes a parent query with zero or more fragments into one
// executable statement, preserving whitelist safety: every non-dynamic
// fragment's fingerprint must appear in parent.Fragments. Parameters merge
// by name with collision renaming (ParamSchema.MergeFragment); renumbered
// positional placeholders follow. If any participant is dynamic (runtime
// server-only SQL, see Unescaped), the result is dynamic too and the
// fingerprint is stripped.
func Merge(parent *Query, fragments ...*Query) (*Query, []string, error) {
	if parent == nil {
		return nil, nil, errors.New("parent query is nil")
	}

	anyDynamic := parent.Dynamic
	for _, f := range fragments {
		if f.Dynamic {
			anyDynamic = true
			continue
		}
		if !containsFingerprint(parent.Fragments, f.Fingerprint()) {
			return nil, nil, errors.Wrapf(ErrFragmentNotAllowed, "parent=%s fragment=%s", parent.Fingerprint(), f.Fingerprint())
		}
	}

	schema := parent.Params.Clone()
	var warnings []string
	placeholder := schema.Len()

	var parts []string
	for _, f := range fragments {
		inlined, _, err := inlineFragmentText(f.Text, placeholder)
		if err != nil {
			return nil, nil, err
		}
		placeholder += f.Params.Len()
		_, w := schema.MergeFragment(f.Params)
		warnings = append(warnings, w...)
		parts = append(parts, inlined)
	}

	var text string
	if strings.Contains(parent.Text, mergeSlot) {
		text = strings.Replace(parent.Text, mergeSlot, strings.Join(parts, " "), 1)
	} else if len(parts) > 0 {
		text = parent.Text + " " + strings.Join(parts, " ")
	} else {
		text = parent.Text
	}

	merged := &Query{
		Text:    text,
		Params:  schema,
		Dynamic: anyDynamic,
	}
	if !anyDynamic {
		merged.Validators = parent.Validators
		merged.Referenced = parent.Referenced
		merged.Fragments = parent.Fragments
	}
	return merged, warnings, nil
}

func containsFingerprint(set []string, fp string) bool {
	for _, s := range set {
		if s == fp {
			return true
		}
	}
	return false
}
