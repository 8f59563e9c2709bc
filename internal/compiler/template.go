package compiler

import (
	"go/ast"
	"go/token"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/forbearing/sqlwhitelist/internal/query"
	"golang.org/x/tools/go/packages"
)

// ErrNotATemplate is returned when a resolved expression's outermost call
// is not a well-formed sql(...) template invocation.
var ErrNotATemplate = errors.New("not a well-formed sql(...) template call")

// extractTemplate builds a canonical Query from a resolved sql(...) call
// expression: call.Args[0] is a raw (backtick) string literal carrying the
// literal "${}" slot markers, and call.Args[1:] are the ordered slot
// expressions. A slot that is itself a nested sql(...) call is recursively
// extracted and inlined as a fragment; any other slot expression becomes an
// opaque, name-synthesized parameter.
func extractTemplate(call *ast.CallExpr, pkg *packages.Package, idx *index, tr *Trace) (*query.Query, error) {
	if len(call.Args) == 0 {
		return nil, errors.Wrap(ErrNotATemplate, "missing raw text argument")
	}
	lit, ok := call.Args[0].(*ast.BasicLit)
	if !ok || lit.Kind != token.STRING {
		return nil, errors.Wrap(ErrNotATemplate, "first argument is not a string literal")
	}
	rawText, err := strconv.Unquote(lit.Value)
	if err != nil {
		return nil, errors.Wrapf(err, "unquoting template text %s", lit.Value)
	}

	slots := make([]query.Slot, 0, len(call.Args)-1)
	for _, argExpr := range call.Args[1:] {
		if innerCall, ok := unparen(argExpr).(*ast.CallExpr); ok {
			if id, ok := innerCall.Fun.(*ast.Ident); ok && id.Name == sqlTagIdent {
				defer tr.enter("extracting nested fragment slot")()
				frag, err := extractTemplate(innerCall, pkg, idx, tr)
				if err != nil {
					return nil, errors.Wrap(err, "nested fragment")
				}
				slots = append(slots, query.Slot{Fragment: frag})
				continue
			}
		}
		slots = append(slots, query.Slot{SourceText: exprString(argExpr)})
	}

	q, warnings, err := query.Build(rawText, slots)
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		tr.push("warning: %s", w)
	}
	return q, nil
}
