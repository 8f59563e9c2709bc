package compiler

import (
	"fmt"
	"go/ast"
	"strings"
)

// exprString renders a (typically small) expression back to source text for
// two purposes: resolution-trace messages, and synthesizing a stable
// parameter name for an opaque slot expression (e.g. "req.UserID"). It
// handles the shapes that actually occur in argument position; anything
// else falls back to a bracketed type name so traces stay readable.
func exprString(e ast.Expr) string {
	switch v := e.(type) {
	case *ast.Ident:
		return v.Name
	case *ast.SelectorExpr:
		return exprString(v.X) + "." + v.Sel.Name
	case *ast.IndexExpr:
		return exprString(v.X) + "[" + exprString(v.Index) + "]"
	case *ast.StarExpr:
		return "*" + exprString(v.X)
	case *ast.BasicLit:
		return v.Value
	case *ast.CallExpr:
		args := make([]string, 0, len(v.Args))
		for _, a := range v.Args {
			args = append(args, exprString(a))
		}
		return exprString(v.Fun) + "(" + strings.Join(args, ", ") + ")"
	case nil:
		return "<nil>"
	default:
		return fmt.Sprintf("<%T>", e)
	}
}
