package compiler

import "go/ast"

// sqlTagIdent is the identifier a template-constructing call must use —
// the Go-native stand-in for a JS tagged template's `sql` tag.
const sqlTagIdent = "sql"

// Exported method names that mark a query-execute call site.
const (
	methodExecuteQuery  = "ExecuteQuery"
	methodPaginateQuery = "PaginateQuery"
	methodBeginTx       = "BeginTx"
)

// triggerSite is one call expression recognized as invoking a whitelisted
// query, together with the selector naming the invoked method.
type triggerSite struct {
	call *ast.CallExpr
	sel  *ast.SelectorExpr
}

// findTriggers walks file for every call matching a trigger predicate: a
// method call whose selector name is ExecuteQuery or PaginateQuery, or a
// zero-argument BeginTx call appearing as the first argument of another
// call (a server-call site, recorded for statistics only — it carries no
// query argument of its own to resolve).
func findTriggers(file *ast.File) (queries []triggerSite, serverCallSites int) {
	ast.Inspect(file, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		sel, ok := call.Fun.(*ast.SelectorExpr)
		if !ok {
			return true
		}
		switch sel.Sel.Name {
		case methodExecuteQuery, methodPaginateQuery:
			queries = append(queries, triggerSite{call: call, sel: sel})
		}
		if len(call.Args) > 0 {
			if inner, ok := call.Args[0].(*ast.CallExpr); ok {
				if innerSel, ok := inner.Fun.(*ast.SelectorExpr); ok &&
					innerSel.Sel.Name == methodBeginTx && len(inner.Args) == 0 {
					serverCallSites++
				}
			}
		}
		return true
	})
	return queries, serverCallSites
}
