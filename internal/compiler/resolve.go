package compiler

import (
	"go/ast"
	"go/token"
	"go/types"

	"golang.org/x/tools/go/packages"
)

// exprEntry records where an identifier's value came from: the initializer
// expression and the package (hence the *types.Info) it must be interpreted
// against — resolution may cross a package boundary via a qualified
// selector, and each hop needs its own type information.
type exprEntry struct {
	expr ast.Expr
	pkg  *packages.Package
}

// index is the whole-program symbol table the resolver walks: the
// initializer or assigned value of every variable (at any scope, including
// func-literal bindings), and every top-level function declaration, keyed by
// its *types.Object identity.
type index struct {
	vars  map[types.Object]exprEntry
	funcs map[types.Object]*ast.FuncDecl
	pkgs  map[string]*packages.Package // by PkgPath
}

func buildIndex(pkgs []*packages.Package) *index {
	idx := &index{
		vars:  make(map[types.Object]exprEntry),
		funcs: make(map[types.Object]*ast.FuncDecl),
		pkgs:  make(map[string]*packages.Package),
	}
	for _, pkg := range pkgs {
		idx.pkgs[pkg.PkgPath] = pkg
		for _, file := range pkg.Syntax {
			ast.Inspect(file, func(n ast.Node) bool {
				switch node := n.(type) {
				case *ast.ValueSpec:
					for i, name := range node.Names {
						if name.Name == "_" || i >= len(node.Values) {
							continue
						}
						if obj := pkg.TypesInfo.Defs[name]; obj != nil {
							idx.vars[obj] = exprEntry{expr: node.Values[i], pkg: pkg}
						}
					}
				case *ast.AssignStmt:
					if node.Tok != token.DEFINE && node.Tok != token.ASSIGN {
						return true
					}
					for i, lhs := range node.Lhs {
						id, ok := lhs.(*ast.Ident)
						if !ok || i >= len(node.Rhs) {
							continue
						}
						obj := pkg.TypesInfo.Defs[id]
						if obj == nil {
							obj = pkg.TypesInfo.Uses[id]
						}
						if obj != nil {
							idx.vars[obj] = exprEntry{expr: node.Rhs[i], pkg: pkg}
						}
					}
				case *ast.FuncDecl:
					if node.Recv == nil {
						if obj := pkg.TypesInfo.Defs[node.Name]; obj != nil {
							idx.funcs[obj] = node
						}
					}
				}
				return true
			})
		}
	}
	return idx
}

// resolvedTemplate is an inline `sql(...)`-tagged call expression located at
// the end of an alias/import/re-export chain.
type resolvedTemplate struct {
	call *ast.CallExpr
	pkg  *packages.Package
}

// resolveQueryExpr follows an unbroken chain of same-file aliasing, simple
// variable assignment, imported-namespace property access, and re-export,
// landing on an inline call to an identifier literally named "sql". It
// never crosses a function boundary, a conditional expression, a mutation,
// or a dynamic property access — any of those ends the chain in failure.
func resolveQueryExpr(pkg *packages.Package, expr ast.Expr, idx *index, tr *Trace) (*resolvedTemplate, bool) {
	expr = unparen(expr)

	switch e := expr.(type) {
	case *ast.CallExpr:
		if id, ok := e.Fun.(*ast.Ident); ok && id.Name == sqlTagIdent {
			tr.push("resolved to sql(...) template call")
			return &resolvedTemplate{call: e, pkg: pkg}, true
		}
		tr.push("call expression is not an sql(...) tagged template (fun=%s)", exprString(e.Fun))
		return nil, false

	case *ast.Ident:
		obj := pkg.TypesInfo.Uses[e]
		if obj == nil {
			obj = pkg.TypesInfo.Defs[e]
		}
		if obj == nil {
			tr.push("identifier %q has no resolved object", e.Name)
			return nil, false
		}
		entry, ok := idx.vars[obj]
		if !ok {
			tr.push("identifier %q has no traceable initializer", e.Name)
			return nil, false
		}
		defer tr.enter("following %q -> initializer in %s", e.Name, entry.pkg.PkgPath)()
		return resolveQueryExpr(entry.pkg, entry.expr, idx, tr)

	case *ast.SelectorExpr:
		pkgIdent, ok := e.X.(*ast.Ident)
		if !ok {
			tr.push("dynamic property access %s.%s cannot be traced", exprString(e.X), e.Sel.Name)
			return nil, false
		}
		if pn, ok := pkg.TypesInfo.Uses[pkgIdent].(*types.PkgName); ok {
			target, ok := idx.pkgs[pn.Imported().Path()]
			if !ok {
				tr.push("imported package %q was not loaded for analysis", pn.Imported().Path())
				return nil, false
			}
			obj := target.Types.Scope().Lookup(e.Sel.Name)
			if obj == nil {
				tr.push("export %q not found in package %s", e.Sel.Name, target.PkgPath)
				return nil, false
			}
			entry, ok := idx.vars[obj]
			if !ok {
				tr.push("export %q has no traceable initializer", e.Sel.Name)
				return nil, false
			}
			defer tr.enter("following %s.%s -> export initializer", pkgIdent.Name, e.Sel.Name)()
			return resolveQueryExpr(entry.pkg, entry.expr, idx, tr)
		}
		tr.push("%s.%s is not an imported-namespace access", exprString(e.X), e.Sel.Name)
		return nil, false

	default:
		tr.push("expression %s is not a traceable reference (conditional, mutation, or call boundary)", exprString(expr))
		return nil, false
	}
}

// resolveValidator follows the same chain rules as resolveQueryExpr but
// must land on an exported top-level function declaration or an exported
// top-level variable bound to a function literal; a closure captured from
// an enclosing scope is rejected.
func resolveValidator(pkg *packages.Package, expr ast.Expr, idx *index, tr *Trace) (name string, ok bool) {
	expr = unparen(expr)

	switch e := expr.(type) {
	case *ast.Ident:
		obj := pkg.TypesInfo.Uses[e]
		if obj == nil {
			obj = pkg.TypesInfo.Defs[e]
		}
		if obj == nil {
			tr.push("validator identifier %q has no resolved object", e.Name)
			return "", false
		}
		if fn, ok := idx.funcs[obj]; ok {
			if !fn.Name.IsExported() {
				tr.push("validator func %q is not exported", fn.Name.Name)
				return "", false
			}
			tr.push("validator resolved to exported func %s", fn.Name.Name)
			return fn.Name.Name, true
		}
		if entry, ok := idx.vars[obj]; ok {
			if !e.IsExported() && !obj.Exported() {
				tr.push("validator binding %q is not exported", e.Name)
				return "", false
			}
			if _, isLit := unparen(entry.expr).(*ast.FuncLit); isLit {
				tr.push("validator resolved to exported func-literal binding %s", e.Name)
				return e.Name, true
			}
			defer tr.enter("following validator %q -> initializer", e.Name)()
			return resolveValidator(entry.pkg, entry.expr, idx, tr)
		}
		tr.push("validator identifier %q has no traceable declaration", e.Name)
		return "", false

	case *ast.SelectorExpr:
		pkgIdent, ok := e.X.(*ast.Ident)
		if !ok {
			tr.push("dynamic validator property access cannot be traced")
			return "", false
		}
		pn, ok := pkg.TypesInfo.Uses[pkgIdent].(*types.PkgName)
		if !ok {
			tr.push("%s.%s is not an imported-namespace access", exprString(e.X), e.Sel.Name)
			return "", false
		}
		target, ok := idx.pkgs[pn.Imported().Path()]
		if !ok {
			tr.push("imported package %q was not loaded for analysis", pn.Imported().Path())
			return "", false
		}
		obj := target.Types.Scope().Lookup(e.Sel.Name)
		if obj == nil {
			tr.push("export %q not found in package %s", e.Sel.Name, target.PkgPath)
			return "", false
		}
		if fn, ok := idx.funcs[obj]; ok {
			return fn.Name.Name, true
		}
		if entry, ok := idx.vars[obj]; ok {
			defer tr.enter("following %s.%s -> export initializer", pkgIdent.Name, e.Sel.Name)()
			return resolveValidator(entry.pkg, entry.expr, idx, tr)
		}
		tr.push("export %q has no traceable declaration", e.Sel.Name)
		return "", false

	default:
		tr.push("validator expression %s is not a traceable reference", exprString(expr))
		return "", false
	}
}

func unparen(e ast.Expr) ast.Expr {
	for {
		p, ok := e.(*ast.ParenExpr)
		if !ok {
			return e
		}
		e = p.X
	}
}
