// Package compiler implements the query whitelist compiler: it loads a Go
// source tree, walks every file for query-execute call sites, resolves the
// query template and validator arguments through same-file aliasing,
// variable assignment, and cross-package exported references, and emits a
// whitelist keyed by stable query fingerprint.
package compiler

import (
	"fmt"
	"go/ast"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/forbearing/sqlwhitelist/internal/query"
	"github.com/forbearing/sqlwhitelist/metrics"
	"github.com/samber/lo"
	"golang.org/x/tools/go/packages"
)

// Config controls one compilation run.
type Config struct {
	// Dir is the module-relative (or absolute) source root to load.
	Dir string
	// Verbose causes every call site's resolution trace to be returned in
	// Result.Traces, not just the traces for sites that failed to resolve.
	Verbose bool
}

// Result is the outcome of a compilation pass.
type Result struct {
	Whitelist       *query.Whitelist
	ResolvedCount   int
	UnresolvedCount int
	ServerCallSites int
	Warnings        []string
	// Traces holds one rendered resolution trace per call site: always for
	// unresolved sites, additionally for resolved ones when Config.Verbose.
	Traces []string
}

// Success reports whether every discovered call site resolved.
func (r *Result) Success() bool { return r.UnresolvedCount == 0 }

const loadMode = packages.NeedName | packages.NeedFiles | packages.NeedImports |
	packages.NeedDeps | packages.NeedTypes | packages.NeedSyntax | packages.NeedTypesInfo

// Compile loads the Go package tree rooted at cfg.Dir and produces a
// whitelist from every resolvable query-execute call site. The tree still
// "compiles" — in the sense that this function still returns a whitelist —
// even when some sites are unresolved; callers decide whether an
// incomplete whitelist is acceptable (the CLI exits 1 when it isn't).
func Compile(cfg Config) (*Result, error) {
	pkgs, err := packages.Load(&packages.Config{Mode: loadMode, Dir: cfg.Dir}, "./...")
	if err != nil {
		return nil, errors.Wrap(err, "loading source tree")
	}
	if packages.PrintErrors(pkgs) > 0 {
		return nil, errors.New("source tree has one or more package errors; see above")
	}

	idx := buildIndex(pkgs)
	whitelist := query.NewWhitelist()
	result := &Result{Whitelist: whitelist}

	for _, pkg := range pkgs {
		for _, file := range pkg.Syntax {
			sites, serverCallSites := findTriggers(file)
			result.ServerCallSites += serverCallSites

			for _, site := range sites {
				tr := newTrace()
				loc := query.SourceLocation{}
				if pos := pkg.Fset.Position(site.call.Pos()); pos.IsValid() {
					loc = query.SourceLocation{File: pos.Filename, Line: pos.Line, Col: pos.Column}
				}
				tr.push("resolving %s at %s", site.sel.Sel.Name, loc.String())

				q, validators, ok := resolveCallSite(pkg, site, idx, tr)
				if !ok {
					result.UnresolvedCount++
					if metrics.WhitelistUnresolvedTotal != nil {
						metrics.WhitelistUnresolvedTotal.Inc()
					}
					result.Traces = append(result.Traces, tr.String())
					result.Warnings = append(result.Warnings, fmt.Sprintf("unresolved call site at %s", loc.String()))
					continue
				}
				q.Validators = validators
				q.Referenced = []query.SourceLocation{loc}

				if err := whitelist.Add(q, loc); err != nil {
					result.UnresolvedCount++
					if metrics.WhitelistUnresolvedTotal != nil {
						metrics.WhitelistUnresolvedTotal.Inc()
					}
					result.Traces = append(result.Traces, tr.String())
					result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %s", loc.String(), err))
					continue
				}
				result.ResolvedCount++
				if metrics.WhitelistResolvedTotal != nil {
					metrics.WhitelistResolvedTotal.Inc()
				}
				if cfg.Verbose {
					result.Traces = append(result.Traces, tr.String())
				}
			}
		}
	}

	sort.Strings(result.Warnings)
	return result, nil
}

// resolveCallSite resolves a single trigger site's query-expression and
// validator arguments, returning the built Query and ordered validator
// names.
func resolveCallSite(pkg *packages.Package, site triggerSite, idx *index, tr *Trace) (*query.Query, []string, bool) {
	if len(site.call.Args) == 0 {
		tr.push("call has no query argument")
		return nil, nil, false
	}

	resolved, ok := resolveQueryExpr(pkg, site.call.Args[0], idx, tr)
	if !ok {
		return nil, nil, false
	}
	q, err := extractTemplate(resolved.call, resolved.pkg, idx, tr)
	if err != nil {
		tr.push("template extraction failed: %s", err)
		return nil, nil, false
	}

	// Args[1] (if present) is the runtime parameter map; validators start
	// at position 2.
	var validatorExprs []ast.Expr
	if len(site.call.Args) > 2 {
		validatorExprs = site.call.Args[2:]
	}

	validators := make([]string, 0, len(validatorExprs))
	for _, vexpr := range validatorExprs {
		name, ok := resolveValidator(pkg, vexpr, idx, tr)
		if !ok {
			tr.push("validator argument did not resolve")
			return nil, nil, false
		}
		validators = append(validators, name)
	}

	return q, lo.Uniq(validators), true
}
