/*
Copyright (C) 2026  Carl-Philip Hänsch

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU General Public License for more details.

    You should have received a copy of the GNU General Public License
    along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// primgen reads internal/codegen's Go source, finds every Declare(&Declaration{...})
// call site, and cross-checks the literal Name/MinParam/MaxParam fields
// against the rest of the package: every declared name must have exactly
// one Declare call, MaxParam (when bounded) must be >= MinParam, and Emit
// must not be a bare nil literal.
//
// Usage:
//
//	go run ./tools/primgen ./internal/codegen
package main

import (
	"fmt"
	"go/ast"
	"go/constant"
	"go/token"
	"os"

	"golang.org/x/tools/go/packages"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: primgen <package-dir>\n")
		os.Exit(1)
	}
	dir := os.Args[1]

	cfg := &packages.Config{
		Mode: packages.NeedFiles | packages.NeedSyntax | packages.NeedTypes |
			packages.NeedTypesInfo | packages.NeedImports | packages.NeedName,
	}
	pkgs, err := packages.Load(cfg, dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load package: %v\n", err)
		os.Exit(1)
	}
	if len(pkgs) == 0 {
		fmt.Fprintf(os.Stderr, "no packages found in %s\n", dir)
		os.Exit(1)
	}
	pkg := pkgs[0]
	if len(pkg.Errors) > 0 {
		for _, e := range pkg.Errors {
			fmt.Fprintf(os.Stderr, "  %v\n", e)
		}
		os.Exit(1)
	}
	fset := pkg.Fset

	var entries []entry
	seen := map[string]string{}
	bad := false

	for _, astFile := range pkg.Syntax {
		fname := fset.Position(astFile.Pos()).Filename
		ast.Inspect(astFile, func(n ast.Node) bool {
			call, ok := n.(*ast.CallExpr)
			if !ok {
				return true
			}
			ident, ok := call.Fun.(*ast.Ident)
			if !ok || ident.Name != "Declare" || len(call.Args) != 1 {
				return true
			}
			unary, ok := call.Args[0].(*ast.UnaryExpr)
			if !ok || unary.Op != token.AND {
				return true
			}
			comp, ok := unary.X.(*ast.CompositeLit)
			if !ok {
				return true
			}
			e := parseEntry(pkg, comp)
			if e.name == "" {
				return true
			}
			pos := fset.Position(comp.Pos())
			e.loc = fmt.Sprintf("%s:%d", fname, pos.Line)
			entries = append(entries, e)

			if prev, dup := seen[e.name]; dup {
				fmt.Fprintf(os.Stderr, "%s: primitive %q already declared at %s\n", e.loc, e.name, prev)
				bad = true
			}
			seen[e.name] = e.loc

			if e.maxParam >= 0 && e.maxParam < e.minParam {
				fmt.Fprintf(os.Stderr, "%s: %s has MaxParam %d < MinParam %d\n", e.loc, e.name, e.maxParam, e.minParam)
				bad = true
			}
			if !e.hasEmit {
				fmt.Fprintf(os.Stderr, "%s: %s has no Emit function\n", e.loc, e.name)
				bad = true
			}
			return true
		})
	}

	fmt.Printf("checked %d declared primitives\n", len(entries))
	if bad {
		os.Exit(1)
	}
}

type entry struct {
	name     string
	minParam int
	maxParam int
	hasEmit  bool
	loc      string
}

// parseEntry reads the literal (non-computed) fields of one
// &Declaration{...} composite literal. Fields set by anything other
// than a literal (e.g. a helper function call) are left at their zero
// value rather than rejected — primgen only checks the calls it can
// fully resolve at the source level.
func parseEntry(pkg *packages.Package, comp *ast.CompositeLit) entry {
	e := entry{maxParam: -1}
	for _, elt := range comp.Elts {
		kv, ok := elt.(*ast.KeyValueExpr)
		if !ok {
			continue
		}
		key, ok := kv.Key.(*ast.Ident)
		if !ok {
			continue
		}
		switch key.Name {
		case "Name":
			if lit, ok := kv.Value.(*ast.BasicLit); ok && lit.Kind == token.STRING {
				v := constant.MakeFromLiteral(lit.Value, lit.Kind, 0)
				e.name = constant.StringVal(v)
			}
		case "MinParam":
			e.minParam = intLit(kv.Value)
		case "MaxParam":
			e.maxParam = intLit(kv.Value)
		case "Emit":
			e.hasEmit = !isNilIdent(kv.Value)
		}
	}
	return e
}

func intLit(e ast.Expr) int {
	lit, ok := e.(*ast.BasicLit)
	if !ok || lit.Kind != token.INT {
		return 0
	}
	v := constant.MakeFromLiteral(lit.Value, lit.Kind, 0)
	n, _ := constant.Int64Val(v)
	return int(n)
}

func isNilIdent(e ast.Expr) bool {
	id, ok := e.(*ast.Ident)
	return ok && id.Name == "nil"
}
