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

// Package prepass runs once over a whole parsed program before code
// generation: it finds every string and quoted-atom literal and
// assigns identical ones a shared constant-pool slot, so the
// generator never emits two .data entries for the same "error" string
// appearing in ten different call sites. The free-variable/boxing
// analysis the code generator also needs (internal/codegen/closures.go)
// stays local to each lambda's own compile step, since unlike constant
// interning it has no whole-program dimension to exploit.
package prepass

import (
	"github.com/google/btree"

	"github.com/ilish-lang/ilish/internal/ast"
)

// Literal is one deduplicated constant: its textual content and the
// pool index the generator should reuse for every occurrence.
type Literal struct {
	Text  string
	Index int
}

func literalLess(a, b Literal) bool { return a.Text < b.Text }

// Pool is the result of a Classify pass: an ordered index from literal
// text to the single pool slot every occurrence should share.
type Pool struct {
	tree  *btree.BTreeG[Literal]
	order []string
}

// Index returns the shared constant-pool slot for text, allocating a
// fresh one on first sight.
func (p *Pool) Index(text string) int {
	if lit, ok := p.tree.Get(Literal{Text: text}); ok {
		return lit.Index
	}
	idx := len(p.order)
	p.tree.ReplaceOrInsert(Literal{Text: text, Index: idx})
	p.order = append(p.order, text)
	return idx
}

// Literals returns every interned literal in first-sight order, one
// per pool slot.
func (p *Pool) Literals() []string {
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

// Classify walks every top-level expression collecting string and
// quoted-symbol/list/vector literal text for interning. It does not
// evaluate or partially compile anything: it only visits the shapes
// that end up as .data constants downstream (see
// internal/codegen/compile.go's compileStringLiteral and
// special_forms.go's compileQuote).
func Classify(program []ast.Expr) *Pool {
	p := &Pool{tree: btree.NewG(32, literalLess)}
	for _, e := range program {
		walk(e, p)
	}
	return p
}

func walk(e ast.Expr, p *Pool) {
	inner, _, _, _ := e.Unwrap()
	switch inner.Kind() {
	case ast.KindString:
		p.Index(stringLiteralKey(inner.AsString()))
	case ast.KindList:
		items := inner.AsSlice()
		if len(items) == 0 {
			return
		}
		head, _, _, _ := items[0].Unwrap()
		if head.IsSymbol() && head.AsSymbol() == "quote" && len(items) == 2 {
			p.Index(quoteLiteralKey(items[1]))
			return
		}
		for _, it := range items {
			walk(it, p)
		}
	case ast.KindVector:
		for _, it := range inner.AsSlice() {
			walk(it, p)
		}
	}
}

// ConstDefines returns the names of every top-level (define name value)
// — plain name, not a (define (name args...) ...) signature — that
// compileDefine's literal branch may fold into a .data constant rather
// than a mutable slot: name must never be the target of a set!
// anywhere in the program, at any nesting depth, since a constant has
// no slot for set! to write through. Whether value itself is actually a
// literal simple enough to fold is decided downstream (see
// internal/codegen/special_forms.go's literalTagValue) — this pass only
// rules out names assignment could ever reach.
func ConstDefines(program []ast.Expr) map[string]bool {
	assigned := map[string]bool{}
	var walkAssigned func(e ast.Expr)
	walkAssigned = func(e ast.Expr) {
		inner, _, _, _ := e.Unwrap()
		if inner.Kind() != ast.KindList {
			return
		}
		items := inner.AsSlice()
		if len(items) == 0 {
			return
		}
		head, _, _, _ := items[0].Unwrap()
		if head.IsSymbol() && head.AsSymbol() == "set!" && len(items) == 3 {
			nameExpr, _, _, _ := items[1].Unwrap()
			assigned[nameExpr.AsSymbol()] = true
		}
		for _, it := range items {
			walkAssigned(it)
		}
	}
	for _, e := range program {
		walkAssigned(e)
	}

	out := map[string]bool{}
	for _, e := range program {
		inner, _, _, _ := e.Unwrap()
		if inner.Kind() != ast.KindList {
			continue
		}
		items := inner.AsSlice()
		if len(items) < 3 {
			continue
		}
		head, _, _, _ := items[0].Unwrap()
		if !head.IsSymbol() || head.AsSymbol() != "define" {
			continue
		}
		nameExpr, _, _, _ := items[1].Unwrap()
		if nameExpr.Kind() != ast.KindSymbol {
			continue // (define (name args...) ...) sugar, not a plain binding
		}
		name := nameExpr.AsSymbol()
		if !assigned[name] {
			out[name] = true
		}
	}
	return out
}

// stringLiteralKey and quoteLiteralKey prefix-tag interned text so a
// string literal "foo" never collides with a quoted symbol foo sharing
// the same underlying bytes but needing a differently-tagged constant.
func stringLiteralKey(s string) string { return "s:" + s }
func quoteLiteralKey(e ast.Expr) string {
	inner, _, _, _ := e.Unwrap()
	switch inner.Kind() {
	case ast.KindSymbol:
		return "y:" + inner.AsSymbol()
	default:
		return "q:" + e.String()
	}
}
