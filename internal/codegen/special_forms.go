/*
Copyright (C) 2023  Carl-Philip Hänsch

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

package codegen

import (
	"github.com/ilish-lang/ilish/internal/ast"
	"github.com/ilish-lang/ilish/internal/diag"
	"github.com/ilish-lang/ilish/internal/env"
	"github.com/ilish-lang/ilish/internal/tagging"
)

// compileForm dispatches a non-empty list expression: either one of the
// fixed special forms below, or a call (primitive or user lambda).
// Mirrors the "switch car, _ := e[0].(Symbol); car { ... }" dispatch of
// Eval in scm/scm.go, one case per special form plus a default that
// falls through to application.
func (c *Context) compileForm(e ast.Expr, line, col, want int) (int, ResultKind) {
	items := e.AsSlice()
	if len(items) == 0 {
		r := c.resultSlot(want, env.KindUnknown)
		c.emit("\tmovq\t$%d, %s", tagging.NilValue, c.regName(r))
		return r, env.KindUnknown
	}
	head, _, _, _ := items[0].Unwrap()
	if head.IsSymbol() {
		switch head.AsSymbol() {
		case "quote":
			return c.compileQuote(items, line, col, want)
		case "if":
			return c.compileIf(items, line, col, want)
		case "begin":
			return c.compileBegin(items, want)
		case "set!":
			return c.compileSet(items, line, col, want)
		case "let":
			return c.compileLet(items, line, col, want, false)
		case "let*":
			return c.compileLet(items, line, col, want, true)
		case "lambda":
			return c.compileLambda(items, line, col, "", want)
		case "define":
			return c.compileDefine(items, line, col, want)
		}
	}
	return c.compileApply(items, line, col, want)
}

// compileQuote materializes (quote x) as a runtime value. Fixnums,
// bools, chars and nil compile the same as unquoted literals since
// they already evaluate to themselves; a list or vector quotation gets
// a quotes-section label whose only content is a nil placeholder word
// (finalize.go), so it evaluates to () rather than its structure.
func (c *Context) compileQuote(items []ast.Expr, line, col, want int) (int, ResultKind) {
	if len(items) != 2 {
		c.errf(line, col, diag.KindArityMismatch, "quote takes exactly one argument")
		r := c.resultSlot(want, env.KindUnknown)
		return r, env.KindUnknown
	}
	inner, _, _, _ := items[1].Unwrap()
	switch inner.Kind() {
	case ast.KindFixnum, ast.KindBool, ast.KindChar, ast.KindNil:
		c.tailPos = false
		return c.CompileExpr(items[1], want)
	case ast.KindString:
		return c.compileStringLiteral(inner.AsString(), want)
	case ast.KindSymbol:
		// a quoted symbol is not looked up; its value is the address of
		// a constant label holding tagging.TagSymbol, one label per
		// distinct name when a prepass pool is available.
		name := inner.AsSymbol()
		label := c.internedLabel("y:"+name, func() string {
			label := c.NewQuoteLabel()
			c.ConstPool = append(c.ConstPool, ConstEntry{Label: label, Value: tagging.TagSymbol})
			return label
		})
		r := c.resultSlot(want, env.KindUnknown)
		c.emit("\tmovq\t$%s, %s", label, c.regName(r))
		return r, env.KindUnknown
	default:
		// list / vector quotation: load the word at a quotes-section
		// label; finalize.go gives each such label a nil placeholder, not
		// the literal's structure (DESIGN.md: quote payloads live in
		// .data, not .bss, since they are read-only for this language's
		// primitive set).
		r := c.resultSlot(want, env.KindPointer)
		label := c.internedLabel("q:"+items[1].String(), func() string {
			label := c.NewQuoteLabel()
			c.pendingQuoteData = append(c.pendingQuoteData, label)
			return label
		})
		c.emit("\tmovq\t%s(%%rip), %s", label, c.regName(r))
		return r, env.KindPointer
	}
}

func (c *Context) compileIf(items []ast.Expr, line, col, want int) (int, ResultKind) {
	if len(items) != 3 && len(items) != 4 {
		c.errf(line, col, diag.KindArityMismatch, "if takes a condition, a then-branch and an optional else-branch")
	}
	tail := c.tailPos
	r := c.resultSlot(want, env.KindUnknown)
	c.tailPos = false
	condSlot, _ := c.CompileExpr(items[1], -1)
	elseLabel := c.Labels.New("if_else")
	endLabel := c.Labels.New("if_end")
	c.emit("\tcmpq\t$%d, %s", tagging.BoolFalse, c.regName(condSlot))
	c.freeTemp(condSlot)
	c.emit("\tje\t%s", elseLabel)

	c.tailPos = tail
	_, thenKind := c.CompileExpr(items[2], r)
	c.emit("\tjmp\t%s", endLabel)
	c.emit("%s:", elseLabel)
	elseKind := env.Kind(env.KindUnknown)
	if len(items) == 4 {
		c.tailPos = tail
		_, elseKind = c.CompileExpr(items[3], r)
	} else {
		c.emit("\tmovq\t$%d, %s", tagging.NilValue, c.regName(r))
	}
	c.emit("%s:", endLabel)

	kind := thenKind
	if thenKind != elseKind {
		kind = env.KindUnknown
	}
	return r, kind
}

func (c *Context) compileBegin(items []ast.Expr, want int) (int, ResultKind) {
	tail := c.tailPos
	if len(items) == 1 {
		r := c.resultSlot(want, env.KindUnknown)
		c.emit("\tmovq\t$%d, %s", tagging.NilValue, c.regName(r))
		return r, env.KindUnknown
	}
	var slot int
	var kind ResultKind
	for i := 1; i < len(items); i++ {
		if i == len(items)-1 {
			c.tailPos = tail
			slot, kind = c.CompileExpr(items[i], want)
		} else {
			c.tailPos = false
			discard, _ := c.CompileExpr(items[i], -1)
			c.freeTemp(discard)
		}
	}
	return slot, kind
}

// compileSet assigns to a local slot, or through a box indirection when
// the target is a binding boxAnalysis found captured and mutated
// (env.Variable.Boxed).
func (c *Context) compileSet(items []ast.Expr, line, col, want int) (int, ResultKind) {
	if len(items) != 3 {
		c.errf(line, col, diag.KindArityMismatch, "set! takes a variable name and a value")
	}
	nameExpr, _, _, _ := items[1].Unwrap()
	name := nameExpr.AsSymbol()
	v, ok := c.Vars.FindActiveVariable(name)
	if !ok {
		c.errf(line, col, diag.KindUndefinedSymbol, "set! of undefined symbol %q", name)
		r := c.resultSlot(want, env.KindNil)
		return r, env.KindNil
	}
	c.tailPos = false
	valSlot, _ := c.CompileExpr(items[2], -1)
	if v.Boxed {
		c.emit("\tmovq\t%s, %d(%s)", c.regName(valSlot), tagging.BoxValueOffset, c.regName(v.SlotIndex))
		c.freeTemp(valSlot)
		r := c.resultSlot(want, env.KindNil)
		c.emit("\tmovq\t$%d, %s", tagging.NilValue, c.regName(r))
		return r, env.KindNil
	}
	c.movIfNeeded(c.regName(v.SlotIndex), c.regName(valSlot))
	c.freeTemp(valSlot)
	r := c.resultSlot(want, env.KindNil)
	c.emit("\tmovq\t$%d, %s", tagging.NilValue, c.regName(r))
	return r, env.KindNil
}

// compileLet binds each (name value) pair then compiles the body.
// sequential selects let* (each RHS sees the previous bindings);
// non-sequential (plain let) evaluates every RHS against the outer
// scope before any binding becomes visible.
func (c *Context) compileLet(items []ast.Expr, line, col, want int, sequential bool) (int, ResultKind) {
	if len(items) < 3 {
		c.errf(line, col, diag.KindArityMismatch, "let takes a binding list and a body")
		r := c.resultSlot(want, env.KindUnknown)
		return r, env.KindUnknown
	}
	tail := c.tailPos
	bindings := items[1].AsSlice()
	mark := c.Vars.Snapshot()

	names := make([]string, len(bindings))
	for i, b := range bindings {
		names[i] = b.AsSlice()[0].AsSymbol()
	}
	boxed := boxAnalysis(names, items[2:])

	bind := func(name string, slot int, kind ResultKind) {
		if boxed[name] {
			cell := c.Regs.GetFreeSlotAfter(0)
			c.emitBoxAlloc(slot, cell)
			c.freeTemp(slot)
			c.Vars.PushBoxedVariable(name, kind, cell)
		} else {
			c.Vars.PushVariable(name, kind, slot, false)
		}
	}

	type pending struct {
		name string
		slot int
		kind ResultKind
	}
	var done []pending
	c.tailPos = false
	for _, b := range bindings {
		pair := b.AsSlice()
		name := pair[0].AsSymbol()
		if sequential {
			slot, kind := c.CompileExpr(pair[1], -1)
			bind(name, slot, kind)
		} else {
			slot, kind := c.CompileExpr(pair[1], -1)
			done = append(done, pending{name, slot, kind})
		}
	}
	if !sequential {
		for _, p := range done {
			bind(p.name, p.slot, p.kind)
		}
	}

	var slot int
	var kind ResultKind
	for i := 2; i < len(items); i++ {
		if i == len(items)-1 {
			c.tailPos = tail
			slot, kind = c.CompileExpr(items[i], want)
		} else {
			c.tailPos = false
			discard, _ := c.CompileExpr(items[i], -1)
			c.freeTemp(discard)
		}
	}
	c.Vars.TruncateTo(mark)
	return slot, kind
}

// compileDefine classifies a top-level binding: (define name value) is
// a constant if value is a lambda, or a self-evaluating literal whose
// name is in ConstDefines (never the target of a set!), otherwise a
// mutable slot; (define (name args...) body...) is sugar
// for (define name (lambda (args...) body...)).
func (c *Context) compileDefine(items []ast.Expr, line, col, want int) (int, ResultKind) {
	if len(items) < 3 {
		c.errf(line, col, diag.KindArityMismatch, "define takes a name (or signature) and a value")
		r := c.resultSlot(want, env.KindNil)
		return r, env.KindNil
	}
	head, _, _, _ := items[1].Unwrap()
	if head.Kind() == ast.KindList {
		sig := head.AsSlice()
		name := sig[0].AsSymbol()
		// rewrite (define (name . params) body...) into a bare lambda
		// form carrying the same params and body; compileLambda takes
		// the defined name separately so it can self-register before
		// the body is compiled (enabling self-recursion and tail calls).
		lambdaForm := make([]ast.Expr, 0, len(items)+1)
		lambdaForm = append(lambdaForm, items[0], ast.List(sig[1:]))
		lambdaForm = append(lambdaForm, items[2:]...)
		return c.compileLambda(lambdaForm, line, col, name, want)
	}
	name := head.AsSymbol()
	valHead, _, _, _ := items[2].Unwrap()
	if valHead.Kind() == ast.KindList {
		if vi := valHead.AsSlice(); len(vi) > 0 {
			if vh, _, _, _ := vi[0].Unwrap(); vh.IsSymbol() && vh.AsSymbol() == "lambda" {
				return c.compileLambda(vi, line, col, name, want)
			}
		}
	}
	if lit, ok := literalTagValue(items[2]); ok && c.ConstDefines[name] {
		c.NewConstLabel(lit.value)
		c.Vars.PushConstant(name, lit.kind, len(c.ConstPool)-1)
		r := c.resultSlot(want, env.KindNil)
		c.emit("\tmovq\t$%d, %s", tagging.NilValue, c.regName(r))
		return r, env.KindNil
	}
	c.tailPos = false
	slot, kind := c.CompileExpr(items[2], -1)
	c.Vars.PushVariable(name, kind, slot, false)
	r := c.resultSlot(want, env.KindNil)
	c.emit("\tmovq\t$%d, %s", tagging.NilValue, c.regName(r))
	return r, env.KindNil
}

// tagLit is a literal expression's already-tagged runtime value, paired
// with the Kind the variable table should record for it.
type tagLit struct {
	value uint64
	kind  env.Kind
}

// literalTagValue reports whether e is one of the fixed-width
// self-evaluating literal kinds (fixnum, bool, char, nil) foldable
// directly into a .data constant, and if so its tagged value. A
// string-valued or general compound define stays on the mutable-slot
// path: the former has no fixed-width tagged representation to store
// in a single ConstEntry word, the latter needs actual code run to
// produce.
func literalTagValue(e ast.Expr) (tagLit, bool) {
	inner, _, _, _ := e.Unwrap()
	switch inner.Kind() {
	case ast.KindFixnum:
		return tagLit{tagging.Fixnum(inner.AsFixnum()), env.KindFixnum}, true
	case ast.KindBool:
		return tagLit{tagging.Bool(inner.AsBool()), env.KindBool}, true
	case ast.KindChar:
		return tagLit{tagging.Char(inner.AsChar()), env.KindChar}, true
	case ast.KindNil:
		return tagLit{tagging.NilValue, env.KindUnknown}, true
	default:
		return tagLit{}, false
	}
}
