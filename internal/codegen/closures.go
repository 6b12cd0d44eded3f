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
	"github.com/ilish-lang/ilish/internal/asm"
	"github.com/ilish-lang/ilish/internal/ast"
	"github.com/ilish-lang/ilish/internal/diag"
	"github.com/ilish-lang/ilish/internal/env"
	"github.com/ilish-lang/ilish/internal/tagging"
)

// compileLambda compiles (lambda (params...) body...). items[0] is the
// "lambda" symbol, items[1] the parameter list, items[2:] the body.
// definedName is the name this lambda is bound to via an enclosing
// define ("" for an anonymous lambda), used both to register the
// binding before the body is compiled (self-recursion, tail calls) and
// to derive the code label.
//
// The heap layout for a capturing closure is
// [count][code_ptr][cap_0..cap_{m-1}], where count is the capture count
// as a fixnum. A boxed capture (one reassigned with set!) holds the
// tagged address of the indirection cell its binding site allocated,
// so mutations are visible through every closure sharing that capture;
// the closure record itself holds no box cells.
func (c *Context) compileLambda(items []ast.Expr, line, col int, definedName string, want int) (int, ResultKind) {
	if len(items) < 2 {
		c.errf(line, col, diag.KindArityMismatch, "lambda takes a parameter list and a body")
		r := c.resultSlot(want, env.KindNil)
		return r, env.KindNil
	}
	params := paramNames(items[1])
	body := items[2:]

	bound := map[string]bool{}
	for _, p := range params {
		bound[p] = true
	}
	if definedName != "" {
		bound[definedName] = true
	}
	free := collectFreeVars(body, bound)

	nameForLabel := definedName
	if nameForLabel == "" {
		nameForLabel = c.Labels.New("anon")
	}
	label := funcLabel(nameForLabel)
	if definedName != "" {
		// self-reference resolves to the code label directly, enabling
		// recursive calls and tail-call rewriting before the body below
		// is even compiled.
		c.Vars.PushConstant(definedName, env.KindPointer, len(c.ConstPool))
		c.ConstPool = append(c.ConstPool, ConstEntry{Label: label, Alias: true})
	}

	c.compileLambdaBody(label, params, body, free)

	if len(free) == 0 {
		// non-capturing: the "value" of the lambda expression is simply
		// its code address, callable directly without a heap object.
		r := c.resultSlot(want, env.KindPointer)
		c.emit("\tmovq\t$%s, %s", label, c.regName(r))
		return r, env.KindPointer
	}
	return c.buildClosureObject(label, free, want)
}

func paramNames(e ast.Expr) []string {
	items := e.AsSlice()
	names := make([]string, len(items))
	for i, it := range items {
		inner, _, _, _ := it.Unwrap()
		names[i] = inner.AsSymbol()
	}
	return names
}

// compileLambdaBody emits the function's code into a fresh fun-section
// buffer: a label, the parameter bindings (SysV arg registers 0..n-1),
// free-variable bindings (loaded from the closure-env register), the
// body in sequence, and a ret.
func (c *Context) compileLambdaBody(label string, params []string, body []ast.Expr, free []env.FreeVar) {
	c.Out.PushFun()
	prevSection := c.Section
	c.Section = asm.SectionFun
	c.emit("%s:", label)

	mark := c.Vars.Snapshot()
	boxedParams := boxAnalysis(params, body)
	for i, p := range params {
		c.Regs.Occupy(i, env.KindUnknown)
		if boxedParams[p] {
			cell := c.Regs.GetFreeSlotAfter(env.ArgRegCount - 1)
			c.emitBoxAlloc(i, cell)
			c.freeTemp(i)
			c.Vars.PushBoxedVariable(p, env.KindUnknown, cell)
		} else {
			c.Vars.PushVariable(p, env.KindUnknown, i, false)
		}
	}
	for i, fv := range free {
		off := closureCapOffset(i)
		slot := c.Regs.GetFreeSlotAfter(env.ArgRegCount - 1)
		c.Regs.Occupy(slot, env.KindUnknown)
		c.emit("\tmovq\t%d(%s), %s", off, c.regName(ClosureEnvReg), c.regName(slot))
		if fv.Boxed {
			c.Vars.PushBoxedVariable(fv.Name, env.KindUnknown, slot)
		} else {
			c.Vars.PushVariable(fv.Name, env.KindUnknown, slot, false)
		}
	}

	scope := &Scope{IsLambda: true, LambdaName: label}
	c.Scopes = append(c.Scopes, scope)

	var last int
	for i, b := range body {
		if i == len(body)-1 {
			c.tailPos = true
			last, _ = c.CompileExpr(b, -1)
		} else {
			c.tailPos = false
			discard, _ := c.CompileExpr(b, -1)
			c.freeTemp(discard)
		}
	}
	c.movIfNeeded(ReturnReg, c.regName(last))
	c.emit("\tret")

	c.Scopes = c.Scopes[:len(c.Scopes)-1]
	c.Vars.TruncateTo(mark)
	c.Section = prevSection
	c.Out.PopFun()
}

// closureCapOffset is the byte offset of capture i inside a closure
// record, past the fixed [count][code_ptr] header.
func closureCapOffset(i int) int { return 16 + i*8 }

// buildClosureObject allocates [count][code_ptr][cap_0..cap_{m-1}] on
// the heap (boxed captures are stored as pointers to their indirection
// cell, already resident at the capturing variable's slot since
// compileSet only ever targets the box's storage, never the slot
// itself) and tags the result with tagging.TagClosure.
func (c *Context) buildClosureObject(label string, free []env.FreeVar, want int) (int, ResultKind) {
	size := 16 + len(free)*8
	r := c.resultSlot(want, env.KindPointer)
	c.emitBumpAllocNoTag(size, r)
	c.emit("\tmovq\t$%d, (%s)", tagging.Fixnum(int64(len(free))), c.regName(r))
	c.emit("\tleaq\t%s(%%rip), %%r11", label)
	c.emit("\tmovq\t%%r11, 8(%s)", c.regName(r))
	for i, fv := range free {
		v, ok := c.Vars.FindActiveVariable(fv.Name)
		if !ok {
			continue
		}
		c.emit("\tmovq\t%s, %d(%s)", c.regName(v.SlotIndex), closureCapOffset(i), c.regName(r))
	}
	c.emit("\torq\t$%d, %s", tagging.TagClosure, c.regName(r))
	return r, env.KindPointer
}

// collectFreeVars walks expr forms collecting symbol references not
// present in bound, skipping quoted data and declared primitives.
// Nested lambda/let forms extend a local copy of bound with their own
// parameters so inner-only locals are never mistaken for captures.
func collectFreeVars(exprs []ast.Expr, bound map[string]bool) []env.FreeVar {
	var order []string
	seen := map[string]bool{}
	var walk func(e ast.Expr, bound map[string]bool)
	walkBody := func(body []ast.Expr, bound map[string]bool) {
		for _, b := range body {
			walk(b, bound)
		}
	}
	walk = func(e ast.Expr, bound map[string]bool) {
		inner, _, _, _ := e.Unwrap()
		switch inner.Kind() {
		case ast.KindSymbol:
			name := inner.AsSymbol()
			if bound[name] {
				return
			}
			if _, isPrim := Lookup(name); isPrim {
				return
			}
			if !seen[name] {
				seen[name] = true
				order = append(order, name)
			}
		case ast.KindList:
			items := inner.AsSlice()
			if len(items) == 0 {
				return
			}
			head, _, _, _ := items[0].Unwrap()
			if head.IsSymbol() {
				switch head.AsSymbol() {
				case "quote":
					return
				case "lambda":
					child := copyBound(bound)
					for _, p := range paramNames(items[1]) {
						child[p] = true
					}
					walkBody(items[2:], child)
					return
				case "let", "let*":
					child := copyBound(bound)
					for _, b := range items[1].AsSlice() {
						pair := b.AsSlice()
						name := pair[0].AsSymbol()
						walk(pair[1], bound)
						child[name] = true
					}
					walkBody(items[2:], child)
					return
				case "define":
					head2, _, _, _ := items[1].Unwrap()
					if head2.Kind() == ast.KindList {
						sig := head2.AsSlice()
						child := copyBound(bound)
						child[sig[0].AsSymbol()] = true
						for _, p := range paramNames(ast.List(sig[1:])) {
							child[p] = true
						}
						walkBody(items[2:], child)
						return
					}
				}
			}
			for _, it := range items {
				walk(it, bound)
			}
		case ast.KindVector:
			for _, it := range inner.AsSlice() {
				walk(it, bound)
			}
		}
	}
	walkBody(exprs, bound)

	out := make([]env.FreeVar, len(order))
	for i, n := range order {
		out[i] = env.FreeVar{Name: n}
	}
	// a second pass marks boxed any free var reassigned with set!
	// anywhere in the body (including inside nested non-lambda forms,
	// since let/begin/if don't introduce a new closure boundary).
	markBoxed(exprs, bound, out)
	return out
}

func markBoxed(exprs []ast.Expr, bound map[string]bool, free []env.FreeVar) {
	index := map[string]int{}
	for i, fv := range free {
		index[fv.Name] = i
	}
	var walk func(e ast.Expr)
	walk = func(e ast.Expr) {
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
			if idx, ok := index[nameExpr.AsSymbol()]; ok {
				free[idx].Boxed = true
			}
		}
		for _, it := range items {
			walk(it)
		}
	}
	for _, e := range exprs {
		walk(e)
	}
}

// boxAnalysis reports which of names — a lambda's own parameters, or a
// let's own bindings — must be stored behind an indirection cell
// rather than directly in their home slot: any name set! anywhere in
// body, at any depth, since a nested lambda that captures it needs a
// cell it can keep sharing with the binding site after the activation
// that created it returns. This reuses markBoxed's own walk (the same
// rule collectFreeVars already applies one scope up, to an enclosing
// lambda's free variables) rather than restricting to names a nested
// lambda actually captures: a set! target that never escapes through a
// closure is boxed too, trading one avoidable indirection for not
// needing a second, capture-aware pass.
func boxAnalysis(names []string, body []ast.Expr) map[string]bool {
	free := make([]env.FreeVar, len(names))
	for i, n := range names {
		free[i] = env.FreeVar{Name: n}
	}
	markBoxed(body, nil, free)
	out := make(map[string]bool, len(names))
	for _, fv := range free {
		if fv.Boxed {
			out[fv.Name] = true
		}
	}
	return out
}

func copyBound(bound map[string]bool) map[string]bool {
	out := make(map[string]bool, len(bound)+4)
	for k, v := range bound {
		out[k] = v
	}
	return out
}
