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
)

// compileApply handles (op arg...): a primitive declared in the
// dispatch table, a direct call to a known non-capturing function, or
// an indirect call through a closure value.
func (c *Context) compileApply(items []ast.Expr, line, col, want int) (int, ResultKind) {
	tail := c.tailPos
	head, _, _, _ := items[0].Unwrap()
	if head.IsSymbol() {
		name := head.AsSymbol()
		if d, ok := Lookup(name); ok {
			return c.compilePrimitiveCall(d, items, line, col, want)
		}
		if v, ok := c.Vars.FindActiveVariable(name); ok && (v.Signature != nil || c.constIsAlias(v)) {
			if c.isSelfTailCall(name, tail) {
				return c.compileTailCall(v, items[1:], line, col)
			}
			return c.compileDirectCall(v, items[1:], line, col, want)
		}
	}
	return c.compileIndirectCall(items, line, col, want)
}

func (c *Context) compilePrimitiveCall(d *Declaration, items []ast.Expr, line, col, want int) (int, ResultKind) {
	args := items[1:]
	if len(args) < d.MinParam || (d.MaxParam >= 0 && len(args) > d.MaxParam) {
		c.errf(line, col, diag.KindArityMismatch, "%s expects between %d and %d arguments, got %d", d.Name, d.MinParam, d.MaxParam, len(args))
	}
	argSlots := make([]int, len(args))
	c.tailPos = false
	for i, a := range args {
		argSlots[i], _ = c.CompileExpr(a, -1)
	}
	return d.Emit(c, argSlots, want)
}

// compileDirectCall evaluates arguments, sequences them into the SysV
// argument registers with moveArgsIntoPlace, and emits a direct callq
// to the callee's code label.
func (c *Context) compileDirectCall(v env.Variable, args []ast.Expr, line, col, want int) (int, ResultKind) {
	if v.Signature != nil && (len(args) < v.Signature.MinArgs || (v.Signature.MaxArgs >= 0 && len(args) > v.Signature.MaxArgs)) {
		c.errf(line, col, diag.KindArityMismatch, "%s expects between %d and %d arguments, got %d", v.Name, v.Signature.MinArgs, v.Signature.MaxArgs, len(args))
	}
	argSlots := make([]int, len(args))
	c.tailPos = false
	for i, a := range args {
		argSlots[i], _ = c.CompileExpr(a, -1)
	}
	c.spillNonVolatile()
	c.moveArgsIntoPlace(argSlots)
	rooted := c.rootPointers(-1)
	c.emit("\tcallq\t%s", c.constSymbolFor(v))
	c.restoreNonVolatile()
	c.unrootPointers(rooted)
	for _, s := range argSlots {
		c.freeTemp(s)
	}
	r := c.resultSlot(want, env.KindUnknown)
	c.movIfNeeded(c.regName(r), ReturnReg)
	return r, env.KindUnknown
}

// compileIndirectCall evaluates the operator expression to a tagged
// closure pointer, loads its code pointer from offset 8, pins the
// closure itself in the closure-env register for the callee's capture
// loads, and calls through the loaded address.
func (c *Context) compileIndirectCall(items []ast.Expr, line, col, want int) (int, ResultKind) {
	c.tailPos = false
	opSlot, _ := c.CompileExpr(items[0], -1)
	args := items[1:]
	argSlots := make([]int, len(args))
	for i, a := range args {
		argSlots[i], _ = c.CompileExpr(a, -1)
	}
	c.spillNonVolatile()
	c.moveArgsIntoPlace(argSlots)
	c.emit("\tmovq\t%s, %%r11", c.regName(opSlot))
	c.emit("\tandq\t$-8, %%r11") // strip the closure tag's low 3 bits
	c.movIfNeeded(c.regName(ClosureEnvReg), "%r11")
	rooted := c.rootPointers(opSlot)
	c.emit("\tcallq\t*8(%%r11)")
	c.restoreNonVolatile()
	c.unrootPointers(rooted)
	c.freeTemp(opSlot)
	for _, s := range argSlots {
		c.freeTemp(s)
	}
	r := c.resultSlot(want, env.KindUnknown)
	c.movIfNeeded(c.regName(r), ReturnReg)
	return r, env.KindUnknown
}

// spillNonVolatile and restoreNonVolatile preserve the raw bits of
// slots 6-8 across a call, since this compiler's own convention (unlike
// the underlying SysV ABI) never asks a callee to preserve them. This
// is plain register-save/restore and says nothing about correctness
// after a GC: a callee can itself allocate and trigger collect, which
// relocates any heap object it copies, so every call site additionally
// roots its live pointer-holding slots with rootPointers right before
// the callq and reloads them with unrootPointers right after —
// deliberately ordered after restoreNonVolatile so a relocated address
// unrootPointers reloads into a slot 6-8 wins over the stale bits
// restoreNonVolatile just popped back into that same slot.
func (c *Context) spillNonVolatile() {
	for i := env.NonVolStart; i <= env.NonVolEnd; i++ {
		if c.Regs.Slot(i).Kind != env.KindUnused {
			c.emit("\tpushq\t%s", c.regName(i))
		}
	}
}

func (c *Context) restoreNonVolatile() {
	for i := env.NonVolEnd; i >= env.NonVolStart; i-- {
		if c.Regs.Slot(i).Kind != env.KindUnused {
			c.emit("\tpopq\t%s", c.regName(i))
		}
	}
}
