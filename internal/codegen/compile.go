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

// CompileExpr walks one parsed expression and emits its assembly,
// returning the slot the result ends up in and the result's kind.
// want is the caller's preferred destination slot, or -1 to let the
// callee choose (mirrors Eval's dispatch in scm/scm.go, retargeted
// from interpretation to code emission: same switch-on-car-symbol
// shape, but every case emits instructions instead of computing a
// value).
func (c *Context) CompileExpr(e ast.Expr, want int) (int, ResultKind) {
	inner, line, col, source := e.Unwrap()
	_ = source
	switch inner.Kind() {
	case ast.KindFixnum:
		return c.loadImmediate(tagging.Fixnum(inner.AsFixnum()), want, env.KindFixnum)
	case ast.KindBool:
		return c.loadImmediate(tagging.Bool(inner.AsBool()), want, env.KindBool)
	case ast.KindChar:
		return c.loadImmediate(tagging.Char(inner.AsChar()), want, env.KindChar)
	case ast.KindNil:
		return c.loadImmediate(tagging.NilValue, want, env.KindUnknown)
	case ast.KindString:
		return c.compileStringLiteral(inner.AsString(), want)
	case ast.KindSymbol:
		return c.compileSymbolRef(inner.AsSymbol(), line, col, want)
	case ast.KindList:
		return c.compileForm(inner, line, col, want)
	case ast.KindVector:
		return c.compileVectorLiteral(inner, want)
	default:
		c.errf(line, col, diag.KindExpectedList, "unexpected expression kind %d", inner.Kind())
		r := c.resultSlot(want, env.KindUnknown)
		return r, env.KindUnknown
	}
}

func (c *Context) loadImmediate(v uint64, want int, kind ResultKind) (int, ResultKind) {
	r := c.resultSlot(want, kind)
	c.emit("\tmovq\t$%d, %s", v, c.regName(r))
	return r, kind
}

func (c *Context) compileSymbolRef(name string, line, col, want int) (int, ResultKind) {
	v, ok := c.Vars.FindActiveVariable(name)
	if !ok {
		c.errf(line, col, diag.KindUndefinedSymbol, "undefined symbol %q", name)
		r := c.resultSlot(want, env.KindUnknown)
		return r, env.KindUnknown
	}
	if v.IsConstant {
		r := c.resultSlot(want, v.Kind)
		label := c.constSymbolFor(v)
		if v.Signature != nil || c.constIsAlias(v) {
			// code address: a lambda's own label, or a self-recursive
			// lambda's alias entry pointing at one.
			c.emit("\tmovq\t$%s, %s", label, c.regName(r))
		} else {
			// an actual .quad value in the quotes section (literalTagValue's
			// folded top-level define) must be dereferenced, not addressed.
			c.emit("\tmovq\t%s(%%rip), %s", label, c.regName(r))
		}
		return r, v.Kind
	}
	r := c.resultSlot(want, v.Kind)
	if v.Boxed {
		c.emit("\tmovq\t%d(%s), %s", tagging.BoxValueOffset, c.regName(v.SlotIndex), c.regName(r))
		return r, v.Kind
	}
	c.movIfNeeded(c.regName(r), c.regName(v.SlotIndex))
	return r, v.Kind
}

// constSymbolFor resolves the assembler label for a constant variable;
// lambdas are named by their generated label, other constants by their
// ConstPool entry.
func (c *Context) constSymbolFor(v env.Variable) string {
	if v.Signature != nil {
		return funcLabel(v.Name)
	}
	if v.ConstIndex < len(c.ConstPool) {
		return c.ConstPool[v.ConstIndex].Label
	}
	return c.NewConstLabel(0)
}

// constIsAlias reports whether v's ConstPool entry is an Alias (a code
// label with no backing .quad, never itself dereferenced) rather than
// an ordinary data constant.
func (c *Context) constIsAlias(v env.Variable) bool {
	return v.ConstIndex < len(c.ConstPool) && c.ConstPool[v.ConstIndex].Alias
}

func funcLabel(name string) string { return "fn_" + sanitizeLabel(name) }

func sanitizeLabel(name string) string {
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		ch := name[i]
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
			out = append(out, ch)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

func (c *Context) compileStringLiteral(s string, want int) (int, ResultKind) {
	label := c.internedLabel("s:"+s, func() string {
		label := c.NewQuoteLabel()
		c.ConstPool = append(c.ConstPool, ConstEntry{Label: label, Value: tagging.StringLenFlag(len(s), !isASCII(s))})
		c.stringData = append(c.stringData, stringLiteral{label: label, value: s})
		return label
	})
	r := c.resultSlot(want, env.KindPointer)
	c.emit("\tleaq\t%s(%%rip), %s", label, c.regName(r))
	c.emit("\torq\t$%d, %s", tagging.TagString, c.regName(r))
	return r, env.KindPointer
}

// internedLabel returns the .data label already assigned to key by an
// earlier occurrence, consulting the prepass.Pool built for this
// program; when there is no pool (Context.Pool is nil, e.g. a one-line
// REPL compile with nothing to dedup against) or key hasn't been seen
// by this Context yet, it calls alloc to mint a fresh label and
// remembers it against the pool's slot index for next time.
func (c *Context) internedLabel(key string, alloc func() string) string {
	if c.Pool == nil {
		return alloc()
	}
	idx := c.Pool.Index(key)
	if c.internedLabels == nil {
		c.internedLabels = make(map[int]string)
	}
	if label, ok := c.internedLabels[idx]; ok {
		return label
	}
	label := alloc()
	c.internedLabels[idx] = label
	return label
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 0x7f {
			return false
		}
	}
	return true
}

func (c *Context) compileVectorLiteral(e ast.Expr, want int) (int, ResultKind) {
	items := e.AsSlice()
	argSlots := make([]int, len(items))
	c.tailPos = false
	for i, item := range items {
		argSlots[i], _ = c.CompileExpr(item, -1)
	}
	d, _ := Lookup("vector")
	return d.Emit(c, argSlots, want)
}

// stringLiteral holds a compile-time string constant destined for the
// quotes section.
type stringLiteral struct {
	label string
	value string
}
