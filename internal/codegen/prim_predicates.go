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
	"github.com/ilish-lang/ilish/internal/env"
	"github.com/ilish-lang/ilish/internal/tagging"
)

// registerPredicates declares zero?, one?, null?, pair?, vector?,
// string?: mask the low tag bits (or the whole word for literals)
// against the kind's signature and materialize a Boolean.
func registerPredicates() {
	Declare(&Declaration{
		Name: "zero?", MinParam: 1, MaxParam: 1, ResultKind: env.KindBool,
		Desc: "#t iff operand equals the tagged fixnum 0",
		Emit: equalsImmediate(0),
	})
	Declare(&Declaration{
		Name: "one?", MinParam: 1, MaxParam: 1, ResultKind: env.KindBool,
		Desc: "#t iff operand equals the tagged fixnum 1",
		Emit: equalsImmediate(tagging.Fixnum(1)),
	})
	Declare(&Declaration{
		Name: "null?", MinParam: 1, MaxParam: 1, ResultKind: env.KindBool,
		Desc: "#t iff operand equals the nil literal (47)",
		Emit: equalsImmediate(tagging.NilValue),
	})
	Declare(&Declaration{
		Name: "pair?", MinParam: 1, MaxParam: 1, ResultKind: env.KindBool,
		Desc: "#t iff the low 3 bits equal the cons tag",
		Emit: lowBitsEqual(7, tagging.TagCons),
	})
	Declare(&Declaration{
		Name: "vector?", MinParam: 1, MaxParam: 1, ResultKind: env.KindBool,
		Desc: "#t iff the low 3 bits equal the vector tag",
		Emit: lowBitsEqual(7, tagging.TagVector),
	})
	Declare(&Declaration{
		Name: "string?", MinParam: 1, MaxParam: 1, ResultKind: env.KindBool,
		Desc: "#t iff the low 3 bits equal the string tag",
		Emit: lowBitsEqual(7, tagging.TagString),
	})
}

func materializeBoolFromZF(ctx *Context, want int) (int, ResultKind) {
	ctx.emit("\tsete\t%%al")
	ctx.emit("\tmovzbq\t%%al, %%rax")
	ctx.emit("\tshlq\t$7, %%rax")
	ctx.emit("\torq\t$0x1f, %%rax")
	r := ctx.resultSlot(want, env.KindBool)
	ctx.movIfNeeded(ctx.regName(r), ReturnReg)
	return r, env.KindBool
}

func equalsImmediate(imm uint64) AsmEmit {
	return func(ctx *Context, args []int, want int) (int, ResultKind) {
		ctx.emit("\tcmpq\t$%d, %s", imm, ctx.regName(args[0]))
		return materializeBoolFromZF(ctx, want)
	}
}

func lowBitsEqual(mask, value uint64) AsmEmit {
	return func(ctx *Context, args []int, want int) (int, ResultKind) {
		ctx.emit("\tmovq\t%s, %%rax", ctx.regName(args[0]))
		ctx.emit("\tandq\t$%d, %%rax", mask)
		ctx.emit("\tcmpq\t$%d, %%rax", value)
		return materializeBoolFromZF(ctx, want)
	}
}
