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

import "github.com/ilish-lang/ilish/internal/env"

// registerMisc declares primitives that don't fit an arithmetic,
// comparison, predicate, cons, vector or string shape.
func registerMisc() {
	Declare(&Declaration{
		Name: "exit", MinParam: 0, MaxParam: 1, ResultKind: env.KindNil,
		Desc: "emits a direct SYS_EXIT system call; never returns",
		Emit: func(ctx *Context, args []int, want int) (int, ResultKind) {
			if len(args) == 0 {
				ctx.emit("\txorq\t%%rdi, %%rdi")
			} else {
				ctx.emit("\tmovq\t%s, %%rdi", ctx.regName(args[0]))
				ctx.emit("\tsarq\t$2, %%rdi")
			}
			ctx.emit("\tmovq\t$60, %%rax")
			ctx.emit("\tsyscall")
			r := ctx.resultSlot(want, env.KindNil)
			return r, env.KindNil
		},
	})
	Declare(&Declaration{
		Name: "not", MinParam: 1, MaxParam: 1, ResultKind: env.KindBool,
		Desc: "logical negation; only #f is falsy, every other value (including nil) is true",
		Emit: func(ctx *Context, args []int, want int) (int, ResultKind) {
			r := ctx.resultSlot(want, env.KindBool)
			ctx.emit("\tcmpq\t$%d, %s", falseLiteral, ctx.regName(args[0]))
			ctx.emit("\tsete\t%%al")
			ctx.emit("\tmovzbq\t%%al, %s", ctx.regName(r))
			ctx.emit("\tshlq\t$7, %s", ctx.regName(r))
			ctx.emit("\torq\t$0x1f, %s", ctx.regName(r))
			return r, env.KindBool
		},
	})
	Declare(&Declaration{
		Name: "eq?", MinParam: 2, MaxParam: 2, ResultKind: env.KindBool,
		Desc: "raw 64-bit identity comparison of the tagged representations",
		Emit: compareEmit("sete"),
	})
}

const falseLiteral = 0x1f
