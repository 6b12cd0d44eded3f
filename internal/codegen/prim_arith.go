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

// registerArithmetic declares 1+, 1-, +, -, and, or, *, / and modulo.
func registerArithmetic() {
	Declare(&Declaration{
		Name: "1+", MinParam: 1, MaxParam: 1, ResultKind: env.KindUnknown,
		Desc: "add the fixnum representation of 1 (= 4)",
		Emit: func(ctx *Context, args []int, want int) (int, ResultKind) {
			r := ctx.resultSlot(want, env.KindUnknown)
			ctx.movIfNeeded(ctx.regName(r), ctx.regName(args[0]))
			ctx.emit("\taddq\t$4, %s", ctx.regName(r))
			return r, env.KindUnknown
		},
	})
	Declare(&Declaration{
		Name: "1-", MinParam: 1, MaxParam: 1, ResultKind: env.KindUnknown,
		Desc: "subtract the fixnum representation of 1 (= 4)",
		Emit: func(ctx *Context, args []int, want int) (int, ResultKind) {
			r := ctx.resultSlot(want, env.KindUnknown)
			ctx.movIfNeeded(ctx.regName(r), ctx.regName(args[0]))
			ctx.emit("\tsubq\t$4, %s", ctx.regName(r))
			return r, env.KindUnknown
		},
	})
	Declare(&Declaration{
		Name: "+", MinParam: 2, MaxParam: -1, ResultKind: env.KindUnknown,
		Desc: "left-fold addition; result accumulates in the result slot",
		Emit: leftFold("addq"),
	})
	Declare(&Declaration{
		Name: "-", MinParam: 2, MaxParam: -1, ResultKind: env.KindUnknown,
		Desc: "left-fold subtraction; result accumulates in the result slot",
		Emit: leftFold("subq"),
	})
	Declare(&Declaration{
		Name: "and", MinParam: 2, MaxParam: -1, ResultKind: env.KindUnknown,
		Desc: "left-fold bitwise and over tagged operands",
		Emit: leftFold("andq"),
	})
	Declare(&Declaration{
		Name: "or", MinParam: 2, MaxParam: -1, ResultKind: env.KindUnknown,
		Desc: "left-fold bitwise or over tagged operands",
		Emit: leftFold("orq"),
	})
	Declare(&Declaration{
		Name: "*", MinParam: 2, MaxParam: 2, ResultKind: env.KindUnknown,
		Desc: "tagged multiply: shift one operand right by 2 first so the product keeps a clear low-2-bit tag",
		Emit: func(ctx *Context, args []int, want int) (int, ResultKind) {
			r := ctx.resultSlot(want, env.KindUnknown)
			ctx.movIfNeeded(ctx.regName(r), ctx.regName(args[0]))
			ctx.emit("\tsarq\t$2, %s", ctx.regName(r))
			if ctx.regName(r) == ReturnReg {
				ctx.emit("\timulq\t%s, %s", ctx.regName(args[1]), ReturnReg)
			} else {
				ctx.emit("\tmovq\t%s, %s", ctx.regName(r), ReturnReg)
				ctx.emit("\timulq\t%s, %s", ctx.regName(args[1]), ReturnReg)
				ctx.emit("\tmovq\t%s, %s", ReturnReg, ctx.regName(r))
			}
			return r, env.KindUnknown
		},
	})
	Declare(&Declaration{
		Name: "/", MinParam: 2, MaxParam: 2, ResultKind: env.KindUnknown,
		Desc: "tagged divide: shift the quotient left by 2 after dividing",
		Emit: func(ctx *Context, args []int, want int) (int, ResultKind) {
			ctx.emit("\tmovq\t%s, %%rax", ctx.regName(args[0]))
			ctx.emit("\tcqto")
			ctx.emit("\tmovq\t%s, %%r11", ctx.regName(args[1]))
			ctx.emit("\tidivq\t%%r11")
			ctx.emit("\tsalq\t$2, %%rax")
			r := ctx.resultSlot(want, env.KindUnknown)
			ctx.movIfNeeded(ctx.regName(r), ReturnReg)
			return r, env.KindUnknown
		},
	})
	Declare(&Declaration{
		Name: "modulo", MinParam: 2, MaxParam: 2, ResultKind: env.KindUnknown,
		Desc: "128-bit dividend/remainder pair; spills a live remainder-register value across the divide",
		Emit: func(ctx *Context, args []int, want int) (int, ResultKind) {
			remainderLive := ctx.Regs.Slot(2).Kind != env.KindUnused // %rdx == slot 2
			if remainderLive {
				ctx.emit("\tpushq\t%%rdx")
			}
			ctx.emit("\tmovq\t%s, %%rax", ctx.regName(args[0]))
			ctx.emit("\tcqto")
			ctx.emit("\tmovq\t%s, %%r11", ctx.regName(args[1]))
			ctx.emit("\tidivq\t%%r11")
			ctx.emit("\tmovq\t%%rdx, %%rax")
			if remainderLive {
				ctx.emit("\tpopq\t%%rdx")
			}
			r := ctx.resultSlot(want, env.KindUnknown)
			ctx.movIfNeeded(ctx.regName(r), ReturnReg)
			return r, env.KindUnknown
		},
	})
}

// leftFold builds an AsmEmit that folds op across args[0..] left to
// right, accumulating into the result slot.
func leftFold(op string) AsmEmit {
	return func(ctx *Context, args []int, want int) (int, ResultKind) {
		r := ctx.resultSlot(want, env.KindUnknown)
		ctx.movIfNeeded(ctx.regName(r), ctx.regName(args[0]))
		for _, a := range args[1:] {
			ctx.emit("\t%s\t%s, %s", op, ctx.regName(a), ctx.regName(r))
		}
		return r, env.KindUnknown
	}
}
