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

// registerVectorOps declares make-vector, vector, vector-ref,
// vector-set! and vector-length. Slot access uses scale-8 indexing from
// offset +6 (tagging.VectorElemBase); length at -2
// (tagging.VectorLenOffset).
func registerVectorOps() {
	Declare(&Declaration{
		Name: "make-vector", MinParam: 1, MaxParam: 2, ResultKind: env.KindPointer,
		Desc: "allocate a vector of n elements, optionally initialized",
		Emit: func(ctx *Context, args []int, want int) (int, ResultKind) {
			n := ctx.Regs.GetFreeSlot()
			ctx.Regs.Occupy(n, env.KindFixnum)
			ctx.emit("\tmovq\t%s, %s", ctx.regName(args[0]), ctx.regName(n))
			ctx.emit("\tsarq\t$2, %s", ctx.regName(n)) // untag n

			size := ctx.Regs.GetFreeSlotAfter(0)
			ctx.Regs.Occupy(size, env.KindFixnum)
			ctx.emit("\tleaq\t8(,%s,8), %s", ctx.regName(n), ctx.regName(size))

			ctx.emitCollectCheckDynamic(size, -1)
			r := ctx.resultSlot(want, env.KindPointer)
			ctx.movIfNeeded(ctx.regName(r), ctx.regName(HeapPtrReg))
			ctx.emit("\taddq\t%s, %s", ctx.regName(size), ctx.regName(HeapPtrReg))

			// header: len_tagged = n << 2, i.e. the original tagged arg
			ctx.emit("\tmovq\t%s, (%s)", ctx.regName(args[0]), ctx.regName(r))

			init := "$" + fmtUint(tagging.NilValue)
			if len(args) > 1 {
				init = ctx.regName(args[1])
			}
			loop := ctx.Labels.New("makevec_loop")
			done := ctx.Labels.New("makevec_done")
			idx := ctx.Regs.GetFreeSlotAfter(0)
			ctx.Regs.Occupy(idx, env.KindFixnum)
			ctx.emit("\txorq\t%s, %s", ctx.regName(idx), ctx.regName(idx))
			ctx.emit("%s:", loop)
			ctx.emit("\tcmpq\t%s, %s", ctx.regName(n), ctx.regName(idx))
			ctx.emit("\tjge\t%s", done)
			ctx.emit("\tmovq\t%s, %d(%s,%s,8)", init, tagging.VectorElemBase+tagging.TagVector, ctx.regName(r), ctx.regName(idx))
			ctx.emit("\tincq\t%s", ctx.regName(idx))
			ctx.emit("\tjmp\t%s", loop)
			ctx.emit("%s:", done)
			ctx.emit("\torq\t$%d, %s", tagging.TagVector, ctx.regName(r))

			ctx.freeTemp(n)
			ctx.freeTemp(size)
			ctx.freeTemp(idx)
			return r, env.KindPointer
		},
	})
	Declare(&Declaration{
		Name: "vector", MinParam: 0, MaxParam: -1, ResultKind: env.KindPointer,
		Desc: "allocate a vector literal from already-evaluated elements",
		Emit: func(ctx *Context, args []int, want int) (int, ResultKind) {
			n := len(args)
			size := 8 + n*8
			r := ctx.resultSlot(want, env.KindPointer)
			ctx.emitBumpAllocNoTag(size, r)
			ctx.emit("\tmovq\t$%d, (%s)", tagging.VectorLenTagged(n), ctx.regName(r))
			for i, a := range args {
				ctx.emit("\tmovq\t%s, %d(%s)", ctx.regName(a), tagging.VectorElemBase+tagging.TagVector+i*8, ctx.regName(r))
			}
			ctx.emit("\torq\t$%d, %s", tagging.TagVector, ctx.regName(r))
			return r, env.KindPointer
		},
	})
	Declare(&Declaration{
		Name: "vector-ref", MinParam: 2, MaxParam: 2, ResultKind: env.KindUnknown,
		Desc: "scale-8 indexed load from offset +6",
		Emit: func(ctx *Context, args []int, want int) (int, ResultKind) {
			idx := ctx.Regs.GetFreeSlot()
			ctx.Regs.Occupy(idx, env.KindFixnum)
			ctx.emit("\tmovq\t%s, %s", ctx.regName(args[1]), ctx.regName(idx))
			ctx.emit("\tsarq\t$2, %s", ctx.regName(idx))
			r := ctx.resultSlot(want, env.KindUnknown)
			ctx.emit("\tmovq\t%d(%s,%s,8), %s", tagging.VectorElemBase, ctx.regName(args[0]), ctx.regName(idx), ctx.regName(r))
			ctx.freeTemp(idx)
			return r, env.KindUnknown
		},
	})
	Declare(&Declaration{
		Name: "vector-set!", MinParam: 3, MaxParam: 3, ResultKind: env.KindNil,
		Desc: "scale-8 indexed store at offset +6; result is nil",
		Emit: func(ctx *Context, args []int, want int) (int, ResultKind) {
			idx := ctx.Regs.GetFreeSlot()
			ctx.Regs.Occupy(idx, env.KindFixnum)
			ctx.emit("\tmovq\t%s, %s", ctx.regName(args[1]), ctx.regName(idx))
			ctx.emit("\tsarq\t$2, %s", ctx.regName(idx))
			ctx.emit("\tmovq\t%s, %d(%s,%s,8)", ctx.regName(args[2]), tagging.VectorElemBase, ctx.regName(args[0]), ctx.regName(idx))
			ctx.freeTemp(idx)
			r := ctx.resultSlot(want, env.KindNil)
			ctx.emit("\tmovq\t$%d, %s", tagging.NilValue, ctx.regName(r))
			return r, env.KindNil
		},
	})
	Declare(&Declaration{
		Name: "vector-length", MinParam: 1, MaxParam: 1, ResultKind: env.KindFixnum,
		Desc: "length field at offset -2, already fixnum-tagged (len << 2)",
		Emit: func(ctx *Context, args []int, want int) (int, ResultKind) {
			r := ctx.resultSlot(want, env.KindFixnum)
			ctx.emit("\tmovq\t%d(%s), %s", tagging.VectorLenOffset, ctx.regName(args[0]), ctx.regName(r))
			return r, env.KindFixnum
		},
	})
}
