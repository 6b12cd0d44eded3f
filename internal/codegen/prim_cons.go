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

// registerConsOps declares cons, car, cdr, the c[ad]+r compositions,
// set-car! and set-cdr!. Field offsets match tagging.ConsCarOffset/
// ConsCdrOffset, fixed by the original runtime's print() (-1 / +7).
func registerConsOps() {
	Declare(&Declaration{
		Name: "cons", MinParam: 2, MaxParam: 2, ResultKind: env.KindPointer,
		Desc: "allocate a 16-byte {car, cdr} record, tag the address with the cons tag",
		Emit: func(ctx *Context, args []int, want int) (int, ResultKind) {
			r := ctx.resultSlot(want, env.KindPointer)
			ctx.emitBumpAlloc(16, r)
			ctx.emit("\tmovq\t%s, (%s)", ctx.regName(args[0]), ctx.regName(r))
			ctx.emit("\tmovq\t%s, 8(%s)", ctx.regName(args[1]), ctx.regName(r))
			ctx.emit("\torq\t$%d, %s", tagging.TagCons, ctx.regName(r))
			return r, env.KindPointer
		},
	})
	Declare(&Declaration{
		Name: "car", MinParam: 1, MaxParam: 1, ResultKind: env.KindUnknown,
		Desc: "load the car field at offset -1 from the tagged cons pointer",
		Emit: consField(tagging.ConsCarOffset),
	})
	Declare(&Declaration{
		Name: "cdr", MinParam: 1, MaxParam: 1, ResultKind: env.KindUnknown,
		Desc: "load the cdr field at offset +7 from the tagged cons pointer",
		Emit: consField(tagging.ConsCdrOffset),
	})
	for _, combo := range []string{"aa", "ad", "da", "dd"} {
		name := "c" + combo + "r"
		steps := combo
		Declare(&Declaration{
			Name: name, MinParam: 1, MaxParam: 1, ResultKind: env.KindUnknown,
			Desc: "composed car/cdr access",
			Emit: func(ctx *Context, args []int, want int) (int, ResultKind) {
				r := ctx.resultSlot(want, env.KindUnknown)
				ctx.movIfNeeded(ctx.regName(r), ctx.regName(args[0]))
				// rightmost letter applies first, as in "(cadr x) = (car (cdr x))"
				for i := len(steps) - 1; i >= 0; i-- {
					off := tagging.ConsCarOffset
					if steps[i] == 'd' {
						off = tagging.ConsCdrOffset
					}
					ctx.emit("\tmovq\t%d(%s), %s", off, ctx.regName(r), ctx.regName(r))
				}
				return r, env.KindUnknown
			},
		})
	}
	Declare(&Declaration{
		Name: "set-car!", MinParam: 2, MaxParam: 2, ResultKind: env.KindNil,
		Desc: "store into the car field; result is nil",
		Emit: consSet(tagging.ConsCarOffset),
	})
	Declare(&Declaration{
		Name: "set-cdr!", MinParam: 2, MaxParam: 2, ResultKind: env.KindNil,
		Desc: "store into the cdr field; result is nil",
		Emit: consSet(tagging.ConsCdrOffset),
	})
}

func consField(offset int) AsmEmit {
	return func(ctx *Context, args []int, want int) (int, ResultKind) {
		r := ctx.resultSlot(want, env.KindUnknown)
		ctx.emit("\tmovq\t%d(%s), %s", offset, ctx.regName(args[0]), ctx.regName(r))
		return r, env.KindUnknown
	}
}

func consSet(offset int) AsmEmit {
	return func(ctx *Context, args []int, want int) (int, ResultKind) {
		ctx.emit("\tmovq\t%s, %d(%s)", ctx.regName(args[1]), offset, ctx.regName(args[0]))
		r := ctx.resultSlot(want, env.KindNil)
		ctx.emit("\tmovq\t$%d, %s", tagging.NilValue, ctx.regName(r))
		return r, env.KindNil
	}
}
