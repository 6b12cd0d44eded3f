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
	"fmt"

	"github.com/ilish-lang/ilish/internal/env"
)

// registerComparison declares =, <, <=, >, >=: compare, materialize a
// 0/1 byte, then shift+or it into the boolean tag bit pattern.
func registerComparison() {
	for name, setcc := range map[string]string{
		"=": "sete", "<": "setl", "<=": "setle", ">": "setg", ">=": "setge",
	} {
		Declare(&Declaration{
			Name: name, MinParam: 2, MaxParam: 2, ResultKind: env.KindBool,
			Desc: fmt.Sprintf("compare operands, materialize Boolean via %s", setcc),
			Emit: compareEmit(setcc),
		})
	}
}

func compareEmit(setcc string) AsmEmit {
	return func(ctx *Context, args []int, want int) (int, ResultKind) {
		ctx.emit("\tcmpq\t%s, %s", ctx.regName(args[1]), ctx.regName(args[0]))
		ctx.emit("\t%s\t%%al", setcc)
		ctx.emit("\tmovzbq\t%%al, %%rax")
		// bool tag: (bit << 7) | 0x1f
		ctx.emit("\tshlq\t$7, %%rax")
		ctx.emit("\torq\t$0x1f, %%rax")
		r := ctx.resultSlot(want, env.KindBool)
		ctx.movIfNeeded(ctx.regName(r), ReturnReg)
		return r, env.KindBool
	}
}
