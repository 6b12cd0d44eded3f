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
	"github.com/ilish-lang/ilish/internal/env"
)

// isSelfTailCall reports whether a call to name sits in tail position
// of the lambda currently being compiled: tail must be true (propagated
// down from compileLambdaBody through if/begin/let's own last
// sub-expression by Context.tailPos) and name must match the innermost
// lambda scope's own binding.
func (c *Context) isSelfTailCall(name string, tail bool) bool {
	if !tail {
		return false
	}
	for i := len(c.Scopes) - 1; i >= 0; i-- {
		sc := c.Scopes[i]
		if !sc.IsLambda {
			continue
		}
		return sc.LambdaName == funcLabel(name)
	}
	return false
}

// compileTailCall rewrites a self-recursive tail call into an in-place
// argument update followed by a direct jmp to the function's own
// label, skipping the call/ret machinery entirely: no new stack frame,
// no spill/restore of non-volatile registers (they're already correct
// for this same function), simply re-sequence the arguments and loop.
func (c *Context) compileTailCall(v env.Variable, args []ast.Expr, line, col int) (int, ResultKind) {
	argSlots := make([]int, len(args))
	c.tailPos = false
	for i, a := range args {
		argSlots[i], _ = c.CompileExpr(a, -1)
	}
	c.moveArgsIntoPlace(argSlots)
	for _, s := range argSlots {
		c.freeTemp(s)
	}
	c.emit("\tjmp\t%s", funcLabel(v.Name))
	// control never reaches past the jmp; the slot returned here is
	// never consulted by the caller, which is itself mid-return.
	return ReturnSlotPlaceholder, env.KindUnknown
}

// ReturnSlotPlaceholder is returned by compileTailCall, whose emitted
// jmp never falls through to any code that would read this slot.
const ReturnSlotPlaceholder = -1
