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
	"strconv"

	"github.com/ilish-lang/ilish/internal/env"
)

func fmtUint(v uint64) string { return strconv.FormatUint(v, 10) }

// resultSlot resolves "caller wants a specific slot, or -1 for any" into
// a concrete slot index, allocating a fresh one via the free-slot query
// when the caller doesn't care — the textual equivalent of the JIT
// contract's LocAny (scm/jit_types.go).
func (c *Context) resultSlot(wantSlot int, kind ResultKind) int {
	if wantSlot >= 0 {
		c.Regs.Occupy(wantSlot, kind)
		return wantSlot
	}
	slot := c.Regs.GetFreeSlot()
	c.Regs.Occupy(slot, kind)
	return slot
}

func (c *Context) regName(slot int) string {
	return RegName(slot, c.Regs.FrameSize())
}

// movIfNeeded emits a mov from src to dst unless they name the same
// operand, since many emitters are handed a result slot that already
// happens to coincide with an input.
func (c *Context) movIfNeeded(dst, src string) {
	if dst == src {
		return
	}
	c.emit("\tmovq\t%s, %s", src, dst)
}

// freeTemp releases slot unless it is one of the reserved registers; it
// does not check whether a live variable still occupies the slot, so
// callers use this only after consuming an operand they allocated
// purely as scratch.
func (c *Context) freeTemp(slot int) {
	if env.IsReserved(slot) {
		return
	}
	c.Regs.Free(slot)
}
