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

// rootPointers pushes the current value of every occupied, non-reserved
// slot that might hold a heap pointer (KindPointer, or KindUnknown
// since a call result's exact kind is never narrowed) onto the root
// stack pointed to by RootStackReg, advancing it one word per slot.
// skip excludes one slot from rooting — an allocation's own
// destination slot, already Occupy'd with KindPointer so GetFreeSlot
// won't hand it out again, but not yet holding a valid object address
// at collect-check time. It returns the rooted slots in push order, so
// unrootPointers can reload them in reverse once collect returns.
func (c *Context) rootPointers(skip int) []int {
	var rooted []int
	top := env.FirstSpill + c.Regs.FrameSize()
	for i := 0; i < top; i++ {
		if env.IsReserved(i) || i == skip {
			continue
		}
		k := c.Regs.Slot(i).Kind
		if k != env.KindPointer && k != env.KindUnknown {
			continue
		}
		if i >= env.FirstSpill {
			// movq can't take two memory operands; stage through the
			// scratch register.
			c.emit("\tmovq\t%s, %s", c.regName(i), ScratchReg)
			c.emit("\tmovq\t%s, (%s)", ScratchReg, c.regName(RootStackReg))
		} else {
			c.emit("\tmovq\t%s, (%s)", c.regName(i), c.regName(RootStackReg))
		}
		c.emit("\taddq\t$8, %s", c.regName(RootStackReg))
		rooted = append(rooted, i)
	}
	return rooted
}

// unrootPointers walks RootStackReg back down over rooted (in reverse
// push order) and reloads each slot, picking up whatever address
// collect relocated it to.
func (c *Context) unrootPointers(rooted []int) {
	for i := len(rooted) - 1; i >= 0; i-- {
		slot := rooted[i]
		c.emit("\tsubq\t$8, %s", c.regName(RootStackReg))
		if slot >= env.FirstSpill {
			c.emit("\tmovq\t(%s), %s", c.regName(RootStackReg), ScratchReg)
			c.emit("\tmovq\t%s, %s", ScratchReg, c.regName(slot))
		} else {
			c.emit("\tmovq\t(%s), %s", c.regName(RootStackReg), c.regName(slot))
		}
	}
}

// emitCollectCheck emits a call to the runtime's collect(rs_top, bytes)
// before an inline allocation. The call is emitted before every
// allocation; no static budget of cumulative requests is kept to skip
// it, and collect itself returns at once when the request fits.
//
// Every live pointer-kind slot is pushed onto the root stack before the
// call (skip excluded — see rootPointers) and reloaded from it after,
// since collect can relocate any object it copies into tospace.
func (c *Context) emitCollectCheck(sizeBytes, skip int) {
	rooted := c.rootPointers(skip)
	c.emit("\tmovq\t%s, %%rdi", c.regName(RootStackReg))
	c.emit("\tmovq\t$%d, %%rsi", sizeBytes)
	c.emit("\tcallq\tcollect")
	c.emit("\tmovq\t%%rax, %s", c.regName(HeapPtrReg))
	c.unrootPointers(rooted)
}

// emitCollectCheckDynamic is emitCollectCheck for a size only known at
// runtime (e.g. make-vector with a non-constant count), held in sizeSlot.
func (c *Context) emitCollectCheckDynamic(sizeSlot, skip int) {
	rooted := c.rootPointers(skip)
	c.emit("\tmovq\t%s, %%rdi", c.regName(RootStackReg))
	c.emit("\tmovq\t%s, %%rsi", c.regName(sizeSlot))
	c.emit("\tcallq\tcollect")
	c.emit("\tmovq\t%%rax, %s", c.regName(HeapPtrReg))
	c.unrootPointers(rooted)
}

// emitBumpAllocNoTag emits the same sequence as emitBumpAlloc; neither
// writes a header or a tag, which the caller does itself.
func (c *Context) emitBumpAllocNoTag(sizeBytes, dstSlot int) {
	c.emitCollectCheck(sizeBytes, dstSlot)
	c.movIfNeeded(c.regName(dstSlot), c.regName(HeapPtrReg))
	c.emit("\taddq\t$%d, %s", sizeBytes, c.regName(HeapPtrReg))
}

// emitBumpAlloc reserves sizeBytes at the current gen0 bump pointer,
// writes its address into dstSlot, and advances the heap pointer
// register. No call may be interleaved between the check and this
// write: no allocation may occur between the decision to allocate and
// the write of the allocated object's header.
func (c *Context) emitBumpAlloc(sizeBytes, dstSlot int) {
	c.emitCollectCheck(sizeBytes, dstSlot)
	c.movIfNeeded(c.regName(dstSlot), c.regName(HeapPtrReg))
	c.emit("\taddq\t$%d, %s", sizeBytes, c.regName(HeapPtrReg))
}

// emitBoxAlloc allocates an 8-byte indirection cell into cell, copying
// valueSlot's current value into it. Used at a binding site (a lambda
// parameter or a let binding) whenever boxAnalysis finds the name
// captured and mutated by a nested closure. The caller picks cell via
// GetFreeSlotAfter with whatever lower bound keeps it clear of
// not-yet-consumed argument registers.
func (c *Context) emitBoxAlloc(valueSlot, cell int) {
	c.Regs.Occupy(cell, env.KindPointer)
	c.emitBumpAllocNoTag(tagging.BoxSize, cell)
	c.emit("\tmovq\t%s, (%s)", c.regName(valueSlot), c.regName(cell))
	c.emit("\torq\t$%d, %s", tagging.TagBox, c.regName(cell))
}
