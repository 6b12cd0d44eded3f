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

// registerStringOps declares make-string, string, string-ref,
// string-set! and string-length. The header word at offset -3 encodes
// byte-count and the is_utf8 flag (tagging.StringLenFlag); string-ref
// on a UTF-8-flagged string finds the k-th code point by skipping
// continuation bytes (bytes whose top two bits are 10) and yields that
// code point's first byte; multi-byte sequences are not decoded.
func registerStringOps() {
	Declare(&Declaration{
		Name: "make-string", MinParam: 1, MaxParam: 2, ResultKind: env.KindPointer,
		Desc: "allocate an ASCII string of n bytes, optionally filled with a repeated char",
		Emit: func(ctx *Context, args []int, want int) (int, ResultKind) {
			n := ctx.Regs.GetFreeSlot()
			ctx.Regs.Occupy(n, env.KindFixnum)
			ctx.emit("\tmovq\t%s, %s", ctx.regName(args[0]), ctx.regName(n))
			ctx.emit("\tsarq\t$2, %s", ctx.regName(n))

			size := ctx.Regs.GetFreeSlotAfter(0)
			ctx.Regs.Occupy(size, env.KindFixnum)
			ctx.emit("\tleaq\t15(%s), %s", ctx.regName(n), ctx.regName(size))
			ctx.emit("\tandq\t$-8, %s", ctx.regName(size))

			ctx.emitCollectCheckDynamic(size, -1)
			r := ctx.resultSlot(want, env.KindPointer)
			ctx.movIfNeeded(ctx.regName(r), ctx.regName(HeapPtrReg))
			ctx.emit("\taddq\t%s, %s", ctx.regName(size), ctx.regName(HeapPtrReg))
			// header: StringLenFlag(n, false) = n << 1, from the tagged n << 2
			ctx.emit("\tmovq\t%s, %%r11", ctx.regName(args[0]))
			ctx.emit("\tsarq\t$1, %%r11")
			ctx.emit("\tmovq\t%%r11, (%s)", ctx.regName(r))

			fill := "$32" // space
			if len(args) > 1 {
				fillByte := ctx.Regs.GetFreeSlotAfter(0)
				ctx.Regs.Occupy(fillByte, env.KindFixnum)
				ctx.emit("\tmovq\t%s, %s", ctx.regName(args[1]), ctx.regName(fillByte))
				ctx.emit("\tsarq\t$8, %s", ctx.regName(fillByte))
				fill = ctx.regName(fillByte)
			}
			loop := ctx.Labels.New("makestr_loop")
			done := ctx.Labels.New("makestr_done")
			idx := ctx.Regs.GetFreeSlotAfter(0)
			ctx.Regs.Occupy(idx, env.KindFixnum)
			ctx.emit("\txorq\t%s, %s", ctx.regName(idx), ctx.regName(idx))
			ctx.emit("%s:", loop)
			ctx.emit("\tcmpq\t%s, %s", ctx.regName(n), ctx.regName(idx))
			ctx.emit("\tjge\t%s", done)
			ctx.emit("\tmovb\t%s, %d(%s,%s,1)", fill, tagging.StringByteBase+tagging.TagString, ctx.regName(r), ctx.regName(idx))
			ctx.emit("\tincq\t%s", ctx.regName(idx))
			ctx.emit("\tjmp\t%s", loop)
			ctx.emit("%s:", done)
			ctx.emit("\torq\t$%d, %s", tagging.TagString, ctx.regName(r))
			ctx.freeTemp(n)
			ctx.freeTemp(size)
			ctx.freeTemp(idx)
			return r, env.KindPointer
		},
	})
	Declare(&Declaration{
		Name: "string", MinParam: 0, MaxParam: -1, ResultKind: env.KindPointer,
		Desc: "allocate a string literal from already-evaluated char arguments (ASCII only)",
		Emit: func(ctx *Context, args []int, want int) (int, ResultKind) {
			n := len(args)
			size := 8 + n
			// round up to 8-byte alignment for the bump pointer
			size = (size + 7) &^ 7
			r := ctx.resultSlot(want, env.KindPointer)
			ctx.emitBumpAllocNoTag(size, r)
			ctx.emit("\tmovq\t$%d, (%s)", tagging.StringLenFlag(n, false), ctx.regName(r))
			for i, a := range args {
				ctx.emit("\tmovq\t%s, %%r11", ctx.regName(a))
				ctx.emit("\tsarq\t$8, %%r11")
				ctx.emit("\tmovb\t%%r11b, %d(%s)", tagging.StringByteBase+tagging.TagString+i, ctx.regName(r))
			}
			ctx.emit("\torq\t$%d, %s", tagging.TagString, ctx.regName(r))
			return r, env.KindPointer
		},
	})
	Declare(&Declaration{
		Name: "string-ref", MinParam: 2, MaxParam: 2, ResultKind: env.KindChar,
		Desc: "ASCII: direct byte index; UTF-8: scan continuation bits from the start, yielding the code point's first byte",
		Emit: func(ctx *Context, args []int, want int) (int, ResultKind) {
			header := ctx.Regs.GetFreeSlot()
			ctx.Regs.Occupy(header, env.KindFixnum)
			ctx.emit("\tmovq\t%d(%s), %s", tagging.StringLenOffset, ctx.regName(args[0]), ctx.regName(header))

			utf8 := ctx.Labels.New("stringref_utf8")
			endif := ctx.Labels.New("stringref_end")
			ctx.emit("\ttestq\t$1, %s", ctx.regName(header))
			ctx.emit("\tjnz\t%s", utf8)

			idx := ctx.Regs.GetFreeSlotAfter(0)
			ctx.Regs.Occupy(idx, env.KindFixnum)
			ctx.emit("\tmovq\t%s, %s", ctx.regName(args[1]), ctx.regName(idx))
			ctx.emit("\tsarq\t$2, %s", ctx.regName(idx))
			r := ctx.resultSlot(want, env.KindChar)
			ctx.emit("\tmovzbq\t%d(%s,%s,1), %s", tagging.StringByteBase, ctx.regName(args[0]), ctx.regName(idx), ctx.regName(r))
			ctx.emit("\tshlq\t$8, %s", ctx.regName(r))
			ctx.emit("\torq\t$%d, %s", tagging.TagChar, ctx.regName(r))
			ctx.emit("\tjmp\t%s", endif)

			ctx.emit("%s:", utf8)
			ctx.emitUTF8Scan(args[0], args[1], r)
			ctx.emit("%s:", endif)

			ctx.freeTemp(header)
			ctx.freeTemp(idx)
			return r, env.KindChar
		},
	})
	Declare(&Declaration{
		Name: "string-set!", MinParam: 3, MaxParam: 3, ResultKind: env.KindNil,
		Desc: "ASCII strings only; stores the char's low byte, and a Unicode char argument is not diagnosed",
		Emit: func(ctx *Context, args []int, want int) (int, ResultKind) {
			idx := ctx.Regs.GetFreeSlot()
			ctx.Regs.Occupy(idx, env.KindFixnum)
			ctx.emit("\tmovq\t%s, %s", ctx.regName(args[1]), ctx.regName(idx))
			ctx.emit("\tsarq\t$2, %s", ctx.regName(idx))
			ctx.emit("\tmovq\t%s, %%r11", ctx.regName(args[2]))
			ctx.emit("\tsarq\t$8, %%r11")
			ctx.emit("\tmovb\t%%r11b, %d(%s,%s,1)", tagging.StringByteBase, ctx.regName(args[0]), ctx.regName(idx))
			ctx.freeTemp(idx)
			r := ctx.resultSlot(want, env.KindNil)
			ctx.emit("\tmovq\t$%d, %s", tagging.NilValue, ctx.regName(r))
			return r, env.KindNil
		},
	})
	Declare(&Declaration{
		Name: "string-length", MinParam: 1, MaxParam: 1, ResultKind: env.KindFixnum,
		Desc: "byte count from the header; for a UTF-8 string this is the byte count, not the code-point count",
		Emit: func(ctx *Context, args []int, want int) (int, ResultKind) {
			header := ctx.Regs.GetFreeSlot()
			ctx.Regs.Occupy(header, env.KindFixnum)
			ctx.emit("\tmovq\t%d(%s), %s", tagging.StringLenOffset, ctx.regName(args[0]), ctx.regName(header))
			r := ctx.resultSlot(want, env.KindFixnum)
			// byte count = header >> 1 (ASCII case: code-point count == byte count)
			ctx.movIfNeeded(ctx.regName(r), ctx.regName(header))
			ctx.emit("\tshrq\t$1, %s", ctx.regName(r))
			ctx.emit("\tshlq\t$2, %s", ctx.regName(r)) // re-tag as fixnum
			ctx.freeTemp(header)
			return r, env.KindFixnum
		},
	})
}

// emitUTF8Scan walks strSlot's bytes from the start counting code
// points (bytes whose top two bits are not "10") until reaching the
// k-th one (idxSlot, tagged fixnum), and places that code point's first
// byte into resultSlot as a tagged char; continuation bytes are not
// folded into the result.
func (c *Context) emitUTF8Scan(strSlot, idxSlot, resultSlot int) {
	want := c.Regs.GetFreeSlot()
	c.Regs.Occupy(want, env.KindFixnum)
	c.emit("\tmovq\t%s, %s", c.regName(idxSlot), c.regName(want))
	c.emit("\tsarq\t$2, %s", c.regName(want))

	pos := c.Regs.GetFreeSlotAfter(0)
	c.Regs.Occupy(pos, env.KindFixnum)
	count := c.Regs.GetFreeSlotAfter(0)
	c.Regs.Occupy(count, env.KindFixnum)
	c.emit("\txorq\t%s, %s", c.regName(pos), c.regName(pos))
	c.emit("\txorq\t%s, %s", c.regName(count), c.regName(count))

	loop := c.Labels.New("utf8scan_loop")
	found := c.Labels.New("utf8scan_found")
	advance := c.Labels.New("utf8scan_advance")

	c.emit("%s:", loop)
	c.emit("\tcmpq\t%s, %s", c.regName(want), c.regName(count))
	c.emit("\tjne\t%s", advance)
	c.emit("\tjmp\t%s", found)
	c.emit("%s:", advance)
	c.emit("\tmovzbq\t%d(%s,%s,1), %%r11", tagging.StringByteBase, c.regName(strSlot), c.regName(pos))
	c.emit("\tincq\t%s", c.regName(pos))
	c.emit("\tincq\t%s", c.regName(count))
	// skip continuation bytes (top bits 10xxxxxx)
	skip := c.Labels.New("utf8scan_skip")
	c.emit("%s:", skip)
	c.emit("\tmovzbq\t%d(%s,%s,1), %%r10", tagging.StringByteBase, c.regName(strSlot), c.regName(pos))
	c.emit("\tandq\t$0xc0, %%r10")
	c.emit("\tcmpq\t$0x80, %%r10")
	c.emit("\tjne\t%s", loop)
	c.emit("\tincq\t%s", c.regName(pos))
	c.emit("\tjmp\t%s", skip)
	c.emit("%s:", found)
	c.emit("\tmovzbq\t%d(%s,%s,1), %s", tagging.StringByteBase, c.regName(strSlot), c.regName(pos), c.regName(resultSlot))
	c.emit("\tshlq\t$8, %s", c.regName(resultSlot))
	c.emit("\torq\t$%d, %s", tagging.TagChar, c.regName(resultSlot))

	c.freeTemp(want)
	c.freeTemp(pos)
	c.freeTemp(count)
}
