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

// moveArgsIntoPlace sequences a parallel assignment srcSlots[i] ->
// argument register i, the k*k dependency problem that arises whenever
// one argument's already-evaluated slot happens to sit in a register
// another argument also needs to land in (e.g. swapping two locals
// passed in opposite argument order). Naively moving left to right
// would clobber a still-needed source.
//
// This builds a dependency graph (an edge src->dst whenever dst is
// itself some other move's source) and repeatedly emits any move whose
// destination is not still needed as a source (an "echelon" move, safe
// to perform immediately); when every remaining move is part of a
// cycle, one slot in the cycle is evicted to a fresh scratch slot via
// VarTable.ReassignAfter, which breaks the cycle at the cost of one
// extra register copy.
func (c *Context) moveArgsIntoPlace(srcSlots []int) {
	n := len(srcSlots)
	dst := make([]int, n)
	for i := range dst {
		dst[i] = i
	}
	src := append([]int(nil), srcSlots...)
	done := make([]bool, n)

	remaining := n
	for remaining > 0 {
		progressed := false
		for i := 0; i < n; i++ {
			if done[i] || src[i] == dst[i] {
				if !done[i] {
					done[i] = true
					remaining--
					progressed = true
				}
				continue
			}
			if c.isNeededAsSource(src, done, dst[i]) {
				continue
			}
			c.emit("\tmovq\t%s, %s", c.regName(src[i]), c.regName(dst[i]))
			done[i] = true
			remaining--
			progressed = true
		}
		if progressed || remaining == 0 {
			continue
		}
		// every remaining move is part of a cycle: evict one source to
		// a fresh slot, which severs the cycle, then retry.
		for i := 0; i < n; i++ {
			if done[i] {
				continue
			}
			fresh := c.Vars.ReassignAfter(c.Regs, src[i], env.FirstSpill-1)
			c.emit("\tmovq\t%s, %s", c.regName(src[i]), c.regName(fresh))
			src[i] = fresh
			break
		}
	}
}

func (c *Context) isNeededAsSource(src []int, done []bool, reg int) bool {
	for i, s := range src {
		if !done[i] && s == reg {
			return true
		}
	}
	return false
}
