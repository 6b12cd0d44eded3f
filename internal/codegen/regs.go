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

// regNames is the System V AMD64 register assigned to each of the fixed
// register/slot indices. This assignment is load-bearing: it must
// match the linked runtime exactly.
//
//	0-5   SysV argument registers (rdi, rsi, rdx, rcx, r8, r9), volatile
//	6-8   non-volatile general purpose (rbx, r12, r13)
//	9     closure env pointer         (r14)
//	10    GC allocation (heap) ptr    (r15)
//	11    root-stack top pointer      (rbp; frame pointer is not used,
//	      spill slots are addressed relative to rsp instead)
var regNames = [env.FirstSpill]string{
	"%rdi", "%rsi", "%rdx", "%rcx", "%r8", "%r9",
	"%rbx", "%r12", "%r13",
	"%r14", "%r15", "%rbp",
}

// RegName returns the operand text for slot index i: a hardware
// register name for i < 12, or an rsp-relative memory operand for
// spill slots.
func RegName(i, frameSize int) string {
	if i < env.FirstSpill {
		return regNames[i]
	}
	return fmt.Sprintf("%d(%%rsp)", env.StackOffset(i, frameSize))
}

const (
	ClosureEnvReg = env.ClosureEnvReg
	HeapPtrReg    = env.HeapPtrReg
	RootStackReg  = env.RootStackReg
)

// ReturnReg is the register holding the tagged result of every
// expression.
const ReturnReg = "%rax"

// ScratchReg is used internally by emit helpers for two-operand
// instructions that would otherwise need a third hand; never allocated
// by the environment's free-slot queries.
const ScratchReg = "%r11"
