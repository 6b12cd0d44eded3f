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

// Package asm assembles textual AT&T-syntax x86-64 assembly from the
// code generator's per-section output buffers. This is the spiritual
// successor of JITWriter (scm/jit_writer.go) — same label/fixup
// bookkeeping, but emitting assembly source lines into named buffers
// instead of machine-code bytes into an mmap'd page.
package asm

import "strings"

// Section identifies one of the seven output buffers.
type Section int

const (
	SectionBSS Section = iota
	SectionData
	SectionFun
	SectionMain
	SectionQuotes
	SectionBody
	SectionEnd
	sectionCount
)

func (s Section) String() string {
	return [...]string{"bss", "data", "fun", "main", "quotes", "body", "end"}[s]
}

// Assembler collects emitted lines into the seven sections and
// concatenates them in the fixed order bss|data|fun|main|quotes|body|end.
//
// The fun section is special: it is a stack of buffers rather than a
// single append queue. Entering a lambda pushes a fresh buffer; on exit, the
// buffer is promoted back into the parent, preserving source textual
// order of function definitions even when lambdas are defined lexically
// inside other lambdas.
type Assembler struct {
	plain    [sectionCount][]string
	funStack [][]string
}

func New() *Assembler {
	a := &Assembler{}
	a.funStack = [][]string{nil} // base buffer, always present
	return a
}

// Emit appends one assembly line to the named section. SectionFun lines
// go to the innermost pushed buffer.
func (a *Assembler) Emit(sec Section, line string) {
	if sec == SectionFun {
		top := len(a.funStack) - 1
		a.funStack[top] = append(a.funStack[top], line)
		return
	}
	a.plain[sec] = append(a.plain[sec], line)
}

// Emitf is a convenience wrapper matching Emit's signature with
// formatting, used pervasively by the code generator.
func (a *Assembler) Emitf(sec Section, format string, args ...any) {
	a.Emit(sec, sprintf(format, args...))
}

// PushFun enters a new lambda: start a fresh buffer so this lambda's
// body is assembled independently of whatever lambda encloses it.
func (a *Assembler) PushFun() {
	a.funStack = append(a.funStack, nil)
}

// PopFun exits the current lambda: the just-finished buffer is
// appended (not prepended — source order within one nesting level is
// preserved) onto the parent buffer.
func (a *Assembler) PopFun() {
	n := len(a.funStack)
	if n < 2 {
		panic("asm: PopFun without matching PushFun")
	}
	finished := a.funStack[n-1]
	a.funStack = a.funStack[:n-1]
	a.funStack[n-2] = append(a.funStack[n-2], finished...)
}

// Assemble concatenates all sections in the fixed order and returns the
// final assembly text.
func (a *Assembler) Assemble() string {
	if len(a.funStack) != 1 {
		panic("asm: Assemble called with unbalanced PushFun/PopFun")
	}
	var b strings.Builder
	order := []Section{SectionBSS, SectionData, SectionFun, SectionMain, SectionQuotes, SectionBody, SectionEnd}
	for _, sec := range order {
		var lines []string
		if sec == SectionFun {
			lines = a.funStack[0]
		} else {
			lines = a.plain[sec]
		}
		for _, l := range lines {
			b.WriteString(l)
			b.WriteByte('\n')
		}
	}
	return b.String()
}
