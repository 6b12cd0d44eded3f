/*
Copyright (C) 2026  Carl-Philip Hänsch

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
	"github.com/ilish-lang/ilish/internal/asm"
	"github.com/ilish-lang/ilish/internal/tagging"
)

// EmitMain appends one pre-formatted line to the main section, used by
// the top-level compile pipeline for the program's entry-point
// prologue and exit-syscall epilogue — the only two pieces of assembly
// not produced by compiling an expression.
func (c *Context) EmitMain(line string) {
	c.Out.Emit(asm.SectionMain, line)
}

// Finalize writes every accumulated constant-pool and string-data
// entry into the quotes section, once expression compilation has
// finished. It must run exactly once per Context before Out.Assemble.
//
// Alias entries (a lambda's own self-reference) are skipped: their
// label is already defined as that function's entry point in the fun
// section, and emitting a second definition here would be a duplicate
// symbol at assembly time.
func (c *Context) Finalize() {
	stringLabels := make(map[string]string, len(c.stringData))
	for _, sd := range c.stringData {
		stringLabels[sd.label] = sd.value
	}

	for _, ce := range c.ConstPool {
		if ce.Alias {
			continue
		}
		c.Out.Emitf(asm.SectionQuotes, "%s:", ce.Label)
		c.Out.Emitf(asm.SectionQuotes, "\t.quad %d", ce.Value)
		if s, ok := stringLabels[ce.Label]; ok {
			emitStringBytes(c, s)
		}
	}

	for _, label := range c.pendingQuoteData {
		// placeholder: structured (list/vector) quote literals are not
		// yet serialized into heap-shaped constant data, so every
		// occurrence currently evaluates to nil rather than the
		// literal's actual structure.
		c.Out.Emitf(asm.SectionQuotes, "%s:", label)
		c.Out.Emitf(asm.SectionQuotes, "\t.quad %d", tagging.NilValue)
	}
}

// emitStringBytes appends the raw bytes of a string literal immediately
// after its header quad, matching the val-3/val+5 byte-offset layout
// string-ref and string-length expect (internal/codegen/prim_string.go).
func emitStringBytes(c *Context, s string) {
	if len(s) == 0 {
		return
	}
	for i := 0; i < len(s); i++ {
		c.Out.Emitf(asm.SectionQuotes, "\t.byte %d", s[i])
	}
}
