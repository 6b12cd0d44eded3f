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

// Package codegen walks the parsed expression tree and emits AT&T
// syntax x86-64 assembly lines into an asm.Assembler's section buffers.
// Its slot-passing discipline (AsmEmit's argument and result slots) is the textual
// twin of the machine-code JIT contract described in scm/jit_types.go's
// "JIT Emitter Contract" — same idea, retargeted from writing bytes
// into mmap'd pages to writing instruction text.
package codegen

import (
	"fmt"

	"github.com/ilish-lang/ilish/internal/asm"
	"github.com/ilish-lang/ilish/internal/diag"
	"github.com/ilish-lang/ilish/internal/env"
	"github.com/ilish-lang/ilish/internal/prepass"
)

// ResultKind mirrors the environment's Kind but is the field the
// generator sets on every produced value, used to specialize string/
// character operations and to validate tail calls.
type ResultKind = env.Kind

// Scope is one lexical level: whether it is a lambda's top scope
// eligible for tail-call rewriting, and under what label (isSelfTailCall
// walks the Scopes stack looking for a match).
type Scope struct {
	IsLambda   bool
	LambdaName string // the body's code label (generated for anonymous lambdas), used for self-tail-call detection
}

// Context carries all per-compilation mutable state the generator
// threads through expression dispatch: the register/slot table, the
// variable table, the output assembler, a label allocator, the current
// lambda-scope stack, and accumulated diagnostics.
type Context struct {
	Regs   *env.RegFile
	Vars   *env.VarTable
	Out    *asm.Assembler
	Labels *asm.Labeler
	Diags  diag.Diagnostics

	Scopes []*Scope

	// ReturnKind is not updated during compilation: CompileExpr and
	// every AsmEmit return their result's kind directly instead.
	ReturnKind ResultKind

	// ConstPool accumulates compile-time constants and quote data;
	// Finalize emits each non-Alias entry as a label and a .quad word.
	ConstPool []ConstEntry
	QuoteID   int

	stringData []stringLiteral

	// Pool is the whole-program constant-interning index from a prior
	// prepass.Classify call; nil when the caller skips prepass (e.g.
	// compiling one REPL line at a time, where there is no
	// whole-program constant set to dedup against). internedLabels
	// remembers which pool slot already got a .data label so repeated
	// occurrences of the same literal reuse it.
	Pool           *prepass.Pool
	internedLabels map[int]string

	// ConstDefines holds the names prepass.ConstDefines elected as
	// compile-time constants: a top-level (define name <literal>) whose
	// name is never the target of a set! anywhere in the program. nil
	// when the caller skips prepass, in which case compileDefine's
	// literal branch falls back to the mutable-slot path unconditionally.
	ConstDefines map[string]bool

	// pendingQuoteData holds labels minted by compileQuote's list/vector
	// branch that have no backing .data yet (see DESIGN.md: structured
	// quote literals are not yet serialized to heap-shaped constant
	// data). finalize.go emits a placeholder nil word for each so the
	// label at least resolves, rather than leaving it undefined.
	pendingQuoteData []string

	// Section is where emitted instructions currently land: SectionBody
	// at top level, SectionFun while inside a lambda's compiled body.
	Section asm.Section

	// tailPos is true exactly while CompileExpr is compiling the
	// sub-expression that will become a lambda body's final value —
	// set by compileLambdaBody for the body's last form and propagated
	// by if/begin/let into their own last sub-expression, cleared
	// everywhere else (primitive/call arguments, conditions, bindings).
	tailPos bool

	source string
}

// emit appends one instruction line to the current section.
func (c *Context) emit(format string, args ...any) {
	c.Out.Emitf(c.Section, format, args...)
}

// ConstEntry is one compile-time constant: either backed by an actual
// .data quad (the common case) or, when Alias is true, merely an
// existing code label (a self-referencing lambda's own function
// label) that needs no storage of its own — constSymbolFor and
// finalize.go both special-case Alias entries to avoid emitting a
// second, conflicting definition of the same label.
type ConstEntry struct {
	Label string
	Value uint64
	Alias bool
}

func NewContext(source string) *Context {
	return &Context{
		Regs:   env.NewRegFile(),
		Vars:   env.NewVarTable(),
		Out:    asm.New(),
		Labels: asm.NewLabeler(),
		source: source,
		Scopes: []*Scope{{IsLambda: false}},
		Section: asm.SectionBody,
	}
}

func (c *Context) errf(line, col int, kind diag.Kind, format string, args ...any) {
	c.Diags.Add(c.source, line, col, kind, format, args...)
}

// NewConstLabel allocates a fresh .data label for a compile-time
// constant and records its tagged value.
func (c *Context) NewConstLabel(value uint64) string {
	label := fmt.Sprintf("const%d", len(c.ConstPool))
	c.ConstPool = append(c.ConstPool, ConstEntry{Label: label, Value: value})
	return label
}

// NewQuoteLabel allocates a fresh label in the quotes section. Placed
// in .data since quote payloads are never mutated by this language's
// primitive set — no primitive rebinds a quoted literal's storage,
// only its logical value is copied on use.
func (c *Context) NewQuoteLabel() string {
	label := fmt.Sprintf("quote%d", c.QuoteID)
	c.QuoteID++
	return label
}
