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

// Package compiler wires the parser, the constant-interning prepass
// and the code generator into one pure function: parsed program plus a
// heap-size parameter in, a sequence of textual assembly lines out.
// Nothing here touches a file system or an external assembler/linker —
// that is cmd/ilish's job.
package compiler

import (
	"fmt"

	"github.com/ilish-lang/ilish/internal/ast"
	"github.com/ilish-lang/ilish/internal/codegen"
	"github.com/ilish-lang/ilish/internal/diag"
	"github.com/ilish-lang/ilish/internal/prepass"
)

// Options carries the two runtime-sizing parameters the generated
// program's prologue needs baked in, plus the source name used in
// diagnostics.
type Options struct {
	Source        string
	HeapSize      uint64
	RootStackSize uint64
}

// Result is a successful compile's output: the assembled text only
// (internal/repl compiles and links each line standalone).
type Result struct {
	Assembly string
}

// Compile parses source, interns its constant literals, compiles every
// top-level form against one shared Context, and returns the finished
// assembly text. Diagnostics collected along the way are returned as
// an error (nil if none); a non-nil error means Result is the zero
// value — partial output is never handed back, a diagnosed program is
// rejected as a whole.
func Compile(source string, opts Options) (Result, error) {
	p := &ast.Parser{Source: opts.Source}
	program := p.ParseProgram(source)
	if err := p.Diags.Err(); err != nil {
		return Result{}, err
	}

	pool := prepass.Classify(program)

	ctx := codegen.NewContext(opts.Source)
	ctx.Pool = pool
	ctx.ConstDefines = prepass.ConstDefines(program)
	emitPrologue(ctx, opts)

	for _, e := range program {
		ctx.CompileExpr(e, -1)
	}

	emitEpilogue(ctx)
	ctx.Finalize()

	if err := diag.Diagnostics(ctx.Diags).Err(); err != nil {
		return Result{}, err
	}
	return Result{Assembly: ctx.Out.Assemble()}, nil
}

// emitPrologue writes the program's entry point: call init_gc with the
// requested heap/root-stack sizes before any generated code can
// allocate, then pin the GC alloc pointer and root-stack base into
// their reserved registers for the rest of the program.
//
// init_gc returns both pointers directly in %rax:%rdx (runtime/gc.go's
// doc comment on init_gc works out why) rather than through named
// .bss symbols, so no data section needs to know about the runtime's
// internal heap layout.
func emitPrologue(ctx *codegen.Context, opts Options) {
	heapReg := codegen.RegName(codegen.HeapPtrReg, 0)
	rootReg := codegen.RegName(codegen.RootStackReg, 0)
	ctx.EmitMain(fmt.Sprintf("\tmovq\t$%d, %%rdi", opts.RootStackSize))
	ctx.EmitMain(fmt.Sprintf("\tmovq\t$%d, %%rsi", opts.HeapSize))
	ctx.EmitMain("\tcallq\tinit_gc")
	ctx.EmitMain(fmt.Sprintf("\tmovq\t%%rax, %s", heapReg))
	ctx.EmitMain(fmt.Sprintf("\tmovq\t%%rdx, %s", rootReg))
}

// emitEpilogue calls cleanup before the program exits with status 0.
func emitEpilogue(ctx *codegen.Context) {
	ctx.EmitMain("\tcallq\tcleanup")
	ctx.EmitMain("\tmovq\t$60, %rax")
	ctx.EmitMain("\tmovq\t$0, %rdi")
	ctx.EmitMain("\tsyscall")
}
