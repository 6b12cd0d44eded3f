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

// AsmEmit is the emission callback every primitive Declaration provides,
// named and shaped after the JITEmit contract (scm/jit_types.go): it
// receives the already-evaluated argument slots and the slot the
// caller wants the result placed into (or -1 for "emitter's choice",
// the textual analogue of JITLoc.LocAny), and returns the slot the
// result actually ended up in plus its ResultKind.
type AsmEmit func(ctx *Context, argSlots []int, wantSlot int) (resultSlot int, kind ResultKind)

// Declaration describes one recognized primitive: its name, arity
// bounds, produced kind, and emitter — modeled on scm/declare.go's
// Declaration type, with Fn (an interpreted Go closure) replaced by
// AsmEmit (an assembly-emitting closure), since this compiler never
// interprets — it only ever compiles.
type Declaration struct {
	Name        string
	Desc        string
	MinParam    int
	MaxParam    int // -1 means unbounded
	ResultKind  ResultKind
	Emit        AsmEmit
}

var declarations = make(map[string]*Declaration)

// Declare registers a primitive, mirroring Declare(env, def) from
// scm/declare.go — but since this compiler has no interpreter
// environment to populate, it only feeds the dispatch table consulted
// by the expression generator.
func Declare(def *Declaration) {
	declarations[def.Name] = def
}

// Lookup returns the primitive Declaration for name, if any.
func Lookup(name string) (*Declaration, bool) {
	d, ok := declarations[name]
	return d, ok
}

// Names returns every declared primitive name, used by the package's
// tests to walk the dispatch table.
func Names() []string {
	names := make([]string, 0, len(declarations))
	for n := range declarations {
		names = append(names, n)
	}
	return names
}

func init() {
	registerArithmetic()
	registerComparison()
	registerPredicates()
	registerConsOps()
	registerVectorOps()
	registerStringOps()
	registerMisc()
}

// KindUnknown is re-exported for declaration tables that don't know
// their result type until runtime.
const KindUnknown = env.KindUnknown
