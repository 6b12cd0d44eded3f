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
	"testing"

	"github.com/ilish-lang/ilish/internal/env"
)

func TestEveryPrimitiveNameResolves(t *testing.T) {
	want := []string{
		"1+", "1-", "+", "-", "*", "/", "modulo", "and", "or",
		"=", "<", "<=", ">", ">=",
		"zero?", "one?", "null?", "pair?", "vector?", "string?",
		"cons", "car", "cdr", "caar", "cadr", "cdar", "cddr",
		"set-car!", "set-cdr!",
		"make-vector", "vector", "vector-ref", "vector-set!", "vector-length",
		"make-string", "string", "string-ref", "string-set!", "string-length",
		"exit", "not", "eq?",
	}
	for _, name := range want {
		if _, ok := Lookup(name); !ok {
			t.Errorf("primitive %q not declared", name)
		}
	}
}

func TestArityBoundsAreSane(t *testing.T) {
	for _, name := range Names() {
		d, _ := Lookup(name)
		if d.MaxParam != -1 && d.MaxParam < d.MinParam {
			t.Errorf("%s: MaxParam %d < MinParam %d", name, d.MaxParam, d.MinParam)
		}
		if d.Emit == nil {
			t.Errorf("%s: nil Emit", name)
		}
	}
}

func TestConsAllocatesAndTagsViaContext(t *testing.T) {
	ctx := NewContext("test")
	d, ok := Lookup("cons")
	if !ok {
		t.Fatal("cons not declared")
	}
	a := ctx.Regs.GetFreeSlot()
	ctx.Regs.Occupy(a, KindUnknown)
	b := ctx.Regs.GetFreeSlotAfter(a)
	ctx.Regs.Occupy(b, KindUnknown)
	slot, kind := d.Emit(ctx, []int{a, b}, -1)
	if kind != env.KindPointer {
		t.Errorf("cons result kind = %v, want pointer", kind)
	}
	if slot < 0 {
		t.Errorf("cons returned invalid slot %d", slot)
	}
}
