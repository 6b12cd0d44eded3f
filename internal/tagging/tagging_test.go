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

package tagging

import "testing"

func TestBoolLiterals(t *testing.T) {
	if Bool(false) != 31 {
		t.Errorf("expected #f == 31, got %d", Bool(false))
	}
	if Bool(true) != 159 {
		t.Errorf("expected #t == 159, got %d", Bool(true))
	}
}

func TestNilLiteral(t *testing.T) {
	if NilValue != 47 {
		t.Errorf("expected nil == 47, got %d", NilValue)
	}
}

func TestFixnumRoundTrip(t *testing.T) {
	for _, n := range []int64{0, 1, -1, 42, -9999} {
		tagged := Fixnum(n)
		if tagged&3 != 0 {
			t.Errorf("fixnum %d: low 2 bits not clear", n)
		}
		if got := UntagFixnum(tagged); got != n {
			t.Errorf("fixnum %d: round trip got %d", n, got)
		}
	}
}

func TestCharRoundTrip(t *testing.T) {
	for _, c := range []rune{'a', 0, 0x7f, 0x3c0} {
		tagged := Char(c)
		if tagged&0xff != TagChar {
			t.Errorf("char %d: low byte not 0x0f, got %x", c, tagged&0xff)
		}
		if got := UntagChar(tagged); got != c {
			t.Errorf("char %d: round trip got %d", c, got)
		}
	}
}

func TestVectorAndStringHeaders(t *testing.T) {
	if VectorLenTagged(5) != 20 {
		t.Errorf("expected vector len 5 tagged to 20, got %d", VectorLenTagged(5))
	}
	if StringLenFlag(10, true) != 21 {
		t.Errorf("expected string header (10<<1)|1=21, got %d", StringLenFlag(10, true))
	}
	if StringLenFlag(10, false) != 20 {
		t.Errorf("expected string header (10<<1)|0=20, got %d", StringLenFlag(10, false))
	}
}

func TestHeapPointerTagClassification(t *testing.T) {
	for _, tg := range []uint64{TagCons, TagVector, TagString, TagSymbol, TagClosure} {
		if !IsHeapPointerTag(tg) {
			t.Errorf("expected tag %d to be a heap pointer tag", tg)
		}
	}
	if IsHeapPointerTag(0) {
		t.Errorf("fixnum tag (low 2 bits 00) must not be classified as heap pointer")
	}
}
