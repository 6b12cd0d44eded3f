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

package asm

import (
	"strings"
	"testing"
)

func TestSectionOrder(t *testing.T) {
	a := New()
	a.Emit(SectionEnd, "end_line")
	a.Emit(SectionBody, "body_line")
	a.Emit(SectionBSS, "bss_line")
	a.Emit(SectionData, "data_line")
	a.Emit(SectionMain, "main_line")
	a.Emit(SectionQuotes, "quotes_line")
	a.Emit(SectionFun, "fun_line")

	out := a.Assemble()
	order := []string{"bss_line", "data_line", "fun_line", "main_line", "quotes_line", "body_line", "end_line"}
	last := -1
	for _, want := range order {
		idx := strings.Index(out, want)
		if idx < 0 {
			t.Fatalf("missing line %q in output:\n%s", want, out)
		}
		if idx < last {
			t.Fatalf("line %q out of order", want)
		}
		last = idx
	}
}

func TestNestedLambdaPreservesTextualOrder(t *testing.T) {
	a := New()
	a.Emit(SectionFun, "outer_start")
	a.PushFun()
	a.Emit(SectionFun, "inner_body")
	a.PopFun()
	a.Emit(SectionFun, "outer_end")

	out := a.Assemble()
	if strings.Index(out, "outer_start") > strings.Index(out, "inner_body") ||
		strings.Index(out, "inner_body") > strings.Index(out, "outer_end") {
		t.Fatalf("expected outer_start, inner_body, outer_end in that order, got:\n%s", out)
	}
}

func TestPopFunWithoutPushPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on unbalanced PopFun")
		}
	}()
	a := New()
	a.PopFun()
}

func TestLabelerUniqueness(t *testing.T) {
	l := NewLabeler()
	a := l.New("if")
	b := l.New("if")
	if a == b {
		t.Fatalf("expected unique labels, got %q twice", a)
	}
}
