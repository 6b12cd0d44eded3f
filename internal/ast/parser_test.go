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

package ast

import "testing"

func TestParseAtoms(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"42", "42"},
		{"-1", "-1"},
		{"#t", "#t"},
		{"#f", "#f"},
		{"()", "()"},
		{"#\\a", "#\\a"},
		{"#\\space", "#\\space"},
		{"#\\x41", "#\\A"},
		{"\"ascii\"", "\"ascii\""},
	}
	for _, tc := range tests {
		p := &Parser{Source: "test"}
		prog := p.ParseProgram(tc.src)
		if len(p.Diags) > 0 {
			t.Fatalf("%s: unexpected diagnostics: %v", tc.src, p.Diags)
		}
		if len(prog) != 1 {
			t.Fatalf("%s: expected 1 expression, got %d", tc.src, len(prog))
		}
		inner, _, _, _ := prog[0].Unwrap()
		if got := inner.String(); got != tc.want {
			t.Errorf("%s: got %q want %q", tc.src, got, tc.want)
		}
	}
}

func TestParseList(t *testing.T) {
	p := &Parser{Source: "test"}
	prog := p.ParseProgram("(+ 1 2 3)")
	if len(p.Diags) > 0 {
		t.Fatalf("unexpected diagnostics: %v", p.Diags)
	}
	inner, _, _, _ := prog[0].Unwrap()
	if !inner.IsList() {
		t.Fatalf("expected list, got %v", inner.Kind())
	}
	items := inner.AsSlice()
	if len(items) != 4 {
		t.Fatalf("expected 4 items, got %d", len(items))
	}
	head, _, _, _ := items[0].Unwrap()
	if !head.SymbolIs("+") {
		t.Errorf("expected head symbol +, got %v", head)
	}
}

func TestParseQuoteForms(t *testing.T) {
	tests := []struct {
		src     string
		keyword string
	}{
		{"'a", "quote"},
		{"`a", "quasiquote"},
		{"`,a", "quasiquote"},
	}
	for _, tc := range tests {
		p := &Parser{Source: "test"}
		prog := p.ParseProgram(tc.src)
		if len(p.Diags) > 0 {
			t.Fatalf("%s: unexpected diagnostics: %v", tc.src, p.Diags)
		}
		inner, _, _, _ := prog[0].Unwrap()
		items := inner.AsSlice()
		head, _, _, _ := items[0].Unwrap()
		if !head.SymbolIs(tc.keyword) {
			t.Errorf("%s: expected keyword %s, got %v", tc.src, tc.keyword, head)
		}
	}
}

func TestUnquoteOutsideQuoteIsDiagnosed(t *testing.T) {
	p := &Parser{Source: "test"}
	p.ParseProgram(",a")
	if len(p.Diags) == 0 {
		t.Fatal("expected a diagnostic for unquote outside quote")
	}
	if p.Diags[0].Kind != "unquote-outside-quote" {
		t.Errorf("expected unquote-outside-quote, got %s", p.Diags[0].Kind)
	}
}

func TestUnmatchedRightParen(t *testing.T) {
	p := &Parser{Source: "test"}
	p.ParseProgram("(+ 1 2))")
	found := false
	for _, d := range p.Diags {
		if d.Kind == "unmatched-right-paren" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected unmatched-right-paren diagnostic, got %v", p.Diags)
	}
}

func TestEmptyListParsesAsNil(t *testing.T) {
	p := &Parser{Source: "test"}
	p.ParseProgram("()")
	if len(p.Diags) != 0 {
		t.Fatalf("() alone is Nil, not an empty non-quoted list form; got %v", p.Diags)
	}
}

func TestVectorLiteral(t *testing.T) {
	p := &Parser{Source: "test"}
	prog := p.ParseProgram("#(1 2 3)")
	if len(p.Diags) > 0 {
		t.Fatalf("unexpected diagnostics: %v", p.Diags)
	}
	inner, _, _, _ := prog[0].Unwrap()
	if inner.Kind() != KindVector {
		t.Fatalf("expected vector, got %v", inner.Kind())
	}
	if len(inner.AsSlice()) != 3 {
		t.Fatalf("expected 3 elements, got %d", len(inner.AsSlice()))
	}
}

func TestLineCommentSkipped(t *testing.T) {
	p := &Parser{Source: "test"}
	prog := p.ParseProgram("; comment\n42")
	if len(p.Diags) > 0 {
		t.Fatalf("unexpected diagnostics: %v", p.Diags)
	}
	if len(prog) != 1 {
		t.Fatalf("expected 1 expression, got %d", len(prog))
	}
}
