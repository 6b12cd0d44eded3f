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

// Package diag holds the (line, column, kind) diagnostic shape both the
// parser and the compiler use, and the growable list that failures are
// appended to so that compilation proceeds best-effort.
package diag

import (
	"fmt"
	"strings"
)

type Kind string

const (
	// parser kinds
	KindUnexpectedEOF        Kind = "unexpected-eof"
	KindUnmatchedRightParen  Kind = "unmatched-right-paren"
	KindEmptyList            Kind = "empty-list"
	KindMalformedHash        Kind = "malformed-hash-form"
	KindMalformedCharName    Kind = "malformed-char-name"
	KindUnquoteOutsideQuote  Kind = "unquote-outside-quote"
	KindSplicingOutsideQuote Kind = "splicing-outside-quote"

	// compiler kinds
	KindUndefinedSymbol       Kind = "undefined-symbol"
	KindNonSymbolInFnPosition Kind = "non-symbol-in-function-position"
	KindArityMismatch         Kind = "arity-mismatch"
	KindExpectedUnary         Kind = "expected-unary"
	KindExpectedBinary        Kind = "expected-binary"
	KindExpectedTernary       Kind = "expected-ternary"
	KindExpectedAtLeastUnary  Kind = "expected-at-least-unary"
	KindExpectedAtLeastBinary Kind = "expected-at-least-binary"
	KindExpectedAtMostBinary  Kind = "expected-at-most-binary"
	KindExpectedNonUnicode    Kind = "expected-non-unicode-char"
	KindExpectedList          Kind = "expected-list"
	KindParserUpstream        Kind = "parser-upstream-failure"
)

// Diagnostic is one failure, always tied to a source position.
type Diagnostic struct {
	Source  string
	Line    int
	Col     int
	Kind    Kind
	Message string
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s: %s", d.Source, d.Line, d.Col, d.Kind, d.Message)
}

// Diagnostics is a growable list; a compilation is rejected as a whole
// if it is non-empty, but emission continues best-effort to surface as
// many diagnostics as possible in one pass.
type Diagnostics []Diagnostic

func (ds *Diagnostics) Add(source string, line, col int, kind Kind, format string, args ...any) {
	*ds = append(*ds, Diagnostic{
		Source:  source,
		Line:    line,
		Col:     col,
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	})
}

func (ds Diagnostics) Err() error {
	if len(ds) == 0 {
		return nil
	}
	return ds
}

func (ds Diagnostics) Error() string {
	lines := make([]string, len(ds))
	for i, d := range ds {
		lines[i] = d.Error()
	}
	return strings.Join(lines, "\n")
}
