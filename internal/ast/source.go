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

import "fmt"

// SourceInfo pairs a value with the line/column it was read from. Every
// expression the parser hands to later stages carries one of these, per
// the grammar's "every expression carries source line and column".
type SourceInfo struct {
	Source string
	Line   int
	Col    int
	Value  Expr
}

func (si SourceInfo) String() string {
	return fmt.Sprintf("%s:%d:%d", si.Source, si.Line, si.Col)
}

var sourceInfoPool []SourceInfo

// WithSource wraps e in a SourceInfo-tagged Expr. SourceInfo payloads are
// pooled in a side table and addressed by index, keeping Expr itself at
// 16 bytes regardless of which variant it carries.
func WithSource(si SourceInfo) Expr {
	idx := len(sourceInfoPool)
	sourceInfoPool = append(sourceInfoPool, si)
	return Expr{nil, makeAux(KindSource, uint64(idx))}
}

func (e Expr) SourceValue() SourceInfo {
	return sourceInfoPool[auxVal(e.aux)]
}

// Unwrap strips a SourceInfo wrapper if present, returning the inner
// expression and its original line/col (0,0 if none).
func (e Expr) Unwrap() (inner Expr, line, col int, source string) {
	if e.Kind() == KindSource {
		si := e.SourceValue()
		return si.Value, si.Line, si.Col, si.Source
	}
	return e, 0, 0, ""
}
