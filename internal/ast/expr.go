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

// Package ast holds the compiler's internal representation of a parsed
// program: a tagged value container shaped after the surface grammar
// (Null, Boolean, ASCII/Unicode char, Fixnum, String, Symbol, List,
// Vector) plus a SourceInfo wrapper carrying line/column.
package ast

import (
	"fmt"
	"unsafe"
)

// Expr is a compact tagged value (16 bytes): a compile-time analogue of
// the tagged value emitted at runtime, except it lives in the Go heap
// during compilation rather than in the emitted program's heap. ptr is
// a scratch/payload pointer; aux packs a tag in its upper 16 bits with
// a small inline value or length in the rest. Fixnums are the exception:
// ptr points at intSentinel and aux holds the whole int64.
type Expr struct {
	ptr *byte
	aux uint64
}

type Kind uint16

const (
	KindNil Kind = iota
	KindBool
	KindChar    // ASCII or Unicode code point; distinguished by value range only
	KindFixnum
	KindString
	KindSymbol
	KindList   // non-empty list of Expr
	KindVector // #(...) literal
	KindSource // wraps another Expr with line/col
)

func makeAux(k Kind, v uint64) uint64 { return uint64(k)<<48 | (v & (1<<48 - 1)) }
func auxKind(aux uint64) Kind         { return Kind(aux >> 48) }
func auxVal(aux uint64) uint64        { return aux & (1<<48 - 1) }

var intSentinel byte

func (e Expr) Kind() Kind {
	if e.ptr == &intSentinel {
		return KindFixnum
	}
	return auxKind(e.aux)
}

// Constructors

func Nil() Expr { return Expr{nil, makeAux(KindNil, 0)} }

func Bool(b bool) Expr {
	if b {
		return Expr{nil, makeAux(KindBool, 1)}
	}
	return Expr{nil, makeAux(KindBool, 0)}
}

// Char stores a code point; ASCII vs Unicode is determined by value
// range (<= 0x7F is ASCII).
func Char(codepoint rune) Expr {
	return Expr{nil, makeAux(KindChar, uint64(uint32(codepoint)))}
}

func Fixnum(v int64) Expr { return Expr{&intSentinel, uint64(v)} }

func String(s string) Expr {
	if len(s) == 0 {
		return Expr{nil, makeAux(KindString, 0)}
	}
	return Expr{unsafe.StringData(s), makeAux(KindString, uint64(len(s)))}
}

func Symbol(s string) Expr {
	if len(s) == 0 {
		return Expr{nil, makeAux(KindSymbol, 0)}
	}
	return Expr{unsafe.StringData(s), makeAux(KindSymbol, uint64(len(s)))}
}

func List(items []Expr) Expr {
	if len(items) == 0 {
		return Expr{nil, makeAux(KindList, 0)}
	}
	return Expr{(*byte)(unsafe.Pointer(unsafe.SliceData(items))), makeAux(KindList, uint64(len(items)))}
}

func Vector(items []Expr) Expr {
	if len(items) == 0 {
		return Expr{nil, makeAux(KindVector, 0)}
	}
	return Expr{(*byte)(unsafe.Pointer(unsafe.SliceData(items))), makeAux(KindVector, uint64(len(items)))}
}

// accessors

func (e Expr) AsBool() bool    { return auxVal(e.aux) != 0 }
func (e Expr) AsChar() rune    { return rune(auxVal(e.aux)) }
func (e Expr) AsFixnum() int64 { return int64(e.aux) }

func (e Expr) AsString() string {
	n := int(auxVal(e.aux))
	if n == 0 {
		return ""
	}
	return unsafe.String(e.ptr, n)
}

func (e Expr) AsSymbol() string { return e.AsString() }

func (e Expr) AsSlice() []Expr {
	n := int(auxVal(e.aux))
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*Expr)(unsafe.Pointer(e.ptr)), n)
}

func (e Expr) IsNil() bool    { return e.Kind() == KindNil }
func (e Expr) IsSymbol() bool { return e.Kind() == KindSymbol }
func (e Expr) IsList() bool   { return e.Kind() == KindList }

// SymbolIs reports whether e is a symbol equal to name.
func (e Expr) SymbolIs(name string) bool {
	return e.Kind() == KindSymbol && e.AsSymbol() == name
}

// String renders the canonical surface-syntax form for printing and for
// diagnostic messages, independent of SourceInfo wrapping.
func (e Expr) String() string {
	switch e.Kind() {
	case KindNil:
		return "()"
	case KindBool:
		if e.AsBool() {
			return "#t"
		}
		return "#f"
	case KindChar:
		return charLiteral(e.AsChar())
	case KindFixnum:
		return fmt.Sprintf("%d", e.AsFixnum())
	case KindString:
		return fmt.Sprintf("%q", e.AsString())
	case KindSymbol:
		return e.AsSymbol()
	case KindList:
		items := e.AsSlice()
		s := "("
		for i, it := range items {
			if i > 0 {
				s += " "
			}
			s += it.String()
		}
		return s + ")"
	case KindVector:
		items := e.AsSlice()
		s := "#("
		for i, it := range items {
			if i > 0 {
				s += " "
			}
			s += it.String()
		}
		return s + ")"
	case KindSource:
		return e.SourceValue().String()
	}
	return "#<unknown>"
}

var charNames = map[rune]string{
	7: "alarm", 8: "backspace", 127: "delete", 27: "escape",
	10: "newline", 0: "null", 13: "return", 32: "space", 9: "tab",
}

func charLiteral(r rune) string {
	if name, ok := charNames[r]; ok {
		return "#\\" + name
	}
	if r >= 33 && r < 127 {
		return "#\\" + string(r)
	}
	return fmt.Sprintf("#\\x%x", r)
}
