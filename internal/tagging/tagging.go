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

// Package tagging fixes the exact low-bit tag patterns as the literal
// constants the original compiler.c computes at compile time
// (tag_fixnum/tag_char/tag_bool/tag_nil): both the code generator and
// the GC runtime decode values by these same bit patterns.
package tagging

const (
	// Low-3-bit pointer tags ("…xxx001" etc).
	TagCons    = 1
	TagVector  = 2
	TagString  = 3
	TagSymbol  = 5 // reserved, not implemented in GC copy
	TagClosure = 6
	// TagBox marks a boxed binding's indirection cell: a single word
	// holding whatever value a set!-mutated, closure-captured local is
	// currently bound to. It shares TagSymbol's bit pattern rather than
	// claiming 4 or 7: fixnums (n<<2) and the char/bool/nil full-byte
	// tags (…0x?f) both land on 4 or 7 for ordinary values, so either
	// would misroute a plain immediate into the pointer-object path the
	// first time collect scans the root stack. Nothing currently gives
	// a runtime value low3==5 — the quoted-symbol constant in
	// internal/codegen/special_forms.go loads a label's address, not this tag
	// — so the pattern is free to repurpose; a future real symbol heap
	// representation will need a different tag.
	TagBox = 5

	// Full-byte literal tags.
	TagChar = 0x0f // low byte == 0x0f marks ASCII/Unicode char
	TagBool = 0x1f // low byte == 0x1f (clear high bit) or 0x9f (set) marks bool
	TagNil  = 0x2f // literal 47

	BoolFalse = 0x1f // 31
	BoolTrue  = 0x9f // 159
)

// Fixnum tags a signed integer by shifting left 2 (low 2 bits clear).
func Fixnum(n int64) uint64 { return uint64(n) << 2 }

// UntagFixnum reverses Fixnum, arithmetic-shifting right to preserve sign.
func UntagFixnum(v uint64) int64 { return int64(v) >> 2 }

// Char tags a code point: high bits hold the value, low byte is 0x0f.
func Char(codepoint rune) uint64 { return uint64(uint32(codepoint))<<8 | TagChar }

// UntagChar extracts the code point from a char-tagged value.
func UntagChar(v uint64) rune { return rune(v >> 8) }

// Bool tags a boolean: high bit set for #t, low 7 bits always 0x1f.
func Bool(b bool) uint64 {
	if b {
		return BoolTrue
	}
	return BoolFalse
}

// Nil is the literal nil tag, 47.
const NilValue = TagNil

// VectorLenTagged packs a vector's element count the way a vector
// header word does: len_tagged = len << 2.
func VectorLenTagged(n int) uint64 { return uint64(n) << 2 }

// StringLenFlag packs a string header word: byte count shifted left 1,
// OR'd with the is_utf8 flag: len_flag = (byte_count<<1) | is_utf8.
func StringLenFlag(byteCount int, isUTF8 bool) uint64 {
	v := uint64(byteCount) << 1
	if isUTF8 {
		v |= 1
	}
	return v
}

// Object field offsets, fixed by the original runtime's print() (and
// therefore load-bearing for any code that stores into these objects):
const (
	ConsCarOffset   = -1
	ConsCdrOffset   = 7
	VectorLenOffset = -2
	VectorElemBase  = 6
	StringLenOffset = -3
	StringByteBase  = 5
	ClosureArityOff = -6
	// BoxValueOffset is the byte offset of a box cell's stored value
	// from its tagged pointer (pointer - TagBox, the same
	// pointer-minus-tag convention ConsCarOffset etc. use).
	BoxValueOffset = -TagBox
)

// BoxSize is the allocation size in bytes of a box cell: one word, no
// header.
const BoxSize = 8

// IsHeapPointerTag reports whether the low-3-bit pattern low3 indicates
// a heap object tag the GC must copy (as opposed to an immediate).
func IsHeapPointerTag(low3 uint64) bool {
	switch low3 & 7 {
	case TagCons, TagVector, TagString, TagSymbol, TagClosure:
		return true
	}
	return false
}
