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

import "fmt"

func sprintf(format string, args ...any) string { return fmt.Sprintf(format, args...) }

// Labeler hands out unique, stable label names. The teacher's JITWriter
// (scm/jit_writer.go) allocates label IDs into a fixed-size array tied
// to machine-code offsets; here a label is pure text, so we only need a
// monotonically increasing counter per prefix, sufficient for forward
// jump targets that textual assembly resolves at assemble time rather
// than at fixup-patch time.
type Labeler struct {
	counters map[string]int
}

func NewLabeler() *Labeler { return &Labeler{counters: make(map[string]int)} }

// New returns a fresh label of the form ".L<prefix>_<n>", unique within
// this Labeler.
func (l *Labeler) New(prefix string) string {
	n := l.counters[prefix]
	l.counters[prefix] = n + 1
	return fmt.Sprintf(".L%s_%d", prefix, n)
}
