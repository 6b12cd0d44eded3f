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

package env

// FreeVar is one entry of a lambda's free-variable list: a name looked
// up inside the body that the local scope could not resolve, so it must
// be captured from the enclosing lambda. Boxed is forced true by any
// set! against the name anywhere in the body, meaning the capture slot
// holds a pointer to an indirection cell rather than the value itself.
type FreeVar struct {
	Name  string
	Boxed bool
}
