/*
Copyright (C) 2026  Carl-Philip Hänsch

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

package repl

import (
	"fmt"
	"os"
	"os/exec"
)

// EnsureRuntime builds the cgo c-archive from runtime/gc.go at
// opts.RuntimeArchive if it isn't there yet. The archive never changes
// between invocations of the same ilish build, so a present file is
// trusted as-is rather than rebuilt every call.
func EnsureRuntime(opts Options) error {
	if opts.RuntimeArchive == "" {
		return fmt.Errorf("repl: RuntimeArchive not set")
	}
	if _, err := os.Stat(opts.RuntimeArchive); err == nil {
		return nil
	}
	cmd := exec.Command("go", "build", "-buildmode=c-archive", "-o", opts.RuntimeArchive, "./runtime")
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
