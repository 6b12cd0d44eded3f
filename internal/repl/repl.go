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

// Package repl is scm/prompt.go's Repl, retargeted from an in-process
// Eval loop to an ahead-of-time one: every line is compiled to
// assembly, assembled and linked against the runtime archive by an
// external cc, run as a child process, and its stdout is printed in
// place of scm/prompt.go's Serialize(result) call. The readline prompt
// shape (ANSI colors, continuation marker, Ctrl-C semantics) is kept
// verbatim.
package repl

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"

	"github.com/ilish-lang/ilish/internal/compiler"
	"github.com/ilish-lang/ilish/internal/diag"
)

const (
	newPrompt    = "\033[32m>\033[0m "
	contPrompt   = "\033[32m.\033[0m "
	resultPrompt = "\033[31m=\033[0m "
)

// Options carries everything one REPL iteration needs to turn a line
// of source into a running child process.
type Options struct {
	HeapSize      uint64
	RootStackSize uint64

	// RuntimeArchive is the path to the c-archive built from
	// runtime/gc.go (`go build -buildmode=c-archive`). EnsureRuntime
	// builds it on first use if the path doesn't exist yet.
	RuntimeArchive string

	// CC is the assembler/linker driver, "cc" if empty.
	CC string

	// WorkDir holds the per-iteration .s/.o/binary files; a system
	// temp directory if empty.
	WorkDir string
}

func (o *Options) defaults() {
	if o.CC == "" {
		o.CC = "cc"
	}
	if o.WorkDir == "" {
		o.WorkDir = os.TempDir()
	}
}

// Run drives the interactive loop until Ctrl-D or a bare Ctrl-C.
func Run(opts Options) error {
	opts.defaults()

	l, err := readline.NewEx(&readline.Config{
		Prompt:            newPrompt,
		HistoryFile:       ".ilish-history.tmp",
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return err
	}
	defer l.Close()
	l.CaptureExitSignal()

	oldline := ""
	for {
		line, err := l.Readline()
		line = oldline + line
		if errors.Is(err, readline.ErrInterrupt) {
			if len(line) == 0 {
				break
			}
			oldline = ""
			l.SetPrompt(newPrompt)
			continue
		} else if err == io.EOF {
			break
		} else if err != nil {
			return err
		}
		if line == "" {
			continue
		}

		if needsContinuation(line, opts) {
			oldline = line + "\n"
			l.SetPrompt(contPrompt)
			continue
		}
		oldline = ""
		l.SetPrompt(newPrompt)

		out, err := evalLine(line, opts)
		if err != nil {
			fmt.Println(err)
			continue
		}
		fmt.Print(resultPrompt)
		fmt.Println(out)
	}
	return nil
}

// needsContinuation mirrors scm/prompt.go's recover-on-"expecting
// matching )" behavior: the parser here never panics, so the same
// signal is read off its collected diagnostics instead.
func needsContinuation(line string, opts Options) bool {
	_, err := compiler.Compile(line, compiler.Options{
		Source:        "user prompt",
		HeapSize:      opts.HeapSize,
		RootStackSize: opts.RootStackSize,
	})
	var ds diag.Diagnostics
	if !errors.As(err, &ds) {
		return false
	}
	for _, d := range ds {
		if d.Kind == diag.KindUnexpectedEOF && strings.Contains(d.Message, "expecting matching )") {
			return true
		}
	}
	return false
}

// evalLine compiles one line to assembly, links it against the runtime
// archive, runs the result, and returns its captured stdout.
func evalLine(line string, opts Options) (string, error) {
	res, err := compiler.Compile(line, compiler.Options{
		Source:        "user prompt",
		HeapSize:      opts.HeapSize,
		RootStackSize: opts.RootStackSize,
	})
	if err != nil {
		return "", err
	}
	return buildAndRun(res.Assembly, opts)
}

// buildAndRun writes asmText to a scratch .s file, invokes cc to
// assemble and link it against opts.RuntimeArchive, runs the result,
// and returns its stdout. Every intermediate file is removed before
// returning.
func buildAndRun(asmText string, opts Options) (string, error) {
	if err := EnsureRuntime(opts); err != nil {
		return "", fmt.Errorf("repl: runtime archive: %w", err)
	}

	dir, err := os.MkdirTemp(opts.WorkDir, "ilish-repl-")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(dir)

	asmPath := filepath.Join(dir, "line.s")
	if err := os.WriteFile(asmPath, []byte(asmText), 0o644); err != nil {
		return "", err
	}

	binPath := filepath.Join(dir, "line")
	cmd := exec.Command(opts.CC, "-no-pie", "-o", binPath, asmPath, opts.RuntimeArchive)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("repl: assemble/link: %w: %s", err, stderr.String())
	}

	run := exec.Command(binPath)
	var stdout bytes.Buffer
	run.Stdout = &stdout
	run.Stderr = &stderr
	if err := run.Run(); err != nil {
		return "", fmt.Errorf("repl: run: %w: %s", err, stderr.String())
	}
	return stdout.String(), nil
}
