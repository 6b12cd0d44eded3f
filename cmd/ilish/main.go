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

// Command ilish is the thin CLI kept deliberately outside the compiler
// core: one cobra root with compile/repl/cache subcommands, a -heap-size and
// -root-stack-size pair parsed with docker/go-units so "16MiB" is a
// legal flag value, and a -watch mode that recompiles a file on every
// fsnotify write event. None of this package's logic belongs to the
// compiler itself — it only wires internal/compiler, internal/repl and
// internal/cache together the way ajroetker-goat wires its own
// subcommands around a library package.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dc0d/onexit"
	"github.com/docker/go-units"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/ilish-lang/ilish/internal/cache"
	"github.com/ilish-lang/ilish/internal/compiler"
	"github.com/ilish-lang/ilish/internal/repl"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ilish",
		Short: "ahead-of-time compiler for a Scheme-like Lisp targeting x86-64",
	}
	root.AddCommand(newCompileCmd())
	root.AddCommand(newReplCmd())
	root.AddCommand(newCacheCmd())
	return root
}

// sizeFlags holds the two heap-shape parameters every subcommand that
// touches the compiler core needs, parsed with docker/go-units so
// "-heap-size 64MiB" works the way it does for every size-ish flag in
// that library's own users.
type sizeFlags struct {
	heapSize  string
	rootStack string
}

func (s *sizeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.heapSize, "heap-size", "16MiB", "generational heap size")
	cmd.Flags().StringVar(&s.rootStack, "root-stack-size", "1MiB", "root stack size")
}

func (s *sizeFlags) parse() (heap, rootStack uint64, err error) {
	heap, err = units.RAMInBytes(s.heapSize)
	if err != nil {
		return 0, 0, fmt.Errorf("-heap-size: %w", err)
	}
	rootStack, err = units.RAMInBytes(s.rootStack)
	if err != nil {
		return 0, 0, fmt.Errorf("-root-stack-size: %w", err)
	}
	return heap, rootStack, nil
}

func newCompileCmd() *cobra.Command {
	var (
		expr    string
		file    string
		out     string
		watch   bool
		sizes   sizeFlags
	)
	cmd := &cobra.Command{
		Use:   "compile",
		Short: "compile a program to AT&T assembly",
		RunE: func(cmd *cobra.Command, args []string) error {
			if expr == "" && file == "" {
				return fmt.Errorf("compile: one of -e or -f is required")
			}
			heap, rootStack, err := sizes.parse()
			if err != nil {
				return err
			}
			run := func() error {
				source, name, err := readSource(expr, file)
				if err != nil {
					return err
				}
				res, err := compiler.Compile(source, compiler.Options{
					Source:        name,
					HeapSize:      heap,
					RootStackSize: rootStack,
				})
				if err != nil {
					return err
				}
				return writeOutput(out, res.Assembly)
			}
			if err := run(); err != nil {
				return err
			}
			if !watch {
				return nil
			}
			if file == "" {
				return fmt.Errorf("compile -watch: requires -f")
			}
			return watchAndRecompile(file, run)
		},
	}
	cmd.Flags().StringVarP(&expr, "expr", "e", "", "compile an inline expression")
	cmd.Flags().StringVarP(&file, "file", "f", "", "compile a source file")
	cmd.Flags().StringVarP(&out, "out", "o", "", "assembly output path (stdout if empty)")
	cmd.Flags().BoolVar(&watch, "watch", false, "recompile -f on every change")
	sizes.register(cmd)
	return cmd
}

func newReplCmd() *cobra.Command {
	var (
		sizes   sizeFlags
		runtime string
		cc      string
	)
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "interactive read-compile-link-run loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			heap, rootStack, err := sizes.parse()
			if err != nil {
				return err
			}
			if runtime == "" {
				dir, err := os.UserCacheDir()
				if err != nil {
					dir = os.TempDir()
				}
				runtime = filepath.Join(dir, "ilish", "runtime.a")
			}
			opts := repl.Options{
				HeapSize:       heap,
				RootStackSize:  rootStack,
				RuntimeArchive: runtime,
				CC:             cc,
			}
			onexit.Register(func() { os.Remove(filepath.Join(filepath.Dir(opts.RuntimeArchive), "runtime.h")) })
			return repl.Run(opts)
		},
	}
	sizes.register(cmd)
	cmd.Flags().StringVar(&runtime, "runtime-archive", "", "path to the prebuilt GC runtime c-archive")
	cmd.Flags().StringVar(&cc, "cc", "cc", "assembler/linker driver")
	return cmd
}

func newCacheCmd() *cobra.Command {
	var dir string
	root := &cobra.Command{
		Use:   "cache",
		Short: "inspect or clear the compiled-assembly build cache",
	}
	root.PersistentFlags().StringVar(&dir, "dir", defaultCacheDir(), "local cache directory")

	clear := &cobra.Command{
		Use:   "clear",
		Short: "evict every cached entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := cache.NewLocalBackend(dir)
			if err != nil {
				return err
			}
			c := cache.New(backend)
			manifest := filepath.Join(dir, "manifest.json")
			if err := c.LoadManifest(manifest); err != nil {
				return err
			}
			evicted := c.EvictOldest(1 << 30)
			fmt.Printf("evicted %d entries from the recency index\n", len(evicted))
			return c.SaveManifest(manifest)
		},
	}
	root.AddCommand(clear)
	return root
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "ilish-cache")
	}
	return filepath.Join(dir, "ilish", "build-cache")
}

func readSource(expr, file string) (source, name string, err error) {
	if expr != "" {
		return expr, "-e", nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return "", "", err
	}
	return string(data), file, nil
}

func writeOutput(path, asmText string) error {
	if path == "" {
		fmt.Print(asmText)
		return nil
	}
	return os.WriteFile(path, []byte(asmText), 0o644)
}

// watchAndRecompile re-runs compileOnce every time file changes,
// following the same fsnotify-driven reload loop a storage layer would
// use to pick up segment files written by another process.
func watchAndRecompile(file string, compileOnce func() error) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(file)); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "watching %s for changes\n", file)
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(file) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := compileOnce(); err != nil {
				fmt.Fprintln(os.Stderr, err)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintln(os.Stderr, "watch:", err)
		}
	}
}
