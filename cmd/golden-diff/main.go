//  Copyright (c) 2023 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package main implements golden-diff, adapted from the teacher's
// tools/cmd/golden-test: instead of diffing NilAway diagnostics between two
// git branches, it diffs two edge report files (for example the branches.txt
// of two runs of the pipeline over the same input) line by line, directly
// exercising property P6 ("report determinism") as a standalone check. It
// does not run the pipeline itself.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/fatih/color"
)

// LineDiff is one line where two reports disagree, 1-indexed.
type LineDiff struct {
	Line int
	Old  string // "" if the old report has no line at this position.
	New  string // "" if the new report has no line at this position.
}

// Diff compares old and new line by line and returns every index at which
// they disagree, including a length mismatch trailing off the shorter one.
func Diff(old, new []string) []LineDiff {
	n := len(old)
	if len(new) > n {
		n = len(new)
	}

	var diffs []LineDiff
	for i := 0; i < n; i++ {
		var o, nw string
		if i < len(old) {
			o = old[i]
		}
		if i < len(new) {
			nw = new[i]
		}
		if o != nw {
			diffs = append(diffs, LineDiff{Line: i + 1, Old: o, New: nw})
		}
	}
	return diffs
}

// ReadLines reads path and splits it into lines, dropping the trailing empty
// element a final newline otherwise produces.
func ReadLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %q: %w", path, err)
	}
	return lines, nil
}

// WriteDiff writes a summary of diffs to writer, colorized when writer is
// os.Stdout, matching the teacher's WriteDiff convention.
func WriteDiff(writer io.Writer, oldPath, newPath string, diffs []LineDiff) {
	color.NoColor = true
	if f, ok := writer.(*os.File); ok && f == os.Stdout {
		color.NoColor = false
	}

	if len(diffs) == 0 {
		mustFprint(fmt.Fprintf(writer, "✅ %s and %s are identical.\n", oldPath, newPath))
		return
	}

	mustFprint(fmt.Fprintf(writer, "❌ %s and %s diverge at %d line(s):\n\n", oldPath, newPath, len(diffs)))
	for _, d := range diffs {
		if d.Old != "" {
			mustFprint(color.New(color.FgRed).Fprintf(writer, "%d - %s\n", d.Line, d.Old))
		}
		if d.New != "" {
			mustFprint(color.New(color.FgGreen).Fprintf(writer, "%d + %s\n", d.Line, d.New))
		}
	}
}

func mustFprint(_ int, err error) {
	if err != nil {
		panic(err)
	}
}

func main() {
	fset := flag.NewFlagSet("golden-diff", flag.ExitOnError)
	oldPath := fset.String("old", "", "path to the first edge report")
	newPath := fset.String("new", "", "path to the second edge report")
	if err := fset.Parse(os.Args[1:]); err != nil {
		log.Fatalf("failed to parse flags: %v", err)
	}
	if *oldPath == "" || *newPath == "" {
		log.Fatal("both -old and -new must be given")
	}

	old, err := ReadLines(*oldPath)
	if err != nil {
		log.Fatalf("read %q: %v", *oldPath, err)
	}
	newLines, err := ReadLines(*newPath)
	if err != nil {
		log.Fatalf("read %q: %v", *newPath, err)
	}

	diffs := Diff(old, newLines)
	WriteDiff(os.Stdout, *oldPath, *newPath, diffs)
	if len(diffs) != 0 {
		os.Exit(1)
	}
}
