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

// Package report implements the edge-report engine: the text file the fuzzer
// reads to reconstruct the instrumented program's interprocedural
// control-flow graph (spec §3 "Edge report record", §6). It is modeled
// directly on the teacher's diagnostic.Engine: a single stateful writer owned
// by the pipeline for the duration of one run, opened once, appended to in
// module-iteration order, and closed once.
package report

import (
	"bufio"
	"fmt"
	"os"
)

// DefaultPath is the report file name fixed by spec §3 ("branches.txt in the
// working directory").
const DefaultPath = "branches.txt"

// Writer appends report lines to a truncated file, and optionally retains
// them in memory as a Snapshot for determinism checks (spec property P6) and
// for cmd/covpass's -snapshot file.
type Writer struct {
	f  *os.File
	bw *bufio.Writer

	keepSnapshot bool
	snapshot     Snapshot
}

// Open truncates (or creates) the file at path and returns a Writer appending
// to it. keepSnapshot additionally accumulates every line written into an
// in-memory Snapshot retrievable via TakeSnapshot.
func Open(path string, keepSnapshot bool) (*Writer, error) {
	f, err := os.Create(path) // O_TRUNC|O_CREATE|O_RDWR, matching spec §3 "truncated on pass entry".
	if err != nil {
		return nil, fmt.Errorf("open report file %q: %w", path, err)
	}
	return &Writer{f: f, bw: bufio.NewWriter(f), keepSnapshot: keepSnapshot}, nil
}

// BlockLine emits one "@@@ <fn>, branch id: <id>| loc <loc>" line (spec §6).
func (w *Writer) BlockLine(function string, id int, loc string) {
	w.writeLine(fmt.Sprintf("@@@ %s, branch id: %d| loc %s", function, id, loc))
}

// EdgeLine emits one "@@@ edge id (<pred>,<succ>), cond type <mnemonic>,
// true|false" line (spec §6).
func (w *Writer) EdgeLine(pred, succ int, mnemonic string, polarity bool) {
	branch := "false"
	if polarity {
		branch = "true"
	}
	w.writeLine(fmt.Sprintf("@@@ edge id (%d,%d), cond type %s, %s", pred, succ, mnemonic, branch))
}

// Diagnostic emits a free-form diagnostic line preceding a fatal error (spec
// §6, §7).
func (w *Writer) Diagnostic(msg string) {
	w.writeLine(msg)
}

func (w *Writer) writeLine(line string) {
	fmt.Fprintln(w.bw, line)
	if w.keepSnapshot {
		w.snapshot.Records = append(w.snapshot.Records, line)
	}
}

// TakeSnapshot returns the lines written so far. It only returns a non-empty
// result if Open was called with keepSnapshot true.
func (w *Writer) TakeSnapshot() Snapshot {
	return w.snapshot
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("flush report file: %w", err)
	}
	return w.f.Close()
}
