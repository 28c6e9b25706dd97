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

// Package pipeline orchestrates the four instrumentation stages — S1
// (switchsplit), S2 (bblabel), S3 (branchrewrite), S4 (cleanup) — over a
// single ir.Module, owning the edge-report writer's lifecycle for the
// duration of the run (spec §3, §7). It is modeled on the teacher's
// accumulation.run: a single entry point that recovers from any internal
// panic and turns it into a reported Fatal error rather than crashing the
// host process.
package pipeline

import (
	"fmt"
	"runtime/debug"

	"go.branchcov.dev/covpass/config"
	"go.branchcov.dev/covpass/ir"
	"go.branchcov.dev/covpass/passes/bblabel"
	"go.branchcov.dev/covpass/passes/branchrewrite"
	"go.branchcov.dev/covpass/passes/cleanup"
	"go.branchcov.dev/covpass/passes/switchsplit"
	"go.branchcov.dev/covpass/report"
)

// Fatal wraps any error that aborted a run, identifying which stage produced
// it (spec §7, "Any failure ... is fatal for the whole pass").
type Fatal struct {
	Stage string
	Err   error
}

func (f *Fatal) Error() string { return fmt.Sprintf("covpass: %s: %v", f.Stage, f.Err) }

func (f *Fatal) Unwrap() error { return f.Err }

// Result is what a successful run hands back to its caller: the basic-block
// ids assigned by S2, useful to callers that want to cross-reference the
// report against the module without recomputing them,
// and the report snapshot if config.Options.Snapshot was set.
type Result struct {
	IDs      *bblabel.Result
	Snapshot report.Snapshot
}

// Run executes S1 through S4 over m in order, opening the report file named
// by opts.ReportPath (or report.DefaultPath) at entry and closing it before
// returning, even on error.
func Run(m *ir.Module, opts config.Options) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &Fatal{Stage: "panic", Err: fmt.Errorf("%v\n%s", r, debug.Stack())}
		}
	}()

	path := opts.ReportPath
	if path == "" {
		path = report.DefaultPath
	}

	rep, openErr := report.Open(path, opts.Snapshot)
	if openErr != nil {
		return nil, &Fatal{Stage: "open-report", Err: openErr}
	}
	defer func() {
		if closeErr := rep.Close(); closeErr != nil && err == nil {
			err = &Fatal{Stage: "close-report", Err: closeErr}
		}
	}()

	if err := switchsplit.Run(m, opts.RunAtO0); err != nil {
		return nil, &Fatal{Stage: "switchsplit", Err: err}
	}

	ids, err := bblabel.Run(m, rep)
	if err != nil {
		return nil, &Fatal{Stage: "bblabel", Err: err}
	}

	if err := branchrewrite.Run(m, ids, rep); err != nil {
		return nil, &Fatal{Stage: "branchrewrite", Err: err}
	}

	if err := cleanup.Run(m); err != nil {
		return nil, &Fatal{Stage: "cleanup", Err: err}
	}

	return &Result{IDs: ids, Snapshot: rep.TakeSnapshot()}, nil
}
