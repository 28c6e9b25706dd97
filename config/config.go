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

// Package config holds the user-configurable parameters of the
// instrumentation pipeline: where the edge report is written, whether a
// run keeps an in-memory snapshot for determinism checks, and whether the
// switch splitter should behave as though the module was built at -O0 (spec
// §1 "ambient stack", SPEC_FULL.md §1).
package config

import "flag"

// Options configures one run of the pipeline (package pipeline).
type Options struct {
	// ReportPath is where the edge report (branches.txt by default) is
	// written. Empty means report.DefaultPath.
	ReportPath string
	// Snapshot additionally retains every report line in memory so callers
	// (tests, cmd/covpass's snapshot file) can compare two runs without
	// re-reading the report file from disk.
	Snapshot bool
	// RunAtO0 disables the switch splitter's byte-selection heuristics in
	// favor of the simplest valid lowering (always split on byte 0 first),
	// matching how optimization-disabled builds are expected to behave.
	// Behavioral equivalence (property P1) must still hold either way.
	RunAtO0 bool
}

// RegisterFlags registers Options' fields onto fs so a command-line driver
// can expose them, mirroring the teacher's config.Analyzer.Flags approach of
// keeping flag definitions next to the struct they populate.
func (o *Options) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&o.ReportPath, "report", "", "path to write the edge report to (default branches.txt in the working directory)")
	fs.BoolVar(&o.Snapshot, "snapshot", false, "retain an in-memory snapshot of the edge report for determinism checks")
	fs.BoolVar(&o.RunAtO0, "o0", false, "disable switch-lowering heuristics, matching an optimization-disabled build")
}
