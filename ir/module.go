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

package ir

import "strings"

// Module is the in-memory representation the instrumentation pipeline
// transforms: a sequence of functions, each a sequence of basic blocks (spec
// §3's "Module M"). Functions is walked in iteration order by every pass in
// this repo, and that order must never change once a Module is built.
type Module struct {
	Functions []*Function
}

// CountSwitches returns the number of Switch terminators still present in m,
// used to check property P2 ("no switches remain") after S1 runs.
func (m *Module) CountSwitches() int {
	n := 0
	for _, fn := range m.Functions {
		for _, b := range fn.Blocks {
			if _, ok := b.Term.(*Switch); ok {
				n++
			}
		}
	}
	return n
}

// EntryFunctions returns the functions that look like fuzzer entry points
// (whose name ends in "LLVMFuzzerTestOneInput", matching the LibAFL harness skeleton this
// pass's inputs are drawn from; see SPEC_FULL.md §2.4). This is a demo/CLI
// convenience, not part of the core pass contract.
func (m *Module) EntryFunctions() []*Function {
	var entries []*Function
	for _, fn := range m.Functions {
		if strings.HasSuffix(fn.Name, "LLVMFuzzerTestOneInput") {
			entries = append(entries, fn)
		}
	}
	return entries
}
