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

// Package bblabel implements S2, the basic-block labeller: it assigns a
// dense integer id to every basic block in module iteration order, attaches
// "BB_ID"/"Loc" metadata to each block's terminator, emits one report line
// per block, and inserts the "fake_func" scaffolding call that later stages
// use as a stable anchor (spec §4.2).
package bblabel

import (
	"fmt"
	"strconv"

	"go.branchcov.dev/covpass/ir"
	"go.branchcov.dev/covpass/report"
)

// MaxBlocks is the hard cap on the number of basic blocks a module may
// contain (spec §3, "Hard cap").
const MaxBlocks = 2_000_000_000

// ScaffoldCallee is the placeholder symbol S2 inserts and S4 removes (spec
// §3, §4.4).
const ScaffoldCallee = "fake_func"

// Result records the id assigned to every basic block, the one piece of
// state later stages (branchrewrite) need from this one.
type Result struct {
	IDs map[*ir.BasicBlock]int
}

// ID returns the id assigned to b, and whether one was assigned at all —
// callers must treat a missing id as the fatal "missing BB_ID metadata"
// condition from spec §7.
func (r *Result) ID(b *ir.BasicBlock) (int, bool) {
	id, ok := r.IDs[b]
	return id, ok
}

// Run labels every block of m in iteration order and writes one report line
// per block to rep. It returns an error if the block count would exceed
// MaxBlocks.
func Run(m *ir.Module, rep *report.Writer) (*Result, error) {
	res := &Result{IDs: make(map[*ir.BasicBlock]int)}
	id := 0
	for _, fn := range m.Functions {
		for _, block := range fn.Blocks {
			if id >= MaxBlocks {
				return nil, fmt.Errorf("bblabel: basic block count exceeds the %d cap", MaxBlocks)
			}

			block.SetMetadata("BB_ID", strconv.Itoa(id))
			loc := "UNKNOWN"
			if block.Loc != "" {
				loc = block.Loc
				block.SetMetadata("Loc", loc)
			}
			rep.BlockLine(fn.Name, id, loc)

			block.Instrs = append(block.Instrs, &ir.Call{
				Callee:     ScaffoldCallee,
				Args:       []ir.Value{ir.NewConstInt(32, uint64(id))},
				ResultType: ir.I1,
			})

			res.IDs[block] = id
			id++
		}
	}
	return res, nil
}
