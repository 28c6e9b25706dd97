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

// Package cleanup implements S4, the scaffolding cleanup pass: it removes
// every "fake_func" placeholder call bblabel inserted in S2, once it has
// confirmed nothing in the module still uses that call's result (spec §4.4).
package cleanup

import (
	"fmt"

	"go.branchcov.dev/covpass/ir"
	"go.branchcov.dev/covpass/passes/bblabel"
)

// Run removes every bblabel.ScaffoldCallee call from m. It returns an error
// if any such call's result is still referenced elsewhere in the module —
// S3 never consumes a scaffold call's result, so a surviving use indicates
// some other pass mutated the module in a way this pipeline doesn't expect.
func Run(m *ir.Module) error {
	users := collectUsers(m)

	for _, fn := range m.Functions {
		for _, block := range fn.Blocks {
			kept := block.Instrs[:0]
			for _, instr := range block.Instrs {
				call, ok := instr.(*ir.Call)
				if !ok || call.Callee != bblabel.ScaffoldCallee {
					kept = append(kept, instr)
					continue
				}
				if users[call] > 0 {
					return fmt.Errorf("cleanup: scaffold call in block %s still has %d user(s)", block.Name, users[call])
				}
			}
			block.Instrs = kept
		}
	}
	return nil
}

// collectUsers scans every instruction, phi, and terminator operand in m and
// counts how many times each Value is referenced — the closest thing this IR
// has to a use-list, computed on demand since BasicBlock carries none.
func collectUsers(m *ir.Module) map[ir.Value]int {
	users := make(map[ir.Value]int)
	note := func(v ir.Value) {
		if v != nil {
			users[v]++
		}
	}

	for _, fn := range m.Functions {
		for _, block := range fn.Blocks {
			for _, phi := range block.Phis {
				for _, inc := range phi.Incoming {
					note(inc.Val)
				}
			}
			for _, instr := range block.Instrs {
				noteOperands(instr, note)
			}
			noteTerminatorOperands(block.Term, note)
		}
	}
	return users
}

func noteOperands(instr ir.Instr, note func(ir.Value)) {
	switch v := instr.(type) {
	case *ir.ICmp:
		note(v.X)
		note(v.Y)
	case *ir.FCmp:
		note(v.X)
		note(v.Y)
	case *ir.LShr:
		note(v.X)
	case *ir.Trunc:
		note(v.X)
	case *ir.SExt:
		note(v.X)
	case *ir.ZExt:
		note(v.X)
	case *ir.PtrToInt:
		note(v.X)
	case *ir.Call:
		for _, arg := range v.Args {
			note(arg)
		}
	case *ir.Phi:
		for _, inc := range v.Incoming {
			note(inc.Val)
		}
	}
}

func noteTerminatorOperands(term ir.Terminator, note func(ir.Value)) {
	switch t := term.(type) {
	case *ir.CondBr:
		note(t.Cond)
	case *ir.Switch:
		note(t.Scrutinee)
	case *ir.Ret:
		note(t.Val)
	}
}
