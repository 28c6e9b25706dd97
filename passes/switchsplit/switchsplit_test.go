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

package switchsplit_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.branchcov.dev/covpass/ir"
	"go.branchcov.dev/covpass/passes/switchsplit"
)

// buildSwitch constructs a function with a single switch block comparing a
// 32-bit scrutinee param against the given case values, each targeting its
// own distinct block, falling through to a default block otherwise.
func buildSwitch(t *testing.T, caseVals []uint64) (fn *ir.Function, switchBlock *ir.BasicBlock, defaultBlock *ir.BasicBlock, targets []*ir.BasicBlock) {
	t.Helper()

	fn = &ir.Function{Name: "f"}
	scrutinee := &ir.Param{Name: "v", Typ: ir.IntType{Bits: 32}}
	fn.Params = []*ir.Param{scrutinee}

	switchBlock = fn.NewBlock("entry")
	defaultBlock = fn.NewBlock("default")
	defaultBlock.Term = &ir.Ret{}

	var cases []ir.Case
	for _, v := range caseVals {
		tgt := fn.NewBlock("case")
		tgt.Term = &ir.Ret{}
		targets = append(targets, tgt)
		cases = append(cases, ir.Case{Val: v, Target: tgt})
	}

	switchBlock.Term = &ir.Switch{Scrutinee: scrutinee, Cases: cases, Default: defaultBlock}
	return fn, switchBlock, defaultBlock, targets
}

func TestRunEliminatesAllSwitches(t *testing.T) {
	t.Parallel()

	fn, _, _, _ := buildSwitch(t, []uint64{0x00, 0x01, 0x0100, 0x010000})
	m := &ir.Module{Functions: []*ir.Function{fn}}

	require.NoError(t, switchsplit.Run(m, false))
	require.Zero(t, m.CountSwitches())
}

func TestRunEmptySwitchFunnelsToDefault(t *testing.T) {
	t.Parallel()

	fn, switchBlock, defaultBlock, _ := buildSwitch(t, nil)
	m := &ir.Module{Functions: []*ir.Function{fn}}
	require.NoError(t, switchsplit.Run(m, false))

	br, ok := switchBlock.Term.(*ir.Br)
	require.True(t, ok)
	// Walk through the interposed NewDefault block straight to D.
	inner, ok := br.Target.Term.(*ir.Br)
	require.True(t, ok)
	require.Same(t, defaultBlock, inner.Target)
}

// evalTree walks the lowered decision tree exactly as a CPU would, feeding it
// scrutinee as the runtime value of the switch's original operand, and
// returns the basic block execution ends up in. This directly checks
// property P1 (switch equivalence) for a given value.
func evalTree(t *testing.T, entry *ir.BasicBlock, scrutinee uint64) *ir.BasicBlock {
	t.Helper()

	block := entry
	for steps := 0; steps < 64; steps++ {
		switch term := block.Term.(type) {
		case *ir.Br:
			block = term.Target
		case *ir.CondBr:
			cmp := term.Cond.(*ir.ICmp)
			lhs := evalOperand(t, cmp.X, scrutinee)
			rhs := evalOperand(t, cmp.Y, scrutinee)
			var taken bool
			switch cmp.Pred {
			case ir.ICmpEQ:
				taken = lhs == rhs
			case ir.ICmpULT:
				taken = lhs < rhs
			default:
				t.Fatalf("unexpected predicate in lowered tree: %v", cmp.Pred)
			}
			if taken {
				block = term.True
			} else {
				block = term.False
			}
		default:
			return block
		}
	}
	t.Fatal("evalTree: did not terminate, possible cycle in lowered tree")
	return nil
}

// evalOperand evaluates an ir.Value produced by the switch splitter
// (LShr/Trunc chains rooted at the scrutinee, or an 8-bit constant) against a
// concrete runtime scrutinee value.
func evalOperand(t *testing.T, v ir.Value, scrutinee uint64) uint64 {
	t.Helper()
	switch x := v.(type) {
	case *ir.ConstInt:
		return x.Val
	case *ir.Param:
		return scrutinee
	case *ir.LShr:
		return evalOperand(t, x.X, scrutinee) >> x.Shift
	case *ir.Trunc:
		return evalOperand(t, x.X, scrutinee) & 0xFF
	default:
		t.Fatalf("evalOperand: unexpected value kind %T", v)
		return 0
	}
}

func TestRunPreservesSwitchSemantics(t *testing.T) {
	t.Parallel()

	caseVals := []uint64{0x00, 0x01, 0x0100, 0x010000}
	fn, switchBlock, defaultBlock, targets := buildSwitch(t, caseVals)
	m := &ir.Module{Functions: []*ir.Function{fn}}
	require.NoError(t, switchsplit.Run(m, false))

	br := switchBlock.Term.(*ir.Br)
	treeEntry := br.Target

	for i, v := range caseVals {
		got := evalTree(t, treeEntry, v)
		require.Same(t, targets[i], got, "case value %#x should reach its target", v)
	}

	for _, v := range []uint64{0x02, 0x0200, 0x020000, 0xFFFFFFFF} {
		got := evalTree(t, treeEntry, v)
		// Every non-matching value should route to NewDefault, which
		// unconditionally branches to the original default block; evalTree
		// follows that branch, so execution ends in the default block.
		require.Same(t, defaultBlock, got, "value %#x should reach default", v)
	}
}

func TestRunRepairsDefaultPhi(t *testing.T) {
	t.Parallel()

	fn, switchBlock, defaultBlock, _ := buildSwitch(t, []uint64{1, 2})
	phi := &ir.Phi{
		Typ:      ir.IntType{Bits: 32},
		Incoming: []ir.PhiIncoming{{Pred: switchBlock, Val: ir.NewConstInt(32, 0)}},
	}
	defaultBlock.Phis = append(defaultBlock.Phis, phi)

	m := &ir.Module{Functions: []*ir.Function{fn}}
	require.NoError(t, switchsplit.Run(m, false))

	require.NotSame(t, switchBlock, phi.Incoming[0].Pred)
	require.Equal(t, "f.switch.default.4", phi.Incoming[0].Pred.Name)
}

func TestRunRepairsCaseTargetPhi(t *testing.T) {
	t.Parallel()

	fn, switchBlock, _, targets := buildSwitch(t, []uint64{1})
	target := targets[0]
	phi := &ir.Phi{
		Typ:      ir.IntType{Bits: 32},
		Incoming: []ir.PhiIncoming{{Pred: switchBlock, Val: ir.NewConstInt(32, 9)}},
	}
	target.Phis = append(target.Phis, phi)

	m := &ir.Module{Functions: []*ir.Function{fn}}
	require.NoError(t, switchsplit.Run(m, false))

	require.NotSame(t, switchBlock, phi.Incoming[0].Pred)
}

func TestRunRejectsNonIntegerScrutinee(t *testing.T) {
	t.Parallel()

	fn := &ir.Function{Name: "f"}
	block := fn.NewBlock("entry")
	def := fn.NewBlock("default")
	def.Term = &ir.Ret{}
	block.Term = &ir.Switch{Scrutinee: &ir.ConstFloat{Bits: 64, Val: 1}, Default: def}

	m := &ir.Module{Functions: []*ir.Function{fn}}
	require.Error(t, switchsplit.Run(m, false))
}
