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

package branchrewrite_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.branchcov.dev/covpass/ir"
	"go.branchcov.dev/covpass/passes/bblabel"
	"go.branchcov.dev/covpass/passes/branchrewrite"
	"go.branchcov.dev/covpass/report"
)

// branchFunction builds a three-block function: entry ends in a CondBr whose
// condition is cmp, branching to tBlock on true and fBlock on false.
func branchFunction(cmp ir.Value) (*ir.Function, *ir.BasicBlock) {
	fn := &ir.Function{Name: "f"}
	entry := fn.NewBlock("entry")
	tBlock := fn.NewBlock("t")
	fBlock := fn.NewBlock("f")
	tBlock.Term = &ir.Ret{}
	fBlock.Term = &ir.Ret{}
	entry.Term = &ir.CondBr{Cond: cmp, True: tBlock, False: fBlock}
	return fn, entry
}

func runPipeline(t *testing.T, fn *ir.Function) (*report.Writer, error) {
	t.Helper()
	m := &ir.Module{Functions: []*ir.Function{fn}}
	rep, err := report.Open(filepath.Join(t.TempDir(), "branches.txt"), true)
	require.NoError(t, err)

	ids, err := bblabel.Run(m, rep)
	require.NoError(t, err)

	err = branchrewrite.Run(m, ids, rep)
	return rep, err
}

func TestRunRewritesIntCondToLogFuncCall(t *testing.T) {
	t.Parallel()

	x := ir.NewConstInt(32, 10)
	y := ir.NewConstInt(32, 20)
	cmp := &ir.ICmp{Pred: ir.ICmpSLT, X: x, Y: y}
	fn, entry := branchFunction(cmp)

	rep, err := runPipeline(t, fn)
	require.NoError(t, err)
	require.NoError(t, rep.Close())

	cb := entry.Term.(*ir.CondBr)
	call, ok := cb.Cond.(*ir.Call)
	require.True(t, ok, "condition should have been rewritten to a Call")
	require.Equal(t, "log_func32", call.Callee)
	require.Len(t, call.Args, 6)

	snap := rep.TakeSnapshot()
	require.Contains(t, snap.Records, "@@@ edge id (0,1), cond type ICMP_SLT, true")
	require.Contains(t, snap.Records, "@@@ edge id (0,2), cond type ICMP_SGE, false")
}

func TestRunDispatchesByteOperandsToLogFunc8(t *testing.T) {
	t.Parallel()

	x := ir.NewConstInt(8, 1)
	y := ir.NewConstInt(8, 2)
	cmp := &ir.ICmp{Pred: ir.ICmpUGT, X: x, Y: y}
	fn, entry := branchFunction(cmp)

	rep, err := runPipeline(t, fn)
	require.NoError(t, err)
	defer rep.Close()

	cb := entry.Term.(*ir.CondBr)
	call := cb.Cond.(*ir.Call)
	require.Equal(t, "log_func8", call.Callee, "8-bit operands should dispatch to the 8-bit callback untouched")
}

func TestRunSignExtendsOddWidthComparison(t *testing.T) {
	t.Parallel()

	// A 12-bit comparison has no matching callback, so it must be promoted to
	// the next-widest one (16 bits) via an inserted SExt (signed predicate).
	x := ir.NewConstInt(12, 1)
	y := ir.NewConstInt(12, 2)
	cmp := &ir.ICmp{Pred: ir.ICmpSLT, X: x, Y: y}
	fn, entry := branchFunction(cmp)

	rep, err := runPipeline(t, fn)
	require.NoError(t, err)
	defer rep.Close()

	cb := entry.Term.(*ir.CondBr)
	call := cb.Cond.(*ir.Call)
	require.Equal(t, "log_func16", call.Callee)
	_, xIsSExt := call.Args[2].(*ir.SExt)
	require.True(t, xIsSExt)
	_, yIsSExt := call.Args[3].(*ir.SExt)
	require.True(t, yIsSExt)
}

func TestRunSignExtendsOddWidthUnsignedComparison(t *testing.T) {
	t.Parallel()

	// Spec §4.3 is unconditional: narrower operands are always
	// sign-extended, even under an unsigned predicate — the is_signed arg
	// passed alongside tells the runtime which comparison to perform.
	x := ir.NewConstInt(12, 1)
	y := ir.NewConstInt(12, 2)
	cmp := &ir.ICmp{Pred: ir.ICmpULT, X: x, Y: y}
	fn, entry := branchFunction(cmp)

	rep, err := runPipeline(t, fn)
	require.NoError(t, err)
	defer rep.Close()

	cb := entry.Term.(*ir.CondBr)
	call := cb.Cond.(*ir.Call)
	require.Equal(t, "log_func16", call.Callee)
	_, xIsSExt := call.Args[2].(*ir.SExt)
	require.True(t, xIsSExt)
	require.Equal(t, uint64(0), call.Args[4].(*ir.ConstInt).Val)
}

func TestRunRewritesFloatCond(t *testing.T) {
	t.Parallel()

	x := &ir.ConstFloat{Bits: 64, Val: 1.5}
	y := &ir.ConstFloat{Bits: 64, Val: 2.5}
	cmp := &ir.FCmp{Pred: ir.FCmpOGT, X: x, Y: y}
	fn, entry := branchFunction(cmp)

	rep, err := runPipeline(t, fn)
	require.NoError(t, err)
	defer rep.Close()

	cb := entry.Term.(*ir.CondBr)
	call := cb.Cond.(*ir.Call)
	require.Equal(t, "log_func_f64", call.Callee)

	// Reproduces the original harness's literal false-edge mnemonic for
	// FCMP_OGT verbatim, including its "||" — it is not the clean logical
	// negation FCMP_ULE.
	snap := rep.TakeSnapshot()
	require.Contains(t, snap.Records, "@@@ edge id (0,1), cond type FCMP_OGT, true")
	require.Contains(t, snap.Records, "@@@ edge id (0,2), cond type FCMP_OGE || FCMP_OLT, false")
}

func TestRunCastsPointerComparisonToLogFunc64Unsigned(t *testing.T) {
	t.Parallel()

	x := &ir.Param{Name: "p", Typ: ir.PointerType{}}
	y := &ir.Param{Name: "q", Typ: ir.PointerType{}}
	cmp := &ir.ICmp{Pred: ir.ICmpEQ, X: x, Y: y}
	fn, entry := branchFunction(cmp)

	rep, err := runPipeline(t, fn)
	require.NoError(t, err)
	defer rep.Close()

	cb := entry.Term.(*ir.CondBr)
	call := cb.Cond.(*ir.Call)
	require.Equal(t, "log_func64", call.Callee)

	for _, arg := range call.Args[2:4] {
		_, isPtrToInt := arg.(*ir.PtrToInt)
		require.True(t, isPtrToInt, "pointer operands must be cast via PtrToInt before the call")
	}
	isSigned, ok := call.Args[4].(*ir.ConstInt)
	require.True(t, ok)
	require.Equal(t, uint64(0), isSigned.Val, "pointer comparisons must report is_signed=0")
}

func TestRunRejectsNonComparisonCondition(t *testing.T) {
	t.Parallel()

	cond := ir.NewConstInt(1, 1)
	fn, _ := branchFunction(cond)

	_, err := runPipeline(t, fn)
	require.Error(t, err)
}

func TestRunRejectsOversizeIntComparison(t *testing.T) {
	t.Parallel()

	x := ir.NewConstInt(128, 0)
	y := ir.NewConstInt(128, 1)
	cmp := &ir.ICmp{Pred: ir.ICmpEQ, X: x, Y: y}
	fn, _ := branchFunction(cmp)

	_, err := runPipeline(t, fn)
	require.Error(t, err)
}

func TestRunRejectsSurvivingSwitch(t *testing.T) {
	t.Parallel()

	fn := &ir.Function{Name: "f"}
	entry := fn.NewBlock("entry")
	def := fn.NewBlock("default")
	def.Term = &ir.Ret{}
	entry.Term = &ir.Switch{Scrutinee: ir.NewConstInt(32, 0), Default: def}

	m := &ir.Module{Functions: []*ir.Function{fn}}
	rep, err := report.Open(filepath.Join(t.TempDir(), "branches.txt"), true)
	require.NoError(t, err)
	defer rep.Close()

	ids, err := bblabel.Run(m, rep)
	require.NoError(t, err)

	err = branchrewrite.Run(m, ids, rep)
	require.Error(t, err)
}
