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

// Package branchrewrite implements S3, the branch rewriter: it walks every
// two-way conditional branch, classifies its condition's predicate, rewrites
// the condition to go through the matching logging callback, and emits the
// edge-report lines the fuzzer's CFG reconstruction needs (spec §4.3).
package branchrewrite

import (
	"fmt"

	"go.branchcov.dev/covpass/ir"
	"go.branchcov.dev/covpass/passes/bblabel"
	"go.branchcov.dev/covpass/report"
)

// callbackWidths are the integer callback widths the runtime exposes, in
// ascending order (spec §4.3's six callback signatures).
var callbackWidths = [...]int{8, 16, 32, 64}

// Run rewrites every conditional branch's condition in m to go through the
// logging callback matching its predicate, appending edge lines to rep. It
// returns an error — the pass's "fatal" condition, per spec §7 — on the
// first unsupported construct.
func Run(m *ir.Module, ids *bblabel.Result, rep *report.Writer) error {
	for _, fn := range m.Functions {
		for _, block := range fn.Blocks {
			if _, ok := block.Term.(*ir.Switch); ok {
				rep.Diagnostic(fmt.Sprintf("@@@ switch terminator survived into S3 in block %s", block.Name))
				return fmt.Errorf("branchrewrite: switch terminator survived into S3 in block %s (should have been eliminated by S1)", block.Name)
			}

			cb, ok := block.Term.(*ir.CondBr)
			if !ok {
				continue
			}
			if err := rewriteBranch(block, cb, ids, rep); err != nil {
				return fmt.Errorf("branchrewrite: block %s: %w", block.Name, err)
			}
		}
	}
	return nil
}

func rewriteBranch(block *ir.BasicBlock, cb *ir.CondBr, ids *bblabel.Result, rep *report.Writer) error {
	p, ok := ids.ID(block)
	if !ok {
		return fmt.Errorf("missing BB_ID metadata for block %s", block.Name)
	}
	s1, ok := ids.ID(cb.True)
	if !ok {
		return fmt.Errorf("missing BB_ID metadata for block %s", cb.True.Name)
	}
	s2, ok := ids.ID(cb.False)
	if !ok {
		return fmt.Errorf("missing BB_ID metadata for block %s", cb.False.Name)
	}

	switch cond := cb.Cond.(type) {
	case *ir.ICmp:
		call, trueM, falseM, err := buildIntCall(block, cond, p)
		if err != nil {
			return err
		}
		block.Instrs = append(block.Instrs, call)
		cb.Cond = call
		rep.EdgeLine(p, s1, trueM, true)
		rep.EdgeLine(p, s2, falseM, false)
		return nil

	case *ir.FCmp:
		call, trueM, falseM, err := buildFloatCall(block, cond, p)
		if err != nil {
			return err
		}
		block.Instrs = append(block.Instrs, call)
		cb.Cond = call
		rep.EdgeLine(p, s1, trueM, true)
		rep.EdgeLine(p, s2, falseM, false)
		return nil

	default:
		rep.Diagnostic(fmt.Sprintf("@@@ non-ICMP/FCMP branch condition %T in block %s", cond, block.Name))
		return fmt.Errorf("conditional branch condition is neither icmp nor fcmp (got %T); logical combinators and select-materialised conditions are not instrumentable", cond)
	}
}

// buildIntCall classifies cmp's predicate, selects the matching log_func*
// callback, casting operands as needed, and returns the Call instruction to
// splice in along with the report mnemonics for the true/false edges.
func buildIntCall(block *ir.BasicBlock, cmp *ir.ICmp, branchID int) (*ir.Call, string, string, error) {
	trueM, falseM, signed, ok := cmp.Pred.Classify()
	if !ok {
		return nil, "", "", fmt.Errorf("unrecognised integer predicate %d", uint8(cmp.Pred))
	}

	xKind, err := operandKind(cmp.X.Type())
	if err != nil {
		return nil, "", "", err
	}
	yKind, err := operandKind(cmp.Y.Type())
	if err != nil {
		return nil, "", "", err
	}

	var (
		callee   string
		a, b     ir.Value
		isSigned bool
	)
	switch {
	case xKind.pointer || yKind.pointer:
		if !xKind.pointer || !yKind.pointer {
			return nil, "", "", fmt.Errorf("mixed pointer/integer operands in icmp")
		}
		callee = "log_func64"
		a = castPointer(block, cmp.X)
		b = castPointer(block, cmp.Y)
		isSigned = false // forced to 0 for pointer operands, spec §4.3 scenario 3.

	default:
		if xKind.bits != yKind.bits {
			return nil, "", "", fmt.Errorf("operand width mismatch in icmp: %d vs %d", xKind.bits, yKind.bits)
		}
		target, err := callbackWidthFor(xKind.bits)
		if err != nil {
			return nil, "", "", err
		}
		callee = callbackNameInt(target)
		isSigned = signed
		a = extendInt(block, cmp.X, xKind.bits, target)
		b = extendInt(block, cmp.Y, xKind.bits, target)
	}

	call := &ir.Call{
		Callee: callee,
		Args: []ir.Value{
			ir.NewConstInt(32, uint64(branchID)),
			cmp,
			a,
			b,
			ir.NewConstInt(8, boolToUint64(isSigned)),
			ir.NewConstInt(8, uint64(cmp.Pred)),
		},
		ResultType: ir.I1,
	}
	return call, trueM, falseM, nil
}

// buildFloatCall is buildIntCall's float analogue: the signedness flag is
// always 1 (spec §4.3), and only the two IEEE widths are supported.
func buildFloatCall(block *ir.BasicBlock, cmp *ir.FCmp, branchID int) (*ir.Call, string, string, error) {
	trueM, falseM, ok := cmp.Pred.Classify()
	if !ok {
		return nil, "", "", fmt.Errorf("unrecognised float predicate %d", uint8(cmp.Pred))
	}

	xt, ok := cmp.X.Type().(ir.FloatType)
	if !ok {
		return nil, "", "", fmt.Errorf("non-float operand in fcmp: %T", cmp.X.Type())
	}
	yt, ok := cmp.Y.Type().(ir.FloatType)
	if !ok {
		return nil, "", "", fmt.Errorf("non-float operand in fcmp: %T", cmp.Y.Type())
	}
	if xt.Bits != yt.Bits {
		return nil, "", "", fmt.Errorf("operand width mismatch in fcmp: %d vs %d", xt.Bits, yt.Bits)
	}

	var callee string
	switch xt.Bits {
	case 32:
		callee = "log_func_f32"
	case 64:
		callee = "log_func_f64"
	default:
		return nil, "", "", fmt.Errorf("unsupported float comparison width %d (must be 32 or 64)", xt.Bits)
	}

	_ = block // no casts ever needed for float operands.

	call := &ir.Call{
		Callee: callee,
		Args: []ir.Value{
			ir.NewConstInt(32, uint64(branchID)),
			cmp,
			cmp.X,
			cmp.Y,
			ir.NewConstInt(8, 1), // is_signed is always 1 for float comparisons.
			ir.NewConstInt(8, uint64(cmp.Pred)),
		},
		ResultType: ir.I1,
	}
	return call, trueM, falseM, nil
}

type operandInfo struct {
	bits    int
	pointer bool
}

func operandKind(t ir.Type) (operandInfo, error) {
	switch tt := t.(type) {
	case ir.IntType:
		return operandInfo{bits: tt.Bits}, nil
	case ir.PointerType:
		return operandInfo{bits: 64, pointer: true}, nil
	default:
		return operandInfo{}, fmt.Errorf("non-integer, non-pointer operand in integer comparison: %T", t)
	}
}

// callbackWidthFor returns the smallest supported callback width that can
// hold an operand of the given bit width; extendInt then sign-extends the
// operand to that width (spec §4.3: "for integer operands of width < target, sign-extend; this is
// intentional"). Operands wider than the largest callback are rejected.
func callbackWidthFor(bits int) (int, error) {
	for _, w := range callbackWidths {
		if bits <= w {
			return w, nil
		}
	}
	return 0, fmt.Errorf("integer comparison width %d exceeds the supported callback widths {8,16,32,64}", bits)
}

func callbackNameInt(width int) string {
	return fmt.Sprintf("log_func%d", width)
}

// extendInt inserts a SExt instruction into block if the operand's native
// width is narrower than target, else returns v unchanged. Spec §4.3 is
// unconditional here: narrower operands are always sign-extended, even for
// an unsigned predicate, because the signedness flag passed alongside in
// the call tells the runtime which comparison to perform regardless of how
// the operand bits were extended to reach the callback's width.
func extendInt(block *ir.BasicBlock, v ir.Value, fromBits, target int) ir.Value {
	if fromBits >= target {
		return v
	}
	ext := &ir.SExt{X: v, ToBits: target}
	block.Instrs = append(block.Instrs, ext)
	return ext
}

// castPointer inserts a PtrToInt reinterpreting a pointer operand as a
// 64-bit integer, the form every log_func64 callback expects.
func castPointer(block *ir.BasicBlock, v ir.Value) ir.Value {
	cast := &ir.PtrToInt{X: v}
	block.Instrs = append(block.Instrs, cast)
	return cast
}

func boolToUint64(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
