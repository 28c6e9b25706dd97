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

// Package fromssa bridges golang.org/x/tools/go/ssa to this module's ir
// package, so the instrumentation pipeline can run over a real Go package's
// SSA form instead of a hand-built module (SPEC_FULL.md §2.1, demo/-fromgo
// mode). It only needs to understand the slice of SSA this pass actually
// instruments: branches, jumps, returns, comparisons and phis — exactly the
// constructs ir models (see ir.Type's doc comment).
package fromssa

import (
	"fmt"
	"go/constant"
	"go/token"
	"go/types"

	"golang.org/x/tools/go/analysis/passes/buildssa"
	"golang.org/x/tools/go/ssa"

	"go.branchcov.dev/covpass/ir"
)

// Build translates every source function in ssaInput into an ir.Module. Each
// ssa.BasicBlock becomes one ir.BasicBlock; source locations are attached
// from the SSA instructions' token.Pos via fset.
func Build(ssaInput *buildssa.SSA, fset *token.FileSet) (*ir.Module, error) {
	m := &ir.Module{}
	for _, fn := range ssaInput.SrcFuncs {
		if fn == nil || len(fn.Blocks) == 0 {
			// External functions (assembly, cgo) carry no SSA body; spec has
			// nothing to instrument there.
			continue
		}
		irFn, err := buildFunction(fn, fset)
		if err != nil {
			return nil, fmt.Errorf("fromssa: function %s: %w", fn.Name(), err)
		}
		m.Functions = append(m.Functions, irFn)
	}
	return m, nil
}

func buildFunction(fn *ssa.Function, fset *token.FileSet) (*ir.Function, error) {
	irFn := &ir.Function{Name: fn.RelString(fn.Package().Pkg)}
	for _, p := range fn.Params {
		t, err := translateType(p.Type())
		if err != nil {
			continue // parameter types we don't model never participate in a comparison anyway.
		}
		irFn.Params = append(irFn.Params, &ir.Param{Name: p.Name(), Typ: t})
	}

	blocks := make(map[*ssa.BasicBlock]*ir.BasicBlock, len(fn.Blocks))
	for _, b := range fn.Blocks {
		blocks[b] = irFn.NewBlock(b.Comment)
	}

	values := make(map[ssa.Value]ir.Value)
	for _, b := range fn.Blocks {
		irBlock := blocks[b]
		if err := buildPhis(b, irBlock, blocks, values); err != nil {
			return nil, err
		}
		if err := buildBody(b, irBlock, blocks, values, fset); err != nil {
			return nil, err
		}
	}
	return irFn, nil
}

func buildPhis(b *ssa.BasicBlock, irBlock *ir.BasicBlock, blocks map[*ssa.BasicBlock]*ir.BasicBlock, values map[ssa.Value]ir.Value) error {
	for _, instr := range b.Instrs {
		phi, ok := instr.(*ssa.Phi)
		if !ok {
			continue
		}
		t, err := translateType(phi.Type())
		if err != nil {
			continue // a phi over a type we don't model never feeds a comparison.
		}
		irPhi := &ir.Phi{Typ: t}
		// ssa guarantees phi.Edges[i] corresponds to b.Preds[i].
		for i, pred := range b.Preds {
			val, err := translateOperand(phi.Edges[i], values)
			if err != nil {
				continue
			}
			irPhi.Incoming = append(irPhi.Incoming, ir.PhiIncoming{Pred: blocks[pred], Val: val})
		}
		irBlock.Phis = append(irBlock.Phis, irPhi)
		values[phi] = irPhi
	}
	return nil
}

func buildBody(b *ssa.BasicBlock, irBlock *ir.BasicBlock, blocks map[*ssa.BasicBlock]*ir.BasicBlock, values map[ssa.Value]ir.Value, fset *token.FileSet) error {
	for _, instr := range b.Instrs {
		switch v := instr.(type) {
		case *ssa.Phi:
			continue // handled by buildPhis.

		case *ssa.BinOp:
			cmp, err := buildComparison(v, values)
			if err != nil {
				continue // not a comparison this pass models; leave untranslated.
			}
			irBlock.Instrs = append(irBlock.Instrs, cmp)
			values[v] = cmp
			attachLoc(irBlock, v.Pos(), fset)

		case *ssa.Jump:
			irBlock.Term = &ir.Br{Target: blocks[b.Succs[0]]}

		case *ssa.If:
			cond, err := buildCondition(v.Cond, values, irBlock)
			if err != nil {
				return fmt.Errorf("block %s: %w", b.Comment, err)
			}
			irBlock.Term = &ir.CondBr{Cond: cond, True: blocks[b.Succs[0]], False: blocks[b.Succs[1]]}
			attachLoc(irBlock, v.Pos(), fset)

		case *ssa.Return:
			var val ir.Value
			if len(v.Results) == 1 {
				val, _ = translateOperand(v.Results[0], values)
			}
			irBlock.Term = &ir.Ret{Val: val}
		}
	}
	if irBlock.Term == nil {
		// A block we don't fully model (e.g. ends in panic/select/defer-driven
		// control flow): terminate it safely rather than leave the module
		// malformed.
		irBlock.Term = &ir.Unreachable{}
	}
	return nil
}

// buildCondition returns an ir.Value usable directly as a CondBr's Cond. If
// cond is already one of the comparisons this pass models, it's translated
// and reused directly. Otherwise it's normalized into "icmp eq <cond>, 1" —
// branchrewrite only ever rewrites ICmp/FCmp conditions (spec §4.3), and
// this keeps every other i1-producing SSA construct (method calls returning
// bool, logical ops the front end already lowered, ...) instrumentable too.
func buildCondition(cond ssa.Value, values map[ssa.Value]ir.Value, irBlock *ir.BasicBlock) (ir.Value, error) {
	if bin, ok := cond.(*ssa.BinOp); ok {
		if cmp, err := buildComparison(bin, values); err == nil {
			if _, already := values[bin]; !already {
				irBlock.Instrs = append(irBlock.Instrs, cmp)
				values[bin] = cmp
			}
			return values[bin], nil
		}
	}

	operand, err := translateOperand(cond, values)
	if err != nil {
		return nil, fmt.Errorf("unmodelled branch condition: %w", err)
	}
	normalized := &ir.ICmp{Pred: ir.ICmpEQ, X: operand, Y: ir.NewConstInt(1, 1)}
	irBlock.Instrs = append(irBlock.Instrs, normalized)
	return normalized, nil
}

func buildComparison(bin *ssa.BinOp, values map[ssa.Value]ir.Value) (ir.Instr, error) {
	x, err := translateOperand(bin.X, values)
	if err != nil {
		return nil, err
	}
	y, err := translateOperand(bin.Y, values)
	if err != nil {
		return nil, err
	}

	if _, isFloat := x.Type().(ir.FloatType); isFloat {
		pred, err := floatPredicate(bin.Op)
		if err != nil {
			return nil, err
		}
		return &ir.FCmp{Pred: pred, X: x, Y: y}, nil
	}

	pred, err := intPredicate(bin.Op, isSignedSSAType(bin.X.Type()))
	if err != nil {
		return nil, err
	}
	return &ir.ICmp{Pred: pred, X: x, Y: y}, nil
}

func intPredicate(op token.Token, signed bool) (ir.IntPredicate, error) {
	switch op {
	case token.EQL:
		return ir.ICmpEQ, nil
	case token.NEQ:
		return ir.ICmpNE, nil
	case token.LSS:
		if signed {
			return ir.ICmpSLT, nil
		}
		return ir.ICmpULT, nil
	case token.LEQ:
		if signed {
			return ir.ICmpSLE, nil
		}
		return ir.ICmpULE, nil
	case token.GTR:
		if signed {
			return ir.ICmpSGT, nil
		}
		return ir.ICmpUGT, nil
	case token.GEQ:
		if signed {
			return ir.ICmpSGE, nil
		}
		return ir.ICmpUGE, nil
	default:
		return 0, fmt.Errorf("non-comparison binary operator %v", op)
	}
}

func floatPredicate(op token.Token) (ir.FloatPredicate, error) {
	switch op {
	case token.EQL:
		return ir.FCmpOEQ, nil
	case token.NEQ:
		return ir.FCmpUNE, nil
	case token.LSS:
		return ir.FCmpOLT, nil
	case token.LEQ:
		return ir.FCmpOLE, nil
	case token.GTR:
		return ir.FCmpOGT, nil
	case token.GEQ:
		return ir.FCmpOGE, nil
	default:
		return 0, fmt.Errorf("non-comparison binary operator %v", op)
	}
}

func isSignedSSAType(t types.Type) bool {
	basic, ok := t.Underlying().(*types.Basic)
	if !ok {
		return false
	}
	return basic.Info()&types.IsUnsigned == 0
}

// translateOperand converts an ssa.Value already produced in this function
// into an ir.Value: a constant is translated directly, and anything else
// must already have an entry in values (it was itself translated earlier, in
// program order, since ssa guarantees a value is defined before its uses
// within a function's dominance structure).
func translateOperand(v ssa.Value, values map[ssa.Value]ir.Value) (ir.Value, error) {
	if c, ok := v.(*ssa.Const); ok {
		return translateConst(c)
	}
	if iv, ok := values[v]; ok {
		return iv, nil
	}
	return newOpaqueValue(v)
}

// newOpaqueValue models an ssa.Value this bridge never itself produces an
// ir.Instr for (parameters, field/element loads, call results, ...) as a
// typed leaf, so it can still participate as an operand of a comparison.
func newOpaqueValue(v ssa.Value) (ir.Value, error) {
	t, err := translateType(v.Type())
	if err != nil {
		return nil, err
	}
	return &opaque{name: v.Name(), typ: t}, nil
}

type opaque struct {
	name string
	typ  ir.Type
}

func (o *opaque) Type() ir.Type  { return o.typ }
func (o *opaque) String() string { return "%" + o.name }

func translateConst(c *ssa.Const) (ir.Value, error) {
	t, err := translateType(c.Type())
	if err != nil {
		return nil, err
	}
	switch tt := t.(type) {
	case ir.IntType:
		if c.Value == nil {
			return ir.NewConstInt(tt.Bits, 0), nil
		}
		u, _ := constant.Uint64Val(c.Value)
		return ir.NewConstInt(tt.Bits, u), nil
	case ir.FloatType:
		var f float64
		if c.Value != nil {
			f, _ = constant.Float64Val(c.Value)
		}
		return &ir.ConstFloat{Bits: tt.Bits, Val: f}, nil
	case ir.PointerType:
		return ir.NewConstInt(64, 0), nil // the only pointer constant SSA produces is nil.
	default:
		return nil, fmt.Errorf("unsupported constant type %T", t)
	}
}

// translateType maps a go/types.Type to the narrow ir.Type vocabulary this
// pass understands. Every other Go type (strings, slices, maps, structs,
// interfaces, channels) is rejected — nothing in spec §4.3 ever compares one.
func translateType(t types.Type) (ir.Type, error) {
	switch u := t.Underlying().(type) {
	case *types.Basic:
		switch u.Kind() {
		case types.Bool:
			return ir.IntType{Bits: 1}, nil
		case types.Int8, types.Uint8:
			return ir.IntType{Bits: 8}, nil
		case types.Int16, types.Uint16:
			return ir.IntType{Bits: 16}, nil
		case types.Int32, types.Uint32:
			return ir.IntType{Bits: 32}, nil
		case types.Int64, types.Uint64, types.Int, types.Uint, types.Uintptr:
			return ir.IntType{Bits: 64}, nil
		case types.Float32:
			return ir.FloatType{Bits: 32}, nil
		case types.Float64:
			return ir.FloatType{Bits: 64}, nil
		}
	case *types.Pointer:
		return ir.PointerType{}, nil
	}
	return nil, fmt.Errorf("unsupported type %s", t)
}

func attachLoc(b *ir.BasicBlock, pos token.Pos, fset *token.FileSet) {
	if b.Loc != "" || fset == nil || pos == token.NoPos {
		return
	}
	p := fset.Position(pos)
	b.Loc = fmt.Sprintf("%s:%d", p.Filename, p.Line)
}
