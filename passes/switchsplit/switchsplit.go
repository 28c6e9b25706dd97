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

// Package switchsplit implements S1, the switch splitter: it rewrites every
// multi-way switch terminator into a balanced binary tree of byte-wise
// equality and range comparisons (spec §4.1), so that every later stage only
// ever has to deal with two-way conditional branches.
package switchsplit

import (
	"fmt"
	"sort"

	"go.branchcov.dev/covpass/ir"
)

// sentinel mirrors spec §4.1 step 1: "the initial sentinel for 'no minimum
// yet' is 257 so that any real byte-set wins" (a byte position holds at most
// 256 distinct values).
const sentinel = 257

// Run lowers every switch terminator in m into a tree of two-way branches.
// After Run returns, m.CountSwitches() == 0 (spec property P2). When atO0 is
// true, byte selection skips the minimum-cardinality heuristic and always
// picks the lowest-indexed unchecked byte, matching an optimization-disabled
// build's simplest valid lowering (config.Options.RunAtO0).
func Run(m *ir.Module, atO0 bool) error {
	for _, fn := range m.Functions {
		if err := runFunction(fn, atO0); err != nil {
			return fmt.Errorf("switchsplit: function %s: %w", fn.Name, err)
		}
	}
	return nil
}

func runFunction(fn *ir.Function, atO0 bool) error {
	// fn.Blocks grows as we append tree nodes; re-reading len(fn.Blocks) each
	// iteration lets the loop naturally cover them, but none of the newly
	// created blocks ever carries a Switch terminator, so this converges.
	for i := 0; i < len(fn.Blocks); i++ {
		block := fn.Blocks[i]
		sw, ok := block.Term.(*ir.Switch)
		if !ok {
			continue
		}
		if err := lowerSwitch(fn, block, sw, atO0); err != nil {
			return err
		}
	}
	return nil
}

func lowerSwitch(fn *ir.Function, block *ir.BasicBlock, sw *ir.Switch, atO0 bool) error {
	it, ok := sw.Scrutinee.Type().(ir.IntType)
	if !ok {
		return fmt.Errorf("switch scrutinee in block %s is not an integer: %v", block.Name, sw.Scrutinee.Type())
	}
	width := it.Bits
	byteCount := (width + 7) / 8

	// Step 1: interpose NewDefault between the tree and the original default
	// target so every leaf that falls through patches exactly one block's
	// worth of PHIs, regardless of how many leaves fall through.
	newDefault := fn.NewBlock("switch.default")
	newDefault.Term = &ir.Br{Target: sw.Default}

	// Step 2/3: build the tree, or short-circuit straight to NewDefault for
	// an empty case list (spec §4.1 "Edge cases").
	var switchBlock *ir.BasicBlock
	if len(sw.Cases) == 0 {
		switchBlock = newDefault
	} else {
		checked := make([]bool, byteCount)
		node, err := convert(fn, sw.Cases, checked, block, newDefault, sw.Scrutinee, 0, atO0)
		if err != nil {
			return err
		}
		switchBlock = node
	}
	block.Term = &ir.Br{Target: switchBlock}

	// Step 4: patch PHIs in the original default target to cite NewDefault
	// instead of the (now switch-less) origin block.
	repairPhis(sw.Default, block, newDefault)

	return nil
}

// convert implements the recursive byte-decomposed decision tree builder
// from spec §4.1. It returns the freshly created "NodeBlock".
func convert(
	fn *ir.Function,
	cases []ir.Case,
	checked []bool,
	origin, newDefault *ir.BasicBlock,
	scrutinee ir.Value,
	level int,
	atO0 bool,
) (*ir.BasicBlock, error) {
	node := fn.NewBlock(fmt.Sprintf("switch.node.%d", level))

	var (
		j       int
		k       int
		byteSet map[byte]bool
	)
	if atO0 {
		j, k, byteSet = pickFirstUnchecked(cases, checked)
	} else {
		j, k, byteSet = pickByte(cases, checked)
	}
	if j < 0 {
		return nil, fmt.Errorf("switch splitter: no unchecked byte position left with %d residual case(s)", len(cases))
	}

	width := scrutinee.Type().(ir.IntType).Bits
	var shifted ir.Value = &ir.LShr{X: scrutinee, Shift: uint(j * 8)}
	node.Instrs = append(node.Instrs, shifted.(ir.Instr))
	b8 := shifted
	if width > 8 {
		tr := &ir.Trunc{X: shifted, ToBits: 8}
		node.Instrs = append(node.Instrs, tr)
		b8 = tr
	}

	if k == 1 {
		var only byte
		for v := range byteSet {
			only = v
		}
		cmp := &ir.ICmp{Pred: ir.ICmpEQ, X: b8, Y: ir.NewConstInt(8, uint64(only))}
		node.Instrs = append(node.Instrs, cmp)

		nextChecked := append([]bool(nil), checked...)
		nextChecked[j] = true

		if allChecked(nextChecked) {
			if len(cases) != 1 {
				return nil, fmt.Errorf("switch splitter: expected a singleton case list once every byte is checked, got %d", len(cases))
			}
			target := cases[0].Target
			node.Term = &ir.CondBr{Cond: cmp, True: target, False: newDefault}
			repairPhis(target, origin, node)
			return node, nil
		}

		inner, err := convert(fn, cases, nextChecked, origin, newDefault, scrutinee, level+1, atO0)
		if err != nil {
			return nil, err
		}
		node.Term = &ir.CondBr{Cond: cmp, True: inner, False: newDefault}
		return node, nil
	}

	// k >= 2: split on the upper-median byte value.
	sorted := make([]byte, 0, len(byteSet))
	for v := range byteSet {
		sorted = append(sorted, v)
	}
	sort.Slice(sorted, func(a, b int) bool { return sorted[a] < sorted[b] })
	pivot := sorted[k/2]

	var lhs, rhs []ir.Case
	for _, c := range cases {
		if byteAt(c.Val, j) < pivot {
			lhs = append(lhs, c)
		} else {
			rhs = append(rhs, c)
		}
	}

	cmp := &ir.ICmp{Pred: ir.ICmpULT, X: b8, Y: ir.NewConstInt(8, uint64(pivot))}
	node.Instrs = append(node.Instrs, cmp)

	// checked is passed by value (copy) on both branches: byte j remains
	// unchecked on both subtrees deliberately (spec §9, "bytesChecked
	// sharing during split").
	lBlock, err := convert(fn, lhs, append([]bool(nil), checked...), origin, newDefault, scrutinee, level+1, atO0)
	if err != nil {
		return nil, err
	}
	rBlock, err := convert(fn, rhs, append([]bool(nil), checked...), origin, newDefault, scrutinee, level+1, atO0)
	if err != nil {
		return nil, err
	}
	node.Term = &ir.CondBr{Cond: cmp, True: lBlock, False: rBlock}
	return node, nil
}

// pickByte finds the unchecked byte position with the fewest distinct byte
// values among cases, per spec §4.1 step 1 (ties broken by smallest index).
func pickByte(cases []ir.Case, checked []bool) (j, k int, byteSet map[byte]bool) {
	best := sentinel
	bestJ := -1
	var bestSet map[byte]bool
	for i := range checked {
		if checked[i] {
			continue
		}
		set := make(map[byte]bool)
		for _, c := range cases {
			set[byteAt(c.Val, i)] = true
		}
		if len(set) < best {
			best = len(set)
			bestJ = i
			bestSet = set
		}
	}
	return bestJ, best, bestSet
}

// pickFirstUnchecked is the -O0 byte-selection policy: the lowest-indexed
// unchecked byte position, regardless of cardinality.
func pickFirstUnchecked(cases []ir.Case, checked []bool) (j, k int, byteSet map[byte]bool) {
	for i := range checked {
		if checked[i] {
			continue
		}
		set := make(map[byte]bool)
		for _, c := range cases {
			set[byteAt(c.Val, i)] = true
		}
		return i, len(set), set
	}
	return -1, 0, nil
}

func byteAt(val uint64, i int) byte { return byte(val >> uint(i*8)) }

func allChecked(checked []bool) bool {
	for _, c := range checked {
		if !c {
			return false
		}
	}
	return true
}

// repairPhis rewrites, in every phi of target, the first incoming entry
// whose predecessor is origin to instead cite newPred (spec §4.1 step 4 and
// the leaf-branch repair in step 3; see also spec §9's "PHI first-occurrence
// rule").
func repairPhis(target, origin, newPred *ir.BasicBlock) {
	for _, phi := range target.Phis {
		phi.ReplaceFirstPred(origin, newPred)
	}
}
