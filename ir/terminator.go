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

import "fmt"

// Terminator is the last instruction of a BasicBlock. Exactly one of these
// implementations terminates every block in a well-formed Module.
type Terminator interface {
	fmt.Stringer
	// Successors returns the blocks control may transfer to, in a stable
	// order (for CondBr, [trueTarget, falseTarget]).
	Successors() []*BasicBlock
	isTerminator()
}

// Br is an unconditional branch.
type Br struct {
	Target *BasicBlock
}

func (*Br) isTerminator() {}

func (b *Br) Successors() []*BasicBlock { return []*BasicBlock{b.Target} }

func (b *Br) String() string { return "br label " + b.Target.Name }

// CondBr is a two-way conditional branch. After S3 runs, Cond is always the
// result of a Call to one of the six logging callbacks.
type CondBr struct {
	Cond        Value
	True, False *BasicBlock
}

func (*CondBr) isTerminator() {}

func (c *CondBr) Successors() []*BasicBlock { return []*BasicBlock{c.True, c.False} }

func (c *CondBr) String() string {
	return fmt.Sprintf("br i1 %v, label %s, label %s", c.Cond, c.True.Name, c.False.Name)
}

// Case is one arm of a Switch: scrutinee value val branches to Target.
type Case struct {
	Val    uint64
	Target *BasicBlock
}

// Switch is a multi-way branch on an integer scrutinee. spec §4.1 requires
// every Switch to be eliminated by S1 before S2 runs.
type Switch struct {
	Scrutinee Value
	Cases     []Case
	Default   *BasicBlock
}

func (*Switch) isTerminator() {}

func (s *Switch) Successors() []*BasicBlock {
	succs := make([]*BasicBlock, 0, len(s.Cases)+1)
	for _, c := range s.Cases {
		succs = append(succs, c.Target)
	}
	return append(succs, s.Default)
}

func (s *Switch) String() string { return fmt.Sprintf("switch %v, label %s [...]", s.Scrutinee, s.Default.Name) }

// Ret returns from the function, optionally with a value.
type Ret struct {
	Val Value // nil for a void return
}

func (*Ret) isTerminator() {}

func (*Ret) Successors() []*BasicBlock { return nil }

func (r *Ret) String() string {
	if r.Val == nil {
		return "ret void"
	}
	return fmt.Sprintf("ret %v", r.Val)
}

// Unreachable marks a block that control can never reach.
type Unreachable struct{}

func (*Unreachable) isTerminator() {}

func (*Unreachable) Successors() []*BasicBlock { return nil }

func (*Unreachable) String() string { return "unreachable" }
