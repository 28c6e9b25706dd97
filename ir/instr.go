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

// Instr is a non-terminator, non-phi instruction. Every Instr is itself a
// Value: its result may be used as an operand by a later instruction or by
// the block's terminator.
type Instr interface {
	Value
	isInstr()
}

// ICmp computes a boolean by comparing two integer (or pointer) operands
// under Pred.
type ICmp struct {
	Pred IntPredicate
	X, Y Value
}

func (*ICmp) isInstr() {}

func (*ICmp) Type() Type { return I1 }

func (c *ICmp) String() string { return fmt.Sprintf("icmp %v %v, %v", c.Pred, c.X, c.Y) }

// FCmp computes a boolean by comparing two floating-point operands under Pred.
type FCmp struct {
	Pred FloatPredicate
	X, Y Value
}

func (*FCmp) isInstr() {}

func (*FCmp) Type() Type { return I1 }

func (c *FCmp) String() string { return fmt.Sprintf("fcmp %v %v, %v", c.Pred, c.X, c.Y) }

// LShr is a logical right shift by a constant number of bits, used by the
// switch splitter to isolate one byte of the scrutinee.
type LShr struct {
	X     Value
	Shift uint
}

func (*LShr) isInstr() {}

func (l *LShr) Type() Type { return l.X.Type() }

func (l *LShr) String() string { return fmt.Sprintf("lshr %v, %d", l.X, l.Shift) }

// Trunc narrows an integer value to a smaller bit width.
type Trunc struct {
	X      Value
	ToBits int
}

func (*Trunc) isInstr() {}

func (t *Trunc) Type() Type { return IntType{Bits: t.ToBits} }

func (t *Trunc) String() string { return fmt.Sprintf("trunc %v to i%d", t.X, t.ToBits) }

// SExt widens an integer value to a larger bit width, replicating the sign bit.
type SExt struct {
	X      Value
	ToBits int
}

func (*SExt) isInstr() {}

func (s *SExt) Type() Type { return IntType{Bits: s.ToBits} }

func (s *SExt) String() string { return fmt.Sprintf("sext %v to i%d", s.X, s.ToBits) }

// ZExt widens an integer value to a larger bit width, zero-filling.
type ZExt struct {
	X      Value
	ToBits int
}

func (*ZExt) isInstr() {}

func (z *ZExt) Type() Type { return IntType{Bits: z.ToBits} }

func (z *ZExt) String() string { return fmt.Sprintf("zext %v to i%d", z.X, z.ToBits) }

// PtrToInt reinterprets a pointer operand as a 64-bit integer so it can be
// passed, unchanged in bit pattern, to a log_func64 callback.
type PtrToInt struct {
	X Value
}

func (*PtrToInt) isInstr() {}

func (*PtrToInt) Type() Type { return IntType{Bits: 64} }

func (p *PtrToInt) String() string { return fmt.Sprintf("ptrtoint %v to i64", p.X) }

// Call is a call instruction. The pass only ever inserts calls to the
// scaffolding symbol ("fake_func") or to one of the six logging callbacks, so
// Callee is a plain symbol name rather than a first-class function value.
type Call struct {
	Callee     string
	Args       []Value
	ResultType Type
}

func (*Call) isInstr() {}

func (c *Call) Type() Type { return c.ResultType }

func (c *Call) String() string { return fmt.Sprintf("call %v @%s(...)", c.ResultType, c.Callee) }

// PhiIncoming is one (predecessor, value) pair of a Phi node.
type PhiIncoming struct {
	Pred *BasicBlock
	Val  Value
}

// Phi selects one of several incoming values based on the predecessor block
// control actually arrived from. Phi nodes live at the head of a BasicBlock,
// tracked separately from the ordinary instruction list so that switch
// lowering's PHI-repair logic (spec §4.1) never has to scan past them.
type Phi struct {
	Typ      Type
	Incoming []PhiIncoming
}

func (*Phi) isInstr() {}

func (p *Phi) Type() Type { return p.Typ }

func (p *Phi) String() string { return fmt.Sprintf("phi %v [...]", p.Typ) }

// ReplaceFirstPred rewrites the first incoming entry whose predecessor is old
// to instead cite newPred, per spec's "first-occurrence" PHI repair rule
// (§4.1, §9). It reports whether an entry was found and rewritten.
func (p *Phi) ReplaceFirstPred(old, newPred *BasicBlock) bool {
	for i := range p.Incoming {
		if p.Incoming[i].Pred == old {
			p.Incoming[i].Pred = newPred
			return true
		}
	}
	return false
}
