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

// Value is anything that can be used as an operand: a constant, a function
// parameter, or the result of an instruction (every Instr is itself a Value).
type Value interface {
	Type() Type
	String() string
}

// ConstInt is an integer constant of a given bit width. Case values in a
// Switch, and the byte/pivot constants the switch splitter synthesizes, are
// both ConstInt.
type ConstInt struct {
	Bits int
	// Val holds the constant's bit pattern zero-extended into a uint64.
	// Interpretation (signed/unsigned) is a property of how a consumer reads
	// it, never of the constant itself.
	Val uint64
}

// NewConstInt returns an integer constant of the given width.
func NewConstInt(bits int, val uint64) *ConstInt { return &ConstInt{Bits: bits, Val: val} }

func (c *ConstInt) Type() Type { return IntType{Bits: c.Bits} }

func (c *ConstInt) String() string { return fmt.Sprintf("i%d %d", c.Bits, c.Val) }

// ConstFloat is a floating-point constant.
type ConstFloat struct {
	Bits int
	Val  float64
}

func (c *ConstFloat) Type() Type { return FloatType{Bits: c.Bits} }

func (c *ConstFloat) String() string { return fmt.Sprintf("%s %v", FloatType{Bits: c.Bits}, c.Val) }

// Param is a function parameter, used as a Value inside the function body.
type Param struct {
	Name string
	Typ  Type
}

func (p *Param) Type() Type { return p.Typ }

func (p *Param) String() string { return "%" + p.Name }
