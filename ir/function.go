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

// Function is a sequence of basic blocks. Blocks is walked in iteration
// order by S2's labeller (spec §3's "iteration order over (function x
// block)"), so its order is significant and must never be re-sorted by any
// pass.
type Function struct {
	Name   string
	Params []*Param
	Blocks []*BasicBlock

	blockSeq int
}

// NewBlock creates and appends a new, unterminated basic block to fn. The
// name is deterministic (fn-local sequence number) so that two runs over the
// same input module produce byte-identical synthetic names, which
// report determinism (spec P6) depends on.
func (fn *Function) NewBlock(prefix string) *BasicBlock {
	b := &BasicBlock{
		Name:   fmt.Sprintf("%s.%s.%d", fn.Name, prefix, fn.blockSeq),
		Parent: fn,
	}
	fn.blockSeq++
	fn.Blocks = append(fn.Blocks, b)
	return b
}
