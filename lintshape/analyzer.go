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

// Package lintshape is a companion go/analysis linter, not the instrumentation
// pass itself: it flags `if` conditions in ordinary Go source that would not
// lower to a direct icmp/fcmp shape if compiled through this repo's pipeline
// (SPEC_FULL.md §2.2), so harness authors can sanity-check Go fixtures before
// handing them to the real pass.
package lintshape

import (
	"go/ast"
	"go/token"
	"go/types"
	"reflect"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/buildssa"

	"go.branchcov.dev/covpass/ir"
	"go.branchcov.dev/covpass/util/analysishelper"
)

const doc = "flags if-conditions that would not lower to a single icmp/fcmp, the only " +
	"branch shapes this repo's instrumentation pass can rewrite (spec §4.3)"

// Analyzer flags every `if` statement whose condition is not a single
// comparison expression. buildssa.Analyzer is required, not because this
// analyzer reads SSA directly (the AST walk below is sufficient and mirrors
// how fromssa normalizes conditions), but to keep this package honest about
// depending on the same front end the real pipeline's -fromgo mode uses —
// a future version that also cross-checks against the built SSA shares this
// Requires list for free. Run is wrapped in analysishelper.WrapRun so a panic
// while walking a malformed AST surfaces as a Result.Err instead of crashing
// the whole golangci-lint process gclplugin embeds this analyzer into.
var Analyzer = &analysis.Analyzer{
	Name:       "lintshape",
	Doc:        doc,
	Run:        analysishelper.WrapRun(run),
	Requires:   []*analysis.Analyzer{buildssa.Analyzer},
	ResultType: reflect.TypeOf((*analysishelper.Result[[]Finding])(nil)),
}

// Finding records one non-instrumentable branch condition.
type Finding struct {
	Pos    token.Pos
	Reason string
}

func run(pass *analysis.Pass) ([]Finding, error) {
	var findings []Finding

	for _, file := range pass.Files {
		ast.Inspect(file, func(n ast.Node) bool {
			ifStmt, ok := n.(*ast.IfStmt)
			if !ok {
				return true
			}
			if reason, bad := shapeOf(pass.TypesInfo, ifStmt.Cond); bad {
				f := Finding{Pos: ifStmt.Cond.Pos(), Reason: reason}
				findings = append(findings, f)
				pass.Reportf(f.Pos, "lintshape: %s", reason)
			}
			return true
		})
	}
	return findings, nil
}

// shapeOf reports whether cond would lower to something other than a direct
// icmp/fcmp: a condition that is not a binary expression, a logical
// combinator, or a non-comparison binary expression. Every Go comparison
// operator is accepted as is; ir/predicate.go's tables are not consulted.
func shapeOf(info *types.Info, cond ast.Expr) (reason string, bad bool) {
	cond = unparen(cond)

	bin, ok := cond.(*ast.BinaryExpr)
	if !ok {
		return "branch condition is not a direct comparison (call, conversion, or identifier); " +
			"the instrumentation pass can only rewrite conditions that are a single icmp/fcmp", true
	}

	switch bin.Op {
	case token.LAND, token.LOR:
		return "branch condition combines two comparisons with && or ||; " +
			"lower each comparison to its own if-statement so it can be instrumented individually", true
	case token.EQL, token.NEQ, token.LSS, token.LEQ, token.GTR, token.GEQ:
		// Any of these operators lowers to a single icmp or fcmp, whether
		// the operand is integer, float, or pointer, so it is accepted.
		if t := info.TypeOf(bin.X); t != nil {
			if _, isFloat := underlyingFloat(t); isFloat {
				return "", false
			}
		}
		return "", false
	default:
		return "branch condition is a non-comparison binary expression; " +
			"the instrumentation pass only rewrites icmp/fcmp conditions", true
	}
}

func underlyingFloat(t types.Type) (ir.Type, bool) {
	basic, ok := t.Underlying().(*types.Basic)
	if !ok {
		return nil, false
	}
	switch basic.Kind() {
	case types.Float32:
		return ir.FloatType{Bits: 32}, true
	case types.Float64:
		return ir.FloatType{Bits: 64}, true
	default:
		return nil, false
	}
}

func unparen(e ast.Expr) ast.Expr {
	for {
		p, ok := e.(*ast.ParenExpr)
		if !ok {
			return e
		}
		e = p.X
	}
}
