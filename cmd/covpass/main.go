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

// Package main makes it possible to build covpass as a standalone binary
// that can be independently invoked to run the instrumentation pipeline. The
// only supported mode is -fromgo, which builds the ir.Module from a real Go
// package's SSA via frontend/fromssa, so the pipeline can be exercised end to
// end without an external IR loader; without -fromgo the command exits with
// an error, since no bitcode/IR loader is part of this repo.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"golang.org/x/tools/go/analysis/passes/buildssa"
	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"

	"go.branchcov.dev/covpass/config"
	"go.branchcov.dev/covpass/frontend/fromssa"
	"go.branchcov.dev/covpass/ir"
	"go.branchcov.dev/covpass/pipeline"
	"go.branchcov.dev/covpass/report"
)

func main() {
	fs := flag.NewFlagSet("covpass", flag.ExitOnError)
	var opts config.Options
	opts.RegisterFlags(fs)
	fromGo := fs.String("fromgo", "", "run the pipeline over the SSA of this Go package pattern instead of an external IR module (demo mode)")

	if err := fs.Parse(os.Args[1:]); err != nil {
		log.Fatalf("parse flags: %v", err)
	}

	if *fromGo == "" {
		log.Fatal("covpass currently only supports -fromgo <package pattern>; an external IR loader is out of scope for this repo")
	}

	m, err := buildModuleFromGo(*fromGo, "")
	if err != nil {
		log.Fatalf("build module from %q: %v", *fromGo, err)
	}

	res, err := pipeline.Run(m, opts)
	if err != nil {
		log.Fatalf("pipeline failed: %v", err)
	}

	if opts.Snapshot {
		fmt.Printf("instrumented %d function(s), %d basic block(s), wrote %d report line(s) to %s\n",
			len(m.Functions), countBlocks(m), len(res.Snapshot.Records), reportPath(opts))
	} else {
		// Without -snapshot the writer keeps no records to count.
		fmt.Printf("instrumented %d function(s), %d basic block(s), wrote the report to %s\n",
			len(m.Functions), countBlocks(m), reportPath(opts))
	}

	if opts.Snapshot {
		snapPath := reportPath(opts) + ".snapshot"
		if err := report.WriteSnapshotFile(snapPath, res.Snapshot); err != nil {
			log.Fatalf("write snapshot: %v", err)
		}
		fmt.Printf("wrote compressed snapshot to %s\n", snapPath)
	}
}

func reportPath(opts config.Options) string {
	if opts.ReportPath != "" {
		return opts.ReportPath
	}
	return report.DefaultPath
}

func countBlocks(m *ir.Module) int {
	n := 0
	for _, fn := range m.Functions {
		n += len(fn.Blocks)
	}
	return n
}

// buildModuleFromGo loads pattern via go/packages, builds SSA for every
// loaded package with ssautil, and translates each one's source functions
// into a single ir.Module via frontend/fromssa. dir, when non-empty,
// overrides the working directory packages.Load resolves pattern against
// (tests use this to point at a scratch module).
func buildModuleFromGo(pattern, dir string) (*ir.Module, error) {
	cfg := &packages.Config{
		Dir: dir,
		Mode: packages.NeedName | packages.NeedFiles | packages.NeedImports |
			packages.NeedDeps | packages.NeedTypes | packages.NeedTypesInfo | packages.NeedSyntax,
	}
	pkgs, err := packages.Load(cfg, pattern)
	if err != nil {
		return nil, fmt.Errorf("load packages: %w", err)
	}
	if packages.PrintErrors(pkgs) > 0 {
		return nil, fmt.Errorf("packages %q had load errors", pattern)
	}

	prog, ssaPkgs := ssautil.AllPackages(pkgs, ssa.SanityCheckFunctions)
	prog.Build()

	m := &ir.Module{}
	for i, ssaPkg := range ssaPkgs {
		if ssaPkg == nil {
			continue
		}
		srcFuncs := sourceFunctions(pkgs[i], ssaPkg)
		sub, err := fromssa.Build(&buildssa.SSA{Pkg: ssaPkg, SrcFuncs: srcFuncs}, pkgs[i].Fset)
		if err != nil {
			return nil, fmt.Errorf("package %s: %w", pkgs[i].PkgPath, err)
		}
		m.Functions = append(m.Functions, sub.Functions...)
	}
	return m, nil
}

// sourceFunctions returns every *ssa.Function of pkg's own package-level
// declarations (mirrors how golang.org/x/tools/go/analysis/passes/buildssa
// computes SrcFuncs, since we bypass the analysis.Pass driver entirely here).
func sourceFunctions(pkg *packages.Package, ssaPkg *ssa.Package) []*ssa.Function {
	var funcs []*ssa.Function
	for _, member := range ssaPkg.Members {
		fn, ok := member.(*ssa.Function)
		if !ok {
			continue
		}
		funcs = append(funcs, fn)
		for _, anon := range fn.AnonFuncs {
			funcs = append(funcs, anon)
		}
	}
	_ = pkg
	return funcs
}
