//  Copyright (c) 2024 Uber Technologies, Inc.
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

// Package analysishelper holds small generic helpers shared by the
// go/analysis analyzers this repo embeds (lintshape today), as opposed to
// the core S1-S4 pipeline, which never touches go/analysis at all.
package analysishelper

import (
	"fmt"
	"runtime/debug"

	"golang.org/x/tools/go/analysis"
)

// Result carries a sub-analyzer's result alongside an optional error, so a
// failure in one analyzer never aborts a driver running several at once.
type Result[T any] struct {
	Res T
	Err error
}

// WrapRun adapts a typed run function to the untyped signature
// analysis.Analyzer.Run expects, boxing the result in a Result[T] so the
// caller decides what to do with a failure instead of the driver aborting
// outright, and recovering any panic into Result[T].Err with a stack trace
// attached. A golangci-lint host process embedding one of these analyzers as
// a plugin should never go down because a single analyzer panicked on a
// malformed input.
func WrapRun[T any](f func(*analysis.Pass) (T, error)) func(*analysis.Pass) (any, error) {
	return func(pass *analysis.Pass) (result any, _ error) {
		res := &Result[T]{}
		result = res

		name := ""
		if pass != nil && pass.Analyzer != nil {
			name = pass.Analyzer.Name
		}
		defer func() {
			if r := recover(); r != nil {
				res.Err = fmt.Errorf("internal panic from %q: %s\n%s", name, r, debug.Stack())
			}
		}()

		r, err := f(pass)
		if err != nil {
			err = fmt.Errorf("%s: %w", name, err)
		}
		res.Res, res.Err = r, err
		return result, nil
	}
}
