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

// Package gclplugin implements golangci-lint's module plugin interface for
// lintshape to be used as a private linter in golangci-lint. See more
// details at https://golangci-lint.run/plugins/module-plugins/.
package gclplugin

import (
	"fmt"

	"github.com/golangci/plugin-module-register/register"
	"golang.org/x/tools/go/analysis"

	"go.branchcov.dev/covpass/lintshape"
)

func init() {
	register.Plugin("lintshape", New)
}

// New returns the golangci-lint plugin that wraps the lintshape analyzer.
// lintshape takes no settings today, but the settings parameter is kept (and
// validated to be empty or absent) so golangci-lint's plugin protocol, which
// always calls New with whatever the user's .golangci.yml provides, never
// fails for a caller that doesn't yet know that.
func New(settings any) (register.LinterPlugin, error) {
	if settings != nil {
		if s, ok := settings.(map[string]any); !ok || len(s) != 0 {
			return nil, fmt.Errorf("lintshape takes no settings, got %T", settings)
		}
	}
	return &plugin{}, nil
}

type plugin struct{}

// BuildAnalyzers returns the lintshape analyzer.
func (p *plugin) BuildAnalyzers() ([]*analysis.Analyzer, error) {
	return []*analysis.Analyzer{lintshape.Analyzer}, nil
}

// GetLoadMode returns the load mode lintshape needs (it reads TypesInfo).
func (p *plugin) GetLoadMode() string { return register.LoadModeTypesInfo }
