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

package gclplugin

import (
	"testing"

	"github.com/golangci/plugin-module-register/register"
	"github.com/stretchr/testify/require"

	"go.branchcov.dev/covpass/lintshape"
)

func TestPlugin(t *testing.T) {
	t.Parallel()

	plugin, err := New(nil)
	require.NoError(t, err)
	require.NotNil(t, plugin)

	require.Equal(t, register.LoadModeTypesInfo, plugin.GetLoadMode())
	analyzers, err := plugin.BuildAnalyzers()
	require.NoError(t, err)
	require.Len(t, analyzers, 1)
	require.Equal(t, lintshape.Analyzer, analyzers[0])
}

func TestPlugin_EmptySettingsMap(t *testing.T) {
	t.Parallel()

	plugin, err := New(map[string]any{})
	require.NoError(t, err)
	require.NotNil(t, plugin)
}

func TestPlugin_RejectsUnsupportedSettings(t *testing.T) {
	t.Parallel()

	plugin, err := New(map[string]any{"unknown": "value"})
	require.Error(t, err)
	require.Nil(t, plugin)
}

func TestPlugin_RejectsNonMapSettings(t *testing.T) {
	t.Parallel()

	plugin, err := New("not a map")
	require.Error(t, err)
	require.Nil(t, plugin)
}
